package k8s

import (
	"testing"
	"time"

	snapshotv1 "github.com/kubernetes-csi/external-snapshotter/client/v8/apis/volumesnapshot/v1"
	storagev1 "k8s.io/api/storage/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

func boolPtr(b bool) *bool { return &b }

func TestNewestReadySnapshotPicksLatestReady(t *testing.T) {
	older := time.Now().Add(-time.Hour)
	newer := time.Now()
	snaps := []snapshotv1.VolumeSnapshot{
		{
			ObjectMeta: metav1.ObjectMeta{Name: "old", CreationTimestamp: metav1.NewTime(older)},
			Status:     &snapshotv1.VolumeSnapshotStatus{ReadyToUse: boolPtr(true)},
		},
		{
			ObjectMeta: metav1.ObjectMeta{Name: "notready", CreationTimestamp: metav1.NewTime(newer)},
			Status:     &snapshotv1.VolumeSnapshotStatus{ReadyToUse: boolPtr(false)},
		},
		{
			ObjectMeta: metav1.ObjectMeta{Name: "new", CreationTimestamp: metav1.NewTime(newer)},
			Status:     &snapshotv1.VolumeSnapshotStatus{ReadyToUse: boolPtr(true)},
		},
	}

	got := NewestReadySnapshot(snaps)
	if got == nil {
		t.Fatal("expected a ready snapshot")
	}
	if got.Name != "new" {
		t.Errorf("picked %q, want %q", got.Name, "new")
	}
}

func TestNewestReadySnapshotNoneReady(t *testing.T) {
	snaps := []snapshotv1.VolumeSnapshot{
		{ObjectMeta: metav1.ObjectMeta{Name: "a"}, Status: &snapshotv1.VolumeSnapshotStatus{ReadyToUse: boolPtr(false)}},
	}
	if got := NewestReadySnapshot(snaps); got != nil {
		t.Errorf("expected nil, got %v", got)
	}
}

func TestIsWaitForFirstConsumer(t *testing.T) {
	wffc := storagev1.VolumeBindingWaitForFirstConsumer
	immediate := storagev1.VolumeBindingImmediate

	if !IsWaitForFirstConsumer(&storagev1.StorageClass{VolumeBindingMode: &wffc}) {
		t.Error("expected true for WaitForFirstConsumer mode")
	}
	if IsWaitForFirstConsumer(&storagev1.StorageClass{VolumeBindingMode: &immediate}) {
		t.Error("expected false for Immediate mode")
	}
	if IsWaitForFirstConsumer(&storagev1.StorageClass{}) {
		t.Error("expected false when binding mode is nil")
	}
}
