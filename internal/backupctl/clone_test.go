package backupctl

import (
	"context"
	"testing"
	"time"

	"github.com/frederikb96/kube-borg-backup/internal/config"
	k8s "github.com/frederikb96/kube-borg-backup/internal/k8sclient"
	"github.com/frederikb96/kube-borg-backup/internal/tracker"

	snapshotv1 "github.com/kubernetes-csi/external-snapshotter/client/v8/apis/volumesnapshot/v1"
	snapshotfake "github.com/kubernetes-csi/external-snapshotter/client/v8/clientset/versioned/fake"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	k8sfake "k8s.io/client-go/kubernetes/fake"
)

func TestProvisionOnePicksNewestReadySnapshotAndRegistersBeforeCreate(t *testing.T) {
	ready := true
	notReady := false
	pvcName := "data"
	restoreSize := resource.MustParse("5Gi")

	older := metav1.NewTime(time.Now().Add(-time.Hour))
	newer := metav1.NewTime(time.Now())

	snapClient := snapshotfake.NewSimpleClientset(
		&snapshotv1.VolumeSnapshot{
			ObjectMeta: metav1.ObjectMeta{Name: "data-snap-old", Namespace: "ns", CreationTimestamp: older},
			Spec:       snapshotv1.VolumeSnapshotSpec{Source: snapshotv1.VolumeSnapshotSource{PersistentVolumeClaimName: &pvcName}},
			Status:     &snapshotv1.VolumeSnapshotStatus{ReadyToUse: &ready, RestoreSize: &restoreSize},
		},
		&snapshotv1.VolumeSnapshot{
			ObjectMeta: metav1.ObjectMeta{Name: "data-snap-new", Namespace: "ns", CreationTimestamp: newer},
			Spec:       snapshotv1.VolumeSnapshotSpec{Source: snapshotv1.VolumeSnapshotSource{PersistentVolumeClaimName: &pvcName}},
			Status:     &snapshotv1.VolumeSnapshotStatus{ReadyToUse: &ready, RestoreSize: &restoreSize},
		},
		&snapshotv1.VolumeSnapshot{
			ObjectMeta: metav1.ObjectMeta{Name: "data-snap-notready", Namespace: "ns", CreationTimestamp: newer},
			Spec:       snapshotv1.VolumeSnapshotSpec{Source: snapshotv1.VolumeSnapshotSource{PersistentVolumeClaimName: &pvcName}},
			Status:     &snapshotv1.VolumeSnapshotStatus{ReadyToUse: &notReady},
		},
	)
	cs := k8sfake.NewSimpleClientset()
	k8s.SetClients(&k8s.Clients{Clientset: cs, Snapshots: snapClient})

	cfg := &config.AppConfig{Namespace: "ns", ReleaseName: "myapp"}
	spec := config.BackupSpec{Name: "data", PVC: pvcName, CloneStorageClass: "csi-clone"}
	reg := tracker.New()
	at := time.Now()

	cloneName, err := provisionOne(context.Background(), cfg, spec, reg, at)
	if err != nil {
		t.Fatalf("provisionOne: %v", err)
	}
	if reg.Len() != 1 {
		t.Fatalf("expected the clone pvc to remain registered after a successful create, got len=%d", reg.Len())
	}

	pvc, err := cs.CoreV1().PersistentVolumeClaims("ns").Get(context.Background(), cloneName, metav1.GetOptions{})
	if err != nil {
		t.Fatalf("get created clone pvc: %v", err)
	}
	if pvc.Spec.DataSource == nil || pvc.Spec.DataSource.Name != "data-snap-new" {
		t.Fatalf("expected clone to source from newest ready snapshot, got %+v", pvc.Spec.DataSource)
	}
	if got := pvc.Spec.Resources.Requests.Storage().String(); got != "5Gi" {
		t.Fatalf("clone pvc size = %s, want 5Gi", got)
	}
}

func TestProvisionOneFailsWithNoReadySnapshot(t *testing.T) {
	snapClient := snapshotfake.NewSimpleClientset()
	cs := k8sfake.NewSimpleClientset()
	k8s.SetClients(&k8s.Clients{Clientset: cs, Snapshots: snapClient})

	cfg := &config.AppConfig{Namespace: "ns", ReleaseName: "myapp"}
	spec := config.BackupSpec{Name: "data", PVC: "data", CloneStorageClass: "csi-clone"}
	reg := tracker.New()

	if _, err := provisionOne(context.Background(), cfg, spec, reg, time.Now()); err == nil {
		t.Fatal("expected error when no ready snapshot exists")
	}
	if reg.Len() != 0 {
		t.Fatalf("registry should be empty after a failed provision, got len=%d", reg.Len())
	}
}
