package snapshotctl

import (
	"context"
	"testing"
	"time"

	"github.com/frederikb96/kube-borg-backup/internal/config"
	k8s "github.com/frederikb96/kube-borg-backup/internal/k8sclient"
	"github.com/frederikb96/kube-borg-backup/internal/model"

	snapshotv1 "github.com/kubernetes-csi/external-snapshotter/client/v8/apis/volumesnapshot/v1"
	snapshotfake "github.com/kubernetes-csi/external-snapshotter/client/v8/clientset/versioned/fake"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

func TestCreateAndWaitMarksReadyImmediately(t *testing.T) {
	cfg := &config.AppConfig{Namespace: "ns", AppName: "myapp"}
	spec := config.SnapshotSpec{PVC: "data", SnapshotClass: "csi-snap"}
	at := time.Now()

	snapClient := snapshotfake.NewSimpleClientset()
	k8s.SetClients(&k8s.Clients{Snapshots: snapClient})

	// Pre-create the snapshot under the name the controller will request,
	// already ready, so CreateSnapshot's already-exists-is-success path
	// exercises the Get fallback and createAndWait observes ready=true on
	// its first poll.
	name := model.SnapshotName(spec.PVC, at)
	ready := true
	existing := &snapshotv1.VolumeSnapshot{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: "ns"},
		Status:     &snapshotv1.VolumeSnapshotStatus{ReadyToUse: &ready},
	}
	if _, err := snapClient.SnapshotV1().VolumeSnapshots("ns").Create(context.Background(), existing, metav1.CreateOptions{}); err != nil {
		t.Fatalf("seed snapshot: %v", err)
	}

	outcome := createAndWait(context.Background(), cfg, spec, at)
	if !outcome.ready {
		t.Fatalf("expected outcome ready, got err=%v", outcome.err)
	}
}

func TestPruneOneDeletesOutsideRetention(t *testing.T) {
	cfg := &config.AppConfig{Namespace: "ns", AppName: "myapp"}
	spec := config.SnapshotSpec{PVC: "data", Retention: config.Retention{Daily: 1}}

	snapClient := snapshotfake.NewSimpleClientset()
	k8s.SetClients(&k8s.Clients{Snapshots: snapClient})

	older := metav1.NewTime(time.Now().Add(-48 * time.Hour))
	newer := metav1.NewTime(time.Now())
	pvcName := spec.PVC
	seed := []snapshotv1.VolumeSnapshot{
		{
			ObjectMeta: metav1.ObjectMeta{Name: "old", Namespace: "ns", CreationTimestamp: older},
			Spec:       snapshotv1.VolumeSnapshotSpec{Source: snapshotv1.VolumeSnapshotSource{PersistentVolumeClaimName: &pvcName}},
		},
		{
			ObjectMeta: metav1.ObjectMeta{Name: "new", Namespace: "ns", CreationTimestamp: newer},
			Spec:       snapshotv1.VolumeSnapshotSpec{Source: snapshotv1.VolumeSnapshotSource{PersistentVolumeClaimName: &pvcName}},
		},
	}
	for _, s := range seed {
		s := s
		if _, err := snapClient.SnapshotV1().VolumeSnapshots("ns").Create(context.Background(), &s, metav1.CreateOptions{}); err != nil {
			t.Fatalf("seed snapshot %s: %v", s.Name, err)
		}
	}

	pruneOne(context.Background(), cfg.AppName, cfg.Namespace, spec)

	list, err := snapClient.SnapshotV1().VolumeSnapshots("ns").List(context.Background(), metav1.ListOptions{})
	if err != nil {
		t.Fatalf("list after prune: %v", err)
	}
	if len(list.Items) != 1 || list.Items[0].Name != "new" {
		names := make([]string, len(list.Items))
		for i, s := range list.Items {
			names[i] = s.Name
		}
		t.Fatalf("expected only %q to survive prune, got %v", "new", names)
	}
}
