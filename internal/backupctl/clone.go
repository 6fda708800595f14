package backupctl

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/frederikb96/kube-borg-backup/internal/config"
	k8s "github.com/frederikb96/kube-borg-backup/internal/k8sclient"
	"github.com/frederikb96/kube-borg-backup/internal/model"
	"github.com/frederikb96/kube-borg-backup/internal/output"
	"github.com/frederikb96/kube-borg-backup/internal/tracker"

	snapshotv1 "github.com/kubernetes-csi/external-snapshotter/client/v8/apis/volumesnapshot/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// cloneResult is Phase 1's outcome for one backup spec.
type cloneResult struct {
	pvcName string
	err     error
}

// provisionClones runs Phase 1: for every spec, pick the newest ready
// snapshot of its source PVC and submit a clone-PVC create concurrently
// with its siblings. Each clone is registered in the tracker before the
// create call is issued, so a crash between the two never leaks a PVC.
func provisionClones(ctx context.Context, cfg *config.AppConfig, reg *tracker.Registry) map[string]cloneResult {
	at := time.Now()
	results := make(map[string]cloneResult, len(cfg.Backup.Specs))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, spec := range cfg.Backup.Specs {
		wg.Add(1)
		go func(spec config.BackupSpec) {
			defer wg.Done()
			pvcName, err := provisionOne(ctx, cfg, spec, reg, at)
			mu.Lock()
			results[spec.Name] = cloneResult{pvcName: pvcName, err: err}
			mu.Unlock()
		}(spec)
	}
	wg.Wait()
	return results
}

func provisionOne(ctx context.Context, cfg *config.AppConfig, spec config.BackupSpec, reg *tracker.Registry, at time.Time) (string, error) {
	list, err := k8s.ListSnapshots(ctx, cfg.Namespace, k8s.ListOptions())
	if err != nil {
		return "", err
	}
	var candidates []snapshotv1.VolumeSnapshot
	for _, s := range list {
		if s.Spec.Source.PersistentVolumeClaimName != nil && *s.Spec.Source.PersistentVolumeClaimName == spec.PVC {
			candidates = append(candidates, s)
		}
	}
	snap := k8s.NewestReadySnapshot(candidates)
	if snap == nil {
		return "", &model.ProvisioningError{Spec: spec.Name, Resource: "pvc " + spec.PVC, Err: fmt.Errorf("no ready snapshot")}
	}

	cloneName := model.ClonePVCName(cfg.ReleaseName, spec.Name, at)

	size := "1Gi"
	if snap.Status != nil && snap.Status.RestoreSize != nil {
		size = snap.Status.RestoreSize.String()
	}

	reg.Add(tracker.PVC, cfg.Namespace, cloneName, func() error {
		return k8s.DeletePVC(context.Background(), cfg.Namespace, cloneName)
	})

	apiGroup := "snapshot.storage.k8s.io"
	pvc := &corev1.PersistentVolumeClaim{
		ObjectMeta: metav1.ObjectMeta{
			Name:      cloneName,
			Namespace: cfg.Namespace,
			Labels: map[string]string{
				"app":        "kube-borg-backup",
				"managed-by": "kube-borg-backup",
				"backup":     spec.Name,
			},
		},
		Spec: corev1.PersistentVolumeClaimSpec{
			AccessModes:      []corev1.PersistentVolumeAccessMode{corev1.ReadWriteOncePod},
			StorageClassName: &spec.CloneStorageClass,
			Resources: corev1.VolumeResourceRequirements{
				Requests: corev1.ResourceList{
					corev1.ResourceStorage: resource.MustParse(size),
				},
			},
			DataSource: &corev1.TypedLocalObjectReference{
				APIGroup: &apiGroup,
				Kind:     "VolumeSnapshot",
				Name:     snap.Name,
			},
		},
	}

	if _, err := k8s.CreateClonePVC(ctx, cfg.Namespace, pvc); err != nil {
		reg.Remove(tracker.PVC, cfg.Namespace, cloneName)
		return "", err
	}

	output.Info("clone pvc %s created from snapshot %s for backup %s", cloneName, snap.Name, spec.Name)
	return cloneName, nil
}
