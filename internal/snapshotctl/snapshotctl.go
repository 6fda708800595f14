// Package snapshotctl implements the snapshot controller: for each
// configured PVC it runs pre-hooks, requests a VolumeSnapshot concurrently
// with its siblings, polls for readiness, runs post-hooks, then prunes
// older snapshots under the retention engine.
package snapshotctl

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/frederikb96/kube-borg-backup/internal/config"
	"github.com/frederikb96/kube-borg-backup/internal/hooks"
	k8s "github.com/frederikb96/kube-borg-backup/internal/k8sclient"
	"github.com/frederikb96/kube-borg-backup/internal/metrics"
	"github.com/frederikb96/kube-borg-backup/internal/model"
	"github.com/frederikb96/kube-borg-backup/internal/output"
	"github.com/frederikb96/kube-borg-backup/internal/retention"

	snapshotv1 "github.com/kubernetes-csi/external-snapshotter/client/v8/apis/volumesnapshot/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

const readinessPollInterval = 5 * time.Second

// specOutcome is the per-spec result of the create-and-wait pass, used for
// both the status table and the final exit code.
type specOutcome struct {
	spec  config.SnapshotSpec
	name  string
	ready bool
	err   error
}

// Run executes one full pass of the snapshot controller and returns the
// process exit code (0 all ready, 1 at least one failed). testMode skips
// real snapshot creation and simulates readiness.
func Run(ctx context.Context, cfg *config.AppConfig, testMode bool) int {
	at := time.Now()
	outcomes := make([]specOutcome, len(cfg.Snapshot))
	preHooksRan := make([]bool, len(cfg.Snapshot))

	for i, spec := range cfg.Snapshot {
		if err := hooks.Run(ctx, cfg.Namespace, spec.PreHooks); err != nil {
			outcomes[i] = specOutcome{spec: spec, err: fmt.Errorf("pre-hooks: %w", err)}
			continue
		}
		preHooksRan[i] = true
	}

	var wg sync.WaitGroup
	for i, spec := range cfg.Snapshot {
		if outcomes[i].err != nil {
			continue
		}
		if testMode {
			output.Info("test mode: simulating snapshot for pvc %s", spec.PVC)
			outcomes[i] = specOutcome{spec: spec, name: model.SnapshotName(spec.PVC, at), ready: true}
			continue
		}
		wg.Add(1)
		go func(i int, spec config.SnapshotSpec) {
			defer wg.Done()
			outcomes[i] = createAndWait(ctx, cfg, spec, at)
		}(i, spec)
	}
	wg.Wait()

	// Post-hooks run exactly once per pre-hook sequence that completed,
	// regardless of snapshot outcome, and still run when the context was
	// cancelled mid-run.
	for i, spec := range cfg.Snapshot {
		if !preHooksRan[i] {
			continue
		}
		if err := hooks.Run(context.WithoutCancel(ctx), cfg.Namespace, spec.PostHooks); err != nil {
			output.Warn("post-hooks for pvc %s failed: %v", spec.PVC, err)
		}
	}

	if !testMode {
		for _, spec := range cfg.Snapshot {
			pruneOne(ctx, cfg.AppName, cfg.Namespace, spec)
		}
	}

	printSummary(outcomes)

	for _, o := range outcomes {
		if !o.ready {
			return 1
		}
	}
	return 0
}

// createAndWait requests one VolumeSnapshot and polls it until ready or
// the spec's deadline elapses.
func createAndWait(ctx context.Context, cfg *config.AppConfig, spec config.SnapshotSpec, at time.Time) specOutcome {
	name := model.SnapshotName(spec.PVC, at)
	snap := &snapshotv1.VolumeSnapshot{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: cfg.Namespace},
		Spec: snapshotv1.VolumeSnapshotSpec{
			VolumeSnapshotClassName: &spec.SnapshotClass,
			Source: snapshotv1.VolumeSnapshotSource{
				PersistentVolumeClaimName: &spec.PVC,
			},
		},
	}

	if _, err := k8s.CreateSnapshot(ctx, cfg.Namespace, snap); err != nil {
		metrics.RecordSnapshotFailure(cfg.AppName, cfg.Namespace, spec.PVC)
		return specOutcome{spec: spec, name: name, err: fmt.Errorf("create snapshot: %w", err)}
	}

	deadline := spec.Deadline.Value()
	if deadline == 0 {
		deadline = 10 * time.Minute
	}
	deadlineAt := time.Now().Add(deadline)

	for {
		current, err := k8s.GetSnapshot(ctx, cfg.Namespace, name)
		if err == nil && current.Status != nil && current.Status.ReadyToUse != nil && *current.Status.ReadyToUse {
			metrics.RecordSnapshotSuccess(cfg.AppName, cfg.Namespace, spec.PVC)
			return specOutcome{spec: spec, name: name, ready: true}
		}
		if time.Now().After(deadlineAt) {
			metrics.RecordSnapshotFailure(cfg.AppName, cfg.Namespace, spec.PVC)
			err := &model.ProvisioningError{Spec: spec.PVC, Resource: "snapshot " + name, Err: fmt.Errorf("not ready within %s", deadline)}
			return specOutcome{spec: spec, name: name, err: err}
		}
		select {
		case <-ctx.Done():
			return specOutcome{spec: spec, name: name, err: ctx.Err()}
		case <-time.After(readinessPollInterval):
		}
	}
}

// pruneOne lists the snapshots whose source is one spec's PVC, passes
// them through the retention engine, and deletes the complement.
func pruneOne(ctx context.Context, appName, namespace string, spec config.SnapshotSpec) {
	list, err := k8s.ListSnapshots(ctx, namespace, k8s.ListOptions())
	if err != nil {
		output.Warn("list snapshots for pvc %s: %v", spec.PVC, err)
		return
	}

	var items []retention.Item
	byName := make(map[string]snapshotv1.VolumeSnapshot)
	for _, s := range list {
		if s.Spec.Source.PersistentVolumeClaimName == nil || *s.Spec.Source.PersistentVolumeClaimName != spec.PVC {
			continue
		}
		items = append(items, retention.Item{Key: s.Name, Timestamp: s.CreationTimestamp.Time})
		byName[s.Name] = s
	}

	kept := retention.Select(items, spec.Retention)
	keepNames := make(map[string]bool, len(kept))
	for _, k := range kept {
		keepNames[k.Key] = true
	}

	pruned := 0
	for name := range byName {
		if keepNames[name] {
			continue
		}
		if err := k8s.DeleteSnapshot(ctx, namespace, name); err != nil {
			output.Warn("delete snapshot %s: %v", name, err)
			continue
		}
		pruned++
	}
	if pruned > 0 {
		metrics.RecordSnapshotPrune(appName, namespace, spec.PVC, pruned)
	}
}

func printSummary(outcomes []specOutcome) {
	headers := []string{"PVC", "SNAPSHOT", "STATUS"}
	rows := make([][]string, 0, len(outcomes))
	succeeded, failed := 0, 0
	for _, o := range outcomes {
		status := "ready"
		if !o.ready {
			status = "failed"
			if o.err != nil {
				status = fmt.Sprintf("failed: %v", o.err)
			}
			failed++
		} else {
			succeeded++
		}
		rows = append(rows, []string{o.spec.PVC, o.name, status})
	}
	output.Table(headers, rows)
	output.Complete(fmt.Sprintf("%d succeeded, %d failed", succeeded, failed))
}
