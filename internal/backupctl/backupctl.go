// Package backupctl implements the backup controller: for each configured
// PVC it provisions a clone PVC from the newest ready snapshot, spawns a
// runner pod to back the clone up to the shared borg repository, and tears
// everything down again, continuing across per-spec failures and reporting
// a summary at the end. Clone provisioning for all specs runs in parallel;
// the backup transfers themselves run one at a time because the repository
// has a single writer.
package backupctl

import (
	"context"
	"fmt"
	"time"

	"github.com/frederikb96/kube-borg-backup/internal/config"
	k8s "github.com/frederikb96/kube-borg-backup/internal/k8sclient"
	"github.com/frederikb96/kube-borg-backup/internal/metrics"
	"github.com/frederikb96/kube-borg-backup/internal/output"
	"github.com/frederikb96/kube-borg-backup/internal/tracker"
)

// result is the per-spec outcome used for the status table and exit code.
type result struct {
	spec     config.BackupSpec
	ok       bool
	reason   string
	duration time.Duration
}

// Run executes one full pass of the backup controller. testMode skips the
// runner pod spawn and simulates success, for local development runs.
func Run(ctx context.Context, cfg *config.AppConfig, reg *tracker.Registry, testMode bool) int {
	if err := checkStorageClasses(ctx, cfg); err != nil {
		output.Fail("%v", err)
		return 1
	}

	clones := provisionClones(ctx, cfg, reg)

	results := make([]result, 0, len(cfg.Backup.Specs))
	for _, spec := range cfg.Backup.Specs {
		if ctx.Err() != nil {
			results = append(results, result{spec: spec, reason: "run cancelled before spec started"})
			continue
		}
		cr, ok := clones[spec.Name]
		if !ok || cr.err != nil {
			reason := "no ready snapshot found"
			if ok && cr.err != nil {
				reason = cr.err.Error()
			}
			results = append(results, result{spec: spec, reason: reason})
			metrics.RecordBackupFailure(cfg.AppName, spec.Name, "clone")
			continue
		}
		results = append(results, runOne(ctx, cfg, spec, cr.pvcName, reg, testMode))
	}

	printSummary(results)

	failed := 0
	for _, r := range results {
		if !r.ok {
			failed++
		}
	}
	if failed > 0 {
		return 1
	}
	return 0
}

// checkStorageClasses verifies every spec's clone storage class exists
// before any provisioning begins.
func checkStorageClasses(ctx context.Context, cfg *config.AppConfig) error {
	checked := make(map[string]bool)
	for _, spec := range cfg.Backup.Specs {
		if checked[spec.CloneStorageClass] {
			continue
		}
		if _, err := k8s.GetStorageClass(ctx, spec.CloneStorageClass); err != nil {
			return &config.ConfigError{
				Field: "backup.specs.cloneStorageClass",
				Err:   fmt.Errorf("storage class %q for backup %q: %w", spec.CloneStorageClass, spec.Name, err),
			}
		}
		checked[spec.CloneStorageClass] = true
	}
	return nil
}

func printSummary(results []result) {
	headers := []string{"BACKUP", "PVC", "STATUS"}
	rows := make([][]string, 0, len(results))
	succeeded, failed := 0, 0
	for _, r := range results {
		status := "success"
		if !r.ok {
			status = "failed: " + r.reason
			failed++
		} else {
			succeeded++
		}
		rows = append(rows, []string{r.spec.Name, r.spec.PVC, status})
	}
	output.Table(headers, rows)
	output.Complete(fmt.Sprintf("%d succeeded, %d failed", succeeded, failed))
}
