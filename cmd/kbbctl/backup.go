package main

import (
	"time"

	"github.com/frederikb96/kube-borg-backup/internal/backupctl"
	"github.com/frederikb96/kube-borg-backup/internal/config"
	"github.com/frederikb96/kube-borg-backup/internal/output"
	"github.com/frederikb96/kube-borg-backup/internal/tracker"

	"github.com/spf13/cobra"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Clone snapshots and run borg backups against them",
	RunE:  runBackup,
}

func runBackup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.ValidateBackup(); err != nil {
		return err
	}
	if err := initClients(); err != nil {
		return err
	}

	output.Header("backup", cfg.AppName, cfg.Namespace)

	reg := tracker.New()
	ctx, cancel := signalContext()
	defer cancel()

	startMetricsIfConfigured(ctx, cfg.MetricsAddr)

	done := make(chan int, 1)
	go func() {
		done <- backupctl.Run(ctx, cfg, reg, testMode)
	}()

	select {
	case code := <-done:
		exitCode = code
	case <-ctx.Done():
		output.Warn("termination signal received, draining tracked resources")
		for _, r := range reg.Drain() {
			if r.Err != nil {
				output.Warn("cleanup failed for %s %s/%s: %v", r.Kind, r.Namespace, r.Name, r.Err)
			}
		}
		// The in-flight spec observes cancellation at its next suspension
		// point and still owes its post-hooks; give it a bounded window.
		select {
		case <-done:
		case <-time.After(postHookDrainWindow):
			output.Warn("timed out waiting for in-flight spec to finish post-hooks")
		}
		exitCode = 143
	}
	return nil
}

const postHookDrainWindow = 60 * time.Second
