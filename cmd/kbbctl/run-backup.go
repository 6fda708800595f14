package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/frederikb96/kube-borg-backup/internal/runner"

	"github.com/spf13/cobra"
)

// runBackupCmd is the entry point executed inside the runner pod itself:
// it never talks to the Kubernetes API, only to the mounted
// clone PVC, cache PVC, and the borg repository.
var runBackupCmd = &cobra.Command{
	Use:   "run-backup",
	Short: "Run one borg archive create + prune against a mounted config",
	RunE:  runRunBackup,
}

func runRunBackup(cmd *cobra.Command, args []string) error {
	cfg, err := runner.LoadConfig(configPath)
	if err != nil {
		return err
	}

	r, err := runner.New(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	var finished atomic.Bool
	termDone := make(chan struct{})
	go func() {
		defer close(termDone)
		<-ctx.Done()
		if finished.Load() {
			// Deferred cancel after a completed run, not a signal.
			return
		}
		r.HandleTermination(context.Background())
		if err := r.CacheTheCacheTeardown(context.Background()); err != nil {
			slog.Warn("cache-the-cache teardown after signal failed", "err", err)
		}
	}()

	archive, runErr := r.RunBackup(context.WithoutCancel(ctx))
	finished.Store(true)

	if ctx.Err() != nil {
		<-termDone
		exitCode = 143
		return nil
	}

	if runErr != nil {
		exitCode = 1
		return fmt.Errorf("backup failed: %w", runErr)
	}

	slog.Info("run-backup finished", "archive", archive)
	exitCode = 0
	return nil
}
