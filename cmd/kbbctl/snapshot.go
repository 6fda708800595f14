package main

import (
	"github.com/frederikb96/kube-borg-backup/internal/config"
	"github.com/frederikb96/kube-borg-backup/internal/output"
	"github.com/frederikb96/kube-borg-backup/internal/snapshotctl"

	"github.com/spf13/cobra"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Create and prune VolumeSnapshots for configured PVCs",
	RunE:  runSnapshot,
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.ValidateSnapshot(); err != nil {
		return err
	}
	if err := initClients(); err != nil {
		return err
	}

	output.Header("snapshot", cfg.AppName, cfg.Namespace)

	ctx, cancel := signalContext()
	defer cancel()

	startMetricsIfConfigured(ctx, cfg.MetricsAddr)

	code := snapshotctl.Run(ctx, cfg, testMode)
	if ctx.Err() != nil {
		exitCode = 143
		return nil
	}
	exitCode = code
	return nil
}
