// Command kbbctl runs one pass of the snapshot controller, backup
// controller, or backup runner against a mounted YAML config, invoked
// by an external scheduler such as a Kubernetes CronJob.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/frederikb96/kube-borg-backup/common"
	k8s "github.com/frederikb96/kube-borg-backup/internal/k8sclient"
	"github.com/frederikb96/kube-borg-backup/internal/metrics"

	"github.com/spf13/cobra"
)

var (
	configPath string
	testMode   bool
	kubeconfig string
	jsonLogs   bool

	// exitCode is set by a subcommand's RunE before returning nil, letting
	// controllers report the 0/1/143 exit code contract without cobra
	// mapping every non-nil error straight to exit 1.
	exitCode int
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	os.Exit(exitCode)
}

var rootCmd = &cobra.Command{
	Use:           "kbbctl",
	Short:         "kube-borg-backup: PVC snapshot and borg-repository backups for Kubernetes",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		common.InitLogging(jsonLogs)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", common.Env("CONFIG_PATH", "/config/config.yaml"), "Path to the application config YAML")
	pf.BoolVar(&testMode, "test", common.EnvBool("TEST_MODE", false), "Test mode: skip real snapshot and runner pod creation and simulate success")
	pf.StringVar(&kubeconfig, "kubeconfig", common.EnvRaw("KUBECONFIG", ""), "Path to kubeconfig file (defaults to in-cluster, then default kubeconfig)")
	pf.BoolVar(&jsonLogs, "json-logs", common.EnvBool("JSON_LOGS", false), "Emit structured JSON logs instead of text")

	rootCmd.AddCommand(snapshotCmd, backupCmd, runBackupCmd)
}

// signalContext returns a context cancelled on SIGTERM/SIGINT/SIGHUP, the
// set of signals the controllers treat as a request to drain and exit 143.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)
}

func initClients() error {
	if _, err := k8s.Init(kubeconfig); err != nil {
		return fmt.Errorf("kubernetes init failed: %w", err)
	}
	return nil
}

// startMetricsIfConfigured serves Prometheus metrics for the lifetime of
// ctx when addr is non-empty. The server runs in a background goroutine;
// this returns at once, without waiting for the listener to be up.
func startMetricsIfConfigured(ctx context.Context, addr string) {
	if addr == "" {
		return
	}
	go func() {
		if err := metrics.Serve(ctx, addr); err != nil {
			slog.Warn("metrics server exited", "err", err)
		}
	}()
}
