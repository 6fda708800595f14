// Package metrics exposes Prometheus gauges and counters for snapshot and
// backup outcomes on a private registry, served only for the lifetime of a
// controller run.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "kbb"

var (
	SnapshotLastSuccessTimestamp = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "snapshot_last_success_timestamp",
		Help:      "Unix timestamp of the last successful snapshot create for a PVC.",
	}, []string{"app", "namespace", "pvc"})

	SnapshotTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "snapshot_total",
		Help:      "Total number of snapshot create attempts.",
	}, []string{"app", "namespace", "pvc", "status"})

	SnapshotPruneTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "snapshot_prune_total",
		Help:      "Total number of VolumeSnapshot objects removed by retention pruning.",
	}, []string{"app", "namespace", "pvc"})
)

var (
	BackupLastSuccessTimestamp = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "backup_last_success_timestamp",
		Help:      "Unix timestamp of the last successful backup run.",
	}, []string{"app", "backup"})

	BackupLastDurationSeconds = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "backup_last_duration_seconds",
		Help:      "Duration of the last backup run in seconds.",
	}, []string{"app", "backup"})

	BackupTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "backup_total",
		Help:      "Total number of backup runner outcomes.",
	}, []string{"app", "backup", "status"})

	CloneWaitSeconds = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "clone_wait_seconds",
		Help:      "Time spent waiting for a clone PVC to bind on its last attempt.",
	}, []string{"app", "backup"})
)

var registry = prometheus.NewRegistry()

func init() {
	registry.MustRegister(
		SnapshotLastSuccessTimestamp,
		SnapshotTotal,
		SnapshotPruneTotal,
		BackupLastSuccessTimestamp,
		BackupLastDurationSeconds,
		BackupTotal,
		CloneWaitSeconds,
	)
}

// Serve starts the metrics HTTP server and blocks until ctx is cancelled,
// then shuts it down gracefully.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: mux}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// RecordSnapshotSuccess records a successful snapshot create.
func RecordSnapshotSuccess(app, namespace, pvc string) {
	labels := prometheus.Labels{"app": app, "namespace": namespace, "pvc": pvc}
	SnapshotLastSuccessTimestamp.With(labels).Set(float64(time.Now().Unix()))
	SnapshotTotal.With(prometheus.Labels{
		"app": app, "namespace": namespace, "pvc": pvc, "status": "success",
	}).Inc()
}

// RecordSnapshotFailure records a failed snapshot create or readiness wait.
func RecordSnapshotFailure(app, namespace, pvc string) {
	SnapshotTotal.With(prometheus.Labels{
		"app": app, "namespace": namespace, "pvc": pvc, "status": "failure",
	}).Inc()
}

// RecordSnapshotPrune increments the count of snapshots removed by
// retention pruning for a PVC.
func RecordSnapshotPrune(app, namespace, pvc string, count int) {
	SnapshotPruneTotal.With(prometheus.Labels{"app": app, "namespace": namespace, "pvc": pvc}).Add(float64(count))
}

// RecordBackupSuccess records a successful end-to-end backup run.
func RecordBackupSuccess(app, backup string, duration time.Duration) {
	labels := prometheus.Labels{"app": app, "backup": backup}
	BackupLastSuccessTimestamp.With(labels).Set(float64(time.Now().Unix()))
	BackupLastDurationSeconds.With(labels).Set(duration.Seconds())
	BackupTotal.With(prometheus.Labels{"app": app, "backup": backup, "status": "success"}).Inc()
}

// RecordBackupFailure records a failed backup run, classified by the phase
// in which it failed (clone, secret, pod, runner).
func RecordBackupFailure(app, backup, reason string) {
	BackupTotal.With(prometheus.Labels{"app": app, "backup": backup, "status": reason}).Inc()
}

// RecordCloneWait records how long the controller waited for the clone PVC
// to bind on the most recent attempt.
func RecordCloneWait(app, backup string, wait time.Duration) {
	CloneWaitSeconds.With(prometheus.Labels{"app": app, "backup": backup}).Set(wait.Seconds())
}
