package backupctl

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/frederikb96/kube-borg-backup/internal/config"
	"github.com/frederikb96/kube-borg-backup/internal/hooks"
	k8s "github.com/frederikb96/kube-borg-backup/internal/k8sclient"
	"github.com/frederikb96/kube-borg-backup/internal/metrics"
	"github.com/frederikb96/kube-borg-backup/internal/model"
	"github.com/frederikb96/kube-borg-backup/internal/output"
	"github.com/frederikb96/kube-borg-backup/internal/podmonitor"
	"github.com/frederikb96/kube-borg-backup/internal/tracker"

	corev1 "k8s.io/api/core/v1"
)

const (
	eventScanInterval   = 10 * time.Second
	pvcPollInterval     = 5 * time.Second
	csiVolumeGraceDelay = 15 * time.Second
)

var failureKeywords = []string{"ProvisioningFailed", "not found", "failed", "cannot", "unable"}

// runOne drives Phase 2 for one backup spec whose clone PVC already exists:
// wait for clone readiness, wait for the underlying volume, mint the
// ephemeral secret, spawn the runner pod, monitor it to a terminal phase,
// classify the outcome, and tear everything down in pod -> PVC -> secret
// order.
func runOne(ctx context.Context, cfg *config.AppConfig, spec config.BackupSpec, clonePVC string, reg *tracker.Registry, testMode bool) result {
	start := time.Now()

	if err := hooks.Run(ctx, cfg.Namespace, spec.PreHooks); err != nil {
		teardown(ctx, cfg.Namespace, "", clonePVC, "", reg)
		return result{spec: spec, reason: fmt.Sprintf("pre-hooks: %v", err)}
	}
	// Post-hooks pair with the pre-hooks that just completed and must run
	// even when ctx was cancelled mid-backup.
	defer func() {
		if err := hooks.Run(context.WithoutCancel(ctx), cfg.Namespace, spec.PostHooks); err != nil {
			output.Warn("post-hooks for backup %s failed: %v", spec.Name, err)
		}
	}()

	waitStart := time.Now()
	if err := waitCloneReady(ctx, cfg.Namespace, clonePVC, spec.CloneBindTimeout.Value()); err != nil {
		teardown(ctx, cfg.Namespace, "", clonePVC, "", reg)
		metrics.RecordBackupFailure(cfg.AppName, spec.Name, "clone")
		return result{spec: spec, reason: err.Error()}
	}
	metrics.RecordCloneWait(cfg.AppName, spec.Name, time.Since(waitStart))

	waitVolumeReady(ctx, cfg.Namespace, clonePVC, spec.CSIVolumeCR)

	if testMode {
		output.Info("test mode: simulating backup for %s", spec.Name)
		time.Sleep(2 * time.Second)
		teardown(ctx, cfg.Namespace, "", clonePVC, "", reg)
		metrics.RecordBackupSuccess(cfg.AppName, spec.Name, time.Since(start))
		return result{spec: spec, ok: true, duration: time.Since(start)}
	}

	at := time.Now()
	podName := model.RunnerPodName(cfg.ReleaseName, spec.Name, at)
	secretName := model.RunnerSecretName(podName)

	if err := mintSecret(ctx, cfg, spec, secretName, reg); err != nil {
		teardown(ctx, cfg.Namespace, "", clonePVC, "", reg)
		metrics.RecordBackupFailure(cfg.AppName, spec.Name, "secret")
		return result{spec: spec, reason: fmt.Sprintf("secret: %v", err)}
	}

	if err := spawnRunnerPod(ctx, cfg, spec, podName, clonePVC, secretName, reg); err != nil {
		teardown(ctx, cfg.Namespace, podName, clonePVC, secretName, reg)
		metrics.RecordBackupFailure(cfg.AppName, spec.Name, "pod")
		return result{spec: spec, reason: fmt.Sprintf("pod spawn: %v", err)}
	}

	exitCode, monitorErr := monitorToTerminal(ctx, cfg.Namespace, podName)
	teardown(ctx, cfg.Namespace, podName, clonePVC, secretName, reg)

	if monitorErr != nil {
		metrics.RecordBackupFailure(cfg.AppName, spec.Name, "runner")
		return result{spec: spec, reason: monitorErr.Error(), duration: time.Since(start)}
	}
	if exitCode != 0 {
		metrics.RecordBackupFailure(cfg.AppName, spec.Name, "runner")
		return result{spec: spec, reason: fmt.Sprintf("runner pod exited %d", exitCode), duration: time.Since(start)}
	}

	metrics.RecordBackupSuccess(cfg.AppName, spec.Name, time.Since(start))
	return result{spec: spec, ok: true, duration: time.Since(start)}
}

// waitCloneReady waits up to timeout for the clone PVC to become usable,
// distinguishing Immediate (wait for Bound) from WaitForFirstConsumer
// (wait for the WaitForFirstConsumer event) binding modes, and fails fast
// on a failure-keyword event scan every 10s.
func waitCloneReady(ctx context.Context, namespace, pvcName string, timeout time.Duration) error {
	if timeout == 0 {
		timeout = 5 * time.Minute
	}
	deadline := time.Now().Add(timeout)
	lastScan := time.Now()

	for {
		pvc, err := k8s.GetPVC(ctx, namespace, pvcName)
		if err != nil {
			return fmt.Errorf("get clone pvc %s: %w", pvcName, err)
		}
		if pvc.Status.Phase == corev1.ClaimBound {
			return nil
		}

		wffc, err := isWaitForFirstConsumerPVC(ctx, pvc)
		if err == nil && wffc {
			events, _ := k8s.ListPVCEvents(ctx, namespace, pvcName)
			for _, ev := range events {
				if strings.Contains(ev.Reason, "WaitForFirstConsumer") ||
					strings.Contains(ev.Message, "waiting for first consumer") {
					return nil
				}
			}
		}

		if time.Since(lastScan) >= eventScanInterval {
			lastScan = time.Now()
			events, _ := k8s.ListPVCEvents(ctx, namespace, pvcName)
			if msg, failed := scanFailureKeywords(events); failed {
				return &model.ProvisioningError{Resource: "clone pvc " + pvcName, Err: fmt.Errorf("provisioning failed: %s", msg)}
			}
		}

		if time.Now().After(deadline) {
			return &model.ProvisioningError{Resource: "clone pvc " + pvcName, Err: fmt.Errorf("not ready within %s", timeout)}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pvcPollInterval):
		}
	}
}

func isWaitForFirstConsumerPVC(ctx context.Context, pvc *corev1.PersistentVolumeClaim) (bool, error) {
	if pvc.Spec.StorageClassName == nil {
		return false, nil
	}
	sc, err := k8s.GetStorageClass(ctx, *pvc.Spec.StorageClassName)
	if err != nil {
		return false, err
	}
	return k8s.IsWaitForFirstConsumer(sc), nil
}

func scanFailureKeywords(events []corev1.Event) (string, bool) {
	for _, ev := range events {
		for _, kw := range failureKeywords {
			if strings.Contains(ev.Reason, kw) || strings.Contains(ev.Message, kw) {
				return ev.Message, true
			}
		}
	}
	return "", false
}

// waitVolumeReady polls the CSI driver's volume CR, when configured, for
// attached+healthy status, then applies the fixed CSI workload grace
// delay. With no CR configured the whole step is skipped.
func waitVolumeReady(ctx context.Context, namespace, pvcName string, cr config.CSIVolumeCR) {
	if cr.Resource == "" {
		return
	}
	pv, err := resolvePersistentVolumeName(ctx, namespace, pvcName)
	if err == nil && pv != "" {
		pollCSIVolumeCR(ctx, cr, pv)
	}
	select {
	case <-ctx.Done():
	case <-time.After(csiVolumeGraceDelay):
	}
}

func resolvePersistentVolumeName(ctx context.Context, namespace, pvcName string) (string, error) {
	pvc, err := k8s.GetPVC(ctx, namespace, pvcName)
	if err != nil {
		return "", err
	}
	return pvc.Spec.VolumeName, nil
}

func monitorToTerminal(ctx context.Context, namespace, podName string) (int, error) {
	mctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := podmonitor.Start(mctx, namespace, podName, "", os.Stdout)
	defer m.Stop()

	for {
		pod, err := k8s.GetPod(ctx, namespace, podName)
		if err != nil {
			return -1, fmt.Errorf("get runner pod %s: %w", podName, err)
		}
		switch pod.Status.Phase {
		case corev1.PodSucceeded:
			cancel()
			m.Wait()
			return 0, nil
		case corev1.PodFailed:
			cancel()
			m.Wait()
			return exitCodeFromPod(pod), nil
		}
		select {
		case <-ctx.Done():
			cancel()
			m.Wait()
			return -1, ctx.Err()
		case <-time.After(pvcPollInterval):
		}
	}
}

func exitCodeFromPod(pod *corev1.Pod) int {
	for _, cs := range pod.Status.ContainerStatuses {
		if cs.State.Terminated != nil {
			return int(cs.State.Terminated.ExitCode)
		}
	}
	return 1
}

func teardown(ctx context.Context, namespace, podName, clonePVC, secretName string, reg *tracker.Registry) {
	if podName != "" {
		if err := k8s.DeletePod(ctx, namespace, podName); err != nil {
			output.Warn("delete runner pod %s: %v", podName, err)
		} else {
			reg.Remove(tracker.Pod, namespace, podName)
		}
	}
	if err := k8s.DeletePVC(ctx, namespace, clonePVC); err != nil {
		output.Warn("delete clone pvc %s: %v", clonePVC, err)
	} else {
		reg.Remove(tracker.PVC, namespace, clonePVC)
	}
	if secretName != "" {
		if err := k8s.DeleteSecret(ctx, namespace, secretName); err != nil {
			output.Warn("delete config secret %s: %v", secretName, err)
		} else {
			reg.Remove(tracker.Secret, namespace, secretName)
		}
	}
}
