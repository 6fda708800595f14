package backupctl

import (
	"context"
	"fmt"

	"github.com/frederikb96/kube-borg-backup/internal/config"
	k8s "github.com/frederikb96/kube-borg-backup/internal/k8sclient"
	"github.com/frederikb96/kube-borg-backup/internal/runner"
	"github.com/frederikb96/kube-borg-backup/internal/tracker"

	"gopkg.in/yaml.v3"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

const (
	cloneMountPath  = "/data"
	cacheMountPath  = "/cache"
	configMountPath = "/config"
	defaultLockWait = 0
)

// mintSecret builds the runner's config.yaml (mirroring
// runner.Config's YAML shape) and creates the ephemeral secret that backs
// it, registering it in the tracker before the create call.
func mintSecret(ctx context.Context, cfg *config.AppConfig, spec config.BackupSpec, secretName string, reg *tracker.Registry) error {
	runnerCfg := runner.Config{
		BorgRepo:       cfg.Backup.Repo.Endpoint,
		BorgPassphrase: cfg.Backup.Repo.Passphrase,
		SSHPrivateKey:  cfg.Backup.Repo.SSHKey,
		Prefix:         spec.ArchivePrefix,
		BackupDir:      cloneMountPath,
		TimeoutSeconds: int(spec.Timeout.Value().Seconds()),
		LockWait:       defaultLockWait,
		BorgFlags:      spec.BorgFlags,
		Retention:      cfg.Backup.Retention,
		CacheTheCache:  cfg.Backup.Cache.CacheTheCache,
		CachePVCPath:   cacheMountPath,
	}
	raw, err := yaml.Marshal(runnerCfg)
	if err != nil {
		return fmt.Errorf("marshal runner config: %w", err)
	}

	reg.Add(tracker.Secret, cfg.Namespace, secretName, func() error {
		return k8s.DeleteSecret(context.Background(), cfg.Namespace, secretName)
	})

	secret := &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{
			Name:      secretName,
			Namespace: cfg.Namespace,
			Labels: map[string]string{
				"app":        "kube-borg-backup",
				"managed-by": "kube-borg-backup",
				"ephemeral":  "true",
			},
		},
		Type: corev1.SecretTypeOpaque,
		StringData: map[string]string{
			"config.yaml": string(raw),
		},
	}

	if _, err := k8s.CreateSecret(ctx, cfg.Namespace, secret); err != nil {
		reg.Remove(tracker.Secret, cfg.Namespace, secretName)
		return err
	}
	return nil
}

// spawnRunnerPod builds and creates the single-container runner pod,
// mounting the clone PVC read-only, the cache PVC read-write, and the
// ephemeral secret as /config/config.yaml.
func spawnRunnerPod(ctx context.Context, cfg *config.AppConfig, spec config.BackupSpec, podName, clonePVC, secretName string, reg *tracker.Registry) error {
	privileged := cfg.Backup.Privileged == nil || *cfg.Backup.Privileged
	deadline := int64(spec.Timeout.Value().Seconds())

	reg.Add(tracker.Pod, cfg.Namespace, podName, func() error {
		return k8s.DeletePod(context.Background(), cfg.Namespace, podName)
	})

	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      podName,
			Namespace: cfg.Namespace,
			Labels: map[string]string{
				"app":        "kube-borg-backup",
				"backup":     spec.Name,
				"managed-by": "kube-borg-backup",
			},
		},
		Spec: corev1.PodSpec{
			RestartPolicy:         corev1.RestartPolicyNever,
			ActiveDeadlineSeconds: &deadline,
			Containers: []corev1.Container{{
				Name:            "borg",
				Image:           cfg.Backup.PodImage,
				ImagePullPolicy: corev1.PullIfNotPresent,
				Args:            []string{"run-backup", "--config", configMountPath + "/config.yaml"},
				SecurityContext: &corev1.SecurityContext{
					Privileged: &privileged,
				},
				VolumeMounts: []corev1.VolumeMount{
					{Name: "config", MountPath: configMountPath, ReadOnly: true},
					{Name: "data", MountPath: cloneMountPath, ReadOnly: true},
					{Name: "cache", MountPath: cacheMountPath},
				},
			}},
			Volumes: []corev1.Volume{
				{
					Name: "config",
					VolumeSource: corev1.VolumeSource{
						Secret: &corev1.SecretVolumeSource{SecretName: secretName},
					},
				},
				{
					Name: "data",
					VolumeSource: corev1.VolumeSource{
						PersistentVolumeClaim: &corev1.PersistentVolumeClaimVolumeSource{
							ClaimName: clonePVC,
							ReadOnly:  true,
						},
					},
				},
				{
					Name: "cache",
					VolumeSource: corev1.VolumeSource{
						PersistentVolumeClaim: &corev1.PersistentVolumeClaimVolumeSource{
							ClaimName: cfg.Backup.Cache.PVCName,
						},
					},
				},
			},
		},
	}

	if _, err := k8s.CreatePod(ctx, cfg.Namespace, pod); err != nil {
		reg.Remove(tracker.Pod, cfg.Namespace, podName)
		return err
	}
	return nil
}
