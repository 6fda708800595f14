// Package config defines the on-disk configuration bundle for a managed
// application and loads it from a mounted YAML file.
package config

import (
	"fmt"
	"os"

	"github.com/frederikb96/kube-borg-backup/common"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Retention holds per-tier keep-counts for the retention engine. Any tier
// may be zero, which disables it.
type Retention struct {
	Hourly  int `yaml:"hourly"`
	Daily   int `yaml:"daily"`
	Weekly  int `yaml:"weekly"`
	Monthly int `yaml:"monthly"`
}

// Hook describes a single pre/post command to run inside a running pod.
type Hook struct {
	Pod       string   `yaml:"pod"`
	Container string   `yaml:"container,omitempty"`
	Command   []string `yaml:"command"`
	Parallel  bool     `yaml:"parallel,omitempty"`
}

// SnapshotSpec describes one volume the snapshot controller manages.
type SnapshotSpec struct {
	PVC           string    `yaml:"pvc"`
	SnapshotClass string    `yaml:"snapshotClass"`
	ArchivePrefix string    `yaml:"archivePrefix,omitempty"`
	Retention     Retention `yaml:"retention"`
	PreHooks      []Hook    `yaml:"preHooks,omitempty"`
	PostHooks     []Hook    `yaml:"postHooks,omitempty"`
	// Deadline bounds how long the controller polls for readyToUse before
	// marking this spec failed.
	Deadline Duration `yaml:"deadline,omitempty"`
}

// CacheSpec configures the runner pod's local cache acceleration.
type CacheSpec struct {
	PVCName       string `yaml:"pvcName"`
	CacheTheCache bool   `yaml:"cacheTheCache,omitempty"`
}

// RepoSpec describes where and how the backup repository is reached.
type RepoSpec struct {
	Endpoint   string `yaml:"endpoint"`
	Passphrase string `yaml:"passphrase"`
	SSHKey     string `yaml:"sshKey"`
}

// CSIVolumeCR identifies the GVR of a CSI driver's volume custom resource,
// when the driver exposes one, so the backup controller can poll it for
// attached+healthy before handing the clone to the runner pod. Left
// zero-valued, the readiness check is skipped.
type CSIVolumeCR struct {
	Group    string `yaml:"group,omitempty"`
	Version  string `yaml:"version,omitempty"`
	Resource string `yaml:"resource,omitempty"`
}

// BackupSpec describes one volume the backup controller transfers.
type BackupSpec struct {
	Name              string      `yaml:"name"`
	PVC               string      `yaml:"pvc"`
	CloneStorageClass string      `yaml:"cloneStorageClass"`
	ArchivePrefix     string      `yaml:"archivePrefix,omitempty"`
	Timeout           Duration    `yaml:"timeout"`
	CloneBindTimeout  Duration    `yaml:"cloneBindTimeout"`
	BorgFlags         []string    `yaml:"borgFlags,omitempty"`
	PreHooks          []Hook      `yaml:"preHooks,omitempty"`
	PostHooks         []Hook      `yaml:"postHooks,omitempty"`
	CSIVolumeCR       CSIVolumeCR `yaml:"csiVolumeCR,omitempty"`
}

// AppConfig is the full configuration bundle for one managed application,
// shared by the snapshot controller, backup controller, and backup runner.
type AppConfig struct {
	ReleaseName string `yaml:"releaseName"`
	AppName     string `yaml:"appName"`
	Namespace   string `yaml:"namespace"`
	Schedule    string `yaml:"schedule"`

	// MetricsAddr, when set, serves Prometheus metrics on this address for
	// the lifetime of the controller run. Left empty, no metrics server
	// starts.
	MetricsAddr string `yaml:"metricsAddr,omitempty"`

	Snapshot []SnapshotSpec `yaml:"snapshot"`

	Backup struct {
		Specs      []BackupSpec `yaml:"specs"`
		Cache      CacheSpec    `yaml:"cache"`
		Repo       RepoSpec     `yaml:"repo"`
		PodImage   string       `yaml:"podImage"`
		Privileged *bool        `yaml:"privileged,omitempty"`
		Retention  Retention    `yaml:"retention"`
	} `yaml:"backup"`
}

// Load reads an AppConfig from the given YAML file path and applies
// defaults. It does not validate; callers run ValidateSnapshot or
// ValidateBackup.
func Load(path string) (*AppConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *AppConfig) applyDefaults() error {
	if c.Backup.Privileged == nil {
		t := true
		c.Backup.Privileged = &t
	}
	for i := range c.Backup.Specs {
		s := &c.Backup.Specs[i]
		if s.ArchivePrefix == "" {
			s.ArchivePrefix = fmt.Sprintf("%s-%s", c.AppName, s.Name)
		}
	}
	for i := range c.Snapshot {
		s := &c.Snapshot[i]
		if s.ArchivePrefix == "" {
			s.ArchivePrefix = fmt.Sprintf("%s-%s", c.AppName, s.PVC)
		}
	}
	return nil
}

// ValidateSnapshot rejects an invalid snapshot-controller configuration.
func (c *AppConfig) ValidateSnapshot() error {
	if c.ReleaseName == "" {
		return configError("releaseName", "releaseName is required")
	}
	if c.Namespace == "" {
		return configError("namespace", "namespace is required")
	}
	if len(c.Snapshot) == 0 {
		return configError("snapshot", "snapshot list is empty")
	}
	if err := validateSchedule(c.Schedule); err != nil {
		return err
	}
	seen := make(map[string]bool, len(c.Snapshot))
	for _, s := range c.Snapshot {
		if s.PVC == "" {
			return configError("snapshot.pvc", "snapshot spec missing pvc")
		}
		if seen[s.PVC] {
			return configError("snapshot.pvc", "pvc %q targeted by more than one snapshot spec", s.PVC)
		}
		seen[s.PVC] = true
		if s.SnapshotClass == "" {
			return configError("snapshot.snapshotClass", "snapshot spec for pvc %q missing snapshotClass", s.PVC)
		}
	}
	return nil
}

// ValidateBackup rejects an invalid backup-controller configuration.
func (c *AppConfig) ValidateBackup() error {
	if c.ReleaseName == "" {
		return configError("releaseName", "releaseName is required")
	}
	if c.Namespace == "" {
		return configError("namespace", "namespace is required")
	}
	if c.Backup.Cache.PVCName == "" {
		return configError("backup.cache.pvcName", "backup.cache.pvcName is required")
	}
	if len(c.Backup.Specs) == 0 {
		return configError("backup.specs", "backup.specs is empty")
	}
	if err := validateSchedule(c.Schedule); err != nil {
		return err
	}
	if c.Backup.Repo.Endpoint == "" {
		return configError("backup.repo.endpoint", "backup.repo.endpoint is required")
	}
	if c.Backup.Repo.Passphrase == "" {
		return configError("backup.repo.passphrase", "backup.repo.passphrase is required")
	}
	if c.Backup.Repo.SSHKey == "" {
		return configError("backup.repo.sshKey", "backup.repo.sshKey is required")
	}
	common.RegisterSecret(c.Backup.Repo.Passphrase)
	common.RegisterSecret(c.Backup.Repo.SSHKey)
	seenNames := make(map[string]bool, len(c.Backup.Specs))
	seenPVCs := make(map[string]bool, len(c.Backup.Specs))
	for _, s := range c.Backup.Specs {
		if s.Name == "" {
			return configError("backup.specs.name", "backup spec missing name")
		}
		if seenNames[s.Name] {
			return configError("backup.specs.name", "backup spec name %q used more than once", s.Name)
		}
		seenNames[s.Name] = true
		if s.PVC == "" {
			return configError("backup.specs.pvc", "backup spec %q missing pvc", s.Name)
		}
		if seenPVCs[s.PVC] {
			return configError("backup.specs.pvc", "pvc %q targeted by more than one backup spec", s.PVC)
		}
		seenPVCs[s.PVC] = true
		if s.CloneStorageClass == "" {
			return configError("backup.specs.cloneStorageClass", "backup spec %q missing cloneStorageClass", s.Name)
		}
	}
	return nil
}

// validateSchedule rejects a schedule expression the external CronJob
// wrapper could never fire on. The schedule itself is only consumed
// outside this process; this just fails config loading fast instead of
// letting a typo silently never trigger a run.
func validateSchedule(schedule string) error {
	if schedule == "" {
		return nil
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return configError("schedule", "schedule %q is not a valid cron expression: %w", schedule, err)
	}
	return nil
}
