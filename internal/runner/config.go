package runner

import (
	"fmt"
	"os"

	"github.com/frederikb96/kube-borg-backup/internal/config"
	"gopkg.in/yaml.v3"
)

// Config is the runner's view of the ephemeral secret the backup controller
// mints before spawning the runner pod. It is decoded from the YAML blob
// mounted at /config/config.yaml.
type Config struct {
	BorgRepo       string           `yaml:"repo"`
	BorgPassphrase string           `yaml:"passphrase"`
	SSHPrivateKey  string           `yaml:"sshKey"`
	Prefix         string           `yaml:"archivePrefix"`
	BackupDir      string           `yaml:"backupDir"`
	TimeoutSeconds int              `yaml:"timeoutSeconds"`
	LockWait       int              `yaml:"lockWait"`
	BorgFlags      []string         `yaml:"borgFlags,omitempty"`
	Retention      config.Retention `yaml:"retention"`
	CacheTheCache  bool             `yaml:"cacheTheCache,omitempty"`
	CacheDir       string           `yaml:"cacheDir,omitempty"`
	CachePVCPath   string           `yaml:"cachePvcPath,omitempty"`
	// ArchiveName is set for restore/list operations that target one
	// specific archive rather than creating a new one.
	ArchiveName string `yaml:"archiveName,omitempty"`
}

// LoadConfig reads and validates the runner's mounted configuration.
func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read runner config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse runner config %s: %w", path, err)
	}
	if err := cfg.validateBase(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validateBase() error {
	var missing []string
	if c.BorgRepo == "" {
		missing = append(missing, "repo")
	}
	if c.BorgPassphrase == "" {
		missing = append(missing, "passphrase")
	}
	if c.SSHPrivateKey == "" {
		missing = append(missing, "sshKey")
	}
	if len(missing) > 0 {
		return fmt.Errorf("runner config missing required fields: %v", missing)
	}
	return nil
}

// ValidateBackup additionally requires the fields run_backup needs.
func (c *Config) ValidateBackup() error {
	var missing []string
	if c.Prefix == "" {
		missing = append(missing, "archivePrefix")
	}
	if c.BackupDir == "" {
		missing = append(missing, "backupDir")
	}
	if len(missing) > 0 {
		return fmt.Errorf("runner config missing backup-specific fields: %v", missing)
	}
	return nil
}

// ValidateRestore additionally requires the archive to restore from.
func (c *Config) ValidateRestore() error {
	if c.ArchiveName == "" {
		return fmt.Errorf("runner config missing restore-specific field: archiveName")
	}
	return nil
}
