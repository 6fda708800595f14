package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadDefaultsArchivePrefix(t *testing.T) {
	path := writeTemp(t, `
releaseName: myapp
appName: myapp
namespace: default
snapshot:
  - pvc: data
    snapshotClass: csi-snap
backup:
  specs:
    - name: data
      pvc: data
      cloneStorageClass: csi-clone
      timeout: 30m
      cloneBindTimeout: 5m
  cache:
    pvcName: myapp-cache
  repo:
    endpoint: ssh://borg@host/repo
    passphrase: secret
    sshKey: "-----BEGIN KEY-----"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got, want := cfg.Snapshot[0].ArchivePrefix, "myapp-data"; got != want {
		t.Errorf("snapshot archive prefix = %q, want %q", got, want)
	}
	if got, want := cfg.Backup.Specs[0].ArchivePrefix, "myapp-data"; got != want {
		t.Errorf("backup archive prefix = %q, want %q", got, want)
	}
	if cfg.Backup.Privileged == nil || !*cfg.Backup.Privileged {
		t.Errorf("privileged should default to true")
	}
	if got, want := cfg.Backup.Specs[0].Timeout.Value().String(), "30m0s"; got != want {
		t.Errorf("timeout = %s, want %s", got, want)
	}
}

func TestValidateSnapshotRejectsDuplicatePVC(t *testing.T) {
	cfg := &AppConfig{
		ReleaseName: "r",
		Namespace:   "ns",
		Snapshot: []SnapshotSpec{
			{PVC: "data", SnapshotClass: "csi-snap"},
			{PVC: "data", SnapshotClass: "csi-snap"},
		},
	}
	if err := cfg.ValidateSnapshot(); err == nil {
		t.Fatal("expected error for duplicate pvc in snapshot specs")
	}
}

func TestValidateBackupRequiresRepoCredentials(t *testing.T) {
	cfg := &AppConfig{
		ReleaseName: "r",
		Namespace:   "ns",
	}
	cfg.Backup.Cache.PVCName = "cache"
	cfg.Backup.Specs = []BackupSpec{{Name: "data", PVC: "data", CloneStorageClass: "csi-clone"}}
	if err := cfg.ValidateBackup(); err == nil {
		t.Fatal("expected error for missing repo credentials")
	}
	cfg.Backup.Repo = RepoSpec{Endpoint: "ssh://x", Passphrase: "p", SSHKey: "k"}
	if err := cfg.ValidateBackup(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateSnapshotRejectsBadSchedule(t *testing.T) {
	cfg := &AppConfig{
		ReleaseName: "r",
		Namespace:   "ns",
		Schedule:    "not a cron expression",
		Snapshot:    []SnapshotSpec{{PVC: "data", SnapshotClass: "csi-snap"}},
	}
	if err := cfg.ValidateSnapshot(); err == nil {
		t.Fatal("expected error for invalid schedule expression")
	}
	cfg.Schedule = "0 3 * * *"
	if err := cfg.ValidateSnapshot(); err != nil {
		t.Fatalf("unexpected error for valid schedule: %v", err)
	}
}

func TestValidateBackupRejectsDuplicateSpecName(t *testing.T) {
	cfg := &AppConfig{ReleaseName: "r", Namespace: "ns"}
	cfg.Backup.Cache.PVCName = "cache"
	cfg.Backup.Repo = RepoSpec{Endpoint: "ssh://x", Passphrase: "p", SSHKey: "k"}
	cfg.Backup.Specs = []BackupSpec{
		{Name: "data", PVC: "a", CloneStorageClass: "csi-clone"},
		{Name: "data", PVC: "b", CloneStorageClass: "csi-clone"},
	}
	if err := cfg.ValidateBackup(); err == nil {
		t.Fatal("expected error for duplicate backup spec name")
	}
}

func TestValidateBackupRejectsDuplicatePVC(t *testing.T) {
	cfg := &AppConfig{ReleaseName: "r", Namespace: "ns"}
	cfg.Backup.Cache.PVCName = "cache"
	cfg.Backup.Repo = RepoSpec{Endpoint: "ssh://x", Passphrase: "p", SSHKey: "k"}
	cfg.Backup.Specs = []BackupSpec{
		{Name: "data-a", PVC: "data", CloneStorageClass: "csi-clone"},
		{Name: "data-b", PVC: "data", CloneStorageClass: "csi-clone"},
	}
	if err := cfg.ValidateBackup(); err == nil {
		t.Fatal("expected error for duplicate pvc in backup specs")
	}
}
