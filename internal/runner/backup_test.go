package runner

import (
	"testing"
	"time"
)

func TestArchiveNameFormat(t *testing.T) {
	at := time.Date(2026, 8, 3, 14, 5, 9, 0, time.UTC)
	got := ArchiveName("myapp-data", at)
	want := "myapp-data-2026-08-03-14-05-09"
	if got != want {
		t.Errorf("ArchiveName = %q, want %q", got, want)
	}
}

func TestConfigValidateBackupRequiresFields(t *testing.T) {
	cfg := &Config{BorgRepo: "ssh://x", BorgPassphrase: "p", SSHPrivateKey: "k"}
	if err := cfg.ValidateBackup(); err == nil {
		t.Fatal("expected error for missing prefix/backupDir")
	}
	cfg.Prefix = "myapp-data"
	cfg.BackupDir = "/data"
	if err := cfg.ValidateBackup(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestConfigValidateBackupAllowsZeroLockWait(t *testing.T) {
	// LockWait 0 means "borg --lock-wait 0", the documented default, not a
	// missing field.
	cfg := &Config{
		BorgRepo: "ssh://x", BorgPassphrase: "p", SSHPrivateKey: "k",
		Prefix: "myapp-data", BackupDir: "/data", LockWait: 0,
	}
	if err := cfg.ValidateBackup(); err != nil {
		t.Fatalf("unexpected error for lockWait=0: %v", err)
	}
}

func TestConfigValidateRestoreRequiresArchiveName(t *testing.T) {
	cfg := &Config{}
	if err := cfg.ValidateRestore(); err == nil {
		t.Fatal("expected error for missing archiveName")
	}
	cfg.ArchiveName = "myapp-data-2026-08-03-00-00-00"
	if err := cfg.ValidateRestore(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
