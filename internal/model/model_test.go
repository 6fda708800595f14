package model

import (
	"testing"
	"time"
)

func TestSnapshotNameFormat(t *testing.T) {
	at := time.Date(2026, 8, 3, 7, 30, 0, 0, time.UTC)
	if got, want := SnapshotName("app-data", at), "app-data-2026-08-03-07-30-00"; got != want {
		t.Errorf("SnapshotName = %q, want %q", got, want)
	}
}

func TestClonePVCNameFormat(t *testing.T) {
	at := time.UnixMilli(1_700_000_000_123)
	got := ClonePVCName("myapp", "data", at)
	want := "myapp-clone-data-1700000000123"
	if got != want {
		t.Errorf("ClonePVCName = %q, want %q", got, want)
	}
	if len(got) > 63 {
		t.Errorf("clone pvc name %q exceeds 63 chars (%d)", got, len(got))
	}
}

func TestArchiveNameFormat(t *testing.T) {
	at := time.Date(2026, 8, 3, 0, 1, 2, 0, time.UTC)
	got := ArchiveName("myapp-data", at)
	want := "myapp-data-2026-08-03-00-01-02"
	if got != want {
		t.Errorf("ArchiveName = %q, want %q", got, want)
	}
}

func TestGlobArchivesPattern(t *testing.T) {
	if got, want := GlobArchivesPattern("myapp-data"), "myapp-data-*"; got != want {
		t.Errorf("GlobArchivesPattern = %q, want %q", got, want)
	}
}

func TestRunnerSecretNameDerivesFromPodName(t *testing.T) {
	pod := RunnerPodName("myapp", "data", time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC))
	secret := RunnerSecretName(pod)
	if secret != pod+"-config" {
		t.Errorf("RunnerSecretName = %q, want %q", secret, pod+"-config")
	}
}
