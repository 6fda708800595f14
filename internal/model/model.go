// Package model holds the transient, controller-internal record types
// that are not Kubernetes API types and not persisted configuration:
// SnapshotRef, CloneRequest, RunnerPod, and the naming conventions that
// tie them together.
package model

import (
	"fmt"
	"time"
)

// Phase is the lifecycle state of a transient provisioning record.
type Phase string

const (
	PhaseRequested Phase = "requested"
	PhaseBound     Phase = "bound"
	PhaseReady     Phase = "ready"
	PhaseFailed    Phase = "failed"
)

// SnapshotRef is the controller's view of a VolumeSnapshot it created or
// discovered.
type SnapshotRef struct {
	Name              string
	Namespace         string
	SourcePVC         string
	CreationTimestamp time.Time
	ReadyToUse        bool
	RestoreSize       *int64
}

// SnapshotName encodes the source PVC and a UTC timestamp
// ("{pvc}-YYYY-MM-DD-HH-MM-SS").
func SnapshotName(pvc string, at time.Time) string {
	return fmt.Sprintf("%s-%s", pvc, at.UTC().Format("2006-01-02-15-04-05"))
}

// CloneRequest is a transient record of one in-flight clone PVC
// provisioning attempt.
type CloneRequest struct {
	BackupName   string
	Snapshot     SnapshotRef
	ClonePVCName string
	Phase        Phase
	LastError    error
}

// ClonePVCName builds "{releaseName}-clone-{backupName}-{epochMs}".
func ClonePVCName(releaseName, backupName string, at time.Time) string {
	return fmt.Sprintf("%s-clone-%s-%d", releaseName, backupName, at.UnixMilli())
}

// RunnerPod is a transient record of one spawned backup-runner pod and its
// paired ephemeral config secret.
type RunnerPod struct {
	Name             string
	Namespace        string
	ConfigSecretName string
	StartedAt        time.Time
	Phase            string
}

// RunnerPodName builds "{releaseName}-backup-runner-{backupName}-{ts}".
func RunnerPodName(releaseName, backupName string, at time.Time) string {
	return fmt.Sprintf("%s-backup-runner-%s-%s", releaseName, backupName, at.UTC().Format("2006-01-02-15-04-05"))
}

// RunnerSecretName derives the paired ephemeral secret name from a runner
// pod name: same stem, "-config" suffix.
func RunnerSecretName(podName string) string {
	return podName + "-config"
}

// ArchiveName builds "{archivePrefix}-{YYYY-MM-DD-HH-MM-SS}", the name
// used inside the repository. archivePrefix defaults to
// "{appName}-{backupName}" at config-load time (config.applyDefaults), so
// this function only ever appends the timestamp.
func ArchiveName(archivePrefix string, at time.Time) string {
	return fmt.Sprintf("%s-%s", archivePrefix, at.UTC().Format("2006-01-02-15-04-05"))
}

// GlobArchivesPattern builds the --glob-archives argument that scopes
// retention pruning to one application's archives within a shared
// repository.
func GlobArchivesPattern(archivePrefix string) string {
	return archivePrefix + "-*"
}
