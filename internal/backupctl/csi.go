package backupctl

import (
	"context"
	"time"

	"github.com/frederikb96/kube-borg-backup/internal/config"
	k8s "github.com/frederikb96/kube-borg-backup/internal/k8sclient"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

const csiVolumeCRPollInterval = 2 * time.Second
const csiVolumeCRPollTimeout = 30 * time.Second

// pollCSIVolumeCR polls the CSI driver's volume CR (named after the
// PersistentVolume, the convention several CSI drivers follow) until it
// reports attached+healthy or the poll window elapses. Best-effort: a CR
// that never reaches that state does not fail the backup, since this is a
// readiness hint layered on top of the PVC-level wait, not a hard gate.
func pollCSIVolumeCR(ctx context.Context, cr config.CSIVolumeCR, pvName string) {
	c := k8s.GetClients()
	if c == nil || c.Dynamic == nil {
		return
	}
	gvr := k8s.CSIVolumeGVR(cr.Group, cr.Version, cr.Resource)
	deadline := time.Now().Add(csiVolumeCRPollTimeout)

	for time.Now().Before(deadline) {
		obj, err := c.Dynamic.Resource(gvr).Get(ctx, pvName, metav1.GetOptions{})
		if err == nil {
			attached := k8s.GetNestedBool(obj, "status", "attached")
			state := k8s.GetNestedString(obj, "status", "state")
			if attached && (state == "" || state == "healthy") {
				return
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(csiVolumeCRPollInterval):
		}
	}
}
