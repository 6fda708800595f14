package model

import "fmt"

// ProvisioningError reports a per-spec provisioning failure that does not
// abort the run: a snapshot or clone PVC that never reached ready within
// its deadline, or a clone whose provisioning the event stream reported
// as failed. Spec identifies the
// backup or snapshot spec by name; Resource is the cluster object that
// failed to become ready.
type ProvisioningError struct {
	Spec     string
	Resource string
	Err      error
}

func (e *ProvisioningError) Error() string {
	if e.Spec == "" {
		return fmt.Sprintf("provisioning %s: %v", e.Resource, e.Err)
	}
	return fmt.Sprintf("provisioning %s for %s: %v", e.Resource, e.Spec, e.Err)
}

func (e *ProvisioningError) Unwrap() error {
	return e.Err
}
