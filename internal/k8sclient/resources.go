package k8s

import (
	"context"
	"fmt"
	"sort"

	snapshotv1 "github.com/kubernetes-csi/external-snapshotter/client/v8/apis/volumesnapshot/v1"
	corev1 "k8s.io/api/core/v1"
	storagev1 "k8s.io/api/storage/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// CreateSnapshot issues a VolumeSnapshot create. A 409 (already exists) is
// treated as success.
func CreateSnapshot(ctx context.Context, namespace string, snap *snapshotv1.VolumeSnapshot) (*snapshotv1.VolumeSnapshot, error) {
	c := GetClients()
	created, err := c.Snapshots.SnapshotV1().VolumeSnapshots(namespace).Create(ctx, snap, metav1.CreateOptions{})
	if apierrors.IsAlreadyExists(err) {
		return c.Snapshots.SnapshotV1().VolumeSnapshots(namespace).Get(ctx, snap.Name, metav1.GetOptions{})
	}
	if err != nil {
		return nil, fmt.Errorf("create volumesnapshot %s/%s: %w", namespace, snap.Name, err)
	}
	return created, nil
}

// GetSnapshot fetches a single VolumeSnapshot by name.
func GetSnapshot(ctx context.Context, namespace, name string) (*snapshotv1.VolumeSnapshot, error) {
	c := GetClients()
	return c.Snapshots.SnapshotV1().VolumeSnapshots(namespace).Get(ctx, name, metav1.GetOptions{})
}

// ListSnapshots lists VolumeSnapshots in a namespace.
func ListSnapshots(ctx context.Context, namespace string, opts metav1.ListOptions) ([]snapshotv1.VolumeSnapshot, error) {
	c := GetClients()
	list, err := c.Snapshots.SnapshotV1().VolumeSnapshots(namespace).List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("list volumesnapshots in %s: %w", namespace, err)
	}
	return list.Items, nil
}

// DeleteSnapshot deletes a VolumeSnapshot. A 404 is success.
func DeleteSnapshot(ctx context.Context, namespace, name string) error {
	c := GetClients()
	err := c.Snapshots.SnapshotV1().VolumeSnapshots(namespace).Delete(ctx, name, metav1.DeleteOptions{})
	if apierrors.IsNotFound(err) {
		return nil
	}
	return err
}

// NewestReadySnapshot returns the most recently created VolumeSnapshot
// among those with readyToUse=true, or nil if none are ready.
func NewestReadySnapshot(snaps []snapshotv1.VolumeSnapshot) *snapshotv1.VolumeSnapshot {
	var ready []snapshotv1.VolumeSnapshot
	for _, s := range snaps {
		if s.Status != nil && s.Status.ReadyToUse != nil && *s.Status.ReadyToUse {
			ready = append(ready, s)
		}
	}
	if len(ready) == 0 {
		return nil
	}
	sort.Slice(ready, func(i, j int) bool {
		return ready[i].CreationTimestamp.After(ready[j].CreationTimestamp.Time)
	})
	return &ready[0]
}

// CreateClonePVC creates a PersistentVolumeClaim. A 409 is treated as success.
func CreateClonePVC(ctx context.Context, namespace string, pvc *corev1.PersistentVolumeClaim) (*corev1.PersistentVolumeClaim, error) {
	c := GetClients()
	created, err := c.Clientset.CoreV1().PersistentVolumeClaims(namespace).Create(ctx, pvc, metav1.CreateOptions{})
	if apierrors.IsAlreadyExists(err) {
		return c.Clientset.CoreV1().PersistentVolumeClaims(namespace).Get(ctx, pvc.Name, metav1.GetOptions{})
	}
	if err != nil {
		return nil, fmt.Errorf("create pvc %s/%s: %w", namespace, pvc.Name, err)
	}
	return created, nil
}

// GetPVC fetches a PersistentVolumeClaim by name.
func GetPVC(ctx context.Context, namespace, name string) (*corev1.PersistentVolumeClaim, error) {
	c := GetClients()
	return c.Clientset.CoreV1().PersistentVolumeClaims(namespace).Get(ctx, name, metav1.GetOptions{})
}

// DeletePVC deletes a PersistentVolumeClaim. A 404 is success.
func DeletePVC(ctx context.Context, namespace, name string) error {
	c := GetClients()
	err := c.Clientset.CoreV1().PersistentVolumeClaims(namespace).Delete(ctx, name, metav1.DeleteOptions{})
	if apierrors.IsNotFound(err) {
		return nil
	}
	return err
}

// CreatePod creates a Pod. A 409 is treated as success.
func CreatePod(ctx context.Context, namespace string, pod *corev1.Pod) (*corev1.Pod, error) {
	c := GetClients()
	created, err := c.Clientset.CoreV1().Pods(namespace).Create(ctx, pod, metav1.CreateOptions{})
	if apierrors.IsAlreadyExists(err) {
		return c.Clientset.CoreV1().Pods(namespace).Get(ctx, pod.Name, metav1.GetOptions{})
	}
	if err != nil {
		return nil, fmt.Errorf("create pod %s/%s: %w", namespace, pod.Name, err)
	}
	return created, nil
}

// GetPod fetches a Pod by name.
func GetPod(ctx context.Context, namespace, name string) (*corev1.Pod, error) {
	c := GetClients()
	return c.Clientset.CoreV1().Pods(namespace).Get(ctx, name, metav1.GetOptions{})
}

// DeletePod deletes a Pod. A 404 is success.
func DeletePod(ctx context.Context, namespace, name string) error {
	c := GetClients()
	err := c.Clientset.CoreV1().Pods(namespace).Delete(ctx, name, metav1.DeleteOptions{})
	if apierrors.IsNotFound(err) {
		return nil
	}
	return err
}

// CreateSecret creates a Secret. A 409 is treated as success.
func CreateSecret(ctx context.Context, namespace string, secret *corev1.Secret) (*corev1.Secret, error) {
	c := GetClients()
	created, err := c.Clientset.CoreV1().Secrets(namespace).Create(ctx, secret, metav1.CreateOptions{})
	if apierrors.IsAlreadyExists(err) {
		return c.Clientset.CoreV1().Secrets(namespace).Get(ctx, secret.Name, metav1.GetOptions{})
	}
	if err != nil {
		return nil, fmt.Errorf("create secret %s/%s: %w", namespace, secret.Name, err)
	}
	return created, nil
}

// DeleteSecret deletes a Secret. A 404 is success.
func DeleteSecret(ctx context.Context, namespace, name string) error {
	c := GetClients()
	err := c.Clientset.CoreV1().Secrets(namespace).Delete(ctx, name, metav1.DeleteOptions{})
	if apierrors.IsNotFound(err) {
		return nil
	}
	return err
}

// GetStorageClass fetches a StorageClass by name (cluster-scoped).
func GetStorageClass(ctx context.Context, name string) (*storagev1.StorageClass, error) {
	c := GetClients()
	return c.Clientset.StorageV1().StorageClasses().Get(ctx, name, metav1.GetOptions{})
}

// IsWaitForFirstConsumer reports whether a storage class defers binding
// until a consumer pod is scheduled.
func IsWaitForFirstConsumer(sc *storagev1.StorageClass) bool {
	return sc.VolumeBindingMode != nil && *sc.VolumeBindingMode == storagev1.VolumeBindingWaitForFirstConsumer
}

// ListPVCEvents lists events for a PVC, newest first, used both for the
// WaitForFirstConsumer signal and the failure-keyword scan.
func ListPVCEvents(ctx context.Context, namespace, pvcName string) ([]corev1.Event, error) {
	c := GetClients()
	sel := fmt.Sprintf("involvedObject.kind=PersistentVolumeClaim,involvedObject.name=%s", pvcName)
	list, err := c.Clientset.CoreV1().Events(namespace).List(ctx, metav1.ListOptions{FieldSelector: sel})
	if err != nil {
		return nil, fmt.Errorf("list events for pvc %s/%s: %w", namespace, pvcName, err)
	}
	events := list.Items
	sort.Slice(events, func(i, j int) bool {
		return events[i].LastTimestamp.After(events[j].LastTimestamp.Time)
	})
	return events, nil
}
