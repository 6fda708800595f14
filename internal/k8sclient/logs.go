package k8s

import (
	"context"
	"io"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/watch"
)

// FollowLogs opens a follow-mode log stream for one container of a pod.
// The caller is responsible for closing the returned ReadCloser.
func FollowLogs(ctx context.Context, namespace, pod, container string) (io.ReadCloser, error) {
	c := GetClients()
	req := c.Clientset.CoreV1().Pods(namespace).GetLogs(pod, &corev1.PodLogOptions{
		Container: container,
		Follow:    true,
	})
	return req.Stream(ctx)
}

// ReadLogsOnce reads the pod's current log buffer without following,
// used as a fallback when a follow-mode open is answered with 400.
func ReadLogsOnce(ctx context.Context, namespace, pod, container string) (io.ReadCloser, error) {
	c := GetClients()
	req := c.Clientset.CoreV1().Pods(namespace).GetLogs(pod, &corev1.PodLogOptions{
		Container: container,
		Follow:    false,
	})
	return req.Stream(ctx)
}

// WatchEvents opens a field-selected watch on events involving the named
// pod, optionally resuming from a known resourceVersion.
func WatchEvents(ctx context.Context, namespace, podName, resourceVersion string) (watch.Interface, error) {
	c := GetClients()
	opts := metav1.ListOptions{
		FieldSelector:   "involvedObject.kind=Pod,involvedObject.name=" + podName,
		ResourceVersion: resourceVersion,
	}
	return c.Clientset.CoreV1().Events(namespace).Watch(ctx, opts)
}

// ListEventsWithVersion lists events involving the named pod and returns
// both the items and the list's resourceVersion. A watch must resume from
// the list envelope's resourceVersion, not an individual event's, or the
// apiserver replays the whole event buffer on reconnect.
func ListEventsWithVersion(ctx context.Context, namespace, podName string) ([]corev1.Event, string, error) {
	c := GetClients()
	opts := metav1.ListOptions{
		FieldSelector: "involvedObject.kind=Pod,involvedObject.name=" + podName,
	}
	list, err := c.Clientset.CoreV1().Events(namespace).List(ctx, opts)
	if err != nil {
		return nil, "", err
	}
	return list.Items, list.ResourceVersion, nil
}
