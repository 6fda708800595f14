// Package podmonitor streams a runner pod's logs and events concurrently
// until the pod reaches a terminal phase or the caller cancels.
package podmonitor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	k8s "github.com/frederikb96/kube-borg-backup/internal/k8sclient"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/watch"
)

const maxTrackedUIDs = 200

// Monitor runs the log and event streams for one pod.
type Monitor struct {
	Namespace string
	Pod       string
	Container string
	// Out receives formatted log/event lines. It has no default and must
	// be non-nil.
	Out io.Writer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Start launches the log and event streams. Call Wait to block until both
// exit, and Stop to cancel them early.
func Start(ctx context.Context, namespace, pod, container string, out io.Writer) *Monitor {
	mctx, cancel := context.WithCancel(ctx)
	m := &Monitor{
		Namespace: namespace,
		Pod:       pod,
		Container: container,
		Out:       out,
		ctx:       mctx,
		cancel:    cancel,
	}
	m.wg.Add(2)
	go func() { defer m.wg.Done(); m.streamLogs() }()
	go func() { defer m.wg.Done(); m.streamEvents() }()
	return m
}

// Stop cancels both streams.
func (m *Monitor) Stop() { m.cancel() }

// Wait blocks until both streams have exited.
func (m *Monitor) Wait() { m.wg.Wait() }

// streamLogs waits for the target container to report a started-at
// timestamp (or to have already terminated), then follows its logs for
// the pod's lifetime.
func (m *Monitor) streamLogs() {
	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		pod, err := k8s.GetPod(m.ctx, m.Namespace, m.Pod)
		if err != nil {
			time.Sleep(2 * time.Second)
			continue
		}

		started := false
		for _, cs := range pod.Status.ContainerStatuses {
			if m.Container != "" && cs.Name != m.Container {
				continue
			}
			if cs.State.Running != nil && !cs.State.Running.StartedAt.IsZero() {
				started = true
			}
			if cs.State.Terminated != nil {
				started = true
			}
		}
		if started {
			break
		}
		time.Sleep(2 * time.Second)
	}

	if m.ctx.Err() != nil {
		return
	}

	stream, err := k8s.FollowLogs(m.ctx, m.Namespace, m.Pod, m.Container)
	if err != nil {
		if apierrors.IsBadRequest(err) {
			// Pod likely completed before the follow could attach; fall back
			// to a single non-follow read.
			m.readLogsOnceFallback()
			return
		}
		slog.Warn("log stream ended", "pod", m.Pod, "err", err)
		return
	}
	defer stream.Close()

	scanner := bufio.NewScanner(stream)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		fmt.Fprintf(m.Out, "[%s] %s\n", m.Pod, scanner.Text())
	}
	if err := scanner.Err(); err != nil && m.ctx.Err() == nil {
		slog.Warn("log stream ended", "pod", m.Pod, "err", err)
	}
}

func (m *Monitor) readLogsOnceFallback() {
	stream, err := k8s.ReadLogsOnce(m.ctx, m.Namespace, m.Pod, m.Container)
	if err != nil {
		slog.Warn("could not retrieve logs", "pod", m.Pod, "err", err)
		return
	}
	defer stream.Close()
	scanner := bufio.NewScanner(stream)
	for scanner.Scan() {
		fmt.Fprintf(m.Out, "[%s] %s\n", m.Pod, scanner.Text())
	}
}

// streamEvents watches events for the pod, reconnecting on channel close
// (natural ~60s watch timeout) and on 410 Gone. Each (re)connect re-lists
// and resumes the watch from the list envelope's resourceVersion — never
// from an individual event's, which the apiserver answers by replaying its
// whole event buffer. The bounded UID set filters the duplicates the
// re-list itself introduces.
func (m *Monitor) streamEvents() {
	seen := newUIDSet(maxTrackedUIDs)

	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		events, resourceVersion, err := k8s.ListEventsWithVersion(m.ctx, m.Namespace, m.Pod)
		if err != nil {
			if m.ctx.Err() != nil {
				return
			}
			slog.Warn("event list failed", "pod", m.Pod, "err", err)
			time.Sleep(time.Second)
			continue
		}
		for i := range events {
			m.emitIfNew(&events[i], seen)
		}

		w, err := k8s.WatchEvents(m.ctx, m.Namespace, m.Pod, resourceVersion)
		if err != nil {
			if apierrors.IsGone(err) {
				// Envelope version already expired; the next iteration's
				// fresh list supplies a current one.
				time.Sleep(time.Second)
				continue
			}
			slog.Warn("event watch interrupted", "pod", m.Pod, "err", err)
			time.Sleep(time.Second)
			continue
		}

		m.drainWatch(w, seen)
		w.Stop()

		if m.ctx.Err() != nil {
			return
		}
		time.Sleep(time.Second)
	}
}

// drainWatch consumes events from an open watch until it closes (natural
// timeout), delivers a watch error, or the monitor is cancelled.
func (m *Monitor) drainWatch(w watch.Interface, seen *uidSet) {
	for {
		select {
		case <-m.ctx.Done():
			return
		case ev, ok := <-w.ResultChan():
			if !ok || ev.Type == watch.Error {
				return
			}
			if kev, ok := ev.Object.(*corev1.Event); ok {
				m.emitIfNew(kev, seen)
			}
		}
	}
}
