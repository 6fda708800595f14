// Package hooks executes the pre/post exec hooks attached to a snapshot
// or backup spec over the k8sclient façade. A hook is a command run inside
// an already-running pod; a non-zero exit fails the hook.
package hooks

import (
	"context"
	"sync"

	"github.com/frederikb96/kube-borg-backup/internal/config"
	k8s "github.com/frederikb96/kube-borg-backup/internal/k8sclient"
)

// Run executes hooks in the namespace, honoring each hook's Parallel flag:
// a run is partitioned into runs of consecutive hooks sharing the same
// Parallel value, preserving the caller's ordering between groups while
// letting adjacent parallel hooks overlap.
func Run(ctx context.Context, namespace string, hooks []config.Hook) error {
	i := 0
	for i < len(hooks) {
		j := i + 1
		for j < len(hooks) && hooks[j].Parallel == hooks[i].Parallel {
			j++
		}
		group := hooks[i:j]
		var err error
		if hooks[i].Parallel {
			err = runParallel(ctx, namespace, group)
		} else {
			err = runSequential(ctx, namespace, group)
		}
		if err != nil {
			return err
		}
		i = j
	}
	return nil
}

func runSequential(ctx context.Context, namespace string, hooks []config.Hook) error {
	for _, h := range hooks {
		if err := runOne(ctx, namespace, h); err != nil {
			return err
		}
	}
	return nil
}

func runParallel(ctx context.Context, namespace string, hooks []config.Hook) error {
	errs := make([]error, len(hooks))
	var wg sync.WaitGroup
	wg.Add(len(hooks))
	for idx, h := range hooks {
		go func(idx int, h config.Hook) {
			defer wg.Done()
			errs[idx] = runOne(ctx, namespace, h)
		}(idx, h)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// runOne execs one hook's command in its target pod and fails on any
// non-zero exit code. With no container named, the pod's first container
// is used.
func runOne(ctx context.Context, namespace string, h config.Hook) error {
	container := h.Container
	if container == "" {
		pod, err := k8s.GetPod(ctx, namespace, h.Pod)
		if err != nil {
			return &HookError{Pod: h.Pod, Command: h.Command, Err: err}
		}
		if len(pod.Spec.Containers) > 0 {
			container = pod.Spec.Containers[0].Name
		}
	}
	res, err := k8s.ExecCommand(ctx, h.Pod, namespace, container, h.Command)
	if err != nil {
		herr := &HookError{
			Pod:       h.Pod,
			Container: container,
			Command:   h.Command,
			Err:       err,
		}
		// res is nil when the exec stream could not be opened at all
		// (clients unavailable, executor could not be built).
		if res != nil {
			herr.ExitCode = res.ExitCode
			herr.Stdout = res.Stdout
			herr.Stderr = res.Stderr
		}
		return herr
	}
	return nil
}
