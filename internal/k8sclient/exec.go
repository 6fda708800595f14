package k8s

import (
	"bytes"
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/tools/remotecommand"
	clientexec "k8s.io/client-go/util/exec"
)

// ExecResult holds the output of a pod exec command.
type ExecResult struct {
	Stdout string
	Stderr string
	// ExitCode is the command's exit status, extracted from the
	// remotecommand stream's clientexec.CodeExitError. Zero for a
	// successful exec or when the stream failed before the command
	// itself could report a status.
	ExitCode int
}

// ExecCommand runs a command in a container via the Kubernetes exec API.
// No stdin is attached; stdout and stderr are captured and returned.
func ExecCommand(ctx context.Context, pod, namespace, container string, command []string) (*ExecResult, error) {
	c := GetClients()
	if c == nil {
		return nil, fmt.Errorf("kubernetes clients not initialized")
	}

	req := c.Clientset.CoreV1().RESTClient().Post().
		Resource("pods").
		Name(pod).
		Namespace(namespace).
		SubResource("exec").
		VersionedParams(&corev1.PodExecOptions{
			Container: container,
			Command:   command,
			Stdin:     false,
			Stdout:    true,
			Stderr:    true,
		}, scheme.ParameterCodec)

	exec, err := remotecommand.NewSPDYExecutor(c.RestConfig, "POST", req.URL())
	if err != nil {
		return nil, fmt.Errorf("failed to create executor: %w", err)
	}

	var stdout, stderr bytes.Buffer
	err = exec.StreamWithContext(ctx, remotecommand.StreamOptions{
		Stdout: &stdout,
		Stderr: &stderr,
	})
	if err != nil {
		exitCode := 0
		if codeErr, ok := err.(clientexec.CodeExitError); ok {
			exitCode = codeErr.ExitStatus()
		}
		return &ExecResult{
			Stdout:   stdout.String(),
			Stderr:   stderr.String(),
			ExitCode: exitCode,
		}, fmt.Errorf("exec failed: %w (stderr: %s)", err, stderr.String())
	}

	return &ExecResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}, nil
}
