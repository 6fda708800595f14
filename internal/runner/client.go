// Package runner implements the backup runner: a single-volume worker that
// writes one archive into a borg repository and, optionally, restores or
// lists archives from it. It is invoked inside the per-volume runner pod
// spawned by the backup controller.
package runner

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
)

// Client wraps the borg binary, injecting the repository location,
// passphrase, and SSH transport through borg's environment variables.
type Client struct {
	// Binary is the path to the borg binary (default: "borg").
	Binary string
	// Repo is the borg repository location (ssh://... or local path).
	Repo string
	// Passphrase is the repository encryption passphrase.
	Passphrase string
	// SSHKeyFile is the path to the private key borg's BORG_RSH uses.
	SSHKeyFile string
	// CacheDir overrides BORG_CACHE_DIR; empty uses borg's own default.
	CacheDir string
}

func (c *Client) binary() string {
	if c.Binary != "" {
		return c.Binary
	}
	return "borg"
}

// buildEnv returns borg-specific environment variables layered over the
// current process environment.
func (c *Client) buildEnv() []string {
	env := append([]string{}, os.Environ()...)
	env = append(env,
		"BORG_REPO="+c.Repo,
		"BORG_PASSPHRASE="+c.Passphrase,
		"BORG_RSH="+fmt.Sprintf("ssh -o IdentityFile=%s -o IdentitiesOnly=yes -o StrictHostKeyChecking=no", c.SSHKeyFile),
	)
	if c.CacheDir != "" {
		env = append(env, "BORG_CACHE_DIR="+c.CacheDir)
	}
	return env
}

// Run executes a borg subcommand with the client's repository environment
// and returns its captured stdout; non-zero exit is returned as *ExitError so
// callers can inspect the code.
func (c *Client) Run(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, c.binary(), args...)
	cmd.Env = c.buildEnv()

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return stdout.Bytes(), &ExitError{
			Args:   args,
			Err:    err,
			Stdout: stdout.String(),
			Stderr: stderr.String(),
		}
	}
	return stdout.Bytes(), nil
}

// ExitError wraps a failed borg invocation with its captured output so
// callers can pattern-match on stderr/stdout substrings (e.g. the
// "not a valid repository" init trigger).
type ExitError struct {
	Args   []string
	Err    error
	Stdout string
	Stderr string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("borg %s failed: %v\nstderr: %s", e.Args[0], e.Err, e.Stderr)
}

func (e *ExitError) Unwrap() error { return e.Err }

// ExitCode extracts the process exit code, or -1 if it could not be
// determined (signal death, exec failure before the child ran).
func (e *ExitError) ExitCode() int {
	var exitErr *exec.ExitError
	if ee, ok := e.Err.(*exec.ExitError); ok {
		exitErr = ee
		return exitErr.ExitCode()
	}
	return -1
}

// Output combines captured stdout and stderr, used for substring matching
// against borg's diagnostic text.
func (e *ExitError) Output() string {
	return e.Stderr + e.Stdout
}
