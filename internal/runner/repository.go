package runner

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// EnsureInitialized runs "borg info" against the repository and, if it
// reports the repository does not exist yet (exit 2, "is not a valid
// repository"), initializes it with repokey-blake2 encryption. A lock
// contention error (exit 2, "Failed to create/acquire the lock") is
// treated as transient: the repository is assumed to already exist and
// the caller proceeds, letting the real operation wait on the lock.
func (c *Client) EnsureInitialized(ctx context.Context) error {
	_, err := c.Run(ctx, "info", c.Repo)
	if err == nil {
		slog.Info("borg repository ready")
		return nil
	}

	exitErr, ok := err.(*ExitError)
	if !ok || exitErr.ExitCode() != 2 {
		return fmt.Errorf("borg info: %w", err)
	}

	output := exitErr.Output()
	switch {
	case strings.Contains(output, "is not a valid repository"):
		slog.Info("borg repository not initialized, initializing", "repo", c.Repo)
		if _, err := c.Run(ctx, "init", "--encryption", "repokey-blake2", c.Repo); err != nil {
			return fmt.Errorf("borg init: %w", err)
		}
		return nil
	case strings.Contains(output, "Failed to create/acquire the lock"):
		slog.Info("borg repository locked, will wait during operation")
		return nil
	default:
		return fmt.Errorf("borg info failed unexpectedly: %s", output)
	}
}

// WithLockProbe runs "borg with-lock --lock-wait 0" as a non-destructive
// pre-flight probe of the repository's lock state, logging the observed
// state without aborting the caller regardless of outcome.
func (c *Client) WithLockProbe(ctx context.Context) {
	_, err := c.Run(ctx, "with-lock", "--lock-wait", "0", c.Repo, "true")
	switch {
	case err == nil:
		slog.Info("borg repository lock probe", "state", "unlocked")
	default:
		if exitErr, ok := err.(*ExitError); ok && strings.Contains(exitErr.Output(), "lock") {
			slog.Info("borg repository lock probe", "state", "locked")
			return
		}
		slog.Warn("borg repository lock probe failed", "state", "error", "err", err)
	}
}

// BreakLock forcibly clears a stale repository lock, used after a
// SIGKILL of the borg child during termination.
func (c *Client) BreakLock(ctx context.Context) error {
	_, err := c.Run(ctx, "break-lock", c.Repo)
	return err
}
