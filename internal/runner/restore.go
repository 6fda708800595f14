package runner

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"
)

const defaultMountPoint = "/tmp/borg-mount"

// Restore mounts the configured archive via borg's FUSE mount and rsyncs
// its contents into destDir. Restore is a primitive only: nothing in this
// repository schedules or sequences restores.
func (r *Runner) Restore(ctx context.Context, destDir string) error {
	if err := r.Cfg.ValidateRestore(); err != nil {
		return err
	}
	if err := os.MkdirAll(defaultMountPoint, 0o755); err != nil {
		return fmt.Errorf("create mount point: %w", err)
	}

	archive := fmt.Sprintf("%s::%s", r.Client.Repo, r.Cfg.ArchiveName)
	mountCmd := exec.CommandContext(ctx, r.Client.binary(), "mount", "-f", archive, defaultMountPoint)
	mountCmd.Env = r.Client.buildEnv()
	mountCmd.Stdout = os.Stdout
	mountCmd.Stderr = os.Stderr

	if err := mountCmd.Start(); err != nil {
		return fmt.Errorf("start borg mount: %w", err)
	}
	done := r.setChild(mountCmd)
	slog.Info("fuse mount started", "pid", mountCmd.Process.Pid, "archive", r.Cfg.ArchiveName)

	mountDone := make(chan error, 1)
	go func() {
		mountDone <- mountCmd.Wait()
		r.clearChild(done)
	}()

	if err := waitForMountReady(ctx, defaultMountPoint, 30*time.Second); err != nil {
		_ = mountCmd.Process.Kill()
		<-mountDone
		return err
	}

	rsyncErr := runRsync(ctx, defaultMountPoint+"/", destDir+"/")

	_ = exec.CommandContext(ctx, "fusermount", "-u", defaultMountPoint).Run()
	<-mountDone

	if rsyncErr != nil {
		return fmt.Errorf("restore rsync: %w", rsyncErr)
	}
	return nil
}

func waitForMountReady(ctx context.Context, mountPoint string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		entries, err := os.ReadDir(mountPoint)
		if err == nil && len(entries) > 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
	return fmt.Errorf("fuse mount at %s not ready after %s", mountPoint, timeout)
}

func runRsync(ctx context.Context, src, dst string) error {
	cmd := exec.CommandContext(ctx, "rsync", "-a", "--stats", src, dst)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
