package runner

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/frederikb96/kube-borg-backup/common"
)

// Runner executes one archive create (or restore/list) against a single
// borg repository inside the runner pod, and owns the child process for
// signal-driven checkpointing.
type Runner struct {
	Client *Client
	Cfg    *Config

	terminating atomic.Bool

	mu        sync.Mutex
	child     *exec.Cmd
	childDone chan struct{}
}

// setChild records the running child process and returns a channel the
// owner closes once its Wait has returned. HandleTermination selects on
// that channel instead of calling Wait itself; Wait may only be called
// once per process.
func (r *Runner) setChild(cmd *exec.Cmd) chan struct{} {
	done := make(chan struct{})
	r.mu.Lock()
	r.child = cmd
	r.childDone = done
	r.mu.Unlock()
	return done
}

func (r *Runner) clearChild(done chan struct{}) {
	close(done)
	r.mu.Lock()
	r.child = nil
	r.childDone = nil
	r.mu.Unlock()
}

// New prepares a Runner from a decoded config: writes the SSH key and
// builds the borg client pointed at the configured repository.
func New(cfg *Config) (*Runner, error) {
	common.RegisterSecret(cfg.BorgPassphrase)
	common.RegisterSecret(cfg.SSHPrivateKey)
	keyFile, err := SetupSSHKey(cfg.SSHPrivateKey)
	if err != nil {
		return nil, err
	}
	cacheDir := cfg.CacheDir
	if cfg.CacheTheCache {
		cacheDir = localCacheDir
	}
	return &Runner{
		Client: &Client{
			Repo:       cfg.BorgRepo,
			Passphrase: cfg.BorgPassphrase,
			SSHKeyFile: keyFile,
			CacheDir:   cacheDir,
		},
		Cfg: cfg,
	}, nil
}

// ArchiveName builds "{prefix}-{UTC timestamp}" using the given moment.
func ArchiveName(prefix string, at time.Time) string {
	return fmt.Sprintf("%s-%s", prefix, at.UTC().Format("2006-01-02-15-04-05"))
}

// RunBackup performs the full backup sequence: optional cache pull,
// lock pre-flight, archive create (with one init-and-retry on the
// "not a valid repository" exit-2 case), and retention prune. It returns
// the created archive's name on success.
func (r *Runner) RunBackup(ctx context.Context) (string, error) {
	if err := r.Cfg.ValidateBackup(); err != nil {
		return "", err
	}

	if r.Cfg.CacheTheCache {
		if err := PullCache(ctx, r.Cfg.CachePVCPath); err != nil {
			return "", fmt.Errorf("cache-the-cache pull: %w", err)
		}
	}

	r.Client.WithLockProbe(ctx)

	archive := ArchiveName(r.Cfg.Prefix, time.Now())
	target := fmt.Sprintf("%s::%s", r.Cfg.BorgRepo, archive)

	slog.Info("starting backup", "archive", archive, "dir", r.Cfg.BackupDir)

	exitCode, err := r.runCreate(ctx, target)
	if err != nil {
		return "", err
	}
	if r.terminating.Load() {
		return "", fmt.Errorf("backup interrupted by termination signal")
	}
	if exitCode == 2 {
		slog.Info("borg create failed with exit 2, checking repository status")
		if err := r.Client.EnsureInitialized(ctx); err != nil {
			return "", err
		}
		slog.Info("retrying backup after repository check")
		exitCode, err = r.runCreate(ctx, target)
		if err != nil {
			return "", err
		}
	}
	if exitCode != 0 {
		return "", fmt.Errorf("borg create exited with code %d", exitCode)
	}
	slog.Info("backup complete", "archive", archive)

	if err := r.prune(ctx); err != nil {
		return archive, err
	}

	if r.Cfg.CacheTheCache {
		if err := PushCache(ctx, r.Cfg.CachePVCPath, false); err != nil {
			return archive, fmt.Errorf("cache-the-cache push: %w", err)
		}
	}

	return archive, nil
}

// runCreate starts "borg create" as a tracked child process (so the signal
// handler can reach it), streams its own stdout/stderr straight through,
// runs the heartbeat alongside it, and returns its exit code.
func (r *Runner) runCreate(ctx context.Context, target string) (int, error) {
	args := []string{"create", "--lock-wait", strconv.Itoa(r.Cfg.LockWait), "--list", "--filter=AME"}
	if len(r.Cfg.BorgFlags) > 0 {
		args = append(args, r.Cfg.BorgFlags...)
	} else {
		args = append(args, "--stats")
	}
	args = append(args, "--files-cache", "mtime,size", target, r.Cfg.BackupDir)

	if r.terminating.Load() {
		return -1, fmt.Errorf("termination requested, not starting borg create")
	}

	cmd := exec.CommandContext(ctx, r.Client.binary(), args...)
	cmd.Env = r.Client.buildEnv()
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return -1, fmt.Errorf("start borg create: %w", err)
	}

	done := r.setChild(cmd)

	slog.Info("borg create started", "pid", cmd.Process.Pid)

	stop := make(chan struct{})
	go Heartbeat(cmd.Process.Pid, stop)

	err := cmd.Wait()
	close(stop)
	r.clearChild(done)

	if err == nil {
		return 0, nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode(), nil
	}
	return -1, fmt.Errorf("borg create: %w", err)
}

// prune removes archives outside the configured retention window, scoped
// to this backup's archive prefix.
func (r *Runner) prune(ctx context.Context) error {
	ret := r.Cfg.Retention
	if ret.Hourly == 0 && ret.Daily == 0 && ret.Weekly == 0 && ret.Monthly == 0 {
		slog.Info("no retention policy configured, skipping prune")
		return nil
	}
	args := []string{"prune", "--lock-wait", strconv.Itoa(r.Cfg.LockWait), "-v", "--list"}
	if ret.Hourly > 0 {
		args = append(args, "--keep-hourly", strconv.Itoa(ret.Hourly))
	}
	if ret.Daily > 0 {
		args = append(args, "--keep-daily", strconv.Itoa(ret.Daily))
	}
	if ret.Weekly > 0 {
		args = append(args, "--keep-weekly", strconv.Itoa(ret.Weekly))
	}
	if ret.Monthly > 0 {
		args = append(args, "--keep-monthly", strconv.Itoa(ret.Monthly))
	}
	args = append(args, "--glob-archives", r.Cfg.Prefix+"-*", r.Cfg.BorgRepo)

	if _, err := r.Client.Run(ctx, args...); err != nil {
		return fmt.Errorf("borg prune: %w", err)
	}
	slog.Info("prune complete")
	return nil
}

// HandleTermination forwards SIGINT to the running borg child so it
// writes a checkpoint, waits up to 10s, then SIGKILLs and clears the
// repository lock. The runner is PID 1 in its pod, so this is the only
// signal handling the borg child ever sees.
func (r *Runner) HandleTermination(ctx context.Context) {
	r.terminating.Store(true)

	r.mu.Lock()
	cmd := r.child
	done := r.childDone
	r.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return
	}

	slog.Info("received termination signal, checkpointing borg", "pid", cmd.Process.Pid)
	if err := cmd.Process.Signal(os.Interrupt); err != nil {
		slog.Warn("failed to signal borg for checkpoint", "err", err)
	}

	select {
	case <-done:
		slog.Info("borg checkpointed and exited gracefully")
		return
	case <-time.After(10 * time.Second):
	}

	slog.Info("checkpoint not complete after 10s, forcing termination")
	if err := cmd.Process.Kill(); err != nil {
		slog.Warn("failed to kill borg", "err", err)
	}
	<-done

	breakCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := r.Client.BreakLock(breakCtx); err != nil {
		slog.Warn("failed to break stale lock", "err", err)
	}
}

// CacheTheCacheTeardown pushes the local cache back verbosely when the
// process is terminating mid-operation.
func (r *Runner) CacheTheCacheTeardown(ctx context.Context) error {
	if !r.Cfg.CacheTheCache {
		return nil
	}
	return PushCache(ctx, r.Cfg.CachePVCPath, true)
}
