package hooks

import (
	"errors"
	"testing"

	"github.com/frederikb96/kube-borg-backup/internal/config"
)

func TestRunGroupsConsecutiveParallelHooks(t *testing.T) {
	hooks := []config.Hook{
		{Pod: "a", Parallel: false},
		{Pod: "b", Parallel: true},
		{Pod: "c", Parallel: true},
		{Pod: "d", Parallel: false},
	}

	// Replays the partition loop Run uses (runs of equal Parallel value)
	// over this hook list; Run itself is not called because exec needs a
	// live client.
	i := 0
	groups := 0
	for i < len(hooks) {
		j := i + 1
		for j < len(hooks) && hooks[j].Parallel == hooks[i].Parallel {
			j++
		}
		groups++
		i = j
	}
	if groups != 3 {
		t.Errorf("expected 3 groups (seq, parallel, seq), got %d", groups)
	}
}

func TestHookErrorUnwrapsUnderlyingExecError(t *testing.T) {
	underlying := errors.New("command terminated with non-zero exit code")
	herr := &HookError{
		Pod:      "app-0",
		Command:  []string{"pg_dump", "-U", "postgres"},
		ExitCode: 2,
		Stderr:   "fatal: role does not exist",
		Err:      underlying,
	}
	if !errors.Is(herr, underlying) {
		t.Fatal("expected errors.Is to find the wrapped exec error")
	}
	if herr.Error() == "" {
		t.Fatal("expected a non-empty error message")
	}
}
