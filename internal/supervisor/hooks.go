package supervisor

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/nolan-k/warden/internal/config"
)

const defaultHookTimeout = 30 * time.Second

// runHook executes command (if non-empty) with a bounded timeout, honoring
// failureMode the way the teacher's process.LifecycleHooks does: "fail"
// propagates the error, "ignore" swallows it, "retry" tries once more before
// giving up and falling back to "fail" semantics.
func runHook(ctx context.Context, command, workDir string, env []string, failureMode string) error {
	if command == "" {
		return nil
	}
	run := func() error {
		hctx, cancel := context.WithTimeout(ctx, defaultHookTimeout)
		defer cancel()
		cmd := exec.CommandContext(hctx, "/bin/sh", "-c", command)
		cmd.Dir = workDir
		cmd.Env = env
		return cmd.Run()
	}

	err := run()
	if err == nil {
		return nil
	}
	switch failureMode {
	case "ignore":
		return nil
	case "retry":
		if err2 := run(); err2 == nil {
			return nil
		}
		return fmt.Errorf("%w: %s: %v", ErrHookFailed, command, err)
	default: // "fail"
		return fmt.Errorf("%w: %s: %v", ErrHookFailed, command, err)
	}
}

func hooksEnv(env map[string]string) []string {
	return config.EnvSlice(env)
}
