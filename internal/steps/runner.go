package steps

import (
	"context"
	"os/exec"
	"sync"
)

// maxCapturedOutput bounds how much combined output one step retains. The
// tail is kept: build failures explain themselves at the end of the log.
const maxCapturedOutput = 512 * 1024

// CommandRunner abstracts shell execution so tests never fork real shells.
type CommandRunner interface {
	// Run executes command in dir with the given environment and returns
	// the combined output, the exit code and an error for non-zero exits
	// or start failures. A start failure reports exit code -1.
	Run(ctx context.Context, command, dir string, env []string) (output string, exitCode int, err error)
}

// ShellRunner executes commands via `sh -c`.
type ShellRunner struct{}

func (ShellRunner) Run(ctx context.Context, command, dir string, env []string) (string, int, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = dir
	cmd.Env = env

	buf := &tailBuffer{max: maxCapturedOutput}
	cmd.Stdout = buf
	cmd.Stderr = buf

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		exitCode = -1
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
	}
	return buf.String(), exitCode, err
}

// tailBuffer keeps the last max bytes written. Both stdout and stderr of a
// step share one instance, so writes are locked.
type tailBuffer struct {
	mu        sync.Mutex
	buf       []byte
	max       int
	truncated bool
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if len(t.buf) > t.max {
		t.buf = t.buf[len(t.buf)-t.max:]
		t.truncated = true
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.truncated {
		return "[output truncated]\n" + string(t.buf)
	}
	return string(t.buf)
}
