package steps

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	apperrors "git.home.luguber.info/inful/pagesmith/internal/errors"
	"git.home.luguber.info/inful/pagesmith/internal/logfields"
)

// Executor runs step sequences in a fixed working directory with a fixed
// pipeline environment.
type Executor struct {
	runner CommandRunner
	dir    string
	env    map[string]string
}

// NewExecutor returns an executor rooted at dir. env is merged over the
// parent environment; pipeline values win on conflicts.
func NewExecutor(dir string, env map[string]string) *Executor {
	return &Executor{runner: ShellRunner{}, dir: dir, env: env}
}

// WithRunner swaps the command runner (fluent helper, used by tests).
func (e *Executor) WithRunner(r CommandRunner) *Executor {
	if r != nil {
		e.runner = r
	}
	return e
}

// Run executes the steps in order, stopping at the first failure. The
// returned Result always describes what actually ran; on failure the error
// is a classified step failure carrying the failing index and exit code.
func (e *Executor) Run(ctx context.Context, steps []Step) (Result, error) {
	res := Result{FailedStepIndex: -1}
	env := e.mergedEnv()

	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			// Aborted between steps: nothing failed, the run just stops.
			return res, err
		}

		slog.Info("Running step",
			logfields.Step(step.Name),
			logfields.StepIndex(i))

		stepCtx := ctx
		cancel := context.CancelFunc(func() {})
		if step.Timeout > 0 {
			stepCtx, cancel = context.WithTimeout(ctx, step.Timeout)
		}

		start := time.Now()
		output, exitCode, err := e.runner.Run(stepCtx, step.Command, e.dir, env)
		timedOut := step.Timeout > 0 && stepCtx.Err() == context.DeadlineExceeded
		cancel()

		sr := StepResult{
			Name:      step.Name,
			Command:   step.Command,
			ExitCode:  exitCode,
			Output:    output,
			StartedAt: start,
			Duration:  time.Since(start),
		}
		if timedOut && err != nil {
			err = fmt.Errorf("timed out after %s: %w", step.Timeout, err)
		}
		sr.Err = err
		res.Steps = append(res.Steps, sr)

		if err != nil {
			res.FailedStepIndex = i
			slog.Error("Step failed",
				logfields.Step(step.Name),
				logfields.StepIndex(i),
				logfields.ExitCode(exitCode),
				logfields.DurationMS(float64(sr.Duration.Milliseconds())),
				logfields.Error(err))
			return res, apperrors.StepFailed(step.Name, i, exitCode, err)
		}

		slog.Info("Step completed",
			logfields.Step(step.Name),
			logfields.StepIndex(i),
			logfields.DurationMS(float64(sr.Duration.Milliseconds())))
	}
	return res, nil
}

// mergedEnv builds the child environment: parent env first, then pipeline
// variables in sorted key order. os/exec takes the last value for a
// duplicated key, so pipeline values override the parent.
func (e *Executor) mergedEnv() []string {
	env := os.Environ()
	if len(e.env) == 0 {
		return env
	}
	keys := make([]string, 0, len(e.env))
	for k := range e.env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+e.env[k])
	}
	return env
}
