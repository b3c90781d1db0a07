package steps

import (
	"fmt"
	"time"

	"git.home.luguber.info/inful/pagesmith/internal/config"
)

// Step is one resolved build step.
type Step struct {
	Name    string
	Command string
	Timeout time.Duration // 0 means no per-step timeout
}

// StepResult records one executed step.
type StepResult struct {
	Name      string        `json:"name"`
	Command   string        `json:"command"`
	ExitCode  int           `json:"exit_code"`
	Output    string        `json:"output"` // combined stdout and stderr
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Err       error         `json:"-"`
}

// Result is the outcome of a full step sequence. Steps holds results for
// executed steps only; skipped steps leave no trace.
type Result struct {
	Steps           []StepResult `json:"steps"`
	FailedStepIndex int          `json:"failed_step_index"` // -1 when all steps succeeded
}

// Failed reports whether the sequence stopped on a failing step.
func (r Result) Failed() bool { return r.FailedStepIndex >= 0 }

// FailedStep returns the failing step's result, or nil on success.
func (r Result) FailedStep() *StepResult {
	if !r.Failed() || r.FailedStepIndex >= len(r.Steps) {
		return nil
	}
	return &r.Steps[r.FailedStepIndex]
}

// FromConfig converts configured steps into resolved ones. Unnamed steps get
// a positional name; timeouts were syntax-checked at config load.
func FromConfig(cfgs []config.StepConfig) ([]Step, error) {
	out := make([]Step, 0, len(cfgs))
	for i, sc := range cfgs {
		step := Step{Name: sc.Name, Command: sc.Command}
		if step.Name == "" {
			step.Name = fmt.Sprintf("step-%d", i+1)
		}
		if sc.Timeout != "" {
			d, err := time.ParseDuration(sc.Timeout)
			if err != nil {
				return nil, fmt.Errorf("steps[%d]: invalid timeout %q: %w", i, sc.Timeout, err)
			}
			step.Timeout = d
		}
		out = append(out, step)
	}
	return out, nil
}
