package pipeline

import (
	"context"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/pagesmith/internal/logfields"
	"git.home.luguber.info/inful/pagesmith/internal/metrics"
)

// StageName identifies one phase of a run.
type StageName string

// Canonical stage names, in execution order.
const (
	StageWorkspace StageName = "workspace"
	StageCheckout  StageName = "checkout"
	StageSteps     StageName = "steps"
	StageVerify    StageName = "verify"
	StagePublish   StageName = "publish"
)

// stage is a discrete unit of work operating on the shared run state.
type stage func(ctx context.Context, rs *runState) error

type stageDef struct {
	name StageName
	fn   stage
}

// runStages executes stages in order, recording per-stage timing, and stops
// on the first error.
func (r *Runner) runStages(ctx context.Context, rs *runState, defs []stageDef) error {
	for _, st := range defs {
		select {
		case <-ctx.Done():
			r.recorder.IncStageResult(string(st.name), metrics.ResultCanceled)
			return ctx.Err()
		default:
		}

		t0 := time.Now()
		err := st.fn(ctx, rs)
		dur := time.Since(t0)

		rs.run.StageDurations[string(st.name)] = dur
		r.recorder.ObserveStageDuration(string(st.name), dur)

		if err != nil {
			r.recorder.IncStageResult(string(st.name), metrics.ResultFailed)
			slog.Error("Stage failed",
				logfields.RunID(rs.run.ID),
				logfields.Stage(string(st.name)),
				logfields.DurationMS(float64(dur.Milliseconds())),
				logfields.Error(err))
			return err
		}

		r.recorder.IncStageResult(string(st.name), metrics.ResultSuccess)
		slog.Debug("Stage complete",
			logfields.RunID(rs.run.ID),
			logfields.Stage(string(st.name)),
			logfields.DurationMS(float64(dur.Milliseconds())))
	}
	return nil
}
