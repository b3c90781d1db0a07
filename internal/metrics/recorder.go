package metrics

import "time"

// ResultLabel enumerates stage result categories for counters.
type ResultLabel string

const (
	ResultSuccess  ResultLabel = "success"
	ResultFailed   ResultLabel = "failed"
	ResultCanceled ResultLabel = "canceled"
)

// Recorder defines observability hooks for run, stage and publish metrics.
// Implementations must tolerate concurrent use; the NoopRecorder default
// makes injection optional.
type Recorder interface {
	ObserveRunDuration(d time.Duration)
	ObserveStageDuration(stage string, d time.Duration)
	ObserveStepDuration(step string, d time.Duration)
	IncRunOutcome(outcome string) // published|failed
	IncStageResult(stage string, result ResultLabel)
	IncPublishResult(targetKind string, success bool)
	IncTriggerDecision(accepted bool)
	SetQueueDepth(n int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics are not
// configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveRunDuration(time.Duration)           {}
func (NoopRecorder) ObserveStageDuration(string, time.Duration) {}
func (NoopRecorder) ObserveStepDuration(string, time.Duration)  {}
func (NoopRecorder) IncRunOutcome(string)                       {}
func (NoopRecorder) IncStageResult(string, ResultLabel)         {}
func (NoopRecorder) IncPublishResult(string, bool)              {}
func (NoopRecorder) IncTriggerDecision(bool)                    {}
func (NoopRecorder) SetQueueDepth(int)                          {}
