package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once             sync.Once
	runDuration      prom.Histogram
	stageDuration    *prom.HistogramVec
	stepDuration     *prom.HistogramVec
	runOutcomes      *prom.CounterVec
	stageResults     *prom.CounterVec
	publishResults   *prom.CounterVec
	triggerDecisions *prom.CounterVec
	queueDepth       prom.Gauge
}

// NewPrometheusRecorder constructs and registers the pagesmith metrics on reg
// (a fresh registry when nil).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.runDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: "pagesmith",
			Name:      "run_duration_seconds",
			Help:      "Total run duration from trigger acceptance to terminal state",
			Buckets:   prom.DefBuckets,
		})
		pr.stageDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "pagesmith",
			Name:      "stage_duration_seconds",
			Help:      "Duration of individual run stages",
			Buckets:   prom.DefBuckets,
		}, []string{"stage"})
		pr.stepDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "pagesmith",
			Name:      "step_duration_seconds",
			Help:      "Duration of configured build steps",
			Buckets:   prom.DefBuckets,
		}, []string{"step"})
		pr.runOutcomes = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "pagesmith",
			Name:      "run_outcomes_total",
			Help:      "Run outcomes by final status",
		}, []string{"outcome"})
		pr.stageResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "pagesmith",
			Name:      "stage_results_total",
			Help:      "Stage result counts by outcome",
		}, []string{"stage", "result"})
		pr.publishResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "pagesmith",
			Name:      "publish_results_total",
			Help:      "Publish attempts by target kind and result",
		}, []string{"target_kind", "result"})
		pr.triggerDecisions = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "pagesmith",
			Name:      "trigger_decisions_total",
			Help:      "Trigger evaluations by decision",
		}, []string{"decision"})
		pr.queueDepth = prom.NewGauge(prom.GaugeOpts{
			Namespace: "pagesmith",
			Name:      "queue_depth",
			Help:      "Pending runs waiting for a worker",
		})
		reg.MustRegister(pr.runDuration, pr.stageDuration, pr.stepDuration,
			pr.runOutcomes, pr.stageResults, pr.publishResults,
			pr.triggerDecisions, pr.queueDepth)
	})
	return pr
}

func (p *PrometheusRecorder) ObserveRunDuration(d time.Duration) {
	if p == nil || p.runDuration == nil {
		return
	}
	p.runDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveStageDuration(stage string, d time.Duration) {
	if p == nil || p.stageDuration == nil {
		return
	}
	p.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveStepDuration(step string, d time.Duration) {
	if p == nil || p.stepDuration == nil {
		return
	}
	p.stepDuration.WithLabelValues(step).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncRunOutcome(outcome string) {
	if p == nil || p.runOutcomes == nil {
		return
	}
	p.runOutcomes.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) IncStageResult(stage string, result ResultLabel) {
	if p == nil || p.stageResults == nil {
		return
	}
	p.stageResults.WithLabelValues(stage, string(result)).Inc()
}

func (p *PrometheusRecorder) IncPublishResult(targetKind string, success bool) {
	if p == nil || p.publishResults == nil {
		return
	}
	res := "failed"
	if success {
		res = "success"
	}
	p.publishResults.WithLabelValues(targetKind, res).Inc()
}

func (p *PrometheusRecorder) IncTriggerDecision(accepted bool) {
	if p == nil || p.triggerDecisions == nil {
		return
	}
	decision := "rejected"
	if accepted {
		decision = "accepted"
	}
	p.triggerDecisions.WithLabelValues(decision).Inc()
}

func (p *PrometheusRecorder) SetQueueDepth(n int) {
	if p == nil || p.queueDepth == nil {
		return
	}
	p.queueDepth.Set(float64(n))
}
