package worker

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/fyrsmithlabs/docmind/internal/mindmap"
	"github.com/fyrsmithlabs/docmind/internal/pipeline"
)

// Job outcomes used as the outcome label.
const (
	OutcomeAcked       = "acked"
	OutcomeDropped     = "dropped"
	OutcomeInterrupted = "interrupted"
)

// Metrics holds the Prometheus collectors of the worker.
//
//   - docmind_jobs_total{outcome,kind}
//   - docmind_stage_duration_seconds{stage,outcome}
//   - docmind_jobs_in_flight
//   - docmind_mindmap_transitions_total{transition}
type Metrics struct {
	JobsTotal          *prometheus.CounterVec
	StageDuration      *prometheus.HistogramVec
	JobsInFlight       prometheus.Gauge
	MindMapTransitions *prometheus.CounterVec
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		JobsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docmind_jobs_total",
				Help: "Jobs finished, by outcome and failure kind",
			},
			[]string{"outcome", "kind"},
		),
		StageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "docmind_stage_duration_seconds",
				Help:    "Duration of pipeline stages in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 180, 300},
			},
			[]string{"stage", "outcome"},
		),
		JobsInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "docmind_jobs_in_flight",
			Help: "Jobs currently being processed (0 or 1)",
		}),
		MindMapTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docmind_mindmap_transitions_total",
				Help: "Mind-map state transitions by kind",
			},
			[]string{"transition"},
		),
	}
}

// ObserveStage is a pipeline.StageObserver.
func (m *Metrics) ObserveStage(stage pipeline.Stage, d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.StageDuration.WithLabelValues(string(stage), outcome).Observe(d.Seconds())
}

func (m *Metrics) jobFinished(outcome string, kind pipeline.Kind) {
	if m == nil {
		return
	}
	m.JobsTotal.WithLabelValues(outcome, string(kind)).Inc()
}

func (m *Metrics) transition(t mindmap.Transition) {
	if m == nil || t == "" {
		return
	}
	m.MindMapTransitions.WithLabelValues(string(t)).Inc()
}

func (m *Metrics) inFlight(delta float64) {
	if m == nil {
		return
	}
	m.JobsInFlight.Add(delta)
}
