// Package metrics exposes Prometheus collectors for the judge worker.
package metrics

import (
	"context"
	"strconv"
	"time"

	"ojengine/internal/judge/model"
	"ojengine/internal/judge/sandbox/observer"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "judge"

// Anomaly kinds.
const (
	AnomalyMissingSubmission = "missing_submission"
	AnomalyMissingProblem    = "missing_problem"
	AnomalyMalformedJob      = "malformed_job"
	AnomalyStaleJob          = "stale_job"
)

// Job results.
const (
	JobOK    = "ok"
	JobError = "error"
	JobPanic = "panic"
)

// Recorder collects judge metrics on its own registry.
type Recorder struct {
	registry *prometheus.Registry

	verdicts  *prometheus.CounterVec
	anomalies *prometheus.CounterVec
	jobs      *prometheus.CounterVec
	sandbox   *prometheus.HistogramVec
	exits     *prometheus.CounterVec
}

// NewRecorder creates and registers all collectors. A nil registry gets a fresh one.
func NewRecorder(reg *prometheus.Registry) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	r := &Recorder{
		registry: reg,
		verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verdicts_total",
			Help:      "Terminal verdicts written, by language and verdict code.",
		}, []string{"language", "verdict"}),
		anomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "anomalies_total",
			Help:      "Jobs skipped because their rows were missing or stale.",
		}, []string{"kind"}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Jobs handled by the worker loop, by result.",
		}, []string{"result"}),
		sandbox: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sandbox_duration_seconds",
			Help:      "Wall time of sandbox invocations.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"language", "phase"}),
		exits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sandbox_exits_total",
			Help:      "Sandbox invocations by phase and exit code.",
		}, []string{"language", "phase", "exit_code"}),
	}
	reg.MustRegister(r.verdicts, r.anomalies, r.jobs, r.sandbox, r.exits)
	return r
}

// Registry returns the registry backing the collectors.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveVerdict counts one terminal verdict.
func (r *Recorder) ObserveVerdict(language string, v model.Verdict) {
	r.verdicts.WithLabelValues(language, v.Code()).Inc()
}

// ObserveAnomaly counts one skipped job.
func (r *Recorder) ObserveAnomaly(kind string) {
	r.anomalies.WithLabelValues(kind).Inc()
}

// ObserveJob counts one worker loop iteration.
func (r *Recorder) ObserveJob(result string) {
	r.jobs.WithLabelValues(result).Inc()
}

// ObserveSandbox implements observer.MetricsRecorder.
func (r *Recorder) ObserveSandbox(_ context.Context, languageID string, phase observer.Phase, exitCode int, wall time.Duration) {
	r.sandbox.WithLabelValues(languageID, string(phase)).Observe(wall.Seconds())
	r.exits.WithLabelValues(languageID, string(phase), strconv.Itoa(exitCode)).Inc()
}

var _ observer.MetricsRecorder = (*Recorder)(nil)
