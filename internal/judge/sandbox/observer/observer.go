// Package observer defines metrics hooks for sandbox execution.
package observer

import (
	"context"
	"time"
)

// Phase names a sandbox step.
type Phase string

const (
	PhaseCompile Phase = "compile"
	PhaseRun     Phase = "run"
)

// MetricsRecorder records sandbox metrics.
type MetricsRecorder interface {
	ObserveSandbox(ctx context.Context, languageID string, phase Phase, exitCode int, wall time.Duration)
}

// NoopMetricsRecorder discards everything.
type NoopMetricsRecorder struct{}

// ObserveSandbox implements MetricsRecorder.
func (NoopMetricsRecorder) ObserveSandbox(context.Context, string, Phase, int, time.Duration) {}
