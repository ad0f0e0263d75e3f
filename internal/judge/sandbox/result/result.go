// Package result defines raw sandbox execution results.
package result

import "time"

const (
	// ExitCodeTimeout is reported when the wall-clock cutoff killed the invocation.
	ExitCodeTimeout = 124
	// TimeoutMessage is the stderr reported with ExitCodeTimeout.
	TimeoutMessage = "Time Limit Exceeded"
)

// RunResult captures what one sandbox invocation produced.
type RunResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	// WallTime is observed for metrics only.
	WallTime time.Duration
}

// TimedOut builds the fixed result of an invocation killed at the cutoff.
func TimedOut(wall time.Duration) RunResult {
	return RunResult{
		ExitCode: ExitCodeTimeout,
		Stdout:   "",
		Stderr:   TimeoutMessage,
		WallTime: wall,
	}
}

// IsTimeout reports whether the invocation hit the cutoff.
func (r RunResult) IsTimeout() bool {
	return r.ExitCode == ExitCodeTimeout
}

// OK reports a zero exit status.
func (r RunResult) OK() bool {
	return r.ExitCode == 0
}
