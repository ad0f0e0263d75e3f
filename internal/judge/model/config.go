package model

const (
	// DefaultTimeLimitMs applies when a problem has no positive time limit.
	DefaultTimeLimitMs int64 = 2000
	// DefaultMemoryLimitMB applies when a problem has no positive memory limit.
	DefaultMemoryLimitMB int64 = 256
)

// Limits is the resolved per-submission resource policy.
type Limits struct {
	TimeLimitMs   int64
	MemoryLimitMB int64
}

// ResolveLimits picks the problem's limits, falling back to defaults for absent or non-positive values.
func ResolveLimits(p *Problem, defaults Limits) Limits {
	out := defaults
	if out.TimeLimitMs <= 0 {
		out.TimeLimitMs = DefaultTimeLimitMs
	}
	if out.MemoryLimitMB <= 0 {
		out.MemoryLimitMB = DefaultMemoryLimitMB
	}
	if p == nil {
		return out
	}
	if p.TimeLimitMs != nil && *p.TimeLimitMs > 0 {
		out.TimeLimitMs = *p.TimeLimitMs
	}
	if p.MemoryLimitMB != nil && *p.MemoryLimitMB > 0 {
		out.MemoryLimitMB = *p.MemoryLimitMB
	}
	return out
}
