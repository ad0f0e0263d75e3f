// Package engine runs one command inside a fresh, resource-bounded container.
package engine

import (
	"context"
	"fmt"

	"ojengine/internal/judge/sandbox/result"
	"ojengine/internal/judge/sandbox/spec"
)

// Engine executes a RunSpec inside an isolated sandbox.
// A run that outlives its cutoff is killed by the engine and reported as result.TimedOut.
// Errors are reserved for failures of the sandbox itself.
type Engine interface {
	Run(ctx context.Context, runSpec spec.RunSpec) (result.RunResult, error)
	Ping(ctx context.Context) error
	Close() error
}

// New builds the engine selected by cfg.Driver.
func New(cfg Config) (Engine, error) {
	cfg.setDefaults()
	switch cfg.Driver {
	case DriverDocker:
		return NewDockerEngine(cfg)
	case DriverDockerCLI:
		return NewCLIEngine(cfg), nil
	default:
		return nil, fmt.Errorf("unknown sandbox driver %q", cfg.Driver)
	}
}

func validateRunSpec(runSpec spec.RunSpec) error {
	if runSpec.Name == "" {
		return fmt.Errorf("run name is required")
	}
	if runSpec.Image == "" {
		return fmt.Errorf("image is required")
	}
	if runSpec.HostDir == "" {
		return fmt.Errorf("host dir is required")
	}
	if len(runSpec.Cmd) == 0 {
		return fmt.Errorf("command is required")
	}
	if runSpec.Limits.Timeout <= 0 {
		return fmt.Errorf("timeout is required")
	}
	return nil
}
