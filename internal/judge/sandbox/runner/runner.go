// Package runner compiles a submission once and runs the artifact per test case,
// each invocation in its own fresh work directory and container.
package runner

import (
	"context"

	"ojengine/internal/judge/model"
	"ojengine/internal/judge/sandbox/profile"
	"ojengine/internal/judge/sandbox/result"
)

// CompileRequest describes one compilation.
type CompileRequest struct {
	SubmissionID int64
	Language     profile.LanguageSpec
	Source       string
	Limits       model.Limits
}

// RunRequest describes one execution against one test case.
type RunRequest struct {
	Artifact *Artifact
	CaseID   int64
	Input    string
	Limits   model.Limits
}

// Runner orchestrates compile and run workflows.
type Runner interface {
	// Compile returns a reusable artifact when the compile step exits 0.
	// A failed compilation yields a nil artifact and its RunResult; err is
	// reserved for sandbox failures.
	Compile(ctx context.Context, req CompileRequest) (*Artifact, result.RunResult, error)
	Run(ctx context.Context, req RunRequest) (result.RunResult, error)
}

// Config controls where work directories live.
type Config struct {
	// WorkRoot is the local directory under which work directories are created.
	WorkRoot string `yaml:"workRoot"`
	// HostWorkRoot is WorkRoot as seen by the Docker daemon, when the worker itself
	// runs in a container with the daemon socket mounted. Empty means WorkRoot.
	HostWorkRoot string `yaml:"hostWorkRoot"`
	// CPUs is the CPU quota per invocation. Default: 1.0
	CPUs float64 `yaml:"cpus"`
	// KeepWorkDirs leaves work directories on disk for debugging.
	KeepWorkDirs bool `yaml:"keepWorkDirs"`
}
