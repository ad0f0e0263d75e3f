// Package spec defines the execution specification and resource limits.
package spec

import "time"

// ContainerWorkDir is where the host work directory is mounted inside the sandbox.
const ContainerWorkDir = "/work"

// ResourceLimit describes hard limits enforced by the sandbox.
type ResourceLimit struct {
	CPUs     float64
	MemoryMB int64
	PIDs     int64
	// Timeout is the wall-clock cutoff for the whole invocation.
	Timeout time.Duration
}

// RunSpec is the unified execution specification for one sandbox invocation.
type RunSpec struct {
	// Name identifies the invocation; engines use it for container names.
	Name    string
	Image   string
	HostDir string
	WorkDir string
	Cmd     []string
	Env     []string
	Limits  ResourceLimit
}

// WallClockCutoff converts a millisecond time limit into the whole-second cutoff
// floor(ms/1000)+1, never below one second.
func WallClockCutoff(timeLimitMs int64) time.Duration {
	if timeLimitMs < 0 {
		timeLimitMs = 0
	}
	return time.Duration(timeLimitMs/1000+1) * time.Second
}
