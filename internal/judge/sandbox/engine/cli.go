package engine

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"ojengine/internal/judge/sandbox/result"
	"ojengine/internal/judge/sandbox/spec"
	"ojengine/pkg/utils/logger"

	"go.uber.org/zap"
)

// exitDockerRunFailed is what `docker run` returns when the daemon itself failed.
// A program inside the container may exit with the same code; the CLI's own failures
// are told apart by a stderr line starting with "docker: ".
const (
	exitDockerRunFailed = 125
	dockerErrorPrefix   = "docker: "
)

// CLIEngine shells out to `docker run --rm`.
type CLIEngine struct {
	cfg Config
}

// NewCLIEngine creates a docker CLI engine.
func NewCLIEngine(cfg Config) *CLIEngine {
	cfg.setDefaults()
	return &CLIEngine{cfg: cfg}
}

// Run executes one container and kills it by name at the wall-clock cutoff.
func (e *CLIEngine) Run(ctx context.Context, runSpec spec.RunSpec) (result.RunResult, error) {
	if err := validateRunSpec(runSpec); err != nil {
		return result.RunResult{}, err
	}
	name := "judge-" + runSpec.Name

	cmd := exec.Command(e.cfg.DockerBinary, BuildRunArgs(runSpec, name, e.cfg.PIDsLimit)...)
	stdout := newLimitedBuffer(e.cfg.OutputLimitBytes)
	stderr := newLimitedBuffer(e.cfg.OutputLimitBytes)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return result.RunResult{}, fmt.Errorf("start docker: %w", err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	timer := time.NewTimer(runSpec.Limits.Timeout)
	defer timer.Stop()

	select {
	case waitErr := <-done:
		wall := time.Since(start)
		code := exitCode(waitErr, cmd)
		if isDaemonFailure(code, stderr.String()) {
			return result.RunResult{}, fmt.Errorf("docker run failed: %s", strings.TrimSpace(stderr.String()))
		}
		if code < 0 {
			return result.RunResult{}, fmt.Errorf("docker run: %w", waitErr)
		}
		return result.RunResult{
			ExitCode: code,
			Stdout:   stdout.String(),
			Stderr:   stderr.String(),
			WallTime: wall,
		}, nil
	case <-timer.C:
		e.stop(ctx, cmd, name, done)
		return result.TimedOut(time.Since(start)), nil
	case <-ctx.Done():
		e.stop(ctx, cmd, name, done)
		return result.RunResult{}, ctx.Err()
	}
}

// BuildRunArgs renders the `docker run` argument vector for runSpec.
func BuildRunArgs(runSpec spec.RunSpec, name string, defaultPIDs int64) []string {
	workDir := runSpec.WorkDir
	if workDir == "" {
		workDir = spec.ContainerWorkDir
	}
	cpus := runSpec.Limits.CPUs
	if cpus <= 0 {
		cpus = 1
	}
	pids := defaultPIDs
	if runSpec.Limits.PIDs > 0 {
		pids = runSpec.Limits.PIDs
	}
	mem := strconv.FormatInt(runSpec.Limits.MemoryMB, 10) + "m"

	args := []string{
		"run", "--rm",
		"--name", name,
		"-m", mem,
		"--memory-swap", mem,
		"--cpus", strconv.FormatFloat(cpus, 'f', 1, 64),
		"--network", "none",
		"--security-opt", "no-new-privileges",
		"--cap-drop", "ALL",
	}
	if pids > 0 {
		args = append(args, "--pids-limit", strconv.FormatInt(pids, 10))
	}
	args = append(args, "-v", runSpec.HostDir+":"+workDir, "-w", workDir)
	for _, env := range runSpec.Env {
		args = append(args, "-e", env)
	}
	args = append(args, runSpec.Image)
	return append(args, runSpec.Cmd...)
}

// stop kills the container, then the attached CLI client, and reaps the client.
func (e *CLIEngine) stop(ctx context.Context, cmd *exec.Cmd, name string, done <-chan error) {
	e.killContainer(ctx, name)
	if cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
	<-done
}

func (e *CLIEngine) killContainer(ctx context.Context, name string) {
	killCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	out, err := exec.CommandContext(killCtx, e.cfg.DockerBinary, "kill", name).CombinedOutput()
	if err != nil {
		logger.Warn(ctx, "docker kill failed", zap.String("container", name), zap.String("output", strings.TrimSpace(string(out))), zap.Error(err))
	}
}

func isDaemonFailure(code int, stderr string) bool {
	if code != exitDockerRunFailed {
		return false
	}
	for _, line := range strings.Split(stderr, "\n") {
		if strings.HasPrefix(line, dockerErrorPrefix) {
			return true
		}
	}
	return false
}

func exitCode(err error, cmd *exec.Cmd) int {
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// Ping runs `docker version`.
func (e *CLIEngine) Ping(ctx context.Context) error {
	out, err := exec.CommandContext(ctx, e.cfg.DockerBinary, "version", "--format", "{{.Server.Version}}").CombinedOutput()
	if err != nil {
		return fmt.Errorf("docker version: %s: %w", strings.TrimSpace(string(out)), err)
	}
	return nil
}

// Close is a no-op.
func (e *CLIEngine) Close() error {
	return nil
}
