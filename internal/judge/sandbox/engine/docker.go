package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"ojengine/internal/judge/sandbox/result"
	"ojengine/internal/judge/sandbox/spec"
	"ojengine/pkg/utils/logger"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"
	"go.uber.org/zap"
)

const cleanupTimeout = 10 * time.Second

// DockerEngine talks to the Docker Engine API.
type DockerEngine struct {
	cli *client.Client
	cfg Config
}

// NewDockerEngine connects using DOCKER_HOST and friends, negotiating the API version.
func NewDockerEngine(cfg Config) (*DockerEngine, error) {
	cfg.setDefaults()
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if cfg.DockerHost != "" {
		opts = append(opts, client.WithHost(cfg.DockerHost))
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return &DockerEngine{cli: cli, cfg: cfg}, nil
}

// Run creates, starts and waits for one container, then force-removes it.
func (e *DockerEngine) Run(ctx context.Context, runSpec spec.RunSpec) (result.RunResult, error) {
	if err := validateRunSpec(runSpec); err != nil {
		return result.RunResult{}, err
	}

	id, err := e.create(ctx, runSpec)
	if err != nil {
		return result.RunResult{}, err
	}
	defer e.remove(ctx, id)

	start := time.Now()
	if err := e.cli.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return result.RunResult{}, fmt.Errorf("start container: %w", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, runSpec.Limits.Timeout)
	defer cancel()
	statusCh, errCh := e.cli.ContainerWait(waitCtx, id, container.WaitConditionNotRunning)

	var exitCode int64
	select {
	case status := <-statusCh:
		if status.Error != nil && status.Error.Message != "" {
			return result.RunResult{}, fmt.Errorf("wait container: %s", status.Error.Message)
		}
		exitCode = status.StatusCode
	case err := <-errCh:
		e.kill(ctx, id)
		if ctx.Err() != nil {
			return result.RunResult{}, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) || waitCtx.Err() != nil {
			return result.TimedOut(time.Since(start)), nil
		}
		return result.RunResult{}, fmt.Errorf("wait container: %w", err)
	case <-waitCtx.Done():
		e.kill(ctx, id)
		if ctx.Err() != nil {
			return result.RunResult{}, ctx.Err()
		}
		return result.TimedOut(time.Since(start)), nil
	}
	wall := time.Since(start)

	stdout, stderr, err := e.logs(ctx, id)
	if err != nil {
		return result.RunResult{}, err
	}
	return result.RunResult{
		ExitCode: int(exitCode),
		Stdout:   stdout,
		Stderr:   stderr,
		WallTime: wall,
	}, nil
}

func (e *DockerEngine) create(ctx context.Context, runSpec spec.RunSpec) (string, error) {
	workDir := runSpec.WorkDir
	if workDir == "" {
		workDir = spec.ContainerWorkDir
	}
	cpus := runSpec.Limits.CPUs
	if cpus <= 0 {
		cpus = 1
	}
	pids := e.cfg.PIDsLimit
	if runSpec.Limits.PIDs > 0 {
		pids = runSpec.Limits.PIDs
	}
	memBytes := runSpec.Limits.MemoryMB << 20

	cfg := &container.Config{
		Image:           runSpec.Image,
		Cmd:             runSpec.Cmd,
		Env:             runSpec.Env,
		WorkingDir:      workDir,
		NetworkDisabled: true,
	}
	hostCfg := &container.HostConfig{
		Binds:       []string{runSpec.HostDir + ":" + workDir},
		NetworkMode: "none",
		CapDrop:     []string{"ALL"},
		SecurityOpt: []string{"no-new-privileges"},
		Resources: container.Resources{
			Memory:     memBytes,
			MemorySwap: memBytes,
			NanoCPUs:   int64(cpus * 1e9),
			PidsLimit:  &pids,
		},
	}
	name := "judge-" + runSpec.Name

	created, err := e.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, name)
	if err != nil && errdefs.IsNotFound(err) && e.cfg.PullMissingImages {
		if pullErr := e.pull(ctx, runSpec.Image); pullErr != nil {
			return "", pullErr
		}
		created, err = e.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, name)
	}
	if err != nil {
		return "", fmt.Errorf("create container: %w", err)
	}
	return created.ID, nil
}

func (e *DockerEngine) pull(ctx context.Context, ref string) error {
	logger.Info(ctx, "pulling sandbox image", zap.String("image", ref))
	rc, err := e.cli.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull image %s: %w", ref, err)
	}
	defer rc.Close()
	if _, err := io.Copy(io.Discard, rc); err != nil {
		return fmt.Errorf("pull image %s: %w", ref, err)
	}
	return nil
}

func (e *DockerEngine) logs(ctx context.Context, id string) (string, string, error) {
	rc, err := e.cli.ContainerLogs(ctx, id, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return "", "", fmt.Errorf("read container logs: %w", err)
	}
	defer rc.Close()

	stdout := newLimitedBuffer(e.cfg.OutputLimitBytes)
	stderr := newLimitedBuffer(e.cfg.OutputLimitBytes)
	if _, err := stdcopy.StdCopy(stdout, stderr, rc); err != nil && !errors.Is(err, io.EOF) {
		return "", "", fmt.Errorf("demux container logs: %w", err)
	}
	return stdout.String(), stderr.String(), nil
}

func (e *DockerEngine) kill(ctx context.Context, id string) {
	killCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	if err := e.cli.ContainerKill(killCtx, id, "KILL"); err != nil && !errdefs.IsNotFound(err) && !errdefs.IsConflict(err) {
		logger.Warn(ctx, "kill container failed", zap.String("container", id), zap.Error(err))
	}
}

func (e *DockerEngine) remove(ctx context.Context, id string) {
	rmCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	if err := e.cli.ContainerRemove(rmCtx, id, container.RemoveOptions{Force: true}); err != nil && !errdefs.IsNotFound(err) {
		logger.Warn(ctx, "remove container failed", zap.String("container", id), zap.Error(err))
	}
}

// Ping checks the daemon is reachable.
func (e *DockerEngine) Ping(ctx context.Context) error {
	if _, err := e.cli.Ping(ctx); err != nil {
		return fmt.Errorf("docker ping: %w", err)
	}
	return nil
}

// Close releases the API client.
func (e *DockerEngine) Close() error {
	return e.cli.Close()
}
