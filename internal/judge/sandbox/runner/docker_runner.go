package runner

import (
	"context"
	"os"
	"path/filepath"
	"strconv"

	"ojengine/internal/judge/sandbox/engine"
	"ojengine/internal/judge/sandbox/observer"
	"ojengine/internal/judge/sandbox/result"
	"ojengine/internal/judge/sandbox/spec"
	appErr "ojengine/pkg/errors"
	"ojengine/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultRunner implements Runner on a sandbox engine.
type DefaultRunner struct {
	eng     engine.Engine
	cfg     Config
	metrics observer.MetricsRecorder
}

// NewRunner creates a runner. A nil metrics recorder discards observations.
func NewRunner(eng engine.Engine, cfg Config, metrics observer.MetricsRecorder) (*DefaultRunner, error) {
	if eng == nil {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("sandbox engine is required")
	}
	if cfg.WorkRoot == "" {
		cfg.WorkRoot = filepath.Join(os.TempDir(), "ojengine")
	}
	if cfg.CPUs <= 0 {
		cfg.CPUs = 1.0
	}
	if err := os.MkdirAll(cfg.WorkRoot, dirPerm); err != nil {
		return nil, appErr.Wrapf(err, appErr.SandboxWorkdir, "create work root %s failed", cfg.WorkRoot)
	}
	if metrics == nil {
		metrics = observer.NoopMetricsRecorder{}
	}
	return &DefaultRunner{eng: eng, cfg: cfg, metrics: metrics}, nil
}

// Compile writes the source into a fresh directory and runs the compile step there.
// Languages without a compile step get the source directory back as their artifact.
func (r *DefaultRunner) Compile(ctx context.Context, req CompileRequest) (*Artifact, result.RunResult, error) {
	lang := req.Language
	if lang.ID == "" || lang.SourceFile == "" {
		return nil, result.RunResult{}, appErr.ValidationError("language", "incomplete language spec")
	}
	dir, err := newWorkDir(r.cfg.WorkRoot, req.SubmissionID, "compile")
	if err != nil {
		return nil, result.RunResult{}, appErr.Wrap(err, appErr.SandboxWorkdir)
	}
	artifact := &Artifact{SubmissionID: req.SubmissionID, Language: lang.ID, Dir: dir, spec: lang, keep: r.cfg.KeepWorkDirs}
	if err := writeFile(dir, lang.SourceFile, req.Source); err != nil {
		_ = artifact.Release()
		return nil, result.RunResult{}, appErr.Wrap(err, appErr.SandboxWorkdir)
	}
	if !lang.CompileEnabled {
		return artifact, result.RunResult{}, nil
	}

	cmd, err := buildCommand(lang.CompileCmdTpl, lang)
	if err != nil {
		_ = artifact.Release()
		return nil, result.RunResult{}, err
	}
	timeLimitMs := req.Limits.TimeLimitMs
	if lang.CompileTimeLimitMs > 0 {
		timeLimitMs = lang.CompileTimeLimitMs
	}

	res, err := r.eng.Run(ctx, spec.RunSpec{
		Name:    "compile-" + strconv.FormatInt(req.SubmissionID, 10) + "-" + uuid.NewString()[:8],
		Image:   lang.Image,
		HostDir: r.hostPath(dir),
		WorkDir: spec.ContainerWorkDir,
		Cmd:     cmd,
		Env:     lang.Env,
		Limits: spec.ResourceLimit{
			CPUs:     r.cfg.CPUs,
			MemoryMB: req.Limits.MemoryLimitMB,
			Timeout:  spec.WallClockCutoff(timeLimitMs),
		},
	})
	if err != nil {
		_ = artifact.Release()
		return nil, result.RunResult{}, appErr.Wrapf(err, appErr.SandboxExecFailed, "compile submission %d failed", req.SubmissionID)
	}
	r.metrics.ObserveSandbox(ctx, lang.ID, observer.PhaseCompile, res.ExitCode, res.WallTime)
	if !res.OK() {
		_ = artifact.Release()
		return nil, res, nil
	}
	return artifact, res, nil
}

// Run copies the artifact into a fresh directory, adds input.txt and runs the program.
func (r *DefaultRunner) Run(ctx context.Context, req RunRequest) (result.RunResult, error) {
	if req.Artifact == nil || req.Artifact.Dir == "" {
		return result.RunResult{}, appErr.ValidationError("artifact", "required")
	}
	lang := req.Artifact.spec
	if lang.ID == "" {
		return result.RunResult{}, appErr.ValidationError("artifact", "not produced by this runner")
	}
	cmd, err := buildCommand(lang.RunCmdTpl, lang)
	if err != nil {
		return result.RunResult{}, err
	}

	dir, err := newWorkDir(r.cfg.WorkRoot, req.Artifact.SubmissionID, "case-"+strconv.FormatInt(req.CaseID, 10))
	if err != nil {
		return result.RunResult{}, appErr.Wrap(err, appErr.SandboxWorkdir)
	}
	defer func() {
		if r.cfg.KeepWorkDirs {
			return
		}
		if err := os.RemoveAll(dir); err != nil {
			logger.Warn(ctx, "remove run dir failed", zap.String("dir", dir), zap.Error(err))
		}
	}()
	if err := copyTree(req.Artifact.Dir, dir); err != nil {
		return result.RunResult{}, appErr.Wrapf(err, appErr.SandboxWorkdir, "copy artifact failed")
	}
	if err := writeFile(dir, inputFileName, req.Input); err != nil {
		return result.RunResult{}, appErr.Wrap(err, appErr.SandboxWorkdir)
	}

	res, err := r.eng.Run(ctx, spec.RunSpec{
		Name:    "run-" + strconv.FormatInt(req.Artifact.SubmissionID, 10) + "-" + strconv.FormatInt(req.CaseID, 10) + "-" + uuid.NewString()[:8],
		Image:   lang.Image,
		HostDir: r.hostPath(dir),
		WorkDir: spec.ContainerWorkDir,
		Cmd:     cmd,
		Env:     lang.Env,
		Limits: spec.ResourceLimit{
			CPUs:     r.cfg.CPUs,
			MemoryMB: req.Limits.MemoryLimitMB,
			Timeout:  spec.WallClockCutoff(req.Limits.TimeLimitMs),
		},
	})
	if err != nil {
		return result.RunResult{}, appErr.Wrapf(err, appErr.SandboxExecFailed, "run submission %d case %d failed", req.Artifact.SubmissionID, req.CaseID)
	}
	r.metrics.ObserveSandbox(ctx, lang.ID, observer.PhaseRun, res.ExitCode, res.WallTime)
	return res, nil
}

func (r *DefaultRunner) hostPath(dir string) string {
	if r.cfg.HostWorkRoot == "" {
		return dir
	}
	rel, err := filepath.Rel(r.cfg.WorkRoot, dir)
	if err != nil {
		return dir
	}
	return filepath.Join(r.cfg.HostWorkRoot, rel)
}
