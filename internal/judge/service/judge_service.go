package service

import (
	"context"
	"time"

	"ojengine/internal/judge/analysis"
	"ojengine/internal/judge/comparator"
	"ojengine/internal/judge/metrics"
	"ojengine/internal/judge/model"
	"ojengine/internal/judge/repository"
	"ojengine/internal/judge/sandbox/profile"
	"ojengine/internal/judge/sandbox/result"
	"ojengine/internal/judge/sandbox/runner"
	appErr "ojengine/pkg/errors"
	"ojengine/pkg/utils/contextkey"
	"ojengine/pkg/utils/logger"

	"go.uber.org/zap"
)

const unsupportedLanguageMessage = "Unsupported language"

// Service judges one submission at a time against its problem's test cases.
type Service struct {
	store     repository.Store
	runner    runner.Runner
	languages profile.Repository
	settings  Settings

	metrics   Metrics
	archive   repository.DiagnosticArchive
	publisher repository.VerdictEventPublisher
	now       func() time.Time
}

// NewService creates a new judge service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("store is required")
	}
	if cfg.Runner == nil {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("runner is required")
	}
	if cfg.Languages == nil {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("language repository is required")
	}
	settings := cfg.Settings
	settings.DefaultLimits = model.ResolveLimits(nil, settings.DefaultLimits)
	if settings.SideChannelTimeout <= 0 {
		settings.SideChannelTimeout = 5 * time.Second
	}
	if settings.Analysis.SimilarityThreshold <= 0 {
		settings.Analysis.SimilarityThreshold = 0.8
	}
	if settings.Analysis.SimilarityWindow <= 0 {
		settings.Analysis.SimilarityWindow = 10
	}
	m := cfg.Metrics
	if m == nil {
		m = noopMetrics{}
	}
	return &Service{
		store:     cfg.Store,
		runner:    cfg.Runner,
		languages: cfg.Languages,
		settings:  settings,
		metrics:   m,
		archive:   cfg.Archive,
		publisher: cfg.Publisher,
		now:       time.Now,
	}, nil
}

// outcome is the terminal result of evaluating all test cases.
type outcome struct {
	verdict       model.Verdict
	diagnostic    string
	failedCase    *int64
	compileFailed bool

	bugAnalysis string
	similarity  *model.SimilarityMatch
}

// Judge moves a Pending submission through Judging to a terminal verdict.
// Missing rows and already-claimed submissions are logged and skipped. Returned errors
// are sandbox or storage failures; the submission then stays Judging.
func (s *Service) Judge(ctx context.Context, submissionID int64) error {
	ctx = context.WithValue(ctx, contextkey.SubmissionID, submissionID)

	session, err := s.store.Open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := session.Close(); err != nil {
			logger.Warn(ctx, "close storage session failed", zap.Error(err))
		}
	}()

	sub, err := session.GetSubmission(ctx, submissionID)
	if err != nil {
		return err
	}
	if sub == nil {
		logger.Warn(ctx, "submission not found, job dropped")
		s.metrics.ObserveAnomaly(metrics.AnomalyMissingSubmission)
		return nil
	}
	problem, err := session.GetProblem(ctx, sub.ProblemID)
	if err != nil {
		return err
	}
	if problem == nil {
		logger.Warn(ctx, "problem not found, job dropped", zap.Int64("problem_id", sub.ProblemID))
		s.metrics.ObserveAnomaly(metrics.AnomalyMissingProblem)
		return nil
	}
	if sub.Verdict != model.VerdictPending {
		logger.Info(ctx, "submission already claimed, job dropped", zap.String("verdict", sub.Verdict.String()))
		s.metrics.ObserveAnomaly(metrics.AnomalyStaleJob)
		return nil
	}

	if err := session.UpdateVerdict(ctx, model.VerdictUpdate{
		SubmissionID: sub.ID,
		From:         model.VerdictPending,
		To:           model.VerdictJudging,
	}); err != nil {
		return s.handleWriteError(ctx, err)
	}

	limits := model.ResolveLimits(problem, s.settings.DefaultLimits)
	cases, err := session.ListTestCases(ctx, problem.ID)
	if err != nil {
		return err
	}

	res, err := s.evaluate(ctx, sub, limits, cases)
	if err != nil {
		return err
	}
	s.analyze(ctx, session, sub, &res)

	if err := session.UpdateVerdict(ctx, model.VerdictUpdate{
		SubmissionID: sub.ID,
		From:         model.VerdictJudging,
		To:           res.verdict,
		Diagnostic:   model.Truncate(res.diagnostic, model.MaxDiagnosticLength),
		FailedCaseID: res.failedCase,
		BugAnalysis:  res.bugAnalysis,
		Similarity:   res.similarity,
	}); err != nil {
		return s.handleWriteError(ctx, err)
	}

	logger.Info(ctx, "submission judged",
		zap.String("verdict", res.verdict.Code()),
		zap.Int("cases", len(cases)),
		zap.Int64("time_limit_ms", limits.TimeLimitMs),
		zap.Int64("memory_limit_mb", limits.MemoryLimitMB),
	)
	s.finish(ctx, sub, res)
	return nil
}

// evaluate runs the cases in ascending id order and stops at the first failure.
// The artifact is compiled once, on the first case, and released on return.
func (s *Service) evaluate(ctx context.Context, sub *model.Submission, limits model.Limits, cases []model.TestCase) (outcome, error) {
	lang, err := s.languages.GetLanguageSpec(ctx, sub.Language)
	if err != nil {
		if appErr.Is(err, appErr.LanguageNotSupported) {
			logger.Info(ctx, "unsupported language", zap.String("language", sub.Language))
			return outcome{verdict: model.VerdictRuntimeError, diagnostic: unsupportedLanguageMessage}, nil
		}
		return outcome{}, err
	}

	var artifact *runner.Artifact
	defer func() {
		if err := artifact.Release(); err != nil {
			logger.Warn(ctx, "release artifact failed", zap.Error(err))
		}
	}()

	var res outcome
	completed := true
	for _, tc := range cases {
		caseID := tc.ID
		if artifact == nil {
			compiled, compileRes, err := s.runner.Compile(ctx, runner.CompileRequest{
				SubmissionID: sub.ID,
				Language:     lang,
				Source:       sub.SourceCode,
				Limits:       limits,
			})
			if err != nil {
				return outcome{}, err
			}
			if compiled == nil {
				res, completed = failed(compileRes, caseID), false
				res.compileFailed = true
				break
			}
			artifact = compiled
		}

		runRes, err := s.runner.Run(ctx, runner.RunRequest{
			Artifact: artifact,
			CaseID:   caseID,
			Input:    tc.Input,
			Limits:   limits,
		})
		if err != nil {
			return outcome{}, err
		}
		if !runRes.OK() {
			res, completed = failed(runRes, caseID), false
			break
		}
		if cmp := comparator.Compare(tc.ExpectedOutput, runRes.Stdout); !cmp.Match {
			res = outcome{verdict: model.VerdictWrongAnswer, diagnostic: cmp.Report, failedCase: &caseID}
			completed = false
			break
		}
	}
	if completed {
		res = outcome{verdict: model.VerdictAccepted}
	}
	return res, nil
}

// failed classifies a non-zero compile or run exit.
func failed(res result.RunResult, caseID int64) outcome {
	if res.IsTimeout() {
		return outcome{verdict: model.VerdictTimeLimitExceeded, diagnostic: result.TimeoutMessage, failedCase: &caseID}
	}
	return outcome{verdict: model.VerdictRuntimeError, diagnostic: res.Stderr, failedCase: &caseID}
}

// analyze attaches bug hints to failed runs and a similarity match to accepted
// sources. Its failures are logged and never change the verdict.
func (s *Service) analyze(ctx context.Context, session repository.Session, sub *model.Submission, res *outcome) {
	cfg := s.settings.Analysis
	switch res.verdict {
	case model.VerdictWrongAnswer, model.VerdictRuntimeError:
		if !cfg.BugHints || res.failedCase == nil || res.compileFailed {
			return
		}
		if findings := analysis.DetectBugs(sub.Language, sub.SourceCode); len(findings) > 0 {
			res.bugAnalysis = model.Truncate(analysis.FormatFindings(findings), model.MaxDiagnosticLength)
			logger.Debug(ctx, "bug hints attached", zap.Int("findings", len(findings)))
		}
	case model.VerdictAccepted:
		if !cfg.Similarity {
			return
		}
		refs, err := session.ListReferenceSources(ctx, sub.ProblemID, sub.Language, sub.ID, cfg.SimilarityWindow)
		if err != nil {
			logger.Warn(ctx, "load similarity references failed", zap.Error(err))
			return
		}
		match, ok := analysis.BestMatch(sub.Language, sub.SourceCode, refs, cfg.SimilarityThreshold)
		if !ok {
			return
		}
		res.similarity = &match
		logger.Info(ctx, "similar source found",
			zap.String("reference_kind", string(match.Kind)),
			zap.Int64("reference_id", match.ID),
			zap.Float64("score", match.Score),
		)
	}
}

// handleWriteError drops the job when another writer already moved the row on.
func (s *Service) handleWriteError(ctx context.Context, err error) error {
	if appErr.Is(err, appErr.VerdictTransitionDeny) {
		logger.Warn(ctx, "verdict changed concurrently, job dropped", zap.Error(err))
		s.metrics.ObserveAnomaly(metrics.AnomalyStaleJob)
		return nil
	}
	return err
}

// finish feeds the optional side channels. Their failures never change the verdict.
func (s *Service) finish(ctx context.Context, sub *model.Submission, res outcome) {
	s.metrics.ObserveVerdict(sub.Language, res.verdict)

	if s.archive != nil && s.settings.ArchiveDiagnostics && res.verdict != model.VerdictAccepted && res.diagnostic != "" {
		actx, cancel := context.WithTimeout(ctx, s.settings.SideChannelTimeout)
		key, err := s.archive.SaveDiagnostic(actx, sub.ID, res.diagnostic)
		cancel()
		if err != nil {
			logger.Warn(ctx, "archive diagnostic failed", zap.Error(err))
		} else {
			logger.Debug(ctx, "diagnostic archived", zap.String("key", key))
		}
	}

	if s.publisher != nil {
		pctx, cancel := context.WithTimeout(ctx, s.settings.SideChannelTimeout)
		err := s.publisher.PublishVerdict(pctx, model.VerdictEvent{
			SubmissionID: sub.ID,
			ProblemID:    sub.ProblemID,
			UserID:       sub.UserID,
			Language:     sub.Language,
			Verdict:      res.verdict,
			FailedCaseID: res.failedCase,
			FinishedAt:   s.now().UTC(),
		})
		cancel()
		if err != nil {
			logger.Warn(ctx, "publish verdict event failed", zap.Error(err))
		}
	}
}
