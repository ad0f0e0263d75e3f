package service

import (
	"time"

	"ojengine/internal/judge/model"
	"ojengine/internal/judge/repository"
	"ojengine/internal/judge/sandbox/profile"
	"ojengine/internal/judge/sandbox/runner"
)

// Settings are the judge-wide values resolved once at startup.
type Settings struct {
	// DefaultLimits apply when a problem has no positive limits of its own.
	DefaultLimits model.Limits
	// ArchiveDiagnostics uploads the untruncated diagnostic of non-accepted verdicts.
	ArchiveDiagnostics bool
	// SideChannelTimeout bounds archive uploads and event publishing. Default: 5s
	SideChannelTimeout time.Duration
	// Analysis configures the source checks run before the terminal write.
	Analysis AnalysisSettings
}

// AnalysisSettings switch the post-verdict source checks.
type AnalysisSettings struct {
	// BugHints attaches heuristic findings to WA and RE verdicts of supported languages.
	BugHints bool
	// Similarity compares accepted sources with earlier accepted ones and external solutions.
	Similarity bool
	// SimilarityThreshold is the score a match must exceed. Default: 0.8
	SimilarityThreshold float64
	// SimilarityWindow is how many earlier accepted submissions are compared. Default: 10
	SimilarityWindow int
}

// Config holds service dependencies and settings.
type Config struct {
	Store     repository.Store
	Runner    runner.Runner
	Languages profile.Repository
	Settings  Settings

	// Optional collaborators.
	Metrics   Metrics
	Archive   repository.DiagnosticArchive
	Publisher repository.VerdictEventPublisher
}

// Metrics receives judge outcomes. *metrics.Recorder implements it.
type Metrics interface {
	ObserveVerdict(language string, v model.Verdict)
	ObserveAnomaly(kind string)
	ObserveJob(result string)
}

type noopMetrics struct{}

func (noopMetrics) ObserveVerdict(string, model.Verdict) {}
func (noopMetrics) ObserveAnomaly(string)                {}
func (noopMetrics) ObserveJob(string)                    {}
