package model

import "time"

// Submission is one user program submitted against a problem.
type Submission struct {
	ID         int64
	UserID     int64
	ProblemID  int64
	Language   string
	SourceCode string
	Verdict    Verdict

	// TimeMs and MemoryKB are reserved columns; the judge never fills them.
	TimeMs   *int64
	MemoryKB *int64

	// Diagnostic holds at most MaxDiagnosticLength characters (stored as "stderr").
	Diagnostic   string
	FailedCaseID *int64

	// BugAnalysis holds heuristic hints for failed runs; Similarity is set for
	// accepted sources that closely match an earlier one.
	BugAnalysis string
	Similarity  *SimilarityMatch

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Problem carries the judge-relevant part of a problem row.
type Problem struct {
	ID            int64
	Title         string
	TimeLimitMs   *int64
	MemoryLimitMB *int64
}

// TestCase is one input/expected-output pair.
type TestCase struct {
	ID             int64
	ProblemID      int64
	Input          string
	ExpectedOutput string
	Hidden         bool
}

// VerdictUpdate is the set of status fields written by one transition.
type VerdictUpdate struct {
	SubmissionID int64
	From         Verdict
	To           Verdict
	Diagnostic   string
	FailedCaseID *int64
	BugAnalysis  string
	Similarity   *SimilarityMatch
}

// ReferenceKind tells where a reference source came from.
type ReferenceKind string

const (
	ReferenceSubmission ReferenceKind = "submission"
	ReferenceExternal   ReferenceKind = "external"
)

// ReferenceSource is an earlier solution an accepted submission is compared with.
type ReferenceSource struct {
	Kind       ReferenceKind
	ID         int64
	SourceCode string
}

// SimilarityMatch is the closest reference above the configured threshold.
type SimilarityMatch struct {
	Score float64
	Kind  ReferenceKind
	ID    int64
}
