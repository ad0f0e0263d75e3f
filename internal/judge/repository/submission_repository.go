package repository

import (
	"context"
	"database/sql"
	"time"

	"ojengine/internal/common/db"
	"ojengine/internal/judge/model"
	appErr "ojengine/pkg/errors"
)

// Store hands out storage sessions, one per judged submission.
type Store interface {
	Open(ctx context.Context) (Session, error)
}

// Session is a scoped storage handle. Close must be called on every path.
type Session interface {
	// GetSubmission returns nil without error when the row does not exist.
	GetSubmission(ctx context.Context, id int64) (*model.Submission, error)
	// GetProblem returns nil without error when the row does not exist.
	GetProblem(ctx context.Context, id int64) (*model.Problem, error)
	// ListTestCases returns the problem's test cases in ascending id order.
	ListTestCases(ctx context.Context, problemID int64) ([]model.TestCase, error)
	// UpdateVerdict commits one transition. It fails with VerdictTransitionDeny when
	// the row no longer holds update.From.
	UpdateVerdict(ctx context.Context, update model.VerdictUpdate) error
	// ListReferenceSources returns up to limit of the newest accepted submissions of
	// the problem in language, excluding excludeID, followed by every external
	// solution for the same problem and language.
	ListReferenceSources(ctx context.Context, problemID int64, language string, excludeID int64, limit int) ([]model.ReferenceSource, error)
	Close() error
}

const (
	submissionColumns = "id, user_id, problem_id, language, source_code, verdict, time_ms, memory_kb, stderr, failed_case_id, bug_analysis, similarity_score, similar_submission_id, similar_solution_id, created_at, updated_at"

	getSubmissionQuery = "SELECT " + submissionColumns + " FROM submissions WHERE id = ?"
	getProblemQuery    = "SELECT id, title, time_limit_ms, memory_limit_mb FROM problems WHERE id = ?"
	listTestCasesQuery = "SELECT id, problem_id, input, expected_output, is_hidden FROM testcases WHERE problem_id = ? ORDER BY id ASC"
	updateVerdictQuery = "UPDATE submissions SET verdict = ?, stderr = ?, failed_case_id = ?, updated_at = ?, " +
		"bug_analysis = ?, similarity_score = ?, similar_submission_id = ?, similar_solution_id = ? WHERE id = ? AND verdict = ?"

	listAcceptedSourcesQuery = "SELECT id, source_code FROM submissions " +
		"WHERE problem_id = ? AND language = ? AND verdict = ? AND id <> ? ORDER BY created_at DESC, id DESC LIMIT ?"
	listExternalSolutionsQuery = "SELECT id, source_code FROM external_solutions WHERE problem_id = ? AND language = ? ORDER BY id ASC"
)

// maxWriteAttempts bounds retries of a verdict write that lost a deadlock.
const maxWriteAttempts = 3

// SQLStore opens sessions on a pooled relational database.
type SQLStore struct {
	db  db.Database
	now func() time.Time
}

// NewSQLStore creates a store on database.
func NewSQLStore(database db.Database) *SQLStore {
	return &SQLStore{db: database, now: time.Now}
}

// Open pins one connection for the lifetime of the session.
func (s *SQLStore) Open(ctx context.Context) (Session, error) {
	if s == nil || s.db == nil {
		return nil, appErr.New(appErr.ServiceUnavailable).WithMessage("database is not configured")
	}
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "open storage session failed")
	}
	return &SQLSession{conn: conn, now: s.now}, nil
}

// Ping checks the database.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// GetSubmission reads one submission outside a session, for read-only views.
func (s *SQLStore) GetSubmission(ctx context.Context, id int64) (*model.Submission, error) {
	return getSubmission(ctx, s.db, id)
}

// SQLSession implements Session on a pinned connection.
type SQLSession struct {
	conn db.Conn
	now  func() time.Time
}

// NewSQLSession wraps an already acquired connection.
func NewSQLSession(conn db.Conn) *SQLSession {
	return &SQLSession{conn: conn, now: time.Now}
}

func (s *SQLSession) GetSubmission(ctx context.Context, id int64) (*model.Submission, error) {
	return getSubmission(ctx, s.conn, id)
}

func (s *SQLSession) GetProblem(ctx context.Context, id int64) (*model.Problem, error) {
	var (
		p      model.Problem
		timeMs sql.NullInt64
		memMB  sql.NullInt64
	)
	err := s.conn.QueryRow(ctx, getProblemQuery, id).Scan(&p.ID, &p.Title, &timeMs, &memMB)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, nil
		}
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "get problem %d failed", id)
	}
	p.TimeLimitMs = nullableInt(timeMs)
	p.MemoryLimitMB = nullableInt(memMB)
	return &p, nil
}

func (s *SQLSession) ListTestCases(ctx context.Context, problemID int64) ([]model.TestCase, error) {
	rows, err := s.conn.Query(ctx, listTestCasesQuery, problemID)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "list test cases of problem %d failed", problemID)
	}
	defer rows.Close()

	var cases []model.TestCase
	for rows.Next() {
		var tc model.TestCase
		if err := rows.Scan(&tc.ID, &tc.ProblemID, &tc.Input, &tc.ExpectedOutput, &tc.Hidden); err != nil {
			return nil, appErr.Wrapf(err, appErr.DatabaseError, "scan test case failed")
		}
		cases = append(cases, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "iterate test cases failed")
	}
	return cases, nil
}

func (s *SQLSession) UpdateVerdict(ctx context.Context, update model.VerdictUpdate) error {
	if !update.From.CanTransition(update.To) {
		return appErr.Newf(appErr.VerdictTransitionDeny, "verdict %s -> %s not allowed", update.From, update.To)
	}
	var failed interface{}
	if update.FailedCaseID != nil {
		failed = *update.FailedCaseID
	}
	var bugAnalysis, score, similarSubmission, similarSolution interface{}
	if update.BugAnalysis != "" {
		bugAnalysis = model.Truncate(update.BugAnalysis, model.MaxDiagnosticLength)
	}
	if m := update.Similarity; m != nil {
		score = m.Score
		if m.Kind == model.ReferenceExternal {
			similarSolution = m.ID
		} else {
			similarSubmission = m.ID
		}
	}
	var (
		res db.Result
		err error
	)
	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		res, err = s.conn.Exec(ctx, updateVerdictQuery,
			update.To.Code(),
			model.Truncate(update.Diagnostic, model.MaxDiagnosticLength),
			failed,
			s.now().UTC(),
			bugAnalysis,
			score,
			similarSubmission,
			similarSolution,
			update.SubmissionID,
			update.From.Code(),
		)
		if err == nil || !db.IsDeadlock(err) {
			break
		}
	}
	if err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "update verdict of submission %d failed", update.SubmissionID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "read affected rows failed")
	}
	if n == 0 {
		return appErr.Newf(appErr.VerdictTransitionDeny, "submission %d is no longer %s", update.SubmissionID, update.From)
	}
	return nil
}

func (s *SQLSession) ListReferenceSources(ctx context.Context, problemID int64, language string, excludeID int64, limit int) ([]model.ReferenceSource, error) {
	var refs []model.ReferenceSource
	if limit > 0 {
		accepted, err := s.listSources(ctx, model.ReferenceSubmission, listAcceptedSourcesQuery,
			problemID, language, model.VerdictAccepted.Code(), excludeID, limit)
		if err != nil {
			return nil, err
		}
		refs = append(refs, accepted...)
	}
	external, err := s.listSources(ctx, model.ReferenceExternal, listExternalSolutionsQuery, problemID, language)
	if err != nil {
		return nil, err
	}
	return append(refs, external...), nil
}

func (s *SQLSession) listSources(ctx context.Context, kind model.ReferenceKind, query string, args ...interface{}) ([]model.ReferenceSource, error) {
	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "list %s references failed", kind)
	}
	defer rows.Close()

	var refs []model.ReferenceSource
	for rows.Next() {
		ref := model.ReferenceSource{Kind: kind}
		if err := rows.Scan(&ref.ID, &ref.SourceCode); err != nil {
			return nil, appErr.Wrapf(err, appErr.DatabaseError, "scan %s reference failed", kind)
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "iterate %s references failed", kind)
	}
	return refs, nil
}

// Close releases the pinned connection.
func (s *SQLSession) Close() error {
	return s.conn.Close()
}

func getSubmission(ctx context.Context, q db.Querier, id int64) (*model.Submission, error) {
	var (
		sub      model.Submission
		verdict  string
		timeMs   sql.NullInt64
		memoryKB sql.NullInt64
		stderr   sql.NullString
		failed   sql.NullInt64
		analysis sql.NullString
		score    sql.NullFloat64
		simSub   sql.NullInt64
		simExt   sql.NullInt64
	)
	err := q.QueryRow(ctx, getSubmissionQuery, id).Scan(
		&sub.ID, &sub.UserID, &sub.ProblemID, &sub.Language, &sub.SourceCode, &verdict,
		&timeMs, &memoryKB, &stderr, &failed, &analysis, &score, &simSub, &simExt, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, nil
		}
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "get submission %d failed", id)
	}
	v, err := model.ParseVerdict(verdict)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.InvalidVerdict, "submission %d has verdict %q", id, verdict)
	}
	sub.Verdict = v
	sub.TimeMs = nullableInt(timeMs)
	sub.MemoryKB = nullableInt(memoryKB)
	sub.Diagnostic = stderr.String
	sub.FailedCaseID = nullableInt(failed)
	sub.BugAnalysis = analysis.String
	if score.Valid {
		match := &model.SimilarityMatch{Score: score.Float64}
		switch {
		case simSub.Valid:
			match.Kind, match.ID = model.ReferenceSubmission, simSub.Int64
		case simExt.Valid:
			match.Kind, match.ID = model.ReferenceExternal, simExt.Int64
		}
		sub.Similarity = match
	}
	return &sub, nil
}

func nullableInt(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}
