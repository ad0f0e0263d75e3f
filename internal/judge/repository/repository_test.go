package repository

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"ojengine/internal/common/db"
	"ojengine/internal/common/mq"
	"ojengine/internal/common/storage"
	"ojengine/internal/judge/model"
	appErr "ojengine/pkg/errors"

	"github.com/go-sql-driver/mysql"
)

type execCall struct {
	query string
	args  []interface{}
}

// fakeConn answers queries from scripted rows keyed by query text.
type fakeConn struct {
	rows     map[string][][]interface{}
	affected int64
	execs    []execCall
	queries  []execCall
	closed   bool
}

func (c *fakeConn) Query(ctx context.Context, query string, args ...interface{}) (db.Rows, error) {
	c.queries = append(c.queries, execCall{query: query, args: args})
	return &fakeRows{data: c.rows[query], idx: -1}, nil
}

func (c *fakeConn) QueryRow(ctx context.Context, query string, args ...interface{}) db.Row {
	data := c.rows[query]
	if len(data) == 0 {
		return fakeRow{err: fmt.Errorf("scan failed: %w", sql.ErrNoRows)}
	}
	return fakeRow{values: data[0]}
}

func (c *fakeConn) Exec(ctx context.Context, query string, args ...interface{}) (db.Result, error) {
	c.execs = append(c.execs, execCall{query: query, args: args})
	return fakeResult(c.affected), nil
}

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

type fakeResult int64

func (r fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r fakeResult) RowsAffected() (int64, error) { return int64(r), nil }

type fakeRow struct {
	values []interface{}
	err    error
}

func (r fakeRow) Scan(dest ...interface{}) error {
	if r.err != nil {
		return r.err
	}
	return scanInto(r.values, dest)
}

type fakeRows struct {
	data [][]interface{}
	idx  int
}

func (r *fakeRows) Next() bool {
	r.idx++
	return r.idx < len(r.data)
}

func (r *fakeRows) Scan(dest ...interface{}) error { return scanInto(r.data[r.idx], dest) }
func (r *fakeRows) Close() error                   { return nil }
func (r *fakeRows) Err() error                     { return nil }

func scanInto(values, dest []interface{}) error {
	if len(values) != len(dest) {
		return fmt.Errorf("expected %d columns, got %d", len(dest), len(values))
	}
	for i, d := range dest {
		if s, ok := d.(sql.Scanner); ok {
			if err := s.Scan(values[i]); err != nil {
				return err
			}
			continue
		}
		switch p := d.(type) {
		case *int64:
			*p = values[i].(int64)
		case *string:
			*p = values[i].(string)
		case *bool:
			*p = values[i].(bool)
		case *time.Time:
			*p = values[i].(time.Time)
		default:
			return fmt.Errorf("unsupported dest %T", d)
		}
	}
	return nil
}

func newSession(conn *fakeConn) *SQLSession {
	s := NewSQLSession(conn)
	s.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	return s
}

func TestGetSubmission(t *testing.T) {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	conn := &fakeConn{rows: map[string][][]interface{}{
		getSubmissionQuery: {{int64(7), int64(1), int64(3), "cpp", "int main(){}", "WA", nil, nil, "Line 1: expected=<3> actual=<4>", int64(11), nil, nil, nil, nil, created, created}},
	}}
	sub, err := newSession(conn).GetSubmission(context.Background(), 7)
	if err != nil {
		t.Fatalf("get submission: %v", err)
	}
	if sub.Verdict != model.VerdictWrongAnswer || sub.FailedCaseID == nil || *sub.FailedCaseID != 11 {
		t.Fatalf("unexpected submission: %+v", sub)
	}
	if sub.TimeMs != nil || sub.MemoryKB != nil {
		t.Fatalf("reserved fields must stay nil")
	}
	if sub.Diagnostic != "Line 1: expected=<3> actual=<4>" {
		t.Fatalf("unexpected diagnostic %q", sub.Diagnostic)
	}
	if sub.BugAnalysis != "" || sub.Similarity != nil {
		t.Fatalf("analysis columns must stay empty: %+v", sub)
	}
}

func TestGetSubmissionAnalysisColumns(t *testing.T) {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	conn := &fakeConn{rows: map[string][][]interface{}{
		getSubmissionQuery: {{int64(8), int64(1), int64(3), "cpp", "int main(){}", "AC", nil, nil, nil, nil,
			nil, float64(0.93), nil, int64(55), created, created}},
	}}
	sub, err := newSession(conn).GetSubmission(context.Background(), 8)
	if err != nil {
		t.Fatalf("get submission: %v", err)
	}
	if sub.Similarity == nil || sub.Similarity.Kind != model.ReferenceExternal || sub.Similarity.ID != 55 || sub.Similarity.Score != 0.93 {
		t.Fatalf("unexpected similarity: %+v", sub.Similarity)
	}
}

func TestMissingRowsReturnNil(t *testing.T) {
	s := newSession(&fakeConn{})
	sub, err := s.GetSubmission(context.Background(), 1)
	if err != nil || sub != nil {
		t.Fatalf("expected nil submission, got %+v %v", sub, err)
	}
	p, err := s.GetProblem(context.Background(), 1)
	if err != nil || p != nil {
		t.Fatalf("expected nil problem, got %+v %v", p, err)
	}
}

func TestUnknownVerdictCode(t *testing.T) {
	now := time.Now()
	conn := &fakeConn{rows: map[string][][]interface{}{
		getSubmissionQuery: {{int64(7), int64(1), int64(3), "cpp", "", "XX", nil, nil, nil, nil, nil, nil, nil, nil, now, now}},
	}}
	_, err := newSession(conn).GetSubmission(context.Background(), 7)
	if appErr.GetCode(err) != appErr.InvalidVerdict {
		t.Fatalf("expected InvalidVerdict, got %v", err)
	}
}

func TestGetProblemNullLimits(t *testing.T) {
	conn := &fakeConn{rows: map[string][][]interface{}{
		getProblemQuery: {{int64(3), "A+B", nil, int64(64)}},
	}}
	p, err := newSession(conn).GetProblem(context.Background(), 3)
	if err != nil {
		t.Fatalf("get problem: %v", err)
	}
	if p.TimeLimitMs != nil || p.MemoryLimitMB == nil || *p.MemoryLimitMB != 64 {
		t.Fatalf("unexpected problem: %+v", p)
	}
}

func TestListTestCases(t *testing.T) {
	conn := &fakeConn{rows: map[string][][]interface{}{
		listTestCasesQuery: {
			{int64(1), int64(3), "1 2", "3", false},
			{int64(2), int64(3), "5 5", "10", true},
		},
	}}
	cases, err := newSession(conn).ListTestCases(context.Background(), 3)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(cases) != 2 || cases[0].ID != 1 || cases[1].ExpectedOutput != "10" || !cases[1].Hidden {
		t.Fatalf("unexpected cases: %+v", cases)
	}
	if !strings.Contains(listTestCasesQuery, "ORDER BY id ASC") {
		t.Fatalf("test cases must be ordered by id")
	}
}

func TestUpdateVerdict(t *testing.T) {
	conn := &fakeConn{affected: 1}
	s := newSession(conn)
	failed := int64(4)
	long := strings.Repeat("x", model.MaxDiagnosticLength+10)

	err := s.UpdateVerdict(context.Background(), model.VerdictUpdate{
		SubmissionID: 9, From: model.VerdictJudging, To: model.VerdictRuntimeError,
		Diagnostic: long, FailedCaseID: &failed,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(conn.execs) != 1 {
		t.Fatalf("expected one write, got %d", len(conn.execs))
	}
	args := conn.execs[0].args
	if args[0] != "RE" || args[2] != int64(4) || args[8] != int64(9) || args[9] != "RJ" {
		t.Fatalf("unexpected args: %v", args)
	}
	if n := len(args[1].(string)); n != model.MaxDiagnosticLength {
		t.Fatalf("diagnostic not truncated: %d", n)
	}
	if !args[3].(time.Time).Equal(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)) {
		t.Fatalf("updated_at not bumped: %v", args[3])
	}
	for i := 4; i < 8; i++ {
		if args[i] != nil {
			t.Fatalf("analysis column %d must be NULL, got %v", i, args[i])
		}
	}
}

func TestUpdateVerdictAnalysis(t *testing.T) {
	conn := &fakeConn{affected: 1}
	s := newSession(conn)

	err := s.UpdateVerdict(context.Background(), model.VerdictUpdate{
		SubmissionID: 9, From: model.VerdictJudging, To: model.VerdictAccepted,
		Similarity: &model.SimilarityMatch{Score: 0.9, Kind: model.ReferenceSubmission, ID: 3},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	args := conn.execs[0].args
	if args[4] != nil || args[5] != 0.9 || args[6] != int64(3) || args[7] != nil {
		t.Fatalf("unexpected similarity args: %v", args[4:8])
	}

	err = s.UpdateVerdict(context.Background(), model.VerdictUpdate{
		SubmissionID: 10, From: model.VerdictJudging, To: model.VerdictWrongAnswer,
		BugAnalysis: "Potential Infinite Loop at line 3:",
		Similarity:  &model.SimilarityMatch{Score: 0.85, Kind: model.ReferenceExternal, ID: 7},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	args = conn.execs[1].args
	if args[4] != "Potential Infinite Loop at line 3:" || args[6] != nil || args[7] != int64(7) {
		t.Fatalf("unexpected analysis args: %v", args[4:8])
	}
}

func TestListReferenceSources(t *testing.T) {
	conn := &fakeConn{rows: map[string][][]interface{}{
		listAcceptedSourcesQuery:   {{int64(4), "int main(){return 0;}"}, {int64(2), "int main(){}"}},
		listExternalSolutionsQuery: {{int64(1), "// editorial"}},
	}}
	refs, err := newSession(conn).ListReferenceSources(context.Background(), 3, "cpp", 9, 10)
	if err != nil {
		t.Fatalf("list references: %v", err)
	}
	if len(refs) != 3 {
		t.Fatalf("expected 3 references, got %+v", refs)
	}
	if refs[0].Kind != model.ReferenceSubmission || refs[0].ID != 4 || refs[2].Kind != model.ReferenceExternal || refs[2].ID != 1 {
		t.Fatalf("unexpected references: %+v", refs)
	}
	if len(conn.queries) != 2 {
		t.Fatalf("expected two queries, got %d", len(conn.queries))
	}
	args := conn.queries[0].args
	if args[2] != "AC" || args[3] != int64(9) || args[4] != 10 {
		t.Fatalf("unexpected accepted query args: %v", args)
	}

	conn.queries = nil
	refs, err = newSession(conn).ListReferenceSources(context.Background(), 3, "cpp", 9, 0)
	if err != nil || len(refs) != 1 || len(conn.queries) != 1 {
		t.Fatalf("zero window must only read external solutions: %+v %v", refs, err)
	}
}

func TestUpdateVerdictNullFailedCase(t *testing.T) {
	conn := &fakeConn{affected: 1}
	err := newSession(conn).UpdateVerdict(context.Background(), model.VerdictUpdate{
		SubmissionID: 9, From: model.VerdictPending, To: model.VerdictJudging,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if conn.execs[0].args[2] != nil {
		t.Fatalf("failed case must be NULL, got %v", conn.execs[0].args[2])
	}
}

func TestUpdateVerdictRejectsRegression(t *testing.T) {
	conn := &fakeConn{affected: 1}
	s := newSession(conn)
	err := s.UpdateVerdict(context.Background(), model.VerdictUpdate{SubmissionID: 1, From: model.VerdictAccepted, To: model.VerdictJudging})
	if appErr.GetCode(err) != appErr.VerdictTransitionDeny {
		t.Fatalf("expected transition deny, got %v", err)
	}
	if len(conn.execs) != 0 {
		t.Fatalf("rejected transition must not write")
	}

	conn.affected = 0
	err = s.UpdateVerdict(context.Background(), model.VerdictUpdate{SubmissionID: 1, From: model.VerdictJudging, To: model.VerdictAccepted})
	if appErr.GetCode(err) != appErr.VerdictTransitionDeny {
		t.Fatalf("expected transition deny on lost race, got %v", err)
	}
}

func TestSessionClose(t *testing.T) {
	conn := &fakeConn{}
	if err := newSession(conn).Close(); err != nil || !conn.closed {
		t.Fatalf("close did not release the connection")
	}
}

type fakeProducer struct {
	topic string
	msgs  []*mq.Message
	err   error
}

func (p *fakeProducer) Publish(ctx context.Context, topic string, message *mq.Message) error {
	if p.err != nil {
		return p.err
	}
	p.topic = topic
	p.msgs = append(p.msgs, message)
	return nil
}

func TestPublishVerdict(t *testing.T) {
	producer := &fakeProducer{}
	pub := NewMQVerdictEventPublisher(producer, "judge.verdicts")
	failed := int64(2)
	event := model.VerdictEvent{SubmissionID: 5, ProblemID: 1, Language: "cpp", Verdict: model.VerdictTimeLimitExceeded, FailedCaseID: &failed}

	if err := pub.PublishVerdict(context.Background(), event); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if producer.topic != "judge.verdicts" || len(producer.msgs) != 1 || producer.msgs[0].ID != "5" {
		t.Fatalf("unexpected publish: %s %+v", producer.topic, producer.msgs)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(producer.msgs[0].Body, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded["verdict"] != "TLE" {
		t.Fatalf("verdict encoded as %v", decoded["verdict"])
	}

	event.Verdict = model.VerdictJudging
	if err := pub.PublishVerdict(context.Background(), event); appErr.GetCode(err) != appErr.InvalidVerdict {
		t.Fatalf("non-terminal verdict must be rejected, got %v", err)
	}

	producer.err = fmt.Errorf("broker down")
	event.Verdict = model.VerdictAccepted
	if err := pub.PublishVerdict(context.Background(), event); appErr.GetCode(err) != appErr.QueuePublishFailed {
		t.Fatalf("expected publish failure code, got %v", err)
	}
}

type memoryStorage struct {
	objects map[string][]byte
	opts    map[string]storage.PutOptions
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{objects: map[string][]byte{}, opts: map[string]storage.PutOptions{}}
}

func (m *memoryStorage) PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, opts storage.PutOptions) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if size >= 0 && int64(len(data)) != size {
		return fmt.Errorf("size mismatch")
	}
	m.objects[bucket+"/"+key] = data
	m.opts[bucket+"/"+key] = opts
	return nil
}

func (m *memoryStorage) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	data, ok := m.objects[bucket+"/"+key]
	if !ok {
		return nil, fmt.Errorf("no such key")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memoryStorage) StatObject(ctx context.Context, bucket, key string) (storage.ObjectStat, error) {
	data, ok := m.objects[bucket+"/"+key]
	if !ok {
		return storage.ObjectStat{}, fmt.Errorf("no such key")
	}
	return storage.ObjectStat{SizeBytes: int64(len(data))}, nil
}

func (m *memoryStorage) EnsureBucket(ctx context.Context, bucket string) error { return nil }

func TestArtifactStoreRoundTrip(t *testing.T) {
	mem := newMemoryStorage()
	store := NewArtifactStore(mem, "judge", "/diagnostics/")
	diagnostic := strings.Repeat("segfault at 0x0\n", 1000)

	key, err := store.SaveDiagnostic(context.Background(), 42, diagnostic)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if key != "diagnostics/42/diagnostic.txt.zst" {
		t.Fatalf("unexpected key %q", key)
	}
	stored := mem.objects["judge/"+key]
	if len(stored) == 0 || len(stored) >= len(diagnostic) {
		t.Fatalf("expected compressed object, got %d bytes", len(stored))
	}
	if mem.opts["judge/"+key].ContentEncoding != "zstd" {
		t.Fatalf("content encoding not set")
	}
	got, err := store.LoadDiagnostic(context.Background(), 42)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got != diagnostic {
		t.Fatalf("round trip mismatch")
	}
	if _, err := store.LoadDiagnostic(context.Background(), 43); appErr.GetCode(err) != appErr.NotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

type deadlockConn struct {
	fakeConn
	failures int
}

func (c *deadlockConn) Exec(ctx context.Context, query string, args ...interface{}) (db.Result, error) {
	if c.failures > 0 {
		c.failures--
		return nil, fmt.Errorf("exec failed: %w", &mysql.MySQLError{Number: 1213, Message: "Deadlock found"})
	}
	return c.fakeConn.Exec(ctx, query, args...)
}

func TestUpdateVerdictRetriesDeadlock(t *testing.T) {
	conn := &deadlockConn{fakeConn: fakeConn{affected: 1}, failures: 2}
	err := NewSQLSession(conn).UpdateVerdict(context.Background(), model.VerdictUpdate{SubmissionID: 1, From: model.VerdictPending, To: model.VerdictJudging})
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if len(conn.execs) != 1 {
		t.Fatalf("expected one successful write, got %d", len(conn.execs))
	}

	conn = &deadlockConn{fakeConn: fakeConn{affected: 1}, failures: 5}
	err = NewSQLSession(conn).UpdateVerdict(context.Background(), model.VerdictUpdate{SubmissionID: 1, From: model.VerdictPending, To: model.VerdictJudging})
	if appErr.GetCode(err) != appErr.DatabaseError {
		t.Fatalf("expected database error after retries, got %v", err)
	}
}
