package model

import (
	"encoding/json"
	"strings"
	"testing"
)

var allVerdicts = []Verdict{
	VerdictPending,
	VerdictJudging,
	VerdictAccepted,
	VerdictWrongAnswer,
	VerdictTimeLimitExceeded,
	VerdictRuntimeError,
}

func TestVerdictCodes(t *testing.T) {
	t.Parallel()
	want := map[Verdict]string{
		VerdictPending:           "PD",
		VerdictJudging:           "RJ",
		VerdictAccepted:          "AC",
		VerdictWrongAnswer:       "WA",
		VerdictTimeLimitExceeded: "TLE",
		VerdictRuntimeError:      "RE",
	}
	for _, v := range allVerdicts {
		if v.Code() != want[v] {
			t.Fatalf("%s: code %q, want %q", v, v.Code(), want[v])
		}
		parsed, err := ParseVerdict(v.Code())
		if err != nil || parsed != v {
			t.Fatalf("ParseVerdict(%q) = %v, %v", v.Code(), parsed, err)
		}
	}
	if _, err := ParseVerdict("CE"); err == nil {
		t.Fatalf("expected unknown code to fail")
	}
}

func TestVerdictTransitions(t *testing.T) {
	t.Parallel()
	for _, from := range allVerdicts {
		for _, to := range allVerdicts {
			got := from.CanTransition(to)
			want := (from == VerdictPending && to == VerdictJudging) ||
				(from == VerdictJudging && to.IsTerminal())
			if got != want {
				t.Fatalf("CanTransition(%s -> %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestVerdictTerminal(t *testing.T) {
	t.Parallel()
	if VerdictPending.IsTerminal() || VerdictJudging.IsTerminal() {
		t.Fatalf("pending/judging must not be terminal")
	}
	for _, v := range []Verdict{VerdictAccepted, VerdictWrongAnswer, VerdictTimeLimitExceeded, VerdictRuntimeError} {
		if !v.IsTerminal() {
			t.Fatalf("%s should be terminal", v)
		}
	}
}

func TestVerdictJSON(t *testing.T) {
	t.Parallel()
	data, err := json.Marshal(VerdictEvent{SubmissionID: 1, Verdict: VerdictTimeLimitExceeded})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if !strings.Contains(string(data), `"verdict":"TLE"`) {
		t.Fatalf("unexpected json: %s", data)
	}
	var ev VerdictEvent
	if err := json.Unmarshal(data, &ev); err != nil || ev.Verdict != VerdictTimeLimitExceeded {
		t.Fatalf("unmarshal: %v %v", ev.Verdict, err)
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()
	long := strings.Repeat("x", 6000)
	if got := Truncate(long, MaxDiagnosticLength); len(got) != 5000 {
		t.Fatalf("expected 5000 chars, got %d", len(got))
	}
	if got := Truncate("short", MaxDiagnosticLength); got != "short" {
		t.Fatalf("unexpected %q", got)
	}
	multi := strings.Repeat("é", 10)
	if got := Truncate(multi, 4); got != "éééé" {
		t.Fatalf("rune truncation broken: %q", got)
	}
	if got := Truncate("abc", 0); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
}

func TestResolveLimits(t *testing.T) {
	t.Parallel()
	defaults := Limits{TimeLimitMs: 2000, MemoryLimitMB: 256}
	tl, ml := int64(1500), int64(0)

	got := ResolveLimits(&Problem{TimeLimitMs: &tl, MemoryLimitMB: &ml}, defaults)
	if got.TimeLimitMs != 1500 || got.MemoryLimitMB != 256 {
		t.Fatalf("unexpected limits: %+v", got)
	}
	got = ResolveLimits(&Problem{}, defaults)
	if got != defaults {
		t.Fatalf("expected defaults, got %+v", got)
	}
	got = ResolveLimits(nil, Limits{})
	if got.TimeLimitMs != DefaultTimeLimitMs || got.MemoryLimitMB != DefaultMemoryLimitMB {
		t.Fatalf("expected built-in defaults, got %+v", got)
	}
}

func TestDecodeJudgeMessage(t *testing.T) {
	t.Parallel()
	cases := []struct {
		body string
		id   int64
		ok   bool
	}{
		{`{"submission_id":12}`, 12, true},
		{` 34 `, 34, true},
		{`{"submission_id":0}`, 0, false},
		{`-1`, 0, false},
		{`hello`, 0, false},
		{``, 0, false},
	}
	for _, tc := range cases {
		msg, err := DecodeJudgeMessage([]byte(tc.body))
		if tc.ok && (err != nil || msg.SubmissionID != tc.id) {
			t.Fatalf("DecodeJudgeMessage(%q) = %+v, %v", tc.body, msg, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("DecodeJudgeMessage(%q) expected error", tc.body)
		}
	}
}
