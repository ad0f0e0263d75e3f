package runner

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"ojengine/internal/judge/model"
	"ojengine/internal/judge/sandbox/profile"
	"ojengine/internal/judge/sandbox/result"
	"ojengine/internal/judge/sandbox/spec"
)

// fakeEngine records specs and lets tests script the container side.
type fakeEngine struct {
	mu    sync.Mutex
	specs []spec.RunSpec
	run   func(rs spec.RunSpec) (result.RunResult, error)
}

func (f *fakeEngine) Run(ctx context.Context, rs spec.RunSpec) (result.RunResult, error) {
	f.mu.Lock()
	f.specs = append(f.specs, rs)
	f.mu.Unlock()
	if f.run != nil {
		return f.run(rs)
	}
	return result.RunResult{}, nil
}

func (f *fakeEngine) Ping(ctx context.Context) error { return nil }
func (f *fakeEngine) Close() error                   { return nil }

func cppSpec() profile.LanguageSpec {
	for _, l := range profile.DefaultLanguages() {
		if l.ID == "cpp" {
			return l
		}
	}
	panic("cpp missing")
}

func newTestRunner(t *testing.T, eng *fakeEngine) (*DefaultRunner, string) {
	t.Helper()
	root := t.TempDir()
	r, err := NewRunner(eng, Config{WorkRoot: root}, nil)
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	return r, root
}

func TestCompileThenRunUsesFreshDirectories(t *testing.T) {
	t.Parallel()
	eng := &fakeEngine{}
	eng.run = func(rs spec.RunSpec) (result.RunResult, error) {
		if rs.Cmd[2] == "g++ -O2 -std=c++17 Main.cpp -o Main" {
			// The compiler drops a binary next to the source.
			if err := os.WriteFile(filepath.Join(rs.HostDir, "Main"), []byte("bin"), 0o755); err != nil {
				return result.RunResult{}, err
			}
			return result.RunResult{}, nil
		}
		input, err := os.ReadFile(filepath.Join(rs.HostDir, "input.txt"))
		if err != nil {
			return result.RunResult{}, err
		}
		if _, err := os.Stat(filepath.Join(rs.HostDir, "Main")); err != nil {
			return result.RunResult{}, err
		}
		return result.RunResult{Stdout: strings.ToUpper(string(input))}, nil
	}
	r, root := newTestRunner(t, eng)
	ctx := context.Background()
	limits := model.Limits{TimeLimitMs: 1500, MemoryLimitMB: 128}

	art, res, err := r.Compile(ctx, CompileRequest{SubmissionID: 9, Language: cppSpec(), Source: "int main(){}", Limits: limits})
	if err != nil || art == nil || !res.OK() {
		t.Fatalf("compile: art=%v res=%+v err=%v", art, res, err)
	}
	src, err := os.ReadFile(filepath.Join(art.Dir, "Main.cpp"))
	if err != nil || string(src) != "int main(){}" {
		t.Fatalf("source not written: %q %v", src, err)
	}

	for i, in := range []string{"a", "b"} {
		out, err := r.Run(ctx, RunRequest{Artifact: art, CaseID: int64(i + 1), Input: in, Limits: limits})
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		if out.Stdout != strings.ToUpper(in) {
			t.Fatalf("unexpected stdout %q", out.Stdout)
		}
	}

	if len(eng.specs) != 3 {
		t.Fatalf("expected 1 compile + 2 runs, got %d", len(eng.specs))
	}
	dirs := map[string]bool{}
	for _, rs := range eng.specs {
		if dirs[rs.HostDir] {
			t.Fatalf("work dir reused: %s", rs.HostDir)
		}
		dirs[rs.HostDir] = true
		if rs.Image != "gcc:13" || rs.WorkDir != "/work" || rs.Limits.CPUs != 1.0 || rs.Limits.MemoryMB != 128 {
			t.Fatalf("unexpected spec: %+v", rs)
		}
		if rs.Limits.Timeout != 2*time.Second {
			t.Fatalf("timeout %v, want 2s", rs.Limits.Timeout)
		}
	}
	if got := strings.Join(eng.specs[1].Cmd, "|"); got != "bash|-lc|./Main < input.txt" {
		t.Fatalf("unexpected run command %q", got)
	}

	// Run directories are removed, the artifact stays until released.
	entries, _ := os.ReadDir(root)
	if len(entries) != 1 {
		t.Fatalf("expected only the artifact dir to remain, got %d entries", len(entries))
	}
	if err := art.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	entries, _ = os.ReadDir(root)
	if len(entries) != 0 {
		t.Fatalf("artifact dir not removed")
	}
}

func TestCompileFailureReturnsResult(t *testing.T) {
	t.Parallel()
	eng := &fakeEngine{run: func(rs spec.RunSpec) (result.RunResult, error) {
		return result.RunResult{ExitCode: 1, Stderr: "Main.cpp:1: error"}, nil
	}}
	r, root := newTestRunner(t, eng)

	art, res, err := r.Compile(context.Background(), CompileRequest{SubmissionID: 1, Language: cppSpec(), Source: "x", Limits: model.Limits{TimeLimitMs: 1000, MemoryLimitMB: 64}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if art != nil || res.ExitCode != 1 || res.Stderr != "Main.cpp:1: error" {
		t.Fatalf("unexpected compile outcome: art=%v res=%+v", art, res)
	}
	entries, _ := os.ReadDir(root)
	if len(entries) != 0 {
		t.Fatalf("failed compile dir not cleaned up")
	}
}

func TestCompileTimeLimitOverride(t *testing.T) {
	t.Parallel()
	eng := &fakeEngine{}
	r, _ := newTestRunner(t, eng)
	lang := cppSpec()
	lang.CompileTimeLimitMs = 10000

	art, _, err := r.Compile(context.Background(), CompileRequest{SubmissionID: 2, Language: lang, Source: "x", Limits: model.Limits{TimeLimitMs: 1000, MemoryLimitMB: 64}})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	defer art.Release()
	if eng.specs[0].Limits.Timeout != 11*time.Second {
		t.Fatalf("compile timeout %v, want 11s", eng.specs[0].Limits.Timeout)
	}
}

func TestNoCompileStep(t *testing.T) {
	t.Parallel()
	eng := &fakeEngine{}
	r, _ := newTestRunner(t, eng)
	lang := profile.LanguageSpec{ID: "py", Image: "python:3.12-slim", SourceFile: "main.py", RunCmdTpl: `bash -lc "python3 -u {src} < {input}"`}

	art, _, err := r.Compile(context.Background(), CompileRequest{SubmissionID: 3, Language: lang, Source: "print(1)", Limits: model.Limits{TimeLimitMs: 1000, MemoryLimitMB: 64}})
	if err != nil || art == nil {
		t.Fatalf("compile: %v", err)
	}
	defer art.Release()
	if len(eng.specs) != 0 {
		t.Fatalf("engine must not be called without a compile step")
	}
	if _, err := r.Run(context.Background(), RunRequest{Artifact: art, CaseID: 1, Input: "", Limits: model.Limits{TimeLimitMs: 1000, MemoryLimitMB: 64}}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := eng.specs[0].Cmd[2]; got != "python3 -u main.py < input.txt" {
		t.Fatalf("unexpected command %q", got)
	}
}

func TestBuildCommand(t *testing.T) {
	t.Parallel()
	java := profile.DefaultLanguages()[1]
	cmd, err := buildCommand(java.CompileCmdTpl, java)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if strings.Join(cmd, "|") != "bash|-lc|javac Main.java" {
		t.Fatalf("unexpected %v", cmd)
	}
	if _, err := buildCommand("   ", java); err == nil {
		t.Fatalf("expected error for empty template")
	}
	if _, err := buildCommand(`bash -lc "unterminated`, java); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestHostPathMapping(t *testing.T) {
	t.Parallel()
	r := &DefaultRunner{cfg: Config{WorkRoot: "/var/lib/judge", HostWorkRoot: "/srv/judge"}}
	if got := r.hostPath("/var/lib/judge/sub-1-run-x"); got != "/srv/judge/sub-1-run-x" {
		t.Fatalf("unexpected host path %q", got)
	}
}
