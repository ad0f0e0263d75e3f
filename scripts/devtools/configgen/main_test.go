package main

import (
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestMergeMapNested(t *testing.T) {
	base := map[string]interface{}{
		"queue": map[string]interface{}{"driver": "redis", "topic": "judging"},
		"judge": map[string]interface{}{"defaultTimeLimitMs": 2000},
	}
	override := map[string]interface{}{
		"queue": map[string]interface{}{"topic": "judging-dev"},
	}
	out, err := mergeMap(base, override)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	queue := out.(map[string]interface{})["queue"].(map[string]interface{})
	if queue["driver"] != "redis" || queue["topic"] != "judging-dev" {
		t.Fatalf("unexpected queue section %v", queue)
	}
	if _, err := mergeMap("x", override); err == nil {
		t.Fatalf("expected error for non-map base")
	}
}

func TestRunRendersSharedSections(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	write("base.yaml", "queue:\n  driver: redis\n  redis:\n    addr: localhost:6379\nserver:\n  addr: 0.0.0.0:8085\n")
	write("profile.yaml", `outputDir: out
shared:
  queue:
    redis:
      addr: redis:6379
targets:
  worker:
    base: base.yaml
    output: judge_worker.yaml
    overrides:
      server:
        addr: 0.0.0.0:9000
`)

	if err := run(filepath.Join(dir, "profile.yaml"), ""); err != nil {
		t.Fatalf("run: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "out", "judge_worker.yaml"))
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	var got struct {
		Queue struct {
			Driver string `yaml:"driver"`
			Redis  struct {
				Addr string `yaml:"addr"`
			} `yaml:"redis"`
		} `yaml:"queue"`
		Server struct {
			Addr string `yaml:"addr"`
		} `yaml:"server"`
	}
	if err := yaml.Unmarshal(data, &got); err != nil {
		t.Fatalf("parse output: %v", err)
	}
	if got.Queue.Driver != "redis" || got.Queue.Redis.Addr != "redis:6379" || got.Server.Addr != "0.0.0.0:9000" {
		t.Fatalf("unexpected rendered config %+v", got)
	}
}
