// Package profile holds per-language sandbox settings.
package profile

import (
	"context"
	"sort"
	"strings"

	appErr "ojengine/pkg/errors"
)

// LanguageSpec describes how to compile and run one language.
// Command templates are shell-split after placeholder expansion:
// {src} source file, {bin} binary file, {input} input file.
type LanguageSpec struct {
	ID             string   `yaml:"id"`
	Image          string   `yaml:"image"`
	SourceFile     string   `yaml:"sourceFile"`
	BinaryFile     string   `yaml:"binaryFile"`
	CompileEnabled bool     `yaml:"compileEnabled"`
	CompileCmdTpl  string   `yaml:"compileCmd"`
	RunCmdTpl      string   `yaml:"runCmd"`
	Env            []string `yaml:"env"`
	// CompileTimeLimitMs overrides the problem time limit for compilation when positive.
	CompileTimeLimitMs int64 `yaml:"compileTimeLimitMs"`
}

// Repository resolves a language tag into its spec.
type Repository interface {
	GetLanguageSpec(ctx context.Context, id string) (LanguageSpec, error)
}

// DefaultLanguages returns the built-in cpp, java and python profiles.
// python has no compile step; its artifact is the source file itself.
func DefaultLanguages() []LanguageSpec {
	return []LanguageSpec{
		{
			ID:             "cpp",
			Image:          "gcc:13",
			SourceFile:     "Main.cpp",
			BinaryFile:     "Main",
			CompileEnabled: true,
			CompileCmdTpl:  `bash -lc "g++ -O2 -std=c++17 {src} -o {bin}"`,
			RunCmdTpl:      `bash -lc "./{bin} < {input}"`,
		},
		{
			ID:             "java",
			Image:          "openjdk:21",
			SourceFile:     "Main.java",
			BinaryFile:     "Main",
			CompileEnabled: true,
			CompileCmdTpl:  `bash -lc "javac {src}"`,
			RunCmdTpl:      `bash -lc "java {bin} < {input}"`,
		},
		{
			ID:         "python",
			Image:      "python:3.12-slim",
			SourceFile: "main.py",
			RunCmdTpl:  `bash -lc "python -u {src} < {input}"`,
		},
	}
}

// LocalRepository serves language specs from memory.
type LocalRepository struct {
	languages map[string]LanguageSpec
}

// NewLocalRepository indexes specs by id; later entries override earlier ones.
func NewLocalRepository(languages []LanguageSpec) *LocalRepository {
	langMap := make(map[string]LanguageSpec, len(languages))
	for _, lang := range languages {
		id := strings.TrimSpace(lang.ID)
		if id == "" {
			continue
		}
		lang.ID = id
		langMap[id] = lang
	}
	return &LocalRepository{languages: langMap}
}

// GetLanguageSpec returns a language spec or a LanguageNotSupported error.
func (r *LocalRepository) GetLanguageSpec(ctx context.Context, id string) (LanguageSpec, error) {
	lang, ok := r.languages[id]
	if !ok {
		return LanguageSpec{}, appErr.Newf(appErr.LanguageNotSupported, "language %q not supported", id)
	}
	return lang, nil
}

// IDs lists configured language ids in sorted order.
func (r *LocalRepository) IDs() []string {
	ids := make([]string, 0, len(r.languages))
	for id := range r.languages {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
