package runner

import (
	"strings"

	"ojengine/internal/judge/sandbox/profile"
	appErr "ojengine/pkg/errors"

	"github.com/google/shlex"
)

// buildCommand expands {src}, {bin} and {input} to file names relative to the
// container work directory and shell-splits the template.
func buildCommand(tpl string, lang profile.LanguageSpec) ([]string, error) {
	if strings.TrimSpace(tpl) == "" {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("command template is required")
	}
	expanded := strings.NewReplacer(
		"{src}", lang.SourceFile,
		"{bin}", lang.BinaryFile,
		"{input}", inputFileName,
	).Replace(tpl)
	fields, err := shlex.Split(expanded)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.InvalidParams, "parse command template failed")
	}
	if len(fields) == 0 {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("command is empty after expansion")
	}
	return fields, nil
}
