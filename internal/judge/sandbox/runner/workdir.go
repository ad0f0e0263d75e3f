package runner

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"ojengine/internal/judge/sandbox/profile"

	"github.com/google/uuid"
)

const (
	inputFileName = "input.txt"
	dirPerm       = 0o777
)

// Artifact is the compiled output of one submission, reused by every run.
type Artifact struct {
	SubmissionID int64
	Language     string
	Dir          string

	spec profile.LanguageSpec
	keep bool
}

// Release removes the artifact directory.
func (a *Artifact) Release() error {
	if a == nil || a.Dir == "" || a.keep {
		return nil
	}
	return os.RemoveAll(a.Dir)
}

// newWorkDir creates a uniquely named directory under root.
// The mode is widened after creation so non-root container users can write into it.
func newWorkDir(root string, submissionID int64, kind string) (string, error) {
	name := "sub-" + strconv.FormatInt(submissionID, 10) + "-" + kind + "-" + uuid.NewString()
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return "", fmt.Errorf("create work dir: %w", err)
	}
	if err := os.Chmod(dir, dirPerm); err != nil {
		return "", fmt.Errorf("chmod work dir: %w", err)
	}
	return dir, nil
}

func writeFile(dir, name, content string) error {
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// copyTree copies regular files and directories from src into dst, keeping file modes.
func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		info, err := d.Info()
		if err != nil {
			return err
		}
		switch {
		case d.IsDir():
			if rel == "." {
				return nil
			}
			return os.MkdirAll(target, dirPerm)
		case info.Mode().IsRegular():
			return copyFile(path, target, info.Mode().Perm())
		default:
			return nil
		}
	})
}

func copyFile(src, dst string, perm fs.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
