// Package vcs answers whether a file is already under version control.
package vcs

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

const DefaultTimeout = 5 * time.Second

var ErrNotRepository = errors.New("not a git repository")

var untrackedLine = regexp.MustCompile(`^\s*\?`)

// Git inspects files with `git status -s`.
type Git struct {
	// Binary defaults to "git".
	Binary  string
	Timeout time.Duration
}

// Tracked reports whether path shows up in `git status -s` with anything
// other than the untracked marker. A file with no pending changes has no
// status line and is reported as false.
func (g Git) Tracked(ctx context.Context, path string) (bool, error) {
	if FindGitDir(filepath.Dir(path)) == "" {
		return false, ErrNotRepository
	}
	timeout := g.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	output, err := g.run(ctx, filepath.Dir(path), "status", "-s", "--", filepath.Base(path))
	if err != nil {
		return false, classifyGitError(err)
	}
	return IsTrackedStatus(output), nil
}

// IsTrackedStatus classifies `git status -s` output for a single path.
func IsTrackedStatus(output string) bool {
	trimmed := strings.TrimSpace(output)
	if trimmed == "" {
		return false
	}
	return !untrackedLine.MatchString(trimmed)
}

// run returns git's stdout. Stderr only feeds the error, so warnings git
// prints there never reach the status parser.
func (g Git) run(ctx context.Context, workDir string, args ...string) (string, error) {
	binary := g.Binary
	if binary == "" {
		binary = "git"
	}
	command := exec.CommandContext(ctx, binary, append([]string{"-C", workDir}, args...)...)
	output, err := command.Output()
	if err != nil {
		detail := ""
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			detail = strings.TrimSpace(string(exitErr.Stderr))
		}
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, detail)
	}
	return string(output), nil
}

func classifyGitError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	var notFoundErr *exec.Error
	if errors.As(err, &notFoundErr) && errors.Is(notFoundErr, exec.ErrNotFound) {
		return err
	}
	if strings.Contains(strings.ToLower(err.Error()), "not a git repository") {
		return fmt.Errorf("%w: %v", ErrNotRepository, err)
	}
	return err
}

// Disabled never reports a file as tracked.
type Disabled struct{}

func (Disabled) Tracked(context.Context, string) (bool, error) {
	return false, nil
}
