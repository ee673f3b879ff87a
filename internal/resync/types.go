// Package resync keeps applied migrations in step with the files on disk. It
// watches a migrations directory and, whenever a migration file is added or
// edited, rolls back everything from that migration onward and applies it
// again through a Runner.
package resync

import (
	"context"
	"regexp"
	"time"
)

// Migration describes one migration as the runner discovers it.
type Migration struct {
	// Name is the file's base name and the identifier passed to Up and Down.
	Name string
	Path string
}

// Settings is the part of the runner's configuration the watch depends on.
type Settings struct {
	Path      string
	Recursive bool
	Pattern   *regexp.Regexp
}

// Runner applies and rolls back migrations. Discover must return migrations in
// execution order; that order is never rearranged here.
type Runner interface {
	Settings() *Settings
	Executed(ctx context.Context) ([]Migration, error)
	Discover(ctx context.Context) ([]Migration, error)
	Down(ctx context.Context, names []string) error
	Up(ctx context.Context, names []string) error
}

// Invalidator is implemented by runners that cache parsed migrations.
type Invalidator interface {
	Invalidate(paths ...string)
}

// SafetyCheck reports whether a file is already under version control.
type SafetyCheck interface {
	Tracked(ctx context.Context, path string) (bool, error)
}

// Task is a queued resync for one changed file.
type Task struct {
	Path string
	// Existed is true when the file could be stat'ed at notification time.
	Existed bool
}

type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeFailed    Outcome = "failed"
)

// Result describes how a task ended.
type Result struct {
	Task     Task
	Outcome  Outcome
	Rollback []string
	Reapply  []string
	Err      error
	Duration time.Duration
}
