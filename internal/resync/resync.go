package resync

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime/debug"
	"strconv"
	"time"

	"migwatch/internal/logging"
)

// Resync rolls back the migration named by task and everything discovered
// after it, then applies them again. Runner errors and panics end up in the
// returned Result and the log; they are never returned to the caller.
func Resync(ctx context.Context, runner Runner, task Task, logger *logging.Logger) (result Result) {
	if logger == nil {
		logger = logging.Discard()
	}
	result = Result{Task: task}
	start := time.Now()
	defer func() {
		result.Duration = time.Since(start)
	}()
	defer func() {
		if recovered := recover(); recovered != nil {
			result.Outcome = OutcomeFailed
			result.Err = fmt.Errorf("resync panicked: %v", recovered)
			logger.Error(result.Err.Error(), map[string]string{
				"component": "resync",
				"path":      task.Path,
				"stack":     string(debug.Stack()),
			})
		}
	}()

	fail := func(err error) Result {
		result.Outcome = OutcomeFailed
		result.Err = err
		logger.Error(fmt.Sprintf("%+v", err), map[string]string{
			"component": "resync",
			"path":      task.Path,
		})
		return result
	}

	executedMigrations, err := runner.Executed(ctx)
	if err != nil {
		return fail(fmt.Errorf("list executed migrations: %w", err))
	}
	executed := make(map[string]struct{}, len(executedMigrations))
	for _, migration := range executedMigrations {
		executed[migration.Name] = struct{}{}
	}

	migrations, err := runner.Discover(ctx)
	if err != nil {
		return fail(fmt.Errorf("discover migrations: %w", err))
	}

	index := indexOf(migrations, filepath.Base(task.Path))
	if index < 0 {
		result.Outcome = OutcomeSkipped
		return result
	}

	result.Rollback = rollbackRange(migrations, executed, index)
	logger.Info("Undoing migrations...", map[string]string{
		"component": "resync",
		"count":     strconv.Itoa(len(result.Rollback)),
	})
	if err := runner.Down(ctx, result.Rollback); err != nil {
		return fail(fmt.Errorf("roll back %v: %w", result.Rollback, err))
	}

	if invalidator, ok := runner.(Invalidator); ok {
		paths := make([]string, 0, len(migrations))
		for _, migration := range migrations {
			paths = append(paths, migration.Path)
		}
		invalidator.Invalidate(paths...)
	}

	result.Reapply = reapplyRange(migrations, index, task.Existed)
	logger.Info("Reapplying migrations...", map[string]string{
		"component": "resync",
		"count":     strconv.Itoa(len(result.Reapply)),
	})
	if err := runner.Up(ctx, result.Reapply); err != nil {
		return fail(fmt.Errorf("reapply %v: %w", result.Reapply, err))
	}

	result.Outcome = OutcomeCompleted
	return result
}

func indexOf(migrations []Migration, name string) int {
	for index, migration := range migrations {
		if migration.Name == name {
			return index
		}
	}
	return -1
}

// rollbackRange is every executed migration from index onward, latest first.
func rollbackRange(migrations []Migration, executed map[string]struct{}, index int) []string {
	names := make([]string, 0, len(migrations)-index)
	for position := len(migrations) - 1; position >= index; position-- {
		if _, ok := executed[migrations[position].Name]; ok {
			names = append(names, migrations[position].Name)
		}
	}
	return names
}

// reapplyRange starts at the changed migration when the file was present and
// just after it when the stat failed.
func reapplyRange(migrations []Migration, index int, existed bool) []string {
	start := index
	if !existed {
		start = index + 1
	}
	names := make([]string, 0, len(migrations)-start)
	for _, migration := range migrations[start:] {
		names = append(names, migration.Name)
	}
	return names
}
