package resync

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"migwatch/internal/logging"

	"github.com/stretchr/testify/require"
)

func TestResyncEditedMigrationRollsBackAndReapplies(t *testing.T) {
	dir := t.TempDir()
	writeMigrations(t, dir, "0-a.sql", "1-b.sql", "2-c.sql")
	runner := newFakeRunner(t, dir, "0-a.sql", "1-b.sql", "2-c.sql")
	before := runner.executedNames()

	result := Resync(context.Background(), runner, Task{Path: filepath.Join(dir, "1-b.sql"), Existed: true}, nil)

	require.Equal(t, OutcomeCompleted, result.Outcome)
	require.NoError(t, result.Err)
	require.Equal(t, []runnerCall{
		{Kind: "down", Names: []string{"2-c.sql", "1-b.sql"}},
		{Kind: "invalidate"},
		{Kind: "up", Names: []string{"1-b.sql", "2-c.sql"}},
	}, runner.recorded())
	require.Equal(t, before, runner.executedNames())
	require.ElementsMatch(t, []string{
		filepath.Join(dir, "0-a.sql"),
		filepath.Join(dir, "1-b.sql"),
		filepath.Join(dir, "2-c.sql"),
	}, runner.invalidated)
}

func TestResyncNewMigrationAppliesOnlyItself(t *testing.T) {
	dir := t.TempDir()
	writeMigrations(t, dir, "0-a.sql")
	runner := newFakeRunner(t, dir)

	result := Resync(context.Background(), runner, Task{Path: filepath.Join(dir, "0-a.sql"), Existed: true}, nil)

	require.Equal(t, OutcomeCompleted, result.Outcome)
	calls := runner.recorded()
	require.Equal(t, runnerCall{Kind: "down", Names: []string{}}, calls[0])
	require.Equal(t, runnerCall{Kind: "up", Names: []string{"0-a.sql"}}, calls[len(calls)-1])
}

func TestResyncRollbackSkipsUnexecuted(t *testing.T) {
	dir := t.TempDir()
	writeMigrations(t, dir, "0-a.sql", "1-b.sql", "2-c.sql", "3-d.sql")
	runner := newFakeRunner(t, dir, "0-a.sql", "1-b.sql", "3-d.sql")

	result := Resync(context.Background(), runner, Task{Path: filepath.Join(dir, "1-b.sql"), Existed: true}, nil)

	require.Equal(t, []string{"3-d.sql", "1-b.sql"}, result.Rollback)
	require.Equal(t, []string{"1-b.sql", "2-c.sql", "3-d.sql"}, result.Reapply)
}

func TestResyncStatFailureReappliesAfterIndex(t *testing.T) {
	dir := t.TempDir()
	writeMigrations(t, dir, "0-a.sql", "1-b.sql", "2-c.sql")
	runner := newFakeRunner(t, dir, "0-a.sql", "1-b.sql", "2-c.sql")

	result := Resync(context.Background(), runner, Task{Path: filepath.Join(dir, "1-b.sql"), Existed: false}, nil)

	require.Equal(t, OutcomeCompleted, result.Outcome)
	require.Equal(t, []string{"2-c.sql", "1-b.sql"}, result.Rollback)
	require.Equal(t, []string{"2-c.sql"}, result.Reapply)
}

func TestResyncSkipsUnknownMigration(t *testing.T) {
	dir := t.TempDir()
	writeMigrations(t, dir, "0-a.sql")
	runner := newFakeRunner(t, dir, "0-a.sql")

	result := Resync(context.Background(), runner, Task{Path: filepath.Join(dir, "9-gone.sql")}, nil)

	require.Equal(t, OutcomeSkipped, result.Outcome)
	require.Empty(t, runner.recorded())
}

func TestResyncSwallowsRunnerFailure(t *testing.T) {
	dir := t.TempDir()
	writeMigrations(t, dir, "0-a.sql", "1-b.sql")
	runner := newFakeRunner(t, dir, "0-a.sql", "1-b.sql")
	runner.downErr = errors.New("syntax error at or near \"DROP\"")
	buffer := logging.NewLogBuffer(20)
	logger := logging.NewLoggerWithOutput(buffer, logging.LevelDebug, io.Discard)

	result := Resync(context.Background(), runner, Task{Path: filepath.Join(dir, "0-a.sql"), Existed: true}, logger)

	require.Equal(t, OutcomeFailed, result.Outcome)
	require.ErrorIs(t, result.Err, runner.downErr)
	for _, call := range runner.recorded() {
		if call.Kind == "up" {
			t.Fatalf("up should not run after a failed rollback")
		}
	}

	messages := []string{}
	for _, entry := range buffer.List() {
		messages = append(messages, entry.Message)
	}
	require.Equal(t, "Undoing migrations...", messages[0])
	last := buffer.List()[len(messages)-1]
	require.Equal(t, logging.LevelError, last.Level)
	require.Contains(t, last.Message, "syntax error")
}

func TestResyncContainsRunnerPanic(t *testing.T) {
	dir := t.TempDir()
	writeMigrations(t, dir, "0-a.sql")
	runner := newFakeRunner(t, dir)
	runner.panicOnUp = true
	buffer := logging.NewLogBuffer(20)
	logger := logging.NewLoggerWithOutput(buffer, logging.LevelDebug, io.Discard)

	result := Resync(context.Background(), runner, Task{Path: filepath.Join(dir, "0-a.sql"), Existed: true}, logger)

	require.Equal(t, OutcomeFailed, result.Outcome)
	require.ErrorContains(t, result.Err, "migration exploded")
	entries := buffer.List()
	last := entries[len(entries)-1]
	if !strings.Contains(last.Context["stack"], "resync") {
		t.Fatalf("expected stack in panic log, got %q", last.Context["stack"])
	}
}
