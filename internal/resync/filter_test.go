package resync

import (
	"errors"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewWatchFilterRequiresSettings(t *testing.T) {
	if _, err := NewWatchFilter(nil); !errors.Is(err, ErrNoMigrationsConfig) {
		t.Fatalf("expected ErrNoMigrationsConfig, got %v", err)
	}
	if _, err := NewWatchFilter(&Settings{}); !errors.Is(err, ErrNoMigrationsPath) {
		t.Fatalf("expected ErrNoMigrationsPath, got %v", err)
	}
}

func TestNewWatchFilterRoot(t *testing.T) {
	flat, err := NewWatchFilter(&Settings{Path: "db/migrations/"})
	require.NoError(t, err)
	require.Equal(t, filepath.Join("db", "migrations", "*"), flat.Root)
	require.Equal(t, filepath.Join("db", "migrations"), flat.Path)

	recursive, err := NewWatchFilter(&Settings{Path: "db/migrations", Recursive: true})
	require.NoError(t, err)
	require.Equal(t, filepath.Join("db", "migrations"), recursive.Root)
	require.True(t, recursive.Recursive)
}

func TestWatchFilterIgnored(t *testing.T) {
	base := filepath.Join("db", "migrations")
	filter, err := NewWatchFilter(&Settings{Path: base, Pattern: regexp.MustCompile(`^\d+-\w+\.sql$`)})
	require.NoError(t, err)

	cases := []struct {
		entry   string
		ignored bool
	}{
		{entry: base, ignored: false},
		{entry: filter.Root, ignored: false},
		{entry: filepath.Join(base, "0-init.sql"), ignored: false},
		{entry: filepath.Join(base, "README.md"), ignored: true},
		{entry: filepath.Join(base, "0-init.sql.swp"), ignored: true},
		{entry: filepath.Join(base, "nested", "1-more.sql"), ignored: true},
	}
	for _, testCase := range cases {
		require.Equal(t, testCase.ignored, filter.Ignored(testCase.entry), "entry %s", testCase.entry)
	}
}

func TestWatchFilterWithoutPatternIgnoresNothing(t *testing.T) {
	filter, err := NewWatchFilter(&Settings{Path: "migrations"})
	require.NoError(t, err)
	require.False(t, filter.Ignored(filepath.Join("migrations", "anything.txt")))
	require.True(t, filter.Relevant(filepath.Join("migrations", "anything.txt")))
}

func TestWatchFilterRelevantUsesBaseName(t *testing.T) {
	filter, err := NewWatchFilter(&Settings{Path: "migrations", Recursive: true, Pattern: regexp.MustCompile(`^\d+-\w+\.sql$`)})
	require.NoError(t, err)
	require.True(t, filter.Relevant(filepath.Join("migrations", "2024", "1-b.sql")))
	require.False(t, filter.Relevant(filepath.Join("migrations", "notes.txt")))
}
