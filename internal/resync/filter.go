package resync

import (
	"errors"
	"path/filepath"
	"regexp"
)

var (
	ErrNoMigrationsConfig = errors.New("couldn't get migrations configuration from runner")
	ErrNoMigrationsPath   = errors.New("couldn't get migrations path from runner")
)

// WatchFilter decides what the watch covers. It is built once at startup.
type WatchFilter struct {
	// Root is Path itself when Recursive is set, otherwise the glob
	// Path/* covering only the immediate entries.
	Root      string
	Path      string
	Recursive bool
	Pattern   *regexp.Regexp
}

func NewWatchFilter(settings *Settings) (WatchFilter, error) {
	if settings == nil {
		return WatchFilter{}, ErrNoMigrationsConfig
	}
	if settings.Path == "" {
		return WatchFilter{}, ErrNoMigrationsPath
	}
	path := filepath.Clean(settings.Path)
	root := path
	if !settings.Recursive {
		root = filepath.Join(path, "*")
	}
	return WatchFilter{
		Root:      root,
		Path:      path,
		Recursive: settings.Recursive,
		Pattern:   settings.Pattern,
	}, nil
}

// Ignored reports whether entry should be left out of the watch. Only entries
// whose path relative to Path fails the pattern are ignored; Root and Path
// themselves never are. Directories go through the same test, so in recursive
// mode the pattern must also admit the subdirectories to descend into.
func (filter WatchFilter) Ignored(entry string) bool {
	entry = filepath.Clean(entry)
	if entry == filter.Root || entry == filter.Path || filter.Pattern == nil {
		return false
	}
	relative, err := filepath.Rel(filter.Path, entry)
	if err != nil {
		return true
	}
	return !filter.Pattern.MatchString(relative)
}

// Relevant reports whether a file's base name passes the pattern.
func (filter WatchFilter) Relevant(path string) bool {
	if filter.Pattern == nil {
		return true
	}
	return filter.Pattern.MatchString(filepath.Base(path))
}
