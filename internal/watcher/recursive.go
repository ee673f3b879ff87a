package watcher

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

func (watcher *Watcher) addRecursiveWatches(root string) ([]string, error) {
	if watcher == nil || !watcher.recursive {
		return nil, nil
	}
	paths, err := collectRecursiveDirs(root, watcher.isIgnored)
	if err != nil {
		return nil, err
	}

	added := make([]string, 0, len(paths))
	for _, path := range paths {
		if err := watcher.addWatch(path); err != nil {
			return added, err
		}
		added = append(added, path)
	}
	return added, nil
}

// collectRecursiveDirs lists the directories below root, skipping ignored
// ones together with their contents.
func collectRecursiveDirs(root string, ignored func(string) bool) ([]string, error) {
	dirs := []string{}
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !entry.IsDir() || path == root {
			return nil
		}
		if ignored != nil && ignored(path) {
			return filepath.SkipDir
		}
		dirs = append(dirs, path)
		return nil
	})
	return dirs, err
}

// watchNewDir starts watching a directory created after startup and reports
// the files that were written into it before its watch was in place.
func (watcher *Watcher) watchNewDir(path string) {
	if err := watcher.addWatch(path); err != nil {
		return
	}
	if _, err := watcher.addRecursiveWatches(path); err != nil {
		watcher.logWarn("recursive watch failed", map[string]string{
			"path":  path,
			"error": err.Error(),
		})
	}

	_ = filepath.WalkDir(path, func(child string, entry fs.DirEntry, err error) error {
		if err != nil || child == path {
			return nil
		}
		if watcher.isIgnored(child) {
			if entry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if entry.IsDir() {
			return nil
		}
		watcher.schedule(Event{
			Path:      child,
			Op:        OpAdd,
			Timestamp: time.Now().UTC(),
		})
		return nil
	})
}

// forgetDir drops bookkeeping for a removed or renamed directory and
// everything below it.
func (watcher *Watcher) forgetDir(path string) {
	prefix := path + string(os.PathSeparator)

	watcher.mutex.Lock()
	removed := make([]string, 0)
	for watched := range watcher.watched {
		if watched == path || strings.HasPrefix(watched, prefix) {
			delete(watcher.watched, watched)
			removed = append(removed, watched)
		}
	}
	activeCount := len(watcher.watched)
	source := watcher.watcher
	watcher.mutex.Unlock()

	for _, watched := range removed {
		// fsnotify already dropped watches on deleted directories; renamed
		// ones are still registered.
		_ = source.Remove(watched)
		watcher.logDebug("watch removed", watched, activeCount)
	}
}
