package watcher

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

type debounceEntry struct {
	timer *time.Timer
	event Event
}

type debouncer struct {
	duration time.Duration
	entries  map[string]debounceEntry
}

func newDebouncer(duration time.Duration) *debouncer {
	return &debouncer{
		duration: duration,
		entries:  make(map[string]debounceEntry),
	}
}

// schedule records event for path and (re)arms its timer. It reports whether
// an earlier pending event was merged into this one.
func (debouncer *debouncer) schedule(path string, event Event, flush func(string)) bool {
	if debouncer == nil {
		return false
	}
	entry, pending := debouncer.entries[path]
	if pending {
		event.Op = mergeOp(entry.event.Op, event.Op)
	}
	entry.event = event
	if entry.timer == nil {
		entry.timer = time.AfterFunc(debouncer.duration, func() {
			flush(path)
		})
	} else {
		entry.timer.Reset(debouncer.duration)
	}
	debouncer.entries[path] = entry
	return pending
}

func (debouncer *debouncer) pop(path string) (Event, bool) {
	if debouncer == nil {
		return Event{}, false
	}
	entry, ok := debouncer.entries[path]
	if !ok {
		return Event{}, false
	}
	delete(debouncer.entries, path)
	return entry.event, true
}

func (debouncer *debouncer) stop() {
	if debouncer == nil {
		return
	}
	for _, entry := range debouncer.entries {
		if entry.timer != nil {
			entry.timer.Stop()
		}
	}
	debouncer.entries = nil
}

// mergeOp folds a burst of operations on one path into the one a reader
// should see. Editors that save by rename-over produce unlink+add, which is a
// change.
func mergeOp(previous, next Op) Op {
	switch {
	case previous == OpAdd && next == OpChange:
		return OpAdd
	case previous == OpUnlink && next == OpAdd:
		return OpChange
	case previous == OpUnlink && next == OpChange:
		return OpChange
	default:
		return next
	}
}

func translateOp(op fsnotify.Op) (Op, bool) {
	switch {
	case op.Has(fsnotify.Create):
		return OpAdd, true
	case op.Has(fsnotify.Write):
		return OpChange, true
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		return OpUnlink, true
	default:
		return "", false
	}
}

func (watcher *Watcher) handleEvent(event fsnotify.Event) {
	op, ok := translateOp(event.Op)
	if !ok {
		return
	}
	path := filepath.Clean(event.Name)
	if path == watcher.root || watcher.isIgnored(path) {
		return
	}

	switch op {
	case OpAdd:
		if watcher.recursive {
			if info, err := os.Stat(path); err == nil && info.IsDir() {
				watcher.watchNewDir(path)
			}
		}
	case OpUnlink:
		watcher.forgetDir(path)
	}

	watcher.schedule(Event{
		Path:      path,
		Op:        op,
		Timestamp: time.Now().UTC(),
	})
}

func (watcher *Watcher) schedule(event Event) {
	watcher.mutex.Lock()
	defer watcher.mutex.Unlock()
	if watcher.closed || watcher.debouncer == nil {
		return
	}
	if merged := watcher.debouncer.schedule(event.Path, event, watcher.flush); merged {
		atomic.AddUint64(&watcher.eventsDropped, 1)
	}
}

func (watcher *Watcher) flush(path string) {
	watcher.mutex.Lock()
	if watcher.closed || watcher.debouncer == nil {
		watcher.mutex.Unlock()
		return
	}
	event, ok := watcher.debouncer.pop(path)
	watcher.mutex.Unlock()
	if !ok {
		return
	}

	watcher.callback(event)
	atomic.AddUint64(&watcher.eventsDelivered, 1)
}
