package watcher

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"time"

	"migwatch/internal/logging"

	"github.com/fsnotify/fsnotify"
)

const (
	defaultDebounce    = 100 * time.Millisecond
	defaultMaxWatches  = 100
	maxRestartAttempts = 3
	restartBaseDelay   = 200 * time.Millisecond
)

var (
	ErrMaxWatchesExceeded = errors.New("max watches exceeded")
	ErrNotDirectory       = errors.New("watch root is not a directory")
)

// Watch starts watching root and delivers events to callback. Entries that
// already exist are not reported; Ready is closed once the initial watches are
// registered.
func Watch(root string, callback func(Event), options Options) (*Watcher, error) {
	if root == "" {
		return nil, errors.New("root is required")
	}
	if callback == nil {
		return nil, errors.New("callback is required")
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotDirectory, root)
	}

	source, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	logger := options.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	debounce := options.Debounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	maxWatches := options.MaxWatches
	if maxWatches <= 0 {
		maxWatches = defaultMaxWatches
	}

	instance := &Watcher{
		root:       filepath.Clean(root),
		callback:   callback,
		watcher:    source,
		watched:    make(map[string]struct{}),
		debouncer:  newDebouncer(debounce),
		events:     make(chan fsnotify.Event, 16),
		errors:     make(chan error, 4),
		done:       make(chan struct{}),
		ready:      make(chan struct{}),
		logger:     logger,
		recursive:  options.Recursive,
		ignored:    options.Ignored,
		maxWatches: maxWatches,
	}

	if err := instance.addWatch(instance.root); err != nil {
		_ = source.Close()
		return nil, err
	}

	instance.startForwarder(source)
	go instance.start()
	return instance, nil
}

// Ready is closed once every initial directory watch is in place.
func (watcher *Watcher) Ready() <-chan struct{} {
	return watcher.ready
}

// Root returns the watched directory.
func (watcher *Watcher) Root() string {
	return watcher.root
}

// Close stops event delivery. Pending debounced events are discarded.
func (watcher *Watcher) Close() error {
	if watcher == nil {
		return nil
	}

	watcher.mutex.Lock()
	if watcher.closed {
		watcher.mutex.Unlock()
		return nil
	}
	watcher.closed = true
	if watcher.debouncer != nil {
		watcher.debouncer.stop()
		watcher.debouncer = nil
	}
	source := watcher.watcher
	watcher.mutex.Unlock()

	watcher.restartMutex.Lock()
	if watcher.restartTimer != nil {
		watcher.restartTimer.Stop()
		watcher.restartTimer = nil
	}
	watcher.restartMutex.Unlock()

	close(watcher.done)
	if source == nil {
		return nil
	}
	return source.Close()
}

// SetErrorHandler configures a callback for unrecoverable watcher failures.
func (watcher *Watcher) SetErrorHandler(handler func(error)) {
	if watcher == nil {
		return
	}
	watcher.restartMutex.Lock()
	watcher.errorHandler = handler
	watcher.restartMutex.Unlock()
}

func (watcher *Watcher) start() {
	if watcher.recursive {
		if _, err := watcher.addRecursiveWatches(watcher.root); err != nil {
			watcher.logWarn("recursive watch failed", map[string]string{
				"path":  watcher.root,
				"error": err.Error(),
			})
		}
	}
	close(watcher.ready)
	watcher.run()
}

func (watcher *Watcher) run() {
	for {
		select {
		case event := <-watcher.events:
			watcher.handleEvent(event)
		case err := <-watcher.errors:
			watcher.handleError(err)
		case <-watcher.done:
			return
		}
	}
}

func (watcher *Watcher) startForwarder(source *fsnotify.Watcher) {
	if source == nil {
		return
	}

	go func() {
		for {
			select {
			case event, ok := <-source.Events:
				if !ok {
					return
				}
				select {
				case watcher.events <- event:
				case <-watcher.done:
					return
				}
			case err, ok := <-source.Errors:
				if !ok {
					return
				}
				select {
				case watcher.errors <- err:
				case <-watcher.done:
					return
				}
			case <-watcher.done:
				return
			}
		}
	}()
}

func (watcher *Watcher) addWatch(path string) error {
	watcher.mutex.Lock()
	if watcher.closed {
		watcher.mutex.Unlock()
		return nil
	}
	if _, ok := watcher.watched[path]; ok {
		watcher.mutex.Unlock()
		return nil
	}
	if len(watcher.watched) >= watcher.maxWatches {
		watcher.mutex.Unlock()
		return ErrMaxWatchesExceeded
	}
	watcher.watched[path] = struct{}{}
	activeCount := len(watcher.watched)
	source := watcher.watcher
	watcher.mutex.Unlock()

	if err := source.Add(path); err != nil {
		watcher.dropWatch(path)
		watcher.logWarn("watch add failed", map[string]string{
			"path":  path,
			"error": err.Error(),
		})
		return err
	}
	watcher.logDebug("watch added", path, activeCount)
	return nil
}

func (watcher *Watcher) dropWatch(path string) {
	watcher.mutex.Lock()
	delete(watcher.watched, path)
	watcher.mutex.Unlock()
}

func (watcher *Watcher) isIgnored(path string) bool {
	if watcher.ignored == nil {
		return false
	}
	return watcher.ignored(path)
}

func (watcher *Watcher) logWarn(message string, fields map[string]string) {
	if watcher == nil || watcher.logger == nil {
		return
	}
	watcher.logger.Warn(message, withWatcherFields(fields))
}

func (watcher *Watcher) logDebug(message, path string, activeCount int) {
	if watcher == nil || watcher.logger == nil {
		return
	}
	fields := map[string]string{
		"path":           path,
		"active_watches": strconv.Itoa(activeCount),
	}
	watcher.logger.Debug(message, withWatcherFields(fields))
}

func withWatcherFields(fields map[string]string) map[string]string {
	merged := make(map[string]string, len(fields)+1)
	merged["component"] = "watcher"
	for key, value := range fields {
		merged[key] = value
	}
	return merged
}

// Metrics reports current watcher stats.
func (watcher *Watcher) Metrics() Metrics {
	if watcher == nil {
		return Metrics{}
	}
	watcher.mutex.Lock()
	active := len(watcher.watched)
	watcher.mutex.Unlock()
	watcher.restartMutex.Lock()
	restartAttempts := watcher.restartAttempts
	watcher.restartMutex.Unlock()
	return Metrics{
		ActiveWatches:   active,
		EventsDelivered: atomic.LoadUint64(&watcher.eventsDelivered),
		EventsDropped:   atomic.LoadUint64(&watcher.eventsDropped),
		Errors:          atomic.LoadUint64(&watcher.errorCount),
		RestartAttempts: restartAttempts,
	}
}
