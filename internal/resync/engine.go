package resync

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"migwatch/internal/logging"
	"migwatch/internal/metrics"
	"migwatch/internal/vcs"
	"migwatch/internal/watcher"
)

// Source is a running filesystem watch.
type Source interface {
	Ready() <-chan struct{}
	Close() error
}

// WatchFunc starts a filesystem watch on root.
type WatchFunc func(root string, callback func(watcher.Event), options watcher.Options) (Source, error)

type Options struct {
	// Logger defaults to info and above on stderr.
	Logger *logging.Logger
	// SafetyCheck defaults to vcs.Git; pass vcs.Disabled to skip it.
	SafetyCheck SafetyCheck
	Debounce    time.Duration
	// OnResult is called from the queue goroutine after every task.
	OnResult func(Result)
	// Metrics, when set, counts every outcome.
	Metrics *metrics.Registry
	Watch   WatchFunc
}

// Session is a running watch over a migrations directory.
type Session struct {
	filter    WatchFilter
	source    Source
	handler   *Handler
	queue     *Queue
	logger    *logging.Logger
	ready     chan struct{}
	attached  atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// Watch starts watching the runner's migrations directory. Files present at
// startup are left alone; only later additions and edits trigger a resync.
func Watch(runner Runner, options Options) (*Session, error) {
	if runner == nil {
		return nil, ErrNoMigrationsConfig
	}
	filter, err := NewWatchFilter(runner.Settings())
	if err != nil {
		return nil, err
	}

	logger := options.Logger
	if logger == nil {
		logger = logging.NewLogger(logging.LevelInfo)
	}
	safety := options.SafetyCheck
	if safety == nil {
		safety = vcs.Git{}
	}
	watch := options.Watch
	if watch == nil {
		watch = defaultWatch
	}

	onResult := options.OnResult
	if options.Metrics != nil {
		onResult = func(result Result) {
			options.Metrics.RecordResync(string(result.Outcome), result.Duration)
			if options.OnResult != nil {
				options.OnResult(result)
			}
		}
	}

	queue := NewQueue(logger)
	session := &Session{
		filter:  filter,
		handler: NewHandler(runner, filter, safety, queue, logger, onResult),
		queue:   queue,
		logger:  logger,
		ready:   make(chan struct{}),
	}

	source, err := watch(filter.Path, session.dispatch, watcher.Options{
		Logger:    logger,
		Debounce:  options.Debounce,
		Recursive: filter.Recursive,
		Ignored:   filter.Ignored,
	})
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", filter.Root, err)
	}
	session.source = source
	if reporter, ok := source.(interface{ SetErrorHandler(func(error)) }); ok {
		reporter.SetErrorHandler(func(err error) {
			logger.Error("watch stopped", map[string]string{
				"root":  filter.Root,
				"error": err.Error(),
			})
		})
	}

	go session.awaitReady()
	return session, nil
}

func defaultWatch(root string, callback func(watcher.Event), options watcher.Options) (Source, error) {
	return watcher.Watch(root, callback, options)
}

func (session *Session) awaitReady() {
	<-session.source.Ready()
	session.logger.Info(fmt.Sprintf("watching %s", session.filter.Root), nil)
	session.attached.Store(true)
	close(session.ready)
}

func (session *Session) dispatch(event watcher.Event) {
	if !session.attached.Load() {
		return
	}
	switch event.Op {
	case watcher.OpAdd:
		session.logger.Info(fmt.Sprintf("added: %s", event.Path), nil)
		session.handler.Handle(context.Background(), event.Path)
	case watcher.OpChange:
		session.logger.Info(fmt.Sprintf("changed: %s", event.Path), nil)
		session.handler.Handle(context.Background(), event.Path)
	case watcher.OpUnlink:
		session.logger.Warn(fmt.Sprintf("warning: %s was deleted, but migwatch doesn't handle deletions", event.Path), nil)
	}
}

// Ready is closed once the watch is in place and notifications are handled.
func (session *Session) Ready() <-chan struct{} {
	return session.ready
}

// Root is the watch root: the migrations path, or path/* when not recursive.
func (session *Session) Root() string {
	return session.filter.Root
}

// Idle reports whether no resync is running or waiting.
func (session *Session) Idle() bool {
	return session.queue.Idle()
}

// Close stops notifications. Resyncs already queued still run.
func (session *Session) Close() error {
	session.closeOnce.Do(func() {
		session.closeErr = session.source.Close()
	})
	return session.closeErr
}
