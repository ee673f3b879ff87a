package resync

import (
	"context"
	"fmt"
	"os"

	"migwatch/internal/logging"
)

const trackedWarning = "warning: the migration you are changing (%s) is already being tracked by git.  " +
	"Make sure you know what you're doing, especially if the migration has already been applied outside your local dev environment."

// Handler turns add and change notifications into queued resyncs.
type Handler struct {
	filter   WatchFilter
	runner   Runner
	safety   SafetyCheck
	queue    *Queue
	logger   *logging.Logger
	onResult func(Result)
}

func NewHandler(runner Runner, filter WatchFilter, safety SafetyCheck, queue *Queue, logger *logging.Logger, onResult func(Result)) *Handler {
	if logger == nil {
		logger = logging.Discard()
	}
	if queue == nil {
		queue = NewQueue(logger)
	}
	return &Handler{
		filter:   filter,
		runner:   runner,
		safety:   safety,
		queue:    queue,
		logger:   logger,
		onResult: onResult,
	}
}

// Handle queues a resync for path. It returns a channel that is closed once
// the resync has run, or nil when path is a directory or fails the pattern.
func (handler *Handler) Handle(ctx context.Context, path string) <-chan struct{} {
	info, err := os.Stat(path)
	existed := err == nil
	if existed && info.IsDir() {
		return nil
	}
	if !handler.filter.Relevant(path) {
		return nil
	}

	handler.warnIfTracked(ctx, path)

	task := Task{Path: path, Existed: existed}
	return handler.queue.Add(func() {
		result := Resync(ctx, handler.runner, task, handler.logger)
		if handler.onResult != nil {
			handler.onResult(result)
		}
	})
}

func (handler *Handler) warnIfTracked(ctx context.Context, path string) {
	if handler.safety == nil {
		return
	}
	defer func() {
		if recovered := recover(); recovered != nil {
			handler.logger.Debug("safety check panicked", map[string]string{
				"component": "resync",
				"path":      path,
				"panic":     fmt.Sprint(recovered),
			})
		}
	}()

	tracked, err := handler.safety.Tracked(ctx, path)
	if err != nil {
		handler.logger.Debug("safety check failed", map[string]string{
			"component": "resync",
			"path":      path,
			"error":     err.Error(),
		})
		return
	}
	if tracked {
		handler.logger.Warn(fmt.Sprintf(trackedWarning, path), nil)
	}
}
