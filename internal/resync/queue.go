package resync

import (
	"fmt"
	"runtime/debug"
	"sync"

	"migwatch/internal/logging"
)

type queuedJob struct {
	run  func()
	done chan struct{}
}

// Queue runs jobs one at a time in the order they were added. A drain
// goroutine is started when work arrives and exits once the queue is empty.
type Queue struct {
	mutex   sync.Mutex
	pending []queuedJob
	running bool
	logger  *logging.Logger
}

func NewQueue(logger *logging.Logger) *Queue {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Queue{logger: logger}
}

// Add appends run and returns a channel closed after it has finished.
func (queue *Queue) Add(run func()) <-chan struct{} {
	job := queuedJob{run: run, done: make(chan struct{})}

	queue.mutex.Lock()
	queue.pending = append(queue.pending, job)
	if !queue.running {
		queue.running = true
		go queue.drain()
	}
	queue.mutex.Unlock()
	return job.done
}

// Len returns the number of jobs waiting behind the active one.
func (queue *Queue) Len() int {
	queue.mutex.Lock()
	defer queue.mutex.Unlock()
	return len(queue.pending)
}

// Idle reports whether no job is running or waiting.
func (queue *Queue) Idle() bool {
	queue.mutex.Lock()
	defer queue.mutex.Unlock()
	return !queue.running && len(queue.pending) == 0
}

func (queue *Queue) drain() {
	for {
		queue.mutex.Lock()
		if len(queue.pending) == 0 {
			queue.running = false
			queue.mutex.Unlock()
			return
		}
		job := queue.pending[0]
		queue.pending[0] = queuedJob{}
		queue.pending = queue.pending[1:]
		queue.mutex.Unlock()

		queue.execute(job)
	}
}

func (queue *Queue) execute(job queuedJob) {
	defer close(job.done)
	defer func() {
		if recovered := recover(); recovered != nil {
			queue.logger.Error("queued job panicked", map[string]string{
				"component": "resync",
				"panic":     fmt.Sprint(recovered),
				"stack":     string(debug.Stack()),
			})
		}
	}()
	if job.run != nil {
		job.run()
	}
}
