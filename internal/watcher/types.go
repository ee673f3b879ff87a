package watcher

import (
	"sync"
	"time"

	"migwatch/internal/logging"

	"github.com/fsnotify/fsnotify"
)

// Op is the kind of change reported for a path.
type Op string

const (
	OpAdd    Op = "add"
	OpChange Op = "change"
	OpUnlink Op = "unlink"
)

// Event represents a single debounced filesystem change.
type Event struct {
	Path      string
	Op        Op
	Timestamp time.Time
}

// Options controls watcher behavior.
type Options struct {
	Logger     *logging.Logger
	Debounce   time.Duration
	Recursive  bool
	MaxWatches int
	// Ignored reports whether a path should be skipped. Ignored directories
	// are not descended into.
	Ignored func(path string) bool
}

// Metrics reports watcher counters.
type Metrics struct {
	ActiveWatches   int
	EventsDelivered uint64
	EventsDropped   uint64
	Errors          uint64
	RestartAttempts int
}

// Watcher is the fsnotify-backed watch primitive.
type Watcher struct {
	root      string
	callback  func(Event)
	watcher   *fsnotify.Watcher
	mutex     sync.Mutex
	watched   map[string]struct{}
	debouncer *debouncer
	events    chan fsnotify.Event
	errors    chan error
	done      chan struct{}
	ready     chan struct{}
	closed    bool
	logger    *logging.Logger
	recursive bool
	ignored   func(string) bool

	maxWatches int

	restartMutex    sync.Mutex
	restartTimer    *time.Timer
	restartAttempts int
	errorHandler    func(error)

	eventsDelivered uint64
	eventsDropped   uint64
	errorCount      uint64
}
