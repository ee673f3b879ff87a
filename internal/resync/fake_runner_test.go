package resync

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"testing"
	"time"
)

type runnerCall struct {
	Kind  string
	Names []string
}

// fakeRunner discovers the files in dir and keeps the executed set in memory.
type fakeRunner struct {
	mutex       sync.Mutex
	settings    *Settings
	executed    map[string]bool
	calls       []runnerCall
	invalidated []string
	downErr     error
	upErr       error
	panicOnUp   bool
	delay       time.Duration
	active      int
	maxActive   int
}

func newFakeRunner(t *testing.T, dir string, executed ...string) *fakeRunner {
	t.Helper()
	runner := &fakeRunner{
		settings: &Settings{Path: dir, Pattern: regexp.MustCompile(`\.sql$`)},
		executed: map[string]bool{},
	}
	for _, name := range executed {
		runner.executed[name] = true
	}
	return runner
}

func writeMigrations(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("-- "+name), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
}

func (r *fakeRunner) Settings() *Settings {
	return r.settings
}

func (r *fakeRunner) Executed(context.Context) ([]Migration, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	migrations := []Migration{}
	for name := range r.executed {
		migrations = append(migrations, Migration{Name: name, Path: filepath.Join(r.settings.Path, name)})
	}
	return migrations, nil
}

func (r *fakeRunner) Discover(context.Context) ([]Migration, error) {
	entries, err := os.ReadDir(r.settings.Path)
	if err != nil {
		return nil, err
	}
	migrations := []Migration{}
	for _, entry := range entries {
		if entry.IsDir() || !r.settings.Pattern.MatchString(entry.Name()) {
			continue
		}
		migrations = append(migrations, Migration{Name: entry.Name(), Path: filepath.Join(r.settings.Path, entry.Name())})
	}
	return migrations, nil
}

func (r *fakeRunner) Down(_ context.Context, names []string) error {
	r.enter()
	defer r.leave()
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.calls = append(r.calls, runnerCall{Kind: "down", Names: append([]string{}, names...)})
	if r.downErr != nil {
		return r.downErr
	}
	for _, name := range names {
		if !r.executed[name] {
			return errors.New("not executed: " + name)
		}
		delete(r.executed, name)
	}
	return nil
}

func (r *fakeRunner) Up(_ context.Context, names []string) error {
	r.enter()
	defer r.leave()
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.calls = append(r.calls, runnerCall{Kind: "up", Names: append([]string{}, names...)})
	if r.panicOnUp {
		panic("migration exploded")
	}
	if r.upErr != nil {
		return r.upErr
	}
	for _, name := range names {
		r.executed[name] = true
	}
	return nil
}

func (r *fakeRunner) Invalidate(paths ...string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.calls = append(r.calls, runnerCall{Kind: "invalidate"})
	r.invalidated = append(r.invalidated, paths...)
}

func (r *fakeRunner) enter() {
	r.mutex.Lock()
	r.active++
	if r.active > r.maxActive {
		r.maxActive = r.active
	}
	delay := r.delay
	r.mutex.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
}

func (r *fakeRunner) leave() {
	r.mutex.Lock()
	r.active--
	r.mutex.Unlock()
}

func (r *fakeRunner) recorded() []runnerCall {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return append([]runnerCall{}, r.calls...)
}

func (r *fakeRunner) executedNames() map[string]bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	names := make(map[string]bool, len(r.executed))
	for name := range r.executed {
		names[name] = true
	}
	return names
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	if done == nil {
		t.Fatalf("expected task to be queued")
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for task")
	}
}
