package logging

import (
	"strconv"
	"sync"
	"testing"
	"time"
)

func TestLogBufferKeepsNewestEntries(t *testing.T) {
	buffer := NewLogBuffer(2)
	buffer.Add(LogEntry{Message: "added: 0-a.sql"})
	buffer.Add(LogEntry{Message: "added: 1-b.sql"})
	buffer.Add(LogEntry{Message: "changed: 1-b.sql"})

	entries := buffer.List()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Message != "added: 1-b.sql" {
		t.Fatalf("expected 1-b add, got %q", entries[0].Message)
	}
	if entries[1].Message != "changed: 1-b.sql" {
		t.Fatalf("expected 1-b change, got %q", entries[1].Message)
	}
}

func TestLogBufferEntryLimit(t *testing.T) {
	buffer := NewLogBuffer(3)
	buffer.Add(LogEntry{Message: "watching"})
	buffer.Add(LogEntry{Message: "Undoing migrations..."})

	entries := buffer.List()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Message != "watching" {
		t.Fatalf("expected watching, got %q", entries[0].Message)
	}
	if entries[1].Message != "Undoing migrations..." {
		t.Fatalf("expected undo, got %q", entries[1].Message)
	}
}

func TestLogBufferConcurrentAdds(t *testing.T) {
	buffer := NewLogBuffer(50)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				buffer.Add(LogEntry{
					Timestamp: time.Now(),
					Message:   "changed: " + strconv.Itoa(worker),
				})
			}
		}(i)
	}
	wg.Wait()

	entries := buffer.List()
	if len(entries) != 50 {
		t.Fatalf("expected 50 entries, got %d", len(entries))
	}
}
