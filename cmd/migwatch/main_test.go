package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestUpAndStatusAgainstSQLite(t *testing.T) {
	dir := isolate(t)
	migrations := filepath.Join(dir, "migrations")
	if err := os.MkdirAll(migrations, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for name, content := range map[string]string{
		"0001-accounts.sql": "CREATE TABLE accounts (id INTEGER PRIMARY KEY);\n-- DOWN\nDROP TABLE accounts;\n",
		"0002-orders.sql":   "CREATE TABLE orders (id INTEGER PRIMARY KEY);\n-- DOWN\nDROP TABLE orders;\n",
	} {
		if err := os.WriteFile(filepath.Join(migrations, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	args := []string{"--dsn", filepath.Join(dir, "dev.db")}

	var out, errOut bytes.Buffer
	if code := runUp(args, &out, &errOut); code != exitOK {
		t.Fatalf("up failed with %d: %s", code, errOut.String())
	}
	if out.String() != "applied 0001-accounts.sql\napplied 0002-orders.sql\n" {
		t.Fatalf("unexpected up output %q", out.String())
	}

	out.Reset()
	if code := runUp(args, &out, &errOut); code != exitOK {
		t.Fatalf("second up failed with %d: %s", code, errOut.String())
	}
	if out.String() != "no pending migrations\n" {
		t.Fatalf("unexpected second up output %q", out.String())
	}

	out.Reset()
	if code := runStatus(args, &out, &errOut); code != exitOK {
		t.Fatalf("status failed with %d: %s", code, errOut.String())
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header and two rows, got %q", out.String())
	}
	if !strings.HasPrefix(lines[1], "applied") || !strings.HasSuffix(lines[1], "0001-accounts.sql") {
		t.Fatalf("unexpected status row %q", lines[1])
	}
}

func TestCommandsReportUsageErrors(t *testing.T) {
	isolate(t)

	var out, errOut bytes.Buffer
	if code := runStatus([]string{"--driver", "oracle"}, &out, &errOut); code != exitUsage {
		t.Fatalf("expected usage exit code, got %d", code)
	}
	if !strings.Contains(errOut.String(), "unsupported driver") {
		t.Fatalf("expected driver error, got %q", errOut.String())
	}

	errOut.Reset()
	if code := runWatch([]string{"--help"}, &out, &errOut); code != exitOK {
		t.Fatalf("expected help to exit 0, got %d", code)
	}
	if !strings.Contains(out.String(), "Usage: migwatch") {
		t.Fatalf("expected usage on stdout")
	}
}

func TestWatchFailsWithoutMigrationsDir(t *testing.T) {
	dir := isolate(t)

	var out, errOut bytes.Buffer
	code := runWatch([]string{"--path", filepath.Join(dir, "missing"), "--dsn", filepath.Join(dir, "dev.db")}, &out, &errOut)
	if code != exitFailure {
		t.Fatalf("expected failure exit code, got %d", code)
	}
	if !strings.Contains(errOut.String(), "watch failed") {
		t.Fatalf("expected watch failure log, got %q", errOut.String())
	}
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	if code := runVersion(&out); code != exitOK {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if !strings.HasPrefix(out.String(), "migwatch ") {
		t.Fatalf("unexpected version output %q", out.String())
	}
}
