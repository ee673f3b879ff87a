package migrator

import (
	"errors"
	"strings"
	"testing"
)

func TestDialectForAliases(t *testing.T) {
	cases := map[string]string{
		"sqlite":     "sqlite",
		"SQLite3":    "sqlite",
		"postgresql": "postgres",
		"pgx":        "postgres",
		"mysql":      "mysql",
		"mariadb":    "mysql",
	}
	for driver, expected := range cases {
		dialect, err := DialectFor(driver)
		if err != nil {
			t.Fatalf("DialectFor(%q): %v", driver, err)
		}
		if dialect.Name != expected {
			t.Fatalf("DialectFor(%q) = %q, want %q", driver, dialect.Name, expected)
		}
	}
}

func TestDialectForUnknown(t *testing.T) {
	_, err := DialectFor("oracle")
	if !errors.Is(err, ErrUnsupportedDriver) {
		t.Fatalf("expected ErrUnsupportedDriver, got %v", err)
	}
	if !strings.Contains(err.Error(), "sqlite, postgres, mysql") {
		t.Fatalf("expected supported drivers in %q", err)
	}
}

func TestDriversResolve(t *testing.T) {
	for _, driver := range Drivers() {
		dialect, err := DialectFor(driver)
		if err != nil || dialect.Name != driver {
			t.Fatalf("DialectFor(%q) = %q, %v", driver, dialect.Name, err)
		}
	}
}

func TestRebind(t *testing.T) {
	postgres, _ := DialectFor("postgres")
	mysql, _ := DialectFor("mysql")
	query := "INSERT INTO t (name, applied_at) VALUES (?, ?)"

	if got := postgres.Rebind(query); got != "INSERT INTO t (name, applied_at) VALUES ($1, $2)" {
		t.Fatalf("postgres rebind = %q", got)
	}
	if got := mysql.Rebind(query); got != query {
		t.Fatalf("mysql rebind = %q", got)
	}
}
