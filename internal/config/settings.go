// Package config loads migwatch settings from a TOML or YAML file layered over
// built-in defaults.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"migwatch/internal/config/keys"
	"migwatch/internal/logging"
)

// DefaultsTOML holds the built-in settings.
//
//go:embed defaults.toml
var DefaultsTOML []byte

// DefaultFile is read from the working directory when no file is named.
const DefaultFile = "migwatch.toml"

var (
	ErrMissingPath    = errors.New("migrations.path is required")
	ErrInvalidPattern = errors.New("migrations.pattern is not a valid regular expression")
	ErrInvalidLevel   = errors.New("log.level must be debug, info, warning or error")
	ErrInvalidTiming  = errors.New("watch.debounce-ms must be positive")
)

type Settings struct {
	Migrations MigrationSettings
	Database   DatabaseSettings
	Watch      WatchSettings
	Log        LogSettings
}

type MigrationSettings struct {
	Path      string
	Recursive bool
	Pattern   string
}

type DatabaseSettings struct {
	Driver       string
	DSN          string
	HistoryTable string
}

type WatchSettings struct {
	DebounceMS int64
	GitCheck   bool
}

type LogSettings struct {
	Level string
}

func (w WatchSettings) Debounce() time.Duration {
	return time.Duration(w.DebounceMS) * time.Millisecond
}

// LoadSettings reads defaultsPayload, then the file at path if it exists, then
// overrides. Override keys use the dotted form, e.g. "database.dsn".
func LoadSettings(path string, defaultsPayload []byte, overrides map[string]any) (Settings, error) {
	defaultsStore, err := keys.Decode(defaultsPayload, keys.FormatTOML)
	if err != nil {
		return Settings{}, err
	}
	defaults := defaultsStore.Flat()
	values := defaultsStore.Flat()

	if strings.TrimSpace(path) != "" {
		payload, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Settings{}, err
			}
		} else {
			store, err := keys.Decode(payload, keys.FormatFor(path))
			if err != nil {
				return Settings{}, fmt.Errorf("%s: %w", path, err)
			}
			for key, value := range store.Flat() {
				values[key] = value
			}
		}
	}

	for key, value := range overrides {
		normalized := keys.NormalizeKey(key)
		if normalized == "" {
			continue
		}
		values[normalized] = value
	}

	settings := Settings{}
	settings.Migrations.Path = stringSetting(values, "migrations.path", "")
	settings.Migrations.Recursive = boolSetting(values, "migrations.recursive", false)
	settings.Migrations.Pattern = stringSetting(values, "migrations.pattern", "")
	settings.Database.Driver = stringSetting(values, "database.driver", "")
	settings.Database.DSN = stringSetting(values, "database.dsn", "")
	settings.Database.HistoryTable = stringSetting(values, "database.history-table", "")
	settings.Watch.DebounceMS = intSetting(values, "watch.debounce-ms", 0)
	settings.Watch.GitCheck = boolSetting(values, "watch.git-check", boolSetting(defaults, "watch.git-check", true))
	settings.Log.Level = stringSetting(values, "log.level", "")

	return normalizeSettings(settings, defaults), nil
}

func normalizeSettings(settings Settings, defaults map[string]any) Settings {
	if settings.Migrations.Pattern == "" {
		settings.Migrations.Pattern = stringSetting(defaults, "migrations.pattern", "")
	}
	if settings.Database.Driver == "" {
		settings.Database.Driver = stringSetting(defaults, "database.driver", "")
	}
	if settings.Database.HistoryTable == "" {
		settings.Database.HistoryTable = stringSetting(defaults, "database.history-table", "")
	}
	if settings.Log.Level == "" {
		settings.Log.Level = stringSetting(defaults, "log.level", "")
	}
	return settings
}

// Validate reports every problem at once.
func (s Settings) Validate() error {
	var problems []error
	if s.Migrations.Path == "" {
		problems = append(problems, ErrMissingPath)
	}
	if _, err := regexp.Compile(s.Migrations.Pattern); err != nil {
		problems = append(problems, fmt.Errorf("%w: %v", ErrInvalidPattern, err))
	}
	if s.Watch.DebounceMS <= 0 {
		problems = append(problems, fmt.Errorf("%w: got %d", ErrInvalidTiming, s.Watch.DebounceMS))
	}
	if _, ok := logging.ParseLevel(s.Log.Level); !ok {
		problems = append(problems, fmt.Errorf("%w: got %q", ErrInvalidLevel, s.Log.Level))
	}
	return errors.Join(problems...)
}

func intSetting(values map[string]any, key string, fallback int64) int64 {
	value, ok := values[keys.NormalizeKey(key)]
	if !ok {
		return fallback
	}
	if parsed, ok := keys.AsInt64(value); ok {
		return parsed
	}
	return fallback
}

func stringSetting(values map[string]any, key string, fallback string) string {
	value, ok := values[keys.NormalizeKey(key)]
	if !ok {
		return fallback
	}
	if parsed, ok := value.(string); ok {
		return strings.TrimSpace(parsed)
	}
	return fallback
}

func boolSetting(values map[string]any, key string, fallback bool) bool {
	value, ok := values[keys.NormalizeKey(key)]
	if !ok {
		return fallback
	}
	if parsed, ok := value.(bool); ok {
		return parsed
	}
	return fallback
}
