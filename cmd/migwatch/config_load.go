package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"migwatch/internal/cli"
	"migwatch/internal/config"
	"migwatch/internal/config/keys"
	"migwatch/internal/logging"
	"migwatch/internal/migrator"
)

type Config struct {
	ConfigFile  string
	Path        string
	Recursive   bool
	Pattern     string
	Driver      string
	DSN         string
	Table       string
	Debounce    time.Duration
	GitCheck    bool
	LogLevel    logging.Level
	ShowVersion bool
	Sources     map[string]configSource
}

type configSource string

const (
	sourceDefault configSource = "default"
	sourceFile    configSource = "file"
	sourceEnv     configSource = "env"
	sourceFlag    configSource = "flag"
)

type settingKind int

const (
	kindString settingKind = iota
	kindBool
	kindInt
)

// settingKey ties a flag to its config file key and environment variable.
type settingKey struct {
	Flag  string
	Key   string
	Env   string
	Kind  settingKind
	Arg   string
	Desc  string
	Group string
}

var settingKeys = []settingKey{
	{Flag: "path", Key: "migrations.path", Env: "MIGWATCH_PATH", Kind: kindString, Arg: "DIR", Desc: "Migrations directory", Group: "Migrations"},
	{Flag: "recursive", Key: "migrations.recursive", Env: "MIGWATCH_RECURSIVE", Kind: kindBool, Desc: "Descend into subdirectories", Group: "Migrations"},
	{Flag: "pattern", Key: "migrations.pattern", Env: "MIGWATCH_PATTERN", Kind: kindString, Arg: "REGEXP", Desc: "Migration file name pattern", Group: "Migrations"},
	{Flag: "driver", Key: "database.driver", Env: "MIGWATCH_DRIVER", Kind: kindString, Arg: "NAME", Desc: "Database driver: " + strings.Join(migrator.Drivers(), ", "), Group: "Database"},
	{Flag: "dsn", Key: "database.dsn", Env: "MIGWATCH_DSN", Kind: kindString, Arg: "DSN", Desc: "Connection string", Group: "Database"},
	{Flag: "table", Key: "database.history-table", Env: "MIGWATCH_TABLE", Kind: kindString, Arg: "NAME", Desc: "History table", Group: "Database"},
	{Flag: "debounce-ms", Key: "watch.debounce-ms", Env: "MIGWATCH_DEBOUNCE_MS", Kind: kindInt, Arg: "N", Desc: "Quiet period before a change is handled", Group: "Watch"},
	{Flag: "git-check", Key: "watch.git-check", Env: "MIGWATCH_GIT_CHECK", Kind: kindBool, Desc: "Warn when an edited migration is tracked by git", Group: "Watch"},
	{Flag: "log-level", Key: "log.level", Env: "MIGWATCH_LOG_LEVEL", Kind: kindString, Arg: "LEVEL", Desc: "debug, info, warning or error", Group: "Logging"},
}

type flagValues struct {
	ConfigFile string
	Values     map[string]any
	Verbose    bool
	Quiet      bool
	Help       bool
	Version    bool
	Set        map[string]bool
}

// loadConfig layers defaults, the config file, MIGWATCH_* variables and flags,
// in that order. Help output goes to out.
func loadConfig(name string, args []string, out io.Writer) (Config, error) {
	defaults, err := config.LoadSettings("", config.DefaultsTOML, nil)
	if err != nil {
		return Config{}, err
	}
	flags, err := parseFlags(name, args, defaults, out)
	if err != nil {
		return Config{}, err
	}
	if flags.Version {
		return Config{ShowVersion: true}, nil
	}

	cfg := Config{
		Sources: make(map[string]configSource),
	}

	configFile := config.DefaultFile
	configSourceValue := sourceDefault
	if rawFile := strings.TrimSpace(os.Getenv("MIGWATCH_CONFIG")); rawFile != "" {
		configFile = rawFile
		configSourceValue = sourceEnv
	}
	if flags.Set["config"] {
		trimmed := strings.TrimSpace(flags.ConfigFile)
		if trimmed == "" {
			return Config{}, fmt.Errorf("invalid --config: value cannot be empty")
		}
		configFile = trimmed
		configSourceValue = sourceFlag
	}
	fileKeys, err := readFileKeys(configFile)
	if err != nil {
		if configSourceValue != sourceDefault || !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("config file %s: %w", configFile, err)
		}
	}
	cfg.ConfigFile = configFile
	cfg.Sources["config"] = configSourceValue

	overrides := make(map[string]any)
	for _, setting := range settingKeys {
		source := sourceDefault
		if fileKeys[keys.NormalizeKey(setting.Key)] {
			source = sourceFile
		}
		if raw := strings.TrimSpace(os.Getenv(setting.Env)); raw != "" {
			if value, ok := parseEnvValue(setting.Kind, raw); ok {
				overrides[setting.Key] = value
				source = sourceEnv
			}
		}
		if flags.Set[setting.Flag] {
			overrides[setting.Key] = flags.Values[setting.Flag]
			source = sourceFlag
		}
		cfg.Sources[setting.Flag] = source
	}

	if flags.Verbose && flags.Quiet {
		return Config{}, fmt.Errorf("invalid flags: --verbose and --quiet cannot be combined")
	}
	if flags.Verbose {
		overrides["log.level"] = string(logging.LevelDebug)
		cfg.Sources["log-level"] = sourceFlag
	}
	if flags.Quiet {
		overrides["log.level"] = string(logging.LevelWarning)
		cfg.Sources["log-level"] = sourceFlag
	}

	settings, err := config.LoadSettings(configFile, config.DefaultsTOML, overrides)
	if err != nil {
		return Config{}, err
	}
	if err := settings.Validate(); err != nil {
		return Config{}, err
	}
	if _, err := migrator.DialectFor(settings.Database.Driver); err != nil {
		return Config{}, err
	}
	level, _ := logging.ParseLevel(settings.Log.Level)

	cfg.Path = settings.Migrations.Path
	cfg.Recursive = settings.Migrations.Recursive
	cfg.Pattern = settings.Migrations.Pattern
	cfg.Driver = settings.Database.Driver
	cfg.DSN = settings.Database.DSN
	cfg.Table = settings.Database.HistoryTable
	cfg.Debounce = settings.Watch.Debounce()
	cfg.GitCheck = settings.Watch.GitCheck
	cfg.LogLevel = level
	return cfg, nil
}

func readFileKeys(path string) (map[string]bool, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	store, err := keys.Decode(payload, keys.FormatFor(path))
	if err != nil {
		return nil, err
	}
	found := make(map[string]bool)
	for key := range store.Flat() {
		found[key] = true
	}
	return found, nil
}

func parseEnvValue(kind settingKind, raw string) (any, bool) {
	switch kind {
	case kindBool:
		parsed, err := strconv.ParseBool(raw)
		return parsed, err == nil
	case kindInt:
		parsed, err := strconv.ParseInt(raw, 10, 64)
		return parsed, err == nil
	default:
		return raw, true
	}
}

func parseFlags(name string, args []string, defaults config.Settings, out io.Writer) (flagValues, error) {
	if args == nil {
		args = []string{}
	}
	fs := flag.NewFlagSet("migwatch "+name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	configFile := fs.String("config", config.DefaultFile, "Config file (TOML or YAML)")
	stringValues := make(map[string]*string)
	boolValues := make(map[string]*bool)
	intValues := make(map[string]*int64)
	for _, setting := range settingKeys {
		switch setting.Kind {
		case kindBool:
			boolValues[setting.Flag] = fs.Bool(setting.Flag, boolDefault(defaults, setting.Flag), setting.Desc)
		case kindInt:
			intValues[setting.Flag] = fs.Int64(setting.Flag, defaults.Watch.DebounceMS, setting.Desc)
		default:
			stringValues[setting.Flag] = fs.String(setting.Flag, defaultValue(defaults, setting.Flag), setting.Desc)
		}
	}
	verbose := fs.Bool("verbose", false, "Enable debug logging")
	quiet := fs.Bool("quiet", false, "Reduce logging to warnings")
	helpVersion := cli.AddHelpVersionFlags(fs, "Show help", "Print version and exit")

	fs.Usage = func() {
		printHelp(fs.Output(), name, defaults)
	}

	if err := fs.Parse(args); err != nil {
		return flagValues{}, err
	}
	if fs.NArg() > 0 {
		return flagValues{}, fmt.Errorf("unexpected argument %q", fs.Arg(0))
	}

	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})

	values := make(map[string]any, len(settingKeys))
	for flagName, value := range stringValues {
		values[flagName] = *value
	}
	for flagName, value := range boolValues {
		values[flagName] = *value
	}
	for flagName, value := range intValues {
		values[flagName] = *value
	}

	flags := flagValues{
		ConfigFile: *configFile,
		Values:     values,
		Verbose:    *verbose,
		Quiet:      *quiet,
		Help:       helpVersion.Help,
		Version:    helpVersion.Version,
		Set:        set,
	}

	if flags.Help {
		if out == nil {
			out = os.Stdout
		}
		fs.SetOutput(out)
		fs.Usage()
		return flags, flag.ErrHelp
	}
	return flags, nil
}

func defaultValue(defaults config.Settings, flagName string) string {
	switch flagName {
	case "path":
		return defaults.Migrations.Path
	case "pattern":
		return defaults.Migrations.Pattern
	case "driver":
		return defaults.Database.Driver
	case "dsn":
		return defaults.Database.DSN
	case "table":
		return defaults.Database.HistoryTable
	case "log-level":
		return defaults.Log.Level
	}
	return ""
}

func boolDefault(defaults config.Settings, flagName string) bool {
	switch flagName {
	case "recursive":
		return defaults.Migrations.Recursive
	case "git-check":
		return defaults.Watch.GitCheck
	}
	return false
}

func printHelp(out io.Writer, name string, defaults config.Settings) {
	fmt.Fprintln(out, "Usage: migwatch [watch|status|up|version] [options]")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Watches a directory of SQL migrations and re-applies a migration, and")
	fmt.Fprintln(out, "everything after it, whenever its file is added or edited.")
	if name != "watch" {
		fmt.Fprintln(out, "")
		fmt.Fprintf(out, "Command: %s\n", name)
	}

	groups := map[string][]cli.HelpOption{}
	order := []string{}
	for _, setting := range settingKeys {
		if _, ok := groups[setting.Group]; !ok {
			order = append(order, setting.Group)
		}
		option := "--" + setting.Flag
		if setting.Arg != "" {
			option += " " + setting.Arg
		}
		groups[setting.Group] = append(groups[setting.Group], cli.HelpOption{
			Name: option,
			Desc: fmt.Sprintf("%s (env: %s, default: %s)", setting.Desc, setting.Env, formatDefault(defaults, setting)),
		})
	}
	groups["Logging"] = append(groups["Logging"],
		cli.HelpOption{Name: "--verbose", Desc: "Enable debug logging"},
		cli.HelpOption{Name: "--quiet", Desc: "Reduce logging to warnings"},
	)
	for _, group := range order {
		cli.WriteOptionGroup(out, group, groups[group])
	}

	cli.WriteOptionGroup(out, "Other", []cli.HelpOption{
		{Name: "--config FILE", Desc: fmt.Sprintf("Config file, TOML or YAML (env: MIGWATCH_CONFIG, default: %s)", config.DefaultFile)},
		{Name: "--help, -h", Desc: "Show help and exit"},
		{Name: "--version, -v", Desc: "Print version and exit"},
	})
}

func formatDefault(defaults config.Settings, setting settingKey) string {
	switch setting.Kind {
	case kindBool:
		return strconv.FormatBool(boolDefault(defaults, setting.Flag))
	case kindInt:
		return strconv.FormatInt(defaults.Watch.DebounceMS, 10)
	}
	value := defaultValue(defaults, setting.Flag)
	if value == "" {
		return "none"
	}
	return value
}

// logConfigSources records where each non-default setting came from.
func logConfigSources(logger *logging.Logger, cfg Config) {
	if logger == nil {
		return
	}
	names := make([]string, 0, len(cfg.Sources))
	for name, source := range cfg.Sources {
		if source != sourceDefault {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	fields := map[string]string{
		"config":   cfg.ConfigFile,
		"path":     cfg.Path,
		"driver":   cfg.Driver,
		"debounce": cfg.Debounce.String(),
	}
	overridden := make([]string, 0, len(names))
	for _, name := range names {
		overridden = append(overridden, name+"="+string(cfg.Sources[name]))
	}
	if len(overridden) > 0 {
		fields["sources"] = strings.Join(overridden, ",")
	}
	logger.Debug("config loaded", fields)
}
