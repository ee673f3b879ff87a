package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"migwatch/internal/logging"
	"migwatch/internal/metrics"
	"migwatch/internal/migrator"
	"migwatch/internal/resync"
	"migwatch/internal/vcs"
	"migwatch/internal/version"
)

const shutdownGrace = 30 * time.Second

func runWatch(args []string, out io.Writer, errOut io.Writer) int {
	cfg, code, ok := loadCommandConfig("watch", args, out, errOut)
	if !ok {
		return code
	}
	logger := logging.NewLoggerWithOutput(nil, cfg.LogLevel, errOut)
	logConfigSources(logger, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner, err := openMigrator(ctx, cfg, logger)
	if err != nil {
		logger.Error("open database failed", map[string]string{
			"driver": cfg.Driver,
			"error":  err.Error(),
		})
		return exitFailure
	}
	defer runner.Close()

	var safety resync.SafetyCheck = vcs.Git{}
	if !cfg.GitCheck {
		safety = vcs.Disabled{}
	}
	registry := metrics.NewRegistry()
	session, err := resync.Watch(runner, resync.Options{
		Logger:      logger,
		SafetyCheck: safety,
		Debounce:    cfg.Debounce,
		Metrics:     registry,
		OnResult: func(result resync.Result) {
			logger.Debug("resync finished", map[string]string{
				"path":       result.Task.Path,
				"outcome":    string(result.Outcome),
				"rolledback": strconv.Itoa(len(result.Rollback)),
				"reapplied":  strconv.Itoa(len(result.Reapply)),
				"duration":   result.Duration.String(),
			})
		},
	})
	if err != nil {
		logger.Error("watch failed", map[string]string{
			"path":  cfg.Path,
			"error": err.Error(),
		})
		return exitFailure
	}

	signalCh := make(chan os.Signal, 2)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signalCh)
	stopSignals := watchShutdownSignals(logger, cancel, signalCh)
	defer stopSignals()

	<-ctx.Done()
	if err := session.Close(); err != nil {
		logger.Warn("close watch failed", map[string]string{
			"error": err.Error(),
		})
	}
	waitForIdle(session.Idle, shutdownGrace, logger)
	if registry.Total() > 0 {
		logger.Info("resync summary", registry.Fields())
	}
	return exitOK
}

// loadCommandConfig loads config for a subcommand and handles help, version
// and usage errors. ok is false when the command should exit with code.
func loadCommandConfig(name string, args []string, out io.Writer, errOut io.Writer) (Config, int, bool) {
	cfg, err := loadConfig(name, args, out)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return Config{}, exitOK, false
		}
		fmt.Fprintf(errOut, "migwatch: %v\n", err)
		fmt.Fprintln(errOut, "Run 'migwatch --help' for usage.")
		return Config{}, exitUsage, false
	}
	if cfg.ShowVersion {
		return Config{}, runVersion(out), false
	}
	return cfg, exitOK, true
}

func openMigrator(ctx context.Context, cfg Config, logger *logging.Logger) (*migrator.Migrator, error) {
	return migrator.Open(ctx, migrator.Config{
		Driver:    cfg.Driver,
		DSN:       cfg.DSN,
		Path:      cfg.Path,
		Recursive: cfg.Recursive,
		Pattern:   cfg.Pattern,
		Table:     cfg.Table,
		Logger:    logger,
	})
}

func runVersion(out io.Writer) int {
	fmt.Fprintln(out, version.GetVersionInfo().String())
	return exitOK
}
