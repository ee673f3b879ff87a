package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"migwatch/internal/logging"
)

func runStatus(args []string, out io.Writer, errOut io.Writer) int {
	cfg, code, ok := loadCommandConfig("status", args, out, errOut)
	if !ok {
		return code
	}
	logger := logging.NewLoggerWithOutput(nil, cfg.LogLevel, errOut)
	ctx := context.Background()

	runner, err := openMigrator(ctx, cfg, logger)
	if err != nil {
		logger.Error("open database failed", map[string]string{
			"driver": cfg.Driver,
			"error":  err.Error(),
		})
		return exitFailure
	}
	defer runner.Close()

	statuses, err := runner.Status(ctx)
	if err != nil {
		logger.Error("read status failed", map[string]string{
			"error": err.Error(),
		})
		return exitFailure
	}

	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "STATUS\tAPPLIED AT\tMIGRATION")
	for _, status := range statuses {
		state := "pending"
		switch {
		case status.Missing:
			state = "missing"
		case status.Applied:
			state = "applied"
		}
		appliedAt := "-"
		if !status.AppliedAt.IsZero() {
			appliedAt = status.AppliedAt.Local().Format(time.DateTime)
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\n", state, appliedAt, status.Name)
	}
	if err := writer.Flush(); err != nil {
		return exitFailure
	}
	return exitOK
}

func runUp(args []string, out io.Writer, errOut io.Writer) int {
	cfg, code, ok := loadCommandConfig("up", args, out, errOut)
	if !ok {
		return code
	}
	logger := logging.NewLoggerWithOutput(nil, cfg.LogLevel, errOut)
	ctx := context.Background()

	runner, err := openMigrator(ctx, cfg, logger)
	if err != nil {
		logger.Error("open database failed", map[string]string{
			"driver": cfg.Driver,
			"error":  err.Error(),
		})
		return exitFailure
	}
	defer runner.Close()

	applied, err := runner.UpAll(ctx)
	if err != nil {
		logger.Error("apply failed", map[string]string{
			"error": err.Error(),
		})
		return exitFailure
	}
	if len(applied) == 0 {
		fmt.Fprintln(out, "no pending migrations")
		return exitOK
	}
	for _, name := range applied {
		fmt.Fprintf(out, "applied %s\n", name)
	}
	return exitOK
}
