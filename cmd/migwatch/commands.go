package main

import (
	"io"
	"os"
)

type command interface {
	Run(args []string) int
}

type commandDeps struct {
	Stdout     io.Writer
	Stderr     io.Writer
	RunWatch   func(args []string, out io.Writer, errOut io.Writer) int
	RunStatus  func(args []string, out io.Writer, errOut io.Writer) int
	RunUp      func(args []string, out io.Writer, errOut io.Writer) int
	RunVersion func(out io.Writer) int
}

func defaultCommandDeps() commandDeps {
	return commandDeps{
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
		RunWatch:   runWatch,
		RunStatus:  runStatus,
		RunUp:      runUp,
		RunVersion: runVersion,
	}
}

type watchCommand struct {
	deps commandDeps
}

func (c watchCommand) Run(args []string) int {
	return c.deps.RunWatch(args, c.deps.Stdout, c.deps.Stderr)
}

type statusCommand struct {
	deps commandDeps
}

func (c statusCommand) Run(args []string) int {
	return c.deps.RunStatus(args, c.deps.Stdout, c.deps.Stderr)
}

type upCommand struct {
	deps commandDeps
}

func (c upCommand) Run(args []string) int {
	return c.deps.RunUp(args, c.deps.Stdout, c.deps.Stderr)
}

type versionCommand struct {
	deps commandDeps
}

func (c versionCommand) Run(args []string) int {
	return c.deps.RunVersion(c.deps.Stdout)
}

// resolveCommand picks the subcommand from the first argument. Anything that
// is not a known subcommand, flags included, runs watch.
func resolveCommand(args []string, deps commandDeps) (command, []string) {
	if len(args) == 0 {
		return watchCommand{deps: deps}, args
	}
	switch args[0] {
	case "watch":
		return watchCommand{deps: deps}, args[1:]
	case "status":
		return statusCommand{deps: deps}, args[1:]
	case "up":
		return upCommand{deps: deps}, args[1:]
	case "version":
		return versionCommand{deps: deps}, args[1:]
	}
	return watchCommand{deps: deps}, args
}
