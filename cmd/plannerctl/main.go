// Package main is the operator CLI for the planner engine. It runs against
// the backend named by the usual configuration (PLANNER_CONFIG_FILE and env).
//
//	plannerctl migrate [up|down|status]
//	plannerctl seed  -user U modules.yaml
//	plannerctl run   -user U "move vectors to 2026-03-01 14:00"
//	plannerctl day   -user U 2026-03-01
//	plannerctl month -user U [2026-03]
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "plannerctl: %v\n", err)
		os.Exit(1)
	}
}

const usage = `usage: plannerctl <command> [flags] [args]

commands:
  migrate [up|down|status]   apply, revert or list postgres migrations
  seed  -user U FILE         load course modules from a YAML file
  run   -user U "COMMAND"    interpret one planner command
  day   -user U YYYY-MM-DD   print one day's calendar
  month -user U [YYYY-MM]    print one month's calendar (default: current)
`

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return fmt.Errorf("no command given")
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "migrate":
		return migrateCommand(ctx, rest, stdout, stderr)
	case "seed":
		return seedCommand(ctx, rest, stdout, stderr)
	case "run":
		return runCommand(ctx, rest, stdout, stderr)
	case "day":
		return dayCommand(ctx, rest, stdout, stderr)
	case "month":
		return monthCommand(ctx, rest, stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return nil
	default:
		fmt.Fprint(stderr, usage)
		return fmt.Errorf("unknown command: %s", cmd)
	}
}
