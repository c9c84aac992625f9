// Package main provides the percy CLI entrypoint.
//
// Usage:
//
//	percy <command> [subcommand] [options]
//
// Exit codes:
//   - 0: success
//   - 1: API or runtime failure
//   - 2: invalid configuration or arguments
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/percy/percy-go/cli/cmd"
)

// Commit is set via ldflags at build time.
var commit = "unknown"

func main() {
	app := cmd.NewApp(commit)
	app.ExitErrHandler = exitErrHandler

	if err := app.Run(os.Args); err != nil {
		// ExitErrHandler already exited for cli.ExitCoder errors.
		os.Exit(exitCode(err))
	}
}

// exitCode maps an error to a process exit code: the ExitCoder's code when
// there is one, 1 otherwise.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		return exitCoder.ExitCode()
	}
	return 1
}

// exitErrHandler prints the error and exits with its code.
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}

	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()
		// cli.Exit("", N).Error() is "exit status N"; skip those.
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(code)
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
