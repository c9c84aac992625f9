// Package cmd provides CLI commands for the percy binary.
package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/percy/percy-go/cli/config"
)

// Output flags shared by every command that renders a result.
var (
	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// NoColorFlag disables colored output.
	NoColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output (also honors NO_COLOR)",
	}

	// TUIFlag enables Bubble Tea interactive mode.
	// Only valid for build get and report --metrics.
	TUIFlag = &cli.BoolFlag{
		Name:  "tui",
		Usage: "Show the result in an interactive viewer",
	}
)

// Flags for commands that talk to the Percy API.
var (
	ConfigFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to config file",
		Value:   config.DefaultPath,
		EnvVars: []string{"PERCY_CONFIG"},
	}

	TokenFlag = &cli.StringFlag{
		Name:    "token",
		Usage:   "Percy project token",
		EnvVars: []string{"PERCY_TOKEN"},
	}

	APIURLFlag = &cli.StringFlag{
		Name:    "api-url",
		Usage:   "Percy API root",
		EnvVars: []string{"PERCY_API"},
	}

	ProjectFlag = &cli.StringFlag{
		Name:    "project",
		Usage:   "Project slug (org/project)",
		EnvVars: []string{"PERCY_PROJECT"},
	}

	LogLevelFlag = &cli.StringFlag{
		Name:    "log-level",
		Usage:   "Log level: debug, info, warn, error",
		Value:   "info",
		EnvVars: []string{"PERCY_LOGLEVEL"},
	}
)

// Flags selecting the build report dataset.
var (
	ReportBackendFlag = &cli.StringFlag{
		Name:  "report-backend",
		Usage: "Report storage backend: fs or s3",
	}

	ReportPathFlag = &cli.StringFlag{
		Name:  "report-path",
		Usage: "Report storage path (fs: directory, s3: bucket/prefix)",
	}
)

// ReadOnlyFlags returns the output flags.
func ReadOnlyFlags() []cli.Flag {
	return []cli.Flag{
		FormatFlag,
		NoColorFlag,
	}
}

// RemoteFlags returns the output flags plus API and config flags.
func RemoteFlags(extra ...cli.Flag) []cli.Flag {
	flags := append(ReadOnlyFlags(),
		ConfigFlag,
		TokenFlag,
		APIURLFlag,
		ProjectFlag,
		LogLevelFlag,
	)
	return append(flags, extra...)
}
