package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/percy/percy-go/types"
)

// NewApp returns the percy CLI application.
func NewApp(commit string) *cli.App {
	return &cli.App{
		Name:    "percy",
		Usage:   "Percy visual testing client",
		Version: fmt.Sprintf("%s (commit: %s)", types.Version, commit),
		Commands: []*cli.Command{
			UploadCommand(),
			FinalizeCommand(),
			BuildCommand(),
			EnvCommand(),
			ReportCommand(),
			VersionCommand(commit),
		},
	}
}
