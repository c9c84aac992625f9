package cmd

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/percy/percy-go/client"
)

// Exit codes.
const (
	exitSuccess     = 0
	exitRemoteError = 1
	exitConfigError = 2
)

// configError reports invalid input: flags, config file, token, paths.
func configError(format string, args ...any) error {
	return cli.Exit(fmt.Sprintf(format, args...), exitConfigError)
}

// remoteError reports a failed API call or other runtime failure.
func remoteError(what string, err error) error {
	var apiErr *client.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode > 0 {
		return cli.Exit(fmt.Sprintf("%s: %s (status %d)", what, apiErr.Message, apiErr.StatusCode), exitRemoteError)
	}
	return cli.Exit(fmt.Sprintf("%s: %v", what, err), exitRemoteError)
}
