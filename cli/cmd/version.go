package cmd

import (
	"runtime"

	"github.com/urfave/cli/v2"

	"github.com/percy/percy-go/cli/render"
	"github.com/percy/percy-go/types"
)

// VersionResponse is the response for the version command.
type VersionResponse struct {
	Version string `json:"version" yaml:"version"`
	Commit  string `json:"commit" yaml:"commit"`
	Client  string `json:"client" yaml:"client"`
	Go      string `json:"go" yaml:"go"`
	APIURL  string `json:"api_url" yaml:"api_url"`
}

// VersionCommand returns the version command. It makes no API calls.
func VersionCommand(commit string) *cli.Command {
	return &cli.Command{
		Name:   "version",
		Usage:  "Show version information",
		Flags:  ReadOnlyFlags(),
		Action: versionAction(commit),
	}
}

func versionAction(commit string) cli.ActionFunc {
	return func(c *cli.Context) error {
		r, err := render.NewRenderer(c)
		if err != nil {
			return configError("%v", err)
		}

		return r.Render(VersionResponse{
			Version: types.Version,
			Commit:  commit,
			Client:  types.ClientName,
			Go:      runtime.Version(),
			APIURL:  types.DefaultAPIURL,
		})
	}
}
