package cmd

import (
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/percy/percy-go/cli/render"
	"github.com/percy/percy-go/environment"
)

// EnvironmentRow is the flattened table form of environment.Context.
type EnvironmentRow struct {
	CI                  string `json:"ci"`
	CIVersion           string `json:"ci_version"`
	Project             string `json:"project"`
	Branch              string `json:"branch"`
	CommitSha           string `json:"commit_sha"`
	CommitMessage       string `json:"commit_message"`
	Author              string `json:"author"`
	CommittedAt         string `json:"committed_at"`
	TargetBranch        string `json:"target_branch"`
	TargetCommitSha     string `json:"target_commit_sha"`
	PullRequestNumber   string `json:"pull_request_number"`
	ParallelNonce       string `json:"parallel_nonce"`
	ParallelTotalShards int    `json:"parallel_total_shards"`
	PartialBuild        bool   `json:"partial_build"`
}

// EnvCommand returns the env command.
// It resolves the build context the way upload would and makes no API calls.
func EnvCommand() *cli.Command {
	return &cli.Command{
		Name:   "env",
		Usage:  "Show the resolved CI and git context",
		Flags:  ReadOnlyFlags(),
		Action: envAction,
	}
}

func envAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return configError("%v", err)
	}
	if err := loadDotenv(); err != nil {
		return configError("dotenv: %v", err)
	}

	ctx := newEnvironment().Context()
	if r.Format() != render.FormatTable {
		return r.Render(ctx)
	}
	return r.RenderTitled("Percy environment", environmentRow(ctx))
}

func environmentRow(ctx environment.Context) EnvironmentRow {
	message, _, _ := strings.Cut(ctx.Commit.Message, "\n")
	author := ctx.Commit.AuthorName
	if ctx.Commit.AuthorEmail != "" {
		author = strings.TrimSpace(author + " <" + ctx.Commit.AuthorEmail + ">")
	}
	return EnvironmentRow{
		CI:                  ctx.CI,
		CIVersion:           ctx.CIVersion,
		Project:             ctx.Project,
		Branch:              ctx.Commit.Branch,
		CommitSha:           ctx.Commit.SHA,
		CommitMessage:       message,
		Author:              author,
		CommittedAt:         ctx.Commit.CommittedAt,
		TargetBranch:        ctx.TargetBranch,
		TargetCommitSha:     ctx.TargetCommitSha,
		PullRequestNumber:   ctx.PullRequestNumber,
		ParallelNonce:       ctx.ParallelNonce,
		ParallelTotalShards: ctx.ParallelTotalShards,
		PartialBuild:        ctx.PartialBuild,
	}
}
