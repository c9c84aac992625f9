package cmd

import (
	"context"
	"errors"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/percy/percy-go/cli/render"
	"github.com/percy/percy-go/client"
	"github.com/percy/percy-go/lode"
)

// FinalizeResponse is the result of the finalize command.
type FinalizeResponse struct {
	BuildID   string `json:"build_id" yaml:"build_id"`
	State     string `json:"state,omitempty" yaml:"state,omitempty"`
	AllShards bool   `json:"all_shards" yaml:"all_shards"`
	BuildURL  string `json:"build_url,omitempty" yaml:"build_url,omitempty"`
}

// FinalizeCommand returns the finalize command.
//
// With --build-id it finalizes that build. With --all and no build id it
// registers a build for the current parallel nonce and finalizes every
// shard, which is how a CI job closes a parallel build of unknown size.
func FinalizeCommand() *cli.Command {
	return &cli.Command{
		Name:  "finalize",
		Usage: "Finalize a build",
		Flags: RemoteFlags(
			&cli.StringFlag{
				Name:    "build-id",
				Usage:   "Build to finalize",
				EnvVars: []string{"PERCY_BUILD_ID"},
			},
			&cli.BoolFlag{
				Name:  "all",
				Usage: "Finalize all shards of a parallel build",
			},
			ReportBackendFlag,
			ReportPathFlag,
		),
		Action: finalizeAction,
	}
}

func finalizeAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return configError("%v", err)
	}

	buildID := c.String("build-id")
	all := c.Bool("all")
	if buildID == "" && !all {
		return configError("finalize requires --build-id or --all")
	}

	s, err := openSession(c, func(cc *client.Config) {
		if buildID == "" {
			// An unknown shard count is sent as -1 so the server accepts the nonce.
			cc.Environment = cc.Environment.WithDefault("PERCY_PARALLEL_TOTAL", "-1")
		}
	})
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, stop := signalContext(c)
	defer stop()

	project := s.project(c)
	if buildID == "" {
		if s.env.ParallelNonce() == "" {
			return configError("--all requires a parallel nonce (PERCY_PARALLEL_NONCE or a supported CI)")
		}
		doc, err := s.client.CreateBuild(ctx, client.BuildOptions{Project: project})
		if err != nil {
			return remoteError("create build", err)
		}
		if doc.Data == nil || doc.Data.ID == "" {
			return remoteError("create build", errors.New("response has no build id"))
		}
		buildID = doc.Data.ID
	}

	doc, finalizeErr := s.client.FinalizeBuild(ctx, buildID, client.FinalizeOptions{AllShards: all})
	recordFinalize(ctx, c, s, buildID, project, all, finalizeErr)
	if finalizeErr != nil {
		return remoteError("finalize build", finalizeErr)
	}

	resp := FinalizeResponse{BuildID: buildID, AllShards: all}
	if doc != nil && doc.Data != nil {
		resp.State = doc.Data.Attr("state")
		resp.BuildURL = doc.Data.Attr("web-url")
	}
	return r.RenderTitled("Percy build finalized", resp)
}

// recordFinalize writes the outcome to the report dataset and notifies the
// adapter. Both are best effort.
func recordFinalize(ctx context.Context, c *cli.Context, s *session, buildID, project string, all bool, finalizeErr error) {
	ctx = context.WithoutCancel(ctx)

	report, err := openReport(ctx, s, reportSettings(c, s.config.Report), buildID, project)
	if err != nil {
		s.logger.Warn("build report disabled", map[string]any{"error": err.Error()})
	} else {
		defer func() { _ = report.Close() }()
		rec := lode.FinalizeRecord{AllShards: all, Outcome: "finalized", Ts: time.Now().UTC()}
		if finalizeErr != nil {
			rec.Outcome = "failed"
			rec.Error = finalizeErr.Error()
		}
		if err := report.WriteFinalize(ctx, rec); err != nil {
			s.logger.Warn("write finalize record failed", map[string]any{"error": err.Error()})
		}
	}

	notify(ctx, s, report, buildID, project, finalizeErr)
}
