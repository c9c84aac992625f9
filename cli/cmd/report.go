package cmd

import (
	"errors"

	lodelibrary "github.com/justapithecus/lode/lode"
	"github.com/urfave/cli/v2"

	"github.com/percy/percy-go/cli/render"
	"github.com/percy/percy-go/cli/tui"
	"github.com/percy/percy-go/lode"
)

// ReportCommand returns the report command.
// It reads the build report dataset written by upload and finalize.
func ReportCommand() *cli.Command {
	return &cli.Command{
		Name:  "report",
		Usage: "Query the local or S3 build report dataset",
		Flags: append(ReadOnlyFlags(),
			ConfigFlag,
			ReportBackendFlag,
			ReportPathFlag,
			&cli.StringFlag{Name: "build-id", Usage: "Only records of this build"},
			&cli.StringFlag{Name: "project", Usage: "Only records of this project"},
			&cli.StringFlag{Name: "kind", Usage: "Record kind: build, resource, snapshot, finalize, metrics"},
			&cli.BoolFlag{Name: "metrics", Usage: "Show the latest metrics record only"},
			TUIFlag,
		),
		Action: reportAction,
	}
}

func reportAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return configError("%v", err)
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return configError("%v", err)
	}
	rc := reportSettings(c, cfg.Report)
	if rc.Path == "" {
		return configError("report requires --report-path or report.path in config")
	}
	if c.Bool("tui") && !c.Bool("metrics") {
		return configError("--tui is only supported with --metrics")
	}
	switch kind := c.String("kind"); kind {
	case "", lode.RecordKindBuild, lode.RecordKindResource, lode.RecordKindSnapshot,
		lode.RecordKindFinalize, lode.RecordKindMetrics:
	default:
		return configError("unknown record kind %q", kind)
	}

	ctx, stop := signalContext(c)
	defer stop()

	var ds lodelibrary.Dataset
	switch rc.Backend {
	case "fs":
		ds, err = lode.NewReadDatasetFS(rc.Dataset, rc.Path)
	case "s3":
		bucket, prefix := lode.ParseS3Path(rc.Path)
		ds, err = lode.NewReadDatasetS3(ctx, rc.Dataset, lode.S3Config{
			Bucket:       bucket,
			Prefix:       prefix,
			Region:       rc.Region,
			Endpoint:     rc.Endpoint,
			UsePathStyle: rc.S3PathStyle,
		})
	default:
		return configError("unknown report backend %q (must be fs or s3)", rc.Backend)
	}
	if err != nil {
		return remoteError("open report", err)
	}

	if c.Bool("metrics") {
		latest, err := lode.QueryLatestMetrics(ctx, ds, c.String("build-id"))
		if err != nil {
			return reportQueryError(err)
		}
		if c.Bool("tui") {
			return r.RenderTUI(tui.ViewMetrics, metricsStats(latest))
		}
		return r.RenderTitled("Build metrics", latest)
	}

	records, err := lode.QueryRecords(ctx, ds, lode.Query{
		BuildID:    c.String("build-id"),
		Project:    c.String("project"),
		RecordKind: c.String("kind"),
	})
	if err != nil {
		return reportQueryError(err)
	}
	return r.Render(records)
}

func reportQueryError(err error) error {
	if errors.Is(err, lode.ErrNoRecordsFound) {
		return cli.Exit(err.Error(), exitRemoteError)
	}
	return remoteError("query report", err)
}

// metricsStats lays out a metrics record as counter boxes.
func metricsStats(record map[string]any) *tui.Stats {
	stat := func(label, field, kind string) tui.Stat {
		v, _ := record[field].(float64)
		return tui.Stat{Label: label, Value: int64(v), Kind: kind}
	}
	title := "Build metrics"
	if id, ok := record["build_id"].(string); ok && id != "" {
		title += " for " + id
	}
	return &tui.Stats{
		Title: title,
		Stats: []tui.Stat{
			stat("Uploaded", "resources_uploaded", "success"),
			stat("Already present", "resources_skipped", ""),
			stat("Deduplicated", "resources_deduped", ""),
			stat("Snapshots", "snapshots_created", ""),
			stat("Requests", "requests_total", ""),
			stat("Retries", "retries", "warning"),
			stat("Failed requests", "requests_failed", "error"),
			stat("Report failures", "report_write_failure", "error"),
		},
		PerRow: 4,
	}
}
