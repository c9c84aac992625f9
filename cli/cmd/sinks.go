package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/percy/percy-go/adapter"
	"github.com/percy/percy-go/adapter/redis"
	"github.com/percy/percy-go/adapter/webhook"
	"github.com/percy/percy-go/cli/config"
	"github.com/percy/percy-go/lode"
)

// reportSink bundles the record writer and the sidecar file writer of one
// build report.
type reportSink struct {
	lode.Reporter
	files lode.FileWriter
	// location is a human-readable path to the build partition, or "" when
	// reporting is disabled.
	location string
}

// reportSettings merges --report-* flags over the config file.
func reportSettings(c *cli.Context, rc config.ReportConfig) config.ReportConfig {
	if v := c.String("report-backend"); v != "" {
		rc.Backend = v
	}
	if v := c.String("report-path"); v != "" {
		rc.Path = v
	}
	if rc.Backend == "" {
		rc.Backend = "fs"
	}
	return rc
}

// openReport builds the report sink. Without a path, records are kept in
// memory only.
func openReport(ctx context.Context, s *session, rc config.ReportConfig, buildID, project string) (*reportSink, error) {
	cfg := lode.Config{
		Dataset:   rc.Dataset,
		Project:   project,
		Day:       lode.DeriveDay(s.started),
		BuildID:   buildID,
		SessionID: s.id,
		CI:        s.env.CI(),
	}

	if rc.Path == "" {
		return &reportSink{
			Reporter: lode.NewInstrumentedReporter(lode.NewStubReporter(), s.metrics),
			files:    lode.NewStubFileWriter(),
		}, nil
	}

	var (
		r   *lode.LodeReporter
		err error
	)
	switch rc.Backend {
	case "fs":
		r, err = lode.NewLodeReporter(cfg, rc.Path)
	case "s3":
		bucket, prefix := lode.ParseS3Path(rc.Path)
		r, err = lode.NewLodeS3Reporter(ctx, cfg, lode.S3Config{
			Bucket:       bucket,
			Prefix:       prefix,
			Region:       rc.Region,
			Endpoint:     rc.Endpoint,
			UsePathStyle: rc.S3PathStyle,
		})
	default:
		return nil, fmt.Errorf("unknown report backend %q (must be fs or s3)", rc.Backend)
	}
	if err != nil {
		return nil, err
	}

	return &reportSink{
		Reporter: lode.NewInstrumentedReporter(r, s.metrics),
		files:    r,
		location: rc.Path + "/" + strings.TrimSuffix(r.FilePath(""), "/files/"),
	}, nil
}

// openAdapter builds the notification adapter, or nil when none is configured.
func openAdapter(ac config.AdapterConfig) (adapter.Adapter, error) {
	switch ac.Type {
	case "":
		return nil, nil
	case "webhook":
		retries := webhook.DefaultRetries
		if ac.Retries != nil {
			retries = *ac.Retries
		}
		a, err := webhook.New(webhook.Config{
			URL:     ac.URL,
			Headers: ac.Headers,
			Timeout: ac.Timeout.Duration,
			Retries: retries,
		})
		if err != nil {
			return nil, err
		}
		return a, nil
	case "redis":
		retries := redis.DefaultRetries
		if ac.Retries != nil {
			retries = *ac.Retries
		}
		a, err := redis.New(redis.Config{
			URL:     ac.URL,
			Channel: ac.Channel,
			Timeout: ac.Timeout.Duration,
			Retries: retries,
		})
		if err != nil {
			return nil, err
		}
		return a, nil
	default:
		return nil, fmt.Errorf("unknown adapter type %q (must be webhook or redis)", ac.Type)
	}
}

// notify publishes a build_finalized event. Publishing is best effort: a
// failure is logged and never changes the command outcome.
func notify(ctx context.Context, s *session, report *reportSink, buildID, project string, buildErr error) {
	a, err := openAdapter(s.config.Adapter)
	if err != nil {
		s.logger.Warn("adapter not configured", map[string]any{"error": err.Error()})
		return
	}
	if a == nil {
		return
	}
	defer func() { _ = a.Close() }()

	snap := s.metrics.Snapshot()
	event := adapter.NewBuildFinalizedEvent(buildID, time.Now(), buildErr)
	event.Project = project
	event.Branch = s.env.Branch()
	event.CommitSha = s.env.CommitSha()
	event.CI = s.env.CI()
	event.PullRequestNumber = s.env.PullRequestNumber()
	event.ParallelNonce = s.env.ParallelNonce()
	event.ResourcesUploaded = snap.ResourcesUploaded
	event.ResourcesSkipped = snap.ResourcesSkipped
	event.BytesUploaded = snap.BytesUploaded
	event.DurationMs = time.Since(s.started).Milliseconds()
	if report != nil {
		event.ReportPath = report.location
	}

	if err := a.Publish(ctx, event); err != nil {
		s.logger.Warn("adapter publish failed", map[string]any{
			"type":  s.config.Adapter.Type,
			"error": err.Error(),
		})
		return
	}
	s.logger.Debug("adapter event published", map[string]any{"type": s.config.Adapter.Type})
}
