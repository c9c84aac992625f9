package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/percy/percy-go/cli/config"
	"github.com/percy/percy-go/cli/render"
	"github.com/percy/percy-go/client"
	"github.com/percy/percy-go/environment"
	"github.com/percy/percy-go/lode"
	"github.com/percy/percy-go/log"
	"github.com/percy/percy-go/resource"
)

// createBuildFile is the sidecar holding the raw create-build response.
const createBuildFile = "create-build.json"

// UploadSummary is the result of the upload command.
type UploadSummary struct {
	BuildID           string `json:"build_id" yaml:"build_id"`
	BuildURL          string `json:"build_url,omitempty" yaml:"build_url,omitempty"`
	Files             int    `json:"files" yaml:"files"`
	Bytes             int64  `json:"bytes" yaml:"bytes"`
	SkippedFiles      int    `json:"skipped_files" yaml:"skipped_files"`
	ResourcesUploaded int64  `json:"resources_uploaded" yaml:"resources_uploaded"`
	ResourcesPresent  int64  `json:"resources_present" yaml:"resources_present"`
	BytesUploaded     int64  `json:"bytes_uploaded" yaml:"bytes_uploaded"`
	Snapshots         int    `json:"snapshots" yaml:"snapshots"`
	Report            string `json:"report,omitempty" yaml:"report,omitempty"`
	DurationMs        int64  `json:"duration_ms" yaml:"duration_ms"`
}

// UploadCommand returns the upload command.
func UploadCommand() *cli.Command {
	return &cli.Command{
		Name:      "upload",
		Usage:     "Upload a directory of static files as a Percy build",
		ArgsUsage: "<directory>",
		Flags: RemoteFlags(
			&cli.StringFlag{
				Name:  "base-url",
				Usage: "URL path prefix for uploaded files",
			},
			&cli.StringSliceFlag{
				Name:  "skip",
				Usage: "Regular expression of URLs to skip (repeatable)",
			},
			&cli.BoolFlag{
				Name:  "follow-links",
				Usage: "Follow symbolic links while walking the directory",
			},
			&cli.IntSliceFlag{
				Name:  "widths",
				Usage: "Snapshot widths in pixels",
			},
			&cli.IntFlag{
				Name:  "minimum-height",
				Usage: "Minimum snapshot height in pixels",
			},
			&cli.BoolFlag{
				Name:  "enable-javascript",
				Usage: "Run JavaScript when rendering snapshots",
			},
			&cli.IntFlag{
				Name:  "concurrency",
				Usage: "Concurrent resource uploads",
			},
			&cli.StringFlag{
				Name:  "hash-cache",
				Usage: "Path of a digest cache reused across runs",
			},
			&cli.BoolFlag{
				Name:  "no-snapshots",
				Usage: "Upload build resources without creating page snapshots",
			},
			ReportBackendFlag,
			ReportPathFlag,
		),
		Action: uploadAction,
	}
}

// uploadPlan is the validated input of one upload.
type uploadPlan struct {
	root      string
	gather    resource.GatherOptions
	snapshot  client.SnapshotOptions
	snapshots bool
	hashCache string
	report    config.ReportConfig
}

func planUpload(c *cli.Context, cfg *config.Config, root string) (*uploadPlan, error) {
	skip, err := cfg.SkipPatterns()
	if err != nil {
		return nil, err
	}
	for _, p := range c.StringSlice("skip") {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("--skip %q: %w", p, err)
		}
		skip = append(skip, re)
	}

	widths := cfg.Upload.Widths
	if c.IsSet("widths") {
		widths = c.IntSlice("widths")
	}
	for _, w := range widths {
		if w <= 0 {
			return nil, fmt.Errorf("--widths: width must be positive, got %d", w)
		}
	}
	minHeight := cfg.Upload.MinimumHeight
	if c.IsSet("minimum-height") {
		minHeight = c.Int("minimum-height")
	}

	report := reportSettings(c, cfg.Report)
	if report.Backend != "fs" && report.Backend != "s3" {
		return nil, fmt.Errorf("unknown report backend %q (must be fs or s3)", report.Backend)
	}

	return &uploadPlan{
		root: root,
		gather: resource.GatherOptions{
			BaseURLPath:  firstNonEmpty(c.String("base-url"), cfg.Upload.BaseURLPath),
			SkipPatterns: skip,
			FollowLinks:  c.Bool("follow-links") || cfg.Upload.FollowLinks,
		},
		snapshot: client.SnapshotOptions{
			Widths:           widths,
			MinimumHeight:    minHeight,
			EnableJavaScript: c.Bool("enable-javascript") || cfg.Upload.EnableJavaScript,
		},
		snapshots: !c.Bool("no-snapshots"),
		hashCache: firstNonEmpty(c.String("hash-cache"), cfg.Upload.HashCache),
		report:    report,
	}, nil
}

func uploadAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return configError("upload requires exactly one directory argument")
	}
	root := c.Args().First()
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		return configError("not a directory: %s", root)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return configError("%v", err)
	}

	s, err := openSession(c, func(cc *client.Config) {
		if c.IsSet("concurrency") {
			cc.Concurrency = c.Int("concurrency")
		}
	})
	if err != nil {
		return err
	}
	defer s.Close()

	plan, err := planUpload(c, s.config, root)
	if err != nil {
		return configError("%v", err)
	}

	ctx, stop := signalContext(c)
	defer stop()

	run := &uploadRun{s: s, plan: plan, project: s.project(c)}
	summary, err := run.execute(ctx)
	if err != nil {
		return err
	}
	return r.RenderTitled("Percy build "+summary.BuildID, summary)
}

// uploadRun carries the state of one upload across its phases.
type uploadRun struct {
	s       *session
	plan    *uploadPlan
	project string
	logger  *log.Logger

	commit    environment.CommitData
	buildID   string
	cache     *resource.HashCache
	report    *reportSink
	snapshots int
}

func (u *uploadRun) execute(ctx context.Context) (*UploadSummary, error) {
	s := u.s
	u.logger = s.logger

	if u.plan.hashCache != "" {
		cache, err := resource.LoadHashCache(u.plan.hashCache)
		if err != nil {
			return nil, remoteError("hash cache", err)
		}
		u.cache = cache
	}
	u.plan.gather.Cache = u.cache
	u.plan.gather.Logger = s.logger

	resources, stats, err := resource.Gather(u.plan.root, u.plan.gather)
	if err != nil {
		return nil, remoteError("gather", err)
	}
	if len(resources) == 0 {
		return nil, configError("no files to upload in %s", u.plan.root)
	}
	s.logger.Info("resources gathered", map[string]any{
		"files":      stats.Files,
		"bytes":      stats.Bytes,
		"skipped":    stats.Skipped,
		"too_large":  stats.TooLarge,
		"cache_hits": stats.CacheHits,
	})

	u.commit = s.env.CommitData()
	doc, err := s.client.CreateBuild(ctx, client.BuildOptions{
		Project:   u.project,
		Resources: resources,
		Commit:    &u.commit,
	})
	if err != nil {
		return nil, remoteError("create build", err)
	}
	if doc.Data == nil || doc.Data.ID == "" {
		return nil, remoteError("create build", errors.New("response has no build id"))
	}
	u.buildID = doc.Data.ID
	u.logger = s.logger.WithBuild(u.buildID)

	u.openReport(ctx)
	defer func() { _ = u.report.Close() }()

	u.warn("write create-build response", u.report.files.PutFile(ctx, createBuildFile, client.ContentType, doc.Raw))

	missing := client.MissingResources(doc)
	u.warn("write build record", u.report.WriteBuild(ctx, lode.BuildRecord{
		Branch:            u.commit.Branch,
		CommitSha:         u.commit.SHA,
		TargetBranch:      s.env.TargetBranch(),
		PullRequestNumber: s.env.PullRequestNumber(),
		ParallelNonce:     s.env.ParallelNonce(),
		ParallelTotal:     s.env.ParallelTotalShards(),
		Partial:           s.env.PartialBuild(),
		MissingResources:  len(missing),
		Ts:                time.Now().UTC(),
	}))

	uploadErr := s.client.UploadMissingResources(ctx, u.buildID, doc, resources)
	records := resourceRecords(resources, missing, uploadErr)
	u.warn("write resource records", u.report.WriteResources(ctx, records))
	if uploadErr != nil {
		return nil, u.finish(ctx, "upload resources", uploadErr)
	}

	if u.plan.snapshots {
		pages, err := snapshotPages(resources)
		if err != nil {
			return nil, u.finish(ctx, "snapshot", err)
		}
		for _, p := range pages {
			if err := u.snapshotPage(ctx, p); err != nil {
				return nil, u.finish(ctx, "snapshot "+p.name, err)
			}
			u.snapshots++
		}
	}

	if _, err := s.client.FinalizeBuild(ctx, u.buildID, client.FinalizeOptions{}); err != nil {
		return nil, u.finish(ctx, "finalize build", err)
	}
	if err := u.finish(ctx, "", nil); err != nil {
		return nil, err
	}

	snap := s.metrics.Snapshot()
	return &UploadSummary{
		BuildID:           u.buildID,
		BuildURL:          doc.Data.Attr("web-url"),
		Files:             stats.Files,
		Bytes:             stats.Bytes,
		SkippedFiles:      stats.Skipped + stats.TooLarge,
		ResourcesUploaded: snap.ResourcesUploaded,
		ResourcesPresent:  countStatus(records, lode.ResourcePresent),
		BytesUploaded:     snap.BytesUploaded,
		Snapshots:         u.snapshots,
		Report:            u.report.location,
		DurationMs:        time.Since(s.started).Milliseconds(),
	}, nil
}

// openReport opens the report sink. A storage failure disables reporting
// for this run rather than failing the build.
func (u *uploadRun) openReport(ctx context.Context) {
	report, err := openReport(ctx, u.s, u.plan.report, u.buildID, u.project)
	if err != nil {
		u.logger.Warn("build report disabled", map[string]any{"error": err.Error()})
		report = &reportSink{
			Reporter: lode.NewInstrumentedReporter(lode.NewStubReporter(), u.s.metrics),
			files:    lode.NewStubFileWriter(),
		}
	}
	u.report = report
}

// page is one HTML file and the assets it may reference.
type page struct {
	name      string
	resources []*resource.Resource
}

func (u *uploadRun) snapshotPage(ctx context.Context, p page) error {
	opts := u.plan.snapshot
	opts.Name = p.name

	doc, err := u.s.client.CreateSnapshot(ctx, u.buildID, p.resources, opts)
	if err != nil {
		return err
	}
	if doc.Data == nil || doc.Data.ID == "" {
		return errors.New("response has no snapshot id")
	}
	missing := client.MissingResources(doc)
	if err := u.s.client.UploadMissingResources(ctx, u.buildID, doc, p.resources); err != nil {
		return err
	}
	if _, err := u.s.client.FinalizeSnapshot(ctx, doc.Data.ID); err != nil {
		return err
	}

	u.warn("write snapshot record", u.report.WriteSnapshot(ctx, lode.SnapshotRecord{
		SnapshotID:       doc.Data.ID,
		Name:             p.name,
		Widths:           opts.Widths,
		MinimumHeight:    opts.MinimumHeight,
		ResourceCount:    len(p.resources),
		MissingResources: len(missing),
		Ts:               time.Now().UTC(),
	}))
	return nil
}

// finish records the build outcome, saves the hash cache and notifies the
// adapter. It returns the command error for buildErr, or nil.
func (u *uploadRun) finish(ctx context.Context, what string, buildErr error) error {
	// Outcome records are written even when the run was interrupted.
	ctx = context.WithoutCancel(ctx)
	s := u.s

	rec := lode.FinalizeRecord{Outcome: "finalized", Ts: time.Now().UTC()}
	if buildErr != nil {
		rec.Outcome = "failed"
		rec.Error = what + ": " + buildErr.Error()
		u.logger.Error("build failed", map[string]any{"step": what, "error": buildErr.Error()})
	}
	u.warn("write finalize record", u.report.WriteFinalize(ctx, rec))
	u.warn("write metrics record", u.report.WriteMetrics(ctx, s.metrics.Snapshot(), time.Now()))
	u.warn("save hash cache", u.cache.Save())

	notify(ctx, s, u.report, u.buildID, u.project, buildErr)

	if buildErr != nil {
		return remoteError(what, buildErr)
	}
	return nil
}

func (u *uploadRun) warn(what string, err error) {
	if err != nil {
		u.logger.Warn(what+" failed", map[string]any{"error": err.Error()})
	}
}

// resourceRecords classifies each resource by the server's missing list.
func resourceRecords(resources []*resource.Resource, missing []client.Identifier, uploadErr error) []lode.ResourceRecord {
	wanted := make(map[string]bool, len(missing))
	for _, id := range missing {
		wanted[id.ID] = true
	}

	records := make([]lode.ResourceRecord, 0, len(resources))
	for _, r := range resources {
		status := lode.ResourcePresent
		if wanted[r.SHA()] {
			status = lode.ResourceUploaded
			if uploadErr != nil {
				status = lode.ResourceFailed
			}
		}
		records = append(records, lode.ResourceRecord{
			URL:      r.URL(),
			SHA:      r.SHA(),
			Mimetype: r.Mimetype(),
			IsRoot:   r.IsRoot(),
			Status:   status,
		})
	}
	return records
}

func countStatus(records []lode.ResourceRecord, status string) int64 {
	var n int64
	for _, r := range records {
		if r.Status == status {
			n++
		}
	}
	return n
}

// snapshotPages returns one page per HTML file. Each page carries its root
// document followed by every non-HTML asset.
func snapshotPages(resources []*resource.Resource) ([]page, error) {
	var roots, assets []*resource.Resource
	for _, r := range resources {
		if isHTML(r.URL()) {
			roots = append(roots, r)
		} else {
			assets = append(assets, r)
		}
	}

	pages := make([]page, 0, len(roots))
	for _, r := range roots {
		root, err := resource.New(resource.Options{
			URL:       r.URL(),
			SHA:       r.SHA(),
			LocalPath: r.LocalPath(),
			Mimetype:  "text/html",
			IsRoot:    true,
		})
		if err != nil {
			return nil, err
		}
		rs := make([]*resource.Resource, 0, len(assets)+1)
		rs = append(rs, root)
		rs = append(rs, assets...)
		pages = append(pages, page{name: r.URL(), resources: rs})
	}
	return pages, nil
}

func isHTML(url string) bool {
	u := strings.ToLower(url)
	return strings.HasSuffix(u, ".html") || strings.HasSuffix(u, ".htm")
}
