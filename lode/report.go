// Package lode persists build sync reports to a Lode dataset.
//
// Every client session that creates a build can record what it did: the
// build context, each resource's sync outcome, the snapshots it registered,
// the finalize result and a closing metrics record. Records are JSONL in a
// Hive layout partitioned by project/day/build_id/record_kind, on the local
// filesystem or S3.
package lode

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/justapithecus/lode/lode"

	"github.com/percy/percy-go/metrics"
)

// DefaultDataset is the dataset ID used when Config.Dataset is empty.
const DefaultDataset = "percy"

// partitionLayout is shared by the write and read paths.
var partitionLayout = []string{"project", "day", "build_id", "record_kind"}

// ErrMissingBuildID is returned when a reporter is created without a build.
var ErrMissingBuildID = errors.New("report requires a build id")

// DeriveDay computes the partition day from the session start time.
// Format: YYYY-MM-DD in UTC.
func DeriveDay(startTime time.Time) string {
	return startTime.UTC().Format("2006-01-02")
}

// Config holds report partition keys and dimensions.
type Config struct {
	// Dataset is the Lode dataset ID (default "percy").
	Dataset string
	// Project is the "org/project" slug; empty for token-scoped builds.
	Project string
	// Day is the partition day derived from session start (YYYY-MM-DD UTC).
	Day string
	// BuildID is the server-assigned build id (required).
	BuildID string
	// SessionID identifies the client session that wrote the records.
	SessionID string
	// CI is the detected CI provider, if any.
	CI string
}

func (c Config) withDefaults() (Config, error) {
	if c.BuildID == "" {
		return c, ErrMissingBuildID
	}
	if c.Dataset == "" {
		c.Dataset = DefaultDataset
	}
	if c.Day == "" {
		c.Day = DeriveDay(time.Now())
	}
	return c, nil
}

// Reporter records the outcome of a build sync.
type Reporter interface {
	WriteBuild(ctx context.Context, r BuildRecord) error
	WriteResources(ctx context.Context, rs []ResourceRecord) error
	WriteSnapshot(ctx context.Context, r SnapshotRecord) error
	WriteFinalize(ctx context.Context, r FinalizeRecord) error
	WriteMetrics(ctx context.Context, s metrics.Snapshot, completedAt time.Time) error
	Close() error
}

// LodeReporter is a Lode-backed Reporter.
type LodeReporter struct {
	dataset      lode.Dataset
	config       Config
	storeFactory lode.StoreFactory

	mu sync.Mutex // serializes dataset writes

	storeOnce sync.Once
	store     lode.Store
	storeErr  error
}

// NewLodeReporter creates a reporter with filesystem storage under root.
func NewLodeReporter(cfg Config, root string) (*LodeReporter, error) {
	return NewLodeReporterWithFactory(cfg, lode.NewFSFactory(root))
}

// NewLodeReporterWithFactory creates a reporter with a custom store factory.
// Use lode.NewMemoryFactory() for testing.
func NewLodeReporterWithFactory(cfg Config, factory lode.StoreFactory) (*LodeReporter, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	ds, err := newDataset(cfg.Dataset, factory)
	if err != nil {
		return nil, WrapInitError(err, cfg.Dataset)
	}
	return newReporter(ds, cfg, factory), nil
}

func newDataset(id string, factory lode.StoreFactory) (lode.Dataset, error) {
	return lode.NewDataset(
		lode.DatasetID(id),
		factory,
		lode.WithHiveLayout(partitionLayout...),
		lode.WithCodec(lode.NewJSONLCodec()),
	)
}

func newReporter(ds lode.Dataset, cfg Config, factory lode.StoreFactory) *LodeReporter {
	return &LodeReporter{
		dataset:      ds,
		config:       cfg,
		storeFactory: factory,
	}
}

// Config returns the effective reporter configuration.
func (r *LodeReporter) Config() Config { return r.config }

// WriteBuild records the created build.
func (r *LodeReporter) WriteBuild(ctx context.Context, rec BuildRecord) error {
	return r.write(ctx, RecordKindBuild, []any{toBuildRecordMap(rec, r.config)})
}

// WriteResources records resource sync outcomes in one snapshot.
// An empty batch writes nothing.
func (r *LodeReporter) WriteResources(ctx context.Context, rs []ResourceRecord) error {
	if len(rs) == 0 {
		return nil
	}
	records := make([]any, 0, len(rs))
	for _, rec := range rs {
		records = append(records, toResourceRecordMap(rec, r.config))
	}
	return r.write(ctx, RecordKindResource, records)
}

// WriteSnapshot records a registered snapshot.
func (r *LodeReporter) WriteSnapshot(ctx context.Context, rec SnapshotRecord) error {
	return r.write(ctx, RecordKindSnapshot, []any{toSnapshotRecordMap(rec, r.config)})
}

// WriteFinalize records a finalize outcome.
func (r *LodeReporter) WriteFinalize(ctx context.Context, rec FinalizeRecord) error {
	return r.write(ctx, RecordKindFinalize, []any{toFinalizeRecordMap(rec, r.config)})
}

// WriteMetrics records the session's closing metrics.
func (r *LodeReporter) WriteMetrics(ctx context.Context, s metrics.Snapshot, completedAt time.Time) error {
	return r.write(ctx, RecordKindMetrics, []any{toMetricsRecordMap(s, completedAt, r.config)})
}

func (r *LodeReporter) write(ctx context.Context, kind string, records []any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.dataset.Write(ctx, records, lode.Metadata{}); err != nil {
		return WrapWriteError(err, r.partitionPath(kind))
	}
	return nil
}

// partitionPath is the dataset-relative Hive path for kind, used in errors.
func (r *LodeReporter) partitionPath(kind string) string {
	return "datasets/" + r.config.Dataset + "/partitions/" + r.partitionPrefix() + "/record_kind=" + kind
}

func (r *LodeReporter) partitionPrefix() string {
	return "project=" + PartitionValue(r.config.Project) +
		"/day=" + r.config.Day +
		"/build_id=" + r.config.BuildID
}

// Close releases reporter resources.
func (r *LodeReporter) Close() error {
	// Dataset doesn't require explicit close in current Lode API
	return nil
}

var _ Reporter = (*LodeReporter)(nil)

// StubReporter records writes in memory for tests and dry runs.
type StubReporter struct {
	mu        sync.Mutex
	Builds    []BuildRecord
	Resources []ResourceRecord
	Snapshots []SnapshotRecord
	Finalizes []FinalizeRecord
	Metrics   []metrics.Snapshot
	Closed    bool
}

// NewStubReporter creates an empty stub reporter.
func NewStubReporter() *StubReporter {
	return &StubReporter{}
}

// WriteBuild implements Reporter.
func (s *StubReporter) WriteBuild(_ context.Context, r BuildRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Builds = append(s.Builds, r)
	return nil
}

// WriteResources implements Reporter.
func (s *StubReporter) WriteResources(_ context.Context, rs []ResourceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Resources = append(s.Resources, rs...)
	return nil
}

// WriteSnapshot implements Reporter.
func (s *StubReporter) WriteSnapshot(_ context.Context, r SnapshotRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Snapshots = append(s.Snapshots, r)
	return nil
}

// WriteFinalize implements Reporter.
func (s *StubReporter) WriteFinalize(_ context.Context, r FinalizeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Finalizes = append(s.Finalizes, r)
	return nil
}

// WriteMetrics implements Reporter.
func (s *StubReporter) WriteMetrics(_ context.Context, snap metrics.Snapshot, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Metrics = append(s.Metrics, snap)
	return nil
}

// Close implements Reporter.
func (s *StubReporter) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closed = true
	return nil
}

var _ Reporter = (*StubReporter)(nil)
