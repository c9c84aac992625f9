package lode

import (
	"strings"
	"time"

	"github.com/percy/percy-go/metrics"
)

// RecordKind discriminator values. record_kind is also the last Hive
// partition key, so each kind lands in its own directory.
const (
	RecordKindBuild    = "build"
	RecordKindResource = "resource"
	RecordKindSnapshot = "snapshot"
	RecordKindFinalize = "finalize"
	RecordKindMetrics  = "metrics"
)

// Resource statuses recorded in ResourceRecord.Status.
const (
	ResourceUploaded = "uploaded"
	ResourcePresent  = "present" // already stored on the server
	ResourceFailed   = "failed"
)

// BuildRecord describes a created build and the context it was created in.
type BuildRecord struct {
	Branch            string
	CommitSha         string
	TargetBranch      string
	PullRequestNumber string
	ParallelNonce     string
	ParallelTotal     int
	Partial           bool
	MissingResources  int
	Ts                time.Time
}

// ResourceRecord is the sync outcome of one resource.
type ResourceRecord struct {
	URL      string
	SHA      string
	Mimetype string
	IsRoot   bool
	Status   string
}

// SnapshotRecord describes a registered snapshot.
type SnapshotRecord struct {
	SnapshotID       string
	Name             string
	Widths           []int
	MinimumHeight    int
	ResourceCount    int
	MissingResources int
	Ts               time.Time
}

// FinalizeRecord is the outcome of a build finalize call.
type FinalizeRecord struct {
	AllShards bool
	Outcome   string
	Error     string
	Ts        time.Time
}

// PartitionValue makes s safe for use as a single Hive path segment.
// Project slugs ("org/project") contain a separator.
func PartitionValue(s string) string {
	if s == "" {
		return "_"
	}
	return strings.ReplaceAll(s, "/", "~")
}

// partitionKeys returns the fields every record carries for the Hive layout.
func partitionKeys(cfg Config, kind string) map[string]any {
	return map[string]any{
		"record_kind": kind,
		"project":     PartitionValue(cfg.Project),
		"day":         cfg.Day,
		"build_id":    cfg.BuildID,
		"session_id":  cfg.SessionID,
		"ci":          cfg.CI,
	}
}

func formatTs(ts time.Time) string {
	if ts.IsZero() {
		ts = time.Now()
	}
	return ts.UTC().Format(time.RFC3339Nano)
}

// Lode HiveLayout requires records as map[string]any.

func toBuildRecordMap(r BuildRecord, cfg Config) map[string]any {
	m := partitionKeys(cfg, RecordKindBuild)
	m["project_slug"] = cfg.Project
	m["branch"] = r.Branch
	m["commit_sha"] = r.CommitSha
	m["target_branch"] = r.TargetBranch
	m["pull_request_number"] = r.PullRequestNumber
	m["partial"] = r.Partial
	m["missing_resources"] = r.MissingResources
	m["ts"] = formatTs(r.Ts)
	if r.ParallelNonce != "" {
		m["parallel_nonce"] = r.ParallelNonce
		m["parallel_total"] = r.ParallelTotal
	}
	return m
}

func toResourceRecordMap(r ResourceRecord, cfg Config) map[string]any {
	m := partitionKeys(cfg, RecordKindResource)
	m["url"] = r.URL
	m["sha"] = r.SHA
	m["is_root"] = r.IsRoot
	m["status"] = r.Status
	if r.Mimetype != "" {
		m["mimetype"] = r.Mimetype
	}
	return m
}

func toSnapshotRecordMap(r SnapshotRecord, cfg Config) map[string]any {
	m := partitionKeys(cfg, RecordKindSnapshot)
	m["snapshot_id"] = r.SnapshotID
	m["name"] = r.Name
	m["resource_count"] = r.ResourceCount
	m["missing_resources"] = r.MissingResources
	m["ts"] = formatTs(r.Ts)
	if len(r.Widths) > 0 {
		m["widths"] = append([]int(nil), r.Widths...)
	}
	if r.MinimumHeight != 0 {
		m["minimum_height"] = r.MinimumHeight
	}
	return m
}

func toFinalizeRecordMap(r FinalizeRecord, cfg Config) map[string]any {
	m := partitionKeys(cfg, RecordKindFinalize)
	m["all_shards"] = r.AllShards
	m["outcome"] = r.Outcome
	m["ts"] = formatTs(r.Ts)
	if r.Error != "" {
		m["error"] = r.Error
	}
	return m
}

// toMetricsRecordMap flattens a metrics snapshot. retries_by_reason is
// copied so later collector updates cannot leak into a written record.
func toMetricsRecordMap(s metrics.Snapshot, completedAt time.Time, cfg Config) map[string]any {
	reasons := make(map[string]int64, len(s.RetriesByReason))
	for k, v := range s.RetriesByReason {
		reasons[k] = v
	}

	m := partitionKeys(cfg, RecordKindMetrics)
	m["ts"] = formatTs(completedAt)
	m["requests_total"] = s.RequestsTotal
	m["requests_failed"] = s.RequestsFailed
	m["retries"] = s.Retries
	m["retries_by_reason"] = reasons
	m["builds_created"] = s.BuildsCreated
	m["builds_finalized"] = s.BuildsFinalized
	m["snapshots_created"] = s.SnapshotsCreated
	m["resources_uploaded"] = s.ResourcesUploaded
	m["resources_skipped"] = s.ResourcesSkipped
	m["resources_deduped"] = s.ResourcesDeduped
	m["bytes_uploaded"] = s.BytesUploaded
	m["report_write_success"] = s.ReportWriteSuccess
	m["report_write_failure"] = s.ReportWriteFailure
	return m
}
