package lode

import (
	"context"
	"errors"
	"fmt"

	"github.com/justapithecus/lode/lode"
)

// ErrNoRecordsFound is returned when no matching records exist.
var ErrNoRecordsFound = errors.New("no report records found")

// Query selects report records. Empty fields match everything.
type Query struct {
	BuildID    string
	Project    string
	RecordKind string
}

func (q Query) matches(record map[string]any) bool {
	if q.BuildID != "" && toString(record["build_id"]) != q.BuildID {
		return false
	}
	if q.Project != "" && toString(record["project"]) != PartitionValue(q.Project) {
		return false
	}
	if q.RecordKind != "" && toString(record["record_kind"]) != q.RecordKind {
		return false
	}
	return true
}

func (q Query) matchesSnapshot(snap *lode.DatasetSnapshot) bool {
	return snapshotMatchesFilter(snap, "build_id", q.BuildID) &&
		snapshotMatchesFilter(snap, "record_kind", q.RecordKind) &&
		(q.Project == "" || snapshotMatchesFilter(snap, "project", PartitionValue(q.Project)))
}

// QueryRecords returns every record matching q, oldest snapshot first.
// Manifest path filtering is a coarse pre-filter; record fields are
// authoritative.
func QueryRecords(ctx context.Context, ds lode.Dataset, q Query) ([]map[string]any, error) {
	snapshots, err := ds.Snapshots(ctx)
	if err != nil {
		return nil, WrapReadError(err, string(ds.ID())+"/snapshots")
	}

	var out []map[string]any
	for _, snap := range snapshots {
		if !q.matchesSnapshot(snap) {
			continue
		}
		data, err := ds.Read(ctx, snap.ID)
		if err != nil {
			return nil, WrapReadError(err, fmt.Sprintf("%s/snapshot/%s", ds.ID(), snap.ID))
		}
		for _, item := range data {
			record, ok := item.(map[string]any)
			if ok && q.matches(record) {
				out = append(out, record)
			}
		}
	}
	if len(out) == 0 {
		return nil, ErrNoRecordsFound
	}
	return out, nil
}

// QueryLatestMetrics returns the most recent metrics record for buildID
// (any build when empty), or ErrNoRecordsFound.
func QueryLatestMetrics(ctx context.Context, ds lode.Dataset, buildID string) (map[string]any, error) {
	records, err := QueryRecords(ctx, ds, Query{BuildID: buildID, RecordKind: RecordKindMetrics})
	if err != nil {
		return nil, err
	}
	return records[len(records)-1], nil
}

// toString converts a value to string, returning empty string for nil/non-string.
func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
