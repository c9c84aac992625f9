// Package adapter defines the notification boundary for finished builds.
//
// Adapters publish build finalization notices to downstream systems
// (chat bots, deploy gates, dashboards). The CLI owns adapter lifecycle;
// users provide configuration only.
package adapter

import (
	"context"
	"time"
)

// ContractVersion is the version of the BuildFinalizedEvent shape.
const ContractVersion = "1"

// EventTypeBuildFinalized is the EventType of every BuildFinalizedEvent.
const EventTypeBuildFinalized = "build_finalized"

// Outcomes reported in BuildFinalizedEvent.Outcome.
const (
	OutcomeFinalized = "finalized"
	OutcomeFailed    = "failed"
)

// BuildFinalizedEvent is the payload published after a build finalize call.
type BuildFinalizedEvent struct {
	ContractVersion   string `json:"contract_version"`
	EventType         string `json:"event_type"` // always "build_finalized"
	BuildID           string `json:"build_id"`
	Project           string `json:"project,omitempty"`
	Branch            string `json:"branch,omitempty"`
	CommitSha         string `json:"commit_sha,omitempty"`
	CI                string `json:"ci,omitempty"`
	PullRequestNumber string `json:"pull_request_number,omitempty"`
	ParallelNonce     string `json:"parallel_nonce,omitempty"`
	Outcome           string `json:"outcome"` // finalized or failed
	Error             string `json:"error,omitempty"`
	ReportPath        string `json:"report_path,omitempty"`
	Timestamp         string `json:"timestamp"` // RFC 3339
	ResourcesUploaded int64  `json:"resources_uploaded"`
	ResourcesSkipped  int64  `json:"resources_skipped"`
	BytesUploaded     int64  `json:"bytes_uploaded"`
	DurationMs        int64  `json:"duration_ms"`
}

// NewBuildFinalizedEvent returns an event for buildID stamped with now.
// A non-nil err marks the outcome failed.
func NewBuildFinalizedEvent(buildID string, now time.Time, err error) *BuildFinalizedEvent {
	event := &BuildFinalizedEvent{
		ContractVersion: ContractVersion,
		EventType:       EventTypeBuildFinalized,
		BuildID:         buildID,
		Outcome:         OutcomeFinalized,
		Timestamp:       now.UTC().Format(time.RFC3339),
	}
	if err != nil {
		event.Outcome = OutcomeFailed
		event.Error = err.Error()
	}
	return event
}

// Adapter publishes build events to a downstream system.
type Adapter interface {
	// Publish sends a build finalized event to the downstream system.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *BuildFinalizedEvent) error

	// Close releases adapter resources.
	Close() error
}
