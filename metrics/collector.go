// Package metrics provides per-session metrics for the sync pipeline.
//
// The Collector accumulates counters for one client session. It is a leaf
// package with no internal dependencies. Request counters are per HTTP
// attempt; resource counters are per content hash.
package metrics

import "sync"

// Retry reasons recorded by IncRetry.
const (
	RetryServerError = "server_error"
	RetryConnReset   = "conn_reset"
	RetryTimeout     = "timeout"
)

// Snapshot is an immutable point-in-time view of all metrics.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Transport
	RequestsTotal   int64
	RequestsFailed  int64
	Retries         int64
	RetriesByReason map[string]int64

	// Build lifecycle
	BuildsCreated    int64
	BuildsFinalized  int64
	SnapshotsCreated int64

	// Resources
	ResourcesUploaded int64
	ResourcesSkipped  int64 // already present on the server
	ResourcesDeduped  int64 // duplicate SHA within one upload batch
	BytesUploaded     int64

	// Report sink
	ReportWriteSuccess int64
	ReportWriteFailure int64

	// Dimensions
	SessionID string
	CI        string
	BuildID   string
}

// Collector accumulates metrics during a session.
// Thread-safe via sync.Mutex. All methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	requestsTotal   int64
	requestsFailed  int64
	retries         int64
	retriesByReason map[string]int64

	buildsCreated    int64
	buildsFinalized  int64
	snapshotsCreated int64

	resourcesUploaded int64
	resourcesSkipped  int64
	resourcesDeduped  int64
	bytesUploaded     int64

	reportWriteSuccess int64
	reportWriteFailure int64

	sessionID string
	ci        string
	buildID   string
}

// NewCollector creates a Collector with dimension labels.
// ci may be empty outside CI.
func NewCollector(sessionID, ci string) *Collector {
	return &Collector{
		retriesByReason: make(map[string]int64),
		sessionID:       sessionID,
		ci:              ci,
	}
}

// SetBuildID records the server-assigned build id once known.
func (c *Collector) SetBuildID(id string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.buildID = id
	c.mu.Unlock()
}

// --- Transport ---

// IncRequest records one HTTP attempt.
func (c *Collector) IncRequest() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.requestsTotal++
	c.mu.Unlock()
}

// IncRequestFailed records a call that failed after all attempts.
func (c *Collector) IncRequestFailed() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.requestsFailed++
	c.mu.Unlock()
}

// IncRetry records a retried attempt and why it was retried.
func (c *Collector) IncRetry(reason string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.retries++
	c.retriesByReason[reason]++
	c.mu.Unlock()
}

// --- Build lifecycle ---

// IncBuildCreated records a created build.
func (c *Collector) IncBuildCreated() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.buildsCreated++
	c.mu.Unlock()
}

// IncBuildFinalized records a finalized build.
func (c *Collector) IncBuildFinalized() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.buildsFinalized++
	c.mu.Unlock()
}

// IncSnapshotCreated records a created snapshot.
func (c *Collector) IncSnapshotCreated() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.snapshotsCreated++
	c.mu.Unlock()
}

// --- Resources ---

// AddUpload records one uploaded resource of n raw bytes.
func (c *Collector) AddUpload(n int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.resourcesUploaded++
	c.bytesUploaded += n
	c.mu.Unlock()
}

// AddSkipped records n resources the server already had.
func (c *Collector) AddSkipped(n int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.resourcesSkipped += n
	c.mu.Unlock()
}

// IncDeduped records a duplicate SHA collapsed within one batch.
func (c *Collector) IncDeduped() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.resourcesDeduped++
	c.mu.Unlock()
}

// --- Report sink ---
// Report counters are per-call, not per-record.

// IncReportWriteSuccess records a successful report write.
func (c *Collector) IncReportWriteSuccess() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.reportWriteSuccess++
	c.mu.Unlock()
}

// IncReportWriteFailure records a failed report write.
func (c *Collector) IncReportWriteFailure() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.reportWriteFailure++
	c.mu.Unlock()
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all metrics.
// The returned Snapshot is safe to read concurrently; the Collector can
// continue to be mutated independently.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	byReason := make(map[string]int64, len(c.retriesByReason))
	for k, v := range c.retriesByReason {
		byReason[k] = v
	}

	return Snapshot{
		RequestsTotal:   c.requestsTotal,
		RequestsFailed:  c.requestsFailed,
		Retries:         c.retries,
		RetriesByReason: byReason,

		BuildsCreated:    c.buildsCreated,
		BuildsFinalized:  c.buildsFinalized,
		SnapshotsCreated: c.snapshotsCreated,

		ResourcesUploaded: c.resourcesUploaded,
		ResourcesSkipped:  c.resourcesSkipped,
		ResourcesDeduped:  c.resourcesDeduped,
		BytesUploaded:     c.bytesUploaded,

		ReportWriteSuccess: c.reportWriteSuccess,
		ReportWriteFailure: c.reportWriteFailure,

		SessionID: c.sessionID,
		CI:        c.ci,
		BuildID:   c.buildID,
	}
}
