package lode

import (
	"context"
	"time"

	"github.com/percy/percy-go/metrics"
)

// InstrumentedReporter wraps a Reporter and counts each write as a
// report_write_success or report_write_failure on the collector.
type InstrumentedReporter struct {
	inner     Reporter
	collector *metrics.Collector
}

// NewInstrumentedReporter wraps a reporter with metrics instrumentation.
func NewInstrumentedReporter(inner Reporter, collector *metrics.Collector) *InstrumentedReporter {
	return &InstrumentedReporter{inner: inner, collector: collector}
}

func (r *InstrumentedReporter) record(err error) error {
	if err != nil {
		r.collector.IncReportWriteFailure()
	} else {
		r.collector.IncReportWriteSuccess()
	}
	return err
}

// WriteBuild delegates to the inner reporter.
func (r *InstrumentedReporter) WriteBuild(ctx context.Context, rec BuildRecord) error {
	return r.record(r.inner.WriteBuild(ctx, rec))
}

// WriteResources delegates to the inner reporter.
func (r *InstrumentedReporter) WriteResources(ctx context.Context, rs []ResourceRecord) error {
	return r.record(r.inner.WriteResources(ctx, rs))
}

// WriteSnapshot delegates to the inner reporter.
func (r *InstrumentedReporter) WriteSnapshot(ctx context.Context, rec SnapshotRecord) error {
	return r.record(r.inner.WriteSnapshot(ctx, rec))
}

// WriteFinalize delegates to the inner reporter.
func (r *InstrumentedReporter) WriteFinalize(ctx context.Context, rec FinalizeRecord) error {
	return r.record(r.inner.WriteFinalize(ctx, rec))
}

// WriteMetrics delegates to the inner reporter. The snapshot is taken by
// the caller, so this write is not reflected in the record it writes.
func (r *InstrumentedReporter) WriteMetrics(ctx context.Context, s metrics.Snapshot, completedAt time.Time) error {
	return r.record(r.inner.WriteMetrics(ctx, s, completedAt))
}

// Close delegates to the inner reporter.
func (r *InstrumentedReporter) Close() error {
	return r.inner.Close()
}

var _ Reporter = (*InstrumentedReporter)(nil)
