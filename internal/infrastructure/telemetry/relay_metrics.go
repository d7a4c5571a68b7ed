package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// RelayMeterName is the instrumentation scope of the relay instruments.
const RelayMeterName = "github.com/erp/mikrosync/relay"

// RelayMetrics records relay cycle and ERP submission measurements.
type RelayMetrics struct {
	cycles      *Counter
	forwarded   *Counter
	lines       *Counter
	submissions *Counter
	duration    *Histogram
}

// NewRelayMetrics registers the relay instruments on the given meter.
func NewRelayMetrics(meter metric.Meter) (*RelayMetrics, error) {
	cycles, err := NewCounter(meter, "mikrosync_cycles_total", "Relay cycles by outcome", "{cycle}")
	if err != nil {
		return nil, err
	}
	forwarded, err := NewCounter(meter, "mikrosync_orders_forwarded_total", "Orders accepted by the ERP", "{order}")
	if err != nil {
		return nil, err
	}
	lines, err := NewCounter(meter, "mikrosync_order_lines_forwarded_total", "Order lines accepted by the ERP", "{line}")
	if err != nil {
		return nil, err
	}
	submissions, err := NewCounter(meter, "mikrosync_submissions_total", "ERP calls by endpoint and result", "{request}")
	if err != nil {
		return nil, err
	}
	duration, err := NewHistogram(meter, HistogramOpts{
		Name:        "mikrosync_cycle_duration_seconds",
		Description: "Wall time of one relay cycle",
		Unit:        "s",
		Boundaries:  CycleDurationBuckets,
	})
	if err != nil {
		return nil, err
	}

	return &RelayMetrics{
		cycles:      cycles,
		forwarded:   forwarded,
		lines:       lines,
		submissions: submissions,
		duration:    duration,
	}, nil
}

// RecordCycle counts a finished cycle and its duration.
func (m *RelayMetrics) RecordCycle(ctx context.Context, outcome string, d time.Duration, lines int) {
	m.cycles.Inc(ctx, AttrOutcome.String(outcome))
	m.duration.RecordDuration(ctx, d, AttrOutcome.String(outcome))
	if outcome == "FORWARDED" {
		m.forwarded.Inc(ctx)
		m.lines.Add(ctx, int64(lines))
	}
}

// RecordSubmission counts one call to the ERP.
func (m *RelayMetrics) RecordSubmission(ctx context.Context, endpoint string, accepted bool) {
	m.submissions.Inc(ctx, AttrEndpoint.String(endpoint), AttrAccepted.Bool(accepted))
}
