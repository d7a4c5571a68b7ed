package telemetry

import (
	"context"
	"database/sql"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// AttrDBState labels connection pool gauges.
var AttrDBState = attribute.Key("db.pool.state")

// DBPoolMetrics exposes connection pool statistics of the shop database.
// Values are read from sql.DB.Stats at collection time.
type DBPoolMetrics struct {
	registration metric.Registration
}

// RegisterDBPoolMetrics registers observable gauges that report the pool of sqlDB.
func RegisterDBPoolMetrics(meter metric.Meter, sqlDB *sql.DB) (*DBPoolMetrics, error) {
	connections, err := meter.Int64ObservableGauge("mikrosync_db_pool_connections",
		metric.WithDescription("Connections in the pool by state"),
		metric.WithUnit("{connection}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gauge mikrosync_db_pool_connections: %w", err)
	}
	maxOpen, err := meter.Int64ObservableGauge("mikrosync_db_pool_connections_max",
		metric.WithDescription("Maximum number of open connections"),
		metric.WithUnit("{connection}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gauge mikrosync_db_pool_connections_max: %w", err)
	}

	reg, err := meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		stats := sqlDB.Stats()
		o.ObserveInt64(maxOpen, int64(stats.MaxOpenConnections))
		o.ObserveInt64(connections, int64(stats.Idle), metric.WithAttributes(AttrDBState.String("idle")))
		o.ObserveInt64(connections, int64(stats.InUse), metric.WithAttributes(AttrDBState.String("in_use")))
		o.ObserveInt64(connections, int64(stats.OpenConnections), metric.WithAttributes(AttrDBState.String("open")))
		return nil
	}, connections, maxOpen)
	if err != nil {
		return nil, fmt.Errorf("failed to register pool callback: %w", err)
	}

	return &DBPoolMetrics{registration: reg}, nil
}

// Stop unregisters the pool callback.
func (m *DBPoolMetrics) Stop() error {
	return m.registration.Unregister()
}
