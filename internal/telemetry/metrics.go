// Package telemetry wires the OpenTelemetry meter to a Prometheus
// exporter and registers the agent's instruments. The resulting
// series are scraped from the API's /metrics endpoint.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/bucket-xv/ImageCache/internal/core"
)

// Metrics holds the agent's instruments. All methods are safe for
// concurrent use.
type Metrics struct {
	starts         metric.Int64Counter
	stops          metric.Int64Counter
	refErrors      metric.Int64Counter
	evictions      metric.Int64Counter
	reclaimedBytes metric.Int64Counter
}

// NewMetrics installs a Prometheus-backed meter provider and creates
// the agent instruments. The tracked/unused image gauges observe the
// cache lazily at scrape time.
func NewMetrics(cache *core.ImageCache) (*Metrics, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}
	otel.SetMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter)))

	meter := otel.Meter("imagecache")

	m := &Metrics{}
	if m.starts, err = meter.Int64Counter("imagecache_container_starts_total",
		metric.WithDescription("Container start events recorded against the cache")); err != nil {
		return nil, err
	}
	if m.stops, err = meter.Int64Counter("imagecache_container_stops_total",
		metric.WithDescription("Container stop events recorded against the cache")); err != nil {
		return nil, err
	}
	if m.refErrors, err = meter.Int64Counter("imagecache_reference_errors_total",
		metric.WithDescription("Duplicate or unknown reference reports from collaborators")); err != nil {
		return nil, err
	}
	if m.evictions, err = meter.Int64Counter("imagecache_evictions_total",
		metric.WithDescription("Images evicted and forgotten by the reclaim loop")); err != nil {
		return nil, err
	}
	if m.reclaimedBytes, err = meter.Int64Counter("imagecache_reclaimed_bytes_total",
		metric.WithDescription("Layer storage bytes freed by the reclaim loop")); err != nil {
		return nil, err
	}

	tracked, err := meter.Int64ObservableGauge("imagecache_tracked_images",
		metric.WithDescription("Images currently tracked by the cache"))
	if err != nil {
		return nil, err
	}
	unused, err := meter.Int64ObservableGauge("imagecache_unused_images",
		metric.WithDescription("Tracked images with no active container references"))
	if err != nil {
		return nil, err
	}

	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		stats := cache.Stats()
		idle := 0
		for _, st := range stats {
			if st.ActiveRefs == 0 {
				idle++
			}
		}
		o.ObserveInt64(tracked, int64(len(stats)))
		o.ObserveInt64(unused, int64(idle))
		return nil
	}, tracked, unused)
	if err != nil {
		return nil, fmt.Errorf("register gauge callback: %w", err)
	}

	return m, nil
}

func (m *Metrics) RecordStart(ctx context.Context)    { m.starts.Add(ctx, 1) }
func (m *Metrics) RecordStop(ctx context.Context)     { m.stops.Add(ctx, 1) }
func (m *Metrics) RecordRefError(ctx context.Context) { m.refErrors.Add(ctx, 1) }

func (m *Metrics) RecordEvictions(ctx context.Context, n int) {
	m.evictions.Add(ctx, int64(n))
}

func (m *Metrics) RecordReclaimedBytes(ctx context.Context, n int64) {
	m.reclaimedBytes.Add(ctx, n)
}
