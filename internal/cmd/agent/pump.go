package agent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bucket-xv/ImageCache/internal/core"
	"github.com/bucket-xv/ImageCache/internal/telemetry"
)

// eventPump feeds container lifecycle events from the runtime into
// the cache. It implements transport.Listener; cancellation of the
// Start context ends the underlying event stream.
type eventPump struct {
	cache   *core.ImageCache
	watcher core.ContainerWatcher
	metrics *telemetry.Metrics
	log     *slog.Logger
}

func newEventPump(cache *core.ImageCache, watcher core.ContainerWatcher, metrics *telemetry.Metrics) *eventPump {
	return &eventPump{
		cache:   cache,
		watcher: watcher,
		metrics: metrics,
		log:     slog.Default().With("component", "event-pump"),
	}
}

func (p *eventPump) Start(ctx context.Context) error {
	events, errs := p.watcher.Watch(ctx)

	for ev := range events {
		p.handle(ctx, ev)
	}

	// The stream error only matters if the pump was not asked to
	// stop; on cancellation a broken stream is the expected outcome.
	if err := <-errs; err != nil && ctx.Err() == nil {
		return fmt.Errorf("container event stream: %w", err)
	}
	return nil
}

func (p *eventPump) Stop(context.Context) error { return nil }

// handle applies one event to the cache. Bookkeeping mismatches
// (duplicate starts, stops for unknown containers) are logged and
// counted, never fatal: the stream may replay or skip events around
// agent restarts.
func (p *eventPump) handle(ctx context.Context, ev core.ContainerEvent) {
	var err error
	switch ev.Type {
	case core.ContainerStarted:
		if err = p.cache.DetectRun(ev.ImageID, ev.ContainerID, 0); err == nil {
			p.metrics.RecordStart(ctx)
		}
	case core.ContainerStopped:
		if err = p.cache.DetectStop(ev.ImageID, ev.ContainerID); err == nil {
			p.metrics.RecordStop(ctx)
		}
	}

	if err != nil {
		p.metrics.RecordRefError(ctx)
		p.log.Warn("event did not match ledger state",
			"type", ev.Type,
			"image_id", ev.ImageID,
			"container_id", ev.ContainerID,
			"error", err,
		)
	}
}
