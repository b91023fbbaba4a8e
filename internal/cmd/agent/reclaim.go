package agent

import (
	"context"
	"log/slog"
	"time"

	"github.com/bucket-xv/ImageCache/internal/core"
	"github.com/bucket-xv/ImageCache/internal/telemetry"
)

// reclaimLoop periodically checks storage pressure and runs reclaim
// passes. It implements transport.Listener.
type reclaimLoop struct {
	reclaim  *core.ReclaimUseCase
	metrics  *telemetry.Metrics
	interval time.Duration
	log      *slog.Logger
}

func newReclaimLoop(reclaim *core.ReclaimUseCase, metrics *telemetry.Metrics, interval time.Duration) *reclaimLoop {
	return &reclaimLoop{
		reclaim:  reclaim,
		metrics:  metrics,
		interval: interval,
		log:      slog.Default().With("component", "reclaim-loop"),
	}
}

func (l *reclaimLoop) Start(ctx context.Context) error {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			l.runOnce(ctx)
		}
	}
}

func (l *reclaimLoop) Stop(context.Context) error { return nil }

// runOnce executes a single pass. Failures are logged and retried on
// the next tick; a transiently unreachable daemon must not take the
// agent down.
func (l *reclaimLoop) runOnce(ctx context.Context) {
	report, err := l.reclaim.ReclaimOnce(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		l.log.Error("reclaim pass failed", "run_id", report.RunID, "error", err)
		return
	}

	if n := len(report.Evicted); n > 0 {
		l.metrics.RecordEvictions(ctx, n)
		l.metrics.RecordReclaimedBytes(ctx, report.BytesFreed())
	}
}
