package core

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// ReclaimConfig holds the dual watermarks for the reclaim use-case.
// Reclaiming starts when layer storage exceeds HighWatermarkBytes and
// stops once it drops below LowWatermarkBytes, so a single pass frees
// a meaningful amount instead of oscillating around one threshold.
type ReclaimConfig struct {
	HighWatermarkBytes int64
	LowWatermarkBytes  int64
}

// Validate checks the watermark invariants.
func (c ReclaimConfig) Validate() error {
	if c.HighWatermarkBytes <= 0 {
		return &ErrInvalidInput{Field: "high watermark", Message: "must be positive"}
	}
	if c.LowWatermarkBytes <= 0 {
		return &ErrInvalidInput{Field: "low watermark", Message: "must be positive"}
	}
	if c.LowWatermarkBytes > c.HighWatermarkBytes {
		return &ErrInvalidInput{Field: "low watermark", Message: "must not exceed high watermark"}
	}
	return nil
}

// ReclaimReport describes the outcome of one reclaim pass.
type ReclaimReport struct {
	// RunID correlates the log records of a single pass.
	RunID string
	// Evicted lists the image ids removed and forgotten, in order.
	Evicted []string
	// StartBytes and EndBytes are the layer storage measurements at
	// the beginning and end of the pass.
	StartBytes int64
	EndBytes   int64
}

// BytesFreed reports how much layer storage the pass released.
func (r ReclaimReport) BytesFreed() int64 {
	if freed := r.StartBytes - r.EndBytes; freed > 0 {
		return freed
	}
	return 0
}

// ReclaimUseCase drives the full eviction cycle: measure layer
// storage, ask the cache for a victim, delete the blob through the
// runtime, then tell the cache to forget it. The cache itself stays
// selection-only; this use-case owns all side effects.
type ReclaimUseCase struct {
	cache   *ImageCache
	remover ImageRemover
	usage   StorageUsage
	conf    ReclaimConfig
	log     *slog.Logger
}

// NewReclaimUseCase returns a ReclaimUseCase wired to the given cache
// and runtime collaborators.
func NewReclaimUseCase(cache *ImageCache, remover ImageRemover, usage StorageUsage, conf ReclaimConfig) (*ReclaimUseCase, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return &ReclaimUseCase{
		cache:   cache,
		remover: remover,
		usage:   usage,
		conf:    conf,
		log:     slog.Default().With("component", "reclaim"),
	}, nil
}

// ReclaimOnce performs a single reclaim pass. If layer storage is at
// or below the high watermark it returns immediately with an empty
// report. Otherwise it evicts images one at a time until storage
// drops below the low watermark or no candidate remains. A pass that
// runs out of candidates while still over the watermark is not an
// error: everything left is in use, and the next pass retries.
func (uc *ReclaimUseCase) ReclaimOnce(ctx context.Context) (ReclaimReport, error) {
	report := ReclaimReport{RunID: uuid.New().String()}

	bytes, err := uc.usage.LayerBytes(ctx)
	if err != nil {
		return report, fmt.Errorf("measure layer storage: %w", err)
	}
	report.StartBytes, report.EndBytes = bytes, bytes

	if bytes <= uc.conf.HighWatermarkBytes {
		return report, nil
	}

	uc.log.Info("storage pressure detected",
		"run_id", report.RunID,
		"layer_bytes", bytes,
		"high_watermark", uc.conf.HighWatermarkBytes,
	)

	for bytes > uc.conf.LowWatermarkBytes {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		imageID, ok := uc.cache.Evict()
		if !ok {
			uc.log.Warn("still over watermark but every tracked image is in use",
				"run_id", report.RunID, "layer_bytes", bytes)
			return report, nil
		}

		if err := uc.remover.RemoveImage(ctx, imageID); err != nil {
			return report, fmt.Errorf("remove image %s: %w", imageID, err)
		}
		if err := uc.cache.Forget(imageID); err != nil {
			return report, fmt.Errorf("forget image %s: %w", imageID, err)
		}
		report.Evicted = append(report.Evicted, imageID)

		uc.log.Info("evicted image", "run_id", report.RunID, "image_id", imageID)

		bytes, err = uc.usage.LayerBytes(ctx)
		if err != nil {
			return report, fmt.Errorf("measure layer storage: %w", err)
		}
		report.EndBytes = bytes
	}

	uc.log.Info("reclaim pass finished",
		"run_id", report.RunID,
		"evicted", len(report.Evicted),
		"bytes_freed", report.BytesFreed(),
	)
	return report, nil
}
