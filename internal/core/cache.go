// Package core implements the node-local image cache domain: usage
// bookkeeping, eviction policies, and the reclaim use-case. It is
// free of SDK dependencies; runtime integration lives behind the
// interfaces in runtime.go.
package core

import (
	"sync"
	"time"
)

// ImageStat summarises one tracked image for operators and metrics.
type ImageStat struct {
	ImageID    string        `json:"image_id"`
	ActiveRefs int           `json:"active_refs"`
	RecentUses int           `json:"recent_uses"`
	TotalUsage time.Duration `json:"total_usage"`
	LastUsed   time.Time     `json:"last_used"`
}

// ImageCache tracks which images are referenced by running containers
// and selects eviction candidates under storage pressure. It is the
// concurrency boundary for the ledger: one reader-writer lock guards
// all state, which is sufficient because every operation is in-memory
// and bounded (no I/O inside a critical section).
//
// The cache only *selects* images; physically deleting a blob and the
// follow-up Forget call are the storage collaborator's job.
type ImageCache struct {
	window time.Duration
	policy Policy
	now    func() time.Time

	mu     sync.RWMutex
	ledger *usageLedger
}

// CacheOption configures an ImageCache.
type CacheOption func(*ImageCache)

// WithClock overrides the cache's time source. Tests use this to pin
// window arithmetic to fixed instants.
func WithClock(now func() time.Time) CacheOption {
	return func(c *ImageCache) { c.now = now }
}

// NewImageCache returns an empty cache that scores recency over the
// given time window and evicts with the given default policy.
func NewImageCache(window time.Duration, policy Policy, opts ...CacheOption) *ImageCache {
	c := &ImageCache{
		window: window,
		policy: policy,
		now:    time.Now,
		ledger: newUsageLedger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Window returns the configured recency window.
func (c *ImageCache) Window() time.Duration { return c.window }

// DefaultPolicy returns the policy used when Evict is called without
// an override.
func (c *ImageCache) DefaultPolicy() Policy { return c.policy }

// DetectRun records that a container started from the image. The
// usage hint, when positive, is added to the image's lifetime usage
// total. Returns *ErrDuplicateReference if the pair is already
// active and *ErrInvalidInput on empty ids; the ledger is unchanged
// on error.
func (c *ImageCache) DetectRun(imageID, containerID string, usageHint time.Duration) error {
	if err := validateRef(imageID, containerID); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ledger.recordStart(imageID, containerID, usageHint, c.now(), c.window)
}

// DetectStop records that a container stopped. Returns
// *ErrUnknownReference if no matching reference is active.
func (c *ImageCache) DetectStop(imageID, containerID string) error {
	if err := validateRef(imageID, containerID); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ledger.recordStop(imageID, containerID)
}

// Evict selects an image to reclaim, or reports that nothing is safe
// to evict. An explicit policy argument overrides the instance
// default. The unused-set snapshot and the policy run happen under a
// single lock acquisition, so a concurrent DetectRun cannot slip an
// image into use between the two steps. Evict never mutates the
// ledger.
func (c *ImageCache) Evict(policy ...Policy) (string, bool) {
	p := c.policy
	if len(policy) > 0 {
		p = policy[0]
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	return selectVictim(p, c.ledger.unusedImages(), c.ledger, c.now(), c.window)
}

// Forget drops all bookkeeping for an image after its blob was
// physically deleted. Forgetting an unknown image is a no-op;
// forgetting an in-use image fails with *ErrImageInUse.
func (c *ImageCache) Forget(imageID string) error {
	if imageID == "" {
		return &ErrInvalidInput{Field: "image_id", Message: "must not be empty"}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ledger.forget(imageID)
}

// UnusedImages returns the ids of all tracked images with no active
// container references, sorted ascending.
func (c *ImageCache) UnusedImages() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ledger.unusedImages()
}

// RecentUsageCount reports how many times the image was used within
// the time window ending now. Unknown images report zero.
func (c *ImageCache) RecentUsageCount(imageID string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ledger.recentUsageCount(imageID, c.now(), c.window)
}

// TotalUsageTime reports the image's accumulated usage, or zero for
// unknown images.
func (c *ImageCache) TotalUsageTime(imageID string) time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ledger.totalUsageTime(imageID)
}

// Stats returns a snapshot summary of every tracked image, ordered by
// image id. Repeated calls without intervening mutation return
// identical results.
func (c *ImageCache) Stats() []ImageStat {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ledger.stats(c.now(), c.window)
}

func validateRef(imageID, containerID string) error {
	if imageID == "" {
		return &ErrInvalidInput{Field: "image_id", Message: "must not be empty"}
	}
	if containerID == "" {
		return &ErrInvalidInput{Field: "container_id", Message: "must not be empty"}
	}
	return nil
}
