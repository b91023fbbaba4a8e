package core

import (
	"sort"
	"time"
)

// usageEvent records a single container start against an image.
type usageEvent struct {
	containerID string
	startedAt   time.Time
}

// imageRecord tracks everything the eviction policies need to know
// about one image: the set of containers currently running from it,
// the window-bounded usage history, and the lifetime usage total.
type imageRecord struct {
	// activeRefs maps a container id to the time its reference was
	// recorded. Non-empty means the image is in use and must never be
	// selected for eviction.
	activeRefs map[string]time.Time

	// usageEvents holds (container, start time) pairs in arrival
	// order. Entries older than the time window are pruned on the
	// write path; readers additionally filter by cutoff so the
	// observable count always reflects the window as of call time.
	usageEvents []usageEvent

	// totalUsage accumulates the caller-supplied usage hints. It is
	// monotonically non-decreasing and survives window pruning.
	totalUsage time.Duration

	// lastUsed is the timestamp of the most recent recorded start.
	lastUsed time.Time
}

// usageLedger is the pure bookkeeping layer beneath ImageCache: per
// image reference counts and usage history, with no policy logic and
// no locking. All synchronisation is owned by the cache facade.
type usageLedger struct {
	records map[string]*imageRecord
}

func newUsageLedger() *usageLedger {
	return &usageLedger{records: make(map[string]*imageRecord)}
}

// recordStart creates the image record if absent, adds the container
// reference, appends a usage event at now, and adds hint to the
// lifetime usage total. The pair must not already be active.
func (l *usageLedger) recordStart(imageID, containerID string, hint time.Duration, now time.Time, window time.Duration) error {
	rec, ok := l.records[imageID]
	if !ok {
		rec = &imageRecord{activeRefs: make(map[string]time.Time)}
		l.records[imageID] = rec
	}

	if _, active := rec.activeRefs[containerID]; active {
		return &ErrDuplicateReference{ImageID: imageID, ContainerID: containerID}
	}

	rec.activeRefs[containerID] = now
	rec.usageEvents = append(rec.usageEvents, usageEvent{containerID: containerID, startedAt: now})
	rec.pruneEvents(now.Add(-window))
	if hint > 0 {
		rec.totalUsage += hint
	}
	rec.lastUsed = now
	return nil
}

// recordStop removes the matching container reference. A stop without
// a matching start is reported, not ignored.
func (l *usageLedger) recordStop(imageID, containerID string) error {
	rec, ok := l.records[imageID]
	if !ok {
		return &ErrUnknownReference{ImageID: imageID, ContainerID: containerID}
	}
	if _, active := rec.activeRefs[containerID]; !active {
		return &ErrUnknownReference{ImageID: imageID, ContainerID: containerID}
	}
	delete(rec.activeRefs, containerID)
	return nil
}

// forget removes the image record entirely. Called after a successful
// physical deletion; refuses while references are still active.
func (l *usageLedger) forget(imageID string) error {
	rec, ok := l.records[imageID]
	if !ok {
		return nil
	}
	if n := len(rec.activeRefs); n > 0 {
		return &ErrImageInUse{ImageID: imageID, Refs: n}
	}
	delete(l.records, imageID)
	return nil
}

// unusedImages returns the ids of all images with no active
// references, sorted for determinism.
func (l *usageLedger) unusedImages() []string {
	ids := make([]string, 0, len(l.records))
	for id, rec := range l.records {
		if len(rec.activeRefs) == 0 {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// recentUsageCount counts usage events at or after now-window. An
// unknown image reports zero; it is indistinguishable from one with
// no recent usage.
func (l *usageLedger) recentUsageCount(imageID string, now time.Time, window time.Duration) int {
	rec, ok := l.records[imageID]
	if !ok {
		return 0
	}
	cutoff := now.Add(-window)
	count := 0
	for _, ev := range rec.usageEvents {
		if !ev.startedAt.Before(cutoff) {
			count++
		}
	}
	return count
}

// totalUsageTime returns the accumulated usage for the image, or zero
// if it was never recorded.
func (l *usageLedger) totalUsageTime(imageID string) time.Duration {
	rec, ok := l.records[imageID]
	if !ok {
		return 0
	}
	return rec.totalUsage
}

// lastUsedAt returns the most recent start timestamp for the image.
// The zero time is returned for unknown images.
func (l *usageLedger) lastUsedAt(imageID string) time.Time {
	rec, ok := l.records[imageID]
	if !ok {
		return time.Time{}
	}
	return rec.lastUsed
}

// stats produces a per-image summary snapshot ordered by image id.
func (l *usageLedger) stats(now time.Time, window time.Duration) []ImageStat {
	ids := make([]string, 0, len(l.records))
	for id := range l.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]ImageStat, 0, len(ids))
	for _, id := range ids {
		rec := l.records[id]
		out = append(out, ImageStat{
			ImageID:    id,
			ActiveRefs: len(rec.activeRefs),
			RecentUses: l.recentUsageCount(id, now, window),
			TotalUsage: rec.totalUsage,
			LastUsed:   rec.lastUsed,
		})
	}
	return out
}

// pruneEvents drops usage events strictly older than cutoff. Events
// at exactly the cutoff stay inside the window.
func (r *imageRecord) pruneEvents(cutoff time.Time) {
	keep := 0
	for keep < len(r.usageEvents) && r.usageEvents[keep].startedAt.Before(cutoff) {
		keep++
	}
	if keep > 0 {
		r.usageEvents = append(r.usageEvents[:0], r.usageEvents[keep:]...)
	}
}
