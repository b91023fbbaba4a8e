package core

import (
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"
)

// fakeClock hands out a controllable instant so window arithmetic is
// deterministic in tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, time.January, 10, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestCache(policy Policy) (*ImageCache, *fakeClock) {
	clock := newFakeClock()
	return NewImageCache(time.Hour, policy, WithClock(clock.Now)), clock
}

func TestDetectRun_DuplicateReference(t *testing.T) {
	cache, _ := newTestCache(LeastFrequentlyUsed)

	if err := cache.DetectRun("img1", "c1", 0); err != nil {
		t.Fatalf("DetectRun() error = %v", err)
	}

	err := cache.DetectRun("img1", "c1", 0)
	var dup *ErrDuplicateReference
	if !errors.As(err, &dup) {
		t.Fatalf("expected ErrDuplicateReference, got %v", err)
	}

	// The failed call must leave the ledger unchanged: one ref, one
	// recent use.
	stats := cache.Stats()
	if len(stats) != 1 || stats[0].ActiveRefs != 1 || stats[0].RecentUses != 1 {
		t.Errorf("ledger changed by failed DetectRun: %+v", stats)
	}
}

func TestDetectStop_UnknownReference(t *testing.T) {
	cache, _ := newTestCache(LeastFrequentlyUsed)

	// Scenario D: stop with no prior run.
	err := cache.DetectStop("img3", "c9")
	var unknown *ErrUnknownReference
	if !errors.As(err, &unknown) {
		t.Fatalf("expected ErrUnknownReference, got %v", err)
	}

	// Double-stop is reported too.
	if err := cache.DetectRun("img1", "c1", 0); err != nil {
		t.Fatalf("DetectRun() error = %v", err)
	}
	if err := cache.DetectStop("img1", "c1"); err != nil {
		t.Fatalf("DetectStop() error = %v", err)
	}
	if err := cache.DetectStop("img1", "c1"); !errors.As(err, &unknown) {
		t.Fatalf("expected ErrUnknownReference on double stop, got %v", err)
	}
}

func TestDetectRun_EmptyIDs(t *testing.T) {
	cache, _ := newTestCache(LeastFrequentlyUsed)

	var invalid *ErrInvalidInput
	if err := cache.DetectRun("", "c1", 0); !errors.As(err, &invalid) {
		t.Errorf("expected ErrInvalidInput for empty image id, got %v", err)
	}
	if err := cache.DetectRun("img1", "", 0); !errors.As(err, &invalid) {
		t.Errorf("expected ErrInvalidInput for empty container id, got %v", err)
	}
}

func TestActiveRefs_MatchUnmatchedStarts(t *testing.T) {
	cache, _ := newTestCache(LeastFrequentlyUsed)

	// Scenario A: two starts, one stop; the image stays in use.
	mustRun(t, cache, "img1", "c1")
	mustRun(t, cache, "img1", "c2")
	mustStop(t, cache, "img1", "c1")

	stats := cache.Stats()
	if len(stats) != 1 {
		t.Fatalf("expected 1 image, got %d", len(stats))
	}
	if stats[0].ActiveRefs != 1 {
		t.Errorf("ActiveRefs = %d, want 1", stats[0].ActiveRefs)
	}

	if id, ok := cache.Evict(); ok {
		t.Errorf("Evict() = %q, want no candidate while image is in use", id)
	}

	mustStop(t, cache, "img1", "c2")
	if got := cache.Stats()[0].ActiveRefs; got != 0 {
		t.Errorf("ActiveRefs after all stops = %d, want 0", got)
	}
}

func TestEvict_EmptyLedgerAndAllInUse(t *testing.T) {
	cache, _ := newTestCache(LeastFrequentlyUsed)

	if id, ok := cache.Evict(); ok {
		t.Errorf("Evict() on empty ledger = %q, want none", id)
	}

	mustRun(t, cache, "img1", "c1")
	mustRun(t, cache, "img2", "c2")
	if id, ok := cache.Evict(); ok {
		t.Errorf("Evict() with all images in use = %q, want none", id)
	}
}

func TestEvict_NeverReturnsInUseImage(t *testing.T) {
	cache, clock := newTestCache(LeastFrequentlyUsed)

	// img1 is idle with little usage, img2 is busy. Whatever the
	// scores, the in-use image must never be picked.
	mustRun(t, cache, "img1", "c1")
	mustStop(t, cache, "img1", "c1")
	clock.Advance(time.Minute)
	mustRun(t, cache, "img2", "c2")

	id, ok := cache.Evict()
	if !ok {
		t.Fatal("expected a candidate")
	}
	if id != "img1" {
		t.Errorf("Evict() = %q, want img1 (img2 is in use)", id)
	}
}

func TestEvict_TieBreakByLastUsed(t *testing.T) {
	cache, clock := newTestCache(LeastFrequentlyUsed)

	// Scenario B: both images have one recent use; img1 was used
	// earlier, so it loses the tie.
	mustRun(t, cache, "img1", "c1")
	mustStop(t, cache, "img1", "c1")
	clock.Advance(time.Minute)
	mustRun(t, cache, "img2", "c2")
	mustStop(t, cache, "img2", "c2")

	id, ok := cache.Evict()
	if !ok {
		t.Fatal("expected a candidate")
	}
	if id != "img1" {
		t.Errorf("Evict() = %q, want img1 (older last use)", id)
	}
}

func TestEvict_TieBreakByImageID(t *testing.T) {
	cache, _ := newTestCache(LeastFrequentlyUsed)

	// Identical scores and identical last-used instants: the smaller
	// image id wins so the decision stays reproducible.
	mustRun(t, cache, "img-b", "c1")
	mustStop(t, cache, "img-b", "c1")
	mustRun(t, cache, "img-a", "c2")
	mustStop(t, cache, "img-a", "c2")

	for range 5 {
		id, ok := cache.Evict()
		if !ok || id != "img-a" {
			t.Fatalf("Evict() = %q, %v; want img-a, true", id, ok)
		}
	}
}

func TestEvict_LeastTotalTimeUsed(t *testing.T) {
	cache, _ := newTestCache(LeastTotalTimeUsed)

	// Scenario C: img1 accumulated 50s of usage, img2 only 10s.
	if err := cache.DetectRun("img1", "c1", 50*time.Second); err != nil {
		t.Fatalf("DetectRun() error = %v", err)
	}
	mustStop(t, cache, "img1", "c1")
	if err := cache.DetectRun("img2", "c2", 10*time.Second); err != nil {
		t.Fatalf("DetectRun() error = %v", err)
	}
	mustStop(t, cache, "img2", "c2")

	id, ok := cache.Evict()
	if !ok || id != "img2" {
		t.Errorf("Evict() = %q, %v; want img2, true", id, ok)
	}

	// An explicit policy argument overrides the instance default:
	// under LFU both have one recent use, so the tie-break picks the
	// older img1.
	id, ok = cache.Evict(LeastFrequentlyUsed)
	if !ok || id != "img1" {
		t.Errorf("Evict(LeastFrequentlyUsed) = %q, %v; want img1, true", id, ok)
	}
}

func TestEvict_DoesNotMutateLedger(t *testing.T) {
	cache, _ := newTestCache(LeastFrequentlyUsed)

	mustRun(t, cache, "img1", "c1")
	mustStop(t, cache, "img1", "c1")

	before := cache.Stats()
	if _, ok := cache.Evict(); !ok {
		t.Fatal("expected a candidate")
	}
	after := cache.Stats()

	if !reflect.DeepEqual(before, after) {
		t.Errorf("Evict mutated the ledger:\nbefore %+v\nafter  %+v", before, after)
	}
}

func TestRecentUsageCount_WindowBoundary(t *testing.T) {
	cache, clock := newTestCache(LeastFrequentlyUsed)

	mustRun(t, cache, "img1", "c1")
	mustStop(t, cache, "img1", "c1")

	// An event at exactly now-window still counts.
	clock.Advance(time.Hour)
	if got := cache.RecentUsageCount("img1"); got != 1 {
		t.Errorf("RecentUsageCount at exact window edge = %d, want 1", got)
	}

	// One tick past the window it no longer does.
	clock.Advance(time.Nanosecond)
	if got := cache.RecentUsageCount("img1"); got != 0 {
		t.Errorf("RecentUsageCount past window = %d, want 0", got)
	}

	// Unknown images report zero rather than an error.
	if got := cache.RecentUsageCount("never-seen"); got != 0 {
		t.Errorf("RecentUsageCount(unknown) = %d, want 0", got)
	}
}

func TestTotalUsageTime_AccumulatesHints(t *testing.T) {
	cache, clock := newTestCache(LeastFrequentlyUsed)

	if got := cache.TotalUsageTime("img1"); got != 0 {
		t.Fatalf("TotalUsageTime(unknown) = %v, want 0", got)
	}

	if err := cache.DetectRun("img1", "c1", 30*time.Second); err != nil {
		t.Fatalf("DetectRun() error = %v", err)
	}
	mustStop(t, cache, "img1", "c1")
	if err := cache.DetectRun("img1", "c2", 15*time.Second); err != nil {
		t.Fatalf("DetectRun() error = %v", err)
	}

	if got, want := cache.TotalUsageTime("img1"), 45*time.Second; got != want {
		t.Errorf("TotalUsageTime = %v, want %v", got, want)
	}

	// The total survives window expiry; only frequency is windowed.
	clock.Advance(2 * time.Hour)
	if got, want := cache.TotalUsageTime("img1"), 45*time.Second; got != want {
		t.Errorf("TotalUsageTime after window = %v, want %v", got, want)
	}
}

func TestStats_Idempotent(t *testing.T) {
	cache, clock := newTestCache(LeastFrequentlyUsed)

	mustRun(t, cache, "img2", "c2")
	mustRun(t, cache, "img1", "c1")
	clock.Advance(time.Minute)
	mustStop(t, cache, "img1", "c1")

	first := cache.Stats()
	second := cache.Stats()
	if !reflect.DeepEqual(first, second) {
		t.Errorf("Stats not idempotent:\nfirst  %+v\nsecond %+v", first, second)
	}

	// Deterministic order by image id.
	if first[0].ImageID != "img1" || first[1].ImageID != "img2" {
		t.Errorf("Stats order = %s, %s; want img1, img2", first[0].ImageID, first[1].ImageID)
	}
}

func TestForget(t *testing.T) {
	cache, _ := newTestCache(LeastFrequentlyUsed)

	mustRun(t, cache, "img1", "c1")

	var inUse *ErrImageInUse
	if err := cache.Forget("img1"); !errors.As(err, &inUse) {
		t.Fatalf("expected ErrImageInUse, got %v", err)
	}

	mustStop(t, cache, "img1", "c1")
	if err := cache.Forget("img1"); err != nil {
		t.Fatalf("Forget() error = %v", err)
	}
	if got := len(cache.Stats()); got != 0 {
		t.Errorf("tracked images after Forget = %d, want 0", got)
	}

	// Forgetting an unknown image is a no-op.
	if err := cache.Forget("img1"); err != nil {
		t.Errorf("Forget(unknown) error = %v", err)
	}
}

func TestUnusedImages(t *testing.T) {
	cache, _ := newTestCache(LeastFrequentlyUsed)

	mustRun(t, cache, "img2", "c2")
	mustRun(t, cache, "img1", "c1")
	mustRun(t, cache, "img3", "c3")
	mustStop(t, cache, "img3", "c3")
	mustStop(t, cache, "img1", "c1")

	got := cache.UnusedImages()
	want := []string{"img1", "img3"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("UnusedImages() = %v, want %v", got, want)
	}
}

func TestImageCache_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	cache := NewImageCache(time.Hour, LeastFrequentlyUsed)

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			img := string(rune('a' + worker%4))
			for j := range 200 {
				c := string(rune('A'+worker)) + string(rune('0'+j%10))
				if err := cache.DetectRun(img, c, time.Second); err != nil {
					continue
				}
				_, _ = cache.Evict()
				_ = cache.Stats()
				_ = cache.DetectStop(img, c)
			}
		}(i)
	}
	wg.Wait()

	// Every start was matched with a stop, so nothing is in use.
	for _, st := range cache.Stats() {
		if st.ActiveRefs != 0 {
			t.Errorf("image %s has %d dangling refs", st.ImageID, st.ActiveRefs)
		}
	}
}

func mustRun(t *testing.T, cache *ImageCache, imageID, containerID string) {
	t.Helper()
	if err := cache.DetectRun(imageID, containerID, 0); err != nil {
		t.Fatalf("DetectRun(%s, %s) error = %v", imageID, containerID, err)
	}
}

func mustStop(t *testing.T, cache *ImageCache, imageID, containerID string) {
	t.Helper()
	if err := cache.DetectStop(imageID, containerID); err != nil {
		t.Fatalf("DetectStop(%s, %s) error = %v", imageID, containerID, err)
	}
}
