package core

import (
	"testing"
	"time"
)

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    Policy
		wantErr bool
	}{
		{"least-frequently-used", LeastFrequentlyUsed, false},
		{"lfu", LeastFrequentlyUsed, false},
		{"least-total-time-used", LeastTotalTimeUsed, false},
		{"LTTU", LeastTotalTimeUsed, false},
		{"  lfu ", LeastFrequentlyUsed, false},
		{"lru", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePolicy(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParsePolicy(%q) expected error", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParsePolicy(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParsePolicy(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestPolicy_String(t *testing.T) {
	if got := LeastFrequentlyUsed.String(); got != "least-frequently-used" {
		t.Errorf("String() = %q", got)
	}
	if got := LeastTotalTimeUsed.String(); got != "least-total-time-used" {
		t.Errorf("String() = %q", got)
	}
}

func TestSelectVictim_EmptyCandidates(t *testing.T) {
	l := newUsageLedger()
	if id, ok := selectVictim(LeastFrequentlyUsed, nil, l, time.Now(), time.Hour); ok {
		t.Errorf("selectVictim(no candidates) = %q, want none", id)
	}
}

func TestSelectVictim_OnlyConsultsCandidates(t *testing.T) {
	l := newUsageLedger()
	now := time.Date(2026, time.January, 10, 12, 0, 0, 0, time.UTC)

	// img-hot has zero recent usage (would win LFU outright) but is
	// not in the candidate set, so it must never be picked.
	l.records["img-hot"] = &imageRecord{activeRefs: map[string]time.Time{"c9": now}}
	for i, id := range []string{"img-a", "img-b"} {
		ts := now.Add(time.Duration(i) * time.Minute)
		if err := l.recordStart(id, "c1", 0, ts, time.Hour); err != nil {
			t.Fatalf("recordStart() error = %v", err)
		}
		if err := l.recordStop(id, "c1"); err != nil {
			t.Fatalf("recordStop() error = %v", err)
		}
	}

	victim, ok := selectVictim(LeastFrequentlyUsed, []string{"img-a", "img-b"}, l, now, time.Hour)
	if !ok {
		t.Fatal("expected a victim")
	}
	if victim == "img-hot" {
		t.Fatal("policy consulted an image outside the candidate set")
	}
	if victim != "img-a" {
		t.Errorf("victim = %q, want img-a (older last use)", victim)
	}
}

func TestSelectVictim_LeastTotalTime(t *testing.T) {
	l := newUsageLedger()
	now := time.Date(2026, time.January, 10, 12, 0, 0, 0, time.UTC)

	usage := map[string]time.Duration{"img-a": 50 * time.Second, "img-b": 10 * time.Second, "img-c": 30 * time.Second}
	for id, d := range usage {
		if err := l.recordStart(id, "c1", d, now, time.Hour); err != nil {
			t.Fatalf("recordStart() error = %v", err)
		}
		if err := l.recordStop(id, "c1"); err != nil {
			t.Fatalf("recordStop() error = %v", err)
		}
	}

	victim, ok := selectVictim(LeastTotalTimeUsed, []string{"img-a", "img-b", "img-c"}, l, now, time.Hour)
	if !ok || victim != "img-b" {
		t.Errorf("selectVictim = %q, %v; want img-b, true", victim, ok)
	}
}

func TestSelectVictim_FrequencyIgnoresEventsOutsideWindow(t *testing.T) {
	l := newUsageLedger()
	t0 := time.Date(2026, time.January, 10, 12, 0, 0, 0, time.UTC)
	window := time.Hour

	// img-a: three uses, all stale. img-b: one fresh use.
	for i, c := range []string{"c1", "c2", "c3"} {
		ts := t0.Add(time.Duration(i) * time.Minute)
		if err := l.recordStart("img-a", c, 0, ts, window); err != nil {
			t.Fatalf("recordStart() error = %v", err)
		}
		if err := l.recordStop("img-a", c); err != nil {
			t.Fatalf("recordStop() error = %v", err)
		}
	}
	now := t0.Add(3 * time.Hour)
	if err := l.recordStart("img-b", "c4", 0, now, window); err != nil {
		t.Fatalf("recordStart() error = %v", err)
	}
	if err := l.recordStop("img-b", "c4"); err != nil {
		t.Fatalf("recordStop() error = %v", err)
	}

	// Within the window img-a has zero uses, img-b has one.
	victim, ok := selectVictim(LeastFrequentlyUsed, []string{"img-a", "img-b"}, l, now, window)
	if !ok || victim != "img-a" {
		t.Errorf("selectVictim = %q, %v; want img-a, true", victim, ok)
	}
}
