package core

import (
	"fmt"
	"strings"
	"time"
)

// Policy selects which unused image to evict. It is a closed enum
// rather than an interface: each variant is a pure scoring rule over
// ledger data, dispatched by selectVictim, so the two policies stay
// independently testable without virtual-dispatch machinery.
type Policy int

const (
	// LeastFrequentlyUsed evicts the candidate with the fewest usage
	// events inside the time window.
	LeastFrequentlyUsed Policy = iota

	// LeastTotalTimeUsed evicts the candidate with the smallest
	// accumulated usage time.
	LeastTotalTimeUsed
)

// DefaultPolicy is used when no policy is configured.
const DefaultPolicy = LeastFrequentlyUsed

func (p Policy) String() string {
	switch p {
	case LeastFrequentlyUsed:
		return "least-frequently-used"
	case LeastTotalTimeUsed:
		return "least-total-time-used"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// ParsePolicy converts a configuration or API string into a Policy.
// Short aliases are accepted alongside the canonical names.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "least-frequently-used", "lfu":
		return LeastFrequentlyUsed, nil
	case "least-total-time-used", "lttu":
		return LeastTotalTimeUsed, nil
	default:
		return 0, &ErrInvalidInput{Field: "policy", Message: fmt.Sprintf("unknown eviction policy %q", s)}
	}
}

// selectVictim returns the candidate with the minimum score under the
// given policy. Ties break on the earliest lastUsed timestamp
// (oldest-used evicted first), then on the smallest image id, so the
// decision is fully deterministic. Only the supplied candidates are
// consulted; an empty candidate set yields no victim, which is the
// normal "nothing safe to reclaim" outcome rather than an error.
//
// Candidates must be sorted ascending by id; unusedImages guarantees
// that, making the id tie-break fall out of scan order.
func selectVictim(p Policy, candidates []string, l *usageLedger, now time.Time, window time.Duration) (string, bool) {
	if len(candidates) == 0 {
		return "", false
	}

	score := func(id string) int64 {
		switch p {
		case LeastTotalTimeUsed:
			return int64(l.totalUsageTime(id))
		default:
			return int64(l.recentUsageCount(id, now, window))
		}
	}

	victim := candidates[0]
	bestScore := score(victim)
	bestLastUsed := l.lastUsedAt(victim)

	for _, id := range candidates[1:] {
		s := score(id)
		if s > bestScore {
			continue
		}
		lastUsed := l.lastUsedAt(id)
		if s < bestScore || lastUsed.Before(bestLastUsed) {
			victim, bestScore, bestLastUsed = id, s, lastUsed
		}
	}
	return victim, true
}
