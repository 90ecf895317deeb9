// Package presence tracks which reviewers are currently viewing a proposal.
package presence

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultTTL is how long a viewer stays present without a heartbeat.
const DefaultTTL = 2 * time.Minute

// Viewer is one reviewer present on a proposal.
type Viewer struct {
	UserID   string    `json:"user_id"`
	SeenAt   time.Time `json:"seen_at"`
	ExpireAt time.Time `json:"expire_at"`
}

// Tracker is a concurrent-safe expiring set of viewers keyed by proposal.
// Expired entries are reaped on access and by Run.
type Tracker struct {
	mu      sync.Mutex
	entries map[string]map[string]time.Time
	ttl     time.Duration
	now     func() time.Time
}

// NewTracker creates a tracker. A non-positive ttl uses DefaultTTL.
func NewTracker(ttl time.Duration) *Tracker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Tracker{
		entries: make(map[string]map[string]time.Time),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Touch marks userID as viewing proposalID, extending any existing entry.
func (t *Tracker) Touch(proposalID, userID string) {
	if proposalID == "" || userID == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	viewers, ok := t.entries[proposalID]
	if !ok {
		viewers = make(map[string]time.Time)
		t.entries[proposalID] = viewers
	}
	viewers[userID] = t.now()
}

// Leave removes userID from proposalID.
func (t *Tracker) Leave(proposalID, userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	viewers, ok := t.entries[proposalID]
	if !ok {
		return
	}
	delete(viewers, userID)
	if len(viewers) == 0 {
		delete(t.entries, proposalID)
	}
}

// Viewers returns the live viewers of proposalID ordered by user ID.
func (t *Tracker) Viewers(proposalID string) []Viewer {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.reapLocked(proposalID, now)

	out := make([]Viewer, 0, len(t.entries[proposalID]))
	for user, seen := range t.entries[proposalID] {
		out = append(out, Viewer{UserID: user, SeenAt: seen, ExpireAt: seen.Add(t.ttl)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// Sweep reaps expired entries across all proposals and returns how many
// viewers were removed.
func (t *Tracker) Sweep() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	removed := 0
	for id := range t.entries {
		removed += t.reapLocked(id, now)
	}
	return removed
}

// Len returns the number of proposals with at least one tracked viewer.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Run sweeps every interval until ctx is cancelled.
func (t *Tracker) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = t.ttl
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := t.Sweep(); n > 0 {
				zap.L().Debug("presence: swept expired viewers", zap.Int("removed", n))
			}
		}
	}
}

func (t *Tracker) reapLocked(proposalID string, now time.Time) int {
	viewers, ok := t.entries[proposalID]
	if !ok {
		return 0
	}
	removed := 0
	for user, seen := range viewers {
		if now.Sub(seen) >= t.ttl {
			delete(viewers, user)
			removed++
		}
	}
	if len(viewers) == 0 {
		delete(t.entries, proposalID)
	}
	return removed
}
