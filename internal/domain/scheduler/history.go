package scheduler

import (
	"time"

	"github.com/okian/brewtaste/internal/domain/model"
)

// historyCapacity bounds the per-user update history.
const historyCapacity = 50

// HistoryEntry records one resolved update for a user.
type HistoryEntry struct {
	Timestamp  time.Time         `json:"timestamp"`
	Trigger    model.TriggerType `json:"trigger"`
	RatingID   string            `json:"rating_id,omitempty"`
	UpdateType UpdateType        `json:"update_type"`
	Outcome    string            `json:"outcome,omitempty"`
}

// historyRing is a fixed-size ring buffer of history entries.
type historyRing struct {
	entries [historyCapacity]HistoryEntry
	next    int
	filled  bool
}

func (r *historyRing) add(e HistoryEntry) {
	r.entries[r.next] = e
	r.next++
	if r.next == historyCapacity {
		r.next = 0
		r.filled = true
	}
}

// snapshot returns the entries newest first.
func (r *historyRing) snapshot() []HistoryEntry {
	size := r.next
	if r.filled {
		size = historyCapacity
	}

	out := make([]HistoryEntry, 0, size)
	for i := 1; i <= size; i++ {
		idx := (r.next - i + historyCapacity) % historyCapacity
		out = append(out, r.entries[idx])
	}
	return out
}

// recordHistory appends an entry to the user's bounded history.
func (s *Scheduler) recordHistory(trigger model.UpdateTrigger, updateType UpdateType, outcome string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ring, ok := s.history[trigger.UserID]
	if !ok {
		ring = &historyRing{}
		s.history[trigger.UserID] = ring
	}
	ring.add(HistoryEntry{
		Timestamp:  s.now(),
		Trigger:    trigger.Type,
		RatingID:   trigger.RatingID,
		UpdateType: updateType,
		Outcome:    outcome,
	})
}

// History returns the user's recorded updates, newest first.
func (s *Scheduler) History(userID string) []HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	ring, ok := s.history[userID]
	if !ok {
		return nil
	}
	return ring.snapshot()
}
