package scheduler

import (
	"time"

	"github.com/okian/brewtaste/internal/domain/model"
)

// PendingUpdate describes one queued trigger.
type PendingUpdate struct {
	UserID    string            `json:"user_id"`
	Trigger   model.TriggerType `json:"trigger"`
	QueuedFor time.Duration     `json:"queued_for"`
}

// QueueStatus is a snapshot of the scheduler's queues.
type QueueStatus struct {
	Pending    []PendingUpdate `json:"pending"`
	Processing []string        `json:"processing"`
	RealTime   bool            `json:"real_time"`
	Batch      bool            `json:"batch"`
}

// Status returns a snapshot of pending and in-flight work.
func (s *Scheduler) Status() QueueStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	status := QueueStatus{
		Pending:    make([]PendingUpdate, 0, len(s.pending)),
		Processing: make([]string, 0, len(s.processing)),
		RealTime:   s.cfg.RealTime,
		Batch:      s.cfg.Batch,
	}
	for userID, entry := range s.pending {
		status.Pending = append(status.Pending, PendingUpdate{
			UserID:    userID,
			Trigger:   entry.trigger.Type,
			QueuedFor: now.Sub(entry.trigger.Timestamp),
		})
	}
	for userID := range s.processing {
		status.Processing = append(status.Processing, userID)
	}
	return status
}
