package services

import (
	"sync"

	"wbs/collab-client/clock"
	"wbs/collab-client/models"
)

// SaveTracker follows the outcome of task mutations. Every mutation
// calls Begin before its network call and exactly one of Succeed or Fail
// afterwards. The tracker never returns to idle on its own.
type SaveTracker struct {
	clock clock.Clock

	mu       sync.Mutex
	status   models.SaveStatus
	onChange func(models.SaveStatus)
}

// NewSaveTracker starts idle. onChange, if non-nil, sees every
// transition in order; it runs under the tracker's lock and must not
// call back into the tracker.
func NewSaveTracker(c clock.Clock, onChange func(models.SaveStatus)) *SaveTracker {
	return &SaveTracker{
		clock:    c,
		status:   models.SaveStatus{State: models.SaveIdle},
		onChange: onChange,
	}
}

func (t *SaveTracker) Begin() {
	t.transition(func(s *models.SaveStatus) {
		s.State = models.SaveSaving
		s.Error = ""
		s.PendingChanges++
	})
}

func (t *SaveTracker) Succeed() {
	now := t.clock.Now()
	t.transition(func(s *models.SaveStatus) {
		s.State = models.SaveSaved
		s.Error = ""
		s.LastSaved = &now
		s.LastSynced = &now
		s.PendingChanges = decrement(s.PendingChanges)
	})
}

func (t *SaveTracker) Fail(err error) {
	message := "Save failed"
	if err != nil {
		message = err.Error()
	}
	t.transition(func(s *models.SaveStatus) {
		s.State = models.SaveError
		s.Error = message
		s.PendingChanges = decrement(s.PendingChanges)
	})
}

// MarkSynced records that remote changes were pulled in.
func (t *SaveTracker) MarkSynced() {
	now := t.clock.Now()
	t.transition(func(s *models.SaveStatus) {
		s.LastSynced = &now
	})
}

func (t *SaveTracker) Snapshot() models.SaveStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

func (t *SaveTracker) transition(apply func(*models.SaveStatus)) {
	t.mu.Lock()
	defer t.mu.Unlock()

	apply(&t.status)
	if t.onChange != nil {
		t.onChange(t.status)
	}
}

func decrement(n int) int {
	if n <= 1 {
		return 0
	}
	return n - 1
}
