package services

import (
	"errors"
	"testing"
	"time"

	"wbs/collab-client/clock"
	"wbs/collab-client/models"
)

func TestSaveTrackerTransitions(t *testing.T) {
	t.Parallel()

	c := clock.Fake(epoch)
	var seen []models.SaveState
	tracker := NewSaveTracker(c, func(s models.SaveStatus) {
		seen = append(seen, s.State)
	})

	if got := tracker.Snapshot(); got.State != models.SaveIdle || got.PendingChanges != 0 {
		t.Fatalf("expected idle start, got %+v", got)
	}

	tracker.Begin()
	tracker.Begin()
	s := tracker.Snapshot()
	if s.State != models.SaveSaving || s.PendingChanges != 2 {
		t.Fatalf("expected saving with 2 pending, got %+v", s)
	}
	if s.Display() != models.SavePending {
		t.Fatalf("expected pending display, got %s", s.Display())
	}

	c.Advance(time.Second)
	tracker.Succeed()
	s = tracker.Snapshot()
	if s.State != models.SaveSaved || s.PendingChanges != 1 {
		t.Fatalf("expected saved with 1 pending, got %+v", s)
	}
	if s.LastSaved == nil || !s.LastSaved.Equal(epoch.Add(time.Second)) {
		t.Fatalf("unexpected last saved %v", s.LastSaved)
	}
	if s.LastSynced == nil || !s.LastSynced.Equal(*s.LastSaved) {
		t.Fatalf("expected last synced to follow the save")
	}

	tracker.Fail(errors.New("Task not found"))
	s = tracker.Snapshot()
	if s.State != models.SaveError || s.Error != "Task not found" || s.PendingChanges != 0 {
		t.Fatalf("unexpected status after failure: %+v", s)
	}

	want := []models.SaveState{models.SaveSaving, models.SaveSaving, models.SaveSaved, models.SaveError}
	if len(seen) != len(want) {
		t.Fatalf("expected %d transitions, got %v", len(want), seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("transition %d: expected %s, got %s", i, want[i], seen[i])
		}
	}
}

func TestSaveTrackerPendingNeverNegative(t *testing.T) {
	t.Parallel()

	tracker := NewSaveTracker(clock.Fake(epoch), nil)
	tracker.Succeed()
	tracker.Fail(nil)
	tracker.Fail(nil)

	s := tracker.Snapshot()
	if s.PendingChanges != 0 {
		t.Fatalf("pending went negative: %d", s.PendingChanges)
	}
	if s.Error != "Save failed" {
		t.Fatalf("expected default failure message, got %q", s.Error)
	}
}

func TestSaveTrackerMarkSyncedKeepsState(t *testing.T) {
	t.Parallel()

	c := clock.Fake(epoch)
	tracker := NewSaveTracker(c, nil)
	c.Advance(time.Minute)
	tracker.MarkSynced()

	s := tracker.Snapshot()
	if s.State != models.SaveIdle {
		t.Fatalf("sync must not change the save state, got %s", s.State)
	}
	if s.LastSynced == nil || !s.LastSynced.Equal(epoch.Add(time.Minute)) {
		t.Fatalf("unexpected last synced %v", s.LastSynced)
	}
	if s.LastSaved != nil {
		t.Fatalf("sync must not set last saved")
	}
}
