package registry

import (
	"context"
	"testing"
	"time"
)

func TestRegisterAndGet(t *testing.T) {
	r := New(nil)
	ctx := context.Background()

	r.Register(ctx, "10.0.0.5", nil, nil)

	s, ok := r.Get("10.0.0.5")
	if !ok {
		t.Fatal("expected session to be registered")
	}
	if s.Status != StatusIdle {
		t.Errorf("expected status %q, got %q", StatusIdle, s.Status)
	}
}

func TestUpdateStatusAndTouch(t *testing.T) {
	r := New(nil)
	ctx := context.Background()
	r.Register(ctx, "10.0.0.5", nil, nil)

	r.UpdateStatus(ctx, "10.0.0.5", StatusAwaitingApproval)
	s, _ := r.Get("10.0.0.5")
	if s.Status != StatusAwaitingApproval {
		t.Errorf("expected status %q, got %q", StatusAwaitingApproval, s.Status)
	}

	before := s.LastSeen
	time.Sleep(time.Millisecond)
	r.Touch(ctx, "10.0.0.5")
	s, _ = r.Get("10.0.0.5")
	if !s.LastSeen.After(before) {
		t.Error("expected LastSeen to advance after touch")
	}
}

func TestRemoveDropsSession(t *testing.T) {
	r := New(nil)
	ctx := context.Background()
	r.Register(ctx, "10.0.0.5", nil, nil)
	r.Remove(ctx, "10.0.0.5")

	if _, ok := r.Get("10.0.0.5"); ok {
		t.Error("expected session to be removed")
	}
}

func TestActiveExcludesOffline(t *testing.T) {
	r := New(nil)
	ctx := context.Background()
	r.Register(ctx, "10.0.0.5", nil, nil)
	r.Register(ctx, "10.0.0.6", nil, nil)
	r.UpdateStatus(ctx, "10.0.0.6", StatusOffline)

	active := r.Active()
	if len(active) != 1 {
		t.Fatalf("expected 1 active session, got %d", len(active))
	}
	if _, ok := active["10.0.0.5"]; !ok {
		t.Error("expected 10.0.0.5 to be active")
	}
}

func TestSweepOnceMarksStaleOffline(t *testing.T) {
	r := New(nil)
	ctx := context.Background()
	r.Register(ctx, "10.0.0.5", nil, nil)

	r.mu.Lock()
	r.sessions["10.0.0.5"].LastSeen = time.Now().Add(-time.Hour)
	r.mu.Unlock()

	r.SweepOnce(ctx, DefaultOfflineTimeout)

	s, ok := r.Get("10.0.0.5")
	if !ok {
		t.Fatal("expected session still present after sweep")
	}
	if s.Status != StatusOffline {
		t.Errorf("expected status %q after sweep, got %q", StatusOffline, s.Status)
	}
}

func TestSweepOnceLeavesFreshSessionsAlone(t *testing.T) {
	r := New(nil)
	ctx := context.Background()
	r.Register(ctx, "10.0.0.5", nil, nil)

	r.SweepOnce(ctx, DefaultOfflineTimeout)

	s, _ := r.Get("10.0.0.5")
	if s.Status != StatusIdle {
		t.Errorf("expected fresh session to remain %q, got %q", StatusIdle, s.Status)
	}
}
