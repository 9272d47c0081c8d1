package session

import (
	"testing"
	"time"
)

func TestSweepPromotesOnlyOverdueSessions(t *testing.T) {
	t.Parallel()

	fx := newRegistryFixture(t)
	sched := NewScheduler(testLogger(), fx.registry, time.Second)

	overdue := mustStart(t, fx.registry).Session.ID

	fresh, err := fx.registry.Start(StartInput{Interval: 10 * time.Minute})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	stopped := mustStart(t, fx.registry).Session.ID
	if err := fx.registry.Stop(stopped); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	fx.clock.Advance(75 * time.Second)
	sched.sweep()

	for _, tc := range []struct {
		id   string
		want Status
	}{
		{id: overdue, want: StatusMissed},
		{id: fresh.Session.ID, want: StatusActive},
		{id: stopped, want: StatusStopped},
	} {
		view, err := fx.registry.StatusOf(tc.id)
		if err != nil {
			t.Fatalf("StatusOf(%s): %v", tc.id, err)
		}
		if view.Status != tc.want {
			t.Fatalf("session %s: expected %s, got %s", tc.id, tc.want, view.Status)
		}
	}
}

func TestSweepIsIdempotentPerMiss(t *testing.T) {
	t.Parallel()

	fx := newRegistryFixture(t)
	sched := NewScheduler(testLogger(), fx.registry, time.Second)

	id := mustStart(t, fx.registry).Session.ID
	fx.clock.Advance(75 * time.Second)

	sched.sweep()
	sched.sweep()
	sched.sweep()

	events, err := fx.registry.Events(id)
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	missed := 0
	for _, ev := range events {
		if ev.Type == EventMissed {
			missed++
		}
	}
	if missed != 1 {
		t.Fatalf("expected one missed event across repeated sweeps, got %d", missed)
	}
}
