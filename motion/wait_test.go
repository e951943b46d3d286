package motion

import (
	"context"
	"testing"
	"time"
)

func TestWaiterConditionOutcome(t *testing.T) {
	r := newRig(t)
	polls := 0
	out := r.wait.Until(context.Background(), r.gate.Epoch(), 0, func() (Outcome, bool) {
		polls++
		return LimitHit, polls == 3
	})
	if out != LimitHit {
		t.Errorf("Until = %v, want the condition's outcome", out)
	}
	if r.sched.Now() != 2000 {
		t.Errorf("Two polls should sleep 2ms, slept %dus", r.sched.Now())
	}
}

func TestWaiterTimeout(t *testing.T) {
	r := newRig(t)
	out := r.wait.Until(context.Background(), r.gate.Epoch(), 10*time.Millisecond, func() (Outcome, bool) {
		return Reached, false
	})
	if out != Failed {
		t.Errorf("Until = %v, want failed", out)
	}
	if r.sched.Now() != 10000 {
		t.Errorf("Timed out at %dus, want 10000", r.sched.Now())
	}
}

func TestWaiterGateTripWithinOnePoll(t *testing.T) {
	r := newRig(t)
	r.tripAt(7500 * time.Microsecond)

	out := r.wait.Until(context.Background(), r.gate.Epoch(), 0, func() (Outcome, bool) {
		return Reached, false
	})
	if out != Aborted {
		t.Fatalf("Until = %v, want aborted", out)
	}
	if r.sched.Now() != 8000 {
		t.Errorf("Trip at 7.5ms observed at %dus, want 8000", r.sched.Now())
	}
	if r.gate.Permitted() {
		t.Error("Gate should report tripped")
	}
}

func TestWaiterAbortEpoch(t *testing.T) {
	r := newRig(t)
	epoch := r.gate.Epoch()

	polls := 0
	out := r.wait.Until(context.Background(), epoch, 0, func() (Outcome, bool) {
		polls++
		if polls == 4 {
			r.gate.Abort()
		}
		return Reached, false
	})
	if out != Aborted {
		t.Errorf("Until = %v after Abort, want aborted", out)
	}
	if polls != 4 {
		t.Errorf("Abort observed after %d polls, want 4", polls)
	}

	// A fresh epoch is not affected
	if r.wait.Interrupted(context.Background(), r.gate.Epoch()) {
		t.Error("New epoch should not be interrupted")
	}
}

func TestWaiterSleep(t *testing.T) {
	r := newRig(t)
	if out := r.wait.Sleep(context.Background(), r.gate.Epoch(), 2500*time.Microsecond); out != Reached {
		t.Errorf("Sleep = %v", out)
	}
	if r.sched.Now() != 2500 {
		t.Errorf("Slept %dus, want 2500", r.sched.Now())
	}

	r.tripAt(4 * time.Millisecond)
	if out := r.wait.Sleep(context.Background(), r.gate.Epoch(), time.Second); out != Aborted {
		t.Errorf("Sleep across a trip = %v, want aborted", out)
	}
	if r.sched.Now() > 5000 {
		t.Errorf("Trip observed late at %dus", r.sched.Now())
	}
}

func TestNilGate(t *testing.T) {
	var g *SafetyGate
	if !g.Permitted() || g.Aborted(g.Epoch()) {
		t.Error("Missing gate should always permit")
	}
}
