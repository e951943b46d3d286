package motion

import (
	"context"
	"testing"
	"time"
)

func TestLinearMoveTrace(t *testing.T) {
	m := NewLinearMove(0, 0, 4, 2)

	// dx=4 dy=2 err=2
	want := [][2]bool{
		{true, false},
		{true, true},
		{true, false},
		{true, true},
	}
	for i, w := range want {
		sx, sy := m.Step()
		if sx != w[0] || sy != w[1] {
			t.Errorf("Tick %d: stepX=%v stepY=%v, want %v %v", i, sx, sy, w[0], w[1])
		}
	}
	if !m.Done() {
		t.Errorf("Expected done at (4,2), at (%d,%d)", m.X, m.Y)
	}
	if sx, sy := m.Step(); sx || sy {
		t.Error("Step after completion should do nothing")
	}
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}

func TestLinearMoveEndpointAndDeviation(t *testing.T) {
	targets := [][2]int32{
		{4, 2}, {2, 4}, {7, 3}, {-5, 8}, {9, -9}, {-12, -1},
		{0, 6}, {6, 0}, {1, 100}, {-100, 3}, {13, 13},
	}
	starts := [][2]int32{{0, 0}, {10, -4}}

	for _, s := range starts {
		for _, tg := range targets {
			m := NewLinearMove(s[0], s[1], tg[0], tg[1])
			dx := abs32(tg[0] - s[0])
			dy := abs32(tg[1] - s[1])
			bound := dx
			if dy > bound {
				bound = dy
			}

			for n := 0; !m.Done(); n++ {
				if n > int(dx+dy) {
					t.Fatalf("%v -> %v did not terminate", s, tg)
				}
				m.Step()
				// Cross product of the offset with the line direction
				cross := (m.X-s[0])*(tg[1]-s[1]) - (m.Y-s[1])*(tg[0]-s[0])
				if abs32(cross) > bound {
					t.Errorf("%v -> %v: point (%d,%d) off the line by %d", s, tg, m.X, m.Y, cross)
				}
			}
			if m.X != tg[0] || m.Y != tg[1] {
				t.Errorf("%v -> %v ended at (%d,%d)", s, tg, m.X, m.Y)
			}
		}
	}
}

func newInterpolatorRig(t *testing.T, yMax int32) (*rig, *RampedAxis, *RampedAxis, *LinearInterpolator) {
	r := newRig(t)
	x, _ := r.rampedAxis(t, AxisX, DefaultRampConfig(), xPins, -farLimit, farLimit)
	y, _ := r.rampedAxis(t, AxisY, yRampConfig(), yPins, -farLimit, yMax)
	li := NewLinearInterpolator(x, y, r.sched.NewTicker(), 0, r.wait)
	return r, x, y, li
}

func TestMoveLinearReachesTarget(t *testing.T) {
	r, x, y, li := newInterpolatorRig(t, farLimit)

	if li.Period() != 1000*time.Microsecond/3 {
		t.Errorf("Interpolation period = %v", li.Period())
	}

	start := r.sched.Now()
	out := li.MoveLinear(context.Background(), 40, 20)
	if out != Reached {
		t.Fatalf("MoveLinear = %v, want reached", out)
	}
	if x.Position() != 40 || y.Position() != 20 {
		t.Errorf("Position = (%d,%d), want (40,20)", x.Position(), y.Position())
	}
	if x.Enabled() || y.Enabled() {
		t.Error("Drivers should be disabled after the move")
	}
	if li.Active() {
		t.Error("Interpolator still active")
	}

	// 40 ticks at 333us, finished within one poll
	if elapsed := r.sched.Now() - start; elapsed < 40*333 || elapsed > 40*333+1000 {
		t.Errorf("Move took %dus", elapsed)
	}

	// Back to the origin
	if out := li.MoveLinear(context.Background(), 0, 0); out != Reached {
		t.Fatalf("Return move = %v", out)
	}
	if x.Position() != 0 || y.Position() != 0 {
		t.Errorf("Position = (%d,%d), want origin", x.Position(), y.Position())
	}
}

func TestMoveLinearStopsOnEndstop(t *testing.T) {
	_, x, y, li := newInterpolatorRig(t, 3)

	out := li.MoveLinear(context.Background(), 40, 20)
	if out != LimitHit {
		t.Fatalf("MoveLinear = %v, want limit hit", out)
	}
	if y.Position() >= 20 {
		t.Errorf("Y reached %d through its endstop", y.Position())
	}
	if x.Enabled() || y.Enabled() {
		t.Error("Drivers should be disabled after a limit stop")
	}
}

func TestMoveLinearAbortedByGate(t *testing.T) {
	r, x, y, li := newInterpolatorRig(t, farLimit)
	r.tripAt(5 * time.Millisecond)

	out := li.MoveLinear(context.Background(), 400, 200)
	if out != Aborted {
		t.Fatalf("MoveLinear = %v, want aborted", out)
	}
	if r.sched.Now() > 6000 {
		t.Errorf("Trip observed late at %dus", r.sched.Now())
	}
	if li.Active() || x.Enabled() || y.Enabled() {
		t.Error("Aborted move left the interpolator or drivers on")
	}
	if x.Position() == 0 || x.Position() >= 400 {
		t.Errorf("Expected a partial move, X at %d", x.Position())
	}
}

func TestMoveLinearNoMotion(t *testing.T) {
	r, _, _, li := newInterpolatorRig(t, farLimit)
	start := r.sched.Now()
	if out := li.MoveLinear(context.Background(), 0, 0); out != Reached {
		t.Errorf("Zero-length move = %v", out)
	}
	if r.sched.Now() != start {
		t.Error("Zero-length move should not wait")
	}
}
