package motion

import (
	"context"
	"testing"
	"time"
)

func TestMoveAxisReachesTarget(t *testing.T) {
	r := newRig(t)
	x, motor := r.rampedAxis(t, AxisX, DefaultRampConfig(), xPins, -farLimit, farLimit)
	p := &PointMover{Wait: r.wait}

	if out := p.MoveAxis(context.Background(), x, 100); out != Reached {
		t.Fatalf("MoveAxis = %v, want reached", out)
	}
	if x.Position() != 100 || motor.Steps() != 50 {
		t.Errorf("Position = %d, motor = %d, want 100/50", x.Position(), motor.Steps())
	}
	if x.Running() || x.Enabled() {
		t.Error("Axis should be stopped and disabled at the target")
	}

	if out := p.MoveAxis(context.Background(), x, -31); out != Reached {
		t.Fatalf("MoveAxis back = %v", out)
	}
	// Odd target: stops on the first edge past it
	if x.Position() != -32 {
		t.Errorf("Position = %d, want -32", x.Position())
	}
}

func TestMoveAxisLimitHit(t *testing.T) {
	r := newRig(t)
	x, _ := r.rampedAxis(t, AxisX, DefaultRampConfig(), xPins, -farLimit, 20)
	p := &PointMover{Wait: r.wait}

	if out := p.MoveAxis(context.Background(), x, 100); out != LimitHit {
		t.Fatalf("MoveAxis = %v, want limit hit", out)
	}
	if x.Position() != 40 {
		t.Errorf("Position = %d, want 40 at the switch", x.Position())
	}

	// Already on the switch: refused without moving
	if out := p.MoveAxis(context.Background(), x, 100); out != LimitHit {
		t.Errorf("MoveAxis from the switch = %v, want limit hit", out)
	}
}

func TestMoveAxisTimeout(t *testing.T) {
	r := newRig(t)
	x, _ := r.rampedAxis(t, AxisX, DefaultRampConfig(), xPins, -farLimit, farLimit)
	p := &PointMover{Wait: r.wait, Timeout: 20 * time.Millisecond}

	if out := p.MoveAxis(context.Background(), x, 1000000); out != Failed {
		t.Errorf("MoveAxis = %v, want failed", out)
	}
	if x.Running() {
		t.Error("Timed out move left the axis running")
	}
}

func TestMoveCoil(t *testing.T) {
	r := newRig(t)
	z, motor := r.coilAxis(t, -farLimit, 8)
	p := &PointMover{Wait: r.wait}

	z.SetSpeedClass(Slow)
	if out := p.MoveCoil(context.Background(), z, 5); out != Reached {
		t.Fatalf("MoveCoil = %v", out)
	}
	if z.Position() != 5 || motor.Steps() != 5 || motor.Pattern() != 0 {
		t.Errorf("pos=%d motor=%d pattern=%04b", z.Position(), motor.Steps(), motor.Pattern())
	}
	if r.sched.Now() != 5*5000 {
		t.Errorf("Took %dus at slow, want 25000", r.sched.Now())
	}

	if out := p.MoveCoil(context.Background(), z, 20); out != LimitHit {
		t.Errorf("MoveCoil past the switch = %v, want limit hit", out)
	}
	if z.Position() != 8 {
		t.Errorf("Position = %d, want 8 at the switch", z.Position())
	}
}
