package motion

import (
	"context"
	"testing"
	"time"
)

func TestHomeAxisZeroesAtEndstop(t *testing.T) {
	r := newRig(t)
	x, motor := r.rampedAxis(t, AxisX, DefaultRampConfig(), xPins, -farLimit, 50)
	h := &Homer{Wait: r.wait}

	out := h.HomeAxis(context.Background(), HomeTarget{Axis: x, Dir: Forward})
	if out != Reached {
		t.Fatalf("HomeAxis = %v, want reached", out)
	}
	if x.Position() != 0 {
		t.Errorf("Position = %d after homing, want 0", x.Position())
	}
	if motor.Steps() != 50 {
		t.Errorf("Motor at %d, want on the switch at 50", motor.Steps())
	}
	if x.Running() || x.Enabled() {
		t.Error("Axis should be stopped and disabled after homing")
	}

	// Homing again without motion is a no-op
	out = h.HomeAxis(context.Background(), HomeTarget{Axis: x, Dir: Forward})
	if out != Reached || x.Position() != 0 || motor.Steps() != 50 {
		t.Errorf("Second homing: out=%v pos=%d motor=%d", out, x.Position(), motor.Steps())
	}
}

func TestHomeParallelYFirst(t *testing.T) {
	r := newRig(t)
	x, xm := r.rampedAxis(t, AxisX, DefaultRampConfig(), xPins, -farLimit, 400)
	y, ym := r.rampedAxis(t, AxisY, yRampConfig(), yPins, 0, farLimit)
	ym.SetSteps(40)

	// Record whether X was still moving when Y's driver was disabled
	xRunningAtYStop := false
	r.gpio.OnWrite(pinYEn, func(level bool) {
		if level && y.Position() != 0 {
			xRunningAtYStop = x.Running()
		}
	})

	h := &Homer{Wait: r.wait}
	out := h.HomeParallel(context.Background(),
		HomeTarget{Axis: x, Dir: Forward},
		HomeTarget{Axis: y, Dir: Backward})
	if out != Reached {
		t.Fatalf("HomeParallel = %v, want reached", out)
	}
	if !xRunningAtYStop {
		t.Error("X should keep moving after Y reaches its endstop")
	}
	if x.Position() != 0 || y.Position() != 0 {
		t.Errorf("Positions = (%d,%d), want zero", x.Position(), y.Position())
	}
	if xm.Steps() != 400 || ym.Steps() != 0 {
		t.Errorf("Motors at (%d,%d), want (400,0)", xm.Steps(), ym.Steps())
	}
}

func TestHomeParallelTimeout(t *testing.T) {
	r := newRig(t)
	x, _ := r.rampedAxis(t, AxisX, DefaultRampConfig(), xPins, -farLimit, 20)
	y, _ := r.rampedAxis(t, AxisY, yRampConfig(), yPins, -farLimit, farLimit)

	h := &Homer{Wait: r.wait, Timeout: 100 * time.Millisecond}
	out := h.HomeParallel(context.Background(),
		HomeTarget{Axis: x, Dir: Forward},
		HomeTarget{Axis: y, Dir: Backward})
	if out != Failed {
		t.Fatalf("HomeParallel = %v, want failed", out)
	}
	if x.Running() || y.Running() {
		t.Error("Failed homing must stop every axis")
	}
	if x.Position() == 0 || y.Position() == 0 {
		t.Error("Failed homing must not zero any position")
	}
	if r.sched.Now() > 102000 {
		t.Errorf("Timeout observed late at %dus", r.sched.Now())
	}
}

func TestHomeAbortedByGate(t *testing.T) {
	r := newRig(t)
	x, _ := r.rampedAxis(t, AxisX, DefaultRampConfig(), xPins, -farLimit, farLimit)
	r.tripAt(20 * time.Millisecond)

	h := &Homer{Wait: r.wait}
	out := h.HomeAxis(context.Background(), HomeTarget{Axis: x, Dir: Forward})
	if out != Aborted {
		t.Fatalf("HomeAxis = %v, want aborted", out)
	}
	if x.Running() || x.Enabled() {
		t.Error("Trip must stop and disable the axis")
	}
	if r.sched.Now() > 21000 {
		t.Errorf("Trip observed late at %dus", r.sched.Now())
	}
}

func TestHomeAbortedByContext(t *testing.T) {
	r := newRig(t)
	x, _ := r.rampedAxis(t, AxisX, DefaultRampConfig(), xPins, -farLimit, farLimit)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	h := &Homer{Wait: r.wait}
	if out := h.HomeAxis(ctx, HomeTarget{Axis: x, Dir: Forward}); out != Aborted {
		t.Errorf("HomeAxis = %v with cancelled context", out)
	}
	if x.Running() {
		t.Error("Axis left running")
	}
}

func TestHomeCoil(t *testing.T) {
	r := newRig(t)
	z, motor := r.coilAxis(t, -farLimit, 30)

	h := &Homer{Wait: r.wait}
	out := h.HomeCoil(context.Background(), z, Forward)
	if out != Reached {
		t.Fatalf("HomeCoil = %v, want reached", out)
	}
	if z.Position() != 0 || motor.Steps() != 30 {
		t.Errorf("Position = %d, motor = %d", z.Position(), motor.Steps())
	}
	if motor.Pattern() != 0 {
		t.Error("Coils should be de-energized after homing")
	}
	// 30 steps at the fast delay
	if r.sched.Now() != 30*3000 {
		t.Errorf("Homing took %dus, want %d", r.sched.Now(), 30*3000)
	}
}

func TestHomeCoilStepBudget(t *testing.T) {
	r := newRig(t)
	z, motor := r.coilAxis(t, -farLimit, farLimit)

	h := &Homer{Wait: r.wait, MaxCoilSteps: 10}
	if out := h.HomeCoil(context.Background(), z, Forward); out != Failed {
		t.Fatalf("HomeCoil = %v, want failed", out)
	}
	if motor.Steps() != 10 || z.Position() != 10 {
		t.Errorf("Expected 10 steps unzeroed, motor=%d pos=%d", motor.Steps(), z.Position())
	}
}
