package motion

import (
	"context"
	"time"

	"pipetter/core"
)

// Homing bounds
const (
	DefaultHomingTimeout = 60 * time.Second
	DefaultMaxCoilSteps  = 20000
)

// HomeTarget is an axis and the direction of its homing endstop
type HomeTarget struct {
	Axis *RampedAxis
	Dir  Direction
}

// Homer drives axes onto their homing endstops and zeroes them
type Homer struct {
	Wait         *Waiter
	Timeout      time.Duration // ramped axes; zero = DefaultHomingTimeout
	MaxCoilSteps int           // coil axis; zero = DefaultMaxCoilSteps
}

func (h *Homer) timeout() time.Duration {
	if h.Timeout <= 0 {
		return DefaultHomingTimeout
	}
	return h.Timeout
}

func (h *Homer) maxCoilSteps() int {
	if h.MaxCoilSteps <= 0 {
		return DefaultMaxCoilSteps
	}
	return h.MaxCoilSteps
}

// HomeAxis runs one ramped axis onto its endstop. The position is zeroed
// only when the endstop was reached.
func (h *Homer) HomeAxis(ctx context.Context, t HomeTarget) Outcome {
	return h.HomeParallel(ctx, t)
}

// HomeParallel commands every target before polling any of them, stops
// each one as its endstop asserts and succeeds when all have arrived. If
// any axis fails to arrive within the bound no position is zeroed.
func (h *Homer) HomeParallel(ctx context.Context, targets ...HomeTarget) Outcome {
	epoch := h.Wait.Gate.Epoch()
	done := make([]bool, len(targets))

	for i, t := range targets {
		if t.Axis.EndstopAsserted(t.Dir) {
			t.Axis.Stop()
			done[i] = true
			continue
		}
		t.Axis.move(t.Dir)
	}

	out := h.Wait.Until(ctx, epoch, h.timeout(), func() (Outcome, bool) {
		all := true
		for i, t := range targets {
			if done[i] {
				continue
			}
			switch {
			case t.Axis.EndstopAsserted(t.Dir):
				t.Axis.Stop()
				done[i] = true
				core.DebugPrintln("[HOMING] " + AxisName(t.Axis.ID()) + " at endstop")
			case !t.Axis.Running():
				if !t.Axis.StoppedAtLimit() {
					// Stopped by someone else, not by the switch
					return Failed, true
				}
				done[i] = true
			default:
				all = false
			}
		}
		return Reached, all
	})

	if out != Reached {
		for _, t := range targets {
			t.Axis.Stop()
			core.RecordTiming(core.EvtHomingFailed, t.Axis.ID(), uint32(out), 0)
		}
		core.DebugPrintln("[HOMING] failed: " + out.String())
		return out
	}

	for _, t := range targets {
		t.Axis.ZeroPosition()
		core.RecordTiming(core.EvtHomed, t.Axis.ID(), 0, 0)
	}
	return Reached
}

// HomeCoil steps the coil axis toward its endstop at the selected class
// delay, bounded by MaxCoilSteps.
func (h *Homer) HomeCoil(ctx context.Context, c *CoilAxis, dir Direction) Outcome {
	epoch := h.Wait.Gate.Epoch()
	limit := h.maxCoilSteps()

	for steps := 0; ; steps++ {
		if h.Wait.Interrupted(ctx, epoch) {
			c.Stop()
			core.RecordTiming(core.EvtHomingFailed, c.ID(), uint32(Aborted), uint32(steps))
			return Aborted
		}
		if c.EndstopAsserted(dir) {
			c.Stop()
			c.ZeroPosition()
			core.RecordTiming(core.EvtHomed, c.ID(), uint32(steps), 0)
			core.DebugPrintln("[HOMING] " + AxisName(c.ID()) + " at endstop after " + core.Itoa(steps) + " steps")
			return Reached
		}
		if steps >= limit {
			c.Stop()
			core.RecordTiming(core.EvtHomingFailed, c.ID(), uint32(Failed), uint32(steps))
			core.DebugPrintln("[HOMING] " + AxisName(c.ID()) + " gave up after " + core.Itoa(steps) + " steps")
			return Failed
		}

		c.step(dir)
		if out := h.Wait.Sleep(ctx, epoch, c.StepDelay()); out != Reached {
			c.Stop()
			return out
		}
	}
}
