package motion

import (
	"context"
	"time"
)

// DefaultMoveTimeout bounds a single-axis ramped move
const DefaultMoveTimeout = 120 * time.Second

// PointMover moves a single axis to an absolute position
type PointMover struct {
	Wait    *Waiter
	Timeout time.Duration // zero = DefaultMoveTimeout
}

func (p *PointMover) timeout() time.Duration {
	if p.Timeout <= 0 {
		return DefaultMoveTimeout
	}
	return p.Timeout
}

// MoveAxis runs a ramped axis to target. The tick stops the axis on the
// first rising edge at or past the target, so the final position may
// exceed it by less than one position increment.
func (p *PointMover) MoveAxis(ctx context.Context, a *RampedAxis, target int32) Outcome {
	epoch := p.Wait.Gate.Epoch()
	if p.Wait.Interrupted(ctx, epoch) {
		return Aborted
	}
	if a.Position() == target {
		return Reached
	}
	if !a.moveTo(target) {
		return LimitHit
	}

	out := p.Wait.Until(ctx, epoch, p.timeout(), func() (Outcome, bool) {
		if a.Running() {
			return Reached, false
		}
		if a.StoppedAtLimit() {
			return LimitHit, true
		}
		if a.passed(a.Position(), a.Direction()) {
			return Reached, true
		}
		// Stopped by another caller
		return Aborted, true
	})
	if out != Reached {
		a.Stop()
	}
	return out
}

// MoveCoil steps the coil axis to target at the selected class delay and
// de-energizes it at the end.
func (p *PointMover) MoveCoil(ctx context.Context, c *CoilAxis, target int32) Outcome {
	epoch := p.Wait.Gate.Epoch()
	defer c.Stop()

	for c.Position() != target {
		if p.Wait.Interrupted(ctx, epoch) {
			return Aborted
		}
		dir := Forward
		if target < c.Position() {
			dir = Backward
		}
		if !c.step(dir) {
			return LimitHit
		}
		if out := p.Wait.Sleep(ctx, epoch, c.StepDelay()); out != Reached {
			return out
		}
	}
	return Reached
}
