package motion

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"pipetter/core"
)

// LinearMove is the integer line rasterizer of one coordinated move. Each
// Step decides which of the two axes advance on this tick.
type LinearMove struct {
	X, Y   int32 // current point
	TX, TY int32 // target

	dx, dy int32
	sx, sy int32
	err    int32
}

// NewLinearMove starts a line from (x0, y0) to (tx, ty)
func NewLinearMove(x0, y0, tx, ty int32) *LinearMove {
	m := &LinearMove{X: x0, Y: y0, TX: tx, TY: ty, sx: 1, sy: 1}
	m.dx = tx - x0
	if m.dx < 0 {
		m.dx, m.sx = -m.dx, -1
	}
	m.dy = ty - y0
	if m.dy < 0 {
		m.dy, m.sy = -m.dy, -1
	}
	m.err = m.dx - m.dy
	return m
}

// Done reports whether the target has been reached
func (m *LinearMove) Done() bool {
	return m.X == m.TX && m.Y == m.TY
}

// Step runs one iteration and reports which axes stepped
func (m *LinearMove) Step() (stepX, stepY bool) {
	if m.Done() {
		return false, false
	}
	e2 := 2 * m.err
	if e2 > -m.dy {
		m.err -= m.dy
		m.X += m.sx
		stepX = true
	}
	if e2 < m.dx {
		m.err += m.dx
		m.Y += m.sy
		stepY = true
	}
	return stepX, stepY
}

// XDir returns the X travel direction
func (m *LinearMove) XDir() Direction {
	if m.sx < 0 {
		return Backward
	}
	return Forward
}

// YDir returns the Y travel direction
func (m *LinearMove) YDir() Direction {
	if m.sy < 0 {
		return Backward
	}
	return Forward
}

const linearRunning = 0xff

// LinearInterpolator moves X and Y together along a straight line from a
// dedicated fixed-period ticker. The axes' own tickers stay detached for
// the duration.
type LinearInterpolator struct {
	x, y   *RampedAxis
	ticker core.Ticker
	period time.Duration
	wait   *Waiter
	tickFn func()

	// Serializes ticks with Stop so no step follows a finished move
	mu    sync.Mutex
	move  *LinearMove   // written by the loop while detached
	state atomic.Uint32 // linearRunning, or the Outcome of the last move
}

// NewLinearInterpolator creates an idle interpolator. A zero period uses a
// third of the X axis' initial period.
func NewLinearInterpolator(x, y *RampedAxis, ticker core.Ticker, period time.Duration, wait *Waiter) *LinearInterpolator {
	if period <= 0 {
		period = core.UsToDuration(x.Config().InitialPeriodUS) / 3
	}
	li := &LinearInterpolator{x: x, y: y, ticker: ticker, period: period, wait: wait}
	li.tickFn = li.onTick
	li.state.Store(uint32(Reached))
	return li
}

// Period returns the interpolation tick period
func (li *LinearInterpolator) Period() time.Duration {
	return li.period
}

// Active reports whether a move is in progress
func (li *LinearInterpolator) Active() bool {
	return li.state.Load() == linearRunning
}

// MoveLinear moves to (tx, ty) in position units and blocks until the
// target is reached, an endstop in the direction of travel asserts or the
// caller is interrupted. An interrupted move is not rolled back.
func (li *LinearInterpolator) MoveLinear(ctx context.Context, tx, ty int32) Outcome {
	epoch := li.wait.Gate.Epoch()
	if li.wait.Interrupted(ctx, epoch) {
		return Aborted
	}
	li.Stop()

	m := NewLinearMove(li.x.Position(), li.y.Position(), tx, ty)
	if m.Done() {
		return Reached
	}

	li.x.beginExternal(m.XDir())
	li.y.beginExternal(m.YDir())
	li.mu.Lock()
	li.move = m
	li.state.Store(linearRunning)
	li.ticker.Attach(li.tickFn, li.period)
	li.mu.Unlock()
	core.RecordTiming(core.EvtLinearStart, core.InterpAxis, uint32(m.dx), uint32(m.dy))

	out := li.wait.Until(ctx, epoch, 0, func() (Outcome, bool) {
		s := li.state.Load()
		return Outcome(s), s != linearRunning
	})
	if out == Aborted {
		li.Stop()
	}
	return out
}

// onTick runs one rasterizer iteration. Ticker context.
func (li *LinearInterpolator) onTick() {
	li.mu.Lock()
	defer li.mu.Unlock()
	if li.state.Load() != linearRunning {
		return
	}
	m := li.move

	if (m.X != m.TX && li.x.EndstopAsserted(m.XDir())) ||
		(m.Y != m.TY && li.y.EndstopAsserted(m.YDir())) {
		li.finish(LimitHit)
		return
	}

	stepX, stepY := m.Step()
	if stepX {
		li.x.stepExternal(m.X)
	}
	if stepY {
		li.y.stepExternal(m.Y)
	}

	if m.Done() {
		li.finish(Reached)
	}
}

func (li *LinearInterpolator) finish(out Outcome) {
	if !li.state.CompareAndSwap(linearRunning, uint32(out)) {
		return
	}
	li.ticker.Detach()
	li.x.endExternal()
	li.y.endExternal()
	core.RecordTiming(core.EvtLinearDone, core.InterpAxis, uint32(out), 0)
}

// Stop ends a move in progress where it is and disables both drivers
func (li *LinearInterpolator) Stop() {
	li.mu.Lock()
	defer li.mu.Unlock()
	li.finish(Aborted)
}
