package motion

import (
	"sync"
	"sync/atomic"

	"pipetter/core"
)

// RampedAxis drives one step/direction axis from a periodic ticker with a
// linear period ramp.
//
// The loop writes direction and resets the ramp only while the ticker is
// detached. The tick callback owns the step level, the ramp counter and the
// live period. Position and the running flag are written by the tick and
// read by the loop.
//
// A ticker may still be delivering a tick from before the last Detach, so
// ticks and loop-side start/stop serialize on mu, and a tick carrying an
// older run generation is dropped.
type RampedAxis struct {
	id      uint8
	cfg     RampConfig
	backend core.StepperBackend
	enable  *core.DigitalOut // nil when the driver has no enable line
	endMin  *core.Endstop
	endMax  *core.Endstop
	ticker  core.Ticker
	tickFn  func()

	mu  sync.Mutex
	run uint32 // generation of the current start, guarded by mu

	dir       atomic.Uint32 // Direction
	period    atomic.Uint32 // live period, us
	minPeriod atomic.Uint32
	position  atomic.Int32
	running   atomic.Bool
	limitHit  atomic.Bool
	target    atomic.Int32
	bounded   atomic.Bool // stop on reaching target

	// Ticker-owned
	sinceRamp atomic.Uint32
	stepLevel atomic.Bool
}

// AxisHardware bundles the outputs and inputs of a ramped axis
type AxisHardware struct {
	Backend core.StepperBackend
	Enable  *core.DigitalOut
	EndMin  *core.Endstop
	EndMax  *core.Endstop
	Ticker  core.Ticker
}

// NewRampedAxis creates a stopped axis at position zero
func NewRampedAxis(id uint8, cfg RampConfig, hw AxisHardware) (*RampedAxis, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &RampedAxis{
		id:      id,
		cfg:     cfg,
		backend: hw.Backend,
		enable:  hw.Enable,
		endMin:  hw.EndMin,
		endMax:  hw.EndMax,
		ticker:  hw.Ticker,
	}
	a.period.Store(cfg.InitialPeriodUS)
	a.minPeriod.Store(cfg.MinPeriodUS[Fast])
	a.disable()
	return a, nil
}

// ID returns the axis id
func (a *RampedAxis) ID() uint8 { return a.id }

// Config returns the ramp table
func (a *RampedAxis) Config() RampConfig { return a.cfg }

// MoveForward starts motion toward the max endstop
func (a *RampedAxis) MoveForward() bool {
	return a.move(Forward)
}

// MoveBackward starts motion toward the min endstop
func (a *RampedAxis) MoveBackward() bool {
	return a.move(Backward)
}

// moveTo runs toward target and stops in ticker context once the position
// reaches or passes it.
func (a *RampedAxis) moveTo(target int32) bool {
	dir := Forward
	if target < a.position.Load() {
		dir = Backward
	}
	a.target.Store(target)
	a.bounded.Store(true)
	if !a.start(dir) {
		a.bounded.Store(false)
		return false
	}
	return true
}

func (a *RampedAxis) move(dir Direction) bool {
	a.bounded.Store(false)
	return a.start(dir)
}

// start runs the ticker in dir from the initial period. It refuses to
// start into an asserted endstop and does nothing if the axis is already
// running that way.
func (a *RampedAxis) start(dir Direction) bool {
	if a.EndstopAsserted(dir) {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running.Load() && a.Direction() == dir {
		return true
	}

	a.ticker.Detach()
	a.running.Store(false)

	a.dir.Store(uint32(dir))
	a.backend.SetDirection(dir == Backward)
	a.period.Store(a.cfg.InitialPeriodUS)
	a.sinceRamp.Store(0)
	a.stepLevel.Store(false)
	a.backend.Stop()
	a.limitHit.Store(false)

	if a.enable != nil {
		_ = a.enable.Set(true)
	}
	a.running.Store(true)
	a.run++
	run := a.run
	a.tickFn = func() { a.tick(run) }
	a.ticker.Attach(a.tickFn, core.UsToDuration(a.cfg.InitialPeriodUS))

	core.RecordTiming(core.EvtMoveStart, a.id, uint32(dir), a.cfg.InitialPeriodUS)
	return true
}

// Stop detaches the ticker and disables the driver. Idempotent. Once it
// returns no further step is emitted.
func (a *RampedAxis) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stop()
}

func (a *RampedAxis) stop() {
	wasRunning := a.running.Swap(false)
	a.ticker.Detach()
	a.backend.Stop()
	a.stepLevel.Store(false)
	a.disable()
	if wasRunning {
		core.RecordTiming(core.EvtAxisStop, a.id, uint32(a.position.Load()), 0)
	}
}

func (a *RampedAxis) disable() {
	if a.enable != nil {
		_ = a.enable.Set(false)
	}
}

// OnTick emits one step line toggle and advances the ramp for the
// current run. Runs in ticker context.
func (a *RampedAxis) OnTick() {
	a.mu.Lock()
	run := a.run
	a.mu.Unlock()
	a.tick(run)
}

func (a *RampedAxis) tick(run uint32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.running.Load() || run != a.run {
		return
	}

	dir := a.Direction()
	if a.EndstopAsserted(dir) {
		a.stop()
		a.limitHit.Store(true)
		core.RecordTiming(core.EvtEndstopStop, a.id, uint32(a.position.Load()), uint32(dir))
		return
	}

	level := !a.stepLevel.Load()
	a.stepLevel.Store(level)
	a.backend.SetStep(level)
	if level {
		pos := a.position.Add(dir.Sign() * a.cfg.PositionIncrement)
		if a.bounded.Load() && a.passed(pos, dir) {
			a.stop()
			return
		}
	}

	if a.sinceRamp.Add(1) < a.cfg.StepsPerRamp {
		return
	}
	a.sinceRamp.Store(0)

	old := a.period.Load()
	next := rampToward(old, a.minPeriod.Load(), a.cfg.RampStepUS)
	if next == old {
		return
	}
	a.period.Store(next)

	// No in-place interval update: re-arm
	a.ticker.Detach()
	if a.running.Load() {
		a.ticker.Attach(a.tickFn, core.UsToDuration(next))
	}
	core.RecordTiming(core.EvtRampAdjust, a.id, old, next)
}

func (a *RampedAxis) passed(pos int32, dir Direction) bool {
	t := a.target.Load()
	if dir == Backward {
		return pos <= t
	}
	return pos >= t
}

// SetSpeedClass sets the ramp floor. A running ramp picks it up at its
// next adjustment.
func (a *RampedAxis) SetSpeedClass(class SpeedClass) {
	if !class.Valid() {
		return
	}
	a.minPeriod.Store(a.cfg.MinPeriodUS[class])
}

// EndstopAsserted reports whether the endstop limiting travel in dir is
// pressed.
func (a *RampedAxis) EndstopAsserted(dir Direction) bool {
	if dir == Backward {
		return a.endMin.Triggered()
	}
	return a.endMax.Triggered()
}

// StoppedAtLimit reports whether the last motion ended on an endstop
func (a *RampedAxis) StoppedAtLimit() bool {
	return a.limitHit.Load()
}

func (a *RampedAxis) Position() int32 {
	return a.position.Load()
}

// ZeroPosition re-references the axis. Only valid while stopped.
func (a *RampedAxis) ZeroPosition() {
	a.position.Store(0)
}

func (a *RampedAxis) Running() bool {
	return a.running.Load()
}

func (a *RampedAxis) Enabled() bool {
	return a.enable == nil || a.enable.IsOn()
}

func (a *RampedAxis) Direction() Direction {
	return Direction(a.dir.Load())
}

// CurrentPeriod returns the live tick period in microseconds
func (a *RampedAxis) CurrentPeriod() uint32 {
	return a.period.Load()
}

// MinPeriod returns the ramp floor in microseconds
func (a *RampedAxis) MinPeriod() uint32 {
	return a.minPeriod.Load()
}

// External stepping, used by the linear interpolator while this axis'
// own ticker is detached.

func (a *RampedAxis) beginExternal(dir Direction) {
	a.Stop()
	a.dir.Store(uint32(dir))
	a.backend.SetDirection(dir == Backward)
	a.limitHit.Store(false)
	if a.enable != nil {
		_ = a.enable.Set(true)
	}
}

// stepExternal toggles the step line and records pos
func (a *RampedAxis) stepExternal(pos int32) {
	level := !a.stepLevel.Load()
	a.stepLevel.Store(level)
	a.backend.SetStep(level)
	a.position.Store(pos)
}

func (a *RampedAxis) endExternal() {
	a.backend.Stop()
	a.stepLevel.Store(false)
	a.disable()
}
