// Package pipetter exposes the motion operations of the pipetting robot
// and a line-oriented G-code console on top of them.
package pipetter

import (
	"context"
	"errors"
	"fmt"
	"math"

	"pipetter/core"
	"pipetter/motion"
	"pipetter/pipetter/config"
)

var (
	ErrNotInitialized     = errors.New("motors not initialized")
	ErrAlreadyInitialized = errors.New("motors already initialized")
	ErrInvalidAxis        = errors.New("invalid axis")
	ErrNoHomingEndstop    = errors.New("axis has no homing endstop")
	ErrInvalidVolume      = errors.New("invalid volume")
)

// Hardware is what a target provides to the machine
type Hardware struct {
	GPIO      core.GPIODriver
	Sleeper   core.Sleeper
	NewTicker core.TickerFactory

	// NewBackend creates step/dir backends; nil uses core.NewStepperBackend
	NewBackend func() core.StepperBackend
}

// Machine owns every axis, the valve and the interlock
type Machine struct {
	cfg *config.MachineConfig
	hw  Hardware

	x, y    *motion.RampedAxis
	zRamped *motion.RampedAxis
	zCoil   *motion.CoilAxis

	gate   *motion.SafetyGate
	wait   *motion.Waiter
	homer  *motion.Homer
	mover  *motion.PointMover
	linear *motion.LinearInterpolator
	jog    *motion.JogArbiter
	valve  *core.DigitalOut

	initialized bool
}

// NewMachine validates cfg. No pin is touched before InitMotors.
func NewMachine(cfg *config.MachineConfig, hw Hardware) (*Machine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if hw.GPIO == nil || hw.Sleeper == nil || hw.NewTicker == nil {
		return nil, errors.New("incomplete hardware")
	}
	return &Machine{cfg: cfg, hw: hw}, nil
}

// Config returns the machine configuration
func (m *Machine) Config() *config.MachineConfig {
	return m.cfg
}

// InitMotors configures every pin, creates the axes at position zero and
// leaves all drivers disabled. It may only run once.
func (m *Machine) InitMotors() error {
	if m.initialized {
		return ErrAlreadyInitialized
	}

	emergency, err := m.emergencyInput()
	if err != nil {
		return fmt.Errorf("emergency input: %w", err)
	}
	m.gate = motion.NewSafetyGate(emergency)
	m.wait = &motion.Waiter{Sleeper: m.hw.Sleeper, Gate: m.gate, Poll: m.cfg.Poll()}

	if m.x, err = m.rampedAxis(motion.AxisX); err != nil {
		return err
	}
	if m.y, err = m.rampedAxis(motion.AxisY); err != nil {
		return err
	}
	if zc, ok := m.cfg.Axes["z"]; ok {
		if zc.Kind == config.KindCoil {
			m.zCoil, err = m.coilAxis(zc)
		} else {
			m.zRamped, err = m.rampedAxis(motion.AxisZ)
		}
		if err != nil {
			return err
		}
	}

	if m.cfg.Valve.Pin != "" {
		pin, _ := core.LookupPin(m.cfg.Valve.Pin)
		if m.valve, err = core.NewDigitalOut(m.hw.GPIO, pin, m.cfg.Valve.ActiveLow, false); err != nil {
			return fmt.Errorf("valve: %w", err)
		}
	}

	jogIn, err := m.jogInputs()
	if err != nil {
		return fmt.Errorf("jog inputs: %w", err)
	}
	var zTiming motion.CoilTiming
	if zc, ok := m.cfg.Axes["z"]; ok {
		zTiming = zc.CoilTiming()
	} else {
		zTiming = motion.DefaultCoilTiming()
	}

	m.homer = &motion.Homer{
		Wait:         m.wait,
		Timeout:      m.cfg.HomingTimeout(),
		MaxCoilSteps: m.cfg.MaxHomingSteps,
	}
	m.mover = &motion.PointMover{Wait: m.wait, Timeout: m.cfg.MoveTimeout()}
	m.linear = motion.NewLinearInterpolator(m.x, m.y, m.hw.NewTicker(), m.cfg.InterpPeriod(), m.wait)
	m.jog = motion.NewJogArbiter(jogIn, m.x, m.y, m.zActuator(), m.gate, m.hw.Sleeper, zTiming)

	m.initialized = true
	core.DebugPrintln("[PIPETTER] motors initialized")
	return nil
}

func (m *Machine) emergencyInput() (*core.DigitalIn, error) {
	if m.cfg.EmergencyPin == "" {
		return nil, nil
	}
	pin, err := core.LookupPin(m.cfg.EmergencyPin)
	if err != nil {
		return nil, err
	}
	if m.cfg.EmergencyActiveHigh {
		return core.NewDigitalIn(m.hw.GPIO, pin, core.PullDown, false)
	}
	return core.NewDigitalIn(m.hw.GPIO, pin, core.PullUp, true)
}

// optionalPin parses a pin that may be left empty
func optionalPin(name string) (core.GPIOPin, bool) {
	if name == "" {
		return 0, false
	}
	pin, err := core.LookupPin(name)
	return pin, err == nil
}

func (m *Machine) endstop(name string, ac config.AxisConfig) (*core.Endstop, error) {
	pin, ok := optionalPin(name)
	if !ok {
		return nil, nil
	}
	pull := core.PullDown
	if ac.EndstopActiveLow {
		pull = core.PullUp
	}
	return core.NewEndstop(m.hw.GPIO, pin, pull, !ac.EndstopActiveLow, ac.EndstopSamples)
}

func (m *Machine) rampedAxis(id uint8) (*motion.RampedAxis, error) {
	name := motion.AxisName(id)
	ac := m.cfg.Axes[name]

	var backend core.StepperBackend
	if m.hw.NewBackend != nil {
		backend = m.hw.NewBackend()
	}
	if backend == nil {
		backend = core.NewStepperBackend(m.hw.GPIO)
	}
	stepPin, _ := core.LookupPin(ac.StepPin)
	dirPin, _ := core.LookupPin(ac.DirPin)
	if err := backend.Init(stepPin, dirPin, ac.InvertStep, ac.InvertDir); err != nil {
		return nil, fmt.Errorf("axis %s: %w", name, err)
	}

	var enable *core.DigitalOut
	if pin, ok := optionalPin(ac.EnablePin); ok {
		var err error
		if enable, err = core.NewDigitalOut(m.hw.GPIO, pin, !ac.EnableActiveHigh, false); err != nil {
			return nil, fmt.Errorf("axis %s enable: %w", name, err)
		}
	}

	endMin, err := m.endstop(ac.EndMinPin, ac)
	if err != nil {
		return nil, fmt.Errorf("axis %s endstop: %w", name, err)
	}
	endMax, err := m.endstop(ac.EndMaxPin, ac)
	if err != nil {
		return nil, fmt.Errorf("axis %s endstop: %w", name, err)
	}

	axis, err := motion.NewRampedAxis(id, ac.Ramp, motion.AxisHardware{
		Backend: backend,
		Enable:  enable,
		EndMin:  endMin,
		EndMax:  endMax,
		Ticker:  m.hw.NewTicker(),
	})
	if err != nil {
		return nil, fmt.Errorf("axis %s: %w", name, err)
	}
	core.DebugPrintln("[PIPETTER] axis " + name + " on " + backend.GetName())
	return axis, nil
}

func (m *Machine) coilAxis(ac config.AxisConfig) (*motion.CoilAxis, error) {
	var coils [4]core.GPIOPin
	for i, name := range ac.CoilPins {
		coils[i], _ = core.LookupPin(name)
	}
	endMin, err := m.endstop(ac.EndMinPin, ac)
	if err != nil {
		return nil, fmt.Errorf("axis z endstop: %w", err)
	}
	endMax, err := m.endstop(ac.EndMaxPin, ac)
	if err != nil {
		return nil, fmt.Errorf("axis z endstop: %w", err)
	}
	axis, err := motion.NewCoilAxis(motion.AxisZ, ac.CoilTiming(), motion.CoilHardware{
		GPIO:   m.hw.GPIO,
		Coils:  coils,
		EndMin: endMin,
		EndMax: endMax,
	})
	if err != nil {
		return nil, fmt.Errorf("axis z: %w", err)
	}
	return axis, nil
}

func (m *Machine) jogInputs() (motion.JogInputs, error) {
	var in motion.JogInputs
	var firstErr error
	button := func(name string) *core.DigitalIn {
		pin, ok := optionalPin(name)
		if !ok {
			return nil
		}
		b, err := core.NewDigitalIn(m.hw.GPIO, pin, core.PullDown, false)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		return b
	}
	j := m.cfg.Jog
	in.XUp, in.XDown = button(j.XUp), button(j.XDown)
	in.YUp, in.YDown = button(j.YUp), button(j.YDown)
	in.Toggle = button(j.Toggle)
	in.Slow, in.Medium = button(j.Slow), button(j.Medium)
	return in, firstErr
}

// zActuator returns the Z axis behind the common interface, or nil
func (m *Machine) zActuator() motion.Actuator {
	switch {
	case m.zCoil != nil:
		return m.zCoil
	case m.zRamped != nil:
		return m.zRamped
	}
	return nil
}

func (m *Machine) actuator(id uint8) (motion.Actuator, error) {
	if !m.initialized {
		return nil, ErrNotInitialized
	}
	switch id {
	case motion.AxisX:
		return m.x, nil
	case motion.AxisY:
		return m.y, nil
	case motion.AxisZ:
		if z := m.zActuator(); z != nil {
			return z, nil
		}
	}
	return nil, ErrInvalidAxis
}

func (m *Machine) axisConfig(id uint8) config.AxisConfig {
	return m.cfg.Axes[motion.AxisName(id)]
}

// Homing homes Z first, then X and Y in parallel. Positions are zeroed
// only for the axes that reached their endstops.
func (m *Machine) Homing(ctx context.Context) (motion.Outcome, error) {
	if !m.initialized {
		return motion.Failed, ErrNotInitialized
	}
	for _, id := range []uint8{motion.AxisX, motion.AxisY, motion.AxisZ} {
		if _, err := m.actuator(id); err != nil {
			continue
		}
		if m.axisConfig(id).HomingPin() == "" {
			return motion.Failed, fmt.Errorf("axis %s: %w", motion.AxisName(id), ErrNoHomingEndstop)
		}
	}

	out := motion.Reached
	zDir := m.axisConfig(motion.AxisZ).HomeDir
	switch {
	case m.zCoil != nil:
		out = m.homer.HomeCoil(ctx, m.zCoil, zDir)
	case m.zRamped != nil:
		out = m.homer.HomeAxis(ctx, motion.HomeTarget{Axis: m.zRamped, Dir: zDir})
	}
	if out != motion.Reached {
		m.stopMotion()
		return out, nil
	}

	out = m.homer.HomeParallel(ctx,
		motion.HomeTarget{Axis: m.x, Dir: m.axisConfig(motion.AxisX).HomeDir},
		motion.HomeTarget{Axis: m.y, Dir: m.axisConfig(motion.AxisY).HomeDir})
	if out != motion.Reached {
		m.stopMotion()
	}
	return out, nil
}

// HomeAxis homes a single axis
func (m *Machine) HomeAxis(ctx context.Context, id uint8) (motion.Outcome, error) {
	if _, err := m.actuator(id); err != nil {
		return motion.Failed, err
	}
	ac := m.axisConfig(id)
	if ac.HomingPin() == "" {
		return motion.Failed, fmt.Errorf("axis %s: %w", motion.AxisName(id), ErrNoHomingEndstop)
	}

	var out motion.Outcome
	switch {
	case id == motion.AxisZ && m.zCoil != nil:
		out = m.homer.HomeCoil(ctx, m.zCoil, ac.HomeDir)
	default:
		out = m.homer.HomeAxis(ctx, motion.HomeTarget{Axis: m.ramped(id), Dir: ac.HomeDir})
	}
	if out != motion.Reached {
		m.stopMotion()
	}
	return out, nil
}

func (m *Machine) ramped(id uint8) *motion.RampedAxis {
	switch id {
	case motion.AxisX:
		return m.x
	case motion.AxisY:
		return m.y
	}
	return m.zRamped
}

// ManualControl runs one jog iteration
func (m *Machine) ManualControl() error {
	if !m.initialized {
		return ErrNotInitialized
	}
	m.jog.Poll()
	return nil
}

// GetPositionSteps returns the axis position in position units
func (m *Machine) GetPositionSteps(id uint8) (int32, error) {
	a, err := m.actuator(id)
	if err != nil {
		return 0, err
	}
	return a.Position(), nil
}

// GetPositionCm converts the axis position with the axis' steps per cm
func (m *Machine) GetPositionCm(id uint8) (float32, error) {
	steps, err := m.GetPositionSteps(id)
	if err != nil {
		return 0, err
	}
	return float32(steps) / m.axisConfig(id).StepsPerCm, nil
}

// StepsPerCm returns the conversion factor of an axis
func (m *Machine) StepsPerCm(id uint8) float32 {
	return m.axisConfig(id).StepsPerCm
}

// MoveTo moves one axis to an absolute position
func (m *Machine) MoveTo(ctx context.Context, id uint8, target int32) (motion.Outcome, error) {
	if _, err := m.actuator(id); err != nil {
		return motion.Failed, err
	}

	var out motion.Outcome
	if id == motion.AxisZ && m.zCoil != nil {
		out = m.mover.MoveCoil(ctx, m.zCoil, target)
	} else {
		out = m.mover.MoveAxis(ctx, m.ramped(id), target)
	}
	if out == motion.Aborted {
		m.stopMotion()
	}
	return out, nil
}

// MoveLinear moves X and Y together along a straight line
func (m *Machine) MoveLinear(ctx context.Context, tx, ty int32) (motion.Outcome, error) {
	if !m.initialized {
		return motion.Failed, ErrNotInitialized
	}
	out := m.linear.MoveLinear(ctx, tx, ty)
	if out == motion.Aborted {
		m.stopMotion()
	}
	return out, nil
}

// ActuateValve opens the valve for volumeMl times the calibrated time per
// ml, capped by the maximum open time. The valve closes early when the
// caller is interrupted.
func (m *Machine) ActuateValve(ctx context.Context, volumeMl float32) (motion.Outcome, error) {
	if !m.initialized {
		return motion.Failed, ErrNotInitialized
	}
	if m.valve == nil {
		return motion.Failed, errors.New("no valve configured")
	}
	v := float64(volumeMl)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return motion.Failed, ErrInvalidVolume
	}
	if v <= 0 {
		return motion.Reached, nil
	}

	epoch := m.gate.Epoch()
	if m.wait.Interrupted(ctx, epoch) {
		return motion.Aborted, nil
	}

	// Clamp before converting so large volumes cannot wrap
	ms := m.cfg.Valve.MaxOpenMs
	if open := v * float64(m.cfg.Valve.MsPerMl); open < float64(ms) {
		ms = uint32(open)
	}

	if err := m.valve.Set(true); err != nil {
		return motion.Failed, err
	}
	out := m.wait.Sleep(ctx, epoch, core.MsToDuration(ms))
	_ = m.valve.Set(false)
	return out, nil
}

// ValveOpen reports the valve state
func (m *Machine) ValveOpen() bool {
	return m.valve != nil && m.valve.IsOn()
}

// StopAll ends every motion, disables every driver, de-energizes the coil
// axis, closes the valve and aborts any blocking call in progress. Safe to
// call concurrently with a blocking call.
func (m *Machine) StopAll() {
	if !m.initialized {
		return
	}
	m.gate.Abort()
	m.stopMotion()
}

// EmergencyStop stops everything and dumps the motion event ring
func (m *Machine) EmergencyStop() {
	m.StopAll()
	core.DumpTimingRing()
}

func (m *Machine) stopMotion() {
	m.linear.Stop()
	m.x.Stop()
	m.y.Stop()
	if z := m.zActuator(); z != nil {
		z.Stop()
	}
	if m.valve != nil {
		_ = m.valve.Set(false)
	}
}

// DisableMotors stops the axes and releases their drivers without
// aborting the caller's epoch
func (m *Machine) DisableMotors() error {
	if !m.initialized {
		return ErrNotInitialized
	}
	m.linear.Stop()
	m.x.Stop()
	m.y.Stop()
	if z := m.zActuator(); z != nil {
		z.Stop()
	}
	return nil
}

// ZeroPosition re-references an axis at its current position
func (m *Machine) ZeroPosition(id uint8) error {
	a, err := m.actuator(id)
	if err != nil {
		return err
	}
	a.ZeroPosition()
	return nil
}

// SetSpeedClass selects the speed class of every axis
func (m *Machine) SetSpeedClass(class motion.SpeedClass) error {
	if !m.initialized {
		return ErrNotInitialized
	}
	if !class.Valid() {
		return errors.New("invalid speed class")
	}
	m.jog.SetSpeedClass(class)
	return nil
}

// SpeedClass returns the active speed class
func (m *Machine) SpeedClass() motion.SpeedClass {
	if !m.initialized {
		return motion.Fast
	}
	return m.jog.SpeedClass()
}

// JogMode returns which axis the second jog button pair drives
func (m *Machine) JogMode() motion.JogMode {
	if !m.initialized {
		return motion.JogXY
	}
	return m.jog.Mode()
}

// SetJogMode switches the jog mapping, stopping all axes
func (m *Machine) SetJogMode(mode motion.JogMode) error {
	if !m.initialized {
		return ErrNotInitialized
	}
	m.jog.SetMode(mode)
	return nil
}

// Permitted reports whether the emergency input allows motion
func (m *Machine) Permitted() bool {
	return !m.initialized || m.gate.Permitted()
}

// Endstops samples every configured axis' switches
func (m *Machine) Endstops() []motion.EndstopState {
	var states []motion.EndstopState
	for _, id := range []uint8{motion.AxisX, motion.AxisY, motion.AxisZ} {
		a, err := m.actuator(id)
		if err != nil {
			continue
		}
		states = append(states, motion.EndstopState{
			Axis: id,
			Min:  a.EndstopAsserted(motion.Backward),
			Max:  a.EndstopAsserted(motion.Forward),
		})
	}
	return states
}
