package motion

import (
	"sync/atomic"
	"time"

	"pipetter/core"
)

// coilSequence energizes one coil per phase, A through D
var coilSequence = [4]uint8{0b0001, 0b0010, 0b0100, 0b1000}

// CoilAxis sequences a unipolar stepper through four coil outputs. It has
// no ticker: callers step it synchronously and pace it with StepDelay.
type CoilAxis struct {
	id     uint8
	gpio   core.GPIODriver
	coils  [4]core.GPIOPin
	endMin *core.Endstop
	endMax *core.Endstop
	timing CoilTiming

	phase    int
	position atomic.Int32
	class    atomic.Uint32
}

// CoilHardware bundles the outputs and inputs of a coil axis
type CoilHardware struct {
	GPIO   core.GPIODriver
	Coils  [4]core.GPIOPin
	EndMin *core.Endstop
	EndMax *core.Endstop
}

// NewCoilAxis configures the coil outputs and leaves them de-energized
func NewCoilAxis(id uint8, timing CoilTiming, hw CoilHardware) (*CoilAxis, error) {
	c := &CoilAxis{
		id:     id,
		gpio:   hw.GPIO,
		coils:  hw.Coils,
		endMin: hw.EndMin,
		endMax: hw.EndMax,
		timing: timing,
	}
	for _, pin := range c.coils {
		if err := c.gpio.ConfigureOutput(pin); err != nil {
			return nil, err
		}
	}
	c.Stop()
	return c, nil
}

// ID returns the axis id
func (c *CoilAxis) ID() uint8 { return c.id }

// StepForward advances one phase unless the max endstop is asserted, in
// which case the coils are de-energized and nothing moves.
func (c *CoilAxis) StepForward() bool {
	return c.step(Forward)
}

// StepBackward retreats one phase unless the min endstop is asserted
func (c *CoilAxis) StepBackward() bool {
	return c.step(Backward)
}

func (c *CoilAxis) step(dir Direction) bool {
	if c.EndstopAsserted(dir) {
		c.Stop()
		return false
	}

	if dir == Forward {
		c.phase = (c.phase + 1) % len(coilSequence)
	} else {
		c.phase = (c.phase + len(coilSequence) - 1) % len(coilSequence)
	}
	c.write(coilSequence[c.phase])
	c.position.Add(dir.Sign())
	return true
}

func (c *CoilAxis) write(pattern uint8) {
	for i, pin := range c.coils {
		_ = c.gpio.SetPin(pin, pattern&(1<<uint(i)) != 0)
	}
}

// MoveForward takes one step; see Actuator
func (c *CoilAxis) MoveForward() bool {
	return c.StepForward()
}

// MoveBackward takes one step back; see Actuator
func (c *CoilAxis) MoveBackward() bool {
	return c.StepBackward()
}

// Stop de-energizes all coils. The phase is kept so the next step
// continues the sequence.
func (c *CoilAxis) Stop() {
	c.write(0)
}

func (c *CoilAxis) Position() int32 {
	return c.position.Load()
}

func (c *CoilAxis) ZeroPosition() {
	c.position.Store(0)
}

// Phase returns the current index into the coil sequence
func (c *CoilAxis) Phase() int {
	return c.phase
}

func (c *CoilAxis) SetSpeedClass(class SpeedClass) {
	if !class.Valid() {
		return
	}
	c.class.Store(uint32(class))
}

// SpeedClass returns the selected class
func (c *CoilAxis) SpeedClass() SpeedClass {
	return SpeedClass(c.class.Load())
}

// StepDelay is the pause between steps at the selected class
func (c *CoilAxis) StepDelay() time.Duration {
	return c.timing[c.SpeedClass()]
}

func (c *CoilAxis) EndstopAsserted(dir Direction) bool {
	if dir == Backward {
		return c.endMin.Triggered()
	}
	return c.endMax.Triggered()
}
