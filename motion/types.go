// Package motion implements axis drivers, homing, linear interpolation,
// manual jogging and the emergency interlock of the pipetting robot.
//
// Axis step pulses are produced from ticker callbacks. Everything else runs
// on the control loop and observes the axes through atomics.
package motion

import (
	"errors"
	"time"
)

// Direction of travel. Forward moves toward the max endstop.
type Direction uint8

const (
	Forward Direction = iota
	Backward
)

// Sign returns +1 for Forward and -1 for Backward
func (d Direction) Sign() int32 {
	if d == Backward {
		return -1
	}
	return 1
}

// Opposite returns the other direction
func (d Direction) Opposite() Direction {
	if d == Backward {
		return Forward
	}
	return Backward
}

func (d Direction) String() string {
	if d == Backward {
		return "backward"
	}
	return "forward"
}

func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Direction) UnmarshalText(text []byte) error {
	switch string(text) {
	case "forward", "max", "+":
		*d = Forward
	case "backward", "min", "-":
		*d = Backward
	default:
		return errors.New("invalid direction: " + string(text))
	}
	return nil
}

// SpeedClass selects the ramp floor of the ramped axes and the step delay
// of the coil axis.
type SpeedClass uint8

const (
	Fast SpeedClass = iota
	Medium
	Slow

	numSpeedClasses
)

func (c SpeedClass) String() string {
	switch c {
	case Fast:
		return "fast"
	case Medium:
		return "medium"
	case Slow:
		return "slow"
	}
	return "unknown"
}

func (c SpeedClass) Valid() bool {
	return c < numSpeedClasses
}

func (c SpeedClass) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *SpeedClass) UnmarshalText(text []byte) error {
	switch string(text) {
	case "fast":
		*c = Fast
	case "medium":
		*c = Medium
	case "slow":
		*c = Slow
	default:
		return errors.New("invalid speed class: " + string(text))
	}
	return nil
}

// Outcome is the result of every blocking motion call
type Outcome uint8

const (
	Reached  Outcome = iota // Target or endstop reached as commanded
	LimitHit                // Stopped early by an endstop
	Aborted                 // Emergency input, StopAll or context cancellation
	Failed                  // Bound exhausted (timeout or step budget)
)

func (o Outcome) String() string {
	switch o {
	case Reached:
		return "reached"
	case LimitHit:
		return "limit hit"
	case Aborted:
		return "aborted"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Actuator is the command surface shared by the ramped and the coil axis.
// For a ramped axis MoveForward starts continuous motion; for the coil axis
// it takes one step.
type Actuator interface {
	MoveForward() bool
	MoveBackward() bool
	Stop()
	Position() int32
	ZeroPosition()
	SetSpeedClass(class SpeedClass)
	EndstopAsserted(dir Direction) bool
}

// Axis ids used in event records and the machine API
const (
	AxisX uint8 = iota
	AxisY
	AxisZ
)

// EndstopState is the min/max switch state of one axis
type EndstopState struct {
	Axis     uint8
	Min, Max bool
}

// AxisName returns "x", "y" or "z"
func AxisName(id uint8) string {
	switch id {
	case AxisX:
		return "x"
	case AxisY:
		return "y"
	case AxisZ:
		return "z"
	}
	return "?"
}

// RampConfig is the per-axis step timing table. Periods are microseconds.
type RampConfig struct {
	InitialPeriodUS uint32    `json:"initial_period_us"`
	MinPeriodUS     [3]uint32 `json:"min_period_us"` // indexed by SpeedClass
	RampStepUS      uint32    `json:"ramp_step_us"`
	StepsPerRamp    uint32    `json:"steps_per_ramp"`

	// Position units added per rising edge of the step line. With 2 the
	// position counts step line toggles.
	PositionIncrement int32 `json:"position_increment"`
}

// DefaultRampConfig returns the X axis table
func DefaultRampConfig() RampConfig {
	return RampConfig{
		InitialPeriodUS:   1000,
		MinPeriodUS:       [3]uint32{175, 300, 700},
		RampStepUS:        25,
		StepsPerRamp:      25,
		PositionIncrement: 2,
	}
}

// Validate rejects tables the ramp cannot run
func (c RampConfig) Validate() error {
	if c.InitialPeriodUS == 0 {
		return errors.New("initial period must be positive")
	}
	for _, p := range c.MinPeriodUS {
		if p == 0 {
			return errors.New("min period must be positive")
		}
	}
	if c.StepsPerRamp == 0 {
		return errors.New("steps per ramp must be positive")
	}
	if c.PositionIncrement <= 0 {
		return errors.New("position increment must be positive")
	}
	return nil
}

// CoilTiming is the per-step delay table of the coil axis
type CoilTiming [3]time.Duration

// DefaultCoilTiming returns 3, 4 and 5 ms for fast, medium and slow
func DefaultCoilTiming() CoilTiming {
	return CoilTiming{3 * time.Millisecond, 4 * time.Millisecond, 5 * time.Millisecond}
}

// rampToward moves period one step toward target, never past it
func rampToward(period, target, step uint32) uint32 {
	switch {
	case period > target:
		if period-target <= step {
			return target
		}
		return period - step
	case period < target:
		if target-period <= step {
			return target
		}
		return period + step
	}
	return period
}
