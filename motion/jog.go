package motion

import (
	"pipetter/core"
)

// JogMode selects which axis the second button pair drives
type JogMode uint8

const (
	JogXY JogMode = iota // second pair drives Y
	JogXZ                // second pair drives Z
)

func (m JogMode) String() string {
	if m == JogXZ {
		return "XZ"
	}
	return "XY"
}

// JogInputs are the operator buttons. Any input may be nil.
type JogInputs struct {
	XUp, XDown *core.DigitalIn
	YUp, YDown *core.DigitalIn // Y in JogXY, Z in JogXZ
	Toggle     *core.DigitalIn // rising edge switches the mode
	Slow       *core.DigitalIn // speed selector, checked first
	Medium     *core.DigitalIn
}

// JogArbiter maps the buttons onto axis commands, one Poll per control
// loop iteration.
type JogArbiter struct {
	in      JogInputs
	x, y, z Actuator
	gate    *SafetyGate
	sleeper core.Sleeper
	delay   CoilTiming

	mode       JogMode
	lastToggle bool
	class      SpeedClass
}

// NewJogArbiter creates an arbiter in JogXY mode at Fast
func NewJogArbiter(in JogInputs, x, y, z Actuator, gate *SafetyGate, sleeper core.Sleeper, delay CoilTiming) *JogArbiter {
	return &JogArbiter{
		in:      in,
		x:       x,
		y:       y,
		z:       z,
		gate:    gate,
		sleeper: sleeper,
		delay:   delay,
	}
}

// Poll runs one jog iteration and ends with the step delay of the active
// class, which paces the coil axis.
func (j *JogArbiter) Poll() {
	if !j.gate.Permitted() {
		j.stopAll()
		j.sleeper.Sleep(j.delay[j.class])
		return
	}

	// Edge against the previous raw sample
	raw := j.in.Toggle.Active()
	if raw && !j.lastToggle {
		j.SetMode(j.mode ^ 1)
	}
	j.lastToggle = raw

	if j.in.Slow != nil || j.in.Medium != nil {
		j.SetSpeedClass(j.selectorClass())
	}

	drive(j.x, j.in.XUp, j.in.XDown)
	drive(j.second(), j.in.YUp, j.in.YDown)

	j.sleeper.Sleep(j.delay[j.class])
}

// selectorClass reads the speed selector, first match wins
func (j *JogArbiter) selectorClass() SpeedClass {
	switch {
	case j.in.Slow.Active():
		return Slow
	case j.in.Medium.Active():
		return Medium
	}
	return Fast
}

func (j *JogArbiter) second() Actuator {
	if j.mode == JogXZ {
		return j.z
	}
	return j.y
}

func drive(a Actuator, up, down *core.DigitalIn) {
	if a == nil {
		return
	}
	u, d := up.Active(), down.Active()
	switch {
	case u && !d:
		a.MoveForward()
	case d && !u:
		a.MoveBackward()
	default:
		a.Stop()
	}
}

// Mode returns the active jog mode
func (j *JogArbiter) Mode() JogMode {
	return j.mode
}

// SetMode stops every axis and switches the button mapping
func (j *JogArbiter) SetMode(mode JogMode) {
	j.stopAll()
	if mode != j.mode {
		core.DebugPrintln("[JOG] mode " + mode.String())
	}
	j.mode = mode
}

// SpeedClass returns the class applied to the axes
func (j *JogArbiter) SpeedClass() SpeedClass {
	return j.class
}

// SetSpeedClass applies class to every axis
func (j *JogArbiter) SetSpeedClass(class SpeedClass) {
	if !class.Valid() {
		return
	}
	j.class = class
	for _, a := range []Actuator{j.x, j.y, j.z} {
		if a != nil {
			a.SetSpeedClass(class)
		}
	}
}

func (j *JogArbiter) stopAll() {
	for _, a := range []Actuator{j.x, j.y, j.z} {
		if a != nil {
			a.Stop()
		}
	}
}
