package motion

import (
	"testing"

	"pipetter/core"
)

const (
	pinXUp, pinXDown core.GPIOPin = 18, 19
	pinYUp, pinYDown core.GPIOPin = 20, 21
	pinToggle        core.GPIOPin = 22
	pinSlow          core.GPIOPin = 26
	pinMedium        core.GPIOPin = 27
)

type jogRig struct {
	*rig
	x, y *RampedAxis
	z    *CoilAxis
	zm   *core.SimCoilMotor
	jog  *JogArbiter
}

func newJogRig(t *testing.T) *jogRig {
	r := newRig(t)
	x, _ := r.rampedAxis(t, AxisX, DefaultRampConfig(), xPins, -farLimit, farLimit)
	y, _ := r.rampedAxis(t, AxisY, yRampConfig(), yPins, -farLimit, farLimit)
	z, zm := r.coilAxis(t, -farLimit, farLimit)

	button := func(pin core.GPIOPin) *core.DigitalIn {
		in, err := core.NewDigitalIn(r.gpio, pin, core.PullDown, false)
		if err != nil {
			t.Fatalf("button %d: %v", pin, err)
		}
		return in
	}
	in := JogInputs{
		XUp:    button(pinXUp),
		XDown:  button(pinXDown),
		YUp:    button(pinYUp),
		YDown:  button(pinYDown),
		Toggle: button(pinToggle),
		Slow:   button(pinSlow),
		Medium: button(pinMedium),
	}
	jog := NewJogArbiter(in, x, y, z, r.gate, r.sched, DefaultCoilTiming())
	return &jogRig{rig: r, x: x, y: y, z: z, zm: zm, jog: jog}
}

func TestJogDrivesXY(t *testing.T) {
	j := newJogRig(t)

	j.gpio.SetInput(pinXUp, true)
	j.gpio.SetInput(pinYDown, true)
	j.jog.Poll()

	if !j.x.Running() || j.x.Direction() != Forward {
		t.Error("X up should run X forward")
	}
	if !j.y.Running() || j.y.Direction() != Backward {
		t.Error("Y down should run Y backward")
	}

	// Held button keeps the ramp going
	for i := 0; i < 30; i++ {
		j.jog.Poll()
	}
	if j.x.CurrentPeriod() >= 1000 {
		t.Error("Held jog should keep accelerating, ramp was reset")
	}

	j.gpio.SetInput(pinXUp, false)
	j.gpio.SetInput(pinYDown, false)
	j.jog.Poll()
	if j.x.Running() || j.y.Running() {
		t.Error("Released buttons should stop the axes")
	}
}

func TestJogBothButtonsStop(t *testing.T) {
	j := newJogRig(t)

	j.gpio.SetInput(pinXUp, true)
	j.jog.Poll()
	j.gpio.SetInput(pinXDown, true)
	j.jog.Poll()
	if j.x.Running() {
		t.Error("Up and down together should stop the axis")
	}
}

func TestJogToggleRemapsToZ(t *testing.T) {
	j := newJogRig(t)

	j.gpio.SetInput(pinXUp, true)
	j.jog.Poll()
	if !j.x.Running() {
		t.Fatal("X should be running")
	}

	// Rising edge: switch mode and stop everything
	j.gpio.SetInput(pinXUp, false)
	j.gpio.SetInput(pinToggle, true)
	j.jog.Poll()
	if j.jog.Mode() != JogXZ {
		t.Fatalf("Mode = %v, want XZ", j.jog.Mode())
	}
	if j.x.Running() {
		t.Error("Toggle should stop all axes")
	}

	// Held toggle is not another edge
	j.jog.Poll()
	if j.jog.Mode() != JogXZ {
		t.Error("Held toggle switched the mode again")
	}

	// Y buttons now step Z once per poll
	j.gpio.SetInput(pinYUp, true)
	for i := 0; i < 5; i++ {
		j.jog.Poll()
	}
	if j.z.Position() != 5 || j.zm.Steps() != 5 {
		t.Errorf("Z position = %d, motor = %d, want 5", j.z.Position(), j.zm.Steps())
	}
	if j.y.Running() {
		t.Error("Y must not move in XZ mode")
	}

	// Release and press again: back to XY
	j.gpio.SetInput(pinYUp, false)
	j.gpio.SetInput(pinToggle, false)
	j.jog.Poll()
	j.gpio.SetInput(pinToggle, true)
	j.jog.Poll()
	if j.jog.Mode() != JogXY {
		t.Errorf("Mode = %v, want XY", j.jog.Mode())
	}
	if j.zm.Pattern() != 0 {
		t.Error("Mode switch should de-energize the coils")
	}
}

func TestJogSpeedSelector(t *testing.T) {
	tests := []struct {
		name         string
		slow, medium bool
		want         SpeedClass
		xMin         uint32
	}{
		{"none", false, false, Fast, 175},
		{"medium", false, true, Medium, 300},
		{"slow", true, false, Slow, 700},
		{"slow wins", true, true, Slow, 700},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := newJogRig(t)
			j.gpio.SetInput(pinSlow, tt.slow)
			j.gpio.SetInput(pinMedium, tt.medium)

			start := j.sched.Now()
			j.jog.Poll()
			if j.jog.SpeedClass() != tt.want {
				t.Errorf("Class = %v, want %v", j.jog.SpeedClass(), tt.want)
			}
			if j.x.MinPeriod() != tt.xMin {
				t.Errorf("X min period = %d, want %d", j.x.MinPeriod(), tt.xMin)
			}
			if j.z.SpeedClass() != tt.want {
				t.Errorf("Z class = %v, want %v", j.z.SpeedClass(), tt.want)
			}
			// Poll ends with the class delay
			if got := j.sched.Now() - start; got != uint64(j.z.StepDelay()/1000) {
				t.Errorf("Poll slept %dus, want %v", got, j.z.StepDelay())
			}
		})
	}
}

func TestJogGateTripStopsEverything(t *testing.T) {
	j := newJogRig(t)

	j.gpio.SetInput(pinXUp, true)
	j.gpio.SetInput(pinYUp, true)
	j.jog.Poll()
	if !j.x.Running() {
		t.Fatal("X should be running")
	}

	j.gpio.SetInput(pinEmergency, false)
	j.jog.Poll()
	if j.x.Running() || j.y.Running() || j.x.Enabled() || j.y.Enabled() {
		t.Error("Tripped gate must stop and disable every axis")
	}

	// Buttons held while tripped command nothing
	j.jog.Poll()
	if j.x.Running() {
		t.Error("Axis started while tripped")
	}
}

func TestJogSetModeProgrammatic(t *testing.T) {
	j := newJogRig(t)
	j.jog.SetMode(JogXZ)
	if j.jog.Mode() != JogXZ {
		t.Error("SetMode did not switch")
	}
	if JogXZ.String() != "XZ" || JogXY.String() != "XY" {
		t.Error("Unexpected mode names")
	}
}
