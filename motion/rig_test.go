package motion

import (
	"testing"
	"time"

	"pipetter/core"
)

const (
	pinEmergency core.GPIOPin = 28

	pinXStep, pinXDir, pinXEn core.GPIOPin = 2, 3, 4
	pinYStep, pinYDir, pinYEn core.GPIOPin = 5, 6, 7
	pinXMin, pinXMax          core.GPIOPin = 12, 13
	pinYMin, pinYMax          core.GPIOPin = 14, 15
	pinZMin, pinZMax          core.GPIOPin = 16, 17
)

var zCoils = [4]core.GPIOPin{8, 9, 10, 11}

// rig is a simulated machine: virtual clock, GPIO bank and interlock
type rig struct {
	sched *core.Scheduler
	gpio  *core.SimGPIO
	gate  *SafetyGate
	wait  *Waiter
}

func newRig(t *testing.T) *rig {
	t.Helper()

	sched := core.NewScheduler()
	gpio := core.NewSimGPIO()
	emerg, err := core.NewDigitalIn(gpio, pinEmergency, core.PullUp, true)
	if err != nil {
		t.Fatalf("emergency input: %v", err)
	}
	gate := NewSafetyGate(emerg)
	return &rig{
		sched: sched,
		gpio:  gpio,
		gate:  gate,
		wait:  &Waiter{Sleeper: sched, Gate: gate, Poll: time.Millisecond},
	}
}

type axisPins struct {
	step, dir, en, min, max core.GPIOPin
}

var (
	xPins = axisPins{pinXStep, pinXDir, pinXEn, pinXMin, pinXMax}
	yPins = axisPins{pinYStep, pinYDir, pinYEn, pinYMin, pinYMax}
)

// rampedAxis builds an axis and a motor whose limit switches close at the
// given physical step counts.
func (r *rig) rampedAxis(t *testing.T, id uint8, cfg RampConfig, p axisPins, min, max int32) (*RampedAxis, *core.SimMotor) {
	t.Helper()

	backend := core.NewGPIOStepperBackend(r.gpio)
	if err := backend.Init(p.step, p.dir, false, false); err != nil {
		t.Fatalf("backend init: %v", err)
	}
	en, err := core.NewDigitalOut(r.gpio, p.en, true, false)
	if err != nil {
		t.Fatalf("enable: %v", err)
	}
	endMin, _ := core.NewEndstop(r.gpio, p.min, core.PullDown, true, 1)
	endMax, _ := core.NewEndstop(r.gpio, p.max, core.PullDown, true, 1)

	motor := core.NewSimMotor(r.gpio, p.step, p.dir)
	motor.Limits(p.min, p.max, min, max)

	axis, err := NewRampedAxis(id, cfg, AxisHardware{
		Backend: backend,
		Enable:  en,
		EndMin:  endMin,
		EndMax:  endMax,
		Ticker:  r.sched.NewTicker(),
	})
	if err != nil {
		t.Fatalf("NewRampedAxis: %v", err)
	}
	return axis, motor
}

func (r *rig) coilAxis(t *testing.T, min, max int32) (*CoilAxis, *core.SimCoilMotor) {
	t.Helper()

	endMin, _ := core.NewEndstop(r.gpio, pinZMin, core.PullDown, true, 1)
	endMax, _ := core.NewEndstop(r.gpio, pinZMax, core.PullDown, true, 1)
	axis, err := NewCoilAxis(AxisZ, DefaultCoilTiming(), CoilHardware{
		GPIO:   r.gpio,
		Coils:  zCoils,
		EndMin: endMin,
		EndMax: endMax,
	})
	if err != nil {
		t.Fatalf("NewCoilAxis: %v", err)
	}
	motor := core.NewSimCoilMotor(r.gpio, zCoils)
	motor.Limits(pinZMin, pinZMax, min, max)
	return axis, motor
}

// tripAt trips the emergency input once the virtual clock passes at
func (r *rig) tripAt(at time.Duration) {
	us := uint64(at / time.Microsecond)
	r.gpio.SetInputFunc(pinEmergency, func() bool {
		// Active-low: low means tripped
		return r.sched.Now() < us
	})
}

func yRampConfig() RampConfig {
	cfg := DefaultRampConfig()
	cfg.InitialPeriodUS = 800
	cfg.MinPeriodUS = [3]uint32{200, 350, 700}
	return cfg
}

const farLimit = 1 << 30
