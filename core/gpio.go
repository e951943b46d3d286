// GPIO (General Purpose Input/Output) support
// Digital outputs with a safe default state, and plain digital inputs
package core

import "sync/atomic"

// DigitalOut flags, fixed at configuration
const (
	DF_DEFAULT_ON = 1 << 3 // Default state for shutdown/power-loss
	DF_INVERT     = 1 << 4 // Pin is active-low
)

// DigitalOut represents a configured GPIO output pin. On/off are logical
// states; DF_INVERT maps "on" to a low level (driver enable lines).
type DigitalOut struct {
	Pin   GPIOPin // Hardware pin
	Flags uint8   // Configuration flags (DF_*)

	on   atomic.Bool // Current logical state, written from loop and ticker
	gpio GPIODriver
}

// NewDigitalOut configures pin as an output and drives it to defaultOn.
func NewDigitalOut(gpio GPIODriver, pin GPIOPin, invert, defaultOn bool) (*DigitalOut, error) {
	dout := &DigitalOut{Pin: pin, gpio: gpio}
	if invert {
		dout.Flags |= DF_INVERT
	}
	if defaultOn {
		dout.Flags |= DF_DEFAULT_ON
	}

	if err := gpio.ConfigureOutput(pin); err != nil {
		return nil, err
	}
	if err := dout.Set(defaultOn); err != nil {
		return nil, err
	}
	return dout, nil
}

// Set drives the output to the logical state on
// Called from ticker context, must not block
func (d *DigitalOut) Set(on bool) error {
	level := on != (d.Flags&DF_INVERT != 0)
	if err := d.gpio.SetPin(d.Pin, level); err != nil {
		return err
	}

	d.on.Store(on)
	return nil
}

// IsOn returns the last commanded logical state
func (d *DigitalOut) IsOn() bool {
	return d.on.Load()
}

// Shutdown returns the pin to its default state
func (d *DigitalOut) Shutdown() {
	_ = d.Set(d.Flags&DF_DEFAULT_ON != 0)
}

// DigitalIn is a configured input whose Active level is high unless
// ActiveLow is set.
type DigitalIn struct {
	Pin       GPIOPin
	ActiveLow bool

	gpio GPIODriver
}

// NewDigitalIn configures pin as an input with the given bias
func NewDigitalIn(gpio GPIODriver, pin GPIOPin, pull Pull, activeLow bool) (*DigitalIn, error) {
	if err := gpio.ConfigureInput(pin, pull); err != nil {
		return nil, err
	}
	return &DigitalIn{Pin: pin, ActiveLow: activeLow, gpio: gpio}, nil
}

// Active reports whether the input reads its active level. A nil input is
// never active, so optional buttons can be left unconfigured.
func (d *DigitalIn) Active() bool {
	if d == nil {
		return false
	}
	return d.gpio.ReadPin(d.Pin) != d.ActiveLow
}
