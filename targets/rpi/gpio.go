//go:build linux

package main

import (
	"errors"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"

	"pipetter/core"
)

var errBadPin = errors.New("no such GPIO")

// PeriphGPIO implements core.GPIODriver on the Raspberry Pi header
// through periph.io. Pin numbers are BCM numbers.
type PeriphGPIO struct {
	mu   sync.RWMutex
	pins map[core.GPIOPin]gpio.PinIO
}

func NewPeriphGPIO() *PeriphGPIO {
	return &PeriphGPIO{pins: make(map[core.GPIOPin]gpio.PinIO)}
}

func (d *PeriphGPIO) lookup(pin core.GPIOPin) (gpio.PinIO, error) {
	p := gpioreg.ByName("GPIO" + core.Itoa(int(pin)))
	if p == nil {
		return nil, errBadPin
	}
	return p, nil
}

func (d *PeriphGPIO) ConfigureOutput(pin core.GPIOPin) error {
	p, err := d.lookup(pin)
	if err != nil {
		return err
	}
	if err := p.Out(gpio.Low); err != nil {
		return err
	}
	d.mu.Lock()
	d.pins[pin] = p
	d.mu.Unlock()
	return nil
}

func (d *PeriphGPIO) ConfigureInput(pin core.GPIOPin, pull core.Pull) error {
	p, err := d.lookup(pin)
	if err != nil {
		return err
	}
	bias := gpio.Float
	switch pull {
	case core.PullUp:
		bias = gpio.PullUp
	case core.PullDown:
		bias = gpio.PullDown
	}
	if err := p.In(bias, gpio.NoEdge); err != nil {
		return err
	}
	d.mu.Lock()
	d.pins[pin] = p
	d.mu.Unlock()
	return nil
}

func (d *PeriphGPIO) SetPin(pin core.GPIOPin, value bool) error {
	d.mu.RLock()
	p, ok := d.pins[pin]
	d.mu.RUnlock()
	if !ok {
		return errBadPin
	}
	return p.Out(gpio.Level(value))
}

// ReadPin reads low for pins that were never configured
func (d *PeriphGPIO) ReadPin(pin core.GPIOPin) bool {
	d.mu.RLock()
	p, ok := d.pins[pin]
	d.mu.RUnlock()
	if !ok {
		return false
	}
	return p.Read() == gpio.High
}
