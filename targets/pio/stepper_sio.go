//go:build rp2040

package pio

import (
	"device/arm"
	"device/rp"
	"machine"

	"pipetter/core"
)

// SIOStepperBackend writes the step and direction lines through the
// single-cycle IO block
type SIOStepperBackend struct {
	stepMask   uint32
	dirMask    uint32
	invertStep bool
	invertDir  bool
}

func NewSIOStepperBackend() *SIOStepperBackend {
	return &SIOStepperBackend{}
}

func (b *SIOStepperBackend) Init(stepPin, dirPin core.GPIOPin, invertStep, invertDir bool) error {
	b.stepMask = 1 << uint32(stepPin)
	b.dirMask = 1 << uint32(dirPin)
	b.invertStep = invertStep
	b.invertDir = invertDir

	machine.Pin(stepPin).Configure(machine.PinConfig{Mode: machine.PinOutput})
	machine.Pin(dirPin).Configure(machine.PinConfig{Mode: machine.PinOutput})
	b.Stop()
	b.SetDirection(false)
	return nil
}

// SetStep drives the step line. Called from ticker context.
func (b *SIOStepperBackend) SetStep(level bool) {
	write(b.stepMask, level != b.invertStep)
}

// SetDirection sets the direction output and holds for the driver's
// dir-to-step setup time (20 ns on TMC parts, 3 NOPs at 125 MHz)
func (b *SIOStepperBackend) SetDirection(reverse bool) {
	write(b.dirMask, reverse != b.invertDir)
	arm.Asm("nop\nnop\nnop")
}

func (b *SIOStepperBackend) Stop() {
	write(b.stepMask, b.invertStep)
}

func (b *SIOStepperBackend) GetName() string {
	return "SIO"
}

func write(mask uint32, high bool) {
	if high {
		rp.SIO.GPIO_OUT_SET.Set(mask)
	} else {
		rp.SIO.GPIO_OUT_CLR.Set(mask)
	}
}
