//go:build rp2040

package pio

import (
	"errors"
	"machine"

	"pipetter/core"

	rp2pio "github.com/tinygo-org/pio/rp2-pio"
)

// Command word consumed by the program:
//
//	Bits 0-15:  pulse count minus one
//	Bits 16-23: delay cycles between pulses
//	Bit 24:     direction level
//
// The state machine runs at 1 MHz, so a pulse is 8 us high.
func buildStepperProgram() []uint16 {
	asm := rp2pio.AssemblerV0{SidesetBits: 0}
	return []uint16{
		// .wrap_target
		asm.Pull(false, true).Encode(),          // 0: pull block
		asm.Out(rp2pio.OutDestX, 16).Encode(),   // 1: out x, 16 (pulses - 1)
		asm.Out(rp2pio.OutDestY, 8).Encode(),    // 2: out y, 8 (delay cycles)
		asm.Out(rp2pio.OutDestPins, 1).Encode(), // 3: out pins, 1 (direction)
		// step_loop:
		asm.Set(rp2pio.SetDestPins, 1).Delay(7).Encode(), // 4: set pins, 1 [7]
		asm.Set(rp2pio.SetDestPins, 0).Encode(),          // 5: set pins, 0
		// delay_loop:
		asm.Jmp(6, rp2pio.JmpYNZeroDec).Encode(), // 6: jmp y--, 6
		asm.Jmp(4, rp2pio.JmpXNZeroDec).Encode(), // 7: jmp x--, 4
		// .wrap
	}
}

// Jump targets above are absolute, so the program lives at offset 0 and
// is loaded once per PIO block.
const stepperPIOOrigin = 0

var programLoaded [2]bool

var errInvertedStep = errors.New("PIO step output cannot be inverted")

// PIOStepperBackend turns every rising edge of the logical step line into
// one hardware-timed pulse.
type PIOStepperBackend struct {
	pio       *rp2pio.PIO
	sm        rp2pio.StateMachine
	stepPin   machine.Pin
	dirPin    machine.Pin
	invertDir bool
	reverse   bool
	level     bool
	pioNum    uint8
	smNum     uint8
}

// NewPIOStepperBackend creates a backend on PIO pioNum, state machine smNum
func NewPIOStepperBackend(pioNum, smNum uint8) *PIOStepperBackend {
	pioHW := rp2pio.PIO0
	if pioNum == 1 {
		pioHW = rp2pio.PIO1
	}
	return &PIOStepperBackend{
		pio:    pioHW,
		sm:     pioHW.StateMachine(smNum),
		pioNum: pioNum,
		smNum:  smNum,
	}
}

// Init loads the program if needed and starts the state machine
func (b *PIOStepperBackend) Init(stepPin, dirPin core.GPIOPin, invertStep, invertDir bool) error {
	if invertStep {
		return errInvertedStep
	}
	b.stepPin = machine.Pin(stepPin)
	b.dirPin = machine.Pin(dirPin)
	b.invertDir = invertDir

	b.sm.TryClaim()

	program := buildStepperProgram()
	if !programLoaded[b.pioNum] {
		if _, err := b.pio.AddProgram(program, stepperPIOOrigin); err != nil {
			return err
		}
		programLoaded[b.pioNum] = true
	}
	offset := uint8(stepperPIOOrigin)

	b.stepPin.Configure(machine.PinConfig{Mode: b.pio.PinMode()})
	b.dirPin.Configure(machine.PinConfig{Mode: b.pio.PinMode()})

	cfg := rp2pio.DefaultStateMachineConfig()
	cfg.SetSetPins(b.stepPin, 1)
	cfg.SetOutPins(b.dirPin, 1)
	// Shift right, explicit pull
	cfg.SetOutShift(true, false, 32)
	cfg.SetWrap(offset+uint8(len(program))-1, offset)
	// 125 MHz / 125 = 1 MHz
	cfg.SetClkDivIntFrac(125, 0)

	b.sm.Init(offset, cfg)

	// Pin directions must be set after Init
	b.sm.SetPindirsConsecutive(b.stepPin, 1, true)
	b.sm.SetPindirsConsecutive(b.dirPin, 1, true)
	b.sm.SetPinsConsecutive(b.stepPin, 1, false)
	b.sm.SetPinsConsecutive(b.dirPin, 1, b.invertDir)

	b.sm.SetEnabled(true)
	core.DebugPrintln("[PIO] stepper on PIO" + core.Itoa(int(b.pioNum)) + " SM" + core.Itoa(int(b.smNum)))
	return nil
}

// SetStep queues one pulse on each rising edge. Called from ticker context.
func (b *PIOStepperBackend) SetStep(level bool) {
	rising := level && !b.level
	b.level = level
	if !rising {
		return
	}
	// A full FIFO means four pulses are pending; dropping one is better
	// than blocking the ticker
	if b.sm.IsTxFIFOFull() {
		return
	}
	b.sm.TxPut(b.command(1, 0))
}

func (b *PIOStepperBackend) command(pulses uint16, delayCycles uint8) uint32 {
	cmd := uint32(pulses-1) | uint32(delayCycles)<<16
	if b.reverse != b.invertDir {
		cmd |= 1 << 24
	}
	return cmd
}

// SetDirection takes effect with the next queued pulse
func (b *PIOStepperBackend) SetDirection(reverse bool) {
	b.reverse = reverse
}

// Stop discards queued pulses
func (b *PIOStepperBackend) Stop() {
	b.level = false
	b.sm.SetEnabled(false)
	b.sm.ClearFIFOs()
	b.sm.Restart()
	b.sm.SetEnabled(true)
}

func (b *PIOStepperBackend) GetName() string {
	return "PIO"
}
