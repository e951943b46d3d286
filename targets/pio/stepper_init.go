//go:build rp2040

// Package pio provides RP2040 step/dir backends: PIO state machines
// first, direct SIO register writes once they run out.
package pio

import (
	"pipetter/core"
)

var (
	// RP2040 has 2 PIO blocks (PIO0, PIO1) with 4 state machines each
	pioAllocations = [2][4]bool{} // [pioNum][smNum]
	nextPIONum     = uint8(0)
	nextSMNum      = uint8(0)
)

// Register installs the backend factory. Call before the machine
// initializes its motors.
func Register() {
	core.SetStepperBackendFactory(createBackend)
}

// createBackend hands out a PIO backend while state machines remain
func createBackend() core.StepperBackend {
	pioNum, smNum, ok := allocatePIO()
	if !ok {
		core.DebugPrintln("[PIO] state machines exhausted, using SIO")
		return NewSIOStepperBackend()
	}
	return NewPIOStepperBackend(pioNum, smNum)
}

// allocatePIO allocates a PIO state machine
// Returns (pioNum, smNum, ok)
func allocatePIO() (uint8, uint8, bool) {
	// Round-robin allocation across PIO blocks and state machines
	for i := 0; i < 8; i++ {
		pioNum := nextPIONum
		smNum := nextSMNum

		nextSMNum++
		if nextSMNum >= 4 {
			nextSMNum = 0
			nextPIONum = (nextPIONum + 1) % 2
		}

		if !pioAllocations[pioNum][smNum] {
			pioAllocations[pioNum][smNum] = true
			return pioNum, smNum, true
		}
	}
	return 0, 0, false
}
