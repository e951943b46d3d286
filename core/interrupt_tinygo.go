//go:build tinygo

package core

import "runtime/interrupt"

type criticalState = interrupt.State

// enterCritical masks interrupts so ticker callbacks cannot observe a
// half-updated timer list
func enterCritical() criticalState {
	return interrupt.Disable()
}

// exitCritical restores the interrupt state saved by enterCritical
func exitCritical(state criticalState) {
	interrupt.Restore(state)
}
