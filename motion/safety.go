package motion

import (
	"sync/atomic"

	"pipetter/core"
)

// SafetyGate is the emergency interlock. Motion is permitted while the
// emergency input reads its ok level and no software abort is pending
// for the caller's epoch.
type SafetyGate struct {
	input   *core.DigitalIn // active = tripped; nil = no emergency input
	epoch   atomic.Uint32
	tripped atomic.Bool
}

// NewSafetyGate wraps the emergency input. The input must be configured
// active when the emergency condition is present.
func NewSafetyGate(input *core.DigitalIn) *SafetyGate {
	return &SafetyGate{input: input}
}

// Permitted samples the emergency input. Trip transitions are recorded.
func (g *SafetyGate) Permitted() bool {
	if g == nil {
		return true
	}
	tripped := g.input.Active()
	if g.tripped.Swap(tripped) != tripped {
		if tripped {
			core.RecordTiming(core.EvtSafetyTrip, 0, 1, 0)
			core.DebugAsync("[SAFETY] emergency input tripped")
		} else {
			core.DebugAsync("[SAFETY] emergency input released")
		}
	}
	return !tripped
}

// Epoch returns the abort counter. Blocking calls capture it at start.
func (g *SafetyGate) Epoch() uint32 {
	if g == nil {
		return 0
	}
	return g.epoch.Load()
}

// Abort ends every blocking call that captured an earlier epoch
func (g *SafetyGate) Abort() {
	g.epoch.Add(1)
}

// Aborted reports whether an abort happened since epoch was captured
func (g *SafetyGate) Aborted(epoch uint32) bool {
	if g == nil {
		return false
	}
	return g.epoch.Load() != epoch
}
