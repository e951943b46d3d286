//go:build !tinygo

package core

// criticalState is a placeholder for interrupt state on regular Go
type criticalState uintptr

// enterCritical is a no-op on regular Go; the Scheduler is only driven
// from one goroutine there.
func enterCritical() criticalState {
	return 0
}

// exitCritical is a no-op on regular Go
func exitCritical(criticalState) {}
