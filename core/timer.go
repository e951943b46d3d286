package core

import (
	"sync/atomic"
	"time"
)

// System time is kept in microseconds, matching the RP2040 1MHz timer.
const TimerFreq = 1000000

var systemTicks atomic.Uint32

// GetTime returns the current system time in timer ticks
func GetTime() uint32 {
	return systemTicks.Load()
}

// SetTime sets the current system time (hardware clock or simulation)
func SetTime(ticks uint32) {
	systemTicks.Store(ticks)
}

// UsToDuration converts microseconds to a duration
func UsToDuration(us uint32) time.Duration {
	return time.Duration(us) * time.Microsecond
}

// DurationToUs converts a duration to whole microseconds
func DurationToUs(d time.Duration) uint32 {
	if d <= 0 {
		return 0
	}
	return uint32(d / time.Microsecond)
}

// MsToDuration converts milliseconds to a duration
func MsToDuration(ms uint32) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
