package core

import "sync/atomic"

// DebugWriter is a function type for writing debug messages
type DebugWriter func(string)

// TimingEvent captures a motion event for post-mortem analysis
type TimingEvent struct {
	EventType uint8  // Event type code
	Axis      uint8  // Axis id (0=X, 1=Y, 2=Z, InterpAxis for the interpolator)
	Clock     uint32 // System clock at event
	Value1    uint32 // Context-dependent value
	Value2    uint32 // Context-dependent value
}

// Event type codes
const (
	EvtMoveStart    = 1 // Axis started; v1=direction v2=period
	EvtRampAdjust   = 2 // Ticker re-armed; v1=old period v2=new period
	EvtEndstopStop  = 3 // Ticker self-stopped on an endstop; v1=position
	EvtAxisStop     = 4 // Axis stopped by the control loop; v1=position
	EvtLinearStart  = 5 // Interpolated move started; v1=dx v2=dy
	EvtLinearDone   = 6 // Interpolated move finished; v1=outcome
	EvtSafetyTrip   = 7 // Emergency input observed tripped
	EvtHomed        = 8 // Homing reached the endstop
	EvtHomingFailed = 9 // Homing bound exhausted
)

// InterpAxis tags events emitted by the linear interpolator
const InterpAxis = 0xff

const (
	TimingRingSize = 32 // Keep last 32 events for post-mortem
)

var (
	// debugPrintln is the global debug print function (can be set by platform code)
	debugPrintln DebugWriter = func(s string) {} // No-op by default

	// debugEnabled controls whether debug output is active
	debugEnabled atomic.Bool

	// Timing capture ring buffer (non-blocking, for post-mortem)
	timingRing     [TimingRingSize]TimingEvent
	timingRingHead atomic.Uint32 // Next write position
	timingEnabled  = true        // Always capture timing events

	// Async debug output channel
	debugChan chan string
)

// SetDebugWriter sets the platform-specific debug output function
// This allows platforms to redirect debug output to UART, USB, stderr, etc.
func SetDebugWriter(writer DebugWriter) {
	debugPrintln = writer
}

// SetDebugEnabled enables or disables debug output
func SetDebugEnabled(enabled bool) {
	debugEnabled.Store(enabled)
}

// IsDebugEnabled returns whether debug output is enabled
func IsDebugEnabled() bool {
	return debugEnabled.Load()
}

// InitAsyncDebug starts the async debug output goroutine
// Call this from main() after SetDebugWriter
func InitAsyncDebug() {
	debugChan = make(chan string, 16) // Buffer 16 messages
	go debugOutputWorker()
}

// debugOutputWorker runs in background, drains debug channel
func debugOutputWorker() {
	for msg := range debugChan {
		if debugPrintln != nil {
			debugPrintln(msg)
		}
	}
}

// DebugPrintln writes a debug message using the platform-specific writer
// Blocks if debug is enabled (use DebugAsync from ticker context)
func DebugPrintln(msg string) {
	if debugEnabled.Load() && debugPrintln != nil {
		debugPrintln(msg)
	}
}

// DebugAsync queues a debug message for async output (non-blocking)
// Returns immediately even if channel is full (drops message)
func DebugAsync(msg string) {
	if debugChan != nil && debugEnabled.Load() {
		select {
		case debugChan <- msg:
		default:
			// Channel full, drop message (non-blocking)
		}
	}
}

// RecordTiming captures a motion event in the ring buffer.
// Safe to call from ticker context: no allocation, no blocking.
func RecordTiming(eventType, axis uint8, value1, value2 uint32) {
	if !timingEnabled {
		return
	}
	idx := (timingRingHead.Add(1) - 1) % TimingRingSize
	timingRing[idx] = TimingEvent{
		EventType: eventType,
		Axis:      axis,
		Clock:     GetTime(),
		Value1:    value1,
		Value2:    value2,
	}
}

// TimingEvents returns the recorded events, oldest first
func TimingEvents() []TimingEvent {
	head := timingRingHead.Load()
	events := make([]TimingEvent, 0, TimingRingSize)
	for i := uint32(0); i < TimingRingSize; i++ {
		evt := timingRing[(head+i)%TimingRingSize]
		if evt.EventType == 0 {
			continue // Empty slot
		}
		events = append(events, evt)
	}
	return events
}

// EventName returns a printable name for an event type
func EventName(eventType uint8) string {
	switch eventType {
	case EvtMoveStart:
		return "MOVE_START"
	case EvtRampAdjust:
		return "RAMP"
	case EvtEndstopStop:
		return "ENDSTOP_STOP"
	case EvtAxisStop:
		return "AXIS_STOP"
	case EvtLinearStart:
		return "LINEAR_START"
	case EvtLinearDone:
		return "LINEAR_DONE"
	case EvtSafetyTrip:
		return "SAFETY_TRIP!"
	case EvtHomed:
		return "HOMED"
	case EvtHomingFailed:
		return "HOMING_FAILED!"
	}
	return "UNKNOWN"
}

// DumpTimingRing outputs the timing ring buffer (call on shutdown/error)
// This should be called from the control loop, never from ticker context
func DumpTimingRing() {
	if debugPrintln == nil {
		return
	}

	debugPrintln("[TIMING] === Timing Ring Dump ===")
	for _, evt := range TimingEvents() {
		debugPrintln("[TIMING] " + EventName(evt.EventType) +
			" axis=" + itoa(int(evt.Axis)) +
			" clock=" + itoa(int(evt.Clock)) +
			" v1=" + itoa(int(int32(evt.Value1))) +
			" v2=" + itoa(int(evt.Value2)))
	}
	debugPrintln("[TIMING] === End Dump ===")
}

// ClearTimingRing clears the timing buffer
func ClearTimingRing() {
	for i := range timingRing {
		timingRing[i] = TimingEvent{}
	}
	timingRingHead.Store(0)
}
