// Endstop handling for GPIO-based limit switches
package core

// Endstop flags
const (
	ESF_PIN_HIGH = 1 << 0 // Expected pin state when triggered (1=high, 0=low)
)

// Endstop represents a configured limit switch input
type Endstop struct {
	Pin         GPIOPin // GPIO pin for endstop input
	Flags       uint8   // State flags (ESF_*)
	SampleCount uint8   // Number of consecutive samples required

	gpio GPIODriver
}

// NewEndstop configures pin as an endstop input. triggerHigh selects the
// pin level that means "switch pressed".
func NewEndstop(gpio GPIODriver, pin GPIOPin, pull Pull, triggerHigh bool, sampleCount uint8) (*Endstop, error) {
	if err := gpio.ConfigureInput(pin, pull); err != nil {
		return nil, err
	}

	es := &Endstop{
		Pin:         pin,
		SampleCount: sampleCount,
		gpio:        gpio,
	}
	if es.SampleCount == 0 {
		es.SampleCount = 1
	}

	// Set expected pin value flag
	if triggerHigh {
		es.Flags |= ESF_PIN_HIGH
	}
	return es, nil
}

// Triggered samples the pin SampleCount times and reports true only if
// every sample matches the trigger level. A nil endstop never triggers.
// Called from ticker context, must not block
func (es *Endstop) Triggered() bool {
	if es == nil {
		return false
	}

	expectHigh := (es.Flags & ESF_PIN_HIGH) != 0
	for count := es.SampleCount; count > 0; count-- {
		pinHigh := es.gpio.ReadPin(es.Pin)
		if pinHigh != expectHigh {
			// No longer matching
			return false
		}
	}
	return true
}
