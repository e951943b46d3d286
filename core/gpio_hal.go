package core

import "errors"

// GPIOPin identifies a hardware GPIO pin number
type GPIOPin uint32

// Pull selects the input bias resistor for a pin
type Pull uint8

const (
	PullNone Pull = iota
	PullUp
	PullDown
)

// GPIODriver is the abstract GPIO interface that core code uses.
// Platform-specific implementations handle actual hardware control.
type GPIODriver interface {
	// ConfigureOutput configures a pin as a digital output
	// Returns error if pin is invalid or already in use
	ConfigureOutput(pin GPIOPin) error

	// ConfigureInput configures a pin as a digital input with the given bias
	ConfigureInput(pin GPIOPin, pull Pull) error

	// SetPin sets the pin to high (true) or low (false)
	// Called from ticker context, must not block
	SetPin(pin GPIOPin, value bool) error

	// ReadPin reads the current pin state
	// Called from ticker context, must not block
	ReadPin(pin GPIOPin) bool
}

var errNoGPIO = errors.New("GPIO driver not configured")

// Global singleton registered by target-specific code.
var gpioDriver GPIODriver

// SetGPIODriver is called by target-specific code to register its driver.
func SetGPIODriver(d GPIODriver) {
	gpioDriver = d
}

// GetGPIODriver returns the registered driver, or nil.
func GetGPIODriver() GPIODriver {
	return gpioDriver
}

// MustGPIO returns the configured driver or panics if missing.
func MustGPIO() GPIODriver {
	if gpioDriver == nil {
		panic(errNoGPIO.Error())
	}
	return gpioDriver
}
