package core

// StepperBackend defines the hardware abstraction for a step/direction driver.
// Implementations can use GPIO, PIO, or other methods.
type StepperBackend interface {
	// Init initializes the stepper hardware
	// stepPin: GPIO pin for step pulses
	// dirPin: GPIO pin for direction signal
	// invertStep: invert step pin polarity
	// invertDir: invert direction pin polarity
	Init(stepPin, dirPin GPIOPin, invertStep, invertDir bool) error

	// SetStep drives the logical step line. The driver advances one
	// microstep on every rising edge, so callers toggle it once per tick.
	// Called from ticker context, must be fast
	SetStep(level bool)

	// SetDirection sets the direction output
	// reverse: true = backward, false = forward
	SetDirection(reverse bool)

	// Stop returns the step line to idle
	Stop()

	// GetName returns backend implementation name
	GetName() string
}

// Backend factory function (set by platform-specific code)
var stepperBackendFactory func() StepperBackend

// SetStepperBackendFactory sets the factory function for creating stepper backends
// This should be called by platform-specific initialization code
func SetStepperBackendFactory(factory func() StepperBackend) {
	stepperBackendFactory = factory
}

// NewStepperBackend returns a backend from the registered factory, falling
// back to plain GPIO toggling through gpio.
func NewStepperBackend(gpio GPIODriver) StepperBackend {
	if stepperBackendFactory != nil {
		if b := stepperBackendFactory(); b != nil {
			return b
		}
	}
	return NewGPIOStepperBackend(gpio)
}
