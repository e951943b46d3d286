package core

// GPIOStepperBackend drives step and direction lines through a GPIODriver.
// Step timing is owned by the caller's ticker; the backend only sets levels.
type GPIOStepperBackend struct {
	gpio       GPIODriver
	stepPin    GPIOPin
	dirPin     GPIOPin
	invertStep bool
	invertDir  bool
	reverse    bool
}

// NewGPIOStepperBackend creates a new GPIO-based stepper backend
func NewGPIOStepperBackend(gpio GPIODriver) *GPIOStepperBackend {
	return &GPIOStepperBackend{gpio: gpio}
}

// Init configures the step and direction pins as outputs
func (s *GPIOStepperBackend) Init(stepPin, dirPin GPIOPin, invertStep, invertDir bool) error {
	s.stepPin = stepPin
	s.dirPin = dirPin
	s.invertStep = invertStep
	s.invertDir = invertDir

	if err := s.gpio.ConfigureOutput(stepPin); err != nil {
		return err
	}
	if err := s.gpio.ConfigureOutput(dirPin); err != nil {
		return err
	}

	// Step idle, direction forward
	s.Stop()
	s.SetDirection(false)

	DebugPrintln("[GPIO] Stepper initialized: step=" + itoa(int(stepPin)) + " dir=" + itoa(int(dirPin)))
	return nil
}

// SetStep sets the step line level
func (s *GPIOStepperBackend) SetStep(level bool) {
	_ = s.gpio.SetPin(s.stepPin, level != s.invertStep)
}

// SetDirection sets the direction output
func (s *GPIOStepperBackend) SetDirection(reverse bool) {
	s.reverse = reverse
	_ = s.gpio.SetPin(s.dirPin, reverse != s.invertDir)
}

// Stop leaves the step pin in its idle state
func (s *GPIOStepperBackend) Stop() {
	_ = s.gpio.SetPin(s.stepPin, s.invertStep)
}

// GetName returns the backend name
func (s *GPIOStepperBackend) GetName() string {
	return "GPIO"
}
