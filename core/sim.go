package core

import (
	"errors"
	"sync"
	"sync/atomic"
)

var errNotOutput = errors.New("pin not configured as output")

// SimGPIO is an in-memory GPIODriver for simulation and tests. Inputs can
// be static levels or functions of simulated machine state; writes can be
// observed through hooks.
type SimGPIO struct {
	mu       sync.Mutex
	outputs  map[GPIOPin]bool
	inputs   map[GPIOPin]Pull
	levels   map[GPIOPin]bool
	inputFns map[GPIOPin]func() bool
	hooks    map[GPIOPin][]func(bool)
	writes   map[GPIOPin]int
}

// NewSimGPIO creates an empty simulated GPIO bank
func NewSimGPIO() *SimGPIO {
	return &SimGPIO{
		outputs:  make(map[GPIOPin]bool),
		inputs:   make(map[GPIOPin]Pull),
		levels:   make(map[GPIOPin]bool),
		inputFns: make(map[GPIOPin]func() bool),
		hooks:    make(map[GPIOPin][]func(bool)),
		writes:   make(map[GPIOPin]int),
	}
}

func (g *SimGPIO) ConfigureOutput(pin GPIOPin) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.outputs[pin] = true
	return nil
}

func (g *SimGPIO) ConfigureInput(pin GPIOPin, pull Pull) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.inputs[pin] = pull
	if _, set := g.levels[pin]; !set {
		// Floating input settles to its bias
		g.levels[pin] = pull == PullUp
	}
	return nil
}

func (g *SimGPIO) SetPin(pin GPIOPin, value bool) error {
	g.mu.Lock()
	if !g.outputs[pin] {
		g.mu.Unlock()
		return errNotOutput
	}
	g.levels[pin] = value
	g.writes[pin]++
	hooks := g.hooks[pin]
	g.mu.Unlock()

	for _, fn := range hooks {
		fn(value)
	}
	return nil
}

func (g *SimGPIO) ReadPin(pin GPIOPin) bool {
	g.mu.Lock()
	fn := g.inputFns[pin]
	level := g.levels[pin]
	g.mu.Unlock()

	if fn != nil {
		return fn()
	}
	return level
}

// SetInput drives an input pin to a fixed level
func (g *SimGPIO) SetInput(pin GPIOPin, level bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.inputFns, pin)
	g.levels[pin] = level
}

// SetInputFunc makes an input pin read fn() on every sample
func (g *SimGPIO) SetInputFunc(pin GPIOPin, fn func() bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.inputFns[pin] = fn
}

// OnWrite registers a hook called after every write to pin
func (g *SimGPIO) OnWrite(pin GPIOPin, fn func(level bool)) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.hooks[pin] = append(g.hooks[pin], fn)
}

// Level returns the last level written to (or set on) pin
func (g *SimGPIO) Level(pin GPIOPin) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.levels[pin]
}

// Writes returns how many times pin has been written
func (g *SimGPIO) Writes(pin GPIOPin) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.writes[pin]
}

// IsOutput reports whether pin was configured as an output
func (g *SimGPIO) IsOutput(pin GPIOPin) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.outputs[pin]
}

// SimMotor follows a step/dir driver's pins and counts physical steps.
// The count is independent of the firmware's own position so limit
// switches stay put when the firmware re-zeroes.
type SimMotor struct {
	gpio     *SimGPIO
	steps    atomic.Int32
	reverse  atomic.Bool
	lastStep bool
}

// NewSimMotor attaches a motor to the step and direction outputs.
// Direction high means reverse.
func NewSimMotor(gpio *SimGPIO, stepPin, dirPin GPIOPin) *SimMotor {
	m := &SimMotor{gpio: gpio}
	gpio.OnWrite(dirPin, func(level bool) {
		m.reverse.Store(level)
	})
	gpio.OnWrite(stepPin, func(level bool) {
		if level && !m.lastStep {
			if m.reverse.Load() {
				m.steps.Add(-1)
			} else {
				m.steps.Add(1)
			}
		}
		m.lastStep = level
	})
	return m
}

// Steps returns the physical step count
func (m *SimMotor) Steps() int32 {
	return m.steps.Load()
}

// SetSteps places the carriage at a physical step count
func (m *SimMotor) SetSteps(n int32) {
	m.steps.Store(n)
}

// Limits wires active-high limit switches that close at or beyond min and
// max physical steps.
func (m *SimMotor) Limits(minPin, maxPin GPIOPin, min, max int32) {
	m.gpio.SetInputFunc(minPin, func() bool { return m.steps.Load() <= min })
	m.gpio.SetInputFunc(maxPin, func() bool { return m.steps.Load() >= max })
}

// SimCoilMotor follows four coil outputs driven with a single-coil
// sequence and counts phase transitions.
type SimCoilMotor struct {
	gpio    *SimGPIO
	pins    [4]GPIOPin
	pattern atomic.Uint32
	phase   int
	steps   atomic.Int32
}

// NewSimCoilMotor attaches a coil motor to coil outputs A..D
func NewSimCoilMotor(gpio *SimGPIO, pins [4]GPIOPin) *SimCoilMotor {
	// Rotor starts aligned with coil A
	m := &SimCoilMotor{gpio: gpio, pins: pins}
	for i, pin := range pins {
		bit := uint32(1) << uint(i)
		gpio.OnWrite(pin, func(level bool) {
			p := m.pattern.Load()
			if level {
				p |= bit
			} else {
				p &^= bit
			}
			m.pattern.Store(p)
			m.observe(p)
		})
	}
	return m
}

// observe counts a step when exactly one coil is energized and it is a
// neighbor of the rotor's last phase.
func (m *SimCoilMotor) observe(p uint32) {
	phase := -1
	for i := 0; i < 4; i++ {
		if p == 1<<uint(i) {
			phase = i
		}
	}
	if phase < 0 {
		return
	}
	switch (phase - m.phase + 4) % 4 {
	case 1:
		m.steps.Add(1)
	case 3:
		m.steps.Add(-1)
	}
	m.phase = phase
}

// Steps returns the physical step count
func (m *SimCoilMotor) Steps() int32 {
	return m.steps.Load()
}

// SetSteps places the carriage at a physical step count
func (m *SimCoilMotor) SetSteps(n int32) {
	m.steps.Store(n)
}

// Pattern returns the energized coils, bit i for coil i
func (m *SimCoilMotor) Pattern() uint32 {
	return m.pattern.Load()
}

// Limits wires active-high limit switches as for SimMotor
func (m *SimCoilMotor) Limits(minPin, maxPin GPIOPin, min, max int32) {
	m.gpio.SetInputFunc(minPin, func() bool { return m.steps.Load() <= min })
	m.gpio.SetInputFunc(maxPin, func() bool { return m.steps.Load() >= max })
}
