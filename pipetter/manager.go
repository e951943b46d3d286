package pipetter

import (
	"context"
	"errors"

	"pipetter/core"
	"pipetter/pipetter/config"
	"pipetter/pipetter/gcode"
)

var _ gcode.Machine = (*Machine)(nil)

// maxLineLength bounds the input buffer; longer lines are dropped
const maxLineLength = 256

// Manager runs the G-code console on top of a Machine
type Manager struct {
	machine     *Machine
	parser      *gcode.Parser
	interpreter *gcode.Interpreter

	// Serial interface
	inputBuffer  []byte
	outputBuffer []byte
	overflow     bool

	// Status
	initialized bool
	running     bool
}

// NewManager creates a manager from a JSON machine configuration
func NewManager(configData []byte, hw Hardware) (*Manager, error) {
	cfg, err := config.LoadConfig(configData)
	if err != nil {
		return nil, err
	}
	return NewManagerWithConfig(cfg, hw)
}

// NewManagerWithConfig creates a manager with an existing config
func NewManagerWithConfig(cfg *config.MachineConfig, hw Hardware) (*Manager, error) {
	machine, err := NewMachine(cfg, hw)
	if err != nil {
		return nil, err
	}
	return &Manager{
		machine:      machine,
		parser:       gcode.NewParser(),
		interpreter:  gcode.NewInterpreter(machine),
		inputBuffer:  make([]byte, 0, maxLineLength),
		outputBuffer: make([]byte, 0, maxLineLength),
	}, nil
}

// Machine returns the managed machine
func (m *Manager) Machine() *Machine {
	return m.machine
}

// Initialize configures the motors
func (m *Manager) Initialize() error {
	if m.initialized {
		return ErrAlreadyInitialized
	}
	if err := m.machine.InitMotors(); err != nil {
		return err
	}
	m.initialized = true
	return nil
}

// ProcessLine parses and executes one line, queueing its reply
func (m *Manager) ProcessLine(ctx context.Context, line string) error {
	if !m.initialized {
		return ErrNotInitialized
	}

	cmd, err := m.parser.ParseLine(line)
	if err != nil {
		return err
	}
	reply, err := m.interpreter.Execute(ctx, cmd)
	if err != nil {
		return err
	}
	if reply != "" {
		m.SendResponse(reply + "\n")
	}
	return nil
}

// ProcessByte processes a single byte of input (for serial streaming).
// Every complete non-empty line is answered with "ok" or "!! <error>".
func (m *Manager) ProcessByte(ctx context.Context, b byte) {
	if b != '\n' && b != '\r' {
		if len(m.inputBuffer) >= maxLineLength {
			m.overflow = true
			return
		}
		m.inputBuffer = append(m.inputBuffer, b)
		return
	}

	line := string(m.inputBuffer)
	m.inputBuffer = m.inputBuffer[:0]
	if m.overflow {
		m.overflow = false
		m.SendResponse("!! line too long\n")
		return
	}
	for len(line) > 0 && line[len(line)-1] == ' ' {
		line = line[:len(line)-1]
	}
	if len(line) == 0 {
		return
	}

	if err := m.ProcessLine(ctx, line); err != nil {
		core.DebugPrintln("[CONSOLE] " + line + ": " + err.Error())
		m.SendResponse("!! " + err.Error() + "\n")
		return
	}
	m.SendResponse("ok\n")
}

// SendResponse queues a response to be sent to the host
func (m *Manager) SendResponse(response string) {
	m.outputBuffer = append(m.outputBuffer, response...)
}

// GetOutput returns any pending output and clears the buffer
func (m *Manager) GetOutput() []byte {
	if len(m.outputBuffer) == 0 {
		return nil
	}

	output := make([]byte, len(m.outputBuffer))
	copy(output, m.outputBuffer)
	m.outputBuffer = m.outputBuffer[:0]
	return output
}

// Start begins console operation
func (m *Manager) Start() error {
	if !m.initialized {
		return errors.New("manager not initialized")
	}

	m.running = true
	m.SendResponse("pipetter ready\n")
	return nil
}

// Poll runs one jog iteration while the console is idle
func (m *Manager) Poll() error {
	if !m.running {
		return nil
	}
	return m.machine.ManualControl()
}

// Stop halts all operation
func (m *Manager) Stop() {
	m.running = false
	m.machine.StopAll()
}

// IsRunning returns whether the manager is running
func (m *Manager) IsRunning() bool {
	return m.running
}

// EmergencyStop may be called from another goroutine while a line is
// executing; the blocking call returns Aborted.
func (m *Manager) EmergencyStop() {
	m.machine.EmergencyStop()
}
