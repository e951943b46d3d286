package gcode

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"pipetter/motion"
)

var (
	ErrUnsupported = errors.New("unsupported command")
	ErrOutOfRange  = errors.New("target out of range")
)

// Machine is the motion surface the interpreter drives
type Machine interface {
	Homing(ctx context.Context) (motion.Outcome, error)
	HomeAxis(ctx context.Context, id uint8) (motion.Outcome, error)
	MoveTo(ctx context.Context, id uint8, target int32) (motion.Outcome, error)
	MoveLinear(ctx context.Context, tx, ty int32) (motion.Outcome, error)
	ActuateValve(ctx context.Context, volumeMl float32) (motion.Outcome, error)
	GetPositionSteps(id uint8) (int32, error)
	StepsPerCm(id uint8) float32
	ZeroPosition(id uint8) error
	DisableMotors() error
	SetSpeedClass(class motion.SpeedClass) error
	EmergencyStop()
	Endstops() []motion.EndstopState
	Permitted() bool
}

// MotionError reports a motion command that ended other than as commanded
type MotionError struct {
	Command string
	Outcome motion.Outcome
}

func (e *MotionError) Error() string {
	return e.Command + ": " + e.Outcome.String()
}

// Interpreter executes G-code commands
type Interpreter struct {
	machine      Machine
	absoluteMode bool
}

// NewInterpreter creates an interpreter in absolute mode
func NewInterpreter(machine Machine) *Interpreter {
	return &Interpreter{
		machine:      machine,
		absoluteMode: true,
	}
}

// AbsoluteMode reports G90 (true) or G91 (false)
func (interp *Interpreter) AbsoluteMode() bool {
	return interp.absoluteMode
}

// Execute runs cmd and returns the reply text, if any
func (interp *Interpreter) Execute(ctx context.Context, cmd *Command) (string, error) {
	if cmd == nil || (cmd.Type == 0 && len(cmd.Parameters) == 0) {
		return "", nil
	}

	switch cmd.Type {
	case 'G':
		return "", interp.executeG(ctx, cmd)
	case 'M':
		return interp.executeM(ctx, cmd)
	}
	return "", fmt.Errorf("%w: missing command word", ErrUnsupported)
}

// executeG handles G-codes
func (interp *Interpreter) executeG(ctx context.Context, cmd *Command) error {
	switch cmd.Number {
	case 0, 1: // G0/G1 - Move
		return interp.doMove(ctx, cmd)
	case 28: // G28 - Home
		return interp.doHome(ctx, cmd)
	case 90: // G90 - Absolute positioning
		interp.absoluteMode = true
	case 91: // G91 - Relative positioning
		interp.absoluteMode = false
	case 92: // G92 - Zero position
		return interp.doSetPosition(cmd)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupported, cmd.Name())
	}
	return nil
}

// executeM handles M-codes
func (interp *Interpreter) executeM(ctx context.Context, cmd *Command) (string, error) {
	switch cmd.Number {
	case 18, 84: // M18/M84 - Disable motors
		return "", interp.machine.DisableMotors()
	case 112: // M112 - Emergency stop
		interp.machine.EmergencyStop()
	case 114: // M114 - Report position
		return interp.reportPosition()
	case 119: // M119 - Report endstops and interlock
		return interp.reportEndstops(), nil
	case 220: // M220 S0|1|2 - Speed class
		if !cmd.HasParameter('S') {
			return "", fmt.Errorf("M220: %w: S", ErrMissingValue)
		}
		s := cmd.GetParameter('S', 0)
		if s < 0 || s > float64(motion.Slow) || s != math.Trunc(s) {
			return "", fmt.Errorf("M220: speed class %v out of range", s)
		}
		return "", interp.machine.SetSpeedClass(motion.SpeedClass(s))
	case 700: // M700 V<ml> - Dispense
		if !cmd.HasParameter('V') {
			return "", fmt.Errorf("M700: %w: V", ErrMissingValue)
		}
		out, err := interp.machine.ActuateValve(ctx, float32(cmd.GetParameter('V', 0)))
		return "", check(cmd, out, err)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupported, cmd.Name())
	}
	return "", nil
}

func check(cmd *Command, out motion.Outcome, err error) error {
	if err != nil {
		return err
	}
	if out != motion.Reached {
		return &MotionError{Command: cmd.Name(), Outcome: out}
	}
	return nil
}

var axisLetters = [3]byte{'X', 'Y', 'Z'}

// mmToSteps converts millimetres to position units
func (interp *Interpreter) mmToSteps(id uint8, mm float64) (int32, error) {
	steps := math.Round(mm / 10 * float64(interp.machine.StepsPerCm(id)))
	if math.IsNaN(steps) || steps < math.MinInt32 || steps > math.MaxInt32 {
		return 0, fmt.Errorf("%c%g: %w", axisLetters[id], mm, ErrOutOfRange)
	}
	return int32(steps), nil
}

func (interp *Interpreter) stepsToMm(id uint8, steps int32) float64 {
	return float64(steps) * 10 / float64(interp.machine.StepsPerCm(id))
}

// doMove executes G0/G1. F is accepted and ignored; speed follows the
// selected speed class. Z moves before X/Y when it travels toward its
// home end and after them otherwise, so a raised tip is never dragged.
func (interp *Interpreter) doMove(ctx context.Context, cmd *Command) error {
	var target, current [3]int32
	var moving [3]bool

	for id, letter := range axisLetters {
		if !cmd.HasParameter(letter) {
			continue
		}
		pos, err := interp.machine.GetPositionSteps(uint8(id))
		if err != nil {
			return fmt.Errorf("%s %c: %w", cmd.Name(), letter, err)
		}
		current[id] = pos

		delta, err := interp.mmToSteps(uint8(id), cmd.GetParameter(letter, 0))
		if err != nil {
			return fmt.Errorf("%s %w", cmd.Name(), err)
		}
		value := int64(delta)
		if !interp.absoluteMode {
			value += int64(pos)
		}
		if value < math.MinInt32 || value > math.MaxInt32 {
			return fmt.Errorf("%s %c: %w", cmd.Name(), letter, ErrOutOfRange)
		}
		target[id] = int32(value)
		moving[id] = target[id] != pos
	}

	moveZ := func() error {
		if !moving[motion.AxisZ] {
			return nil
		}
		out, err := interp.machine.MoveTo(ctx, motion.AxisZ, target[motion.AxisZ])
		moving[motion.AxisZ] = false
		return check(cmd, out, err)
	}

	// Z homes toward increasing positions on this machine
	if moving[motion.AxisZ] && target[motion.AxisZ] > current[motion.AxisZ] {
		if err := moveZ(); err != nil {
			return err
		}
	}

	var out motion.Outcome
	var err error
	switch {
	case moving[motion.AxisX] && moving[motion.AxisY]:
		out, err = interp.machine.MoveLinear(ctx, target[motion.AxisX], target[motion.AxisY])
	case moving[motion.AxisX]:
		out, err = interp.machine.MoveTo(ctx, motion.AxisX, target[motion.AxisX])
	case moving[motion.AxisY]:
		out, err = interp.machine.MoveTo(ctx, motion.AxisY, target[motion.AxisY])
	}
	if err := check(cmd, out, err); err != nil {
		return err
	}
	return moveZ()
}

// doHome executes G28. Without axis letters every axis homes, Z first.
func (interp *Interpreter) doHome(ctx context.Context, cmd *Command) error {
	if !cmd.HasParameter('X') && !cmd.HasParameter('Y') && !cmd.HasParameter('Z') {
		out, err := interp.machine.Homing(ctx)
		return check(cmd, out, err)
	}

	for _, id := range []uint8{motion.AxisZ, motion.AxisX, motion.AxisY} {
		if !cmd.HasParameter(axisLetters[id]) {
			continue
		}
		out, err := interp.machine.HomeAxis(ctx, id)
		if err := check(cmd, out, err); err != nil {
			return err
		}
	}
	return nil
}

// doSetPosition executes G92. Only re-zeroing is supported; a bare G92
// zeroes every axis the machine has.
func (interp *Interpreter) doSetPosition(cmd *Command) error {
	all := !cmd.HasParameter('X') && !cmd.HasParameter('Y') && !cmd.HasParameter('Z')
	for id, letter := range axisLetters {
		if !cmd.HasParameter(letter) {
			if !all {
				continue
			}
			if _, err := interp.machine.GetPositionSteps(uint8(id)); err != nil {
				continue
			}
		}
		if cmd.GetParameter(letter, 0) != 0 {
			return fmt.Errorf("G92 %c: only zero is supported", letter)
		}
		if err := interp.machine.ZeroPosition(uint8(id)); err != nil {
			return fmt.Errorf("G92 %c: %w", letter, err)
		}
	}
	return nil
}

func (interp *Interpreter) reportPosition() (string, error) {
	var mm, counts strings.Builder
	for id, letter := range axisLetters {
		pos, err := interp.machine.GetPositionSteps(uint8(id))
		if err != nil {
			continue
		}
		if mm.Len() > 0 {
			mm.WriteByte(' ')
		}
		fmt.Fprintf(&mm, "%c:%.2f", letter, interp.stepsToMm(uint8(id), pos))
		fmt.Fprintf(&counts, " %c:%d", letter, pos)
	}
	return mm.String() + " Count" + counts.String(), nil
}

func (interp *Interpreter) reportEndstops() string {
	var b strings.Builder
	for _, st := range interp.machine.Endstops() {
		name := motion.AxisName(st.Axis)
		fmt.Fprintf(&b, "%s_min:%s %s_max:%s ", name, switchState(st.Min), name, switchState(st.Max))
	}
	if interp.machine.Permitted() {
		b.WriteString("emergency:ok")
	} else {
		b.WriteString("emergency:TRIPPED")
	}
	return b.String()
}

func switchState(triggered bool) string {
	if triggered {
		return "TRIGGERED"
	}
	return "open"
}
