// Package gcode parses and executes the console command set of the
// pipetter: homing, moves in millimetres, position reports, dispensing
// and emergency stop.
package gcode

import (
	"errors"
	"strconv"
	"strings"
)

var (
	ErrMissingNumber = errors.New("command letter without number")
	ErrMissingValue  = errors.New("parameter without value")
	ErrBadWord       = errors.New("unexpected character")
)

// Command is one parsed line
type Command struct {
	Type       byte             // 'G', 'M'; zero for a comment-only line
	Number     int              // 28 for G28
	Parameters map[byte]float64 // X, Y, Z, S, V...
	Comment    string
}

// HasParameter checks if a parameter exists in the command
func (cmd *Command) HasParameter(param byte) bool {
	_, ok := cmd.Parameters[param]
	return ok
}

// GetParameter gets a parameter value, or returns the default if not present
func (cmd *Command) GetParameter(param byte, defaultValue float64) float64 {
	if val, ok := cmd.Parameters[param]; ok {
		return val
	}
	return defaultValue
}

// Name returns "G28" style command names
func (cmd *Command) Name() string {
	if cmd.Type == 0 {
		return ""
	}
	return string(cmd.Type) + strconv.Itoa(cmd.Number)
}

// Parser handles G-code parsing
type Parser struct{}

// NewParser creates a new G-code parser
func NewParser() *Parser {
	return &Parser{}
}

// ParseLine parses a single line. Blank lines return a nil command.
// Letters are case-insensitive; ';' and '(' start a comment.
func (p *Parser) ParseLine(line string) (*Command, error) {
	s := &scanner{line: line}
	s.skipSpace()
	if s.done() {
		return nil, nil
	}

	cmd := &Command{Parameters: make(map[byte]float64)}
	if s.atComment() {
		cmd.Comment = s.rest()
		return cmd, nil
	}

	if c := upper(s.peek()); c == 'G' || c == 'M' {
		s.pos++
		num, ok := s.number()
		if !ok || num != float64(int(num)) {
			return nil, &WordError{Col: s.pos, Err: ErrMissingNumber}
		}
		cmd.Type = c
		cmd.Number = int(num)
	}

	for {
		s.skipSpace()
		if s.done() {
			break
		}
		if s.atComment() {
			cmd.Comment = s.rest()
			break
		}

		c := upper(s.peek())
		if c < 'A' || c > 'Z' {
			return nil, &WordError{Col: s.pos, Err: ErrBadWord}
		}
		s.pos++
		s.skipSpace()
		value, ok := s.number()
		if !ok {
			// Bare axis letters, as in "G28 X Z"
			if s.done() || s.atComment() || isLetter(s.peek()) {
				value = 0
			} else {
				return nil, &WordError{Col: s.pos, Err: ErrMissingValue}
			}
		}
		cmd.Parameters[c] = value
	}
	return cmd, nil
}

// WordError locates a parse failure within the line
type WordError struct {
	Col int
	Err error
}

func (e *WordError) Error() string {
	return "col " + strconv.Itoa(e.Col+1) + ": " + e.Err.Error()
}

func (e *WordError) Unwrap() error { return e.Err }

type scanner struct {
	line string
	pos  int
}

func (s *scanner) done() bool { return s.pos >= len(s.line) }

func (s *scanner) peek() byte { return s.line[s.pos] }

func (s *scanner) rest() string {
	r := strings.TrimSpace(s.line[s.pos:])
	s.pos = len(s.line)
	return r
}

func (s *scanner) atComment() bool {
	c := s.peek()
	return c == ';' || c == '('
}

func (s *scanner) skipSpace() {
	for !s.done() && (s.peek() == ' ' || s.peek() == '\t' || s.peek() == '\r' || s.peek() == '\n') {
		s.pos++
	}
}

// number consumes a signed decimal number
func (s *scanner) number() (float64, bool) {
	start := s.pos
	end := s.pos
	if end < len(s.line) && (s.line[end] == '-' || s.line[end] == '+') {
		end++
	}
	digits := 0
	for end < len(s.line) && (isDigit(s.line[end]) || s.line[end] == '.') {
		if s.line[end] != '.' {
			digits++
		}
		end++
	}
	if digits == 0 {
		return 0, false
	}
	v, err := strconv.ParseFloat(s.line[start:end], 64)
	if err != nil {
		return 0, false
	}
	s.pos = end
	return v, true
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isLetter(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

func upper(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - ('a' - 'A')
	}
	return c
}

// IsEmergency reports whether line is an M112, so a reader can act on it
// before the line reaches a busy interpreter.
func IsEmergency(line string) bool {
	cmd, err := NewParser().ParseLine(line)
	return err == nil && cmd != nil && cmd.Type == 'M' && cmd.Number == 112
}
