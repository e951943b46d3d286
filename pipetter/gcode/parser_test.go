package gcode

import (
	"errors"
	"testing"
)

func TestParseBasicCommands(t *testing.T) {
	parser := NewParser()

	tests := []struct {
		input   string
		cmdType byte
		cmdNum  int
		params  map[byte]float64
	}{
		{"G0 X10 Y20", 'G', 0, map[byte]float64{'X': 10, 'Y': 20}},
		{"G1 X100.5 Y200.25 F3000", 'G', 1, map[byte]float64{'X': 100.5, 'Y': 200.25, 'F': 3000}},
		{"G28", 'G', 28, map[byte]float64{}},
		{"G28 X Z", 'G', 28, map[byte]float64{'X': 0, 'Z': 0}},
		{"M700 V1.5", 'M', 700, map[byte]float64{'V': 1.5}},
		{"M220 S2", 'M', 220, map[byte]float64{'S': 2}},
		{"G1 X -3", 'G', 1, map[byte]float64{'X': -3}},
		{"G1 Z.5", 'G', 1, map[byte]float64{'Z': 0.5}},
	}

	for _, test := range tests {
		cmd, err := parser.ParseLine(test.input)
		if err != nil {
			t.Errorf("Failed to parse '%s': %v", test.input, err)
			continue
		}
		if cmd == nil {
			t.Errorf("Got nil command for '%s'", test.input)
			continue
		}
		if cmd.Type != test.cmdType || cmd.Number != test.cmdNum {
			t.Errorf("Got %s for '%s'", cmd.Name(), test.input)
		}
		if len(cmd.Parameters) != len(test.params) {
			t.Errorf("Got %d parameters for '%s', want %d", len(cmd.Parameters), test.input, len(test.params))
		}
		for param, value := range test.params {
			if !cmd.HasParameter(param) {
				t.Errorf("Missing parameter %c in '%s'", param, test.input)
			} else if cmd.GetParameter(param, 0) != value {
				t.Errorf("Expected %c=%f, got %f in '%s'", param, value, cmd.GetParameter(param, 0), test.input)
			}
		}
	}
}

func TestParseCommentsAndCase(t *testing.T) {
	parser := NewParser()

	cmd, err := parser.ParseLine("g1 x10 ; to the rack")
	if err != nil {
		t.Fatalf("Failed to parse: %v", err)
	}
	if cmd.Name() != "G1" || cmd.GetParameter('X', 0) != 10 {
		t.Errorf("Got %s X=%f", cmd.Name(), cmd.GetParameter('X', 0))
	}
	if cmd.Comment != "; to the rack" {
		t.Errorf("Comment = %q", cmd.Comment)
	}

	cmd, err = parser.ParseLine("(tip change)")
	if err != nil || cmd == nil || cmd.Type != 0 || cmd.Comment != "(tip change)" {
		t.Errorf("Comment line = %+v, %v", cmd, err)
	}
}

func TestParseEmptyLine(t *testing.T) {
	parser := NewParser()

	for _, line := range []string{"", "   ", "\t\r\n"} {
		cmd, err := parser.ParseLine(line)
		if err != nil || cmd != nil {
			t.Errorf("ParseLine(%q) = %+v, %v; want nil", line, cmd, err)
		}
	}
}

func TestParseErrors(t *testing.T) {
	parser := NewParser()

	tests := []struct {
		input string
		want  error
		col   int
	}{
		{"G", ErrMissingNumber, 1},
		{"G1.5", ErrMissingNumber, 4},
		{"G1 X#", ErrMissingValue, 4},
		{"G1 X10 #", ErrBadWord, 7},
	}
	for _, tt := range tests {
		_, err := parser.ParseLine(tt.input)
		if !errors.Is(err, tt.want) {
			t.Errorf("ParseLine(%q) err = %v, want %v", tt.input, err, tt.want)
			continue
		}
		var we *WordError
		if errors.As(err, &we) && we.Col != tt.col {
			t.Errorf("ParseLine(%q) col = %d, want %d", tt.input, we.Col, tt.col)
		}
	}
}

func TestIsEmergency(t *testing.T) {
	for line, want := range map[string]bool{
		"M112":        true,
		" m112 ; now": true,
		"M11":         false,
		"G1 X112":     false,
		"M112.5":      false,
	} {
		if got := IsEmergency(line); got != want {
			t.Errorf("IsEmergency(%q) = %v", line, got)
		}
	}
}
