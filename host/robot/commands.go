package robot

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/shlex"

	"pipetter/motion"
)

var ErrUsage = errors.New("usage")

// Command is a console word and its G-code translation
type Command struct {
	Name  string
	Usage string
	build func(args []string) (string, error)
}

// Commands lists the console vocabulary in help order
var Commands = []Command{
	{"home", "home [x] [y] [z]          home all or the named axes", buildHome},
	{"move", "move <axis> <mm> ...      move to absolute mm, e.g. move x 10 y 5", buildMove("G90")},
	{"jog", "jog <axis> <mm> ...       move by a relative distance", buildMove("G91")},
	{"pos", "pos                       report the position", fixed("M114")},
	{"dispense", "dispense <ml>             open the valve for a volume", buildDispense},
	{"speed", "speed fast|medium|slow    select the speed class", buildSpeed},
	{"zero", "zero [x] [y] [z]          re-zero all or the named axes", buildZero},
	{"endstops", "endstops                  report switch and interlock states", fixed("M119")},
	{"off", "off                       disable the motor drivers", fixed("M18")},
	{"stop", "stop                      emergency stop", fixed("M112")},
	{"gcode", "gcode <line>              send a raw G-code line", buildRaw},
}

func fixed(line string) func([]string) (string, error) {
	return func(args []string) (string, error) {
		if len(args) != 0 {
			return "", ErrUsage
		}
		return line, nil
	}
}

// Translate splits a console line shell-style and returns the G-code
// lines it stands for.
func Translate(line string) ([]string, error) {
	words, err := shlex.Split(line)
	if err != nil {
		return nil, err
	}
	if len(words) == 0 {
		return nil, nil
	}

	name := strings.ToLower(words[0])
	for _, c := range Commands {
		if c.Name != name {
			continue
		}
		gcode, err := c.build(words[1:])
		if errors.Is(err, ErrUsage) {
			return nil, fmt.Errorf("%w: %s", ErrUsage, c.Usage)
		}
		if err != nil {
			return nil, err
		}
		return strings.Split(gcode, "\n"), nil
	}
	return nil, fmt.Errorf("unknown command %q (type 'help')", words[0])
}

func axisLetter(word string) (string, error) {
	switch w := strings.ToUpper(word); w {
	case "X", "Y", "Z":
		return w, nil
	}
	return "", fmt.Errorf("unknown axis %q", word)
}

func axisList(code string, args []string) (string, error) {
	var b strings.Builder
	b.WriteString(code)
	for _, a := range args {
		letter, err := axisLetter(a)
		if err != nil {
			return "", err
		}
		b.WriteString(" " + letter)
	}
	return b.String(), nil
}

func buildHome(args []string) (string, error) {
	return axisList("G28", args)
}

func buildZero(args []string) (string, error) {
	return axisList("G92", args)
}

// buildMove switches the positioning mode for the move, restoring
// absolute mode after a relative jog.
func buildMove(mode string) func([]string) (string, error) {
	return func(args []string) (string, error) {
		if len(args) == 0 || len(args)%2 != 0 {
			return "", ErrUsage
		}
		var b strings.Builder
		b.WriteString(mode + "\nG1")
		for i := 0; i < len(args); i += 2 {
			letter, err := axisLetter(args[i])
			if err != nil {
				return "", err
			}
			mm, err := strconv.ParseFloat(args[i+1], 64)
			if err != nil {
				return "", fmt.Errorf("axis %s: %w", letter, err)
			}
			b.WriteString(" " + letter + strconv.FormatFloat(mm, 'f', -1, 64))
		}
		if mode == "G91" {
			b.WriteString("\nG90")
		}
		return b.String(), nil
	}
}

func buildDispense(args []string) (string, error) {
	if len(args) != 1 {
		return "", ErrUsage
	}
	ml, err := strconv.ParseFloat(args[0], 64)
	if err != nil || ml <= 0 {
		return "", fmt.Errorf("bad volume %q", args[0])
	}
	return "M700 V" + strconv.FormatFloat(ml, 'f', -1, 64), nil
}

func buildSpeed(args []string) (string, error) {
	if len(args) != 1 {
		return "", ErrUsage
	}
	var class motion.SpeedClass
	if err := class.UnmarshalText([]byte(strings.ToLower(args[0]))); err != nil {
		return "", err
	}
	return "M220 S" + strconv.Itoa(int(class)), nil
}

func buildRaw(args []string) (string, error) {
	if len(args) == 0 {
		return "", ErrUsage
	}
	return strings.Join(args, " "), nil
}

// Exec translates one console line and sends it, writing replies to out
func (r *Robot) Exec(ctx context.Context, line string, out io.Writer) error {
	gcodes, err := Translate(line)
	if err != nil {
		return err
	}
	for _, g := range gcodes {
		replies, err := r.Send(ctx, g)
		for _, reply := range replies {
			fmt.Fprintln(out, reply)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// RunScript executes a command file line by line. Blank lines and lines
// starting with '#' are skipped; the first failure stops the script.
func (r *Robot) RunScript(ctx context.Context, script io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(script)
	for n := 1; scanner.Scan(); n++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := r.Exec(ctx, line, out); err != nil {
			return fmt.Errorf("line %d: %w", n, err)
		}
	}
	return scanner.Err()
}
