package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"pipetter/core"
	"pipetter/motion"
)

// Axis kinds
const (
	KindRamped = "ramped" // step/dir driver pulsed from a ticker
	KindCoil   = "coil"   // four coil outputs sequenced by the loop
)

// AxisConfig represents configuration for a single axis
type AxisConfig struct {
	Kind string `json:"kind"`

	// Ramped axes
	StepPin          string            `json:"step_pin,omitempty"`
	DirPin           string            `json:"dir_pin,omitempty"`
	EnablePin        string            `json:"enable_pin,omitempty"` // optional
	InvertStep       bool              `json:"invert_step,omitempty"`
	InvertDir        bool              `json:"invert_dir,omitempty"`
	EnableActiveHigh bool              `json:"enable_active_high,omitempty"` // drivers enable on low by default
	Ramp             motion.RampConfig `json:"ramp"`

	// Coil axes
	CoilPins    [4]string `json:"coil_pins,omitempty"`
	CoilDelayMs [3]uint32 `json:"coil_delay_ms,omitempty"` // fast, medium, slow

	// Endstops are optional; an axis without a homing endstop cannot home
	EndMinPin        string           `json:"endstop_min_pin,omitempty"`
	EndMaxPin        string           `json:"endstop_max_pin,omitempty"`
	EndstopActiveLow bool             `json:"endstop_active_low,omitempty"`
	EndstopSamples   uint8            `json:"endstop_samples,omitempty"`
	HomeDir          motion.Direction `json:"home_dir"`

	StepsPerCm float32 `json:"steps_per_cm"`
}

// JogConfig holds the operator button pins. Empty pins are absent.
type JogConfig struct {
	XUp    string `json:"x_up,omitempty"`
	XDown  string `json:"x_down,omitempty"`
	YUp    string `json:"y_up,omitempty"`
	YDown  string `json:"y_down,omitempty"`
	Toggle string `json:"toggle,omitempty"`
	Slow   string `json:"slow,omitempty"`
	Medium string `json:"medium,omitempty"`
}

// ValveConfig describes the pipette valve output
type ValveConfig struct {
	Pin       string `json:"pin"`
	ActiveLow bool   `json:"active_low,omitempty"`
	MsPerMl   uint32 `json:"ms_per_ml"`
	MaxOpenMs uint32 `json:"max_open_ms"`
}

// MachineConfig represents the complete machine configuration
type MachineConfig struct {
	Axes map[string]AxisConfig `json:"axes"` // "x", "y", "z"
	Jog  JogConfig             `json:"jog"`

	EmergencyPin        string `json:"emergency_pin,omitempty"`
	EmergencyActiveHigh bool   `json:"emergency_active_high,omitempty"` // pulled-up switch to ground by default

	Valve ValveConfig `json:"valve"`

	PollMs          uint32 `json:"poll_ms"`
	HomingTimeoutMs uint32 `json:"homing_timeout_ms"`
	MaxHomingSteps  int    `json:"max_homing_steps"`
	MoveTimeoutMs   uint32 `json:"move_timeout_ms"`
	InterpPeriodUs  uint32 `json:"interp_period_us"` // 0 = a third of X's initial period
}

// LoadConfig parses a JSON configuration and returns a MachineConfig
func LoadConfig(jsonData []byte) (*MachineConfig, error) {
	var config MachineConfig

	err := json.Unmarshal(jsonData, &config)
	if err != nil {
		return nil, err
	}

	// Apply defaults
	applyDefaults(&config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// applyDefaults fills in missing configuration values with sensible defaults
func applyDefaults(config *MachineConfig) {
	if config.PollMs == 0 {
		config.PollMs = 1
	}
	if config.HomingTimeoutMs == 0 {
		config.HomingTimeoutMs = 60000
	}
	if config.MaxHomingSteps == 0 {
		config.MaxHomingSteps = motion.DefaultMaxCoilSteps
	}
	if config.MoveTimeoutMs == 0 {
		config.MoveTimeoutMs = 120000
	}
	if config.Valve.MsPerMl == 0 {
		config.Valve.MsPerMl = 50
	}
	if config.Valve.MaxOpenMs == 0 {
		config.Valve.MaxOpenMs = 60000
	}

	// Apply defaults to each axis
	for name, axis := range config.Axes {
		if axis.Kind == "" {
			axis.Kind = KindRamped
			if axis.CoilPins[0] != "" {
				axis.Kind = KindCoil
			}
		}

		def := motion.DefaultRampConfig()
		if axis.Ramp.InitialPeriodUS == 0 {
			axis.Ramp.InitialPeriodUS = def.InitialPeriodUS
		}
		for i := range axis.Ramp.MinPeriodUS {
			if axis.Ramp.MinPeriodUS[i] == 0 {
				axis.Ramp.MinPeriodUS[i] = def.MinPeriodUS[i]
			}
		}
		if axis.Ramp.RampStepUS == 0 {
			axis.Ramp.RampStepUS = def.RampStepUS
		}
		if axis.Ramp.StepsPerRamp == 0 {
			axis.Ramp.StepsPerRamp = def.StepsPerRamp
		}
		if axis.Ramp.PositionIncrement == 0 {
			axis.Ramp.PositionIncrement = def.PositionIncrement
		}

		delays := [3]uint32{3, 4, 5}
		for i := range axis.CoilDelayMs {
			if axis.CoilDelayMs[i] == 0 {
				axis.CoilDelayMs[i] = delays[i]
			}
		}

		if axis.EndstopSamples == 0 {
			axis.EndstopSamples = 1
		}
		if axis.StepsPerCm == 0 {
			// 0.5 mm lead screw with toggle-counted position, 1 mm for the coil axis
			axis.StepsPerCm = 800
			if axis.Kind == KindCoil {
				axis.StepsPerCm = 400
			}
		}
		config.Axes[name] = axis
	}
}

// Validate rejects configurations the machine cannot be built from
func (c *MachineConfig) Validate() error {
	if c.Axes == nil {
		return errors.New("no axes configured")
	}

	used := make(map[core.GPIOPin]string)
	claim := func(owner, name string, required bool) error {
		if name == "" {
			if required {
				return fmt.Errorf("%s: pin required", owner)
			}
			return nil
		}
		pin, err := core.LookupPin(name)
		if err != nil {
			return fmt.Errorf("%s: %w: %q", owner, err, name)
		}
		if prev, dup := used[pin]; dup {
			return fmt.Errorf("%s: pin %s already used by %s", owner, name, prev)
		}
		used[pin] = owner
		return nil
	}

	for _, name := range []string{"x", "y", "z"} {
		axis, ok := c.Axes[name]
		if !ok {
			if name == "z" {
				continue
			}
			return fmt.Errorf("axis %s: missing", name)
		}

		switch axis.Kind {
		case KindRamped:
			if err := axis.Ramp.Validate(); err != nil {
				return fmt.Errorf("axis %s: %w", name, err)
			}
			if err := claim(name+".step_pin", axis.StepPin, true); err != nil {
				return err
			}
			if err := claim(name+".dir_pin", axis.DirPin, true); err != nil {
				return err
			}
			if err := claim(name+".enable_pin", axis.EnablePin, false); err != nil {
				return err
			}
		case KindCoil:
			if name != "z" {
				return fmt.Errorf("axis %s: only z may be a coil axis", name)
			}
			for i, pin := range axis.CoilPins {
				if err := claim(fmt.Sprintf("%s.coil_pins[%d]", name, i), pin, true); err != nil {
					return err
				}
			}
		default:
			return fmt.Errorf("axis %s: unknown kind %q", name, axis.Kind)
		}

		if err := claim(name+".endstop_min_pin", axis.EndMinPin, false); err != nil {
			return err
		}
		if err := claim(name+".endstop_max_pin", axis.EndMaxPin, false); err != nil {
			return err
		}
		if axis.StepsPerCm <= 0 {
			return fmt.Errorf("axis %s: steps_per_cm must be positive", name)
		}
	}

	for owner, pin := range map[string]string{
		"jog.x_up": c.Jog.XUp, "jog.x_down": c.Jog.XDown,
		"jog.y_up": c.Jog.YUp, "jog.y_down": c.Jog.YDown,
		"jog.toggle": c.Jog.Toggle, "jog.slow": c.Jog.Slow, "jog.medium": c.Jog.Medium,
		"emergency_pin": c.EmergencyPin, "valve.pin": c.Valve.Pin,
	} {
		if err := claim(owner, pin, false); err != nil {
			return err
		}
	}
	return nil
}

// HomingPin returns the endstop pin name in the homing direction
func (a AxisConfig) HomingPin() string {
	if a.HomeDir == motion.Backward {
		return a.EndMinPin
	}
	return a.EndMaxPin
}

// CoilTiming converts the coil delay table
func (a AxisConfig) CoilTiming() motion.CoilTiming {
	var t motion.CoilTiming
	for i, ms := range a.CoilDelayMs {
		t[i] = core.MsToDuration(ms)
	}
	return t
}

// Poll returns the control loop polling interval
func (c *MachineConfig) Poll() time.Duration {
	return core.MsToDuration(c.PollMs)
}

// HomingTimeout returns the ramped homing bound
func (c *MachineConfig) HomingTimeout() time.Duration {
	return core.MsToDuration(c.HomingTimeoutMs)
}

// MoveTimeout returns the single-axis move bound
func (c *MachineConfig) MoveTimeout() time.Duration {
	return core.MsToDuration(c.MoveTimeoutMs)
}

// InterpPeriod returns the interpolation tick, zero for the default
func (c *MachineConfig) InterpPeriod() time.Duration {
	return core.UsToDuration(c.InterpPeriodUs)
}

// DefaultPipetterConfig returns the RP2040 board wiring: X and Y on
// step/dir drivers, Z on a four-coil unipolar motor.
func DefaultPipetterConfig() *MachineConfig {
	cfg := &MachineConfig{
		Axes: map[string]AxisConfig{
			"x": {
				Kind:      KindRamped,
				StepPin:   "gpio2",
				DirPin:    "gpio3",
				EnablePin: "gpio4",
				Ramp: motion.RampConfig{
					InitialPeriodUS:   1000,
					MinPeriodUS:       [3]uint32{175, 300, 700},
					RampStepUS:        25,
					StepsPerRamp:      25,
					PositionIncrement: 2,
				},
				EndMinPin:  "gpio12",
				EndMaxPin:  "gpio13",
				HomeDir:    motion.Forward,
				StepsPerCm: 800,
			},
			"y": {
				Kind:      KindRamped,
				StepPin:   "gpio5",
				DirPin:    "gpio6",
				EnablePin: "gpio7",
				Ramp: motion.RampConfig{
					InitialPeriodUS:   800,
					MinPeriodUS:       [3]uint32{200, 350, 700},
					RampStepUS:        25,
					StepsPerRamp:      25,
					PositionIncrement: 2,
				},
				EndMinPin:  "gpio14",
				EndMaxPin:  "gpio15",
				HomeDir:    motion.Backward,
				StepsPerCm: 800,
			},
			"z": {
				Kind:        KindCoil,
				CoilPins:    [4]string{"gpio8", "gpio9", "gpio10", "gpio11"},
				CoilDelayMs: [3]uint32{3, 4, 5},
				EndMinPin:   "gpio16",
				EndMaxPin:   "gpio17",
				HomeDir:     motion.Forward,
				StepsPerCm:  400,
			},
		},
		Jog: JogConfig{
			XUp:    "gpio18",
			XDown:  "gpio19",
			YUp:    "gpio20",
			YDown:  "gpio21",
			Toggle: "gpio22",
			Slow:   "gpio26",
			Medium: "gpio27",
		},
		EmergencyPin: "gpio28",
		Valve: ValveConfig{
			Pin:       "gpio0",
			MsPerMl:   50,
			MaxOpenMs: 60000,
		},
	}
	applyDefaults(cfg)
	return cfg
}
