package pipetter

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"pipetter/core"
	"pipetter/pipetter/config"
)

func newTestManager(t *testing.T) (*Manager, *core.Scheduler, *core.SimGPIO) {
	t.Helper()

	data, err := json.Marshal(config.DefaultPipetterConfig())
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	sched := core.NewScheduler()
	gpio := core.NewSimGPIO()
	mgr, err := NewManager(data, Hardware{
		GPIO:      gpio,
		Sleeper:   sched,
		NewTicker: sched.NewTicker,
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return mgr, sched, gpio
}

func feed(mgr *Manager, s string) string {
	for i := 0; i < len(s); i++ {
		mgr.ProcessByte(context.Background(), s[i])
	}
	return string(mgr.GetOutput())
}

func TestManagerRequiresInitialize(t *testing.T) {
	mgr, _, _ := newTestManager(t)

	if err := mgr.Start(); err == nil {
		t.Error("Start before Initialize should fail")
	}
	if out := feed(mgr, "M114\n"); out != "!! motors not initialized\n" {
		t.Errorf("Output = %q", out)
	}
	if err := mgr.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := mgr.Initialize(); err == nil {
		t.Error("Second Initialize should fail")
	}
	if err := mgr.Start(); err != nil || !mgr.IsRunning() {
		t.Fatalf("Start: %v", err)
	}
	if out := string(mgr.GetOutput()); out != "pipetter ready\n" {
		t.Errorf("Banner = %q", out)
	}
}

func TestManagerSession(t *testing.T) {
	mgr, _, gpio := newTestManager(t)
	if err := mgr.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	x := core.NewSimMotor(gpio, 2, 3)
	x.Limits(12, 13, -farLimit, 30)
	y := core.NewSimMotor(gpio, 5, 6)
	y.Limits(14, 15, -20, farLimit)
	z := core.NewSimCoilMotor(gpio, [4]core.GPIOPin{8, 9, 10, 11})
	z.Limits(16, 17, -farLimit, 10)

	steps := []struct {
		in, want string
	}{
		{"G28\n", "ok\n"},
		{"M114\n", "X:0.00 Y:0.00 Z:0.00 Count X:0 Y:0 Z:0\nok\n"},
		{"G1 X-1 Y0.5\r\n", "ok\n"},
		{"M114\n", "X:-1.00 Y:0.50 Z:0.00 Count X:-80 Y:40 Z:0\nok\n"},
		{"G91\nG1 Z-0.25 ; lower the tip\n", "ok\nok\n"},
		{"M114\n", "X:-1.00 Y:0.50 Z:-0.25 Count X:-80 Y:40 Z:-10\nok\n"},
		{"G1 X5\n", "!! G1: limit hit\n"},
		{"G5\n", "!! unsupported command: G5\n"},
		{"\n\n  \n", ""},
		{"M119\n", "x_min:open x_max:TRIGGERED y_min:open y_max:open z_min:open z_max:open emergency:ok\nok\n"},
	}
	for _, s := range steps {
		if out := feed(mgr, s.in); out != s.want {
			t.Errorf("%q -> %q, want %q", s.in, out, s.want)
		}
	}
}

func TestManagerLineTooLong(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	_ = mgr.Initialize()

	out := feed(mgr, "G1 X"+strings.Repeat("1", 300)+"\nM18\n")
	if out != "!! line too long\nok\n" {
		t.Errorf("Output = %q", out)
	}
}

func TestManagerEmergencyStop(t *testing.T) {
	mgr, sched, gpio := newTestManager(t)
	_ = mgr.Initialize()
	_ = mgr.Start()
	mgr.GetOutput()

	sched.ScheduleTimer(&core.Timer{
		WakeTime: 3000,
		Handler: func(*core.Timer) uint8 {
			mgr.EmergencyStop()
			return core.SF_DONE
		},
	})
	if out := feed(mgr, "G1 X-100\n"); out != "!! G1: aborted\n" {
		t.Errorf("Output = %q", out)
	}
	if !gpio.Level(pinXEn) {
		t.Error("X driver left enabled")
	}

	gpio.SetInput(pinJogXUp, true)
	if err := mgr.Poll(); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if !mgr.Machine().x.Running() {
		t.Error("Jog should run X while idle")
	}
	mgr.Stop()
	if mgr.IsRunning() || mgr.Machine().x.Running() {
		t.Error("Stop should halt the console and the axes")
	}
}
