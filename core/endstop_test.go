package core

import "testing"

func TestEndstopPolarity(t *testing.T) {
	tests := []struct {
		name        string
		triggerHigh bool
		level       bool
		want        bool
	}{
		{"active high pressed", true, true, true},
		{"active high released", true, false, false},
		{"active low pressed", false, false, true},
		{"active low released", false, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gpio := NewSimGPIO()
			es, err := NewEndstop(gpio, 12, PullDown, tt.triggerHigh, 1)
			if err != nil {
				t.Fatalf("NewEndstop failed: %v", err)
			}
			gpio.SetInput(12, tt.level)
			if got := es.Triggered(); got != tt.want {
				t.Errorf("Triggered() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEndstopOversampling(t *testing.T) {
	gpio := NewSimGPIO()
	es, _ := NewEndstop(gpio, 12, PullDown, true, 3)

	// Bounce: high on the first sample only
	reads := 0
	gpio.SetInputFunc(12, func() bool {
		reads++
		return reads == 1
	})
	if es.Triggered() {
		t.Error("Bouncing input should not trigger")
	}

	gpio.SetInput(12, true)
	if !es.Triggered() {
		t.Error("Stable input should trigger")
	}
}

func TestEndstopNil(t *testing.T) {
	var es *Endstop
	if es.Triggered() {
		t.Error("Nil endstop must never trigger")
	}
}

func TestLookupPin(t *testing.T) {
	tests := []struct {
		in      string
		want    GPIOPin
		wantErr bool
	}{
		{"gpio12", 12, false},
		{"GPIO2", 2, false},
		{"28", 28, false},
		{"gpio", 0, true},
		{"", 0, true},
		{"pa3", 0, true},
		{"gpio1x", 0, true},
	}

	for _, tt := range tests {
		got, err := LookupPin(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("LookupPin(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("LookupPin(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}

	if PinName(17) != "gpio17" {
		t.Errorf("PinName(17) = %q", PinName(17))
	}
}
