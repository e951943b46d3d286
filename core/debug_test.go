package core

import (
	"testing"
	"time"
)

func TestDebugAsyncReachesWriter(t *testing.T) {
	got := make(chan string, 4)
	SetDebugWriter(func(s string) { got <- s })
	SetDebugEnabled(true)
	defer SetDebugEnabled(false)
	defer SetDebugWriter(func(string) {})

	InitAsyncDebug()
	DebugAsync("[SAFETY] emergency input tripped")

	select {
	case s := <-got:
		if s != "[SAFETY] emergency input tripped" {
			t.Errorf("Writer got %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("Async message never written")
	}
}

func TestDumpTimingRing(t *testing.T) {
	var lines []string
	SetDebugWriter(func(s string) { lines = append(lines, s) })
	defer SetDebugWriter(func(string) {})
	ClearTimingRing()
	defer ClearTimingRing()

	RecordTiming(EvtSafetyTrip, 0, 1, 0)
	DumpTimingRing()

	if len(lines) != 3 || lines[1] != "[TIMING] SAFETY_TRIP! axis=0 clock="+Itoa(int(GetTime()))+" v1=1 v2=0" {
		t.Errorf("Dump = %q", lines)
	}
}
