//go:build rp2040

package main

import (
	"context"
	"machine"
	"time"

	"pipetter/core"
	"pipetter/pipetter"
	"pipetter/pipetter/config"
	"pipetter/pipetter/gcode"
	"pipetter/targets/pio"
)

// Console bytes waiting for the main loop. A move blocks the main loop,
// so this also bounds how far the host can stream ahead.
const consoleQueue = 512

var (
	manager *pipetter.Manager
	console = make(chan byte, consoleQueue)

	// Debug counters
	linesReceived uint32
	msgerrors     uint32

	consecutiveWriteFailures uint32
)

func main() {
	// Disable the watchdog on boot to clear any previous state
	if err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0}); err != nil {
		return
	}

	InitUSB()
	UpdateSystemTime()
	initDebug()

	gpioDriver := NewRPGPIODriver()
	core.SetGPIODriver(gpioDriver)
	pio.Register()

	var err error
	manager, err = pipetter.NewManagerWithConfig(config.DefaultPipetterConfig(), pipetter.Hardware{
		GPIO:      gpioDriver,
		Sleeper:   core.SystemSleeper{},
		NewTicker: NewTicker,
	})
	if err != nil {
		blinkForever()
	}
	if err := manager.Initialize(); err != nil {
		blinkForever()
	}
	if err := manager.Start(); err != nil {
		blinkForever()
	}
	blink(3)

	go usbReaderLoop()

	ctx := context.Background()
	for {
		// Recover from panics in the main loop to prevent a firmware crash
		func() {
			defer func() {
				if r := recover(); r != nil {
					msgerrors++
					manager.Machine().StopAll()
				}
			}()

			UpdateSystemTime()
			select {
			case b := <-console:
				manager.ProcessByte(ctx, b)
			default:
				if err := manager.Poll(); err != nil {
					msgerrors++
				}
				time.Sleep(time.Millisecond)
			}
			writeUSB(manager.GetOutput())
			flushDebug()
		}()
	}
}

// usbReaderLoop forwards console bytes to the main loop. It watches for
// M112 itself because the main loop may be blocked in a move.
func usbReaderLoop() {
	// Recover from panics to prevent a firmware crash
	defer func() {
		if r := recover(); r != nil {
			msgerrors++
			time.Sleep(100 * time.Millisecond)
			go usbReaderLoop()
		}
	}()

	line := make([]byte, 0, 64)
	for {
		if USBAvailable() == 0 {
			// Yield to avoid a busy loop
			time.Sleep(100 * time.Microsecond)
			continue
		}
		b, err := USBRead()
		if err != nil {
			msgerrors++
			time.Sleep(time.Millisecond)
			continue
		}

		if b == '\n' || b == '\r' {
			if gcode.IsEmergency(string(line)) {
				manager.EmergencyStop()
			}
			line = line[:0]
			linesReceived++
		} else if len(line) < cap(line) {
			line = append(line, b)
		}

		select {
		case console <- b:
		default:
			// Queue full: the host ignored flow control
			msgerrors++
		}
	}
}

// writeUSB writes pending console output, dropping it after repeated
// failures so a detached host cannot wedge the main loop
func writeUSB(data []byte) {
	written := 0
	for written < len(data) {
		n, err := USBWriteBytes(data[written:])
		if err != nil || n == 0 {
			consecutiveWriteFailures++
			if consecutiveWriteFailures > 10 {
				consecutiveWriteFailures = 0
				return
			}
			time.Sleep(time.Millisecond)
			continue
		}
		written += n
		consecutiveWriteFailures = 0
	}
}

// blinkForever flashes the LED rapidly to report a fatal setup error
func blinkForever() {
	led := machine.LED
	led.Configure(machine.PinConfig{Mode: machine.PinOutput})
	for {
		led.High()
		time.Sleep(100 * time.Millisecond)
		led.Low()
		time.Sleep(100 * time.Millisecond)
	}
}

func blink(n int) {
	led := machine.LED
	led.Configure(machine.PinConfig{Mode: machine.PinOutput})
	for i := 0; i < n; i++ {
		led.High()
		time.Sleep(200 * time.Millisecond)
		led.Low()
		time.Sleep(200 * time.Millisecond)
	}
}
