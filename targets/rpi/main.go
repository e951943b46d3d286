//go:build linux

// Command pipetter-rpi runs the pipetter console on a Raspberry Pi,
// driving the motors from the GPIO header. The console is stdin/stdout
// or, with -device, a serial port for a remote host.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"periph.io/x/host/v3"

	"pipetter/core"
	"pipetter/host/serial"
	"pipetter/pipetter"
	"pipetter/pipetter/config"
	"pipetter/pipetter/gcode"
)

var (
	configPath = flag.String("config", "", "Machine configuration JSON (default: built-in wiring)")
	device     = flag.String("device", "", "Serial device for the console (default: stdin/stdout)")
	baud       = flag.Int("baud", 115200, "Baud rate of -device")
	poll       = flag.Duration("poll", 5*time.Millisecond, "Jog polling interval while idle")
	debug      = flag.Bool("debug", false, "Log motion events to stderr")
)

func main() {
	flag.Parse()
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	core.SetDebugWriter(func(s string) { fmt.Fprintln(os.Stderr, s) })
	core.SetDebugEnabled(*debug)
	core.InitAsyncDebug()

	if _, err := host.Init(); err != nil {
		return fmt.Errorf("periph init: %w", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	gpioDriver := NewPeriphGPIO()
	core.SetGPIODriver(gpioDriver)

	mgr, err := pipetter.NewManagerWithConfig(cfg, pipetter.Hardware{
		GPIO:      gpioDriver,
		Sleeper:   core.SystemSleeper{},
		NewTicker: NewTicker,
	})
	if err != nil {
		return err
	}
	if err := mgr.Initialize(); err != nil {
		return err
	}

	var in io.Reader = os.Stdin
	var out io.Writer = os.Stdout
	if *device != "" {
		scfg := serial.DefaultConfig(*device)
		scfg.Baud = *baud
		port, err := serial.Open(scfg)
		if err != nil {
			return err
		}
		defer port.Close()
		in, out = port, port
	}

	// SIGINT/SIGTERM stop the motors even while a line is executing
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigs := make(chan os.Signal, 1)
	stopped := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		mgr.EmergencyStop()
		cancel()
		stopped <- sig
	}()

	if err := mgr.Start(); err != nil {
		return err
	}
	return serve(ctx, mgr, in, out, stopped)
}

func loadConfig() (*config.MachineConfig, error) {
	if *configPath == "" {
		return config.DefaultPipetterConfig(), nil
	}
	data, err := os.ReadFile(*configPath)
	if err != nil {
		return nil, err
	}
	return config.LoadConfig(data)
}

// serve runs the console until input ends or a signal arrives. Lines
// execute on this goroutine; the reader handles M112 itself so it
// interrupts a move in progress.
func serve(ctx context.Context, mgr *pipetter.Manager, in io.Reader, out io.Writer, stopped <-chan os.Signal) error {
	bytes := make(chan byte, 512)
	readErr := make(chan error, 1)
	go func() {
		readErr <- readConsole(mgr, in, bytes)
	}()

	idle := time.NewTicker(*poll)
	defer idle.Stop()
	defer mgr.Stop()

	for {
		select {
		case b := <-bytes:
			mgr.ProcessByte(ctx, b)
		case <-idle.C:
			if err := mgr.Poll(); err != nil {
				core.DebugPrintln("[JOG] " + err.Error())
			}
		case sig := <-stopped:
			return fmt.Errorf("stopped by %v", sig)
		case err := <-readErr:
			for len(bytes) > 0 {
				mgr.ProcessByte(ctx, <-bytes)
			}
			if _, werr := out.Write(mgr.GetOutput()); werr != nil {
				return werr
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if data := mgr.GetOutput(); len(data) > 0 {
			if _, err := out.Write(data); err != nil {
				return err
			}
		}
	}
}

// readConsole forwards input bytes until the reader fails
func readConsole(mgr *pipetter.Manager, in io.Reader, bytes chan<- byte) error {
	r := bufio.NewReader(in)
	line := make([]byte, 0, 64)
	for {
		b, err := r.ReadByte()
		if err != nil {
			// Serial reads time out with no data
			if (err == io.EOF || err == io.ErrNoProgress) && *device != "" {
				continue
			}
			return err
		}
		if b == '\n' || b == '\r' {
			if gcode.IsEmergency(string(line)) {
				mgr.EmergencyStop()
			}
			line = line[:0]
		} else if len(line) < cap(line) {
			line = append(line, b)
		}
		bytes <- b
	}
}
