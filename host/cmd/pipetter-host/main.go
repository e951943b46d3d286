package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/google/shlex"

	"pipetter/host/robot"
	"pipetter/host/serial"
)

var (
	device  = flag.String("device", "/dev/ttyACM0", "Serial device path")
	baud    = flag.Int("baud", 115200, "Baud rate (ignored for USB CDC)")
	timeout = flag.Duration("timeout", robot.DefaultTimeout, "Per-command reply timeout")
	script  = flag.String("script", "", "Run a command file and exit")
	verbose = flag.Bool("verbose", false, "Echo the G-code sent for each command")
)

func main() {
	flag.Parse()

	cfg := serial.DefaultConfig(*device)
	cfg.Baud = *baud

	fmt.Printf("Connecting to pipetter on %s...\n", *device)
	r, err := robot.ConnectWithConfig(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer r.Close()
	r.Timeout = *timeout

	// Ctrl-C aborts the command in flight on the robot, not just here
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	go func() {
		<-sigs
		_ = r.EmergencyStop()
		cancel()
	}()

	if *script != "" {
		if err := runFile(ctx, r, *script); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	fmt.Println("Enter commands (type 'help' for available commands, 'quit' to exit):")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		words, err := shlex.Split(line)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			continue
		}

		switch words[0] {
		case "quit", "exit", "q":
			fmt.Println("Goodbye!")
			return

		case "help", "?":
			printHelp()

		case "run":
			if len(words) != 2 {
				fmt.Println("usage: run <file>")
				continue
			}
			if err := runFile(ctx, r, words[1]); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}

		default:
			if err := exec(ctx, r, line); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}
		}
		if ctx.Err() != nil {
			fmt.Println("Interrupted, robot stopped")
			return
		}
	}

	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
		os.Exit(1)
	}
}

func exec(ctx context.Context, r *robot.Robot, line string) error {
	if *verbose {
		gcodes, err := robot.Translate(line)
		if err != nil {
			return err
		}
		fmt.Printf("  -> %s\n", strings.Join(gcodes, " | "))
	}
	start := time.Now()
	if err := r.Exec(ctx, line, os.Stdout); err != nil {
		return err
	}
	if *verbose {
		fmt.Printf("  (%v)\n", time.Since(start).Round(time.Millisecond))
	}
	return nil
}

func runFile(ctx context.Context, r *robot.Robot, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	fmt.Printf("Running %s...\n", path)
	if err := r.RunScript(ctx, f, os.Stdout); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	fmt.Println("Done.")
	return nil
}

func printHelp() {
	fmt.Println("\nAvailable commands:")
	for _, c := range robot.Commands {
		fmt.Println("  " + c.Usage)
	}
	fmt.Println("  run <file>                run a command file")
	fmt.Println("  help                      show this help message")
	fmt.Println("  quit/exit/q               exit the program")
	fmt.Println()
}
