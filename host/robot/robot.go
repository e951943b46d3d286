// Package robot talks to the pipetter firmware console over a serial port:
// one G-code line out, reply lines back until "ok" or "!! <error>".
package robot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"pipetter/host/serial"
)

// DefaultTimeout bounds a single command. Homing a long axis at the
// slowest class is the longest operation.
const DefaultTimeout = 2 * time.Minute

var (
	ErrNotConnected = errors.New("not connected to robot")
	ErrClosed       = errors.New("connection closed")
)

// RemoteError is a "!!" reply from the firmware
type RemoteError struct {
	Line    string
	Message string
}

func (e *RemoteError) Error() string {
	return e.Line + ": " + e.Message
}

// Robot is a console connection to the firmware
type Robot struct {
	port  serial.Port
	lines chan string

	mu      sync.Mutex // one command in flight
	readErr error
	closing atomic.Bool
	done    chan struct{}

	Timeout time.Duration
}

// Position is a parsed M114 report
type Position struct {
	MM    [3]float64
	Steps [3]int32
	Axes  int
}

// Connect opens device with the default console settings
func Connect(device string) (*Robot, error) {
	return ConnectWithConfig(serial.DefaultConfig(device))
}

// ConnectWithConfig opens a serial port and attaches a robot to it
func ConnectWithConfig(cfg *serial.Config) (*Robot, error) {
	port, err := serial.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port: %w", err)
	}
	// Drop a banner or stale replies from an earlier session
	if err := port.Flush(); err != nil {
		port.Close()
		return nil, err
	}
	return New(port), nil
}

// New attaches a robot to an open port and starts reading replies
func New(port serial.Port) *Robot {
	r := &Robot{
		port:    port,
		lines:   make(chan string, 64),
		done:    make(chan struct{}),
		Timeout: DefaultTimeout,
	}
	go r.readLoop()
	return r
}

// readLoop splits the port stream into lines. A native port with a read
// timeout returns io.EOF on every idle interval, which is not an error.
func (r *Robot) readLoop() {
	defer close(r.done)
	defer close(r.lines)

	buf := make([]byte, 256)
	var line bytes.Buffer
	for {
		n, err := r.port.Read(buf)
		for _, b := range buf[:n] {
			switch b {
			case '\r':
			case '\n':
				r.lines <- line.String()
				line.Reset()
			default:
				line.WriteByte(b)
			}
		}
		if err == nil || (err == io.EOF && !r.closing.Load()) {
			continue
		}
		if !r.closing.Load() {
			r.readErr = err
		}
		return
	}
}

// Close closes the connection to the robot
func (r *Robot) Close() error {
	r.closing.Store(true)
	return r.port.Close()
}

// IsConnected reports whether the reader is still running
func (r *Robot) IsConnected() bool {
	select {
	case <-r.done:
		return false
	default:
		return true
	}
}

// Send writes one G-code line and collects the reply lines before the
// final "ok". A "!!" reply is returned as a *RemoteError.
func (r *Robot) Send(ctx context.Context, line string) ([]string, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := io.WriteString(r.port, line+"\n"); err != nil {
		return nil, fmt.Errorf("write %q: %w", line, err)
	}

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var replies []string
	for {
		select {
		case reply, ok := <-r.lines:
			if !ok {
				if r.readErr != nil {
					return replies, fmt.Errorf("%w: %v", ErrClosed, r.readErr)
				}
				return replies, ErrClosed
			}
			switch {
			case reply == "ok":
				return replies, nil
			case strings.HasPrefix(reply, "!! "):
				return replies, &RemoteError{Line: line, Message: strings.TrimPrefix(reply, "!! ")}
			case reply == "", strings.HasPrefix(reply, "//"):
				// Blank or firmware debug output
			default:
				replies = append(replies, reply)
			}
		case <-timer.C:
			return replies, fmt.Errorf("%q: no reply within %v", line, timeout)
		case <-ctx.Done():
			return replies, ctx.Err()
		}
	}
}

// EmergencyStop sends M112 without waiting for the line in flight
func (r *Robot) EmergencyStop() error {
	_, err := io.WriteString(r.port, "M112\n")
	return err
}

// QueryPosition sends M114 and parses the report
func (r *Robot) QueryPosition(ctx context.Context) (*Position, error) {
	replies, err := r.Send(ctx, "M114")
	if err != nil {
		return nil, err
	}
	for _, reply := range replies {
		if pos, err := ParsePosition(reply); err == nil {
			return pos, nil
		}
	}
	return nil, errors.New("no position report in reply")
}

// ParsePosition parses "X:1.00 Y:2.00 Z:0.50 Count X:80 Y:160 Z:20"
func ParsePosition(report string) (*Position, error) {
	mm, counts, ok := strings.Cut(report, " Count")
	if !ok {
		return nil, fmt.Errorf("malformed position report %q", report)
	}

	pos := &Position{}
	for _, field := range strings.Fields(mm) {
		id, value, err := axisField(field)
		if err != nil {
			return nil, err
		}
		if pos.MM[id], err = strconv.ParseFloat(value, 64); err != nil {
			return nil, fmt.Errorf("axis %s: %w", field, err)
		}
		pos.Axes++
	}
	for _, field := range strings.Fields(counts) {
		id, value, err := axisField(field)
		if err != nil {
			return nil, err
		}
		n, err := strconv.ParseInt(value, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("axis %s: %w", field, err)
		}
		pos.Steps[id] = int32(n)
	}
	return pos, nil
}

func axisField(field string) (int, string, error) {
	name, value, ok := strings.Cut(field, ":")
	if !ok || len(name) != 1 {
		return 0, "", fmt.Errorf("malformed field %q", field)
	}
	id := strings.IndexByte("XYZ", name[0])
	if id < 0 {
		return 0, "", fmt.Errorf("unknown axis in %q", field)
	}
	return id, value, nil
}
