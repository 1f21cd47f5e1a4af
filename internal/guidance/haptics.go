package guidance

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
)

// Haptics drives a vibration motor.
type Haptics interface {
	Vibrate(pattern []time.Duration) error
}

// Port is the minimal serial port surface the haptics driver needs.
type Port interface {
	io.Writer
	io.Closer
}

// PortOptions describes the serial link to the vibration controller.
type PortOptions struct {
	BaudRate int    `json:"baud_rate"`
	DataBits int    `json:"data_bits"`
	StopBits int    `json:"stop_bits"`
	Parity   string `json:"parity"`
}

// Normalize validates the options and fills defaults (115200 8N1).
func (o PortOptions) Normalize() (PortOptions, error) {
	if o.BaudRate <= 0 {
		o.BaudRate = 115200
	}
	if o.DataBits == 0 {
		o.DataBits = 8
	}
	if o.DataBits < 5 || o.DataBits > 8 {
		return o, fmt.Errorf("invalid data bits %d: must be between 5 and 8", o.DataBits)
	}
	if o.StopBits == 0 {
		o.StopBits = 1
	}
	if o.StopBits != 1 && o.StopBits != 2 {
		return o, fmt.Errorf("invalid stop bits %d: supported values are 1 or 2", o.StopBits)
	}
	switch p := strings.ToUpper(strings.TrimSpace(o.Parity)); p {
	case "", "N", "NONE":
		o.Parity = "N"
	case "E", "EVEN":
		o.Parity = "E"
	case "O", "ODD":
		o.Parity = "O"
	default:
		return o, fmt.Errorf("unsupported parity %q: expected N, E, or O", o.Parity)
	}
	return o, nil
}

// SerialMode converts the options for go.bug.st/serial.
func (o PortOptions) SerialMode() (*serial.Mode, error) {
	n, err := o.Normalize()
	if err != nil {
		return nil, err
	}
	mode := &serial.Mode{BaudRate: n.BaudRate, DataBits: n.DataBits, Parity: serial.NoParity, StopBits: serial.OneStopBit}
	switch n.Parity {
	case "E":
		mode.Parity = serial.EvenParity
	case "O":
		mode.Parity = serial.OddParity
	}
	if n.StopBits == 2 {
		mode.StopBits = serial.TwoStopBits
	}
	return mode, nil
}

// SerialHaptics sends patterns to a microcontroller as text lines:
//
//	VIB 300,150,300\n
//
// Each number is a duration in milliseconds, alternating on and off.
type SerialHaptics struct {
	mu   sync.Mutex
	port Port
}

// NewSerialHaptics wraps an open port.
func NewSerialHaptics(port Port) *SerialHaptics {
	return &SerialHaptics{port: port}
}

// OpenSerialHaptics opens the serial device at path.
func OpenSerialHaptics(path string, opts PortOptions) (*SerialHaptics, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open haptics port %s: %w", path, err)
	}
	return NewSerialHaptics(port), nil
}

// Vibrate implements Haptics.
func (h *SerialHaptics) Vibrate(pattern []time.Duration) error {
	if len(pattern) == 0 {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.port, EncodePattern(pattern))
	return err
}

// Close closes the underlying port.
func (h *SerialHaptics) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.port.Close()
}

// EncodePattern renders a pattern as a VIB command line.
func EncodePattern(pattern []time.Duration) string {
	parts := make([]string, len(pattern))
	for i, d := range pattern {
		parts[i] = strconv.FormatInt(d.Milliseconds(), 10)
	}
	return "VIB " + strings.Join(parts, ",") + "\n"
}
