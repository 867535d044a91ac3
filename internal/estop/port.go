package estop

import (
	"fmt"
	"io"

	"go.bug.st/serial"
)

// Porter is the minimal surface the mux needs from a monitor port.
type Porter interface {
	io.ReadWriteCloser
}

// PortOptions configures the serial link to the emergency-stop monitor.
type PortOptions struct {
	BaudRate int
	DataBits int
	StopBits int
	Parity   string
}

// Normalize applies defaults and validates option values.
func (o *PortOptions) Normalize() error {
	if o.BaudRate == 0 {
		o.BaudRate = 19200
	}
	if o.BaudRate < 0 {
		return fmt.Errorf("invalid baud rate: %d", o.BaudRate)
	}
	if o.DataBits == 0 {
		o.DataBits = 8
	}
	if o.DataBits < 5 || o.DataBits > 8 {
		return fmt.Errorf("invalid data bits: %d", o.DataBits)
	}
	if o.StopBits == 0 {
		o.StopBits = 1
	}
	if o.StopBits != 1 && o.StopBits != 2 {
		return fmt.Errorf("invalid stop bits: %d", o.StopBits)
	}
	if o.Parity == "" {
		o.Parity = "N"
	}
	switch o.Parity {
	case "N", "E", "O":
	default:
		return fmt.Errorf("invalid parity: %q", o.Parity)
	}
	return nil
}

// SerialMode converts the options into a go.bug.st/serial mode.
func (o *PortOptions) SerialMode() (*serial.Mode, error) {
	if err := o.Normalize(); err != nil {
		return nil, err
	}
	mode := &serial.Mode{
		BaudRate: o.BaudRate,
		DataBits: o.DataBits,
	}
	switch o.StopBits {
	case 1:
		mode.StopBits = serial.OneStopBit
	case 2:
		mode.StopBits = serial.TwoStopBits
	}
	switch o.Parity {
	case "N":
		mode.Parity = serial.NoParity
	case "E":
		mode.Parity = serial.EvenParity
	case "O":
		mode.Parity = serial.OddParity
	}
	return mode, nil
}

// NewSerialMux opens the monitor device at path and wraps it in a mux.
func NewSerialMux(path string, opts PortOptions) (*Mux[serial.Port], error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open emergency stop monitor port %s: %w", path, err)
	}
	return NewMux(port), nil
}
