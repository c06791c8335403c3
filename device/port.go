package device

import (
	"time"

	"go.bug.st/serial"
)

// Port abstracts the subset of a serial port handle used by Conn. The
// production implementation is go.bug.st/serial; tests substitute in-memory
// fakes through Config.WithPortOpener.
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
	// SetReadTimeout bounds a single Read call. A timed-out Read returns
	// (0, nil), matching go.bug.st/serial semantics.
	SetReadTimeout(d time.Duration) error
}

// PortOpener opens the serial port at path with the given baud rate.
type PortOpener func(path string, baudRate int) (Port, error)

// OpenSerialPort is the default PortOpener, backed by go.bug.st/serial
// with 8N1 framing.
func OpenSerialPort(path string, baudRate int) (Port, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, err
	}

	return port, nil
}
