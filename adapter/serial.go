package adapter

import (
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"
)

// SerialAdapter talks to a printer attached to a serial (or USB-serial) port.
type SerialAdapter struct {
	portName string
	baudRate int
	timeout  time.Duration
	port     serial.Port
	open     func(name string, mode *serial.Mode) (serial.Port, error)
	mu       sync.Mutex
}

// NewSerialAdapter creates an adapter for portName at baudRate. timeout is
// applied to reads; writes are bounded by the caller.
func NewSerialAdapter(portName string, baudRate int, timeout time.Duration) *SerialAdapter {
	return &SerialAdapter{
		portName: portName,
		baudRate: baudRate,
		timeout:  timeout,
		open:     serial.Open,
	}
}

// Open opens the port with 8N1 framing.
func (a *SerialAdapter) Open() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.port != nil {
		return errAlreadyOpen
	}

	port, err := a.open(a.portName, &serial.Mode{
		BaudRate: a.baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", a.portName, err)
	}
	if a.timeout > 0 {
		if err := port.SetReadTimeout(a.timeout); err != nil {
			port.Close()
			return fmt.Errorf("failed to set timeout on %s: %w", a.portName, err)
		}
	}

	a.port = port
	return nil
}

// Write sends data to the port.
func (a *SerialAdapter) Write(data []byte) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.port == nil {
		return 0, errNotOpen
	}
	n, err := a.port.Write(data)
	if err != nil {
		return n, fmt.Errorf("failed to write to port %s: %w", a.portName, err)
	}
	return n, nil
}

// Read reads from the port, returning after the read timeout when idle.
func (a *SerialAdapter) Read(buf []byte) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.port == nil {
		return 0, errNotOpen
	}
	return a.port.Read(buf)
}

// Flush blocks until the OS transmit buffer has drained to the wire.
func (a *SerialAdapter) Flush() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.port == nil {
		return errNotOpen
	}
	if err := a.port.Drain(); err != nil {
		return fmt.Errorf("failed to flush port %s: %w", a.portName, err)
	}
	return nil
}

// Close closes the port. Closing a closed adapter is a no-op.
func (a *SerialAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.port == nil {
		return nil
	}
	err := a.port.Close()
	a.port = nil
	return err
}

// IsOpen returns whether the port is open
func (a *SerialAdapter) IsOpen() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.port != nil
}
