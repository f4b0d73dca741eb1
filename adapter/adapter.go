// Package adapter provides device handles for receipt printers.
package adapter

// Adapter defines the interface for printer communication adapters
type Adapter interface {
	// Open opens the connection to the printer
	Open() error

	// Write sends data to the printer
	Write(data []byte) (int, error)

	// Read reads data from the printer
	Read(buf []byte) (int, error)

	// Close closes the connection to the printer
	Close() error

	// IsOpen returns whether the connection is open
	IsOpen() bool
}

// Flusher is implemented by adapters that buffer writes and can push them
// out to the device.
type Flusher interface {
	Flush() error
}

// WriteAll writes the whole of data to a, retrying short writes, and then
// flushes it when a is a Flusher.
func WriteAll(a Adapter, data []byte) error {
	for len(data) > 0 {
		n, err := a.Write(data)
		if err != nil {
			return err
		}
		if n == 0 {
			return errShortWrite
		}
		data = data[n:]
	}
	if f, ok := a.(Flusher); ok {
		return f.Flush()
	}
	return nil
}
