package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/nixxel-company-limited/kot-dispatch/adapter"
)

// Serial writes the payload to a serial port and waits for the printer to
// drain its buffer before closing the port.
type Serial struct {
	port    string
	baud    int
	timeout time.Duration
	settle  time.Duration
	open    func() adapter.Adapter
}

// NewSerial creates a serial attempt. timeout bounds the whole open, write
// and flush; settle is the pause after the flush.
func NewSerial(port string, baud int, timeout, settle time.Duration) *Serial {
	s := &Serial{port: port, baud: baud, timeout: timeout, settle: settle}
	s.open = func() adapter.Adapter {
		return adapter.NewSerialAdapter(s.port, s.baud, s.timeout)
	}
	return s
}

// WithAdapter replaces the adapter factory.
func (s *Serial) WithAdapter(open func() adapter.Adapter) *Serial {
	s.open = open
	return s
}

// Method implements Attempt.
func (s *Serial) Method() string {
	return MethodSerial
}

// Send implements Attempt.
func (s *Serial) Send(ctx context.Context, payload []byte) error {
	err := bounded(ctx, s.timeout, func(ctx context.Context) error {
		port := s.open()
		if err := port.Open(); err != nil {
			return err
		}
		defer port.Close()

		if err := adapter.WriteAll(port, payload); err != nil {
			return err
		}
		return sleep(ctx, s.settle)
	})
	if err == nil {
		return nil
	}

	if isTimeout(err) {
		return failure(ClassUSB, MethodSerial,
			fmt.Sprintf("Serial port %s timed out after %s", s.port, s.timeout), wrapTimeout(err))
	}
	return failure(ClassUSB, MethodSerial, err.Error(), err)
}
