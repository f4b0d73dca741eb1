package transport

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/nixxel-company-limited/kot-dispatch/adapter"
)

// USBOpener resolves a printer name to an unopened device handle.
type USBOpener func(device string, timeout time.Duration, logger *zap.Logger) (adapter.Adapter, error)

func openUSB(device string, timeout time.Duration, logger *zap.Logger) (adapter.Adapter, error) {
	usb, err := adapter.NewUSBAdapter(device, timeout, logger)
	if err != nil {
		return nil, err
	}
	return usb, nil
}

// Spooler writes the payload to the printer as an uninterpreted (RAW) job,
// so the control codes already embedded in it reach the device untouched.
// On Windows it goes through the print spooler; elsewhere it writes straight
// to the USB printer-class endpoint or the kernel line-printer device.
type Spooler struct {
	device  string
	timeout time.Duration
	openUSB USBOpener
	logger  *zap.Logger
}

// NewSpooler creates a raw spooler attempt for device.
func NewSpooler(device string, timeout time.Duration, logger *zap.Logger) *Spooler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Spooler{device: device, timeout: timeout, openUSB: openUSB, logger: logger.Named("spooler")}
}

// WithUSBOpener replaces how non-device-node names are opened when there is
// no system spooler.
func (s *Spooler) WithUSBOpener(open USBOpener) *Spooler {
	s.openUSB = open
	return s
}

// Method implements Attempt.
func (s *Spooler) Method() string {
	return MethodSpooler
}

// Send implements Attempt.
func (s *Spooler) Send(ctx context.Context, payload []byte) error {
	err := bounded(ctx, s.timeout, func(context.Context) error {
		return s.writeRaw(payload)
	})
	if err == nil {
		return nil
	}
	if isTimeout(err) {
		return failure(ClassUSB, MethodSpooler, "Raw print timed out on "+s.device, wrapTimeout(err))
	}
	return failure(ClassUSB, MethodSpooler, err.Error(), err)
}
