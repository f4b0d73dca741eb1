//go:build !windows

package transport

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/nixxel-company-limited/kot-dispatch/adapter"
)

// writeRaw has no spooler to talk to, so it goes to the device itself: a
// kernel printer node such as /dev/usb/lp0 is written as a file, anything
// else is resolved as a USB printer (VID:PID, serial number or "auto").
func (s *Spooler) writeRaw(payload []byte) error {
	if strings.HasPrefix(s.device, "/dev/") {
		return s.writeDeviceFile(payload)
	}

	usb, err := s.openUSB(s.device, s.timeout, s.logger)
	if err != nil {
		return fmt.Errorf("OpenPrinter failed: %w", err)
	}
	defer usb.Close()

	if err := usb.Open(); err != nil {
		return fmt.Errorf("OpenPrinter failed: %w", err)
	}
	if err := adapter.WriteAll(usb, payload); err != nil {
		return fmt.Errorf("WritePrinter failed: %w", err)
	}

	s.logger.Debug("raw job written to usb endpoint", zap.String("device", s.device), zap.Int("bytes", len(payload)))
	return nil
}

func (s *Spooler) writeDeviceFile(payload []byte) error {
	f, err := os.OpenFile(s.device, os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("OpenPrinter failed: %w", err)
	}

	if _, err := f.Write(payload); err != nil {
		f.Close()
		return fmt.Errorf("WritePrinter failed: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("ClosePrinter failed: %w", err)
	}

	s.logger.Debug("raw job written to device node", zap.String("device", s.device), zap.Int("bytes", len(payload)))
	return nil
}
