//go:build windows

package transport

import (
	"errors"
	"fmt"
	"syscall"
	"unsafe"

	"go.uber.org/zap"
	"golang.org/x/sys/windows"
)

var (
	winspool            = windows.NewLazySystemDLL("winspool.drv")
	procOpenPrinter     = winspool.NewProc("OpenPrinterW")
	procStartDocPrinter = winspool.NewProc("StartDocPrinterW")
	procWritePrinter    = winspool.NewProc("WritePrinter")
	procEndDocPrinter   = winspool.NewProc("EndDocPrinter")
	procClosePrinter    = winspool.NewProc("ClosePrinter")
	rawDocName, _       = windows.UTF16PtrFromString("KOT Print")
	rawDataType, _      = windows.UTF16PtrFromString("RAW")
)

// docInfo1 mirrors DOC_INFO_1W.
type docInfo1 struct {
	DocName    *uint16
	OutputFile *uint16
	Datatype   *uint16
}

func lastError(err error) uint32 {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return uint32(errno)
	}
	return 0
}

// writeRaw opens the queue, starts a RAW document, writes the payload in one
// call and always ends the document and closes the handle.
func (s *Spooler) writeRaw(payload []byte) error {
	if len(payload) == 0 {
		return errors.New("WritePrinter failed: empty payload")
	}

	name, err := windows.UTF16PtrFromString(s.device)
	if err != nil {
		return fmt.Errorf("Invalid printer name: %w", err)
	}

	var handle windows.Handle
	r, _, callErr := procOpenPrinter.Call(uintptr(unsafe.Pointer(name)), uintptr(unsafe.Pointer(&handle)), 0)
	if r == 0 {
		return fmt.Errorf("OpenPrinter failed with error code: %d", lastError(callErr))
	}
	defer procClosePrinter.Call(uintptr(handle))

	doc := docInfo1{DocName: rawDocName, Datatype: rawDataType}
	r, _, callErr = procStartDocPrinter.Call(uintptr(handle), 1, uintptr(unsafe.Pointer(&doc)))
	if r == 0 {
		return fmt.Errorf("StartDocPrinter failed: %d", lastError(callErr))
	}
	defer procEndDocPrinter.Call(uintptr(handle))

	var written uint32
	r, _, callErr = procWritePrinter.Call(
		uintptr(handle),
		uintptr(unsafe.Pointer(&payload[0])),
		uintptr(len(payload)),
		uintptr(unsafe.Pointer(&written)))
	if r == 0 {
		return fmt.Errorf("WritePrinter failed: %d", lastError(callErr))
	}
	if int(written) != len(payload) {
		return fmt.Errorf("WritePrinter wrote %d of %d bytes", written, len(payload))
	}

	s.logger.Debug("raw job spooled", zap.String("device", s.device), zap.Uint32("bytes", written))
	return nil
}
