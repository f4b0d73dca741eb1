package adapter

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/google/gousb"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Interface class codes
// Reference: http://www.usb.org/developers/defined_class
const (
	IfaceClassPrinter = 0x07
)

var vidPIDPattern = regexp.MustCompile(`^(?:usb:)?([0-9a-fA-F]{4}):([0-9a-fA-F]{4})$`)

// initContext panics when libusb cannot initialise, e.g. without usbfs.
var initContext = gousb.NewContext

// NewContext creates a libusb context, reporting an init failure as an
// error instead of a panic.
func NewContext() (ctx *gousb.Context, err error) {
	defer func() {
		if r := recover(); r != nil {
			ctx, err = nil, fmt.Errorf("libusb init failed: %v", r)
		}
	}()
	return initContext(), nil
}

// USBAdapter writes straight to the bulk OUT endpoint of a USB printer-class
// interface, bypassing any driver or spooler.
type USBAdapter struct {
	ctx         *gousb.Context
	device      *gousb.Device
	config      *gousb.Config
	iface       *gousb.Interface
	outEndpoint *gousb.OutEndpoint
	inEndpoint  *gousb.InEndpoint
	timeout     time.Duration
	logger      *zap.Logger
	isOpen      bool
	mu          sync.Mutex
}

// NewUSBAdapter locates the printer identified by name. Accepted names are
// "VVVV:PPPP" (hex vendor and product IDs, optionally prefixed with "usb:"),
// "auto" or "" for the first printer found, and anything else is matched
// against device serial numbers. timeout bounds each write; zero disables it.
func NewUSBAdapter(name string, timeout time.Duration, logger *zap.Logger) (*USBAdapter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, err := NewContext()
	if err != nil {
		return nil, err
	}

	device, err := resolveDevice(ctx, name, logger)
	if err != nil {
		ctx.Close()
		return nil, err
	}

	return &USBAdapter{
		ctx:     ctx,
		device:  device,
		timeout: timeout,
		logger:  logger.Named("usb"),
	}, nil
}

func resolveDevice(ctx *gousb.Context, name string, logger *zap.Logger) (*gousb.Device, error) {
	if name == "" || name == "auto" {
		devices := FindPrinters(ctx, logger)
		if len(devices) == 0 {
			return nil, ErrNoPrinter
		}
		for _, d := range devices[1:] {
			d.Close()
		}
		return devices[0], nil
	}

	if m := vidPIDPattern.FindStringSubmatch(name); m != nil {
		vid, _ := strconv.ParseUint(m[1], 16, 16)
		pid, _ := strconv.ParseUint(m[2], 16, 16)
		return GetDeviceByVIDPID(ctx, uint16(vid), uint16(pid))
	}

	return GetDeviceBySerial(ctx, name)
}

// IsPrinter checks if a device is a printer
func IsPrinter(dev *gousb.Device) bool {
	if dev == nil {
		return false
	}

	cfg, err := dev.ActiveConfigNum()
	if err != nil {
		return false
	}

	cfgDesc, err := dev.Config(cfg)
	if err != nil {
		return false
	}
	defer cfgDesc.Close()

	return printerInterface(cfgDesc) >= 0
}

func printerInterface(cfg *gousb.Config) int {
	for _, iface := range cfg.Desc.Interfaces {
		for _, alt := range iface.AltSettings {
			if alt.Class == IfaceClassPrinter {
				return iface.Number
			}
		}
	}
	return -1
}

// FindPrinters returns all USB printer devices. Devices that are not
// printers are closed.
func FindPrinters(ctx *gousb.Context, logger *zap.Logger) []*gousb.Device {
	var printers []*gousb.Device

	devices, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return true
	})
	if err != nil && len(devices) == 0 {
		logger.Debug("usb enumeration failed", zap.Error(err))
		return printers
	}

	for _, dev := range devices {
		if IsPrinter(dev) {
			logger.Debug("found usb printer", zap.String("device", dev.String()))
			printers = append(printers, dev)
		} else {
			dev.Close()
		}
	}

	return printers
}

// GetDeviceByVIDPID opens a device by VID and PID
func GetDeviceByVIDPID(ctx *gousb.Context, vid, pid uint16) (*gousb.Device, error) {
	device, err := ctx.OpenDeviceWithVIDPID(gousb.ID(vid), gousb.ID(pid))
	if err != nil {
		return nil, fmt.Errorf("open %04x:%04x: %w", vid, pid, err)
	}
	if device == nil {
		return nil, fmt.Errorf("%w: %04x:%04x", ErrNoPrinter, vid, pid)
	}
	return device, nil
}

// GetDeviceBySerial opens a device by serial number
func GetDeviceBySerial(ctx *gousb.Context, serial string) (*gousb.Device, error) {
	devices, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return true
	})
	if err != nil && len(devices) == 0 {
		return nil, err
	}

	var found *gousb.Device
	for _, dev := range devices {
		if found == nil {
			if s, err := dev.SerialNumber(); err == nil && s == serial {
				found = dev
				continue
			}
		}
		dev.Close()
	}

	if found == nil {
		return nil, fmt.Errorf("%w: serial number %q not found", ErrNoPrinter, serial)
	}
	return found, nil
}

// Open claims the printer interface and locates its endpoints.
func (a *USBAdapter) Open() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.isOpen {
		return errAlreadyOpen
	}
	if a.device == nil {
		return ErrNoPrinter
	}

	if runtime.GOOS == "linux" {
		a.device.SetAutoDetach(true)
	}

	cfgNum, err := a.device.ActiveConfigNum()
	if err != nil {
		return fmt.Errorf("failed to get active config: %w", err)
	}

	cfg, err := a.device.Config(cfgNum)
	if err != nil {
		return fmt.Errorf("failed to get config: %w", err)
	}

	num := printerInterface(cfg)
	if num < 0 {
		cfg.Close()
		return errors.New("no printer interface found")
	}

	iface, err := cfg.Interface(num, 0)
	if err != nil {
		cfg.Close()
		return fmt.Errorf("failed to claim interface: %w", err)
	}

	for _, epDesc := range iface.Setting.Endpoints {
		if epDesc.Direction == gousb.EndpointDirectionOut && a.outEndpoint == nil {
			if ep, err := iface.OutEndpoint(epDesc.Number); err == nil {
				a.outEndpoint = ep
			}
		}
		if epDesc.Direction == gousb.EndpointDirectionIn && a.inEndpoint == nil {
			if ep, err := iface.InEndpoint(epDesc.Number); err == nil {
				a.inEndpoint = ep
			}
		}
	}

	if a.outEndpoint == nil {
		iface.Close()
		cfg.Close()
		return errors.New("cannot find output endpoint from printer")
	}

	a.config = cfg
	a.iface = iface
	a.isOpen = true
	a.logger.Debug("usb printer opened", zap.Int("interface", num))

	return nil
}

// Write sends data to the bulk OUT endpoint.
func (a *USBAdapter) Write(data []byte) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.isOpen {
		return 0, errNotOpen
	}

	ctx := context.Background()
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	n, err := a.outEndpoint.WriteContext(ctx, data)
	if err != nil {
		return n, fmt.Errorf("write failed: %w", err)
	}
	return n, nil
}

// Read reads status bytes from the IN endpoint when the printer has one.
func (a *USBAdapter) Read(buf []byte) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.isOpen {
		return 0, errNotOpen
	}
	if a.inEndpoint == nil {
		return 0, errors.New("input endpoint not available")
	}

	n, err := a.inEndpoint.Read(buf)
	if err != nil {
		return n, fmt.Errorf("read failed: %w", err)
	}
	return n, nil
}

// Close releases the interface, the device and the libusb context. It is
// safe to call on an adapter that was never opened.
func (a *USBAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var err error

	if a.iface != nil {
		a.iface.Close()
		a.iface = nil
	}
	if a.config != nil {
		err = multierr.Append(err, a.config.Close())
		a.config = nil
	}
	if a.device != nil {
		err = multierr.Append(err, a.device.Close())
		a.device = nil
	}
	if a.ctx != nil {
		err = multierr.Append(err, a.ctx.Close())
		a.ctx = nil
	}

	a.outEndpoint = nil
	a.inEndpoint = nil
	a.isOpen = false

	if err != nil {
		return fmt.Errorf("close errors: %w", err)
	}
	return nil
}

// IsOpen returns whether the device is open
func (a *USBAdapter) IsOpen() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.isOpen
}
