package dispatch

// Settings describes where a ticket should be printed.
type Settings struct {
	// USBPort is the local printer: a spooler queue name, a device node or
	// a serial port. Empty disables the USB class.
	USBPort string `json:"usb_port" mapstructure:"usb_port"`

	// BaudRate is used for the serial fallback. Zero means the port is not
	// serial-capable and that step is skipped.
	BaudRate uint32 `json:"baud_rate" mapstructure:"baud_rate"`

	// NetworkIP is the "host:port" of a network printer. Empty disables the
	// network class.
	NetworkIP string `json:"network_ip" mapstructure:"network_ip"`
}

// Problem is a settings validation failure.
type Problem int

const (
	// NoPrinterConfigured means neither a USB port nor a network address is set.
	NoPrinterConfigured Problem = iota + 1
	// InvalidBaudRate means a USB port is set without a baud rate.
	InvalidBaudRate
)

func (p Problem) Error() string {
	switch p {
	case NoPrinterConfigured:
		return "No printers configured"
	case InvalidBaudRate:
		return "Invalid baud rate for USB printer"
	default:
		return "Invalid printer settings"
	}
}

// Validate checks every rule and returns all problems found. An empty
// result means the settings are usable.
func Validate(s Settings) []Problem {
	var problems []Problem

	if s.USBPort == "" && s.NetworkIP == "" {
		problems = append(problems, NoPrinterConfigured)
	}
	if s.USBPort != "" && s.BaudRate == 0 {
		problems = append(problems, InvalidBaudRate)
	}

	return problems
}
