// Package config loads runtime settings from flags, KOT_* environment
// variables and an optional config file, in that order of precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/nixxel-company-limited/kot-dispatch/dispatch"
	"github.com/nixxel-company-limited/kot-dispatch/receipt"
)

// EnvPrefix is prepended to every environment variable, e.g.
// KOT_PRINTER_USB_PORT for printer.usb_port.
const EnvPrefix = "KOT"

// Config is the full runtime configuration.
type Config struct {
	Printer  dispatch.Settings `mapstructure:"printer"`
	Timeouts Timeouts          `mapstructure:"timeouts"`
	Store    Store             `mapstructure:"store"`
	Relay    Relay             `mapstructure:"relay"`
	Log      Log               `mapstructure:"log"`
	Receipt  receipt.Config    `mapstructure:"receipt"`
}

// Timeouts bounds the blocking work done while printing.
type Timeouts struct {
	// Print bounds each transport attempt.
	Print time.Duration `mapstructure:"print"`
	// Settle is the pause after a serial write before the port is closed.
	Settle time.Duration `mapstructure:"settle"`
}

// Store configures where orders and print status are kept.
type Store struct {
	// Path of the bolt database. Empty keeps everything in memory.
	Path string `mapstructure:"path"`
}

// Relay configures the TCP to USB printer relay.
type Relay struct {
	Address string `mapstructure:"address"`
	// Device selects the USB printer: "auto", "VVVV:PPPP" or a serial number.
	Device string `mapstructure:"device"`
}

// Log configures the zap logger.
type Log struct {
	Development bool `mapstructure:"development"`
}

var defaults = map[string]any{
	"printer.usb_port":        "",
	"printer.baud_rate":       0,
	"printer.network_ip":      "",
	"timeouts.print":          dispatch.DefaultTimeout,
	"timeouts.settle":         dispatch.DefaultSettle,
	"store.path":              "",
	"relay.address":           "localhost:9100",
	"relay.device":            "auto",
	"log.development":         false,
	"receipt.composite_types": receipt.DefaultCompositeTypes,
	"receipt.disclaimer":      receipt.DefaultDisclaimer,
}

// Flags returns a flag set with one flag per configuration key plus
// --config.
func Flags(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.String("config", "", "path to a config file (yaml, json or toml)")
	fs.String("printer.usb_port", "", "local printer: spooler queue, device node or serial port")
	fs.Uint32("printer.baud_rate", 0, "baud rate for the serial fallback")
	fs.String("printer.network_ip", "", "network printer host:port")
	fs.Duration("timeouts.print", dispatch.DefaultTimeout, "timeout for each print attempt")
	fs.Duration("timeouts.settle", dispatch.DefaultSettle, "pause after a serial write")
	fs.String("store.path", "", "bolt database path (empty keeps state in memory)")
	fs.String("relay.address", "localhost:9100", "relay listen address")
	fs.String("relay.device", "auto", `relay USB printer: "auto", "VVVV:PPPP" or serial number`)
	fs.Bool("log.development", false, "human readable debug logging")
	fs.StringSlice("receipt.composite_types", receipt.DefaultCompositeTypes, "item types printed with a flavor breakdown")
	fs.String("receipt.disclaimer", receipt.DefaultDisclaimer, "line printed under the totals")
	return fs
}

// Load resolves the configuration. flags may be nil; otherwise it should
// come from Flags and already be parsed.
func Load(flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// SERVER_ADDRESS is the relay's historical variable.
	if err := v.BindEnv("relay.address", EnvPrefix+"_RELAY_ADDRESS", "SERVER_ADDRESS"); err != nil {
		return Config{}, err
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("failed to bind flags: %w", err)
		}
		if path, _ := flags.GetString("config"); path != "" {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

// Settings returns the printer settings for dispatch.
func (c Config) Settings() dispatch.Settings {
	return c.Printer
}

// Transports returns the dispatch transports for these timeouts.
func (c Config) Transports() dispatch.DefaultTransports {
	return dispatch.DefaultTransports{Timeout: c.Timeouts.Print, Settle: c.Timeouts.Settle}
}
