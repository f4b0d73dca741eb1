// Package dispatch sends a rendered ticket to every configured printer and
// reports one combined outcome.
//
// There are two independent transport classes. The USB class runs a
// fallback chain (raw spooler, OS print command, serial port) and succeeds
// if any method does. The network class is a single socket write. The call
// only succeeds when every configured class succeeds, but each class that
// did print is recorded in the status store regardless.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/nixxel-company-limited/kot-dispatch/transport"
)

// SuccessMessage is returned when every configured class printed.
const SuccessMessage = "Successfully sent print job(s)."

// Status store channels.
const (
	ChannelUSB     = "usb"
	ChannelNetwork = "network"
)

// Default timing for the built-in transports.
const (
	DefaultTimeout = 10 * time.Second
	DefaultSettle  = 100 * time.Millisecond
)

// StatusStore records which channels an order was printed on.
// Implementations serialize their own writes.
type StatusStore interface {
	SetPrintStatus(ctx context.Context, orderID int64, channel string, success bool) error
}

// Transports builds the attempts for a set of printer settings.
type Transports interface {
	// USB returns the fallback chain for the local printer, in order.
	USB(s Settings) []transport.Attempt

	// Network returns the single attempt for the network printer.
	Network(s Settings) transport.Attempt
}

// DefaultTransports wires the real spooler, print command, serial and
// network attempts.
type DefaultTransports struct {
	Timeout time.Duration
	Settle  time.Duration
	Logger  *zap.Logger
}

// USB implements Transports. The serial step is only included when the
// settings carry a baud rate.
func (d DefaultTransports) USB(s Settings) []transport.Attempt {
	attempts := []transport.Attempt{
		transport.NewSpooler(s.USBPort, d.timeout(), d.Logger),
		transport.NewCommand(s.USBPort, d.Logger),
	}
	if s.BaudRate > 0 {
		attempts = append(attempts, transport.NewSerial(s.USBPort, int(s.BaudRate), d.timeout(), d.settle()))
	}
	return attempts
}

// Network implements Transports.
func (d DefaultTransports) Network(s Settings) transport.Attempt {
	return transport.NewNetwork(s.NetworkIP, d.timeout())
}

func (d DefaultTransports) timeout() time.Duration {
	if d.Timeout <= 0 {
		return DefaultTimeout
	}
	return d.Timeout
}

func (d DefaultTransports) settle() time.Duration {
	if d.Settle < 0 {
		return 0
	}
	if d.Settle == 0 {
		return DefaultSettle
	}
	return d.Settle
}

// Coordinator is the entry point for printing a ticket.
type Coordinator struct {
	store      StatusStore
	transports Transports
	logger     *zap.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithTransports replaces the attempt factory.
func WithTransports(t Transports) Option {
	return func(c *Coordinator) {
		c.transports = t
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a coordinator that records print status in store. store may
// be shared with other goroutines.
func New(store StatusStore, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:  store,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("dispatch")
	if c.transports == nil {
		c.transports = DefaultTransports{Logger: c.logger}
	}
	return c
}

// Dispatch prints payload on every printer configured in settings.
//
// Empty payloads and invalid settings are rejected before any I/O. Each
// configured class is then attempted in turn (USB first). A class that
// prints has its status persisted; a persistence failure is only logged.
// Any class failure makes the whole call fail, with one message per failed
// class, even if another class printed.
func (c *Coordinator) Dispatch(ctx context.Context, orderID int64, payload []byte, settings Settings) (string, error) {
	logger := c.logger.With(zap.Int64("order_id", orderID), zap.String("dispatch_id", uuid.NewString()))

	if len(payload) == 0 {
		logger.Error("print content cannot be empty")
		return "", &Error{Kind: KindEmptyContent, Message: ErrEmptyContent.Error(), Cause: ErrEmptyContent}
	}

	if problems := Validate(settings); len(problems) > 0 {
		var err error
		for _, p := range problems {
			err = multierr.Append(err, p)
		}
		msg := joinMessages(err)
		logger.Error("invalid printer settings", zap.String("problems", msg))
		return "", &Error{Kind: KindInvalidSettings, Message: msg, Cause: err}
	}

	var (
		failures  error
		delivered []transport.Class
	)

	if settings.USBPort != "" {
		chain := NewChain(logger.With(zap.String("class", string(transport.ClassUSB))), c.transports.USB(settings)...)
		report, err := chain.Run(ctx, payload)
		if err == nil {
			method, _ := report.Winner()
			logger.Info("usb print successful", zap.String("method", method))
			delivered = append(delivered, transport.ClassUSB)
			c.persist(ctx, logger, orderID, ChannelUSB)
		} else {
			logger.Error("usb printer error", zap.Error(err))
			failures = multierr.Append(failures, fmt.Errorf("%s: %w", transport.ClassUSB, err))
		}
	}

	if settings.NetworkIP != "" {
		err := c.transports.Network(settings).Send(ctx, payload)
		if err == nil {
			logger.Info("network print successful", zap.String("address", settings.NetworkIP))
			delivered = append(delivered, transport.ClassNetwork)
			c.persist(ctx, logger, orderID, ChannelNetwork)
		} else {
			logger.Error("network printer error", zap.String("address", settings.NetworkIP), zap.Error(err))
			failures = multierr.Append(failures, fmt.Errorf("%s: %w", transport.ClassNetwork, err))
		}
	}

	if failures != nil {
		return "", &Error{
			Kind:      KindTransportFailure,
			Message:   joinMessages(failures),
			Cause:     failures,
			Delivered: delivered,
		}
	}
	return SuccessMessage, nil
}

// persist records a delivered channel. The print already happened, so a
// store failure is logged and otherwise ignored.
func (c *Coordinator) persist(ctx context.Context, logger *zap.Logger, orderID int64, channel string) {
	if c.store == nil {
		return
	}
	if err := c.store.SetPrintStatus(ctx, orderID, channel, true); err != nil {
		logger.Error("failed to update print status",
			zap.String("channel", channel),
			zap.Stringer("kind", KindPersistenceFailure),
			zap.Error(err))
	}
}
