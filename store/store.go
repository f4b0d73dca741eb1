// Package store keeps orders and their print status. Both implementations
// guard all access with a single mutex, held only for the duration of one
// read or write.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nixxel-company-limited/kot-dispatch/receipt"
)

// ErrNotFound is returned when an order has no record.
var ErrNotFound = errors.New("not found")

// Channel names accepted by SetPrintStatus.
const (
	ChannelUSB     = "usb"
	ChannelNetwork = "network"
)

// Store is implemented by MemStore and BoltStore.
type Store interface {
	SetPrintStatus(ctx context.Context, orderID int64, channel string, success bool) error
	PrintStatus(ctx context.Context, orderID int64) (Status, error)
	PutOrder(ctx context.Context, order receipt.Order) error
	Order(ctx context.Context, orderID int64) (receipt.Order, error)
	Close() error
}

// Status is the print status of one order.
type Status struct {
	OrderID   int64     `json:"order_id"`
	USB       bool      `json:"usb"`
	Network   bool      `json:"network"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *Status) set(channel string, success bool, now time.Time) error {
	switch channel {
	case ChannelUSB:
		s.USB = success
	case ChannelNetwork:
		s.Network = success
	default:
		return fmt.Errorf("unknown print channel %q", channel)
	}
	s.UpdatedAt = now
	return nil
}
