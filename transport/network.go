package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/nixxel-company-limited/kot-dispatch/adapter"
)

// Network writes the payload to a raw TCP printer port. It is the only
// attempt made for the network class; there is no retry.
type Network struct {
	address string
	timeout time.Duration
	dial    adapter.DialFunc
}

// NewNetwork creates a network attempt for address ("host:port"). timeout
// bounds the connect and the write.
func NewNetwork(address string, timeout time.Duration) *Network {
	return &Network{address: address, timeout: timeout}
}

// WithDialer replaces the dialer used to connect.
func (n *Network) WithDialer(dial adapter.DialFunc) *Network {
	n.dial = dial
	return n
}

// Method implements Attempt.
func (n *Network) Method() string {
	return MethodNetwork
}

// Send implements Attempt.
func (n *Network) Send(ctx context.Context, payload []byte) error {
	conn := adapter.NewTCPAdapter(n.address, n.timeout)
	if n.dial != nil {
		conn.WithDialer(n.dial)
	}

	if err := conn.OpenContext(ctx); err != nil {
		if isTimeout(err) {
			return failure(ClassNetwork, MethodNetwork, "Connection timeout", fmt.Errorf("%w: %v", ErrTimeout, err))
		}
		return failure(ClassNetwork, MethodNetwork, fmt.Sprintf("Connection failed: %v", err), err)
	}
	defer conn.Close()

	if _, err := conn.Write(payload); err != nil {
		return failure(ClassNetwork, MethodNetwork, fmt.Sprintf("Write failed: %v", err), wrapTimeout(err))
	}
	if err := conn.Flush(); err != nil {
		return failure(ClassNetwork, MethodNetwork, fmt.Sprintf("Flush failed: %v", err), wrapTimeout(err))
	}
	return nil
}

func wrapTimeout(err error) error {
	if isTimeout(err) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}
