package adapter

import (
	"bufio"
	"context"
	"net"
	"sync"
	"time"
)

// DialFunc opens a network connection. It matches net.Dialer.DialContext.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// TCPAdapter sends raw jobs to a network printer (usually port 9100).
type TCPAdapter struct {
	address string
	timeout time.Duration
	dial    DialFunc
	conn    net.Conn
	w       *bufio.Writer
	mu      sync.Mutex
}

// NewTCPAdapter creates an adapter for address ("host:port"). timeout
// bounds the connect and each write.
func NewTCPAdapter(address string, timeout time.Duration) *TCPAdapter {
	d := &net.Dialer{}
	return &TCPAdapter{address: address, timeout: timeout, dial: d.DialContext}
}

// WithDialer replaces the function used to connect. Used to route through a
// proxy or to stub the network in tests.
func (a *TCPAdapter) WithDialer(dial DialFunc) *TCPAdapter {
	a.dial = dial
	return a
}

// Open connects with the adapter timeout.
func (a *TCPAdapter) Open() error {
	return a.OpenContext(context.Background())
}

// OpenContext connects, giving up when ctx ends or the timeout elapses,
// whichever is first.
func (a *TCPAdapter) OpenContext(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.conn != nil {
		return errAlreadyOpen
	}

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	conn, err := a.dial(ctx, "tcp", a.address)
	if err != nil {
		return err
	}

	a.conn = conn
	a.w = bufio.NewWriter(conn)
	return nil
}

// Write buffers data; it reaches the printer on Flush or when the buffer fills.
func (a *TCPAdapter) Write(data []byte) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.conn == nil {
		return 0, errNotOpen
	}
	a.setDeadline()
	return a.w.Write(data)
}

// Flush pushes buffered bytes to the socket.
func (a *TCPAdapter) Flush() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.conn == nil {
		return errNotOpen
	}
	a.setDeadline()
	return a.w.Flush()
}

func (a *TCPAdapter) setDeadline() {
	if a.timeout > 0 {
		_ = a.conn.SetWriteDeadline(time.Now().Add(a.timeout))
	}
}

// Read reads from the connection.
func (a *TCPAdapter) Read(buf []byte) (int, error) {
	a.mu.Lock()
	conn := a.conn
	a.mu.Unlock()

	if conn == nil {
		return 0, errNotOpen
	}
	return conn.Read(buf)
}

// Close closes the connection without flushing.
func (a *TCPAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.conn == nil {
		return nil
	}
	err := a.conn.Close()
	a.conn = nil
	a.w = nil
	return err
}

// IsOpen returns whether the connection is open
func (a *TCPAdapter) IsOpen() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.conn != nil
}
