// Package transport implements the individual ways a rendered ticket can be
// delivered to a printer. Each Attempt is self-contained: it acquires its
// device or socket, writes the whole payload, and releases the handle before
// returning.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// Class is an independent delivery category. A dispatch tries each
// configured class on its own and reports them separately.
type Class string

const (
	ClassUSB     Class = "USB"
	ClassNetwork Class = "Network"
)

// Delivery method names, used in logs and errors.
const (
	MethodSpooler = "raw spooler"
	MethodCommand = "print command"
	MethodSerial  = "serial port"
	MethodNetwork = "network socket"
)

// Attempt is one best-effort delivery of a payload.
type Attempt interface {
	// Method names the delivery mechanism.
	Method() string

	// Send delivers payload in full or returns an *Error.
	Send(ctx context.Context, payload []byte) error
}

// ErrTimeout marks failures caused by a connect or I/O deadline.
var ErrTimeout = errors.New("timeout")

// Error is the failure of a single attempt.
type Error struct {
	Class   Class
	Method  string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Timeout reports whether the attempt failed on a deadline.
func (e *Error) Timeout() bool {
	return errors.Is(e.Cause, ErrTimeout)
}

func failure(class Class, method, msg string, cause error) *Error {
	return &Error{Class: class, Method: method, Message: msg, Cause: cause}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrTimeout) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// bounded runs fn on its own goroutine and stops waiting for it once the
// timeout or ctx expires. fn keeps ownership of whatever it opened and must
// release it on return, even if nobody is waiting any more. Only an expired
// deadline is reported as ErrTimeout; a cancelled ctx returns ctx.Err(). A
// panic in fn is returned as an error.
func bounded(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic: %v", r)
			}
		}()
		done <- fn(ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return errors.Join(ErrTimeout, ctx.Err())
		}
		return ctx.Err()
	}
}

// sleep waits for d or until ctx ends.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
