package dispatch

import (
	"errors"
	"strings"

	"go.uber.org/multierr"

	"github.com/nixxel-company-limited/kot-dispatch/transport"
)

// Separator joins the messages of a combined failure.
const Separator = " | "

// Kind categorizes dispatch errors.
type Kind int

const (
	// KindEmptyContent means the payload was empty; nothing was attempted.
	KindEmptyContent Kind = iota + 1
	// KindInvalidSettings means the printer settings failed validation;
	// nothing was attempted.
	KindInvalidSettings
	// KindTransportFailure means at least one configured class failed.
	KindTransportFailure
	// KindPersistenceFailure is a print-status write that failed. It is
	// logged, never returned from Dispatch.
	KindPersistenceFailure
)

func (k Kind) String() string {
	switch k {
	case KindEmptyContent:
		return "EmptyContent"
	case KindInvalidSettings:
		return "InvalidSettings"
	case KindTransportFailure:
		return "TransportFailure"
	case KindPersistenceFailure:
		return "PersistenceFailure"
	default:
		return "Unknown"
	}
}

// Error is returned by Dispatch. Message is the single user-facing string.
type Error struct {
	Kind    Kind
	Message string
	Cause   error

	// Delivered lists the classes that did print even though the call as a
	// whole failed.
	Delivered []transport.Class
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// ErrAllUSBFailed is returned by the USB chain when every method failed.
var ErrAllUSBFailed = errors.New("All USB printing methods failed")

// ErrEmptyContent is the cause of a KindEmptyContent error.
var ErrEmptyContent = errors.New("Print content cannot be empty")

// KindOf returns the Kind of a dispatch error, or 0 for other errors.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return 0
}

// joinMessages flattens a multierr accumulation into one string.
func joinMessages(err error) string {
	errs := multierr.Errors(err)
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, Separator)
}
