package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/nixxel-company-limited/kot-dispatch/transport"
)

// fakeAttempt is a scripted transport.Attempt.
type fakeAttempt struct {
	method string
	err    error
	mu     sync.Mutex
	calls  int
	got    []byte
}

func (f *fakeAttempt) Method() string { return f.method }

func (f *fakeAttempt) Send(_ context.Context, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.got = payload
	return f.err
}

func (f *fakeAttempt) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func failing(method, msg string) *fakeAttempt {
	return &fakeAttempt{method: method, err: errors.New(msg)}
}

func working(method string) *fakeAttempt {
	return &fakeAttempt{method: method}
}

type fakeTransports struct {
	usb     []transport.Attempt
	network transport.Attempt
}

func (f *fakeTransports) USB(Settings) []transport.Attempt   { return f.usb }
func (f *fakeTransports) Network(Settings) transport.Attempt { return f.network }

type statusCall struct {
	orderID int64
	channel string
	success bool
}

type fakeStore struct {
	mu    sync.Mutex
	err   error
	calls []statusCall
}

func (s *fakeStore) SetPrintStatus(_ context.Context, orderID int64, channel string, success bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, statusCall{orderID, channel, success})
	return s.err
}

var payload = []byte("\x1B@ticket")

var bothClasses = Settings{USBPort: "Kitchen", BaudRate: 9600, NetworkIP: "192.168.1.50:9100"}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name     string
		settings Settings
		want     []Problem
	}{
		{"Empty", Settings{}, []Problem{NoPrinterConfigured}},
		{"EmptyWithBaud", Settings{BaudRate: 9600}, []Problem{NoPrinterConfigured}},
		{"USBWithoutBaud", Settings{USBPort: "COM3"}, []Problem{InvalidBaudRate}},
		{"USBWithoutBaudAndNetwork", Settings{USBPort: "COM3", NetworkIP: "10.0.0.2:9100"}, []Problem{InvalidBaudRate}},
		{"USB", Settings{USBPort: "COM3", BaudRate: 9600}, nil},
		{"Network", Settings{NetworkIP: "10.0.0.2:9100"}, nil},
		{"Both", bothClasses, nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Validate(tc.settings))
		})
	}
}

func TestProblemMessages(t *testing.T) {
	assert.Equal(t, "No printers configured", NoPrinterConfigured.Error())
	assert.Equal(t, "Invalid baud rate for USB printer", InvalidBaudRate.Error())
}

func TestChainStopsAtFirstSuccess(t *testing.T) {
	first := failing(transport.MethodSpooler, "OpenPrinter failed with error code: 1801")
	second := working(transport.MethodCommand)
	third := working(transport.MethodSerial)

	report, err := NewChain(nil, first, second, third).Run(context.Background(), payload)
	require.NoError(t, err)

	assert.Equal(t, 1, first.Calls())
	assert.Equal(t, 1, second.Calls())
	assert.Equal(t, 0, third.Calls())

	require.Len(t, report.Steps, 3)
	assert.Equal(t, Failed, report.Steps[0].State)
	assert.Equal(t, Succeeded, report.Steps[1].State)
	assert.Equal(t, NotTried, report.Steps[2].State)

	winner, ok := report.Winner()
	assert.True(t, ok)
	assert.Equal(t, transport.MethodCommand, winner)
}

func TestChainExhausted(t *testing.T) {
	attempts := []transport.Attempt{
		failing(transport.MethodSpooler, "a"),
		failing(transport.MethodCommand, "b"),
		failing(transport.MethodSerial, "c"),
	}

	report, err := NewChain(nil, attempts...).Run(context.Background(), payload)
	assert.ErrorIs(t, err, ErrAllUSBFailed)
	assert.Equal(t, "All USB printing methods failed", err.Error())

	for _, step := range report.Steps {
		assert.Equal(t, Failed, step.State)
		assert.Error(t, step.Err)
	}
	_, ok := report.Winner()
	assert.False(t, ok)
}

func TestChainStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	only := working(transport.MethodSpooler)
	_, err := NewChain(nil, only).Run(ctx, payload)
	assert.ErrorIs(t, err, ErrAllUSBFailed)
	assert.Equal(t, 0, only.Calls())
}

func TestDefaultTransportsSkipSerialWithoutBaud(t *testing.T) {
	d := DefaultTransports{}

	withBaud := d.USB(Settings{USBPort: "COM3", BaudRate: 9600})
	require.Len(t, withBaud, 3)
	assert.Equal(t, transport.MethodSpooler, withBaud[0].Method())
	assert.Equal(t, transport.MethodCommand, withBaud[1].Method())
	assert.Equal(t, transport.MethodSerial, withBaud[2].Method())

	withoutBaud := d.USB(Settings{USBPort: "COM3"})
	require.Len(t, withoutBaud, 2)
	for _, a := range withoutBaud {
		assert.NotEqual(t, transport.MethodSerial, a.Method())
	}

	assert.Equal(t, transport.MethodNetwork, d.Network(bothClasses).Method())
}

func TestChainWithoutSerialStep(t *testing.T) {
	spooler := failing(transport.MethodSpooler, "x")
	command := failing(transport.MethodCommand, "y")

	report, err := NewChain(nil, spooler, command).Run(context.Background(), payload)
	assert.ErrorIs(t, err, ErrAllUSBFailed)
	require.Len(t, report.Steps, 2)
}

func TestDispatchEmptyPayload(t *testing.T) {
	usb := working(transport.MethodSpooler)
	store := &fakeStore{}
	c := New(store, WithTransports(&fakeTransports{usb: []transport.Attempt{usb}}))

	_, err := c.Dispatch(context.Background(), 1, nil, bothClasses)
	require.Error(t, err)
	assert.Equal(t, KindEmptyContent, KindOf(err))
	assert.Equal(t, "Print content cannot be empty", err.Error())
	assert.Equal(t, 0, usb.Calls())
	assert.Empty(t, store.calls)
}

func TestDispatchInvalidSettings(t *testing.T) {
	usb := working(transport.MethodSpooler)
	network := working(transport.MethodNetwork)
	c := New(&fakeStore{}, WithTransports(&fakeTransports{usb: []transport.Attempt{usb}, network: network}))

	t.Run("NoPrinter", func(t *testing.T) {
		_, err := c.Dispatch(context.Background(), 1, payload, Settings{})
		require.Error(t, err)
		assert.Equal(t, KindInvalidSettings, KindOf(err))
		assert.Contains(t, err.Error(), "No printers configured")
	})

	t.Run("BadBaud", func(t *testing.T) {
		_, err := c.Dispatch(context.Background(), 1, payload, Settings{USBPort: "COM3", NetworkIP: "10.0.0.1:9100"})
		require.Error(t, err)
		assert.Equal(t, KindInvalidSettings, KindOf(err))
		assert.Equal(t, "Invalid baud rate for USB printer", err.Error())

		var de *Error
		require.ErrorAs(t, err, &de)
		assert.ErrorIs(t, de, InvalidBaudRate)
	})

	assert.Equal(t, 0, usb.Calls())
	assert.Equal(t, 0, network.Calls())
}

func TestDispatchBothSucceed(t *testing.T) {
	usb := working(transport.MethodSpooler)
	network := working(transport.MethodNetwork)
	store := &fakeStore{}
	c := New(store, WithTransports(&fakeTransports{usb: []transport.Attempt{usb}, network: network}))

	msg, err := c.Dispatch(context.Background(), 42, payload, bothClasses)
	require.NoError(t, err)
	assert.Equal(t, SuccessMessage, msg)
	assert.Equal(t, payload, usb.got)
	assert.Equal(t, payload, network.got)

	assert.Equal(t, []statusCall{
		{42, ChannelUSB, true},
		{42, ChannelNetwork, true},
	}, store.calls)
}

func TestDispatchUSBSuccessNetworkFailure(t *testing.T) {
	usb := working(transport.MethodSpooler)
	network := failing(transport.MethodNetwork, "Connection timeout")
	store := &fakeStore{}
	c := New(store, WithTransports(&fakeTransports{usb: []transport.Attempt{usb}, network: network}))

	_, err := c.Dispatch(context.Background(), 7, payload, bothClasses)
	require.Error(t, err)
	assert.Equal(t, KindTransportFailure, KindOf(err))
	assert.Equal(t, "Network: Connection timeout", err.Error())
	assert.NotContains(t, err.Error(), "USB")

	var de *Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, []transport.Class{transport.ClassUSB}, de.Delivered)

	assert.Equal(t, []statusCall{{7, ChannelUSB, true}}, store.calls)
}

func TestDispatchBothFail(t *testing.T) {
	usb := []transport.Attempt{
		failing(transport.MethodSpooler, "OpenPrinter failed with error code: 1801"),
		failing(transport.MethodCommand, "Print command failed"),
		failing(transport.MethodSerial, "Failed to open serial port"),
	}
	network := failing(transport.MethodNetwork, "Connection failed: refused")
	store := &fakeStore{}
	c := New(store, WithTransports(&fakeTransports{usb: usb, network: network}))

	_, err := c.Dispatch(context.Background(), 7, payload, bothClasses)
	require.Error(t, err)
	assert.Equal(t, "USB: All USB printing methods failed | Network: Connection failed: refused", err.Error())
	assert.ErrorIs(t, err, ErrAllUSBFailed)
	assert.Empty(t, store.calls)
}

func TestDispatchOnlyConfiguredClasses(t *testing.T) {
	usb := working(transport.MethodSpooler)
	network := working(transport.MethodNetwork)
	store := &fakeStore{}
	c := New(store, WithTransports(&fakeTransports{usb: []transport.Attempt{usb}, network: network}))

	msg, err := c.Dispatch(context.Background(), 3, payload, Settings{NetworkIP: "10.0.0.9:9100"})
	require.NoError(t, err)
	assert.Equal(t, SuccessMessage, msg)
	assert.Equal(t, 0, usb.Calls())
	assert.Equal(t, []statusCall{{3, ChannelNetwork, true}}, store.calls)
}

func TestDispatchPersistenceFailureIsNotFatal(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	store := &fakeStore{err: errors.New("database is locked")}
	c := New(store,
		WithLogger(zap.New(core)),
		WithTransports(&fakeTransports{
			usb:     []transport.Attempt{working(transport.MethodSpooler)},
			network: working(transport.MethodNetwork),
		}))

	msg, err := c.Dispatch(context.Background(), 9, payload, bothClasses)
	require.NoError(t, err)
	assert.Equal(t, SuccessMessage, msg)
	assert.Len(t, store.calls, 2)
	assert.Equal(t, 2, logs.FilterMessage("failed to update print status").Len())
}

func TestDispatchWithoutStore(t *testing.T) {
	c := New(nil, WithTransports(&fakeTransports{network: working(transport.MethodNetwork)}))
	msg, err := c.Dispatch(context.Background(), 1, payload, Settings{NetworkIP: "10.0.0.9:9100"})
	require.NoError(t, err)
	assert.Equal(t, SuccessMessage, msg)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, Kind(0), KindOf(errors.New("plain")))
	assert.Equal(t, "TransportFailure", KindTransportFailure.String())
	assert.Equal(t, "PersistenceFailure", KindPersistenceFailure.String())
}
