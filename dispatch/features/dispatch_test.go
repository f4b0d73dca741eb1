package features

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/cucumber/godog"

	"github.com/nixxel-company-limited/kot-dispatch/dispatch"
	"github.com/nixxel-company-limited/kot-dispatch/transport"
)

type scriptedAttempt struct {
	method string
	err    error
	calls  int
}

func (a *scriptedAttempt) Method() string { return a.method }

func (a *scriptedAttempt) Send(context.Context, []byte) error {
	a.calls++
	return a.err
}

type scriptedTransports struct {
	methods map[string]*scriptedAttempt
}

func (s *scriptedTransports) USB(settings dispatch.Settings) []transport.Attempt {
	attempts := []transport.Attempt{s.methods[transport.MethodSpooler], s.methods[transport.MethodCommand]}
	if settings.BaudRate > 0 {
		attempts = append(attempts, s.methods[transport.MethodSerial])
	}
	return attempts
}

func (s *scriptedTransports) Network(dispatch.Settings) transport.Attempt {
	return s.methods[transport.MethodNetwork]
}

type recordingStore struct {
	recorded map[string]bool
}

func (r *recordingStore) SetPrintStatus(_ context.Context, orderID int64, channel string, success bool) error {
	r.recorded[fmt.Sprintf("%d/%s", orderID, channel)] = success
	return nil
}

type dispatchTestContext struct {
	payload    []byte
	settings   dispatch.Settings
	transports *scriptedTransports
	store      *recordingStore
	message    string
	err        error
}

func (c *dispatchTestContext) reset() {
	c.payload = nil
	c.settings = dispatch.Settings{}
	c.transports = &scriptedTransports{methods: map[string]*scriptedAttempt{}}
	for _, m := range []string{transport.MethodSpooler, transport.MethodCommand, transport.MethodSerial, transport.MethodNetwork} {
		c.transports.methods[m] = &scriptedAttempt{method: m}
	}
	c.store = &recordingStore{recorded: map[string]bool{}}
	c.message = ""
	c.err = nil
}

// Given steps

func (c *dispatchTestContext) aRenderedTicket() error {
	c.payload = []byte("\x1B@ticket\x1D\x56\x41\x00")
	return nil
}

func (c *dispatchTestContext) printerSettings(usb string, baud int, network string) error {
	c.settings = dispatch.Settings{USBPort: usb, BaudRate: uint32(baud), NetworkIP: network}
	return nil
}

func (c *dispatchTestContext) theMethodFailsWith(method, msg string) error {
	a, ok := c.transports.methods[method]
	if !ok {
		return fmt.Errorf("unknown method %q", method)
	}
	a.err = errors.New(msg)
	return nil
}

// When steps

func (c *dispatchTestContext) iDispatchTheTicketForOrder(orderID int) error {
	coord := dispatch.New(c.store, dispatch.WithTransports(c.transports))
	c.message, c.err = coord.Dispatch(context.Background(), int64(orderID), c.payload, c.settings)
	return nil
}

// Then steps

func (c *dispatchTestContext) theDispatchSucceeds() error {
	if c.err != nil {
		return fmt.Errorf("expected success, got %v", c.err)
	}
	if c.message != dispatch.SuccessMessage {
		return fmt.Errorf("unexpected message %q", c.message)
	}
	return nil
}

func (c *dispatchTestContext) theDispatchFailsWith(msg string) error {
	if c.err == nil {
		return errors.New("expected failure, got success")
	}
	if c.err.Error() != msg {
		return fmt.Errorf("expected %q, got %q", msg, c.err.Error())
	}
	return nil
}

func (c *dispatchTestContext) noTransportWasAttempted() error {
	for m, a := range c.transports.methods {
		if a.calls != 0 {
			return fmt.Errorf("%s was attempted %d times", m, a.calls)
		}
	}
	return nil
}

func (c *dispatchTestContext) noPrintStatusWasRecorded() error {
	if len(c.store.recorded) != 0 {
		return fmt.Errorf("unexpected status writes: %v", c.store.recorded)
	}
	return nil
}

func (c *dispatchTestContext) theMethodWasAttempted(method string, times int) error {
	if got := c.transports.methods[method].calls; got != times {
		return fmt.Errorf("%s attempted %d times, want %d", method, got, times)
	}
	return nil
}

func (c *dispatchTestContext) printStatusWasRecorded(channel string, orderID int) error {
	if !c.store.recorded[fmt.Sprintf("%d/%s", orderID, channel)] {
		return fmt.Errorf("no %s status for order %d", channel, orderID)
	}
	return nil
}

func (c *dispatchTestContext) printStatusWasNotRecorded(channel string, orderID int) error {
	if _, ok := c.store.recorded[fmt.Sprintf("%d/%s", orderID, channel)]; ok {
		return fmt.Errorf("unexpected %s status for order %d", channel, orderID)
	}
	return nil
}

func InitializeScenario(ctx *godog.ScenarioContext) {
	tc := &dispatchTestContext{}

	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		tc.reset()
		return ctx, nil
	})

	// Given steps
	ctx.Step(`^a rendered ticket$`, tc.aRenderedTicket)
	ctx.Step(`^printer settings with usb port "([^"]*)" baud (\d+) and network "([^"]*)"$`, tc.printerSettings)
	ctx.Step(`^the "([^"]*)" method fails with "([^"]*)"$`, tc.theMethodFailsWith)

	// When steps
	ctx.Step(`^I dispatch the ticket for order (\d+)$`, tc.iDispatchTheTicketForOrder)

	// Then steps
	ctx.Step(`^the dispatch succeeds$`, tc.theDispatchSucceeds)
	ctx.Step(`^the dispatch fails with "([^"]*)"$`, tc.theDispatchFailsWith)
	ctx.Step(`^no transport was attempted$`, tc.noTransportWasAttempted)
	ctx.Step(`^no print status was recorded$`, tc.noPrintStatusWasRecorded)
	ctx.Step(`^the "([^"]*)" method was attempted (\d+) times?$`, tc.theMethodWasAttempted)
	ctx.Step(`^print status "([^"]*)" was recorded for order (\d+)$`, tc.printStatusWasRecorded)
	ctx.Step(`^print status "([^"]*)" was not recorded for order (\d+)$`, tc.printStatusWasNotRecorded)
}

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"dispatch.feature"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
