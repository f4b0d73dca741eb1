package dispatch

import (
	"context"

	"go.uber.org/zap"

	"github.com/nixxel-company-limited/kot-dispatch/transport"
)

// StepState is where a single method of the chain ended up.
type StepState int

const (
	// NotTried marks a method skipped because an earlier one printed.
	NotTried StepState = iota
	// Succeeded marks the method that printed the ticket.
	Succeeded
	// Failed marks a method that was attempted and returned an error.
	Failed
)

func (s StepState) String() string {
	switch s {
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return "not tried"
	}
}

// Step records one method of a chain run.
type Step struct {
	Method string
	State  StepState
	Err    error
}

// Report is the trace of a chain run, one Step per configured method in
// order. Methods after the first success stay NotTried.
type Report struct {
	Steps []Step
}

// Winner returns the method that delivered the payload, if any.
func (r Report) Winner() (string, bool) {
	for _, s := range r.Steps {
		if s.State == Succeeded {
			return s.Method, true
		}
	}
	return "", false
}

// Chain tries alternative delivery methods in order and stops at the first
// one that works.
type Chain struct {
	attempts []transport.Attempt
	logger   *zap.Logger
}

// NewChain creates a chain over attempts, tried in the given order.
func NewChain(logger *zap.Logger, attempts ...transport.Attempt) *Chain {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chain{attempts: attempts, logger: logger}
}

// Run sends payload through each method until one succeeds. Failures are
// logged and swallowed; if every method fails, Run returns ErrAllUSBFailed.
func (c *Chain) Run(ctx context.Context, payload []byte) (Report, error) {
	report := Report{Steps: make([]Step, len(c.attempts))}
	for i, a := range c.attempts {
		report.Steps[i].Method = a.Method()
	}

	for i, a := range c.attempts {
		if err := ctx.Err(); err != nil {
			c.logger.Warn("print chain abandoned", zap.String("next_method", a.Method()), zap.Error(err))
			break
		}

		err := a.Send(ctx, payload)
		if err == nil {
			report.Steps[i].State = Succeeded
			c.logger.Debug("print method succeeded", zap.String("method", a.Method()))
			return report, nil
		}

		report.Steps[i].State = Failed
		report.Steps[i].Err = err
		if a.Method() == transport.MethodSerial {
			c.logger.Warn("serial port print failed", zap.Error(err))
		} else {
			c.logger.Error("print method failed", zap.String("method", a.Method()), zap.Error(err))
		}
	}

	return report, ErrAllUSBFailed
}
