package policy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tanpawarit/omnichannel-retail-orchestrator/agent/catalog"
	contractx "github.com/tanpawarit/omnichannel-retail-orchestrator/agent/contract"
	statex "github.com/tanpawarit/omnichannel-retail-orchestrator/agent/state"
)

var (
	ErrDeclined           = errors.New("payment declined")
	ErrGatewayUnavailable = errors.New("gateway unavailable")
	ErrNoGateways         = errors.New("no payment gateways configured")
)

type ChargeRequest struct {
	SessionID      string
	CustomerID     string
	Amount         statex.Money
	IdempotencyKey string
}

type Gateway interface {
	Name() string
	// Timeout bounds one attempt; zero means use the chain default.
	Timeout() time.Duration
	Charge(ctx context.Context, req ChargeRequest) (transactionID string, err error)
}

type PaymentReceipt struct {
	Gateway       string                     `json:"gateway"`
	TransactionID string                     `json:"transaction_id"`
	Amount        statex.Money               `json:"amount"`
	Attempts      []contractx.PaymentAttempt `json:"attempts"`
	Elapsed       time.Duration              `json:"elapsed"`
}

// Classify maps a gateway error onto a failure class.
func Classify(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return contractx.ClassTimeout
	case errors.Is(err, ErrDeclined):
		return contractx.ClassDeclined
	default:
		return contractx.ClassUnavailable
	}
}

type chainState int

const (
	chainAttempting chainState = iota
	chainSucceeded
	chainExhausted
)

// RetryChain walks the gateway list once, in order.
type RetryChain struct {
	gateways       []Gateway
	defaultTimeout time.Duration
	now            func() time.Time

	cursor   int
	state    chainState
	attempts []contractx.PaymentAttempt
	receipt  PaymentReceipt
}

type ChainOption func(*RetryChain)

func WithChainClock(now func() time.Time) ChainOption {
	return func(c *RetryChain) {
		if now != nil {
			c.now = now
		}
	}
}

func NewRetryChain(gateways []Gateway, cfg Config, opts ...ChainOption) (*RetryChain, error) {
	if len(gateways) == 0 {
		return nil, ErrNoGateways
	}
	c := &RetryChain{
		gateways:       gateways,
		defaultTimeout: cfg.withDefaults().GatewayTimeout,
		now:            time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// Run drives the chain to a terminal state. A cancelled ctx ends the chain
// as exhausted with the attempts made so far.
func (c *RetryChain) Run(ctx context.Context, req ChargeRequest) (PaymentReceipt, error) {
	for c.state == chainAttempting {
		c.step(ctx, req)
	}
	if c.state == chainSucceeded {
		return c.receipt, nil
	}
	interrupted := c.cursor < len(c.gateways) || ctx.Err() != nil
	if interrupted && len(c.attempts) == 0 {
		return PaymentReceipt{}, ctx.Err()
	}
	return PaymentReceipt{}, &contractx.PaymentExhaustedError{Attempts: c.History(), Interrupted: interrupted}
}

func (c *RetryChain) History() []contractx.PaymentAttempt {
	out := make([]contractx.PaymentAttempt, len(c.attempts))
	copy(out, c.attempts)
	return out
}

func (c *RetryChain) step(ctx context.Context, req ChargeRequest) {
	if ctx.Err() != nil {
		c.state = chainExhausted
		return
	}

	gw := c.gateways[c.cursor]
	c.cursor++

	timeout := gw.Timeout()
	if timeout <= 0 {
		timeout = c.defaultTimeout
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	start := c.now()
	txID, err := gw.Charge(attemptCtx, req)
	elapsed := c.now().Sub(start)
	cancel()

	attempt := contractx.PaymentAttempt{Gateway: gw.Name(), Elapsed: elapsed}

	// The caller's deadline cut this attempt short. It still counts against
	// the gateway, and the chain stops so no gateway is charged twice.
	if err != nil && ctx.Err() != nil {
		attempt.Outcome = Classify(ctx.Err())
		attempt.Err = err.Error()
		c.attempts = append(c.attempts, attempt)
		c.state = chainExhausted
		return
	}

	if err == nil {
		attempt.Outcome = "success"
		attempt.TransactionID = txID
		c.attempts = append(c.attempts, attempt)
		c.state = chainSucceeded
		c.receipt = PaymentReceipt{
			Gateway:       gw.Name(),
			TransactionID: txID,
			Amount:        req.Amount,
			Attempts:      c.History(),
			Elapsed:       c.totalElapsed(),
		}
		return
	}

	attempt.Outcome = Classify(err)
	attempt.Err = err.Error()
	c.attempts = append(c.attempts, attempt)
	if c.cursor >= len(c.gateways) {
		c.state = chainExhausted
	}
}

func (c *RetryChain) totalElapsed() time.Duration {
	var total time.Duration
	for _, a := range c.attempts {
		total += a.Elapsed
	}
	return total
}

// SimulatedGateway replays a configured outcome after a fixed latency.
type SimulatedGateway struct {
	spec catalog.Gateway
}

var _ Gateway = (*SimulatedGateway)(nil)

func NewSimulatedGateway(spec catalog.Gateway) *SimulatedGateway {
	return &SimulatedGateway{spec: spec}
}

// SimulatedGateways wraps every catalog gateway, in catalog order.
func SimulatedGateways(specs []catalog.Gateway) []Gateway {
	out := make([]Gateway, 0, len(specs))
	for _, spec := range specs {
		out = append(out, NewSimulatedGateway(spec))
	}
	return out
}

func (g *SimulatedGateway) Name() string           { return g.spec.Name }
func (g *SimulatedGateway) Timeout() time.Duration { return g.spec.Timeout }

func (g *SimulatedGateway) Charge(ctx context.Context, req ChargeRequest) (string, error) {
	if g.spec.Outcome == "timeout" {
		<-ctx.Done()
		return "", ctx.Err()
	}

	timer := time.NewTimer(g.spec.Latency)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-timer.C:
	}

	switch g.spec.Outcome {
	case "success", "":
		return "TXN-" + uuid.NewString(), nil
	case "declined":
		return "", fmt.Errorf("%w: %s refused %s", ErrDeclined, g.spec.Name, req.Amount)
	default:
		return "", fmt.Errorf("%w: %s", ErrGatewayUnavailable, g.spec.Name)
	}
}
