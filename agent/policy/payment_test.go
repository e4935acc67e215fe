package policy

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tanpawarit/omnichannel-retail-orchestrator/agent/catalog"
	contractx "github.com/tanpawarit/omnichannel-retail-orchestrator/agent/contract"
)

// fakeClock advances only when a fake gateway "spends" time.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeGateway struct {
	name  string
	cost  time.Duration
	err   error
	clock *fakeClock
	calls int
}

func (g *fakeGateway) Name() string           { return g.name }
func (g *fakeGateway) Timeout() time.Duration { return time.Second }

func (g *fakeGateway) Charge(ctx context.Context, req ChargeRequest) (string, error) {
	g.calls++
	g.clock.Advance(g.cost)
	if g.err != nil {
		return "", g.err
	}
	return "tx-" + g.name, nil
}

func newGateways(clock *fakeClock, errs ...error) []*fakeGateway {
	names := []string{"A", "B", "C", "D", "E"}
	out := make([]*fakeGateway, len(errs))
	for i, err := range errs {
		out[i] = &fakeGateway{name: names[i], cost: time.Duration(i+1) * 100 * time.Millisecond, err: err, clock: clock}
	}
	return out
}

func asGateways(fakes []*fakeGateway) []Gateway {
	out := make([]Gateway, len(fakes))
	for i, f := range fakes {
		out[i] = f
	}
	return out
}

func TestRetryChainTimeoutDeclinedSuccess(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(0, 0)}
	fakes := newGateways(clock, context.DeadlineExceeded, ErrDeclined, nil)

	chain, err := NewRetryChain(asGateways(fakes), DefaultConfig, WithChainClock(clock.Now))
	require.NoError(t, err)

	receipt, err := chain.Run(context.Background(), ChargeRequest{Amount: 1000})
	require.NoError(t, err)

	assert.Equal(t, "C", receipt.Gateway)
	assert.Equal(t, "tx-C", receipt.TransactionID)
	require.Len(t, receipt.Attempts, 3)
	assert.Equal(t, contractx.ClassTimeout, receipt.Attempts[0].Outcome)
	assert.Equal(t, contractx.ClassDeclined, receipt.Attempts[1].Outcome)
	assert.Equal(t, "success", receipt.Attempts[2].Outcome)
	assert.Equal(t, 600*time.Millisecond, receipt.Elapsed)
}

func TestRetryChainAttemptCountMatchesSuccessPosition(t *testing.T) {
	t.Parallel()

	const n = 4
	for successAt := 0; successAt < n; successAt++ {
		clock := &fakeClock{now: time.Unix(0, 0)}
		errs := make([]error, n)
		for i := range errs {
			if i < successAt {
				errs[i] = ErrGatewayUnavailable
			}
		}
		fakes := newGateways(clock, errs...)

		chain, err := NewRetryChain(asGateways(fakes), DefaultConfig, WithChainClock(clock.Now))
		require.NoError(t, err)
		receipt, err := chain.Run(context.Background(), ChargeRequest{})
		require.NoError(t, err)

		assert.Len(t, receipt.Attempts, successAt+1)
		var want time.Duration
		for i := 0; i <= successAt; i++ {
			want += fakes[i].cost
		}
		assert.Equal(t, want, receipt.Elapsed)
		for i := successAt + 1; i < n; i++ {
			assert.Zero(t, fakes[i].calls, "gateway after success must not be called")
		}
	}
}

func TestRetryChainExhausted(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(0, 0)}
	fakes := newGateways(clock, ErrDeclined, context.DeadlineExceeded, errors.New("502"))

	chain, err := NewRetryChain(asGateways(fakes), DefaultConfig, WithChainClock(clock.Now))
	require.NoError(t, err)

	_, err = chain.Run(context.Background(), ChargeRequest{})
	var exhausted *contractx.PaymentExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.Len(t, exhausted.Attempts, 3)
	assert.Equal(t, []string{"A", "B", "C"}, []string{
		exhausted.Attempts[0].Gateway, exhausted.Attempts[1].Gateway, exhausted.Attempts[2].Gateway,
	})
	assert.Equal(t, contractx.ClassUnavailable, exhausted.Attempts[2].Outcome)
	for _, f := range fakes {
		assert.Equal(t, 1, f.calls, "gateway %s attempted more than once", f.name)
	}
}

func TestRetryChainRequiresGateways(t *testing.T) {
	t.Parallel()

	_, err := NewRetryChain(nil, DefaultConfig)
	assert.ErrorIs(t, err, ErrNoGateways)
}

func TestSimulatedGatewayTimesOut(t *testing.T) {
	t.Parallel()

	gws := SimulatedGateways([]catalog.Gateway{
		{Name: "slow", Timeout: 20 * time.Millisecond, Outcome: "timeout"},
		{Name: "ok", Timeout: time.Second, Latency: time.Millisecond, Outcome: "success"},
	})

	chain, err := NewRetryChain(gws, DefaultConfig)
	require.NoError(t, err)
	receipt, err := chain.Run(context.Background(), ChargeRequest{})
	require.NoError(t, err)

	assert.Equal(t, "ok", receipt.Gateway)
	assert.Equal(t, contractx.ClassTimeout, receipt.Attempts[0].Outcome)
	assert.GreaterOrEqual(t, receipt.Attempts[0].Elapsed, 20*time.Millisecond)
}

func TestRetryChainStopsWhenCallerCancels(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	chain, err := NewRetryChain(SimulatedGateways([]catalog.Gateway{{Name: "x", Outcome: "success"}}), DefaultConfig)
	require.NoError(t, err)
	_, err = chain.Run(ctx, ChargeRequest{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetryChainCountsDeadlineAgainstInFlightGateway(t *testing.T) {
	t.Parallel()

	gws := SimulatedGateways([]catalog.Gateway{
		{Name: "A", Timeout: 30 * time.Millisecond, Outcome: "timeout"},
		{Name: "B", Timeout: time.Second, Outcome: "timeout"},
		{Name: "C", Timeout: time.Second, Latency: time.Millisecond, Outcome: "success"},
	})
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	chain, err := NewRetryChain(gws, DefaultConfig)
	require.NoError(t, err)
	_, err = chain.Run(ctx, ChargeRequest{Amount: 500})

	var exhausted *contractx.PaymentExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.True(t, exhausted.Interrupted)
	require.Len(t, exhausted.Attempts, 2)
	assert.Equal(t, "A", exhausted.Attempts[0].Gateway)
	assert.Equal(t, "B", exhausted.Attempts[1].Gateway)
	assert.Equal(t, contractx.ClassTimeout, exhausted.Attempts[1].Outcome)
	assert.NotErrorIs(t, err, context.DeadlineExceeded)
}
