package orchestratornode

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	contractx "github.com/tanpawarit/omnichannel-retail-orchestrator/agent/contract"
	"github.com/tanpawarit/omnichannel-retail-orchestrator/agent/policy"
	"github.com/tanpawarit/omnichannel-retail-orchestrator/agent/routing"
	statex "github.com/tanpawarit/omnichannel-retail-orchestrator/agent/state"
	"github.com/tanpawarit/omnichannel-retail-orchestrator/pkg/telemetry"
)

type DispatchConfig struct {
	AgentTimeout    time.Duration
	MaxAgentRetries int
}

// settleGrace is how long an attempt past its deadline may take to hand back
// its own result before the dispatcher reports a bare timeout. A charge that
// lands inside the grace is kept.
const settleGrace = 250 * time.Millisecond

// retryBudget is the number of extra attempts an invocation may make.
// Charging is not idempotent across attempts, so payment runs exactly once.
func retryBudget(agent contractx.AgentName, intent contractx.Intent, cfg DispatchConfig) int {
	if agent == contractx.AgentPayment && intent == contractx.IntentProcessPayment {
		return 0
	}
	return max(cfg.MaxAgentRetries, 0)
}

func DispatchAgents(
	ctx context.Context,
	in *GraphState,
	registry contractx.Registry,
	cfg DispatchConfig,
) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	agents := make([]contractx.Agent, 0, len(in.Plan.Agents))
	for _, name := range in.Plan.Agents {
		agent, ok := registry.Agent(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s", contractx.ErrUnknownAgent, name)
		}
		agents = append(agents, agent)
	}

	if err := in.Run.Transition(contractx.RunAwaiting); err != nil {
		return nil, err
	}

	var (
		results []contractx.PartialResult
		err     error
	)
	switch {
	case in.Plan.Mode == routing.ModeSequential:
		results, err = dispatchSequential(ctx, in, agents, cfg)
	case in.Plan.Policy == routing.PolicyRecalculation:
		results, err = policy.Recalculate(ctx, parallelTasks(in, agents, cfg))
	default:
		results, err = dispatchParallel(ctx, in, agents, cfg)
	}
	if err != nil {
		return nil, err
	}

	in.Results = results
	return in, nil
}

// dispatchSequential runs agents in plan order. Each agent sees the session
// with the writes of the agents before it applied, plus their outputs; the
// first failure stops the run.
func dispatchSequential(ctx context.Context, in *GraphState, agents []contractx.Agent, cfg DispatchConfig) ([]contractx.PartialResult, error) {
	view := in.Session.Clone()
	upstream := make(map[contractx.AgentName]any, len(agents))
	results := make([]contractx.PartialResult, 0, len(agents))
	for _, agent := range agents {
		req := in.Req
		req.Upstream = maps.Clone(upstream)

		res, err := invokeAgent(ctx, in.Run, agent, view, req, cfg)
		if err != nil {
			return nil, err
		}
		if err := res.Mutations.Apply(&view, in.Req.Now); err != nil {
			return nil, contractx.NewFatal(agent.Name(), contractx.ClassInternal, fmt.Errorf("apply writes: %w", err))
		}
		upstream[agent.Name()] = res.Output
		results = append(results, res)
	}
	return results, nil
}

// dispatchParallel waits for every agent and fails on the first failure in
// plan order.
func dispatchParallel(ctx context.Context, in *GraphState, agents []contractx.Agent, cfg DispatchConfig) ([]contractx.PartialResult, error) {
	outcomes := policy.FanOut(ctx, parallelTasks(in, agents, cfg))
	results := make([]contractx.PartialResult, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Err != nil {
			return nil, o.Err
		}
		results = append(results, o.Value)
	}
	return results, nil
}

func parallelTasks(in *GraphState, agents []contractx.Agent, cfg DispatchConfig) []policy.Task[contractx.PartialResult] {
	tasks := make([]policy.Task[contractx.PartialResult], 0, len(agents))
	for _, agent := range agents {
		tasks = append(tasks, policy.Task[contractx.PartialResult]{
			Name: string(agent.Name()),
			Run: func(ctx context.Context) (contractx.PartialResult, error) {
				return invokeAgent(ctx, in.Run, agent, in.Session, in.Req, cfg)
			},
		})
	}
	return tasks
}

// invokeAgent runs one agent under the per-attempt timeout, retrying
// retryable failures up to MaxAgentRetries times.
func invokeAgent(
	ctx context.Context,
	run *Run,
	agent contractx.Agent,
	view statex.Session,
	req contractx.Request,
	cfg DispatchConfig,
) (contractx.PartialResult, error) {
	name := agent.Name()
	ctx, span := telemetry.Tracer().Start(ctx, "agent."+string(name), trace.WithAttributes(
		attribute.String("retail.agent", string(name)),
		attribute.String("retail.intent", string(req.Intent)),
		attribute.String("retail.session_id", req.SessionID),
	))
	defer span.End()

	retries := retryBudget(name, req.Intent, cfg)
	var lastErr error
	for attempt := 1; attempt <= retries+1; attempt++ {
		run.StartInvocation(name, attempt)
		res, err := executeOnce(ctx, agent, view, req, cfg.AgentTimeout)
		if err == nil {
			res.Agent = name
			run.FinishInvocation(name, nil)
			span.SetAttributes(attribute.Int("retail.attempts", attempt))
			return res, nil
		}

		lastErr = err
		if !contractx.IsRetryable(err) || ctx.Err() != nil || attempt > retries {
			break
		}
		log.Warn().
			Err(err).
			Str("agent", string(name)).
			Str("session_id", req.SessionID).
			Int("attempt", attempt).
			Msg("retrying agent")
	}

	run.FinishInvocation(name, lastErr)
	span.RecordError(lastErr)
	span.SetStatus(codes.Error, lastErr.Error())
	return contractx.PartialResult{}, lastErr
}

type execResult struct {
	res contractx.PartialResult
	err error
}

func executeOnce(
	ctx context.Context,
	agent contractx.Agent,
	view statex.Session,
	req contractx.Request,
	timeout time.Duration,
) (contractx.PartialResult, error) {
	var (
		attemptCtx context.Context
		cancel     context.CancelFunc
	)
	if timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		attemptCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	// The goroutine may outlive this call, so it gets its own copy.
	snapshot := view.Clone()
	done := make(chan execResult, 1)
	go func() {
		res, err := agent.Execute(attemptCtx, snapshot, req)
		done <- execResult{res: res, err: err}
	}()

	var out execResult
	select {
	case out = <-done:
	case <-attemptCtx.Done():
		grace := time.NewTimer(settleGrace)
		select {
		case out = <-done:
		case <-grace.C:
			out.err = attemptCtx.Err()
		}
		grace.Stop()
	}
	if out.err == nil {
		return out.res, nil
	}

	if ctx.Err() != nil {
		return contractx.PartialResult{}, ctx.Err()
	}
	var aerr *contractx.AgentExecutionError
	if !errors.As(out.err, &aerr) && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return contractx.PartialResult{}, contractx.NewRetryable(agent.Name(), contractx.ClassTimeout,
			fmt.Errorf("no result within %s: %w", timeout, context.DeadlineExceeded))
	}
	if aerr == nil {
		return contractx.PartialResult{}, contractx.NewFatal(agent.Name(), contractx.ClassInternal, out.err)
	}
	return contractx.PartialResult{}, out.err
}
