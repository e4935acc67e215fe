package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	contractx "github.com/tanpawarit/omnichannel-retail-orchestrator/agent/contract"
	"github.com/tanpawarit/omnichannel-retail-orchestrator/agent/events"
	nodex "github.com/tanpawarit/omnichannel-retail-orchestrator/agent/nodes"
	"github.com/tanpawarit/omnichannel-retail-orchestrator/agent/routing"
	statex "github.com/tanpawarit/omnichannel-retail-orchestrator/agent/state"
	logx "github.com/tanpawarit/omnichannel-retail-orchestrator/pkg/logger"
	"github.com/tanpawarit/omnichannel-retail-orchestrator/pkg/telemetry"
)

const (
	defaultAgentTimeout    = 10 * time.Second
	defaultMaxAgentRetries = 1
)

type Config struct {
	AgentTimeout time.Duration `split_words:"true" default:"10s"`
	// MaxAgentRetries of zero means the default; a negative value disables
	// retries.
	MaxAgentRetries int `split_words:"true" default:"1"`
}

func (c Config) withDefaults() Config {
	if c.AgentTimeout <= 0 {
		c.AgentTimeout = defaultAgentTimeout
	}
	switch {
	case c.MaxAgentRetries == 0:
		c.MaxAgentRetries = defaultMaxAgentRetries
	case c.MaxAgentRetries < 0:
		c.MaxAgentRetries = 0
	}
	return c
}

// RunError is returned for a failed run. Its message is the domain error's,
// and the whole graph error stays reachable through errors.Is and errors.As.
type RunError struct {
	RunID   string
	Intent  contractx.Intent
	Failure contractx.Failure
	cause   error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("run %s (%s): %s", e.RunID, e.Intent, e.Failure.Message)
}

func (e *RunError) Unwrap() error { return e.cause }

// graphCause peels the graph runner's "[NodeRunError]" style wrappers off err.
func graphCause(err error) error {
	for strings.HasPrefix(err.Error(), "[") {
		inner := errors.Unwrap(err)
		if inner == nil {
			break
		}
		err = inner
	}
	return err
}

// Result is what a caller gets back from one run.
type Result struct {
	Run     nodex.RunRecord
	Session statex.Session
	Outputs map[contractx.AgentName]any
	// Committed is false for runs that produced no session writes.
	Committed bool
}

type Option func(*Orchestrator)

func WithPublisher(p *events.Publisher) Option {
	return func(o *Orchestrator) { o.publisher = p }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

func WithIDGenerator(next func() string) Option {
	return func(o *Orchestrator) {
		if next != nil {
			o.newID = next
		}
	}
}

type Orchestrator struct {
	store     statex.Store
	registry  contractx.Registry
	table     *routing.Table
	publisher *events.Publisher

	graphRunner compose.Runnable[nodex.GraphInput, nodex.GraphOutput]

	dispatch nodex.DispatchConfig
	now      func() time.Time
	newID    func() string
	log      zerolog.Logger
}

func New(
	store statex.Store,
	registry contractx.Registry,
	table *routing.Table,
	cfg Config,
	opts ...Option,
) (*Orchestrator, error) {
	if store == nil {
		return nil, errors.New("session store is required")
	}
	if registry == nil {
		return nil, errors.New("agent registry is required")
	}
	if table == nil {
		table = routing.DefaultTable()
	}

	cfg = cfg.withDefaults()
	o := &Orchestrator{
		store:    store,
		registry: registry,
		table:    table,
		dispatch: nodex.DispatchConfig{AgentTimeout: cfg.AgentTimeout, MaxAgentRetries: cfg.MaxAgentRetries},
		now:      time.Now,
		newID:    uuid.NewString,
		log:      logx.Component("orchestrator"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	graphRunner, err := o.compileRunGraph(context.Background())
	if err != nil {
		return nil, err
	}
	o.graphRunner = graphRunner

	return o, nil
}

// Run executes one request end to end: route, dispatch, aggregate and commit.
// On failure the returned Result still carries the failed run record.
func (o *Orchestrator) Run(ctx context.Context, req contractx.Request) (Result, error) {
	runID := o.newID()

	var emitter events.Emitter = events.Discard
	if o.publisher != nil {
		rc := o.publisher.Begin(req.SessionID, runID)
		defer rc.Close()
		emitter = rc
	}

	ctx, span := telemetry.Tracer().Start(ctx, "orchestrator.run", trace.WithAttributes(
		attribute.String("retail.run_id", runID),
		attribute.String("retail.session_id", req.SessionID),
		attribute.String("retail.intent", string(req.Intent)),
	))
	defer span.End()

	run := nodex.NewRun(runID, req.SessionID, req.Intent, emitter, o.now)
	started := o.now()

	out, err := o.graphRunner.Invoke(ctx, nodex.GraphInput{Run: run, Request: req})
	if err != nil {
		cause := graphCause(err)
		run.Fail(cause)
		span.RecordError(cause)
		span.SetStatus(codes.Error, cause.Error())
		failure := contractx.Describe(cause)
		o.log.Warn().
			Err(cause).
			Str("run_id", runID).
			Str("session_id", req.SessionID).
			Str("intent", string(req.Intent)).
			Str("kind", failure.Kind).
			Msg("run failed")
		return Result{Run: run.Record()}, &RunError{RunID: runID, Intent: req.Intent, Failure: failure, cause: err}
	}

	o.log.Debug().
		Str("run_id", runID).
		Str("session_id", req.SessionID).
		Str("intent", string(req.Intent)).
		Bool("committed", out.Committed).
		Int64("version", out.Session.Version).
		Dur("elapsed", o.now().Sub(started)).
		Msg("run completed")

	return Result{
		Run:       run.Record(),
		Session:   out.Session,
		Outputs:   out.Outputs,
		Committed: out.Committed,
	}, nil
}
