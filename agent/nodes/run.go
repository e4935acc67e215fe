package orchestratornode

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	contractx "github.com/tanpawarit/omnichannel-retail-orchestrator/agent/contract"
	"github.com/tanpawarit/omnichannel-retail-orchestrator/agent/events"
)

var ErrInvalidTransition = errors.New("invalid run transition")

var runTransitions = map[contractx.RunStatus][]contractx.RunStatus{
	contractx.RunPending:     {contractx.RunRouting, contractx.RunFailed},
	contractx.RunRouting:     {contractx.RunDispatching, contractx.RunFailed},
	contractx.RunDispatching: {contractx.RunAwaiting, contractx.RunFailed},
	contractx.RunAwaiting:    {contractx.RunAggregating, contractx.RunFailed},
	contractx.RunAggregating: {contractx.RunCompleted, contractx.RunFailed},
}

type AgentInvocation struct {
	Agent      contractx.AgentName        `json:"agent"`
	Status     contractx.InvocationStatus `json:"status"`
	Attempts   int                        `json:"attempts"`
	Failure    *contractx.Failure         `json:"failure,omitempty"`
	StartedAt  time.Time                  `json:"started_at,omitzero"`
	FinishedAt time.Time                  `json:"finished_at,omitzero"`
}

// RunRecord is a point-in-time copy of a Run.
type RunRecord struct {
	ID          string              `json:"id"`
	SessionID   string              `json:"session_id"`
	Intent      contractx.Intent    `json:"intent"`
	Status      contractx.RunStatus `json:"status"`
	Invocations []AgentInvocation   `json:"invocations,omitempty"`
	Failure     *contractx.Failure  `json:"failure,omitempty"`
	StartedAt   time.Time           `json:"started_at"`
	FinishedAt  time.Time           `json:"finished_at,omitzero"`
}

// Run tracks one orchestration through its state machine and reports every
// change to the emitter. Invocation updates may arrive concurrently from a
// parallel plan.
type Run struct {
	mu      sync.Mutex
	rec     RunRecord
	emitter events.Emitter
	now     func() time.Time
}

func NewRun(id, sessionID string, intent contractx.Intent, emitter events.Emitter, now func() time.Time) *Run {
	if emitter == nil {
		emitter = events.Discard
	}
	if now == nil {
		now = time.Now
	}
	r := &Run{
		rec: RunRecord{
			ID:        id,
			SessionID: sessionID,
			Intent:    intent,
			Status:    contractx.RunPending,
			StartedAt: now().UTC(),
		},
		emitter: emitter,
		now:     now,
	}
	r.emitRun(contractx.RunPending, nil)
	return r
}

func (r *Run) Status() contractx.RunStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rec.Status
}

func (r *Run) Transition(to contractx.RunStatus) error {
	r.mu.Lock()
	from := r.rec.Status
	if !slices.Contains(runTransitions[from], to) {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	r.rec.Status = to
	if to.Terminal() {
		r.rec.FinishedAt = r.now().UTC()
	}
	r.mu.Unlock()

	r.emitRun(to, nil)
	return nil
}

// Fail moves a non-terminal run to Failed and records err.
func (r *Run) Fail(err error) {
	failure := contractx.Describe(err)

	r.mu.Lock()
	if r.rec.Status.Terminal() {
		r.mu.Unlock()
		return
	}
	r.rec.Status = contractx.RunFailed
	r.rec.Failure = &failure
	r.rec.FinishedAt = r.now().UTC()
	r.mu.Unlock()

	r.emitRun(contractx.RunFailed, &failure)
}

// Plan registers one pending invocation per agent.
func (r *Run) Plan(agents []contractx.AgentName) {
	r.mu.Lock()
	r.rec.Invocations = make([]AgentInvocation, 0, len(agents))
	for _, a := range agents {
		r.rec.Invocations = append(r.rec.Invocations, AgentInvocation{Agent: a, Status: contractx.InvocationPending})
	}
	r.mu.Unlock()

	for _, a := range agents {
		r.emitAgent(AgentInvocation{Agent: a, Status: contractx.InvocationPending})
	}
}

func (r *Run) StartInvocation(agent contractx.AgentName, attempt int) {
	r.updateInvocation(agent, func(inv *AgentInvocation) {
		inv.Status = contractx.InvocationRunning
		inv.Attempts = attempt
		inv.Failure = nil
		if inv.StartedAt.IsZero() {
			inv.StartedAt = r.now().UTC()
		}
	})
}

func (r *Run) FinishInvocation(agent contractx.AgentName, err error) {
	r.updateInvocation(agent, func(inv *AgentInvocation) {
		inv.FinishedAt = r.now().UTC()
		if err == nil {
			inv.Status = contractx.InvocationSucceeded
			return
		}
		failure := contractx.Describe(err)
		inv.Status = contractx.InvocationFailed
		inv.Failure = &failure
	})
}

func (r *Run) Record() RunRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.rec
	out.Invocations = slices.Clone(r.rec.Invocations)
	return out
}

func (r *Run) updateInvocation(agent contractx.AgentName, mutate func(*AgentInvocation)) {
	r.mu.Lock()
	idx := slices.IndexFunc(r.rec.Invocations, func(inv AgentInvocation) bool { return inv.Agent == agent })
	if idx < 0 {
		r.rec.Invocations = append(r.rec.Invocations, AgentInvocation{Agent: agent})
		idx = len(r.rec.Invocations) - 1
	}
	mutate(&r.rec.Invocations[idx])
	snapshot := r.rec.Invocations[idx]
	r.mu.Unlock()

	r.emitAgent(snapshot)
}

func (r *Run) emitRun(status contractx.RunStatus, failure *contractx.Failure) {
	r.emitter.Emit(events.Event{
		Kind:      events.KindRun,
		Intent:    r.rec.Intent,
		RunStatus: status,
		Failure:   failure,
		At:        r.now().UTC(),
	})
}

func (r *Run) emitAgent(inv AgentInvocation) {
	r.emitter.Emit(events.Event{
		Kind:        events.KindAgent,
		Intent:      r.rec.Intent,
		Agent:       inv.Agent,
		AgentStatus: inv.Status,
		Attempt:     inv.Attempts,
		Failure:     inv.Failure,
		At:          r.now().UTC(),
	})
}
