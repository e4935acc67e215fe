package events

import (
	"time"

	contractx "github.com/tanpawarit/omnichannel-retail-orchestrator/agent/contract"
)

type Kind string

const (
	KindRun   Kind = "run.status"
	KindAgent Kind = "agent.status"
)

// Event is one progress notification of an orchestration run. Seq is
// assigned per run and starts at 1.
type Event struct {
	Seq       int64            `json:"seq"`
	Kind      Kind             `json:"kind"`
	RunID     string           `json:"run_id"`
	SessionID string           `json:"session_id"`
	Intent    contractx.Intent `json:"intent,omitempty"`

	RunStatus   contractx.RunStatus        `json:"run_status,omitempty"`
	Agent       contractx.AgentName        `json:"agent,omitempty"`
	AgentStatus contractx.InvocationStatus `json:"agent_status,omitempty"`
	Attempt     int                        `json:"attempt,omitempty"`

	Failure *contractx.Failure `json:"failure,omitempty"`
	At      time.Time          `json:"at"`
}

// Emitter accepts events for a single run.
type Emitter interface {
	Emit(e Event)
}

type discard struct{}

func (discard) Emit(Event) {}

// Discard drops every event.
var Discard Emitter = discard{}
