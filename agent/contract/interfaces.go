package contract

import (
	"context"

	statex "github.com/tanpawarit/omnichannel-retail-orchestrator/agent/state"
)

// Agent executes against an immutable session view and returns its writes
// as a PartialResult.
type Agent interface {
	Name() AgentName
	Execute(ctx context.Context, view statex.Session, req Request) (PartialResult, error)
}

type Registry interface {
	Agent(name AgentName) (Agent, bool)
}

// Reasoner produces customer-facing text.
type Reasoner interface {
	Compose(ctx context.Context, req ReasoningRequest) (string, error)
}
