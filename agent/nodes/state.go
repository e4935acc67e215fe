package orchestratornode

import (
	contractx "github.com/tanpawarit/omnichannel-retail-orchestrator/agent/contract"
	"github.com/tanpawarit/omnichannel-retail-orchestrator/agent/routing"
	statex "github.com/tanpawarit/omnichannel-retail-orchestrator/agent/state"
)

type GraphInput struct {
	Run     *Run
	Request contractx.Request
}

type GraphOutput struct {
	Session   statex.Session
	Outputs   map[contractx.AgentName]any
	Committed bool
}

type GraphState struct {
	Run *Run
	Req contractx.Request

	// Session is the snapshot every agent of the run reads.
	Session statex.Session
	Plan    routing.Plan

	Results   []contractx.PartialResult
	Merged    statex.MutationSet
	Committed *statex.Session
}
