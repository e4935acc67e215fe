package orchestratornode

import (
	"fmt"

	contractx "github.com/tanpawarit/omnichannel-retail-orchestrator/agent/contract"
)

func FinalizeResult(in *GraphState) (GraphOutput, error) {
	if in == nil {
		return GraphOutput{}, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	if err := in.Run.Transition(contractx.RunCompleted); err != nil {
		return GraphOutput{}, err
	}

	out := GraphOutput{
		Session: in.Session,
		Outputs: make(map[contractx.AgentName]any, len(in.Results)),
	}
	if in.Committed != nil {
		out.Session = *in.Committed
		out.Committed = true
	}
	for _, res := range in.Results {
		if res.Output != nil {
			out.Outputs[res.Agent] = res.Output
		}
	}
	return out, nil
}
