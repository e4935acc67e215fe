package orchestratornode

import (
	"fmt"

	contractx "github.com/tanpawarit/omnichannel-retail-orchestrator/agent/contract"
	"github.com/tanpawarit/omnichannel-retail-orchestrator/agent/routing"
)

func RoutePlan(in *GraphState, table *routing.Table) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	if err := in.Run.Transition(contractx.RunRouting); err != nil {
		return nil, err
	}

	plan, err := table.Route(in.Req.Intent)
	if err != nil {
		return nil, err
	}
	in.Plan = plan
	in.Run.Plan(plan.Agents)

	if err := in.Run.Transition(contractx.RunDispatching); err != nil {
		return nil, err
	}
	return in, nil
}
