package orchestratornode

import (
	"fmt"
	"slices"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/omnichannel-retail-orchestrator/agent/contract"
	statex "github.com/tanpawarit/omnichannel-retail-orchestrator/agent/state"
)

// AggregateResults merges partial results in merge priority order. When two
// agents write the same field the higher-priority write wins.
func AggregateResults(in *GraphState) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	if err := in.Run.Transition(contractx.RunAggregating); err != nil {
		return nil, err
	}

	ordered := slices.Clone(in.Results)
	slices.SortStableFunc(ordered, func(a, b contractx.PartialResult) int {
		return a.Agent.Rank() - b.Agent.Rank()
	})

	in.Merged = statex.MutationSet{}
	for _, res := range ordered {
		if shadowed := in.Merged.Absorb(res.Mutations); len(shadowed) > 0 {
			log.Warn().
				Str("session_id", in.Req.SessionID).
				Str("agent", string(res.Agent)).
				Interface("fields", shadowed).
				Msg("lower-priority writes dropped")
		}
	}
	return in, nil
}
