package orchestratornode

import (
	"context"
	"fmt"

	contractx "github.com/tanpawarit/omnichannel-retail-orchestrator/agent/contract"
	statex "github.com/tanpawarit/omnichannel-retail-orchestrator/agent/state"
)

// LoadSession reads the snapshot the run works against. A missing session is
// an error; sessions are created explicitly, never by a run.
func LoadSession(ctx context.Context, in *GraphState, store statex.Store) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	sess, err := store.Get(ctx, in.Req.SessionID)
	if err != nil {
		return nil, err
	}
	in.Session = sess
	return in, nil
}
