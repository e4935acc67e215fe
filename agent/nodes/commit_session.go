package orchestratornode

import (
	"context"
	"fmt"

	contractx "github.com/tanpawarit/omnichannel-retail-orchestrator/agent/contract"
	statex "github.com/tanpawarit/omnichannel-retail-orchestrator/agent/state"
)

// CommitSession writes the merged mutations against the snapshot version.
// Read-only runs leave the session untouched. A conflict is returned as is
// for the caller to retry with fresh state.
func CommitSession(ctx context.Context, in *GraphState, store statex.Store) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	if in.Merged.Empty() {
		return in, nil
	}

	committed, err := store.Commit(ctx, in.Session.SessionID, in.Session.Version, in.Merged)
	if err != nil {
		return nil, err
	}
	in.Committed = &committed
	return in, nil
}
