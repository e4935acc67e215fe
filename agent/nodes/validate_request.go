package orchestratornode

import (
	"errors"
	"fmt"
	"strings"
	"time"

	contractx "github.com/tanpawarit/omnichannel-retail-orchestrator/agent/contract"
	statex "github.com/tanpawarit/omnichannel-retail-orchestrator/agent/state"
)

var ErrRunMissing = errors.New("orchestration run is missing")

func ValidateRequest(in GraphInput, nowFn func() time.Time) (*GraphState, error) {
	if in.Run == nil {
		return nil, ErrRunMissing
	}

	req := in.Request
	req.SessionID = strings.TrimSpace(req.SessionID)
	if req.SessionID == "" {
		return nil, statex.ErrInvalidSession
	}
	if strings.TrimSpace(string(req.Intent)) == "" {
		return nil, fmt.Errorf("%w: intent is required", contractx.ErrValidation)
	}
	if req.RequestID == "" {
		req.RequestID = in.Run.Record().ID
	}
	if req.Now.IsZero() {
		req.Now = nowFn().UTC()
	}

	return &GraphState{
		Run: in.Run,
		Req: req,
	}, nil
}
