package specialist

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/compose"

	contractx "github.com/tanpawarit/omnichannel-retail-orchestrator/agent/contract"
	statex "github.com/tanpawarit/omnichannel-retail-orchestrator/agent/state"
)

type supportFlow func(context.Context, statex.Session, contractx.Request) (contractx.PartialResult, error)

func compileSupportGraph(
	ctx context.Context,
	replyFlow supportFlow,
	handoffFlow supportFlow,
) (compose.Runnable[supportInput, contractx.PartialResult], error) {
	graph := compose.NewGraph[supportInput, contractx.PartialResult]()

	if err := graph.AddLambdaNode("validate_request",
		compose.InvokableLambda(func(ctx context.Context, in supportInput) (*supportInput, error) {
			switch in.Req.Intent {
			case contractx.IntentChat:
				if strings.TrimSpace(in.Req.Message) == "" {
					return nil, fmt.Errorf("%w: chat message is required", contractx.ErrValidation)
				}
			case contractx.IntentSwitchChannel:
				if strings.TrimSpace(string(in.Req.Channel)) == "" {
					return nil, fmt.Errorf("%w: target channel is required", contractx.ErrValidation)
				}
			default:
				return nil, fmt.Errorf("%w: support does not handle %s", contractx.ErrValidation, in.Req.Intent)
			}
			return &in, nil
		}),
	); err != nil {
		return nil, fmt.Errorf("add support validate node: %w", err)
	}

	if err := graph.AddLambdaNode("reply_path",
		compose.InvokableLambda(func(ctx context.Context, in *supportInput) (contractx.PartialResult, error) {
			if in == nil {
				return contractx.PartialResult{}, fmt.Errorf("%w: support graph input is nil", contractx.ErrValidation)
			}
			return replyFlow(ctx, in.View, in.Req)
		}),
	); err != nil {
		return nil, fmt.Errorf("add support reply node: %w", err)
	}

	if err := graph.AddLambdaNode("handoff_path",
		compose.InvokableLambda(func(ctx context.Context, in *supportInput) (contractx.PartialResult, error) {
			if in == nil {
				return contractx.PartialResult{}, fmt.Errorf("%w: support graph input is nil", contractx.ErrValidation)
			}
			return handoffFlow(ctx, in.View, in.Req)
		}),
	); err != nil {
		return nil, fmt.Errorf("add support handoff node: %w", err)
	}

	branch := compose.NewGraphBranch(
		func(ctx context.Context, in *supportInput) (string, error) {
			if in == nil {
				return "", fmt.Errorf("%w: support graph input is nil", contractx.ErrValidation)
			}
			if in.Req.Intent == contractx.IntentSwitchChannel {
				return "handoff_path", nil
			}
			return "reply_path", nil
		},
		map[string]bool{
			"reply_path":   true,
			"handoff_path": true,
		},
	)

	if err := graph.AddBranch("validate_request", branch); err != nil {
		return nil, fmt.Errorf("add support branch: %w", err)
	}
	if err := graph.AddEdge(compose.START, "validate_request"); err != nil {
		return nil, fmt.Errorf("add support edge start->validate: %w", err)
	}
	if err := graph.AddEdge("reply_path", compose.END); err != nil {
		return nil, fmt.Errorf("add support edge reply->end: %w", err)
	}
	if err := graph.AddEdge("handoff_path", compose.END); err != nil {
		return nil, fmt.Errorf("add support edge handoff->end: %w", err)
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("specialist.support_graph"))
	if err != nil {
		return nil, fmt.Errorf("compile support graph: %w", err)
	}
	return runner, nil
}
