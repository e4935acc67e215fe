package llm

import (
	"context"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/omnichannel-retail-orchestrator/agent/contract"
)

// EinoReasoner runs a prompt -> chat model graph.
type EinoReasoner struct {
	runner compose.Runnable[map[string]any, *schema.Message]
}

func NewEinoReasoner(ctx context.Context, chatModel einomodel.BaseChatModel) (*EinoReasoner, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("%w: chat model is nil", contractx.ErrValidation)
	}
	runner, err := compileComposeGraph(ctx, chatModel)
	if err != nil {
		return nil, err
	}
	return &EinoReasoner{runner: runner}, nil
}

func (r *EinoReasoner) Compose(ctx context.Context, req contractx.ReasoningRequest) (string, error) {
	if strings.TrimSpace(req.Instructions) == "" {
		return "", contractx.ErrPromptMissing
	}
	msg, err := r.runner.Invoke(ctx, map[string]any{
		"instructions": req.Instructions,
		"input":        renderInput(req),
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", contractx.ErrModelInvoke, err)
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return "", fmt.Errorf("%w: empty completion", contractx.ErrModelInvoke)
	}
	return strings.TrimSpace(msg.Content), nil
}

func compileComposeGraph(
	ctx context.Context,
	chatModel einomodel.BaseChatModel,
) (compose.Runnable[map[string]any, *schema.Message], error) {
	template := einoprompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{instructions}"),
		schema.UserMessage("{input}"),
	)

	graph := compose.NewGraph[map[string]any, *schema.Message]()
	if err := graph.AddChatTemplateNode("prompt", template); err != nil {
		return nil, fmt.Errorf("add compose prompt node: %w", err)
	}
	if err := graph.AddChatModelNode("model", chatModel); err != nil {
		return nil, fmt.Errorf("add compose model node: %w", err)
	}
	if err := graph.AddEdge(compose.START, "prompt"); err != nil {
		return nil, fmt.Errorf("add compose edge start->prompt: %w", err)
	}
	if err := graph.AddEdge("prompt", "model"); err != nil {
		return nil, fmt.Errorf("add compose edge prompt->model: %w", err)
	}
	if err := graph.AddEdge("model", compose.END); err != nil {
		return nil, fmt.Errorf("add compose edge model->end: %w", err)
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("reasoning.compose_reply"))
	if err != nil {
		return nil, fmt.Errorf("compile compose graph: %w", err)
	}
	return runner, nil
}
