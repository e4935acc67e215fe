package llm

import (
	"context"
	"fmt"
	"strings"

	openaisdk "github.com/openai/openai-go"

	contractx "github.com/tanpawarit/omnichannel-retail-orchestrator/agent/contract"
)

// OpenAIReasoner calls the chat completions API directly.
type OpenAIReasoner struct {
	client      *openaisdk.Client
	model       string
	maxTokens   int64
	temperature float64
}

func NewOpenAIReasoner(client *openaisdk.Client, model string, maxTokens int64, temperature float64) *OpenAIReasoner {
	return &OpenAIReasoner{client: client, model: model, maxTokens: maxTokens, temperature: temperature}
}

func (r *OpenAIReasoner) Compose(ctx context.Context, req contractx.ReasoningRequest) (string, error) {
	if strings.TrimSpace(req.Instructions) == "" {
		return "", contractx.ErrPromptMissing
	}

	params := openaisdk.ChatCompletionNewParams{
		Model: r.model,
		Messages: []openaisdk.ChatCompletionMessageParamUnion{
			openaisdk.SystemMessage(req.Instructions),
			openaisdk.UserMessage(renderInput(req)),
		},
		Temperature: openaisdk.Float(r.temperature),
	}
	if r.maxTokens > 0 {
		params.MaxCompletionTokens = openaisdk.Int(r.maxTokens)
	}

	resp, err := r.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("%w: %v", contractx.ErrModelInvoke, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices returned", contractx.ErrModelInvoke)
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("%w: empty completion", contractx.ErrModelInvoke)
	}
	return content, nil
}
