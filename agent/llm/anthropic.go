package llm

import (
	"context"
	"fmt"
	"strings"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"

	contractx "github.com/tanpawarit/omnichannel-retail-orchestrator/agent/contract"
)

type AnthropicReasoner struct {
	client      *anthropicsdk.Client
	model       string
	maxTokens   int64
	temperature float64
}

func NewAnthropicReasoner(client *anthropicsdk.Client, model string, maxTokens int64, temperature float64) *AnthropicReasoner {
	if maxTokens <= 0 {
		maxTokens = 600
	}
	return &AnthropicReasoner{client: client, model: model, maxTokens: maxTokens, temperature: temperature}
}

func (r *AnthropicReasoner) Compose(ctx context.Context, req contractx.ReasoningRequest) (string, error) {
	if strings.TrimSpace(req.Instructions) == "" {
		return "", contractx.ErrPromptMissing
	}

	resp, err := r.client.Messages.New(ctx, anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(r.model),
		MaxTokens: r.maxTokens,
		System:    []anthropicsdk.TextBlockParam{{Text: req.Instructions}},
		Messages: []anthropicsdk.MessageParam{
			anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(renderInput(req))),
		},
		Temperature: anthropicsdk.Float(r.temperature),
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", contractx.ErrModelInvoke, err)
	}

	var parts []string
	for _, block := range resp.Content {
		if block.Type == "text" {
			if text := strings.TrimSpace(block.AsText().Text); text != "" {
				parts = append(parts, text)
			}
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("%w: no text content", contractx.ErrModelInvoke)
	}
	return strings.Join(parts, "\n"), nil
}
