package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/omnichannel-retail-orchestrator/agent/contract"
	anthropicx "github.com/tanpawarit/omnichannel-retail-orchestrator/pkg/anthropic"
	openrouterx "github.com/tanpawarit/omnichannel-retail-orchestrator/pkg/openrouter"
)

// New builds the reasoning collaborator selected by cfg.
func New(ctx context.Context, cfg Config, orCfg openrouterx.Config, anCfg anthropicx.Config) (contractx.Reasoner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	hasAnthropic := strings.TrimSpace(anCfg.APIKey) != ""
	hasOpenRouter := strings.TrimSpace(orCfg.APIKey) != ""
	provider := cfg.resolveProvider(hasAnthropic, hasOpenRouter)

	var (
		primary contractx.Reasoner
		err     error
	)
	switch provider {
	case ProviderOffline:
		return NewOfflineReasoner(), nil
	case ProviderAnthropic:
		client := anthropicx.NewClient(anCfg)
		if client == nil {
			return nil, fmt.Errorf("%w: anthropic api key is required", contractx.ErrValidation)
		}
		primary = NewAnthropicReasoner(client, anCfg.Model, anCfg.MaxTokens, anCfg.Temperature)
	case ProviderOpenAI:
		client := openrouterx.NewClient(orCfg)
		if client == nil {
			return nil, fmt.Errorf("%w: openrouter api key is required", contractx.ErrValidation)
		}
		maxTokens := int64(0)
		if orCfg.MaxCompletionToken != nil {
			maxTokens = int64(*orCfg.MaxCompletionToken)
		}
		primary = NewOpenAIReasoner(client, orCfg.Model, maxTokens, float64(orCfg.Temperature))
	case ProviderOpenRouter:
		if !hasOpenRouter {
			return nil, fmt.Errorf("%w: openrouter api key is required", contractx.ErrValidation)
		}
		chatModel, mErr := orCfg.ChatModel(ctx)
		if mErr != nil {
			return nil, fmt.Errorf("%w: %v", contractx.ErrModelInvoke, mErr)
		}
		primary, err = NewEinoReasoner(ctx, chatModel)
		if err != nil {
			return nil, err
		}
	}

	log.Info().Str("provider", provider).Bool("fallback", cfg.Fallback).Msg("reasoning backend ready")
	if cfg.Fallback {
		return NewFallbackReasoner(primary, NewOfflineReasoner()), nil
	}
	return primary, nil
}

// renderInput flattens a request into the user turn sent to remote models.
func renderInput(req contractx.ReasoningRequest) string {
	var b strings.Builder
	if len(req.History) > 0 {
		b.WriteString("Recent conversation:\n")
		for _, turn := range req.History {
			fmt.Fprintf(&b, "- %s (%s): %s\n", turn.Role, turn.Channel, turn.Text)
		}
		b.WriteString("\n")
	}
	if len(req.Facts) > 0 {
		b.WriteString("Facts:\n")
		for _, fact := range req.Facts {
			fmt.Fprintf(&b, "- %s\n", fact)
		}
		b.WriteString("\n")
	}
	b.WriteString("Customer message: ")
	b.WriteString(strings.TrimSpace(req.Message))
	return b.String()
}
