package llm

import (
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/omnichannel-retail-orchestrator/agent/contract"
)

const (
	ProviderAuto       = "auto"
	ProviderOpenRouter = "openrouter"
	ProviderOpenAI     = "openai"
	ProviderAnthropic  = "anthropic"
	ProviderOffline    = "offline"
)

type Config struct {
	Provider     string `split_words:"true" default:"auto"`
	HistoryTurns int    `split_words:"true" default:"6"`
	// Fallback composes an offline reply when the provider call fails.
	Fallback bool `split_words:"true" default:"true"`
}

func (c Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Provider)) {
	case "", ProviderAuto, ProviderOpenRouter, ProviderOpenAI, ProviderAnthropic, ProviderOffline:
		return nil
	default:
		return fmt.Errorf("%w: unknown llm provider %q", contractx.ErrValidation, c.Provider)
	}
}

// resolveProvider picks a concrete provider for "auto" from the keys present.
func (c Config) resolveProvider(hasAnthropicKey, hasOpenRouterKey bool) string {
	provider := strings.ToLower(strings.TrimSpace(c.Provider))
	if provider != "" && provider != ProviderAuto {
		return provider
	}
	switch {
	case hasAnthropicKey:
		return ProviderAnthropic
	case hasOpenRouterKey:
		return ProviderOpenRouter
	default:
		return ProviderOffline
	}
}
