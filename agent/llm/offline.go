package llm

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/omnichannel-retail-orchestrator/agent/contract"
)

// OfflineReasoner composes replies from the facts alone. It is used when no
// provider key is configured and as the fallback for failed provider calls.
type OfflineReasoner struct{}

func NewOfflineReasoner() *OfflineReasoner {
	return &OfflineReasoner{}
}

func (OfflineReasoner) Compose(ctx context.Context, req contractx.ReasoningRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(req.Facts) == 0 {
		return "I'm here to help! You can ask about products, your cart, returns, exchanges or store pickup.", nil
	}

	sentences := make([]string, 0, len(req.Facts))
	for _, fact := range req.Facts {
		fact = strings.TrimSpace(fact)
		if fact == "" {
			continue
		}
		if !strings.HasSuffix(fact, ".") && !strings.HasSuffix(fact, "!") && !strings.HasSuffix(fact, "?") {
			fact += "."
		}
		sentences = append(sentences, fact)
	}
	return strings.Join(sentences, " "), nil
}

// FallbackReasoner tries primary and falls back on any non-context error.
type FallbackReasoner struct {
	primary  contractx.Reasoner
	fallback contractx.Reasoner
}

func NewFallbackReasoner(primary, fallback contractx.Reasoner) *FallbackReasoner {
	return &FallbackReasoner{primary: primary, fallback: fallback}
}

func (f *FallbackReasoner) Compose(ctx context.Context, req contractx.ReasoningRequest) (string, error) {
	reply, err := f.primary.Compose(ctx, req)
	if err == nil {
		return reply, nil
	}
	if ctx.Err() != nil {
		return "", err
	}
	log.Warn().Err(err).Str("agent", string(req.Agent)).Msg("reasoning provider failed, composing offline")
	return f.fallback.Compose(ctx, req)
}
