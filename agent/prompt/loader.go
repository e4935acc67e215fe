package prompt

import (
	_ "embed"
	"strings"
)

var (
	//go:embed template/recommendation.txt
	recommendationRaw string

	//go:embed template/support.txt
	supportRaw string

	//go:embed template/handoff.txt
	handoffRaw string
)

// PromptSet holds the instructions sent with each reasoning request.
type PromptSet struct {
	Recommendation string
	Support        string
	Handoff        string
}

// LoadPromptSet returns the embedded prompts, trimmed.
func LoadPromptSet() PromptSet {
	return PromptSet{
		Recommendation: strings.TrimSpace(recommendationRaw),
		Support:        strings.TrimSpace(supportRaw),
		Handoff:        strings.TrimSpace(handoffRaw),
	}
}
