package specialist

import (
	"errors"
	"fmt"

	"github.com/tanpawarit/omnichannel-retail-orchestrator/agent/catalog"
	contractx "github.com/tanpawarit/omnichannel-retail-orchestrator/agent/contract"
	"github.com/tanpawarit/omnichannel-retail-orchestrator/agent/policy"
	promptx "github.com/tanpawarit/omnichannel-retail-orchestrator/agent/prompt"
)

// Deps are the collaborators shared by every agent.
type Deps struct {
	Catalog  *catalog.Catalog
	Reasoner contractx.Reasoner
	Prompts  promptx.PromptSet
	Policy   policy.Config
	// Gateways overrides the simulated gateways built from the catalog.
	Gateways     []policy.Gateway
	HistoryTurns int
}

type registryImpl struct {
	agents map[contractx.AgentName]contractx.Agent
}

func (r *registryImpl) Agent(name contractx.AgentName) (contractx.Agent, bool) {
	a, ok := r.agents[name]
	return a, ok
}

func NewRegistry(deps Deps) (contractx.Registry, error) {
	if deps.Catalog == nil {
		return nil, errors.New("specialist registry: catalog is required")
	}
	if deps.Reasoner == nil {
		return nil, errors.New("specialist registry: reasoner is required")
	}
	if deps.HistoryTurns <= 0 {
		deps.HistoryTurns = 6
	}
	gateways := deps.Gateways
	if len(gateways) == 0 {
		gateways = policy.SimulatedGateways(deps.Catalog.Gateways())
	}

	search, err := policy.NewFallbackSearch(deps.Catalog, deps.Policy)
	if err != nil {
		return nil, fmt.Errorf("specialist registry: %w", err)
	}
	support, err := newSupportAgent(deps)
	if err != nil {
		return nil, err
	}

	agents := []contractx.Agent{
		&recommendationAgent{catalog: deps.Catalog, reasoner: deps.Reasoner, prompt: deps.Prompts.Recommendation},
		&inventoryAgent{catalog: deps.Catalog, search: search},
		&loyaltyAgent{catalog: deps.Catalog},
		&paymentAgent{catalog: deps.Catalog, gateways: gateways, cfg: deps.Policy},
		&fulfillmentAgent{catalog: deps.Catalog},
		support,
	}

	r := &registryImpl{agents: make(map[contractx.AgentName]contractx.Agent, len(agents))}
	for _, a := range agents {
		r.agents[a.Name()] = a
	}
	return r, nil
}
