package routing

import (
	"fmt"
	"slices"
	"strings"

	contractx "github.com/tanpawarit/omnichannel-retail-orchestrator/agent/contract"
	configx "github.com/tanpawarit/omnichannel-retail-orchestrator/pkg/config"
)

type Mode string

const (
	ModeSequential Mode = "sequential"
	ModeParallel   Mode = "parallel"
)

type PolicyKind string

const (
	PolicyNone          PolicyKind = ""
	PolicyRecalculation PolicyKind = "recalculation"
)

// Plan is the execution plan for one intent.
type Plan struct {
	Intent contractx.Intent      `yaml:"intent"`
	Mode   Mode                  `yaml:"mode"`
	Agents []contractx.AgentName `yaml:"agents"`
	Policy PolicyKind            `yaml:"policy,omitempty"`
}

func (p Plan) Validate() error {
	if strings.TrimSpace(string(p.Intent)) == "" {
		return fmt.Errorf("%w: plan intent is empty", contractx.ErrValidation)
	}
	if p.Mode != ModeSequential && p.Mode != ModeParallel {
		return fmt.Errorf("%w: intent %s has unknown mode %q", contractx.ErrValidation, p.Intent, p.Mode)
	}
	if len(p.Agents) == 0 {
		return fmt.Errorf("%w: intent %s has no agents", contractx.ErrValidation, p.Intent)
	}
	seen := make(map[contractx.AgentName]struct{}, len(p.Agents))
	for _, a := range p.Agents {
		if !a.Valid() {
			return fmt.Errorf("%w: intent %s: %q", contractx.ErrUnknownAgent, p.Intent, a)
		}
		if _, dup := seen[a]; dup {
			return fmt.Errorf("%w: intent %s lists %s twice", contractx.ErrValidation, p.Intent, a)
		}
		seen[a] = struct{}{}
	}
	switch p.Policy {
	case PolicyNone:
	case PolicyRecalculation:
		if p.Mode != ModeParallel {
			return fmt.Errorf("%w: intent %s: recalculation needs a parallel plan", contractx.ErrValidation, p.Intent)
		}
	default:
		return fmt.Errorf("%w: intent %s has unknown policy %q", contractx.ErrValidation, p.Intent, p.Policy)
	}
	return nil
}

type Table struct {
	routes map[contractx.Intent]Plan
}

type document struct {
	Routes []Plan `yaml:"routes"`
}

var defaultPlans = []Plan{
	{Intent: contractx.IntentLikeProduct, Mode: ModeSequential, Agents: []contractx.AgentName{contractx.AgentRecommendation}},
	{Intent: contractx.IntentGetRecommendations, Mode: ModeParallel, Agents: []contractx.AgentName{contractx.AgentRecommendation, contractx.AgentLoyalty}},
	{Intent: contractx.IntentAddToCart, Mode: ModeSequential, Agents: []contractx.AgentName{contractx.AgentInventory, contractx.AgentLoyalty, contractx.AgentPayment}},
	{Intent: contractx.IntentUpdateCartQuantity, Mode: ModeParallel, Agents: []contractx.AgentName{contractx.AgentInventory, contractx.AgentLoyalty, contractx.AgentPayment}, Policy: PolicyRecalculation},
	{Intent: contractx.IntentCheckAvailability, Mode: ModeSequential, Agents: []contractx.AgentName{contractx.AgentInventory}},
	{Intent: contractx.IntentReserveStore, Mode: ModeSequential, Agents: []contractx.AgentName{contractx.AgentInventory, contractx.AgentFulfillment}},
	{Intent: contractx.IntentProcessPayment, Mode: ModeSequential, Agents: []contractx.AgentName{contractx.AgentPayment, contractx.AgentFulfillment}},
	{Intent: contractx.IntentChat, Mode: ModeSequential, Agents: []contractx.AgentName{contractx.AgentRecommendation, contractx.AgentSupport}},
	{Intent: contractx.IntentSwitchChannel, Mode: ModeSequential, Agents: []contractx.AgentName{contractx.AgentSupport}},
}

func DefaultTable() *Table {
	t, err := NewTable(defaultPlans)
	if err != nil {
		panic(err)
	}
	return t
}

func NewTable(plans []Plan) (*Table, error) {
	t := &Table{routes: make(map[contractx.Intent]Plan, len(plans))}
	for _, p := range plans {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if _, dup := t.routes[p.Intent]; dup {
			return nil, fmt.Errorf("%w: duplicate route for %s", contractx.ErrValidation, p.Intent)
		}
		p.Agents = slices.Clone(p.Agents)
		t.routes[p.Intent] = p
	}
	return t, nil
}

// Load reads routes from YAML and layers them over the default table.
func Load(path string) (*Table, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultTable(), nil
	}
	doc, err := configx.LoadYAML[document](path)
	if err != nil {
		return nil, fmt.Errorf("load routing table: %w", err)
	}

	merged := make(map[contractx.Intent]Plan, len(defaultPlans))
	for _, p := range defaultPlans {
		merged[p.Intent] = p
	}
	for _, p := range doc.Routes {
		merged[p.Intent] = p
	}
	plans := make([]Plan, 0, len(merged))
	for _, p := range merged {
		plans = append(plans, p)
	}
	return NewTable(plans)
}

// Route resolves intent to its plan.
func (t *Table) Route(intent contractx.Intent) (Plan, error) {
	p, ok := t.routes[intent]
	if !ok {
		return Plan{}, &contractx.RoutingError{Intent: intent}
	}
	p.Agents = slices.Clone(p.Agents)
	return p, nil
}

func (t *Table) Intents() []contractx.Intent {
	out := make([]contractx.Intent, 0, len(t.routes))
	for intent := range t.routes {
		out = append(out, intent)
	}
	slices.Sort(out)
	return out
}
