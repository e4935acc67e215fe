package routing

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	contractx "github.com/tanpawarit/omnichannel-retail-orchestrator/agent/contract"
)

func TestDefaultTableRoutesEveryIntent(t *testing.T) {
	t.Parallel()

	table := DefaultTable()
	for _, intent := range []contractx.Intent{
		contractx.IntentLikeProduct,
		contractx.IntentGetRecommendations,
		contractx.IntentAddToCart,
		contractx.IntentUpdateCartQuantity,
		contractx.IntentCheckAvailability,
		contractx.IntentReserveStore,
		contractx.IntentProcessPayment,
		contractx.IntentChat,
		contractx.IntentSwitchChannel,
	} {
		_, err := table.Route(intent)
		assert.NoError(t, err, "intent %s", intent)
	}

	plan, err := table.Route(contractx.IntentUpdateCartQuantity)
	require.NoError(t, err)
	assert.Equal(t, ModeParallel, plan.Mode)
	assert.Equal(t, PolicyRecalculation, plan.Policy)
	assert.ElementsMatch(t, []contractx.AgentName{contractx.AgentInventory, contractx.AgentLoyalty, contractx.AgentPayment}, plan.Agents)
}

func TestRouteUnknownIntent(t *testing.T) {
	t.Parallel()

	_, err := DefaultTable().Route("teleport")
	var routing *contractx.RoutingError
	require.ErrorAs(t, err, &routing)
	assert.Equal(t, contractx.Intent("teleport"), routing.Intent)
}

func TestNewTableRejectsBadPlans(t *testing.T) {
	t.Parallel()

	cases := map[string]Plan{
		"unknown agent": {Intent: "x", Mode: ModeSequential, Agents: []contractx.AgentName{"ghost"}},
		"no agents":     {Intent: "x", Mode: ModeParallel},
		"bad mode":      {Intent: "x", Mode: "sideways", Agents: []contractx.AgentName{contractx.AgentSupport}},
		"recalc sequential": {
			Intent: "x", Mode: ModeSequential, Policy: PolicyRecalculation,
			Agents: []contractx.AgentName{contractx.AgentLoyalty},
		},
		"duplicate agent": {
			Intent: "x", Mode: ModeParallel,
			Agents: []contractx.AgentName{contractx.AgentLoyalty, contractx.AgentLoyalty},
		},
	}
	for name, plan := range cases {
		_, err := NewTable([]Plan{plan})
		assert.Error(t, err, name)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "routes.yaml")
	body := `routes:
  - intent: chat
    mode: sequential
    agents: [support]
  - intent: gift_wrap
    mode: sequential
    agents: [fulfillment]
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	table, err := Load(path)
	require.NoError(t, err)

	chat, err := table.Route(contractx.IntentChat)
	require.NoError(t, err)
	assert.Equal(t, []contractx.AgentName{contractx.AgentSupport}, chat.Agents)

	_, err = table.Route("gift_wrap")
	assert.NoError(t, err)
	_, err = table.Route(contractx.IntentProcessPayment)
	assert.NoError(t, err)
}

func TestRouteReturnsCopy(t *testing.T) {
	t.Parallel()

	table := DefaultTable()
	plan, _ := table.Route(contractx.IntentChat)
	plan.Agents[0] = contractx.AgentPayment

	again, _ := table.Route(contractx.IntentChat)
	assert.Equal(t, contractx.AgentRecommendation, again.Agents[0])
}
