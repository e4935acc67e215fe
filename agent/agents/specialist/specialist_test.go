package specialist

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tanpawarit/omnichannel-retail-orchestrator/agent/catalog"
	contractx "github.com/tanpawarit/omnichannel-retail-orchestrator/agent/contract"
	"github.com/tanpawarit/omnichannel-retail-orchestrator/agent/llm"
	"github.com/tanpawarit/omnichannel-retail-orchestrator/agent/policy"
	promptx "github.com/tanpawarit/omnichannel-retail-orchestrator/agent/prompt"
	statex "github.com/tanpawarit/omnichannel-retail-orchestrator/agent/state"
)

var testNow = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

type recordingReasoner struct {
	reply string
	err   error
	reqs  []contractx.ReasoningRequest
}

func (r *recordingReasoner) Compose(_ context.Context, req contractx.ReasoningRequest) (string, error) {
	r.reqs = append(r.reqs, req)
	return r.reply, r.err
}

type stubGateway struct {
	name string
	err  error
}

func (g stubGateway) Name() string           { return g.name }
func (g stubGateway) Timeout() time.Duration { return time.Second }
func (g stubGateway) Charge(context.Context, policy.ChargeRequest) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	return "TXN-" + g.name, nil
}

func newTestRegistry(t *testing.T, deps Deps) contractx.Registry {
	t.Helper()
	if deps.Catalog == nil {
		cat, err := catalog.Default()
		require.NoError(t, err)
		deps.Catalog = cat
	}
	if deps.Reasoner == nil {
		deps.Reasoner = llm.NewOfflineReasoner()
	}
	deps.Prompts = promptx.LoadPromptSet()
	reg, err := NewRegistry(deps)
	require.NoError(t, err)
	return reg
}

func mustAgent(t *testing.T, reg contractx.Registry, name contractx.AgentName) contractx.Agent {
	t.Helper()
	a, ok := reg.Agent(name)
	require.True(t, ok, "agent %s not registered", name)
	return a
}

func session(cart ...statex.CartItem) statex.Session {
	s := statex.NewSession("sess-1", "C001", statex.ChannelMobile, testNow)
	s.Version = 3
	s.Cart = cart
	return s
}

func requireAgentError(t *testing.T, err error, retryable bool, class string) *contractx.AgentExecutionError {
	t.Helper()
	var aerr *contractx.AgentExecutionError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, retryable, aerr.Retryable)
	assert.Equal(t, class, aerr.Class)
	return aerr
}

func TestNewRegistryRegistersEveryAgent(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry(t, Deps{})
	for _, name := range contractx.MergePriority {
		a := mustAgent(t, reg, name)
		assert.Equal(t, name, a.Name())
	}
	assert.Len(t, reg.(*registryImpl).agents, len(contractx.MergePriority))
}

func TestNewRegistryRequiresCollaborators(t *testing.T) {
	t.Parallel()

	_, err := NewRegistry(Deps{})
	require.Error(t, err)
}

func TestRecommendationLikeProduct(t *testing.T) {
	t.Parallel()

	agent := mustAgent(t, newTestRegistry(t, Deps{}), contractx.AgentRecommendation)
	view := session()
	view.LikedProducts = []string{"VH005"}

	res, err := agent.Execute(context.Background(), view, contractx.Request{Intent: contractx.IntentLikeProduct, ProductID: "VH001"})
	require.NoError(t, err)
	assert.Equal(t, []string{"VH001"}, res.Mutations.LikeProducts)
	assert.Equal(t, []string{"VH001", "VH005"}, res.Output.(RecommendationOutput).Liked)

	res, err = agent.Execute(context.Background(), view, contractx.Request{Intent: contractx.IntentLikeProduct, ProductID: "VH005"})
	require.NoError(t, err)
	assert.True(t, res.Mutations.Empty())

	_, err = agent.Execute(context.Background(), view, contractx.Request{Intent: contractx.IntentLikeProduct, ProductID: "NOPE"})
	requireAgentError(t, err, false, contractx.ClassInvalid)
	assert.ErrorIs(t, err, catalog.ErrProductNotFound)
}

func TestRecommendationRanking(t *testing.T) {
	t.Parallel()

	reasoner := &recordingReasoner{reply: "Here are a few picks."}
	agent := mustAgent(t, newTestRegistry(t, Deps{Reasoner: reasoner}), contractx.AgentRecommendation)

	t.Run("trending without likes or cart", func(t *testing.T) {
		res, err := agent.Execute(context.Background(), session(), contractx.Request{Intent: contractx.IntentGetRecommendations})
		require.NoError(t, err)
		out := res.Output.(RecommendationOutput)
		require.NotEmpty(t, out.Items)
		assert.LessOrEqual(t, len(out.Items), maxRecommendations)
		assert.Equal(t, "VH001", out.Items[0].ProductID)
		assert.Equal(t, "Trending this week", out.Items[0].Reason)
		assert.Equal(t, "Here are a few picks.", out.Pitch)
		assert.True(t, res.Mutations.Empty())
	})

	t.Run("liked products seed the ranking", func(t *testing.T) {
		view := session(statex.CartItem{ProductID: "VH008", Quantity: 1, UnitPrice: statex.Major(4500)})
		view.LikedProducts = []string{"VH001"}

		res, err := agent.Execute(context.Background(), view, contractx.Request{Intent: contractx.IntentGetRecommendations})
		require.NoError(t, err)
		for _, item := range res.Output.(RecommendationOutput).Items {
			assert.NotEqual(t, "VH001", item.ProductID)
			assert.NotEqual(t, "VH008", item.ProductID)
			assert.Contains(t, item.Reason, "Classic Blue Formal Shirt")
		}
	})

	t.Run("chat keywords boost matching products", func(t *testing.T) {
		res, err := agent.Execute(context.Background(), session(), contractx.Request{Intent: contractx.IntentChat, Message: "Anything for summer?"})
		require.NoError(t, err)
		out := res.Output.(RecommendationOutput)
		require.NotEmpty(t, out.Items)
		assert.Equal(t, "VH006", out.Items[0].ProductID)
		assert.Empty(t, out.Pitch)
	})
}

func TestRecommendationReasonerFailureIsRetryable(t *testing.T) {
	t.Parallel()

	reasoner := &recordingReasoner{err: contractx.ErrModelInvoke}
	agent := mustAgent(t, newTestRegistry(t, Deps{Reasoner: reasoner}), contractx.AgentRecommendation)

	_, err := agent.Execute(context.Background(), session(), contractx.Request{Intent: contractx.IntentGetRecommendations})
	requireAgentError(t, err, true, contractx.ClassUnavailable)
}

func TestInventoryAddToCart(t *testing.T) {
	t.Parallel()

	agent := mustAgent(t, newTestRegistry(t, Deps{}), contractx.AgentInventory)
	view := session(statex.CartItem{ProductID: "VH001", Quantity: 1, UnitPrice: statex.Major(2500)})

	res, err := agent.Execute(context.Background(), view, contractx.Request{Intent: contractx.IntentAddToCart, ProductID: "VH001", Quantity: 2})
	require.NoError(t, err)

	out := res.Output.(CartOutput)
	require.NotNil(t, out.Availability)
	assert.True(t, out.Availability.Fulfilled)
	assert.Equal(t, "S001", out.Availability.RequestedStore)
	assert.True(t, res.Mutations.CartSet)
	assert.Equal(t, []statex.CartItem{{ProductID: "VH001", Quantity: 3, UnitPrice: statex.Major(2500)}}, res.Mutations.Cart)
	assert.Len(t, view.Cart, 1)
	assert.Equal(t, 1, view.Cart[0].Quantity)
}

func TestInventoryAddToCartUsesNearbyStock(t *testing.T) {
	t.Parallel()

	agent := mustAgent(t, newTestRegistry(t, Deps{}), contractx.AgentInventory)
	res, err := agent.Execute(context.Background(), session(), contractx.Request{Intent: contractx.IntentAddToCart, ProductID: "VH004", Quantity: 5})
	require.NoError(t, err)

	avail := res.Output.(CartOutput).Availability
	require.NotNil(t, avail)
	assert.True(t, avail.Fulfilled)
	require.Len(t, avail.Stores, 2)
	assert.Equal(t, policy.SourceRequestedStore, avail.Stores[0].Source)
	assert.Equal(t, policy.SourceNearbyStore, avail.Stores[1].Source)
}

func TestInventoryAddToCartOutOfStock(t *testing.T) {
	t.Parallel()

	agent := mustAgent(t, newTestRegistry(t, Deps{}), contractx.AgentInventory)
	_, err := agent.Execute(context.Background(), session(), contractx.Request{Intent: contractx.IntentAddToCart, ProductID: "VH001", Quantity: 20})

	requireAgentError(t, err, false, contractx.ClassOutOfStock)
	var stockErr *contractx.StockUnavailableError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, []string{"S001", "S002", "S003", "S004", "S005"}, stockErr.ScannedStores)
}

func TestInventoryUpdateQuantity(t *testing.T) {
	t.Parallel()

	agent := mustAgent(t, newTestRegistry(t, Deps{}), contractx.AgentInventory)
	view := session(
		statex.CartItem{ProductID: "VH001", Quantity: 1, UnitPrice: statex.Major(2500)},
		statex.CartItem{ProductID: "VH002", Quantity: 1, UnitPrice: statex.Major(800)},
	)

	res, err := agent.Execute(context.Background(), view, contractx.Request{Intent: contractx.IntentUpdateCartQuantity, ProductID: "VH002", Quantity: 0})
	require.NoError(t, err)
	assert.Nil(t, res.Output.(CartOutput).Availability)
	assert.Equal(t, []statex.CartItem{{ProductID: "VH001", Quantity: 1, UnitPrice: statex.Major(2500)}}, res.Mutations.Cart)

	_, err = agent.Execute(context.Background(), view, contractx.Request{Intent: contractx.IntentUpdateCartQuantity, ProductID: "VH003", Quantity: 2})
	requireAgentError(t, err, false, contractx.ClassInvalid)
}

func TestInventoryReserveStoreChecksCart(t *testing.T) {
	t.Parallel()

	agent := mustAgent(t, newTestRegistry(t, Deps{}), contractx.AgentInventory)
	view := session(statex.CartItem{ProductID: "VH002", Quantity: 2, UnitPrice: statex.Major(800)})

	res, err := agent.Execute(context.Background(), view, contractx.Request{Intent: contractx.IntentReserveStore, StoreID: "S003"})
	require.NoError(t, err)
	assert.Equal(t, PickupCheck{StoreID: "S003", Ready: []string{"VH002"}}, res.Output)

	_, err = agent.Execute(context.Background(), view, contractx.Request{Intent: contractx.IntentReserveStore, StoreID: "S004"})
	requireAgentError(t, err, false, contractx.ClassOutOfStock)

	_, err = agent.Execute(context.Background(), view, contractx.Request{Intent: contractx.IntentReserveStore, StoreID: "S999"})
	assert.ErrorIs(t, err, catalog.ErrStoreNotFound)
}

func TestLoyaltyQuotesTargetCart(t *testing.T) {
	t.Parallel()

	agent := mustAgent(t, newTestRegistry(t, Deps{}), contractx.AgentLoyalty)
	view := session(statex.CartItem{ProductID: "VH001", Quantity: 1, UnitPrice: statex.Major(2500)})

	res, err := agent.Execute(context.Background(), view, contractx.Request{Intent: contractx.IntentAddToCart, ProductID: "VH002", Quantity: 1})
	require.NoError(t, err)

	out := res.Output.(LoyaltyOutput)
	assert.Equal(t, "gold", out.Tier)
	assert.Equal(t, statex.Major(3300), out.Quote.Subtotal)
	assert.Equal(t, statex.Major(330), out.Quote.Discount)
	assert.Equal(t, int64(330), out.RedeemablePoints)
	require.NotNil(t, res.Mutations.Discount)
	assert.Equal(t, statex.Major(330), *res.Mutations.Discount)
	assert.Nil(t, res.Mutations.Totals)
}

func TestLoyaltyUnknownCustomerIsStandard(t *testing.T) {
	t.Parallel()

	agent := mustAgent(t, newTestRegistry(t, Deps{}), contractx.AgentLoyalty)
	view := session()
	view.CustomerID = "walk-in"

	res, err := agent.Execute(context.Background(), view, contractx.Request{Intent: contractx.IntentGetRecommendations})
	require.NoError(t, err)
	out := res.Output.(LoyaltyOutput)
	assert.Equal(t, defaultTier, out.Tier)
	assert.Zero(t, out.RedeemablePoints)
	assert.True(t, res.Mutations.Empty())
}

func TestPaymentQuoteWritesTotals(t *testing.T) {
	t.Parallel()

	agent := mustAgent(t, newTestRegistry(t, Deps{}), contractx.AgentPayment)
	view := session(
		statex.CartItem{ProductID: "VH001", Quantity: 1, UnitPrice: statex.Major(2500)},
		statex.CartItem{ProductID: "VH002", Quantity: 1, UnitPrice: statex.Major(800)},
	)

	res, err := agent.Execute(context.Background(), view, contractx.Request{Intent: contractx.IntentUpdateCartQuantity, ProductID: "VH001", Quantity: 2})
	require.NoError(t, err)
	require.NotNil(t, res.Mutations.Totals)
	assert.Equal(t, statex.Totals{Subtotal: statex.Major(5800), Total: statex.Major(5220)}, *res.Mutations.Totals)
	assert.Nil(t, res.Mutations.Discount)
}

func TestPaymentQuoteUsesUpstreamCart(t *testing.T) {
	t.Parallel()

	agent := mustAgent(t, newTestRegistry(t, Deps{}), contractx.AgentPayment)
	added := []statex.CartItem{{ProductID: "VH002", Quantity: 2, UnitPrice: statex.Major(800)}}
	view := session(added...)

	res, err := agent.Execute(context.Background(), view, contractx.Request{
		Intent:    contractx.IntentAddToCart,
		ProductID: "VH002",
		Quantity:  2,
		Upstream:  map[contractx.AgentName]any{contractx.AgentInventory: CartOutput{Cart: added}},
	})
	require.NoError(t, err)
	require.NotNil(t, res.Mutations.Totals)
	assert.Equal(t, statex.Major(1600), res.Mutations.Totals.Subtotal, "quantity must not be added twice")
}

func TestPaymentProcessRunsRetryChain(t *testing.T) {
	t.Parallel()

	gateways := []policy.Gateway{
		stubGateway{name: "A", err: context.DeadlineExceeded},
		stubGateway{name: "B", err: policy.ErrDeclined},
		stubGateway{name: "C"},
	}
	agent := mustAgent(t, newTestRegistry(t, Deps{Gateways: gateways}), contractx.AgentPayment)
	view := session(statex.CartItem{ProductID: "VH001", Quantity: 1, UnitPrice: statex.Major(2500)})

	res, err := agent.Execute(context.Background(), view, contractx.Request{Intent: contractx.IntentProcessPayment, RequestID: "req-1"})
	require.NoError(t, err)

	receipt := res.Output.(PaymentOutput).Receipt
	require.NotNil(t, receipt)
	assert.Equal(t, "C", receipt.Gateway)
	assert.Equal(t, statex.Major(2500), receipt.Amount)
	require.Len(t, receipt.Attempts, 3)
	assert.Equal(t, contractx.ClassTimeout, receipt.Attempts[0].Outcome)
	assert.Equal(t, contractx.ClassDeclined, receipt.Attempts[1].Outcome)
}

func TestPaymentExhaustedIsFatal(t *testing.T) {
	t.Parallel()

	gateways := []policy.Gateway{
		stubGateway{name: "A", err: policy.ErrGatewayUnavailable},
		stubGateway{name: "B", err: policy.ErrDeclined},
	}
	agent := mustAgent(t, newTestRegistry(t, Deps{Gateways: gateways}), contractx.AgentPayment)

	_, err := agent.Execute(context.Background(), session(), contractx.Request{Intent: contractx.IntentProcessPayment, Amount: statex.Major(100)})
	requireAgentError(t, err, false, contractx.ClassDeclined)
	var exhausted *contractx.PaymentExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Len(t, exhausted.Attempts, 2)

	_, err = agent.Execute(context.Background(), session(), contractx.Request{Intent: contractx.IntentProcessPayment})
	requireAgentError(t, err, false, contractx.ClassInvalid)
}

func TestFulfillmentReserveStore(t *testing.T) {
	t.Parallel()

	agent := mustAgent(t, newTestRegistry(t, Deps{}), contractx.AgentFulfillment)
	req := contractx.Request{
		Intent:   contractx.IntentReserveStore,
		StoreID:  "S002",
		Now:      testNow,
		Upstream: map[contractx.AgentName]any{contractx.AgentInventory: PickupCheck{StoreID: "S002", Ready: []string{"VH004"}}},
	}

	res, err := agent.Execute(context.Background(), session(), req)
	require.NoError(t, err)

	out := res.Output.(FulfillmentOutput)
	require.NotNil(t, out.Reservation)
	assert.Equal(t, "Powai Store", out.Reservation.StoreName)
	assert.Equal(t, []string{"VH004"}, out.Reservation.Items)
	assert.Equal(t, testNow.Add(pickupHold), out.Reservation.PickupBy)
	assert.Equal(t, "S002", *res.Mutations.ReservedStore)
	assert.Equal(t, FulfillmentStorePickup, *res.Mutations.Fulfillment)
}

func TestFulfillmentAfterPayment(t *testing.T) {
	t.Parallel()

	agent := mustAgent(t, newTestRegistry(t, Deps{}), contractx.AgentFulfillment)
	view := session(statex.CartItem{ProductID: "VH005", Quantity: 1, UnitPrice: statex.Major(7999)})

	_, err := agent.Execute(context.Background(), view, contractx.Request{Intent: contractx.IntentProcessPayment})
	requireAgentError(t, err, false, contractx.ClassInvalid)

	req := contractx.Request{
		Intent:   contractx.IntentProcessPayment,
		Upstream: map[contractx.AgentName]any{contractx.AgentPayment: PaymentOutput{Receipt: &policy.PaymentReceipt{Gateway: "C"}}},
	}
	res, err := agent.Execute(context.Background(), view, req)
	require.NoError(t, err)
	out := res.Output.(FulfillmentOutput)
	assert.Equal(t, FulfillmentStandard, out.Recommended)
	assert.Len(t, out.Options, 3)
	assert.Equal(t, FulfillmentStandard, *res.Mutations.Fulfillment)
}

func TestSupportChat(t *testing.T) {
	t.Parallel()

	reasoner := &recordingReasoner{reply: "You can return it within 30 days."}
	agent := mustAgent(t, newTestRegistry(t, Deps{Reasoner: reasoner}), contractx.AgentSupport)
	view := session(statex.CartItem{ProductID: "VH001", Quantity: 1, UnitPrice: statex.Major(2500)})
	req := contractx.Request{
		Intent:  contractx.IntentChat,
		Message: "How do I return my shirt?",
		Now:     testNow,
		Upstream: map[contractx.AgentName]any{
			contractx.AgentRecommendation: RecommendationOutput{Items: []Recommendation{{Name: "Navy Blue Silk Tie", Price: statex.Major(800), Reason: "pairs well"}}},
		},
	}

	res, err := agent.Execute(context.Background(), view, req)
	require.NoError(t, err)

	out := res.Output.(SupportOutput)
	assert.Equal(t, TopicReturn, out.Topic)
	assert.Equal(t, "You can return it within 30 days.", out.Reply)

	require.Len(t, res.Mutations.AppendTurns, 2)
	assert.Equal(t, statex.RoleCustomer, res.Mutations.AppendTurns[0].Role)
	assert.Equal(t, statex.RoleAssistant, res.Mutations.AppendTurns[1].Role)
	assert.Equal(t, "support", res.Mutations.AppendTurns[1].Agent)

	require.Len(t, reasoner.reqs, 1)
	facts := reasoner.reqs[0].Facts
	assert.Contains(t, facts[0], "30 days")
	assert.Contains(t, facts, "Suggested for this customer: Navy Blue Silk Tie at 800.00 (pairs well)")
}

func TestSupportChatValidation(t *testing.T) {
	t.Parallel()

	agent := mustAgent(t, newTestRegistry(t, Deps{}), contractx.AgentSupport)
	_, err := agent.Execute(context.Background(), session(), contractx.Request{Intent: contractx.IntentChat, Message: "  "})
	requireAgentError(t, err, false, contractx.ClassInvalid)
}

func TestSupportReasonerFailureIsRetryable(t *testing.T) {
	t.Parallel()

	reasoner := &recordingReasoner{err: errors.Join(contractx.ErrModelInvoke, errors.New("503"))}
	agent := mustAgent(t, newTestRegistry(t, Deps{Reasoner: reasoner}), contractx.AgentSupport)

	_, err := agent.Execute(context.Background(), session(), contractx.Request{Intent: contractx.IntentChat, Message: "hello"})
	requireAgentError(t, err, true, contractx.ClassUnavailable)
}

func TestSupportSwitchChannel(t *testing.T) {
	t.Parallel()

	agent := mustAgent(t, newTestRegistry(t, Deps{}), contractx.AgentSupport)
	view := session(statex.CartItem{ProductID: "VH001", Quantity: 1, UnitPrice: statex.Major(2500)})
	view.ReservedStore = "S001"

	res, err := agent.Execute(context.Background(), view, contractx.Request{Intent: contractx.IntentSwitchChannel, Channel: statex.ChannelStore, Now: testNow})
	require.NoError(t, err)

	require.NotNil(t, res.Mutations.Channel)
	assert.Equal(t, statex.ChannelStore, *res.Mutations.Channel)
	require.Len(t, res.Mutations.AppendTurns, 1)
	assert.Equal(t, statex.ChannelStore, res.Mutations.AppendTurns[0].Channel)
	assert.Contains(t, res.Output.(SupportOutput).Reply, "Bandra Store")

	_, err = agent.Execute(context.Background(), view, contractx.Request{Intent: contractx.IntentSwitchChannel, Channel: "fax"})
	requireAgentError(t, err, false, contractx.ClassInvalid)
}

func TestDetectTopic(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"I want a refund":         TopicReturn,
		"Can I exchange the tie?": TopicExchange,
		"need help with my order": TopicHelp,
		"hi there":                TopicGeneral,
	}
	for msg, want := range tests {
		assert.Equal(t, want, detectTopic(msg), msg)
	}
}

func TestQuoteCart(t *testing.T) {
	t.Parallel()

	one := []statex.CartItem{{ProductID: "A", Quantity: 3, UnitPrice: statex.Major(1000)}}
	assert.Equal(t, Quote{Subtotal: statex.Major(3000), Total: statex.Major(3000)}, quoteCart(one))

	three := append(one,
		statex.CartItem{ProductID: "B", Quantity: 1, UnitPrice: statex.Major(500)},
		statex.CartItem{ProductID: "C", Quantity: 1, UnitPrice: statex.Major(500)},
	)
	q := quoteCart(three)
	assert.Equal(t, statex.Major(4000), q.Subtotal)
	assert.Equal(t, statex.Major(800), q.Discount)
	assert.Equal(t, statex.Major(3200), q.Total)
	assert.Contains(t, q.Offer, "Bundle")
}

func TestRedeemablePoints(t *testing.T) {
	t.Parallel()

	assert.Equal(t, int64(250), redeemablePoints(1500, statex.Major(2500)))
	assert.Equal(t, int64(100), redeemablePoints(100, statex.Major(2500)))
	assert.Equal(t, int64(0), redeemablePoints(100, 0))
}
