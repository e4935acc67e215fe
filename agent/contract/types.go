package contract

import (
	"slices"
	"time"

	statex "github.com/tanpawarit/omnichannel-retail-orchestrator/agent/state"
)

type AgentName string

const (
	AgentRecommendation AgentName = "recommendation"
	AgentInventory      AgentName = "inventory"
	AgentPayment        AgentName = "payment"
	AgentFulfillment    AgentName = "fulfillment"
	AgentLoyalty        AgentName = "loyalty"
	AgentSupport        AgentName = "support"
)

// MergePriority orders agents from highest to lowest when two partial results
// write the same session field.
var MergePriority = []AgentName{
	AgentPayment,
	AgentInventory,
	AgentLoyalty,
	AgentFulfillment,
	AgentRecommendation,
	AgentSupport,
}

func (a AgentName) Valid() bool {
	return slices.Contains(MergePriority, a)
}

// Rank is the agent's index in MergePriority; unknown agents rank last.
func (a AgentName) Rank() int {
	if i := slices.Index(MergePriority, a); i >= 0 {
		return i
	}
	return len(MergePriority)
}

type Intent string

const (
	IntentLikeProduct        Intent = "like_product"
	IntentGetRecommendations Intent = "get_recommendations"
	IntentAddToCart          Intent = "add_to_cart"
	IntentUpdateCartQuantity Intent = "update_cart_quantity"
	IntentCheckAvailability  Intent = "check_store_availability"
	IntentReserveStore       Intent = "reserve_store"
	IntentProcessPayment     Intent = "process_payment"
	IntentChat               Intent = "chat"
	IntentSwitchChannel      Intent = "switch_channel"
)

// Request is the payload handed to every agent of a run.
type Request struct {
	RequestID string
	SessionID string
	Intent    Intent

	ProductID string
	Quantity  int
	StoreID   string
	Amount    statex.Money
	Message   string
	Channel   statex.Channel

	// Upstream holds outputs of agents that already ran in a sequential plan.
	Upstream map[AgentName]any
	Now      time.Time
}

// UpstreamOutput fetches a typed output produced earlier in the run.
func UpstreamOutput[T any](req Request, agent AgentName) (T, bool) {
	var zero T
	raw, ok := req.Upstream[agent]
	if !ok {
		return zero, false
	}
	out, ok := raw.(T)
	return out, ok
}

// PartialResult is what an agent returns instead of writing the session.
type PartialResult struct {
	Agent     AgentName
	Output    any
	Mutations statex.MutationSet
}

// RunStatus is the state of one orchestration run.
type RunStatus string

const (
	RunPending     RunStatus = "pending"
	RunRouting     RunStatus = "routing"
	RunDispatching RunStatus = "dispatching"
	RunAwaiting    RunStatus = "awaiting"
	RunAggregating RunStatus = "aggregating"
	RunCompleted   RunStatus = "completed"
	RunFailed      RunStatus = "failed"
)

func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunFailed
}

type InvocationStatus string

const (
	InvocationPending   InvocationStatus = "pending"
	InvocationRunning   InvocationStatus = "running"
	InvocationSucceeded InvocationStatus = "succeeded"
	InvocationFailed    InvocationStatus = "failed"
)

func (s InvocationStatus) Terminal() bool {
	return s == InvocationSucceeded || s == InvocationFailed
}

// ReasoningRequest is sent to the text-producing collaborator.
type ReasoningRequest struct {
	Agent        AgentName
	Instructions string
	Message      string
	History      []statex.Turn
	Facts        []string
}
