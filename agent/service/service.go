// Package service is the customer-facing API of the retail orchestrator.
// Every session-changing operation is one orchestration run.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tanpawarit/omnichannel-retail-orchestrator/agent/agents/orchestrator"
	"github.com/tanpawarit/omnichannel-retail-orchestrator/agent/agents/specialist"
	"github.com/tanpawarit/omnichannel-retail-orchestrator/agent/catalog"
	contractx "github.com/tanpawarit/omnichannel-retail-orchestrator/agent/contract"
	"github.com/tanpawarit/omnichannel-retail-orchestrator/agent/events"
	"github.com/tanpawarit/omnichannel-retail-orchestrator/agent/policy"
	"github.com/tanpawarit/omnichannel-retail-orchestrator/agent/routing"
	statex "github.com/tanpawarit/omnichannel-retail-orchestrator/agent/state"
	logx "github.com/tanpawarit/omnichannel-retail-orchestrator/pkg/logger"
)

var ErrMissingOutput = errors.New("agent produced no output")

type Deps struct {
	Store     statex.Store
	Catalog   *catalog.Catalog
	Registry  contractx.Registry
	Routes    *routing.Table
	Publisher *events.Publisher

	Orchestrator orchestrator.Config
	Policy       policy.Config
}

type Option func(*Service)

// WithSessionIDs overrides how new session ids are minted.
func WithSessionIDs(next func() string) Option {
	return func(s *Service) {
		if next != nil {
			s.newSessionID = next
		}
	}
}

// WithOrchestratorOptions passes extra options to the run orchestrator.
func WithOrchestratorOptions(opts ...orchestrator.Option) Option {
	return func(s *Service) {
		s.orchOpts = append(s.orchOpts, opts...)
	}
}

type Service struct {
	store     statex.Store
	catalog   *catalog.Catalog
	orch      *orchestrator.Orchestrator
	search    *policy.FallbackSearch
	publisher *events.Publisher

	orchOpts     []orchestrator.Option
	newSessionID func() string
	log          zerolog.Logger
}

func New(deps Deps, opts ...Option) (*Service, error) {
	if deps.Store == nil {
		return nil, errors.New("service: session store is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("service: catalog is required")
	}
	if deps.Registry == nil {
		return nil, errors.New("service: agent registry is required")
	}
	if deps.Publisher == nil {
		deps.Publisher = events.NewPublisher()
	}

	s := &Service{
		store:        deps.Store,
		catalog:      deps.Catalog,
		publisher:    deps.Publisher,
		newSessionID: func() string { return "sess-" + uuid.NewString() },
		log:          logx.Component("service"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	search, err := policy.NewFallbackSearch(deps.Catalog, deps.Policy)
	if err != nil {
		return nil, err
	}
	s.search = search

	orchOpts := append([]orchestrator.Option{orchestrator.WithPublisher(deps.Publisher)}, s.orchOpts...)
	orch, err := orchestrator.New(deps.Store, deps.Registry, deps.Routes, deps.Orchestrator, orchOpts...)
	if err != nil {
		return nil, err
	}
	s.orch = orch
	return s, nil
}

// CreateSession opens a session on the mobile channel.
func (s *Service) CreateSession(ctx context.Context, customerID string) (string, error) {
	return s.CreateSessionOnChannel(ctx, customerID, statex.ChannelMobile)
}

func (s *Service) CreateSessionOnChannel(ctx context.Context, customerID string, channel statex.Channel) (string, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return "", statex.ErrInvalidCustomer
	}
	if !channel.Valid() {
		return "", fmt.Errorf("%w: %q", statex.ErrInvalidChannel, channel)
	}

	sess, err := s.store.CreateOrGet(ctx, s.newSessionID(), customerID, channel)
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	s.log.Info().
		Str("session_id", sess.SessionID).
		Str("customer_id", customerID).
		Str("channel", string(channel)).
		Msg("session created")
	return sess.SessionID, nil
}

func (s *Service) GetSession(ctx context.Context, sessionID string) (statex.Session, error) {
	return s.store.Get(ctx, sessionID)
}

// LikeProduct records a like and returns the liked set.
func (s *Service) LikeProduct(ctx context.Context, sessionID, productID string) ([]string, error) {
	res, err := s.run(ctx, contractx.Request{SessionID: sessionID, Intent: contractx.IntentLikeProduct, ProductID: productID})
	if err != nil {
		return nil, err
	}
	out, err := output[specialist.RecommendationOutput](res, contractx.AgentRecommendation)
	if err != nil {
		return nil, err
	}
	return out.Liked, nil
}

func (s *Service) GetRecommendations(ctx context.Context, sessionID string) ([]specialist.Recommendation, error) {
	res, err := s.run(ctx, contractx.Request{SessionID: sessionID, Intent: contractx.IntentGetRecommendations})
	if err != nil {
		return nil, err
	}
	out, err := output[specialist.RecommendationOutput](res, contractx.AgentRecommendation)
	if err != nil {
		return nil, err
	}
	return out.Items, nil
}

// AddToCart adds qty units of productID and returns the committed cart.
func (s *Service) AddToCart(ctx context.Context, sessionID, productID string, qty int) ([]statex.CartItem, error) {
	res, err := s.run(ctx, contractx.Request{
		SessionID: sessionID,
		Intent:    contractx.IntentAddToCart,
		ProductID: productID,
		Quantity:  qty,
	})
	if err != nil {
		return nil, err
	}
	return res.Session.Cart, nil
}

// UpdateCartQuantity sets the quantity of a cart line. Stock, loyalty and
// totals are recomputed together; if any of them fails the cart is left as
// it was.
func (s *Service) UpdateCartQuantity(ctx context.Context, sessionID, productID string, qty int) ([]statex.CartItem, error) {
	res, err := s.run(ctx, contractx.Request{
		SessionID: sessionID,
		Intent:    contractx.IntentUpdateCartQuantity,
		ProductID: productID,
		Quantity:  qty,
	})
	if err != nil {
		return nil, err
	}
	return res.Session.Cart, nil
}

// CheckStoreAvailability needs no session. An empty storeID means the
// nearest store.
func (s *Service) CheckStoreAvailability(ctx context.Context, storeID, productID string) (policy.Availability, error) {
	if strings.TrimSpace(productID) == "" {
		return policy.Availability{}, fmt.Errorf("%w: product id is empty", contractx.ErrValidation)
	}
	if storeID = strings.TrimSpace(storeID); storeID != "" {
		if _, err := s.catalog.Store(storeID); err != nil {
			return policy.Availability{}, err
		}
	}
	return s.search.Survey(ctx, productID, storeID)
}

func (s *Service) ReserveStore(ctx context.Context, sessionID, storeID string) (specialist.Reservation, error) {
	res, err := s.run(ctx, contractx.Request{SessionID: sessionID, Intent: contractx.IntentReserveStore, StoreID: storeID})
	if err != nil {
		return specialist.Reservation{}, err
	}
	out, err := output[specialist.FulfillmentOutput](res, contractx.AgentFulfillment)
	if err != nil {
		return specialist.Reservation{}, err
	}
	if out.Reservation == nil {
		return specialist.Reservation{}, fmt.Errorf("%w: fulfillment returned no reservation", ErrMissingOutput)
	}
	return *out.Reservation, nil
}

// ProcessPayment charges amount through the gateway chain. A zero amount
// charges the cart total.
func (s *Service) ProcessPayment(ctx context.Context, sessionID string, amount statex.Money) (policy.PaymentReceipt, error) {
	res, err := s.run(ctx, contractx.Request{SessionID: sessionID, Intent: contractx.IntentProcessPayment, Amount: amount})
	if err != nil {
		return policy.PaymentReceipt{}, err
	}
	out, err := output[specialist.PaymentOutput](res, contractx.AgentPayment)
	if err != nil {
		return policy.PaymentReceipt{}, err
	}
	if out.Receipt == nil {
		return policy.PaymentReceipt{}, fmt.Errorf("%w: payment returned no receipt", ErrMissingOutput)
	}
	return *out.Receipt, nil
}

func (s *Service) Chat(ctx context.Context, sessionID, message string) (string, error) {
	res, err := s.run(ctx, contractx.Request{SessionID: sessionID, Intent: contractx.IntentChat, Message: message})
	if err != nil {
		return "", err
	}
	out, err := output[specialist.SupportOutput](res, contractx.AgentSupport)
	if err != nil {
		return "", err
	}
	return out.Reply, nil
}

// SwitchChannel hands the session over to another channel and returns the
// handoff message.
func (s *Service) SwitchChannel(ctx context.Context, sessionID string, channel statex.Channel) (string, error) {
	res, err := s.run(ctx, contractx.Request{SessionID: sessionID, Intent: contractx.IntentSwitchChannel, Channel: channel})
	if err != nil {
		return "", err
	}
	out, err := output[specialist.SupportOutput](res, contractx.AgentSupport)
	if err != nil {
		return "", err
	}
	return out.Reply, nil
}

// Subscribe streams run progress for sessionID until ctx ends or the
// returned cancel func is called.
func (s *Service) Subscribe(ctx context.Context, sessionID string) (<-chan events.Event, func()) {
	return s.publisher.Subscribe(ctx, sessionID)
}

func (s *Service) run(ctx context.Context, req contractx.Request) (orchestrator.Result, error) {
	return s.orch.Run(ctx, req)
}

func output[T any](res orchestrator.Result, agent contractx.AgentName) (T, error) {
	var zero T
	raw, ok := res.Outputs[agent]
	if !ok {
		return zero, fmt.Errorf("%w: %s", ErrMissingOutput, agent)
	}
	out, ok := raw.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s returned %T", ErrMissingOutput, agent, raw)
	}
	return out, nil
}
