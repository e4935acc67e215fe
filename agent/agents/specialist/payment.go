package specialist

import (
	"context"
	"fmt"

	"github.com/tanpawarit/omnichannel-retail-orchestrator/agent/catalog"
	contractx "github.com/tanpawarit/omnichannel-retail-orchestrator/agent/contract"
	"github.com/tanpawarit/omnichannel-retail-orchestrator/agent/policy"
	statex "github.com/tanpawarit/omnichannel-retail-orchestrator/agent/state"
)

type paymentAgent struct {
	catalog  *catalog.Catalog
	gateways []policy.Gateway
	cfg      policy.Config
}

func (a *paymentAgent) Name() contractx.AgentName { return contractx.AgentPayment }

func (a *paymentAgent) Execute(ctx context.Context, view statex.Session, req contractx.Request) (contractx.PartialResult, error) {
	out := contractx.PartialResult{Agent: a.Name()}

	switch req.Intent {
	case contractx.IntentAddToCart, contractx.IntentUpdateCartQuantity:
		cart, err := targetCart(a.catalog, view, req)
		if err != nil {
			return out, wrapAgentError(a.Name(), err)
		}
		quote := quoteCart(cart)
		out.Output = PaymentOutput{Quote: &quote}
		out.Mutations.Totals = &statex.Totals{Subtotal: quote.Subtotal, Total: quote.Total}
		return out, nil

	case contractx.IntentProcessPayment:
		amount := req.Amount
		if amount == 0 {
			amount = quoteCart(view.Cart).Total
		}
		if amount <= 0 {
			return out, wrapAgentError(a.Name(), fmt.Errorf("%w: nothing to charge", contractx.ErrValidation))
		}

		// A fresh chain per request keeps attempt history scoped to this run.
		chain, err := policy.NewRetryChain(a.gateways, a.cfg)
		if err != nil {
			return out, wrapAgentError(a.Name(), err)
		}
		receipt, err := chain.Run(ctx, policy.ChargeRequest{
			SessionID:      view.SessionID,
			CustomerID:     view.CustomerID,
			Amount:         amount,
			IdempotencyKey: req.RequestID,
		})
		if err != nil {
			return out, wrapAgentError(a.Name(), err)
		}
		out.Output = PaymentOutput{Receipt: &receipt}
		return out, nil

	default:
		return out, wrapAgentError(a.Name(), fmt.Errorf("%w: payment does not handle %s", contractx.ErrValidation, req.Intent))
	}
}
