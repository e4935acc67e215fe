package specialist

import (
	"context"
	"errors"
	"fmt"

	"github.com/tanpawarit/omnichannel-retail-orchestrator/agent/catalog"
	contractx "github.com/tanpawarit/omnichannel-retail-orchestrator/agent/contract"
	statex "github.com/tanpawarit/omnichannel-retail-orchestrator/agent/state"
)

const defaultTier = "standard"

type loyaltyAgent struct {
	catalog *catalog.Catalog
}

func (a *loyaltyAgent) Name() contractx.AgentName { return contractx.AgentLoyalty }

func (a *loyaltyAgent) Execute(ctx context.Context, view statex.Session, req contractx.Request) (contractx.PartialResult, error) {
	out := contractx.PartialResult{Agent: a.Name()}
	if err := ctx.Err(); err != nil {
		return out, wrapAgentError(a.Name(), err)
	}

	customer, err := a.catalog.Customer(view.CustomerID)
	if err != nil {
		if !errors.Is(err, catalog.ErrCustomerNotFound) {
			return out, wrapAgentError(a.Name(), err)
		}
		customer = catalog.Customer{ID: view.CustomerID, Tier: defaultTier}
	}

	cart, err := targetCart(a.catalog, view, req)
	if err != nil {
		return out, wrapAgentError(a.Name(), err)
	}
	quote := quoteCart(cart)

	redeemable := redeemablePoints(customer.LoyaltyPoints, quote.Subtotal)
	result := LoyaltyOutput{
		Tier:             customer.Tier,
		Points:           customer.LoyaltyPoints,
		RedeemablePoints: redeemable,
		RedeemableValue:  statex.Major(redeemable),
		Quote:            quote,
	}
	if quote.Offer != "" {
		result.Offers = append(result.Offers, quote.Offer)
	}
	if redeemable > 0 {
		result.Offers = append(result.Offers, fmt.Sprintf("Redeem %d points for %s off", redeemable, statex.Major(redeemable)))
	}
	out.Output = result

	switch req.Intent {
	case contractx.IntentAddToCart, contractx.IntentUpdateCartQuantity:
		out.Mutations.Discount = statex.Ptr(quote.Discount)
	}
	return out, nil
}
