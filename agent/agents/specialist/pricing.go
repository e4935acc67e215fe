package specialist

import (
	"fmt"
	"slices"

	"github.com/tanpawarit/omnichannel-retail-orchestrator/agent/catalog"
	contractx "github.com/tanpawarit/omnichannel-retail-orchestrator/agent/contract"
	statex "github.com/tanpawarit/omnichannel-retail-orchestrator/agent/state"
)

const (
	bundleLines         = 3
	bundlePercent       = 20
	multiBuyLines       = 2
	multiBuyPercent     = 10
	pointsCapPercent    = 10
	freeShippingAbove   = 4000 // whole units
	expressDeliveryCost = 99   // whole units
)

// targetCart is the cart a request leaves behind, computed from the snapshot
// so parallel checks agree on it without seeing each other's writes.
// In a sequential plan the inventory agent has already written the cart into
// view, so its output is taken as is.
func targetCart(cat *catalog.Catalog, view statex.Session, req contractx.Request) ([]statex.CartItem, error) {
	if upstream, ok := contractx.UpstreamOutput[CartOutput](req, contractx.AgentInventory); ok {
		return slices.Clone(upstream.Cart), nil
	}
	switch req.Intent {
	case contractx.IntentAddToCart:
		if req.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity must be positive", contractx.ErrValidation)
		}
		product, err := cat.Product(req.ProductID)
		if err != nil {
			return nil, err
		}
		existing, _ := view.CartItem(req.ProductID)
		return statex.WithQuantity(view.Cart, req.ProductID, existing.Quantity+req.Quantity, product.UnitPrice())
	case contractx.IntentUpdateCartQuantity:
		if req.Quantity < 0 {
			return nil, fmt.Errorf("%w: quantity must not be negative", contractx.ErrValidation)
		}
		existing, ok := view.CartItem(req.ProductID)
		if !ok {
			return nil, fmt.Errorf("%w: product %s is not in the cart", contractx.ErrValidation, req.ProductID)
		}
		return statex.WithQuantity(view.Cart, req.ProductID, req.Quantity, existing.UnitPrice)
	default:
		return slices.Clone(view.Cart), nil
	}
}

// quoteCart prices cart with the multi-buy offers. Offers count distinct
// lines, not units.
func quoteCart(cart []statex.CartItem) Quote {
	var q Quote
	for _, item := range cart {
		q.Subtotal += item.LineTotal()
	}
	switch {
	case len(cart) >= bundleLines:
		q.Discount = q.Subtotal * bundlePercent / 100
		q.Offer = fmt.Sprintf("Bundle offer: %d%% off on %d+ items", bundlePercent, bundleLines)
	case len(cart) >= multiBuyLines:
		q.Discount = q.Subtotal * multiBuyPercent / 100
		q.Offer = fmt.Sprintf("Multi-buy: %d%% off on %d+ items", multiBuyPercent, multiBuyLines)
	}
	q.Total = q.Subtotal - q.Discount
	return q
}

// redeemablePoints caps points (1 point = 1 whole unit) at a share of subtotal.
func redeemablePoints(points int64, subtotal statex.Money) int64 {
	limit := int64(subtotal) / 100 * pointsCapPercent / 100
	return max(min(points, limit), 0)
}
