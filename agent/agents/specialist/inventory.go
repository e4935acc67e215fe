package specialist

import (
	"context"
	"fmt"
	"slices"

	"github.com/tanpawarit/omnichannel-retail-orchestrator/agent/catalog"
	contractx "github.com/tanpawarit/omnichannel-retail-orchestrator/agent/contract"
	"github.com/tanpawarit/omnichannel-retail-orchestrator/agent/policy"
	statex "github.com/tanpawarit/omnichannel-retail-orchestrator/agent/state"
)

type inventoryAgent struct {
	catalog *catalog.Catalog
	search  *policy.FallbackSearch
}

func (a *inventoryAgent) Name() contractx.AgentName { return contractx.AgentInventory }

func (a *inventoryAgent) Execute(ctx context.Context, view statex.Session, req contractx.Request) (contractx.PartialResult, error) {
	out := contractx.PartialResult{Agent: a.Name()}

	switch req.Intent {
	case contractx.IntentAddToCart, contractx.IntentUpdateCartQuantity:
		cart, err := targetCart(a.catalog, view, req)
		if err != nil {
			return out, wrapAgentError(a.Name(), err)
		}
		result := CartOutput{Cart: cart}
		if want := quantityIn(cart, req.ProductID); want > 0 {
			avail, err := a.locate(ctx, req.ProductID, want, view.ReservedStore)
			if err != nil {
				return out, wrapAgentError(a.Name(), err)
			}
			result.Availability = &avail
		}
		out.Output = result
		out.Mutations = out.Mutations.SetCart(cart)
		return out, nil

	case contractx.IntentCheckAvailability:
		qty := max(req.Quantity, 1)
		avail, err := a.search.Search(ctx, req.ProductID, qty, req.StoreID)
		if err != nil {
			return out, wrapAgentError(a.Name(), err)
		}
		out.Output = avail
		return out, nil

	case contractx.IntentReserveStore:
		check, err := a.pickupCheck(ctx, view, req.StoreID)
		if err != nil {
			return out, wrapAgentError(a.Name(), err)
		}
		out.Output = check
		return out, nil

	default:
		return out, wrapAgentError(a.Name(), fmt.Errorf("%w: inventory does not handle %s", contractx.ErrValidation, req.Intent))
	}
}

// locate runs the fallback search and accepts the line when the located
// stock across stores covers qty.
func (a *inventoryAgent) locate(ctx context.Context, productID string, qty int, storeID string) (policy.Availability, error) {
	avail, err := a.search.Search(ctx, productID, qty, storeID)
	if err != nil {
		return avail, err
	}
	if avail.Located() < qty {
		return avail, &contractx.StockUnavailableError{
			ProductID:      productID,
			Quantity:       qty,
			RequestedStore: avail.RequestedStore,
			ScannedStores:  slices.Clone(avail.Scanned),
		}
	}
	return avail, nil
}

func (a *inventoryAgent) pickupCheck(ctx context.Context, view statex.Session, storeID string) (PickupCheck, error) {
	if _, err := a.catalog.Store(storeID); err != nil {
		return PickupCheck{}, err
	}
	check := PickupCheck{StoreID: storeID}
	for _, item := range view.Cart {
		stock, err := a.catalog.Stock(ctx, storeID, item.ProductID)
		if err != nil {
			return PickupCheck{}, err
		}
		if stock < item.Quantity {
			check.Missing = append(check.Missing, item.ProductID)
			continue
		}
		check.Ready = append(check.Ready, item.ProductID)
	}
	if len(check.Missing) > 0 {
		missing, _ := view.CartItem(check.Missing[0])
		return check, &contractx.StockUnavailableError{
			ProductID:      missing.ProductID,
			Quantity:       missing.Quantity,
			RequestedStore: storeID,
			ScannedStores:  []string{storeID},
		}
	}
	return check, nil
}

func quantityIn(cart []statex.CartItem, productID string) int {
	for _, item := range cart {
		if item.ProductID == productID {
			return item.Quantity
		}
	}
	return 0
}
