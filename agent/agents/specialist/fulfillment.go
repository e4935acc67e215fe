package specialist

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tanpawarit/omnichannel-retail-orchestrator/agent/catalog"
	contractx "github.com/tanpawarit/omnichannel-retail-orchestrator/agent/contract"
	statex "github.com/tanpawarit/omnichannel-retail-orchestrator/agent/state"
)

const (
	FulfillmentExpress     = "express"
	FulfillmentStandard    = "standard"
	FulfillmentStorePickup = "store_pickup"

	pickupHold = 48 * time.Hour
)

type fulfillmentAgent struct {
	catalog *catalog.Catalog
}

func (a *fulfillmentAgent) Name() contractx.AgentName { return contractx.AgentFulfillment }

func (a *fulfillmentAgent) Execute(ctx context.Context, view statex.Session, req contractx.Request) (contractx.PartialResult, error) {
	out := contractx.PartialResult{Agent: a.Name()}
	if err := ctx.Err(); err != nil {
		return out, wrapAgentError(a.Name(), err)
	}

	switch req.Intent {
	case contractx.IntentReserveStore:
		store, err := a.catalog.Store(req.StoreID)
		if err != nil {
			return out, wrapAgentError(a.Name(), err)
		}
		reservation := Reservation{
			ConfirmationID: "RSV-" + uuid.NewString(),
			StoreID:        store.ID,
			StoreName:      store.Name,
			PickupBy:       req.Now.Add(pickupHold).UTC(),
		}
		if check, ok := contractx.UpstreamOutput[PickupCheck](req, contractx.AgentInventory); ok {
			reservation.Items = check.Ready
		}
		out.Output = FulfillmentOutput{Reservation: &reservation, Recommended: FulfillmentStorePickup}
		out.Mutations.ReservedStore = statex.Ptr(store.ID)
		out.Mutations.Fulfillment = statex.Ptr(FulfillmentStorePickup)
		return out, nil

	case contractx.IntentProcessPayment:
		if _, ok := contractx.UpstreamOutput[PaymentOutput](req, contractx.AgentPayment); !ok {
			return out, wrapAgentError(a.Name(), fmt.Errorf("%w: no payment receipt to fulfil", contractx.ErrValidation))
		}
		options, recommended := a.deliveryOptions(view)
		out.Output = FulfillmentOutput{Options: options, Recommended: recommended}
		if view.Fulfillment == "" {
			out.Mutations.Fulfillment = statex.Ptr(recommended)
		}
		return out, nil

	default:
		return out, wrapAgentError(a.Name(), fmt.Errorf("%w: fulfillment does not handle %s", contractx.ErrValidation, req.Intent))
	}
}

func (a *fulfillmentAgent) deliveryOptions(view statex.Session) ([]DeliveryOption, string) {
	pickupStore := view.ReservedStore
	if pickupStore == "" {
		if stores := a.catalog.StoresByDistance(); len(stores) > 0 {
			pickupStore = stores[0].ID
		}
	}

	options := []DeliveryOption{
		{Type: FulfillmentExpress, Timeline: "next day", Cost: statex.Major(expressDeliveryCost)},
		{Type: FulfillmentStandard, Timeline: "2-3 days"},
		{Type: FulfillmentStorePickup, Timeline: "same day", StoreID: pickupStore},
	}

	switch {
	case view.ReservedStore != "":
		return options, FulfillmentStorePickup
	case view.Subtotal() > statex.Major(freeShippingAbove):
		return options, FulfillmentStandard
	default:
		return options, FulfillmentExpress
	}
}
