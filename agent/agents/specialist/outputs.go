package specialist

import (
	"time"

	"github.com/tanpawarit/omnichannel-retail-orchestrator/agent/policy"
	statex "github.com/tanpawarit/omnichannel-retail-orchestrator/agent/state"
)

type Recommendation struct {
	ProductID string       `json:"product_id"`
	Name      string       `json:"name"`
	Category  string       `json:"category"`
	Price     statex.Money `json:"price"`
	Score     float64      `json:"score"`
	Reason    string       `json:"reason"`
}

type RecommendationOutput struct {
	Liked []string         `json:"liked,omitempty"`
	Items []Recommendation `json:"items,omitempty"`
	Pitch string           `json:"pitch,omitempty"`
}

type CartOutput struct {
	Cart         []statex.CartItem    `json:"cart"`
	Availability *policy.Availability `json:"availability,omitempty"`
}

// PickupCheck is the inventory view of a cart at one store.
type PickupCheck struct {
	StoreID string   `json:"store_id"`
	Ready   []string `json:"ready,omitempty"`
	Missing []string `json:"missing,omitempty"`
}

type Quote struct {
	Subtotal statex.Money `json:"subtotal"`
	Discount statex.Money `json:"discount"`
	Total    statex.Money `json:"total"`
	Offer    string       `json:"offer,omitempty"`
}

type LoyaltyOutput struct {
	Tier             string       `json:"tier"`
	Points           int64        `json:"points"`
	RedeemablePoints int64        `json:"redeemable_points"`
	RedeemableValue  statex.Money `json:"redeemable_value"`
	Offers           []string     `json:"offers,omitempty"`
	Quote            Quote        `json:"quote"`
}

type PaymentOutput struct {
	Quote   *Quote                 `json:"quote,omitempty"`
	Receipt *policy.PaymentReceipt `json:"receipt,omitempty"`
}

type DeliveryOption struct {
	Type     string       `json:"type"`
	Timeline string       `json:"timeline"`
	Cost     statex.Money `json:"cost"`
	StoreID  string       `json:"store_id,omitempty"`
}

type Reservation struct {
	ConfirmationID string    `json:"confirmation_id"`
	StoreID        string    `json:"store_id"`
	StoreName      string    `json:"store_name"`
	Items          []string  `json:"items,omitempty"`
	PickupBy       time.Time `json:"pickup_by"`
}

type FulfillmentOutput struct {
	Reservation *Reservation     `json:"reservation,omitempty"`
	Options     []DeliveryOption `json:"options,omitempty"`
	Recommended string           `json:"recommended,omitempty"`
}

type SupportOutput struct {
	Topic string `json:"topic"`
	Reply string `json:"reply"`
}
