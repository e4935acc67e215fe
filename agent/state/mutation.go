package state

import (
	"fmt"
	"slices"
	"time"
)

type Field string

const (
	FieldLikedProducts Field = "liked_products"
	FieldCart          Field = "cart"
	FieldConversation  Field = "conversation_history"
	FieldReservedStore Field = "reserved_store"
	FieldFulfillment   Field = "fulfillment"
	FieldDiscount      Field = "pricing.discount"
	FieldTotals        Field = "pricing.totals"
	FieldChannel       Field = "channel"
	FieldLocation      Field = "location"
)

// Totals is the payment-side view of the order value.
type Totals struct {
	Subtotal Money `json:"subtotal"`
	Total    Money `json:"total"`
}

// MutationSet is the write intent produced by agents and applied by Commit.
// Liked products and turns accumulate; every other field replaces.
type MutationSet struct {
	LikeProducts  []string   `json:"like_products,omitempty"`
	Cart          []CartItem `json:"cart,omitempty"`
	CartSet       bool       `json:"cart_set,omitempty"`
	AppendTurns   []Turn     `json:"append_turns,omitempty"`
	ReservedStore *string    `json:"reserved_store,omitempty"`
	Fulfillment   *string    `json:"fulfillment,omitempty"`
	Discount      *Money     `json:"discount,omitempty"`
	Totals        *Totals    `json:"totals,omitempty"`
	Channel       *Channel   `json:"channel,omitempty"`
	Location      *string    `json:"location,omitempty"`
}

func (m MutationSet) SetCart(items []CartItem) MutationSet {
	m.Cart = slices.Clone(items)
	m.CartSet = true
	return m
}

// Fields lists the session fields m writes, in a stable order.
func (m MutationSet) Fields() []Field {
	var out []Field
	if len(m.LikeProducts) > 0 {
		out = append(out, FieldLikedProducts)
	}
	if m.CartSet {
		out = append(out, FieldCart)
	}
	if len(m.AppendTurns) > 0 {
		out = append(out, FieldConversation)
	}
	if m.ReservedStore != nil {
		out = append(out, FieldReservedStore)
	}
	if m.Fulfillment != nil {
		out = append(out, FieldFulfillment)
	}
	if m.Discount != nil {
		out = append(out, FieldDiscount)
	}
	if m.Totals != nil {
		out = append(out, FieldTotals)
	}
	if m.Channel != nil {
		out = append(out, FieldChannel)
	}
	if m.Location != nil {
		out = append(out, FieldLocation)
	}
	return out
}

func (m MutationSet) Empty() bool {
	return len(m.Fields()) == 0
}

// Absorb folds other into m. Replace-style fields already set on m are kept
// and reported as shadowed; additive fields are appended.
func (m *MutationSet) Absorb(other MutationSet) (shadowed []Field) {
	m.LikeProducts = append(m.LikeProducts, other.LikeProducts...)
	m.AppendTurns = append(m.AppendTurns, other.AppendTurns...)

	if other.CartSet {
		if m.CartSet {
			shadowed = append(shadowed, FieldCart)
		} else {
			m.Cart = slices.Clone(other.Cart)
			m.CartSet = true
		}
	}
	absorbPtr(&m.ReservedStore, other.ReservedStore, FieldReservedStore, &shadowed)
	absorbPtr(&m.Fulfillment, other.Fulfillment, FieldFulfillment, &shadowed)
	absorbPtr(&m.Discount, other.Discount, FieldDiscount, &shadowed)
	absorbPtr(&m.Totals, other.Totals, FieldTotals, &shadowed)
	absorbPtr(&m.Channel, other.Channel, FieldChannel, &shadowed)
	absorbPtr(&m.Location, other.Location, FieldLocation, &shadowed)
	return shadowed
}

func absorbPtr[T any](dst **T, src *T, field Field, shadowed *[]Field) {
	if src == nil {
		return
	}
	if *dst != nil {
		*shadowed = append(*shadowed, field)
		return
	}
	v := *src
	*dst = &v
}

// Apply writes m onto s. The resulting session is validated.
func (m MutationSet) Apply(s *Session, now time.Time) error {
	if s == nil {
		return ErrInvalidSession
	}

	if len(m.LikeProducts) > 0 {
		liked := append(slices.Clone(s.LikedProducts), m.LikeProducts...)
		slices.Sort(liked)
		s.LikedProducts = slices.Compact(liked)
	}
	if m.CartSet {
		cart := make([]CartItem, 0, len(m.Cart))
		for _, item := range m.Cart {
			if item.Quantity < 0 {
				return fmt.Errorf("%w: product=%s quantity=%d", ErrInvalidCart, item.ProductID, item.Quantity)
			}
			if item.Quantity == 0 {
				continue
			}
			cart = append(cart, item)
		}
		s.Cart = cart
	}
	for _, turn := range m.AppendTurns {
		if turn.At.IsZero() {
			turn.At = now.UTC()
		}
		s.ConversationHistory = append(s.ConversationHistory, turn)
	}
	if m.ReservedStore != nil {
		s.ReservedStore = *m.ReservedStore
	}
	if m.Fulfillment != nil {
		s.Fulfillment = *m.Fulfillment
	}
	if m.Discount != nil {
		s.Pricing.Discount = *m.Discount
	}
	if m.Totals != nil {
		s.Pricing.Subtotal = m.Totals.Subtotal
		s.Pricing.Total = m.Totals.Total
	}
	if m.Channel != nil {
		s.Channel = *m.Channel
	}
	if m.Location != nil {
		s.Location = *m.Location
	}

	return s.Validate()
}

// Ptr is a small helper for building optional mutation fields.
func Ptr[T any](v T) *T {
	return &v
}
