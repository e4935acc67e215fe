package state

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// Session is the cross-channel customer context. It is only ever written
// through Store.Commit.
type Session struct {
	// Identity
	SessionID  string  `json:"session_id"`
	CustomerID string  `json:"customer_id"`
	Channel    Channel `json:"channel"`
	Location   string  `json:"location,omitempty"`

	// Shopping context
	LikedProducts       []string   `json:"liked_products,omitempty"` // sorted, unique
	Cart                []CartItem `json:"cart,omitempty"`
	ConversationHistory []Turn     `json:"conversation_history,omitempty"` // append-only
	ReservedStore       string     `json:"reserved_store,omitempty"`
	Fulfillment         string     `json:"fulfillment,omitempty"`
	Pricing             Pricing    `json:"pricing"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Channel string

const (
	ChannelMobile Channel = "mobile"
	ChannelChat   Channel = "chat"
	ChannelStore  Channel = "store"
)

func (c Channel) Valid() bool {
	switch c {
	case ChannelMobile, ChannelChat, ChannelStore:
		return true
	default:
		return false
	}
}

func ParseChannel(raw string) (Channel, error) {
	c := Channel(strings.ToLower(strings.TrimSpace(raw)))
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidChannel, raw)
	}
	return c, nil
}

// Money is an amount in minor currency units.
type Money int64

// Major converts whole currency units to Money.
func Major(units int64) Money {
	return Money(units * 100)
}

func (m Money) String() string {
	sign := ""
	if m < 0 {
		sign = "-"
		m = -m
	}
	return fmt.Sprintf("%s%d.%02d", sign, int64(m)/100, int64(m)%100)
}

type CartItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice Money  `json:"unit_price"`
}

func (c CartItem) LineTotal() Money {
	return c.UnitPrice * Money(c.Quantity)
}

type Turn struct {
	Role    string    `json:"role"` // "customer" | "assistant"
	Channel Channel   `json:"channel"`
	Agent   string    `json:"agent,omitempty"`
	Text    string    `json:"text"`
	At      time.Time `json:"at"`
}

const (
	RoleCustomer  = "customer"
	RoleAssistant = "assistant"
)

type Pricing struct {
	Subtotal Money `json:"subtotal"`
	Discount Money `json:"discount"`
	Total    Money `json:"total"`
}

var (
	ErrInvalidSession  = errors.New("session id is empty")
	ErrInvalidCustomer = errors.New("customer id is empty")
	ErrInvalidChannel  = errors.New("invalid channel")
	ErrInvalidCart     = errors.New("invalid cart")
)

func NewSession(sessionID, customerID string, channel Channel, now time.Time) Session {
	return Session{
		SessionID:  sessionID,
		CustomerID: customerID,
		Channel:    channel,
		CreatedAt:  now.UTC(),
		UpdatedAt:  now.UTC(),
	}
}

// Clone returns a deep copy that shares no slices with s.
func (s Session) Clone() Session {
	out := s
	out.LikedProducts = slices.Clone(s.LikedProducts)
	out.Cart = slices.Clone(s.Cart)
	out.ConversationHistory = slices.Clone(s.ConversationHistory)
	return out
}

func (s Session) Subtotal() Money {
	var total Money
	for _, item := range s.Cart {
		total += item.LineTotal()
	}
	return total
}

func (s Session) ItemCount() int {
	n := 0
	for _, item := range s.Cart {
		n += item.Quantity
	}
	return n
}

func (s Session) CartItem(productID string) (CartItem, bool) {
	for _, item := range s.Cart {
		if item.ProductID == productID {
			return item, true
		}
	}
	return CartItem{}, false
}

func (s Session) Likes(productID string) bool {
	_, found := slices.BinarySearch(s.LikedProducts, productID)
	return found
}

// LastTurns returns up to n of the most recent conversation turns.
func (s Session) LastTurns(n int) []Turn {
	if n <= 0 || len(s.ConversationHistory) == 0 {
		return nil
	}
	start := max(len(s.ConversationHistory)-n, 0)
	return slices.Clone(s.ConversationHistory[start:])
}

func (s Session) Validate() error {
	if strings.TrimSpace(s.SessionID) == "" {
		return ErrInvalidSession
	}
	if strings.TrimSpace(s.CustomerID) == "" {
		return ErrInvalidCustomer
	}
	if !s.Channel.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidChannel, s.Channel)
	}
	seen := make(map[string]struct{}, len(s.Cart))
	for _, item := range s.Cart {
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: product=%s quantity=%d", ErrInvalidCart, item.ProductID, item.Quantity)
		}
		if _, dup := seen[item.ProductID]; dup {
			return fmt.Errorf("%w: duplicate product=%s", ErrInvalidCart, item.ProductID)
		}
		seen[item.ProductID] = struct{}{}
	}
	return nil
}

// WithQuantity returns a copy of cart where productID has qty units. A zero
// quantity removes the row; a new product is appended with unitPrice.
func WithQuantity(cart []CartItem, productID string, qty int, unitPrice Money) ([]CartItem, error) {
	if qty < 0 {
		return nil, fmt.Errorf("%w: negative quantity %d", ErrInvalidCart, qty)
	}

	out := make([]CartItem, 0, len(cart)+1)
	found := false
	for _, item := range cart {
		if item.ProductID != productID {
			out = append(out, item)
			continue
		}
		found = true
		if qty > 0 {
			item.Quantity = qty
			out = append(out, item)
		}
	}
	if !found && qty > 0 {
		out = append(out, CartItem{ProductID: productID, Quantity: qty, UnitPrice: unitPrice})
	}
	return out, nil
}
