package policy

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/tanpawarit/omnichannel-retail-orchestrator/agent/catalog"
	contractx "github.com/tanpawarit/omnichannel-retail-orchestrator/agent/contract"
	statex "github.com/tanpawarit/omnichannel-retail-orchestrator/agent/state"
)

type Source string

const (
	SourceRequestedStore Source = "requested_store"
	SourceNearbyStore    Source = "nearby_store"
	SourceAlternative    Source = "alternative"
)

// Inventory is the read-only lookup the fallback search runs against.
type Inventory interface {
	Stock(ctx context.Context, storeID, productID string) (int, error)
	Product(id string) (catalog.Product, error)
	Products() []catalog.Product
	StoresByDistance() []catalog.Store
	TotalStock(productID string) int
}

type StoreAvailability struct {
	StoreID    string  `json:"store_id"`
	Name       string  `json:"name"`
	DistanceKM float64 `json:"distance_km"`
	Quantity   int     `json:"quantity"`
	Source     Source  `json:"source"`
}

type Alternative struct {
	ProductID  string       `json:"product_id"`
	Name       string       `json:"name"`
	Price      statex.Money `json:"price"`
	TagOverlap int          `json:"tag_overlap"`
	InStock    int          `json:"in_stock"`
	Source     Source       `json:"source"`
}

type Availability struct {
	ProductID      string              `json:"product_id"`
	Quantity       int                 `json:"quantity"`
	RequestedStore string              `json:"requested_store"`
	Fulfilled      bool                `json:"fulfilled"`
	Stores         []StoreAvailability `json:"stores,omitempty"`
	Alternatives   []Alternative       `json:"alternatives,omitempty"`
	// Scanned lists every store whose stock was checked, in check order.
	Scanned []string `json:"scanned"`
}

func (a Availability) Located() int {
	n := 0
	for _, s := range a.Stores {
		n += s.Quantity
	}
	return n
}

type searchStep int

const (
	stepRequestedStore searchStep = iota
	stepNearbyStores
	stepAlternatives
	stepDone
)

// FallbackSearch locates stock for one product, widening from the requested
// store to nearby stores and then to alternative products.
type FallbackSearch struct {
	inv Inventory
	cfg Config
}

func NewFallbackSearch(inv Inventory, cfg Config) (*FallbackSearch, error) {
	if inv == nil {
		return nil, errors.New("inventory lookup is required")
	}
	return &FallbackSearch{inv: inv, cfg: cfg.withDefaults()}, nil
}

func (f *FallbackSearch) Search(ctx context.Context, productID string, qty int, storeID string) (Availability, error) {
	return f.search(ctx, productID, qty, storeID, false)
}

// Survey answers a plain availability question for one unit. When the
// requested store is out of stock it scans every nearby store within
// MaxNearbyStores instead of stopping at the first hit.
func (f *FallbackSearch) Survey(ctx context.Context, productID, storeID string) (Availability, error) {
	return f.search(ctx, productID, 1, storeID, true)
}

func (f *FallbackSearch) search(ctx context.Context, productID string, qty int, storeID string, exhaustive bool) (Availability, error) {
	if qty <= 0 {
		return Availability{}, fmt.Errorf("%w: quantity must be positive", contractx.ErrValidation)
	}
	requested, err := f.inv.Product(productID)
	if err != nil {
		return Availability{}, err
	}
	storeID = strings.TrimSpace(storeID)
	if storeID == "" {
		stores := f.inv.StoresByDistance()
		if len(stores) == 0 {
			return Availability{}, fmt.Errorf("%w: no stores configured", contractx.ErrValidation)
		}
		storeID = stores[0].ID
	}

	result := Availability{ProductID: productID, Quantity: qty, RequestedStore: storeID}
	for step := stepRequestedStore; step != stepDone; {
		switch step {
		case stepRequestedStore:
			stock, err := f.scan(ctx, storeID, productID)
			if err != nil {
				return Availability{}, fmt.Errorf("check requested store %s: %w", storeID, err)
			}
			result.Scanned = append(result.Scanned, storeID)
			if stock > 0 {
				store, _ := f.storeInfo(storeID)
				result.Stores = append(result.Stores, StoreAvailability{
					StoreID: storeID, Name: store.Name, DistanceKM: store.DistanceKM,
					Quantity: stock, Source: SourceRequestedStore,
				})
			}
			if stock >= qty {
				result.Fulfilled = true
				step = stepDone
				continue
			}
			step = stepNearbyStores

		case stepNearbyStores:
			if err := f.scanNearby(ctx, &result, exhaustive); err != nil {
				return Availability{}, err
			}
			step = stepAlternatives

		case stepAlternatives:
			result.Alternatives = f.alternatives(requested)
			step = stepDone
		}
	}

	if len(result.Stores) == 0 && len(result.Alternatives) == 0 {
		return result, &contractx.StockUnavailableError{
			ProductID:      productID,
			Quantity:       qty,
			RequestedStore: storeID,
			ScannedStores:  slices.Clone(result.Scanned),
		}
	}
	return result, nil
}

func (f *FallbackSearch) scanNearby(ctx context.Context, result *Availability, exhaustive bool) error {
	located := result.Located()
	scanned := 0
	for _, store := range f.inv.StoresByDistance() {
		if store.ID == result.RequestedStore {
			continue
		}
		if scanned >= f.cfg.MaxNearbyStores || (!exhaustive && located >= result.Quantity) {
			break
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		scanned++

		stock, err := f.scan(ctx, store.ID, result.ProductID)
		result.Scanned = append(result.Scanned, store.ID)
		if err != nil || stock <= 0 {
			// A slow or failing store is skipped, not fatal.
			continue
		}
		result.Stores = append(result.Stores, StoreAvailability{
			StoreID: store.ID, Name: store.Name, DistanceKM: store.DistanceKM,
			Quantity: stock, Source: SourceNearbyStore,
		})
		located += stock
	}
	result.Fulfilled = located >= result.Quantity
	return nil
}

func (f *FallbackSearch) scan(ctx context.Context, storeID, productID string) (int, error) {
	scanCtx, cancel := context.WithTimeout(ctx, f.cfg.StoreScanTimeout)
	defer cancel()
	return f.inv.Stock(scanCtx, storeID, productID)
}

func (f *FallbackSearch) storeInfo(storeID string) (catalog.Store, bool) {
	for _, s := range f.inv.StoresByDistance() {
		if s.ID == storeID {
			return s, true
		}
	}
	return catalog.Store{ID: storeID}, false
}

// alternatives ranks in-stock products sharing the category or any tag:
// overlap descending, then price ascending, then id.
func (f *FallbackSearch) alternatives(requested catalog.Product) []Alternative {
	var out []Alternative
	for _, p := range f.inv.Products() {
		if p.ID == requested.ID {
			continue
		}
		overlap := requested.TagOverlap(p)
		if overlap == 0 && p.Category != requested.Category {
			continue
		}
		inStock := f.inv.TotalStock(p.ID)
		if inStock <= 0 {
			continue
		}
		out = append(out, Alternative{
			ProductID:  p.ID,
			Name:       p.Name,
			Price:      p.UnitPrice(),
			TagOverlap: overlap,
			InStock:    inStock,
			Source:     SourceAlternative,
		})
	}

	slices.SortStableFunc(out, func(a, b Alternative) int {
		if a.TagOverlap != b.TagOverlap {
			return b.TagOverlap - a.TagOverlap
		}
		if a.Price != b.Price {
			if a.Price < b.Price {
				return -1
			}
			return 1
		}
		return strings.Compare(a.ProductID, b.ProductID)
	})
	if len(out) > f.cfg.MaxAlternatives {
		out = out[:f.cfg.MaxAlternatives]
	}
	return out
}
