// Package catalog holds the read-only reference data (products, stores,
// customers, payment gateways) the agents look up.
package catalog

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	statex "github.com/tanpawarit/omnichannel-retail-orchestrator/agent/state"
	configx "github.com/tanpawarit/omnichannel-retail-orchestrator/pkg/config"
)

//go:embed default.yaml
var defaultRaw []byte

var (
	ErrProductNotFound  = errors.New("product not found")
	ErrStoreNotFound    = errors.New("store not found")
	ErrCustomerNotFound = errors.New("customer not found")
)

type Product struct {
	ID         string   `yaml:"id"`
	Name       string   `yaml:"name"`
	Brand      string   `yaml:"brand"`
	Category   string   `yaml:"category"`
	Tags       []string `yaml:"tags"`
	Price      int64    `yaml:"price"` // whole currency units
	MatchScore float64  `yaml:"match_score"`
}

func (p Product) UnitPrice() statex.Money {
	return statex.Major(p.Price)
}

// TagOverlap counts tags p shares with other.
func (p Product) TagOverlap(other Product) int {
	n := 0
	for _, tag := range p.Tags {
		if slices.Contains(other.Tags, tag) {
			n++
		}
	}
	return n
}

type Store struct {
	ID         string         `yaml:"id"`
	Name       string         `yaml:"name"`
	City       string         `yaml:"city"`
	DistanceKM float64        `yaml:"distance_km"`
	Stock      map[string]int `yaml:"stock"`
}

type Customer struct {
	ID            string `yaml:"id"`
	Name          string `yaml:"name"`
	Tier          string `yaml:"tier"`
	LoyaltyPoints int64  `yaml:"loyalty_points"`
	Location      string `yaml:"location"`
}

// Gateway describes a simulated payment gateway.
type Gateway struct {
	Name    string        `yaml:"name"`
	Timeout time.Duration `yaml:"timeout"`
	Latency time.Duration `yaml:"latency"`
	Outcome string        `yaml:"outcome"` // success | declined | unavailable | timeout
}

type document struct {
	Products  []Product  `yaml:"products"`
	Stores    []Store    `yaml:"stores"`
	Customers []Customer `yaml:"customers"`
	Gateways  []Gateway  `yaml:"gateways"`
}

type Catalog struct {
	products  []Product
	stores    []Store
	customers map[string]Customer
	gateways  []Gateway

	productIdx map[string]int
	storeIdx   map[string]int
}

// Default returns the embedded demo catalog.
func Default() (*Catalog, error) {
	doc, err := configx.DecodeYAML[document](defaultRaw)
	if err != nil {
		return nil, fmt.Errorf("decode default catalog: %w", err)
	}
	return build(*doc)
}

// Load reads a catalog YAML file; an empty path yields Default.
func Load(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	doc, err := configx.LoadYAML[document](path)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	return build(*doc)
}

// New builds a catalog from in-memory records, mainly for tests.
func New(products []Product, stores []Store, customers []Customer, gateways []Gateway) (*Catalog, error) {
	return build(document{Products: products, Stores: stores, Customers: customers, Gateways: gateways})
}

func build(doc document) (*Catalog, error) {
	c := &Catalog{
		products:   slices.Clone(doc.Products),
		stores:     slices.Clone(doc.Stores),
		customers:  make(map[string]Customer, len(doc.Customers)),
		gateways:   slices.Clone(doc.Gateways),
		productIdx: make(map[string]int, len(doc.Products)),
		storeIdx:   make(map[string]int, len(doc.Stores)),
	}

	for i, p := range c.products {
		if strings.TrimSpace(p.ID) == "" {
			return nil, fmt.Errorf("product #%d has no id", i)
		}
		if _, dup := c.productIdx[p.ID]; dup {
			return nil, fmt.Errorf("duplicate product %s", p.ID)
		}
		c.productIdx[p.ID] = i
	}

	slices.SortStableFunc(c.stores, func(a, b Store) int {
		switch {
		case a.DistanceKM < b.DistanceKM:
			return -1
		case a.DistanceKM > b.DistanceKM:
			return 1
		default:
			return strings.Compare(a.ID, b.ID)
		}
	})
	for i, s := range c.stores {
		if _, dup := c.storeIdx[s.ID]; dup {
			return nil, fmt.Errorf("duplicate store %s", s.ID)
		}
		c.storeIdx[s.ID] = i
	}

	for _, cust := range doc.Customers {
		c.customers[cust.ID] = cust
	}
	return c, nil
}

func (c *Catalog) Product(id string) (Product, error) {
	i, ok := c.productIdx[id]
	if !ok {
		return Product{}, fmt.Errorf("%w: %s", ErrProductNotFound, id)
	}
	return c.products[i], nil
}

func (c *Catalog) Products() []Product {
	return slices.Clone(c.products)
}

func (c *Catalog) Store(id string) (Store, error) {
	i, ok := c.storeIdx[id]
	if !ok {
		return Store{}, fmt.Errorf("%w: %s", ErrStoreNotFound, id)
	}
	return c.stores[i], nil
}

// StoresByDistance returns every store nearest first.
func (c *Catalog) StoresByDistance() []Store {
	return slices.Clone(c.stores)
}

func (c *Catalog) Customer(id string) (Customer, error) {
	cust, ok := c.customers[id]
	if !ok {
		return Customer{}, fmt.Errorf("%w: %s", ErrCustomerNotFound, id)
	}
	return cust, nil
}

func (c *Catalog) Gateways() []Gateway {
	return slices.Clone(c.gateways)
}

// Stock reports units of productID on hand at storeID.
func (c *Catalog) Stock(ctx context.Context, storeID, productID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	store, err := c.Store(storeID)
	if err != nil {
		return 0, err
	}
	return store.Stock[productID], nil
}

// TotalStock sums productID across all stores.
func (c *Catalog) TotalStock(productID string) int {
	total := 0
	for _, s := range c.stores {
		total += s.Stock[productID]
	}
	return total
}
