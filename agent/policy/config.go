// Package policy holds the stateful failure-handling algorithms layered over
// agent execution: the payment retry chain, the inventory fallback search
// and the all-or-nothing order recalculation.
package policy

import "time"

type Config struct {
	// GatewayTimeout bounds an attempt when the gateway declares no timeout.
	GatewayTimeout   time.Duration `split_words:"true" default:"2s"`
	StoreScanTimeout time.Duration `split_words:"true" default:"500ms"`
	MaxNearbyStores  int           `split_words:"true" default:"5"`
	MaxAlternatives  int           `split_words:"true" default:"3"`
}

var DefaultConfig = Config{
	GatewayTimeout:   2 * time.Second,
	StoreScanTimeout: 500 * time.Millisecond,
	MaxNearbyStores:  5,
	MaxAlternatives:  3,
}

func (c Config) withDefaults() Config {
	if c.GatewayTimeout <= 0 {
		c.GatewayTimeout = DefaultConfig.GatewayTimeout
	}
	if c.StoreScanTimeout <= 0 {
		c.StoreScanTimeout = DefaultConfig.StoreScanTimeout
	}
	if c.MaxNearbyStores <= 0 {
		c.MaxNearbyStores = DefaultConfig.MaxNearbyStores
	}
	if c.MaxAlternatives <= 0 {
		c.MaxAlternatives = DefaultConfig.MaxAlternatives
	}
	return c
}
