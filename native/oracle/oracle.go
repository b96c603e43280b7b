package oracle

import (
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"sync"
)

var (
	// ErrNoPrice is returned when an asset has no recorded observation.
	ErrNoPrice = errors.New("oracle: no price recorded")
	// ErrUnknownOracle is returned when a registry lookup misses.
	ErrUnknownOracle = errors.New("oracle: unknown oracle")
)

// PriceData is one price observation.
type PriceData struct {
	Price     *big.Int
	Timestamp uint64
}

// PriceOracle is the capability the CDP engine needs from a price feed.
type PriceOracle interface {
	LastPrice(asset string) (PriceData, error)
	PriceAt(asset string, timestamp uint64) (PriceData, bool, error)
	Decimals() (uint32, error)
}

// Resolver maps an oracle reference stored in protocol state to a feed.
type Resolver interface {
	Resolve(ref string) (PriceOracle, error)
}

// NormalizeAsset canonicalises an asset symbol.
func NormalizeAsset(asset string) string {
	return strings.ToUpper(strings.TrimSpace(asset))
}

// Registry is a concurrency-safe name to oracle map.
type Registry struct {
	mu      sync.RWMutex
	oracles map[string]PriceOracle
}

func NewRegistry() *Registry {
	return &Registry{oracles: make(map[string]PriceOracle)}
}

// Register binds ref to o, replacing any previous binding.
func (r *Registry) Register(ref string, o PriceOracle) error {
	key := strings.TrimSpace(ref)
	if key == "" {
		return fmt.Errorf("oracle: reference required")
	}
	if o == nil {
		return fmt.Errorf("oracle: nil oracle for %q", key)
	}
	r.mu.Lock()
	r.oracles[key] = o
	r.mu.Unlock()
	return nil
}

func (r *Registry) Resolve(ref string) (PriceOracle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.oracles[strings.TrimSpace(ref)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownOracle, ref)
	}
	return o, nil
}

// Names lists the registered references in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.oracles))
	for name := range r.oracles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
