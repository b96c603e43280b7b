package oracle

import (
	"errors"
	"math/big"
	"sort"
	"sync"

	rwaerrors "rwalend/core/errors"
	"rwalend/crypto"
	"rwalend/native/common"
)

var (
	ErrAssetNotFound      = errors.New("oracle: asset not found")
	ErrAssetAlreadyExists = errors.New("oracle: asset already exists")
	ErrInvalidPrice       = errors.New("oracle: price must be positive")
)

// FeedConfig describes a reference price feed.
type FeedConfig struct {
	Admin      crypto.Address
	Base       string
	Decimals   uint32
	Resolution uint32
	Assets     []string
}

// Feed is an admin-fed price oracle holding a timestamped series per asset.
type Feed struct {
	mu            sync.RWMutex
	admin         crypto.Address
	base          string
	decimals      uint32
	resolution    uint32
	assets        []string
	prices        map[string]map[uint64]*big.Int
	lastTimestamp uint64
}

func NewFeed(cfg FeedConfig) (*Feed, error) {
	f := &Feed{
		admin:      cfg.Admin,
		base:       NormalizeAsset(cfg.Base),
		decimals:   cfg.Decimals,
		resolution: cfg.Resolution,
		prices:     make(map[string]map[uint64]*big.Int),
	}
	if err := f.addAssets(cfg.Assets); err != nil {
		return nil, err
	}
	return f, nil
}

func requireAdmin(auth common.Authorizer, admin crypto.Address) error {
	if auth == nil {
		return rwaerrors.ErrUnauthorized
	}
	return auth.RequireAuth(admin)
}

// Assets lists the tracked assets in registration order.
func (f *Feed) Assets() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]string(nil), f.assets...)
}

func (f *Feed) Base() string { return f.base }

func (f *Feed) Decimals() (uint32, error) { return f.decimals, nil }

func (f *Feed) Resolution() uint32 { return f.resolution }

// LastTimestamp returns the timestamp of the most recent price update.
func (f *Feed) LastTimestamp() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.lastTimestamp
}

// AddAssets registers new assets. Adding an existing asset fails the whole call.
func (f *Feed) AddAssets(auth common.Authorizer, assets []string) error {
	if err := requireAdmin(auth, f.admin); err != nil {
		return err
	}
	return f.addAssets(assets)
}

func (f *Feed) addAssets(assets []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := make(map[string]struct{}, len(assets))
	for _, raw := range assets {
		asset := NormalizeAsset(raw)
		if _, exists := f.prices[asset]; exists {
			return ErrAssetAlreadyExists
		}
		if _, dup := seen[asset]; dup {
			return ErrAssetAlreadyExists
		}
		seen[asset] = struct{}{}
	}
	for _, raw := range assets {
		asset := NormalizeAsset(raw)
		f.assets = append(f.assets, asset)
		f.prices[asset] = make(map[uint64]*big.Int)
	}
	return nil
}

// SetAssetPrice records price for asset at timestamp.
func (f *Feed) SetAssetPrice(auth common.Authorizer, asset string, price *big.Int, timestamp uint64) error {
	if err := requireAdmin(auth, f.admin); err != nil {
		return err
	}
	if price == nil || price.Sign() <= 0 {
		return ErrInvalidPrice
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	series, ok := f.prices[NormalizeAsset(asset)]
	if !ok {
		return ErrAssetNotFound
	}
	series[timestamp] = new(big.Int).Set(price)
	f.lastTimestamp = timestamp
	return nil
}

func (f *Feed) sortedTimestamps(series map[uint64]*big.Int) []uint64 {
	out := make([]uint64, 0, len(series))
	for ts := range series {
		out = append(out, ts)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// LastPrice returns the observation with the greatest timestamp.
func (f *Feed) LastPrice(asset string) (PriceData, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	series, ok := f.prices[NormalizeAsset(asset)]
	if !ok {
		return PriceData{}, ErrAssetNotFound
	}
	if len(series) == 0 {
		return PriceData{}, ErrNoPrice
	}
	stamps := f.sortedTimestamps(series)
	last := stamps[len(stamps)-1]
	return PriceData{Price: new(big.Int).Set(series[last]), Timestamp: last}, nil
}

// PriceAt returns the observation recorded exactly at timestamp.
func (f *Feed) PriceAt(asset string, timestamp uint64) (PriceData, bool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	series, ok := f.prices[NormalizeAsset(asset)]
	if !ok {
		return PriceData{}, false, ErrAssetNotFound
	}
	price, ok := series[timestamp]
	if !ok {
		return PriceData{}, false, nil
	}
	return PriceData{Price: new(big.Int).Set(price), Timestamp: timestamp}, true, nil
}

// Prices returns up to records observations, newest first.
func (f *Feed) Prices(asset string, records uint32) ([]PriceData, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	series, ok := f.prices[NormalizeAsset(asset)]
	if !ok {
		return nil, ErrAssetNotFound
	}
	stamps := f.sortedTimestamps(series)
	out := make([]PriceData, 0, records)
	for i := len(stamps) - 1; i >= 0 && uint32(len(out)) < records; i-- {
		out = append(out, PriceData{Price: new(big.Int).Set(series[stamps[i]]), Timestamp: stamps[i]})
	}
	return out, nil
}
