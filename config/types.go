package config

import "strings"

// Protocol captures the risk parameters and oracle wiring set at genesis.
// Fee amounts are decimal strings in collateral base units.
type Protocol struct {
	CollateralOracle   string
	AssetOracle        string
	PeggedAsset        string
	CollateralAsset    string
	NativeAsset        string
	MinCollateralRatio uint32
	InterestRateBps    uint32
	DepositFee         string
	StakeFee           string
	UnstakeReturn      string
}

func (p *Protocol) normalize() {
	p.CollateralOracle = strings.TrimSpace(p.CollateralOracle)
	p.AssetOracle = strings.TrimSpace(p.AssetOracle)
	p.PeggedAsset = strings.ToUpper(strings.TrimSpace(p.PeggedAsset))
	p.CollateralAsset = strings.ToUpper(strings.TrimSpace(p.CollateralAsset))
	p.NativeAsset = strings.ToUpper(strings.TrimSpace(p.NativeAsset))
	p.DepositFee = strings.TrimSpace(p.DepositFee)
	p.StakeFee = strings.TrimSpace(p.StakeFee)
	p.UnstakeReturn = strings.TrimSpace(p.UnstakeReturn)
}

// Token is the synthetic asset metadata.
type Token struct {
	Name     string
	Symbol   string
	Decimals uint32
}

// OracleConfig declares an admin-fed feed and the prices it starts with.
type OracleConfig struct {
	Name       string
	Base       string
	Decimals   uint32
	Resolution uint32
	Assets     []string
	Prices     map[string]string
}

func (o *OracleConfig) normalize() {
	o.Name = strings.TrimSpace(o.Name)
	o.Base = strings.ToUpper(strings.TrimSpace(o.Base))
	assets := make([]string, 0, len(o.Assets))
	for _, asset := range o.Assets {
		if trimmed := strings.ToUpper(strings.TrimSpace(asset)); trimmed != "" {
			assets = append(assets, trimmed)
		}
	}
	o.Assets = assets
	if len(o.Prices) > 0 {
		prices := make(map[string]string, len(o.Prices))
		for asset, price := range o.Prices {
			prices[strings.ToUpper(strings.TrimSpace(asset))] = strings.TrimSpace(price)
		}
		o.Prices = prices
	}
}

// Quota limits mutations per account. Zero disables a limit.
type Quota struct {
	MaxRequestsPerWindow uint32
	MaxVolumePerWindow   uint64 // synthetic base units
	WindowSeconds        uint32
}

// Pauses lists modules paused right after genesis.
type Pauses struct {
	CDP   bool
	Pool  bool
	Token bool
}
