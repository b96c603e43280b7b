package config

import (
	"fmt"
	"math/big"

	"rwalend/crypto"
	"rwalend/native/cdp"
	"rwalend/native/common"
	"rwalend/native/oracle"
	"rwalend/native/token"
)

func defaultProtocol() Protocol {
	p := cdp.DefaultParams()
	return Protocol{
		CollateralOracle:   p.CollateralOracle,
		AssetOracle:        p.AssetOracle,
		PeggedAsset:        p.PeggedAsset,
		CollateralAsset:    p.CollateralAsset,
		NativeAsset:        p.NativeAsset,
		MinCollateralRatio: p.MinCollateralRatio,
		InterestRateBps:    p.InterestRateBps,
		DepositFee:         p.DepositFee.String(),
		StakeFee:           p.StakeFee.String(),
		UnstakeReturn:      p.UnstakeReturn.String(),
	}
}

func defaultToken() Token {
	meta := token.DefaultMetadata()
	return Token{Name: meta.Name, Symbol: meta.Symbol, Decimals: meta.Decimals}
}

// defaultOracles quote XLM at 0.1 USD and the peg at 1 USD with 14 decimals.
func defaultOracles() []OracleConfig {
	return []OracleConfig{
		{
			Name:       "collateral",
			Base:       "USD",
			Decimals:   14,
			Resolution: 300,
			Assets:     []string{"XLM"},
			Prices:     map[string]string{"XLM": "10000000000000"},
		},
		{
			Name:       "asset",
			Base:       "USD",
			Decimals:   14,
			Resolution: 300,
			Assets:     []string{"USD"},
			Prices:     map[string]string{"USD": "100000000000000"},
		},
	}
}

// AdminAddress decodes the configured admin.
func (cfg *Config) AdminAddress() (crypto.Address, error) {
	return crypto.DecodeAddress(cfg.Admin)
}

// Params converts the protocol section into engine genesis parameters.
func (cfg *Config) Params() (cdp.Params, error) {
	admin, err := cfg.AdminAddress()
	if err != nil {
		return cdp.Params{}, fmt.Errorf("admin: %w", err)
	}
	p := cfg.Protocol
	params := cdp.Params{
		Admin:              admin,
		CollateralOracle:   p.CollateralOracle,
		AssetOracle:        p.AssetOracle,
		PeggedAsset:        p.PeggedAsset,
		CollateralAsset:    p.CollateralAsset,
		NativeAsset:        p.NativeAsset,
		MinCollateralRatio: p.MinCollateralRatio,
		InterestRateBps:    p.InterestRateBps,
	}
	if params.DepositFee, err = parseAmount(p.DepositFee); err != nil {
		return cdp.Params{}, err
	}
	if params.StakeFee, err = parseAmount(p.StakeFee); err != nil {
		return cdp.Params{}, err
	}
	if params.UnstakeReturn, err = parseAmount(p.UnstakeReturn); err != nil {
		return cdp.Params{}, err
	}
	return params, params.Validate()
}

func (cfg *Config) Metadata() token.Metadata {
	return token.Metadata{Name: cfg.Token.Name, Symbol: cfg.Token.Symbol, Decimals: cfg.Token.Decimals}
}

func (cfg *Config) QuotaLimits() common.Quota {
	return common.Quota{
		MaxRequestsPerWindow: cfg.Quota.MaxRequestsPerWindow,
		MaxVolumePerWindow:   cfg.Quota.MaxVolumePerWindow,
		WindowSeconds:        cfg.Quota.WindowSeconds,
	}
}

// PausedModules lists the module names to pause after genesis.
func (cfg *Config) PausedModules() []string {
	var out []string
	if cfg.Pauses.CDP {
		out = append(out, common.ModuleCDP)
	}
	if cfg.Pauses.Pool {
		out = append(out, common.ModulePool)
	}
	if cfg.Pauses.Token {
		out = append(out, common.ModuleToken)
	}
	return out
}

// Registry builds the declared feeds, administered by the protocol admin,
// and seeds their configured prices at timestamp.
func (cfg *Config) Registry(timestamp uint64) (*oracle.Registry, error) {
	admin, err := cfg.AdminAddress()
	if err != nil {
		return nil, fmt.Errorf("admin: %w", err)
	}
	registry := oracle.NewRegistry()
	for _, o := range cfg.Oracles {
		feed, err := oracle.NewFeed(oracle.FeedConfig{
			Admin:      admin,
			Base:       o.Base,
			Decimals:   o.Decimals,
			Resolution: o.Resolution,
			Assets:     o.Assets,
		})
		if err != nil {
			return nil, fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		for asset, raw := range o.Prices {
			price, ok := new(big.Int).SetString(raw, 10)
			if !ok {
				return nil, fmt.Errorf("oracle %s: invalid price %q", o.Name, raw)
			}
			if err := feed.SetAssetPrice(common.AllowAll{}, asset, price, timestamp); err != nil {
				return nil, fmt.Errorf("oracle %s: %w", o.Name, err)
			}
		}
		if err := registry.Register(o.Name, feed); err != nil {
			return nil, err
		}
	}
	return registry, nil
}
