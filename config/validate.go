package config

import (
	"fmt"
	"math/big"
	"strings"

	"rwalend/crypto"
)

// MaxInterestRateBps bounds the annual rate accepted at genesis.
var MaxInterestRateBps = uint32(10_000)

func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("configuration is missing")
	}
	if cfg.Admin == "" {
		return fmt.Errorf("admin: address required")
	}
	if _, err := crypto.DecodeAddress(cfg.Admin); err != nil {
		return fmt.Errorf("admin: %w", err)
	}
	p := cfg.Protocol
	if p.MinCollateralRatio == 0 {
		return fmt.Errorf("protocol: MinCollateralRatio must be positive")
	}
	if p.InterestRateBps > MaxInterestRateBps {
		return fmt.Errorf("protocol: InterestRateBps above %d", MaxInterestRateBps)
	}
	for name, raw := range map[string]string{"DepositFee": p.DepositFee, "StakeFee": p.StakeFee, "UnstakeReturn": p.UnstakeReturn} {
		if _, err := parseAmount(raw); err != nil {
			return fmt.Errorf("protocol: %s: %w", name, err)
		}
	}
	if cfg.Token.Symbol == "" {
		return fmt.Errorf("token: symbol required")
	}
	seen := make(map[string]struct{}, len(cfg.Oracles))
	for _, o := range cfg.Oracles {
		if o.Name == "" {
			return fmt.Errorf("oracles: name required")
		}
		if _, dup := seen[o.Name]; dup {
			return fmt.Errorf("oracles: duplicate feed %q", o.Name)
		}
		seen[o.Name] = struct{}{}
		for asset, price := range o.Prices {
			if !contains(o.Assets, asset) {
				return fmt.Errorf("oracles.%s: price for untracked asset %s", o.Name, asset)
			}
			v, err := parseAmount(price)
			if err != nil || v == nil || v.Sign() <= 0 {
				return fmt.Errorf("oracles.%s: invalid price for %s", o.Name, asset)
			}
		}
	}
	for _, ref := range []string{p.CollateralOracle, p.AssetOracle} {
		if _, ok := seen[ref]; !ok {
			return fmt.Errorf("protocol: oracle %q is not declared", ref)
		}
	}
	if cfg.Quota.MaxVolumePerWindow > 0 && cfg.Quota.WindowSeconds == 0 {
		return fmt.Errorf("quota: WindowSeconds required with a volume cap")
	}
	return nil
}

// parseAmount accepts an empty string as "use the default".
func parseAmount(raw string) (*big.Int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("negative amount %q", raw)
	}
	return v, nil
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
