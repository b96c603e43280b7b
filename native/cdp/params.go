package cdp

import (
	"errors"
	"math/big"
	"strings"

	"rwalend/crypto"
)

const (
	// Version is reported by the admin surface.
	Version = "1.0.0"

	BasisPoints           = 10_000
	DefaultMinCollateral  = 11_000
	DefaultInterestRate   = 1_100
	SecondsPerYear        = 31_536_000
	ApprovalWindowSeconds = 300
)

var (
	// InitialProduct is the value the product accumulator P resets to at
	// every epoch.
	InitialProduct = big.NewInt(1_000_000_000)
	// MinProduct is the smallest P an epoch keeps running at. Below it a
	// snapshot can no longer resolve a deposit, so the pool is treated as
	// drained.
	MinProduct = big.NewInt(1_000)

	DefaultDepositFee    = big.NewInt(10_000_000)
	DefaultStakeFee      = big.NewInt(70_000_000)
	DefaultUnstakeReturn = big.NewInt(20_000_000)

	interestPrecision = big.NewInt(1_000_000_000)
	defaultPrecision  = big.NewInt(10_000_000)
	basisPointsBig    = big.NewInt(BasisPoints)
)

// Params are the genesis settings of a protocol instance.
type Params struct {
	Admin              crypto.Address
	CollateralOracle   string
	AssetOracle        string
	PeggedAsset        string
	CollateralAsset    string
	NativeAsset        string
	MinCollateralRatio uint32
	InterestRateBps    uint32
	DepositFee         *big.Int
	StakeFee           *big.Int
	UnstakeReturn      *big.Int
}

// DefaultParams returns the reference deployment: XLM collateral against a
// USD feed at 110% MCR and 11% annual interest.
func DefaultParams() Params {
	return Params{
		CollateralOracle:   "collateral",
		AssetOracle:        "asset",
		PeggedAsset:        "USD",
		CollateralAsset:    "XLM",
		NativeAsset:        "XLM",
		MinCollateralRatio: DefaultMinCollateral,
		InterestRateBps:    DefaultInterestRate,
		DepositFee:         new(big.Int).Set(DefaultDepositFee),
		StakeFee:           new(big.Int).Set(DefaultStakeFee),
		UnstakeReturn:      new(big.Int).Set(DefaultUnstakeReturn),
	}
}

// Validate performs basic sanity checks on the parameters.
func (p Params) Validate() error {
	if p.Admin.IsZero() {
		return errors.New("cdp: admin address required")
	}
	if strings.TrimSpace(p.CollateralOracle) == "" || strings.TrimSpace(p.AssetOracle) == "" {
		return errors.New("cdp: oracle references required")
	}
	if strings.TrimSpace(p.PeggedAsset) == "" || strings.TrimSpace(p.CollateralAsset) == "" {
		return errors.New("cdp: pegged and collateral assets required")
	}
	if strings.TrimSpace(p.NativeAsset) == "" {
		return errors.New("cdp: native asset required")
	}
	if p.MinCollateralRatio == 0 {
		return errors.New("cdp: minimum collateral ratio must be positive")
	}
	for _, fee := range []*big.Int{p.DepositFee, p.StakeFee, p.UnstakeReturn} {
		if fee != nil && fee.Sign() < 0 {
			return errors.New("cdp: fees must not be negative")
		}
	}
	if p.UnstakeReturn != nil && p.StakeFee != nil && p.UnstakeReturn.Cmp(p.StakeFee) > 0 {
		return errors.New("cdp: unstake return exceeds stake fee")
	}
	return nil
}

// NewProtocolState builds the initial singleton for params.
func NewProtocolState(p Params) *ProtocolState {
	st := &ProtocolState{
		Admin:              p.Admin,
		TotalRWA:           new(big.Int),
		TotalCollateral:    new(big.Int),
		Product:            new(big.Int).Set(InitialProduct),
		Compounded:         new(big.Int),
		FeesCollected:      new(big.Int),
		DepositFee:         feeOrDefault(p.DepositFee, DefaultDepositFee),
		StakeFee:           feeOrDefault(p.StakeFee, DefaultStakeFee),
		UnstakeReturn:      feeOrDefault(p.UnstakeReturn, DefaultUnstakeReturn),
		InterestCollected:  new(big.Int),
		MinCollateralRatio: p.MinCollateralRatio,
		InterestRateBps:    p.InterestRateBps,
		CollateralOracle:   strings.TrimSpace(p.CollateralOracle),
		AssetOracle:        strings.TrimSpace(p.AssetOracle),
		PeggedAsset:        strings.ToUpper(strings.TrimSpace(p.PeggedAsset)),
		CollateralAsset:    strings.ToUpper(strings.TrimSpace(p.CollateralAsset)),
		NativeAsset:        strings.ToUpper(strings.TrimSpace(p.NativeAsset)),
	}
	return st
}

func feeOrDefault(v, def *big.Int) *big.Int {
	if v == nil {
		return new(big.Int).Set(def)
	}
	return new(big.Int).Set(v)
}
