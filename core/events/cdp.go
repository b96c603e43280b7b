package events

import (
	"math/big"

	"rwalend/core/types"
	"rwalend/crypto"
)

const (
	TypeCDPUpdated    = "cdp.updated"
	TypeCDPLiquidated = "cdp.liquidated"
)

// CDPUpdated is emitted whenever a position is created, modified or closed.
type CDPUpdated struct {
	Lender           crypto.Address
	Collateral       *big.Int
	Debt             *big.Int
	InterestAmount   *big.Int
	InterestPaid     *big.Int
	LastInterestTime uint64
	Status           string
	Height           uint64
	Timestamp        uint64
}

func (CDPUpdated) EventType() string { return TypeCDPUpdated }

func (e CDPUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeCDPUpdated,
		Attributes: map[string]string{
			"id":               addressString(e.Lender),
			"collateral":       formatAmount(e.Collateral),
			"debt":             formatAmount(e.Debt),
			"interest":         formatAmount(e.InterestAmount),
			"interestPaid":     formatAmount(e.InterestPaid),
			"lastInterestTime": uintToString(e.LastInterestTime),
			"status":           e.Status,
			"height":           uintToString(e.Height),
			"timestamp":        uintToString(e.Timestamp),
		},
	}
}

// CDPLiquidated records the outcome of a stability pool liquidation.
type CDPLiquidated struct {
	Lender                      crypto.Address
	CollateralLiquidated        *big.Int
	PrincipalRepaid             *big.Int
	InterestRepaid              *big.Int
	CollateralAppliedToInterest *big.Int
	CollateralizationRatio      uint32
	CollateralAsset             string
	CollateralPrice             *big.Int
	PeggedAsset                 string
	PeggedPrice                 *big.Int
	Height                      uint64
	Timestamp                   uint64
}

func (CDPLiquidated) EventType() string { return TypeCDPLiquidated }

func (e CDPLiquidated) Event() *types.Event {
	return &types.Event{
		Type: TypeCDPLiquidated,
		Attributes: map[string]string{
			"id":                          addressString(e.Lender),
			"collateralLiquidated":        formatAmount(e.CollateralLiquidated),
			"principalRepaid":             formatAmount(e.PrincipalRepaid),
			"interestRepaid":              formatAmount(e.InterestRepaid),
			"collateralAppliedToInterest": formatAmount(e.CollateralAppliedToInterest),
			"collateralizationRatio":      uintToString(uint64(e.CollateralizationRatio)),
			"collateralAsset":             normalizeAsset(e.CollateralAsset),
			"collateralPrice":             formatAmount(e.CollateralPrice),
			"peggedAsset":                 normalizeAsset(e.PeggedAsset),
			"peggedPrice":                 formatAmount(e.PeggedPrice),
			"height":                      uintToString(e.Height),
			"timestamp":                   uintToString(e.Timestamp),
		},
	}
}
