package cdp

import (
	"fmt"
	"math/big"
	"strings"

	"rwalend/crypto"
	"rwalend/native/common"
)

// Status is the lifecycle state of a collateralized debt position.
type Status uint8

const (
	StatusOpen Status = iota
	StatusInsolvent
	StatusFrozen
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusOpen:
		return "Open"
	case StatusInsolvent:
		return "Insolvent"
	case StatusFrozen:
		return "Frozen"
	case StatusClosed:
		return "Closed"
	default:
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
}

// ParseStatus accepts the names produced by String, case-insensitively.
func ParseStatus(raw string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "open":
		return StatusOpen, nil
	case "insolvent":
		return StatusInsolvent, nil
	case "frozen":
		return StatusFrozen, nil
	case "closed":
		return StatusClosed, nil
	}
	return 0, fmt.Errorf("cdp: unknown status %q", raw)
}

// Interest tracks the outstanding interest of a position. Amount is
// denominated in the synthetic asset; Paid is the collateral already settled.
type Interest struct {
	Amount *big.Int
	Paid   *big.Int
}

func (i Interest) clone() Interest {
	return Interest{Amount: common.Copy(i.Amount), Paid: common.Copy(i.Paid)}
}

// Record is the persisted form of a position, one per lender.
type Record struct {
	Collateral       *big.Int
	Debt             *big.Int
	Status           Status
	Interest         Interest
	LastInterestTime uint64
}

func (r Record) clone() Record {
	return Record{
		Collateral:       common.Copy(r.Collateral),
		Debt:             common.Copy(r.Debt),
		Status:           r.Status,
		Interest:         r.Interest.clone(),
		LastInterestTime: r.LastInterestTime,
	}
}

// Position is the priced read model of a record. It is never persisted.
type Position struct {
	Lender                 crypto.Address
	Collateral             *big.Int
	Debt                   *big.Int
	Status                 Status
	CollateralizationRatio uint32
	Interest               Interest
	LastInterestTime       uint64
}

// Record strips the derived fields.
func (p Position) Record() Record {
	return Record{
		Collateral:       common.Copy(p.Collateral),
		Debt:             common.Copy(p.Debt),
		Status:           p.Status,
		Interest:         p.Interest.clone(),
		LastInterestTime: p.LastInterestTime,
	}
}

// InterestDetail is returned by AccruedInterest. ApprovalAmount is the
// collateral a lender should approve so a repayment submitted shortly after
// the query still covers the interest.
type InterestDetail struct {
	Amount             *big.Int
	Paid               *big.Int
	AmountInCollateral *big.Int
	ApprovalAmount     *big.Int
	LastInterestTime   uint64
}

// StakerPosition is a stability pool deposit together with the pool
// constants observed when it was last touched.
type StakerPosition struct {
	Deposit            *big.Int
	ProductSnapshot    *big.Int
	CompoundedSnapshot *big.Int
	Epoch              uint64
}

// AvailableAssets reports what a staker could withdraw and claim right now.
type AvailableAssets struct {
	RWA     *big.Int
	Rewards *big.Int
}

// Constants exposes the live pool accumulators.
type Constants struct {
	Compounded *big.Int
	Product    *big.Int
	Epoch      uint64
	TotalRWA   *big.Int
}

// LiquidationResult summarises a single liquidation call.
type LiquidationResult struct {
	LiquidatedDebt       *big.Int
	LiquidatedCollateral *big.Int
	Status               Status
}

// ProtocolState is the singleton holding pool accumulators, fee schedule,
// risk parameters and external references. It is loaded once per call and
// written back at the end of the call when modified.
type ProtocolState struct {
	Admin crypto.Address

	TotalRWA        *big.Int
	TotalCollateral *big.Int
	Product         *big.Int
	Compounded      *big.Int
	Epoch           uint64

	FeesCollected *big.Int
	DepositFee    *big.Int
	StakeFee      *big.Int
	UnstakeReturn *big.Int

	InterestCollected  *big.Int
	MinCollateralRatio uint32
	InterestRateBps    uint32

	CollateralOracle string
	AssetOracle      string
	PeggedAsset      string
	CollateralAsset  string
	NativeAsset      string

	CodeHash      [32]byte
	PausedModules []string
}

// IsPaused satisfies common.PauseView.
func (p *ProtocolState) IsPaused(module string) bool {
	if p == nil {
		return false
	}
	for _, m := range p.PausedModules {
		if m == module {
			return true
		}
	}
	return false
}

func (p *ProtocolState) normalize() {
	for _, v := range []**big.Int{
		&p.TotalRWA, &p.TotalCollateral, &p.Product, &p.Compounded,
		&p.FeesCollected, &p.DepositFee, &p.StakeFee, &p.UnstakeReturn,
		&p.InterestCollected,
	} {
		if *v == nil {
			*v = new(big.Int)
		}
	}
}
