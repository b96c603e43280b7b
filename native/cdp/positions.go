package cdp

import (
	"math/big"

	"rwalend/crypto"
	"rwalend/native/common"
)

// Prices is the market snapshot a call works against.
type Prices struct {
	CollateralPrice    *big.Int
	CollateralDecimals uint32
	AssetPrice         *big.Int
	AssetDecimals      uint32
}

// Ratio computes the collateralization ratio of collateral against debt with
// the given outstanding interest.
func (p Prices) Ratio(collateral, debt, interest *big.Int) (uint32, error) {
	return CollateralizationRatio(debt, p.AssetPrice, collateral, p.CollateralPrice, p.CollateralDecimals, p.AssetDecimals, interest)
}

// ToCollateral converts a synthetic amount to collateral units.
func (p Prices) ToCollateral(amount *big.Int) (*big.Int, error) {
	return convertToCollateral(amount, p.AssetPrice, p.CollateralPrice, p.CollateralDecimals, p.AssetDecimals)
}

// Decorate projects rec to now: interest is accrued, the ratio is priced and
// the Open/Insolvent status is re-derived against the minimum ratio. Frozen
// and Closed are never changed here.
func Decorate(lender crypto.Address, rec Record, px Prices, st *ProtocolState, now uint64) (Position, error) {
	interest, last, err := accrueInterest(rec, st.InterestRateBps, now)
	if err != nil {
		return Position{}, err
	}
	ratio, err := px.Ratio(rec.Collateral, rec.Debt, interest.Amount)
	if err != nil {
		return Position{}, err
	}
	status := rec.Status
	switch {
	case rec.Status == StatusOpen && ratio < st.MinCollateralRatio:
		status = StatusInsolvent
	case rec.Status == StatusInsolvent && ratio >= st.MinCollateralRatio:
		status = StatusOpen
	}
	return Position{
		Lender:                 lender,
		Collateral:             common.Copy(rec.Collateral),
		Debt:                   common.Copy(rec.Debt),
		Status:                 status,
		CollateralizationRatio: ratio,
		Interest:               interest,
		LastInterestTime:       last,
	}, nil
}
