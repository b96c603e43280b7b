package cdp

import (
	"math/big"

	rwaerrors "rwalend/core/errors"
	"rwalend/core/events"
	"rwalend/crypto"
	"rwalend/native/common"
)

// Liquidate settles a frozen position against the stability pool. Interest
// is covered first; principal is only repaid once no interest remains. The
// pool absorbs min(debt, TotalRWA) and receives the proportional collateral.
// Against an empty pool nothing is repaid, but the epoch still advances and
// the liquidation event is emitted. Anyone may call it.
func (e *Engine) Liquidate(lender crypto.Address) (LiquidationResult, error) {
	st, err := e.begin(common.ModulePool)
	if err != nil {
		return LiquidationResult{}, err
	}
	rec, err := e.loadPosition(lender)
	if err != nil {
		return LiquidationResult{}, err
	}
	if rec.Status != StatusFrozen {
		return LiquidationResult{}, rwaerrors.ErrInvalidLiquidation
	}
	if rec.Debt.Sign() <= 0 || rec.Collateral.Sign() <= 0 {
		return LiquidationResult{}, rwaerrors.ErrInvalidLiquidation
	}
	px, err := e.prices(st)
	if err != nil {
		return LiquidationResult{}, err
	}

	principal := common.Copy(rec.Debt)
	collateral := common.Copy(rec.Collateral)
	interestBefore := common.Copy(rec.Interest.Amount)

	interestRWA := common.MinInt(rec.Interest.Amount, st.TotalRWA)
	interestXLM, err := px.ToCollateral(interestRWA)
	if err != nil {
		return LiquidationResult{}, err
	}
	if interestXLM.Sign() > 0 {
		if err := e.absorb(st, interestRWA, new(big.Int)); err != nil {
			return LiquidationResult{}, err
		}
		if rec.Interest.Amount, err = common.CheckedSub(rec.Interest.Amount, interestRWA); err != nil {
			return LiquidationResult{}, err
		}
		if rec.Interest.Paid, err = common.CheckedAdd(rec.Interest.Paid, interestXLM); err != nil {
			return LiquidationResult{}, err
		}
		if err := e.recordInterest(st, interestXLM); err != nil {
			return LiquidationResult{}, err
		}
	}

	frozen := LiquidationResult{LiquidatedDebt: new(big.Int), LiquidatedCollateral: new(big.Int), Status: StatusFrozen}
	if rec.Interest.Amount.Sign() > 0 {
		if err := e.putRecord(lender, rec); err != nil {
			return LiquidationResult{}, err
		}
		if err := e.storeProtocol(st); err != nil {
			return LiquidationResult{}, err
		}
		e.emitPosition(lender, rec, rec.Status)
		return frozen, nil
	}

	liquidatedDebt := common.MinInt(principal, st.TotalRWA)
	liquidatedCollateral, err := proportion(collateral, liquidatedDebt, principal)
	if err != nil {
		return LiquidationResult{}, err
	}
	if err := e.absorb(st, liquidatedDebt, liquidatedCollateral); err != nil {
		return LiquidationResult{}, err
	}
	if st.TotalCollateral, err = common.CheckedAdd(st.TotalCollateral, liquidatedCollateral); err != nil {
		return LiquidationResult{}, err
	}
	if rec.Collateral, err = common.CheckedSub(rec.Collateral, liquidatedCollateral); err != nil {
		return LiquidationResult{}, err
	}
	if rec.Debt, err = common.CheckedSub(rec.Debt, liquidatedDebt); err != nil {
		return LiquidationResult{}, err
	}

	ratio, err := px.Ratio(collateral, principal, interestBefore)
	if err != nil {
		return LiquidationResult{}, err
	}
	e.emitter.Emit(events.CDPLiquidated{
		Lender:                      lender,
		CollateralLiquidated:        common.Copy(liquidatedCollateral),
		PrincipalRepaid:             common.Copy(liquidatedDebt),
		InterestRepaid:              common.Copy(interestRWA),
		CollateralAppliedToInterest: common.Copy(interestXLM),
		CollateralizationRatio:      ratio,
		CollateralAsset:             st.CollateralAsset,
		CollateralPrice:             common.Copy(px.CollateralPrice),
		PeggedAsset:                 st.PeggedAsset,
		PeggedPrice:                 common.Copy(px.AssetPrice),
		Height:                      e.height,
		Timestamp:                   e.now,
	})

	if err := e.storeProtocol(st); err != nil {
		return LiquidationResult{}, err
	}
	result := LiquidationResult{LiquidatedDebt: liquidatedDebt, LiquidatedCollateral: liquidatedCollateral, Status: StatusFrozen}
	if rec.Debt.Sign() == 0 {
		if err := e.deleteRecord(lender); err != nil {
			return LiquidationResult{}, err
		}
		e.emitPosition(lender, rec, StatusClosed)
		result.Status = StatusClosed
		return result, nil
	}
	if err := e.putRecord(lender, rec); err != nil {
		return LiquidationResult{}, err
	}
	e.emitPosition(lender, rec, rec.Status)
	return result, nil
}

// absorb debits debt from the pool: the constants are advanced, TotalRWA
// shrinks and the matching stake held by the module is burned. When the
// debit rolls the epoch over while stake remains, that remainder belongs to
// no live position and is burned with it.
func (e *Engine) absorb(st *ProtocolState, debt, earned *big.Int) error {
	epoch := st.Epoch
	if err := e.updateConstants(st, debt, earned); err != nil {
		return err
	}
	remaining, err := common.CheckedSub(st.TotalRWA, debt)
	if err != nil {
		return err
	}
	if remaining.Sign() < 0 {
		return rwaerrors.ErrArithmetic
	}
	burn := debt
	if st.Epoch != epoch && remaining.Sign() > 0 {
		burn = new(big.Int).Add(debt, remaining)
		remaining = new(big.Int)
	}
	st.TotalRWA = remaining
	return e.token.BurnInternal(e.module, burn)
}
