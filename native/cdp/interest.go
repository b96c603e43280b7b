package cdp

import (
	"math/big"

	"rwalend/native/common"
)

func zeroInterest() Interest {
	return Interest{Amount: new(big.Int), Paid: new(big.Int)}
}

// accrueInterest brings the interest of rec up to now. Positions that never
// accrued only receive a timestamp, as do frozen and closed positions, which
// stop accruing.
func accrueInterest(rec Record, rateBps uint32, now uint64) (Interest, uint64, error) {
	if rec.LastInterestTime == 0 {
		return zeroInterest(), now, nil
	}
	if rec.Status == StatusClosed || rec.Status == StatusFrozen {
		return rec.Interest.clone(), now, nil
	}
	updated, err := projectInterest(rec, rateBps, rec.LastInterestTime, now)
	if err != nil {
		return Interest{}, 0, err
	}
	return updated, now, nil
}

// projectInterest returns the interest rec would carry at to when accrual
// started at from.
func projectInterest(rec Record, rateBps uint32, from, to uint64) (Interest, error) {
	if from == 0 {
		return zeroInterest(), nil
	}
	if rec.Status == StatusClosed || rec.Status == StatusFrozen {
		return rec.Interest.clone(), nil
	}
	var elapsed uint64
	if to > from {
		elapsed = to - from
	}
	if elapsed == 0 {
		return rec.Interest.clone(), nil
	}
	delta, err := interestDelta(rec.Debt, rateBps, elapsed)
	if err != nil {
		return Interest{}, err
	}
	amount, err := common.CheckedAdd(rec.Interest.Amount, delta)
	if err != nil {
		return Interest{}, err
	}
	return Interest{Amount: amount, Paid: common.Copy(rec.Interest.Paid)}, nil
}
