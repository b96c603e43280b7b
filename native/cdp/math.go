package cdp

import (
	"math"
	"math/big"

	rwaerrors "rwalend/core/errors"
	"rwalend/native/common"
)

var (
	bigOne = big.NewInt(1)
	bigTwo = big.NewInt(2)
	maxU32 = new(big.Int).SetUint64(math.MaxUint32)
)

// bankersRound divides value by precision and rounds half to even. The
// remainder is Euclidean so the midpoint test is sign independent.
func bankersRound(value, precision *big.Int) *big.Int {
	half := new(big.Int).Quo(precision, bigTwo)
	halfway := new(big.Int).Sub(precision, half)
	remainder := new(big.Int).Mod(value, precision)
	quotient := new(big.Int).Quo(value, precision)

	if remainder.Cmp(half) == 0 || remainder.Cmp(halfway) == 0 {
		if new(big.Int).Mod(quotient, bigTwo).Sign() == 0 {
			return quotient
		}
		return quotient.Add(quotient, bigOne)
	}
	if remainder.Cmp(half) < 0 {
		return quotient
	}
	return quotient.Add(quotient, bigOne)
}

func pow10(n uint32) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// scaleFactors returns the powers of ten applied to the numerator and the
// denominator so prices quoted with different decimals are comparable.
func scaleFactors(collateralDecimals, assetDecimals uint32) (num, den *big.Int) {
	num, den = big.NewInt(1), big.NewInt(1)
	switch {
	case collateralDecimals > assetDecimals:
		den = pow10(collateralDecimals - assetDecimals)
	case assetDecimals > collateralDecimals:
		num = pow10(assetDecimals - collateralDecimals)
	}
	return num, den
}

// CollateralizationRatio returns the collateral to debt value ratio in basis
// points. Accrued interest is subtracted from collateral as a raw amount,
// without converting it out of synthetic units first. A position without
// debt, or a zero asset price, reports math.MaxUint32.
func CollateralizationRatio(debt, assetPrice, collateral, collateralPrice *big.Int, collateralDecimals, assetDecimals uint32, accruedInterest *big.Int) (uint32, error) {
	if debt == nil || debt.Sign() == 0 || assetPrice == nil || assetPrice.Sign() == 0 {
		return math.MaxUint32, nil
	}
	numScale, denScale := scaleFactors(collateralDecimals, assetDecimals)
	effective := common.SaturatingSub(collateral, accruedInterest)

	numerator, err := common.CheckedMulAll(basisPointsBig, effective, collateralPrice, numScale)
	if err != nil {
		return 0, err
	}
	denominator, err := common.CheckedMulAll(debt, denScale, assetPrice)
	if err != nil {
		return 0, err
	}
	ratio := new(big.Int).Quo(numerator, denominator)
	if ratio.Sign() < 0 {
		return 0, nil
	}
	if ratio.Cmp(maxU32) > 0 {
		return math.MaxUint32, nil
	}
	return uint32(ratio.Uint64()), nil
}

// convertToCollateral expresses amount of the synthetic asset in collateral
// units at the given prices.
func convertToCollateral(amount, assetPrice, collateralPrice *big.Int, collateralDecimals, assetDecimals uint32) (*big.Int, error) {
	if collateralPrice == nil || collateralPrice.Sign() == 0 {
		return nil, rwaerrors.ErrArithmetic
	}
	numScale, denScale := big.NewInt(1), big.NewInt(1)
	if collateralDecimals >= assetDecimals {
		numScale = pow10(collateralDecimals - assetDecimals)
	} else {
		denScale = pow10(assetDecimals - collateralDecimals)
	}
	numerator, err := common.CheckedMulAll(defaultPrecision, amount, assetPrice, numScale)
	if err != nil {
		return nil, err
	}
	denominator, err := common.CheckedMul(collateralPrice, denScale)
	if err != nil {
		return nil, err
	}
	return bankersRound(new(big.Int).Quo(numerator, denominator), defaultPrecision), nil
}

// interestDelta is the linear interest on debt at rateBps over elapsed seconds.
func interestDelta(debt *big.Int, rateBps uint32, elapsed uint64) (*big.Int, error) {
	scaled, err := common.CheckedMulAll(debt, big.NewInt(int64(rateBps)), new(big.Int).SetUint64(elapsed), interestPrecision)
	if err != nil {
		return nil, err
	}
	perYear := new(big.Int).Mul(basisPointsBig, big.NewInt(SecondsPerYear))
	return bankersRound(new(big.Int).Quo(scaled, perYear), interestPrecision), nil
}

// proportion returns bankersRound(precision*value*num/den, precision).
func proportion(value, num, den *big.Int) (*big.Int, error) {
	if den == nil || den.Sign() == 0 {
		return nil, rwaerrors.ErrArithmetic
	}
	scaled, err := common.CheckedMulAll(defaultPrecision, value, num)
	if err != nil {
		return nil, err
	}
	return bankersRound(new(big.Int).Quo(scaled, den), defaultPrecision), nil
}
