package common

import (
	"math/big"

	"github.com/holiman/uint256"

	rwaerrors "rwalend/core/errors"
)

var (
	// MaxAmount is the largest representable signed 128-bit amount.
	MaxAmount = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1))
	// MinAmount is the smallest representable signed 128-bit amount.
	MinAmount = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 127))
)

// InRange reports whether v fits in a signed 128-bit amount.
func InRange(v *big.Int) bool {
	return v.Cmp(MaxAmount) <= 0 && v.Cmp(MinAmount) >= 0
}

func bounded(v *big.Int) (*big.Int, error) {
	if !InRange(v) {
		return nil, rwaerrors.ErrArithmetic
	}
	return v, nil
}

// CheckedAdd returns a+b or ErrArithmetic when the sum leaves the amount range.
func CheckedAdd(a, b *big.Int) (*big.Int, error) {
	return bounded(new(big.Int).Add(zeroIfNil(a), zeroIfNil(b)))
}

// CheckedSub returns a-b or ErrArithmetic when the difference leaves the range.
func CheckedSub(a, b *big.Int) (*big.Int, error) {
	return bounded(new(big.Int).Sub(zeroIfNil(a), zeroIfNil(b)))
}

// CheckedMul multiplies two amounts. The magnitudes are multiplied as 256-bit
// words so overflow is detected before the sign is applied.
func CheckedMul(a, b *big.Int) (*big.Int, error) {
	a, b = zeroIfNil(a), zeroIfNil(b)
	ua, overflow := uint256.FromBig(new(big.Int).Abs(a))
	if overflow {
		return nil, rwaerrors.ErrArithmetic
	}
	ub, overflow := uint256.FromBig(new(big.Int).Abs(b))
	if overflow {
		return nil, rwaerrors.ErrArithmetic
	}
	product, overflow := new(uint256.Int).MulOverflow(ua, ub)
	if overflow {
		return nil, rwaerrors.ErrArithmetic
	}
	out := product.ToBig()
	if a.Sign()*b.Sign() < 0 {
		out.Neg(out)
	}
	return bounded(out)
}

// CheckedMulAll folds CheckedMul over the factors.
func CheckedMulAll(factors ...*big.Int) (*big.Int, error) {
	acc := big.NewInt(1)
	for _, f := range factors {
		next, err := CheckedMul(acc, f)
		if err != nil {
			return nil, err
		}
		acc = next
	}
	return acc, nil
}

// SaturatingSub returns a-b clamped to the amount range.
func SaturatingSub(a, b *big.Int) *big.Int {
	out := new(big.Int).Sub(zeroIfNil(a), zeroIfNil(b))
	if out.Cmp(MaxAmount) > 0 {
		return new(big.Int).Set(MaxAmount)
	}
	if out.Cmp(MinAmount) < 0 {
		return new(big.Int).Set(MinAmount)
	}
	return out
}

// RequireNonNegative rejects negative amounts with ValueNotPositive.
func RequireNonNegative(v *big.Int) error {
	if v == nil || v.Sign() < 0 {
		return rwaerrors.ErrValueNotPositive
	}
	return nil
}

// RequirePositive rejects zero and negative amounts with ValueNotPositive.
func RequirePositive(v *big.Int) error {
	if v == nil || v.Sign() <= 0 {
		return rwaerrors.ErrValueNotPositive
	}
	return nil
}

// Copy returns an independent copy of v, treating nil as zero.
func Copy(v *big.Int) *big.Int {
	return new(big.Int).Set(zeroIfNil(v))
}

// MinInt returns the smaller of a and b.
func MinInt(a, b *big.Int) *big.Int {
	if zeroIfNil(a).Cmp(zeroIfNil(b)) <= 0 {
		return Copy(a)
	}
	return Copy(b)
}

func zeroIfNil(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
