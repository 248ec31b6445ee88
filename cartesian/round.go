package cartesian

import (
	"math"
	"math/big"

	"github.com/shopspring/decimal"
)

// Round rounds `x` to the given number of decimal places, with ties going to the even digit. The exact binary value
// of `x` is rounded, so 2.675 (stored as 2.67499999...) rounds down to 2.67.
// NaN and infinities are returned unchanged.
func Round(x float64, places int32) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	return exactDecimal(x).RoundBank(places).InexactFloat64()
}

// exactDecimal returns the decimal that is exactly equal to `x`, using m*2^-k = m*5^k*10^-k.
func exactDecimal(x float64) decimal.Decimal {
	frac, exp := math.Frexp(x)
	mant := big.NewInt(int64(frac * (1 << 53)))
	exp -= 53

	if exp >= 0 {
		return decimal.NewFromBigInt(mant.Lsh(mant, uint(exp)), 0)
	}
	five := new(big.Int).Exp(big.NewInt(5), big.NewInt(int64(-exp)), nil)
	return decimal.NewFromBigInt(mant.Mul(mant, five), int32(exp))
}
