package domain

import (
	"math"
	"math/big"

	dErrors "gatekeeper/pkg/domain-errors"
)

// Amount is a token quantity in the asset's smallest unit.
type Amount int64

// ParseAmount validates an amount received at a trust boundary.
func ParseAmount(v int64) (Amount, error) {
	if v < 0 {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "amount cannot be negative")
	}
	return Amount(v), nil
}

// Add returns a+b, failing instead of wrapping on overflow.
func (a Amount) Add(b Amount) (Amount, error) {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "amount overflow")
	}
	return a + b, nil
}

// SubFloor returns a-b floored at zero.
func (a Amount) SubFloor(b Amount) Amount {
	if b >= a {
		return 0
	}
	return a - b
}

// MulDiv computes a*num/den with an arbitrary precision intermediate so the
// product cannot overflow. den must be positive.
func (a Amount) MulDiv(num, den int64) Amount {
	if den <= 0 {
		return 0
	}
	res := new(big.Int).Mul(big.NewInt(int64(a)), big.NewInt(num))
	res.Quo(res, big.NewInt(den))
	if !res.IsInt64() {
		return Amount(math.MaxInt64)
	}
	return Amount(res.Int64())
}
