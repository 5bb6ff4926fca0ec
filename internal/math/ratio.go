package math

import (
	"math"
	"math/big"
)

// InfiniteRatio is reported for positions that carry no debt.
const InfiniteRatio int64 = math.MaxInt64

// collateralValueBps returns collateral * price * 10_000 at price scale.
func collateralValueBps(collateral, price int64) *big.Int {
	v := MultiplyInt128(collateral, price)
	return v.Mul(v, big.NewInt(BasisPoints))
}

// CollateralValue returns the value of collateral in debt units, rounded down.
func CollateralValue(collateral, price int64) (int64, error) {
	return MulDiv(collateral, price, PriceConfig.Scale, RoundDown)
}

// CollateralRatioBps returns collateral * price / debt in basis points,
// rounded down. Zero debt yields InfiniteRatio.
func CollateralRatioBps(collateral, price, debt int64) int64 {
	if debt <= 0 {
		return InfiniteRatio
	}

	num := collateralValueBps(collateral, price)
	defer putInt128(num)

	den := MultiplyInt128(debt, PriceConfig.Scale)
	defer putInt128(den)

	q := divRound(num, den, RoundDown)
	if !q.IsInt64() {
		return InfiniteRatio
	}
	return q.Int64()
}

// RatioBelow reports whether collateral * price / debt is strictly below
// ratioBps. The comparison is exact: both sides are cross-multiplied, so a
// position sitting exactly on the boundary is never below it.
func RatioBelow(collateral, price, debt, ratioBps int64) bool {
	if debt <= 0 {
		return false
	}

	lhs := collateralValueBps(collateral, price)
	defer putInt128(lhs)

	rhs := MultiplyInt128(debt, PriceConfig.Scale)
	defer putInt128(rhs)
	rhs.Mul(rhs, big.NewInt(ratioBps))

	return lhs.Cmp(rhs) < 0
}

// MaxDebtAt returns the largest debt that keeps collateral at or above
// ratioBps: collateral * price / ratio, rounded down.
func MaxDebtAt(collateral, price, ratioBps int64) int64 {
	if ratioBps <= 0 {
		return 0
	}

	num := collateralValueBps(collateral, price)
	defer putInt128(num)

	den := MultiplyInt128(ratioBps, PriceConfig.Scale)
	defer putInt128(den)

	q := divRound(num, den, RoundDown)
	if !q.IsInt64() {
		return math.MaxInt64
	}
	return q.Int64()
}

// SeizeAmount converts repaid debt plus penaltyBps into collateral units at
// price: repay * (10_000 + penalty) / 10_000 / price, rounded down.
func SeizeAmount(repay, penaltyBps, price int64) (int64, error) {
	if price <= 0 {
		return 0, ErrDivisionByZero
	}

	num := MultiplyInt128(repay, BasisPoints+penaltyBps)
	defer putInt128(num)
	num.Mul(num, big.NewInt(PriceConfig.Scale))

	den := MultiplyInt128(BasisPoints, price)
	defer putInt128(den)

	q := divRound(num, den, RoundDown)
	if !q.IsInt64() {
		return 0, ErrOverflow
	}
	return q.Int64(), nil
}

// ApplyBps returns amount * bps / 10_000 rounded down.
func ApplyBps(amount, bps int64) (int64, error) {
	return MulDiv(amount, bps, BasisPoints, RoundDown)
}

// RepayCoveredBy is the inverse of SeizeAmount: the largest repayment whose
// penalized seizure fits in collateral, rounded down.
func RepayCoveredBy(collateral, penaltyBps, price int64) (int64, error) {
	num := collateralValueBps(collateral, price)
	defer putInt128(num)

	den := MultiplyInt128(BasisPoints+penaltyBps, PriceConfig.Scale)
	defer putInt128(den)

	q := divRound(num, den, RoundDown)
	if !q.IsInt64() {
		return 0, ErrOverflow
	}
	return q.Int64(), nil
}
