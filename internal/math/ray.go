package math

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

// SecondsPerYear is the accrual year used for the stability fee.
const SecondsPerYear int64 = 365 * 24 * 60 * 60

var (
	ray        = uint256.MustFromDecimal("1000000000000000000000000000") // 1e27 precision
	halfRay    = new(uint256.Int).Rsh(ray, 1)
	raySquared = new(big.Int).Mul(ray.ToBig(), ray.ToBig())
)

// OneRay returns 1.0 in ray precision. The result is a fresh value.
func OneRay() *uint256.Int {
	return new(uint256.Int).Set(ray)
}

// ParseRay parses a decimal ray string as stored in snapshots.
func ParseRay(s string) (*uint256.Int, error) {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("parse ray %q: %w", s, err)
	}
	if v.IsZero() {
		return nil, fmt.Errorf("parse ray %q: index must be positive", s)
	}
	return v, nil
}

// RateFactor returns 1 + rateBps/10_000 * elapsed/SecondsPerYear in ray
// precision, rounded half up.
func RateFactor(rateBps int64, elapsedSeconds int64) *uint256.Int {
	if rateBps <= 0 || elapsedSeconds <= 0 {
		return OneRay()
	}

	// ray * rate * dt fits comfortably: 1e27 * 1e4 * 1e10 < 2^256
	num := new(uint256.Int).Mul(ray, uint256.NewInt(uint64(rateBps)))
	num.Mul(num, uint256.NewInt(uint64(elapsedSeconds)))

	den := new(uint256.Int).Mul(uint256.NewInt(uint64(BasisPoints)), uint256.NewInt(uint64(SecondsPerYear)))
	half := new(uint256.Int).Rsh(den, 1)

	num.Add(num, half)
	num.Div(num, den)
	return num.Add(num, ray)
}

// RayMul returns a * b / ray rounded half up.
func RayMul(a, b *uint256.Int) (*uint256.Int, error) {
	product, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return nil, fmt.Errorf("%w: ray multiplication", ErrOverflow)
	}
	if _, overflow = product.AddOverflow(product, halfRay); overflow {
		return nil, fmt.Errorf("%w: ray multiplication", ErrOverflow)
	}
	return product.Div(product, ray), nil
}

// EffectiveDebt returns principal * index / snapshot rounded up, so accrued
// interest never rounds in the borrower's favour.
func EffectiveDebt(principal int64, index, snapshot *uint256.Int) (int64, error) {
	if principal == 0 {
		return 0, nil
	}
	if snapshot == nil || snapshot.IsZero() {
		return 0, fmt.Errorf("%w: zero index snapshot", ErrDivisionByZero)
	}
	if index.Eq(snapshot) {
		return principal, nil
	}

	num := new(big.Int).Mul(big.NewInt(principal), index.ToBig())
	q := divRound(num, snapshot.ToBig(), RoundUp)
	if !q.IsInt64() {
		return 0, fmt.Errorf("%w: effective debt %s", ErrOverflow, q.String())
	}
	return q.Int64(), nil
}

// ScaledDebt normalizes principal booked at snapshot to index 1.0, keeping
// 27 extra decimal places: principal * ray^2 / snapshot, rounded down.
func ScaledDebt(principal int64, snapshot *uint256.Int) *uint256.Int {
	if principal <= 0 || snapshot == nil || snapshot.IsZero() {
		return new(uint256.Int)
	}

	num := new(big.Int).Mul(big.NewInt(principal), raySquared)
	num.Quo(num, snapshot.ToBig())

	scaled, _ := uint256.FromBig(num)
	return scaled
}

// DebtFromScaled converts a scaled amount back to debt units at index,
// rounded up.
func DebtFromScaled(scaled, index *uint256.Int) (int64, error) {
	if scaled.IsZero() {
		return 0, nil
	}

	num := new(big.Int).Mul(scaled.ToBig(), index.ToBig())
	q := divRound(num, raySquared, RoundUp)
	if !q.IsInt64() {
		return 0, fmt.Errorf("%w: scaled debt %s", ErrOverflow, q.String())
	}
	return q.Int64(), nil
}
