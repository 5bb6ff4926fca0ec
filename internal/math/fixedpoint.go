// internal/math/fixedpoint.go
package math

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
)

// DecimalConfig defines fixed-point precision
type DecimalConfig struct {
	DecimalPrecision int   // Number of decimal places
	Scale            int64 // 10^DecimalPrecision
}

var (
	// Collateral and debt share one amount precision.
	AmountConfig = DecimalConfig{DecimalPrecision: 6, Scale: 1_000_000} // 0.000001
	// Price is debt units per one collateral unit.
	PriceConfig = DecimalConfig{DecimalPrecision: 6, Scale: 1_000_000}
	// Basis points read as a percentage with two decimals.
	PercentConfig = DecimalConfig{DecimalPrecision: 2, Scale: 100} // 15000 bps = 150.00%
)

// BasisPoints is 100% expressed in basis points.
const BasisPoints int64 = 10_000

var (
	ErrOverflow       = errors.New("fixed-point overflow")
	ErrDivisionByZero = errors.New("fixed-point division by zero")
)

// Int128 is a pooled big.Int for intermediate calculations
var int128Pool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getInt128() *big.Int {
	return int128Pool.Get().(*big.Int)
}

func putInt128(v *big.Int) {
	v.SetInt64(0) // Clear before returning to pool
	int128Pool.Put(v)
}

type RoundingMode int

const (
	RoundHalfEven RoundingMode = iota // Banker's rounding (default)
	RoundDown
	RoundUp
)

// MultiplyInt128 performs a * b using int128 to prevent overflow.
// The caller owns the result and should release it with Release.
func MultiplyInt128(a, b int64) *big.Int {
	result := getInt128()
	result.Mul(big.NewInt(a), big.NewInt(b))
	return result
}

// Release returns an intermediate to the pool.
func Release(v *big.Int) {
	putInt128(v)
}

// divRound divides numerator by a positive denominator. Operands are
// non-negative everywhere in the vault so truncation equals flooring.
func divRound(numerator, denominator *big.Int, mode RoundingMode) *big.Int {
	quotient := new(big.Int)
	remainder := getInt128()
	defer putInt128(remainder)

	quotient.QuoRem(numerator, denominator, remainder)
	if remainder.Sign() == 0 {
		return quotient
	}

	switch mode {
	case RoundUp:
		quotient.Add(quotient, big.NewInt(1))
	case RoundHalfEven:
		doubled := getInt128()
		doubled.Lsh(remainder, 1)
		cmp := doubled.Cmp(denominator)
		putInt128(doubled)

		if cmp > 0 || (cmp == 0 && quotient.Bit(0) == 1) {
			quotient.Add(quotient, big.NewInt(1))
		}
	}

	return quotient
}

// DivideInt128 performs numerator / denominator with rounding
func DivideInt128(numerator *big.Int, denominator int64, roundingMode RoundingMode) (int64, error) {
	if denominator <= 0 {
		return 0, ErrDivisionByZero
	}

	q := divRound(numerator, big.NewInt(denominator), roundingMode)
	if !q.IsInt64() {
		return 0, fmt.Errorf("%w: %s does not fit int64", ErrOverflow, q.String())
	}
	return q.Int64(), nil
}

// MulDiv computes a * b / c with a 128-bit intermediate.
func MulDiv(a, b, c int64, mode RoundingMode) (int64, error) {
	product := MultiplyInt128(a, b)
	defer putInt128(product)

	return DivideInt128(product, c, mode)
}

// AddChecked returns a + b, failing instead of wrapping.
func AddChecked(a, b int64) (int64, error) {
	sum := a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		return 0, fmt.Errorf("%w: %d + %d", ErrOverflow, a, b)
	}
	return sum, nil
}
