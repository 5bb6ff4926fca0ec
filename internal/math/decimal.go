package math

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// ToDecimal renders a fixed-point value at cfg precision.
func ToDecimal(v int64, cfg DecimalConfig) decimal.Decimal {
	return decimal.New(v, -int32(cfg.DecimalPrecision))
}

// FromDecimal converts d into cfg fixed-point, rejecting precision the
// config cannot represent.
func FromDecimal(d decimal.Decimal, cfg DecimalConfig) (int64, error) {
	scaled := d.Shift(int32(cfg.DecimalPrecision))
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, fmt.Errorf("%s has more than %d decimal places", d.String(), cfg.DecimalPrecision)
	}
	if !scaled.BigInt().IsInt64() {
		return 0, fmt.Errorf("%w: %s", ErrOverflow, d.String())
	}
	return scaled.IntPart(), nil
}

// ParseAmount parses a human amount such as "1500.25" into AmountConfig units.
func ParseAmount(s string) (int64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return FromDecimal(d, AmountConfig)
}

// ParsePrice parses a quote such as "2000.5" into PriceConfig units.
func ParsePrice(s string) (int64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("parse price %q: %w", s, err)
	}
	return FromDecimal(d, PriceConfig)
}

// ParsePercent parses "150", "150%" or "12.5%" into basis points.
func ParsePercent(s string) (int64, error) {
	trimmed := strings.TrimSuffix(strings.TrimSpace(s), "%")
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return 0, fmt.Errorf("parse percent %q: %w", s, err)
	}
	return FromDecimal(d, PercentConfig)
}

// FormatAmount renders AmountConfig units, e.g. 1_500_000 -> "1.5".
func FormatAmount(v int64) string {
	return ToDecimal(v, AmountConfig).String()
}

// FormatPrice renders PriceConfig units.
func FormatPrice(v int64) string {
	return ToDecimal(v, PriceConfig).String()
}

// FormatBps renders basis points as a percentage, e.g. 15000 -> "150.00%".
func FormatBps(bps int64) string {
	if bps == InfiniteRatio {
		return "inf"
	}
	return ToDecimal(bps, PercentConfig).StringFixed(2) + "%"
}

// RayToDecimal renders a ray as a decimal multiplier, e.g. 1.02.
func RayToDecimal(v *uint256.Int) decimal.Decimal {
	return decimal.NewFromBigInt(v.ToBig(), -27)
}

// FormatRay renders a ray with 9 decimal places.
func FormatRay(v *uint256.Int) string {
	return RayToDecimal(v).StringFixed(9)
}
