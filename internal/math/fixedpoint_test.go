package math_test

import (
	"errors"
	stdmath "math"
	"testing"

	fpmath "VaultLedger/internal/math"
)

// ============================================================================
// Test: MulDiv rounding
// ============================================================================

func TestMulDiv_RoundingModes(t *testing.T) {
	tests := []struct {
		name string
		a, b int64
		c    int64
		mode fpmath.RoundingMode
		want int64
	}{
		{"exact", 10, 10, 4, fpmath.RoundDown, 25},
		{"down", 10, 1, 3, fpmath.RoundDown, 3},
		{"up", 10, 1, 3, fpmath.RoundUp, 4},
		{"half even rounds to even (down)", 5, 1, 2, fpmath.RoundHalfEven, 2},
		{"half even rounds to even (up)", 7, 1, 2, fpmath.RoundHalfEven, 4},
		{"half even above half", 5, 1, 3, fpmath.RoundHalfEven, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := fpmath.MulDiv(tt.a, tt.b, tt.c, tt.mode)
			if err != nil {
				t.Fatalf("MulDiv: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestMulDiv_LargeIntermediate(t *testing.T) {
	// 9e18 * 1e6 overflows int64 but the quotient does not.
	got, err := fpmath.MulDiv(9_000_000_000_000_000_000, 1_000_000, 1_000_000, fpmath.RoundDown)
	if err != nil {
		t.Fatalf("MulDiv: %v", err)
	}
	if got != 9_000_000_000_000_000_000 {
		t.Errorf("got %d", got)
	}
}

func TestMulDiv_Overflow(t *testing.T) {
	_, err := fpmath.MulDiv(stdmath.MaxInt64, 2, 1, fpmath.RoundDown)
	if !errors.Is(err, fpmath.ErrOverflow) {
		t.Fatalf("expected ErrOverflow, got %v", err)
	}
}

func TestMulDiv_DivisionByZero(t *testing.T) {
	_, err := fpmath.MulDiv(1, 1, 0, fpmath.RoundDown)
	if !errors.Is(err, fpmath.ErrDivisionByZero) {
		t.Fatalf("expected ErrDivisionByZero, got %v", err)
	}
}

func TestAddChecked(t *testing.T) {
	if v, err := fpmath.AddChecked(1, 2); err != nil || v != 3 {
		t.Fatalf("AddChecked(1,2) = %d, %v", v, err)
	}
	if _, err := fpmath.AddChecked(stdmath.MaxInt64, 1); !errors.Is(err, fpmath.ErrOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
}

// ============================================================================
// Test: decimal conversions
// ============================================================================

func TestParseAmount(t *testing.T) {
	v, err := fpmath.ParseAmount("1500.25")
	if err != nil {
		t.Fatalf("ParseAmount: %v", err)
	}
	if v != 1_500_250_000 {
		t.Errorf("got %d, want 1_500_250_000", v)
	}

	if _, err := fpmath.ParseAmount("0.0000001"); err == nil {
		t.Error("expected precision error for 7 decimal places")
	}
	if _, err := fpmath.ParseAmount("abc"); err == nil {
		t.Error("expected parse error")
	}
}

func TestParsePrice(t *testing.T) {
	v, err := fpmath.ParsePrice(" 65000.5 ")
	if err != nil {
		t.Fatalf("ParsePrice: %v", err)
	}
	if v != 65_000_500_000 {
		t.Errorf("got %d, want 65_000_500_000", v)
	}
	if got := fpmath.FormatPrice(v); got != "65000.5" {
		t.Errorf("FormatPrice = %q", got)
	}
}

func TestParsePercent(t *testing.T) {
	for in, want := range map[string]int64{
		"150":   15_000,
		"150%":  15_000,
		"12.5%": 1_250,
		" 2 ":   200,
	} {
		got, err := fpmath.ParsePercent(in)
		if err != nil {
			t.Fatalf("ParsePercent(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("ParsePercent(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestFormatBps(t *testing.T) {
	if got := fpmath.FormatBps(15_000); got != "150.00%" {
		t.Errorf("got %q", got)
	}
	if got := fpmath.FormatBps(13_636); got != "136.36%" {
		t.Errorf("got %q", got)
	}
	if got := fpmath.FormatBps(fpmath.InfiniteRatio); got != "inf" {
		t.Errorf("got %q", got)
	}
}

func TestFormatAmount(t *testing.T) {
	if got := fpmath.FormatAmount(1_500_000); got != "1.5" {
		t.Errorf("got %q, want 1.5", got)
	}
}
