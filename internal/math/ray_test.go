package math_test

import (
	"testing"

	fpmath "VaultLedger/internal/math"

	"github.com/holiman/uint256"
)

func TestRateFactor_ZeroInputs(t *testing.T) {
	one := fpmath.OneRay()
	if !fpmath.RateFactor(0, 1000).Eq(one) {
		t.Error("zero rate should yield 1.0")
	}
	if !fpmath.RateFactor(200, 0).Eq(one) {
		t.Error("zero elapsed should yield 1.0")
	}
}

func TestRateFactor_OneYearAtTwoPercent(t *testing.T) {
	got := fpmath.RateFactor(200, fpmath.SecondsPerYear)
	want := uint256.MustFromDecimal("1020000000000000000000000000")
	if !got.Eq(want) {
		t.Errorf("got %s, want %s", got.Dec(), want.Dec())
	}
}

func TestRayMul(t *testing.T) {
	a := uint256.MustFromDecimal("1020000000000000000000000000")
	got, err := fpmath.RayMul(a, a)
	if err != nil {
		t.Fatalf("RayMul: %v", err)
	}
	want := uint256.MustFromDecimal("1040400000000000000000000000")
	if !got.Eq(want) {
		t.Errorf("got %s, want %s", got.Dec(), want.Dec())
	}
}

func TestEffectiveDebt(t *testing.T) {
	snapshot := fpmath.OneRay()
	index := uint256.MustFromDecimal("1020000000000000000000000000")

	got, err := fpmath.EffectiveDebt(1_000_000_000, index, snapshot)
	if err != nil {
		t.Fatalf("EffectiveDebt: %v", err)
	}
	if got != 1_020_000_000 {
		t.Errorf("got %d, want 1_020_000_000", got)
	}

	// Same index: principal unchanged
	same, _ := fpmath.EffectiveDebt(777, snapshot, snapshot)
	if same != 777 {
		t.Errorf("got %d, want 777", same)
	}
}

func TestEffectiveDebt_RoundsUp(t *testing.T) {
	snapshot := fpmath.OneRay()
	index := uint256.MustFromDecimal("1000000000000000000000000001") // 1 + 1e-27

	got, err := fpmath.EffectiveDebt(1, index, snapshot)
	if err != nil {
		t.Fatalf("EffectiveDebt: %v", err)
	}
	if got != 2 {
		t.Errorf("dust interest must round up: got %d, want 2", got)
	}
}

func TestScaledDebt_RoundTrip(t *testing.T) {
	snapshot := uint256.MustFromDecimal("1013000000000000000000000000")
	index := uint256.MustFromDecimal("1027000000000000000000000000")

	scaled := fpmath.ScaledDebt(500_000_000, snapshot)
	fromScaled, err := fpmath.DebtFromScaled(scaled, index)
	if err != nil {
		t.Fatalf("DebtFromScaled: %v", err)
	}
	direct, _ := fpmath.EffectiveDebt(500_000_000, index, snapshot)

	if fromScaled != direct {
		t.Errorf("scaled path %d != direct path %d", fromScaled, direct)
	}
}

func TestParseRay(t *testing.T) {
	v, err := fpmath.ParseRay("1000000000000000000000000000")
	if err != nil {
		t.Fatalf("ParseRay: %v", err)
	}
	if !v.Eq(fpmath.OneRay()) {
		t.Error("expected 1.0")
	}
	if _, err := fpmath.ParseRay("0"); err == nil {
		t.Error("zero index must be rejected")
	}
}
