package state

import (
	"errors"
	"fmt"
	"sort"
	"time"

	fpmath "VaultLedger/internal/math"
)

var ErrInvalidParams = errors.New("invalid vault params")

// VaultParams holds the admin-configurable risk parameters. Ratios, penalty
// and fee are basis points (10_000 = 100%).
type VaultParams struct {
	MinCollateralRatio   int64         // ratio required after a debt increase or withdrawal
	LiquidationThreshold int64         // ratio below which a position is liquidatable
	LiquidationPenalty   int64         // extra collateral seized, paid to the liquidator
	StabilityFee         int64         // annual interest rate
	DebtCeiling          int64         // max effective vault debt, 0 = unlimited
	MaxPriceAge          time.Duration // oracle prices older than this are stale
}

// Parameter names accepted by VaultParamsManager.Set.
const (
	ParamMinCollateralRatio   = "min_collateral_ratio"
	ParamLiquidationThreshold = "liquidation_threshold"
	ParamLiquidationPenalty   = "liquidation_penalty"
	ParamStabilityFee         = "stability_fee"
	ParamDebtCeiling          = "debt_ceiling"
	ParamMaxPriceAge          = "max_price_age"
)

// DefaultVaultParams returns the launch configuration.
func DefaultVaultParams() VaultParams {
	return VaultParams{
		MinCollateralRatio:   15_000, // 150%
		LiquidationThreshold: 12_000, // 120%
		LiquidationPenalty:   1_000,  // 10%
		StabilityFee:         200,    // 2% per year
		DebtCeiling:          0,
		MaxPriceAge:          time.Hour,
	}
}

// ValidateVaultParams checks that parameters are within valid ranges:
// threshold >= 100%, min ratio >= threshold, 0 <= penalty < 100%,
// 0 <= fee <= 100%/year, ceiling >= 0, max price age > 0.
func ValidateVaultParams(p VaultParams) error {
	if p.LiquidationThreshold < fpmath.BasisPoints {
		return fmt.Errorf("%w: liquidation_threshold must be >= 100%%, got %s", ErrInvalidParams, fpmath.FormatBps(p.LiquidationThreshold))
	}
	if p.MinCollateralRatio < p.LiquidationThreshold {
		return fmt.Errorf("%w: min_collateral_ratio (%s) must be >= liquidation_threshold (%s)",
			ErrInvalidParams, fpmath.FormatBps(p.MinCollateralRatio), fpmath.FormatBps(p.LiquidationThreshold))
	}
	if p.LiquidationPenalty < 0 || p.LiquidationPenalty >= fpmath.BasisPoints {
		return fmt.Errorf("%w: liquidation_penalty must be in [0%%, 100%%), got %s", ErrInvalidParams, fpmath.FormatBps(p.LiquidationPenalty))
	}
	if p.StabilityFee < 0 || p.StabilityFee > fpmath.BasisPoints {
		return fmt.Errorf("%w: stability_fee must be in [0%%, 100%%], got %s", ErrInvalidParams, fpmath.FormatBps(p.StabilityFee))
	}
	if p.DebtCeiling < 0 {
		return fmt.Errorf("%w: debt_ceiling must be >= 0, got %d", ErrInvalidParams, p.DebtCeiling)
	}
	if p.MaxPriceAge <= 0 {
		return fmt.Errorf("%w: max_price_age must be > 0, got %s", ErrInvalidParams, p.MaxPriceAge)
	}
	return nil
}

// VaultParamsManager owns the live parameter set.
type VaultParamsManager struct {
	params VaultParams
}

func NewVaultParamsManager(initial VaultParams) (*VaultParamsManager, error) {
	if err := ValidateVaultParams(initial); err != nil {
		return nil, err
	}
	return &VaultParamsManager{params: initial}, nil
}

func (m *VaultParamsManager) Get() VaultParams {
	return m.params
}

// Preview returns the parameter set that Set(name, value) would produce,
// validated, together with the old value. MaxPriceAge is in seconds.
func (m *VaultParamsManager) Preview(name string, value int64) (next VaultParams, old int64, err error) {
	next = m.params
	switch name {
	case ParamMinCollateralRatio:
		old, next.MinCollateralRatio = next.MinCollateralRatio, value
	case ParamLiquidationThreshold:
		old, next.LiquidationThreshold = next.LiquidationThreshold, value
	case ParamLiquidationPenalty:
		old, next.LiquidationPenalty = next.LiquidationPenalty, value
	case ParamStabilityFee:
		old, next.StabilityFee = next.StabilityFee, value
	case ParamDebtCeiling:
		old, next.DebtCeiling = next.DebtCeiling, value
	case ParamMaxPriceAge:
		old, next.MaxPriceAge = int64(next.MaxPriceAge/time.Second), time.Duration(value)*time.Second
	default:
		return m.params, 0, fmt.Errorf("%w: unknown parameter %q (known: %v)", ErrInvalidParams, name, ParamNames())
	}

	if err := ValidateVaultParams(next); err != nil {
		return m.params, 0, err
	}
	return next, old, nil
}

// Replace installs a validated parameter set.
func (m *VaultParamsManager) Replace(p VaultParams) error {
	if err := ValidateVaultParams(p); err != nil {
		return err
	}
	m.params = p
	return nil
}

// ParamNames lists the settable parameters.
func ParamNames() []string {
	names := []string{
		ParamMinCollateralRatio,
		ParamLiquidationThreshold,
		ParamLiquidationPenalty,
		ParamStabilityFee,
		ParamDebtCeiling,
		ParamMaxPriceAge,
	}
	sort.Strings(names)
	return names
}
