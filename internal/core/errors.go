package core

import (
	"errors"

	"VaultLedger/internal/ledger"
	"VaultLedger/internal/state"
)

// Errors returned by the coordinator. Every error is wrapped with the
// violated rule and the figures involved; match with errors.Is.
var (
	ErrInvalidAmount          = ledger.ErrInvalidAmount
	ErrInsufficientBalance    = ledger.ErrInsufficientBalance
	ErrInsufficientDebt       = ledger.ErrInsufficientDebt
	ErrInsufficientCollateral = state.ErrInsufficientCollateral
	ErrNotLiquidatable        = state.ErrNotLiquidatable
	ErrPositionNotFound       = state.ErrPositionNotFound
	ErrInvalidParams          = state.ErrInvalidParams

	ErrUndercollateralizedOperation = errors.New("undercollateralized operation")
	ErrUnauthorized                 = errors.New("unauthorized")
	ErrStalePriceData               = errors.New("stale price data")
	ErrReentrancyDetected           = errors.New("reentrancy detected")
	ErrVaultPaused                  = errors.New("vault paused")
	ErrDebtCeilingExceeded          = errors.New("exceeds debt ceiling")
	ErrExternalTransfer             = errors.New("external transfer failed")
)

// Reason returns a short label for err, used as a metric label and in logs.
func Reason(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ErrInsufficientDebt):
		return "insufficient_debt"
	case errors.Is(err, ErrInsufficientCollateral):
		return "insufficient_collateral"
	case errors.Is(err, ErrUndercollateralizedOperation):
		return "undercollateralized"
	case errors.Is(err, ErrNotLiquidatable):
		return "not_liquidatable"
	case errors.Is(err, ErrPositionNotFound):
		return "position_not_found"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrStalePriceData):
		return "stale_price"
	case errors.Is(err, ErrReentrancyDetected):
		return "reentrancy"
	case errors.Is(err, ErrVaultPaused):
		return "paused"
	case errors.Is(err, ErrDebtCeilingExceeded):
		return "debt_ceiling"
	case errors.Is(err, ErrInvalidParams):
		return "invalid_params"
	case errors.Is(err, ErrExternalTransfer):
		return "external_transfer"
	default:
		return "internal"
	}
}
