package server

import (
	"context"
	"errors"

	"VaultLedger/internal/core"
	"VaultLedger/internal/service"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Code maps a vault error to its gRPC code. The HTTP gateway derives the
// HTTP status from it.
func Code(err error) codes.Code {
	if s, ok := status.FromError(err); ok {
		return s.Code()
	}
	switch {
	case errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrInvalidParams):
		return codes.InvalidArgument
	case errors.Is(err, core.ErrPositionNotFound):
		return codes.NotFound
	case errors.Is(err, core.ErrUnauthorized):
		return codes.PermissionDenied
	case errors.Is(err, core.ErrInsufficientBalance),
		errors.Is(err, core.ErrInsufficientDebt),
		errors.Is(err, core.ErrInsufficientCollateral),
		errors.Is(err, core.ErrUndercollateralizedOperation),
		errors.Is(err, core.ErrNotLiquidatable),
		errors.Is(err, core.ErrDebtCeilingExceeded),
		errors.Is(err, core.ErrVaultPaused):
		return codes.FailedPrecondition
	case errors.Is(err, core.ErrStalePriceData),
		errors.Is(err, core.ErrExternalTransfer),
		errors.Is(err, service.ErrStopped):
		return codes.Unavailable
	case errors.Is(err, core.ErrReentrancyDetected):
		return codes.Aborted
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	default:
		return codes.Internal
	}
}

// toStatus converts err into a status error carrying the vault message.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	return status.Error(Code(err), err.Error())
}
