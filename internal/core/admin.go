package core

import (
	"context"
	"fmt"

	"VaultLedger/internal/event"
	"VaultLedger/internal/state"

	"github.com/google/uuid"
)

// Admin operations are capability-gated and keep working while the vault
// is paused. Each committed change emits one event and advances the
// sequence like any other operation.

// SetParam changes one risk parameter. MaxPriceAge is given in seconds.
// Changing the stability fee first accrues the index at the old rate.
func (vc *VaultCoordinator) SetParam(ctx context.Context, caller uuid.UUID, name string, value int64) (r Receipt, err error) {
	op, err := vc.begin(ctx, "set_param", false)
	if err != nil {
		return Receipt{}, err
	}
	defer vc.end(op, &err)

	if err := vc.access.Require(caller, CapAdmin); err != nil {
		return Receipt{}, err
	}
	next, old, err := vc.params.Preview(name, value)
	if err != nil {
		return Receipt{}, err
	}

	if name == state.ParamStabilityFee {
		index, err := vc.interest.Preview(op.now)
		if err != nil {
			return Receipt{}, err
		}
		vc.interest.Commit(index, op.now)
		vc.interest.SetRate(value)
	}
	must(vc.params.Replace(next))
	op.emit(&event.VaultConfigUpdated{Param: name, OldValue: old, NewValue: value, By: caller})

	return vc.finish(op), nil
}

func (vc *VaultCoordinator) SetMinCollateralRatio(ctx context.Context, caller uuid.UUID, bps int64) error {
	_, err := vc.SetParam(ctx, caller, state.ParamMinCollateralRatio, bps)
	return err
}

func (vc *VaultCoordinator) SetLiquidationThreshold(ctx context.Context, caller uuid.UUID, bps int64) error {
	_, err := vc.SetParam(ctx, caller, state.ParamLiquidationThreshold, bps)
	return err
}

func (vc *VaultCoordinator) SetLiquidationPenalty(ctx context.Context, caller uuid.UUID, bps int64) error {
	_, err := vc.SetParam(ctx, caller, state.ParamLiquidationPenalty, bps)
	return err
}

func (vc *VaultCoordinator) SetStabilityFee(ctx context.Context, caller uuid.UUID, bps int64) error {
	_, err := vc.SetParam(ctx, caller, state.ParamStabilityFee, bps)
	return err
}

// SetDebtCeiling sets the vault-wide debt cap; 0 removes it.
func (vc *VaultCoordinator) SetDebtCeiling(ctx context.Context, caller uuid.UUID, amount int64) error {
	_, err := vc.SetParam(ctx, caller, state.ParamDebtCeiling, amount)
	return err
}

// Pause blocks user mutations. Pausing a paused vault is a no-op.
func (vc *VaultCoordinator) Pause(ctx context.Context, caller uuid.UUID) error {
	return vc.setPaused(ctx, caller, true)
}

func (vc *VaultCoordinator) Unpause(ctx context.Context, caller uuid.UUID) error {
	return vc.setPaused(ctx, caller, false)
}

func (vc *VaultCoordinator) setPaused(ctx context.Context, caller uuid.UUID, paused bool) (err error) {
	name := "unpause"
	if paused {
		name = "pause"
	}
	op, err := vc.begin(ctx, name, false)
	if err != nil {
		return err
	}
	defer vc.end(op, &err)

	if !vc.access.Has(caller, CapPause) && !vc.access.Has(caller, CapAdmin) {
		return fmt.Errorf("%w: %s lacks capability %q", ErrUnauthorized, caller, CapPause)
	}
	if vc.paused == paused {
		return nil
	}

	vc.paused = paused
	if paused {
		op.emit(&event.VaultPaused{By: caller})
	} else {
		op.emit(&event.VaultUnpaused{By: caller})
	}
	vc.finish(op)
	return nil
}

// Grant gives target a capability. Granting a held capability is a no-op.
func (vc *VaultCoordinator) Grant(ctx context.Context, caller, target uuid.UUID, c Capability) (err error) {
	op, err := vc.begin(ctx, "grant", false)
	if err != nil {
		return err
	}
	defer vc.end(op, &err)

	if err := vc.access.Require(caller, CapAdmin); err != nil {
		return err
	}
	if !vc.access.Grant(target, c) {
		return nil
	}
	op.emit(&event.CapabilityGranted{Caller: target, Capability: string(c), By: caller})
	vc.finish(op)
	return nil
}

// Revoke removes a capability from target. The last admin cannot be revoked.
func (vc *VaultCoordinator) Revoke(ctx context.Context, caller, target uuid.UUID, c Capability) (err error) {
	op, err := vc.begin(ctx, "revoke", false)
	if err != nil {
		return err
	}
	defer vc.end(op, &err)

	if err := vc.access.Require(caller, CapAdmin); err != nil {
		return err
	}
	if c == CapAdmin && vc.access.Has(target, CapAdmin) && vc.adminCount() == 1 {
		return fmt.Errorf("%w: cannot revoke the last admin %s", ErrInvalidParams, target)
	}
	if !vc.access.Revoke(target, c) {
		return nil
	}
	op.emit(&event.CapabilityRevoked{Caller: target, Capability: string(c), By: caller})
	vc.finish(op)
	return nil
}

func (vc *VaultCoordinator) adminCount() int {
	n := 0
	for _, g := range vc.access.Grants() {
		if g.Capability == CapAdmin {
			n++
		}
	}
	return n
}
