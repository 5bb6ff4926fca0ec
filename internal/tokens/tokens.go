// Package tokens provides in-process implementations of the collateral and
// debt token collaborators, used by the dev server and tests.
package tokens

import (
	"context"
	"errors"
	"fmt"
	"sync"

	fpmath "VaultLedger/internal/math"

	"github.com/google/uuid"
)

var ErrInsufficientFunds = errors.New("insufficient token balance")

// CollateralCustody holds owner wallets of the collateral asset and the
// amount in vault custody.
type CollateralCustody struct {
	mu      sync.Mutex
	wallets map[uuid.UUID]int64
	custody int64
}

func NewCollateralCustody() *CollateralCustody {
	return &CollateralCustody{wallets: make(map[uuid.UUID]int64)}
}

// Fund credits owner's wallet out of thin air (faucet).
func (c *CollateralCustody) Fund(owner uuid.UUID, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("fund amount must be > 0, got %d", amount)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	next, err := fpmath.AddChecked(c.wallets[owner], amount)
	if err != nil {
		return err
	}
	c.wallets[owner] = next
	return nil
}

func (c *CollateralCustody) TransferIn(ctx context.Context, from uuid.UUID, amount int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.wallets[from] < amount {
		return fmt.Errorf("%w: %s holds %s, needs %s", ErrInsufficientFunds, from,
			fpmath.FormatAmount(c.wallets[from]), fpmath.FormatAmount(amount))
	}
	c.wallets[from] -= amount
	c.custody += amount
	return nil
}

func (c *CollateralCustody) TransferOut(ctx context.Context, to uuid.UUID, amount int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.custody < amount {
		return fmt.Errorf("%w: custody holds %s, needs %s", ErrInsufficientFunds,
			fpmath.FormatAmount(c.custody), fpmath.FormatAmount(amount))
	}
	c.custody -= amount
	c.wallets[to] += amount
	return nil
}

func (c *CollateralCustody) Balance(owner uuid.UUID) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wallets[owner]
}

// Custody returns the collateral held by the vault.
func (c *CollateralCustody) Custody() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.custody
}

// DebtToken is the debt asset: minted on borrow, burned on repay.
type DebtToken struct {
	mu       sync.Mutex
	balances map[uuid.UUID]int64
	supply   int64
}

func NewDebtToken() *DebtToken {
	return &DebtToken{balances: make(map[uuid.UUID]int64)}
}

func (d *DebtToken) Mint(ctx context.Context, to uuid.UUID, amount int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	supply, err := fpmath.AddChecked(d.supply, amount)
	if err != nil {
		return err
	}
	d.supply = supply
	d.balances[to] += amount
	return nil
}

func (d *DebtToken) Burn(ctx context.Context, from uuid.UUID, amount int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.balances[from] < amount {
		return fmt.Errorf("%w: %s holds %s, needs %s", ErrInsufficientFunds, from,
			fpmath.FormatAmount(d.balances[from]), fpmath.FormatAmount(amount))
	}
	d.balances[from] -= amount
	d.supply -= amount
	return nil
}

// Transfer moves debt tokens between holders (e.g. to fund a liquidator).
func (d *DebtToken) Transfer(from, to uuid.UUID, amount int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if amount <= 0 || d.balances[from] < amount {
		return fmt.Errorf("%w: %s cannot send %d", ErrInsufficientFunds, from, amount)
	}
	d.balances[from] -= amount
	d.balances[to] += amount
	return nil
}

func (d *DebtToken) Balance(owner uuid.UUID) int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.balances[owner]
}

func (d *DebtToken) Supply() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.supply
}

// RestoreCustody sets the vault custody balance. Wallets are not part of
// vault snapshots, so a restarted process rebuilds custody from the
// restored positions.
func (c *CollateralCustody) RestoreCustody(amount int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.custody = amount
}

// Restore credits holder without a mint event and grows the supply.
func (d *DebtToken) Restore(holder uuid.UUID, amount int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.balances[holder] += amount
	d.supply += amount
}

// Faucet tops up a wallet before each deposit so a dev server accepts
// deposits from any owner. A single top-up never exceeds Limit; larger
// shortfalls fail as usual.
type Faucet struct {
	*CollateralCustody
	Limit int64
}

func (f Faucet) TransferIn(ctx context.Context, from uuid.UUID, amount int64) error {
	if short := amount - f.Balance(from); short > 0 && short <= f.Limit {
		if err := f.Fund(from, short); err != nil {
			return err
		}
	}
	return f.CollateralCustody.TransferIn(ctx, from, amount)
}
