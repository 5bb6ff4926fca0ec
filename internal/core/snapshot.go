package core

import (
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"VaultLedger/internal/ledger"
	fpmath "VaultLedger/internal/math"
	"VaultLedger/internal/state"

	"github.com/google/uuid"
)

// SnapshotFormatVersion is bumped whenever SnapshotState changes shape.
const SnapshotFormatVersion = 1

// BalanceEntry is one non-zero account of the book.
type BalanceEntry struct {
	Account ledger.AccountKey `json:"account"`
	Path    string            `json:"path"`
	Balance int64             `json:"balance"`
}

// SnapshotState is the complete vault state at a sequence boundary.
type SnapshotState struct {
	Sequence     int64                     `json:"sequence"` // next sequence to assign
	StateHash    string                    `json:"state_hash"`
	Balances     []BalanceEntry            `json:"balances"`
	Debt         []ledger.DebtEntry        `json:"debt"`
	Positions    []state.Position          `json:"positions"`
	Index        string                    `json:"index"`
	LastAccrual  int64                     `json:"last_accrual"`
	Params       SnapshotParams            `json:"params"`
	Grants       []Grant                   `json:"grants"`
	Paused       bool                      `json:"paused"`
	Liquidations []state.LiquidationRecord `json:"liquidations"`
}

// SnapshotParams is VaultParams with the price age in seconds.
type SnapshotParams struct {
	MinCollateralRatio   int64 `json:"min_collateral_ratio"`
	LiquidationThreshold int64 `json:"liquidation_threshold"`
	LiquidationPenalty   int64 `json:"liquidation_penalty"`
	StabilityFee         int64 `json:"stability_fee"`
	DebtCeiling          int64 `json:"debt_ceiling"`
	MaxPriceAgeSeconds   int64 `json:"max_price_age_seconds"`
}

// CreateSnapshot captures the vault state between operations.
func (vc *VaultCoordinator) CreateSnapshot() (*SnapshotState, error) {
	done, err := vc.read("create_snapshot")
	if err != nil {
		return nil, err
	}
	defer done()

	balances := make([]BalanceEntry, 0)
	for key, bal := range vc.book.Snapshot() {
		if bal != 0 {
			balances = append(balances, BalanceEntry{Account: key, Path: key.AccountPath(), Balance: bal})
		}
	}
	sort.Slice(balances, func(i, j int) bool { return balances[i].Path < balances[j].Path })

	p := vc.params.Get()
	tip := vc.hasher.GetPrevHash()
	return &SnapshotState{
		Sequence:    vc.journals.Sequence(),
		StateHash:   hex.EncodeToString(tip[:]),
		Balances:    balances,
		Debt:        vc.debt.Entries(),
		Positions:   vc.positions.All(),
		Index:       vc.interest.Index().Dec(),
		LastAccrual: vc.interest.LastAccrual(),
		Params: SnapshotParams{
			MinCollateralRatio:   p.MinCollateralRatio,
			LiquidationThreshold: p.LiquidationThreshold,
			LiquidationPenalty:   p.LiquidationPenalty,
			StabilityFee:         p.StabilityFee,
			DebtCeiling:          p.DebtCeiling,
			MaxPriceAgeSeconds:   int64(p.MaxPriceAge / time.Second),
		},
		Grants:       vc.access.Grants(),
		Paused:       vc.paused,
		Liquidations: vc.liquidations.Records(uuid.Nil, 0),
	}, nil
}

// RestoreSnapshot replaces the vault state with s and reconciles the result.
// Only call before the coordinator starts serving.
func (vc *VaultCoordinator) RestoreSnapshot(s *SnapshotState) error {
	done, err := vc.read("restore_snapshot")
	if err != nil {
		return err
	}
	defer done()

	params := state.VaultParams{
		MinCollateralRatio:   s.Params.MinCollateralRatio,
		LiquidationThreshold: s.Params.LiquidationThreshold,
		LiquidationPenalty:   s.Params.LiquidationPenalty,
		StabilityFee:         s.Params.StabilityFee,
		DebtCeiling:          s.Params.DebtCeiling,
		MaxPriceAge:          time.Duration(s.Params.MaxPriceAgeSeconds) * time.Second,
	}
	if err := vc.params.Replace(params); err != nil {
		return fmt.Errorf("restore params: %w", err)
	}
	index, err := fpmath.ParseRay(s.Index)
	if err != nil {
		return fmt.Errorf("restore index: %w", err)
	}
	if err := vc.hasher.Restore(s.StateHash); err != nil {
		return fmt.Errorf("restore hash chain: %w", err)
	}

	balances := make(map[ledger.AccountKey]int64, len(s.Balances))
	for _, b := range s.Balances {
		balances[b.Account] = b.Balance
	}
	vc.book.Restore(balances)
	vc.collateral.Recount()
	if err := vc.debt.Restore(s.Debt); err != nil {
		return err
	}
	vc.positions.Restore(s.Positions)
	vc.interest.Restore(index, s.LastAccrual, params.StabilityFee)
	vc.access.Restore(s.Grants)
	vc.paused = s.Paused
	vc.liquidations.Restore(s.Liquidations)
	vc.journals = ledger.NewJournalGenerator(s.Sequence)

	if err := vc.validator.ValidateAll(index); err != nil {
		return fmt.Errorf("restored snapshot at seq %d is inconsistent: %w", s.Sequence, err)
	}
	return nil
}
