package state

import (
	"fmt"
	"time"

	fpmath "VaultLedger/internal/math"

	"github.com/holiman/uint256"
)

// InterestAccrual maintains the global interest index. The index compounds
// once per accrual by 1 + rate * dt / year, so touching a position is O(1)
// regardless of how many positions exist.
//
// Time is always an input; the accrual never reads a clock.
type InterestAccrual struct {
	index       *uint256.Int
	lastAccrual int64 // unix seconds
	rateBps     int64
}

func NewInterestAccrual(rateBps int64, start time.Time) *InterestAccrual {
	return &InterestAccrual{
		index:       fpmath.OneRay(),
		lastAccrual: start.Unix(),
		rateBps:     rateBps,
	}
}

// Index returns the last committed index.
func (ia *InterestAccrual) Index() *uint256.Int {
	return new(uint256.Int).Set(ia.index)
}

func (ia *InterestAccrual) LastAccrual() int64 { return ia.lastAccrual }

func (ia *InterestAccrual) Rate() int64 { return ia.rateBps }

// Preview returns the index as of now without mutating state. A clock that
// moves backwards yields the committed index.
func (ia *InterestAccrual) Preview(now time.Time) (*uint256.Int, error) {
	elapsed := now.Unix() - ia.lastAccrual
	if elapsed <= 0 || ia.rateBps == 0 {
		return ia.Index(), nil
	}

	next, err := fpmath.RayMul(ia.index, fpmath.RateFactor(ia.rateBps, elapsed))
	if err != nil {
		return nil, fmt.Errorf("accrue index over %ds: %w", elapsed, err)
	}
	return next, nil
}

// Commit stores an index obtained from Preview(now).
func (ia *InterestAccrual) Commit(index *uint256.Int, now time.Time) {
	if index.Lt(ia.index) {
		panic(fmt.Sprintf("FATAL: interest index regressed from %s to %s", ia.index.Dec(), index.Dec()))
	}
	ia.index = new(uint256.Int).Set(index)
	if ts := now.Unix(); ts > ia.lastAccrual {
		ia.lastAccrual = ts
	}
}

// SetRate changes the annual rate. Callers accrue at the old rate first.
func (ia *InterestAccrual) SetRate(rateBps int64) {
	ia.rateBps = rateBps
}

// Restore replaces the accrual state from a snapshot.
func (ia *InterestAccrual) Restore(index *uint256.Int, lastAccrual, rateBps int64) {
	ia.index = new(uint256.Int).Set(index)
	ia.lastAccrual = lastAccrual
	ia.rateBps = rateBps
}
