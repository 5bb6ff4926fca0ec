package state

import (
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
)

var ErrPositionNotFound = errors.New("position not found")

// PositionDirectory tracks which owners have a position and its lifecycle.
// Closed records are kept as history and never reused.
type PositionDirectory struct {
	current map[uuid.UUID]*Position
	history map[uuid.UUID][]Position
}

func NewPositionDirectory() *PositionDirectory {
	return &PositionDirectory{
		current: make(map[uuid.UUID]*Position),
		history: make(map[uuid.UUID][]Position),
	}
}

// Get returns the latest record for owner, active or closed, or nil.
func (pd *PositionDirectory) Get(owner uuid.UUID) *Position {
	return pd.current[owner]
}

// Active returns owner's active position or ErrPositionNotFound.
func (pd *PositionDirectory) Active(owner uuid.UUID) (*Position, error) {
	pos := pd.current[owner]
	if !pos.IsActive() {
		return nil, fmt.Errorf("%w: no active position for %s", ErrPositionNotFound, owner)
	}
	return pos, nil
}

// NeedsOpen reports whether a deposit by owner opens a new position.
func (pd *PositionDirectory) NeedsOpen(owner uuid.UUID) bool {
	return !pd.current[owner].IsActive()
}

// Open creates an active position for owner. A previously closed record
// moves to history and the new record takes the next generation.
func (pd *PositionDirectory) Open(owner uuid.UUID, ts int64) (*Position, error) {
	prev := pd.current[owner]
	if prev.IsActive() {
		return nil, fmt.Errorf("position for %s is already active", owner)
	}

	generation := int64(1)
	if prev != nil {
		pd.history[owner] = append(pd.history[owner], *prev)
		generation = prev.Generation + 1
	}

	pos := &Position{
		Owner:      owner,
		Generation: generation,
		Status:     PositionStatusActive,
		OpenedAt:   ts,
	}
	pd.current[owner] = pos
	return pos, nil
}

// Close moves owner's active position to Closed.
func (pd *PositionDirectory) Close(owner uuid.UUID, ts int64) (*Position, error) {
	pos, err := pd.Active(owner)
	if err != nil {
		return nil, err
	}
	if !pos.Status.CanTransitionTo(PositionStatusClosed) {
		return nil, fmt.Errorf("invalid state transition: %s -> Closed", pos.Status)
	}

	pos.Status = PositionStatusClosed
	pos.ClosedAt = ts
	pos.Version++
	return pos, nil
}

// ActiveOwners returns owners with an active position, sorted.
func (pd *PositionDirectory) ActiveOwners() []uuid.UUID {
	owners := make([]uuid.UUID, 0, len(pd.current))
	for owner, pos := range pd.current {
		if pos.IsActive() {
			owners = append(owners, owner)
		}
	}
	sort.Slice(owners, func(i, j int) bool {
		return owners[i].String() < owners[j].String()
	})
	return owners
}

// ActiveCount returns the number of active positions.
func (pd *PositionDirectory) ActiveCount() int {
	n := 0
	for _, pos := range pd.current {
		if pos.IsActive() {
			n++
		}
	}
	return n
}

// History returns owner's closed records, oldest first, excluding the
// current record.
func (pd *PositionDirectory) History(owner uuid.UUID) []Position {
	return append([]Position(nil), pd.history[owner]...)
}

// All returns every record, current and historical (for snapshot creation).
func (pd *PositionDirectory) All() []Position {
	out := make([]Position, 0, len(pd.current))
	for owner, pos := range pd.current {
		out = append(out, pd.history[owner]...)
		out = append(out, *pos)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Owner != out[j].Owner {
			return out[i].Owner.String() < out[j].Owner.String()
		}
		return out[i].Generation < out[j].Generation
	})
	return out
}

// Restore rebuilds the directory from snapshot records. The highest
// generation per owner becomes current.
func (pd *PositionDirectory) Restore(records []Position) {
	pd.current = make(map[uuid.UUID]*Position)
	pd.history = make(map[uuid.UUID][]Position)

	sorted := append([]Position(nil), records...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Generation < sorted[j].Generation })

	for i := range sorted {
		rec := sorted[i]
		if prev, ok := pd.current[rec.Owner]; ok {
			pd.history[rec.Owner] = append(pd.history[rec.Owner], *prev)
		}
		pd.current[rec.Owner] = &rec
	}
}
