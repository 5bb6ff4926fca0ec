package core

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// Capability is a permission granted to a caller identity.
type Capability string

const (
	CapAdmin     Capability = "admin"      // parameters, grants
	CapIssueDebt Capability = "issue_debt" // increase debt on behalf of any owner
	CapPause     Capability = "pause"
)

// ParseCapability validates a capability name.
func ParseCapability(s string) (Capability, error) {
	switch c := Capability(s); c {
	case CapAdmin, CapIssueDebt, CapPause:
		return c, nil
	}
	return "", fmt.Errorf("%w: unknown capability %q", ErrInvalidParams, s)
}

// AccessControl is the capability set per caller.
type AccessControl struct {
	grants map[uuid.UUID]map[Capability]bool
}

func NewAccessControl() *AccessControl {
	return &AccessControl{grants: make(map[uuid.UUID]map[Capability]bool)}
}

func (ac *AccessControl) Has(caller uuid.UUID, c Capability) bool {
	return ac.grants[caller][c]
}

// Grant reports whether the capability was newly added.
func (ac *AccessControl) Grant(caller uuid.UUID, c Capability) bool {
	set, ok := ac.grants[caller]
	if !ok {
		set = make(map[Capability]bool)
		ac.grants[caller] = set
	}
	if set[c] {
		return false
	}
	set[c] = true
	return true
}

// Revoke reports whether the capability was held.
func (ac *AccessControl) Revoke(caller uuid.UUID, c Capability) bool {
	set := ac.grants[caller]
	if !set[c] {
		return false
	}
	delete(set, c)
	if len(set) == 0 {
		delete(ac.grants, caller)
	}
	return true
}

// Require returns ErrUnauthorized naming the missing capability.
func (ac *AccessControl) Require(caller uuid.UUID, c Capability) error {
	if !ac.Has(caller, c) {
		return fmt.Errorf("%w: %s lacks capability %q", ErrUnauthorized, caller, c)
	}
	return nil
}

// Grant is one caller/capability pair, the persisted form of the set.
type Grant struct {
	Caller     uuid.UUID  `json:"caller"`
	Capability Capability `json:"capability"`
}

// Grants lists every grant in a stable order.
func (ac *AccessControl) Grants() []Grant {
	out := make([]Grant, 0, len(ac.grants))
	for caller, set := range ac.grants {
		for c := range set {
			out = append(out, Grant{Caller: caller, Capability: c})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Caller != out[j].Caller {
			return out[i].Caller.String() < out[j].Caller.String()
		}
		return out[i].Capability < out[j].Capability
	})
	return out
}

func (ac *AccessControl) Restore(grants []Grant) {
	ac.grants = make(map[uuid.UUID]map[Capability]bool)
	for _, g := range grants {
		ac.Grant(g.Caller, g.Capability)
	}
}

// reentrancyGuard rejects a call into the coordinator while another call is
// in flight on the same goroutine, e.g. from a token callback.
type reentrancyGuard struct {
	entered bool
	op      string
}

func (g *reentrancyGuard) enter(op string) error {
	if g.entered {
		return fmt.Errorf("%w: %s called while %s is in progress", ErrReentrancyDetected, op, g.op)
	}
	g.entered = true
	g.op = op
	return nil
}

func (g *reentrancyGuard) exit() {
	g.entered = false
	g.op = ""
}
