package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// AccountScope represents the top-level account namespace
type AccountScope uint8

const (
	AccountScopeOwner AccountScope = iota
	AccountScopeSystem
	AccountScopeExternal
)

// AccountSubType represents the account purpose
type AccountSubType uint8

const (
	// Owner sub-types
	SubTypeCollateral AccountSubType = iota
	SubTypeDebt

	// System sub-types
	SubTypeSystemStabilityFees
	SubTypeSystemBadDebt

	// External sub-types: the boundary with token custody and the debt token
	SubTypeExternalDeposits
	SubTypeExternalWithdrawals
	SubTypeExternalSeized
	SubTypeExternalDebtIssued
	SubTypeExternalDebtRepaid
)

// AssetID identifies one of the two assets a vault instance books.
type AssetID uint16

const (
	AssetCollateral AssetID = 1
	AssetDebt       AssetID = 2
)

var (
	assetToID = map[string]AssetID{
		"COLLATERAL": AssetCollateral,
		"DEBT":       AssetDebt,
	}
	idToAsset = map[AssetID]string{
		AssetCollateral: "COLLATERAL",
		AssetDebt:       "DEBT",
	}
)

func GetAssetID(asset string) (AssetID, bool) {
	id, ok := assetToID[asset]
	return id, ok
}

func GetAssetName(id AssetID) (string, bool) {
	name, ok := idToAsset[id]
	return name, ok
}

// AccountKey is the in-memory key for balance tracking
type AccountKey struct {
	Scope    AccountScope
	EntityID [16]byte // owner UUID, or the system account name
	SubType  AccountSubType
	AssetID  AssetID
}

// NewOwnerAccountKey creates a key for a position owner's account
func NewOwnerAccountKey(owner uuid.UUID, subType AccountSubType, assetID AssetID) AccountKey {
	return AccountKey{
		Scope:    AccountScopeOwner,
		EntityID: owner,
		SubType:  subType,
		AssetID:  assetID,
	}
}

// NewSystemAccountKey creates a key for protocol-owned accounts
func NewSystemAccountKey(name string, subType AccountSubType, assetID AssetID) AccountKey {
	var entityID [16]byte
	copy(entityID[:], []byte(name))
	return AccountKey{
		Scope:    AccountScopeSystem,
		EntityID: entityID,
		SubType:  subType,
		AssetID:  assetID,
	}
}

// NewExternalAccountKey creates a key for external boundary accounts
func NewExternalAccountKey(subType AccountSubType, assetID AssetID) AccountKey {
	return AccountKey{
		Scope:   AccountScopeExternal,
		SubType: subType,
		AssetID: assetID,
	}
}

// Well-known counter accounts.
func collateralAccount(owner uuid.UUID) AccountKey {
	return NewOwnerAccountKey(owner, SubTypeCollateral, AssetCollateral)
}

func debtAccount(owner uuid.UUID) AccountKey {
	return NewOwnerAccountKey(owner, SubTypeDebt, AssetDebt)
}

func stabilityFeeAccount() AccountKey {
	return NewSystemAccountKey("vault", SubTypeSystemStabilityFees, AssetDebt)
}

func badDebtAccount() AccountKey {
	return NewSystemAccountKey("vault", SubTypeSystemBadDebt, AssetDebt)
}

// AccountPath returns the string representation for storage/logging
func (k AccountKey) AccountPath() string {
	assetName, _ := GetAssetName(k.AssetID)

	switch k.Scope {
	case AccountScopeOwner:
		return fmt.Sprintf("owner:%s:%s:%s", uuid.UUID(k.EntityID).String(), k.subTypeName(), assetName)
	case AccountScopeSystem:
		return fmt.Sprintf("system:%s:%s", k.subTypeName(), assetName)
	case AccountScopeExternal:
		return fmt.Sprintf("external:%s:%s", k.subTypeName(), assetName)
	}
	return "unknown"
}

func (k AccountKey) subTypeName() string {
	switch k.SubType {
	case SubTypeCollateral:
		return "collateral"
	case SubTypeDebt:
		return "debt"
	case SubTypeSystemStabilityFees:
		return "stability_fees"
	case SubTypeSystemBadDebt:
		return "bad_debt"
	case SubTypeExternalDeposits:
		return "deposits"
	case SubTypeExternalWithdrawals:
		return "withdrawals"
	case SubTypeExternalSeized:
		return "seized"
	case SubTypeExternalDebtIssued:
		return "debt_issued"
	case SubTypeExternalDebtRepaid:
		return "debt_repaid"
	default:
		return "unknown"
	}
}
