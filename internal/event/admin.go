package event

import "github.com/google/uuid"

// VaultConfigUpdated is emitted by every admin parameter change.
type VaultConfigUpdated struct {
	Param    string    `json:"param"`
	OldValue int64     `json:"old_value"`
	NewValue int64     `json:"new_value"`
	By       uuid.UUID `json:"by"`
}

func (v *VaultConfigUpdated) EventType() EventType { return EventTypeVaultConfigUpdated }

type VaultPaused struct {
	By uuid.UUID `json:"by"`
}

func (v *VaultPaused) EventType() EventType { return EventTypeVaultPaused }

type VaultUnpaused struct {
	By uuid.UUID `json:"by"`
}

func (v *VaultUnpaused) EventType() EventType { return EventTypeVaultUnpaused }

type CapabilityGranted struct {
	Caller     uuid.UUID `json:"caller"`
	Capability string    `json:"capability"`
	By         uuid.UUID `json:"by"`
}

func (c *CapabilityGranted) EventType() EventType { return EventTypeCapabilityGranted }

type CapabilityRevoked struct {
	Caller     uuid.UUID `json:"caller"`
	Capability string    `json:"capability"`
	By         uuid.UUID `json:"by"`
}

func (c *CapabilityRevoked) EventType() EventType { return EventTypeCapabilityRevoked }
