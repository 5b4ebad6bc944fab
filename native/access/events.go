package access

import (
	ethcommon "github.com/ethereum/go-ethereum/common"

	"savingsbank/core/types"
)

const (
	EventTypeRoleGranted = "access.role.granted"
	EventTypeRoleRevoked = "access.role.revoked"
	EventTypePaused      = "access.paused"
	EventTypeUnpaused    = "access.unpaused"
)

func NewRoleGrantedEvent(role string, account, sender ethcommon.Address) *types.Event {
	return newRoleEvent(EventTypeRoleGranted, role, account, sender)
}

func NewRoleRevokedEvent(role string, account, sender ethcommon.Address) *types.Event {
	return newRoleEvent(EventTypeRoleRevoked, role, account, sender)
}

func newRoleEvent(eventType, role string, account, sender ethcommon.Address) *types.Event {
	evt := types.NewEvent(eventType)
	evt.Attributes["role"] = role
	evt.Attributes["account"] = account.Hex()
	evt.Attributes["sender"] = sender.Hex()
	return evt
}

// NewPausedEvent records who engaged the pause switch.
func NewPausedEvent(account ethcommon.Address) *types.Event {
	evt := types.NewEvent(EventTypePaused)
	evt.Attributes["account"] = account.Hex()
	return evt
}

// NewUnpausedEvent records who released the pause switch.
func NewUnpausedEvent(account ethcommon.Address) *types.Event {
	evt := types.NewEvent(EventTypeUnpaused)
	evt.Attributes["account"] = account.Hex()
	return evt
}
