package certificate

import (
	"strconv"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"savingsbank/core/types"
)

const (
	EventTypeMinted         = "certificate.minted"
	EventTypeTransferred    = "certificate.transferred"
	EventTypeApproval       = "certificate.approval"
	EventTypeApprovalForAll = "certificate.approval_for_all"
)

func NewMintedEvent(id uint64, owner ethcommon.Address) *types.Event {
	evt := types.NewEvent(EventTypeMinted)
	evt.Attributes["certificateId"] = strconv.FormatUint(id, 10)
	evt.Attributes["owner"] = owner.Hex()
	return evt
}

// NewTransferredEvent carries the transfer time so consumers can derive the
// cooldown expiry.
func NewTransferredEvent(id uint64, from, to ethcommon.Address, at uint64) *types.Event {
	evt := types.NewEvent(EventTypeTransferred)
	evt.Attributes["certificateId"] = strconv.FormatUint(id, 10)
	evt.Attributes["from"] = from.Hex()
	evt.Attributes["to"] = to.Hex()
	evt.Attributes["transferTime"] = strconv.FormatUint(at, 10)
	evt.Attributes["cooldownEnds"] = strconv.FormatUint(at+CooldownSeconds, 10)
	return evt
}

func NewApprovalEvent(id uint64, owner, spender ethcommon.Address) *types.Event {
	evt := types.NewEvent(EventTypeApproval)
	evt.Attributes["certificateId"] = strconv.FormatUint(id, 10)
	evt.Attributes["owner"] = owner.Hex()
	evt.Attributes["spender"] = spender.Hex()
	return evt
}

func NewApprovalForAllEvent(owner, operator ethcommon.Address, approved bool) *types.Event {
	evt := types.NewEvent(EventTypeApprovalForAll)
	evt.Attributes["owner"] = owner.Hex()
	evt.Attributes["operator"] = operator.Hex()
	evt.Attributes["approved"] = strconv.FormatBool(approved)
	return evt
}
