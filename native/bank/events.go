package bank

import (
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"savingsbank/core/types"
)

const (
	EventTypeTransfer = "bank.transfer"
	EventTypeApproval = "bank.approval"
)

// NewTransferEvent describes a balance movement. Mints carry the zero address
// as sender.
func NewTransferEvent(from, to ethcommon.Address, amount *big.Int) *types.Event {
	evt := types.NewEvent(EventTypeTransfer)
	evt.Attributes["from"] = from.Hex()
	evt.Attributes["to"] = to.Hex()
	evt.Attributes["amount"] = amount.String()
	return evt
}

func NewApprovalEvent(owner, spender ethcommon.Address, amount *big.Int) *types.Event {
	evt := types.NewEvent(EventTypeApproval)
	evt.Attributes["owner"] = owner.Hex()
	evt.Attributes["spender"] = spender.Hex()
	evt.Attributes["amount"] = amount.String()
	return evt
}
