package vault

import (
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"savingsbank/core/types"
)

const (
	EventTypeLiquidityDeposited = "vault.liquidity.deposited"
	EventTypeLiquidityWithdrawn = "vault.liquidity.withdrawn"
	EventTypeAdminWithdrawn     = "vault.admin_withdrawn"
)

func NewLiquidityDepositedEvent(caller ethcommon.Address, amount, newBalance *big.Int) *types.Event {
	return newVaultEvent(EventTypeLiquidityDeposited, "caller", caller, amount, newBalance)
}

func NewLiquidityWithdrawnEvent(recipient ethcommon.Address, amount, newBalance *big.Int) *types.Event {
	return newVaultEvent(EventTypeLiquidityWithdrawn, "recipient", recipient, amount, newBalance)
}

func NewAdminWithdrawnEvent(caller ethcommon.Address, amount, newBalance *big.Int) *types.Event {
	return newVaultEvent(EventTypeAdminWithdrawn, "caller", caller, amount, newBalance)
}

func newVaultEvent(eventType, role string, who ethcommon.Address, amount, newBalance *big.Int) *types.Event {
	evt := types.NewEvent(eventType)
	evt.Attributes[role] = who.Hex()
	evt.Attributes["amount"] = amount.String()
	evt.Attributes["newBalance"] = newBalance.String()
	return evt
}
