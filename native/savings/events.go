package savings

import (
	"math/big"
	"strconv"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"savingsbank/core/types"
)

const (
	EventTypeDepositCreated   = "savings.deposit.created"
	EventTypeDepositWithdrawn = "savings.deposit.withdrawn"
	EventTypeDepositRenewed   = "savings.deposit.renewed"
	EventTypePenaltyCollected = "savings.penalty.collected"
)

// NewDepositCreatedEvent returns the canonical payload for a newly opened
// deposit, carrying every deposit field.
func NewDepositCreatedEvent(d *Deposit) *types.Event {
	evt := types.NewEvent(EventTypeDepositCreated)
	if d == nil {
		return evt
	}
	evt.Attributes["depositId"] = formatID(d.ID)
	evt.Attributes["depositor"] = d.Depositor.Hex()
	evt.Attributes["planId"] = formatID(d.PlanID)
	evt.Attributes["amount"] = cloneBigInt(d.Principal).String()
	evt.Attributes["termDays"] = formatID(d.TermDays)
	evt.Attributes["depositDate"] = formatID(d.DepositDate)
	evt.Attributes["maturityDate"] = formatID(d.MaturityDate)
	evt.Attributes["expectedInterest"] = cloneBigInt(d.ExpectedInterest).String()
	evt.Attributes["certificateId"] = formatID(d.CertificateID)
	return evt
}

// NewDepositWithdrawnEvent reports a closed deposit.
func NewDepositWithdrawnEvent(s *Settlement) *types.Event {
	evt := types.NewEvent(EventTypeDepositWithdrawn)
	if s == nil {
		return evt
	}
	evt.Attributes["depositId"] = formatID(s.DepositID)
	evt.Attributes["depositor"] = s.Recipient.Hex()
	evt.Attributes["payout"] = cloneBigInt(s.Payout).String()
	evt.Attributes["interest"] = cloneBigInt(s.Interest).String()
	evt.Attributes["penalty"] = cloneBigInt(s.Penalty).String()
	evt.Attributes["isEarly"] = strconv.FormatBool(s.Early)
	return evt
}

// NewDepositRenewedEvent links a renewed deposit to its successor.
func NewDepositRenewedEvent(oldID uint64, renewed *Deposit) *types.Event {
	evt := types.NewEvent(EventTypeDepositRenewed)
	evt.Attributes["oldDepositId"] = formatID(oldID)
	if renewed == nil {
		return evt
	}
	evt.Attributes["newDepositId"] = formatID(renewed.ID)
	evt.Attributes["depositor"] = renewed.Depositor.Hex()
	evt.Attributes["newPrincipal"] = cloneBigInt(renewed.Principal).String()
	evt.Attributes["newPlanId"] = formatID(renewed.PlanID)
	return evt
}

func NewPenaltyCollectedEvent(depositID uint64, receiver ethcommon.Address, amount *big.Int) *types.Event {
	evt := types.NewEvent(EventTypePenaltyCollected)
	evt.Attributes["depositId"] = formatID(depositID)
	evt.Attributes["receiver"] = receiver.Hex()
	evt.Attributes["amount"] = cloneBigInt(amount).String()
	return evt
}

func formatID(v uint64) string { return strconv.FormatUint(v, 10) }
