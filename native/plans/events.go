package plans

import (
	"strconv"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"savingsbank/core/types"
)

const (
	EventTypePlanCreated            = "plans.created"
	EventTypePlanUpdated            = "plans.updated"
	EventTypePlanActivated          = "plans.activated"
	EventTypePlanDeactivated        = "plans.deactivated"
	EventTypePenaltyReceiverUpdated = "plans.penalty_receiver.updated"
)

func NewPlanCreatedEvent(p *Plan) *types.Event { return newPlanEvent(EventTypePlanCreated, p) }

func NewPlanUpdatedEvent(p *Plan) *types.Event { return newPlanEvent(EventTypePlanUpdated, p) }

func NewPlanActivatedEvent(id uint64) *types.Event {
	evt := types.NewEvent(EventTypePlanActivated)
	evt.Attributes["planId"] = strconv.FormatUint(id, 10)
	return evt
}

func NewPlanDeactivatedEvent(id uint64) *types.Event {
	evt := types.NewEvent(EventTypePlanDeactivated)
	evt.Attributes["planId"] = strconv.FormatUint(id, 10)
	return evt
}

// NewPenaltyReceiverUpdatedEvent reports the new penalty destination. A zero
// receiver means penalties remain in the vault.
func NewPenaltyReceiverUpdatedEvent(id uint64, receiver ethcommon.Address) *types.Event {
	evt := types.NewEvent(EventTypePenaltyReceiverUpdated)
	evt.Attributes["planId"] = strconv.FormatUint(id, 10)
	evt.Attributes["receiver"] = receiver.Hex()
	return evt
}

func newPlanEvent(eventType string, p *Plan) *types.Event {
	evt := types.NewEvent(eventType)
	if p == nil {
		return evt
	}
	evt.Attributes["planId"] = strconv.FormatUint(p.ID, 10)
	evt.Attributes["name"] = p.Name
	evt.Attributes["minDeposit"] = cloneBigInt(p.MinDeposit).String()
	evt.Attributes["maxDeposit"] = cloneBigInt(p.MaxDeposit).String()
	evt.Attributes["minTermDays"] = strconv.FormatUint(p.MinTermDays, 10)
	evt.Attributes["maxTermDays"] = strconv.FormatUint(p.MaxTermDays, 10)
	evt.Attributes["annualRateBps"] = strconv.FormatUint(p.AnnualRateBps, 10)
	evt.Attributes["penaltyRateBps"] = strconv.FormatUint(p.PenaltyRateBps, 10)
	evt.Attributes["active"] = strconv.FormatBool(p.Active)
	return evt
}
