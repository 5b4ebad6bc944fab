package plans

import (
	"fmt"
	"strconv"

	ethcommon "github.com/ethereum/go-ethereum/common"

	errs "savingsbank/core/errors"
	"savingsbank/core/events"
	"savingsbank/core/types"
	"savingsbank/native/access"
)

const planCounter = "plans"

var errNilState = errs.New(errs.KindState, "plans: state not configured")

type registryState interface {
	HasRole(role string, addr []byte) bool
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	Counter(name string) (uint64, error)
	NextID(name string) (uint64, error)
}

// Registry stores the catalogue of saving plans.
type Registry struct {
	st      registryState
	emitter events.Emitter
}

// NewRegistry creates a registry backed by the provided state manager.
func NewRegistry(st registryState) *Registry {
	return &Registry{st: st, emitter: events.NoopEmitter{}}
}

// SetEmitter configures the event emitter used to broadcast registry updates.
// Passing nil resets the emitter to a no-op implementation.
func (r *Registry) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		r.emitter = events.NoopEmitter{}
		return
	}
	r.emitter = emitter
}

func (r *Registry) emit(evt *types.Event) {
	if r == nil || r.emitter == nil || evt == nil {
		return
	}
	r.emitter.Emit(events.Wrap(evt))
}

func planKey(id uint64) []byte {
	return []byte("plans/plan/" + strconv.FormatUint(id, 10))
}

func (r *Registry) authorize(caller ethcommon.Address) error {
	if r == nil || r.st == nil {
		return errNilState
	}
	if !r.st.HasRole(access.RoleAdmin, caller.Bytes()) {
		return errs.ErrUnauthorized
	}
	return nil
}

func (r *Registry) store(plan *Plan) error {
	return r.st.KVPut(planKey(plan.ID), plan)
}

// CreatePlan validates and stores a new active plan, returning its id.
func (r *Registry) CreatePlan(caller ethcommon.Address, in Input) (uint64, error) {
	if err := r.authorize(caller); err != nil {
		return 0, err
	}
	if err := in.Validate(); err != nil {
		return 0, err
	}
	clean := in.sanitized()
	id, err := r.st.NextID(planCounter)
	if err != nil {
		return 0, err
	}
	plan := &Plan{
		ID:             id,
		Name:           clean.Name,
		MinDeposit:     clean.MinDeposit,
		MaxDeposit:     clean.MaxDeposit,
		MinTermDays:    clean.MinTermDays,
		MaxTermDays:    clean.MaxTermDays,
		AnnualRateBps:  clean.AnnualRateBps,
		PenaltyRateBps: clean.PenaltyRateBps,
		Active:         true,
	}
	if err := r.store(plan); err != nil {
		return 0, err
	}
	r.emit(NewPlanCreatedEvent(plan))
	return id, nil
}

// UpdatePlan replaces the parameters of an existing plan. The active flag and
// the penalty receiver are left untouched.
func (r *Registry) UpdatePlan(caller ethcommon.Address, id uint64, in Input) error {
	if err := r.authorize(caller); err != nil {
		return err
	}
	plan, err := r.Plan(id)
	if err != nil {
		return err
	}
	if err := in.Validate(); err != nil {
		return err
	}
	clean := in.sanitized()
	plan.Name = clean.Name
	plan.MinDeposit = clean.MinDeposit
	plan.MaxDeposit = clean.MaxDeposit
	plan.MinTermDays = clean.MinTermDays
	plan.MaxTermDays = clean.MaxTermDays
	plan.AnnualRateBps = clean.AnnualRateBps
	plan.PenaltyRateBps = clean.PenaltyRateBps
	if err := r.store(plan); err != nil {
		return err
	}
	r.emit(NewPlanUpdatedEvent(plan))
	return nil
}

// ActivatePlan allows new deposits against the plan.
func (r *Registry) ActivatePlan(caller ethcommon.Address, id uint64) error {
	return r.setActive(caller, id, true)
}

// DeactivatePlan blocks new deposits. Existing deposits are unaffected.
func (r *Registry) DeactivatePlan(caller ethcommon.Address, id uint64) error {
	return r.setActive(caller, id, false)
}

func (r *Registry) setActive(caller ethcommon.Address, id uint64, active bool) error {
	if err := r.authorize(caller); err != nil {
		return err
	}
	plan, err := r.Plan(id)
	if err != nil {
		return err
	}
	plan.Active = active
	if err := r.store(plan); err != nil {
		return err
	}
	if active {
		r.emit(NewPlanActivatedEvent(id))
	} else {
		r.emit(NewPlanDeactivatedEvent(id))
	}
	return nil
}

// UpdatePenaltyReceiver routes future early withdrawal penalties of the plan
// to receiver. The zero address keeps penalties in the vault.
func (r *Registry) UpdatePenaltyReceiver(caller ethcommon.Address, id uint64, receiver ethcommon.Address) error {
	if err := r.authorize(caller); err != nil {
		return err
	}
	plan, err := r.Plan(id)
	if err != nil {
		return err
	}
	plan.PenaltyReceiver = receiver
	if err := r.store(plan); err != nil {
		return err
	}
	r.emit(NewPenaltyReceiverUpdatedEvent(id, receiver))
	return nil
}

// Plan loads a plan by id.
func (r *Registry) Plan(id uint64) (*Plan, error) {
	if r == nil || r.st == nil {
		return nil, errNilState
	}
	plan := new(Plan)
	ok, err := r.st.KVGet(planKey(id), plan)
	if err != nil {
		return nil, fmt.Errorf("plans: load %d: %w", id, err)
	}
	if !ok {
		return nil, ErrPlanNotFound
	}
	return plan, nil
}

// ActivePlan loads a plan and requires it to accept new deposits.
func (r *Registry) ActivePlan(id uint64) (*Plan, error) {
	plan, err := r.Plan(id)
	if err != nil {
		return nil, err
	}
	if !plan.Active {
		return nil, ErrPlanNotActive
	}
	return plan, nil
}

// PenaltyReceiver returns the configured penalty destination of the plan.
func (r *Registry) PenaltyReceiver(id uint64) (ethcommon.Address, error) {
	plan, err := r.Plan(id)
	if err != nil {
		return ethcommon.Address{}, err
	}
	return plan.PenaltyReceiver, nil
}

// TotalPlans reports how many plans were ever created.
func (r *Registry) TotalPlans() (uint64, error) {
	if r == nil || r.st == nil {
		return 0, errNilState
	}
	return r.st.Counter(planCounter)
}
