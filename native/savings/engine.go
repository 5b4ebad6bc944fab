package savings

import (
	"fmt"
	"math/big"
	"strconv"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"

	errs "savingsbank/core/errors"
	"savingsbank/core/events"
	"savingsbank/core/types"
	"savingsbank/native/access"
	nativecommon "savingsbank/native/common"
	"savingsbank/native/plans"
)

const depositCounter = "deposits"

var (
	activeCountKey = []byte("savings/active")
	errNilState    = errs.New(errs.KindState, "savings engine: state not configured")
	errNotWired    = errs.New(errs.KindState, "savings engine: collaborators not configured")
)

type engineState interface {
	HasRole(role string, addr []byte) bool
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVGetList(key []byte, out interface{}) error
	Counter(name string) (uint64, error)
	NextID(name string) (uint64, error)
	Snapshot() int
	RevertToSnapshot(id int)
}

// PlanSource resolves saving plans.
type PlanSource interface {
	Plan(id uint64) (*plans.Plan, error)
	ActivePlan(id uint64) (*plans.Plan, error)
}

// LiquidityVault custodies deposited principal.
type LiquidityVault interface {
	Address() ethcommon.Address
	DepositLiquidity(caller ethcommon.Address, amount *big.Int) error
	WithdrawLiquidity(caller ethcommon.Address, amount *big.Int, recipient ethcommon.Address) error
}

// CertificateRegistry issues and checks deposit certificates.
type CertificateRegistry interface {
	Mint(caller, to ethcommon.Address, id uint64) error
	Authorize(caller ethcommon.Address, id uint64) error
}

// Asset is the stable token deposits are denominated in.
type Asset interface {
	TransferFrom(spender, from, to ethcommon.Address, amount *big.Int) error
	Approve(owner, spender ethcommon.Address, amount *big.Int) error
}

// Engine is the deposit ledger. It owns deposit records and orchestrates the
// plan registry, the vault and the certificate registry for each lifecycle
// transition.
type Engine struct {
	state   engineState
	plans   PlanSource
	vault   LiquidityVault
	certs   CertificateRegistry
	asset   Asset
	addr    ethcommon.Address
	emitter events.Emitter
	pauses  nativecommon.PauseView
	nowFn   func() int64
	guard   nativecommon.ReentrancyGuard
}

// NewEngine creates a deposit ledger with a no-op emitter. Collaborators are
// wired through the setters.
func NewEngine() *Engine {
	return &Engine{
		addr:    nativecommon.ModuleAddress(ModuleName),
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetPlans configures the plan registry.
func (e *Engine) SetPlans(p PlanSource) { e.plans = p }

// SetVault configures the liquidity vault.
func (e *Engine) SetVault(v LiquidityVault) { e.vault = v }

// SetCertificates configures the certificate registry.
func (e *Engine) SetCertificates(c CertificateRegistry) { e.certs = c }

// SetAsset configures the deposited token.
func (e *Engine) SetAsset(a Asset) { e.asset = a }

// SetPauses configures the pause switch consulted by the lifecycle entry
// points.
func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// Address returns the ledger's module account. Users approve it before
// depositing.
func (e *Engine) Address() ethcommon.Address { return e.addr }

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(events.Wrap(event))
}

func (e *Engine) now() uint64 {
	ts := time.Now().Unix()
	if e != nil && e.nowFn != nil {
		ts = e.nowFn()
	}
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.plans == nil || e.vault == nil || e.certs == nil || e.asset == nil {
		return errNotWired
	}
	return nil
}

// mutate runs fn as one guarded, all-or-nothing unit.
func (e *Engine) mutate(pausable bool, fn func() error) error {
	if err := e.ready(); err != nil {
		return err
	}
	if pausable {
		if err := nativecommon.Guard(e.pauses, ModuleName); err != nil {
			return err
		}
	}
	release, err := e.guard.Enter()
	if err != nil {
		return err
	}
	defer release()
	return nativecommon.Atomic(e.state, fn)
}

func depositKey(id uint64) []byte {
	return []byte("savings/deposit/" + strconv.FormatUint(id, 10))
}

func userIndexKey(addr ethcommon.Address) []byte {
	return append([]byte("savings/user/"), addr.Bytes()...)
}

func (e *Engine) loadDeposit(id uint64) (*Deposit, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	dep := new(Deposit)
	ok, err := e.state.KVGet(depositKey(id), dep)
	if err != nil {
		return nil, fmt.Errorf("savings: load deposit %d: %w", id, err)
	}
	if !ok {
		return nil, ErrDepositNotFound
	}
	return dep, nil
}

func (e *Engine) storeDeposit(dep *Deposit) error {
	return e.state.KVPut(depositKey(dep.ID), dep)
}

func (e *Engine) activeCount() (uint64, error) {
	var count uint64
	if _, err := e.state.KVGet(activeCountKey, &count); err != nil {
		return 0, err
	}
	return count, nil
}

func (e *Engine) adjustActive(delta int) error {
	count, err := e.activeCount()
	if err != nil {
		return err
	}
	if delta < 0 {
		if count == 0 {
			return fmt.Errorf("savings: active deposit count underflow")
		}
		count--
	} else {
		count++
	}
	return e.state.KVPut(activeCountKey, count)
}

func checkBounds(plan *plans.Plan, amount *big.Int, termDays uint64) error {
	if plan.MinDeposit != nil && amount.Cmp(plan.MinDeposit) < 0 {
		return ErrInsufficientDepositAmount
	}
	if plan.MaxDeposit != nil && plan.MaxDeposit.Sign() > 0 && amount.Cmp(plan.MaxDeposit) > 0 {
		return ErrExcessiveDepositAmount
	}
	if !plan.AcceptsTerm(termDays) {
		return ErrInvalidTermDays
	}
	return nil
}

// openDeposit records a new Active deposit and mints its certificate. Funding
// is the caller's concern.
func (e *Engine) openDeposit(owner ethcommon.Address, plan *plans.Plan, principal *big.Int, termDays uint64) (*Deposit, error) {
	interest, err := ExpectedInterest(principal, plan.AnnualRateBps, termDays)
	if err != nil {
		return nil, err
	}
	now := e.now()
	maturity, err := MaturityDate(now, termDays)
	if err != nil {
		return nil, err
	}
	id, err := e.state.NextID(depositCounter)
	if err != nil {
		return nil, err
	}
	dep := &Deposit{
		ID:               id,
		Depositor:        owner,
		PlanID:           plan.ID,
		Principal:        cloneBigInt(principal),
		TermDays:         termDays,
		DepositDate:      now,
		MaturityDate:     maturity,
		ExpectedInterest: interest,
		Status:           StatusActive,
		CertificateID:    id,
	}
	if err := e.storeDeposit(dep); err != nil {
		return nil, err
	}
	var ids []uint64
	if err := e.state.KVGetList(userIndexKey(owner), &ids); err != nil {
		return nil, err
	}
	if err := e.state.KVPut(userIndexKey(owner), append(ids, id)); err != nil {
		return nil, err
	}
	if err := e.adjustActive(1); err != nil {
		return nil, err
	}
	if err := e.certs.Mint(e.addr, owner, id); err != nil {
		return nil, fmt.Errorf("savings: mint certificate: %w", err)
	}
	return dep, nil
}

// fund moves amount from the payer into the vault through the ledger account.
func (e *Engine) fund(payer ethcommon.Address, amount *big.Int) error {
	if err := e.asset.TransferFrom(e.addr, payer, e.addr, amount); err != nil {
		return fmt.Errorf("savings: collect funds: %w", err)
	}
	if err := e.asset.Approve(e.addr, e.vault.Address(), amount); err != nil {
		return fmt.Errorf("savings: approve vault: %w", err)
	}
	return e.vault.DepositLiquidity(e.addr, amount)
}

// CreateDeposit locks amount for termDays under the plan and mints the
// matching certificate to the caller. The caller must have approved the
// ledger account for amount.
func (e *Engine) CreateDeposit(caller ethcommon.Address, planID uint64, amount *big.Int, termDays uint64) (uint64, error) {
	var created *Deposit
	err := e.mutate(true, func() error {
		plan, err := e.plans.ActivePlan(planID)
		if err != nil {
			return err
		}
		if amount == nil || amount.Sign() <= 0 {
			return errs.ErrZeroAmount
		}
		if err := checkBounds(plan, amount, termDays); err != nil {
			return err
		}
		if err := e.fund(caller, amount); err != nil {
			return err
		}
		created, err = e.openDeposit(caller, plan, amount, termDays)
		return err
	})
	if err != nil {
		return 0, err
	}
	e.emit(NewDepositCreatedEvent(created))
	return created.ID, nil
}

// WithdrawDeposit closes an active deposit owned by the caller. Matured
// deposits pay principal plus interest. Early withdrawals forfeit interest and
// pay a flat penalty on principal, routed to the plan's penalty receiver when
// one is configured.
func (e *Engine) WithdrawDeposit(caller ethcommon.Address, id uint64) (*Settlement, error) {
	var settlement *Settlement
	var dep *Deposit
	err := e.mutate(true, func() error {
		var err error
		dep, err = e.loadDeposit(id)
		if err != nil {
			return err
		}
		if dep.Status != StatusActive {
			return ErrDepositNotActive
		}
		if err := e.certs.Authorize(caller, dep.CertificateID); err != nil {
			return err
		}
		plan, err := e.plans.Plan(dep.PlanID)
		if err != nil {
			return err
		}
		settlement, err = e.settle(dep, plan, caller)
		if err != nil {
			return err
		}
		dep.Status = StatusWithdrawn
		if err := e.storeDeposit(dep); err != nil {
			return err
		}
		if err := e.adjustActive(-1); err != nil {
			return err
		}
		if settlement.Payout.Sign() > 0 {
			if err := e.vault.WithdrawLiquidity(e.addr, settlement.Payout, caller); err != nil {
				return err
			}
		}
		if settlement.PenaltyReceiver != (ethcommon.Address{}) {
			return e.vault.WithdrawLiquidity(e.addr, settlement.Penalty, settlement.PenaltyReceiver)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if settlement.PenaltyReceiver != (ethcommon.Address{}) {
		e.emit(NewPenaltyCollectedEvent(id, settlement.PenaltyReceiver, settlement.Penalty))
	}
	e.emit(NewDepositWithdrawnEvent(settlement))
	return settlement, nil
}

func (e *Engine) settle(dep *Deposit, plan *plans.Plan, recipient ethcommon.Address) (*Settlement, error) {
	s := &Settlement{DepositID: dep.ID, Recipient: recipient}
	if dep.MaturedAt(e.now()) {
		s.Interest = cloneBigInt(dep.ExpectedInterest)
		s.Penalty = big.NewInt(0)
		s.Payout = new(big.Int).Add(dep.Principal, dep.ExpectedInterest)
		return s, nil
	}
	penalty, err := EarlyWithdrawalPenalty(dep.Principal, plan.PenaltyRateBps)
	if err != nil {
		return nil, err
	}
	s.Early = true
	s.Interest = big.NewInt(0)
	s.Penalty = penalty
	s.Payout = new(big.Int).Sub(dep.Principal, penalty)
	if penalty.Sign() > 0 && plan.HasPenaltyReceiver() {
		s.PenaltyReceiver = plan.PenaltyReceiver
	}
	return s, nil
}

// RenewDeposit rolls a matured deposit into a new one under newPlanID. The
// accrued interest is capitalised into the new principal and no funds leave
// the vault.
func (e *Engine) RenewDeposit(caller ethcommon.Address, id, newPlanID, newTermDays uint64) (uint64, error) {
	var renewed *Deposit
	err := e.mutate(true, func() error {
		old, err := e.loadDeposit(id)
		if err != nil {
			return err
		}
		if old.Status != StatusActive {
			return ErrDepositNotActive
		}
		if err := e.certs.Authorize(caller, old.CertificateID); err != nil {
			return err
		}
		if !old.MaturedAt(e.now()) {
			return ErrDepositNotMatured
		}
		plan, err := e.plans.ActivePlan(newPlanID)
		if err != nil {
			return err
		}
		principal := new(big.Int).Add(old.Principal, old.ExpectedInterest)
		if err := checkBounds(plan, principal, newTermDays); err != nil {
			return err
		}
		old.Status = StatusRenewed
		if err := e.storeDeposit(old); err != nil {
			return err
		}
		if err := e.adjustActive(-1); err != nil {
			return err
		}
		renewed, err = e.openDeposit(caller, plan, principal, newTermDays)
		return err
	})
	if err != nil {
		return 0, err
	}
	e.emit(NewDepositRenewedEvent(id, renewed))
	e.emit(NewDepositCreatedEvent(renewed))
	return renewed.ID, nil
}

// DepositToVault routes admin funds into the vault through the ledger.
func (e *Engine) DepositToVault(caller ethcommon.Address, amount *big.Int) error {
	return e.mutate(false, func() error {
		if !e.state.HasRole(access.RoleAdmin, caller.Bytes()) {
			return errs.ErrUnauthorized
		}
		if amount == nil || amount.Sign() <= 0 {
			return errs.ErrZeroAmount
		}
		return e.fund(caller, amount)
	})
}

// WithdrawFromVault pays vault liquidity out to the calling admin.
func (e *Engine) WithdrawFromVault(caller ethcommon.Address, amount *big.Int) error {
	return e.mutate(false, func() error {
		if !e.state.HasRole(access.RoleAdmin, caller.Bytes()) {
			return errs.ErrUnauthorized
		}
		if amount == nil || amount.Sign() <= 0 {
			return errs.ErrZeroAmount
		}
		return e.vault.WithdrawLiquidity(e.addr, amount, caller)
	})
}

// Deposit returns the stored deposit.
func (e *Engine) Deposit(id uint64) (*Deposit, error) {
	return e.loadDeposit(id)
}

// UserDepositIDs lists the deposits opened by addr in creation order.
func (e *Engine) UserDepositIDs(addr ethcommon.Address) ([]uint64, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	var ids []uint64
	if err := e.state.KVGetList(userIndexKey(addr), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// TotalDeposits reports how many deposits were ever created.
func (e *Engine) TotalDeposits() (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	return e.state.Counter(depositCounter)
}

// ActiveDepositCount reports how many deposits are still Active.
func (e *Engine) ActiveDepositCount() (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	return e.activeCount()
}

// IsDepositMature reports whether deposit id reached its maturity date.
func (e *Engine) IsDepositMature(id uint64) (bool, error) {
	dep, err := e.loadDeposit(id)
	if err != nil {
		return false, err
	}
	return dep.MaturedAt(e.now()), nil
}

// CalculateExpectedInterest previews the interest a deposit of amount for
// termDays would earn under the plan.
func (e *Engine) CalculateExpectedInterest(amount *big.Int, planID, termDays uint64) (*big.Int, error) {
	if e == nil || e.plans == nil {
		return nil, errNotWired
	}
	plan, err := e.plans.Plan(planID)
	if err != nil {
		return nil, err
	}
	return ExpectedInterest(amount, plan.AnnualRateBps, termDays)
}

// CalculateEarlyWithdrawalPenalty previews the penalty a withdrawal of deposit
// id would pay right now. Matured deposits pay none.
func (e *Engine) CalculateEarlyWithdrawalPenalty(id uint64) (*big.Int, error) {
	if e == nil || e.plans == nil {
		return nil, errNotWired
	}
	dep, err := e.loadDeposit(id)
	if err != nil {
		return nil, err
	}
	if dep.MaturedAt(e.now()) {
		return big.NewInt(0), nil
	}
	plan, err := e.plans.Plan(dep.PlanID)
	if err != nil {
		return nil, err
	}
	return EarlyWithdrawalPenalty(dep.Principal, plan.PenaltyRateBps)
}
