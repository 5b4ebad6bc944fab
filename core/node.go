package core

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"

	errs "savingsbank/core/errors"
	"savingsbank/core/events"
	"savingsbank/core/genesis"
	nhbstate "savingsbank/core/state"
	"savingsbank/native/access"
	"savingsbank/native/bank"
	"savingsbank/native/certificate"
	nativecommon "savingsbank/native/common"
	"savingsbank/native/plans"
	"savingsbank/native/savings"
	nativevault "savingsbank/native/vault"
	"savingsbank/observability"
	"savingsbank/storage"
)

// Node is the central controller, wiring all components together. Every
// top-level call runs against a fresh state overlay and is either committed
// as a whole or discarded. Events reach subscribers only after commit.
type Node struct {
	db      storage.Database
	stateMu sync.RWMutex
	emitter events.Emitter
	nowFn   func() int64
	logger  *slog.Logger
	metrics *observability.SavingsMetrics
}

// Option customises a Node.
type Option func(*Node)

// WithEmitter sets the downstream subscriber for committed events.
func WithEmitter(emitter events.Emitter) Option {
	return func(n *Node) { n.emitter = emitter }
}

// WithNowFunc overrides the wall clock used by the engines.
func WithNowFunc(now func() int64) Option {
	return func(n *Node) { n.nowFn = now }
}

// WithLogger sets the logger used for failed operations.
func WithLogger(logger *slog.Logger) Option {
	return func(n *Node) { n.logger = logger }
}

// NewNode creates a node over db.
func NewNode(db storage.Database, opts ...Option) (*Node, error) {
	if db == nil {
		return nil, fmt.Errorf("node: database required")
	}
	n := &Node{
		db:      db,
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
		logger:  slog.Default(),
		metrics: observability.Savings(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(n)
		}
	}
	if n.emitter == nil {
		n.emitter = events.NoopEmitter{}
	}
	if n.nowFn == nil {
		n.nowFn = func() int64 { return time.Now().Unix() }
	}
	if n.logger == nil {
		n.logger = slog.Default()
	}
	return n, nil
}

type modules struct {
	state   *nhbstate.Manager
	access  *access.Supervisor
	asset   *bank.Ledger
	plans   *plans.Registry
	vault   *nativevault.Vault
	certs   *certificate.Registry
	savings *savings.Engine
	buf     *events.Buffer
}

func (n *Node) modules() *modules {
	mgr := nhbstate.NewManager(n.db)
	buf := &events.Buffer{}

	sup := access.NewSupervisor(mgr)
	sup.SetEmitter(buf)
	asset := bank.NewLedger(mgr)
	asset.SetEmitter(buf)
	registry := plans.NewRegistry(mgr)
	registry.SetEmitter(buf)
	vlt := nativevault.New(mgr, asset)
	vlt.SetEmitter(buf)
	vlt.SetToken(asset.Address())
	certs := certificate.NewRegistry(mgr)
	certs.SetEmitter(buf)
	certs.SetNowFunc(n.nowFn)

	engine := savings.NewEngine()
	engine.SetState(mgr)
	engine.SetPlans(registry)
	engine.SetVault(vlt)
	engine.SetCertificates(certs)
	engine.SetAsset(asset)
	engine.SetPauses(sup)
	engine.SetNowFunc(n.nowFn)
	engine.SetEmitter(buf)

	return &modules{
		state:   mgr,
		access:  sup,
		asset:   asset,
		plans:   registry,
		vault:   vlt,
		certs:   certs,
		savings: engine,
		buf:     buf,
	}
}

// mutate executes fn under the write lock and commits its writes on success.
func (n *Node) mutate(op string, fn func(m *modules) error) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()

	start := time.Now()
	m := n.modules()
	err := fn(m)
	if err == nil {
		err = m.state.Commit()
	}
	if err != nil {
		m.state.Discard()
		m.buf.Reset()
		n.logger.Warn("savings operation failed",
			slog.String("component", "node"),
			slog.String("op", op),
			slog.String("kind", errs.KindOf(err).String()),
			slog.Any("error", err))
		n.metrics.ObserveOperation(op, errs.KindOf(err).String(), time.Since(start))
		return err
	}
	m.buf.Flush(n.emitter)
	n.metrics.ObserveOperation(op, "ok", time.Since(start))
	n.publishGauges(m)
	return nil
}

func (n *Node) publishGauges(m *modules) {
	if balance, err := m.vault.Balance(); err == nil {
		n.metrics.SetVaultBalance(balance)
	}
	if active, err := m.savings.ActiveDepositCount(); err == nil {
		n.metrics.SetActiveDeposits(active)
	}
}

// view executes a read-only fn against committed state.
func (n *Node) view(fn func(m *modules) error) error {
	n.stateMu.RLock()
	defer n.stateMu.RUnlock()
	return fn(n.modules())
}

// InitGenesis applies spec unless state was already initialised. It reports
// whether the spec was applied.
func (n *Node) InitGenesis(spec *genesis.Spec) (bool, error) {
	if spec == nil {
		return false, fmt.Errorf("node: nil genesis spec")
	}
	var applied bool
	err := n.mutate("genesis", func(m *modules) error {
		done, err := genesis.Applied(m.state)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if err := spec.Apply(genesis.Modules{
			State:   m.state,
			Access:  m.access,
			Asset:   m.asset,
			Plans:   m.plans,
			Savings: m.savings,
		}); err != nil {
			return err
		}
		applied = true
		return nil
	})
	return applied, err
}

// LedgerAddress returns the module account users approve before depositing.
func (n *Node) LedgerAddress() ethcommon.Address {
	return nativecommon.ModuleAddress(savings.ModuleName)
}

// VaultAddress returns the vault module account.
func (n *Node) VaultAddress() ethcommon.Address {
	return nativecommon.ModuleAddress(nativevault.ModuleName)
}

// --- Deposit lifecycle ---

func (n *Node) CreateDeposit(caller ethcommon.Address, planID uint64, amount *big.Int, termDays uint64) (uint64, error) {
	var id uint64
	err := n.mutate("create_deposit", func(m *modules) error {
		var err error
		id, err = m.savings.CreateDeposit(caller, planID, amount, termDays)
		return err
	})
	return id, err
}

func (n *Node) WithdrawDeposit(caller ethcommon.Address, id uint64) (*savings.Settlement, error) {
	var settlement *savings.Settlement
	err := n.mutate("withdraw_deposit", func(m *modules) error {
		var err error
		settlement, err = m.savings.WithdrawDeposit(caller, id)
		return err
	})
	return settlement, err
}

func (n *Node) RenewDeposit(caller ethcommon.Address, id, newPlanID, newTermDays uint64) (uint64, error) {
	var renewed uint64
	err := n.mutate("renew_deposit", func(m *modules) error {
		var err error
		renewed, err = m.savings.RenewDeposit(caller, id, newPlanID, newTermDays)
		return err
	})
	return renewed, err
}

func (n *Node) DepositToVault(caller ethcommon.Address, amount *big.Int) error {
	return n.mutate("deposit_to_vault", func(m *modules) error {
		return m.savings.DepositToVault(caller, amount)
	})
}

func (n *Node) WithdrawFromVault(caller ethcommon.Address, amount *big.Int) error {
	return n.mutate("withdraw_from_vault", func(m *modules) error {
		return m.savings.WithdrawFromVault(caller, amount)
	})
}

func (n *Node) Deposit(id uint64) (*savings.Deposit, error) {
	var dep *savings.Deposit
	err := n.view(func(m *modules) error {
		var err error
		dep, err = m.savings.Deposit(id)
		return err
	})
	return dep, err
}

func (n *Node) UserDepositIDs(addr ethcommon.Address) ([]uint64, error) {
	var ids []uint64
	err := n.view(func(m *modules) error {
		var err error
		ids, err = m.savings.UserDepositIDs(addr)
		return err
	})
	return ids, err
}

func (n *Node) IsDepositMature(id uint64) (bool, error) {
	var mature bool
	err := n.view(func(m *modules) error {
		var err error
		mature, err = m.savings.IsDepositMature(id)
		return err
	})
	return mature, err
}

func (n *Node) CalculateExpectedInterest(amount *big.Int, planID, termDays uint64) (*big.Int, error) {
	var interest *big.Int
	err := n.view(func(m *modules) error {
		var err error
		interest, err = m.savings.CalculateExpectedInterest(amount, planID, termDays)
		return err
	})
	return interest, err
}

func (n *Node) CalculateEarlyWithdrawalPenalty(id uint64) (*big.Int, error) {
	var penalty *big.Int
	err := n.view(func(m *modules) error {
		var err error
		penalty, err = m.savings.CalculateEarlyWithdrawalPenalty(id)
		return err
	})
	return penalty, err
}

// Stats summarises the ledger.
type Stats struct {
	TotalDeposits  uint64
	ActiveDeposits uint64
	TotalPlans     uint64
	Certificates   uint64
	VaultBalance   *big.Int
	Paused         bool
}

func (n *Node) Stats() (*Stats, error) {
	stats := &Stats{}
	err := n.view(func(m *modules) error {
		var err error
		if stats.TotalDeposits, err = m.savings.TotalDeposits(); err != nil {
			return err
		}
		if stats.ActiveDeposits, err = m.savings.ActiveDepositCount(); err != nil {
			return err
		}
		if stats.TotalPlans, err = m.plans.TotalPlans(); err != nil {
			return err
		}
		if stats.Certificates, err = m.certs.TotalSupply(); err != nil {
			return err
		}
		if stats.VaultBalance, err = m.vault.Balance(); err != nil {
			return err
		}
		stats.Paused = m.access.Paused()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// --- Plans ---

func (n *Node) CreatePlan(caller ethcommon.Address, in plans.Input) (uint64, error) {
	var id uint64
	err := n.mutate("create_plan", func(m *modules) error {
		var err error
		id, err = m.plans.CreatePlan(caller, in)
		return err
	})
	return id, err
}

func (n *Node) UpdatePlan(caller ethcommon.Address, id uint64, in plans.Input) error {
	return n.mutate("update_plan", func(m *modules) error {
		return m.plans.UpdatePlan(caller, id, in)
	})
}

func (n *Node) ActivatePlan(caller ethcommon.Address, id uint64) error {
	return n.mutate("activate_plan", func(m *modules) error {
		return m.plans.ActivatePlan(caller, id)
	})
}

func (n *Node) DeactivatePlan(caller ethcommon.Address, id uint64) error {
	return n.mutate("deactivate_plan", func(m *modules) error {
		return m.plans.DeactivatePlan(caller, id)
	})
}

func (n *Node) UpdatePenaltyReceiver(caller ethcommon.Address, id uint64, receiver ethcommon.Address) error {
	return n.mutate("update_penalty_receiver", func(m *modules) error {
		return m.plans.UpdatePenaltyReceiver(caller, id, receiver)
	})
}

func (n *Node) Plan(id uint64) (*plans.Plan, error) {
	var plan *plans.Plan
	err := n.view(func(m *modules) error {
		var err error
		plan, err = m.plans.Plan(id)
		return err
	})
	return plan, err
}

func (n *Node) TotalPlans() (uint64, error) {
	var total uint64
	err := n.view(func(m *modules) error {
		var err error
		total, err = m.plans.TotalPlans()
		return err
	})
	return total, err
}

// --- Vault ---

func (n *Node) AdminWithdraw(caller ethcommon.Address, amount *big.Int) error {
	return n.mutate("admin_withdraw", func(m *modules) error {
		return m.vault.AdminWithdraw(caller, amount)
	})
}

// VaultInfo describes the vault.
type VaultInfo struct {
	Address ethcommon.Address
	Token   ethcommon.Address
	Balance *big.Int
}

func (n *Node) Vault() (*VaultInfo, error) {
	info := &VaultInfo{}
	err := n.view(func(m *modules) error {
		balance, err := m.vault.Balance()
		if err != nil {
			return err
		}
		info.Address = m.vault.Address()
		info.Token = m.vault.Token()
		info.Balance = balance
		return nil
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

func (n *Node) CanWithdraw(addr ethcommon.Address) (bool, error) {
	var ok bool
	err := n.view(func(m *modules) error {
		ok = m.vault.CanWithdraw(addr)
		return nil
	})
	return ok, err
}

// --- Certificates ---

func (n *Node) TransferCertificate(caller, from, to ethcommon.Address, id uint64) error {
	return n.mutate("transfer_certificate", func(m *modules) error {
		if from == (ethcommon.Address{}) {
			return m.certs.Transfer(caller, to, id)
		}
		return m.certs.TransferFrom(caller, from, to, id)
	})
}

func (n *Node) ApproveCertificate(caller, spender ethcommon.Address, id uint64) error {
	return n.mutate("approve_certificate", func(m *modules) error {
		return m.certs.Approve(caller, spender, id)
	})
}

func (n *Node) SetCertificateOperator(caller, operator ethcommon.Address, approved bool) error {
	return n.mutate("set_certificate_operator", func(m *modules) error {
		return m.certs.SetApprovalForAll(caller, operator, approved)
	})
}

// CertificateInfo is a certificate plus its derived cooldown state.
type CertificateInfo struct {
	certificate.Certificate
	InCooldown        bool
	RemainingCooldown uint64
}

func (n *Node) Certificate(id uint64) (*CertificateInfo, error) {
	info := &CertificateInfo{}
	err := n.view(func(m *modules) error {
		cert, err := m.certs.Certificate(id)
		if err != nil {
			return err
		}
		remaining, err := m.certs.RemainingCooldown(id)
		if err != nil {
			return err
		}
		info.Certificate = *cert
		info.RemainingCooldown = remaining
		info.InCooldown = remaining > 0
		return nil
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

func (n *Node) CertificateBalance(owner ethcommon.Address) (uint64, error) {
	var balance uint64
	err := n.view(func(m *modules) error {
		var err error
		balance, err = m.certs.BalanceOf(owner)
		return err
	})
	return balance, err
}

// --- Access ---

func (n *Node) GrantRole(caller ethcommon.Address, role string, account ethcommon.Address) error {
	return n.mutate("grant_role", func(m *modules) error {
		return m.access.GrantRole(caller, role, account)
	})
}

func (n *Node) RevokeRole(caller ethcommon.Address, role string, account ethcommon.Address) error {
	return n.mutate("revoke_role", func(m *modules) error {
		return m.access.RevokeRole(caller, role, account)
	})
}

func (n *Node) RenounceRole(caller ethcommon.Address, role string) error {
	return n.mutate("renounce_role", func(m *modules) error {
		return m.access.RenounceRole(caller, role)
	})
}

func (n *Node) Pause(caller ethcommon.Address) error {
	return n.mutate("pause", func(m *modules) error {
		return m.access.Pause(caller)
	})
}

func (n *Node) Unpause(caller ethcommon.Address) error {
	return n.mutate("unpause", func(m *modules) error {
		return m.access.Unpause(caller)
	})
}

func (n *Node) Paused() bool {
	var paused bool
	_ = n.view(func(m *modules) error {
		paused = m.access.Paused()
		return nil
	})
	return paused
}

func (n *Node) HasRole(role string, account ethcommon.Address) bool {
	var ok bool
	_ = n.view(func(m *modules) error {
		ok = m.access.HasRole(role, account)
		return nil
	})
	return ok
}

func (n *Node) RoleMembers(role string) ([]ethcommon.Address, error) {
	var members []ethcommon.Address
	err := n.view(func(m *modules) error {
		var err error
		members, err = m.access.RoleMembers(role)
		return err
	})
	return members, err
}

// --- Asset ---

func (n *Node) ApproveAsset(owner, spender ethcommon.Address, amount *big.Int) error {
	return n.mutate("approve_asset", func(m *modules) error {
		return m.asset.Approve(owner, spender, amount)
	})
}

func (n *Node) TransferAsset(from, to ethcommon.Address, amount *big.Int) error {
	return n.mutate("transfer_asset", func(m *modules) error {
		return m.asset.Transfer(from, to, amount)
	})
}

// AssetAccount is the asset position of one address.
type AssetAccount struct {
	Balance         *big.Int
	LedgerAllowance *big.Int
}

func (n *Node) AssetAccount(addr ethcommon.Address) (*AssetAccount, error) {
	out := &AssetAccount{}
	err := n.view(func(m *modules) error {
		var err error
		if out.Balance, err = m.asset.BalanceOf(addr); err != nil {
			return err
		}
		out.LedgerAllowance, err = m.asset.Allowance(addr, m.savings.Address())
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (n *Node) AssetMetadata() bank.Metadata {
	var meta bank.Metadata
	_ = n.view(func(m *modules) error {
		meta = m.asset.Metadata()
		return nil
	})
	return meta
}

// IsKind reports whether err carries the supplied taxonomy kind.
func IsKind(err error, kind errs.Kind) bool {
	return err != nil && errs.KindOf(err) == kind
}

// IsCooldown extracts the cooldown details from err.
func IsCooldown(err error) (*certificate.CooldownError, bool) {
	var cooldown *certificate.CooldownError
	if errors.As(err, &cooldown) {
		return cooldown, true
	}
	return nil, false
}
