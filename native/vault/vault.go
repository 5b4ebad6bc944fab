package vault

import (
	"fmt"
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"

	errs "savingsbank/core/errors"
	"savingsbank/core/events"
	"savingsbank/core/types"
	"savingsbank/native/access"
	nativecommon "savingsbank/native/common"
)

// ModuleName identifies the vault account.
const ModuleName = "vault"

var (
	ErrInsufficientLiquidity = errs.New(errs.KindResource, "vault: insufficient vault liquidity")
	errNilState              = errs.New(errs.KindState, "vault: state not configured")
	errNilAsset              = errs.New(errs.KindState, "vault: asset not configured")
)

var balanceKey = []byte("vault/balance")

type vaultState interface {
	HasRole(role string, addr []byte) bool
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// Asset is the token the vault custodies.
type Asset interface {
	Transfer(from, to ethcommon.Address, amount *big.Int) error
	TransferFrom(spender, from, to ethcommon.Address, amount *big.Int) error
	BalanceOf(addr ethcommon.Address) (*big.Int, error)
}

// Vault is a segregated liquidity pool. Its ledger balance only moves through
// role gated calls and never exceeds the asset it actually holds.
type Vault struct {
	st      vaultState
	asset   Asset
	token   ethcommon.Address
	addr    ethcommon.Address
	emitter events.Emitter
	guard   nativecommon.ReentrancyGuard
}

// New creates a vault backed by the provided state and asset.
func New(st vaultState, asset Asset) *Vault {
	return &Vault{
		st:      st,
		asset:   asset,
		addr:    nativecommon.ModuleAddress(ModuleName),
		emitter: events.NoopEmitter{},
	}
}

// SetEmitter configures the event emitter. Passing nil resets the emitter to a
// no-op implementation.
func (v *Vault) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		v.emitter = events.NoopEmitter{}
		return
	}
	v.emitter = emitter
}

// SetToken records the address reported by Token.
func (v *Vault) SetToken(token ethcommon.Address) { v.token = token }

// Token returns the address of the custodied asset.
func (v *Vault) Token() ethcommon.Address { return v.token }

// Address returns the account holding the vault's funds.
func (v *Vault) Address() ethcommon.Address { return v.addr }

func (v *Vault) emit(evt *types.Event) {
	if v == nil || v.emitter == nil || evt == nil {
		return
	}
	v.emitter.Emit(events.Wrap(evt))
}

func (v *Vault) ready() error {
	if v == nil || v.st == nil {
		return errNilState
	}
	if v.asset == nil {
		return errNilAsset
	}
	return nil
}

// Balance returns the vault ledger balance.
func (v *Vault) Balance() (*big.Int, error) {
	if v == nil || v.st == nil {
		return nil, errNilState
	}
	balance := new(big.Int)
	ok, err := v.st.KVGet(balanceKey, balance)
	if err != nil {
		return nil, fmt.Errorf("vault: load balance: %w", err)
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return balance, nil
}

// CanWithdraw reports whether addr may pay liquidity out of the vault.
func (v *Vault) CanWithdraw(addr ethcommon.Address) bool {
	if v == nil || v.st == nil {
		return false
	}
	return v.st.HasRole(access.RoleWithdraw, addr.Bytes())
}

func (v *Vault) enter(caller ethcommon.Address, role string, amount *big.Int) (func(), error) {
	if err := v.ready(); err != nil {
		return nil, err
	}
	if !v.st.HasRole(role, caller.Bytes()) {
		return nil, errs.ErrUnauthorized
	}
	release, err := v.guard.Enter()
	if err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		release()
		return nil, errs.ErrZeroAmount
	}
	return release, nil
}

// DepositLiquidity pulls amount from the caller and credits the ledger
// balance. The caller must have approved the vault account beforehand.
func (v *Vault) DepositLiquidity(caller ethcommon.Address, amount *big.Int) error {
	release, err := v.enter(caller, access.RoleLiquidityManager, amount)
	if err != nil {
		return err
	}
	defer release()

	if err := v.asset.TransferFrom(v.addr, caller, v.addr, amount); err != nil {
		return fmt.Errorf("vault: pull liquidity: %w", err)
	}
	balance, err := v.Balance()
	if err != nil {
		return err
	}
	balance.Add(balance, amount)
	if err := v.st.KVPut(balanceKey, balance); err != nil {
		return err
	}
	v.emit(NewLiquidityDepositedEvent(caller, amount, balance))
	return nil
}

// WithdrawLiquidity pays amount to recipient. It is normally reachable only by
// the deposit ledger.
func (v *Vault) WithdrawLiquidity(caller ethcommon.Address, amount *big.Int, recipient ethcommon.Address) error {
	release, err := v.enter(caller, access.RoleWithdraw, amount)
	if err != nil {
		return err
	}
	defer release()

	if recipient == (ethcommon.Address{}) {
		return errs.ErrZeroAddress
	}
	balance, err := v.debit(amount, recipient)
	if err != nil {
		return err
	}
	v.emit(NewLiquidityWithdrawnEvent(recipient, amount, balance))
	return nil
}

// AdminWithdraw sweeps amount to the calling admin.
func (v *Vault) AdminWithdraw(caller ethcommon.Address, amount *big.Int) error {
	release, err := v.enter(caller, access.RoleAdmin, amount)
	if err != nil {
		return err
	}
	defer release()

	balance, err := v.debit(amount, caller)
	if err != nil {
		return err
	}
	v.emit(NewAdminWithdrawnEvent(caller, amount, balance))
	return nil
}

func (v *Vault) debit(amount *big.Int, to ethcommon.Address) (*big.Int, error) {
	balance, err := v.Balance()
	if err != nil {
		return nil, err
	}
	if balance.Cmp(amount) < 0 {
		return nil, fmt.Errorf("%w: balance %s, requested %s", ErrInsufficientLiquidity, balance, amount)
	}
	balance.Sub(balance, amount)
	if err := v.st.KVPut(balanceKey, balance); err != nil {
		return nil, err
	}
	if err := v.asset.Transfer(v.addr, to, amount); err != nil {
		return nil, fmt.Errorf("vault: pay out: %w", err)
	}
	return balance, nil
}
