package bank

import (
	"fmt"
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"

	errs "savingsbank/core/errors"
	"savingsbank/core/events"
	"savingsbank/core/types"
	nativecommon "savingsbank/native/common"
)

// ModuleName identifies the asset ledger. Its module address is the token
// address recorded by the vault.
const ModuleName = "bank"

var (
	ErrInvalidAmount         = errs.New(errs.KindValidation, "bank: amount must not be negative")
	ErrInsufficientBalance   = errs.New(errs.KindResource, "bank: insufficient balance")
	ErrInsufficientAllowance = errs.New(errs.KindResource, "bank: insufficient allowance")
	errNilState              = errs.New(errs.KindState, "bank: state not configured")
)

// Metadata describes the stable asset held by the ledger.
type Metadata struct {
	Name     string
	Symbol   string
	Decimals uint8
}

// DefaultMetadata is the six-decimal stable asset deposits are denominated in.
var DefaultMetadata = Metadata{Name: "USD Coin", Symbol: "USDC", Decimals: 6}

type ledgerState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// Ledger is a single fungible asset with allowance based delegated transfers.
type Ledger struct {
	st      ledgerState
	emitter events.Emitter
}

// NewLedger creates a ledger backed by the provided state.
func NewLedger(st ledgerState) *Ledger {
	return &Ledger{st: st, emitter: events.NoopEmitter{}}
}

// SetEmitter configures the event emitter. Passing nil resets the emitter to a
// no-op implementation.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

// Address returns the token address of the asset.
func (l *Ledger) Address() ethcommon.Address {
	return nativecommon.ModuleAddress(ModuleName)
}

// SetMetadata persists the asset description.
func (l *Ledger) SetMetadata(meta Metadata) error {
	if l == nil || l.st == nil {
		return errNilState
	}
	return l.st.KVPut(metadataKey, meta)
}

// Metadata returns the persisted asset description or DefaultMetadata.
func (l *Ledger) Metadata() Metadata {
	if l == nil || l.st == nil {
		return DefaultMetadata
	}
	var meta Metadata
	ok, err := l.st.KVGet(metadataKey, &meta)
	if err != nil || !ok {
		return DefaultMetadata
	}
	return meta
}

func (l *Ledger) emit(evt *types.Event) {
	if l == nil || l.emitter == nil || evt == nil {
		return
	}
	l.emitter.Emit(events.Wrap(evt))
}

func balanceKey(addr ethcommon.Address) []byte {
	return append([]byte("bank/balance/"), addr.Bytes()...)
}

func allowanceKey(owner, spender ethcommon.Address) []byte {
	key := append([]byte("bank/allowance/"), owner.Bytes()...)
	return append(key, spender.Bytes()...)
}

var (
	supplyKey   = []byte("bank/supply")
	metadataKey = []byte("bank/metadata")
)

func (l *Ledger) readAmount(key []byte) (*big.Int, error) {
	if l == nil || l.st == nil {
		return nil, errNilState
	}
	value := new(big.Int)
	ok, err := l.st.KVGet(key, value)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return value, nil
}

func validAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	return nil
}

// BalanceOf returns the balance held by addr.
func (l *Ledger) BalanceOf(addr ethcommon.Address) (*big.Int, error) {
	return l.readAmount(balanceKey(addr))
}

// Allowance returns how much spender may move on behalf of owner.
func (l *Ledger) Allowance(owner, spender ethcommon.Address) (*big.Int, error) {
	return l.readAmount(allowanceKey(owner, spender))
}

// TotalSupply returns the amount minted so far.
func (l *Ledger) TotalSupply() (*big.Int, error) {
	return l.readAmount(supplyKey)
}

// Mint credits newly issued units to the recipient.
func (l *Ledger) Mint(to ethcommon.Address, amount *big.Int) error {
	if err := validAmount(amount); err != nil {
		return err
	}
	if to == (ethcommon.Address{}) {
		return errs.ErrZeroAddress
	}
	balance, err := l.BalanceOf(to)
	if err != nil {
		return err
	}
	supply, err := l.TotalSupply()
	if err != nil {
		return err
	}
	if err := l.st.KVPut(balanceKey(to), new(big.Int).Add(balance, amount)); err != nil {
		return err
	}
	if err := l.st.KVPut(supplyKey, new(big.Int).Add(supply, amount)); err != nil {
		return err
	}
	l.emit(NewTransferEvent(ethcommon.Address{}, to, amount))
	return nil
}

// Transfer moves amount from the sender to the recipient.
func (l *Ledger) Transfer(from, to ethcommon.Address, amount *big.Int) error {
	if err := validAmount(amount); err != nil {
		return err
	}
	if to == (ethcommon.Address{}) || from == (ethcommon.Address{}) {
		return errs.ErrZeroAddress
	}
	fromBalance, err := l.BalanceOf(from)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, fromBalance, amount)
	}
	if err := l.st.KVPut(balanceKey(from), new(big.Int).Sub(fromBalance, amount)); err != nil {
		return err
	}
	toBalance, err := l.BalanceOf(to)
	if err != nil {
		return err
	}
	if err := l.st.KVPut(balanceKey(to), new(big.Int).Add(toBalance, amount)); err != nil {
		return err
	}
	l.emit(NewTransferEvent(from, to, amount))
	return nil
}

// TransferFrom moves amount from owner to the recipient, consuming the
// spender's allowance.
func (l *Ledger) TransferFrom(spender, from, to ethcommon.Address, amount *big.Int) error {
	if err := validAmount(amount); err != nil {
		return err
	}
	allowance, err := l.Allowance(from, spender)
	if err != nil {
		return err
	}
	if allowance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientAllowance, allowance, amount)
	}
	if err := l.Transfer(from, to, amount); err != nil {
		return err
	}
	return l.st.KVPut(allowanceKey(from, spender), new(big.Int).Sub(allowance, amount))
}

// Approve sets the allowance of spender over the owner's balance.
func (l *Ledger) Approve(owner, spender ethcommon.Address, amount *big.Int) error {
	if err := validAmount(amount); err != nil {
		return err
	}
	if owner == (ethcommon.Address{}) || spender == (ethcommon.Address{}) {
		return errs.ErrZeroAddress
	}
	if l == nil || l.st == nil {
		return errNilState
	}
	if err := l.st.KVPut(allowanceKey(owner, spender), new(big.Int).Set(amount)); err != nil {
		return err
	}
	l.emit(NewApprovalEvent(owner, spender, amount))
	return nil
}
