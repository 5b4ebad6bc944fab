package vault

import (
	"errors"
	"math/big"
	"testing"

	ethcommon "github.com/ethereum/go-ethereum/common"

	errs "savingsbank/core/errors"
	"savingsbank/core/events"
	"savingsbank/core/state"
	"savingsbank/native/access"
	"savingsbank/native/bank"
	"savingsbank/storage"
)

var (
	manager   = ethcommon.HexToAddress("0x0000000000000000000000000000000000000101")
	withdrawr = ethcommon.HexToAddress("0x0000000000000000000000000000000000000202")
	admin     = ethcommon.HexToAddress("0x0000000000000000000000000000000000000303")
	recipient = ethcommon.HexToAddress("0x0000000000000000000000000000000000000404")
)

type fixture struct {
	mgr    *state.Manager
	ledger *bank.Ledger
	vault  *Vault
	buf    *events.Buffer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mgr := state.NewManager(storage.NewMemDB())
	for role, addr := range map[string]ethcommon.Address{
		access.RoleLiquidityManager: manager,
		access.RoleWithdraw:         withdrawr,
		access.RoleAdmin:            admin,
	} {
		if err := mgr.SetRole(role, addr.Bytes()); err != nil {
			t.Fatalf("set role: %v", err)
		}
	}
	ledger := bank.NewLedger(mgr)
	v := New(mgr, ledger)
	buf := &events.Buffer{}
	v.SetEmitter(buf)
	if err := ledger.Mint(manager, big.NewInt(10_000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := ledger.Approve(manager, v.Address(), big.NewInt(10_000)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	return &fixture{mgr: mgr, ledger: ledger, vault: v, buf: buf}
}

func (f *fixture) balance(t *testing.T) int64 {
	t.Helper()
	b, err := f.vault.Balance()
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return b.Int64()
}

func TestDepositLiquidityIncreasesBalanceExactly(t *testing.T) {
	f := newFixture(t)
	if err := f.vault.DepositLiquidity(manager, big.NewInt(2_500)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if got := f.balance(t); got != 2_500 {
		t.Fatalf("balance %d", got)
	}
	held, _ := f.ledger.BalanceOf(f.vault.Address())
	if held.Int64() != 2_500 {
		t.Fatalf("vault holds %s", held)
	}
	if err := f.vault.DepositLiquidity(withdrawr, big.NewInt(1)); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if err := f.vault.DepositLiquidity(manager, big.NewInt(0)); !errors.Is(err, errs.ErrZeroAmount) {
		t.Fatalf("expected zero amount, got %v", err)
	}
	evts := f.buf.Events()
	if len(evts) != 1 || evts[0].EventType() != EventTypeLiquidityDeposited {
		t.Fatalf("unexpected events %v", evts)
	}
	payload, _ := events.PayloadOf(evts[0])
	if payload.Attributes["newBalance"] != "2500" {
		t.Fatalf("unexpected payload %v", payload.Attributes)
	}
}

func TestWithdrawLiquidity(t *testing.T) {
	f := newFixture(t)
	if err := f.vault.DepositLiquidity(manager, big.NewInt(1_000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := f.vault.WithdrawLiquidity(manager, big.NewInt(10), recipient); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if err := f.vault.WithdrawLiquidity(withdrawr, big.NewInt(10), ethcommon.Address{}); !errors.Is(err, errs.ErrZeroAddress) {
		t.Fatalf("expected zero address, got %v", err)
	}
	if err := f.vault.WithdrawLiquidity(withdrawr, big.NewInt(1_001), recipient); !errors.Is(err, ErrInsufficientLiquidity) {
		t.Fatalf("expected insufficient liquidity, got %v", err)
	}
	if err := f.vault.WithdrawLiquidity(withdrawr, big.NewInt(400), recipient); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if got := f.balance(t); got != 600 {
		t.Fatalf("balance %d", got)
	}
	paid, _ := f.ledger.BalanceOf(recipient)
	if paid.Int64() != 400 {
		t.Fatalf("recipient received %s", paid)
	}
	if !f.vault.CanWithdraw(withdrawr) || f.vault.CanWithdraw(recipient) {
		t.Fatalf("CanWithdraw mismatch")
	}
}

func TestAdminWithdrawBounds(t *testing.T) {
	f := newFixture(t)
	if err := f.vault.DepositLiquidity(manager, big.NewInt(500)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := f.vault.AdminWithdraw(admin, big.NewInt(501)); !errors.Is(err, ErrInsufficientLiquidity) {
		t.Fatalf("expected insufficient liquidity, got %v", err)
	}
	if err := f.vault.AdminWithdraw(withdrawr, big.NewInt(1)); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if err := f.vault.AdminWithdraw(admin, big.NewInt(500)); err != nil {
		t.Fatalf("admin withdraw: %v", err)
	}
	if got := f.balance(t); got != 0 {
		t.Fatalf("balance %d", got)
	}
	swept, _ := f.ledger.BalanceOf(admin)
	if swept.Int64() != 500 {
		t.Fatalf("admin received %s", swept)
	}
}

// reentrantAsset calls back into the vault from inside a token transfer.
type reentrantAsset struct {
	*bank.Ledger
	vault *Vault
	err   error
}

func (a *reentrantAsset) TransferFrom(spender, from, to ethcommon.Address, amount *big.Int) error {
	a.err = a.vault.DepositLiquidity(from, amount)
	return a.Ledger.TransferFrom(spender, from, to, amount)
}

func TestDepositLiquidityRejectsReentry(t *testing.T) {
	f := newFixture(t)
	asset := &reentrantAsset{Ledger: f.ledger}
	v := New(f.mgr, asset)
	asset.vault = v
	if err := v.DepositLiquidity(manager, big.NewInt(100)); err != nil {
		t.Fatalf("outer deposit: %v", err)
	}
	if !errors.Is(asset.err, errs.ErrReentrantCall) {
		t.Fatalf("expected reentrant call error, got %v", asset.err)
	}
	b, _ := v.Balance()
	if b.Int64() != 100 {
		t.Fatalf("reentry must not double count, balance %s", b)
	}
}
