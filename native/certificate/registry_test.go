package certificate

import (
	"errors"
	"testing"

	ethcommon "github.com/ethereum/go-ethereum/common"

	errs "savingsbank/core/errors"
	"savingsbank/core/state"
	"savingsbank/native/access"
	"savingsbank/storage"
)

var (
	minter   = ethcommon.HexToAddress("0x0000000000000000000000000000000000001001")
	holder   = ethcommon.HexToAddress("0x0000000000000000000000000000000000001002")
	buyer    = ethcommon.HexToAddress("0x0000000000000000000000000000000000001003")
	operator = ethcommon.HexToAddress("0x0000000000000000000000000000000000001004")
)

type clock struct{ now int64 }

func (c *clock) Now() int64 { return c.now }

func newTestRegistry(t *testing.T) (*Registry, *clock) {
	t.Helper()
	mgr := state.NewManager(storage.NewMemDB())
	if err := mgr.SetRole(access.RoleMinter, minter.Bytes()); err != nil {
		t.Fatalf("set role: %v", err)
	}
	reg := NewRegistry(mgr)
	c := &clock{now: 1_700_000_000}
	reg.SetNowFunc(c.Now)
	return reg, c
}

func TestMintDoesNotStartCooldown(t *testing.T) {
	reg, _ := newTestRegistry(t)
	if err := reg.Mint(holder, holder, 1); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("expected unauthorized mint, got %v", err)
	}
	if err := reg.Mint(minter, holder, 1); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := reg.Mint(minter, holder, 1); !errors.Is(err, ErrCertificateExists) {
		t.Fatalf("expected duplicate mint error, got %v", err)
	}
	inCooldown, err := reg.IsInCooldown(1)
	if err != nil || inCooldown {
		t.Fatalf("fresh certificate in cooldown=%v err=%v", inCooldown, err)
	}
	last, err := reg.LastTransferTime(1)
	if err != nil || last != 0 {
		t.Fatalf("last transfer %d err %v", last, err)
	}
	if err := reg.Authorize(holder, 1); err != nil {
		t.Fatalf("depositor must be able to act: %v", err)
	}
	owner, _ := reg.OwnerOf(1)
	if owner != holder {
		t.Fatalf("owner %s", owner.Hex())
	}
	supply, _ := reg.TotalSupply()
	count, _ := reg.BalanceOf(holder)
	if supply != 1 || count != 1 {
		t.Fatalf("supply %d balance %d", supply, count)
	}
}

func TestTransferStartsCooldown(t *testing.T) {
	reg, c := newTestRegistry(t)
	if err := reg.Mint(minter, holder, 7); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := reg.Transfer(buyer, buyer, 7); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if err := reg.Transfer(holder, ethcommon.Address{}, 7); !errors.Is(err, errs.ErrZeroAddress) {
		t.Fatalf("expected zero address, got %v", err)
	}
	if err := reg.Transfer(holder, buyer, 7); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	remaining, _ := reg.RemainingCooldown(7)
	if remaining != CooldownSeconds {
		t.Fatalf("remaining %d", remaining)
	}
	err := reg.Authorize(buyer, 7)
	var cooldown *CooldownError
	if !errors.As(err, &cooldown) || !errors.Is(err, ErrCertificateInCooldown) {
		t.Fatalf("expected cooldown error, got %v", err)
	}
	if cooldown.Remaining != CooldownSeconds || errs.KindOf(err) != errs.KindSecurity {
		t.Fatalf("unexpected cooldown %+v kind %v", cooldown, errs.KindOf(err))
	}
	if err := reg.Authorize(holder, 7); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("previous owner must lose rights, got %v", err)
	}

	previous := remaining
	for _, step := range []int64{1, 3_600, 40_000, 40_000} {
		c.now += step
		next, _ := reg.RemainingCooldown(7)
		if next > previous {
			t.Fatalf("remaining cooldown must not increase: %d -> %d", previous, next)
		}
		previous = next
	}
	c.now += int64(previous) - 1
	if in, _ := reg.IsInCooldown(7); !in {
		t.Fatalf("certificate should still be locked one second before expiry")
	}
	c.now++
	if in, _ := reg.IsInCooldown(7); in {
		t.Fatalf("certificate should unlock exactly after the cooldown")
	}
	if err := reg.Authorize(buyer, 7); err != nil {
		t.Fatalf("new owner should act after cooldown: %v", err)
	}
}

func TestTransferOfLockedCertificateRejected(t *testing.T) {
	reg, c := newTestRegistry(t)
	if err := reg.Mint(minter, holder, 1); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := reg.Transfer(holder, buyer, 1); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if err := reg.Transfer(buyer, holder, 1); !errors.Is(err, ErrCertificateInCooldown) {
		t.Fatalf("expected cooldown error, got %v", err)
	}
	c.now += int64(CooldownSeconds)
	if err := reg.Transfer(buyer, holder, 1); err != nil {
		t.Fatalf("transfer after cooldown: %v", err)
	}
}

func TestDelegatedTransfers(t *testing.T) {
	reg, _ := newTestRegistry(t)
	for _, id := range []uint64{1, 2} {
		if err := reg.Mint(minter, holder, id); err != nil {
			t.Fatalf("mint %d: %v", id, err)
		}
	}

	if err := reg.Approve(buyer, buyer, 1); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("expected unauthorized approve, got %v", err)
	}
	if err := reg.Approve(holder, buyer, 1); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := reg.TransferFrom(buyer, operator, buyer, 1); !errors.Is(err, ErrIncorrectOwner) {
		t.Fatalf("expected incorrect owner, got %v", err)
	}
	if err := reg.TransferFrom(buyer, holder, buyer, 1); err != nil {
		t.Fatalf("approved transfer: %v", err)
	}
	approved, _ := reg.GetApproved(1)
	if approved != (ethcommon.Address{}) {
		t.Fatalf("approval must be cleared after transfer")
	}

	if err := reg.SetApprovalForAll(holder, operator, true); err != nil {
		t.Fatalf("set operator: %v", err)
	}
	if err := reg.TransferFrom(operator, holder, operator, 2); err != nil {
		t.Fatalf("operator transfer: %v", err)
	}
	holderCount, _ := reg.BalanceOf(holder)
	buyerCount, _ := reg.BalanceOf(buyer)
	if holderCount != 0 || buyerCount != 1 {
		t.Fatalf("holdings holder=%d buyer=%d", holderCount, buyerCount)
	}
	if _, err := reg.OwnerOf(9); !errors.Is(err, ErrCertificateNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
