package core

import (
	"errors"
	"math/big"
	"testing"

	ethcommon "github.com/ethereum/go-ethereum/common"

	errs "savingsbank/core/errors"
	"savingsbank/core/events"
	"savingsbank/core/genesis"
	"savingsbank/native/certificate"
	"savingsbank/native/savings"
	"savingsbank/storage"
)

const testGenesis = `
superAdmin = "0x0000000000000000000000000000000000000b01"
vaultSeed = "1_000_000000"

[roles]
ADMIN_ROLE = ["0x0000000000000000000000000000000000000b02"]
PAUSER_ROLE = ["0x0000000000000000000000000000000000000b03"]

[alloc]
"0x0000000000000000000000000000000000000b02" = "10_000_000000"
"0x0000000000000000000000000000000000000b04" = "5_000_000000"

[[plans]]
name = "Standard"
minDeposit = "100_000000"
maxDeposit = "10_000_000000"
minTermDays = 30
maxTermDays = 365
annualRateBps = 500
penaltyRateBps = 1000
`

var (
	nodeAdmin  = ethcommon.HexToAddress("0x0000000000000000000000000000000000000b02")
	nodePauser = ethcommon.HexToAddress("0x0000000000000000000000000000000000000b03")
	nodeAlice  = ethcommon.HexToAddress("0x0000000000000000000000000000000000000b04")
	nodeBob    = ethcommon.HexToAddress("0x0000000000000000000000000000000000000b05")
)

type recorder struct {
	types []string
}

func (r *recorder) Emit(evt events.Event) { r.types = append(r.types, evt.EventType()) }

type testClock struct{ now int64 }

func (c *testClock) Now() int64 { return c.now }

func newTestNode(t *testing.T, db storage.Database) (*Node, *recorder, *testClock) {
	t.Helper()
	rec := &recorder{}
	clk := &testClock{now: 1_700_000_000}
	node, err := NewNode(db, WithEmitter(rec), WithNowFunc(clk.Now))
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	spec, err := genesis.ParseSpec(testGenesis)
	if err != nil {
		t.Fatalf("parse genesis: %v", err)
	}
	if _, err := node.InitGenesis(spec); err != nil {
		t.Fatalf("init genesis: %v", err)
	}
	rec.types = nil
	return node, rec, clk
}

func usdc(n int64) *big.Int { return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000000)) }

func TestNodeDepositLifecycle(t *testing.T) {
	node, rec, clk := newTestNode(t, storage.NewMemDB())

	if err := node.ApproveAsset(nodeAlice, node.LedgerAddress(), usdc(1_000)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	id, err := node.CreateDeposit(nodeAlice, 1, usdc(1_000), 365)
	if err != nil {
		t.Fatalf("create deposit: %v", err)
	}
	if id != 1 {
		t.Fatalf("expected deposit id 1, got %d", id)
	}
	dep, err := node.Deposit(id)
	if err != nil {
		t.Fatalf("load deposit: %v", err)
	}
	if dep.ExpectedInterest.Cmp(usdc(50)) != 0 {
		t.Fatalf("expected 50 USDC interest, got %s", dep.ExpectedInterest)
	}
	if len(rec.types) == 0 || rec.types[len(rec.types)-1] != savings.EventTypeDepositCreated {
		t.Fatalf("expected created event last, got %v", rec.types)
	}

	clk.now += 365 * int64(savings.SecondsPerDay)
	mature, err := node.IsDepositMature(id)
	if err != nil || !mature {
		t.Fatalf("expected mature deposit: %v %v", mature, err)
	}
	settlement, err := node.WithdrawDeposit(nodeAlice, id)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if settlement.Payout.Cmp(usdc(1_050)) != 0 {
		t.Fatalf("unexpected payout %s", settlement.Payout)
	}
	account, err := node.AssetAccount(nodeAlice)
	if err != nil {
		t.Fatalf("asset account: %v", err)
	}
	if account.Balance.Cmp(usdc(5_050)) != 0 {
		t.Fatalf("unexpected balance %s", account.Balance)
	}

	stats, err := node.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalDeposits != 1 || stats.ActiveDeposits != 0 || stats.TotalPlans != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if stats.VaultBalance.Cmp(usdc(950)) != 0 {
		t.Fatalf("unexpected vault balance %s", stats.VaultBalance)
	}
}

func TestNodeFailedCallCommitsNothing(t *testing.T) {
	node, rec, _ := newTestNode(t, storage.NewMemDB())

	// No allowance was granted to the ledger.
	_, err := node.CreateDeposit(nodeAlice, 1, usdc(500), 30)
	if err == nil {
		t.Fatalf("expected allowance failure")
	}
	if errs.KindOf(err) != errs.KindResource {
		t.Fatalf("expected resource kind, got %s", errs.KindOf(err))
	}
	if len(rec.types) != 0 {
		t.Fatalf("failed call must not emit, got %v", rec.types)
	}
	stats, err := node.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalDeposits != 0 || stats.Certificates != 0 {
		t.Fatalf("failed call leaked state: %+v", stats)
	}
	if _, err := node.Deposit(1); !errors.Is(err, savings.ErrDepositNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestNodePauseAndCooldown(t *testing.T) {
	node, _, clk := newTestNode(t, storage.NewMemDB())
	if err := node.ApproveAsset(nodeAlice, node.LedgerAddress(), usdc(500)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	id, err := node.CreateDeposit(nodeAlice, 1, usdc(500), 30)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := node.Pause(nodeAlice); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("expected unauthorized pause, got %v", err)
	}
	if err := node.Pause(nodePauser); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if !node.Paused() {
		t.Fatalf("expected paused")
	}
	if _, err := node.WithdrawDeposit(nodeAlice, id); !IsKind(err, errs.KindPaused) {
		t.Fatalf("expected paused kind, got %v", err)
	}
	if err := node.Unpause(nodePauser); err != nil {
		t.Fatalf("unpause: %v", err)
	}

	if err := node.TransferCertificate(nodeAlice, ethcommon.Address{}, nodeBob, id); err != nil {
		t.Fatalf("transfer certificate: %v", err)
	}
	_, err = node.WithdrawDeposit(nodeBob, id)
	cooldown, ok := IsCooldown(err)
	if !ok {
		t.Fatalf("expected cooldown error, got %v", err)
	}
	if cooldown.Remaining != certificate.CooldownSeconds {
		t.Fatalf("expected full cooldown, got %d", cooldown.Remaining)
	}
	if !errors.Is(err, certificate.ErrCertificateInCooldown) {
		t.Fatalf("cooldown error must match sentinel")
	}

	clk.now += int64(certificate.CooldownSeconds)
	info, err := node.Certificate(id)
	if err != nil {
		t.Fatalf("certificate: %v", err)
	}
	if info.InCooldown || info.Owner != nodeBob {
		t.Fatalf("unexpected certificate info %+v", info)
	}
	if _, err := node.WithdrawDeposit(nodeBob, id); err != nil {
		t.Fatalf("withdraw after cooldown: %v", err)
	}
}

func TestNodeAdminOperations(t *testing.T) {
	node, _, _ := newTestNode(t, storage.NewMemDB())

	if err := node.AdminWithdraw(nodeAdmin, usdc(100)); err != nil {
		t.Fatalf("admin withdraw: %v", err)
	}
	if err := node.AdminWithdraw(nodeAlice, usdc(100)); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	info, err := node.Vault()
	if err != nil {
		t.Fatalf("vault: %v", err)
	}
	if info.Balance.Cmp(usdc(900)) != 0 {
		t.Fatalf("unexpected vault balance %s", info.Balance)
	}
	if info.Address != node.VaultAddress() {
		t.Fatalf("vault address mismatch")
	}
	ok, err := node.CanWithdraw(node.LedgerAddress())
	if err != nil || !ok {
		t.Fatalf("ledger must hold the withdraw role")
	}

	if err := node.DeactivatePlan(nodeAdmin, 1); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	plan, err := node.Plan(1)
	if err != nil || plan.Active {
		t.Fatalf("expected inactive plan: %+v %v", plan, err)
	}
}

func TestNodeGenesisAppliedOnce(t *testing.T) {
	db := storage.NewMemDB()
	node, _, _ := newTestNode(t, db)
	spec, err := genesis.ParseSpec(testGenesis)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	applied, err := node.InitGenesis(spec)
	if err != nil {
		t.Fatalf("second init: %v", err)
	}
	if applied {
		t.Fatalf("genesis must not apply twice")
	}
	total, err := node.TotalPlans()
	if err != nil || total != 1 {
		t.Fatalf("expected one plan, got %d (%v)", total, err)
	}
}
