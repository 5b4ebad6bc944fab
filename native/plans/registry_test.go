package plans

import (
	"errors"
	"math/big"
	"testing"

	ethcommon "github.com/ethereum/go-ethereum/common"

	errs "savingsbank/core/errors"
	"savingsbank/core/events"
	"savingsbank/core/state"
	"savingsbank/native/access"
	"savingsbank/storage"
)

var (
	admin    = ethcommon.HexToAddress("0x00000000000000000000000000000000000000ad")
	outsider = ethcommon.HexToAddress("0x00000000000000000000000000000000000000ee")
	treasury = ethcommon.HexToAddress("0x00000000000000000000000000000000000000fe")
)

func defaultInput() Input {
	return Input{
		Name:           "Standard",
		MinDeposit:     big.NewInt(100_000000),
		MaxDeposit:     big.NewInt(0),
		MinTermDays:    1,
		MaxTermDays:    365,
		AnnualRateBps:  800,
		PenaltyRateBps: 100,
	}
}

func newTestRegistry(t *testing.T) (*Registry, *events.Buffer) {
	t.Helper()
	mgr := state.NewManager(storage.NewMemDB())
	if err := mgr.SetRole(access.RoleAdmin, admin.Bytes()); err != nil {
		t.Fatalf("set role: %v", err)
	}
	reg := NewRegistry(mgr)
	buf := &events.Buffer{}
	reg.SetEmitter(buf)
	return reg, buf
}

func TestCreatePlanValidation(t *testing.T) {
	reg, _ := newTestRegistry(t)

	cases := []struct {
		name   string
		mutate func(*Input)
		want   error
	}{
		{"zero min term", func(in *Input) { in.MinTermDays = 0 }, ErrInvalidTermDays},
		{"max below min", func(in *Input) { in.MinTermDays, in.MaxTermDays = 365, 180 }, ErrInvalidTermDays},
		{"max equals min", func(in *Input) { in.MinTermDays, in.MaxTermDays = 30, 30 }, ErrInvalidTermDays},
		{"zero rate", func(in *Input) { in.AnnualRateBps = 0 }, ErrInvalidInterestRate},
		{"penalty above 100%", func(in *Input) { in.PenaltyRateBps = 15_000 }, ErrInvalidPenaltyRate},
		{"negative min deposit", func(in *Input) { in.MinDeposit = big.NewInt(-1) }, ErrInvalidDepositRange},
		{"min above max", func(in *Input) { in.MaxDeposit = big.NewInt(50_000000) }, ErrInvalidDepositRange},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := defaultInput()
			tc.mutate(&in)
			if _, err := reg.CreatePlan(admin, in); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if errs.KindOf(tc.want) != errs.KindValidation {
				t.Fatalf("%v must be a validation error", tc.want)
			}
		})
	}

	in := defaultInput()
	in.PenaltyRateBps = MaxBasisPoints
	if _, err := reg.CreatePlan(admin, in); err != nil {
		t.Fatalf("100%% penalty must be accepted: %v", err)
	}
}

func TestCreatePlanRequiresAdmin(t *testing.T) {
	reg, buf := newTestRegistry(t)
	if _, err := reg.CreatePlan(outsider, defaultInput()); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("rejected call must not emit")
	}
	total, err := reg.TotalPlans()
	if err != nil || total != 0 {
		t.Fatalf("total %d err %v", total, err)
	}
}

func TestPlanLifecycle(t *testing.T) {
	reg, buf := newTestRegistry(t)

	id, err := reg.CreatePlan(admin, defaultInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if id != 1 {
		t.Fatalf("first plan id should be 1, got %d", id)
	}
	plan, err := reg.Plan(id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !plan.Active || plan.AnnualRateBps != 800 || plan.MinDeposit.Int64() != 100_000000 {
		t.Fatalf("unexpected plan %+v", plan)
	}

	if err := reg.UpdatePenaltyReceiver(admin, id, treasury); err != nil {
		t.Fatalf("penalty receiver: %v", err)
	}
	update := defaultInput()
	update.Name = "Boosted"
	update.AnnualRateBps = 1_000
	if err := reg.UpdatePlan(admin, id, update); err != nil {
		t.Fatalf("update: %v", err)
	}
	plan, _ = reg.Plan(id)
	if plan.Name != "Boosted" || plan.AnnualRateBps != 1_000 || plan.PenaltyReceiver != treasury {
		t.Fatalf("update lost fields: %+v", plan)
	}

	if err := reg.DeactivatePlan(admin, id); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := reg.ActivePlan(id); !errors.Is(err, ErrPlanNotActive) {
		t.Fatalf("expected inactive plan, got %v", err)
	}
	if err := reg.ActivatePlan(admin, id); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if _, err := reg.ActivePlan(id); err != nil {
		t.Fatalf("plan should be active: %v", err)
	}

	if err := reg.UpdatePenaltyReceiver(admin, id, ethcommon.Address{}); err != nil {
		t.Fatalf("clear receiver: %v", err)
	}
	receiver, err := reg.PenaltyReceiver(id)
	if err != nil || receiver != (ethcommon.Address{}) {
		t.Fatalf("receiver %s err %v", receiver.Hex(), err)
	}

	if _, err := reg.Plan(99); !errors.Is(err, ErrPlanNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := reg.ActivatePlan(admin, 99); !errors.Is(err, ErrPlanNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	want := []string{
		EventTypePlanCreated,
		EventTypePenaltyReceiverUpdated,
		EventTypePlanUpdated,
		EventTypePlanDeactivated,
		EventTypePlanActivated,
		EventTypePenaltyReceiverUpdated,
	}
	got := buf.Events()
	if len(got) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i].EventType() != want[i] {
			t.Fatalf("event %d: got %s want %s", i, got[i].EventType(), want[i])
		}
	}
}
