package access

import (
	"errors"
	"testing"

	ethcommon "github.com/ethereum/go-ethereum/common"

	errs "savingsbank/core/errors"
	"savingsbank/core/events"
	"savingsbank/core/state"
	nativecommon "savingsbank/native/common"
	"savingsbank/storage"
)

var (
	superAdmin = ethcommon.HexToAddress("0x00000000000000000000000000000000000000a1")
	pauser     = ethcommon.HexToAddress("0x00000000000000000000000000000000000000b2")
	stranger   = ethcommon.HexToAddress("0x00000000000000000000000000000000000000c3")
)

func newTestSupervisor(t *testing.T) (*Supervisor, *events.Buffer) {
	t.Helper()
	sup := NewSupervisor(state.NewManager(storage.NewMemDB()))
	buf := &events.Buffer{}
	sup.SetEmitter(buf)
	if err := sup.Bootstrap(superAdmin); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	return sup, buf
}

func TestGrantRevokeRenounce(t *testing.T) {
	sup, buf := newTestSupervisor(t)

	if err := sup.GrantRole(stranger, RolePauser, pauser); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if err := sup.GrantRole(superAdmin, "SUPER_USER", pauser); !errors.Is(err, ErrUnknownRole) {
		t.Fatalf("expected unknown role, got %v", err)
	}
	if err := sup.GrantRole(superAdmin, RolePauser, ethcommon.Address{}); !errors.Is(err, errs.ErrZeroAddress) {
		t.Fatalf("expected zero address, got %v", err)
	}
	if err := sup.GrantRole(superAdmin, RolePauser, pauser); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if !sup.HasRole(RolePauser, pauser) {
		t.Fatalf("pauser role missing")
	}
	if sup.HasRole(RoleAdmin, superAdmin) {
		t.Fatalf("super admin must not implicitly hold ADMIN_ROLE")
	}

	members, err := sup.RoleMembers(RolePauser)
	if err != nil {
		t.Fatalf("members: %v", err)
	}
	if len(members) != 1 || members[0] != pauser {
		t.Fatalf("unexpected members %v", members)
	}

	if err := sup.RevokeRole(superAdmin, RolePauser, pauser); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if sup.HasRole(RolePauser, pauser) {
		t.Fatalf("pauser role should be revoked")
	}

	if err := sup.GrantRole(superAdmin, RoleAdmin, stranger); err != nil {
		t.Fatalf("grant admin: %v", err)
	}
	if err := sup.RenounceRole(stranger, RoleAdmin); err != nil {
		t.Fatalf("renounce: %v", err)
	}
	if sup.HasRole(RoleAdmin, stranger) {
		t.Fatalf("admin role should be renounced")
	}

	var kinds []string
	for _, evt := range buf.Events() {
		kinds = append(kinds, evt.EventType())
	}
	want := []string{
		EventTypeRoleGranted,
		EventTypeRoleGranted,
		EventTypeRoleRevoked,
		EventTypeRoleGranted,
		EventTypeRoleRevoked,
	}
	if len(kinds) != len(want) {
		t.Fatalf("unexpected events %v", kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("event %d: got %s want %s", i, kinds[i], want[i])
		}
	}
}

func TestPauseToggle(t *testing.T) {
	sup, _ := newTestSupervisor(t)
	if err := sup.GrantRole(superAdmin, RolePauser, pauser); err != nil {
		t.Fatalf("grant: %v", err)
	}

	if err := sup.Pause(superAdmin); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("super admin without PAUSER_ROLE must not pause, got %v", err)
	}
	if err := sup.Unpause(pauser); !errors.Is(err, ErrNotPaused) {
		t.Fatalf("expected ErrNotPaused, got %v", err)
	}
	if err := sup.Pause(pauser); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if !sup.Paused() || !sup.IsPaused("savings") {
		t.Fatalf("supervisor should report paused")
	}
	if err := nativecommon.Guard(sup, "savings"); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("guard should block, got %v", err)
	}
	if err := sup.Pause(pauser); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("double pause should fail, got %v", err)
	}
	if err := sup.Unpause(pauser); err != nil {
		t.Fatalf("unpause: %v", err)
	}
	if sup.Paused() {
		t.Fatalf("supervisor should be unpaused")
	}
}
