package access

import (
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"

	errs "savingsbank/core/errors"
	"savingsbank/core/events"
	"savingsbank/core/types"
	nativecommon "savingsbank/native/common"
)

const (
	// RoleDefaultAdmin may grant and revoke every role.
	RoleDefaultAdmin = "DEFAULT_ADMIN_ROLE"
	// RoleAdmin manages plans and performs administrative vault operations.
	RoleAdmin = "ADMIN_ROLE"
	// RolePauser toggles the global pause switch.
	RolePauser = "PAUSER_ROLE"
	// RoleLiquidityManager may add liquidity to the vault.
	RoleLiquidityManager = "LIQUIDITY_MANAGER_ROLE"
	// RoleWithdraw may pay liquidity out of the vault.
	RoleWithdraw = "WITHDRAW_ROLE"
	// RoleMinter may mint deposit certificates.
	RoleMinter = "MINTER_ROLE"
)

var knownRoles = map[string]struct{}{
	RoleDefaultAdmin:     {},
	RoleAdmin:            {},
	RolePauser:           {},
	RoleLiquidityManager: {},
	RoleWithdraw:         {},
	RoleMinter:           {},
}

var pausedKey = []byte("access/paused")

var (
	ErrUnknownRole = errs.New(errs.KindValidation, "access: unknown role")
	ErrNotPaused   = errs.New(errs.KindState, "access: expected pause")
	errNilState    = errs.New(errs.KindState, "access: state not configured")
)

type supervisorState interface {
	SetRole(role string, addr []byte) error
	RemoveRole(role string, addr []byte) error
	RoleMembers(role string) ([][]byte, error)
	HasRole(role string, addr []byte) bool
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// Supervisor owns role membership and the global pause flag. It implements
// nativecommon.PauseView so every guarded engine consults the same switch.
type Supervisor struct {
	st      supervisorState
	emitter events.Emitter
}

// NewSupervisor creates a supervisor backed by the provided state.
func NewSupervisor(st supervisorState) *Supervisor {
	return &Supervisor{st: st, emitter: events.NoopEmitter{}}
}

// SetEmitter configures the event emitter. Passing nil resets the emitter to a
// no-op implementation.
func (s *Supervisor) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		s.emitter = events.NoopEmitter{}
		return
	}
	s.emitter = emitter
}

func (s *Supervisor) emit(evt *types.Event) {
	if s == nil || s.emitter == nil || evt == nil {
		return
	}
	s.emitter.Emit(events.Wrap(evt))
}

func normalizeRole(role string) (string, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(role))
	if _, ok := knownRoles[trimmed]; !ok {
		return "", ErrUnknownRole
	}
	return trimmed, nil
}

// Bootstrap assigns the super-admin role without an authorization check. It is
// only reachable from genesis initialisation.
func (s *Supervisor) Bootstrap(admin ethcommon.Address) error {
	if s == nil || s.st == nil {
		return errNilState
	}
	if admin == (ethcommon.Address{}) {
		return errs.ErrZeroAddress
	}
	return s.grant(RoleDefaultAdmin, admin, ethcommon.Address{})
}

func (s *Supervisor) grant(role string, account, sender ethcommon.Address) error {
	if s.st.HasRole(role, account.Bytes()) {
		return nil
	}
	if err := s.st.SetRole(role, account.Bytes()); err != nil {
		return err
	}
	s.emit(NewRoleGrantedEvent(role, account, sender))
	return nil
}

func (s *Supervisor) revoke(role string, account, sender ethcommon.Address) error {
	if !s.st.HasRole(role, account.Bytes()) {
		return nil
	}
	if err := s.st.RemoveRole(role, account.Bytes()); err != nil {
		return err
	}
	s.emit(NewRoleRevokedEvent(role, account, sender))
	return nil
}

// GrantRole assigns role to account. Only the super admin may grant roles and
// granting an existing membership is a no-op.
func (s *Supervisor) GrantRole(caller ethcommon.Address, role string, account ethcommon.Address) error {
	if s == nil || s.st == nil {
		return errNilState
	}
	if !s.st.HasRole(RoleDefaultAdmin, caller.Bytes()) {
		return errs.ErrUnauthorized
	}
	normalized, err := normalizeRole(role)
	if err != nil {
		return err
	}
	if account == (ethcommon.Address{}) {
		return errs.ErrZeroAddress
	}
	return s.grant(normalized, account, caller)
}

// RevokeRole removes role from account. Only the super admin may revoke.
func (s *Supervisor) RevokeRole(caller ethcommon.Address, role string, account ethcommon.Address) error {
	if s == nil || s.st == nil {
		return errNilState
	}
	if !s.st.HasRole(RoleDefaultAdmin, caller.Bytes()) {
		return errs.ErrUnauthorized
	}
	normalized, err := normalizeRole(role)
	if err != nil {
		return err
	}
	return s.revoke(normalized, account, caller)
}

// RenounceRole lets the caller drop one of its own roles.
func (s *Supervisor) RenounceRole(caller ethcommon.Address, role string) error {
	if s == nil || s.st == nil {
		return errNilState
	}
	normalized, err := normalizeRole(role)
	if err != nil {
		return err
	}
	return s.revoke(normalized, caller, caller)
}

// HasRole reports whether account holds role.
func (s *Supervisor) HasRole(role string, account ethcommon.Address) bool {
	if s == nil || s.st == nil {
		return false
	}
	normalized, err := normalizeRole(role)
	if err != nil {
		return false
	}
	return s.st.HasRole(normalized, account.Bytes())
}

// RoleMembers lists the holders of role in ascending address order.
func (s *Supervisor) RoleMembers(role string) ([]ethcommon.Address, error) {
	if s == nil || s.st == nil {
		return nil, errNilState
	}
	normalized, err := normalizeRole(role)
	if err != nil {
		return nil, err
	}
	raw, err := s.st.RoleMembers(normalized)
	if err != nil {
		return nil, err
	}
	members := make([]ethcommon.Address, 0, len(raw))
	for _, member := range raw {
		members = append(members, ethcommon.BytesToAddress(member))
	}
	return members, nil
}

// Pause stops every pause-guarded entry point. Pausing twice fails with the
// enforced pause error.
func (s *Supervisor) Pause(caller ethcommon.Address) error {
	if s == nil || s.st == nil {
		return errNilState
	}
	if !s.st.HasRole(RolePauser, caller.Bytes()) {
		return errs.ErrUnauthorized
	}
	if s.Paused() {
		return nativecommon.ErrModulePaused
	}
	if err := s.st.KVPut(pausedKey, true); err != nil {
		return err
	}
	s.emit(NewPausedEvent(caller))
	return nil
}

// Unpause restores guarded entry points.
func (s *Supervisor) Unpause(caller ethcommon.Address) error {
	if s == nil || s.st == nil {
		return errNilState
	}
	if !s.st.HasRole(RolePauser, caller.Bytes()) {
		return errs.ErrUnauthorized
	}
	if !s.Paused() {
		return ErrNotPaused
	}
	if err := s.st.KVPut(pausedKey, false); err != nil {
		return err
	}
	s.emit(NewUnpausedEvent(caller))
	return nil
}

// Paused reports the global pause flag. Read failures report paused so
// guarded operations fail closed.
func (s *Supervisor) Paused() bool {
	if s == nil || s.st == nil {
		return false
	}
	var paused bool
	if _, err := s.st.KVGet(pausedKey, &paused); err != nil {
		return true
	}
	return paused
}

// IsPaused implements nativecommon.PauseView. The switch is global so every
// module observes the same flag.
func (s *Supervisor) IsPaused(string) bool {
	return s.Paused()
}
