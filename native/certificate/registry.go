package certificate

import (
	"strconv"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"

	errs "savingsbank/core/errors"
	"savingsbank/core/events"
	"savingsbank/core/types"
	"savingsbank/native/access"
)

var (
	supplyKey   = []byte("certificate/supply")
	errNilState = errs.New(errs.KindState, "certificate: state not configured")
)

type registryState interface {
	HasRole(role string, addr []byte) bool
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

func certificateKey(id uint64) []byte {
	return []byte("certificate/token/" + strconv.FormatUint(id, 10))
}

func holdingsKey(owner ethcommon.Address) []byte {
	return append([]byte("certificate/balance/"), owner.Bytes()...)
}

func operatorKey(owner, operator ethcommon.Address) []byte {
	key := append([]byte("certificate/operator/"), owner.Bytes()...)
	return append(key, operator.Bytes()...)
}

// Registry tracks certificate ownership, delegation and the post-transfer
// cooldown.
type Registry struct {
	st      registryState
	emitter events.Emitter
	nowFn   func() int64
}

// NewRegistry creates a registry backed by the provided state.
func NewRegistry(st registryState) *Registry {
	return &Registry{
		st:      st,
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetEmitter configures the event emitter. Passing nil resets the emitter to a
// no-op implementation.
func (r *Registry) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		r.emitter = events.NoopEmitter{}
		return
	}
	r.emitter = emitter
}

// SetNowFunc overrides the time source used for cooldown checks.
func (r *Registry) SetNowFunc(now func() int64) {
	if now == nil {
		r.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	r.nowFn = now
}

func (r *Registry) now() uint64 {
	ts := time.Now().Unix()
	if r != nil && r.nowFn != nil {
		ts = r.nowFn()
	}
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

func (r *Registry) emit(evt *types.Event) {
	if r == nil || r.emitter == nil || evt == nil {
		return
	}
	r.emitter.Emit(events.Wrap(evt))
}

func (r *Registry) load(id uint64) (*Certificate, error) {
	if r == nil || r.st == nil {
		return nil, errNilState
	}
	cert := new(Certificate)
	ok, err := r.st.KVGet(certificateKey(id), cert)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrCertificateNotFound
	}
	return cert, nil
}

func (r *Registry) readUint(key []byte) (uint64, error) {
	var value uint64
	if _, err := r.st.KVGet(key, &value); err != nil {
		return 0, err
	}
	return value, nil
}

func (r *Registry) adjustHoldings(owner ethcommon.Address, delta int) error {
	count, err := r.readUint(holdingsKey(owner))
	if err != nil {
		return err
	}
	if delta < 0 {
		if count > 0 {
			count--
		}
	} else {
		count++
	}
	return r.st.KVPut(holdingsKey(owner), count)
}

// Mint issues certificate id to the recipient. Minting never starts a cooldown.
func (r *Registry) Mint(caller, to ethcommon.Address, id uint64) error {
	if r == nil || r.st == nil {
		return errNilState
	}
	if !r.st.HasRole(access.RoleMinter, caller.Bytes()) {
		return errs.ErrUnauthorized
	}
	if to == (ethcommon.Address{}) {
		return errs.ErrZeroAddress
	}
	if r.Exists(id) {
		return ErrCertificateExists
	}
	cert := &Certificate{ID: id, Owner: to}
	if err := r.st.KVPut(certificateKey(id), cert); err != nil {
		return err
	}
	if err := r.adjustHoldings(to, 1); err != nil {
		return err
	}
	supply, err := r.readUint(supplyKey)
	if err != nil {
		return err
	}
	if err := r.st.KVPut(supplyKey, supply+1); err != nil {
		return err
	}
	r.emit(NewMintedEvent(id, to))
	return nil
}

// Transfer moves certificate id from its owner to the recipient.
func (r *Registry) Transfer(caller, to ethcommon.Address, id uint64) error {
	owner, err := r.OwnerOf(id)
	if err != nil {
		return err
	}
	return r.TransferFrom(caller, owner, to, id)
}

// TransferFrom moves certificate id from the owner to the recipient. The caller
// must be the owner, the approved spender or an approved operator. A successful
// transfer starts the cooldown for the new owner.
func (r *Registry) TransferFrom(caller, from, to ethcommon.Address, id uint64) error {
	cert, err := r.load(id)
	if err != nil {
		return err
	}
	if to == (ethcommon.Address{}) {
		return errs.ErrZeroAddress
	}
	if cert.Owner != from {
		return ErrIncorrectOwner
	}
	if !r.authorized(caller, cert) {
		return errs.ErrUnauthorized
	}
	now := r.now()
	if remaining := cert.RemainingAt(now); remaining > 0 {
		return &CooldownError{ID: id, Remaining: remaining}
	}
	cert.Owner = to
	cert.Approved = ethcommon.Address{}
	cert.Transferred = true
	cert.LastTransferTime = now
	if err := r.st.KVPut(certificateKey(id), cert); err != nil {
		return err
	}
	if err := r.adjustHoldings(from, -1); err != nil {
		return err
	}
	if err := r.adjustHoldings(to, 1); err != nil {
		return err
	}
	r.emit(NewTransferredEvent(id, from, to, now))
	return nil
}

func (r *Registry) authorized(caller ethcommon.Address, cert *Certificate) bool {
	if caller == cert.Owner {
		return true
	}
	if cert.Approved != (ethcommon.Address{}) && caller == cert.Approved {
		return true
	}
	return r.IsApprovedForAll(cert.Owner, caller)
}

// Approve lets spender transfer certificate id once. Only the owner or one of
// its operators may approve.
func (r *Registry) Approve(caller, spender ethcommon.Address, id uint64) error {
	cert, err := r.load(id)
	if err != nil {
		return err
	}
	if caller != cert.Owner && !r.IsApprovedForAll(cert.Owner, caller) {
		return errs.ErrUnauthorized
	}
	cert.Approved = spender
	if err := r.st.KVPut(certificateKey(id), cert); err != nil {
		return err
	}
	r.emit(NewApprovalEvent(id, cert.Owner, spender))
	return nil
}

// SetApprovalForAll grants or withdraws operator rights over every
// certificate the caller owns.
func (r *Registry) SetApprovalForAll(caller, operator ethcommon.Address, approved bool) error {
	if r == nil || r.st == nil {
		return errNilState
	}
	if operator == (ethcommon.Address{}) {
		return errs.ErrZeroAddress
	}
	if err := r.st.KVPut(operatorKey(caller, operator), approved); err != nil {
		return err
	}
	r.emit(NewApprovalForAllEvent(caller, operator, approved))
	return nil
}

// IsApprovedForAll reports whether operator acts for owner.
func (r *Registry) IsApprovedForAll(owner, operator ethcommon.Address) bool {
	if r == nil || r.st == nil {
		return false
	}
	var approved bool
	if _, err := r.st.KVGet(operatorKey(owner, operator), &approved); err != nil {
		return false
	}
	return approved
}

// GetApproved returns the single-use spender of certificate id.
func (r *Registry) GetApproved(id uint64) (ethcommon.Address, error) {
	cert, err := r.load(id)
	if err != nil {
		return ethcommon.Address{}, err
	}
	return cert.Approved, nil
}

// Certificate returns the stored certificate.
func (r *Registry) Certificate(id uint64) (*Certificate, error) {
	return r.load(id)
}

// OwnerOf returns the current holder of certificate id.
func (r *Registry) OwnerOf(id uint64) (ethcommon.Address, error) {
	cert, err := r.load(id)
	if err != nil {
		return ethcommon.Address{}, err
	}
	return cert.Owner, nil
}

// BalanceOf returns how many certificates owner holds.
func (r *Registry) BalanceOf(owner ethcommon.Address) (uint64, error) {
	if r == nil || r.st == nil {
		return 0, errNilState
	}
	return r.readUint(holdingsKey(owner))
}

// TotalSupply returns the number of certificates ever minted.
func (r *Registry) TotalSupply() (uint64, error) {
	if r == nil || r.st == nil {
		return 0, errNilState
	}
	return r.readUint(supplyKey)
}

// Exists reports whether certificate id was minted.
func (r *Registry) Exists(id uint64) bool {
	_, err := r.load(id)
	return err == nil
}

// LastTransferTime returns the unix time of the latest transfer, or zero when
// the certificate never changed hands.
func (r *Registry) LastTransferTime(id uint64) (uint64, error) {
	cert, err := r.load(id)
	if err != nil {
		return 0, err
	}
	if !cert.Transferred {
		return 0, nil
	}
	return cert.LastTransferTime, nil
}

// IsInCooldown reports whether certificate id was transferred less than
// CooldownSeconds ago.
func (r *Registry) IsInCooldown(id uint64) (bool, error) {
	remaining, err := r.RemainingCooldown(id)
	if err != nil {
		return false, err
	}
	return remaining > 0, nil
}

// RemainingCooldown returns the seconds left before certificate id unlocks.
func (r *Registry) RemainingCooldown(id uint64) (uint64, error) {
	cert, err := r.load(id)
	if err != nil {
		return 0, err
	}
	return cert.RemainingAt(r.now()), nil
}

// Authorize checks that caller currently owns certificate id and that the
// certificate is out of cooldown.
func (r *Registry) Authorize(caller ethcommon.Address, id uint64) error {
	cert, err := r.load(id)
	if err != nil {
		return err
	}
	if cert.Owner != caller {
		return errs.ErrUnauthorized
	}
	if remaining := cert.RemainingAt(r.now()); remaining > 0 {
		return &CooldownError{ID: id, Remaining: remaining}
	}
	return nil
}
