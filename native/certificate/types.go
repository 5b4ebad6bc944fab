package certificate

import (
	"fmt"

	ethcommon "github.com/ethereum/go-ethereum/common"

	errs "savingsbank/core/errors"
)

const (
	// CooldownSeconds is how long a freshly transferred certificate stays
	// locked for its new owner.
	CooldownSeconds uint64 = 86_400

	Name   = "Savings Deposit Certificate"
	Symbol = "SDC"
)

var (
	ErrCertificateInCooldown = errs.New(errs.KindSecurity, "certificate: certificate in cooldown")
	ErrCertificateNotFound   = errs.New(errs.KindNotFound, "certificate: certificate not found")
	ErrCertificateExists     = errs.New(errs.KindState, "certificate: certificate already minted")
	ErrIncorrectOwner        = errs.New(errs.KindValidation, "certificate: incorrect owner")
)

// Certificate is the transferable right to act on the deposit sharing its id.
type Certificate struct {
	ID               uint64
	Owner            ethcommon.Address
	Approved         ethcommon.Address
	Transferred      bool
	LastTransferTime uint64
}

// CooldownError reports a certificate that may not be used yet together with
// the seconds left until it unlocks.
type CooldownError struct {
	ID        uint64
	Remaining uint64
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("%s: %d seconds remaining", ErrCertificateInCooldown.Error(), e.Remaining)
}

// Is matches ErrCertificateInCooldown.
func (e *CooldownError) Is(target error) bool {
	return target == ErrCertificateInCooldown
}

// Kind classifies the error as a security rejection.
func (e *CooldownError) Kind() errs.Kind { return errs.KindSecurity }

// RemainingAt returns the cooldown left at now. Certificates that were never
// transferred have no cooldown.
func (c *Certificate) RemainingAt(now uint64) uint64 {
	if c == nil || !c.Transferred {
		return 0
	}
	var elapsed uint64
	if now > c.LastTransferTime {
		elapsed = now - c.LastTransferTime
	}
	if elapsed >= CooldownSeconds {
		return 0
	}
	return CooldownSeconds - elapsed
}
