package savings

import (
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"

	errs "savingsbank/core/errors"
)

// ModuleName identifies the deposit ledger for pause checks and its account.
const ModuleName = "savings"

var (
	ErrDepositNotFound           = errs.New(errs.KindNotFound, "savings: deposit not found")
	ErrDepositNotActive          = errs.New(errs.KindState, "savings: deposit not active")
	ErrDepositNotMatured         = errs.New(errs.KindState, "savings: deposit not matured")
	ErrInsufficientDepositAmount = errs.New(errs.KindValidation, "savings: insufficient deposit amount")
	ErrExcessiveDepositAmount    = errs.New(errs.KindValidation, "savings: excessive deposit amount")
	ErrInvalidTermDays           = errs.New(errs.KindValidation, "savings: term outside plan bounds")
	ErrArithmeticOverflow        = errs.New(errs.KindValidation, "savings: arithmetic overflow")
)

// Status is the lifecycle stage of a deposit.
type Status uint8

const (
	StatusActive Status = iota
	StatusWithdrawn
	StatusRenewed
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusWithdrawn:
		return "withdrawn"
	case StatusRenewed:
		return "renewed"
	default:
		return "unknown"
	}
}

// Deposit is an append-only record. Its status leaves Active exactly once.
type Deposit struct {
	ID               uint64
	Depositor        ethcommon.Address
	PlanID           uint64
	Principal        *big.Int
	TermDays         uint64
	DepositDate      uint64
	MaturityDate     uint64
	ExpectedInterest *big.Int
	Status           Status
	CertificateID    uint64
}

// Clone returns a deep copy of the deposit.
func (d *Deposit) Clone() *Deposit {
	if d == nil {
		return nil
	}
	clone := *d
	clone.Principal = cloneBigInt(d.Principal)
	clone.ExpectedInterest = cloneBigInt(d.ExpectedInterest)
	return &clone
}

// MaturedAt reports whether the term has fully elapsed at now.
func (d *Deposit) MaturedAt(now uint64) bool {
	return now >= d.MaturityDate
}

// Settlement describes the outcome of a withdrawal.
type Settlement struct {
	DepositID uint64
	Recipient ethcommon.Address
	Payout    *big.Int
	Interest  *big.Int
	Penalty   *big.Int
	Early     bool
	// PenaltyReceiver is zero when the penalty stayed in the vault.
	PenaltyReceiver ethcommon.Address
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
