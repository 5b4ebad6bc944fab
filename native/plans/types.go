package plans

import (
	"math/big"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"

	errs "savingsbank/core/errors"
)

// MaxBasisPoints is 100% expressed in basis points.
const MaxBasisPoints = 10_000

var (
	ErrInvalidTermDays     = errs.New(errs.KindValidation, "plans: invalid term days")
	ErrInvalidInterestRate = errs.New(errs.KindValidation, "plans: invalid interest rate")
	ErrInvalidPenaltyRate  = errs.New(errs.KindValidation, "plans: invalid penalty rate")
	ErrInvalidDepositRange = errs.New(errs.KindValidation, "plans: invalid deposit bounds")
	ErrPlanNotFound        = errs.New(errs.KindNotFound, "plans: saving plan not found")
	ErrPlanNotActive       = errs.New(errs.KindState, "plans: saving plan not active")
)

// Plan is an admin-defined savings product. Deposits snapshot the rate at
// creation so edits never apply retroactively.
type Plan struct {
	ID              uint64
	Name            string
	MinDeposit      *big.Int
	MaxDeposit      *big.Int // zero means unbounded
	MinTermDays     uint64
	MaxTermDays     uint64
	AnnualRateBps   uint64
	PenaltyRateBps  uint64
	Active          bool
	PenaltyReceiver ethcommon.Address // zero means penalties stay in the vault
}

// Input carries the mutable plan parameters.
type Input struct {
	Name           string
	MinDeposit     *big.Int
	MaxDeposit     *big.Int
	MinTermDays    uint64
	MaxTermDays    uint64
	AnnualRateBps  uint64
	PenaltyRateBps uint64
}

// Validate checks the plan invariants. Each violated rule reports its own
// error.
func (in Input) Validate() error {
	if in.MinTermDays == 0 || in.MaxTermDays <= in.MinTermDays {
		return ErrInvalidTermDays
	}
	if in.AnnualRateBps == 0 {
		return ErrInvalidInterestRate
	}
	if in.PenaltyRateBps > MaxBasisPoints {
		return ErrInvalidPenaltyRate
	}
	if in.MinDeposit != nil && in.MinDeposit.Sign() < 0 {
		return ErrInvalidDepositRange
	}
	if in.MaxDeposit != nil && in.MaxDeposit.Sign() < 0 {
		return ErrInvalidDepositRange
	}
	// A zero maximum is unbounded; otherwise it may not sit below the minimum.
	if in.MinDeposit != nil && in.MaxDeposit != nil && in.MaxDeposit.Sign() > 0 && in.MinDeposit.Cmp(in.MaxDeposit) > 0 {
		return ErrInvalidDepositRange
	}
	return nil
}

func (in Input) sanitized() Input {
	out := in
	out.Name = strings.TrimSpace(in.Name)
	out.MinDeposit = cloneBigInt(in.MinDeposit)
	out.MaxDeposit = cloneBigInt(in.MaxDeposit)
	return out
}

// Clone returns a deep copy of the plan.
func (p *Plan) Clone() *Plan {
	if p == nil {
		return nil
	}
	clone := *p
	clone.MinDeposit = cloneBigInt(p.MinDeposit)
	clone.MaxDeposit = cloneBigInt(p.MaxDeposit)
	return &clone
}

// AcceptsTerm reports whether termDays lies within the plan's bounds.
func (p *Plan) AcceptsTerm(termDays uint64) bool {
	return termDays >= p.MinTermDays && termDays <= p.MaxTermDays
}

// HasPenaltyReceiver reports whether penalties are routed out of the vault.
func (p *Plan) HasPenaltyReceiver() bool {
	return p.PenaltyReceiver != (ethcommon.Address{})
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
