package savings

import (
	"math"
	"math/big"

	"github.com/holiman/uint256"

	"savingsbank/native/plans"
)

const (
	// SecondsPerDay converts term days into maturity timestamps.
	SecondsPerDay uint64 = 86_400
	daysPerYear   uint64 = 365
)

var interestDenominator = uint256.NewInt(plans.MaxBasisPoints * daysPerYear)

func toUint256(v *big.Int) (*uint256.Int, error) {
	if v == nil {
		return new(uint256.Int), nil
	}
	if v.Sign() < 0 {
		return nil, ErrArithmeticOverflow
	}
	out, overflow := uint256.FromBig(v)
	if overflow {
		return nil, ErrArithmeticOverflow
	}
	return out, nil
}

// ExpectedInterest returns floor(amount * rateBps * termDays / (10000 * 365)).
// Interest is simple and truncated; nothing compounds within a term.
func ExpectedInterest(amount *big.Int, rateBps, termDays uint64) (*big.Int, error) {
	a, err := toUint256(amount)
	if err != nil {
		return nil, err
	}
	num, overflow := new(uint256.Int).MulOverflow(a, uint256.NewInt(rateBps))
	if overflow {
		return nil, ErrArithmeticOverflow
	}
	num, overflow = num.MulOverflow(num, uint256.NewInt(termDays))
	if overflow {
		return nil, ErrArithmeticOverflow
	}
	return num.Div(num, interestDenominator).ToBig(), nil
}

// EarlyWithdrawalPenalty returns floor(principal * penaltyBps / 10000). The
// rate is flat and does not depend on the time left to maturity.
func EarlyWithdrawalPenalty(principal *big.Int, penaltyBps uint64) (*big.Int, error) {
	p, err := toUint256(principal)
	if err != nil {
		return nil, err
	}
	num, overflow := new(uint256.Int).MulOverflow(p, uint256.NewInt(penaltyBps))
	if overflow {
		return nil, ErrArithmeticOverflow
	}
	return num.Div(num, uint256.NewInt(plans.MaxBasisPoints)).ToBig(), nil
}

// MaturityDate returns depositDate + termDays days.
func MaturityDate(depositDate, termDays uint64) (uint64, error) {
	if termDays > (math.MaxUint64-depositDate)/SecondsPerDay {
		return 0, ErrArithmeticOverflow
	}
	return depositDate + termDays*SecondsPerDay, nil
}
