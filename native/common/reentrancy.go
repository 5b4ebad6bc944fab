package common

import (
	"sync/atomic"

	errs "savingsbank/core/errors"
)

// ReentrancyGuard rejects nested entry into a guarded section. The zero value
// is ready to use.
type ReentrancyGuard struct {
	entered atomic.Bool
}

// Enter marks the guard as held. The returned release func must be called
// exactly once when the section completes.
func (g *ReentrancyGuard) Enter() (func(), error) {
	if !g.entered.CompareAndSwap(false, true) {
		return nil, errs.ErrReentrantCall
	}
	return func() { g.entered.Store(false) }, nil
}

// Held reports whether a guarded section is in progress.
func (g *ReentrancyGuard) Held() bool {
	return g.entered.Load()
}
