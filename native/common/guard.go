package common

import errs "savingsbank/core/errors"

// ErrModulePaused is returned by guarded entry points while the module is
// paused.
var ErrModulePaused = errs.New(errs.KindPaused, "enforced pause")

type PauseView interface {
	IsPaused(module string) bool
}

func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}
