package common

import (
	"errors"
	"testing"

	errs "savingsbank/core/errors"
)

type pauseMap map[string]bool

func (p pauseMap) IsPaused(module string) bool { return p[module] }

func TestGuard(t *testing.T) {
	if err := Guard(nil, "savings"); err != nil {
		t.Fatalf("nil view must not block: %v", err)
	}
	if err := Guard(pauseMap{"savings": true}, "savings"); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	if errs.KindOf(ErrModulePaused) != errs.KindPaused {
		t.Fatalf("unexpected kind %v", errs.KindOf(ErrModulePaused))
	}
	if err := Guard(pauseMap{"savings": true}, "vault"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestReentrancyGuard(t *testing.T) {
	var guard ReentrancyGuard
	release, err := guard.Enter()
	if err != nil {
		t.Fatalf("enter: %v", err)
	}
	if !guard.Held() {
		t.Fatalf("guard should be held")
	}
	if _, err := guard.Enter(); !errors.Is(err, errs.ErrReentrantCall) {
		t.Fatalf("expected ErrReentrantCall, got %v", err)
	}
	release()
	release, err = guard.Enter()
	if err != nil {
		t.Fatalf("re-enter after release: %v", err)
	}
	release()
}

type fakeJournal struct {
	rev      int
	reverted []int
}

func (f *fakeJournal) Snapshot() int           { f.rev++; return f.rev }
func (f *fakeJournal) RevertToSnapshot(id int) { f.reverted = append(f.reverted, id) }

func TestAtomicRevertsOnFailure(t *testing.T) {
	journal := &fakeJournal{}
	boom := errors.New("boom")
	if err := Atomic(journal, func() error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if len(journal.reverted) != 1 || journal.reverted[0] != 1 {
		t.Fatalf("expected revert to snapshot 1, got %v", journal.reverted)
	}
	if err := Atomic(journal, func() error { return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(journal.reverted) != 1 {
		t.Fatalf("success must not revert")
	}
}
