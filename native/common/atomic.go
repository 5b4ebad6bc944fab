package common

// Journal is the snapshot surface of the state manager.
type Journal interface {
	Snapshot() int
	RevertToSnapshot(id int)
}

// Atomic runs fn and rolls every state write it made back when it fails.
// A nil journal runs fn without rollback.
func Atomic(journal Journal, fn func() error) error {
	if journal == nil {
		return fn()
	}
	snap := journal.Snapshot()
	if err := fn(); err != nil {
		journal.RevertToSnapshot(snap)
		return err
	}
	return nil
}
