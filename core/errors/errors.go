package errors

import stderrors "errors"

// Kind classifies a failure so transports can map it to a status without
// inspecting individual sentinels.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindValidation
	KindNotFound
	KindState
	KindUnauthorized
	KindSecurity
	KindResource
	KindPaused
	KindReentrant
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindState:
		return "state"
	case KindUnauthorized:
		return "unauthorized"
	case KindSecurity:
		return "security"
	case KindResource:
		return "resource"
	case KindPaused:
		return "paused"
	case KindReentrant:
		return "reentrant"
	default:
		return "unknown"
	}
}

// Error is a sentinel tagged with a Kind. Values are compared by identity, so
// each call to New yields a distinct error for errors.Is.
type Error struct {
	kind Kind
	msg  string
}

// New declares a sentinel of the supplied kind.
func New(kind Kind, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

func (e *Error) Error() string { return e.msg }

// Kind returns the taxonomy bucket of the sentinel.
func (e *Error) Kind() Kind { return e.kind }

var (
	// ErrUnauthorized is the only authorization failure callers ever see.
	ErrUnauthorized = New(KindUnauthorized, "unauthorized")
	// ErrReentrantCall is returned when a guarded entry point is re-entered
	// before the outer call completes.
	ErrReentrantCall = New(KindReentrant, "reentrant call")
	// ErrZeroAmount rejects zero or negative amounts.
	ErrZeroAmount = New(KindResource, "zero amount")
	// ErrZeroAddress rejects the zero address where a recipient is required.
	ErrZeroAddress = New(KindResource, "zero address")
)

type kinded interface {
	Kind() Kind
}

// KindOf walks the wrap chain and returns the first Kind found.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var k kinded
	if stderrors.As(err, &k) {
		return k.Kind()
	}
	return KindUnknown
}
