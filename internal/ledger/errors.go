package ledger

import "errors"

// Kind classifies why a call was rejected.
type Kind int

const (
	KindInternal Kind = iota
	KindPrecondition
	KindNotFound
	KindDuplicate
	KindAuthorization
	KindPayment
	KindTemporal
	KindNotCoLocated
)

func (k Kind) String() string {
	switch k {
	case KindPrecondition:
		return "precondition"
	case KindNotFound:
		return "not_found"
	case KindDuplicate:
		return "duplicate"
	case KindAuthorization:
		return "authorization"
	case KindPayment:
		return "payment"
	case KindTemporal:
		return "temporal"
	case KindNotCoLocated:
		return "not_co_located"
	default:
		return "internal"
	}
}

// Error is a rejection raised by a program or by the host.
// Programs declare their errors as package-level *Error values and callers
// compare with errors.Is.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

// NewError creates an error of the given kind.
func NewError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// KindOf returns the kind of the first *Error in err's tree. A failed
// cross-program read is reported as KindNotCoLocated whatever the program
// wrapped it in.
func KindOf(err error) Kind {
	if errors.Is(err, ErrNotCoLocated) {
		return KindNotCoLocated
	}
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	return KindInternal
}

var (
	ErrNotCoLocated      = NewError(KindNotCoLocated, "program is not co-located on this shard")
	ErrUnknownProgram    = NewError(KindNotFound, "unknown program")
	ErrProgramExists     = NewError(KindDuplicate, "program already deployed")
	ErrUnknownEntry      = NewError(KindNotFound, "unknown entry point")
	ErrInsufficientFunds = NewError(KindPayment, "insufficient funds")
	ErrBalanceOverflow   = NewError(KindPayment, "balance overflow")
	ErrCallDepth         = NewError(KindPrecondition, "max call depth exceeded")
	ErrReadOnly          = NewError(KindPrecondition, "state writes are not allowed in a view")
)

// ErrNotDeployer rejects configuration calls from anyone but the deployer.
var ErrNotDeployer = NewError(KindAuthorization, "Endpoint can only be called by owner")
