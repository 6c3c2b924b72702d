package service

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/punchamoorthee/bankportal/internal/domain"
)

// Kind classifies why a coordinated operation did not commit.
type Kind int

const (
	KindNone Kind = iota
	// KindConnection: no lease could be obtained; nothing began.
	KindConnection
	// KindBadParam: the request is structurally invalid.
	KindBadParam
	KindLowBalance
	KindForbiddenStatus
	// KindRollback: the rollback itself failed. Stored balances may be
	// inconsistent and need an operator.
	KindRollback
	// KindPerform: the store failed and the rollback succeeded.
	KindPerform
)

var kindNames = [...]string{"", "CONNECTION", "BAD_PARAM", "LOW_BALANCE", "FORBIDDEN_STATUS", "ROLLBACK", "PERFORM"}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "UNKNOWN"
	}
	return kindNames[k]
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// StatusCode is the HTTP-equivalent status for the kind.
func (k Kind) StatusCode() int {
	switch k {
	case KindNone:
		return http.StatusOK
	case KindConnection:
		return http.StatusServiceUnavailable
	case KindBadParam:
		return http.StatusBadRequest
	case KindLowBalance:
		return http.StatusUnprocessableEntity
	case KindForbiddenStatus:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// Outcome separates business declines from system faults.
type Outcome int

const (
	OutcomeCommitted Outcome = iota
	OutcomeDeclined
	OutcomeRejected
	OutcomeFaulted
)

var outcomeNames = [...]string{"committed", "declined", "rejected", "faulted"}

func (o Outcome) String() string {
	if o < 0 || int(o) >= len(outcomeNames) {
		return "unknown"
	}
	return outcomeNames[o]
}

func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

func outcomeOf(k Kind) Outcome {
	switch k {
	case KindNone:
		return OutcomeCommitted
	case KindLowBalance, KindForbiddenStatus:
		return OutcomeDeclined
	case KindBadParam:
		return OutcomeRejected
	default:
		return OutcomeFaulted
	}
}

// State is a step of the coordinator's state machine.
type State int

const (
	StateStarted State = iota
	StateConnected
	StateValidated
	StateApplied
	StateCommitted
	StateRolledBack
	StateFailed
)

var stateNames = [...]string{"STARTED", "CONNECTED", "VALIDATED", "APPLIED", "COMMITTED", "ROLLED_BACK", "FAILED"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "UNKNOWN"
	}
	return stateNames[s]
}

// Result is the outcome of one coordinated operation.
type Result struct {
	Reference uuid.UUID
	Operation string
	Outcome   Outcome
	Kind      Kind
	Status    int
	// State is the terminal state; Reached is the last state before it.
	State      State
	Reached    State
	RolledBack bool
	Err        error
}

func (r Result) Success() bool {
	return r.Outcome == OutcomeCommitted
}

// Retryable reports whether the caller may retry with backoff.
func (r Result) Retryable() bool {
	return r.Kind == KindConnection || r.Kind == KindPerform
}

func (r Result) fail(kind Kind, err error) Result {
	r.Kind = kind
	r.Outcome = outcomeOf(kind)
	r.Status = kind.StatusCode()
	if kind == KindBadParam && errors.Is(err, domain.ErrAccountNotFound) {
		r.Status = http.StatusNotFound
	}
	r.Reached = r.State
	r.State = StateFailed
	r.Err = err
	return r
}

// classify maps a validation error to its kind. Anything unrecognised is a
// store failure.
func classify(err error) Kind {
	switch {
	case errors.Is(err, domain.ErrInsufficientFunds):
		return KindLowBalance
	case errors.Is(err, domain.ErrForbiddenStatus):
		return KindForbiddenStatus
	case errors.Is(err, domain.ErrAccountNotFound),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidAccountID),
		errors.Is(err, domain.ErrSelfTransfer):
		return KindBadParam
	default:
		return KindPerform
	}
}
