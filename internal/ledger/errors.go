package ledger

import (
	"errors"
	"fmt"
)

// ErrorKind classifies ledger failures for the command layer.
type ErrorKind string

const (
	// KindNotFound reports an absent session, diner, line item or payment.
	KindNotFound ErrorKind = "not_found"
	// KindInvalidArgument reports input that violates a value constraint.
	KindInvalidArgument ErrorKind = "invalid_argument"
	// KindConflict reports a request that is valid but not allowed in the current state.
	KindConflict ErrorKind = "conflict"
	// KindUnauthorized reports a participant acting outside its role or identity.
	KindUnauthorized ErrorKind = "unauthorized"
)

var (
	ErrSessionNotFound      = errors.New("ledger: session not found")
	ErrDinerNotFound        = errors.New("ledger: diner not found")
	ErrLineItemNotFound     = errors.New("ledger: line item not found")
	ErrGroupNotFound        = errors.New("ledger: distribution group not found")
	ErrInvalidArgument      = errors.New("ledger: invalid argument")
	ErrDinerMerged          = errors.New("ledger: diner already merged")
	ErrDinerOutsideSession  = errors.New("ledger: diner does not belong to session")
	ErrSelfMerge            = errors.New("ledger: cannot merge a diner into itself")
	ErrDuplicatePayment     = errors.New("ledger: payment already registered for diner")
	ErrPaymentsRecorded     = errors.New("ledger: payments already recorded")
	ErrDinerPaid            = errors.New("ledger: diner already paid")
	ErrBillClosed           = errors.New("ledger: bill total already set")
	ErrNoDinersToDistribute = errors.New("ledger: no diners to distribute difference")
	ErrHostItem             = errors.New("ledger: line item was added by the host")
	ErrNotOwner             = errors.New("ledger: line item not owned by diner")
	ErrReadOnly             = errors.New("ledger: mutation inside read-only view")
	ErrHostOnly             = errors.New("ledger: operation reserved for the host")
	ErrWrongSession         = errors.New("ledger: participant belongs to another session")
	ErrActingForOther       = errors.New("ledger: diners may only act for themselves")
)

// Error carries the failure kind plus a stable "operation.reason" code.
type Error struct {
	Kind   ErrorKind
	Op     string
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Code()
	}
	return fmt.Sprintf("%s: %v", e.Code(), e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Code returns the machine readable error code.
func (e *Error) Code() string {
	return fmt.Sprintf("%s.%s", e.Op, e.Reason)
}

func newError(kind ErrorKind, op, reason string, cause error) error {
	return &Error{Kind: kind, Op: op, Reason: reason, Err: cause}
}

func notFound(op, reason string, cause error) error {
	return newError(KindNotFound, op, reason, cause)
}

func invalid(op, reason string, format string, args ...any) error {
	return newError(KindInvalidArgument, op, reason, fmt.Errorf("%w: "+format, append([]any{ErrInvalidArgument}, args...)...))
}

func conflict(op, reason string, cause error) error {
	return newError(KindConflict, op, reason, cause)
}

// KindOf extracts the ErrorKind of err, or "" when err is not a ledger error.
func KindOf(err error) ErrorKind {
	var ledgerErr *Error
	if errors.As(err, &ledgerErr) {
		return ledgerErr.Kind
	}
	return ""
}

// Conflictf builds a conflict error for gates enforced above the store.
func Conflictf(op, reason string, cause error) error {
	return conflict(op, reason, cause)
}

// NotFoundf builds a not-found error for lookups performed above the store.
func NotFoundf(op, reason string, cause error) error {
	return notFound(op, reason, cause)
}

// Invalidf builds an invalid-argument error for validation performed above the store.
func Invalidf(op, reason string, format string, args ...any) error {
	return invalid(op, reason, format, args...)
}

// Unauthorizedf builds an ownership error for checks performed above the store.
func Unauthorizedf(op, reason string, cause error) error {
	return newError(KindUnauthorized, op, reason, cause)
}
