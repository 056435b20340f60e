package shared

import (
	"errors"
	"fmt"
)

// Kind identifies one engine error. The bilingual catalog in i18n.go is keyed
// by Kind so validators never build message strings inline.
type Kind string

const (
	KindInvalidAmount             Kind = "invalid_amount"
	KindInvalidInstallmentCount   Kind = "invalid_installment_count"
	KindInvalidFrequency          Kind = "invalid_frequency"
	KindInvalidStartDate          Kind = "invalid_start_date"
	KindAmountMismatch            Kind = "amount_mismatch"
	KindTermsNotAccepted          Kind = "terms_not_accepted"
	KindInvoiceNotFound           Kind = "invoice_not_found"
	KindAlreadyPaid               Kind = "invoice_already_paid"
	KindNoOutstandingBalance      Kind = "no_outstanding_balance"
	KindPlanAlreadyExists         Kind = "plan_already_exists"
	KindPlanNotFound              Kind = "plan_not_found"
	KindPlanNotActive             Kind = "plan_not_active"
	KindInstallmentNotFound       Kind = "installment_not_found"
	KindInstallmentAlreadyPaid    Kind = "installment_already_paid"
	KindInstallmentCreationFailed Kind = "installment_creation_failed"
	KindStorageFailure            Kind = "storage_failure"
	KindChargeFailure             Kind = "charge_failure"
)

// Class groups kinds for HTTP mapping and retry policy.
type Class int

const (
	ClassValidation Class = iota
	ClassConflict
	ClassNotFound
	ClassDownstream
)

// ClassOf reports the taxonomy class of a kind.
func ClassOf(kind Kind) Class {
	switch kind {
	case KindInvalidAmount, KindInvalidInstallmentCount, KindInvalidFrequency,
		KindInvalidStartDate, KindAmountMismatch, KindTermsNotAccepted:
		return ClassValidation
	case KindAlreadyPaid, KindNoOutstandingBalance, KindPlanAlreadyExists,
		KindPlanNotActive, KindInstallmentAlreadyPaid:
		return ClassConflict
	case KindInvoiceNotFound, KindPlanNotFound, KindInstallmentNotFound:
		return ClassNotFound
	default:
		return ClassDownstream
	}
}

// Error is the engine error: a kind, its bilingual messages and an optional
// wrapped cause.
type Error struct {
	Kind      Kind
	MessageAR string
	MessageEN string
	cause     error
}

// NewError builds an Error with catalog messages for the kind.
func NewError(kind Kind) *Error {
	return &Error{
		Kind:      kind,
		MessageAR: Message(kind, Arabic),
		MessageEN: Message(kind, English),
	}
}

// WrapError attaches a downstream cause to a catalog error.
func WrapError(kind Kind, cause error) *Error {
	e := NewError(kind)
	e.cause = cause
	return e
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.MessageEN, e.cause)
	}
	return e.MessageEN
}

// Unwrap exposes the cause to errors.Is/As.
func (e *Error) Unwrap() error {
	return e.cause
}

// IsKind reports whether err is an engine Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// AsError extracts an engine Error when present.
func AsError(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
