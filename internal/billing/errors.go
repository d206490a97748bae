package billing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/Alijeyrad/simorq_billing/pkg/money"
)

var (
	ErrValidation            = errors.New("validation failed")
	ErrExceedsRefundable     = errors.New("refund amount exceeds refundable balance")
	ErrInvalidTransition     = errors.New("invalid refund status transition")
	ErrOverpaymentNotAllowed = errors.New("payment exceeds outstanding balance")
	ErrConsistencyViolation  = errors.New("bill aggregates are inconsistent")

	ErrBillNotFound    = errors.New("bill not found")
	ErrRefundNotFound  = errors.New("refund request not found")
	ErrPatientNotFound = errors.New("patient not found")
	ErrVisitNotFound   = errors.New("visit not found")
	ErrForbidden       = errors.New("forbidden")
)

// ValidationError rejects malformed input before any write.
type ValidationError struct {
	Field  string
	Reason string
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// ExceedsRefundableError carries the authoritative ceiling so callers can
// correct the amount. A non-positive request is reported the same way and
// also matches ErrValidation.
type ExceedsRefundableError struct {
	Requested money.Amount
	Ceiling   money.Amount
}

func (e *ExceedsRefundableError) Error() string {
	if !e.Requested.IsPositive() {
		return fmt.Sprintf("refund amount must be positive (requested %s, refundable %s)", e.Requested, e.Ceiling)
	}
	return fmt.Sprintf("refund amount %s exceeds refundable balance %s", e.Requested, e.Ceiling)
}

func (e *ExceedsRefundableError) Is(target error) bool {
	if target == ErrExceedsRefundable {
		return true
	}
	return target == ErrValidation && !e.Requested.IsPositive()
}

// InvalidTransitionError is returned by the refund state guard.
type InvalidTransitionError struct {
	From RequestStatus
	To   RequestStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid refund status transition: %s -> %s", e.From, e.To)
}

func (e *InvalidTransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// OverpaymentError is returned when the clinic policy rejects payments above
// the outstanding balance.
type OverpaymentError struct {
	Amount  money.Amount
	Balance money.Amount
}

func (e *OverpaymentError) Error() string {
	return fmt.Sprintf("payment %s exceeds outstanding balance %s", e.Amount, e.Balance)
}

func (e *OverpaymentError) Is(target error) bool { return target == ErrOverpaymentNotAllowed }

// ConsistencyViolationError means a transaction boundary was bypassed
// somewhere. It is never corrected automatically.
type ConsistencyViolationError struct {
	BillID     uuid.UUID
	Violations []string
}

func (e *ConsistencyViolationError) Error() string {
	return fmt.Sprintf("bill %s aggregates are inconsistent: %s", e.BillID, strings.Join(e.Violations, "; "))
}

func (e *ConsistencyViolationError) Is(target error) bool { return target == ErrConsistencyViolation }
