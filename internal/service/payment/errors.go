package payment

import "github.com/Alijeyrad/simorq_billing/internal/billing"

// All of these match billing.ErrValidation.
var (
	ErrInvalidAmount     = billing.NewValidationError("amount", "must be greater than 0")
	ErrZeroAdjustment    = billing.NewValidationError("amount", "adjustment must not be zero")
	ErrReasonRequired    = billing.NewValidationError("reason", "required")
	ErrPaidBelowZero     = billing.NewValidationError("amount", "adjustment would make the paid amount negative")
	ErrPaidBelowRefunded = billing.NewValidationError("amount", "adjustment would make the paid amount lower than the refunded amount")
)
