package ledger

import "github.com/Alijeyrad/simorq_billing/internal/billing"

// All of these match billing.ErrValidation.
var (
	ErrNoItems          = billing.NewValidationError("items", "at least one item is required")
	ErrBillHasPayments  = billing.NewValidationError("items", "items can only be added before the first payment")
	ErrVisitNotPatients = billing.NewValidationError("visit_id", "visit does not belong to the patient")
)
