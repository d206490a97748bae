package refund

import "github.com/Alijeyrad/simorq_billing/internal/billing"

// All of these match billing.ErrValidation.
var (
	ErrReasonRequired        = billing.NewValidationError("reason", "required")
	ErrItemsDoNotSum         = billing.NewValidationError("items", "item amounts must add up to the refund amount")
	ErrUnknownBillItem       = billing.NewValidationError("items", "item does not belong to the bill")
	ErrItemQuantity          = billing.NewValidationError("items", "quantity exceeds the refundable quantity of the item")
	ErrItemAmount            = billing.NewValidationError("items", "amount exceeds the refundable amount of the item")
	ErrItemAmountNotPositive = billing.NewValidationError("items", "item amount must be greater than 0")
)
