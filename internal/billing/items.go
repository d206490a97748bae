package billing

import (
	"strings"

	"github.com/Alijeyrad/simorq_billing/pkg/money"
)

// ItemInput is a bill line as submitted by a caller.
type ItemInput struct {
	ItemType    ItemType     `json:"item_type"`
	Description string       `json:"description"`
	Quantity    int64        `json:"quantity"`
	UnitPrice   money.Amount `json:"unit_price"`
	Discount    money.Amount `json:"discount"`
	Tax         money.Amount `json:"tax"`
}

// LineTotal is quantity x unitPrice - discount + tax.
func (in ItemInput) LineTotal() money.Amount {
	return in.UnitPrice.MulInt(in.Quantity).Sub(in.Discount).Add(in.Tax)
}

// Validate checks a single line. field prefixes the reported field name.
func (in ItemInput) Validate(field string) error {
	if !in.ItemType.Valid() {
		return NewValidationError(field+".item_type", "unknown item type")
	}
	if strings.TrimSpace(in.Description) == "" {
		return NewValidationError(field+".description", "required")
	}
	if in.Quantity <= 0 {
		return NewValidationError(field+".quantity", "must be greater than 0")
	}
	if !in.UnitPrice.IsPositive() {
		return NewValidationError(field+".unit_price", "must be greater than 0")
	}
	if in.Discount.IsNegative() {
		return NewValidationError(field+".discount", "must not be negative")
	}
	if in.Tax.IsNegative() {
		return NewValidationError(field+".tax", "must not be negative")
	}
	if in.Discount.GreaterThan(in.UnitPrice.MulInt(in.Quantity)) {
		return NewValidationError(field+".discount", "exceeds quantity x unit price")
	}
	return nil
}
