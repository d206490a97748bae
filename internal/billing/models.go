// Package billing holds the bill/payment/refund model, the aggregate
// derivation rules and the refund request state machine. It performs no I/O.
package billing

import (
	"time"

	"github.com/google/uuid"

	"github.com/Alijeyrad/simorq_billing/pkg/money"
)

// Bill is a patient-facing invoice. The aggregate fields are caches of
// ComputeAggregates over the bill's records and are only written by Recompute.
type Bill struct {
	ID         uuid.UUID  `json:"id"`
	ClinicID   uuid.UUID  `json:"clinic_id"`
	PatientID  uuid.UUID  `json:"patient_id"`
	VisitID    *uuid.UUID `json:"visit_id,omitempty"`
	BillNumber string     `json:"bill_number"`
	BillDate   time.Time  `json:"bill_date"`
	DueDate    *time.Time `json:"due_date,omitempty"`

	PatientName string     `json:"patient_name,omitempty"`
	VisitDate   *time.Time `json:"visit_date,omitempty"`
	Notes       string     `json:"notes,omitempty"`
	CreatedBy   uuid.UUID  `json:"created_by"`

	Aggregates

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Aggregates are the derived numeric and status fields of a bill.
type Aggregates struct {
	TotalAmount         money.Amount  `json:"total_amount"`
	PaidAmount          money.Amount  `json:"paid_amount"`
	CollectedAmount     money.Amount  `json:"collected_amount"`
	AdjustedAmount      money.Amount  `json:"adjusted_amount"`
	BalanceAmount       money.Amount  `json:"balance_amount"`
	TotalRefundedAmount money.Amount  `json:"total_refunded_amount"`
	PaymentStatus       PaymentStatus `json:"payment_status"`
	RefundStatus        RefundStatus  `json:"refund_status"`
}

// BillItem is one billed line. TotalPrice is fixed at creation.
type BillItem struct {
	ID               uuid.UUID    `json:"id"`
	BillID           uuid.UUID    `json:"bill_id"`
	ItemType         ItemType     `json:"item_type"`
	Description      string       `json:"description"`
	Quantity         int64        `json:"quantity"`
	UnitPrice        money.Amount `json:"unit_price"`
	Discount         money.Amount `json:"discount"`
	Tax              money.Amount `json:"tax"`
	TotalPrice       money.Amount `json:"total_price"`
	RefundedQuantity int64        `json:"refunded_quantity"`
	RefundedAmount   money.Amount `json:"refunded_amount"`
	CreatedAt        time.Time    `json:"created_at"`
}

// RemainingAmount is what can still be refunded against this line.
func (i BillItem) RemainingAmount() money.Amount {
	return i.TotalPrice.Sub(i.RefundedAmount)
}

// RemainingQuantity is how many units can still be refunded.
func (i BillItem) RemainingQuantity() int64 {
	return i.Quantity - i.RefundedQuantity
}

// PaymentRecord is an immutable ledger entry. Refund records carry a negative
// amount; adjustments are signed.
type PaymentRecord struct {
	ID              uuid.UUID     `json:"id"`
	BillID          uuid.UUID     `json:"bill_id"`
	ClinicID        uuid.UUID     `json:"clinic_id"`
	PaymentDate     time.Time     `json:"payment_date"`
	PaymentMethod   PaymentMethod `json:"payment_method,omitempty"`
	Amount          money.Amount  `json:"amount"`
	RecordType      RecordType    `json:"record_type"`
	RefundRequestID *uuid.UUID    `json:"refund_request_id,omitempty"`
	ReceivedBy      uuid.UUID     `json:"received_by"`
	Reference       string        `json:"reference,omitempty"`
	Reason          string        `json:"reason,omitempty"`
	Notes           string        `json:"notes,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
}

// RefundRequest tracks a refund through approval to payout.
type RefundRequest struct {
	ID              uuid.UUID     `json:"id"`
	BillID          uuid.UUID     `json:"bill_id"`
	ClinicID        uuid.UUID     `json:"clinic_id"`
	PatientID       uuid.UUID     `json:"patient_id"`
	SourceType      RefundSource  `json:"source_type"`
	SourceReference string        `json:"source_reference,omitempty"`
	TotalAmount     money.Amount  `json:"total_amount"`
	RefundMethod    PaymentMethod `json:"refund_method"`
	Reason          string        `json:"reason"`
	Status          RequestStatus `json:"status"`
	Notes           string        `json:"notes,omitempty"`

	InitiatedBy     uuid.UUID  `json:"initiated_by"`
	ApprovedBy      *uuid.UUID `json:"approved_by,omitempty"`
	ApprovedAt      *time.Time `json:"approved_at,omitempty"`
	RejectedBy      *uuid.UUID `json:"rejected_by,omitempty"`
	RejectedAt      *time.Time `json:"rejected_at,omitempty"`
	RejectionReason string     `json:"rejection_reason,omitempty"`
	CancelledBy     *uuid.UUID `json:"cancelled_by,omitempty"`
	CancelledAt     *time.Time `json:"cancelled_at,omitempty"`
	PaidBy          *uuid.UUID `json:"paid_by,omitempty"`
	PaidAt          *time.Time `json:"paid_at,omitempty"`
	PaymentRecordID *uuid.UUID `json:"payment_record_id,omitempty"`

	Items []RefundItem `json:"items,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RefundItem ties part of a refund to a bill line.
type RefundItem struct {
	ID              uuid.UUID    `json:"id"`
	RefundRequestID uuid.UUID    `json:"refund_request_id"`
	BillItemID      uuid.UUID    `json:"bill_item_id"`
	Quantity        int64        `json:"quantity"`
	Amount          money.Amount `json:"amount"`
}
