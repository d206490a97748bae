package billing

import "fmt"

// PaymentMethod is how money moved between patient and clinic.
type PaymentMethod string

const (
	MethodCash       PaymentMethod = "cash"
	MethodCard       PaymentMethod = "card"
	MethodUPI        PaymentMethod = "upi"
	MethodCheque     PaymentMethod = "cheque"
	MethodNetBanking PaymentMethod = "net_banking"
	MethodWallet     PaymentMethod = "wallet"
)

var PaymentMethods = []PaymentMethod{
	MethodCash, MethodCard, MethodUPI, MethodCheque, MethodNetBanking, MethodWallet,
}

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCash, MethodCard, MethodUPI, MethodCheque, MethodNetBanking, MethodWallet:
		return true
	}
	return false
}

func ParsePaymentMethod(s string) (PaymentMethod, error) {
	m := PaymentMethod(s)
	if !m.Valid() {
		return "", NewValidationError("payment_method", fmt.Sprintf("unknown payment method %q", s))
	}
	return m, nil
}

// RecordType classifies a ledger entry.
type RecordType string

const (
	RecordPayment    RecordType = "payment"
	RecordRefund     RecordType = "refund"
	RecordAdjustment RecordType = "adjustment"
)

func (t RecordType) Valid() bool {
	switch t {
	case RecordPayment, RecordRefund, RecordAdjustment:
		return true
	}
	return false
}

// PaymentStatus is derived from a bill's aggregates, never set directly.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPartial PaymentStatus = "partial"
	PaymentPaid    PaymentStatus = "paid"
	PaymentOverdue PaymentStatus = "overdue"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentPartial, PaymentPaid, PaymentOverdue:
		return true
	}
	return false
}

func ParsePaymentStatus(s string) (PaymentStatus, error) {
	ps := PaymentStatus(s)
	if !ps.Valid() {
		return "", NewValidationError("payment_status", fmt.Sprintf("unknown payment status %q", s))
	}
	return ps, nil
}

// RefundStatus is the bill-level refund summary derived from its requests.
type RefundStatus string

const (
	RefundNotRequested RefundStatus = "not_requested"
	RefundPending      RefundStatus = "pending"
	RefundPartial      RefundStatus = "partial"
	RefundRefunded     RefundStatus = "refunded"
)

func (s RefundStatus) Valid() bool {
	switch s {
	case RefundNotRequested, RefundPending, RefundPartial, RefundRefunded:
		return true
	}
	return false
}

// RequestStatus is the state of a single RefundRequest.
type RequestStatus string

const (
	RequestDraft           RequestStatus = "draft"
	RequestPendingApproval RequestStatus = "pending_approval"
	RequestApproved        RequestStatus = "approved"
	RequestRejected        RequestStatus = "rejected"
	RequestPaid            RequestStatus = "paid"
	RequestCancelled       RequestStatus = "cancelled"
)

var RequestStatuses = []RequestStatus{
	RequestDraft, RequestPendingApproval, RequestApproved,
	RequestRejected, RequestPaid, RequestCancelled,
}

func (s RequestStatus) Valid() bool {
	switch s {
	case RequestDraft, RequestPendingApproval, RequestApproved, RequestRejected, RequestPaid, RequestCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition is legal from s.
func (s RequestStatus) Terminal() bool {
	return s == RequestPaid || s == RequestRejected || s == RequestCancelled
}

// Open reports whether the request still awaits a decision or payout.
func (s RequestStatus) Open() bool {
	return s == RequestDraft || s == RequestPendingApproval || s == RequestApproved
}

func ParseRequestStatus(s string) (RequestStatus, error) {
	rs := RequestStatus(s)
	if !rs.Valid() {
		return "", NewValidationError("status", fmt.Sprintf("unknown refund request status %q", s))
	}
	return rs, nil
}

// ItemType buckets bill items for reporting.
type ItemType string

const (
	ItemConsultation ItemType = "consultation"
	ItemProcedure    ItemType = "procedure"
	ItemMedicine     ItemType = "medicine"
	ItemTest         ItemType = "test"
	ItemOther        ItemType = "other"
)

var ItemTypes = []ItemType{ItemConsultation, ItemProcedure, ItemMedicine, ItemTest, ItemOther}

func (t ItemType) Valid() bool {
	switch t {
	case ItemConsultation, ItemProcedure, ItemMedicine, ItemTest, ItemOther:
		return true
	}
	return false
}

// RefundSource says what a refund is paying back.
type RefundSource string

const (
	SourceBill             RefundSource = "bill"
	SourcePharmacyDispense RefundSource = "pharmacy_dispense"
)

func (s RefundSource) Valid() bool {
	return s == SourceBill || s == SourcePharmacyDispense
}
