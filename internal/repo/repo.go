// Package repo defines the persistence contract of the billing core. Every
// mutating operation runs inside Store.Tx scoped to one bill; LockBill is the
// serialization point.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Alijeyrad/simorq_billing/internal/billing"
)

const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// BillFilter narrows ListBills. Zero values mean "any".
type BillFilter struct {
	ClinicID      uuid.UUID
	PatientID     *uuid.UUID
	// PaymentStatus matches the status derived at AsOf, so bills whose due
	// date passed after their last recompute count as overdue.
	PaymentStatus *billing.PaymentStatus
	AsOf          time.Time
	From          *time.Time
	To            *time.Time
	Limit         int
	Offset        int
}

// RefundFilter narrows ListRefunds. Zero values mean "any".
type RefundFilter struct {
	ClinicID uuid.UUID
	BillID   *uuid.UUID
	Status   *billing.RequestStatus
	Limit    int
	Offset   int
}

// NormalizeLimit clamps a page size into [1, MaxLimit].
func NormalizeLimit(n int) int {
	if n <= 0 {
		return DefaultLimit
	}
	if n > MaxLimit {
		return MaxLimit
	}
	return n
}

// Reader is the read side shared by the store and open transactions.
type Reader interface {
	GetBill(ctx context.Context, id uuid.UUID) (*billing.Bill, error)
	ListBills(ctx context.Context, f BillFilter) ([]billing.Bill, error)
	ListItems(ctx context.Context, billID uuid.UUID) ([]billing.BillItem, error)
	ItemsForBills(ctx context.Context, billIDs []uuid.UUID) (map[uuid.UUID][]billing.BillItem, error)

	// ListPaymentRecords returns the bill's ledger in creation order.
	ListPaymentRecords(ctx context.Context, billID uuid.UUID) ([]billing.PaymentRecord, error)
	// PaymentRecordsBetween returns every record of the clinic with
	// from <= paymentDate < to.
	PaymentRecordsBetween(ctx context.Context, clinicID uuid.UUID, from, to time.Time) ([]billing.PaymentRecord, error)
	// BillsDatedBetween returns bills with from <= billDate < to.
	BillsDatedBetween(ctx context.Context, clinicID uuid.UUID, from, to time.Time) ([]billing.Bill, error)

	GetRefundRequest(ctx context.Context, id uuid.UUID) (*billing.RefundRequest, error)
	ListRefundRequests(ctx context.Context, billID uuid.UUID) ([]billing.RefundRequest, error)
	ListRefunds(ctx context.Context, f RefundFilter) ([]billing.RefundRequest, error)
}

// Tx is an open transaction. Payment records have no update or delete path.
type Tx interface {
	Reader

	// LockBill reads the bill and holds its row lock until the transaction ends.
	LockBill(ctx context.Context, id uuid.UUID) (*billing.Bill, error)
	NextBillNumber(ctx context.Context, clinicID uuid.UUID, year int) (int64, error)

	CreateBill(ctx context.Context, b *billing.Bill, items []billing.BillItem) error
	AddItems(ctx context.Context, billID uuid.UUID, items []billing.BillItem) error
	SaveAggregates(ctx context.Context, billID uuid.UUID, a billing.Aggregates, at time.Time) error
	UpdateItemRefunds(ctx context.Context, items []billing.BillItem) error

	AppendPaymentRecord(ctx context.Context, r *billing.PaymentRecord) error

	CreateRefundRequest(ctx context.Context, r *billing.RefundRequest) error
	UpdateRefundRequest(ctx context.Context, r *billing.RefundRequest) error
}

// Store opens transactions. fn's error rolls everything back; a nil return
// commits.
type Store interface {
	Reader
	Tx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Close() error
}
