package postgres

import (
	"context"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/Alijeyrad/simorq_billing/internal/billing"
	"github.com/Alijeyrad/simorq_billing/internal/repo"
)

type txStore struct {
	querier
}

var _ repo.Tx = (*txStore)(nil)

func (t *txStore) LockBill(ctx context.Context, id uuid.UUID) (*billing.Bill, error) {
	sel := builder.Select(billColumns...).From(entsql.Table(tBills)).
		Where(entsql.EQ("id", id)).
		ForUpdate()
	return t.oneBill(ctx, sel)
}

func (t *txStore) NextBillNumber(ctx context.Context, clinicID uuid.UUID, year int) (int64, error) {
	ins := builder.Insert(tBillSequences).
		Columns("clinic_id", "year", "value").
		Values(clinicID, year, 1).
		OnConflict(
			entsql.ConflictColumns("clinic_id", "year"),
			entsql.ResolveWith(func(u *entsql.UpdateSet) {
				u.Add("value", 1)
			}),
		).
		Returning("value")

	var next int64
	err := t.query(ctx, ins, func(rows *entsql.Rows) error {
		return rows.Scan(&next)
	})
	if err != nil {
		return 0, fmt.Errorf("next bill number: %w", err)
	}
	return next, nil
}

func (t *txStore) CreateBill(ctx context.Context, b *billing.Bill, items []billing.BillItem) error {
	ins := builder.Insert(tBills).
		Columns(billColumns...).
		Values(
			b.ID, b.ClinicID, b.PatientID, b.VisitID, b.BillNumber, b.BillDate, b.DueDate,
			b.PatientName, b.VisitDate, b.Notes, b.CreatedBy,
			b.TotalAmount, b.PaidAmount, b.CollectedAmount, b.AdjustedAmount, b.BalanceAmount,
			b.TotalRefundedAmount, string(b.PaymentStatus), string(b.RefundStatus), b.CreatedAt, b.UpdatedAt,
		)
	if _, err := t.exec(ctx, ins); err != nil {
		return fmt.Errorf("insert bill: %w", err)
	}
	return t.AddItems(ctx, b.ID, items)
}

func (t *txStore) AddItems(ctx context.Context, billID uuid.UUID, items []billing.BillItem) error {
	if len(items) == 0 {
		return nil
	}
	ins := builder.Insert(tBillItems).Columns(itemColumns...)
	for _, it := range items {
		ins.Values(
			it.ID, billID, string(it.ItemType), it.Description, it.Quantity, it.UnitPrice, it.Discount,
			it.Tax, it.TotalPrice, it.RefundedQuantity, it.RefundedAmount, it.CreatedAt,
		)
	}
	if _, err := t.exec(ctx, ins); err != nil {
		return fmt.Errorf("insert bill items: %w", err)
	}
	return nil
}

func (t *txStore) SaveAggregates(ctx context.Context, billID uuid.UUID, a billing.Aggregates, at time.Time) error {
	upd := builder.Update(tBills).
		Set("total_amount", a.TotalAmount).
		Set("paid_amount", a.PaidAmount).
		Set("collected_amount", a.CollectedAmount).
		Set("adjusted_amount", a.AdjustedAmount).
		Set("balance_amount", a.BalanceAmount).
		Set("total_refunded_amount", a.TotalRefundedAmount).
		Set("payment_status", string(a.PaymentStatus)).
		Set("refund_status", string(a.RefundStatus)).
		Set("updated_at", at).
		Where(entsql.EQ("id", billID))

	n, err := t.exec(ctx, upd)
	if err != nil {
		return fmt.Errorf("save aggregates: %w", err)
	}
	if n == 0 {
		return billing.ErrBillNotFound
	}
	return nil
}

func (t *txStore) UpdateItemRefunds(ctx context.Context, items []billing.BillItem) error {
	for _, it := range items {
		upd := builder.Update(tBillItems).
			Set("refunded_quantity", it.RefundedQuantity).
			Set("refunded_amount", it.RefundedAmount).
			Where(entsql.EQ("id", it.ID))
		n, err := t.exec(ctx, upd)
		if err != nil {
			return fmt.Errorf("update item refunds: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("bill item %s not found", it.ID)
		}
	}
	return nil
}

func (t *txStore) AppendPaymentRecord(ctx context.Context, r *billing.PaymentRecord) error {
	ins := builder.Insert(tPaymentRecords).
		Columns(recordColumns...).
		Values(
			r.ID, r.BillID, r.ClinicID, r.PaymentDate, string(r.PaymentMethod), r.Amount, string(r.RecordType),
			r.RefundRequestID, r.ReceivedBy, r.Reference, r.Reason, r.Notes, r.CreatedAt,
		)
	if _, err := t.exec(ctx, ins); err != nil {
		return fmt.Errorf("insert payment record: %w", err)
	}
	return nil
}

func (t *txStore) CreateRefundRequest(ctx context.Context, r *billing.RefundRequest) error {
	ins := builder.Insert(tRefundRequests).
		Columns(requestColumns...).
		Values(
			r.ID, r.BillID, r.ClinicID, r.PatientID, string(r.SourceType), r.SourceReference,
			r.TotalAmount, string(r.RefundMethod), r.Reason, string(r.Status), r.Notes,
			r.InitiatedBy, r.ApprovedBy, r.ApprovedAt, r.RejectedBy, r.RejectedAt, r.RejectionReason,
			r.CancelledBy, r.CancelledAt, r.PaidBy, r.PaidAt, r.PaymentRecordID,
			r.CreatedAt, r.UpdatedAt,
		)
	if _, err := t.exec(ctx, ins); err != nil {
		return fmt.Errorf("insert refund request: %w", err)
	}

	if len(r.Items) == 0 {
		return nil
	}
	items := builder.Insert(tRefundItems).Columns("id", "refund_request_id", "bill_item_id", "quantity", "amount")
	for _, it := range r.Items {
		items.Values(it.ID, r.ID, it.BillItemID, it.Quantity, it.Amount)
	}
	if _, err := t.exec(ctx, items); err != nil {
		return fmt.Errorf("insert refund items: %w", err)
	}
	return nil
}

func (t *txStore) UpdateRefundRequest(ctx context.Context, r *billing.RefundRequest) error {
	upd := builder.Update(tRefundRequests).
		Set("status", string(r.Status)).
		Set("refund_method", string(r.RefundMethod)).
		Set("notes", r.Notes).
		Set("approved_by", r.ApprovedBy).
		Set("approved_at", r.ApprovedAt).
		Set("rejected_by", r.RejectedBy).
		Set("rejected_at", r.RejectedAt).
		Set("rejection_reason", r.RejectionReason).
		Set("cancelled_by", r.CancelledBy).
		Set("cancelled_at", r.CancelledAt).
		Set("paid_by", r.PaidBy).
		Set("paid_at", r.PaidAt).
		Set("payment_record_id", r.PaymentRecordID).
		Set("updated_at", r.UpdatedAt).
		Where(entsql.EQ("id", r.ID))

	n, err := t.exec(ctx, upd)
	if err != nil {
		return fmt.Errorf("update refund request: %w", err)
	}
	if n == 0 {
		return billing.ErrRefundNotFound
	}
	return nil
}
