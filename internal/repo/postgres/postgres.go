// Package postgres implements repo.Store on PostgreSQL through ent's SQL
// dialect builder. Bill rows are locked with SELECT ... FOR UPDATE.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/Alijeyrad/simorq_billing/internal/billing"
	"github.com/Alijeyrad/simorq_billing/internal/repo"
)

var builder = entsql.Dialect(dialect.Postgres)

// Store implements repo.Store.
type Store struct {
	querier
	drv dialect.Driver
}

var _ repo.Store = (*Store)(nil)

// New wraps an ent SQL driver.
func New(drv dialect.Driver) *Store {
	return &Store{querier: querier{drv}, drv: drv}
}

// Open wraps an already opened *sql.DB using the postgres dialect.
func Open(db *sql.DB) *Store {
	return New(entsql.OpenDB(dialect.Postgres, db))
}

// Driver exposes the underlying driver for migrations.
func (s *Store) Driver() dialect.Driver { return s.drv }

func (s *Store) Close() error { return s.drv.Close() }

func (s *Store) Tx(ctx context.Context, fn func(ctx context.Context, tx repo.Tx) error) error {
	tx, err := s.drv.Tx(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if v := recover(); v != nil {
			_ = tx.Rollback()
			panic(v)
		}
	}()
	if err := fn(ctx, &txStore{querier{tx}}); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			err = fmt.Errorf("%w: rolling back transaction: %v", err, rerr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// querier holds every statement; it runs against either the pool or a tx.
type querier struct {
	q dialect.ExecQuerier
}

func (q querier) query(ctx context.Context, b entsql.Querier, each func(*entsql.Rows) error) error {
	query, args := b.Query()
	rows := &entsql.Rows{}
	if err := q.q.Query(ctx, query, args, rows); err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if err := each(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (q querier) exec(ctx context.Context, b entsql.Querier) (int64, error) {
	query, args := b.Query()
	var res sql.Result
	if err := q.q.Exec(ctx, query, args, &res); err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ---------------------------------------------------------------------------
// bills
// ---------------------------------------------------------------------------

var billColumns = []string{
	"id", "clinic_id", "patient_id", "visit_id", "bill_number", "bill_date", "due_date",
	"patient_name", "visit_date", "notes", "created_by",
	"total_amount", "paid_amount", "collected_amount", "adjusted_amount", "balance_amount",
	"total_refunded_amount", "payment_status", "refund_status", "created_at", "updated_at",
}

func scanBill(rows *entsql.Rows) (billing.Bill, error) {
	var b billing.Bill
	err := rows.Scan(
		&b.ID, &b.ClinicID, &b.PatientID, &b.VisitID, &b.BillNumber, &b.BillDate, &b.DueDate,
		&b.PatientName, &b.VisitDate, &b.Notes, &b.CreatedBy,
		&b.TotalAmount, &b.PaidAmount, &b.CollectedAmount, &b.AdjustedAmount, &b.BalanceAmount,
		&b.TotalRefundedAmount, &b.PaymentStatus, &b.RefundStatus, &b.CreatedAt, &b.UpdatedAt,
	)
	return b, err
}

func (q querier) bills(ctx context.Context, sel *entsql.Selector) ([]billing.Bill, error) {
	var out []billing.Bill
	err := q.query(ctx, sel, func(rows *entsql.Rows) error {
		b, err := scanBill(rows)
		if err != nil {
			return err
		}
		out = append(out, b)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("query bills: %w", err)
	}
	return out, nil
}

func (q querier) oneBill(ctx context.Context, sel *entsql.Selector) (*billing.Bill, error) {
	bills, err := q.bills(ctx, sel)
	if err != nil {
		return nil, err
	}
	if len(bills) == 0 {
		return nil, billing.ErrBillNotFound
	}
	return &bills[0], nil
}

func (q querier) GetBill(ctx context.Context, id uuid.UUID) (*billing.Bill, error) {
	sel := builder.Select(billColumns...).From(entsql.Table(tBills)).Where(entsql.EQ("id", id))
	return q.oneBill(ctx, sel)
}

func (q querier) ListBills(ctx context.Context, f repo.BillFilter) ([]billing.Bill, error) {
	var preds []*entsql.Predicate
	if f.ClinicID != uuid.Nil {
		preds = append(preds, entsql.EQ("clinic_id", f.ClinicID))
	}
	if f.PatientID != nil {
		preds = append(preds, entsql.EQ("patient_id", *f.PatientID))
	}
	if f.PaymentStatus != nil {
		asOf := f.AsOf
		if asOf.IsZero() {
			asOf = time.Now()
		}
		preds = append(preds, paymentStatusPredicate(*f.PaymentStatus, asOf))
	}
	if f.From != nil {
		preds = append(preds, entsql.GTE("bill_date", *f.From))
	}
	if f.To != nil {
		preds = append(preds, entsql.LT("bill_date", *f.To))
	}

	sel := builder.Select(billColumns...).From(entsql.Table(tBills)).
		OrderBy(entsql.Desc("bill_date"), entsql.Desc("created_at")).
		Limit(repo.NormalizeLimit(f.Limit))
	if len(preds) > 0 {
		sel.Where(entsql.And(preds...))
	}
	if f.Offset > 0 {
		sel.Offset(f.Offset)
	}
	return q.bills(ctx, sel)
}

// paymentStatusPredicate mirrors billing.DerivePaymentStatus on the stored
// amounts instead of the cached payment_status column.
func paymentStatusPredicate(st billing.PaymentStatus, asOf time.Time) *entsql.Predicate {
	owing := entsql.GT("balance_amount", 0)
	notDue := entsql.Or(entsql.IsNull("due_date"), entsql.GTE("due_date", asOf))
	switch st {
	case billing.PaymentPaid:
		return entsql.LTE("balance_amount", 0)
	case billing.PaymentOverdue:
		return entsql.And(owing, entsql.NotNull("due_date"), entsql.LT("due_date", asOf))
	case billing.PaymentPending:
		return entsql.And(owing, notDue, entsql.EQ("paid_amount", 0))
	case billing.PaymentPartial:
		return entsql.And(owing, notDue, entsql.NEQ("paid_amount", 0))
	default:
		return entsql.EQ("payment_status", string(st))
	}
}

func (q querier) BillsDatedBetween(ctx context.Context, clinicID uuid.UUID, from, to time.Time) ([]billing.Bill, error) {
	sel := builder.Select(billColumns...).From(entsql.Table(tBills)).
		Where(entsql.And(
			entsql.EQ("clinic_id", clinicID),
			entsql.GTE("bill_date", from),
			entsql.LT("bill_date", to),
		)).
		OrderBy("bill_date")
	return q.bills(ctx, sel)
}

// ---------------------------------------------------------------------------
// items
// ---------------------------------------------------------------------------

var itemColumns = []string{
	"id", "bill_id", "item_type", "description", "quantity", "unit_price", "discount",
	"tax", "total_price", "refunded_quantity", "refunded_amount", "created_at",
}

func (q querier) items(ctx context.Context, pred *entsql.Predicate) ([]billing.BillItem, error) {
	sel := builder.Select(itemColumns...).From(entsql.Table(tBillItems)).
		Where(pred).
		OrderBy("created_at", "id")

	var out []billing.BillItem
	err := q.query(ctx, sel, func(rows *entsql.Rows) error {
		var it billing.BillItem
		if err := rows.Scan(
			&it.ID, &it.BillID, &it.ItemType, &it.Description, &it.Quantity, &it.UnitPrice,
			&it.Discount, &it.Tax, &it.TotalPrice, &it.RefundedQuantity, &it.RefundedAmount, &it.CreatedAt,
		); err != nil {
			return err
		}
		out = append(out, it)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("query bill items: %w", err)
	}
	return out, nil
}

func (q querier) ListItems(ctx context.Context, billID uuid.UUID) ([]billing.BillItem, error) {
	return q.items(ctx, entsql.EQ("bill_id", billID))
}

func (q querier) ItemsForBills(ctx context.Context, billIDs []uuid.UUID) (map[uuid.UUID][]billing.BillItem, error) {
	out := make(map[uuid.UUID][]billing.BillItem, len(billIDs))
	if len(billIDs) == 0 {
		return out, nil
	}
	items, err := q.items(ctx, entsql.In("bill_id", anySlice(billIDs)...))
	if err != nil {
		return nil, err
	}
	for _, it := range items {
		out[it.BillID] = append(out[it.BillID], it)
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// payment records
// ---------------------------------------------------------------------------

var recordColumns = []string{
	"id", "bill_id", "clinic_id", "payment_date", "payment_method", "amount", "record_type",
	"refund_request_id", "received_by", "reference", "reason", "notes", "created_at",
}

func (q querier) records(ctx context.Context, sel *entsql.Selector) ([]billing.PaymentRecord, error) {
	var out []billing.PaymentRecord
	err := q.query(ctx, sel, func(rows *entsql.Rows) error {
		var r billing.PaymentRecord
		if err := rows.Scan(
			&r.ID, &r.BillID, &r.ClinicID, &r.PaymentDate, &r.PaymentMethod, &r.Amount, &r.RecordType,
			&r.RefundRequestID, &r.ReceivedBy, &r.Reference, &r.Reason, &r.Notes, &r.CreatedAt,
		); err != nil {
			return err
		}
		out = append(out, r)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("query payment records: %w", err)
	}
	return out, nil
}

func (q querier) ListPaymentRecords(ctx context.Context, billID uuid.UUID) ([]billing.PaymentRecord, error) {
	sel := builder.Select(recordColumns...).From(entsql.Table(tPaymentRecords)).
		Where(entsql.EQ("bill_id", billID)).
		OrderBy("created_at", "id")
	return q.records(ctx, sel)
}

func (q querier) PaymentRecordsBetween(ctx context.Context, clinicID uuid.UUID, from, to time.Time) ([]billing.PaymentRecord, error) {
	sel := builder.Select(recordColumns...).From(entsql.Table(tPaymentRecords)).
		Where(entsql.And(
			entsql.EQ("clinic_id", clinicID),
			entsql.GTE("payment_date", from),
			entsql.LT("payment_date", to),
		)).
		OrderBy("payment_date", "id")
	return q.records(ctx, sel)
}

// ---------------------------------------------------------------------------
// refund requests
// ---------------------------------------------------------------------------

var requestColumns = []string{
	"id", "bill_id", "clinic_id", "patient_id", "source_type", "source_reference",
	"total_amount", "refund_method", "reason", "status", "notes",
	"initiated_by", "approved_by", "approved_at", "rejected_by", "rejected_at", "rejection_reason",
	"cancelled_by", "cancelled_at", "paid_by", "paid_at", "payment_record_id",
	"created_at", "updated_at",
}

func (q querier) requests(ctx context.Context, sel *entsql.Selector) ([]billing.RefundRequest, error) {
	var out []billing.RefundRequest
	err := q.query(ctx, sel, func(rows *entsql.Rows) error {
		var r billing.RefundRequest
		if err := rows.Scan(
			&r.ID, &r.BillID, &r.ClinicID, &r.PatientID, &r.SourceType, &r.SourceReference,
			&r.TotalAmount, &r.RefundMethod, &r.Reason, &r.Status, &r.Notes,
			&r.InitiatedBy, &r.ApprovedBy, &r.ApprovedAt, &r.RejectedBy, &r.RejectedAt, &r.RejectionReason,
			&r.CancelledBy, &r.CancelledAt, &r.PaidBy, &r.PaidAt, &r.PaymentRecordID,
			&r.CreatedAt, &r.UpdatedAt,
		); err != nil {
			return err
		}
		out = append(out, r)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("query refund requests: %w", err)
	}
	if err := q.attachRefundItems(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (q querier) attachRefundItems(ctx context.Context, reqs []billing.RefundRequest) error {
	if len(reqs) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(reqs))
	for i := range reqs {
		ids[i] = reqs[i].ID
	}

	sel := builder.Select("id", "refund_request_id", "bill_item_id", "quantity", "amount").
		From(entsql.Table(tRefundItems)).
		Where(entsql.In("refund_request_id", anySlice(ids)...)).
		OrderBy("id")

	byReq := map[uuid.UUID][]billing.RefundItem{}
	err := q.query(ctx, sel, func(rows *entsql.Rows) error {
		var it billing.RefundItem
		if err := rows.Scan(&it.ID, &it.RefundRequestID, &it.BillItemID, &it.Quantity, &it.Amount); err != nil {
			return err
		}
		byReq[it.RefundRequestID] = append(byReq[it.RefundRequestID], it)
		return nil
	})
	if err != nil {
		return fmt.Errorf("query refund items: %w", err)
	}
	for i := range reqs {
		reqs[i].Items = byReq[reqs[i].ID]
	}
	return nil
}

func (q querier) GetRefundRequest(ctx context.Context, id uuid.UUID) (*billing.RefundRequest, error) {
	sel := builder.Select(requestColumns...).From(entsql.Table(tRefundRequests)).Where(entsql.EQ("id", id))
	reqs, err := q.requests(ctx, sel)
	if err != nil {
		return nil, err
	}
	if len(reqs) == 0 {
		return nil, billing.ErrRefundNotFound
	}
	return &reqs[0], nil
}

func (q querier) ListRefundRequests(ctx context.Context, billID uuid.UUID) ([]billing.RefundRequest, error) {
	sel := builder.Select(requestColumns...).From(entsql.Table(tRefundRequests)).
		Where(entsql.EQ("bill_id", billID)).
		OrderBy("created_at", "id")
	return q.requests(ctx, sel)
}

func (q querier) ListRefunds(ctx context.Context, f repo.RefundFilter) ([]billing.RefundRequest, error) {
	var preds []*entsql.Predicate
	if f.ClinicID != uuid.Nil {
		preds = append(preds, entsql.EQ("clinic_id", f.ClinicID))
	}
	if f.BillID != nil {
		preds = append(preds, entsql.EQ("bill_id", *f.BillID))
	}
	if f.Status != nil {
		preds = append(preds, entsql.EQ("status", string(*f.Status)))
	}

	sel := builder.Select(requestColumns...).From(entsql.Table(tRefundRequests)).
		OrderBy(entsql.Desc("created_at"), entsql.Desc("id")).
		Limit(repo.NormalizeLimit(f.Limit))
	if len(preds) > 0 {
		sel.Where(entsql.And(preds...))
	}
	if f.Offset > 0 {
		sel.Offset(f.Offset)
	}
	return q.requests(ctx, sel)
}

func anySlice(ids []uuid.UUID) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}
