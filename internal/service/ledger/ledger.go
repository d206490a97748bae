package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Alijeyrad/simorq_billing/internal/billing"
	"github.com/Alijeyrad/simorq_billing/internal/directory"
	"github.com/Alijeyrad/simorq_billing/internal/events"
	"github.com/Alijeyrad/simorq_billing/internal/repo"
	"github.com/Alijeyrad/simorq_billing/pkg/money"
	"github.com/Alijeyrad/simorq_billing/pkg/observability"
)

// ---------------------------------------------------------------------------
// DTOs
// ---------------------------------------------------------------------------

type CreateBillInput struct {
	Actor     billing.Actor
	PatientID uuid.UUID
	VisitID   *uuid.UUID
	BillDate  *time.Time
	DueDate   *time.Time
	Notes     string
	Items     []billing.ItemInput
}

type AddItemsInput struct {
	Actor  billing.Actor
	BillID uuid.UUID
	Items  []billing.ItemInput
}

// BillDetails is a bill with everything that hangs off it.
type BillDetails struct {
	billing.Bill
	Items            []billing.BillItem      `json:"items"`
	Payments         []billing.PaymentRecord `json:"payments"`
	RefundRequests   []billing.RefundRequest `json:"refund_requests"`
	RefundableAmount money.Amount            `json:"refundable_amount"`
}

type Config struct {
	// BillNumberPrefix is the first segment of <prefix>-<YYYY>-<seq>.
	BillNumberPrefix string
	// Location decides which calendar year a bill number belongs to.
	Location *time.Location
	// PaymentDueDays sets DueDate when the caller gives none. Zero leaves it unset.
	PaymentDueDays int
}

// ---------------------------------------------------------------------------
// Interface
// ---------------------------------------------------------------------------

// Recomputer is the single aggregate refresh every mutating transaction
// calls before it commits.
type Recomputer interface {
	Recompute(ctx context.Context, tx repo.Tx, bill *billing.Bill) error
}

type Service interface {
	Recomputer

	CreateBill(ctx context.Context, in CreateBillInput) (*billing.Bill, error)
	AddItems(ctx context.Context, in AddItemsInput) (*billing.Bill, error)
	RecomputeAggregates(ctx context.Context, actor billing.Actor, billID uuid.UUID) (*billing.Bill, error)
	GetRefundableAmount(ctx context.Context, actor billing.Actor, billID uuid.UUID) (money.Amount, error)
	GetBill(ctx context.Context, actor billing.Actor, billID uuid.UUID) (*BillDetails, error)
	ListBills(ctx context.Context, actor billing.Actor, f repo.BillFilter) ([]billing.Bill, error)
}

// ---------------------------------------------------------------------------
// Implementation
// ---------------------------------------------------------------------------

type ledgerService struct {
	store   repo.Store
	dir     directory.Directory
	pub     events.Publisher
	metrics *observability.Metrics
	cfg     Config
	now     func() time.Time
}

type Option func(*ledgerService)

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *ledgerService) { s.now = now }
}

func New(store repo.Store, dir directory.Directory, pub events.Publisher, metrics *observability.Metrics, cfg Config, opts ...Option) Service {
	if cfg.BillNumberPrefix == "" {
		cfg.BillNumberPrefix = "BILL"
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if pub == nil {
		pub = events.Nop{}
	}
	s := &ledgerService{store: store, dir: dir, pub: pub, metrics: metrics, cfg: cfg, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *ledgerService) CreateBill(ctx context.Context, in CreateBillInput) (*billing.Bill, error) {
	ctx, span := observability.StartSpan(ctx, "ledger.CreateBill")
	defer span.End()

	if in.Actor.ClinicID == uuid.Nil {
		return nil, billing.NewValidationError("clinic_id", "required")
	}
	if err := validateItems(in.Items); err != nil {
		return nil, err
	}
	if in.DueDate != nil && in.BillDate != nil && in.DueDate.Before(*in.BillDate) {
		return nil, billing.NewValidationError("due_date", "must not be before bill_date")
	}

	patient, err := s.dir.Patient(ctx, in.PatientID)
	if err != nil {
		return nil, err
	}
	if patient.ClinicID != uuid.Nil && !in.Actor.Sees(patient.ClinicID) {
		return nil, billing.ErrPatientNotFound
	}

	var visitDate *time.Time
	if in.VisitID != nil {
		visit, err := s.dir.Visit(ctx, *in.VisitID)
		if err != nil {
			return nil, err
		}
		if visit.PatientID != uuid.Nil && visit.PatientID != in.PatientID {
			return nil, ErrVisitNotPatients
		}
		if !visit.VisitDate.IsZero() {
			vd := visit.VisitDate
			visitDate = &vd
		}
	}

	now := s.now()
	billDate := now
	if in.BillDate != nil {
		billDate = *in.BillDate
	}
	dueDate := in.DueDate
	if dueDate == nil && s.cfg.PaymentDueDays > 0 {
		d := billDate.AddDate(0, 0, s.cfg.PaymentDueDays)
		dueDate = &d
	}

	bill := &billing.Bill{
		ID:          uuid.Must(uuid.NewV7()),
		ClinicID:    in.Actor.ClinicID,
		PatientID:   in.PatientID,
		VisitID:     in.VisitID,
		BillDate:    billDate,
		DueDate:     dueDate,
		PatientName: patient.FullName,
		VisitDate:   visitDate,
		Notes:       in.Notes,
		CreatedBy:   in.Actor.UserID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	items := buildItems(bill.ID, in.Items, now)
	for _, it := range items {
		bill.TotalAmount = bill.TotalAmount.Add(it.TotalPrice)
	}
	bill.BalanceAmount = bill.TotalAmount
	bill.PaymentStatus = billing.PaymentPending
	bill.RefundStatus = billing.RefundNotRequested

	err = s.store.Tx(ctx, func(ctx context.Context, tx repo.Tx) error {
		year := billDate.In(s.cfg.Location).Year()
		seq, err := tx.NextBillNumber(ctx, bill.ClinicID, year)
		if err != nil {
			return err
		}
		bill.BillNumber = FormatBillNumber(s.cfg.BillNumberPrefix, year, seq)

		if err := tx.CreateBill(ctx, bill, items); err != nil {
			return err
		}
		return s.Recompute(ctx, tx, bill)
	})
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.String("bill.id", bill.ID.String()))
	slog.InfoContext(ctx, "bill created",
		"bill_id", bill.ID,
		"bill_number", bill.BillNumber,
		"clinic_id", bill.ClinicID,
		"total", bill.TotalAmount.String(),
	)
	s.pub.Publish(ctx, events.BillChanged{BillID: bill.ID, ClinicID: bill.ClinicID, Reason: "created"})
	return bill, nil
}

func (s *ledgerService) AddItems(ctx context.Context, in AddItemsInput) (*billing.Bill, error) {
	if err := validateItems(in.Items); err != nil {
		return nil, err
	}

	var bill *billing.Bill
	err := s.store.Tx(ctx, func(ctx context.Context, tx repo.Tx) error {
		var err error
		bill, err = LockForActor(ctx, tx, in.Actor, in.BillID)
		if err != nil {
			return err
		}
		records, err := tx.ListPaymentRecords(ctx, bill.ID)
		if err != nil {
			return err
		}
		if len(records) > 0 {
			return ErrBillHasPayments
		}

		items := buildItems(bill.ID, in.Items, s.now())
		if err := tx.AddItems(ctx, bill.ID, items); err != nil {
			return err
		}
		for _, it := range items {
			bill.TotalAmount = bill.TotalAmount.Add(it.TotalPrice)
			bill.BalanceAmount = bill.BalanceAmount.Add(it.TotalPrice)
		}
		return s.Recompute(ctx, tx, bill)
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "bill items added", "bill_id", bill.ID, "count", len(in.Items), "total", bill.TotalAmount.String())
	s.pub.Publish(ctx, events.BillChanged{BillID: bill.ID, ClinicID: bill.ClinicID, Reason: "items_added"})
	return bill, nil
}

// Recompute re-derives every aggregate of bill from the records visible in
// tx, verifies them and persists them. bill must already be locked.
func (s *ledgerService) Recompute(ctx context.Context, tx repo.Tx, bill *billing.Bill) error {
	items, err := tx.ListItems(ctx, bill.ID)
	if err != nil {
		return err
	}
	records, err := tx.ListPaymentRecords(ctx, bill.ID)
	if err != nil {
		return err
	}
	requests, err := tx.ListRefundRequests(ctx, bill.ID)
	if err != nil {
		return err
	}

	l := billing.Ledger{Items: items, Records: records, Requests: requests, DueDate: bill.DueDate}
	now := s.now()
	fresh := billing.ComputeAggregates(l, now)

	if err := billing.CheckConsistency(bill, fresh, l); err != nil {
		s.metrics.ConsistencyViolation(ctx)
		var cv *billing.ConsistencyViolationError
		if errors.As(err, &cv) {
			slog.ErrorContext(ctx, "bill consistency violation",
				"alert", true,
				"bill_id", bill.ID,
				"clinic_id", bill.ClinicID,
				"violations", cv.Violations,
			)
		}
		return err
	}

	if err := tx.SaveAggregates(ctx, bill.ID, fresh, now); err != nil {
		return err
	}
	bill.Aggregates = fresh
	bill.UpdatedAt = now
	return nil
}

func (s *ledgerService) RecomputeAggregates(ctx context.Context, actor billing.Actor, billID uuid.UUID) (*billing.Bill, error) {
	var bill *billing.Bill
	err := s.store.Tx(ctx, func(ctx context.Context, tx repo.Tx) error {
		var err error
		bill, err = LockForActor(ctx, tx, actor, billID)
		if err != nil {
			return err
		}
		return s.Recompute(ctx, tx, bill)
	})
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "bill aggregates recomputed", "bill_id", bill.ID, "paid", bill.PaidAmount.String(), "balance", bill.BalanceAmount.String())
	return bill, nil
}

func (s *ledgerService) GetRefundableAmount(ctx context.Context, actor billing.Actor, billID uuid.UUID) (money.Amount, error) {
	bill, err := s.get(ctx, actor, billID)
	if err != nil {
		return money.Zero, err
	}
	records, err := s.store.ListPaymentRecords(ctx, bill.ID)
	if err != nil {
		return money.Zero, err
	}
	requests, err := s.store.ListRefundRequests(ctx, bill.ID)
	if err != nil {
		return money.Zero, err
	}
	a := billing.ComputeAggregates(billing.Ledger{Records: records, Requests: requests}, s.now())
	return billing.Refundable(a), nil
}

func (s *ledgerService) GetBill(ctx context.Context, actor billing.Actor, billID uuid.UUID) (*BillDetails, error) {
	bill, err := s.get(ctx, actor, billID)
	if err != nil {
		return nil, err
	}
	items, err := s.store.ListItems(ctx, bill.ID)
	if err != nil {
		return nil, err
	}
	records, err := s.store.ListPaymentRecords(ctx, bill.ID)
	if err != nil {
		return nil, err
	}
	requests, err := s.store.ListRefundRequests(ctx, bill.ID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	bill.PaymentStatus = billing.DerivePaymentStatus(bill.PaidAmount, bill.BalanceAmount, bill.DueDate, now)
	fresh := billing.ComputeAggregates(billing.Ledger{Items: items, Records: records, Requests: requests, DueDate: bill.DueDate}, now)

	return &BillDetails{
		Bill:             *bill,
		Items:            items,
		Payments:         records,
		RefundRequests:   requests,
		RefundableAmount: billing.Refundable(fresh),
	}, nil
}

func (s *ledgerService) ListBills(ctx context.Context, actor billing.Actor, f repo.BillFilter) ([]billing.Bill, error) {
	now := s.now()
	f.ClinicID = actor.ClinicID
	f.AsOf = now
	bills, err := s.store.ListBills(ctx, f)
	if err != nil {
		return nil, err
	}
	for i := range bills {
		b := &bills[i]
		b.PaymentStatus = billing.DerivePaymentStatus(b.PaidAmount, b.BalanceAmount, b.DueDate, now)
	}
	return bills, nil
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func (s *ledgerService) get(ctx context.Context, actor billing.Actor, billID uuid.UUID) (*billing.Bill, error) {
	bill, err := s.store.GetBill(ctx, billID)
	if err != nil {
		return nil, err
	}
	if !actor.Sees(bill.ClinicID) {
		return nil, billing.ErrBillNotFound
	}
	return bill, nil
}

// LockForActor locks the bill row and hides bills of other clinics.
func LockForActor(ctx context.Context, tx repo.Tx, actor billing.Actor, billID uuid.UUID) (*billing.Bill, error) {
	bill, err := tx.LockBill(ctx, billID)
	if err != nil {
		return nil, err
	}
	if !actor.Sees(bill.ClinicID) {
		return nil, billing.ErrBillNotFound
	}
	return bill, nil
}

func validateItems(items []billing.ItemInput) error {
	if len(items) == 0 {
		return ErrNoItems
	}
	for i, it := range items {
		if err := it.Validate(fmt.Sprintf("items[%d]", i)); err != nil {
			return err
		}
	}
	return nil
}

func buildItems(billID uuid.UUID, in []billing.ItemInput, now time.Time) []billing.BillItem {
	out := make([]billing.BillItem, len(in))
	for i, it := range in {
		out[i] = billing.BillItem{
			ID:          uuid.Must(uuid.NewV7()),
			BillID:      billID,
			ItemType:    it.ItemType,
			Description: it.Description,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			Discount:    it.Discount,
			Tax:         it.Tax,
			TotalPrice:  it.LineTotal(),
			CreatedAt:   now,
		}
	}
	return out
}

// FormatBillNumber renders <prefix>-<YYYY>-<seq:06d>.
func FormatBillNumber(prefix string, year int, seq int64) string {
	return fmt.Sprintf("%s-%04d-%06d", prefix, year, seq)
}
