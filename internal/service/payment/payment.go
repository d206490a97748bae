package payment

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Alijeyrad/simorq_billing/internal/billing"
	"github.com/Alijeyrad/simorq_billing/internal/events"
	"github.com/Alijeyrad/simorq_billing/internal/repo"
	"github.com/Alijeyrad/simorq_billing/internal/service/ledger"
	"github.com/Alijeyrad/simorq_billing/pkg/money"
	"github.com/Alijeyrad/simorq_billing/pkg/observability"
)

// ---------------------------------------------------------------------------
// DTOs
// ---------------------------------------------------------------------------

type RecordPaymentInput struct {
	Actor       billing.Actor
	BillID      uuid.UUID
	Amount      money.Amount
	Method      billing.PaymentMethod
	PaymentDate *time.Time
	Reference   string
	Notes       string
}

type AdjustmentInput struct {
	Actor  billing.Actor
	BillID uuid.UUID
	// Amount is signed: positive raises the paid amount, negative lowers it.
	Amount    money.Amount
	Method    billing.PaymentMethod
	Reason    string
	Reference string
	Notes     string
}

// Receipt is the appended record together with the bill it changed.
type Receipt struct {
	Record billing.PaymentRecord `json:"record"`
	Bill   billing.Bill          `json:"bill"`
}

// Config is the clinic payment policy. The zero value accepts payments above
// the balance and records the overage in the payment notes.
type Config struct {
	RejectOverpayment bool
}

// ---------------------------------------------------------------------------
// Interface
// ---------------------------------------------------------------------------

type Service interface {
	RecordPayment(ctx context.Context, in RecordPaymentInput) (*Receipt, error)
	RecordAdjustment(ctx context.Context, in AdjustmentInput) (*Receipt, error)
	ListPayments(ctx context.Context, actor billing.Actor, billID uuid.UUID) ([]billing.PaymentRecord, error)
}

// ---------------------------------------------------------------------------
// Implementation
// ---------------------------------------------------------------------------

type paymentService struct {
	store   repo.Store
	ledger  ledger.Recomputer
	pub     events.Publisher
	metrics *observability.Metrics
	cfg     Config
	now     func() time.Time
}

type Option func(*paymentService)

func WithClock(now func() time.Time) Option {
	return func(s *paymentService) { s.now = now }
}

func New(store repo.Store, rc ledger.Recomputer, pub events.Publisher, metrics *observability.Metrics, cfg Config, opts ...Option) Service {
	if pub == nil {
		pub = events.Nop{}
	}
	s := &paymentService{store: store, ledger: rc, pub: pub, metrics: metrics, cfg: cfg, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *paymentService) RecordPayment(ctx context.Context, in RecordPaymentInput) (*Receipt, error) {
	ctx, span := observability.StartSpan(ctx, "payment.RecordPayment")
	defer span.End()

	if !in.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if !in.Method.Valid() {
		return nil, billing.NewValidationError("payment_method", fmt.Sprintf("unknown payment method %q", in.Method))
	}

	var receipt Receipt
	err := s.store.Tx(ctx, func(ctx context.Context, tx repo.Tx) error {
		bill, err := ledger.LockForActor(ctx, tx, in.Actor, in.BillID)
		if err != nil {
			return err
		}

		notes := in.Notes
		if in.Amount.GreaterThan(bill.BalanceAmount) {
			if s.cfg.RejectOverpayment {
				return &billing.OverpaymentError{Amount: in.Amount, Balance: bill.BalanceAmount}
			}
			over := in.Amount.Sub(money.Max(bill.BalanceAmount, money.Zero))
			notes = joinNotes(notes, fmt.Sprintf("overpayment of %s (balance was %s)", over, bill.BalanceAmount))
			slog.WarnContext(ctx, "overpayment accepted",
				"bill_id", bill.ID,
				"amount", in.Amount.String(),
				"balance", bill.BalanceAmount.String(),
				"overage", over.String(),
			)
		}

		now := s.now()
		rec := billing.PaymentRecord{
			ID:            uuid.Must(uuid.NewV7()),
			BillID:        bill.ID,
			ClinicID:      bill.ClinicID,
			PaymentDate:   now,
			PaymentMethod: in.Method,
			Amount:        in.Amount,
			RecordType:    billing.RecordPayment,
			ReceivedBy:    in.Actor.UserID,
			Reference:     in.Reference,
			Notes:         notes,
			CreatedAt:     now,
		}
		if in.PaymentDate != nil {
			rec.PaymentDate = *in.PaymentDate
		}
		if err := tx.AppendPaymentRecord(ctx, &rec); err != nil {
			return err
		}
		if err := s.ledger.Recompute(ctx, tx, bill); err != nil {
			return err
		}
		receipt = Receipt{Record: rec, Bill: *bill}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.PaymentRecorded(ctx, string(billing.RecordPayment), string(in.Method), in.Amount.Decimal().InexactFloat64())
	slog.InfoContext(ctx, "payment recorded",
		"bill_id", receipt.Bill.ID,
		"record_id", receipt.Record.ID,
		"amount", in.Amount.String(),
		"method", in.Method,
		"balance", receipt.Bill.BalanceAmount.String(),
	)
	s.pub.Publish(ctx, events.BillChanged{BillID: receipt.Bill.ID, ClinicID: receipt.Bill.ClinicID, Reason: "payment"})
	return &receipt, nil
}

func (s *paymentService) RecordAdjustment(ctx context.Context, in AdjustmentInput) (*Receipt, error) {
	ctx, span := observability.StartSpan(ctx, "payment.RecordAdjustment")
	defer span.End()

	if in.Amount.IsZero() {
		return nil, ErrZeroAdjustment
	}
	if strings.TrimSpace(in.Reason) == "" {
		return nil, ErrReasonRequired
	}
	if in.Method != "" && !in.Method.Valid() {
		return nil, billing.NewValidationError("payment_method", fmt.Sprintf("unknown payment method %q", in.Method))
	}

	var receipt Receipt
	err := s.store.Tx(ctx, func(ctx context.Context, tx repo.Tx) error {
		bill, err := ledger.LockForActor(ctx, tx, in.Actor, in.BillID)
		if err != nil {
			return err
		}

		paid := bill.PaidAmount.Add(in.Amount)
		if paid.IsNegative() {
			return ErrPaidBelowZero
		}
		if paid.LessThan(bill.TotalRefundedAmount) {
			return ErrPaidBelowRefunded
		}

		now := s.now()
		rec := billing.PaymentRecord{
			ID:            uuid.Must(uuid.NewV7()),
			BillID:        bill.ID,
			ClinicID:      bill.ClinicID,
			PaymentDate:   now,
			PaymentMethod: in.Method,
			Amount:        in.Amount,
			RecordType:    billing.RecordAdjustment,
			ReceivedBy:    in.Actor.UserID,
			Reference:     in.Reference,
			Reason:        in.Reason,
			Notes:         in.Notes,
			CreatedAt:     now,
		}
		if err := tx.AppendPaymentRecord(ctx, &rec); err != nil {
			return err
		}
		if err := s.ledger.Recompute(ctx, tx, bill); err != nil {
			return err
		}
		receipt = Receipt{Record: rec, Bill: *bill}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.PaymentRecorded(ctx, string(billing.RecordAdjustment), string(in.Method), in.Amount.Decimal().InexactFloat64())
	slog.InfoContext(ctx, "adjustment recorded",
		"bill_id", receipt.Bill.ID,
		"record_id", receipt.Record.ID,
		"amount", in.Amount.String(),
		"reason", in.Reason,
	)
	s.pub.Publish(ctx, events.BillChanged{BillID: receipt.Bill.ID, ClinicID: receipt.Bill.ClinicID, Reason: "adjustment"})
	return &receipt, nil
}

func (s *paymentService) ListPayments(ctx context.Context, actor billing.Actor, billID uuid.UUID) ([]billing.PaymentRecord, error) {
	bill, err := s.store.GetBill(ctx, billID)
	if err != nil {
		return nil, err
	}
	if !actor.Sees(bill.ClinicID) {
		return nil, billing.ErrBillNotFound
	}
	return s.store.ListPaymentRecords(ctx, billID)
}

func joinNotes(a, b string) string {
	if a == "" {
		return b
	}
	return a + "; " + b
}
