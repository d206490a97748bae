package refund

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

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

type ItemInput struct {
	BillItemID uuid.UUID    `json:"bill_item_id"`
	Quantity   int64        `json:"quantity"`
	Amount     money.Amount `json:"amount"`
}

type CreateInput struct {
	Actor           billing.Actor
	BillID          uuid.UUID
	Amount          money.Amount
	Method          billing.PaymentMethod
	Reason          string
	SourceType      billing.RefundSource
	SourceReference string
	Notes           string
	Items           []ItemInput
}

type MarkPaidInput struct {
	Actor    billing.Actor
	RefundID uuid.UUID
	// Method is the payout method. Empty keeps the method the request was
	// created with.
	Method    billing.PaymentMethod
	Reference string
	Notes     string
}

type Config struct {
	// AllowDirectPay lets pending_approval requests be paid without a
	// separate approval step.
	AllowDirectPay bool
}

// ---------------------------------------------------------------------------
// Interface
// ---------------------------------------------------------------------------

type Service interface {
	Create(ctx context.Context, in CreateInput) (*billing.RefundRequest, error)
	Submit(ctx context.Context, actor billing.Actor, id uuid.UUID) (*billing.RefundRequest, error)
	Approve(ctx context.Context, actor billing.Actor, id uuid.UUID) (*billing.RefundRequest, error)
	Reject(ctx context.Context, actor billing.Actor, id uuid.UUID, reason string) (*billing.RefundRequest, error)
	MarkPaid(ctx context.Context, in MarkPaidInput) (*billing.RefundRequest, error)
	Cancel(ctx context.Context, actor billing.Actor, id uuid.UUID) (*billing.RefundRequest, error)

	Get(ctx context.Context, actor billing.Actor, id uuid.UUID) (*billing.RefundRequest, error)
	ListForBill(ctx context.Context, actor billing.Actor, billID uuid.UUID) ([]billing.RefundRequest, error)
	List(ctx context.Context, actor billing.Actor, f repo.RefundFilter) ([]billing.RefundRequest, error)
}

// ---------------------------------------------------------------------------
// Implementation
// ---------------------------------------------------------------------------

type refundService struct {
	store     repo.Store
	ledger    ledger.Recomputer
	approvers Approvers
	pub       events.Publisher
	metrics   *observability.Metrics
	cfg       Config
	now       func() time.Time
}

type Option func(*refundService)

func WithClock(now func() time.Time) Option {
	return func(s *refundService) { s.now = now }
}

func New(store repo.Store, rc ledger.Recomputer, approvers Approvers, pub events.Publisher, metrics *observability.Metrics, cfg Config, opts ...Option) Service {
	if pub == nil {
		pub = events.Nop{}
	}
	s := &refundService{
		store:     store,
		ledger:    rc,
		approvers: approvers,
		pub:       pub,
		metrics:   metrics,
		cfg:       cfg,
		now:       time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *refundService) Create(ctx context.Context, in CreateInput) (*billing.RefundRequest, error) {
	ctx, span := observability.StartSpan(ctx, "refund.Create", attribute.String("bill.id", in.BillID.String()))
	defer span.End()

	if strings.TrimSpace(in.Reason) == "" {
		return nil, ErrReasonRequired
	}
	if !in.Method.Valid() {
		return nil, billing.NewValidationError("refund_method", fmt.Sprintf("unknown payment method %q", in.Method))
	}
	if in.SourceType == "" {
		in.SourceType = billing.SourceBill
	}
	if !in.SourceType.Valid() {
		return nil, billing.NewValidationError("source_type", fmt.Sprintf("unknown refund source %q", in.SourceType))
	}

	canApprove, err := s.approvers.CanApprove(ctx, in.Actor)
	if err != nil {
		return nil, fmt.Errorf("check refund approval capability: %w", err)
	}

	var req billing.RefundRequest
	err = s.store.Tx(ctx, func(ctx context.Context, tx repo.Tx) error {
		bill, err := ledger.LockForActor(ctx, tx, in.Actor, in.BillID)
		if err != nil {
			return err
		}

		refundable, _, err := s.refundable(ctx, tx, bill)
		if err != nil {
			return err
		}
		if !in.Amount.IsPositive() || in.Amount.GreaterThan(refundable) {
			return &billing.ExceedsRefundableError{Requested: in.Amount, Ceiling: refundable}
		}

		now := s.now()
		req = billing.RefundRequest{
			ID:              uuid.Must(uuid.NewV7()),
			BillID:          bill.ID,
			ClinicID:        bill.ClinicID,
			PatientID:       bill.PatientID,
			SourceType:      in.SourceType,
			SourceReference: in.SourceReference,
			TotalAmount:     in.Amount,
			RefundMethod:    in.Method,
			Reason:          in.Reason,
			Status:          billing.RequestDraft,
			Notes:           in.Notes,
			InitiatedBy:     in.Actor.UserID,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if canApprove {
			req.Status = billing.RequestPendingApproval
		}

		if len(in.Items) > 0 {
			items, err := tx.ListItems(ctx, bill.ID)
			if err != nil {
				return err
			}
			if req.Items, err = buildRefundItems(req.ID, in.Amount, in.Items, items); err != nil {
				return err
			}
		}

		if err := tx.CreateRefundRequest(ctx, &req); err != nil {
			return err
		}
		return s.ledger.Recompute(ctx, tx, bill)
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "refund request created",
		"refund_id", req.ID,
		"bill_id", req.BillID,
		"amount", req.TotalAmount.String(),
		"status", req.Status,
		"initiated_by", req.InitiatedBy,
	)
	s.pub.Publish(ctx, events.BillChanged{BillID: req.BillID, ClinicID: req.ClinicID, Reason: "refund_requested"})
	return &req, nil
}

func (s *refundService) Submit(ctx context.Context, actor billing.Actor, id uuid.UUID) (*billing.RefundRequest, error) {
	return s.transition(ctx, actor, id, billing.RequestPendingApproval, nil)
}

func (s *refundService) Approve(ctx context.Context, actor billing.Actor, id uuid.UUID) (*billing.RefundRequest, error) {
	if err := s.requireApprover(ctx, actor); err != nil {
		return nil, err
	}
	return s.transition(ctx, actor, id, billing.RequestApproved, func(ctx context.Context, tx repo.Tx, bill *billing.Bill, req *billing.RefundRequest) error {
		refundable, requests, err := s.refundable(ctx, tx, bill)
		if err != nil {
			return err
		}
		ceiling := money.Max(refundable.Sub(billing.ApprovedUnpaid(requests, req.ID)), money.Zero)
		if req.TotalAmount.GreaterThan(ceiling) {
			return &billing.ExceedsRefundableError{Requested: req.TotalAmount, Ceiling: ceiling}
		}
		now := s.now()
		req.ApprovedBy = &actor.UserID
		req.ApprovedAt = &now
		return nil
	})
}

func (s *refundService) Reject(ctx context.Context, actor billing.Actor, id uuid.UUID, reason string) (*billing.RefundRequest, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, ErrReasonRequired
	}
	if err := s.requireApprover(ctx, actor); err != nil {
		return nil, err
	}
	return s.transition(ctx, actor, id, billing.RequestRejected, func(_ context.Context, _ repo.Tx, _ *billing.Bill, req *billing.RefundRequest) error {
		now := s.now()
		req.RejectedBy = &actor.UserID
		req.RejectedAt = &now
		req.RejectionReason = reason
		return nil
	})
}

func (s *refundService) MarkPaid(ctx context.Context, in MarkPaidInput) (*billing.RefundRequest, error) {
	ctx, span := observability.StartSpan(ctx, "refund.MarkPaid", attribute.String("refund.id", in.RefundID.String()))
	defer span.End()

	if in.Method != "" && !in.Method.Valid() {
		return nil, billing.NewValidationError("payment_method", fmt.Sprintf("unknown payment method %q", in.Method))
	}
	if err := s.requireApprover(ctx, in.Actor); err != nil {
		return nil, err
	}

	var bill billing.Bill
	req, err := s.transition(ctx, in.Actor, in.RefundID, billing.RequestPaid, func(ctx context.Context, tx repo.Tx, b *billing.Bill, req *billing.RefundRequest) error {
		refundable, _, err := s.refundable(ctx, tx, b)
		if err != nil {
			return err
		}
		if req.TotalAmount.GreaterThan(refundable) {
			return &billing.ExceedsRefundableError{Requested: req.TotalAmount, Ceiling: refundable}
		}

		if len(req.Items) > 0 {
			items, err := tx.ListItems(ctx, b.ID)
			if err != nil {
				return err
			}
			updated, err := applyRefundItems(items, req.Items)
			if err != nil {
				return err
			}
			if err := tx.UpdateItemRefunds(ctx, updated); err != nil {
				return err
			}
		}

		if in.Method != "" {
			req.RefundMethod = in.Method
		}

		now := s.now()
		rec := billing.PaymentRecord{
			ID:              uuid.Must(uuid.NewV7()),
			BillID:          b.ID,
			ClinicID:        b.ClinicID,
			PaymentDate:     now,
			PaymentMethod:   req.RefundMethod,
			Amount:          req.TotalAmount.Neg(),
			RecordType:      billing.RecordRefund,
			RefundRequestID: &req.ID,
			ReceivedBy:      in.Actor.UserID,
			Reference:       in.Reference,
			Reason:          req.Reason,
			Notes:           in.Notes,
			CreatedAt:       now,
		}
		if err := tx.AppendPaymentRecord(ctx, &rec); err != nil {
			return err
		}

		req.PaidBy = &in.Actor.UserID
		req.PaidAt = &now
		req.PaymentRecordID = &rec.ID
		bill = *b
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.PaymentRecorded(ctx, string(billing.RecordRefund), string(req.RefundMethod), req.TotalAmount.Neg().Decimal().InexactFloat64())
	s.pub.Publish(ctx, events.RefundPaid{
		BillID:          req.BillID,
		RefundRequestID: req.ID,
		ClinicID:        req.ClinicID,
		PatientID:       req.PatientID,
		BillNumber:      bill.BillNumber,
		Amount:          req.TotalAmount,
		Method:          req.RefundMethod,
		PaidAt:          *req.PaidAt,
	})
	return req, nil
}

func (s *refundService) Cancel(ctx context.Context, actor billing.Actor, id uuid.UUID) (*billing.RefundRequest, error) {
	current, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if current.InitiatedBy != actor.UserID {
		if err := s.requireApprover(ctx, actor); err != nil {
			return nil, err
		}
	}
	return s.transition(ctx, actor, id, billing.RequestCancelled, func(_ context.Context, _ repo.Tx, _ *billing.Bill, req *billing.RefundRequest) error {
		now := s.now()
		req.CancelledBy = &actor.UserID
		req.CancelledAt = &now
		return nil
	})
}

func (s *refundService) Get(ctx context.Context, actor billing.Actor, id uuid.UUID) (*billing.RefundRequest, error) {
	req, err := s.store.GetRefundRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.Sees(req.ClinicID) {
		return nil, billing.ErrRefundNotFound
	}
	return req, nil
}

func (s *refundService) ListForBill(ctx context.Context, actor billing.Actor, billID uuid.UUID) ([]billing.RefundRequest, error) {
	bill, err := s.store.GetBill(ctx, billID)
	if err != nil {
		return nil, err
	}
	if !actor.Sees(bill.ClinicID) {
		return nil, billing.ErrBillNotFound
	}
	return s.store.ListRefundRequests(ctx, billID)
}

func (s *refundService) List(ctx context.Context, actor billing.Actor, f repo.RefundFilter) ([]billing.RefundRequest, error) {
	f.ClinicID = actor.ClinicID
	return s.store.ListRefunds(ctx, f)
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

type mutateFn func(ctx context.Context, tx repo.Tx, bill *billing.Bill, req *billing.RefundRequest) error

// transition moves a request to `to` under the bill lock. The request is
// re-read inside the transaction, so of two racing callers the second sees
// the first one's result and fails the state guard.
func (s *refundService) transition(ctx context.Context, actor billing.Actor, id uuid.UUID, to billing.RequestStatus, mutate mutateFn) (*billing.RefundRequest, error) {
	pre, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	var (
		req  *billing.RefundRequest
		from billing.RequestStatus
	)
	err = s.store.Tx(ctx, func(ctx context.Context, tx repo.Tx) error {
		bill, err := ledger.LockForActor(ctx, tx, actor, pre.BillID)
		if err != nil {
			return err
		}
		req, err = tx.GetRefundRequest(ctx, id)
		if err != nil {
			return err
		}
		from = req.Status
		if err := billing.CheckTransition(from, to, s.cfg.AllowDirectPay); err != nil {
			return err
		}
		if mutate != nil {
			if err := mutate(ctx, tx, bill, req); err != nil {
				return err
			}
		}
		req.Status = to
		req.UpdatedAt = s.now()
		if err := tx.UpdateRefundRequest(ctx, req); err != nil {
			return err
		}
		return s.ledger.Recompute(ctx, tx, bill)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RefundTransition(ctx, string(from), string(to))
	slog.InfoContext(ctx, "refund request transitioned",
		"refund_id", req.ID,
		"bill_id", req.BillID,
		"from", from,
		"to", to,
		"actor", actor.UserID,
		"amount", req.TotalAmount.String(),
	)
	s.pub.Publish(ctx, events.BillChanged{BillID: req.BillID, ClinicID: req.ClinicID, Reason: "refund_" + string(to)})
	return req, nil
}

func (s *refundService) requireApprover(ctx context.Context, actor billing.Actor) error {
	ok, err := s.approvers.CanApprove(ctx, actor)
	if err != nil {
		return fmt.Errorf("check refund approval capability: %w", err)
	}
	if !ok {
		return billing.ErrForbidden
	}
	return nil
}

// refundable derives the ceiling from the records inside tx, never from the
// cached bill columns.
func (s *refundService) refundable(ctx context.Context, tx repo.Tx, bill *billing.Bill) (money.Amount, []billing.RefundRequest, error) {
	records, err := tx.ListPaymentRecords(ctx, bill.ID)
	if err != nil {
		return money.Zero, nil, err
	}
	requests, err := tx.ListRefundRequests(ctx, bill.ID)
	if err != nil {
		return money.Zero, nil, err
	}
	a := billing.ComputeAggregates(billing.Ledger{Records: records, Requests: requests}, s.now())
	return billing.Refundable(a), requests, nil
}

func buildRefundItems(reqID uuid.UUID, total money.Amount, in []ItemInput, billItems []billing.BillItem) ([]billing.RefundItem, error) {
	byID := make(map[uuid.UUID]billing.BillItem, len(billItems))
	for _, it := range billItems {
		byID[it.ID] = it
	}

	sum := money.Zero
	out := make([]billing.RefundItem, 0, len(in))
	for _, ri := range in {
		bi, ok := byID[ri.BillItemID]
		if !ok {
			return nil, ErrUnknownBillItem
		}
		if !ri.Amount.IsPositive() {
			return nil, ErrItemAmountNotPositive
		}
		if ri.Quantity < 0 || ri.Quantity > bi.RemainingQuantity() {
			return nil, ErrItemQuantity
		}
		if ri.Amount.GreaterThan(bi.RemainingAmount()) {
			return nil, ErrItemAmount
		}
		sum = sum.Add(ri.Amount)
		out = append(out, billing.RefundItem{
			ID:              uuid.Must(uuid.NewV7()),
			RefundRequestID: reqID,
			BillItemID:      ri.BillItemID,
			Quantity:        ri.Quantity,
			Amount:          ri.Amount,
		})
	}
	if !sum.Equal(total) {
		return nil, ErrItemsDoNotSum
	}
	return out, nil
}

// applyRefundItems bumps the refunded counters of the affected bill items and
// returns only those items.
func applyRefundItems(billItems []billing.BillItem, refunds []billing.RefundItem) ([]billing.BillItem, error) {
	byID := make(map[uuid.UUID]*billing.BillItem, len(billItems))
	for i := range billItems {
		byID[billItems[i].ID] = &billItems[i]
	}

	touched := map[uuid.UUID]bool{}
	var order []uuid.UUID
	for _, ri := range refunds {
		bi, ok := byID[ri.BillItemID]
		if !ok {
			return nil, ErrUnknownBillItem
		}
		if ri.Quantity > bi.RemainingQuantity() {
			return nil, ErrItemQuantity
		}
		if ri.Amount.GreaterThan(bi.RemainingAmount()) {
			return nil, ErrItemAmount
		}
		bi.RefundedQuantity += ri.Quantity
		bi.RefundedAmount = bi.RefundedAmount.Add(ri.Amount)
		if !touched[bi.ID] {
			touched[bi.ID] = true
			order = append(order, bi.ID)
		}
	}

	out := make([]billing.BillItem, len(order))
	for i, id := range order {
		out[i] = *byID[id]
	}
	return out, nil
}
