package refund_test

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alijeyrad/simorq_billing/internal/billing"
	"github.com/Alijeyrad/simorq_billing/internal/repo"
	"github.com/Alijeyrad/simorq_billing/internal/service/payment"
	"github.com/Alijeyrad/simorq_billing/internal/service/refund"
	"github.com/Alijeyrad/simorq_billing/internal/service/servicetest"
)

var amt = servicetest.Amt

type env struct {
	*servicetest.Fixture
	payments payment.Service
	refunds  refund.Service
}

func newEnv(t *testing.T, cfg refund.Config) *env {
	t.Helper()
	f := servicetest.New(t)
	approvers := refund.ApproverFunc(func(_ context.Context, a billing.Actor) (bool, error) {
		return a.UserID == f.Manager.UserID, nil
	})
	return &env{
		Fixture:  f,
		payments: payment.New(f.Store, f.Ledger, f.Events, nil, payment.Config{}, payment.WithClock(f.Clock.Now)),
		refunds:  refund.New(f.Store, f.Ledger, approvers, f.Events, nil, cfg, refund.WithClock(f.Clock.Now)),
	}
}

// paidBill is a 1000.00 bill settled in cash.
func (e *env) paidBill(t *testing.T) *billing.Bill {
	t.Helper()
	b := e.Bill(t, servicetest.Item("1000.00"))
	_, err := e.payments.RecordPayment(context.Background(), payment.RecordPaymentInput{
		Actor:  e.Cashier,
		BillID: b.ID,
		Amount: amt("1000.00"),
		Method: billing.MethodCash,
	})
	require.NoError(t, err)
	return b
}

func (e *env) request(t *testing.T, actor billing.Actor, billID uuid.UUID, amount string) *billing.RefundRequest {
	t.Helper()
	req, err := e.refunds.Create(context.Background(), refund.CreateInput{
		Actor:  actor,
		BillID: billID,
		Amount: amt(amount),
		Method: billing.MethodCash,
		Reason: "appointment cancelled",
	})
	require.NoError(t, err)
	return req
}

func TestRefundLifecycle(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, refund.Config{})
	b := e.paidBill(t)

	stored := e.AssertBalanced(t, b.ID)
	assert.True(t, stored.PaidAmount.Equal(amt("1000.00")))
	assert.True(t, stored.BalanceAmount.IsZero())
	assert.Equal(t, billing.PaymentPaid, stored.PaymentStatus)

	req := e.request(t, e.Manager, b.ID, "300.00")
	assert.Equal(t, billing.RequestPendingApproval, req.Status)
	assert.Equal(t, billing.RefundPending, e.AssertBalanced(t, b.ID).RefundStatus)

	req, err := e.refunds.Approve(ctx, e.Manager, req.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.RequestApproved, req.Status)
	require.NotNil(t, req.ApprovedBy)
	assert.Equal(t, e.Manager.UserID, *req.ApprovedBy)

	req, err = e.refunds.MarkPaid(ctx, refund.MarkPaidInput{Actor: e.Manager, RefundID: req.ID, Reference: "till-3"})
	require.NoError(t, err)
	assert.Equal(t, billing.RequestPaid, req.Status)
	require.NotNil(t, req.PaymentRecordID)

	stored = e.AssertBalanced(t, b.ID)
	assert.True(t, stored.TotalRefundedAmount.Equal(amt("300.00")))
	assert.Equal(t, billing.RefundPartial, stored.RefundStatus)

	refundable, err := e.Ledger.GetRefundableAmount(ctx, e.Manager, b.ID)
	require.NoError(t, err)
	assert.True(t, refundable.Equal(amt("700.00")), "refundable = %s", refundable)

	records, err := e.payments.ListPayments(ctx, e.Cashier, b.ID)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, billing.RecordRefund, records[1].RecordType)
	assert.True(t, records[1].Amount.Equal(amt("-300.00")))
	assert.Equal(t, req.ID, *records[1].RefundRequestID)

	paid := e.Events.RefundsPaid()
	require.Len(t, paid, 1)
	assert.Equal(t, stored.BillNumber, paid[0].BillNumber)
	assert.True(t, paid[0].Amount.Equal(amt("300.00")))
}

func TestRefundFullAmountMarksBillRefunded(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, refund.Config{})
	b := e.paidBill(t)

	req := e.request(t, e.Manager, b.ID, "1000.00")
	_, err := e.refunds.Approve(ctx, e.Manager, req.ID)
	require.NoError(t, err)
	_, err = e.refunds.MarkPaid(ctx, refund.MarkPaidInput{Actor: e.Manager, RefundID: req.ID})
	require.NoError(t, err)

	assert.Equal(t, billing.RefundRefunded, e.AssertBalanced(t, b.ID).RefundStatus)

	_, err = e.refunds.Create(ctx, refund.CreateInput{
		Actor: e.Manager, BillID: b.ID, Amount: amt("0.01"), Method: billing.MethodCash, Reason: "again",
	})
	var ex *billing.ExceedsRefundableError
	require.ErrorAs(t, err, &ex)
	assert.True(t, ex.Ceiling.IsZero())
}

func TestCreateAboveRefundable(t *testing.T) {
	e := newEnv(t, refund.Config{})
	b := e.paidBill(t)

	_, err := e.refunds.Create(context.Background(), refund.CreateInput{
		Actor: e.Manager, BillID: b.ID, Amount: amt("1200.00"), Method: billing.MethodCash, Reason: "overcharge",
	})
	require.ErrorIs(t, err, billing.ErrExceedsRefundable)
	var ex *billing.ExceedsRefundableError
	require.ErrorAs(t, err, &ex)
	assert.True(t, ex.Ceiling.Equal(amt("1000.00")))
	assert.True(t, ex.Requested.Equal(amt("1200.00")))
}

func TestCreateOnUnpaidBill(t *testing.T) {
	e := newEnv(t, refund.Config{})
	b := e.Bill(t, servicetest.Item("250.00"))

	_, err := e.refunds.Create(context.Background(), refund.CreateInput{
		Actor: e.Manager, BillID: b.ID, Amount: amt("10.00"), Method: billing.MethodCash, Reason: "x",
	})
	require.ErrorIs(t, err, billing.ErrExceedsRefundable)
}

func TestCreateValidation(t *testing.T) {
	e := newEnv(t, refund.Config{})
	b := e.paidBill(t)

	tests := []struct {
		name string
		in   refund.CreateInput
		want error
	}{
		{
			name: "missing reason",
			in:   refund.CreateInput{Amount: amt("10.00"), Method: billing.MethodCash},
			want: refund.ErrReasonRequired,
		},
		{
			name: "unknown method",
			in:   refund.CreateInput{Amount: amt("10.00"), Method: "barter", Reason: "x"},
			want: billing.ErrValidation,
		},
		{
			name: "zero amount",
			in:   refund.CreateInput{Amount: amt("0"), Method: billing.MethodCash, Reason: "x"},
			want: billing.ErrValidation,
		},
		{
			name: "negative amount",
			in:   refund.CreateInput{Amount: amt("-5.00"), Method: billing.MethodCash, Reason: "x"},
			want: billing.ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.in.Actor = e.Manager
			tt.in.BillID = b.ID
			_, err := e.refunds.Create(context.Background(), tt.in)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCreateStatusDependsOnCapability(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, refund.Config{})
	b := e.paidBill(t)

	draft := e.request(t, e.Cashier, b.ID, "100.00")
	assert.Equal(t, billing.RequestDraft, draft.Status)

	_, err := e.refunds.Approve(ctx, e.Cashier, draft.ID)
	require.ErrorIs(t, err, billing.ErrForbidden)

	submitted, err := e.refunds.Submit(ctx, e.Cashier, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.RequestPendingApproval, submitted.Status)

	approved, err := e.refunds.Approve(ctx, e.Manager, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.RequestApproved, approved.Status)
}

func TestConcurrentMarkPaid(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, refund.Config{})
	b := e.paidBill(t)

	req := e.request(t, e.Manager, b.ID, "300.00")
	_, err := e.refunds.Approve(ctx, e.Manager, req.ID)
	require.NoError(t, err)

	const callers = 8
	var (
		wg   sync.WaitGroup
		errs = make([]error, callers)
	)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = e.refunds.MarkPaid(ctx, refund.MarkPaidInput{Actor: e.Manager, RefundID: req.ID})
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, billing.ErrInvalidTransition)
	}
	assert.Equal(t, 1, succeeded)

	records, err := e.Store.ListPaymentRecords(ctx, b.ID)
	require.NoError(t, err)
	refunds := 0
	for _, r := range records {
		if r.RecordType == billing.RecordRefund {
			refunds++
		}
	}
	assert.Equal(t, 1, refunds)
	assert.True(t, e.AssertBalanced(t, b.ID).TotalRefundedAmount.Equal(amt("300.00")))
	assert.Len(t, e.Events.RefundsPaid(), 1)
}

func TestTerminalRequestsRejectTransitions(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, refund.Config{})
	b := e.paidBill(t)

	paid := e.request(t, e.Manager, b.ID, "100.00")
	_, err := e.refunds.Approve(ctx, e.Manager, paid.ID)
	require.NoError(t, err)
	_, err = e.refunds.MarkPaid(ctx, refund.MarkPaidInput{Actor: e.Manager, RefundID: paid.ID})
	require.NoError(t, err)

	rejected := e.request(t, e.Manager, b.ID, "100.00")
	_, err = e.refunds.Reject(ctx, e.Manager, rejected.ID, "duplicate")
	require.NoError(t, err)

	cancelled := e.request(t, e.Manager, b.ID, "100.00")
	_, err = e.refunds.Cancel(ctx, e.Manager, cancelled.ID)
	require.NoError(t, err)

	for _, id := range []uuid.UUID{paid.ID, rejected.ID, cancelled.ID} {
		_, err = e.refunds.Approve(ctx, e.Manager, id)
		assert.ErrorIs(t, err, billing.ErrInvalidTransition)
		_, err = e.refunds.MarkPaid(ctx, refund.MarkPaidInput{Actor: e.Manager, RefundID: id})
		assert.ErrorIs(t, err, billing.ErrInvalidTransition)
		_, err = e.refunds.Cancel(ctx, e.Manager, id)
		assert.ErrorIs(t, err, billing.ErrInvalidTransition)
		_, err = e.refunds.Reject(ctx, e.Manager, id, "late")
		assert.ErrorIs(t, err, billing.ErrInvalidTransition)
	}

	e.AssertBalanced(t, b.ID)
}

func TestApproveRespectsOutstandingApprovals(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, refund.Config{})
	b := e.paidBill(t)

	first := e.request(t, e.Manager, b.ID, "700.00")
	second := e.request(t, e.Manager, b.ID, "400.00")

	_, err := e.refunds.Approve(ctx, e.Manager, first.ID)
	require.NoError(t, err)

	_, err = e.refunds.Approve(ctx, e.Manager, second.ID)
	var ex *billing.ExceedsRefundableError
	require.ErrorAs(t, err, &ex)
	assert.True(t, ex.Ceiling.Equal(amt("300.00")), "ceiling = %s", ex.Ceiling)

	got, err := e.refunds.Get(ctx, e.Manager, second.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.RequestPendingApproval, got.Status)
}

func TestMarkPaidRechecksCeiling(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, refund.Config{})
	b := e.paidBill(t)

	req := e.request(t, e.Manager, b.ID, "800.00")
	_, err := e.refunds.Approve(ctx, e.Manager, req.ID)
	require.NoError(t, err)

	// a negative adjustment lowers the ceiling after approval
	_, err = e.payments.RecordAdjustment(ctx, payment.AdjustmentInput{
		Actor: e.Manager, BillID: b.ID, Amount: amt("-500.00"), Reason: "insurer paid directly",
	})
	require.NoError(t, err)

	_, err = e.refunds.MarkPaid(ctx, refund.MarkPaidInput{Actor: e.Manager, RefundID: req.ID})
	require.ErrorIs(t, err, billing.ErrExceedsRefundable)

	records, err := e.Store.ListPaymentRecords(ctx, b.ID)
	require.NoError(t, err)
	for _, r := range records {
		assert.NotEqual(t, billing.RecordRefund, r.RecordType)
	}
}

func TestMarkPaidPayoutMethod(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, refund.Config{})
	b := e.paidBill(t)

	create := func(amount string) *billing.RefundRequest {
		req, err := e.refunds.Create(ctx, refund.CreateInput{
			Actor: e.Manager, BillID: b.ID, Amount: amt(amount), Method: billing.MethodCard, Reason: "overcharged",
		})
		require.NoError(t, err)
		_, err = e.refunds.Approve(ctx, e.Manager, req.ID)
		require.NoError(t, err)
		return req
	}

	t.Run("unknown method", func(t *testing.T) {
		req := create("10.00")
		_, err := e.refunds.MarkPaid(ctx, refund.MarkPaidInput{Actor: e.Manager, RefundID: req.ID, Method: "barter"})
		require.ErrorIs(t, err, billing.ErrValidation)

		got, err := e.refunds.Get(ctx, e.Manager, req.ID)
		require.NoError(t, err)
		assert.Equal(t, billing.RequestApproved, got.Status)
	})

	t.Run("paid in cash", func(t *testing.T) {
		req := create("100.00")
		paid, err := e.refunds.MarkPaid(ctx, refund.MarkPaidInput{Actor: e.Manager, RefundID: req.ID, Method: billing.MethodCash})
		require.NoError(t, err)
		assert.Equal(t, billing.MethodCash, paid.RefundMethod)

		stored, err := e.refunds.Get(ctx, e.Manager, req.ID)
		require.NoError(t, err)
		assert.Equal(t, billing.MethodCash, stored.RefundMethod)

		records, err := e.payments.ListPayments(ctx, e.Cashier, b.ID)
		require.NoError(t, err)
		last := records[len(records)-1]
		assert.Equal(t, billing.RecordRefund, last.RecordType)
		assert.Equal(t, billing.MethodCash, last.PaymentMethod)

		events := e.Events.RefundsPaid()
		require.NotEmpty(t, events)
		assert.Equal(t, billing.MethodCash, events[len(events)-1].Method)
	})

	t.Run("empty keeps the requested method", func(t *testing.T) {
		req := create("50.00")
		_, err := e.refunds.MarkPaid(ctx, refund.MarkPaidInput{Actor: e.Manager, RefundID: req.ID})
		require.NoError(t, err)

		records, err := e.payments.ListPayments(ctx, e.Cashier, b.ID)
		require.NoError(t, err)
		assert.Equal(t, billing.MethodCard, records[len(records)-1].PaymentMethod)
	})
}

func TestDirectPay(t *testing.T) {
	ctx := context.Background()

	t.Run("disabled", func(t *testing.T) {
		e := newEnv(t, refund.Config{})
		b := e.paidBill(t)
		req := e.request(t, e.Manager, b.ID, "50.00")
		_, err := e.refunds.MarkPaid(ctx, refund.MarkPaidInput{Actor: e.Manager, RefundID: req.ID})
		require.ErrorIs(t, err, billing.ErrInvalidTransition)
	})

	t.Run("enabled", func(t *testing.T) {
		e := newEnv(t, refund.Config{AllowDirectPay: true})
		b := e.paidBill(t)
		req := e.request(t, e.Manager, b.ID, "50.00")
		got, err := e.refunds.MarkPaid(ctx, refund.MarkPaidInput{Actor: e.Manager, RefundID: req.ID})
		require.NoError(t, err)
		assert.Equal(t, billing.RequestPaid, got.Status)
	})
}

func TestCancelPermissions(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, refund.Config{})
	b := e.paidBill(t)

	other := billing.Actor{UserID: uuid.New(), ClinicID: e.Clinic}

	own := e.request(t, e.Cashier, b.ID, "20.00")
	_, err := e.refunds.Cancel(ctx, other, own.ID)
	require.ErrorIs(t, err, billing.ErrForbidden)

	got, err := e.refunds.Cancel(ctx, e.Cashier, own.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.RequestCancelled, got.Status)
	require.NotNil(t, got.CancelledBy)

	byApprover := e.request(t, e.Cashier, b.ID, "20.00")
	_, err = e.refunds.Cancel(ctx, e.Manager, byApprover.ID)
	require.NoError(t, err)

	assert.Equal(t, billing.RefundNotRequested, e.AssertBalanced(t, b.ID).RefundStatus)
}

func TestRejectRequiresReason(t *testing.T) {
	e := newEnv(t, refund.Config{})
	b := e.paidBill(t)
	req := e.request(t, e.Manager, b.ID, "20.00")

	_, err := e.refunds.Reject(context.Background(), e.Manager, req.ID, "  ")
	require.ErrorIs(t, err, refund.ErrReasonRequired)

	got, err := e.refunds.Reject(context.Background(), e.Manager, req.ID, "not eligible")
	require.NoError(t, err)
	assert.Equal(t, "not eligible", got.RejectionReason)
}

func TestItemizedRefund(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, refund.Config{})

	b := e.Bill(t,
		servicetest.Item("600.00"),
		billing.ItemInput{ItemType: billing.ItemMedicine, Description: "tablets", Quantity: 4, UnitPrice: amt("100.00")},
	)
	_, err := e.payments.RecordPayment(ctx, payment.RecordPaymentInput{
		Actor: e.Cashier, BillID: b.ID, Amount: amt("1000.00"), Method: billing.MethodCard,
	})
	require.NoError(t, err)

	items, err := e.Store.ListItems(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	tablets := items[1]

	base := refund.CreateInput{Actor: e.Manager, BillID: b.ID, Method: billing.MethodCard, Reason: "returned"}

	tests := []struct {
		name   string
		amount string
		items  []refund.ItemInput
		want   error
	}{
		{"items do not sum", "200.00", []refund.ItemInput{{BillItemID: tablets.ID, Quantity: 1, Amount: amt("100.00")}}, refund.ErrItemsDoNotSum},
		{"unknown item", "100.00", []refund.ItemInput{{BillItemID: uuid.New(), Quantity: 1, Amount: amt("100.00")}}, refund.ErrUnknownBillItem},
		{"too many units", "100.00", []refund.ItemInput{{BillItemID: tablets.ID, Quantity: 5, Amount: amt("100.00")}}, refund.ErrItemQuantity},
		{"above line total", "450.00", []refund.ItemInput{{BillItemID: tablets.ID, Quantity: 4, Amount: amt("450.00")}}, refund.ErrItemAmount},
		{"non-positive item", "0.00", []refund.ItemInput{{BillItemID: tablets.ID, Quantity: 1, Amount: amt("0")}}, billing.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := base
			in.Amount = amt(tt.amount)
			in.Items = tt.items
			_, err := e.refunds.Create(ctx, in)
			require.ErrorIs(t, err, tt.want)
		})
	}

	in := base
	in.Amount = amt("200.00")
	in.Items = []refund.ItemInput{{BillItemID: tablets.ID, Quantity: 2, Amount: amt("200.00")}}
	req, err := e.refunds.Create(ctx, in)
	require.NoError(t, err)
	require.Len(t, req.Items, 1)

	_, err = e.refunds.Approve(ctx, e.Manager, req.ID)
	require.NoError(t, err)
	_, err = e.refunds.MarkPaid(ctx, refund.MarkPaidInput{Actor: e.Manager, RefundID: req.ID})
	require.NoError(t, err)

	items, err = e.Store.ListItems(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), items[1].RefundedQuantity)
	assert.True(t, items[1].RefundedAmount.Equal(amt("200.00")))
	assert.True(t, items[0].RefundedAmount.IsZero())

	// the remaining two units are still refundable, a third is not
	in.Items = []refund.ItemInput{{BillItemID: tablets.ID, Quantity: 3, Amount: amt("200.00")}}
	_, err = e.refunds.Create(ctx, in)
	require.ErrorIs(t, err, refund.ErrItemQuantity)
}

func TestOtherClinicSeesNothing(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, refund.Config{})
	b := e.paidBill(t)
	req := e.request(t, e.Manager, b.ID, "10.00")

	stranger := billing.Actor{UserID: e.Manager.UserID, ClinicID: uuid.New()}

	_, err := e.refunds.Get(ctx, stranger, req.ID)
	require.ErrorIs(t, err, billing.ErrRefundNotFound)

	_, err = e.refunds.Approve(ctx, stranger, req.ID)
	require.ErrorIs(t, err, billing.ErrRefundNotFound)

	_, err = e.refunds.Create(ctx, refund.CreateInput{
		Actor: stranger, BillID: b.ID, Amount: amt("1.00"), Method: billing.MethodCash, Reason: "x",
	})
	require.ErrorIs(t, err, billing.ErrBillNotFound)

	list, err := e.refunds.List(ctx, stranger, repo.RefundFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)

	list, err = e.refunds.List(ctx, e.Manager, repo.RefundFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
