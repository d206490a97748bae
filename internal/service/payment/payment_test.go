package payment_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alijeyrad/simorq_billing/internal/billing"
	"github.com/Alijeyrad/simorq_billing/internal/repo"
	"github.com/Alijeyrad/simorq_billing/internal/service/payment"
	"github.com/Alijeyrad/simorq_billing/internal/service/servicetest"
	"github.com/Alijeyrad/simorq_billing/pkg/money"
)

var amt = servicetest.Amt

func newService(f *servicetest.Fixture, cfg payment.Config) payment.Service {
	return payment.New(f.Store, f.Ledger, f.Events, nil, cfg, payment.WithClock(f.Clock.Now))
}

func pay(t *testing.T, svc payment.Service, actor billing.Actor, billID uuid.UUID, amount string, method billing.PaymentMethod) *payment.Receipt {
	t.Helper()
	r, err := svc.RecordPayment(context.Background(), payment.RecordPaymentInput{
		Actor: actor, BillID: billID, Amount: amt(amount), Method: method,
	})
	require.NoError(t, err)
	return r
}

func TestRecordPaymentStatuses(t *testing.T) {
	f := servicetest.New(t)
	svc := newService(f, payment.Config{})
	b := f.Bill(t, servicetest.Item("1000.00"))

	r := pay(t, svc, f.Cashier, b.ID, "400.00", billing.MethodCard)
	assert.Equal(t, billing.PaymentPartial, r.Bill.PaymentStatus)
	assert.True(t, r.Bill.BalanceAmount.Equal(amt("600.00")))
	assert.Equal(t, billing.RecordPayment, r.Record.RecordType)
	assert.Equal(t, f.Cashier.UserID, r.Record.ReceivedBy)
	f.AssertBalanced(t, b.ID)

	r = pay(t, svc, f.Cashier, b.ID, "600.00", billing.MethodUPI)
	assert.Equal(t, billing.PaymentPaid, r.Bill.PaymentStatus)
	assert.True(t, r.Bill.BalanceAmount.IsZero())
	assert.True(t, r.Bill.CollectedAmount.Equal(amt("1000.00")))
	f.AssertBalanced(t, b.ID)

	records, err := svc.ListPayments(context.Background(), f.Cashier, b.ID)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, billing.MethodCard, records[0].PaymentMethod)
	assert.Equal(t, billing.MethodUPI, records[1].PaymentMethod)
}

func TestRecordPaymentKeepsCallerDate(t *testing.T) {
	f := servicetest.New(t)
	svc := newService(f, payment.Config{})
	b := f.Bill(t, servicetest.Item("50.00"))

	when := f.Clock.Now().Add(-3 * time.Hour)
	r, err := svc.RecordPayment(context.Background(), payment.RecordPaymentInput{
		Actor: f.Cashier, BillID: b.ID, Amount: amt("50.00"), Method: billing.MethodCash, PaymentDate: &when,
	})
	require.NoError(t, err)
	assert.True(t, r.Record.PaymentDate.Equal(when))
	assert.True(t, r.Record.CreatedAt.Equal(f.Clock.Now()))
}

func TestRecordPaymentValidation(t *testing.T) {
	f := servicetest.New(t)
	svc := newService(f, payment.Config{})
	b := f.Bill(t, servicetest.Item("100.00"))

	tests := []struct {
		name   string
		amount string
		method billing.PaymentMethod
		want   error
	}{
		{"zero", "0", billing.MethodCash, payment.ErrInvalidAmount},
		{"negative", "-1.00", billing.MethodCash, payment.ErrInvalidAmount},
		{"unknown method", "1.00", "bitcoin", billing.ErrValidation},
		{"empty method", "1.00", "", billing.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.RecordPayment(context.Background(), payment.RecordPaymentInput{
				Actor: f.Cashier, BillID: b.ID, Amount: amt(tt.amount), Method: tt.method,
			})
			require.ErrorIs(t, err, tt.want)
		})
	}

	_, err := svc.RecordPayment(context.Background(), payment.RecordPaymentInput{
		Actor: f.Cashier, BillID: uuid.New(), Amount: amt("1.00"), Method: billing.MethodCash,
	})
	require.ErrorIs(t, err, billing.ErrBillNotFound)
}

func TestOverpaymentPolicy(t *testing.T) {
	t.Run("allowed by default", func(t *testing.T) {
		f := servicetest.New(t)
		svc := newService(f, payment.Config{})
		b := f.Bill(t, servicetest.Item("100.00"))

		r := pay(t, svc, f.Cashier, b.ID, "120.00", billing.MethodCash)
		assert.True(t, r.Bill.BalanceAmount.Equal(amt("-20.00")))
		assert.Equal(t, billing.PaymentPaid, r.Bill.PaymentStatus)
		assert.Contains(t, r.Record.Notes, "overpayment of 20.00")
		f.AssertBalanced(t, b.ID)
	})

	t.Run("rejected when configured", func(t *testing.T) {
		f := servicetest.New(t)
		svc := newService(f, payment.Config{RejectOverpayment: true})
		b := f.Bill(t, servicetest.Item("100.00"))

		_, err := svc.RecordPayment(context.Background(), payment.RecordPaymentInput{
			Actor: f.Cashier, BillID: b.ID, Amount: amt("120.00"), Method: billing.MethodCash,
		})
		require.ErrorIs(t, err, billing.ErrOverpaymentNotAllowed)
		var op *billing.OverpaymentError
		require.ErrorAs(t, err, &op)
		assert.True(t, op.Balance.Equal(amt("100.00")))

		records, err := f.Store.ListPaymentRecords(context.Background(), b.ID)
		require.NoError(t, err)
		assert.Empty(t, records)

		ok := pay(t, svc, f.Cashier, b.ID, "100.00", billing.MethodCash)
		assert.Equal(t, billing.PaymentPaid, ok.Bill.PaymentStatus)
	})
}

func TestRecordAdjustment(t *testing.T) {
	ctx := context.Background()
	f := servicetest.New(t)
	svc := newService(f, payment.Config{})
	b := f.Bill(t, servicetest.Item("500.00"))
	pay(t, svc, f.Cashier, b.ID, "200.00", billing.MethodCash)

	r, err := svc.RecordAdjustment(ctx, payment.AdjustmentInput{
		Actor: f.Manager, BillID: b.ID, Amount: amt("300.00"), Reason: "insurance settlement",
	})
	require.NoError(t, err)
	assert.Equal(t, billing.RecordAdjustment, r.Record.RecordType)
	assert.True(t, r.Bill.PaidAmount.Equal(amt("500.00")))
	assert.True(t, r.Bill.CollectedAmount.Equal(amt("200.00")))
	assert.True(t, r.Bill.AdjustedAmount.Equal(amt("300.00")))
	assert.Equal(t, billing.PaymentPaid, r.Bill.PaymentStatus)
	f.AssertBalanced(t, b.ID)

	r, err = svc.RecordAdjustment(ctx, payment.AdjustmentInput{
		Actor: f.Manager, BillID: b.ID, Amount: amt("-450.00"), Reason: "reversal",
	})
	require.NoError(t, err)
	assert.True(t, r.Bill.PaidAmount.Equal(amt("50.00")))
	assert.Equal(t, billing.PaymentPartial, r.Bill.PaymentStatus)
	f.AssertBalanced(t, b.ID)
}

func TestRecordAdjustmentBounds(t *testing.T) {
	ctx := context.Background()
	f := servicetest.New(t)
	svc := newService(f, payment.Config{})
	b := f.Bill(t, servicetest.Item("100.00"))
	pay(t, svc, f.Cashier, b.ID, "60.00", billing.MethodCash)

	tests := []struct {
		name   string
		amount string
		reason string
		method billing.PaymentMethod
		want   error
	}{
		{"zero", "0", "x", "", payment.ErrZeroAdjustment},
		{"no reason", "5.00", " ", "", payment.ErrReasonRequired},
		{"bad method", "5.00", "x", "gold", billing.ErrValidation},
		{"below zero", "-60.01", "x", "", payment.ErrPaidBelowZero},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.RecordAdjustment(ctx, payment.AdjustmentInput{
				Actor: f.Manager, BillID: b.ID, Amount: amt(tt.amount), Reason: tt.reason, Method: tt.method,
			})
			require.ErrorIs(t, err, tt.want)
		})
	}

	stored := f.AssertBalanced(t, b.ID)
	assert.True(t, stored.PaidAmount.Equal(amt("60.00")))
}

func TestAdjustmentCannotDropBelowRefunded(t *testing.T) {
	ctx := context.Background()
	f := servicetest.New(t)
	svc := newService(f, payment.Config{})
	b := f.Bill(t, servicetest.Item("100.00"))
	pay(t, svc, f.Cashier, b.ID, "100.00", billing.MethodCash)

	// record a paid refund of 40 directly, mirroring what the refund service writes
	seedPaidRefund(t, f, b, amt("40.00"))

	_, err := svc.RecordAdjustment(ctx, payment.AdjustmentInput{
		Actor: f.Manager, BillID: b.ID, Amount: amt("-70.00"), Reason: "correction",
	})
	require.ErrorIs(t, err, payment.ErrPaidBelowRefunded)

	_, err = svc.RecordAdjustment(ctx, payment.AdjustmentInput{
		Actor: f.Manager, BillID: b.ID, Amount: amt("-60.00"), Reason: "correction",
	})
	require.NoError(t, err)
	f.AssertBalanced(t, b.ID)
}

func TestListPaymentsHidesOtherClinics(t *testing.T) {
	f := servicetest.New(t)
	svc := newService(f, payment.Config{})
	b := f.Bill(t, servicetest.Item("10.00"))

	_, err := svc.ListPayments(context.Background(), billing.Actor{UserID: uuid.New(), ClinicID: uuid.New()}, b.ID)
	require.ErrorIs(t, err, billing.ErrBillNotFound)

	_, err = svc.RecordPayment(context.Background(), payment.RecordPaymentInput{
		Actor: billing.Actor{UserID: uuid.New(), ClinicID: uuid.New()}, BillID: b.ID, Amount: amt("1.00"), Method: billing.MethodCash,
	})
	require.ErrorIs(t, err, billing.ErrBillNotFound)
}

func seedPaidRefund(t *testing.T, f *servicetest.Fixture, b *billing.Bill, amount money.Amount) {
	t.Helper()
	ctx := context.Background()
	now := f.Clock.Now()
	err := f.Store.Tx(ctx, func(ctx context.Context, tx repo.Tx) error {
		bill, err := tx.LockBill(ctx, b.ID)
		if err != nil {
			return err
		}
		req := billing.RefundRequest{
			ID: uuid.New(), BillID: b.ID, ClinicID: b.ClinicID, PatientID: b.PatientID,
			SourceType: billing.SourceBill, TotalAmount: amount, RefundMethod: billing.MethodCash,
			Reason: "seed", Status: billing.RequestPaid, PaidAt: &now, CreatedAt: now, UpdatedAt: now,
		}
		if err := tx.CreateRefundRequest(ctx, &req); err != nil {
			return err
		}
		if err := tx.AppendPaymentRecord(ctx, &billing.PaymentRecord{
			ID: uuid.New(), BillID: b.ID, ClinicID: b.ClinicID, PaymentDate: now, PaymentMethod: billing.MethodCash,
			Amount: amount.Neg(), RecordType: billing.RecordRefund, RefundRequestID: &req.ID, CreatedAt: now,
		}); err != nil {
			return err
		}
		return f.Ledger.Recompute(ctx, tx, bill)
	})
	require.NoError(t, err)
}
