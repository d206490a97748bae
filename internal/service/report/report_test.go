package report_test

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
	"github.com/Alijeyrad/simorq_billing/internal/service/report"
	"github.com/Alijeyrad/simorq_billing/internal/service/servicetest"
)

var amt = servicetest.Amt

type env struct {
	*servicetest.Fixture
	payments payment.Service
}

func newEnv(t *testing.T) *env {
	f := servicetest.New(t)
	return &env{
		Fixture:  f,
		payments: payment.New(f.Store, f.Ledger, f.Events, nil, payment.Config{}, payment.WithClock(f.Clock.Now)),
	}
}

func (e *env) pay(t *testing.T, billID uuid.UUID, amount string, method billing.PaymentMethod, at time.Time) {
	t.Helper()
	_, err := e.payments.RecordPayment(context.Background(), payment.RecordPaymentInput{
		Actor: e.Cashier, BillID: billID, Amount: amt(amount), Method: method, PaymentDate: &at,
	})
	require.NoError(t, err)
}

func (e *env) refundRecord(t *testing.T, b *billing.Bill, amount string, at time.Time) {
	t.Helper()
	require.NoError(t, e.Store.Tx(context.Background(), func(ctx context.Context, tx repo.Tx) error {
		return tx.AppendPaymentRecord(ctx, &billing.PaymentRecord{
			ID: uuid.New(), BillID: b.ID, ClinicID: b.ClinicID, PaymentDate: at,
			PaymentMethod: billing.MethodCash, Amount: amt(amount).Neg(), RecordType: billing.RecordRefund,
		})
	}))
}

func day(s string) time.Time {
	t, err := time.Parse(report.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func at(hour, minute int) time.Time {
	return time.Date(2026, 3, 14, hour, minute, 0, 0, time.UTC)
}

func TestDailySummary(t *testing.T) {
	e := newEnv(t)
	b := e.Bill(t, servicetest.Item("1000.00"))
	e.pay(t, b.ID, "500.00", billing.MethodCash, at(9, 15))
	e.pay(t, b.ID, "300.00", billing.MethodUPI, at(14, 40))
	// the next day must not leak in
	e.pay(t, b.ID, "50.00", billing.MethodCash, at(9, 0).AddDate(0, 0, 1))
	e.refundRecord(t, b, "100.00", at(16, 0))

	svc := report.New(e.Store, report.Config{})
	got, err := svc.DailySummary(context.Background(), e.Clinic, day("2026-03-14"))
	require.NoError(t, err)

	assert.Equal(t, "2026-03-14", got.Date)
	assert.True(t, got.Total.Equal(amt("800.00")), "total = %s", got.Total)
	assert.Equal(t, 2, got.TransactionCount)
	require.Len(t, got.Breakdown, 2)

	assert.Equal(t, billing.MethodCash, got.Breakdown[0].Method)
	assert.True(t, got.Breakdown[0].Amount.Equal(amt("500.00")))
	assert.Equal(t, 1, got.Breakdown[0].Count)
	assert.Equal(t, "62.5", got.Breakdown[0].Percentage.String())

	assert.Equal(t, billing.MethodUPI, got.Breakdown[1].Method)
	assert.True(t, got.Breakdown[1].Amount.Equal(amt("300.00")))
	assert.Equal(t, "37.5", got.Breakdown[1].Percentage.String())

	assert.True(t, got.RefundsTotal.Equal(amt("100.00")))
	assert.True(t, got.NetCollected.Equal(amt("700.00")))
}

func TestDailySummaryEmptyDay(t *testing.T) {
	e := newEnv(t)
	svc := report.New(e.Store, report.Config{})

	got, err := svc.DailySummary(context.Background(), e.Clinic, day("2026-01-01"))
	require.NoError(t, err)
	assert.True(t, got.Total.IsZero())
	assert.Zero(t, got.TransactionCount)
	assert.Empty(t, got.Breakdown)
	assert.NotNil(t, got.Breakdown)
}

func TestDailySummaryUsesClinicTimezone(t *testing.T) {
	e := newEnv(t)
	tehran := time.FixedZone("IRST", 3*3600+1800)
	b := e.Bill(t, servicetest.Item("100.00"))

	e.pay(t, b.ID, "30.00", billing.MethodCash, at(20, 0)) // 23:30 local, same day
	e.pay(t, b.ID, "40.00", billing.MethodCard, at(21, 0)) // 00:30 local, next day

	svc := report.New(e.Store, report.Config{Location: tehran})

	got, err := svc.DailySummary(context.Background(), e.Clinic, day("2026-03-14"))
	require.NoError(t, err)
	assert.True(t, got.Total.Equal(amt("30.00")))

	next, err := svc.DailySummary(context.Background(), e.Clinic, day("2026-03-15"))
	require.NoError(t, err)
	assert.True(t, next.Total.Equal(amt("40.00")))

	enhanced, err := svc.EnhancedReport(context.Background(), e.Clinic, day("2026-03-14"))
	require.NoError(t, err)
	require.Len(t, enhanced.PeakHours, 1)
	assert.Equal(t, 23, enhanced.PeakHours[0].Hour)
}

func TestEnhancedReport(t *testing.T) {
	e := newEnv(t)
	b := e.Bill(t,
		billing.ItemInput{ItemType: billing.ItemConsultation, Description: "visit", Quantity: 1, UnitPrice: amt("600.00")},
		billing.ItemInput{ItemType: billing.ItemMedicine, Description: "tablets", Quantity: 4, UnitPrice: amt("100.00")},
	)
	other := e.Bill(t, servicetest.Item("75.00"))

	e.pay(t, b.ID, "500.00", billing.MethodCash, at(9, 15))
	e.pay(t, b.ID, "300.00", billing.MethodUPI, at(14, 40))
	e.pay(t, other.ID, "25.00", billing.MethodCash, at(9, 50))

	svc := report.New(e.Store, report.Config{PeakHours: 2})
	got, err := svc.EnhancedReport(context.Background(), e.Clinic, day("2026-03-14"))
	require.NoError(t, err)

	assert.True(t, got.Total.Equal(amt("825.00")))
	assert.Equal(t, 3, got.TransactionCount)
	assert.True(t, got.AverageTransactionValue.Equal(amt("275.00")))
	// 200.00 left on the first bill, 50.00 on the second
	assert.True(t, got.OutstandingBalance.Equal(amt("250.00")), "outstanding = %s", got.OutstandingBalance)

	require.Len(t, got.ServiceCategories, 2)
	assert.Equal(t, billing.ItemConsultation, got.ServiceCategories[0].ItemType)
	assert.True(t, got.ServiceCategories[0].Amount.Equal(amt("505.00")), "consultation = %s", got.ServiceCategories[0].Amount)
	assert.Equal(t, billing.ItemMedicine, got.ServiceCategories[1].ItemType)
	assert.True(t, got.ServiceCategories[1].Amount.Equal(amt("320.00")))
	assert.True(t, got.ServiceCategories[0].Amount.Add(got.ServiceCategories[1].Amount).Equal(got.Total))

	require.Len(t, got.HourlyBreakdown, 24)
	assert.True(t, got.HourlyBreakdown[9].Amount.Equal(amt("525.00")))
	assert.Equal(t, 2, got.HourlyBreakdown[9].Count)
	assert.True(t, got.HourlyBreakdown[14].Amount.Equal(amt("300.00")))

	require.Len(t, got.PeakHours, 2)
	assert.Equal(t, 9, got.PeakHours[0].Hour)
	assert.Equal(t, 14, got.PeakHours[1].Hour)
}

func TestEnhancedReportNoTransactions(t *testing.T) {
	e := newEnv(t)
	e.Bill(t, servicetest.Item("40.00"))

	svc := report.New(e.Store, report.Config{})
	got, err := svc.EnhancedReport(context.Background(), e.Clinic, day("2026-03-14"))
	require.NoError(t, err)

	assert.True(t, got.AverageTransactionValue.IsZero())
	assert.True(t, got.OutstandingBalance.Equal(amt("40.00")))
	assert.Empty(t, got.ServiceCategories)
	assert.Empty(t, got.PeakHours)
}

func TestPeakHoursTieBreak(t *testing.T) {
	e := newEnv(t)
	b := e.Bill(t, servicetest.Item("1000.00"))
	e.pay(t, b.ID, "100.00", billing.MethodCash, at(15, 0))
	e.pay(t, b.ID, "100.00", billing.MethodCash, at(8, 0))
	e.pay(t, b.ID, "100.00", billing.MethodCash, at(11, 0))
	e.pay(t, b.ID, "150.00", billing.MethodCash, at(17, 0))

	svc := report.New(e.Store, report.Config{})
	got, err := svc.EnhancedReport(context.Background(), e.Clinic, day("2026-03-14"))
	require.NoError(t, err)

	hours := make([]int, 0, len(got.PeakHours))
	for _, h := range got.PeakHours {
		hours = append(hours, h.Hour)
	}
	assert.Equal(t, []int{17, 8, 11}, hours)
}

func TestPeriodSummary(t *testing.T) {
	e := newEnv(t)
	b := e.Bill(t, servicetest.Item("1000.00"))
	e.pay(t, b.ID, "100.00", billing.MethodCash, at(10, 0).AddDate(0, 0, -1))
	e.pay(t, b.ID, "200.00", billing.MethodCard, at(10, 0))
	e.pay(t, b.ID, "300.00", billing.MethodCard, at(10, 0).AddDate(0, 0, 2))
	e.refundRecord(t, b, "50.00", at(12, 0))

	svc := report.New(e.Store, report.Config{})
	got, err := svc.PeriodSummary(context.Background(), e.Clinic, day("2026-03-13"), day("2026-03-15"))
	require.NoError(t, err)

	assert.Equal(t, "2026-03-13", got.From)
	assert.Equal(t, "2026-03-15", got.To)
	assert.True(t, got.Total.Equal(amt("300.00")))
	assert.Equal(t, 2, got.TransactionCount)
	assert.True(t, got.RefundsTotal.Equal(amt("50.00")))
	assert.True(t, got.NetCollected.Equal(amt("250.00")))

	require.Len(t, got.Days, 3)
	assert.True(t, got.Days[0].Total.Equal(amt("100.00")))
	assert.True(t, got.Days[1].Total.Equal(amt("200.00")))
	assert.True(t, got.Days[1].RefundsTotal.Equal(amt("50.00")))
	assert.True(t, got.Days[2].Total.IsZero())

	require.Len(t, got.Breakdown, 2)
	assert.Equal(t, billing.MethodCard, got.Breakdown[0].Method)
}

func TestPeriodSummaryValidation(t *testing.T) {
	e := newEnv(t)
	svc := report.New(e.Store, report.Config{})

	_, err := svc.PeriodSummary(context.Background(), e.Clinic, day("2026-03-15"), day("2026-03-14"))
	require.ErrorIs(t, err, report.ErrPeriodOrder)

	_, err = svc.PeriodSummary(context.Background(), e.Clinic, day("2026-01-01"), day("2026-04-15"))
	require.ErrorIs(t, err, report.ErrPeriodLength)
	require.ErrorIs(t, err, billing.ErrValidation)

	_, err = svc.PeriodSummary(context.Background(), e.Clinic, day("2026-01-01"), day("2026-04-02"))
	require.NoError(t, err)
}

func TestParseDate(t *testing.T) {
	got, err := report.ParseDate("date", "2026-02-28")
	require.NoError(t, err)
	assert.Equal(t, 28, got.Day())

	_, err = report.ParseDate("date", "28/02/2026")
	require.ErrorIs(t, err, billing.ErrValidation)
}
