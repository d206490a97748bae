// Package servicetest wires the billing services on the in-memory store for
// package tests.
package servicetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/Alijeyrad/simorq_billing/internal/billing"
	"github.com/Alijeyrad/simorq_billing/internal/directory"
	"github.com/Alijeyrad/simorq_billing/internal/events"
	"github.com/Alijeyrad/simorq_billing/internal/repo/memory"
	"github.com/Alijeyrad/simorq_billing/internal/service/ledger"
	"github.com/Alijeyrad/simorq_billing/pkg/money"
)

// Clock is a settable time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(t time.Time) *Clock { return &Clock{now: t} }

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Recorder collects published events.
type Recorder struct {
	mu     sync.Mutex
	Events []events.Event
}

func (r *Recorder) Publish(_ context.Context, e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, e)
}

func (r *Recorder) RefundsPaid() []events.RefundPaid {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.RefundPaid
	for _, e := range r.Events {
		if rp, ok := e.(events.RefundPaid); ok {
			out = append(out, rp)
		}
	}
	return out
}

type Fixture struct {
	Store   *memory.Store
	Dir     *directory.Memory
	Clock   *Clock
	Events  *Recorder
	Ledger  ledger.Service
	Clinic  uuid.UUID
	Patient directory.Patient
	Cashier billing.Actor
	Manager billing.Actor
}

// New builds a fixture with one clinic, one patient and two staff members.
func New(t testing.TB) *Fixture {
	t.Helper()

	f := &Fixture{
		Store:  memory.New(),
		Dir:    directory.NewMemory(),
		Clock:  NewClock(time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)),
		Events: &Recorder{},
		Clinic: uuid.New(),
	}
	f.Patient = directory.Patient{
		ID:       uuid.New(),
		ClinicID: f.Clinic,
		FullName: "Sara Ahmadi",
		Phone:    "09121234567",
		Email:    "sara@example.com",
	}
	f.Dir.AddPatient(f.Patient)
	f.Cashier = billing.Actor{UserID: uuid.New(), ClinicID: f.Clinic}
	f.Manager = billing.Actor{UserID: uuid.New(), ClinicID: f.Clinic}
	f.Ledger = ledger.New(f.Store, f.Dir, f.Events, nil, ledger.Config{}, ledger.WithClock(f.Clock.Now))
	return f
}

func Amt(s string) money.Amount { return money.MustParse(s) }

// Item is a single unit line of the given price.
func Item(price string) billing.ItemInput {
	return billing.ItemInput{
		ItemType:    billing.ItemConsultation,
		Description: "consultation",
		Quantity:    1,
		UnitPrice:   Amt(price),
	}
}

// Bill creates a bill for the fixture patient with the given items.
func (f *Fixture) Bill(t testing.TB, items ...billing.ItemInput) *billing.Bill {
	t.Helper()
	b, err := f.Ledger.CreateBill(context.Background(), ledger.CreateBillInput{
		Actor:     f.Cashier,
		PatientID: f.Patient.ID,
		Items:     items,
	})
	require.NoError(t, err)
	return b
}

// AssertBalanced checks paid + balance == total on the stored bill.
func (f *Fixture) AssertBalanced(t testing.TB, billID uuid.UUID) *billing.Bill {
	t.Helper()
	b, err := f.Store.GetBill(context.Background(), billID)
	require.NoError(t, err)
	require.Truef(t, b.PaidAmount.Add(b.BalanceAmount).Equal(b.TotalAmount),
		"paid %s + balance %s != total %s", b.PaidAmount, b.BalanceAmount, b.TotalAmount)
	require.Truef(t, b.TotalRefundedAmount.LessOrEqual(b.PaidAmount),
		"refunded %s > paid %s", b.TotalRefundedAmount, b.PaidAmount)
	return b
}
