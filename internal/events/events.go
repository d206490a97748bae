// Package events carries billing facts out of committed transactions.
// Publishing is fire-and-forget: a failed publish is logged and never undoes
// the ledger change that caused it.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/Alijeyrad/simorq_billing/internal/billing"
	"github.com/Alijeyrad/simorq_billing/pkg/money"
)

const (
	SubjectPrefix     = "simorq.billing."
	SubjectRefundPaid = SubjectPrefix + "refund.paid."
	SubjectBillChange = SubjectPrefix + "bill.changed."
)

type Event interface {
	Subject() string
	Clinic() uuid.UUID
}

// BillChanged is emitted after any committed ledger mutation.
type BillChanged struct {
	BillID   uuid.UUID `json:"bill_id"`
	ClinicID uuid.UUID `json:"clinic_id"`
	Reason   string    `json:"reason"`
}

func (e BillChanged) Subject() string   { return SubjectBillChange + e.BillID.String() }
func (e BillChanged) Clinic() uuid.UUID { return e.ClinicID }

// RefundPaid is emitted once a refund has been paid out.
type RefundPaid struct {
	BillID          uuid.UUID             `json:"bill_id"`
	RefundRequestID uuid.UUID             `json:"refund_request_id"`
	ClinicID        uuid.UUID             `json:"clinic_id"`
	PatientID       uuid.UUID             `json:"patient_id"`
	BillNumber      string                `json:"bill_number"`
	Amount          money.Amount          `json:"amount"`
	Method          billing.PaymentMethod `json:"method"`
	PaidAt          time.Time             `json:"paid_at"`
}

func (e RefundPaid) Subject() string   { return SubjectRefundPaid + e.BillID.String() }
func (e RefundPaid) Clinic() uuid.UUID { return e.ClinicID }

type Publisher interface {
	Publish(ctx context.Context, e Event)
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) {}

// Multi fans an event out to every publisher in order.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, e Event) {
	for _, p := range m {
		p.Publish(ctx, e)
	}
}

// NATS publishes events as JSON on their subject.
type NATS struct {
	nc  *nats.Conn
	log *slog.Logger
}

func NewNATS(nc *nats.Conn, log *slog.Logger) *NATS {
	if log == nil {
		log = slog.Default()
	}
	return &NATS{nc: nc, log: log}
}

func (p *NATS) Publish(ctx context.Context, e Event) {
	data, err := json.Marshal(e)
	if err != nil {
		p.log.ErrorContext(ctx, "events: marshal failed", "subject", e.Subject(), "err", err)
		return
	}
	if err := p.nc.Publish(e.Subject(), data); err != nil {
		p.log.WarnContext(ctx, "events: publish failed", "subject", e.Subject(), "err", err)
	}
}
