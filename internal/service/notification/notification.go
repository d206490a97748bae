// Package notification tells patients about money leaving the clinic.
package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Alijeyrad/simorq_billing/internal/directory"
	"github.com/Alijeyrad/simorq_billing/internal/events"
	"github.com/Alijeyrad/simorq_billing/pkg/email"
	"github.com/Alijeyrad/simorq_billing/pkg/phone"
)

// ---------------------------------------------------------------------------
// Dependencies
// ---------------------------------------------------------------------------

type SMSSender interface {
	SendTemplate(ctx context.Context, phoneNumber, templateID string, params map[string]string) error
}

type EmailSender interface {
	Send(ctx context.Context, m email.Message) error
}

type Config struct {
	RefundTemplateID string
	DefaultRegion    string
	Location         *time.Location
	AppName          string
}

// ---------------------------------------------------------------------------
// Interface
// ---------------------------------------------------------------------------

type Service interface {
	// RefundPaid sends the refund receipt over every channel the patient has.
	// It fails only when no channel accepted the message.
	RefundPaid(ctx context.Context, e events.RefundPaid) error
}

// ---------------------------------------------------------------------------
// Implementation
// ---------------------------------------------------------------------------

type notificationService struct {
	dir  directory.Directory
	sms  SMSSender
	mail EmailSender
	cfg  Config
}

func New(dir directory.Directory, sms SMSSender, mail EmailSender, cfg Config) Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &notificationService{dir: dir, sms: sms, mail: mail, cfg: cfg}
}

func (s *notificationService) RefundPaid(ctx context.Context, e events.RefundPaid) error {
	p, err := s.dir.Patient(ctx, e.PatientID)
	if err != nil {
		return fmt.Errorf("lookup patient: %w", err)
	}

	paidAt := e.PaidAt.In(s.cfg.Location).Format("2006-01-02 15:04")
	var (
		sent int
		errs []error
	)

	if p.Phone != "" && s.sms != nil && s.cfg.RefundTemplateID != "" {
		number, err := phone.E164(p.Phone, s.cfg.DefaultRegion)
		if err == nil {
			err = s.sms.SendTemplate(ctx, number, s.cfg.RefundTemplateID, map[string]string{
				"name":        p.FullName,
				"amount":      e.Amount.String(),
				"bill_number": e.BillNumber,
			})
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("sms: %w", err))
		} else {
			sent++
		}
	}

	if p.Email != "" && s.mail != nil {
		msg := email.BuildRefundPaidEmail(email.RefundPaidEmailData{
			PatientName: p.FullName,
			Email:       p.Email,
			BillNumber:  e.BillNumber,
			Amount:      e.Amount.String(),
			Method:      string(e.Method),
			PaidAt:      paidAt,
			AppName:     s.cfg.AppName,
		})
		if err := s.mail.Send(ctx, msg); err != nil {
			var disabled email.ErrDisabled
			if !errors.As(err, &disabled) {
				errs = append(errs, fmt.Errorf("email: %w", err))
			}
		} else {
			sent++
		}
	}

	if len(errs) > 0 {
		slog.WarnContext(ctx, "refund notification partly failed",
			"refund_request_id", e.RefundRequestID,
			"sent", sent,
			"error", errors.Join(errs...),
		)
	}
	if sent == 0 {
		if len(errs) > 0 {
			return errors.Join(errs...)
		}
		return ErrNoContact
	}

	slog.InfoContext(ctx, "refund notification sent",
		"refund_request_id", e.RefundRequestID,
		"bill_number", e.BillNumber,
		"channels", sent,
	)
	return nil
}

// ---------------------------------------------------------------------------
// Event adapters
// ---------------------------------------------------------------------------

// Publisher delivers RefundPaid events in-process. It is used when no NATS
// connection is configured.
type Publisher struct {
	svc Service
}

var _ events.Publisher = (*Publisher)(nil)

func NewPublisher(svc Service) *Publisher {
	return &Publisher{svc: svc}
}

func (p *Publisher) Publish(ctx context.Context, e events.Event) {
	rp, ok := e.(events.RefundPaid)
	if !ok {
		return
	}
	// Detached from the request so a finished response does not cancel it.
	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if err := p.svc.RefundPaid(ctx, rp); err != nil {
			slog.WarnContext(ctx, "refund notification failed", "refund_request_id", rp.RefundRequestID, "error", err)
		}
	}()
}

// HandleMessage decodes a RefundPaid event delivered over NATS.
func HandleMessage(ctx context.Context, svc Service, data []byte) error {
	var e events.RefundPaid
	if err := json.Unmarshal(data, &e); err != nil {
		return fmt.Errorf("decode refund paid: %w", err)
	}
	return svc.RefundPaid(ctx, e)
}
