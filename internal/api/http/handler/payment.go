package handler

import (
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/Alijeyrad/simorq_billing/internal/billing"
	"github.com/Alijeyrad/simorq_billing/internal/service/payment"
	"github.com/Alijeyrad/simorq_billing/pkg/money"
)

type PaymentHandler struct {
	svc payment.Service
}

func NewPaymentHandler(svc payment.Service) *PaymentHandler {
	return &PaymentHandler{svc: svc}
}

// GET /bills/:id/payments
func (h *PaymentHandler) List(c fiber.Ctx) error {
	actor, err := actorFromFiber(c)
	if err != nil {
		return err
	}
	billID, err := uuidParam(c, "id")
	if err != nil {
		return err
	}

	records, err := h.svc.ListPayments(c.Context(), actor, billID)
	if err != nil {
		return mapBillingError(c, err)
	}
	return ok(c, records)
}

// POST /bills/:id/payments
func (h *PaymentHandler) Record(c fiber.Ctx) error {
	actor, err := actorFromFiber(c)
	if err != nil {
		return err
	}
	billID, err := uuidParam(c, "id")
	if err != nil {
		return err
	}

	var body struct {
		Amount        money.Amount `json:"amount"`
		PaymentMethod string       `json:"payment_method"`
		PaymentDate   *time.Time   `json:"payment_date"`
		Reference     string       `json:"reference"`
		Notes         string       `json:"notes"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return badRequest(c, "invalid request body")
	}

	receipt, err := h.svc.RecordPayment(c.Context(), payment.RecordPaymentInput{
		Actor:       actor,
		BillID:      billID,
		Amount:      body.Amount,
		Method:      billing.PaymentMethod(body.PaymentMethod),
		PaymentDate: body.PaymentDate,
		Reference:   body.Reference,
		Notes:       body.Notes,
	})
	if err != nil {
		return mapBillingError(c, err)
	}
	return created(c, receipt)
}

// POST /bills/:id/adjustments
func (h *PaymentHandler) Adjust(c fiber.Ctx) error {
	actor, err := actorFromFiber(c)
	if err != nil {
		return err
	}
	billID, err := uuidParam(c, "id")
	if err != nil {
		return err
	}

	var body struct {
		Amount        money.Amount `json:"amount"`
		PaymentMethod string       `json:"payment_method"`
		Reason        string       `json:"reason"`
		Reference     string       `json:"reference"`
		Notes         string       `json:"notes"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return badRequest(c, "invalid request body")
	}

	receipt, err := h.svc.RecordAdjustment(c.Context(), payment.AdjustmentInput{
		Actor:     actor,
		BillID:    billID,
		Amount:    body.Amount,
		Method:    billing.PaymentMethod(body.PaymentMethod),
		Reason:    body.Reason,
		Reference: body.Reference,
		Notes:     body.Notes,
	})
	if err != nil {
		return mapBillingError(c, err)
	}
	return created(c, receipt)
}
