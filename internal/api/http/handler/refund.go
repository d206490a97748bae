package handler

import (
	"context"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/Alijeyrad/simorq_billing/internal/billing"
	"github.com/Alijeyrad/simorq_billing/internal/repo"
	"github.com/Alijeyrad/simorq_billing/internal/service/refund"
	"github.com/Alijeyrad/simorq_billing/pkg/money"
)

type RefundHandler struct {
	svc refund.Service
}

func NewRefundHandler(svc refund.Service) *RefundHandler {
	return &RefundHandler{svc: svc}
}

// POST /bills/:id/refunds
func (h *RefundHandler) Create(c fiber.Ctx) error {
	actor, err := actorFromFiber(c)
	if err != nil {
		return err
	}
	billID, err := uuidParam(c, "id")
	if err != nil {
		return err
	}

	var body struct {
		Amount          money.Amount       `json:"amount"`
		RefundMethod    string             `json:"refund_method"`
		Reason          string             `json:"reason"`
		SourceType      string             `json:"source_type"`
		SourceReference string             `json:"source_reference"`
		Notes           string             `json:"notes"`
		Items           []refund.ItemInput `json:"items"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return badRequest(c, "invalid request body")
	}

	req, err := h.svc.Create(c.Context(), refund.CreateInput{
		Actor:           actor,
		BillID:          billID,
		Amount:          body.Amount,
		Method:          billing.PaymentMethod(body.RefundMethod),
		Reason:          body.Reason,
		SourceType:      billing.RefundSource(body.SourceType),
		SourceReference: body.SourceReference,
		Notes:           body.Notes,
		Items:           body.Items,
	})
	if err != nil {
		return mapBillingError(c, err)
	}
	return created(c, req)
}

// GET /bills/:id/refunds
func (h *RefundHandler) ListForBill(c fiber.Ctx) error {
	actor, err := actorFromFiber(c)
	if err != nil {
		return err
	}
	billID, err := uuidParam(c, "id")
	if err != nil {
		return err
	}

	reqs, err := h.svc.ListForBill(c.Context(), actor, billID)
	if err != nil {
		return mapBillingError(c, err)
	}
	return ok(c, reqs)
}

// GET /refunds
func (h *RefundHandler) List(c fiber.Ctx) error {
	actor, err := actorFromFiber(c)
	if err != nil {
		return err
	}

	var q struct {
		BillID string `query:"bill_id"`
		Status string `query:"status"`
		Limit  int    `query:"limit"`
		Offset int    `query:"offset"`
	}
	if err := c.Bind().Query(&q); err != nil {
		return badRequest(c, "invalid query")
	}

	f := repo.RefundFilter{ClinicID: actor.ClinicID, Limit: q.Limit, Offset: q.Offset}
	if q.BillID != "" {
		id, err := uuid.Parse(q.BillID)
		if err != nil {
			return badRequest(c, "invalid bill_id")
		}
		f.BillID = &id
	}
	if q.Status != "" {
		st, err := billing.ParseRequestStatus(q.Status)
		if err != nil {
			return mapBillingError(c, err)
		}
		f.Status = &st
	}

	reqs, err := h.svc.List(c.Context(), actor, f)
	if err != nil {
		return mapBillingError(c, err)
	}
	return ok(c, fiber.Map{
		"refunds": reqs,
		"limit":   repo.NormalizeLimit(q.Limit),
		"offset":  q.Offset,
	})
}

// GET /refunds/:id
func (h *RefundHandler) Get(c fiber.Ctx) error {
	return h.act(c, h.svc.Get)
}

// POST /refunds/:id/submit
func (h *RefundHandler) Submit(c fiber.Ctx) error {
	return h.act(c, h.svc.Submit)
}

// POST /refunds/:id/approve
func (h *RefundHandler) Approve(c fiber.Ctx) error {
	return h.act(c, h.svc.Approve)
}

// POST /refunds/:id/cancel
func (h *RefundHandler) Cancel(c fiber.Ctx) error {
	return h.act(c, h.svc.Cancel)
}

// POST /refunds/:id/reject
func (h *RefundHandler) Reject(c fiber.Ctx) error {
	actor, err := actorFromFiber(c)
	if err != nil {
		return err
	}
	id, err := uuidParam(c, "id")
	if err != nil {
		return err
	}

	var body struct {
		Reason string `json:"reason"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return badRequest(c, "invalid request body")
	}

	req, err := h.svc.Reject(c.Context(), actor, id, body.Reason)
	if err != nil {
		return mapBillingError(c, err)
	}
	return ok(c, req)
}

// POST /refunds/:id/pay
func (h *RefundHandler) Pay(c fiber.Ctx) error {
	actor, err := actorFromFiber(c)
	if err != nil {
		return err
	}
	id, err := uuidParam(c, "id")
	if err != nil {
		return err
	}

	var body struct {
		PaymentMethod billing.PaymentMethod `json:"payment_method"`
		Reference     string                `json:"reference"`
		Notes         string                `json:"notes"`
	}
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&body); err != nil {
			return badRequest(c, "invalid request body")
		}
	}

	req, err := h.svc.MarkPaid(c.Context(), refund.MarkPaidInput{
		Actor:     actor,
		RefundID:  id,
		Method:    body.PaymentMethod,
		Reference: body.Reference,
		Notes:     body.Notes,
	})
	if err != nil {
		return mapBillingError(c, err)
	}
	return ok(c, req)
}

type refundAction func(ctx context.Context, actor billing.Actor, id uuid.UUID) (*billing.RefundRequest, error)

func (h *RefundHandler) act(c fiber.Ctx, fn refundAction) error {
	actor, err := actorFromFiber(c)
	if err != nil {
		return err
	}
	id, err := uuidParam(c, "id")
	if err != nil {
		return err
	}

	req, err := fn(c.Context(), actor, id)
	if err != nil {
		return mapBillingError(c, err)
	}
	return ok(c, req)
}
