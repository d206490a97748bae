package handler

import (
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/Alijeyrad/simorq_billing/internal/billing"
	"github.com/Alijeyrad/simorq_billing/internal/repo"
	"github.com/Alijeyrad/simorq_billing/internal/service/ledger"
	"github.com/Alijeyrad/simorq_billing/internal/service/report"
)

type BillHandler struct {
	svc ledger.Service
	loc *time.Location
}

// NewBillHandler serves the bill ledger. loc is the clinic time zone used to
// turn from/to query dates into instants.
func NewBillHandler(svc ledger.Service, loc *time.Location) *BillHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &BillHandler{svc: svc, loc: loc}
}

// POST /bills
func (h *BillHandler) Create(c fiber.Ctx) error {
	actor, err := actorFromFiber(c)
	if err != nil {
		return err
	}

	var body struct {
		PatientID string              `json:"patient_id"`
		VisitID   *string             `json:"visit_id"`
		BillDate  *time.Time          `json:"bill_date"`
		DueDate   *time.Time          `json:"due_date"`
		Notes     string              `json:"notes"`
		Items     []billing.ItemInput `json:"items"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return badRequest(c, "invalid request body")
	}

	patientID, err := uuid.Parse(body.PatientID)
	if err != nil {
		return badRequest(c, "invalid patient_id")
	}
	in := ledger.CreateBillInput{
		Actor:     actor,
		PatientID: patientID,
		BillDate:  body.BillDate,
		DueDate:   body.DueDate,
		Notes:     body.Notes,
		Items:     body.Items,
	}
	if body.VisitID != nil {
		id, err := uuid.Parse(*body.VisitID)
		if err != nil {
			return badRequest(c, "invalid visit_id")
		}
		in.VisitID = &id
	}

	b, err := h.svc.CreateBill(c.Context(), in)
	if err != nil {
		return mapBillingError(c, err)
	}
	return created(c, b)
}

// GET /bills
func (h *BillHandler) List(c fiber.Ctx) error {
	actor, err := actorFromFiber(c)
	if err != nil {
		return err
	}

	var q struct {
		PatientID     string `query:"patient_id"`
		PaymentStatus string `query:"payment_status"`
		From          string `query:"from"`
		To            string `query:"to"`
		Limit         int    `query:"limit"`
		Offset        int    `query:"offset"`
	}
	if err := c.Bind().Query(&q); err != nil {
		return badRequest(c, "invalid query")
	}

	f := repo.BillFilter{ClinicID: actor.ClinicID, Limit: q.Limit, Offset: q.Offset}
	if q.PatientID != "" {
		id, err := uuid.Parse(q.PatientID)
		if err != nil {
			return badRequest(c, "invalid patient_id")
		}
		f.PatientID = &id
	}
	if q.PaymentStatus != "" {
		ps, err := billing.ParsePaymentStatus(q.PaymentStatus)
		if err != nil {
			return mapBillingError(c, err)
		}
		f.PaymentStatus = &ps
	}
	if q.From != "" {
		d, err := report.ParseDate("from", q.From)
		if err != nil {
			return mapBillingError(c, err)
		}
		from := h.startOfDay(d)
		f.From = &from
	}
	if q.To != "" {
		d, err := report.ParseDate("to", q.To)
		if err != nil {
			return mapBillingError(c, err)
		}
		to := h.startOfDay(d).AddDate(0, 0, 1)
		f.To = &to
	}

	bills, err := h.svc.ListBills(c.Context(), actor, f)
	if err != nil {
		return mapBillingError(c, err)
	}
	return ok(c, fiber.Map{
		"bills":  bills,
		"limit":  repo.NormalizeLimit(q.Limit),
		"offset": q.Offset,
	})
}

// GET /bills/:id
func (h *BillHandler) Get(c fiber.Ctx) error {
	actor, err := actorFromFiber(c)
	if err != nil {
		return err
	}
	billID, err := uuidParam(c, "id")
	if err != nil {
		return err
	}

	details, err := h.svc.GetBill(c.Context(), actor, billID)
	if err != nil {
		return mapBillingError(c, err)
	}
	return ok(c, details)
}

// POST /bills/:id/items
func (h *BillHandler) AddItems(c fiber.Ctx) error {
	actor, err := actorFromFiber(c)
	if err != nil {
		return err
	}
	billID, err := uuidParam(c, "id")
	if err != nil {
		return err
	}

	var body struct {
		Items []billing.ItemInput `json:"items"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return badRequest(c, "invalid request body")
	}

	b, err := h.svc.AddItems(c.Context(), ledger.AddItemsInput{Actor: actor, BillID: billID, Items: body.Items})
	if err != nil {
		return mapBillingError(c, err)
	}
	return ok(c, b)
}

// POST /bills/:id/recompute
func (h *BillHandler) Recompute(c fiber.Ctx) error {
	actor, err := actorFromFiber(c)
	if err != nil {
		return err
	}
	billID, err := uuidParam(c, "id")
	if err != nil {
		return err
	}

	b, err := h.svc.RecomputeAggregates(c.Context(), actor, billID)
	if err != nil {
		return mapBillingError(c, err)
	}
	return ok(c, b)
}

// GET /bills/:id/refundable
func (h *BillHandler) Refundable(c fiber.Ctx) error {
	actor, err := actorFromFiber(c)
	if err != nil {
		return err
	}
	billID, err := uuidParam(c, "id")
	if err != nil {
		return err
	}

	amount, err := h.svc.GetRefundableAmount(c.Context(), actor, billID)
	if err != nil {
		return mapBillingError(c, err)
	}
	return ok(c, fiber.Map{"bill_id": billID, "refundable_amount": amount})
}

func (h *BillHandler) startOfDay(d time.Time) time.Time {
	y, m, day := d.Date()
	return time.Date(y, m, day, 0, 0, 0, 0, h.loc)
}
