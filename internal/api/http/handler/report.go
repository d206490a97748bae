package handler

import (
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/Alijeyrad/simorq_billing/internal/service/report"
)

type ReportHandler struct {
	svc report.Service
	now func() time.Time
	loc *time.Location
}

// NewReportHandler serves reconciliation reports. A missing date means today
// in the clinic time zone.
func NewReportHandler(svc report.Service, loc *time.Location) *ReportHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &ReportHandler{svc: svc, now: time.Now, loc: loc}
}

// GET /reports/daily?date=YYYY-MM-DD
func (h *ReportHandler) Daily(c fiber.Ctx) error {
	actor, err := actorFromFiber(c)
	if err != nil {
		return err
	}
	date, err := h.dateQuery(c, "date")
	if err != nil {
		return mapBillingError(c, err)
	}

	summary, err := h.svc.DailySummary(c.Context(), actor.ClinicID, date)
	if err != nil {
		return mapBillingError(c, err)
	}
	return ok(c, summary)
}

// GET /reports/enhanced?date=YYYY-MM-DD
func (h *ReportHandler) Enhanced(c fiber.Ctx) error {
	actor, err := actorFromFiber(c)
	if err != nil {
		return err
	}
	date, err := h.dateQuery(c, "date")
	if err != nil {
		return mapBillingError(c, err)
	}

	rep, err := h.svc.EnhancedReport(c.Context(), actor.ClinicID, date)
	if err != nil {
		return mapBillingError(c, err)
	}
	return ok(c, rep)
}

// GET /reports/period?from=YYYY-MM-DD&to=YYYY-MM-DD
func (h *ReportHandler) Period(c fiber.Ctx) error {
	actor, err := actorFromFiber(c)
	if err != nil {
		return err
	}
	if c.Query("from") == "" || c.Query("to") == "" {
		return badRequest(c, "from and to are required")
	}
	from, err := report.ParseDate("from", c.Query("from"))
	if err != nil {
		return mapBillingError(c, err)
	}
	to, err := report.ParseDate("to", c.Query("to"))
	if err != nil {
		return mapBillingError(c, err)
	}

	summary, err := h.svc.PeriodSummary(c.Context(), actor.ClinicID, from, to)
	if err != nil {
		return mapBillingError(c, err)
	}
	return ok(c, summary)
}

func (h *ReportHandler) dateQuery(c fiber.Ctx, name string) (time.Time, error) {
	s := c.Query(name)
	if s == "" {
		return report.ParseDate(name, h.now().In(h.loc).Format(report.DateLayout))
	}
	return report.ParseDate(name, s)
}
