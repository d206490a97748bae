package router

import (
	"github.com/gofiber/fiber/v3"

	"github.com/Alijeyrad/simorq_billing/internal/api/http/handler"
	"github.com/Alijeyrad/simorq_billing/pkg/authorize"
)

func (r *Router) registerReportRoutes(
	api fiber.Router,
	h *handler.ReportHandler,
	requirePerm func(authorize.Resource, authorize.Action) fiber.Handler,
) {
	reports := api.Group("/reports", requirePerm(authorize.ResourceReport, authorize.ActionRead))
	reports.Get("/daily", h.Daily)
	reports.Get("/enhanced", h.Enhanced)
	reports.Get("/period", h.Period)
}
