package router

import (
	"github.com/gofiber/fiber/v3"

	"github.com/Alijeyrad/simorq_billing/internal/api/http/handler"
	"github.com/Alijeyrad/simorq_billing/pkg/authorize"
)

func (r *Router) registerBillRoutes(
	api fiber.Router,
	h *handler.BillHandler,
	ph *handler.PaymentHandler,
	requirePerm func(authorize.Resource, authorize.Action) fiber.Handler,
	idempotent fiber.Handler,
) {
	bills := api.Group("/bills")

	bills.Post("/", requirePerm(authorize.ResourceBill, authorize.ActionCreate), h.Create)
	bills.Get("/", requirePerm(authorize.ResourceBill, authorize.ActionList), h.List)
	bills.Get("/:id", requirePerm(authorize.ResourceBill, authorize.ActionRead), h.Get)
	bills.Post("/:id/items", requirePerm(authorize.ResourceBill, authorize.ActionUpdate), h.AddItems)
	bills.Post("/:id/recompute", requirePerm(authorize.ResourceBill, authorize.ActionExecute), h.Recompute)
	bills.Get("/:id/refundable", requirePerm(authorize.ResourceBill, authorize.ActionRead), h.Refundable)

	// Money movements
	bills.Get("/:id/payments", requirePerm(authorize.ResourcePayment, authorize.ActionRead), ph.List)
	bills.Post("/:id/payments", requirePerm(authorize.ResourcePayment, authorize.ActionCreate), idempotent, ph.Record)
	bills.Post("/:id/adjustments", requirePerm(authorize.ResourceAdjustment, authorize.ActionCreate), idempotent, ph.Adjust)
}
