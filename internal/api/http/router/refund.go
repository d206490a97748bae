package router

import (
	"github.com/gofiber/fiber/v3"

	"github.com/Alijeyrad/simorq_billing/internal/api/http/handler"
	"github.com/Alijeyrad/simorq_billing/pkg/authorize"
)

func (r *Router) registerRefundRoutes(
	api fiber.Router,
	h *handler.RefundHandler,
	requirePerm func(authorize.Resource, authorize.Action) fiber.Handler,
	idempotent fiber.Handler,
) {
	api.Get("/bills/:id/refunds", requirePerm(authorize.ResourceRefund, authorize.ActionList), h.ListForBill)
	api.Post("/bills/:id/refunds", requirePerm(authorize.ResourceRefund, authorize.ActionCreate), idempotent, h.Create)

	refunds := api.Group("/refunds")
	refunds.Get("/", requirePerm(authorize.ResourceRefund, authorize.ActionList), h.List)
	refunds.Get("/:id", requirePerm(authorize.ResourceRefund, authorize.ActionRead), h.Get)
	refunds.Post("/:id/submit", requirePerm(authorize.ResourceRefund, authorize.ActionUpdate), h.Submit)
	refunds.Post("/:id/cancel", requirePerm(authorize.ResourceRefund, authorize.ActionUpdate), h.Cancel)

	// Approver-only steps; the refund service checks the same capability
	refunds.Post("/:id/approve", requirePerm(authorize.ResourceRefund, authorize.ActionApprove), h.Approve)
	refunds.Post("/:id/reject", requirePerm(authorize.ResourceRefund, authorize.ActionApprove), h.Reject)
	refunds.Post("/:id/pay", requirePerm(authorize.ResourceRefund, authorize.ActionApprove), idempotent, h.Pay)
}
