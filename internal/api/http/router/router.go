package router

import (
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"github.com/Alijeyrad/simorq_billing/config"
	"github.com/Alijeyrad/simorq_billing/internal/api/http/handler"
	"github.com/Alijeyrad/simorq_billing/internal/api/http/middleware"
	"github.com/Alijeyrad/simorq_billing/internal/service/ledger"
	"github.com/Alijeyrad/simorq_billing/internal/service/payment"
	"github.com/Alijeyrad/simorq_billing/internal/service/refund"
	"github.com/Alijeyrad/simorq_billing/internal/service/report"
	"github.com/Alijeyrad/simorq_billing/pkg/authorize"
	pasetotoken "github.com/Alijeyrad/simorq_billing/pkg/paseto"
)

// Module provides the Router to the fx graph.
var Module = fx.Module("router", fx.Provide(NewRouter))

type Params struct {
	fx.In

	Cfg        *config.Config
	Redis      *redis.Client `optional:"true"`
	Auth       authorize.IAuthorization
	LedgerSvc  ledger.Service
	PaymentSvc payment.Service
	RefundSvc  refund.Service
	ReportSvc  report.Service
	PasetoMgr  *pasetotoken.Manager
}

type Router struct {
	p Params
}

func NewRouter(p Params) *Router {
	return &Router{p: p}
}

func (r *Router) Register(app *fiber.App) {
	// 1. Health & Metrics
	r.registerSystemRoutes(app)

	// 2. Initialize Middlewares
	authRequired := middleware.AuthRequired(r.p.PasetoMgr, r.p.Redis)
	clinicHeader := middleware.ClinicHeader(r.p.Auth)
	idempotent := middleware.Idempotency(r.p.Redis, r.p.Cfg.Billing.IdempotencyTTL())

	// Permission helper
	requirePerm := func(res authorize.Resource, act authorize.Action) fiber.Handler {
		return middleware.RequirePermission(r.p.Auth, res, act)
	}

	// 3. Initialize Handlers
	loc := r.p.Cfg.Billing.Location()
	billH := handler.NewBillHandler(r.p.LedgerSvc, loc)
	paymentH := handler.NewPaymentHandler(r.p.PaymentSvc)
	refundH := handler.NewRefundHandler(r.p.RefundSvc)
	reportH := handler.NewReportHandler(r.p.ReportSvc, loc)

	api := app.Group("/api/v1", authRequired, clinicHeader)

	// 4. Delegate to sub-files
	r.registerBillRoutes(api, billH, paymentH, requirePerm, idempotent)
	r.registerRefundRoutes(api, refundH, requirePerm, idempotent)
	r.registerReportRoutes(api, reportH, requirePerm)
}

func (r *Router) registerSystemRoutes(app *fiber.App) {
	app.Get(healthcheck.LivenessEndpoint, healthcheck.New())
	app.Get(healthcheck.ReadinessEndpoint, healthcheck.New(healthcheck.Config{
		Probe: func(c fiber.Ctx) bool { return authorize.IsPolicyHealthy() },
	}))
	app.Get(healthcheck.StartupEndpoint, healthcheck.New())

	if r.p.Cfg.Observability.Enabled && r.p.Cfg.Observability.Metrics.Enabled {
		path := r.p.Cfg.Observability.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		app.Get(path, adaptor.HTTPHandler(promhttp.Handler()))
	}
}
