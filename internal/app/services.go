package app

import (
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"github.com/Alijeyrad/simorq_billing/config"
	"github.com/Alijeyrad/simorq_billing/internal/directory"
	"github.com/Alijeyrad/simorq_billing/internal/events"
	"github.com/Alijeyrad/simorq_billing/internal/repo"
	"github.com/Alijeyrad/simorq_billing/internal/service/ledger"
	"github.com/Alijeyrad/simorq_billing/internal/service/notification"
	"github.com/Alijeyrad/simorq_billing/internal/service/payment"
	"github.com/Alijeyrad/simorq_billing/internal/service/refund"
	"github.com/Alijeyrad/simorq_billing/internal/service/report"
	"github.com/Alijeyrad/simorq_billing/pkg/authorize"
	"github.com/Alijeyrad/simorq_billing/pkg/email"
	"github.com/Alijeyrad/simorq_billing/pkg/observability"
	pasetotoken "github.com/Alijeyrad/simorq_billing/pkg/paseto"
	"github.com/Alijeyrad/simorq_billing/pkg/sms"
)

// ServiceModule provides all application service dependencies.
var ServiceModule = fx.Module("services",
	fx.Provide(
		ProvideMetrics,
		ProvideNotificationService,
		ProvidePublisher,
		ProvideLedgerService,
		ProvideRecomputer,
		ProvidePaymentService,
		ProvideRefundService,
		ProvideReportService,
		ProvidePasetoManager,
	),
)

func ProvideMetrics() *observability.Metrics {
	return observability.NewMetrics()
}

func ProvideNotificationService(dir directory.Directory, smsCli *sms.Client, mail *email.Client, cfg *config.Config) notification.Service {
	var (
		smsSender  notification.SMSSender
		mailSender notification.EmailSender
	)
	if smsCli.IsEnabled() {
		smsSender = smsCli
	}
	if mail.IsEnabled() {
		mailSender = mail
	}
	return notification.New(dir, smsSender, mailSender, notification.Config{
		RefundTemplateID: cfg.SMS.SMSIR.RefundTemplateID,
		DefaultRegion:    cfg.SMS.SMSIR.DefaultRegion,
		Location:         cfg.Billing.Location(),
		AppName:          cfg.Observability.ServiceName,
	})
}

type PublisherParams struct {
	fx.In

	NC       *nats.Conn    `optional:"true"`
	Redis    *redis.Client `optional:"true"`
	NotifSvc notification.Service
}

// ProvidePublisher routes committed billing events. With NATS they go on the
// bus and the notification worker picks refunds up; without it refunds are
// notified in-process. Report cache invalidation always runs locally.
func ProvidePublisher(p PublisherParams) events.Publisher {
	var pubs events.Multi
	if p.NC != nil {
		pubs = append(pubs, events.NewNATS(p.NC, slog.Default()))
	} else {
		pubs = append(pubs, notification.NewPublisher(p.NotifSvc))
	}
	if p.Redis != nil {
		pubs = append(pubs, report.NewInvalidator(p.Redis))
	}
	return pubs
}

func ProvideLedgerService(store repo.Store, dir directory.Directory, pub events.Publisher, metrics *observability.Metrics, cfg *config.Config) ledger.Service {
	return ledger.New(store, dir, pub, metrics, ledger.Config{
		BillNumberPrefix: cfg.Billing.BillNumberPrefix,
		Location:         cfg.Billing.Location(),
		PaymentDueDays:   cfg.Billing.PaymentDueDays,
	})
}

func ProvideRecomputer(svc ledger.Service) ledger.Recomputer {
	return svc
}

func ProvidePaymentService(store repo.Store, rc ledger.Recomputer, pub events.Publisher, metrics *observability.Metrics, cfg *config.Config) payment.Service {
	return payment.New(store, rc, pub, metrics, payment.Config{
		RejectOverpayment: !cfg.Billing.AllowOverpayment,
	})
}

func ProvideRefundService(store repo.Store, rc ledger.Recomputer, auth authorize.IAuthorization, pub events.Publisher, metrics *observability.Metrics, cfg *config.Config) refund.Service {
	return refund.New(store, rc, refund.CasbinApprovers(auth), pub, metrics, refund.Config{
		AllowDirectPay: cfg.Billing.AllowDirectRefundPay,
	})
}

type ReportParams struct {
	fx.In

	Reader  repo.Reader
	Redis   *redis.Client `optional:"true"`
	Metrics *observability.Metrics
	Cfg     *config.Config
}

// ProvideReportService wraps the reporter in the Redis cache when one is
// configured and the TTL is positive.
func ProvideReportService(p ReportParams) report.Service {
	svc := report.New(p.Reader, report.Config{
		Location:  p.Cfg.Billing.Location(),
		PeakHours: p.Cfg.Billing.PeakHours,
	})
	if p.Redis == nil || p.Cfg.Billing.ReportCacheTTL() <= 0 {
		return svc
	}
	return report.NewCache(svc, p.Redis, p.Cfg.Billing.ReportCacheTTL(), p.Metrics)
}

func ProvidePasetoManager(cfg *config.Config) (*pasetotoken.Manager, error) {
	return pasetotoken.NewPasetoManager(cfg)
}
