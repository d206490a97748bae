package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/fx"

	"github.com/Alijeyrad/simorq_billing/config"
	"github.com/Alijeyrad/simorq_billing/internal/events"
	"github.com/Alijeyrad/simorq_billing/internal/service/notification"
)

// WorkerModule registers all NATS event workers.
var WorkerModule = fx.Module("workers",
	fx.Invoke(RegisterWorkers),
)

type WorkerParams struct {
	fx.In

	Lc       fx.Lifecycle
	Cfg      *config.Config
	NC       *nats.Conn `optional:"true"`
	NotifSvc notification.Service
}

func RegisterWorkers(p WorkerParams) {
	if p.NC == nil {
		slog.Info("nats not configured, refund notifications are delivered in-process")
		return
	}

	var sub *nats.Subscription
	p.Lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			s, err := startNotificationWorker(p.NC, p.Cfg.Nats.QueueGroup, p.NotifSvc)
			if err != nil {
				return err
			}
			sub = s
			return nil
		},
		OnStop: func(ctx context.Context) error {
			// Connection drain is handled by ProvideNatsClient
			if sub == nil {
				return nil
			}
			return sub.Unsubscribe()
		},
	})
}

// ---------------------------------------------------------------------------
// notification_worker
// ---------------------------------------------------------------------------

func startNotificationWorker(nc *nats.Conn, queue string, notifSvc notification.Service) (*nats.Subscription, error) {
	sub, err := nc.QueueSubscribe(events.SubjectRefundPaid+"*", queue, func(msg *nats.Msg) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := notification.HandleMessage(ctx, notifSvc, msg.Data); err != nil {
			slog.Warn("notification_worker: refund paid notification failed", "subject", msg.Subject, "err", err)
		}
	})
	if err != nil {
		slog.Error("notification_worker: subscribe refund.paid failed", "err", err)
		return nil, err
	}

	slog.Info("notification_worker: started", "queue", queue)
	return sub, nil
}
