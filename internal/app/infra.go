package app

import (
	"context"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"github.com/Alijeyrad/simorq_billing/config"
	"github.com/Alijeyrad/simorq_billing/internal/directory"
	"github.com/Alijeyrad/simorq_billing/internal/repo"
	"github.com/Alijeyrad/simorq_billing/internal/repo/memory"
	"github.com/Alijeyrad/simorq_billing/pkg/authorize"
	"github.com/Alijeyrad/simorq_billing/pkg/constants"
	"github.com/Alijeyrad/simorq_billing/pkg/database"
	"github.com/Alijeyrad/simorq_billing/pkg/email"
	"github.com/Alijeyrad/simorq_billing/pkg/observability"
	redispkg "github.com/Alijeyrad/simorq_billing/pkg/redis"
	"github.com/Alijeyrad/simorq_billing/pkg/sms"
)

// InfraModule provides all infrastructure dependencies.
var InfraModule = fx.Module("infra",
	fx.Provide(ProvideStore),
	fx.Provide(ProvideRedis),
	fx.Provide(ProvideAuthorization),
	fx.Provide(ProvideEmailClient),
	fx.Provide(ProvideSMSClient),
	fx.Provide(ProvideOTel),
	fx.Provide(ProvideNatsClient),
)

type StoreResult struct {
	fx.Out

	Store     repo.Store
	Reader    repo.Reader
	Directory directory.Directory
}

// ProvideStore opens the billing store for the configured driver. The
// postgres driver resolves patients and visits from the clinical tables on
// the same connection.
func ProvideStore(lc fx.Lifecycle, cfg *config.Config) (StoreResult, error) {
	var (
		store repo.Store
		dir   directory.Directory
	)

	switch cfg.Database.Driver {
	case constants.DriverMemory:
		slog.Warn("using in-memory billing store, data is lost on restart")
		store = memory.New()
		dir = directory.Unchecked{}
	default:
		pg, err := database.NewStore(cfg.Database)
		if err != nil {
			return StoreResult{}, err
		}
		if cfg.Database.Migrations.AutoMigrate {
			if err := database.Migrate(context.Background(), pg, cfg.Database, false); err != nil {
				_ = pg.Close()
				return StoreResult{}, err
			}
		}
		store = pg
		dir = directory.NewSQL(pg.Driver())
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			slog.Debug("closing billing store")
			return store.Close()
		},
	})
	return StoreResult{Store: store, Reader: store, Directory: dir}, nil
}

// ProvideRedis returns nil when no address is configured. Idempotency, rate
// limiting and the report cache are skipped in that case.
func ProvideRedis(lc fx.Lifecycle, cfg *config.Config) (*redis.Client, error) {
	if cfg.Redis.Addr == "" {
		slog.Warn("redis not configured, idempotency keys and report cache are disabled")
		return nil, nil
	}
	rdb, err := redispkg.NewRedisFromCentral(cfg.Redis)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			slog.Debug("closing Redis connection")
			return rdb.Close()
		},
	})
	return rdb, nil
}

func ProvideAuthorization(lc fx.Lifecycle, cfg *config.Config) (authorize.IAuthorization, error) {
	if cfg.Database.Driver == constants.DriverMemory {
		enforcer, err := authorize.NewLocalEnforcer(cfg.Authorization.CasbinModelPath, cfg.Authorization.PolicyPath)
		if err != nil {
			return nil, err
		}
		baseAuth, err := authorize.NewAuthorization(enforcer, authorize.WithSuperadminBypass(cfg.Authorization.SuperadminBypass))
		if err != nil {
			return nil, err
		}
		if err := authorize.SeedDefaultPolicies(context.Background(), baseAuth); err != nil {
			return nil, err
		}
		return wrapAudit(baseAuth, cfg), nil
	}

	dsn := database.NewDSN(cfg.CasbinDatabase)
	enforcer, cleanup, err := authorize.NewEnforcer(cfg.Authorization.CasbinModelPath, dsn)
	if err != nil {
		return nil, err
	}
	baseAuth, err := authorize.NewAuthorization(enforcer, authorize.WithSuperadminBypass(cfg.Authorization.SuperadminBypass))
	if err != nil {
		cleanup(context.Background())
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			slog.Debug("cleaning up Casbin enforcer")
			cleanup(ctx)
			return nil
		},
	})
	return wrapAudit(baseAuth, cfg), nil
}

func wrapAudit(auth authorize.IAuthorization, cfg *config.Config) authorize.IAuthorization {
	if !cfg.Authorization.EnableAudit {
		return auth
	}
	return authorize.NewAuditedAuthorization(auth, slog.Default())
}

func ProvideEmailClient(cfg *config.Config) (*email.Client, error) {
	return email.NewFromCentral(cfg.Email)
}

func ProvideSMSClient(cfg *config.Config) (*sms.Client, error) {
	return sms.NewFromConfig(cfg.SMS)
}

// ProvideNatsClient returns nil when no URL is configured; events are then
// delivered in-process.
func ProvideNatsClient(lc fx.Lifecycle, cfg *config.Config) (*nats.Conn, error) {
	if cfg.Nats.URL == "" {
		return nil, nil
	}
	nc, err := nats.Connect(cfg.Nats.URL, nats.Name(constants.AppName))
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			slog.Debug("draining NATS connection")
			return nc.Drain()
		},
	})
	return nc, nil
}

func ProvideOTel(lc fx.Lifecycle, cfg *config.Config) (*observability.Provider, error) {
	if !cfg.Observability.Enabled {
		return nil, nil
	}
	provider, err := observability.InitTelemetry(context.Background(), observability.Config{
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		Environment:    cfg.Server.Environment,
		TracingEnabled: cfg.Observability.Tracing.Enabled,
		OTLPEndpoint:   cfg.Observability.Tracing.OTLPEndpoint,
		OTLPInsecure:   cfg.Observability.Tracing.OTLPInsecure,
		SamplingRate:   cfg.Observability.Tracing.SamplingRate,
		MetricsEnabled: cfg.Observability.Metrics.Enabled,
	})
	if err != nil {
		return nil, err
	}
	slog.Info("observability initialized",
		"tracing", cfg.Observability.Tracing.Enabled,
		"metrics", cfg.Observability.Metrics.Enabled,
	)
	lc.Append(fx.StopHook(provider.Shutdown))
	return provider, nil
}
