package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/Alijeyrad/simorq_billing/internal/events"
	"github.com/Alijeyrad/simorq_billing/pkg/observability"
)

const DefaultCacheTTL = 5 * time.Minute

func redisKeyVersion(clinicID uuid.UUID) string {
	return "billing:report:version:" + clinicID.String()
}

func redisKeyReport(clinicID uuid.UUID, version int64, kind, args string) string {
	return fmt.Sprintf("billing:report:%s:v%d:%s:%s", clinicID, version, kind, args)
}

// ---------------------------------------------------------------------------
// Cache
// ---------------------------------------------------------------------------

// Cache serves reports from Redis. Every key embeds the clinic's cache
// version, so bumping the version hides all older entries at once.
// Concurrent misses for the same key share one computation.
type Cache struct {
	next    Service
	rdb     *redis.Client
	ttl     time.Duration
	metrics *observability.Metrics
	group   singleflight.Group
}

var _ Service = (*Cache)(nil)

func NewCache(next Service, rdb *redis.Client, ttl time.Duration, metrics *observability.Metrics) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{next: next, rdb: rdb, ttl: ttl, metrics: metrics}
}

func (c *Cache) DailySummary(ctx context.Context, clinicID uuid.UUID, date time.Time) (*DailySummary, error) {
	return cached(ctx, c, clinicID, "daily", date.Format(DateLayout), func(ctx context.Context) (*DailySummary, error) {
		return c.next.DailySummary(ctx, clinicID, date)
	})
}

func (c *Cache) EnhancedReport(ctx context.Context, clinicID uuid.UUID, date time.Time) (*EnhancedReport, error) {
	return cached(ctx, c, clinicID, "enhanced", date.Format(DateLayout), func(ctx context.Context) (*EnhancedReport, error) {
		return c.next.EnhancedReport(ctx, clinicID, date)
	})
}

func (c *Cache) PeriodSummary(ctx context.Context, clinicID uuid.UUID, from, to time.Time) (*PeriodSummary, error) {
	args := from.Format(DateLayout) + "_" + to.Format(DateLayout)
	return cached(ctx, c, clinicID, "period", args, func(ctx context.Context) (*PeriodSummary, error) {
		return c.next.PeriodSummary(ctx, clinicID, from, to)
	})
}

func cached[T any](ctx context.Context, c *Cache, clinicID uuid.UUID, kind, args string, load func(context.Context) (*T, error)) (*T, error) {
	version, err := c.rdb.Get(ctx, redisKeyVersion(clinicID)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		slog.WarnContext(ctx, "report cache unavailable", "clinic_id", clinicID, "error", err)
		return load(ctx)
	}
	key := redisKeyReport(clinicID, version, kind, args)

	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var out T
		if err := json.Unmarshal(raw, &out); err == nil {
			c.metrics.ReportCache(ctx, kind, true)
			return &out, nil
		}
		slog.WarnContext(ctx, "discarding undecodable cached report", "key", key)
	} else if !errors.Is(err, redis.Nil) {
		slog.WarnContext(ctx, "report cache read failed", "key", key, "error", err)
	}
	c.metrics.ReportCache(ctx, kind, false)

	v, err, _ := c.group.Do(key, func() (any, error) {
		out, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if b, err := json.Marshal(out); err == nil {
			if err := c.rdb.Set(ctx, key, b, c.ttl).Err(); err != nil {
				slog.WarnContext(ctx, "report cache write failed", "key", key, "error", err)
			}
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*T), nil
}

// ---------------------------------------------------------------------------
// Invalidator
// ---------------------------------------------------------------------------

// Invalidator bumps the clinic cache version whenever a bill changes.
type Invalidator struct {
	rdb *redis.Client
}

var _ events.Publisher = (*Invalidator)(nil)

func NewInvalidator(rdb *redis.Client) *Invalidator {
	return &Invalidator{rdb: rdb}
}

func (i *Invalidator) Publish(ctx context.Context, e events.Event) {
	if err := i.rdb.Incr(ctx, redisKeyVersion(e.Clinic())).Err(); err != nil {
		slog.WarnContext(ctx, "report cache invalidation failed",
			"clinic_id", e.Clinic(),
			"subject", e.Subject(),
			"error", err,
		)
	}
}
