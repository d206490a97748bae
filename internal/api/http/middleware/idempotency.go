package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/redis/go-redis/v9"

	"github.com/Alijeyrad/simorq_billing/pkg/constants"
	pasetotoken "github.com/Alijeyrad/simorq_billing/pkg/paseto"
)

const (
	idempotencyPending = "pending"
	idempotencyLockTTL = 30 * time.Second
	maxIdempotencyKey  = 255
)

func redisKeyIdempotency(clinicID, userID, method, path, key string) string {
	return fmt.Sprintf("idempotency:%s:%s:%s:%s:%s", clinicID, userID, method, path, key)
}

type storedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// Idempotency makes POSTs carrying an Idempotency-Key header safe to retry.
// The first response below 500 is kept for ttl and replayed verbatim with
// Idempotent-Replayed: true. A retry that arrives while the first request is
// still running gets 409. Requests without the header, or any Redis failure,
// pass straight through.
func Idempotency(rdb *redis.Client, ttl time.Duration) fiber.Handler {
	return func(c fiber.Ctx) error {
		key := strings.TrimSpace(c.Get(constants.HeaderIdempotencyKey))
		if key == "" || rdb == nil {
			return c.Next()
		}
		if len(key) > maxIdempotencyKey {
			return fiber.NewError(fiber.StatusBadRequest, "Idempotency-Key is too long")
		}

		var userID string
		if claims, ok := pasetotoken.ClaimsFromFiber(c); ok {
			userID = claims.UserID.String()
		}
		clinicID, _ := c.Locals(LocalsClinicID).(string)
		rk := redisKeyIdempotency(clinicID, userID, c.Method(), c.Path(), key)
		ctx := c.Context()

		raw, err := rdb.Get(ctx, rk).Bytes()
		switch {
		case err == nil:
			return replay(c, raw)
		case !errors.Is(err, redis.Nil):
			slog.WarnContext(ctx, "idempotency store unavailable", "error", err)
			return c.Next()
		}

		acquired, err := rdb.SetNX(ctx, rk, idempotencyPending, idempotencyLockTTL).Result()
		if err != nil {
			slog.WarnContext(ctx, "idempotency store unavailable", "error", err)
			return c.Next()
		}
		if !acquired {
			raw, err := rdb.Get(ctx, rk).Bytes()
			if err != nil {
				return fiber.NewError(fiber.StatusConflict, "a request with this Idempotency-Key is still in progress")
			}
			return replay(c, raw)
		}

		if err := c.Next(); err != nil {
			rdb.Del(ctx, rk)
			return err
		}

		status := c.Response().StatusCode()
		if status >= fiber.StatusInternalServerError {
			rdb.Del(ctx, rk)
			return nil
		}

		data, err := json.Marshal(storedResponse{
			Status:      status,
			ContentType: string(c.Response().Header.ContentType()),
			Body:        append([]byte(nil), c.Response().Body()...),
		})
		if err == nil {
			err = rdb.Set(ctx, rk, data, ttl).Err()
		}
		if err != nil {
			slog.WarnContext(ctx, "failed to store idempotent response", "error", err)
			rdb.Del(ctx, rk)
		}
		return nil
	}
}

func replay(c fiber.Ctx, raw []byte) error {
	if string(raw) == idempotencyPending {
		return fiber.NewError(fiber.StatusConflict, "a request with this Idempotency-Key is still in progress")
	}

	var r storedResponse
	if err := json.Unmarshal(raw, &r); err != nil {
		return fmt.Errorf("decode idempotent response: %w", err)
	}

	c.Set(constants.HeaderIdempotentReplay, "true")
	if r.ContentType != "" {
		c.Set(fiber.HeaderContentType, r.ContentType)
	}
	return c.Status(r.Status).Send(r.Body)
}
