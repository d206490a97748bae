package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v3"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alijeyrad/simorq_billing/pkg/constants"
)

func newIdempotentApp(t *testing.T, rdb *redis.Client, status *int, calls *int) *fiber.App {
	t.Helper()
	app := fiber.New()
	app.Post("/pay", Idempotency(rdb, time.Minute), func(c fiber.Ctx) error {
		*calls++
		return c.Status(*status).JSON(fiber.Map{"call": *calls})
	})
	return app
}

func post(t *testing.T, app *fiber.App, key string) (*http.Response, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/pay", nil)
	if key != "" {
		req.Header.Set(constants.HeaderIdempotencyKey, key)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestIdempotencyReplaysStoredResponse(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	status, calls := http.StatusCreated, 0
	app := newIdempotentApp(t, rdb, &status, &calls)

	first, firstBody := post(t, app, "k1")
	second, secondBody := post(t, app, "k1")

	assert.Equal(t, 1, calls)
	assert.Equal(t, http.StatusCreated, first.StatusCode)
	assert.Equal(t, http.StatusCreated, second.StatusCode)
	assert.Equal(t, firstBody, secondBody)
	assert.Empty(t, first.Header.Get(constants.HeaderIdempotentReplay))
	assert.Equal(t, "true", second.Header.Get(constants.HeaderIdempotentReplay))
	assert.Equal(t, first.Header.Get(fiber.HeaderContentType), second.Header.Get(fiber.HeaderContentType))

	_, _ = post(t, app, "k2")
	assert.Equal(t, 2, calls, "a new key runs the handler")

	_, _ = post(t, app, "")
	_, _ = post(t, app, "")
	assert.Equal(t, 4, calls, "requests without a key are never deduplicated")
}

func TestIdempotencyKeepsClientErrors(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	status, calls := http.StatusUnprocessableEntity, 0
	app := newIdempotentApp(t, rdb, &status, &calls)

	_, _ = post(t, app, "k")
	status = http.StatusCreated
	resp, _ := post(t, app, "k")

	assert.Equal(t, 1, calls)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestIdempotencyForgetsServerErrors(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	status, calls := http.StatusInternalServerError, 0
	app := newIdempotentApp(t, rdb, &status, &calls)

	_, _ = post(t, app, "k")
	status = http.StatusCreated
	resp, _ := post(t, app, "k")

	assert.Equal(t, 2, calls)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Empty(t, resp.Header.Get(constants.HeaderIdempotentReplay))
}

func TestIdempotencyConflictWhileInFlight(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	status, calls := http.StatusCreated, 0
	app := newIdempotentApp(t, rdb, &status, &calls)

	require.NoError(t, mr.Set(redisKeyIdempotency("", "", http.MethodPost, "/pay", "busy"), idempotencyPending))

	resp, _ := post(t, app, "busy")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, 0, calls)
}

func TestIdempotencyRejectsLongKeys(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	status, calls := http.StatusCreated, 0
	app := newIdempotentApp(t, rdb, &status, &calls)

	resp, _ := post(t, app, strings.Repeat("x", maxIdempotencyKey+1))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, 0, calls)
}

func TestIdempotencyPassesThroughWhenRedisIsDown(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	status, calls := http.StatusCreated, 0
	app := newIdempotentApp(t, rdb, &status, &calls)
	mr.Close()

	_, _ = post(t, app, "k")
	_, _ = post(t, app, "k")
	assert.Equal(t, 2, calls)

	noRedis := newIdempotentApp(t, nil, &status, &calls)
	_, _ = post(t, noRedis, "k")
	assert.Equal(t, 3, calls)
}
