package reqctx

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

type claims struct{ id uuid.UUID }

func (c claims) GetUserID() uuid.UUID     { return c.id }
func (c claims) GetSessionID() *uuid.UUID { return nil }
func (c claims) GetTokenType() string     { return "access" }
func (c claims) IsExpired() bool          { return false }

func TestClinicScope(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, uuid.Nil, ClinicIDFromContext(ctx))

	id := uuid.New()
	ctx = WithClinic(ctx, &ClinicScope{ClinicID: id, Roles: []string{"role:clinic:accountant"}})

	scope, ok := ClinicFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, id, scope.ClinicID)
	assert.Len(t, scope.Roles, 1)
	assert.Equal(t, id, ClinicIDFromContext(ctx))
}

func TestClaims(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, ClaimsFromContext(ctx))
	assert.False(t, IsAuthenticated(ctx))

	user := uuid.New()
	ctx = WithClaims(ctx, claims{id: user})
	assert.True(t, IsAuthenticated(ctx))
	got, ok := UserIDFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, user, got)
}

func TestLogAttrs(t *testing.T) {
	assert.Empty(t, LogAttrs(context.Background()))

	user, clinic := uuid.New(), uuid.New()
	traceID := trace.TraceID{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: trace.SpanID{1}})

	ctx := trace.ContextWithSpanContext(context.Background(), sc)
	ctx = WithRequestMeta(ctx, &RequestMeta{RequestID: "req-1"})
	ctx = WithClaims(ctx, claims{id: user})
	ctx = WithClinic(ctx, &ClinicScope{ClinicID: clinic})

	got := map[string]string{}
	for _, a := range LogAttrs(ctx) {
		got[a.Key] = a.Value.String()
	}
	assert.Equal(t, map[string]string{
		"request_id": "req-1",
		"trace_id":   traceID.String(),
		"user_id":    user.String(),
		"clinic_id":  clinic.String(),
	}, got)
}
