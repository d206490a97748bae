package reqctx

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// LogAttrs returns the correlation attributes known for ctx: request id,
// trace id, user and clinic. Missing values are left out.
func LogAttrs(ctx context.Context) []slog.Attr {
	var attrs []slog.Attr
	if rid := RequestIDFromContext(ctx); rid != "" {
		attrs = append(attrs, slog.String("request_id", rid))
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		attrs = append(attrs, slog.String("trace_id", sc.TraceID().String()))
	}
	if uid, ok := UserIDFromContext(ctx); ok && uid != uuid.Nil {
		attrs = append(attrs, slog.String("user_id", uid.String()))
	}
	if cid := ClinicIDFromContext(ctx); cid != uuid.Nil {
		attrs = append(attrs, slog.String("clinic_id", cid.String()))
	}
	return attrs
}
