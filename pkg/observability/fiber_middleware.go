package observability

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/Alijeyrad/simorq_billing/pkg/reqctx"
)

const (
	tracerName = "github.com/Alijeyrad/simorq_billing/pkg/observability"

	headerTraceID      = "X-Trace-Id"
	headerReplayedFlag = "Idempotent-Replayed"
)

// FiberMiddleware opens a server span per request and records request count
// and latency per route. Clinic and request ids set by later middleware are
// attached to the span once the handler chain returns.
func FiberMiddleware(serviceName string) fiber.Handler {
	tracer := otel.Tracer(tracerName)
	meter := otel.Meter(tracerName)

	requestCounter, _ := meter.Int64Counter(
		"http_server_request_count",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	requestDuration, _ := meter.Float64Histogram(
		"http_server_request_duration_ms",
		metric.WithDescription("HTTP request duration in milliseconds"),
		metric.WithUnit("ms"),
	)

	return func(c fiber.Ctx) error {
		ctx := otel.GetTextMapPropagator().Extract(
			c.Context(),
			propagation.HeaderCarrier(c.GetReqHeaders()),
		)

		route := c.Route().Path
		ctx, span := tracer.Start(ctx, c.Method()+" "+route,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("service.name", serviceName),
				attribute.String("http.method", c.Method()),
				attribute.String("http.route", route),
				attribute.String("http.client_ip", c.IP()),
				attribute.String("http.user_agent", c.Get(fiber.HeaderUserAgent)),
			),
		)
		defer span.End()

		c.SetContext(ctx)
		if span.SpanContext().HasTraceID() {
			c.Set(headerTraceID, span.SpanContext().TraceID().String())
		}

		start := time.Now()
		err := c.Next()
		elapsed := float64(time.Since(start).Microseconds()) / 1000

		// Route is only resolved after routing ran.
		route = c.Route().Path
		span.SetName(c.Method() + " " + route)

		status := c.Response().StatusCode()
		attrs := []attribute.KeyValue{
			attribute.Int("http.status_code", status),
			attribute.Float64("http.duration_ms", elapsed),
		}
		if id := reqctx.ClinicIDFromContext(c.Context()); id != uuid.Nil {
			attrs = append(attrs, attribute.String("clinic.id", id.String()))
		}
		if rid := reqctx.RequestIDFromContext(c.Context()); rid != "" {
			attrs = append(attrs, attribute.String("request.id", rid))
		}
		if string(c.Response().Header.Peek(headerReplayedFlag)) == "true" {
			attrs = append(attrs, attribute.Bool("idempotency.replayed", true))
		}
		span.SetAttributes(attrs...)

		metricAttrs := metric.WithAttributes(
			attribute.String("http.method", c.Method()),
			attribute.String("http.route", route),
			attribute.Int("http.status_code", status),
		)
		requestCounter.Add(ctx, 1, metricAttrs)
		requestDuration.Record(ctx, elapsed, metricAttrs)

		if status >= fiber.StatusInternalServerError {
			span.SetStatus(codes.Error, "HTTP "+strconv.Itoa(status))
			if err != nil {
				span.RecordError(err)
			}
		} else {
			span.SetStatus(codes.Ok, "")
		}

		return err
	}
}
