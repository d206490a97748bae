package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const billingScope = "github.com/Alijeyrad/simorq_billing/billing"

// Metrics are the billing domain counters. They are bound to the global
// meter provider, so they are no-ops until InitTelemetry has run.
type Metrics struct {
	payments              metric.Int64Counter
	paymentAmount         metric.Float64Counter
	refundsPaid           metric.Int64Counter
	refundTransitions     metric.Int64Counter
	consistencyViolations metric.Int64Counter
	reportCacheHits       metric.Int64Counter
}

func NewMetrics() *Metrics {
	meter := otel.Meter(billingScope)

	payments, _ := meter.Int64Counter(
		"billing_payment_records_total",
		metric.WithDescription("Payment records appended, by record type and method"),
		metric.WithUnit("{record}"),
	)
	paymentAmount, _ := meter.Float64Counter(
		"billing_payment_amount_total",
		metric.WithDescription("Signed sum of appended payment record amounts"),
	)
	refundsPaid, _ := meter.Int64Counter(
		"billing_refunds_paid_total",
		metric.WithDescription("Refund requests paid out"),
		metric.WithUnit("{refund}"),
	)
	refundTransitions, _ := meter.Int64Counter(
		"billing_refund_transitions_total",
		metric.WithDescription("Refund request status transitions"),
	)
	consistencyViolations, _ := meter.Int64Counter(
		"billing_consistency_violations_total",
		metric.WithDescription("Bills whose aggregates failed the consistency check"),
	)
	reportCacheHits, _ := meter.Int64Counter(
		"billing_report_cache_total",
		metric.WithDescription("Report cache lookups by outcome"),
	)

	return &Metrics{
		payments:              payments,
		paymentAmount:         paymentAmount,
		refundsPaid:           refundsPaid,
		refundTransitions:     refundTransitions,
		consistencyViolations: consistencyViolations,
		reportCacheHits:       reportCacheHits,
	}
}

func (m *Metrics) PaymentRecorded(ctx context.Context, recordType, method string, amount float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("record_type", recordType),
		attribute.String("method", method),
	)
	m.payments.Add(ctx, 1, attrs)
	m.paymentAmount.Add(ctx, amount, attrs)
}

func (m *Metrics) RefundTransition(ctx context.Context, from, to string) {
	if m == nil {
		return
	}
	m.refundTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
	))
	if to == "paid" {
		m.refundsPaid.Add(ctx, 1)
	}
}

func (m *Metrics) ConsistencyViolation(ctx context.Context) {
	if m == nil {
		return
	}
	m.consistencyViolations.Add(ctx, 1)
}

func (m *Metrics) ReportCache(ctx context.Context, report string, hit bool) {
	if m == nil {
		return
	}
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.reportCacheHits.Add(ctx, 1, metric.WithAttributes(
		attribute.String("report", report),
		attribute.String("outcome", outcome),
	))
}

// StartSpan opens an internal span on the billing tracer.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(billingScope).Start(ctx, name, trace.WithAttributes(attrs...))
}
