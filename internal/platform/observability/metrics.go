package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/sauber-detailing/pos-api/internal/domain"
)

const meterName = "github.com/sauber-detailing/pos-api/internal/platform/observability"

// OrderMetrics counts ledger writes and the money they carry.
type OrderMetrics struct {
	orders  metric.Int64Counter
	revenue metric.Int64Counter
}

// NewOrderMetrics registers the ledger instruments on meter, or the global meter provider
// when meter is nil.
func NewOrderMetrics(meter metric.Meter) (*OrderMetrics, error) {
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(meterName)
	}
	orders, err := meter.Int64Counter("pos.orders",
		metric.WithDescription("Ledger writes by action"))
	if err != nil {
		return nil, err
	}
	revenue, err := meter.Int64Counter("pos.orders.amount",
		metric.WithUnit("{pesewa}"),
		metric.WithDescription("Order totals by action in minor currency units"))
	if err != nil {
		return nil, err
	}
	return &OrderMetrics{orders: orders, revenue: revenue}, nil
}

func (m *OrderMetrics) OrderCreated(ctx context.Context, total domain.Amount) {
	m.record(ctx, "created", total)
}

func (m *OrderMetrics) OrderPaid(ctx context.Context, total domain.Amount) {
	m.record(ctx, "paid", total)
}

func (m *OrderMetrics) OrderDeleted(ctx context.Context) {
	m.record(ctx, "deleted", 0)
}

func (m *OrderMetrics) record(ctx context.Context, action string, total domain.Amount) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("action", action))
	m.orders.Add(ctx, 1, attrs)
	if total > 0 {
		m.revenue.Add(ctx, int64(total), attrs)
	}
}
