package handler

import (
	"context"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/xenking/promo-pricing/internal/handler"

// Submission outcomes recorded on promo.code.submissions.
const (
	outcomeApplied      = "applied"
	outcomeEmpty        = "empty"
	outcomeUnknown      = "unknown"
	outcomeInapplicable = "inapplicable"
	outcomePending      = "pending"
	outcomeAbandoned    = "abandoned"
	outcomeCancelled    = "cancelled"
	outcomeFailed       = "failed"
)

type metrics struct {
	submissions metric.Int64Counter
	restores    metric.Int64Counter
}

func newMetrics(mp metric.MeterProvider, active func() int) (*metrics, error) {
	meter := mp.Meter(meterName)

	submissions, err := meter.Int64Counter("promo.code.submissions",
		metric.WithDescription("Promo code submissions by outcome"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "submissions counter")
	}
	restores, err := meter.Int64Counter("promo.discount.restores",
		metric.WithDescription("Discounts restored from session storage"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "restores counter")
	}
	if _, err := meter.Int64ObservableGauge("promo.sessions.active",
		metric.WithDescription("Sessions with a live controller"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(active()))
			return nil
		}),
	); err != nil {
		return nil, errors.Wrap(err, "sessions gauge")
	}

	return &metrics{submissions: submissions, restores: restores}, nil
}

func (m *metrics) submitted(ctx context.Context, outcome string) {
	m.submissions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
