package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/xenking/kart-coupons/internal/domain/coupon"

// Metrics records coupon engine counters and histograms.
type Metrics struct {
	applied      metric.Int64Counter
	rejected     metric.Int64Counter
	discount     metric.Float64Histogram
	scanDuration metric.Float64Histogram
}

// NewMetrics creates the engine instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter(instrumentationName)

	applied, err := meter.Int64Counter("coupons.applied",
		metric.WithDescription("Coupons successfully applied to a cart"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "coupons.applied")
	}
	rejected, err := meter.Int64Counter("coupons.apply.rejected",
		metric.WithDescription("Apply attempts rejected as not applicable"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "coupons.apply.rejected")
	}
	discount, err := meter.Float64Histogram("coupons.discount.amount",
		metric.WithDescription("Total discount granted per applied coupon"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "coupons.discount.amount")
	}
	scanDuration, err := meter.Float64Histogram("coupons.scan.duration",
		metric.WithDescription("Time spent scanning the catalog for applicable coupons"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "coupons.scan.duration")
	}

	return &Metrics{
		applied:      applied,
		rejected:     rejected,
		discount:     discount,
		scanDuration: scanDuration,
	}, nil
}

func (m *Metrics) recordApplied(ctx context.Context, kind Kind, amount decimal.Decimal) {
	attrs := metric.WithAttributes(attribute.String("kind", string(kind)))
	m.applied.Add(ctx, 1, attrs)
	m.discount.Record(ctx, amount.InexactFloat64(), attrs)
}

func (m *Metrics) recordRejected(ctx context.Context, reason Reason) {
	m.rejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", string(reason))))
}

func (m *Metrics) recordScan(ctx context.Context, took time.Duration, found int) {
	m.scanDuration.Record(ctx, took.Seconds(), metric.WithAttributes(attribute.Bool("found", found > 0)))
}
