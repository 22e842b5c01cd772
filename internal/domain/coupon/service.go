package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/kart-coupons/internal/domain/cart"
)

// Service answers cart questions against a coupon store: which coupons
// apply, and what the cart looks like once one is applied.
type Service struct {
	store   Store
	scanner *Scanner
	metrics *Metrics
	tracer  trace.Tracer
	now     func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithScanner replaces the default sequential scanner.
func WithScanner(s *Scanner) Option {
	return func(svc *Service) { svc.scanner = s }
}

// WithTracerProvider sets the tracer provider used for spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(svc *Service) { svc.tracer = tp.Tracer(instrumentationName) }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *Metrics) Option {
	return func(svc *Service) { svc.metrics = m }
}

// NewService creates a Service backed by store.
func NewService(store Store, opts ...Option) *Service {
	m, _ := NewMetrics(metricnoop.NewMeterProvider())
	svc := &Service{
		store:   store,
		scanner: NewScanner(1, 0),
		metrics: m,
		tracer:  tracenoop.NewTracerProvider().Tracer(instrumentationName),
		now:     time.Now,
	}
	for _, o := range opts {
		o(svc)
	}
	return svc
}

// NewServiceWithTelemetry is a convenience wrapper that builds metrics on mp
// and traces on tp.
func NewServiceWithTelemetry(store Store, mp metric.MeterProvider, tp trace.TracerProvider, opts ...Option) (*Service, error) {
	m, err := NewMetrics(mp)
	if err != nil {
		return nil, errors.Wrap(err, "create coupon metrics")
	}
	return NewService(store, append([]Option{WithMetrics(m), WithTracerProvider(tp)}, opts...)...), nil
}

// ApplicableCoupons returns every active coupon that gives c a positive
// discount, in store order.
func (s *Service) ApplicableCoupons(ctx context.Context, c cart.Cart) (_ []Applicable, rerr error) {
	ctx, span := s.tracer.Start(ctx, "coupon.ApplicableCoupons",
		trace.WithAttributes(attribute.Int("cart.items", len(c.Items))),
	)
	defer func() { endSpan(span, rerr) }()

	catalog, err := s.store.FetchActive(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "fetch active coupons")
	}

	start := time.Now()
	found, err := s.scanner.Applicable(ctx, c, catalog, s.now())
	if err != nil {
		return nil, errors.Wrap(err, "scan coupons")
	}
	s.metrics.recordScan(ctx, time.Since(start), len(found))
	span.SetAttributes(
		attribute.Int("coupons.catalog", len(catalog)),
		attribute.Int("coupons.applicable", len(found)),
	)

	return found, nil
}

// ApplyCoupon applies coupon id to c and records one use of the coupon.
//
// The usage increment happens only after the updated cart is built. The store
// revalidates the coupon while incrementing, so a concurrent apply that
// exhausts the coupon first makes this call fail with ErrCouponNotApplicable.
func (s *Service) ApplyCoupon(ctx context.Context, id int64, c cart.Cart) (_ *UpdatedCart, rerr error) {
	ctx, span := s.tracer.Start(ctx, "coupon.ApplyCoupon",
		trace.WithAttributes(attribute.Int64("coupon.id", id)),
	)
	defer func() { endSpan(span, rerr) }()
	lg := zctx.From(ctx).With(zap.Int64("coupon_id", id))

	rec, err := s.store.Fetch(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "fetch coupon")
	}
	cp, err := rec.Coupon()
	if err != nil {
		lg.Warn("Stored coupon is malformed", zap.Error(err))
		return nil, err
	}

	now := s.now()
	updated, err := Apply(cp, c, now)
	if err != nil {
		var na *NotApplicableError
		if errors.As(err, &na) {
			s.metrics.recordRejected(ctx, na.Reason)
		}
		return nil, err
	}

	if err := s.store.IncrementUsage(ctx, id, now); err != nil {
		var na *NotApplicableError
		if errors.As(err, &na) {
			s.metrics.recordRejected(ctx, na.Reason)
			return nil, err
		}
		return nil, errors.Wrap(err, "increment coupon usage")
	}

	s.metrics.recordApplied(ctx, cp.Kind(), updated.TotalDiscount)
	lg.Info("Coupon applied",
		zap.String("type", string(cp.Kind())),
		zap.Stringer("total_discount", updated.TotalDiscount),
	)
	return &updated, nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
