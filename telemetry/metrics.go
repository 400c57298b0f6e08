package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/velmie/txoutbox"
)

// Instrument names.
const (
	MetricCycleDuration   = "outbox.cycle.duration"
	MetricDelivered       = "outbox.records.delivered"
	MetricFailed          = "outbox.records.failed"
	MetricPermanent       = "outbox.records.permanent"
	MetricPersistFailures = "outbox.persist.failures"
	MetricPending         = "outbox.records.pending"
)

// Metrics records dispatcher telemetry through an otel Meter.
type Metrics struct {
	cycleDuration   metric.Float64Histogram
	delivered       metric.Int64Counter
	failed          metric.Int64Counter
	permanent       metric.Int64Counter
	persistFailures metric.Int64Counter
	pending         metric.Int64Gauge
	attrs           metric.MeasurementOption
}

var _ outbox.Metrics = (*Metrics)(nil)

// NewMetrics creates the dispatcher instruments on meter. attrs are added to
// every measurement, typically to name the outbox table.
func NewMetrics(meter metric.Meter, attrs ...attribute.KeyValue) (*Metrics, error) {
	if meter == nil {
		return nil, errors.New("outbox telemetry: meter is required")
	}

	var (
		m    Metrics
		err  error
		errs []error
	)
	m.cycleDuration, err = meter.Float64Histogram(MetricCycleDuration,
		metric.WithDescription("Duration of one dispatch cycle."),
		metric.WithUnit("s"))
	errs = append(errs, err)
	m.delivered, err = meter.Int64Counter(MetricDelivered,
		metric.WithDescription("Records accepted by the broker and marked delivered."))
	errs = append(errs, err)
	m.failed, err = meter.Int64Counter(MetricFailed,
		metric.WithDescription("Records whose dispatch failed and stay pending."))
	errs = append(errs, err)
	m.permanent, err = meter.Int64Counter(MetricPermanent,
		metric.WithDescription("Dispatch failures classified as permanent."))
	errs = append(errs, err)
	m.persistFailures, err = meter.Int64Counter(MetricPersistFailures,
		metric.WithDescription("Cycles whose delivery state could not be persisted."))
	errs = append(errs, err)
	m.pending, err = meter.Int64Gauge(MetricPending,
		metric.WithDescription("Records waiting for dispatch."))
	errs = append(errs, err)

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	m.attrs = metric.WithAttributeSet(attribute.NewSet(attrs...))

	return &m, nil
}

// ObserveCycleDuration implements outbox.Metrics.
func (m *Metrics) ObserveCycleDuration(duration time.Duration) {
	m.cycleDuration.Record(context.Background(), duration.Seconds(), m.attrs)
}

// AddDelivered implements outbox.Metrics.
func (m *Metrics) AddDelivered(count int) {
	add(m.delivered, count, m.attrs)
}

// AddFailed implements outbox.Metrics.
func (m *Metrics) AddFailed(count int) {
	add(m.failed, count, m.attrs)
}

// AddPermanent implements outbox.Metrics.
func (m *Metrics) AddPermanent(count int) {
	add(m.permanent, count, m.attrs)
}

// AddPersistFailures implements outbox.Metrics.
func (m *Metrics) AddPersistFailures(count int) {
	add(m.persistFailures, count, m.attrs)
}

// SetPending implements outbox.Metrics.
func (m *Metrics) SetPending(count int) {
	m.pending.Record(context.Background(), int64(count), m.attrs)
}

func add(counter metric.Int64Counter, count int, attrs metric.MeasurementOption) {
	if count <= 0 {
		return
	}
	counter.Add(context.Background(), int64(count), attrs)
}
