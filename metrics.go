package outbox

import "time"

// Metrics captures dispatcher-level telemetry.
type Metrics interface {
	// ObserveCycleDuration records the time to run one dispatch cycle.
	ObserveCycleDuration(duration time.Duration)
	// AddDelivered increments the count of delivered records.
	AddDelivered(count int)
	// AddFailed increments the count of records that failed to dispatch.
	AddFailed(count int)
	// AddPermanent increments the count of failures classified as permanent.
	AddPermanent(count int)
	// AddPersistFailures increments the count of cycles whose state changes were lost.
	AddPersistFailures(count int)
	// SetPending updates the current pending record count.
	SetPending(count int)
}

// NopMetrics is a no-op metrics recorder.
type NopMetrics struct{}

// ObserveCycleDuration implements Metrics.
func (NopMetrics) ObserveCycleDuration(time.Duration) {}

// AddDelivered implements Metrics.
func (NopMetrics) AddDelivered(int) {}

// AddFailed implements Metrics.
func (NopMetrics) AddFailed(int) {}

// AddPermanent implements Metrics.
func (NopMetrics) AddPermanent(int) {}

// AddPersistFailures implements Metrics.
func (NopMetrics) AddPersistFailures(int) {}

// SetPending implements Metrics.
func (NopMetrics) SetPending(int) {}
