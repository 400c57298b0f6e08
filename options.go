package outbox

import "time"

const (
	defaultBatchSize       = 50
	defaultPollInterval    = 3 * time.Second
	defaultShutdownTimeout = 30 * time.Second
	defaultPendingCheck    = 0
)

// DispatcherConfig defines how the Dispatcher polls and publishes records.
type DispatcherConfig struct {
	BatchSize         int
	PollInterval      time.Duration
	ShutdownTimeout   time.Duration
	PublishTimeout    time.Duration
	Clock             Clock
	ErrorHandler      FailureHandler
	Logger            Logger
	Metrics           Metrics
	FailureClassifier FailureClassifier
	PendingInterval   time.Duration
	CycleGuard        CycleGuard
}

func (c DispatcherConfig) withDefaults() DispatcherConfig {
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = defaultShutdownTimeout
	}
	if c.Clock == nil {
		c.Clock = SystemClock{}
	}
	if c.Logger == nil {
		c.Logger = NopLogger{}
	}
	if c.Metrics == nil {
		c.Metrics = NopMetrics{}
	}
	if c.FailureClassifier == nil {
		c.FailureClassifier = DefaultFailureClassifier
	}
	if c.PendingInterval <= 0 {
		c.PendingInterval = defaultPendingCheck
	}

	return c
}

// DispatcherOption configures Dispatcher behavior.
type DispatcherOption func(*DispatcherConfig)

// WithBatchSize sets the maximum number of records fetched per cycle.
func WithBatchSize(size int) DispatcherOption {
	return func(c *DispatcherConfig) {
		c.BatchSize = size
	}
}

// WithPollInterval sets the delay between cycles.
func WithPollInterval(interval time.Duration) DispatcherOption {
	return func(c *DispatcherConfig) {
		c.PollInterval = interval
	}
}

// WithShutdownTimeout bounds how long an in-flight cycle may run after shutdown is requested.
func WithShutdownTimeout(timeout time.Duration) DispatcherOption {
	return func(c *DispatcherConfig) {
		c.ShutdownTimeout = timeout
	}
}

// WithPublishTimeout sets a per-record publish timeout.
func WithPublishTimeout(timeout time.Duration) DispatcherOption {
	return func(c *DispatcherConfig) {
		c.PublishTimeout = timeout
	}
}

// WithClock sets the Dispatcher clock.
func WithClock(clock Clock) DispatcherOption {
	return func(c *DispatcherConfig) {
		c.Clock = clock
	}
}

// WithErrorHandler registers a callback for dispatch failures.
func WithErrorHandler(handler FailureHandler) DispatcherOption {
	return func(c *DispatcherConfig) {
		c.ErrorHandler = handler
	}
}

// WithLogger sets the dispatcher logger.
func WithLogger(logger Logger) DispatcherOption {
	return func(c *DispatcherConfig) {
		c.Logger = logger
	}
}

// WithMetrics sets the dispatcher metrics recorder.
func WithMetrics(metrics Metrics) DispatcherOption {
	return func(c *DispatcherConfig) {
		c.Metrics = metrics
	}
}

// WithFailureClassifier sets the transient/permanent classifier.
func WithFailureClassifier(classifier FailureClassifier) DispatcherOption {
	return func(c *DispatcherConfig) {
		c.FailureClassifier = classifier
	}
}

// WithPendingInterval sets the minimum interval between pending count samples.
// Use a positive value to enable sampling or zero to keep it disabled.
// The default is disabled.
func WithPendingInterval(interval time.Duration) DispatcherOption {
	return func(c *DispatcherConfig) {
		c.PendingInterval = interval
	}
}

// WithCycleGuard sets a guard acquired before each cycle.
// Cycles that cannot take the guard are skipped.
func WithCycleGuard(guard CycleGuard) DispatcherOption {
	return func(c *DispatcherConfig) {
		c.CycleGuard = guard
	}
}
