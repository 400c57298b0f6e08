package breaker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/velmie/txoutbox"
)

const (
	// DefaultConsecutiveFailures opens the circuit after this many failed publishes in a row.
	DefaultConsecutiveFailures = 5
	// DefaultOpenTimeout is how long the circuit stays open before probing again.
	DefaultOpenTimeout = 30 * time.Second
	defaultProbes      = 1
)

// ErrBrokerUnavailable is returned while the circuit is open or probing.
var ErrBrokerUnavailable = errors.New("outbox breaker: broker unavailable")

// Option configures a Publisher.
type Option func(*config)

type config struct {
	name                string
	consecutiveFailures uint32
	openTimeout         time.Duration
	probes              uint32
	logger              outbox.Logger
}

// WithName labels the breaker in logs.
func WithName(name string) Option {
	return func(c *config) {
		c.name = name
	}
}

// WithConsecutiveFailures sets the trip threshold.
func WithConsecutiveFailures(n uint32) Option {
	return func(c *config) {
		c.consecutiveFailures = n
	}
}

// WithOpenTimeout sets how long the circuit stays open.
func WithOpenTimeout(timeout time.Duration) Option {
	return func(c *config) {
		c.openTimeout = timeout
	}
}

// WithLogger logs state transitions.
func WithLogger(logger outbox.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// Publisher forwards to the wrapped publisher while the circuit is closed.
type Publisher struct {
	next    outbox.Publisher
	breaker *gobreaker.CircuitBreaker
}

var _ outbox.Publisher = (*Publisher)(nil)

// NewPublisher wraps next. Permanent failures are attributed to the record,
// not the broker, and never count towards tripping the circuit.
func NewPublisher(next outbox.Publisher, opts ...Option) *Publisher {
	if next == nil {
		panic("outbox breaker: nil Publisher")
	}

	cfg := config{
		name:                "outbox-publisher",
		consecutiveFailures: DefaultConsecutiveFailures,
		openTimeout:         DefaultOpenTimeout,
		probes:              defaultProbes,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.consecutiveFailures == 0 {
		cfg.consecutiveFailures = DefaultConsecutiveFailures
	}
	if cfg.logger == nil {
		cfg.logger = outbox.NopLogger{}
	}

	logger := cfg.logger
	settings := gobreaker.Settings{
		Name:        cfg.name,
		MaxRequests: cfg.probes,
		Timeout:     cfg.openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.consecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, outbox.ErrPermanent) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("outbox publisher circuit changed state",
				"breaker", name, "from", from.String(), "to", to.String())
		},
	}

	return &Publisher{next: next, breaker: gobreaker.NewCircuitBreaker(settings)}
}

// Publish implements outbox.Publisher.
func (p *Publisher) Publish(ctx context.Context, msg outbox.Message) error {
	_, err := p.breaker.Execute(func() (any, error) {
		return nil, p.next.Publish(ctx, msg)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", ErrBrokerUnavailable, err)
	}

	return err
}

// State reports the circuit state: "closed", "half-open" or "open".
func (p *Publisher) State() string {
	return p.breaker.State().String()
}

// Ready fails while the circuit is open, for readiness probes.
func (p *Publisher) Ready(context.Context) error {
	if p.breaker.State() == gobreaker.StateOpen {
		return ErrBrokerUnavailable
	}

	return nil
}
