package rabbitmq

import (
	"time"

	"go.opentelemetry.io/otel/propagation"

	"github.com/velmie/txoutbox"
)

const (
	// DefaultExchange is the topic exchange events are published to.
	DefaultExchange = "app.events"
	// DefaultConfirmTimeout bounds the wait for a broker confirmation.
	DefaultConfirmTimeout = 5 * time.Second

	confirmBuffer = 256
)

// Config controls publisher behavior.
type Config struct {
	Exchange        string
	DeclareExchange bool
	ConfirmTimeout  time.Duration
	Codec           outbox.Codec
	Propagator      propagation.TextMapPropagator
	Logger          outbox.Logger
}

// Option configures the publisher.
type Option func(*Config)

// WithExchange overrides the exchange name.
func WithExchange(name string) Option {
	return func(cfg *Config) {
		cfg.Exchange = name
	}
}

// WithDeclareExchange declares the exchange as a durable topic exchange on construction.
func WithDeclareExchange(declare bool) Option {
	return func(cfg *Config) {
		cfg.DeclareExchange = declare
	}
}

// WithConfirmTimeout overrides how long Publish waits for the broker.
func WithConfirmTimeout(timeout time.Duration) Option {
	return func(cfg *Config) {
		cfg.ConfirmTimeout = timeout
	}
}

// WithCodec re-encodes message payloads with codec before publishing.
// Without a codec the stored payload bytes are sent unchanged.
func WithCodec(codec outbox.Codec) Option {
	return func(cfg *Config) {
		cfg.Codec = codec
	}
}

// WithPropagator sets the propagator used to write trace headers.
func WithPropagator(propagator propagation.TextMapPropagator) Option {
	return func(cfg *Config) {
		cfg.Propagator = propagator
	}
}

// WithLogger sets the publisher logger.
func WithLogger(logger outbox.Logger) Option {
	return func(cfg *Config) {
		cfg.Logger = logger
	}
}

func (cfg Config) withDefaults() Config {
	if cfg.Exchange == "" {
		cfg.Exchange = DefaultExchange
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = DefaultConfirmTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = outbox.NopLogger{}
	}

	return cfg
}
