package postgres

import "github.com/jackc/pgx/v5"

// DefaultTable is the outbox table used when WithTable is not set.
const DefaultTable = "outbox_events"

const maxErrorLen = 1024

// Config defines PostgreSQL store behavior.
type Config struct {
	Table      string
	RowLocking bool
	Isolation  pgx.TxIsoLevel
	MaxErrLen  int
}

func (c Config) withDefaults() Config {
	if c.Table == "" {
		c.Table = DefaultTable
	}
	if c.Isolation == "" {
		c.Isolation = pgx.ReadCommitted
	}
	if c.MaxErrLen <= 0 {
		c.MaxErrLen = maxErrorLen
	}

	return c
}

// Option configures the PostgreSQL store.
type Option func(*Config)

// WithTable sets the outbox table name.
func WithTable(name string) Option {
	return func(c *Config) {
		c.Table = name
	}
}

// WithRowLocking makes Fetch lock rows with FOR UPDATE SKIP LOCKED. Disabled by default.
func WithRowLocking(enabled bool) Option {
	return func(c *Config) {
		c.RowLocking = enabled
	}
}

// WithIsolation sets the isolation level of fetch transactions.
func WithIsolation(level pgx.TxIsoLevel) Option {
	return func(c *Config) {
		c.Isolation = level
	}
}

// WithMaxErrorLength sets how many characters of a dispatch error are stored in last_error.
func WithMaxErrorLength(n int) Option {
	return func(c *Config) {
		c.MaxErrLen = n
	}
}
