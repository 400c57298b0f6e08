package mysql

import "database/sql"

// DefaultTable is the outbox table used when WithTable is not set.
const DefaultTable = "outbox_events"

// Config defines MySQL store behavior.
type Config struct {
	Table      string
	RowLocking bool
	Isolation  sql.IsolationLevel
	MaxErrLen  int
}

func (c Config) withDefaults() Config {
	if c.Table == "" {
		c.Table = DefaultTable
	}
	if c.Isolation == sql.LevelDefault {
		c.Isolation = sql.LevelReadCommitted
	}
	if c.MaxErrLen <= 0 {
		c.MaxErrLen = maxErrorLen
	}

	return c
}

// Option configures the MySQL store.
type Option func(*Config)

// WithTable sets the outbox table name.
func WithTable(name string) Option {
	return func(c *Config) {
		c.Table = name
	}
}

// WithRowLocking makes Fetch lock the selected rows with FOR UPDATE SKIP LOCKED
// so concurrent dispatchers skip each other's batches. Disabled by default.
func WithRowLocking(enabled bool) Option {
	return func(c *Config) {
		c.RowLocking = enabled
	}
}

// WithIsolation sets the isolation level of fetch transactions.
// The default is READ COMMITTED.
func WithIsolation(level sql.IsolationLevel) Option {
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
