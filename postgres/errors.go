package postgres

import "errors"

var (
	// ErrDBRequired is returned when a nil pool is provided.
	ErrDBRequired = errors.New("outbox postgres: db is required")
	// ErrExecutorRequired is returned when append is called with a nil executor.
	ErrExecutorRequired = errors.New("outbox postgres: executor is required")
	// ErrTxRequired is returned when a nil transaction is provided.
	ErrTxRequired = errors.New("outbox postgres: transaction is required")
	// ErrTableNameRequired is returned when the table name is empty.
	ErrTableNameRequired = errors.New("outbox postgres: table name is required")
	// ErrInvalidTableName is returned when the table name has disallowed characters.
	ErrInvalidTableName = errors.New("outbox postgres: invalid table name")
)
