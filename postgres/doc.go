// Package postgres provides the PostgreSQL outbox store built on pgx.
//
// Records are appended inside the caller's pgx.Tx through Store.Writer and
// fetched in a READ COMMITTED transaction ordered by (created_at, id).
// WithRowLocking adds FOR UPDATE SKIP LOCKED for multi-dispatcher deployments.
package postgres
