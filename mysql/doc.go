// Package mysql provides the MySQL 8.0+ outbox store.
//
// Records are appended inside the caller's *sql.Tx through Store.Writer and
// fetched by the dispatcher in a READ COMMITTED transaction ordered by
// (created_at, id). The DSN must set parseTime=true.
//
// See Schema (JSON payloads) or SchemaBinary (raw bytes) for the table DDL.
// WithRowLocking enables SELECT ... FOR UPDATE SKIP LOCKED for deployments
// running more than one dispatcher.
package mysql
