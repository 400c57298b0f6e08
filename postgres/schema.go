package postgres

import "fmt"

const schemaTemplate = `CREATE TABLE IF NOT EXISTS %[1]s (
	id UUID PRIMARY KEY,
	type_tag TEXT NOT NULL,
	routing_key TEXT NOT NULL,
	payload %[2]s NOT NULL,
	content_type TEXT NOT NULL DEFAULT 'application/json',
	created_at TIMESTAMPTZ NOT NULL,
	processed BOOLEAN NOT NULL DEFAULT FALSE,
	processed_at TIMESTAMPTZ NULL,
	attempt_count INTEGER NOT NULL DEFAULT 0,
	last_error TEXT NULL
);
CREATE INDEX IF NOT EXISTS idx_%[3]s_processed_created ON %[1]s (processed, created_at);`

const (
	payloadJSON   = "JSONB"
	payloadBinary = "BYTEA"
)

// Schema returns the DDL for an outbox table with JSONB payloads.
func Schema(table string) (string, error) {
	return buildSchema(table, payloadJSON)
}

// SchemaBinary returns the DDL for an outbox table with BYTEA payloads,
// required for non-JSON codecs such as MessagePack.
func SchemaBinary(table string) (string, error) {
	return buildSchema(table, payloadBinary)
}

func buildSchema(table, payloadType string) (string, error) {
	name, err := sanitizeTableName(table)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf(schemaTemplate, name, payloadType, unqualified(name)), nil
}
