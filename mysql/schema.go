package mysql

import "fmt"

const schemaTemplate = `CREATE TABLE IF NOT EXISTS %s (
	id BINARY(16) NOT NULL,
	type_tag VARCHAR(255) NOT NULL,
	routing_key VARCHAR(255) NOT NULL,
	payload %s NOT NULL,
	content_type VARCHAR(64) NOT NULL DEFAULT 'application/json',
	created_at DATETIME(6) NOT NULL,
	processed BOOLEAN NOT NULL DEFAULT FALSE,
	processed_at DATETIME(6) NULL,
	attempt_count INT NOT NULL DEFAULT 0,
	last_error VARCHAR(1024) NULL,
	PRIMARY KEY (id),
	INDEX idx_%s_processed_created (processed, created_at)
);`

const (
	payloadJSON   = "JSON"
	payloadBinary = "LONGBLOB"
)

// Schema returns the DDL for an outbox table with JSON payloads.
func Schema(table string) (string, error) {
	return buildSchema(table, payloadJSON)
}

// SchemaBinary returns the DDL for an outbox table with LONGBLOB payloads,
// required for non-JSON codecs such as MessagePack.
func SchemaBinary(table string) (string, error) {
	return buildSchema(table, payloadBinary)
}

func buildSchema(table, payloadType string) (string, error) {
	name, err := sanitizeTableName(table)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf(schemaTemplate, name, payloadType, indexSuffix(name)), nil
}
