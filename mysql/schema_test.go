package mysql

import (
	"strings"
	"testing"
)

func TestSchema(t *testing.T) {
	schema, err := Schema("outbox_events")
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	for _, want := range []string{
		"CREATE TABLE IF NOT EXISTS outbox_events",
		"payload JSON",
		"processed BOOLEAN NOT NULL DEFAULT FALSE",
		"INDEX idx_outbox_events_processed_created (processed, created_at)",
	} {
		if !strings.Contains(schema, want) {
			t.Fatalf("expected %q in schema", want)
		}
	}
}

func TestSchemaBinary(t *testing.T) {
	schema, err := SchemaBinary("app.outbox_events")
	if err != nil {
		t.Fatalf("schema binary: %v", err)
	}
	if !strings.Contains(schema, "payload LONGBLOB") {
		t.Fatalf("expected LONGBLOB payload in schema")
	}
	if !strings.Contains(schema, "idx_outbox_events_processed_created") {
		t.Fatalf("expected unqualified index name")
	}
}

func TestSchemaInvalidName(t *testing.T) {
	if _, err := Schema("outbox;drop"); err == nil {
		t.Fatalf("expected invalid name error")
	}
}
