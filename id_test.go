package outbox

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
)

func TestParseID(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{name: "canonical", value: "018f4b4e-8a8e-7c3d-9f00-000000000042"},
		{name: "hex only", value: "018f4b4e8a8e7c3d9f00000000000042"},
		{name: "empty", value: "", wantErr: true},
		{name: "garbage", value: "not-a-uuid", wantErr: true},
		{name: "short", value: "00000000-0000-0000-0000-00000000000", wantErr: true},
		{name: "odd hex", value: "000000000000000000000000000000000", wantErr: true},
		{name: "underscores", value: "00000000_0000_0000_0000_000000000000", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := ParseID(tt.value)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidID) {
					t.Fatalf("expected ErrInvalidID, got %v", err)
				}
				if id != NilID {
					t.Fatalf("expected NilID on error, got %s", id)
				}
				return
			}
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if id.String() != "018f4b4e-8a8e-7c3d-9f00-000000000042" {
				t.Fatalf("unexpected id %s", id)
			}
		})
	}
}

func TestUUIDv7GeneratorOrdering(t *testing.T) {
	gen := UUIDv7Generator{}
	prev, err := gen.New()
	if err != nil {
		t.Fatalf("new id: %v", err)
	}
	if v := prev.Version(); v != 7 {
		t.Fatalf("version = %d, want 7", v)
	}

	for range 100 {
		next, err := gen.New()
		if err != nil {
			t.Fatalf("new id: %v", err)
		}
		if bytes.Compare(prev[:], next[:]) >= 0 {
			t.Fatalf("expected %s to sort after %s", next, prev)
		}
		prev = next
	}
}

func TestIDTravelsAsTextInPayloads(t *testing.T) {
	id, err := ParseID("018f4b4e-8a8e-7c3d-9f00-000000000042")
	if err != nil {
		t.Fatalf("parse id: %v", err)
	}

	body, err := json.Marshal(struct {
		EventID ID `json:"eventId"`
	}{EventID: id})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(body) != `{"eventId":"018f4b4e-8a8e-7c3d-9f00-000000000042"}` {
		t.Fatalf("unexpected payload %s", body)
	}
}

func TestIDGeneratorFunc(t *testing.T) {
	want, err := ParseID("018f4b4e-8a8e-7c3d-9f00-000000000042")
	if err != nil {
		t.Fatalf("parse id: %v", err)
	}
	gen := IDGeneratorFunc(func() (ID, error) { return want, nil })

	got, err := gen.New()
	if err != nil {
		t.Fatalf("new id: %v", err)
	}
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}
