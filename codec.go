package outbox

import "encoding/json"

// ContentTypeJSON is the default payload encoding declaration.
const ContentTypeJSON = "application/json"

// Codec serializes occurrences into record payloads and back.
type Codec interface {
	// Marshal encodes v.
	Marshal(v any) ([]byte, error)
	// Unmarshal decodes data into v.
	Unmarshal(data []byte, v any) error
	// ContentType returns the encoding declaration stored with each record.
	ContentType() string
}

// JSONCodec encodes payloads as JSON. Field names follow the struct tags of
// the occurrence types, which use lower camel case.
type JSONCodec struct{}

// Marshal implements Codec.
func (JSONCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Unmarshal implements Codec.
func (JSONCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// ContentType implements Codec.
func (JSONCodec) ContentType() string {
	return ContentTypeJSON
}

func codecOrJSON(codec Codec) Codec {
	if codec == nil {
		return JSONCodec{}
	}

	return codec
}
