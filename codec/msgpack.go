// Package codec provides payload codecs beyond the JSON default.
package codec

import (
	"bytes"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/velmie/txoutbox"
)

// ContentTypeMsgpack is stored with records encoded by Msgpack.
const ContentTypeMsgpack = "application/msgpack"

// Msgpack encodes payloads as MessagePack. Field names come from json
// struct tags so records keep the same keys as the JSON codec.
type Msgpack struct{}

var _ outbox.Codec = Msgpack{}

// Marshal implements outbox.Codec.
func (Msgpack) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Unmarshal implements outbox.Codec.
func (Msgpack) Unmarshal(data []byte, v any) error {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.SetCustomStructTag("json")

	return dec.Decode(v)
}

// ContentType implements outbox.Codec.
func (Msgpack) ContentType() string {
	return ContentTypeMsgpack
}
