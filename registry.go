package outbox

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// DecodeFunc turns a payload into a typed value using the record's codec.
type DecodeFunc func(codec Codec, payload []byte) (any, error)

// Registry maps type tags to decoders and content types to codecs.
type Registry struct {
	mu       sync.RWMutex
	decoders map[string]DecodeFunc
	codecs   map[string]Codec
}

// NewRegistry creates a registry with the JSON codec and any extra codecs.
func NewRegistry(codecs ...Codec) *Registry {
	r := &Registry{
		decoders: make(map[string]DecodeFunc),
		codecs:   map[string]Codec{ContentTypeJSON: JSONCodec{}},
	}
	for _, codec := range codecs {
		if codec != nil {
			r.codecs[codec.ContentType()] = codec
		}
	}

	return r
}

// Register adds a decoder for tag that decodes payloads into *T.
func Register[T any](r *Registry, tag string) error {
	return r.RegisterDecoder(tag, func(codec Codec, payload []byte) (any, error) {
		value := new(T)
		if err := codec.Unmarshal(payload, value); err != nil {
			return nil, err
		}

		return value, nil
	})
}

// MustRegister is like Register but panics on error.
func MustRegister[T any](r *Registry, tag string) {
	if err := Register[T](r, tag); err != nil {
		panic(err)
	}
}

// RegisterDecoder adds a decoder for tag.
func (r *Registry) RegisterDecoder(tag string, decode DecodeFunc) error {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return ErrTypeTagRequired
	}
	if decode == nil {
		return ErrDecoderRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.decoders[tag]; exists {
		return fmt.Errorf("%w: %s", ErrDecoderAlreadyRegistered, tag)
	}
	r.decoders[tag] = decode

	return nil
}

// RegisterCodec adds or replaces the codec for its content type.
func (r *Registry) RegisterCodec(codec Codec) error {
	if codec == nil {
		return ErrCodecRequired
	}

	r.mu.Lock()
	r.codecs[codec.ContentType()] = codec
	r.mu.Unlock()

	return nil
}

// Tags returns the registered type tags in sorted order.
func (r *Registry) Tags() []string {
	r.mu.RLock()
	tags := make([]string, 0, len(r.decoders))
	for tag := range r.decoders {
		tags = append(tags, tag)
	}
	r.mu.RUnlock()
	sort.Strings(tags)

	return tags
}

// Verify checks that every occurrence kind has a registered decoder.
// Call it at startup so unknown tags fail before the dispatcher runs.
func (r *Registry) Verify(kinds ...Occurrence) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var errs []error
	for _, kind := range kinds {
		if kind == nil {
			continue
		}
		if _, ok := r.decoders[kind.TypeTag()]; !ok {
			errs = append(errs, fmt.Errorf("%w: %s", ErrUnknownTypeTag, kind.TypeTag()))
		}
	}

	return errors.Join(errs...)
}

// Decode resolves the record's type tag and content type and decodes its payload.
func (r *Registry) Decode(record Record) (any, error) {
	contentType := record.ContentType
	if contentType == "" {
		contentType = ContentTypeJSON
	}

	r.mu.RLock()
	decode, ok := r.decoders[record.TypeTag]
	codec, codecOK := r.codecs[contentType]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTypeTag, record.TypeTag)
	}
	if !codecOK {
		return nil, fmt.Errorf("%w: %w: %q", ErrDecodeFailed, ErrUnknownContentType, contentType)
	}

	value, err := decode(codec, record.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDecodeFailed, record.TypeTag, err)
	}

	return value, nil
}

// Codec returns the codec registered for contentType.
func (r *Registry) Codec(contentType string) (Codec, bool) {
	if contentType == "" {
		contentType = ContentTypeJSON
	}

	r.mu.RLock()
	codec, ok := r.codecs[contentType]
	r.mu.RUnlock()

	return codec, ok
}
