package outbox

import "errors"

var (
	// ErrInvalidBatchSize indicates that the requested batch size is not positive.
	ErrInvalidBatchSize = errors.New("outbox batch size must be positive")
	// ErrNoRecords signals that no records are pending.
	ErrNoRecords = errors.New("outbox has no pending records")
	// ErrNilBatch indicates that a consumer returned a nil batch.
	ErrNilBatch = errors.New("outbox batch is nil")
	// ErrEmptyBatch indicates that a consumer returned a batch with no records.
	ErrEmptyBatch = errors.New("outbox batch has no records")
	// ErrTypeTagRequired is returned when a record or registration has no type tag.
	ErrTypeTagRequired = errors.New("outbox type tag is required")
	// ErrRoutingKeyRequired is returned when a record has no routing key.
	ErrRoutingKeyRequired = errors.New("outbox routing key is required")
	// ErrPayloadRequired is returned when a record payload is empty.
	ErrPayloadRequired = errors.New("outbox payload is required")
	// ErrCreatedAtRequired is returned when an occurrence carries no timestamp.
	ErrCreatedAtRequired = errors.New("outbox created at is required")
	// ErrInvalidPayload is returned when a JSON record payload is not valid JSON.
	ErrInvalidPayload = errors.New("outbox payload must be valid JSON")
	// ErrInvalidID is returned when an ID is zero or cannot be parsed.
	ErrInvalidID = errors.New("outbox id is invalid")
	// ErrDuplicateOccurrence is returned when one capture sees the same occurrence twice.
	ErrDuplicateOccurrence = errors.New("outbox occurrence captured twice")
	// ErrWriterRequired is returned when capture runs without a record writer.
	ErrWriterRequired = errors.New("outbox record writer is required")

	// ErrCaptureFailed wraps any failure of the in-transaction capture stage.
	ErrCaptureFailed = errors.New("outbox capture failed")
	// ErrPatchBackFailed wraps any failure of the post-commit identifier patch.
	ErrPatchBackFailed = errors.New("outbox patch-back failed")
	// ErrUnknownTypeTag is returned when no decoder is registered for a record type tag.
	ErrUnknownTypeTag = errors.New("outbox type tag is not registered")
	// ErrUnknownContentType is returned when no codec is registered for a record content type.
	ErrUnknownContentType = errors.New("outbox content type is not registered")
	// ErrDecodeFailed wraps payload decoding failures.
	ErrDecodeFailed = errors.New("outbox payload decode failed")
	// ErrPublishFailed wraps broker publish failures.
	ErrPublishFailed = errors.New("outbox publish failed")
	// ErrPermanent marks a publish error that retrying cannot fix.
	ErrPermanent = errors.New("outbox permanent failure")
	// ErrBatchPersistFailed wraps failures to persist a dispatch cycle's state changes.
	ErrBatchPersistFailed = errors.New("outbox batch persist failed")
	// ErrCyclePanic indicates a dispatch cycle panic.
	ErrCyclePanic = errors.New("outbox dispatch cycle panic")

	// ErrDecoderRequired is returned when registering a nil decoder.
	ErrDecoderRequired = errors.New("outbox decoder is required")
	// ErrDecoderAlreadyRegistered is returned when a type tag is registered twice.
	ErrDecoderAlreadyRegistered = errors.New("outbox decoder already registered")
	// ErrCodecRequired is returned when a nil codec is provided.
	ErrCodecRequired = errors.New("outbox codec is required")
)
