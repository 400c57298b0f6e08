package outbox

import (
	"context"
	"fmt"
)

// CaptureOption configures a Capturer.
type CaptureOption func(*Capturer)

// WithCaptureLogger sets the logger used for capture diagnostics.
func WithCaptureLogger(logger Logger) CaptureOption {
	return func(c *Capturer) {
		c.logger = logger
	}
}

// Capturer converts pending occurrences into records inside a transaction.
type Capturer struct {
	codec  Codec
	logger Logger
}

// NewCapturer returns a Capturer that serializes payloads with codec.
// A nil codec selects JSONCodec.
func NewCapturer(codec Codec, opts ...CaptureOption) *Capturer {
	c := &Capturer{codec: codecOrJSON(codec)}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = loggerOrNop(c.logger)

	return c
}

// Capture drains every aggregate, writes one pending record per occurrence
// through w and returns the patch plan for aggregates whose identity is not
// assigned yet. All errors wrap ErrCaptureFailed; on error the drained
// occurrences are handed back to aggregates implementing OccurrenceRestorer.
func (c *Capturer) Capture(ctx context.Context, w RecordWriter, aggregates ...Aggregate) (*PatchPlan, error) {
	if w == nil {
		return nil, fmt.Errorf("%w: %w", ErrCaptureFailed, ErrWriterRequired)
	}

	plan := &PatchPlan{}
	records := make([]Record, 0)
	seen := make(map[ID]struct{})
	fail := func(err error) (*PatchPlan, error) {
		restoreDrained(plan.drained)

		return nil, err
	}

	for _, agg := range aggregates {
		if agg == nil {
			continue
		}
		occurrences := agg.DrainOccurrences()
		if len(occurrences) == 0 {
			continue
		}
		plan.drained = append(plan.drained, drainedEntry{aggregate: agg, occurrences: occurrences})

		assigned := identityAssigned(agg)
		var planned []IdentityPatcher
		for _, occurrence := range occurrences {
			if occurrence == nil {
				continue
			}
			if patcher, ok := occurrence.(IdentityPatcher); ok {
				if assigned {
					patcher.PatchIdentity(agg)
				} else {
					planned = append(planned, patcher)
				}
			}

			record, err := c.record(occurrence, seen)
			if err != nil {
				return fail(err)
			}
			records = append(records, record)
		}
		if len(planned) > 0 {
			plan.add(agg, planned)
		}
	}

	if len(records) == 0 {
		return plan, nil
	}
	if err := w.Append(ctx, records); err != nil {
		return fail(fmt.Errorf("%w: append %d records: %w", ErrCaptureFailed, len(records), err))
	}
	c.logger.Debug("outbox captured occurrences", "count", len(records), "planned", plan.Len())

	return plan, nil
}

// CaptureOccurrences writes records for occurrences raised outside an aggregate.
func (c *Capturer) CaptureOccurrences(ctx context.Context, w RecordWriter, occurrences ...Occurrence) error {
	if w == nil {
		return fmt.Errorf("%w: %w", ErrCaptureFailed, ErrWriterRequired)
	}

	records := make([]Record, 0, len(occurrences))
	seen := make(map[ID]struct{}, len(occurrences))
	for _, occurrence := range occurrences {
		if occurrence == nil {
			continue
		}
		record, err := c.record(occurrence, seen)
		if err != nil {
			return err
		}
		records = append(records, record)
	}
	if len(records) == 0 {
		return nil
	}
	if err := w.Append(ctx, records); err != nil {
		return fmt.Errorf("%w: append %d records: %w", ErrCaptureFailed, len(records), err)
	}

	return nil
}

func (c *Capturer) record(occurrence Occurrence, seen map[ID]struct{}) (Record, error) {
	id := occurrence.OccurrenceID()
	if _, dup := seen[id]; dup {
		return Record{}, fmt.Errorf("%w: %w: %s", ErrCaptureFailed, ErrDuplicateOccurrence, id)
	}
	seen[id] = struct{}{}

	payload, err := c.codec.Marshal(occurrence)
	if err != nil {
		return Record{}, fmt.Errorf("%w: encode %s: %w", ErrCaptureFailed, occurrence.TypeTag(), err)
	}

	record := Record{
		ID:          id,
		TypeTag:     occurrence.TypeTag(),
		RoutingKey:  occurrence.RoutingKey(),
		Payload:     payload,
		ContentType: c.codec.ContentType(),
		CreatedAt:   occurrence.OccurredAt().UTC(),
		State:       StatePending,
	}
	if err := record.Validate(); err != nil {
		return Record{}, fmt.Errorf("%w: %s: %w", ErrCaptureFailed, occurrence.TypeTag(), err)
	}

	return record, nil
}
