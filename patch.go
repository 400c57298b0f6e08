package outbox

import (
	"context"
	"fmt"
)

// PatchPlan lists the occurrences captured before their aggregate had an
// identifier. It belongs to a single unit of work and is consumed once.
type PatchPlan struct {
	entries  []planEntry
	drained  []drainedEntry
	consumed bool
}

type drainedEntry struct {
	aggregate   Aggregate
	occurrences []Occurrence
}

type planEntry struct {
	aggregate   Aggregate
	occurrences []IdentityPatcher
}

func (p *PatchPlan) add(agg Aggregate, occurrences []IdentityPatcher) {
	p.entries = append(p.entries, planEntry{aggregate: agg, occurrences: occurrences})
}

// restore hands drained occurrences back to their aggregates after a rollback.
func (p *PatchPlan) restore() {
	if p == nil {
		return
	}
	restoreDrained(p.drained)
	p.drained = nil
	p.entries = nil
}

func restoreDrained(drained []drainedEntry) {
	for _, entry := range drained {
		if restorer, ok := entry.aggregate.(OccurrenceRestorer); ok {
			restorer.RestoreOccurrences(entry.occurrences)
		}
	}
}

// Len returns the number of planned occurrences.
func (p *PatchPlan) Len() int {
	if p == nil {
		return 0
	}
	n := 0
	for _, entry := range p.entries {
		n += len(entry.occurrences)
	}

	return n
}

// Empty reports whether the plan has nothing to patch.
func (p *PatchPlan) Empty() bool {
	return p.Len() == 0
}

// Consumed reports whether PatchBack already ran for this plan.
func (p *PatchPlan) Consumed() bool {
	return p != nil && p.consumed
}

func (p *PatchPlan) take() []planEntry {
	entries := p.entries
	p.entries = nil
	p.consumed = true

	return entries
}

// PatchResult summarizes one patch-back run.
type PatchResult struct {
	// Planned is the number of occurrences in the plan.
	Planned int
	// Patched is the number of records whose payload was rewritten.
	Patched int
	// Skipped is the number of occurrences whose aggregate is still unidentified.
	Skipped int
}

// PatchOption configures a Patcher.
type PatchOption func(*Patcher)

// WithPatchLogger sets the patcher logger.
func WithPatchLogger(logger Logger) PatchOption {
	return func(p *Patcher) {
		p.logger = logger
	}
}

// Patcher rewrites placeholder payloads once store-assigned identifiers are known.
type Patcher struct {
	codec  Codec
	store  PayloadPatcher
	logger Logger
}

// NewPatcher returns a Patcher writing through store.
// The codec must match the one used at capture time; nil selects JSONCodec.
func NewPatcher(codec Codec, store PayloadPatcher, opts ...PatchOption) *Patcher {
	if store == nil {
		panic("outbox: nil PayloadPatcher")
	}

	p := &Patcher{codec: codecOrJSON(codec), store: store}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = loggerOrNop(p.logger)

	return p
}

// PatchBack copies now-known identifiers into the planned occurrences and
// rewrites their payloads. A nil or consumed plan is a no-op.
// All errors wrap ErrPatchBackFailed.
func (p *Patcher) PatchBack(ctx context.Context, plan *PatchPlan) (PatchResult, error) {
	if plan == nil || plan.consumed {
		return PatchResult{}, nil
	}

	entries := plan.take()
	result := PatchResult{}
	patches := make([]PayloadPatch, 0)

	for _, entry := range entries {
		result.Planned += len(entry.occurrences)
		if !identityAssigned(entry.aggregate) {
			result.Skipped += len(entry.occurrences)
			p.logger.Debug("outbox aggregate still unidentified", "count", len(entry.occurrences))

			continue
		}

		for _, occurrence := range entry.occurrences {
			if !occurrence.PatchIdentity(entry.aggregate) {
				result.Skipped++

				continue
			}
			payload, err := p.codec.Marshal(occurrence)
			if err != nil {
				return result, fmt.Errorf("%w: encode %s: %w", ErrPatchBackFailed, occurrence.TypeTag(), err)
			}
			patches = append(patches, PayloadPatch{ID: occurrence.OccurrenceID(), Payload: payload})
		}
	}

	if len(patches) == 0 {
		return result, nil
	}

	updated, err := p.store.PatchPayloads(ctx, patches)
	if err != nil {
		return result, fmt.Errorf("%w: %w", ErrPatchBackFailed, err)
	}
	result.Patched = updated

	return result, nil
}
