package outbox

// Aggregate is a business entity that accumulates occurrences during a unit of work.
type Aggregate interface {
	// DrainOccurrences returns the pending occurrences in insertion order and
	// clears them. A second call returns nil until new occurrences are raised.
	DrainOccurrences() []Occurrence
}

// ProvisionalAggregate is an aggregate whose identifier may be assigned by the
// store on insert.
type ProvisionalAggregate interface {
	Aggregate
	// IdentityAssigned reports whether the aggregate's identifier is known.
	IdentityAssigned() bool
}

// OccurrenceRestorer is implemented by aggregates that take back drained
// occurrences when the unit of work that drained them rolls back. Without it a
// rolled-back aggregate must not be reused for a retry.
type OccurrenceRestorer interface {
	RestoreOccurrences(occurrences []Occurrence)
}

// Recorder accumulates occurrences for an aggregate.
//
// Keep it in an unexported field and call Raise only from the aggregate's own
// mutating methods; expose DrainOccurrences by delegation:
//
//	type Order struct {
//		events outbox.Recorder
//	}
//
//	func (o *Order) DrainOccurrences() []outbox.Occurrence { return o.events.DrainOccurrences() }
//	func (o *Order) RestoreOccurrences(occ []outbox.Occurrence) { o.events.RestoreOccurrences(occ) }
type Recorder struct {
	pending []Occurrence
}

// Raise appends an occurrence.
func (r *Recorder) Raise(occurrence Occurrence) {
	if occurrence == nil {
		return
	}
	r.pending = append(r.pending, occurrence)
}

// Pending returns the number of occurrences not yet drained.
func (r *Recorder) Pending() int {
	return len(r.pending)
}

// Peek returns a copy of the pending occurrences without clearing them.
func (r *Recorder) Peek() []Occurrence {
	out := make([]Occurrence, len(r.pending))
	copy(out, r.pending)

	return out
}

// DrainOccurrences implements Aggregate.
func (r *Recorder) DrainOccurrences() []Occurrence {
	out := r.pending
	r.pending = nil

	return out
}

// RestoreOccurrences implements OccurrenceRestorer. Restored occurrences keep
// their order and precede anything raised since the drain.
func (r *Recorder) RestoreOccurrences(occurrences []Occurrence) {
	if len(occurrences) == 0 {
		return
	}
	restored := make([]Occurrence, 0, len(occurrences)+len(r.pending))
	restored = append(restored, occurrences...)
	r.pending = append(restored, r.pending...)
}

func identityAssigned(agg Aggregate) bool {
	provisional, ok := agg.(ProvisionalAggregate)
	if !ok {
		return true
	}

	return provisional.IdentityAssigned()
}
