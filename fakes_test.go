package outbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time {
	return c.now
}

type testOrder struct {
	id       int64
	customer string
	events   Recorder
}

func newTestOrder(customer string, at time.Time) *testOrder {
	order := &testOrder{customer: customer}
	order.events.Raise(&orderPlaced{
		OccurrenceBase: mustBase(at),
		Customer:       customer,
	})

	return order
}

func (o *testOrder) DrainOccurrences() []Occurrence {
	return o.events.DrainOccurrences()
}

func (o *testOrder) RestoreOccurrences(occurrences []Occurrence) {
	o.events.RestoreOccurrences(occurrences)
}

func (o *testOrder) IdentityAssigned() bool {
	return o.id != 0
}

type orderPlaced struct {
	OccurrenceBase
	OrderID  int64  `json:"orderId"`
	Customer string `json:"customerName"`
}

func (*orderPlaced) TypeTag() string {
	return "OrderPlaced"
}

func (*orderPlaced) RoutingKey() string {
	return "order.placed"
}

func (e *orderPlaced) PatchIdentity(agg Aggregate) bool {
	order, ok := agg.(*testOrder)
	if !ok || order.id == 0 {
		return false
	}
	e.OrderID = order.id

	return true
}

type customerNotified struct {
	OccurrenceBase
	Email string `json:"email"`
}

func (customerNotified) TypeTag() string {
	return "CustomerNotified"
}

func (customerNotified) RoutingKey() string {
	return "customer.notified"
}

func mustBase(at time.Time) OccurrenceBase {
	base, err := NewOccurrenceBase(UUIDv7Generator{}, fixedClock{now: at})
	if err != nil {
		panic(err)
	}

	return base
}

type memStore struct {
	mu          sync.Mutex
	records     []Record
	beginErr    error
	appendErr   error
	commitErr   error
	patchErr    error
	patchCalls  int
	fetchCalls  int
	batchCommit []error
	markErr     error
	rollbacks   int
}

type memTx struct {
	pending    []Record
	done       bool
	rolledBack bool
}

func (s *memStore) Begin(context.Context) (*memTx, error) {
	if s.beginErr != nil {
		return nil, s.beginErr
	}

	return &memTx{}, nil
}

func (s *memStore) Commit(_ context.Context, tx *memTx) error {
	if s.commitErr != nil {
		return s.commitErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, tx.pending...)
	tx.done = true

	return nil
}

func (s *memStore) Rollback(_ context.Context, tx *memTx) error {
	if tx.done {
		return nil
	}
	tx.done = true
	tx.rolledBack = true
	tx.pending = nil

	return nil
}

func (s *memStore) Writer(tx *memTx) RecordWriter {
	return RecordWriterFunc(func(_ context.Context, records []Record) error {
		if s.appendErr != nil {
			return s.appendErr
		}
		tx.pending = append(tx.pending, records...)

		return nil
	})
}

func (s *memStore) PatchPayloads(_ context.Context, patches []PayloadPatch) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patchCalls++
	if s.patchErr != nil {
		return 0, s.patchErr
	}

	updated := 0
	for _, patch := range patches {
		for i := range s.records {
			if s.records[i].ID == patch.ID && s.records[i].State == StatePending {
				s.records[i].Payload = patch.Payload
				updated++
			}
		}
	}

	return updated, nil
}

func (s *memStore) Fetch(_ context.Context, opts FetchOptions) (Batch, error) {
	if opts.BatchSize <= 0 {
		return nil, ErrInvalidBatchSize
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchCalls++

	pending := make([]Record, 0)
	for _, record := range s.records {
		if record.State == StatePending {
			pending = append(pending, record)
		}
	}
	if len(pending) == 0 {
		return nil, ErrNoRecords
	}
	sort.SliceStable(pending, func(i, j int) bool {
		if !pending[i].CreatedAt.Equal(pending[j].CreatedAt) {
			return pending[i].CreatedAt.Before(pending[j].CreatedAt)
		}

		return bytes.Compare(pending[i].ID[:], pending[j].ID[:]) < 0
	})
	if len(pending) > opts.BatchSize {
		pending = pending[:opts.BatchSize]
	}

	var commitErr error
	if len(s.batchCommit) > 0 {
		commitErr = s.batchCommit[0]
		s.batchCommit = s.batchCommit[1:]
	}

	return &memBatch{store: s, records: pending, commitErr: commitErr}, nil
}

func (s *memStore) PendingCount(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, record := range s.records {
		if record.State == StatePending {
			count++
		}
	}

	return count, nil
}

func (s *memStore) record(id ID) Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, record := range s.records {
		if record.ID == id {
			return record
		}
	}

	return Record{}
}

func (s *memStore) snapshot() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)

	return out
}

func (s *memStore) add(records ...Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, records...)
}

type memBatch struct {
	store      *memStore
	records    []Record
	delivered  map[ID]time.Time
	failures   []Failure
	commitErr  error
	committed  bool
	rolledBack bool
}

func (b *memBatch) Records() []Record {
	return b.records
}

func (b *memBatch) MarkDelivered(_ context.Context, ids []ID, at time.Time) error {
	if b.store.markErr != nil {
		return b.store.markErr
	}
	if b.delivered == nil {
		b.delivered = make(map[ID]time.Time, len(ids))
	}
	for _, id := range ids {
		b.delivered[id] = at
	}

	return nil
}

func (b *memBatch) RecordFailures(_ context.Context, failures []Failure) error {
	b.failures = append(b.failures, failures...)

	return nil
}

func (b *memBatch) Commit() error {
	if b.commitErr != nil {
		return b.commitErr
	}
	b.store.mu.Lock()
	defer b.store.mu.Unlock()
	for i := range b.store.records {
		record := &b.store.records[i]
		if at, ok := b.delivered[record.ID]; ok && record.State == StatePending {
			record.State = StateDelivered
			record.DeliveredAt = at
		}
		for _, failure := range b.failures {
			if failure.ID == record.ID {
				record.Attempts++
			}
		}
	}
	b.committed = true

	return nil
}

func (b *memBatch) Rollback() error {
	b.rolledBack = true
	b.store.mu.Lock()
	b.store.rollbacks++
	b.store.mu.Unlock()

	return nil
}

type recordingPublisher struct {
	mu        sync.Mutex
	published []Message
	failOn    map[string]error
	onPublish func(msg Message)
}

func (p *recordingPublisher) Publish(_ context.Context, msg Message) error {
	p.mu.Lock()
	hook := p.onPublish
	err := p.failOn[msg.TypeTag]
	if err == nil {
		p.published = append(p.published, msg)
	}
	p.mu.Unlock()
	if hook != nil {
		hook(msg)
	}

	return err
}

func (p *recordingPublisher) ids() []ID {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]ID, 0, len(p.published))
	for _, msg := range p.published {
		out = append(out, msg.ID)
	}

	return out
}

type logEntry struct {
	level string
	msg   string
	args  []any
}

type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *recordingLogger) log(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg, args: args})
}

func (l *recordingLogger) Debug(msg string, args ...any) {
	l.log("debug", msg, args)
}

func (l *recordingLogger) Info(msg string, args ...any) {
	l.log("info", msg, args)
}

func (l *recordingLogger) Warn(msg string, args ...any) {
	l.log("warn", msg, args)
}

func (l *recordingLogger) Error(msg string, args ...any) {
	l.log("error", msg, args)
}

func (l *recordingLogger) count(level string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, entry := range l.entries {
		if entry.level == level {
			n++
		}
	}

	return n
}

func pendingRecord(tag string, at time.Time, payload string) Record {
	id, err := UUIDv7Generator{}.New()
	if err != nil {
		panic(err)
	}

	return Record{
		ID:          id,
		TypeTag:     tag,
		RoutingKey:  fmt.Sprintf("test.%s", tag),
		Payload:     []byte(payload),
		ContentType: ContentTypeJSON,
		CreatedAt:   at,
		State:       StatePending,
	}
}

var errBoom = errors.New("boom")
