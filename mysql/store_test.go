package mysql

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/velmie/txoutbox"
)

type fakeResult struct {
	rows int64
}

func (fakeResult) LastInsertId() (int64, error) {
	return 0, nil
}

func (r fakeResult) RowsAffected() (int64, error) {
	return r.rows, nil
}

type execCall struct {
	query string
	args  []any
}

type fakeExecutor struct {
	calls []execCall
	rows  int64
	err   error
}

func (f *fakeExecutor) ExecContext(_ context.Context, query string, args ...any) (sql.Result, error) {
	f.calls = append(f.calls, execCall{query: query, args: args})
	if f.err != nil {
		return nil, f.err
	}
	return fakeResult{rows: f.rows}, nil
}

func newTestStore(opts ...Option) *Store {
	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg = cfg.withDefaults()

	return &Store{
		cfg:     cfg,
		queries: newQueries(cfg.Table, cfg.RowLocking),
		table:   cfg.Table,
	}
}

func testRecord(t *testing.T, payload string) outbox.Record {
	t.Helper()
	id, err := outbox.UUIDv7Generator{}.New()
	require.NoError(t, err)

	return outbox.Record{
		ID:          id,
		TypeTag:     "OrderCreated",
		RoutingKey:  "order.created",
		Payload:     []byte(payload),
		ContentType: outbox.ContentTypeJSON,
		CreatedAt:   time.Date(2024, 1, 1, 12, 0, 0, 0, time.FixedZone("X", 7200)),
	}
}

func TestStoreAppendBuildsMultiRowInsert(t *testing.T) {
	store := newTestStore()
	exec := &fakeExecutor{}
	records := []outbox.Record{testRecord(t, `{"orderId":1}`), testRecord(t, `{"orderId":2}`)}

	require.NoError(t, store.Append(context.Background(), exec, records))
	require.Len(t, exec.calls, 1)

	call := exec.calls[0]
	require.True(t, strings.HasPrefix(call.query, "INSERT INTO outbox_events (id, type_tag, routing_key, payload, content_type, created_at) VALUES "))
	require.Equal(t, 2, strings.Count(call.query, "(?, ?, ?, ?, ?, ?)"))
	require.Len(t, call.args, 2*insertArgsPerRow)

	require.Equal(t, records[0].ID[:], call.args[0])
	require.Equal(t, `{"orderId":1}`, call.args[3])
	require.Equal(t, outbox.ContentTypeJSON, call.args[4])
	createdAt, ok := call.args[5].(time.Time)
	require.True(t, ok)
	require.Equal(t, time.UTC, createdAt.Location())
}

func TestStoreAppendBinaryPayload(t *testing.T) {
	store := newTestStore()
	exec := &fakeExecutor{}
	record := testRecord(t, "")
	record.ContentType = "application/msgpack"
	record.Payload = []byte{0x81, 0xa1, 0x61, 0x01}

	require.NoError(t, store.Append(context.Background(), exec, []outbox.Record{record}))
	require.Equal(t, record.Payload, exec.calls[0].args[3])
}

func TestStoreAppendValidation(t *testing.T) {
	store := newTestStore()

	require.ErrorIs(t, store.Append(context.Background(), nil, []outbox.Record{testRecord(t, `{}`)}), ErrExecutorRequired)

	exec := &fakeExecutor{}
	require.NoError(t, store.Append(context.Background(), exec, nil))
	require.Empty(t, exec.calls)

	bad := testRecord(t, `{`)
	require.ErrorIs(t, store.Append(context.Background(), exec, []outbox.Record{bad}), outbox.ErrInvalidPayload)
	require.Empty(t, exec.calls)

	failing := &fakeExecutor{err: errors.New("deadlock")}
	err := store.Append(context.Background(), failing, []outbox.Record{testRecord(t, `{}`)})
	require.ErrorContains(t, err, "outbox mysql: insert failed")
}

func TestStoreWriterRequiresTx(t *testing.T) {
	store := newTestStore()

	err := store.Writer(nil).Append(context.Background(), []outbox.Record{testRecord(t, `{}`)})
	require.ErrorIs(t, err, ErrTxRequired)
}

func TestStoreMarkDelivered(t *testing.T) {
	store := newTestStore()
	exec := &fakeExecutor{}
	first, second := testRecord(t, `{}`), testRecord(t, `{}`)
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.markDelivered(context.Background(), exec, nil, at))
	require.Empty(t, exec.calls)

	require.NoError(t, store.markDelivered(context.Background(), exec, []outbox.ID{first.ID, second.ID}, at))
	require.Len(t, exec.calls, 1)
	require.Contains(t, exec.calls[0].query, "WHERE processed = FALSE AND id IN (?,?)")
	require.Equal(t, []any{at, first.ID[:], second.ID[:]}, exec.calls[0].args)
}

func TestStoreRecordFailuresTruncates(t *testing.T) {
	store := newTestStore(WithMaxErrorLength(8))
	exec := &fakeExecutor{}
	record := testRecord(t, `{}`)

	failures := []outbox.Failure{{ID: record.ID, Err: errors.New("broker unavailable")}}
	require.NoError(t, store.recordFailures(context.Background(), exec, failures))
	require.Len(t, exec.calls, 1)
	require.Equal(t, "broker u", exec.calls[0].args[0])
	require.Contains(t, exec.calls[0].query, "attempt_count = attempt_count + 1")
}

func TestStorePatchCountsRows(t *testing.T) {
	store := newTestStore()
	exec := &fakeExecutor{rows: 1}
	patches := []outbox.PayloadPatch{
		{ID: testRecord(t, `{}`).ID, Payload: []byte(`{"orderId":42}`)},
		{ID: testRecord(t, `{}`).ID, Payload: []byte(`{"orderId":43}`)},
	}

	updated, err := store.patch(context.Background(), exec, patches)
	require.NoError(t, err)
	require.Equal(t, 2, updated)
	require.Equal(t, `{"orderId":42}`, exec.calls[0].args[0])
	require.Contains(t, exec.calls[0].query, "WHERE id = ? AND processed = FALSE")
}

func TestQueriesRowLocking(t *testing.T) {
	plain := newQueries("outbox_events", false)
	require.NotContains(t, plain.selectPending, "SKIP LOCKED")
	require.Contains(t, plain.selectPending, "ORDER BY created_at ASC, id ASC")

	locking := newQueries("outbox_events", true)
	require.True(t, strings.HasSuffix(locking.selectPending, "FOR UPDATE SKIP LOCKED"))
}

func TestNewStoreValidation(t *testing.T) {
	_, err := NewStore(nil)
	require.ErrorIs(t, err, ErrDBRequired)

	_, err = NewStore(&sql.DB{}, WithTable("bad-name"))
	require.ErrorIs(t, err, ErrInvalidTableName)
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	require.Equal(t, "outbox_events", cfg.Table)
	require.Equal(t, sql.LevelReadCommitted, cfg.Isolation)
	require.False(t, cfg.RowLocking)
	require.Equal(t, maxErrorLen, cfg.MaxErrLen)
}

func TestMakePlaceholders(t *testing.T) {
	require.Equal(t, "", makePlaceholders(0))
	require.Equal(t, "?", makePlaceholders(1))
	require.Equal(t, "?,?,?", makePlaceholders(3))
}

func TestTruncateError(t *testing.T) {
	long := strings.Repeat("ä", maxErrorLen+10)
	msg := truncateError(errors.New(long), maxErrorLen)
	require.Len(t, []rune(msg), maxErrorLen)
	require.Equal(t, "", truncateError(nil, maxErrorLen))
}
