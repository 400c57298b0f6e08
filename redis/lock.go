package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	goredislib "github.com/redis/go-redis/v9"

	"github.com/velmie/txoutbox"
)

const (
	// DefaultLockKey is the key dispatchers contend for.
	DefaultLockKey = "outbox:dispatcher:lock"
	// DefaultLockExpiry must exceed the longest expected cycle.
	DefaultLockExpiry = time.Minute

	unlockTimeout = 5 * time.Second
)

// LockOption configures a CycleLock.
type LockOption func(*CycleLock)

// WithLockKey overrides the lock key.
func WithLockKey(key string) LockOption {
	return func(l *CycleLock) {
		l.key = key
	}
}

// WithLockExpiry overrides how long an unreleased lock survives.
func WithLockExpiry(expiry time.Duration) LockOption {
	return func(l *CycleLock) {
		l.expiry = expiry
	}
}

// WithLockLogger sets the logger used for release failures.
func WithLockLogger(logger outbox.Logger) LockOption {
	return func(l *CycleLock) {
		l.logger = logger
	}
}

// CycleLock is an outbox.CycleGuard backed by a redsync mutex. A cycle runs
// only on the instance holding the lock; others skip until the next poll.
type CycleLock struct {
	rs     *redsync.Redsync
	key    string
	expiry time.Duration
	logger outbox.Logger
}

var _ outbox.CycleGuard = (*CycleLock)(nil)

// NewCycleLock builds a lock on client.
func NewCycleLock(client goredislib.UniversalClient, opts ...LockOption) (*CycleLock, error) {
	if client == nil {
		return nil, ErrClientRequired
	}

	l := &CycleLock{
		rs:     redsync.New(goredis.NewPool(client)),
		key:    DefaultLockKey,
		expiry: DefaultLockExpiry,
		logger: outbox.NopLogger{},
	}
	for _, opt := range opts {
		opt(l)
	}
	if strings.TrimSpace(l.key) == "" {
		l.key = DefaultLockKey
	}
	if l.expiry <= 0 {
		l.expiry = DefaultLockExpiry
	}
	if l.logger == nil {
		l.logger = outbox.NopLogger{}
	}

	return l, nil
}

// TryAcquire implements outbox.CycleGuard. It makes a single attempt.
func (l *CycleLock) TryAcquire(ctx context.Context) (func(), bool, error) {
	mutex := l.rs.NewMutex(l.key,
		redsync.WithExpiry(l.expiry),
		redsync.WithTries(1),
	)

	if err := mutex.LockContext(ctx); err != nil {
		if contended(err) {
			return nil, false, nil
		}

		return nil, false, fmt.Errorf("outbox redis: acquire %s: %w", l.key, err)
	}

	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), unlockTimeout)
		defer cancel()

		if ok, err := mutex.UnlockContext(ctx); err != nil || !ok {
			l.logger.Warn("outbox redis lock release failed", "key", l.key, "err", err)
		}
	}

	return release, true, nil
}

func contended(err error) bool {
	var taken *redsync.ErrTaken
	if errors.Is(err, redsync.ErrFailed) || errors.As(err, &taken) {
		return true
	}

	return strings.Contains(err.Error(), "lock already taken")
}
