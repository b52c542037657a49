package repository

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coopscan/receipts-api/internal/common"
)

// AccountLocker is a named mutex with bounded wait and explicit release. It
// serializes the duplicate-check-and-write critical section per account key;
// different keys never contend.
type AccountLocker interface {
	// Acquire blocks up to wait for the named lock. On success the returned
	// release func must be called on every exit path; it never fails.
	Acquire(ctx context.Context, key string, wait time.Duration) (release func(), err error)
}

const lockKeyPrefix = "ocr-account:"

// LockKey derives the lock name for a normalized account number.
func LockKey(account string) string {
	return lockKeyPrefix + account
}

// advisoryLocker backs AccountLocker with Postgres advisory locks, so the
// guarantee holds across processes sharing the database.
type advisoryLocker struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewAdvisoryLocker(pool *pgxpool.Pool, logger *slog.Logger) AccountLocker {
	if logger == nil {
		logger = slog.Default()
	}
	return &advisoryLocker{pool: pool, logger: logger}
}

func hashKey(key string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return int64(h.Sum64())
}

func (l *advisoryLocker) Acquire(ctx context.Context, key string, wait time.Duration) (func(), error) {
	id := hashKey(key)

	// The lock is session-scoped, so it must be acquired and released on
	// the same connection.
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, common.WrapError(err, "acquire lock connection")
	}

	deadline := time.Now().Add(wait)
	for {
		var got bool
		if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, id).Scan(&got); err != nil {
			conn.Release()
			return nil, common.WrapError(err, "try advisory lock")
		}
		if got {
			break
		}
		if time.Now().After(deadline) {
			conn.Release()
			l.logger.Warn("account lock wait timed out", "key", key)
			return nil, common.NewAppError(common.CodeLockTimeout, "another submission for this account is in progress, retry shortly", nil)
		}
		select {
		case <-ctx.Done():
			conn.Release()
			return nil, ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}

	var released sync.Once
	release := func() {
		released.Do(func() {
			// Release must not inherit a cancelled request context.
			unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if _, err := conn.Exec(unlockCtx, `SELECT pg_advisory_unlock($1)`, id); err != nil {
				l.logger.Error("advisory unlock failed", "key", key, "error", err)
			}
			conn.Release()
		})
	}
	return release, nil
}

// KeyedMutexLocker is an in-process AccountLocker for single-process
// deployments and tests. Same contract: bounded wait, explicit release.
type KeyedMutexLocker struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func NewKeyedMutexLocker() *KeyedMutexLocker {
	return &KeyedMutexLocker{locks: make(map[string]chan struct{})}
}

func (l *KeyedMutexLocker) sem(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.locks[key]
	if !ok {
		s = make(chan struct{}, 1)
		l.locks[key] = s
	}
	return s
}

func (l *KeyedMutexLocker) Acquire(ctx context.Context, key string, wait time.Duration) (func(), error) {
	s := l.sem(key)
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case s <- struct{}{}:
	case <-timer.C:
		return nil, common.NewAppError(common.CodeLockTimeout, "another submission for this account is in progress, retry shortly", nil)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	var released sync.Once
	return func() {
		released.Do(func() { <-s })
	}, nil
}
