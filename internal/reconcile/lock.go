package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/eventroster/backend/internal/apperror"
	"github.com/eventroster/backend/internal/storage/models"
)

// SyncFunc performs one reconciliation run.
type SyncFunc func(ctx context.Context) (*models.SyncResult, error)

// Locker runs fn while holding the run lock for key.
type Locker interface {
	Do(ctx context.Context, key string, fn SyncFunc) (*models.SyncResult, error)
}

// LocalLocker serializes runs within one process. Callers arriving while a
// run for the same key is active wait for it and share its result.
type LocalLocker struct {
	group singleflight.Group
}

// NewLocalLocker creates an in-process locker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{}
}

// Do implements Locker.
func (l *LocalLocker) Do(ctx context.Context, key string, fn SyncFunc) (*models.SyncResult, error) {
	v, err, _ := l.group.Do(key, func() (any, error) {
		return fn(ctx)
	})
	result, _ := v.(*models.SyncResult)
	return result, err
}

// DefaultLockTTL bounds how long a crashed holder can block other processes.
// A live holder renews the lock every third of the TTL.
const DefaultLockTTL = 5 * time.Minute

// ErrLockLost cancels a run whose Redis lock expired or was taken over.
var ErrLockLost = errors.New("sync lock lost")

// Extends the key's TTL only if it still holds our token.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker serializes runs across processes sharing a Redis instance.
// In-process callers are de-duplicated first; a run already held by another
// process fails with apperror.ErrSyncInProgress. The lock is renewed while the
// run is active; if renewal finds it gone, or cannot reach Redis for a whole
// TTL, the run's context is cancelled with ErrLockLost.
type RedisLocker struct {
	client redis.Cmdable
	ttl    time.Duration
	prefix string
	local  LocalLocker
	logger *slog.Logger
}

// NewRedisLocker creates a Redis-backed locker. ttl <= 0 uses DefaultLockTTL.
func NewRedisLocker(client redis.Cmdable, ttl time.Duration, logger *slog.Logger) *RedisLocker {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisLocker{
		client: client,
		ttl:    ttl,
		prefix: "eventroster:sync:",
		logger: logger.With("component", "sync-lock"),
	}
}

// Do implements Locker.
func (l *RedisLocker) Do(ctx context.Context, key string, fn SyncFunc) (*models.SyncResult, error) {
	return l.local.Do(ctx, key, func(ctx context.Context) (*models.SyncResult, error) {
		lockKey := l.prefix + key
		token := uuid.NewString()

		ok, err := l.client.SetNX(ctx, lockKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquiring sync lock: %w", err)
		}
		if !ok {
			return nil, apperror.ErrSyncInProgress
		}

		defer func() {
			// Release even if the run was cancelled.
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(releaseCtx, l.client, []string{lockKey}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
				l.logger.Warn("releasing sync lock", "key", lockKey, "error", err)
			}
		}()

		runCtx, cancel := context.WithCancelCause(ctx)
		defer cancel(nil)

		stop := l.keepAlive(runCtx, cancel, lockKey, token)
		result, err := fn(runCtx)
		stop()

		if cause := context.Cause(runCtx); errors.Is(cause, ErrLockLost) && err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLockLost, err)
		}
		return result, err
	})
}

// keepAlive renews key until the returned stop function is called.
func (l *RedisLocker) keepAlive(ctx context.Context, cancel context.CancelCauseFunc, key, token string) (stop func()) {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		defer wg.Done()

		ticker := time.NewTicker(l.ttl / 3)
		defer ticker.Stop()
		renewed := time.Now()

		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			n, err := renewScript.Run(ctx, l.client, []string{key}, token, l.ttl.Milliseconds()).Int64()
			switch {
			case err != nil && time.Since(renewed) < l.ttl:
				l.logger.Warn("renewing sync lock", "key", key, "error", err)
			case err != nil, n == 0:
				l.logger.Error("sync lock lost", "key", key, "error", err)
				cancel(ErrLockLost)
				return
			default:
				renewed = time.Now()
			}
		}
	}()

	return func() {
		close(done)
		wg.Wait()
	}
}
