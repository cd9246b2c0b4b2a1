package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// releaseScript deletes the key only if it still holds our token, so an
// expired lock taken over by another process is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLocker implements Locker across processes with SET NX + TTL.
type RedisLocker struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// RedisOption configures a RedisLocker.
type RedisOption func(*RedisLocker)

// WithPrefix overrides the key prefix (default "circle:lock").
func WithPrefix(prefix string) RedisOption {
	return func(l *RedisLocker) {
		l.prefix = prefix
	}
}

// NewRedis creates a RedisLocker. ttl bounds how long a crashed holder can
// block a business unit.
func NewRedis(client redis.UniversalClient, ttl time.Duration, opts ...RedisOption) *RedisLocker {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	l := &RedisLocker{client: client, prefix: "circle:lock", ttl: ttl}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *RedisLocker) wrapKey(key string) string {
	return fmt.Sprintf("%s:%s", l.prefix, key)
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	k := l.wrapKey(key)
	token := uuid.New().String()

	ok, err := l.client.SetNX(ctx, k, token, l.ttl).Result()
	if err != nil {
		return nil, eris.Wrapf(err, "lock: redis setnx %s", k)
	}
	if !ok {
		return nil, eris.Wrapf(ErrLocked, "key %s", key)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(releaseCtx, l.client, []string{k}, token).Err(); err != nil {
				zap.L().Warn("lock: redis release failed", zap.String("key", k), zap.Error(err))
			}
		})
	}, nil
}
