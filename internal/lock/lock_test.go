package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLocker_Exclusive(t *testing.T) {
	l := NewMemory()
	ctx := context.Background()

	release, err := l.Acquire(ctx, "executive")
	require.NoError(t, err)
	assert.True(t, l.Held("executive"))

	_, err = l.Acquire(ctx, "executive")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLocked))

	// Other keys are independent.
	releaseOther, err := l.Acquire(ctx, "amigro")
	require.NoError(t, err)
	releaseOther()

	release()
	assert.False(t, l.Held("executive"))

	release2, err := l.Acquire(ctx, "executive")
	require.NoError(t, err)
	release2()
}

func TestMemoryLocker_ReleaseIdempotent(t *testing.T) {
	l := NewMemory()
	ctx := context.Background()

	release, err := l.Acquire(ctx, "executive")
	require.NoError(t, err)
	release()

	second, err := l.Acquire(ctx, "executive")
	require.NoError(t, err)

	// A stale release must not free the new holder.
	release()
	assert.True(t, l.Held("executive"))
	second()
}

func TestMemoryLocker_CancelledContext(t *testing.T) {
	l := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.Acquire(ctx, "executive")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrLocked))
	assert.False(t, l.Held("executive"))
}

func TestMemoryLocker_Concurrent(t *testing.T) {
	l := NewMemory()
	ctx := context.Background()

	var winners atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, err := l.Acquire(ctx, "executive"); err == nil {
				winners.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
}

func TestRedisLocker_Defaults(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	t.Cleanup(func() { client.Close() })

	l := NewRedis(client, 0)
	assert.Equal(t, 2*time.Hour, l.ttl)
	assert.Equal(t, "circle:lock:executive", l.wrapKey("executive"))

	l = NewRedis(client, time.Minute, WithPrefix("test"))
	assert.Equal(t, time.Minute, l.ttl)
	assert.Equal(t, "test:executive", l.wrapKey("executive"))
}

func TestRedisLocker_Unreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { client.Close() })

	l := NewRedis(client, time.Minute)
	_, err := l.Acquire(context.Background(), "executive")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrLocked))
	assert.Contains(t, err.Error(), "redis setnx")
}
