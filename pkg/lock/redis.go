package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisKeyPrefix = "timetable:lock:"

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisClient is the part of go-redis the locker uses. *redis.Client satisfies it.
type RedisClient interface {
	redis.Scripter
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// Redis is a Locker shared by every process pointed at the same Redis instance.
// A held lock renews its lease every ttl/3 until released.
type Redis struct {
	client  RedisClient
	ttl     time.Duration
	backoff time.Duration
	logger  *zap.Logger
}

// NewRedis builds a distributed tenant locker. ttl bounds how long a crashed holder can block writers.
func NewRedis(client RedisClient, ttl time.Duration, logger *zap.Logger) *Redis {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Redis{client: client, ttl: ttl, backoff: 25 * time.Millisecond, logger: logger}
}

// Lock polls SET NX until it wins the key or ctx is done.
func (r *Redis) Lock(ctx context.Context, tenantID string) (Unlock, error) {
	key := redisKeyPrefix + tenantID
	token := uuid.NewString()
	wait := r.backoff

	for {
		ok, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
		if err != nil && ctx.Err() == nil {
			return nil, fmt.Errorf("acquire tenant lock: %w", err)
		}
		if ok {
			break
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, errors.Join(ErrTimeout, ctx.Err())
		case <-timer.C:
		}
		if wait < 400*time.Millisecond {
			wait *= 2
		}
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go r.keepAlive(key, token, tenantID, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := releaseScript.Run(releaseCtx, r.client, []string{key}, token).Err(); err != nil {
				r.logger.Warn("failed to release tenant lock", zap.String("school_id", tenantID), zap.Error(err))
			}
		})
	}, nil
}

// keepAlive extends the lease while the token still owns key. It exits on stop
// or once the lease is found to belong to someone else.
func (r *Redis) keepAlive(key, token, tenantID string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	interval := r.ttl / 3
	if interval <= 0 {
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		ctx, cancel := context.WithTimeout(context.Background(), interval)
		extended, err := extendScript.Run(ctx, r.client, []string{key}, token, r.ttl.Milliseconds()).Int64()
		cancel()
		if err != nil {
			r.logger.Warn("failed to extend tenant lock", zap.String("school_id", tenantID), zap.Error(err))
			continue
		}
		if extended == 0 {
			r.logger.Error("tenant lock lease lost", zap.String("school_id", tenantID))
			return
		}
	}
}
