package redislock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/mickamy/deltatrail/lock"
)

const (
	defaultPrefix = "deltatrail:lock"
	defaultTTL    = 30 * time.Second
	defaultRetry  = 50 * time.Millisecond
)

// ErrLockLost is returned by Unlock when the lock expired or was taken over
// before it was released.
var ErrLockLost = errors.New("redislock: lock lost")

// release deletes the key only if it still holds our token.
var release = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker is a lock.Locker shared by every process using the same Redis.
// Locks expire after the TTL so a crashed holder cannot block writers
// forever; callers must finish their read-modify-write within it.
type Locker struct {
	client *goredis.Client
	prefix string
	ttl    time.Duration
	retry  time.Duration
}

type Option func(*Locker)

func WithPrefix(prefix string) Option {
	return func(l *Locker) {
		prefix = strings.TrimSpace(prefix)
		if prefix != "" {
			l.prefix = prefix
		}
	}
}

func WithTTL(ttl time.Duration) Option {
	return func(l *Locker) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

// WithRetryInterval sets how often a blocked Lock polls.
func WithRetryInterval(d time.Duration) Option {
	return func(l *Locker) {
		if d > 0 {
			l.retry = d
		}
	}
}

func New(client *goredis.Client, opts ...Option) (*Locker, error) {
	if client == nil {
		return nil, fmt.Errorf("redislock: client is required")
	}
	l := &Locker{client: client, prefix: defaultPrefix, ttl: defaultTTL, retry: defaultRetry}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

func (l *Locker) Lock(ctx context.Context, key string) (lock.Unlock, error) {
	k := l.prefix + ":" + key
	token := uuid.NewString()
	for {
		ok, err := l.client.SetNX(ctx, k, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redislock: failed to acquire %q: %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retry):
		}
	}
	return func(ctx context.Context) error {
		n, err := release.Run(ctx, l.client, []string{k}, token).Int()
		if err != nil {
			return fmt.Errorf("redislock: failed to release %q: %w", key, err)
		}
		if n == 0 {
			return ErrLockLost
		}
		return nil
	}, nil
}
