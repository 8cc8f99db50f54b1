package redisblob

import (
	"context"
	"errors"
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/mickamy/deltatrail/blob"
)

const defaultPrefix = "deltatrail:blob"

// Store keeps each object as a single Redis string value.
type Store struct {
	client *goredis.Client
	prefix string
}

type Option func(*Store)

// WithPrefix namespaces every key.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		prefix = strings.TrimSpace(prefix)
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// New wraps an existing client. The client is pinged once.
func New(ctx context.Context, client *goredis.Client, opts ...Option) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("redisblob: client is required")
	}
	s := &Store{client: client, prefix: defaultPrefix}
	for _, opt := range opts {
		opt(s)
	}
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redisblob: ping failed: %w", err)
	}
	return s, nil
}

func (s *Store) key(k string) string {
	return s.prefix + ":" + k
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, blob.ErrNotFound
	}
	return b, err
}

func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	return s.client.Set(ctx, s.key(key), data, 0).Err()
}

// Delete removes an object. Missing keys are not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.key(key)).Err()
}
