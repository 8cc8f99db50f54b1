package main

import (
	"context"
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mickamy/deltatrail/blob"
	"github.com/mickamy/deltatrail/blob/fsblob"
	"github.com/mickamy/deltatrail/blob/redisblob"
	"github.com/mickamy/deltatrail/blob/sqliteblob"
	"github.com/mickamy/deltatrail/internal/config"
	"github.com/mickamy/deltatrail/lock"
	"github.com/mickamy/deltatrail/lock/redislock"
)

// backend holds the store and lock built from configuration, plus whatever
// must be closed when the command exits.
type backend struct {
	store   blob.Store
	locker  lock.Locker
	closers []func() error
}

func (b *backend) Close() error {
	var errs []string
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close backend: %s", strings.Join(errs, "; "))
	}
	return nil
}

func newBackend(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*backend, error) {
	b := &backend{}

	var client *goredis.Client
	redisClient := func() *goredis.Client {
		if client == nil {
			rc := cfg.Store.Redis
			client = goredis.NewClient(&goredis.Options{
				Addr:         rc.Addr,
				Username:     rc.Username,
				Password:     rc.Password,
				DB:           rc.DB,
				DialTimeout:  rc.DialTimeout,
				ReadTimeout:  rc.ReadTimeout,
				WriteTimeout: rc.WriteTimeout,
			})
			b.closers = append(b.closers, client.Close)
		}
		return client
	}

	switch cfg.Store.Driver {
	case "memory":
		b.store = blob.NewMemory()
	case "fs":
		s, err := fsblob.New(cfg.Store.Root)
		if err != nil {
			return nil, err
		}
		b.store = s
	case "sqlite":
		s, err := sqliteblob.Open(cfg.Store.Path)
		if err != nil {
			return nil, err
		}
		b.store = s
		b.closers = append(b.closers, s.Close)
	case "redis":
		s, err := redisblob.New(ctx, redisClient(), redisblob.WithPrefix(cfg.Store.Redis.Prefix))
		if err != nil {
			_ = b.Close()
			return nil, err
		}
		b.store = s
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}

	switch cfg.Lock.Driver {
	case "none":
	case "local":
		b.locker = lock.NewMutex()
	case "redis":
		l, err := redislock.New(redisClient(),
			redislock.WithPrefix(cfg.Lock.Prefix),
			redislock.WithTTL(cfg.Lock.TTL),
		)
		if err != nil {
			_ = b.Close()
			return nil, err
		}
		b.locker = l
	default:
		_ = b.Close()
		return nil, fmt.Errorf("unsupported lock driver: %s", cfg.Lock.Driver)
	}

	logger.Debug("Backend ready",
		zap.String("store", cfg.Store.Driver),
		zap.String("lock", cfg.Lock.Driver))
	return b, nil
}
