package identity

import (
	"context"
	"fmt"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/redisutil"
	"github.com/gomodule/redigo/redis"
)

// RedisStorage is a [Storage] that keeps the identity under a single Redis key,
// so that several instances sharing the same list can share its identity.
//
// The pool statistics are collected by the pool itself, see
// [redisutil.PoolMetrics].
type RedisStorage struct {
	pool redisutil.Pool
	key  string
}

// RedisStorageConfig is the configuration structure for a *RedisStorage.
type RedisStorageConfig struct {
	// Pool is used to get connections to Redis.  It must not be nil.
	Pool redisutil.Pool

	// Key is the Redis key under which the identity is kept.  It must not be
	// empty.
	Key string
}

// NewRedisStorage returns a new *RedisStorage.  c must not be nil.
func NewRedisStorage(c *RedisStorageConfig) (s *RedisStorage) {
	return &RedisStorage{
		pool: c.Pool,
		key:  c.Key,
	}
}

// type check
var _ Storage = (*RedisStorage)(nil)

// Load implements the [Storage] interface for *RedisStorage.  A missing key
// means that there is no identity.
func (s *RedisStorage) Load(ctx context.Context) (id Identity, err error) {
	defer func() { err = errors.Annotate(err, "getting %q: %w", s.key) }()

	c, err := s.pool.Get(ctx)
	if err != nil {
		return Empty, fmt.Errorf("getting from pool: %w", err)
	}
	defer func() { err = errors.WithDeferred(err, c.Close()) }()

	val, err := redis.String(c.Do(redisutil.CmdGET, s.key))
	switch {
	case err == nil:
		return Identity(val), nil
	case errors.Is(err, redis.ErrNil):
		return Empty, nil
	default:
		return Empty, fmt.Errorf("get command: %w", err)
	}
}

// Store implements the [Storage] interface for *RedisStorage.
func (s *RedisStorage) Store(ctx context.Context, id Identity) (err error) {
	defer func() { err = errors.Annotate(err, "setting %q: %w", s.key) }()

	c, err := s.pool.Get(ctx)
	if err != nil {
		return fmt.Errorf("getting from pool: %w", err)
	}
	defer func() { err = errors.WithDeferred(err, c.Close()) }()

	_, err = c.Do(redisutil.CmdSET, s.key, string(id))
	if err != nil {
		return fmt.Errorf("set command: %w", err)
	}

	return nil
}
