// Package redis provides a Redis-backed state storage backend.
//
// Values live under <key_prefix>v:<key>. A sorted set at <key_prefix>keys
// holds every key with score 0 so prefix scans are served by ZRANGEBYLEX.
// Commits run inside MULTI/EXEC. Batch conditions WATCH their value keys,
// so a concurrent writer aborts the EXEC.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gezibash/arc-ledger/internal/state/physical"
	"github.com/gezibash/arc-ledger/internal/storage"
)

const (
	KeyAddr         = "addr"
	KeyPassword     = "password"
	KeyDB           = "db"
	KeyMaxRetries   = "max_retries"
	KeyDialTimeout  = "dial_timeout"
	KeyReadTimeout  = "read_timeout"
	KeyWriteTimeout = "write_timeout"
	KeyPoolSize     = "pool_size"
	KeyKeyPrefix    = "key_prefix"
)

func init() {
	physical.Register("redis", NewFactory, Defaults())
}

// Defaults returns the default configuration for the Redis backend.
func Defaults() map[string]string {
	return map[string]string{
		KeyAddr:         "localhost:6379",
		KeyPassword:     "",
		KeyDB:           "2",
		KeyMaxRetries:   "3",
		KeyDialTimeout:  "5s",
		KeyReadTimeout:  "3s",
		KeyWriteTimeout: "3s",
		KeyPoolSize:     "0",
		KeyKeyPrefix:    "arc-ledger:",
	}
}

// NewFactory connects to Redis and pings it before returning.
func NewFactory(ctx context.Context, s storage.Settings) (physical.Backend, error) {
	addr, err := s.Require(KeyAddr)
	if err != nil {
		return nil, err
	}
	db, err := s.Int(KeyDB, 2)
	if err != nil {
		return nil, err
	}
	if db < 0 {
		return nil, s.Invalid(KeyDB, "must be non-negative", nil)
	}
	maxRetries, err := s.Int(KeyMaxRetries, 3)
	if err != nil {
		return nil, err
	}
	poolSize, err := s.Int(KeyPoolSize, 0)
	if err != nil {
		return nil, err
	}

	dialTimeout, err := s.Duration(KeyDialTimeout, 5*time.Second)
	if err != nil {
		return nil, err
	}
	readTimeout, err := s.Duration(KeyReadTimeout, 3*time.Second)
	if err != nil {
		return nil, err
	}
	writeTimeout, err := s.Duration(KeyWriteTimeout, 3*time.Second)
	if err != nil {
		return nil, err
	}

	opts := &redis.Options{
		Addr:         addr,
		Password:     s.String(KeyPassword, ""),
		DB:           db,
		MaxRetries:   maxRetries,
		DialTimeout:  dialTimeout,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}
	if poolSize > 0 {
		opts.PoolSize = poolSize
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, s.Invalid(KeyAddr, "failed to connect", err)
	}

	prefix := s.String(KeyKeyPrefix, "arc-ledger:")
	slog.Info("redis state store opened", "addr", addr, "db", db, "key_prefix", prefix)
	return NewWithClient(client, prefix), nil
}

// Backend is a Redis implementation of physical.Backend.
type Backend struct {
	client *redis.Client
	prefix string
	closed atomic.Bool
}

// NewWithClient creates a new backend with an existing Redis client.
func NewWithClient(client *redis.Client, prefix string) *Backend {
	if prefix == "" {
		prefix = "arc-ledger:"
	}
	return &Backend{client: client, prefix: prefix}
}

func (b *Backend) valueKey(key string) string { return b.prefix + "v:" + key }
func (b *Backend) indexKey() string           { return b.prefix + "keys" }

// Get returns the value stored at key.
func (b *Backend) Get(ctx context.Context, key string) ([]byte, error) {
	if b.closed.Load() {
		return nil, physical.ErrClosed
	}

	data, err := b.client.Get(ctx, b.valueKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, physical.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return data, nil
}

// Scan returns every pair whose key starts with prefix, in key order.
func (b *Backend) Scan(ctx context.Context, prefix string) ([]physical.KV, error) {
	if b.closed.Load() {
		return nil, physical.ErrClosed
	}

	rng := &redis.ZRangeBy{Min: "-", Max: "+"}
	if prefix != "" {
		rng = &redis.ZRangeBy{Min: "[" + prefix, Max: "[" + prefix + "\xff"}
	}
	keys, err := b.client.ZRangeByLex(ctx, b.indexKey(), rng).Result()
	if err != nil {
		return nil, fmt.Errorf("redis scan: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	valueKeys := make([]string, len(keys))
	for i, k := range keys {
		valueKeys[i] = b.valueKey(k)
	}
	values, err := b.client.MGet(ctx, valueKeys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis scan: %w", err)
	}

	out := make([]physical.KV, 0, len(keys))
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		out = append(out, physical.KV{Key: keys[i], Value: []byte(s)})
	}
	return out, nil
}

// Commit applies the batch in one MULTI/EXEC transaction.
func (b *Backend) Commit(ctx context.Context, batch *physical.Batch) error {
	if b.closed.Load() {
		return physical.ErrClosed
	}

	conds := batch.Conds()
	if len(conds) == 0 {
		if _, err := b.client.TxPipelined(ctx, b.queue(ctx, batch)); err != nil {
			return fmt.Errorf("redis commit: %w", err)
		}
		return nil
	}

	watched := make([]string, len(conds))
	for i, c := range conds {
		watched[i] = b.valueKey(c.Key)
	}
	err := b.client.Watch(ctx, func(tx *redis.Tx) error {
		for _, c := range conds {
			value, err := tx.Get(ctx, b.valueKey(c.Key)).Bytes()
			exists := true
			if errors.Is(err, redis.Nil) {
				exists, err = false, nil
			}
			if err != nil {
				return err
			}
			if !c.Holds(value, exists) {
				return fmt.Errorf("key %q changed: %w", c.Key, physical.ErrConflict)
			}
		}
		_, err := tx.TxPipelined(ctx, b.queue(ctx, batch))
		return err
	}, watched...)
	if errors.Is(err, redis.TxFailedErr) {
		err = fmt.Errorf("%w: %w", physical.ErrConflict, err)
	}
	if err != nil {
		return fmt.Errorf("redis commit: %w", err)
	}
	return nil
}

func (b *Backend) queue(ctx context.Context, batch *physical.Batch) func(redis.Pipeliner) error {
	return func(pipe redis.Pipeliner) error {
		for _, op := range batch.Ops() {
			if op.Delete {
				pipe.Del(ctx, b.valueKey(op.Key))
				pipe.ZRem(ctx, b.indexKey(), op.Key)
				continue
			}
			pipe.Set(ctx, b.valueKey(op.Key), op.Value, 0)
			pipe.ZAdd(ctx, b.indexKey(), redis.Z{Score: 0, Member: op.Key})
		}
		return nil
	}
}

// Stats returns storage statistics.
func (b *Backend) Stats(ctx context.Context) (*physical.Stats, error) {
	if b.closed.Load() {
		return nil, physical.ErrClosed
	}

	keys, err := b.client.ZCard(ctx, b.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis stats: %w", err)
	}
	return &physical.Stats{Keys: keys, BackendType: "redis"}, nil
}

// Close closes the Redis client.
func (b *Backend) Close() error {
	if b.closed.Swap(true) {
		return nil
	}
	return b.client.Close()
}
