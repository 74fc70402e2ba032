package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisBackend keeps each document as a hash whose values are JSON encoded.
// Every key read inside a transaction is WATCHed; the buffered writes go out in
// one MULTI/EXEC, which redis aborts if a watched key changed.
type redisBackend struct {
	rdb    redis.UniversalClient
	prefix string
}

// NewRedis returns a Store backed by rdb. Keys are namespaced with "hoppin:".
// Close closes rdb.
func NewRedis(rdb redis.UniversalClient, opts ...Option) *Store {
	return newStore(&redisBackend{rdb: rdb, prefix: "hoppin:"}, opts)
}

func (b *redisBackend) name() string { return "redis" }

func (b *redisBackend) now(ctx context.Context) (time.Time, error) {
	return b.rdb.Time(ctx).Result()
}

func (b *redisBackend) key(path string) string {
	return b.prefix + path
}

func (b *redisBackend) attempt(ctx context.Context, fn attemptFunc) error {
	err := b.rdb.Watch(ctx, func(tx *redis.Tx) error {
		writes, err := fn(redisReader{b: b, tx: tx})
		if err != nil {
			return err
		}
		if len(writes) == 0 {
			return nil
		}

		hashes := make([]map[string]any, len(writes))
		for i, w := range writes {
			h := make(map[string]any, len(w.fields))
			for k, v := range w.fields {
				s, err := encodeValue(v)
				if err != nil {
					return fmt.Errorf("encode %s.%s: %w", w.path, k, err)
				}
				h[k] = s
			}
			hashes[i] = h
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for i, w := range writes {
				key := b.key(w.path)
				if !w.merge {
					pipe.Del(ctx, key)
				}
				if len(hashes[i]) > 0 {
					pipe.HSet(ctx, key, hashes[i])
				}
			}
			return nil
		})
		return err
	})
	if errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("%w: %w", ErrConflict, err)
	}
	return err
}

func (b *redisBackend) get(ctx context.Context, path string) (Fields, bool, error) {
	return readHash(ctx, b.rdb, b.key(path))
}

func (b *redisBackend) close() error {
	return b.rdb.Close()
}

type redisReader struct {
	b  *redisBackend
	tx *redis.Tx
}

func (r redisReader) read(ctx context.Context, path string) (Fields, bool, error) {
	key := r.b.key(path)
	if err := r.tx.Watch(ctx, key).Err(); err != nil {
		return nil, false, fmt.Errorf("watch: %w", err)
	}
	return readHash(ctx, r.tx, key)
}

// hashReader is satisfied by both *redis.Tx and redis.UniversalClient.
type hashReader interface {
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
}

func readHash(ctx context.Context, c hashReader, key string) (Fields, bool, error) {
	raw, err := c.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, false, err
	}
	if len(raw) == 0 {
		return nil, false, nil
	}
	fields := make(Fields, len(raw))
	for k, s := range raw {
		v, err := decodeValue(s)
		if err != nil {
			return nil, false, fmt.Errorf("decode %s.%s: %w", key, k, err)
		}
		fields[k] = v
	}
	return fields, true, nil
}
