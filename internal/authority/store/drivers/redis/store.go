// Package redis implements the session key-value backend on Redis. Updates
// use WATCH-based optimistic transactions so read-modify-write cycles on one
// key are effectively atomic.
package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/crewpay/warden/internal/authority/store"
)

// maxTxRetries bounds optimistic retries when a watched key changes under us.
const maxTxRetries = 32

type Store struct {
	client *redis.Client
}

// NewStore wraps an existing Redis client. The caller owns client lifetime
// configuration (pool size, timeouts); Close closes it.
func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, unavailable("get", key, err)
	}
	return val, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, key, value, 0).Err(); err != nil {
		return unavailable("set", key, err)
	}
	return nil
}

func (s *Store) Del(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return unavailable("del", key, err)
	}
	return nil
}

// Update runs fn inside a WATCH/MULTI/EXEC cycle. If the key changes between
// read and write the transaction fails and is retried with the fresh value.
// Errors returned by fn abort the update and propagate unchanged.
func (s *Store) Update(ctx context.Context, key string, fn store.UpdateFunc) error {
	txn := func(tx *redis.Tx) error {
		old, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			old = nil
		} else if err != nil {
			return unavailable("update read", key, err)
		}

		val, err := fn(old)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if val == nil {
				pipe.Del(ctx, key)
			} else {
				pipe.Set(ctx, key, val, 0)
			}
			return nil
		})
		if err != nil && !errors.Is(err, redis.TxFailedErr) {
			return unavailable("update write", key, err)
		}
		return err
	}

	for range maxTxRetries {
		err := s.client.Watch(ctx, txn, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue // watched key changed, retry on the fresh value
		}
		return err
	}
	return unavailable("update", key, errors.New("too much contention"))
}

func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, unavailable("scan", prefix, err)
	}
	return keys, nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return unavailable("ping", "", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func unavailable(op, key string, err error) error {
	return fmt.Errorf("redis %s %q: %w: %w", op, key, store.ErrUnavailable, err)
}
