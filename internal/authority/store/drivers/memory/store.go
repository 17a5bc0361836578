// Package memory implements the session key-value backend in process
// memory. It backs tests and single-node dev mode; a mutex around every
// operation gives Update the same atomicity the Redis driver provides via
// transactions.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/crewpay/warden/internal/authority/store"
)

type Store struct {
	mu     sync.Mutex
	data   map[string][]byte
	closed bool
}

func NewStore() *Store {
	return &Store{data: make(map[string][]byte)}
}

// errIfDone reports context cancellation or a closed store. Callers must
// hold s.mu for the closed check to be race-free against Close.
func (s *Store) errIfDone(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.closed {
		return fmt.Errorf("memory: store closed: %w", store.ErrUnavailable)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.errIfDone(ctx); err != nil {
		return nil, err
	}

	val, ok := s.data[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := make([]byte, len(val))
	copy(out, val)
	return out, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.errIfDone(ctx); err != nil {
		return err
	}

	stored := make([]byte, len(value))
	copy(stored, value)
	s.data[key] = stored
	return nil
}

func (s *Store) Del(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.errIfDone(ctx); err != nil {
		return err
	}

	delete(s.data, key)
	return nil
}

func (s *Store) Update(ctx context.Context, key string, fn store.UpdateFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.errIfDone(ctx); err != nil {
		return err
	}

	var old []byte
	if cur, ok := s.data[key]; ok {
		old = make([]byte, len(cur))
		copy(old, cur)
	}

	val, err := fn(old)
	if err != nil {
		return err
	}
	if val == nil {
		delete(s.data, key)
		return nil
	}
	s.data[key] = val
	return nil
}

func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.errIfDone(ctx); err != nil {
		return nil, err
	}

	var keys []string
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (s *Store) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.errIfDone(ctx)
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.data = nil
	return nil
}
