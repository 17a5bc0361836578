package memory

import (
	"context"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/crewpay/warden/internal/authority/store"
)

func TestGetSetDel(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewStore()

	_, err := s.Get(ctx, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.Set(ctx, "k", []byte("v")))

	val, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, []byte("v"), val)

	require.NoError(t, s.Del(ctx, "k"))
	_, err = s.Get(ctx, "k")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestGetReturnsCopy(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewStore()

	require.NoError(t, s.Set(ctx, "k", []byte("abc")))
	val, err := s.Get(ctx, "k")
	require.NoError(t, err)
	val[0] = 'x'

	again, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, []byte("abc"), again)
}

func TestUpdateSerializes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewStore()

	const workers = 32
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Update(ctx, "n", func(old []byte) ([]byte, error) {
				n := 0
				if old != nil {
					n, _ = strconv.Atoi(string(old))
				}
				return []byte(strconv.Itoa(n + 1)), nil
			})
		}()
	}
	wg.Wait()

	val, err := s.Get(ctx, "n")
	require.NoError(t, err)
	require.Equal(t, strconv.Itoa(workers), string(val))
}

func TestUpdateNilDeletes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewStore()

	require.NoError(t, s.Set(ctx, "k", []byte("v")))
	require.NoError(t, s.Update(ctx, "k", func([]byte) ([]byte, error) { return nil, nil }))

	_, err := s.Get(ctx, "k")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestKeysByPrefix(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewStore()

	require.NoError(t, s.Set(ctx, "sessions--a", []byte("1")))
	require.NoError(t, s.Set(ctx, "one_time_change-password--a", []byte("1")))

	keys, err := s.Keys(ctx, "sessions--")
	require.NoError(t, err)
	require.Equal(t, []string{"sessions--a"}, keys)
}

func TestClosedStoreRejectsOperations(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewStore()

	require.NoError(t, s.Set(ctx, "k", []byte("v")))
	require.NoError(t, s.Close())

	require.ErrorIs(t, s.Set(ctx, "k", []byte("v")), store.ErrUnavailable)
	require.ErrorIs(t, s.Del(ctx, "k"), store.ErrUnavailable)
	require.ErrorIs(t, s.Ping(ctx), store.ErrUnavailable)

	_, err := s.Get(ctx, "k")
	require.ErrorIs(t, err, store.ErrUnavailable)

	_, err = s.Keys(ctx, "sessions--")
	require.ErrorIs(t, err, store.ErrUnavailable)

	err = s.Update(ctx, "k", func(old []byte) ([]byte, error) { return old, nil })
	require.ErrorIs(t, err, store.ErrUnavailable)
}

func TestContextCancellation(t *testing.T) {
	t.Parallel()
	s := NewStore()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.Error(t, s.Set(ctx, "k", []byte("v")))
	_, err := s.Get(ctx, "k")
	require.Error(t, err)
}
