package store

import (
	"context"
	"testing"
	"time"

	"github.com/rushteam/reckit/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStoreContract(t *testing.T, s core.Store) {
	ctx := context.Background()

	_, err := s.Get(ctx, "missing")
	require.Error(t, err)
	assert.True(t, core.IsStoreNotFound(err))
	assert.ErrorIs(t, err, core.ErrStoreNotFound)

	require.NoError(t, s.Set(ctx, "a", []byte("1")))
	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), got)

	// 覆盖写
	require.NoError(t, s.Set(ctx, "a", []byte("2")))
	got, err = s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), got)

	require.NoError(t, s.BatchSet(ctx, map[string][]byte{"b": []byte("x"), "c": []byte("y")}))
	all, err := s.BatchGet(ctx, []string{"a", "b", "c", "nope"})
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"a": []byte("2"), "b": []byte("x"), "c": []byte("y")}, all)

	require.NoError(t, s.Delete(ctx, "a"))
	_, err = s.Get(ctx, "a")
	assert.True(t, core.IsStoreNotFound(err))
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	testStoreContract(t, s)
}

func TestMemoryStore_CopiesValues(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	v := []byte("abc")
	require.NoError(t, s.Set(ctx, "k", v))
	v[0] = 'z'

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)
}

func TestMemoryStore_TTL(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", []byte("v"), 1))
	assert.Equal(t, 1, s.Len())

	s.mu.Lock()
	s.data["k"].expire = time.Now().Add(-time.Second)
	s.mu.Unlock()

	_, err := s.Get(ctx, "k")
	assert.True(t, core.IsStoreNotFound(err))
	assert.Equal(t, 0, s.Len())
}

func TestMemoryStore_CloseIdempotent(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}

func TestBadgerStore(t *testing.T) {
	s, err := OpenBadgerStore("")
	require.NoError(t, err)
	defer s.Close()
	testStoreContract(t, s)
}

func TestBadgerStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := OpenBadgerStore(dir)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "cached_fallback", []byte(`["1","2"]`)))
	require.NoError(t, s.Close())

	s, err = OpenBadgerStore(dir)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Get(ctx, "cached_fallback")
	require.NoError(t, err)
	assert.Equal(t, `["1","2"]`, string(got))
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, Config{Backend: BackendMemory})
	require.NoError(t, err)
	assert.Equal(t, "memory", s.Name())
	require.NoError(t, s.Close())

	s, err = Open(ctx, Config{Backend: BackendBadger})
	require.NoError(t, err)
	assert.Equal(t, "badger", s.Name())
	require.NoError(t, s.Close())

	_, err = Open(ctx, Config{Backend: "etcd"})
	assert.True(t, core.IsNotSupported(err))
	assert.ErrorIs(t, err, core.ErrStoreNotSupported)
}

func TestRedisStore_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := NewRedisStore(ctx, RedisConfig{Addr: "127.0.0.1:1", DialTimeout: 200 * time.Millisecond})
	require.Error(t, err)
	assert.True(t, core.IsUnavailable(err))
}
