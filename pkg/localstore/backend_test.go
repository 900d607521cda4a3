package localstore

import (
	"context"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/angelmondragon/storefront/pkg/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackends(t *testing.T) {
	backends := map[string]func(t *testing.T) Backend{
		"memory": func(t *testing.T) Backend {
			return NewMemoryBackend(0)
		},
		"bolt": func(t *testing.T) Backend {
			b, err := OpenBolt(filepath.Join(t.TempDir(), "nested", "store.db"))
			require.NoError(t, err)
			t.Cleanup(func() { _ = b.Close() })
			return b
		},
		"sqlite": func(t *testing.T) Backend {
			b, err := OpenSQL(SQLDriverSQLite, filepath.Join(t.TempDir(), "store.sqlite"))
			require.NoError(t, err)
			t.Cleanup(func() { _ = b.Close() })
			return b
		},
		"redis": func(t *testing.T) Backend {
			return NewRedisBackend(newFakeRedis())
		},
	}

	for name, factory := range backends {
		t.Run(name, func(t *testing.T) {
			exerciseBackend(t, factory(t))
		})
	}
}

func exerciseBackend(t *testing.T, backend Backend) {
	ctx := context.Background()

	_, ok, err := backend.Get(ctx, "sf:missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, backend.Set(ctx, "sf:cart:eat", []byte(`{"a":1}`)))
	require.NoError(t, backend.Set(ctx, "sf:cart:market", []byte(`{"b":2}`)))
	require.NoError(t, backend.Set(ctx, "sf_other:x", []byte(`1`)))
	require.NoError(t, backend.Set(ctx, "sf:cart:eat", []byte(`{"a":3}`)))

	got, ok, err := backend.Get(ctx, "sf:cart:eat")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"a":3}`, string(got))

	keys, err := backend.Keys(ctx, "sf:")
	require.NoError(t, err)
	sort.Strings(keys)
	assert.Equal(t, []string{"sf:cart:eat", "sf:cart:market"}, keys)

	require.NoError(t, backend.Delete(ctx, "sf:cart:eat"))
	require.NoError(t, backend.Delete(ctx, "sf:never-existed"))
	_, ok, err = backend.Get(ctx, "sf:cart:eat")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStoreOverBoltSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "store.db")

	first, err := OpenBolt(path)
	require.NoError(t, err)
	New(first, Options{Prefix: "sf"}).Set(ctx, "orders", []string{"ord-1"})
	require.NoError(t, first.Close())

	second, err := OpenBolt(path)
	require.NoError(t, err)
	defer second.Close()

	orders, ok := Get[[]string](ctx, New(second, Options{Prefix: "sf"}), "orders")
	require.True(t, ok)
	assert.Equal(t, []string{"ord-1"}, orders)
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `sf\_x\%`, escapeLike("sf_x%"))
}

type fakeRedis struct {
	data map[string]string
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string]string{}}
}

func (f *fakeRedis) Get(_ context.Context, key string) (string, error) {
	v, ok := f.data[key]
	if !ok {
		return "", redis.ErrNil
	}
	return v, nil
}

func (f *fakeRedis) Set(_ context.Context, key string, value any, _ time.Duration) error {
	f.data[key] = value.(string)
	return nil
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.data, key)
	}
	return nil
}

func (f *fakeRedis) Keys(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	for key := range f.data {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func TestOpenBoltRejectsSecondProcess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storefront.db")
	first, err := OpenBolt(path)
	require.NoError(t, err)
	defer first.Close()

	_, err = OpenBolt(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "locked by another storefront process")
}
