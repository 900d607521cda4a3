package profile

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/angelmondragon/storefront/pkg/localstore"
	"github.com/angelmondragon/storefront/pkg/security"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func strPtr(v string) *string { return &v }

func newTestCache(t *testing.T) (*Cache, *localstore.Store, *clock) {
	t.Helper()
	store := localstore.New(localstore.NewMemoryBackend(0), localstore.Options{Prefix: "sf"})
	cipher, err := security.NewFieldCipher("install-salt::test", 1000)
	require.NoError(t, err)
	clk := &clock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	cache, err := NewCache(store, cipher, Options{Retention: 30 * 24 * time.Hour, Now: clk.now})
	require.NoError(t, err)
	return cache, store, clk
}

func TestSaveEncryptsSensitiveFields(t *testing.T) {
	ctx := context.Background()
	cache, store, _ := newTestCache(t)

	_, err := cache.Save(ctx, Fields{
		Name:    strPtr("Ada"),
		Phone:   strPtr("+49 151 1234567"),
		Email:   strPtr("ada@example.com"),
		Address: strPtr("Hauptstr. 1"),
	})
	require.NoError(t, err)

	raw, ok := store.GetRaw(ctx, storageKey)
	require.True(t, ok)
	assert.Contains(t, string(raw), "Ada")
	assert.NotContains(t, string(raw), "1234567")
	assert.NotContains(t, string(raw), "ada@example.com")
	assert.NotContains(t, string(raw), "Hauptstr")

	got, ok := cache.Load(ctx)
	require.True(t, ok)
	assert.Equal(t, "Ada", got.Name)
	assert.Equal(t, "+49 151 1234567", got.Phone)
	assert.Equal(t, "ada@example.com", got.Email)
	assert.Equal(t, "Hauptstr. 1", got.Address)
}

func TestSaveMergesPartialUpdates(t *testing.T) {
	ctx := context.Background()
	cache, _, clk := newTestCache(t)

	first, err := cache.Save(ctx, Fields{Name: strPtr("Ada"), Phone: strPtr("111")})
	require.NoError(t, err)

	clk.t = clk.t.Add(time.Hour)
	second, err := cache.Update(ctx, Fields{Email: strPtr("a@b.c")})
	require.NoError(t, err)

	assert.Equal(t, "Ada", second.Name)
	assert.Equal(t, "111", second.Phone)
	assert.Equal(t, "a@b.c", second.Email)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.Equal(t, clk.t, second.UpdatedAt)
	assert.Equal(t, clk.t.Add(30*24*time.Hour), second.ExpiresAt)
}

func TestLoadExpiryBoundary(t *testing.T) {
	ctx := context.Background()
	cache, store, clk := newTestCache(t)
	saved := clk.t

	_, err := cache.Save(ctx, Fields{Name: strPtr("Ada")})
	require.NoError(t, err)

	clk.t = saved.Add(30*24*time.Hour - time.Millisecond)
	_, ok := cache.Load(ctx)
	assert.True(t, ok)
	assert.False(t, cache.IsExpired(ctx))

	clk.t = saved.Add(30*24*time.Hour + time.Millisecond)
	assert.True(t, cache.IsExpired(ctx))
	_, ok = cache.Load(ctx)
	assert.False(t, ok)
	assert.False(t, store.Has(ctx, storageKey))
	assert.False(t, cache.IsExpired(ctx))
}

func TestLoadFallsBackToStoredValueOnDecryptFailure(t *testing.T) {
	ctx := context.Background()
	cache, store, clk := newTestCache(t)

	require.True(t, store.Set(ctx, storageKey, record{
		Name:      "Ada",
		Phone:     "+49 151 1234567",
		CreatedAt: clk.t,
		UpdatedAt: clk.t,
		ExpiresAt: clk.t.Add(time.Hour),
	}))

	got, ok := cache.Load(ctx)
	require.True(t, ok)
	assert.Equal(t, "+49 151 1234567", got.Phone)
}

func TestLegacyRecordMigratesWithinWindow(t *testing.T) {
	ctx := context.Background()
	cache, store, clk := newTestCache(t)

	require.True(t, store.Set(ctx, legacyStorageKey, legacyRecord{
		Name:    "Ada",
		Phone:   "555",
		SavedAt: clk.t.Add(-48 * time.Hour),
	}))

	got, ok := cache.Load(ctx)
	require.True(t, ok)
	assert.Equal(t, "555", got.Phone)
	assert.False(t, store.Has(ctx, legacyStorageKey))

	raw, ok := store.GetRaw(ctx, storageKey)
	require.True(t, ok)
	var rec record
	require.NoError(t, json.Unmarshal(raw, &rec))
	assert.NotEqual(t, "555", rec.Phone)
}

func TestLegacyRecordOutsideWindowIsDropped(t *testing.T) {
	ctx := context.Background()
	cache, store, clk := newTestCache(t)

	require.True(t, store.Set(ctx, legacyStorageKey, legacyRecord{
		Name:    "Ada",
		SavedAt: clk.t.Add(-8 * 24 * time.Hour),
	}))

	_, ok := cache.Load(ctx)
	assert.False(t, ok)
	assert.False(t, store.Has(ctx, legacyStorageKey))
	assert.False(t, store.Has(ctx, storageKey))
}

func TestAgeClearAndPurge(t *testing.T) {
	ctx := context.Background()
	cache, store, clk := newTestCache(t)

	_, ok := cache.AgeInDays(ctx)
	assert.False(t, ok)

	_, err := cache.Save(ctx, Fields{Name: strPtr("Ada")})
	require.NoError(t, err)

	clk.t = clk.t.Add(3*24*time.Hour + time.Hour)
	age, ok := cache.AgeInDays(ctx)
	require.True(t, ok)
	assert.Equal(t, 3, age)
	assert.False(t, cache.PurgeIfExpired(ctx))

	clk.t = clk.t.Add(30 * 24 * time.Hour)
	assert.True(t, cache.PurgeIfExpired(ctx))
	assert.False(t, store.Has(ctx, storageKey))

	_, err = cache.Save(ctx, Fields{Name: strPtr("Ada")})
	require.NoError(t, err)
	cache.Clear(ctx)
	_, ok = cache.Load(ctx)
	assert.False(t, ok)
}

func TestNewCacheRequiresDependencies(t *testing.T) {
	_, err := NewCache(nil, nil, Options{})
	assert.Error(t, err)
}
