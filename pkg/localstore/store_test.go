package localstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cartDoc struct {
	Items []string `json:"items"`
	Fee   string   `json:"fee"`
}

func TestStoreRoundTripsJSON(t *testing.T) {
	ctx := context.Background()
	store := New(NewMemoryBackend(0), Options{Prefix: "sf"})

	require.True(t, store.Set(ctx, "cart:eat", cartDoc{Items: []string{"a", "b"}, Fee: "2.50"}))

	got, ok := Get[cartDoc](ctx, store, "cart:eat")
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, got.Items)
	assert.True(t, store.Has(ctx, "cart:eat"))

	store.Remove(ctx, "cart:eat")
	_, ok = Get[cartDoc](ctx, store, "cart:eat")
	assert.False(t, ok)
}

func TestStoreMissingAndCorruptReadAsAbsent(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend(0)
	store := New(backend, Options{Prefix: "sf"})

	_, ok := Get[cartDoc](ctx, store, "nope")
	assert.False(t, ok)

	require.NoError(t, backend.Set(ctx, "sf:broken", []byte("{not json")))
	_, ok = Get[cartDoc](ctx, store, "broken")
	assert.False(t, ok)
}

func TestStoreWithoutBackendIsInert(t *testing.T) {
	ctx := context.Background()
	store := New(nil, Options{})

	assert.False(t, store.Available())
	assert.False(t, store.Set(ctx, "k", "v"))
	_, ok := Get[string](ctx, store, "k")
	assert.False(t, ok)
	assert.Empty(t, store.ListKeys(ctx))
	assert.Equal(t, 0, store.Clear(ctx))
	assert.Equal(t, int64(0), store.SizeBytes(ctx))

	var nilStore *Store
	_, ok = nilStore.GetRaw(ctx, "k")
	assert.False(t, ok)
}

func TestStoreQuotaExceededDropsWriteSilently(t *testing.T) {
	ctx := context.Background()
	store := New(NewMemoryBackend(64), Options{Prefix: "sf"})

	require.True(t, store.Set(ctx, "small", "x"))
	assert.False(t, store.Set(ctx, "big", string(make([]byte, 128))))
	assert.False(t, store.Has(ctx, "big"))
	assert.True(t, store.Has(ctx, "small"))
}

func TestStoreQuotaAllowsOverwriteOfSameKey(t *testing.T) {
	ctx := context.Background()
	store := New(NewMemoryBackend(40), Options{Prefix: "sf"})

	require.True(t, store.Set(ctx, "k", "0123456789"))
	require.True(t, store.Set(ctx, "k", "9876543210"))
	got, ok := Get[string](ctx, store, "k")
	require.True(t, ok)
	assert.Equal(t, "9876543210", got)
}

func TestStoreClearOnlyTouchesNamespace(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend(0)
	store := New(backend, Options{Prefix: "sf"})
	require.NoError(t, backend.Set(ctx, "other-app:token", []byte(`"keep"`)))

	store.Set(ctx, "a", 1)
	store.Set(ctx, "b", 2)
	assert.Equal(t, []string{"a", "b"}, store.ListKeys(ctx))

	assert.Equal(t, 2, store.Clear(ctx))
	assert.Empty(t, store.ListKeys(ctx))

	_, ok, err := backend.Get(ctx, "other-app:token")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStoreExportImport(t *testing.T) {
	ctx := context.Background()
	src := New(NewMemoryBackend(0), Options{Prefix: "sf"})
	src.Set(ctx, "profile", map[string]string{"name": "Ada"})
	src.Set(ctx, "orders", []int{1, 2})

	dump := src.ExportAll(ctx)
	require.Len(t, dump, 2)

	dst := New(NewMemoryBackend(0), Options{Prefix: "other"})
	dump["bad"] = json.RawMessage("{oops")
	assert.Equal(t, 2, dst.ImportAll(ctx, dump))

	orders, ok := Get[[]int](ctx, dst, "orders")
	require.True(t, ok)
	assert.Equal(t, []int{1, 2}, orders)
}

func TestStoreSize(t *testing.T) {
	ctx := context.Background()
	store := New(NewMemoryBackend(0), Options{Prefix: "sf"})
	store.Set(ctx, "k", "v")

	// "sf:k" + `"v"`
	assert.Equal(t, int64(7), store.SizeBytes(ctx))
	assert.Equal(t, "7 B", store.HumanSize(ctx))
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "0 B", FormatBytes(0))
	assert.Equal(t, "1023 B", FormatBytes(1023))
	assert.Equal(t, "1.5 KB", FormatBytes(1536))
	assert.Equal(t, "2.0 MB", FormatBytes(2*1024*1024))
}

type failingBackend struct {
	*MemoryBackend
	err error
}

func (f failingBackend) Set(context.Context, string, []byte) error { return f.err }

func TestStoreLogsPostgresDetailsOnFailedWrite(t *testing.T) {
	var buf bytes.Buffer
	logg := logger.New(logger.Options{Level: zerolog.DebugLevel, Output: &buf})
	pgErr := &pgconn.PgError{Code: "53100", ConstraintName: "storefront_documents_pkey", TableName: "storefront_documents", Message: "could not extend file"}
	backend := failingBackend{MemoryBackend: NewMemoryBackend(0), err: fmt.Errorf("upsert document: %w", pgErr)}
	store := New(backend, Options{Prefix: "sf", Logger: logg})

	assert.False(t, store.Set(context.Background(), "cart:eat", cartDoc{Fee: "1.50"}))

	out := buf.String()
	assert.Contains(t, out, `"pg_code":"53100"`)
	assert.Contains(t, out, `"pg_constraint":"storefront_documents_pkey"`)
	assert.Contains(t, out, `"storage_key":"cart:eat"`)
}
