package retention

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/angelmondragon/storefront/internal/history"
	"github.com/angelmondragon/storefront/internal/profile"
	"github.com/angelmondragon/storefront/pkg/enums"
	"github.com/angelmondragon/storefront/pkg/localstore"
	"github.com/angelmondragon/storefront/pkg/security"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

type fixture struct {
	store    *localstore.Store
	profiles *profile.Cache
	orders   *history.Cache
	service  *Service
	clk      *clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	clk := &clock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	store := localstore.New(localstore.NewMemoryBackend(0), localstore.Options{Prefix: "sf"})
	cipher, err := security.NewFieldCipher("salt::fp", 1000)
	require.NoError(t, err)
	profiles, err := profile.NewCache(store, cipher, profile.Options{Now: clk.now})
	require.NoError(t, err)
	orders, err := history.NewCache(ctx, store, history.Options{Now: clk.now})
	require.NoError(t, err)
	service, err := NewService(ServiceParams{Store: store, Profiles: profiles, Orders: orders, Now: clk.now})
	require.NoError(t, err)
	return &fixture{store: store, profiles: profiles, orders: orders, service: service, clk: clk}
}

func (f *fixture) seed(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	name, phone := "Ada", "+49 151 1234567"
	_, err := f.profiles.Save(ctx, profile.Fields{Name: &name, Phone: &phone})
	require.NoError(t, err)
	require.True(t, f.orders.Add(ctx, history.Entry{
		OrderID:       "o-1",
		OrderNumber:   "A-17",
		MerchantSlug:  "limon-grillhaus",
		TrackingToken: "abc123",
		Total:         decimal.RequireFromString("12.50"),
		Status:        enums.OrderStatusDelivered,
	}))
}

func TestShouldRunCadence(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	assert.True(t, f.service.ShouldRun(ctx), "never run")
	_, err := f.service.Run(ctx)
	require.NoError(t, err)
	assert.False(t, f.service.ShouldRun(ctx))

	f.clk.t = f.clk.t.Add(24*time.Hour - time.Second)
	assert.False(t, f.service.ShouldRun(ctx))
	f.clk.t = f.clk.t.Add(time.Second)
	assert.True(t, f.service.ShouldRun(ctx))
}

func TestRunSweepsExpiredDataAndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t)

	f.clk.t = f.clk.t.Add(91 * 24 * time.Hour)
	report, err := f.service.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Removed[JobProfileExpiry])
	assert.Equal(t, 1, report.Removed[JobHistoryExpiry])
	assert.Zero(t, f.orders.Count())
	_, ok := f.profiles.Load(ctx)
	assert.False(t, ok)

	f.clk.t = f.clk.t.Add(time.Minute)
	report, err = f.service.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Removed[JobProfileExpiry])
	assert.Zero(t, report.Removed[JobHistoryExpiry])

	stats := f.service.Stats(ctx)
	require.NotNil(t, stats.LastRunAt)
	assert.True(t, f.clk.t.Equal(*stats.LastRunAt))
	assert.False(t, stats.Due)
}

func TestAutoRunIfDue(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, ran, err := f.service.AutoRunIfDue(ctx)
	require.NoError(t, err)
	assert.True(t, ran)

	_, ran, err = f.service.AutoRunIfDue(ctx)
	require.NoError(t, err)
	assert.False(t, ran)

	_, err = f.service.ForceRun(ctx)
	require.NoError(t, err)
	meta, ok := f.service.metadata(ctx)
	require.True(t, ok)
	assert.Equal(t, 2, meta.Runs)
}

type failingJob struct{}

func (failingJob) Name() string                     { return "broken" }
func (failingJob) Run(context.Context) (int, error) { return 0, errors.New("boom") }

type countingJob struct{ runs int }

func (c *countingJob) Name() string { return "counting" }
func (c *countingJob) Run(context.Context) (int, error) {
	c.runs++
	return 2, nil
}

func TestRunContinuesPastFailingJob(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	counting := &countingJob{}
	registry, err := NewRegistry(failingJob{}, counting)
	require.NoError(t, err)
	service, err := NewService(ServiceParams{
		Store:    f.store,
		Profiles: f.profiles,
		Orders:   f.orders,
		Registry: registry,
		Now:      f.clk.now,
	})
	require.NoError(t, err)

	report, err := service.Run(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
	assert.Equal(t, 1, counting.runs)
	assert.Equal(t, 2, report.Removed["counting"])
	assert.False(t, service.ShouldRun(ctx), "run is stamped even when a job fails")
}

type busyLock struct{}

func (busyLock) Acquire(context.Context) (bool, error) { return false, nil }
func (busyLock) Release(context.Context) error         { return nil }

func TestRunSkipsWhenLockHeld(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	service, err := NewService(ServiceParams{Store: f.store, Profiles: f.profiles, Orders: f.orders, Lock: busyLock{}, Now: f.clk.now})
	require.NoError(t, err)

	report, err := service.Run(ctx)
	require.NoError(t, err)
	assert.True(t, report.Skipped)
	assert.True(t, service.ShouldRun(ctx))

	_, ran, err := service.AutoRunIfDue(ctx)
	require.NoError(t, err)
	assert.False(t, ran)
}

func TestEraseAll(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t)
	_, err := f.service.Run(ctx)
	require.NoError(t, err)
	require.True(t, f.store.Set(ctx, "cart:eat", map[string]any{"items": []string{}}))

	require.NoError(t, f.service.EraseAll(ctx))

	_, ok := f.profiles.Load(ctx)
	assert.False(t, ok)
	assert.Zero(t, f.orders.Count())
	assert.True(t, f.service.ShouldRun(ctx))
	assert.True(t, f.store.Has(ctx, "cart:eat"), "carts are not customer data")
}

func TestExportJSON(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t)

	var buf bytes.Buffer
	require.NoError(t, f.service.DownloadExport(ctx, &buf, FormatJSON))

	var doc map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	prof := doc["profile"].(map[string]any)
	assert.Equal(t, "+49 151 1234567", prof["phone"])
	orders := doc["orders"].([]any)
	require.Len(t, orders, 1)
	assert.Equal(t, "abc123", orders[0].(map[string]any)["tracking_token"])
	stats := doc["statistics"].(map[string]any)
	assert.Equal(t, "12.5", stats["total_spent"])
	assert.Equal(t, "storefront-export-2025-03-01.json", f.service.ExportFilename(FormatJSON))
}

func TestExportYAML(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t)

	var buf bytes.Buffer
	require.NoError(t, f.service.DownloadExport(ctx, &buf, FormatYAML))
	assert.True(t, strings.Contains(buf.String(), "order_number: A-17"), buf.String())

	var doc map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &doc))
	stats := doc["statistics"].(map[string]any)
	assert.Equal(t, 1, stats["total_orders"])
	assert.Equal(t, "storefront-export-2025-03-01.yaml", f.service.ExportFilename(FormatYAML))
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatJSON, "JSON": FormatJSON, "yml": FormatYAML, "yaml": FormatYAML} {
		got, err := ParseFormat(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseFormat("xml")
	assert.Error(t, err)
}
