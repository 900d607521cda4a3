package tracking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/angelmondragon/storefront/internal/history"
	"github.com/angelmondragon/storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/storeapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fakeOrders struct {
	mu      sync.Mutex
	entries []history.Entry
	patches map[string]history.Patch
	reloads int
}

func (f *fakeOrders) Reload(context.Context) {
	f.mu.Lock()
	f.reloads++
	f.mu.Unlock()
}

func (f *fakeOrders) Active() []history.Entry {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []history.Entry
	for _, e := range f.entries {
		if e.IsActive() {
			out = append(out, e)
		}
	}
	return out
}

func (f *fakeOrders) UpdatePartial(_ context.Context, id string, p history.Patch) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.patches == nil {
		f.patches = map[string]history.Patch{}
	}
	for i := range f.entries {
		if f.entries[i].OrderID == id {
			if p.Status != nil {
				f.entries[i].Status = *p.Status
			}
			f.patches[id] = p
			return true
		}
	}
	return false
}

func (f *fakeOrders) add(e history.Entry) {
	f.mu.Lock()
	f.entries = append(f.entries, e)
	f.mu.Unlock()
}

type fakeAPI struct {
	mu     sync.Mutex
	calls  []string
	status map[string]enums.OrderStatus
	errs   map[string]error
}

func (f *fakeAPI) GetOrder(_ context.Context, id, token string) (*storeapi.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, id+"/"+token)
	if err := f.errs[id]; err != nil {
		return nil, err
	}
	return &storeapi.Order{ID: id, Status: f.status[id]}, nil
}

func (f *fakeAPI) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func active(id string, status enums.OrderStatus, now time.Time) history.Entry {
	return history.Entry{
		OrderID:        id,
		TrackingToken:  "tok-" + id,
		Status:         status,
		TokenExpiresAt: now.Add(time.Hour),
	}
}

func newTestPoller(t *testing.T, orders *fakeOrders, api *fakeAPI, clk *clock) *Poller {
	t.Helper()
	p, err := NewPoller(orders, api, Options{
		Interval:   time.Second,
		MinBackoff: 30 * time.Second,
		MaxBackoff: 2 * time.Minute,
		Now:        clk.now,
	})
	require.NoError(t, err)
	return p
}

func TestTickAppliesChangedStatuses(t *testing.T) {
	clk := &clock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	orders := &fakeOrders{}
	orders.add(active("a", enums.OrderStatusPending, clk.t))
	orders.add(active("b", enums.OrderStatusPreparing, clk.t))
	orders.add(history.Entry{OrderID: "done", TrackingToken: "t", Status: enums.OrderStatusCompleted, TokenExpiresAt: clk.t.Add(time.Hour)})
	api := &fakeAPI{status: map[string]enums.OrderStatus{"a": enums.OrderStatusConfirmed, "b": enums.OrderStatusPreparing}}

	res := newTestPoller(t, orders, api, clk).Tick(context.Background())

	assert.Equal(t, 2, res.Checked)
	assert.Equal(t, 1, res.Updated)
	assert.ElementsMatch(t, []string{"a/tok-a", "b/tok-b"}, api.calls)
	require.Contains(t, orders.patches, "a")
	assert.Equal(t, enums.OrderStatusConfirmed, *orders.patches["a"].Status)
	assert.NotContains(t, orders.patches, "b")
}

func TestTickSkipsExpiredTokens(t *testing.T) {
	clk := &clock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	orders := &fakeOrders{}
	stale := active("old", enums.OrderStatusPending, clk.t)
	stale.TokenExpiresAt = clk.t
	orders.add(stale)
	api := &fakeAPI{}

	res := newTestPoller(t, orders, api, clk).Tick(context.Background())
	assert.Zero(t, res.Checked)
	assert.Zero(t, api.callCount())
}

func TestTickRereadsOrdersEachRound(t *testing.T) {
	clk := &clock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	orders := &fakeOrders{}
	api := &fakeAPI{status: map[string]enums.OrderStatus{"late": enums.OrderStatusReady}}
	p := newTestPoller(t, orders, api, clk)

	assert.Zero(t, p.Tick(context.Background()).Checked)

	orders.add(active("late", enums.OrderStatusPending, clk.t))
	res := p.Tick(context.Background())
	assert.Equal(t, 1, res.Updated)

	res = p.Tick(context.Background())
	assert.Equal(t, 1, res.Checked)
	assert.Zero(t, res.Updated)
	assert.Equal(t, 3, orders.reloads)
}

func TestNotFoundAndErrorsDoNotStopTheRound(t *testing.T) {
	clk := &clock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	orders := &fakeOrders{}
	orders.add(active("gone", enums.OrderStatusPending, clk.t))
	orders.add(active("flaky", enums.OrderStatusPending, clk.t))
	orders.add(active("ok", enums.OrderStatusPending, clk.t))
	api := &fakeAPI{
		status: map[string]enums.OrderStatus{"ok": enums.OrderStatusDelivered},
		errs: map[string]error{
			"gone":  pkgerrors.New(pkgerrors.CodeNotFound, "get order: not found"),
			"flaky": errors.New("connection reset"),
		},
	}

	res := newTestPoller(t, orders, api, clk).Tick(context.Background())
	assert.Equal(t, 3, res.Checked)
	assert.Equal(t, 1, res.NotFound)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.Updated)
}

func TestRateLimitSuspendsAndDoublesBackoff(t *testing.T) {
	ctx := context.Background()
	clk := &clock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	orders := &fakeOrders{}
	orders.add(active("a", enums.OrderStatusPending, clk.t.Add(time.Hour)))
	orders.add(active("b", enums.OrderStatusPending, clk.t.Add(time.Hour)))
	limited := pkgerrors.New(pkgerrors.CodeRateLimit, "get order rate limited")
	api := &fakeAPI{errs: map[string]error{"a": limited}}
	p := newTestPoller(t, orders, api, clk)

	res := p.Tick(ctx)
	assert.True(t, res.RateLimited)
	assert.Equal(t, 1, api.callCount(), "round aborts on rate limit")
	assert.Equal(t, 30*time.Second, p.Backoff())

	clk.advance(10 * time.Second)
	assert.True(t, p.Tick(ctx).Suspended)
	assert.Equal(t, 1, api.callCount())

	clk.advance(21 * time.Second)
	p.Tick(ctx)
	assert.Equal(t, time.Minute, p.Backoff())

	clk.advance(61 * time.Second)
	p.Tick(ctx)
	assert.Equal(t, 2*time.Minute, p.Backoff())

	clk.advance(121 * time.Second)
	p.Tick(ctx)
	assert.Equal(t, 2*time.Minute, p.Backoff(), "bounded by max")

	api.mu.Lock()
	delete(api.errs, "a")
	api.mu.Unlock()
	clk.advance(121 * time.Second)
	res = p.Tick(ctx)
	assert.False(t, res.RateLimited)
	assert.Equal(t, time.Duration(0), p.Backoff())
}

func TestRetryAfterExtendsBackoff(t *testing.T) {
	clk := &clock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	orders := &fakeOrders{}
	orders.add(active("a", enums.OrderStatusPending, clk.t))
	api := &fakeAPI{errs: map[string]error{"a": pkgerrors.New(pkgerrors.CodeRateLimit, "slow down").WithRetryAfter(90 * time.Second)}}
	p := newTestPoller(t, orders, api, clk)

	p.Tick(context.Background())
	assert.Equal(t, 90*time.Second, p.Backoff())
}

func TestRunHonoursStartupDelayAndCancellation(t *testing.T) {
	clk := &clock{t: time.Now()}
	orders := &fakeOrders{}
	orders.add(active("a", enums.OrderStatusPending, clk.t.Add(time.Hour)))
	api := &fakeAPI{status: map[string]enums.OrderStatus{"a": enums.OrderStatusPending}}
	p, err := NewPoller(orders, api, Options{Interval: 5 * time.Millisecond, StartupDelay: 20 * time.Millisecond, Now: clk.now})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	assert.Eventually(t, func() bool { return api.callCount() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("poller did not stop")
	}
}

func TestRunCancelledDuringStartupDelay(t *testing.T) {
	api := &fakeAPI{}
	p, err := NewPoller(&fakeOrders{}, api, Options{StartupDelay: time.Hour})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.Run(ctx), context.Canceled)
	assert.Zero(t, api.callCount())
}

func TestNextBackoff(t *testing.T) {
	assert.Equal(t, 30*time.Second, nextBackoff(0, 30*time.Second, time.Minute))
	assert.Equal(t, time.Minute, nextBackoff(30*time.Second, 30*time.Second, time.Minute))
	assert.Equal(t, time.Minute, nextBackoff(time.Minute, 30*time.Second, time.Minute))
}
