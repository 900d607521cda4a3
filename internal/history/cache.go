package history

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/angelmondragon/storefront/pkg/enums"
	"github.com/angelmondragon/storefront/pkg/localstore"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/security"
	"github.com/shopspring/decimal"
)

const (
	DefaultMaxEntries    = 50
	DefaultRetention     = 90 * 24 * time.Hour
	DefaultTokenValidity = 7 * 24 * time.Hour

	day = 24 * time.Hour
)

// Options configures a Cache.
type Options struct {
	MaxEntries    int
	Retention     time.Duration
	TokenValidity time.Duration
	Obfuscator    *security.Obfuscator
	Logger        *logger.Logger
	Now           func() time.Time
}

// Cache is the bounded, TTL-evicted order history, ordered by CreatedAt with
// the newest order first. Every mutation re-reads the persisted list before
// writing it back, so processes sharing a backend do not drop each other's
// orders.
type Cache struct {
	mu            sync.Mutex
	entries       []Entry
	codec         tokenCodec
	maxEntries    int
	retention     time.Duration
	tokenValidity time.Duration
	logg          *logger.Logger
	now           func() time.Time
	// unsaved is set while the last write was dropped by the store.
	unsaved bool
}

// NewCache loads the persisted history and drops anything already expired.
func NewCache(ctx context.Context, store *localstore.Store, opts Options) (*Cache, error) {
	if store == nil {
		return nil, fmt.Errorf("local store required")
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultMaxEntries
	}
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	if opts.TokenValidity <= 0 {
		opts.TokenValidity = DefaultTokenValidity
	}
	if opts.Obfuscator == nil {
		opts.Obfuscator = security.NewObfuscator("")
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	c := &Cache{
		codec:         tokenCodec{store: store, obf: opts.Obfuscator},
		maxEntries:    opts.MaxEntries,
		retention:     opts.Retention,
		tokenValidity: opts.TokenValidity,
		logg:          opts.Logger,
		now:           opts.Now,
	}
	c.Reload(ctx)
	return c, nil
}

// Reload picks up what other processes persisted and drops expired entries.
func (c *Cache) Reload(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.syncLocked(ctx)
	if c.removeExpiredLocked() > 0 {
		c.persistLocked(ctx)
	}
}

// Add records a new order. A second add for the same order id is ignored.
func (c *Cache) Add(ctx context.Context, e Entry) bool {
	e.OrderID = strings.TrimSpace(e.OrderID)
	if e.OrderID == "" {
		c.logg.Warn(ctx, "order history entry without order id ignored")
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.syncLocked(ctx)
	if c.indexLocked(e.OrderID) >= 0 {
		c.logg.Warn(c.logg.WithOrderID(ctx, e.OrderID), "order already in history; add ignored")
		return false
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = c.now()
	}
	if e.Status == "" {
		e.Status = enums.OrderStatusPending
	}
	if e.TokenExpiresAt.IsZero() {
		e.TokenExpiresAt = e.CreatedAt.Add(c.tokenValidity)
	}
	if e.ExpiresAt.IsZero() {
		e.ExpiresAt = e.CreatedAt.Add(c.retention)
	}

	c.insertLocked(e)
	if len(c.entries) > c.maxEntries {
		c.trimLocked()
	}
	c.persistLocked(ctx)
	return true
}

// UpdateStatus sets the status of orderID and reports whether it was found.
func (c *Cache) UpdateStatus(ctx context.Context, orderID string, status enums.OrderStatus) bool {
	return c.UpdatePartial(ctx, orderID, Patch{Status: &status})
}

// UpdatePartial applies p to orderID and reports whether it was found.
func (c *Cache) UpdatePartial(ctx context.Context, orderID string, p Patch) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.syncLocked(ctx)
	idx := c.indexLocked(orderID)
	if idx < 0 {
		return false
	}
	p.apply(&c.entries[idx])
	c.persistLocked(ctx)
	return true
}

// GetByID looks an entry up by order id.
func (c *Cache) GetByID(orderID string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if idx := c.indexLocked(orderID); idx >= 0 {
		return c.entries[idx], true
	}
	return Entry{}, false
}

// GetByNumber looks an entry up by its human order number.
func (c *Cache) GetByNumber(orderNumber string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		if e.OrderNumber == orderNumber {
			return e, true
		}
	}
	return Entry{}, false
}

// Remove deletes orderID and reports whether it was present.
func (c *Cache) Remove(ctx context.Context, orderID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.syncLocked(ctx)
	idx := c.indexLocked(orderID)
	if idx < 0 {
		return false
	}
	c.entries = append(c.entries[:idx], c.entries[idx+1:]...)
	c.persistLocked(ctx)
	return true
}

// All returns every entry, newest first.
func (c *Cache) All() []Entry {
	return c.filter(func(Entry) bool { return true })
}

// Active returns orders whose status is not terminal.
func (c *Cache) Active() []Entry {
	return c.filter(Entry.IsActive)
}

// Completed returns orders in a terminal status.
func (c *Cache) Completed() []Entry {
	return c.filter(func(e Entry) bool { return !e.IsActive() })
}

// ByMerchant returns the orders placed with slug.
func (c *Cache) ByMerchant(slug string) []Entry {
	return c.filter(func(e Entry) bool { return e.MerchantSlug == slug })
}

// Recent returns orders placed within the last days days.
func (c *Cache) Recent(days int) []Entry {
	cutoff := c.now().Add(-time.Duration(days) * day)
	return c.filter(func(e Entry) bool { return !e.CreatedAt.Before(cutoff) })
}

// Trackable returns orders whose tracking token has not expired.
func (c *Cache) Trackable() []Entry {
	now := c.now()
	return c.filter(func(e Entry) bool { return e.TrackingToken != "" && now.Before(e.TokenExpiresAt) })
}

// IsTrackingExpired reports whether the token for orderID can no longer be
// used. Unknown orders count as expired.
func (c *Cache) IsTrackingExpired(orderID string) bool {
	e, ok := c.GetByID(orderID)
	if !ok {
		return true
	}
	return !c.now().Before(e.TokenExpiresAt)
}

// Count returns the number of cached orders.
func (c *Cache) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// TotalSpent sums order totals, leaving out cancelled and rejected orders.
func (c *Cache) TotalSpent() decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return totalSpent(c.entries)
}

// Clear forgets every order.
func (c *Cache) Clear(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = nil
	c.unsaved = false
	c.codec.clear(ctx)
}

// CleanupExpired drops entries past their retention horizon and returns how
// many were removed.
func (c *Cache) CleanupExpired(ctx context.Context) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.syncLocked(ctx)
	removed := c.removeExpiredLocked()
	if removed > 0 {
		c.persistLocked(ctx)
		c.logg.Info(c.logg.WithField(ctx, "removed", removed), "expired order history entries removed")
	}
	return removed
}

// GroupedByRecency buckets orders into today, yesterday, the last seven days
// and older, using calendar days in the clock's location.
func (c *Cache) GroupedByRecency() Groups {
	now := c.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	yesterday := today.AddDate(0, 0, -1)
	weekAgo := today.AddDate(0, 0, -7)

	var g Groups
	for _, e := range c.All() {
		created := e.CreatedAt.In(now.Location())
		switch {
		case !created.Before(today):
			g.Today = append(g.Today, e)
		case !created.Before(yesterday):
			g.Yesterday = append(g.Yesterday, e)
		case !created.Before(weekAgo):
			g.LastWeek = append(g.LastWeek, e)
		default:
			g.Older = append(g.Older, e)
		}
	}
	return g
}

// Statistics summarises the history. The favourite merchant is the one with
// the most orders; ties go to the merchant met first, newest order first.
func (c *Cache) Statistics() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := Stats{TotalOrders: len(c.entries), TotalSpent: totalSpent(c.entries)}
	counts := make(map[string]int)
	var order []string
	names := make(map[string]string)
	for _, e := range c.entries {
		switch {
		case e.Status == enums.OrderStatusCancelled || e.Status == enums.OrderStatusRejected:
			stats.CancelledOrders++
		case e.Status.IsTerminal():
			stats.CompletedOrders++
		default:
			stats.ActiveOrders++
		}
		if e.MerchantSlug == "" {
			continue
		}
		if _, seen := counts[e.MerchantSlug]; !seen {
			order = append(order, e.MerchantSlug)
			names[e.MerchantSlug] = e.MerchantName
		}
		counts[e.MerchantSlug]++
	}
	for _, slug := range order {
		if counts[slug] > stats.FavoriteMerchantOrders {
			stats.FavoriteMerchantSlug = slug
			stats.FavoriteMerchantName = names[slug]
			stats.FavoriteMerchantOrders = counts[slug]
		}
	}
	return stats
}

func (c *Cache) filter(keep func(Entry) bool) []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry, 0, len(c.entries))
	for _, e := range c.entries {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

// syncLocked refreshes the in-memory list from storage ahead of a
// read-modify-write. While a dropped write is pending, stored orders are
// merged in instead so the unsaved ones survive.
func (c *Cache) syncLocked(ctx context.Context) {
	stored := c.codec.load(ctx)
	if !c.unsaved {
		c.entries = stored
		return
	}
	for _, e := range stored {
		if c.indexLocked(e.OrderID) < 0 {
			c.insertLocked(e)
		}
	}
}

// insertLocked places e before the first entry that is not newer than it.
func (c *Cache) insertLocked(e Entry) {
	at := len(c.entries)
	for i, existing := range c.entries {
		if !existing.CreatedAt.After(e.CreatedAt) {
			at = i
			break
		}
	}
	c.entries = append(c.entries, Entry{})
	copy(c.entries[at+1:], c.entries[at:])
	c.entries[at] = e
}

func (c *Cache) indexLocked(orderID string) int {
	for i, e := range c.entries {
		if e.OrderID == orderID {
			return i
		}
	}
	return -1
}

func (c *Cache) removeExpiredLocked() int {
	now := c.now()
	kept := c.entries[:0]
	for _, e := range c.entries {
		if now.After(e.ExpiresAt) {
			continue
		}
		kept = append(kept, e)
	}
	removed := len(c.entries) - len(kept)
	c.entries = kept
	return removed
}

// trimLocked keeps maxEntries orders, preferring active orders over terminal
// ones and newer over older within each group. Survivors keep their order.
func (c *Cache) trimLocked() {
	ranked := make([]int, len(c.entries))
	for i := range ranked {
		ranked[i] = i
	}
	sort.SliceStable(ranked, func(a, b int) bool {
		ea, eb := c.entries[ranked[a]], c.entries[ranked[b]]
		if ea.IsActive() != eb.IsActive() {
			return ea.IsActive()
		}
		return ea.CreatedAt.After(eb.CreatedAt)
	})

	keep := make(map[int]struct{}, c.maxEntries)
	for _, idx := range ranked[:c.maxEntries] {
		keep[idx] = struct{}{}
	}
	trimmed := make([]Entry, 0, c.maxEntries)
	for i, e := range c.entries {
		if _, ok := keep[i]; ok {
			trimmed = append(trimmed, e)
		}
	}
	c.entries = trimmed
}

func (c *Cache) persistLocked(ctx context.Context) {
	c.unsaved = !c.codec.save(ctx, c.entries)
	if c.unsaved {
		c.logg.Debug(ctx, "order history not persisted")
	}
}

func totalSpent(entries []Entry) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		if e.Status == enums.OrderStatusCancelled || e.Status == enums.OrderStatusRejected {
			continue
		}
		total = total.Add(e.Total)
	}
	return total
}
