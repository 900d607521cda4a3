package cart

import (
	"context"
	"strings"
	"sync"

	"github.com/angelmondragon/storefront/pkg/enums"
	"github.com/angelmondragon/storefront/pkg/localstore"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/shopspring/decimal"
)

// Item is one restaurant cart line. Price already includes selected modifiers.
type Item struct {
	LineID              string              `json:"line_id"`
	ItemID              string              `json:"item_id"`
	Name                string              `json:"name"`
	Price               decimal.Decimal     `json:"price"`
	Quantity            int                 `json:"quantity"`
	Options             map[string][]string `json:"options,omitempty"`
	ModifierSummary     string              `json:"modifier_summary,omitempty"`
	SpecialInstructions string              `json:"special_instructions,omitempty"`
	ImageURL            string              `json:"image_url,omitempty"`
}

func (i Item) lineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type eatState struct {
	ownership
	Items []Item `json:"items"`
}

// EatCart is the restaurant cart. Every add appends a new line.
type EatCart struct {
	mu    sync.Mutex
	state eatState
	store *localstore.Store
	logg  *logger.Logger
	newID func() string
}

// NewEatCart restores the restaurant cart from store.
func NewEatCart(ctx context.Context, store *localstore.Store, opts Options) *EatCart {
	opts = opts.withDefaults()
	c := &EatCart{store: store, logg: opts.Logger, newID: opts.NewLineID}
	if state, ok := localstore.Get[eatState](ctx, store, eatStorageKey); ok {
		c.state = state
	}
	if len(c.state.Items) == 0 || c.state.Merchant == nil {
		c.teardownLocked()
	}
	return c
}

// CheckConflict reports whether adding from merchantID would need a clear.
func (c *EatCart) CheckConflict(merchantID string) Conflict {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.conflictWith(merchantID)
}

// AddItem appends item as a new line. It is a no-op, returning false, when
// another merchant owns the cart or the input is invalid.
func (c *EatCart) AddItem(ctx context.Context, item Item, m Merchant) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.addLocked(ctx, item, m)
}

// AddItemAfterClear empties the cart and adds item as its only line. Invalid
// input leaves the cart untouched.
func (c *EatCart) AddItemAfterClear(ctx context.Context, item Item, m Merchant) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := m.ref(); !ok || !validEatItem(item) {
		return false
	}
	c.teardownLocked()
	return c.addLocked(ctx, item, m)
}

func (c *EatCart) addLocked(ctx context.Context, item Item, m Merchant) bool {
	ref, ok := m.ref()
	if !ok || !validEatItem(item) {
		c.logg.Debug(ctx, "invalid eat cart add ignored")
		return false
	}
	if c.state.conflictWith(ref.ID).HasConflict {
		c.logg.Debug(c.logg.WithMerchant(ctx, ref.Slug), "cross-merchant add ignored")
		return false
	}

	item.LineID = c.newID()
	item.Options = cloneOptions(item.Options)
	c.state.Items = append(c.state.Items, item)
	c.state.claim(ref, m)
	c.persistLocked(ctx)
	return true
}

// RemoveItem drops lineID. Removing the last line empties the cart.
func (c *EatCart) RemoveItem(ctx context.Context, lineID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removeLocked(ctx, lineID)
}

func (c *EatCart) removeLocked(ctx context.Context, lineID string) bool {
	idx := c.indexLocked(lineID)
	if idx < 0 {
		return false
	}
	c.state.Items = append(c.state.Items[:idx], c.state.Items[idx+1:]...)
	if len(c.state.Items) == 0 {
		c.teardownLocked()
	}
	c.persistLocked(ctx)
	return true
}

// UpdateQuantity sets the quantity of lineID; zero or less removes the line.
func (c *EatCart) UpdateQuantity(ctx context.Context, lineID string, quantity int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if quantity <= 0 {
		return c.removeLocked(ctx, lineID)
	}
	idx := c.indexLocked(lineID)
	if idx < 0 {
		return false
	}
	c.state.Items[idx].Quantity = quantity
	c.persistLocked(ctx)
	return true
}

// Clear empties the cart.
func (c *EatCart) Clear(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.teardownLocked()
	c.store.Remove(ctx, eatStorageKey)
}

// Items returns a copy of the cart lines in insertion order.
func (c *EatCart) Items() []Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Item, len(c.state.Items))
	for i, item := range c.state.Items {
		item.Options = cloneOptions(item.Options)
		out[i] = item
	}
	return out
}

// Merchant returns the owning merchant, if any.
func (c *EatCart) Merchant() (MerchantRef, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.merchant()
}

func (c *EatCart) IsEmpty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.state.Items) == 0
}

func (c *EatCart) TotalItems() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, item := range c.state.Items {
		total += item.Quantity
	}
	return total
}

func (c *EatCart) TotalPrice() decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := decimal.Zero
	for _, item := range c.state.Items {
		total = total.Add(item.lineTotal())
	}
	return total
}

func (c *EatCart) DeliveryFee() decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.DeliveryFee
}

func (c *EatCart) MinimumOrder() decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.MinimumOrder
}

// Vertical identifies the cart.
func (c *EatCart) Vertical() enums.Vertical {
	return enums.VerticalEat
}

func (c *EatCart) indexLocked(lineID string) int {
	for i, item := range c.state.Items {
		if item.LineID == lineID {
			return i
		}
	}
	return -1
}

func (c *EatCart) teardownLocked() {
	c.state.Items = nil
	c.state.reset()
}

func (c *EatCart) persistLocked(ctx context.Context) {
	persist(ctx, c.store, c.logg, eatStorageKey, c.state)
}

func validEatItem(item Item) bool {
	return strings.TrimSpace(item.ItemID) != "" && item.Quantity > 0 && !item.Price.IsNegative()
}

func cloneOptions(in map[string][]string) map[string][]string {
	if in == nil {
		return nil
	}
	out := make(map[string][]string, len(in))
	for group, ids := range in {
		out[group] = append([]string(nil), ids...)
	}
	return out
}
