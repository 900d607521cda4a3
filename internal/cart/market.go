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

const (
	DefaultMarketMaxLines      = 50
	DefaultMarketMaxQtyPerLine = 99
)

// MarketItem is one grocery cart line. For weighed or measured units,
// UnitQuantity carries the fractional amount being bought.
type MarketItem struct {
	LineID       string           `json:"line_id"`
	ItemID       string           `json:"item_id"`
	Name         string           `json:"name"`
	Price        decimal.Decimal  `json:"price"`
	Quantity     int              `json:"quantity"`
	UnitType     enums.UnitType   `json:"unit_type"`
	UnitQuantity *decimal.Decimal `json:"unit_quantity,omitempty"`
	Brand        string           `json:"brand,omitempty"`
	Barcode      string           `json:"barcode,omitempty"`
	ImageURL     string           `json:"image_url,omitempty"`
}

// lineTotal charges price × unit quantity for weighed lines that carry one,
// and price × quantity otherwise.
func (i MarketItem) lineTotal() decimal.Decimal {
	if !i.UnitType.IsPiece() && i.UnitQuantity != nil {
		return i.Price.Mul(*i.UnitQuantity)
	}
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type marketState struct {
	ownership
	Items          []MarketItem `json:"items"`
	DeliverySlotID *string      `json:"delivery_slot_id,omitempty"`
}

// MarketOptions bounds the market cart.
type MarketOptions struct {
	Options
	MaxLines      int
	MaxQtyPerLine int
}

// MarketCart is the grocery cart. Piece-type lines for the same product merge.
type MarketCart struct {
	mu       sync.Mutex
	state    marketState
	store    *localstore.Store
	logg     *logger.Logger
	newID    func() string
	maxLines int
	maxQty   int
}

// NewMarketCart restores the grocery cart from store.
func NewMarketCart(ctx context.Context, store *localstore.Store, opts MarketOptions) *MarketCart {
	base := opts.Options.withDefaults()
	if opts.MaxLines <= 0 {
		opts.MaxLines = DefaultMarketMaxLines
	}
	if opts.MaxQtyPerLine <= 0 {
		opts.MaxQtyPerLine = DefaultMarketMaxQtyPerLine
	}
	c := &MarketCart{
		store:    store,
		logg:     base.Logger,
		newID:    base.NewLineID,
		maxLines: opts.MaxLines,
		maxQty:   opts.MaxQtyPerLine,
	}
	if state, ok := localstore.Get[marketState](ctx, store, marketStorageKey); ok {
		c.state = state
	}
	if len(c.state.Items) == 0 || c.state.Merchant == nil {
		c.teardownLocked()
	}
	return c
}

// CheckConflict reports whether adding from merchantID would need a clear.
func (c *MarketCart) CheckConflict(merchantID string) Conflict {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.conflictWith(merchantID)
}

// AddItem adds item for merchant m. A piece-type product already in the cart
// has its quantity increased, capped per line; anything else becomes a new
// line, unless the cart is at its line limit. Returns false on no-op.
func (c *MarketCart) AddItem(ctx context.Context, item MarketItem, m Merchant) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.addLocked(ctx, item, m)
}

// AddItemAfterClear empties the cart and adds item as its only line. Invalid
// input leaves the cart untouched.
func (c *MarketCart) AddItemAfterClear(ctx context.Context, item MarketItem, m Merchant) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := m.ref(); !ok || !validMarketItem(item) {
		return false
	}
	c.teardownLocked()
	return c.addLocked(ctx, item, m)
}

func (c *MarketCart) addLocked(ctx context.Context, item MarketItem, m Merchant) bool {
	ref, ok := m.ref()
	if !ok || !validMarketItem(item) {
		c.logg.Debug(ctx, "invalid market cart add ignored")
		return false
	}
	if c.state.conflictWith(ref.ID).HasConflict {
		c.logg.Debug(c.logg.WithMerchant(ctx, ref.Slug), "cross-merchant add ignored")
		return false
	}

	if idx := c.mergeTargetLocked(item); idx >= 0 {
		line := &c.state.Items[idx]
		line.Quantity = c.clampQty(line.Quantity + item.Quantity)
	} else {
		if len(c.state.Items) >= c.maxLines {
			c.logg.Warn(c.logg.WithField(ctx, "max_lines", c.maxLines), "market cart line limit reached; add ignored")
			return false
		}
		item.LineID = c.newID()
		item.Quantity = c.clampQty(item.Quantity)
		if item.UnitType == "" {
			item.UnitType = enums.UnitTypePiece
		}
		if item.UnitQuantity != nil {
			uq := *item.UnitQuantity
			item.UnitQuantity = &uq
		}
		c.state.Items = append(c.state.Items, item)
	}
	c.state.claim(ref, m)
	c.persistLocked(ctx)
	return true
}

// RemoveItem drops lineID. Removing the last line empties the cart and
// clears the delivery slot.
func (c *MarketCart) RemoveItem(ctx context.Context, lineID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removeLocked(ctx, lineID)
}

func (c *MarketCart) removeLocked(ctx context.Context, lineID string) bool {
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

// UpdateQuantity sets the count of lineID, clamped to the per-line cap; zero
// or less removes the line.
func (c *MarketCart) UpdateQuantity(ctx context.Context, lineID string, quantity int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if quantity <= 0 {
		return c.removeLocked(ctx, lineID)
	}
	idx := c.indexLocked(lineID)
	if idx < 0 {
		return false
	}
	c.state.Items[idx].Quantity = c.clampQty(quantity)
	c.persistLocked(ctx)
	return true
}

// UpdateUnitQuantity sets the weighed or measured amount of lineID; zero or
// less removes the line.
func (c *MarketCart) UpdateUnitQuantity(ctx context.Context, lineID string, unitQuantity decimal.Decimal) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !unitQuantity.IsPositive() {
		return c.removeLocked(ctx, lineID)
	}
	idx := c.indexLocked(lineID)
	if idx < 0 {
		return false
	}
	c.state.Items[idx].UnitQuantity = &unitQuantity
	c.persistLocked(ctx)
	return true
}

// SetDeliverySlot selects a delivery slot, or clears it when slotID is nil
// or blank. Only an owned cart can hold a slot.
func (c *MarketCart) SetDeliverySlot(ctx context.Context, slotID *string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if slotID == nil || strings.TrimSpace(*slotID) == "" {
		c.state.DeliverySlotID = nil
		c.persistLocked(ctx)
		return true
	}
	if c.state.Merchant == nil {
		return false
	}
	id := strings.TrimSpace(*slotID)
	c.state.DeliverySlotID = &id
	c.persistLocked(ctx)
	return true
}

// DeliverySlot returns the selected slot id.
func (c *MarketCart) DeliverySlot() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.DeliverySlotID == nil {
		return "", false
	}
	return *c.state.DeliverySlotID, true
}

// Clear empties the cart.
func (c *MarketCart) Clear(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.teardownLocked()
	c.store.Remove(ctx, marketStorageKey)
}

// Items returns a copy of the cart lines in insertion order.
func (c *MarketCart) Items() []MarketItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]MarketItem, len(c.state.Items))
	for i, item := range c.state.Items {
		if item.UnitQuantity != nil {
			uq := *item.UnitQuantity
			item.UnitQuantity = &uq
		}
		out[i] = item
	}
	return out
}

// Merchant returns the owning merchant, if any.
func (c *MarketCart) Merchant() (MerchantRef, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.merchant()
}

func (c *MarketCart) IsEmpty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.state.Items) == 0
}

func (c *MarketCart) TotalItems() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, item := range c.state.Items {
		total += item.Quantity
	}
	return total
}

func (c *MarketCart) TotalPrice() decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := decimal.Zero
	for _, item := range c.state.Items {
		total = total.Add(item.lineTotal())
	}
	return total
}

func (c *MarketCart) DeliveryFee() decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.DeliveryFee
}

func (c *MarketCart) MinimumOrder() decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.MinimumOrder
}

// Vertical identifies the cart.
func (c *MarketCart) Vertical() enums.Vertical {
	return enums.VerticalMarket
}

func (c *MarketCart) mergeTargetLocked(item MarketItem) int {
	if !item.UnitType.IsPiece() {
		return -1
	}
	for i, line := range c.state.Items {
		if line.ItemID == item.ItemID && line.UnitType.IsPiece() {
			return i
		}
	}
	return -1
}

func (c *MarketCart) indexLocked(lineID string) int {
	for i, item := range c.state.Items {
		if item.LineID == lineID {
			return i
		}
	}
	return -1
}

func (c *MarketCart) clampQty(quantity int) int {
	if quantity > c.maxQty {
		return c.maxQty
	}
	return quantity
}

func (c *MarketCart) teardownLocked() {
	c.state.Items = nil
	c.state.DeliverySlotID = nil
	c.state.reset()
}

func (c *MarketCart) persistLocked(ctx context.Context) {
	persist(ctx, c.store, c.logg, marketStorageKey, c.state)
}

func validMarketItem(item MarketItem) bool {
	if strings.TrimSpace(item.ItemID) == "" || item.Quantity <= 0 || item.Price.IsNegative() {
		return false
	}
	if item.UnitType != "" && !item.UnitType.IsValid() {
		return false
	}
	return item.UnitQuantity == nil || item.UnitQuantity.IsPositive()
}
