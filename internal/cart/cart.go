// Package cart holds the two single-merchant cart state machines: the
// restaurant ("eat") cart and the grocery ("market") cart. A cart is either
// empty, with no merchant, or owned by exactly one merchant with at least one
// line. Misuse (cross-merchant adds, non-positive quantities) never errors; it
// degrades to a no-op or a removal.
package cart

import (
	"context"
	"strings"

	"github.com/angelmondragon/storefront/pkg/localstore"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	eatStorageKey    = "cart:eat"
	marketStorageKey = "cart:market"
)

// Merchant is the business an item is added from, with the cart-level
// pricing that applies while it owns the cart.
type Merchant struct {
	ID           string
	Name         string
	Slug         string
	DeliveryFee  decimal.Decimal
	MinimumOrder decimal.Decimal
}

func (m Merchant) ref() (MerchantRef, bool) {
	ref := MerchantRef{
		ID:   strings.TrimSpace(m.ID),
		Name: strings.TrimSpace(m.Name),
		Slug: strings.TrimSpace(m.Slug),
	}
	return ref, ref.ID != "" && ref.Name != "" && ref.Slug != ""
}

// MerchantRef identifies the owning merchant. All three fields are set or the
// cart has no owner.
type MerchantRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// Conflict is the answer to "may I add from this merchant without clearing?".
type Conflict struct {
	HasConflict         bool
	CurrentMerchantName string
}

// Options configures both carts.
type Options struct {
	Logger *logger.Logger
	// NewLineID mints cart-line ids; defaults to random UUIDs.
	NewLineID func() string
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = logger.Nop()
	}
	if o.NewLineID == nil {
		o.NewLineID = uuid.NewString
	}
	return o
}

// ownership is the cart-level state shared by both verticals.
type ownership struct {
	Merchant     *MerchantRef    `json:"merchant,omitempty"`
	DeliveryFee  decimal.Decimal `json:"delivery_fee"`
	MinimumOrder decimal.Decimal `json:"minimum_order"`
}

func (o *ownership) conflictWith(merchantID string) Conflict {
	if o.Merchant == nil || o.Merchant.ID == strings.TrimSpace(merchantID) {
		return Conflict{}
	}
	return Conflict{HasConflict: true, CurrentMerchantName: o.Merchant.Name}
}

func (o *ownership) claim(ref MerchantRef, m Merchant) {
	o.Merchant = &ref
	o.DeliveryFee = m.DeliveryFee
	o.MinimumOrder = m.MinimumOrder
}

func (o *ownership) reset() {
	o.Merchant = nil
	o.DeliveryFee = decimal.Zero
	o.MinimumOrder = decimal.Zero
}

func (o *ownership) merchant() (MerchantRef, bool) {
	if o.Merchant == nil {
		return MerchantRef{}, false
	}
	return *o.Merchant, true
}

func persist(ctx context.Context, store *localstore.Store, logg *logger.Logger, key string, state any) {
	if !store.Set(ctx, key, state) {
		logg.Debug(logg.WithField(ctx, "storage_key", key), "cart not persisted")
	}
}
