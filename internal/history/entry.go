package history

import (
	"time"

	"github.com/angelmondragon/storefront/pkg/enums"
	"github.com/shopspring/decimal"
)

// Entry is one placed order as remembered on this device. TrackingToken is
// plaintext in memory; it is obfuscated only on the way to storage.
type Entry struct {
	OrderID          string               `json:"order_id"`
	OrderNumber      string               `json:"order_number"`
	MerchantSlug     string               `json:"merchant_slug"`
	MerchantName     string               `json:"merchant_name"`
	TrackingToken    string               `json:"tracking_token"`
	Total            decimal.Decimal      `json:"total"`
	DeliveryMethod   enums.DeliveryMethod `json:"delivery_method"`
	PaymentMethod    enums.PaymentMethod  `json:"payment_method"`
	Status           enums.OrderStatus    `json:"status"`
	CreatedAt        time.Time            `json:"created_at"`
	EstimatedReadyAt *time.Time           `json:"estimated_ready_at,omitempty"`
	ItemSummary      string               `json:"item_summary"`
	TokenExpiresAt   time.Time            `json:"token_expires_at"`
	ExpiresAt        time.Time            `json:"expires_at"`
}

// IsActive reports whether the order still expects status transitions.
func (e Entry) IsActive() bool {
	return !e.Status.IsTerminal()
}

// Patch is a partial update; nil fields are left untouched.
type Patch struct {
	OrderNumber      *string
	Status           *enums.OrderStatus
	EstimatedReadyAt *time.Time
	ItemSummary      *string
	Total            *decimal.Decimal
	TrackingToken    *string
}

func (p Patch) apply(e *Entry) {
	if p.OrderNumber != nil {
		e.OrderNumber = *p.OrderNumber
	}
	if p.Status != nil {
		e.Status = *p.Status
	}
	if p.EstimatedReadyAt != nil {
		ready := *p.EstimatedReadyAt
		e.EstimatedReadyAt = &ready
	}
	if p.ItemSummary != nil {
		e.ItemSummary = *p.ItemSummary
	}
	if p.Total != nil {
		e.Total = *p.Total
	}
	if p.TrackingToken != nil {
		e.TrackingToken = *p.TrackingToken
	}
}

// Groups buckets entries by how recently they were placed.
type Groups struct {
	Today     []Entry `json:"today"`
	Yesterday []Entry `json:"yesterday"`
	LastWeek  []Entry `json:"last_week"`
	Older     []Entry `json:"older"`
}

// Stats summarises the cached history.
type Stats struct {
	TotalOrders            int             `json:"total_orders"`
	ActiveOrders           int             `json:"active_orders"`
	CompletedOrders        int             `json:"completed_orders"`
	CancelledOrders        int             `json:"cancelled_orders"`
	TotalSpent             decimal.Decimal `json:"total_spent"`
	FavoriteMerchantSlug   string          `json:"favorite_merchant_slug,omitempty"`
	FavoriteMerchantName   string          `json:"favorite_merchant_name,omitempty"`
	FavoriteMerchantOrders int             `json:"favorite_merchant_orders"`
}
