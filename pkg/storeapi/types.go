package storeapi

import (
	"time"

	"github.com/angelmondragon/storefront/pkg/enums"
	"github.com/shopspring/decimal"
)

// Business is a merchant as listed by the catalog service.
type Business struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Slug         string          `json:"slug"`
	Vertical     enums.Vertical  `json:"vertical"`
	Address      string          `json:"address,omitempty"`
	Latitude     float64         `json:"latitude"`
	Longitude    float64         `json:"longitude"`
	DistanceKm   float64         `json:"distance_km,omitempty"`
	IsOpen       bool            `json:"is_open"`
	DeliveryFee  decimal.Decimal `json:"delivery_fee"`
	MinimumOrder decimal.Decimal `json:"minimum_order"`
	ImageURL     string          `json:"image_url,omitempty"`
}

// Menu is a business with its categorised items.
type Menu struct {
	Business   Business       `json:"business"`
	Categories []MenuCategory `json:"categories"`
}

type MenuCategory struct {
	ID    string     `json:"id"`
	Name  string     `json:"name"`
	Items []MenuItem `json:"items"`
}

type MenuItem struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Available   bool            `json:"available"`
	UnitType    enums.UnitType  `json:"unit_type,omitempty"`
	Brand       string          `json:"brand,omitempty"`
	Barcode     string          `json:"barcode,omitempty"`
	ImageURL    string          `json:"image_url,omitempty"`
	Modifiers   []ModifierGroup `json:"modifiers,omitempty"`
}

type ModifierGroup struct {
	Key       string           `json:"key"`
	Name      string           `json:"name"`
	Required  bool             `json:"required"`
	MinSelect int              `json:"min_select"`
	MaxSelect int              `json:"max_select"`
	Options   []ModifierOption `json:"options"`
}

type ModifierOption struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	PriceDelta decimal.Decimal `json:"price_delta"`
}

// FindItem looks up a menu item by id across categories.
func (m Menu) FindItem(itemID string) (MenuItem, bool) {
	for _, cat := range m.Categories {
		for _, item := range cat.Items {
			if item.ID == itemID {
				return item, true
			}
		}
	}
	return MenuItem{}, false
}

// PlaceOrderRequest is the order submission payload. IdempotencyKey must stay
// the same across retries of one checkout attempt.
type PlaceOrderRequest struct {
	CustomerName    string               `json:"customer_name" validate:"required,max=120"`
	CustomerPhone   string               `json:"customer_phone" validate:"required,max=40"`
	CustomerEmail   string               `json:"customer_email,omitempty" validate:"omitempty,email"`
	DeliveryMethod  enums.DeliveryMethod `json:"delivery_method" validate:"required,oneof=delivery pickup"`
	DeliveryAddress string               `json:"delivery_address,omitempty" validate:"required_if=DeliveryMethod delivery"`
	DeliverySlotID  string               `json:"delivery_slot_id,omitempty"`
	PaymentMethod   enums.PaymentMethod  `json:"payment_method" validate:"required,oneof=cash card"`
	Items           []OrderItem          `json:"items" validate:"required,min=1,dive"`
	Notes           string               `json:"notes,omitempty" validate:"max=500"`
	IdempotencyKey  string               `json:"idempotency_key" validate:"required,uuid"`
}

type OrderItem struct {
	ItemID              string              `json:"item_id" validate:"required"`
	Quantity            int                 `json:"quantity" validate:"min=1"`
	UnitQuantity        *decimal.Decimal    `json:"unit_quantity,omitempty"`
	Options             map[string][]string `json:"options,omitempty"`
	SpecialInstructions string              `json:"special_instructions,omitempty" validate:"max=300"`
}

// Order is the service's view of a placed order.
type Order struct {
	ID               string            `json:"id"`
	OrderNumber      string            `json:"order_number"`
	Status           enums.OrderStatus `json:"status"`
	TrackingToken    string            `json:"tracking_token"`
	Total            decimal.Decimal   `json:"total"`
	CreatedAt        time.Time         `json:"created_at"`
	EstimatedReadyAt *time.Time        `json:"estimated_ready_at,omitempty"`
}

// DeliverySlot is a bookable delivery window.
type DeliverySlot struct {
	ID            string    `json:"id"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	MaxOrders     int       `json:"max_orders"`
	CurrentOrders int       `json:"current_orders"`
}

// Available is derived locally; the service does not send it.
func (s DeliverySlot) Available() bool {
	return s.CurrentOrders < s.MaxOrders
}

// NearbyQuery filters ListNearby.
type NearbyQuery struct {
	Latitude  float64        `validate:"min=-90,max=90"`
	Longitude float64        `validate:"min=-180,max=180"`
	RadiusKm  float64        `validate:"gt=0,max=50"`
	Vertical  enums.Vertical `validate:"omitempty,oneof=eat market"`
}
