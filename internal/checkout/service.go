// Package checkout turns the active cart into a placed order: it prices the
// cart, prefills customer details from the profile cache, submits the order
// and, on success, records it in the order history and empties the cart.
package checkout

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/storefront/internal/cart"
	"github.com/angelmondragon/storefront/internal/history"
	"github.com/angelmondragon/storefront/internal/profile"
	"github.com/angelmondragon/storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/storeapi"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	errEmptyCart    = "cart is empty"
	errBelowMinimum = "order is below the merchant minimum"
)

type orderPlacer interface {
	PlaceOrder(ctx context.Context, slug string, req storeapi.PlaceOrderRequest) (*storeapi.Order, error)
}

type profileCache interface {
	Load(ctx context.Context) (*profile.Profile, bool)
	Save(ctx context.Context, f profile.Fields) (*profile.Profile, error)
}

type orderRecorder interface {
	Add(ctx context.Context, e history.Entry) bool
}

// Attempt is one visit to the checkout page. Its idempotency key is reused
// for every retried submission of the same attempt.
type Attempt struct {
	IdempotencyKey string
	Vertical       enums.Vertical
	StartedAt      time.Time
	OrderID        string
}

// Submitted reports whether the attempt already produced an order.
func (a *Attempt) Submitted() bool {
	return a != nil && a.OrderID != ""
}

// Prefill carries the remembered customer details for the checkout form.
type Prefill struct {
	Name    string `json:"name,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty"`
	Address string `json:"address,omitempty"`
}

// Summary is what the checkout page shows before submission.
type Summary struct {
	Vertical       enums.Vertical    `json:"vertical"`
	Merchant       *cart.MerchantRef `json:"merchant,omitempty"`
	Items          int               `json:"items"`
	Subtotal       decimal.Decimal   `json:"subtotal"`
	DeliveryFee    decimal.Decimal   `json:"delivery_fee"`
	Total          decimal.Decimal   `json:"total"`
	Minimum        decimal.Decimal   `json:"minimum"`
	BelowMinimum   bool              `json:"below_minimum"`
	Shortfall      decimal.Decimal   `json:"shortfall"`
	DeliverySlotID string            `json:"delivery_slot_id,omitempty"`
	Prefill        Prefill           `json:"prefill"`
	lines          []storeapi.OrderItem
	itemSummary    string
}

// TotalFor is the amount due for the given delivery method; pickup orders
// carry no delivery fee.
func (s Summary) TotalFor(method enums.DeliveryMethod) decimal.Decimal {
	if method == enums.DeliveryMethodPickup {
		return s.Subtotal
	}
	return s.Total
}

// Input is the submitted checkout form.
type Input struct {
	CustomerName    string
	CustomerPhone   string
	CustomerEmail   string
	DeliveryMethod  enums.DeliveryMethod
	DeliveryAddress string
	PaymentMethod   enums.PaymentMethod
	Notes           string
}

// Result is a successful submission.
type Result struct {
	Order storeapi.Order
	Entry history.Entry
}

// ServiceParams wires the checkout service.
type ServiceParams struct {
	Eat      *cart.EatCart
	Market   *cart.MarketCart
	Profiles profileCache
	Orders   orderRecorder
	API      orderPlacer
	Logger   *logger.Logger
	Now      func() time.Time
	NewKey   func() string
}

// Service orchestrates checkout across both carts.
type Service struct {
	eat      *cart.EatCart
	market   *cart.MarketCart
	profiles profileCache
	orders   orderRecorder
	api      orderPlacer
	logg     *logger.Logger
	now      func() time.Time
	newKey   func() string
}

// NewService builds the checkout service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Eat == nil || params.Market == nil {
		return nil, fmt.Errorf("both carts required")
	}
	if params.Profiles == nil {
		return nil, fmt.Errorf("profile cache required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order history required")
	}
	if params.API == nil {
		return nil, fmt.Errorf("order api required")
	}
	svc := &Service{
		eat:      params.Eat,
		market:   params.Market,
		profiles: params.Profiles,
		orders:   params.Orders,
		api:      params.API,
		logg:     params.Logger,
		now:      params.Now,
		newKey:   params.NewKey,
	}
	if svc.logg == nil {
		svc.logg = logger.Nop()
	}
	if svc.now == nil {
		svc.now = time.Now
	}
	if svc.newKey == nil {
		svc.newKey = uuid.NewString
	}
	return svc, nil
}

// NewAttempt starts a checkout attempt for vertical with a fresh
// idempotency key.
func (s *Service) NewAttempt(vertical enums.Vertical) *Attempt {
	return &Attempt{
		IdempotencyKey: s.newKey(),
		Vertical:       vertical,
		StartedAt:      s.now(),
	}
}

// Summary prices the cart for vertical and prefills the customer details.
func (s *Service) Summary(ctx context.Context, vertical enums.Vertical) (Summary, error) {
	out := Summary{Vertical: vertical}
	switch vertical {
	case enums.VerticalEat:
		fillEat(&out, s.eat)
	case enums.VerticalMarket:
		fillMarket(&out, s.market)
	default:
		return Summary{}, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown vertical %q", vertical))
	}
	out.Total = out.Subtotal.Add(out.DeliveryFee)
	out.BelowMinimum = out.Subtotal.LessThan(out.Minimum)
	if out.BelowMinimum {
		out.Shortfall = out.Minimum.Sub(out.Subtotal)
	}
	if p, ok := s.profiles.Load(ctx); ok {
		out.Prefill = Prefill{Name: p.Name, Phone: p.Phone, Email: p.Email, Address: p.Address}
	}
	return out, nil
}

// Submit places the order for attempt. Empty and below-minimum carts are
// refused before any request is made. On success the order is remembered,
// the customer details are saved and the cart is cleared.
func (s *Service) Submit(ctx context.Context, attempt *Attempt, input Input) (*Result, error) {
	if attempt == nil || strings.TrimSpace(attempt.IdempotencyKey) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "checkout attempt required")
	}
	if attempt.Submitted() {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "checkout attempt already submitted").
			WithDetails(map[string]any{"order_id": attempt.OrderID})
	}
	summary, err := s.Summary(ctx, attempt.Vertical)
	if err != nil {
		return nil, err
	}
	if summary.Merchant == nil || summary.Items == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, errEmptyCart)
	}
	ctx = s.logg.WithMerchant(ctx, summary.Merchant.Slug)
	ctx = s.logg.WithVertical(ctx, string(attempt.Vertical))
	if summary.BelowMinimum {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, errBelowMinimum).
			WithDetails(map[string]any{
				"minimum":   summary.Minimum.StringFixed(2),
				"subtotal":  summary.Subtotal.StringFixed(2),
				"shortfall": summary.Shortfall.StringFixed(2),
			})
	}

	req := storeapi.PlaceOrderRequest{
		CustomerName:    strings.TrimSpace(input.CustomerName),
		CustomerPhone:   strings.TrimSpace(input.CustomerPhone),
		CustomerEmail:   strings.TrimSpace(input.CustomerEmail),
		DeliveryMethod:  input.DeliveryMethod,
		DeliveryAddress: strings.TrimSpace(input.DeliveryAddress),
		DeliverySlotID:  summary.DeliverySlotID,
		PaymentMethod:   input.PaymentMethod,
		Items:           summary.lines,
		Notes:           strings.TrimSpace(input.Notes),
		IdempotencyKey:  attempt.IdempotencyKey,
	}
	if req.DeliveryMethod == enums.DeliveryMethodPickup {
		req.DeliveryAddress = ""
	}
	order, err := s.api.PlaceOrder(ctx, summary.Merchant.Slug, req)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error_code", pkgerrors.CodeOf(err)), "order submission failed")
		return nil, err
	}
	ctx = s.logg.WithOrderID(ctx, order.ID)
	attempt.OrderID = order.ID

	entry := history.Entry{
		OrderID:          order.ID,
		OrderNumber:      order.OrderNumber,
		MerchantSlug:     summary.Merchant.Slug,
		MerchantName:     summary.Merchant.Name,
		TrackingToken:    order.TrackingToken,
		Total:            order.Total,
		DeliveryMethod:   req.DeliveryMethod,
		PaymentMethod:    req.PaymentMethod,
		Status:           order.Status,
		CreatedAt:        order.CreatedAt,
		EstimatedReadyAt: order.EstimatedReadyAt,
		ItemSummary:      summary.itemSummary,
	}
	if entry.Total.IsZero() {
		entry.Total = summary.TotalFor(req.DeliveryMethod)
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	if !s.orders.Add(ctx, entry) {
		s.logg.Warn(ctx, "placed order not recorded in history")
	}

	fields := profile.Fields{Name: &req.CustomerName, Phone: &req.CustomerPhone}
	if req.CustomerEmail != "" {
		fields.Email = &req.CustomerEmail
	}
	if req.DeliveryAddress != "" {
		fields.Address = &req.DeliveryAddress
	}
	if _, err := s.profiles.Save(ctx, fields); err != nil {
		s.logg.Warn(ctx, "customer details not saved")
	}

	s.clear(ctx, attempt.Vertical)
	s.logg.Info(ctx, "order placed")
	return &Result{Order: *order, Entry: entry}, nil
}

func (s *Service) clear(ctx context.Context, vertical enums.Vertical) {
	if vertical == enums.VerticalMarket {
		s.market.Clear(ctx)
		return
	}
	s.eat.Clear(ctx)
}

func fillEat(out *Summary, c *cart.EatCart) {
	if ref, ok := c.Merchant(); ok {
		out.Merchant = &ref
	}
	out.Items = c.TotalItems()
	out.Subtotal = c.TotalPrice()
	out.DeliveryFee = c.DeliveryFee()
	out.Minimum = c.MinimumOrder()
	parts := make([]string, 0)
	for _, item := range c.Items() {
		out.lines = append(out.lines, storeapi.OrderItem{
			ItemID:              item.ItemID,
			Quantity:            item.Quantity,
			Options:             item.Options,
			SpecialInstructions: item.SpecialInstructions,
		})
		parts = append(parts, fmt.Sprintf("%dx %s", item.Quantity, item.Name))
	}
	out.itemSummary = strings.Join(parts, ", ")
}

func fillMarket(out *Summary, c *cart.MarketCart) {
	if ref, ok := c.Merchant(); ok {
		out.Merchant = &ref
	}
	out.Items = c.TotalItems()
	out.Subtotal = c.TotalPrice()
	out.DeliveryFee = c.DeliveryFee()
	out.Minimum = c.MinimumOrder()
	if slot, ok := c.DeliverySlot(); ok {
		out.DeliverySlotID = slot
	}
	parts := make([]string, 0)
	for _, item := range c.Items() {
		line := storeapi.OrderItem{ItemID: item.ItemID, Quantity: item.Quantity}
		if !item.UnitType.IsPiece() && item.UnitQuantity != nil {
			uq := *item.UnitQuantity
			line.UnitQuantity = &uq
			parts = append(parts, fmt.Sprintf("%s %s %s", uq.String(), item.UnitType, item.Name))
		} else {
			parts = append(parts, fmt.Sprintf("%dx %s", item.Quantity, item.Name))
		}
		out.lines = append(out.lines, line)
	}
	out.itemSummary = strings.Join(parts, ", ")
}
