// Package storeapi is the HTTP client for the remote order and catalog
// service. Parameters are validated before any request is made, and every
// failure is classified into a pkg/errors code at this boundary.
package storeapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
)

const (
	defaultTimeout              = 10 * time.Second
	defaultUserAgent            = "storefront"
	responseBodyReadLimit int64 = 1024
)

var errBaseURLRequired = errors.New("store api base url is required")

// Client talks to the order and catalog service.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	now        func() time.Time
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeout sets the timeout on the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimSpace(ua); trimmed != "" {
			c.userAgent = trimmed
		}
	}
}

// NewClient builds a client rooted at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, errBaseURLRequired
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("parse store api base url: %w", err)
	}

	client := &Client{
		baseURL:    trimmed,
		userAgent:  defaultUserAgent,
		httpClient: &http.Client{Timeout: defaultTimeout},
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// ListNearby returns businesses within query.RadiusKm of a point.
func (c *Client) ListNearby(ctx context.Context, query NearbyQuery) ([]Business, error) {
	if err := validateStruct(query); err != nil {
		return nil, err
	}
	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(query.Latitude, 'f', -1, 64))
	params.Set("lng", strconv.FormatFloat(query.Longitude, 'f', -1, 64))
	params.Set("radius", strconv.FormatFloat(query.RadiusKm, 'f', -1, 64))
	if query.Vertical != "" {
		params.Set("vertical", query.Vertical.String())
	}

	var out struct {
		Businesses []Business `json:"businesses"`
	}
	if err := c.do(ctx, http.MethodGet, "businesses", params, nil, &out, "list nearby businesses"); err != nil {
		return nil, err
	}
	return out.Businesses, nil
}

// GetBusiness fetches one merchant.
func (c *Client) GetBusiness(ctx context.Context, slug string) (*Business, error) {
	if err := validateSlug(slug); err != nil {
		return nil, err
	}
	var out Business
	if err := c.do(ctx, http.MethodGet, "businesses/"+url.PathEscape(slug), nil, nil, &out, "get business"); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetMenu fetches a merchant with its categorised items.
func (c *Client) GetMenu(ctx context.Context, slug string) (*Menu, error) {
	if err := validateSlug(slug); err != nil {
		return nil, err
	}
	var out Menu
	if err := c.do(ctx, http.MethodGet, "businesses/"+url.PathEscape(slug)+"/menu", nil, nil, &out, "get menu"); err != nil {
		return nil, err
	}
	return &out, nil
}

// PlaceOrder submits an order to slug.
func (c *Client) PlaceOrder(ctx context.Context, slug string, req PlaceOrderRequest) (*Order, error) {
	if err := validateSlug(slug); err != nil {
		return nil, err
	}
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	var out Order
	if err := c.do(ctx, http.MethodPost, "businesses/"+url.PathEscape(slug)+"/orders", nil, req, &out, "place order"); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetOrder fetches the current state of an order using its tracking token.
func (c *Client) GetOrder(ctx context.Context, orderID, token string) (*Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if strings.TrimSpace(token) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tracking token is required")
	}
	params := url.Values{}
	params.Set("token", token)

	var out Order
	if err := c.do(ctx, http.MethodGet, "orders/"+url.PathEscape(orderID), params, nil, &out, "get order"); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListDeliverySlots returns the delivery windows of slug on date (YYYY-MM-DD).
func (c *Client) ListDeliverySlots(ctx context.Context, slug, date string) ([]DeliverySlot, error) {
	if err := validateSlug(slug); err != nil {
		return nil, err
	}
	if err := validateDate(date); err != nil {
		return nil, err
	}
	params := url.Values{}
	params.Set("date", date)

	var out struct {
		Slots []DeliverySlot `json:"slots"`
	}
	if err := c.do(ctx, http.MethodGet, "businesses/"+url.PathEscape(slug)+"/delivery-slots", params, nil, &out, "list delivery slots"); err != nil {
		return nil, err
	}
	return out.Slots, nil
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, body, dest any, op string) error {
	if c == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "store api client not configured")
	}

	target := c.buildURL(path)
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal "+op+" request")
		}
		reader = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build "+op+" request")
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute "+op+" request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.classify(resp, op)
	}
	if dest == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode "+op+" response")
	}
	return nil
}

func (c *Client) classify(resp *http.Response, op string) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
	cause := fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))

	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"), c.now())
		return pkgerrors.Wrap(pkgerrors.CodeRateLimit, cause, op+" rate limited").
			WithRetryAfter(retryAfter).
			WithDetails(map[string]any{"retry_after_seconds": int(retryAfter.Seconds())})
	case http.StatusNotFound:
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, cause, op+": not found")
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return pkgerrors.Wrap(pkgerrors.CodeValidation, cause, op+" rejected")
	case http.StatusConflict:
		return pkgerrors.Wrap(pkgerrors.CodeConflict, cause, op+" conflict")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, cause, op+" request failed")
}

// parseRetryAfter accepts either delta-seconds or an HTTP date.
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil && at.After(now) {
		return at.Sub(now)
	}
	return 0
}

func (c *Client) buildURL(path string) string {
	return fmt.Sprintf("%s/%s", c.baseURL, strings.TrimLeft(path, "/"))
}
