// Package tracking keeps cached order statuses in step with the order
// service. It polls every non-terminal order on a fixed interval and backs
// off as a whole when the service rate limits.
package tracking

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/angelmondragon/storefront/internal/history"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/metrics"
	"github.com/angelmondragon/storefront/pkg/storeapi"
)

const (
	DefaultInterval     = 30 * time.Second
	DefaultStartupDelay = 5 * time.Second
	DefaultMinBackoff   = 30 * time.Second
	DefaultMaxBackoff   = 10 * time.Minute
)

type orderSource interface {
	Reload(ctx context.Context)
	Active() []history.Entry
	UpdatePartial(ctx context.Context, orderID string, p history.Patch) bool
}

type orderFetcher interface {
	GetOrder(ctx context.Context, orderID, token string) (*storeapi.Order, error)
}

// Options configures a Poller.
type Options struct {
	Interval     time.Duration
	StartupDelay time.Duration
	MinBackoff   time.Duration
	MaxBackoff   time.Duration
	Logger       *logger.Logger
	Metrics      *metrics.PollerMetrics
	Now          func() time.Time
}

// Result describes one polling round.
type Result struct {
	Suspended   bool
	Checked     int
	Updated     int
	NotFound    int
	Failed      int
	RateLimited bool
}

// Poller reconciles cached order statuses with the order service.
type Poller struct {
	orders       orderSource
	api          orderFetcher
	interval     time.Duration
	startupDelay time.Duration
	minBackoff   time.Duration
	maxBackoff   time.Duration
	logg         *logger.Logger
	metrics      *metrics.PollerMetrics
	now          func() time.Time

	mu             sync.Mutex
	backoff        time.Duration
	suspendedUntil time.Time
}

// NewPoller builds a poller over the order history and the API client.
func NewPoller(orders orderSource, api orderFetcher, opts Options) (*Poller, error) {
	if orders == nil {
		return nil, errors.New("order source is required")
	}
	if api == nil {
		return nil, errors.New("order api is required")
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.StartupDelay < 0 {
		opts.StartupDelay = 0
	}
	if opts.MinBackoff <= 0 {
		opts.MinBackoff = DefaultMinBackoff
	}
	if opts.MaxBackoff < opts.MinBackoff {
		opts.MaxBackoff = max(DefaultMaxBackoff, opts.MinBackoff)
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Poller{
		orders:       orders,
		api:          api,
		interval:     opts.Interval,
		startupDelay: opts.StartupDelay,
		minBackoff:   opts.MinBackoff,
		maxBackoff:   opts.MaxBackoff,
		logg:         opts.Logger,
		metrics:      opts.Metrics,
		now:          opts.Now,
	}, nil
}

// Run waits out the startup delay, then polls on every interval tick until
// ctx is cancelled. Cancelling ctx stops the delay and the ticker together.
func (p *Poller) Run(ctx context.Context) error {
	if err := sleep(ctx, p.startupDelay); err != nil {
		return err
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			p.logg.Info(ctx, "order status poller stopped")
			return ctx.Err()
		case <-ticker.C:
			p.Tick(ctx)
		}
	}
}

// Tick re-reads the persisted history and runs one polling round over the
// orders that are active right now. While a backoff window is open the round
// is skipped entirely.
func (p *Poller) Tick(ctx context.Context) Result {
	if until, suspended := p.suspended(); suspended {
		p.logg.Debug(p.logg.WithField(ctx, "resume_at", until), "order status polling suspended")
		return Result{Suspended: true}
	}

	p.orders.Reload(ctx)

	var res Result
	now := p.now()
	for _, entry := range p.orders.Active() {
		if ctx.Err() != nil {
			return res
		}
		if entry.TrackingToken == "" || !now.Before(entry.TokenExpiresAt) {
			continue
		}
		res.Checked++

		orderCtx := p.logg.WithOrderID(ctx, entry.OrderID)
		order, err := p.api.GetOrder(orderCtx, entry.OrderID, entry.TrackingToken)
		switch {
		case err == nil:
		case pkgerrors.IsCode(err, pkgerrors.CodeRateLimit):
			res.RateLimited = true
			p.metrics.IncPoll(metrics.PollOutcomeRateLimited)
			p.enterBackoff(orderCtx, pkgerrors.RetryAfter(err))
			return res
		case pkgerrors.IsCode(err, pkgerrors.CodeNotFound):
			res.NotFound++
			p.metrics.IncPoll(metrics.PollOutcomeNotFound)
			p.logg.Debug(orderCtx, "order not found upstream; skipped")
			continue
		default:
			res.Failed++
			p.metrics.IncPoll(metrics.PollOutcomeError)
			p.logg.Warn(p.logg.WithField(orderCtx, "error", err.Error()), "order status lookup failed")
			continue
		}

		if p.apply(orderCtx, entry, order) {
			res.Updated++
			p.metrics.IncPoll(metrics.PollOutcomeChanged)
		} else {
			p.metrics.IncPoll(metrics.PollOutcomeUnchanged)
		}
	}

	p.resetBackoff()
	p.metrics.IncRound()
	return res
}

// Backoff returns the current backoff window; zero when polling normally.
func (p *Poller) Backoff() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.backoff
}

func (p *Poller) apply(ctx context.Context, entry history.Entry, order *storeapi.Order) bool {
	if order == nil || !order.Status.IsValid() || order.Status == entry.Status {
		return false
	}
	status := order.Status
	patch := history.Patch{Status: &status}
	if order.EstimatedReadyAt != nil {
		patch.EstimatedReadyAt = order.EstimatedReadyAt
	}
	if !p.orders.UpdatePartial(ctx, entry.OrderID, patch) {
		return false
	}
	p.logg.Info(p.logg.WithFields(ctx, map[string]any{
		"from_status": entry.Status,
		"to_status":   status,
	}), "order status updated")
	return true
}

func (p *Poller) suspended() (time.Time, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.suspendedUntil, p.now().Before(p.suspendedUntil)
}

func (p *Poller) enterBackoff(ctx context.Context, retryAfter time.Duration) {
	p.mu.Lock()
	p.backoff = nextBackoff(p.backoff, p.minBackoff, p.maxBackoff)
	if retryAfter > p.backoff {
		p.backoff = min(retryAfter, p.maxBackoff)
	}
	p.suspendedUntil = p.now().Add(p.backoff)
	backoff := p.backoff
	p.mu.Unlock()

	p.metrics.SetBackoff(backoff)
	p.logg.Warn(p.logg.WithField(ctx, "backoff", backoff.String()), "order service rate limited; polling suspended")
}

func (p *Poller) resetBackoff() {
	p.mu.Lock()
	p.backoff = 0
	p.suspendedUntil = time.Time{}
	p.mu.Unlock()
	p.metrics.SetBackoff(0)
}

// nextBackoff doubles current within [min, max]; the first window is min.
func nextBackoff(current, min, max time.Duration) time.Duration {
	next := current * 2
	if next < min {
		return min
	}
	if next > max {
		return max
	}
	return next
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
