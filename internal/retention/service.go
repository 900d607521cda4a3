// Package retention runs the periodic expiry sweep over the locally cached
// profile and order history, and serves data export and erasure requests.
package retention

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/storefront/internal/history"
	"github.com/angelmondragon/storefront/internal/profile"
	"github.com/angelmondragon/storefront/pkg/localstore"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/metrics"
	"go.uber.org/multierr"
)

const (
	metadataKey = "retention:meta"

	DefaultRunInterval   = 24 * time.Hour
	DefaultCheckInterval = time.Hour
)

type profileCache interface {
	profilePurger
	Load(ctx context.Context) (*profile.Profile, bool)
	AgeInDays(ctx context.Context) (int, bool)
	Clear(ctx context.Context)
}

type orderHistory interface {
	historyCleaner
	All() []history.Entry
	Count() int
	Statistics() history.Stats
	Clear(ctx context.Context)
}

// Metadata is persisted between runs.
type Metadata struct {
	LastRunAt   time.Time      `json:"last_run_at"`
	Runs        int            `json:"runs"`
	LastRemoved map[string]int `json:"last_removed,omitempty"`
}

// Report describes one retention run.
type Report struct {
	StartedAt time.Time      `json:"started_at"`
	Duration  time.Duration  `json:"duration"`
	Removed   map[string]int `json:"removed"`
	Skipped   bool           `json:"skipped"`
}

// Stats is the retention status shown to the customer.
type Stats struct {
	LastRunAt      *time.Time    `json:"last_run_at,omitempty"`
	NextRunAt      *time.Time    `json:"next_run_at,omitempty"`
	Due            bool          `json:"due"`
	ProfileStored  bool          `json:"profile_stored"`
	ProfileAgeDays int           `json:"profile_age_days"`
	Orders         history.Stats `json:"orders"`
	StorageBytes   int64         `json:"storage_bytes"`
	StorageHuman   string        `json:"storage_human"`
}

// ServiceParams configure the retention service.
type ServiceParams struct {
	Store         *localstore.Store
	Profiles      profileCache
	Orders        orderHistory
	Registry      *Registry
	Lock          Lock
	Metrics       *metrics.JobMetrics
	Logger        *logger.Logger
	RunInterval   time.Duration
	CheckInterval time.Duration
	Now           func() time.Time
}

// Service sweeps expired local data at most once per run interval.
type Service struct {
	store         *localstore.Store
	profiles      profileCache
	orders        orderHistory
	registry      *Registry
	lock          Lock
	metrics       *metrics.JobMetrics
	logg          *logger.Logger
	runInterval   time.Duration
	checkInterval time.Duration
	now           func() time.Time
}

// NewService builds the retention service. Without an explicit registry the
// profile and order history sweeps are registered.
func NewService(params ServiceParams) (*Service, error) {
	if params.Store == nil {
		return nil, fmt.Errorf("local store required")
	}
	if params.Profiles == nil {
		return nil, fmt.Errorf("profile cache required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order history required")
	}
	registry := params.Registry
	if registry == nil {
		profileJob, err := NewProfileExpiryJob(params.Profiles)
		if err != nil {
			return nil, err
		}
		historyJob, err := NewHistoryExpiryJob(params.Orders)
		if err != nil {
			return nil, err
		}
		if registry, err = NewRegistry(profileJob, historyJob); err != nil {
			return nil, err
		}
	}
	lock := params.Lock
	if lock == nil {
		lock = &LocalLock{}
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	runInterval := params.RunInterval
	if runInterval <= 0 {
		runInterval = DefaultRunInterval
	}
	checkInterval := params.CheckInterval
	if checkInterval <= 0 {
		checkInterval = DefaultCheckInterval
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		store:         params.Store,
		profiles:      params.Profiles,
		orders:        params.Orders,
		registry:      registry,
		lock:          lock,
		metrics:       params.Metrics,
		logg:          logg,
		runInterval:   runInterval,
		checkInterval: checkInterval,
		now:           now,
	}, nil
}

// ShouldRun reports whether a sweep is due: never run, or at least one run
// interval since the last one.
func (s *Service) ShouldRun(ctx context.Context) bool {
	meta, ok := s.metadata(ctx)
	if !ok || meta.LastRunAt.IsZero() {
		return true
	}
	return s.now().Sub(meta.LastRunAt) >= s.runInterval
}

// Run sweeps every registered job and stamps the run time. Running twice in a
// row is safe; the second run removes nothing.
func (s *Service) Run(ctx context.Context) (Report, error) {
	locked, err := s.lock.Acquire(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("lock acquire: %w", err)
	}
	if !locked {
		s.logg.Info(ctx, "another retention run is in progress; skipping")
		return Report{Skipped: true}, nil
	}
	defer func() {
		if relErr := s.lock.Release(ctx); relErr != nil {
			s.logg.Error(ctx, "failed to release retention lock", relErr)
		}
	}()

	report := Report{StartedAt: s.now(), Removed: map[string]int{}}
	var runErr error
	for _, job := range s.registry.Jobs() {
		removed, err := s.runJob(ctx, job)
		report.Removed[job.Name()] = removed
		runErr = multierr.Append(runErr, err)
	}
	report.Duration = s.now().Sub(report.StartedAt)

	meta, _ := s.metadata(ctx)
	meta.LastRunAt = report.StartedAt
	meta.Runs++
	meta.LastRemoved = report.Removed
	if !s.store.Set(ctx, metadataKey, meta) {
		s.logg.Debug(ctx, "retention metadata not persisted")
	}
	return report, runErr
}

// ForceRun sweeps regardless of when the last run happened.
func (s *Service) ForceRun(ctx context.Context) (Report, error) {
	return s.Run(s.logg.WithField(ctx, "forced", true))
}

// AutoRunIfDue runs the sweep only when ShouldRun says so.
func (s *Service) AutoRunIfDue(ctx context.Context) (Report, bool, error) {
	if !s.ShouldRun(ctx) {
		return Report{}, false, nil
	}
	report, err := s.Run(ctx)
	return report, !report.Skipped, err
}

// Loop checks for a due sweep on every check interval until ctx is done.
func (s *Service) Loop(ctx context.Context) error {
	s.autoRun(ctx)
	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "retention loop stopped")
			return ctx.Err()
		case <-ticker.C:
			s.autoRun(ctx)
		}
	}
}

func (s *Service) autoRun(ctx context.Context) {
	if _, _, err := s.AutoRunIfDue(ctx); err != nil {
		s.logg.Error(ctx, "scheduled retention run failed", err)
	}
}

// Stats reports when the sweep ran and what is stored locally.
func (s *Service) Stats(ctx context.Context) Stats {
	stats := Stats{
		Due:          s.ShouldRun(ctx),
		Orders:       s.orders.Statistics(),
		StorageBytes: s.store.SizeBytes(ctx),
	}
	stats.StorageHuman = localstore.FormatBytes(stats.StorageBytes)
	if meta, ok := s.metadata(ctx); ok && !meta.LastRunAt.IsZero() {
		last := meta.LastRunAt
		next := last.Add(s.runInterval)
		stats.LastRunAt, stats.NextRunAt = &last, &next
	}
	if age, ok := s.profiles.AgeInDays(ctx); ok {
		stats.ProfileStored = true
		stats.ProfileAgeDays = age
	}
	return stats
}

// EraseAll forgets the profile, the order history and the retention
// metadata, then checks that nothing is left behind.
func (s *Service) EraseAll(ctx context.Context) error {
	s.profiles.Clear(ctx)
	s.orders.Clear(ctx)
	s.store.Remove(ctx, metadataKey)

	var err error
	if _, ok := s.profiles.Load(ctx); ok {
		err = multierr.Append(err, errors.New("customer profile still present after erase"))
	}
	if n := s.orders.Count(); n > 0 {
		err = multierr.Append(err, fmt.Errorf("%d orders still present after erase", n))
	}
	if s.store.Has(ctx, metadataKey) {
		err = multierr.Append(err, errors.New("retention metadata still present after erase"))
	}
	if err == nil {
		s.logg.Info(ctx, "local customer data erased")
	}
	return err
}

func (s *Service) runJob(ctx context.Context, job Job) (int, error) {
	jobCtx := s.logg.WithField(ctx, "job", job.Name())
	jobCtx = s.logg.WithField(jobCtx, "event", "retention.job")
	start := time.Now()
	removed, err := job.Run(jobCtx)
	duration := time.Since(start)
	s.metrics.ObserveDuration(job.Name(), duration)
	jobCtx = s.logg.WithFields(jobCtx, map[string]any{"duration_ms": duration.Milliseconds(), "removed": removed})
	if err != nil {
		s.logg.Error(jobCtx, "retention job failed", err)
		s.metrics.IncFailure(job.Name())
		return removed, fmt.Errorf("%s: %w", job.Name(), err)
	}
	s.logg.Debug(jobCtx, "retention job completed")
	s.metrics.IncSuccess(job.Name())
	s.metrics.AddExpired(job.Name(), removed)
	return removed, nil
}

func (s *Service) metadata(ctx context.Context) (Metadata, bool) {
	return localstore.Get[Metadata](ctx, s.store, metadataKey)
}
