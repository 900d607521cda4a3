package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront/internal/cart"
	"github.com/angelmondragon/storefront/internal/checkout"
	"github.com/angelmondragon/storefront/internal/history"
	"github.com/angelmondragon/storefront/internal/profile"
	"github.com/angelmondragon/storefront/internal/retention"
	"github.com/angelmondragon/storefront/pkg/config"
	"github.com/angelmondragon/storefront/pkg/localstore"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/metrics"
	"github.com/angelmondragon/storefront/pkg/redis"
	"github.com/angelmondragon/storefront/pkg/security"
	"github.com/angelmondragon/storefront/pkg/storeapi"
)

// app is the composition root shared by every command.
type app struct {
	cfg      *config.Config
	logg     *logger.Logger
	store    *localstore.Store
	redis    *redis.Client
	registry *prometheus.Registry
	api      *storeapi.Client
	profiles *profile.Cache
	orders   *history.Cache
	eat      *cart.EatCart
	market   *cart.MarketCart
	checkout *checkout.Service
	sweeper  *retention.Service
	closers  []io.Closer
}

func newApp(ctx context.Context, cfg *config.Config, logg *logger.Logger) (*app, error) {
	a := &app{cfg: cfg, logg: logg, registry: prometheus.NewRegistry()}

	backend, err := a.openBackend(ctx)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.store = localstore.New(backend, localstore.Options{Prefix: cfg.Storage.Prefix, Logger: logg})

	a.api, err = storeapi.NewClient(cfg.API.BaseURL,
		storeapi.WithTimeout(cfg.API.Timeout),
		storeapi.WithUserAgent(cfg.API.UserAgent),
	)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	fieldCipher, err := security.NewFieldCipher(
		security.Passphrase(cfg.Profile.InstallSalt, security.LocalFingerprint()),
		cfg.Profile.KDFIterations,
	)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.profiles, err = profile.NewCache(a.store, fieldCipher, profile.Options{
		Retention:       cfg.Profile.Retention,
		LegacyRetention: cfg.Profile.LegacyRetention,
		Logger:          logg,
	})
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	a.orders, err = history.NewCache(ctx, a.store, history.Options{
		MaxEntries:    cfg.History.MaxEntries,
		Retention:     cfg.History.Retention,
		TokenValidity: cfg.History.TokenValidity,
		Logger:        logg,
	})
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	cartOpts := cart.Options{Logger: logg}
	a.eat = cart.NewEatCart(ctx, a.store, cartOpts)
	a.market = cart.NewMarketCart(ctx, a.store, cart.MarketOptions{
		Options:       cartOpts,
		MaxLines:      cfg.Cart.MarketMaxLines,
		MaxQtyPerLine: cfg.Cart.MarketMaxQtyPerLine,
	})

	a.checkout, err = checkout.NewService(checkout.ServiceParams{
		Eat:      a.eat,
		Market:   a.market,
		Profiles: a.profiles,
		Orders:   a.orders,
		API:      a.api,
		Logger:   logg,
	})
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	var lock retention.Lock
	if a.redis != nil {
		lock, err = retention.NewRedisLock(a.redis, a.redis.LockKey("retention"), cfg.Retention.LockTTL)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
	}
	a.sweeper, err = retention.NewService(retention.ServiceParams{
		Store:         a.store,
		Profiles:      a.profiles,
		Orders:        a.orders,
		Lock:          lock,
		Metrics:       metrics.NewJobMetrics(a.registry),
		Logger:        logg,
		RunInterval:   cfg.Retention.RunInterval,
		CheckInterval: cfg.Retention.CheckInterval,
	})
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) openBackend(ctx context.Context) (localstore.Backend, error) {
	switch strings.ToLower(a.cfg.Storage.Backend) {
	case config.StorageBackendMemory:
		return localstore.NewMemoryBackend(a.cfg.Storage.QuotaBytes), nil
	case config.StorageBackendBolt:
		b, err := localstore.OpenBolt(a.cfg.Storage.BoltPath)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, b)
		return b, nil
	case config.StorageBackendRedis:
		client, err := redis.New(ctx, a.cfg.Redis, a.logg)
		if err != nil {
			return nil, fmt.Errorf("bootstrap redis: %w", err)
		}
		a.redis = client
		a.closers = append(a.closers, client)
		return localstore.NewRedisBackend(client), nil
	case config.StorageBackendSQL:
		b, err := localstore.OpenSQL(a.cfg.Storage.SQLDriver, a.cfg.Storage.SQLDSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, b)
		return b, nil
	}
	return nil, fmt.Errorf("unsupported storage backend %q", a.cfg.Storage.Backend)
}

// Close releases the storage backend.
func (a *app) Close() error {
	var err error
	for i := len(a.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, a.closers[i].Close())
	}
	a.closers = nil
	return err
}
