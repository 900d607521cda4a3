package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/storefront/api/controllers"
	"github.com/angelmondragon/storefront/api/routes"
	"github.com/angelmondragon/storefront/internal/tracking"
	"github.com/angelmondragon/storefront/pkg/instance"
	"github.com/angelmondragon/storefront/pkg/metrics"
)

const shutdownTimeout = 5 * time.Second

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Keep order statuses fresh and expire old data in the background",
	Long: `Run the order status poller and the retention sweep until interrupted,
and serve /health/live, /health/ready and /metrics on the ops address.

The bolt backend locks its file while the worker runs, so other storefront
commands cannot open it. Run the worker on the redis or sql backend when the
CLI must be used alongside it; those backends share order history safely.`,
	RunE: runWorker,
}

func init() {
	workerCmd.Flags().String("listen", "", "ops listen address override")
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, _ []string) error {
	a := current
	logg := a.logg

	poller, err := tracking.NewPoller(a.orders, a.api, tracking.Options{
		Interval:     a.cfg.Tracking.Interval,
		StartupDelay: a.cfg.Tracking.StartupDelay,
		MinBackoff:   a.cfg.Tracking.MinBackoff,
		MaxBackoff:   a.cfg.Tracking.MaxBackoff,
		Logger:       logg,
		Metrics:      metrics.NewPollerMetrics(a.registry),
	})
	if err != nil {
		return err
	}

	addr := a.cfg.Ops.ListenAddr
	if v, _ := cmd.Flags().GetString("listen"); v != "" {
		addr = v
	}
	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(a.cfg, logg, a.registry, a.readinessChecks()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx := logg.WithFields(cmd.Context(), map[string]any{
		"env":      a.cfg.App.Env,
		"backend":  a.cfg.Storage.Backend,
		"addr":     addr,
		"instance": instance.GetID(),
	})
	logg.Info(ctx, "starting storefront worker")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return poller.Run(gctx) })
	g.Go(func() error { return a.sweeper.Loop(gctx) })
	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "storefront worker stopped unexpectedly", err)
		return err
	}
	logg.Info(ctx, "storefront worker shutting down gracefully")
	return nil
}

const probeKey = "health:probe"

func (a *app) readinessChecks() map[string]controllers.Pinger {
	checks := map[string]controllers.Pinger{
		"storage": controllers.PingFunc(func(ctx context.Context) error {
			if !a.store.Set(ctx, probeKey, time.Now().Unix()) {
				return errors.New("local store rejected a write")
			}
			a.store.Remove(ctx, probeKey)
			return nil
		}),
	}
	if a.redis != nil {
		checks["redis"] = a.redis
	}
	return checks
}
