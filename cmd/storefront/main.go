package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/angelmondragon/storefront/pkg/config"
	"github.com/angelmondragon/storefront/pkg/logger"
)

var (
	// Version information (set via ldflags during build)
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if current != nil {
		if closeErr := current.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "storefront",
	Short: "Local storefront core: carts, profile, order history and tracking",
	Long: `storefront keeps a customer's carts, contact details and order history
on this device, places orders against the storefront API and keeps the
order history fresh in the background.`,
	Version:           Version,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: bootstrap,
}

var current *app

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("storefront %s (%s)\n", Version, Commit))
	rootCmd.PersistentFlags().String("backend", "", "storage backend override (memory, bolt, redis, sql)")
	rootCmd.PersistentFlags().Bool("json", false, "print results as JSON")
}

func bootstrap(cmd *cobra.Command, _ []string) error {
	logg := logger.New(logger.Options{ServiceName: "storefront"})
	if err := godotenv.Load(); err != nil {
		logg.Debug(cmd.Context(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if backend, _ := cmd.Flags().GetString("backend"); backend != "" {
		cfg.Storage.Backend = backend
	}

	logg = logger.New(logger.Options{
		ServiceName: "storefront",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	a, err := newApp(cmd.Context(), cfg, logg)
	if err != nil {
		return err
	}
	current = a
	return nil
}
