package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dkeye/Relay/internal/adapters/credentials"
	"github.com/dkeye/Relay/internal/adapters/geo"
	router "github.com/dkeye/Relay/internal/adapters/http"
	wssignal "github.com/dkeye/Relay/internal/adapters/signal"
	"github.com/dkeye/Relay/internal/adapters/store"
	"github.com/dkeye/Relay/internal/app"
	"github.com/dkeye/Relay/internal/app/orch"
	"github.com/dkeye/Relay/internal/config"
	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/observability"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Error().Err(err).Msg("relay stopped")
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "relay",
		Short:         "Presence, chat and call signaling relay over WebSocket",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd)
		},
	}
	f := cmd.Flags()
	f.Int("port", 0, "listen port (env PORT)")
	f.Int64("max_message_size", 0, "max inbound frame size in bytes (env MAX_MESSAGE_SIZE)")
	f.String("mode", "", "gin mode: debug or release")
	f.String("log_level", "", "zerolog level")
	f.String("admin_file", "", "TOML file with admin credentials")
	f.String("slow_consumer", "", "slow consumer policy: drop or kick")
	f.Duration("call_timeout", 0, "ring timeout")
	f.Bool("region_check", true, "refuse calls between different known countries")
	f.Bool("geo_enabled", true, "resolve client country with the geo endpoint")
	return cmd
}

func run(cmd *cobra.Command) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Early logger so config.Load can report.
	observability.InitLogger("debug", "info")

	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	observability.InitLogger(cfg.Mode, cfg.LogLevel)
	observability.RegisterMetrics()

	policy, err := app.PolicyByName(cfg.SlowConsumer)
	if err != nil {
		return err
	}
	admins, err := credentials.Load(cfg.AdminFile)
	if err != nil {
		return fmt.Errorf("load admins: %w", err)
	}
	var locator core.GeoLocator = geo.Disabled{}
	if cfg.GeoEnabled {
		locator = geo.NewIPAPI(cfg.GeoEndpoint, cfg.GeoTimeout)
	}

	o := orch.New(orch.Options{
		Policy:      policy,
		CallTimeout: cfg.CallTimeout,
		RegionCheck: cfg.RegionCheck,
		Store:       store.NewMemory(),
		Geo:         locator,
		Creds:       admins,
	})
	ctrl := wssignal.NewSignalWSController(o, cfg)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router.SetupRouter(cfg, o, ctrl),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("Relay server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.DrainTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
		ctrl.Drain(shutdownCtx)
		o.Calls.Stop()
		log.Info().Msg("Server exited gracefully")
		return nil
	})
	return g.Wait()
}
