package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	httpdelivery "perp-autotrader/internal/delivery/http"
	"perp-autotrader/internal/delivery/websocket"
	"perp-autotrader/internal/usecase"
)

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler and the control API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, *configPath)
		},
	}
}

func serve(ctx context.Context, configPath string) error {
	a, err := loadApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.Close()
	log := a.log

	if err := a.exchange.TestConnection(ctx); err != nil {
		log.Error().Err(err).Msg("exchange connection check failed")
	} else {
		log.Info().Msg("✅ Exchange credentials verified")
	}

	a.engine.Start(ctx)
	defer a.engine.Stop()

	dashboard := websocket.NewHandler(a.engine, a.cfg.Server.StatusInterval, log)
	a.engine.Notifier.Add(dashboard)

	router := httpdelivery.NewRouter(httpdelivery.RouterDeps{
		Engine:    a.engine,
		Tokens:    a.tokens,
		Dashboard: dashboard.Handle,
		Metrics:   promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}),
	})
	srv := &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       a.cfg.Server.ReadTimeout,
		WriteTimeout:      a.cfg.Server.WriteTimeout,
	}

	scheduler := usecase.NewScheduler(log, a.engine.Tasks(a.cfg.SchedulerIntervals())...)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := scheduler.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Bool("autoTrade", a.engine.Orchestrator.Enabled()).Msg("🚀 Server executing")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	log.Info().Msg("shutdown complete")
	return err
}
