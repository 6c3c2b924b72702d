package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/honeycombio/otel-config-go/otelconfig"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/punchamoorthee/bankportal/internal/api"
	"github.com/punchamoorthee/bankportal/internal/config"
	"github.com/punchamoorthee/bankportal/internal/logging"
	"github.com/punchamoorthee/bankportal/internal/pagination"
	"github.com/punchamoorthee/bankportal/internal/query"
	"github.com/punchamoorthee/bankportal/internal/service"
	"github.com/punchamoorthee/bankportal/internal/store"
)

const (
	serviceName     = "bankportal"
	shutdownTimeout = 15 * time.Second
)

func main() {
	if err := run(); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.New(os.Stdout, cfg.Log)
	slog.SetDefault(logger)
	logger.Info("starting", "config", cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.OtelEnabled {
		shutdown, err := otelconfig.ConfigureOpenTelemetry(otelconfig.WithServiceName(serviceName))
		if err != nil {
			return fmt.Errorf("opentelemetry: %w", err)
		}
		defer shutdown()
	}

	db, err := store.New(cfg.DBSource, cfg.Pool.PoolConfig(), cfg.OtelEnabled, logger)
	if err != nil {
		return err
	}
	if cfg.MigrateOnStart {
		if err := db.Migrate(ctx); err != nil {
			return err
		}
	}
	if err := db.Start(ctx); err != nil {
		return err
	}
	defer db.Close()
	prometheus.MustRegister(db.Pool())

	resolver, err := query.NewResolver(query.Postgres())
	if err != nil {
		return err
	}
	calc, err := pagination.New(cfg.Paging.DisplayedPages)
	if err != nil {
		return err
	}

	// Initialize Layers
	coordinator := service.NewCoordinator(db, resolver, logger)
	lister := service.NewLister(db, resolver, calc, service.PageDefaults{
		Page:    cfg.Paging.DefaultPage,
		Size:    cfg.Paging.DefaultPageSize,
		MaxSize: cfg.Paging.MaxPageSize,
	}, logger)
	admin := service.NewAdmin(db, resolver, logger)
	handler := api.NewHandler(coordinator, lister, admin, db, logger)

	var h http.Handler = handler.Routes()
	if cfg.OtelEnabled {
		h = otelhttp.NewHandler(h, serviceName)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "port", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
