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

	"github.com/labstack/echo/v4"
	echoMw "github.com/labstack/echo/v4/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/event-ticketing/internal/clock"
	"github.com/iliyamo/event-ticketing/internal/config"
	"github.com/iliyamo/event-ticketing/internal/database"
	"github.com/iliyamo/event-ticketing/internal/handler"
	"github.com/iliyamo/event-ticketing/internal/middleware"
	"github.com/iliyamo/event-ticketing/internal/notify"
	"github.com/iliyamo/event-ticketing/internal/router"
	"github.com/iliyamo/event-ticketing/internal/scheduler"
	"github.com/iliyamo/event-ticketing/internal/service"
)

func main() {
	cfg := config.Load()
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func newLogger(cfg config.Config) *slog.Logger {
	if cfg.IsProd() {
		return slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg.DB)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := database.Migrate(ctx, db); err != nil {
		return err
	}

	var notifier notify.Notifier = notify.LogNotifier{Logger: logger}
	if cfg.RabbitURL != "" {
		pub := notify.NewPublisher(cfg.RabbitURL, cfg.NotifyQueue, logger)
		defer pub.Close()
		notifier = pub
	}
	renderer, err := notify.NewRenderer(cfg.BaseURL)
	if err != nil {
		return err
	}

	clk := clock.Real()
	timers := scheduler.NewTimers(clk, logger)
	defer timers.Stop()

	svc, err := service.New(service.Deps{
		DB:       db,
		Clock:    clk,
		Timers:   timers,
		Notifier: notifier,
		Renderer: renderer,
		Logger:   logger,
		Options: service.Options{
			OfferTTL:      cfg.OfferTTL,
			PendingTTL:    cfg.PendingTTL,
			NotifyTimeout: cfg.NotifyTimeout,
		},
	})
	if err != nil {
		return err
	}
	if err := svc.Recover(ctx); err != nil {
		return err
	}
	sweeper := scheduler.NewSweeper(svc, clk, cfg.OfferSweepInterval, cfg.TxSweepInterval, logger)

	opts := router.Options{JWTSecret: cfg.JWTSecret, Metrics: cfg.MetricsEnabled}
	if rdb := config.NewRedisClient(ctx); rdb != nil {
		defer rdb.Close()
		opts.RateLimit = middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)
		opts.Cache = middleware.NewRedisCache(config.LoadCacheConfig(), rdb)
	} else {
		logger.Warn("redis unavailable, rate limiting and caching disabled")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echoMw.RequestLoggerWithConfig(echoMw.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v echoMw.RequestLoggerValues) error {
			attrs := []any{"method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency}
			if v.Error != nil {
				attrs = append(attrs, "error", v.Error)
			}
			logger.Info("request", attrs...)
			return nil
		},
	}))
	e.Use(echoMw.Recover())
	router.Register(e, handler.New(svc, logger), opts)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sweeper.Run(ctx) })
	g.Go(func() error {
		addr := ":" + cfg.Port
		logger.Info("listening", "addr", addr, "env", cfg.Env)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
