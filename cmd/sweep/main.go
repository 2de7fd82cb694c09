// Command sweep runs the offer and pending-transaction sweeps once and
// exits.  It is meant for cron.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/iliyamo/event-ticketing/internal/clock"
	"github.com/iliyamo/event-ticketing/internal/config"
	"github.com/iliyamo/event-ticketing/internal/database"
	"github.com/iliyamo/event-ticketing/internal/notify"
	"github.com/iliyamo/event-ticketing/internal/scheduler"
	"github.com/iliyamo/event-ticketing/internal/service"
)

func main() {
	flagSet := pflag.NewFlagSet("sweep", pflag.ContinueOnError)
	offers := flagSet.Bool("offers", false, "expire lapsed offers")
	transactions := flagSet.Bool("transactions", false, "expire stale pending transactions")
	timeout := flagSet.Duration("timeout", 5*time.Minute, "overall deadline")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if !*offers && !*transactions {
		*offers, *transactions = true, true
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	if err := run(logger, *offers, *transactions, *timeout); err != nil {
		logger.Error("sweep failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, offers, transactions bool, timeout time.Duration) error {
	cfg := config.Load()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	db, err := database.Open(ctx, cfg.DB)
	if err != nil {
		return err
	}
	defer db.Close()

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
	// No timers: promotions made here are armed by the server's sweeps or
	// its next start.
	svc, err := service.New(service.Deps{
		DB:       db,
		Notifier: notifier,
		Renderer: renderer,
		Logger:   logger,
		Options:  service.Options{OfferTTL: cfg.OfferTTL, PendingTTL: cfg.PendingTTL, NotifyTimeout: cfg.NotifyTimeout},
	})
	if err != nil {
		return err
	}
	res, err := scheduler.NewSweeper(svc, clock.Real(), 0, 0, logger).RunOnce(ctx, offers, transactions)
	logger.Info("sweep done", "offers_expired", res.OffersExpired, "transactions_expired", res.TransactionsExpired)
	return err
}
