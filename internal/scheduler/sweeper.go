package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/event-ticketing/internal/clock"
)

const (
	DefaultOfferSweepInterval       = 30 * time.Second
	DefaultTransactionSweepInterval = time.Hour
)

// Sweeps are the recovery passes the Sweeper runs.
type Sweeps interface {
	CleanupExpiredOffers(ctx context.Context) (int, error)
	ExpireStalePendingTransactions(ctx context.Context) (int, error)
}

// Sweeper runs the offer sweep and the pending-transaction sweep on two
// independent tickers.  Timers are the primary deadline mechanism; the
// sweeps pick up whatever a lost timer left behind.
type Sweeper struct {
	sweeps           Sweeps
	clock            clock.Clock
	logger           *slog.Logger
	offerEvery       time.Duration
	transactionEvery time.Duration
}

// NewSweeper returns a Sweeper.  Non-positive intervals select the
// defaults.
func NewSweeper(sweeps Sweeps, clk clock.Clock, offerEvery, transactionEvery time.Duration, logger *slog.Logger) *Sweeper {
	if offerEvery <= 0 {
		offerEvery = DefaultOfferSweepInterval
	}
	if transactionEvery <= 0 {
		transactionEvery = DefaultTransactionSweepInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		sweeps:           sweeps,
		clock:            clk,
		logger:           logger.With("component", "sweeper"),
		offerEvery:       offerEvery,
		transactionEvery: transactionEvery,
	}
}

// Run blocks until ctx is cancelled.  Sweep errors are logged, never
// returned.
func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.Info("sweeper started", "offers_every", s.offerEvery, "transactions_every", s.transactionEvery)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.loop(ctx, "offers", s.offerEvery, s.sweeps.CleanupExpiredOffers) })
	g.Go(func() error {
		return s.loop(ctx, "transactions", s.transactionEvery, s.sweeps.ExpireStalePendingTransactions)
	})
	err := g.Wait()
	s.logger.Info("sweeper stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// RunOnce runs the selected sweeps a single time, offers first.
func (s *Sweeper) RunOnce(ctx context.Context, offers, transactions bool) (Result, error) {
	var res Result
	if offers {
		n, err := s.sweeps.CleanupExpiredOffers(ctx)
		res.OffersExpired = n
		if err != nil {
			return res, err
		}
	}
	if transactions {
		n, err := s.sweeps.ExpireStalePendingTransactions(ctx)
		res.TransactionsExpired = n
		if err != nil {
			return res, err
		}
	}
	return res, nil
}

// Result counts what a one-shot run changed.
type Result struct {
	OffersExpired       int
	TransactionsExpired int
}

func (s *Sweeper) loop(ctx context.Context, name string, every time.Duration, sweep func(context.Context) (int, error)) error {
	ticker := s.clock.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n, err := sweep(ctx)
			if err != nil {
				s.logger.Error("sweep failed", "sweep", name, "error", err)
				continue
			}
			if n > 0 {
				s.logger.Info("sweep expired entries", "sweep", name, "count", n)
			}
		}
	}
}
