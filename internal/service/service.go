// Package service implements the ticket-allocation engine: the waiting
// list, time-boxed offers, pending manual-payment transactions, ticket
// issuance and event cancellation.
//
// Every mutating operation runs in one SQL transaction that starts by
// locking the event row, so capacity decisions for an event are
// serialized while different events proceed in parallel.  Timers,
// notifications and metrics are applied only after commit.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/event-ticketing/internal/clock"
	"github.com/iliyamo/event-ticketing/internal/metrics"
	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/notify"
	"github.com/iliyamo/event-ticketing/internal/repository"
)

const (
	DefaultOfferTTL      = 10 * time.Minute
	DefaultPendingTTL    = 10 * time.Minute
	DefaultNotifyTimeout = 10 * time.Second
)

// Scheduler arms one-shot callbacks keyed by name.  Scheduling a key
// again replaces the previous callback.
type Scheduler interface {
	Schedule(key string, at time.Time, fn func(ctx context.Context))
	Cancel(key string)
}

// Options tunes the engine.  Zero values select the defaults.
type Options struct {
	OfferTTL      time.Duration
	PendingTTL    time.Duration
	NotifyTimeout time.Duration
}

// Deps are the collaborators of a Service.  Only DB is required.
type Deps struct {
	DB       *sqlx.DB
	Clock    clock.Clock
	Timers   Scheduler
	Notifier notify.Notifier
	Renderer *notify.Renderer
	Logger   *slog.Logger
	Options  Options
}

// Service is the ticketing engine.
type Service struct {
	db       *sqlx.DB
	events   *repository.EventRepo
	entries  *repository.WaitingListRepo
	txs      *repository.TransactionRepo
	tickets  *repository.TicketRepo
	clock    clock.Clock
	timers   Scheduler
	notifier notify.Notifier
	renderer *notify.Renderer
	logger   *slog.Logger
	opts     Options
}

// New wires a Service.
func New(deps Deps) (*Service, error) {
	if deps.DB == nil {
		return nil, fmt.Errorf("service: nil db")
	}
	s := &Service{
		db:       deps.DB,
		events:   repository.NewEventRepo(),
		entries:  repository.NewWaitingListRepo(),
		txs:      repository.NewTransactionRepo(),
		tickets:  repository.NewTicketRepo(),
		clock:    deps.Clock,
		timers:   deps.Timers,
		notifier: deps.Notifier,
		renderer: deps.Renderer,
		logger:   deps.Logger,
		opts:     deps.Options,
	}
	if s.clock == nil {
		s.clock = clock.Real()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "ticketing")
	if s.timers == nil {
		s.timers = noopScheduler{}
	}
	if s.notifier == nil {
		s.notifier = notify.LogNotifier{Logger: s.logger}
	}
	if s.renderer == nil {
		r, err := notify.NewRenderer("")
		if err != nil {
			return nil, err
		}
		s.renderer = r
	}
	if s.opts.OfferTTL <= 0 {
		s.opts.OfferTTL = DefaultOfferTTL
	}
	if s.opts.PendingTTL <= 0 {
		s.opts.PendingTTL = DefaultPendingTTL
	}
	if s.opts.NotifyTimeout <= 0 {
		s.opts.NotifyTimeout = DefaultNotifyTimeout
	}
	return s, nil
}

type noopScheduler struct{}

func (noopScheduler) Schedule(string, time.Time, func(context.Context)) {}
func (noopScheduler) Cancel(string)                                     {}

func offerKey(id model.WaitingListID) string       { return fmt.Sprintf("offer:%d", id) }
func transactionKey(id model.TransactionID) string { return fmt.Sprintf("transaction:%d", id) }

// effects collects what must happen once a transaction has committed.
type effects struct {
	offers       map[model.WaitingListID]time.Time
	transactions map[model.TransactionID]time.Time
	cancels      []string
	notes        []note
	counters     []func()
}

type note struct {
	kind notify.Kind
	to   string
	data notify.Data
}

func (fx *effects) armOffer(id model.WaitingListID, at time.Time) {
	if fx.offers == nil {
		fx.offers = map[model.WaitingListID]time.Time{}
	}
	fx.offers[id] = at
}

func (fx *effects) armTransaction(id model.TransactionID, at time.Time) {
	if fx.transactions == nil {
		fx.transactions = map[model.TransactionID]time.Time{}
	}
	fx.transactions[id] = at
}

func (fx *effects) cancel(key string) { fx.cancels = append(fx.cancels, key) }

func (fx *effects) notify(kind notify.Kind, to string, data notify.Data) {
	fx.notes = append(fx.notes, note{kind: kind, to: to, data: data})
}

func (fx *effects) count(f func()) { fx.counters = append(fx.counters, f) }

// inEventTx runs fn in a transaction holding the lock on eventID and
// applies the collected effects after a successful commit.
func (s *Service) inEventTx(ctx context.Context, op string, eventID model.EventID, fn func(tx *sqlx.Tx, ev *model.Event, fx *effects) error) (err error) {
	defer func() { metrics.Observe(op, err, outcome) }()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	ev, err := s.events.GetForUpdate(ctx, tx, eventID)
	if err != nil {
		return notFound(err, "event")
	}
	fx := &effects{}
	if err := fn(tx, ev, fx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true

	s.apply(ctx, fx)
	return nil
}

func (s *Service) apply(ctx context.Context, fx *effects) {
	for _, key := range fx.cancels {
		s.timers.Cancel(key)
	}
	for id, at := range fx.offers {
		s.armOfferTimer(id, at)
	}
	for id, at := range fx.transactions {
		s.armTransactionTimer(id, at)
	}
	for _, f := range fx.counters {
		f()
	}
	for _, n := range fx.notes {
		s.send(ctx, n)
	}
}

func (s *Service) armOfferTimer(id model.WaitingListID, at time.Time) {
	s.timers.Schedule(offerKey(id), at, func(ctx context.Context) {
		if _, err := s.expireOffer(ctx, id, "timer"); err != nil {
			s.logger.Error("offer timer failed", "waiting_list_id", id, "error", err)
		}
	})
}

func (s *Service) armTransactionTimer(id model.TransactionID, at time.Time) {
	s.timers.Schedule(transactionKey(id), at, func(ctx context.Context) {
		if _, err := s.ExpirePendingTransaction(ctx, id); err != nil {
			s.logger.Error("transaction timer failed", "transaction_id", id, "error", err)
		}
	})
}

// send renders and delivers one notification.  Failures are logged and
// never propagate: the state change they describe has already committed.
func (s *Service) send(ctx context.Context, n note) {
	if n.to == "" {
		metrics.Notification(string(n.kind), metrics.ErrSkipped)
		s.logger.Debug("notification skipped, no recipient", "kind", n.kind, "event_id", n.data.Event.ID)
		return
	}
	msg, err := s.renderer.Render(n.kind, n.to, n.data)
	if err != nil {
		metrics.Notification(string(n.kind), err)
		s.logger.Error("render notification failed", "kind", n.kind, "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.NotifyTimeout)
	defer cancel()
	err = s.notifier.Notify(ctx, msg)
	metrics.Notification(string(n.kind), err)
	if err != nil {
		s.logger.Warn("notification failed", "kind", n.kind, "message_id", msg.ID, "error", err)
	}
}

// capacity returns the event's free slots: total minus issued tickets,
// floored at zero.  Must be called behind the event lock.
func (s *Service) capacity(ctx context.Context, q sqlx.QueryerContext, ev *model.Event) (int, error) {
	issued, err := s.tickets.CountIssued(ctx, q, ev.ID)
	if err != nil {
		return 0, err
	}
	return max(0, ev.TotalTickets-issued), nil
}

// processQueue promotes waiting entries, oldest first, into whatever
// capacity is not already held by an offer.  It is a no-op for
// cancelled events and safe to call any number of times.
func (s *Service) processQueue(ctx context.Context, tx *sqlx.Tx, ev *model.Event, fx *effects) (int, error) {
	if ev.IsCancelled {
		return 0, nil
	}
	available, err := s.capacity(ctx, tx, ev)
	if err != nil {
		return 0, err
	}
	offered, err := s.entries.CountByStatus(ctx, tx, ev.ID, model.WaitingListOffered)
	if err != nil {
		return 0, err
	}
	free := available - offered
	if free <= 0 {
		return 0, nil
	}
	next, err := s.entries.NextWaiting(ctx, tx, ev.ID, free)
	if err != nil {
		return 0, err
	}

	now := s.clock.Now()
	expires := now.Add(s.opts.OfferTTL)
	granted := 0
	for _, e := range next {
		ok, err := s.entries.Offer(ctx, tx, e.ID, expires, now)
		if err != nil {
			return granted, err
		}
		if ok {
			granted++
			fx.armOffer(e.ID, expires)
		}
	}
	if granted > 0 {
		fx.count(func() { metrics.OffersGranted(granted) })
		s.logger.Debug("offers granted", "event_id", ev.ID, "count", granted)
	}
	return granted, nil
}
