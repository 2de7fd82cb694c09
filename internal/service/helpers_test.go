package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/event-ticketing/internal/clock"
	"github.com/iliyamo/event-ticketing/internal/database"
	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/notify"
	"github.com/iliyamo/event-ticketing/internal/scheduler"
)

var epoch = time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

const seller model.UserID = "seller-1"

type outbox struct {
	mu   sync.Mutex
	msgs []notify.Message
	err  error
}

func (o *outbox) Notify(_ context.Context, m notify.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.msgs = append(o.msgs, m)
	return o.err
}

func (o *outbox) subjects(to string) []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []string
	for _, m := range o.msgs {
		if m.To == to {
			out = append(out, m.Subject)
		}
	}
	return out
}

type fixture struct {
	svc    *Service
	clock  *clock.FakeClock
	timers *scheduler.Timers
	outbox *outbox
}

type fixtureOpt func(*Deps)

// withoutTimers leaves deadlines to the sweeps.
func withoutTimers() fixtureOpt { return func(d *Deps) { d.Timers = nil } }

func newFixture(t *testing.T, opts ...fixtureOpt) *fixture {
	t.Helper()
	db, err := database.OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	return newFixtureOn(t, db, opts...)
}

// newFixtureOn builds a service over db, migrating it first. db is closed
// when the test ends.
func newFixtureOn(t *testing.T, db *sqlx.DB, opts ...fixtureOpt) *fixture {
	t.Helper()
	ctx := context.Background()
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(ctx, db))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clk := clock.Fake(epoch)
	timers := scheduler.NewTimers(clk, logger)
	t.Cleanup(timers.Stop)
	box := &outbox{}
	renderer, err := notify.NewRenderer("https://tickets.example.com")
	require.NoError(t, err)

	deps := Deps{
		DB:       db,
		Clock:    clk,
		Timers:   timers,
		Notifier: box,
		Renderer: renderer,
		Logger:   logger,
	}
	for _, o := range opts {
		o(&deps)
	}
	svc, err := New(deps)
	require.NoError(t, err)
	return &fixture{svc: svc, clock: clk, timers: timers, outbox: box}
}

func (f *fixture) event(t *testing.T, total int, price string) *model.Event {
	t.Helper()
	ev, err := f.svc.CreateEvent(context.Background(), seller, "seller@example.com", EventInput{
		Name:         "Jazz Night",
		Location:     "Palais du Peuple",
		EventDate:    epoch.Add(14 * 24 * time.Hour),
		Price:        decimal.RequireFromString(price),
		TotalTickets: total,
	})
	require.NoError(t, err)
	return ev
}

func (f *fixture) join(t *testing.T, ev model.EventID, user model.UserID) *model.WaitingListEntry {
	t.Helper()
	e, err := f.svc.JoinQueue(context.Background(), ev, user)
	require.NoError(t, err)
	return e
}

func (f *fixture) claim(t *testing.T, ev model.EventID, e *model.WaitingListEntry) *model.Transaction {
	t.Helper()
	tx, err := f.svc.CreatePendingTransaction(context.Background(), ev, e.UserID, e.ID, contactFor(e.UserID))
	require.NoError(t, err)
	return tx
}

func (f *fixture) entry(t *testing.T, id model.WaitingListID) *model.WaitingListEntry {
	t.Helper()
	e, err := f.svc.entries.Get(context.Background(), f.svc.db, id)
	require.NoError(t, err)
	return e
}

func (f *fixture) transaction(t *testing.T, id model.TransactionID) *model.Transaction {
	t.Helper()
	tx, err := f.svc.txs.Get(context.Background(), f.svc.db, id)
	require.NoError(t, err)
	return tx
}

func contactFor(u model.UserID) model.Contact {
	return model.Contact{Name: string(u), Email: string(u) + "@example.com", Phone: "+25377000000"}
}
