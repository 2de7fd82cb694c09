package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/event-ticketing/internal/model"
)

func TestPurchaseRoundTrip(t *testing.T) {
	f := newFixture(t)
	ev := f.event(t, 2, "500")
	ctx := context.Background()

	a := f.join(t, ev.ID, "alice")
	tx := f.claim(t, ev.ID, a)
	assert.Equal(t, model.TransactionPending, tx.Status)
	assert.Equal(t, epoch.Add(DefaultPendingTTL), tx.ExpiresAt)
	assert.Equal(t, []string{"New pending transaction for Jazz Night"}, f.outbox.subjects("seller@example.com"))

	ticket, err := f.svc.ApproveTransaction(ctx, tx.ID, seller)
	require.NoError(t, err)
	assert.Equal(t, model.TicketValid, ticket.Status)
	assert.Equal(t, model.UserID("alice"), ticket.UserID)
	assert.Equal(t, tx.ID, ticket.TransactionID)

	assert.Equal(t, model.WaitingListPurchased, f.entry(t, a.ID).Status)
	approved := f.transaction(t, tx.ID)
	assert.Equal(t, model.TransactionApproved, approved.Status)
	assert.Equal(t, model.ResolutionSeller, approved.Resolution)
	assert.Equal(t, []string{"Ticket confirmed for Jazz Night"}, f.outbox.subjects("alice@example.com"))

	tickets, err := f.svc.ListTickets(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, tickets, 1)

	avail, err := f.svc.Availability(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, avail.Purchased)
	assert.Equal(t, 1, avail.Remaining)
	assert.False(t, avail.SoldOut)

	// Timers for the decided transaction are gone: nothing changes later.
	f.clock.Advance(time.Hour)
	assert.Equal(t, model.TransactionApproved, f.transaction(t, tx.ID).Status)
	assert.Equal(t, model.WaitingListPurchased, f.entry(t, a.ID).Status)
}

func TestAmountSnapshotsPriceAtClaim(t *testing.T) {
	f := newFixture(t)
	ev := f.event(t, 1, "500")
	ctx := context.Background()

	a := f.join(t, ev.ID, "alice")
	tx := f.claim(t, ev.ID, a)

	newPrice := decimal.NewFromInt(700)
	updated, err := f.svc.UpdateEvent(ctx, ev.ID, seller, EventPatch{Price: &newPrice})
	require.NoError(t, err)
	assert.True(t, updated.Price.Equal(newPrice))

	ticket, err := f.svc.ApproveTransaction(ctx, tx.ID, seller)
	require.NoError(t, err)
	assert.True(t, ticket.Amount.Equal(decimal.NewFromInt(500)), "got %s", ticket.Amount)
}

func TestRejectTransactionFreesSlot(t *testing.T) {
	f := newFixture(t)
	ev := f.event(t, 1, "500")
	ctx := context.Background()

	a := f.join(t, ev.ID, "alice")
	b := f.join(t, ev.ID, "bob")
	tx := f.claim(t, ev.ID, a)

	_, err := f.svc.RejectTransaction(ctx, tx.ID, "someone-else")
	assert.ErrorIs(t, err, ErrOwnershipMismatch)

	rejected, err := f.svc.RejectTransaction(ctx, tx.ID, seller)
	require.NoError(t, err)
	assert.Equal(t, model.TransactionRejected, rejected.Status)
	assert.Equal(t, model.WaitingListExpired, f.entry(t, a.ID).Status)
	assert.Equal(t, model.WaitingListOffered, f.entry(t, b.ID).Status)
	assert.Equal(t, []string{"Ticket claim rejected for Jazz Night"}, f.outbox.subjects("alice@example.com"))

	_, err = f.svc.RejectTransaction(ctx, tx.ID, seller)
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = f.svc.ApproveTransaction(ctx, tx.ID, seller)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestApproveTransactionErrors(t *testing.T) {
	f := newFixture(t)
	ev := f.event(t, 1, "500")
	ctx := context.Background()

	_, err := f.svc.ApproveTransaction(ctx, 999, seller)
	assert.ErrorIs(t, err, ErrNotFound)

	a := f.join(t, ev.ID, "alice")
	tx := f.claim(t, ev.ID, a)

	_, err = f.svc.ApproveTransaction(ctx, tx.ID, "alice")
	assert.ErrorIs(t, err, ErrOwnershipMismatch)

	_, err = f.svc.ApproveTransaction(ctx, tx.ID, seller)
	require.NoError(t, err)
	_, err = f.svc.ApproveTransaction(ctx, tx.ID, seller)
	assert.ErrorIs(t, err, ErrInvalidState, "retry on a decided transaction is an error, not a second ticket")

	tickets, err := f.svc.ListTickets(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, tickets, 1)
}

func TestCreatePendingTransactionPreconditions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := f.event(t, 1, "500")
	other := f.event(t, 1, "500")

	a := f.join(t, ev.ID, "alice")
	b := f.join(t, ev.ID, "bob")

	_, err := f.svc.CreatePendingTransaction(ctx, 999, "alice", a.ID, contactFor("alice"))
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.svc.CreatePendingTransaction(ctx, ev.ID, "alice", 999, contactFor("alice"))
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.svc.CreatePendingTransaction(ctx, other.ID, "alice", a.ID, contactFor("alice"))
	assert.ErrorIs(t, err, ErrNotFound, "entry belongs to another event")

	_, err = f.svc.CreatePendingTransaction(ctx, ev.ID, "bob", b.ID, contactFor("bob"))
	assert.ErrorIs(t, err, ErrInvalidOffer, "bob is only waiting")
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = f.svc.CreatePendingTransaction(ctx, ev.ID, "bob", a.ID, contactFor("bob"))
	assert.ErrorIs(t, err, ErrOwnershipMismatch)

	_, err = f.svc.CreatePendingTransaction(ctx, ev.ID, "alice", a.ID, model.Contact{Name: "Alice"})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = f.svc.CreatePendingTransaction(ctx, ev.ID, "alice", a.ID, model.Contact{Name: "Alice", Email: "not-an-email"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	f.claim(t, ev.ID, a)
	_, err = f.svc.CreatePendingTransaction(ctx, ev.ID, "alice", a.ID, contactFor("alice"))
	assert.ErrorIs(t, err, ErrInvalidOffer, "one transaction per offer")
}

func TestCreatePendingTransactionOnLapsedOffer(t *testing.T) {
	f := newFixture(t, withoutTimers())
	ev := f.event(t, 1, "500")
	a := f.join(t, ev.ID, "alice")

	// The sweep has not run yet, but the deadline has passed.
	f.clock.Advance(DefaultOfferTTL)
	_, err := f.svc.CreatePendingTransaction(context.Background(), ev.ID, "alice", a.ID, contactFor("alice"))
	assert.ErrorIs(t, err, ErrInvalidOffer)
}

func TestPendingTransactionTimerExpiresClaim(t *testing.T) {
	f := newFixture(t)
	ev := f.event(t, 1, "500")
	ctx := context.Background()

	a := f.join(t, ev.ID, "alice")
	b := f.join(t, ev.ID, "bob")
	f.clock.Advance(time.Minute)
	tx := f.claim(t, ev.ID, a)

	// The offer deadline passes first; the pending claim keeps the slot.
	f.clock.Advance(DefaultOfferTTL - time.Minute)
	assert.Equal(t, model.WaitingListOffered, f.entry(t, a.ID).Status)
	assert.Equal(t, model.WaitingListWaiting, f.entry(t, b.ID).Status)

	f.clock.Advance(time.Minute)
	expired := f.transaction(t, tx.ID)
	assert.Equal(t, model.TransactionRejected, expired.Status)
	assert.Equal(t, model.ResolutionExpired, expired.Resolution)
	assert.Equal(t, model.WaitingListExpired, f.entry(t, a.ID).Status)
	assert.Equal(t, model.WaitingListOffered, f.entry(t, b.ID).Status)
	assert.Equal(t, []string{"Ticket claim expired for Jazz Night"}, f.outbox.subjects("alice@example.com"))

	ok, err := f.svc.ExpirePendingTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.False(t, ok, "second expiry is a silent no-op")
	ok, err = f.svc.ExpirePendingTransaction(ctx, 999)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExpirePendingTransactionWaitsForDeadline(t *testing.T) {
	f := newFixture(t, withoutTimers())
	ev := f.event(t, 1, "500")
	a := f.join(t, ev.ID, "alice")
	tx := f.claim(t, ev.ID, a)

	ok, err := f.svc.ExpirePendingTransaction(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, model.TransactionPending, f.transaction(t, tx.ID).Status)
}

func TestExpireStalePendingTransactionsSweep(t *testing.T) {
	f := newFixture(t, withoutTimers())
	ctx := context.Background()
	first := f.event(t, 1, "500")
	second := f.event(t, 1, "250")

	t1 := f.claim(t, first.ID, f.join(t, first.ID, "alice"))
	t2 := f.claim(t, second.ID, f.join(t, second.ID, "bob"))
	approvedLater := f.join(t, second.ID, "carol")

	n, err := f.svc.ExpireStalePendingTransactions(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.clock.Advance(DefaultPendingTTL + time.Second)
	n, err = f.svc.ExpireStalePendingTransactions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "sweep spans all events")
	assert.Equal(t, model.TransactionRejected, f.transaction(t, t1.ID).Status)
	assert.Equal(t, model.TransactionRejected, f.transaction(t, t2.ID).Status)
	assert.Equal(t, model.WaitingListOffered, f.entry(t, approvedLater.ID).Status)

	n, err = f.svc.ExpireStalePendingTransactions(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestConcurrentApprovalsNeverOversell(t *testing.T) {
	f := newFixture(t)
	ev := f.event(t, 2, "500")
	ctx := context.Background()

	ta := f.claim(t, ev.ID, f.join(t, ev.ID, "alice"))
	tb := f.claim(t, ev.ID, f.join(t, ev.ID, "bob"))

	// Sellers double-click: every transaction is approved several times at once.
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := map[model.TransactionID]int{}
	for range 4 {
		for _, id := range []model.TransactionID{ta.ID, tb.ID} {
			wg.Add(1)
			go func(id model.TransactionID) {
				defer wg.Done()
				_, err := f.svc.ApproveTransaction(ctx, id, seller)
				if err != nil {
					assert.ErrorIs(t, err, ErrInvalidState)
					return
				}
				mu.Lock()
				succeeded[id]++
				mu.Unlock()
			}(id)
		}
	}
	wg.Wait()

	assert.Equal(t, map[model.TransactionID]int{ta.ID: 1, tb.ID: 1}, succeeded)
	issued, err := f.svc.tickets.CountIssued(ctx, f.svc.db, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, issued)
}

func TestIssueTicketRechecksCapacity(t *testing.T) {
	f := newFixture(t)
	ev := f.event(t, 1, "500")
	ctx := context.Background()

	tx := f.claim(t, ev.ID, f.join(t, ev.ID, "alice"))
	_, err := f.svc.ApproveTransaction(ctx, tx.ID, seller)
	require.NoError(t, err)

	dbtx, err := f.svc.db.BeginTxx(ctx, nil)
	require.NoError(t, err)
	defer func() { _ = dbtx.Rollback() }()
	locked, err := f.svc.events.GetForUpdate(ctx, dbtx, ev.ID)
	require.NoError(t, err)
	_, err = f.svc.issueTicket(ctx, dbtx, locked, &model.Transaction{ID: tx.ID + 1, UserID: "bob"}, f.clock.Now())
	assert.ErrorIs(t, err, ErrCapacityExceeded)
}

func TestNotificationFailureDoesNotRollBack(t *testing.T) {
	f := newFixture(t)
	f.outbox.err = errors.New("broker unavailable")
	ev := f.event(t, 1, "500")

	tx := f.claim(t, ev.ID, f.join(t, ev.ID, "alice"))
	ticket, err := f.svc.ApproveTransaction(context.Background(), tx.ID, seller)
	require.NoError(t, err)
	assert.Equal(t, model.TicketValid, ticket.Status)
	assert.Equal(t, model.TransactionApproved, f.transaction(t, tx.ID).Status)
}

func TestGetAndListTransactions(t *testing.T) {
	f := newFixture(t)
	ev := f.event(t, 2, "500")
	ctx := context.Background()

	tx := f.claim(t, ev.ID, f.join(t, ev.ID, "alice"))

	got, err := f.svc.GetTransaction(ctx, tx.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, tx.ID, got.ID)
	_, err = f.svc.GetTransaction(ctx, tx.ID, "bob")
	assert.ErrorIs(t, err, ErrOwnershipMismatch)

	list, err := f.svc.ListTransactions(ctx, ev.ID, seller, model.TransactionPending)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	_, err = f.svc.ListTransactions(ctx, ev.ID, "alice", "")
	assert.ErrorIs(t, err, ErrOwnershipMismatch)
	_, err = f.svc.ListTransactions(ctx, ev.ID, seller, "bogus")
	assert.ErrorIs(t, err, ErrInvalidInput)
}
