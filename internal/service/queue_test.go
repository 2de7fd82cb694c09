package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/event-ticketing/internal/model"
)

func TestJoinQueueOffersWhenCapacityFree(t *testing.T) {
	f := newFixture(t)
	ev := f.event(t, 2, "500")

	a := f.join(t, ev.ID, "alice")
	assert.Equal(t, model.WaitingListOffered, a.Status)
	require.NotNil(t, a.OfferExpiresAt)
	assert.Equal(t, epoch.Add(DefaultOfferTTL), *a.OfferExpiresAt)
	assert.Equal(t, 1, f.timers.Len())
}

func TestJoinQueueCapacityOneScenario(t *testing.T) {
	f := newFixture(t)
	ev := f.event(t, 1, "500")

	a := f.join(t, ev.ID, "alice")
	b := f.join(t, ev.ID, "bob")
	assert.Equal(t, model.WaitingListOffered, a.Status)
	assert.Equal(t, model.WaitingListWaiting, b.Status)

	f.clock.Advance(DefaultOfferTTL)

	assert.Equal(t, model.WaitingListExpired, f.entry(t, a.ID).Status)
	promoted := f.entry(t, b.ID)
	assert.Equal(t, model.WaitingListOffered, promoted.Status)
	require.NotNil(t, promoted.OfferExpiresAt)
	assert.True(t, promoted.OfferExpiresAt.After(f.clock.Now()))
}

func TestJoinQueueRejectsDuplicateActiveEntry(t *testing.T) {
	f := newFixture(t)
	ev := f.event(t, 1, "500")
	ctx := context.Background()

	f.join(t, ev.ID, "alice")
	_, err := f.svc.JoinQueue(ctx, ev.ID, "alice")
	assert.ErrorIs(t, err, ErrAlreadyInQueue)

	f.join(t, ev.ID, "bob")
	_, err = f.svc.JoinQueue(ctx, ev.ID, "bob")
	assert.ErrorIs(t, err, ErrAlreadyInQueue, "waiting entries are active too")

	// Once the offer lapses the user may queue again, at the back.
	f.clock.Advance(DefaultOfferTTL)
	again := f.join(t, ev.ID, "alice")
	assert.Equal(t, model.WaitingListWaiting, again.Status)
}

func TestJoinQueueUnknownOrCancelledEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.JoinQueue(ctx, 404, "alice")
	assert.ErrorIs(t, err, ErrNotFound)

	ev := f.event(t, 1, "500")
	_, err = f.svc.CancelEvent(ctx, ev.ID, seller)
	require.NoError(t, err)
	_, err = f.svc.JoinQueue(ctx, ev.ID, "alice")
	assert.ErrorIs(t, err, ErrEventCancelled)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestQueueIsFIFO(t *testing.T) {
	f := newFixture(t)
	ev := f.event(t, 1, "500")
	ctx := context.Background()

	users := []model.UserID{"u1", "u2", "u3", "u4"}
	entries := map[model.UserID]*model.WaitingListEntry{}
	for _, u := range users {
		entries[u] = f.join(t, ev.ID, u)
	}

	pos, err := f.svc.QueuePosition(ctx, ev.ID, "u3")
	require.NoError(t, err)
	assert.Equal(t, 2, pos.Position)

	// Each lapse hands the single slot to the next user in join order.
	for i, u := range users {
		assert.Equal(t, model.WaitingListOffered, f.entry(t, entries[u].ID).Status, "round %d", i)
		for _, later := range users[i+1:] {
			assert.Equal(t, model.WaitingListWaiting, f.entry(t, entries[later].ID).Status)
		}
		f.clock.Advance(DefaultOfferTTL)
	}

	_, err = f.svc.QueuePosition(ctx, ev.ID, "stranger")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCleanupExpiredOffersSweep(t *testing.T) {
	f := newFixture(t, withoutTimers())
	ev := f.event(t, 1, "500")
	ctx := context.Background()

	a := f.join(t, ev.ID, "alice")
	b := f.join(t, ev.ID, "bob")

	n, err := f.svc.CleanupExpiredOffers(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "offer still live")

	f.clock.Advance(DefaultOfferTTL + time.Second)
	n, err = f.svc.CleanupExpiredOffers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, model.WaitingListExpired, f.entry(t, a.ID).Status)
	assert.Equal(t, model.WaitingListOffered, f.entry(t, b.ID).Status)

	n, err = f.svc.CleanupExpiredOffers(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "second run finds nothing")
}

func TestCleanupExpiredOffersIsSafeConcurrently(t *testing.T) {
	f := newFixture(t, withoutTimers())
	ctx := context.Background()
	ev := f.event(t, 3, "500")
	for i := 0; i < 6; i++ {
		f.join(t, ev.ID, model.UserID(fmt.Sprintf("u%d", i)))
	}
	f.clock.Advance(DefaultOfferTTL + time.Second)

	var wg sync.WaitGroup
	counts := make([]int, 4)
	for i := range counts {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			n, err := f.svc.CleanupExpiredOffers(ctx)
			assert.NoError(t, err)
			counts[i] = n
		}(i)
	}
	wg.Wait()

	total := 0
	for _, n := range counts {
		total += n
	}
	assert.Equal(t, 3, total, "each lapsed offer is expired exactly once")

	offered, err := f.svc.entries.CountByStatus(ctx, f.svc.db, ev.ID, model.WaitingListOffered)
	require.NoError(t, err)
	assert.Equal(t, 3, offered)
}

func TestCleanupSkipsOfferBackedByPendingTransaction(t *testing.T) {
	f := newFixture(t, withoutTimers())
	ev := f.event(t, 1, "500")
	ctx := context.Background()

	a := f.join(t, ev.ID, "alice")
	f.claim(t, ev.ID, a)

	f.clock.Advance(DefaultOfferTTL + time.Second)
	n, err := f.svc.CleanupExpiredOffers(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, model.WaitingListOffered, f.entry(t, a.ID).Status)

	ok, err := f.svc.ExpireOffer(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReleaseOffer(t *testing.T) {
	f := newFixture(t)
	ev := f.event(t, 1, "500")
	ctx := context.Background()

	a := f.join(t, ev.ID, "alice")
	b := f.join(t, ev.ID, "bob")
	tx := f.claim(t, ev.ID, a)

	assert.ErrorIs(t, f.svc.ReleaseOffer(ctx, a.ID, "bob"), ErrOwnershipMismatch)
	assert.ErrorIs(t, f.svc.ReleaseOffer(ctx, b.ID, "bob"), ErrInvalidState, "bob is only waiting")
	assert.ErrorIs(t, f.svc.ReleaseOffer(ctx, 999, "bob"), ErrNotFound)

	require.NoError(t, f.svc.ReleaseOffer(ctx, a.ID, "alice"))
	assert.Equal(t, model.WaitingListExpired, f.entry(t, a.ID).Status)
	assert.Equal(t, model.WaitingListOffered, f.entry(t, b.ID).Status)

	released := f.transaction(t, tx.ID)
	assert.Equal(t, model.TransactionRejected, released.Status)
	assert.Equal(t, model.ResolutionReleased, released.Resolution)

	assert.ErrorIs(t, f.svc.ReleaseOffer(ctx, a.ID, "alice"), ErrInvalidState)
}

func TestConcurrentJoinsNeverOverOffer(t *testing.T) {
	f := newFixture(t)
	ev := f.event(t, 3, "500")
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.JoinQueue(ctx, ev.ID, model.UserID(fmt.Sprintf("user-%02d", i)))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	offered, err := f.svc.entries.CountByStatus(ctx, f.svc.db, ev.ID, model.WaitingListOffered)
	require.NoError(t, err)
	waiting, err := f.svc.entries.CountByStatus(ctx, f.svc.db, ev.ID, model.WaitingListWaiting)
	require.NoError(t, err)
	assert.Equal(t, 3, offered)
	assert.Equal(t, 17, waiting)
}
