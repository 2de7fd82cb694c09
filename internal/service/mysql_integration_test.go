//go:build mysql

// Run against a disposable MySQL database:
//
//	TEST_MYSQL_NAME=tickets_test TEST_MYSQL_USER=root go test -tags mysql ./internal/service/
//
// The tables are created if missing and never dropped; every test works on
// its own event.

package service

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/event-ticketing/internal/database"
	"github.com/iliyamo/event-ticketing/internal/model"
)

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func newMySQLFixture(t *testing.T, opts ...fixtureOpt) *fixture {
	t.Helper()
	name := os.Getenv("TEST_MYSQL_NAME")
	if name == "" {
		t.Skip("TEST_MYSQL_NAME not set")
	}
	db, err := database.Open(context.Background(), database.Options{
		Driver: database.DriverMySQL,
		User:   envOr("TEST_MYSQL_USER", "root"),
		Pass:   os.Getenv("TEST_MYSQL_PASS"),
		Host:   envOr("TEST_MYSQL_HOST", "127.0.0.1"),
		Port:   envOr("TEST_MYSQL_PORT", "3306"),
		Name:   name,
	})
	require.NoError(t, err)
	return newFixtureOn(t, db, opts...)
}

func TestMySQLConcurrentJoinsNeverOverOffer(t *testing.T) {
	f := newMySQLFixture(t)
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

func TestMySQLConcurrentApprovalsAndCapacityCuts(t *testing.T) {
	f := newMySQLFixture(t)
	ev := f.event(t, 2, "500")
	ctx := context.Background()

	ta := f.claim(t, ev.ID, f.join(t, ev.ID, "alice"))
	tb := f.claim(t, ev.ID, f.join(t, ev.ID, "bob"))

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
		// A seller trying to shrink the event while approvals run must
		// never get below the slots already handed out.
		wg.Add(1)
		go func() {
			defer wg.Done()
			one := 1
			_, err := f.svc.UpdateEvent(ctx, ev.ID, seller, EventPatch{TotalTickets: &one})
			assert.ErrorIs(t, err, ErrCapacityExceeded)
		}()
	}
	wg.Wait()

	assert.Equal(t, map[model.TransactionID]int{ta.ID: 1, tb.ID: 1}, succeeded)
	issued, err := f.svc.tickets.CountIssued(ctx, f.svc.db, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, issued)
}

func TestMySQLCleanupExpiredOffersIsSafeConcurrently(t *testing.T) {
	f := newMySQLFixture(t, withoutTimers())
	ctx := context.Background()
	ev := f.event(t, 3, "500")
	for i := 0; i < 6; i++ {
		f.join(t, ev.ID, model.UserID(fmt.Sprintf("u%d", i)))
	}
	f.clock.Advance(DefaultOfferTTL + time.Second)

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.CleanupExpiredOffers(ctx)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// Earlier runs may leave rows behind, so only this event is checked.
	expired, err := f.svc.entries.CountByStatus(ctx, f.svc.db, ev.ID, model.WaitingListExpired)
	require.NoError(t, err)
	offered, err := f.svc.entries.CountByStatus(ctx, f.svc.db, ev.ID, model.WaitingListOffered)
	require.NoError(t, err)
	assert.Equal(t, 3, expired)
	assert.Equal(t, 3, offered)
}
