package service

import (
	"context"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/event-ticketing/internal/metrics"
	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/repository"
)

// JoinQueue adds userID to the event's waiting list.  When capacity is
// free and nobody is ahead, the returned entry is already offered.
func (s *Service) JoinQueue(ctx context.Context, eventID model.EventID, userID model.UserID) (*model.WaitingListEntry, error) {
	if userID == "" {
		return nil, ErrInvalidInput
	}
	var id model.WaitingListID
	err := s.inEventTx(ctx, "join_queue", eventID, func(tx *sqlx.Tx, ev *model.Event, fx *effects) error {
		if ev.IsCancelled {
			return ErrEventCancelled
		}
		_, err := s.entries.FindActive(ctx, tx, eventID, userID)
		if err == nil {
			return ErrAlreadyInQueue
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		if id, err = s.entries.Insert(ctx, tx, eventID, userID, s.clock.Now()); err != nil {
			return err
		}
		_, err = s.processQueue(ctx, tx, ev, fx)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("joined queue", "event_id", eventID, "user_id", userID, "waiting_list_id", id)
	return s.entries.Get(ctx, s.db, id)
}

// QueuePosition reports the user's latest entry for the event and, while
// it is waiting, its 1-based place in line.
func (s *Service) QueuePosition(ctx context.Context, eventID model.EventID, userID model.UserID) (*model.QueuePosition, error) {
	e, err := s.entries.Latest(ctx, s.db, eventID, userID)
	if err != nil {
		return nil, notFound(err, "waiting list entry")
	}
	pos := model.QueuePosition{Entry: *e}
	if e.Status == model.WaitingListWaiting {
		if pos.Position, err = s.entries.Position(ctx, s.db, eventID, e.ID); err != nil {
			return nil, err
		}
	}
	return &pos, nil
}

// ReleaseOffer gives an offer back before it expires.  A pending claim
// on the offer is rejected with it.
func (s *Service) ReleaseOffer(ctx context.Context, entryID model.WaitingListID, userID model.UserID) error {
	// The event id is immutable, so it can be read before taking the lock.
	entry, err := s.entries.Get(ctx, s.db, entryID)
	if err != nil {
		return notFound(err, "waiting list entry")
	}
	return s.inEventTx(ctx, "release_offer", entry.EventID, func(tx *sqlx.Tx, ev *model.Event, fx *effects) error {
		e, err := s.entries.Get(ctx, tx, entryID)
		if err != nil {
			return notFound(err, "waiting list entry")
		}
		if e.UserID != userID {
			return ErrOwnershipMismatch
		}
		if e.Status != model.WaitingListOffered {
			return invalidState("entry is %s", e.Status)
		}
		now := s.clock.Now()
		ok, err := s.entries.Transition(ctx, tx, e.ID, model.WaitingListOffered, model.WaitingListExpired, now)
		if err != nil {
			return err
		}
		if !ok {
			return invalidState("entry is no longer offered")
		}
		fx.cancel(offerKey(e.ID))
		fx.count(func() { metrics.OfferExpired("released", 1) })

		t, err := s.txs.ForEntry(ctx, tx, e.ID)
		switch {
		case errors.Is(err, repository.ErrNotFound):
		case err != nil:
			return err
		case t.Status == model.TransactionPending:
			if _, err := s.txs.Resolve(ctx, tx, t.ID, model.TransactionRejected, model.ResolutionReleased, now); err != nil {
				return err
			}
			fx.cancel(transactionKey(t.ID))
		}

		_, err = s.processQueue(ctx, tx, ev, fx)
		return err
	})
}

// ExpireOffer times out one offer.  It reports false when there was
// nothing to do: the entry is gone, no longer offered, not yet due, or
// backed by a pending transaction whose own deadline governs it.
func (s *Service) ExpireOffer(ctx context.Context, entryID model.WaitingListID) (bool, error) {
	return s.expireOffer(ctx, entryID, "timer")
}

func (s *Service) expireOffer(ctx context.Context, entryID model.WaitingListID, cause string) (bool, error) {
	entry, err := s.entries.Get(ctx, s.db, entryID)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	expired := false
	err = s.inEventTx(ctx, "expire_offer", entry.EventID, func(tx *sqlx.Tx, ev *model.Event, fx *effects) error {
		ok, err := s.expireOfferTx(ctx, tx, entryID, s.clock.Now())
		if err != nil || !ok {
			return err
		}
		expired = true
		fx.count(func() { metrics.OfferExpired(cause, 1) })
		_, err = s.processQueue(ctx, tx, ev, fx)
		return err
	})
	return expired, err
}

// expireOfferTx applies the offered → expired transition when the offer
// has lapsed and carries no pending transaction.
func (s *Service) expireOfferTx(ctx context.Context, tx *sqlx.Tx, entryID model.WaitingListID, now time.Time) (bool, error) {
	e, err := s.entries.Get(ctx, tx, entryID)
	if err != nil {
		return false, notFound(err, "waiting list entry")
	}
	if !e.OfferLapsed(now) {
		return false, nil
	}
	t, err := s.txs.ForEntry(ctx, tx, e.ID)
	if err == nil && t.Status == model.TransactionPending {
		return false, nil
	}
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return false, err
	}
	return s.entries.Transition(ctx, tx, e.ID, model.WaitingListOffered, model.WaitingListExpired, now)
}

// CleanupExpiredOffers is the periodic safety net for offer timers.
// Each event is handled in its own transaction; a failure on one event
// is logged and does not stop the others.
func (s *Service) CleanupExpiredOffers(ctx context.Context) (int, error) {
	defer metrics.ObserveSweep("offers", time.Now())

	now := s.clock.Now()
	candidates, err := s.entries.ExpiredOffers(ctx, s.db, now)
	if err != nil {
		return 0, err
	}

	var order []model.EventID
	byEvent := map[model.EventID][]model.WaitingListID{}
	for _, e := range candidates {
		if _, seen := byEvent[e.EventID]; !seen {
			order = append(order, e.EventID)
		}
		byEvent[e.EventID] = append(byEvent[e.EventID], e.ID)
	}

	total := 0
	var errs []error
	for _, eventID := range order {
		n := 0
		err := s.inEventTx(ctx, "cleanup_offers", eventID, func(tx *sqlx.Tx, ev *model.Event, fx *effects) error {
			n = 0
			for _, id := range byEvent[eventID] {
				ok, err := s.expireOfferTx(ctx, tx, id, now)
				if err != nil {
					return err
				}
				if ok {
					n++
					fx.cancel(offerKey(id))
				}
			}
			if n == 0 {
				return nil
			}
			expired := n
			fx.count(func() { metrics.OfferExpired("sweep", expired) })
			_, err := s.processQueue(ctx, tx, ev, fx)
			return err
		})
		if err != nil {
			s.logger.Error("offer cleanup failed", "event_id", eventID, "error", err)
			errs = append(errs, err)
			continue
		}
		total += n
	}
	if total > 0 {
		s.logger.Info("expired offers cleaned up", "count", total)
	}
	return total, errors.Join(errs...)
}
