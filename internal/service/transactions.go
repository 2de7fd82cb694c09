package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/event-ticketing/internal/metrics"
	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/notify"
	"github.com/iliyamo/event-ticketing/internal/repository"
)

// CreatePendingTransaction records the buyer's claim that they paid for
// the offer on entryID.  The amount is the event price at this moment.
// The claim expires on its own after the pending TTL unless the seller
// decides first.
func (s *Service) CreatePendingTransaction(ctx context.Context, eventID model.EventID, userID model.UserID, entryID model.WaitingListID, contact model.Contact) (*model.Transaction, error) {
	contact, err := normalizeContact(contact)
	if err != nil {
		return nil, err
	}
	var created model.Transaction
	err = s.inEventTx(ctx, "create_transaction", eventID, func(tx *sqlx.Tx, ev *model.Event, fx *effects) error {
		if ev.IsCancelled {
			return ErrEventCancelled
		}
		e, err := s.entries.Get(ctx, tx, entryID)
		if err != nil {
			return notFound(err, "waiting list entry")
		}
		if e.EventID != eventID {
			return notFound(repository.ErrNotFound, "waiting list entry")
		}
		now := s.clock.Now()
		if e.Status != model.WaitingListOffered || e.OfferLapsed(now) {
			return ErrInvalidOffer
		}
		if e.UserID != userID {
			return ErrOwnershipMismatch
		}
		has, err := s.txs.HasForEntry(ctx, tx, e.ID)
		if err != nil {
			return err
		}
		if has {
			return ErrInvalidOffer
		}

		created = model.Transaction{
			EventID:       eventID,
			UserID:        userID,
			WaitingListID: e.ID,
			Status:        model.TransactionPending,
			Amount:        ev.Price,
			Contact:       contact,
			CreatedAt:     now,
			ExpiresAt:     now.Add(s.opts.PendingTTL),
		}
		if created.ID, err = s.txs.Insert(ctx, tx, created); err != nil {
			return err
		}
		fx.armTransaction(created.ID, created.ExpiresAt)
		fx.notify(notify.PendingTransaction, ev.SellerEmail, notify.Data{
			Event:    *ev,
			Buyer:    contact,
			Amount:   ev.Price.StringFixed(2),
			Deadline: notify.Deadline(created.ExpiresAt),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("pending transaction created", "transaction_id", created.ID, "event_id", eventID, "user_id", userID)
	return s.txs.Get(ctx, s.db, created.ID)
}

// ApproveTransaction is the seller confirming the out-of-band payment.
// It issues the ticket and marks the offer purchased.
func (s *Service) ApproveTransaction(ctx context.Context, id model.TransactionID, sellerID model.UserID) (*model.Ticket, error) {
	t, err := s.txs.Get(ctx, s.db, id)
	if err != nil {
		return nil, notFound(err, "transaction")
	}
	var ticket model.Ticket
	err = s.inEventTx(ctx, "approve_transaction", t.EventID, func(tx *sqlx.Tx, ev *model.Event, fx *effects) error {
		t, err := s.txs.Get(ctx, tx, id)
		if err != nil {
			return notFound(err, "transaction")
		}
		if ev.SellerID != sellerID {
			return ErrOwnershipMismatch
		}
		if t.Status != model.TransactionPending {
			return invalidState("transaction is %s", t.Status)
		}
		if ev.IsCancelled {
			return ErrEventCancelled
		}

		now := s.clock.Now()
		if ticket, err = s.issueTicket(ctx, tx, ev, t, now); err != nil {
			return err
		}
		ok, err := s.entries.Transition(ctx, tx, t.WaitingListID, model.WaitingListOffered, model.WaitingListPurchased, now)
		if err != nil {
			return err
		}
		if !ok {
			return ErrInvalidOffer
		}
		if ok, err = s.txs.Resolve(ctx, tx, t.ID, model.TransactionApproved, model.ResolutionSeller, now); err != nil {
			return err
		}
		if !ok {
			return invalidState("transaction is no longer pending")
		}
		if _, err := s.processQueue(ctx, tx, ev, fx); err != nil {
			return err
		}

		fx.cancel(transactionKey(t.ID))
		fx.cancel(offerKey(t.WaitingListID))
		fx.count(metrics.TicketIssued)
		fx.notify(notify.TransactionApproved, t.Contact.Email, notify.Data{Event: *ev, Buyer: t.Contact})
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("transaction approved", "transaction_id", id, "ticket_id", ticket.ID, "event_id", t.EventID)
	return &ticket, nil
}

// RejectTransaction is the seller declining the claim.  The slot goes to
// the next user in line.  Rejection is allowed on cancelled events so
// that stale claims can still be closed.
func (s *Service) RejectTransaction(ctx context.Context, id model.TransactionID, sellerID model.UserID) (*model.Transaction, error) {
	t, err := s.txs.Get(ctx, s.db, id)
	if err != nil {
		return nil, notFound(err, "transaction")
	}
	err = s.inEventTx(ctx, "reject_transaction", t.EventID, func(tx *sqlx.Tx, ev *model.Event, fx *effects) error {
		t, err := s.txs.Get(ctx, tx, id)
		if err != nil {
			return notFound(err, "transaction")
		}
		if ev.SellerID != sellerID {
			return ErrOwnershipMismatch
		}
		if t.Status != model.TransactionPending {
			return invalidState("transaction is %s", t.Status)
		}
		if err := s.closeTransaction(ctx, tx, ev, t, model.ResolutionSeller, fx); err != nil {
			return err
		}
		fx.count(func() { metrics.OfferExpired("rejected", 1) })
		fx.notify(notify.TransactionRejected, t.Contact.Email, notify.Data{Event: *ev, Buyer: t.Contact})
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("transaction rejected", "transaction_id", id, "event_id", t.EventID)
	return s.txs.Get(ctx, s.db, id)
}

// ExpirePendingTransaction is the automatic counterpart of rejection,
// run by the transaction timer and by the stale sweep.  It reports
// false, with no error, when the transaction is missing, already
// decided, or not yet due.
func (s *Service) ExpirePendingTransaction(ctx context.Context, id model.TransactionID) (bool, error) {
	t, err := s.txs.Get(ctx, s.db, id)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	expired := false
	err = s.inEventTx(ctx, "expire_transaction", t.EventID, func(tx *sqlx.Tx, ev *model.Event, fx *effects) error {
		t, err := s.txs.Get(ctx, tx, id)
		if err != nil {
			return notFound(err, "transaction")
		}
		if t.Status != model.TransactionPending || t.ExpiresAt.After(s.clock.Now()) {
			return nil
		}
		if err := s.closeTransaction(ctx, tx, ev, t, model.ResolutionExpired, fx); err != nil {
			return err
		}
		expired = true
		fx.count(func() { metrics.OfferExpired("transaction_expired", 1) })
		fx.notify(notify.TransactionExpired, t.Contact.Email, notify.Data{Event: *ev, Buyer: t.Contact})
		return nil
	})
	if err != nil {
		return false, err
	}
	if expired {
		s.logger.Info("pending transaction expired", "transaction_id", id, "event_id", t.EventID)
	}
	return expired, nil
}

// ExpireStalePendingTransactions expires every pending transaction past
// its deadline, across all events.
func (s *Service) ExpireStalePendingTransactions(ctx context.Context) (int, error) {
	defer metrics.ObserveSweep("transactions", time.Now())

	stale, err := s.txs.StalePending(ctx, s.db, s.clock.Now())
	if err != nil {
		return 0, err
	}
	total := 0
	var errs []error
	for _, t := range stale {
		ok, err := s.ExpirePendingTransaction(ctx, t.ID)
		if err != nil {
			s.logger.Error("expire stale transaction failed", "transaction_id", t.ID, "error", err)
			errs = append(errs, err)
			continue
		}
		if ok {
			total++
		}
	}
	if total > 0 {
		s.logger.Info("stale transactions expired", "count", total)
	}
	return total, errors.Join(errs...)
}

// GetTransaction returns one of the caller's own transactions.
func (s *Service) GetTransaction(ctx context.Context, id model.TransactionID, userID model.UserID) (*model.Transaction, error) {
	t, err := s.txs.Get(ctx, s.db, id)
	if err != nil {
		return nil, notFound(err, "transaction")
	}
	if t.UserID != userID {
		return nil, ErrOwnershipMismatch
	}
	return t, nil
}

// ListTransactions is the seller's view of an event's claims.  An empty
// status lists all of them.
func (s *Service) ListTransactions(ctx context.Context, eventID model.EventID, sellerID model.UserID, status model.TransactionStatus) ([]model.Transaction, error) {
	switch status {
	case "", model.TransactionPending, model.TransactionApproved, model.TransactionRejected:
	default:
		return nil, ErrInvalidInput
	}
	ev, err := s.events.Get(ctx, s.db, eventID)
	if err != nil {
		return nil, notFound(err, "event")
	}
	if ev.SellerID != sellerID {
		return nil, ErrOwnershipMismatch
	}
	return s.txs.ListByEvent(ctx, s.db, eventID, status)
}

// closeTransaction rejects t, expires its offer and backfills the slot.
func (s *Service) closeTransaction(ctx context.Context, tx *sqlx.Tx, ev *model.Event, t *model.Transaction, resolution model.Resolution, fx *effects) error {
	now := s.clock.Now()
	ok, err := s.txs.Resolve(ctx, tx, t.ID, model.TransactionRejected, resolution, now)
	if err != nil {
		return err
	}
	if !ok {
		return invalidState("transaction is no longer pending")
	}
	if _, err := s.entries.Transition(ctx, tx, t.WaitingListID, model.WaitingListOffered, model.WaitingListExpired, now); err != nil {
		return err
	}
	fx.cancel(transactionKey(t.ID))
	fx.cancel(offerKey(t.WaitingListID))
	_, err = s.processQueue(ctx, tx, ev, fx)
	return err
}

func normalizeContact(c model.Contact) (model.Contact, error) {
	c.Name = strings.TrimSpace(c.Name)
	c.Email = strings.TrimSpace(c.Email)
	c.Phone = strings.TrimSpace(c.Phone)
	if c.Name == "" || c.Email == "" {
		return c, ErrInvalidInput
	}
	if _, err := mail.ParseAddress(c.Email); err != nil {
		return c, ErrInvalidInput
	}
	return c, nil
}
