package service

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/event-ticketing/internal/model"
)

// issueTicket is the only writer of tickets.  It re-checks capacity
// behind the event lock so that a slipped race surfaces as
// ErrCapacityExceeded instead of an oversold event.
func (s *Service) issueTicket(ctx context.Context, tx *sqlx.Tx, ev *model.Event, t *model.Transaction, now time.Time) (model.Ticket, error) {
	if ev.IsCancelled {
		return model.Ticket{}, ErrEventCancelled
	}
	available, err := s.capacity(ctx, tx, ev)
	if err != nil {
		return model.Ticket{}, err
	}
	if available <= 0 {
		return model.Ticket{}, ErrCapacityExceeded
	}
	ticket := model.Ticket{
		EventID:       ev.ID,
		UserID:        t.UserID,
		TransactionID: t.ID,
		Status:        model.TicketValid,
		Amount:        t.Amount,
		PurchasedAt:   now,
		UpdatedAt:     now,
	}
	if ticket.ID, err = s.tickets.Insert(ctx, tx, ticket); err != nil {
		return model.Ticket{}, err
	}
	return ticket, nil
}

// ListTickets returns the user's tickets, newest first.
func (s *Service) ListTickets(ctx context.Context, userID model.UserID) ([]model.Ticket, error) {
	return s.tickets.ListByUser(ctx, s.db, userID)
}
