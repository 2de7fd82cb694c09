package service

import (
	"context"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/event-ticketing/internal/metrics"
	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/notify"
)

// EventInput is what a seller supplies to publish an event.
type EventInput struct {
	Name         string
	Description  string
	Location     string
	EventDate    time.Time
	Price        decimal.Decimal
	TotalTickets int
}

// EventPatch carries the fields a seller wants to change.  Nil fields
// are left alone.
type EventPatch struct {
	Name         *string
	Description  *string
	Location     *string
	EventDate    *time.Time
	Price        *decimal.Decimal
	TotalTickets *int
}

// CreateEvent publishes a new event owned by sellerID.  sellerEmail is
// where pending-transaction notices are sent.
func (s *Service) CreateEvent(ctx context.Context, sellerID model.UserID, sellerEmail string, in EventInput) (ev *model.Event, err error) {
	defer func() { metrics.Observe("create_event", err, outcome) }()

	in.Name = strings.TrimSpace(in.Name)
	if sellerID == "" || in.Name == "" || in.TotalTickets < 1 || in.Price.IsNegative() || in.EventDate.IsZero() {
		return nil, ErrInvalidInput
	}
	now := s.clock.Now()
	id, err := s.events.Create(ctx, s.db, model.Event{
		SellerID:     sellerID,
		SellerEmail:  strings.TrimSpace(sellerEmail),
		Name:         in.Name,
		Description:  in.Description,
		Location:     strings.TrimSpace(in.Location),
		EventDate:    in.EventDate,
		Price:        in.Price,
		TotalTickets: in.TotalTickets,
		CreatedAt:    now,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("event created", "event_id", id, "seller_id", sellerID, "total_tickets", in.TotalTickets)
	return s.events.Get(ctx, s.db, id)
}

// UpdateEvent edits a seller's event.  Capacity may not drop below the
// tickets already issued plus the offers still outstanding; raising it
// hands the new slots to the queue.
// Price changes never touch existing transactions.
func (s *Service) UpdateEvent(ctx context.Context, eventID model.EventID, sellerID model.UserID, p EventPatch) (*model.Event, error) {
	err := s.inEventTx(ctx, "update_event", eventID, func(tx *sqlx.Tx, ev *model.Event, fx *effects) error {
		if ev.SellerID != sellerID {
			return ErrOwnershipMismatch
		}
		if ev.IsCancelled {
			return ErrEventCancelled
		}
		if p.Name != nil {
			name := strings.TrimSpace(*p.Name)
			if name == "" {
				return ErrInvalidInput
			}
			ev.Name = name
		}
		if p.Description != nil {
			ev.Description = *p.Description
		}
		if p.Location != nil {
			ev.Location = strings.TrimSpace(*p.Location)
		}
		if p.EventDate != nil {
			if p.EventDate.IsZero() {
				return ErrInvalidInput
			}
			ev.EventDate = *p.EventDate
		}
		if p.Price != nil {
			if p.Price.IsNegative() {
				return ErrInvalidInput
			}
			ev.Price = *p.Price
		}
		if p.TotalTickets != nil {
			if *p.TotalTickets < 1 {
				return ErrInvalidInput
			}
			issued, err := s.tickets.CountIssued(ctx, tx, ev.ID)
			if err != nil {
				return err
			}
			offered, err := s.entries.CountByStatus(ctx, tx, ev.ID, model.WaitingListOffered)
			if err != nil {
				return err
			}
			// Outstanding offers keep their slots until they resolve.
			if *p.TotalTickets < issued+offered {
				return ErrCapacityExceeded
			}
			ev.TotalTickets = *p.TotalTickets
		}
		ev.UpdatedAt = s.clock.Now()
		if err := s.events.Update(ctx, tx, *ev); err != nil {
			return err
		}
		_, err := s.processQueue(ctx, tx, ev, fx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.events.Get(ctx, s.db, eventID)
}

// CancelEvent terminates an event.  Valid tickets become refunded and
// their holders are told; queue and transaction history is kept as is.
func (s *Service) CancelEvent(ctx context.Context, eventID model.EventID, sellerID model.UserID) (int, error) {
	refunded := 0
	err := s.inEventTx(ctx, "cancel_event", eventID, func(tx *sqlx.Tx, ev *model.Event, fx *effects) error {
		if ev.SellerID != sellerID {
			return ErrOwnershipMismatch
		}
		if ev.IsCancelled {
			return ErrEventCancelled
		}
		holders, err := s.tickets.ValidHolders(ctx, tx, eventID)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		ok, err := s.events.MarkCancelled(ctx, tx, eventID, now.UnixMilli())
		if err != nil {
			return err
		}
		if !ok {
			return ErrEventCancelled
		}
		if refunded, err = s.tickets.RefundValid(ctx, tx, eventID, now); err != nil {
			return err
		}
		ev.IsCancelled = true
		n := refunded
		fx.count(func() { metrics.TicketsRefunded(n) })
		for _, h := range holders {
			fx.notify(notify.EventCancelled, h.Email, notify.Data{
				Event: *ev,
				Buyer: model.Contact{Name: h.Name, Email: h.Email},
			})
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info("event cancelled", "event_id", eventID, "refunded", refunded)
	return refunded, nil
}

// GetEvent returns an event.
func (s *Service) GetEvent(ctx context.Context, eventID model.EventID) (*model.Event, error) {
	ev, err := s.events.Get(ctx, s.db, eventID)
	if err != nil {
		return nil, notFound(err, "event")
	}
	return ev, nil
}

// ListSellerEvents returns the events owned by sellerID.
func (s *Service) ListSellerEvents(ctx context.Context, sellerID model.UserID) ([]model.Event, error) {
	return s.events.ListBySeller(ctx, s.db, sellerID)
}

// Availability reports the state of an event's ticket pool.  It is a
// read without the event lock and may trail concurrent writers.
func (s *Service) Availability(ctx context.Context, eventID model.EventID) (*model.Availability, error) {
	ev, err := s.events.Get(ctx, s.db, eventID)
	if err != nil {
		return nil, notFound(err, "event")
	}
	issued, err := s.tickets.CountIssued(ctx, s.db, eventID)
	if err != nil {
		return nil, err
	}
	offered, err := s.entries.CountByStatus(ctx, s.db, eventID, model.WaitingListOffered)
	if err != nil {
		return nil, err
	}
	a := &model.Availability{
		EventID:      eventID,
		TotalTickets: ev.TotalTickets,
		Purchased:    issued,
		ActiveOffers: offered,
		Remaining:    max(0, ev.TotalTickets-issued-offered),
		Cancelled:    ev.IsCancelled,
	}
	a.SoldOut = issued >= ev.TotalTickets
	return a, nil
}
