package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/event-ticketing/internal/model"
)

// EventRecord mirrors a row of the events table.
type EventRecord struct {
	ID           int64           `db:"id"`
	SellerID     string          `db:"seller_id"`
	SellerEmail  string          `db:"seller_email"`
	Name         string          `db:"name"`
	Description  string          `db:"description"`
	Location     string          `db:"location"`
	EventDate    int64           `db:"event_date"`
	Price        decimal.Decimal `db:"price"`
	TotalTickets int             `db:"total_tickets"`
	IsCancelled  bool            `db:"is_cancelled"`
	CreatedAt    int64           `db:"created_at"`
	UpdatedAt    int64           `db:"updated_at"`
}

// Model converts the record to its domain form.
func (r EventRecord) Model() model.Event {
	return model.Event{
		ID:           model.EventID(r.ID),
		SellerID:     model.UserID(r.SellerID),
		SellerEmail:  r.SellerEmail,
		Name:         r.Name,
		Description:  r.Description,
		Location:     r.Location,
		EventDate:    fromMillis(r.EventDate),
		Price:        r.Price,
		TotalTickets: r.TotalTickets,
		IsCancelled:  r.IsCancelled,
		CreatedAt:    fromMillis(r.CreatedAt),
		UpdatedAt:    fromMillis(r.UpdatedAt),
	}
}

const eventColumns = `id, seller_id, seller_email, name, description, location, event_date,
	price, total_tickets, is_cancelled, created_at, updated_at`

// EventRepo provides access to the events table.
// Methods take the querier or transaction to run on, so the repo
// itself holds no state.
type EventRepo struct{}

// NewEventRepo creates a new EventRepo.
func NewEventRepo() *EventRepo { return &EventRepo{} }

// Create inserts ev and returns the new id.  ID, CreatedAt and
// UpdatedAt on ev are ignored.
func (r *EventRepo) Create(ctx context.Context, q sqlx.ExtContext, ev model.Event) (model.EventID, error) {
	const query = `INSERT INTO events
		(seller_id, seller_email, name, description, location, event_date, price, total_tickets, is_cancelled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := toMillis(ev.CreatedAt)
	res, err := q.ExecContext(ctx, query,
		string(ev.SellerID), ev.SellerEmail, ev.Name, ev.Description, ev.Location,
		toMillis(ev.EventDate), ev.Price, ev.TotalTickets, ev.IsCancelled, now, now)
	if err != nil {
		return 0, wrap("insert event", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, wrap("insert event", err)
	}
	return model.EventID(id), nil
}

// Get loads an event without locking it.
func (r *EventRepo) Get(ctx context.Context, q sqlx.QueryerContext, id model.EventID) (*model.Event, error) {
	var rec EventRecord
	if err := sqlx.GetContext(ctx, q, &rec, `SELECT `+eventColumns+` FROM events WHERE id = ?`, int64(id)); err != nil {
		return nil, wrap("get event", err)
	}
	ev := rec.Model()
	return &ev, nil
}

// GetForUpdate loads an event and locks its row for the rest of tx.
// Every allocation decision for an event happens behind this lock.
func (r *EventRepo) GetForUpdate(ctx context.Context, tx *sqlx.Tx, id model.EventID) (*model.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE id = ?` + forUpdate(tx.DriverName())
	var rec EventRecord
	if err := tx.GetContext(ctx, &rec, query, int64(id)); err != nil {
		return nil, wrap("lock event", err)
	}
	ev := rec.Model()
	return &ev, nil
}

// Update writes the editable fields of ev.
func (r *EventRepo) Update(ctx context.Context, q sqlx.ExecerContext, ev model.Event) error {
	const query = `UPDATE events SET name = ?, description = ?, location = ?, event_date = ?,
		price = ?, total_tickets = ?, updated_at = ? WHERE id = ?`
	_, err := q.ExecContext(ctx, query, ev.Name, ev.Description, ev.Location, toMillis(ev.EventDate),
		ev.Price, ev.TotalTickets, toMillis(ev.UpdatedAt), int64(ev.ID))
	return wrap("update event", err)
}

// MarkCancelled sets the cancellation flag.  It reports false when the
// event was already cancelled.
func (r *EventRepo) MarkCancelled(ctx context.Context, q sqlx.ExecerContext, id model.EventID, at int64) (bool, error) {
	ok, err := rowsChanged(q.ExecContext(ctx,
		`UPDATE events SET is_cancelled = 1, updated_at = ? WHERE id = ? AND is_cancelled = 0`, at, int64(id)))
	return ok, wrap("cancel event", err)
}

// ListBySeller returns a seller's events, newest first.
func (r *EventRepo) ListBySeller(ctx context.Context, q sqlx.QueryerContext, seller model.UserID) ([]model.Event, error) {
	var recs []EventRecord
	if err := sqlx.SelectContext(ctx, q, &recs,
		`SELECT `+eventColumns+` FROM events WHERE seller_id = ? ORDER BY id DESC`, string(seller)); err != nil {
		return nil, wrap("list seller events", err)
	}
	out := make([]model.Event, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.Model())
	}
	return out, nil
}
