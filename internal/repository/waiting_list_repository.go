package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/event-ticketing/internal/model"
)

// WaitingListRecord mirrors a row of the waiting_list table.
type WaitingListRecord struct {
	ID             int64         `db:"id"`
	EventID        int64         `db:"event_id"`
	UserID         string        `db:"user_id"`
	Status         string        `db:"status"`
	OfferExpiresAt sql.NullInt64 `db:"offer_expires_at"`
	CreatedAt      int64         `db:"created_at"`
	UpdatedAt      int64         `db:"updated_at"`
}

// Model converts the record to its domain form.
func (r WaitingListRecord) Model() model.WaitingListEntry {
	return model.WaitingListEntry{
		ID:             model.WaitingListID(r.ID),
		EventID:        model.EventID(r.EventID),
		UserID:         model.UserID(r.UserID),
		Status:         model.WaitingListStatus(r.Status),
		OfferExpiresAt: fromNullMillis(r.OfferExpiresAt),
		CreatedAt:      fromMillis(r.CreatedAt),
		UpdatedAt:      fromMillis(r.UpdatedAt),
	}
}

const waitingListColumns = `id, event_id, user_id, status, offer_expires_at, created_at, updated_at`

// WaitingListRepo provides access to the waiting_list table.  Status
// changes are conditional on the current status so that concurrent
// timers and sweeps cannot apply the same transition twice.
type WaitingListRepo struct{}

// NewWaitingListRepo creates a new WaitingListRepo.
func NewWaitingListRepo() *WaitingListRepo { return &WaitingListRepo{} }

// Insert adds a waiting entry and returns its id.
func (r *WaitingListRepo) Insert(ctx context.Context, q sqlx.ExtContext, eventID model.EventID, userID model.UserID, now time.Time) (model.WaitingListID, error) {
	res, err := q.ExecContext(ctx,
		`INSERT INTO waiting_list (event_id, user_id, status, offer_expires_at, created_at, updated_at)
		 VALUES (?, ?, ?, NULL, ?, ?)`,
		int64(eventID), string(userID), string(model.WaitingListWaiting), toMillis(now), toMillis(now))
	if err != nil {
		return 0, wrap("insert waiting entry", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, wrap("insert waiting entry", err)
	}
	return model.WaitingListID(id), nil
}

// Get loads one entry.
func (r *WaitingListRepo) Get(ctx context.Context, q sqlx.QueryerContext, id model.WaitingListID) (*model.WaitingListEntry, error) {
	var rec WaitingListRecord
	if err := sqlx.GetContext(ctx, q, &rec,
		`SELECT `+waitingListColumns+` FROM waiting_list WHERE id = ?`, int64(id)); err != nil {
		return nil, wrap("get waiting entry", err)
	}
	e := rec.Model()
	return &e, nil
}

// FindActive returns the user's waiting or offered entry for an event,
// or ErrNotFound.
func (r *WaitingListRepo) FindActive(ctx context.Context, q sqlx.QueryerContext, eventID model.EventID, userID model.UserID) (*model.WaitingListEntry, error) {
	var rec WaitingListRecord
	err := sqlx.GetContext(ctx, q, &rec,
		`SELECT `+waitingListColumns+` FROM waiting_list
		 WHERE event_id = ? AND user_id = ? AND status IN (?, ?)
		 ORDER BY id DESC LIMIT 1`,
		int64(eventID), string(userID), string(model.WaitingListWaiting), string(model.WaitingListOffered))
	if err != nil {
		return nil, wrap("find active entry", err)
	}
	e := rec.Model()
	return &e, nil
}

// Latest returns the user's most recent entry for an event regardless of
// status, or ErrNotFound.
func (r *WaitingListRepo) Latest(ctx context.Context, q sqlx.QueryerContext, eventID model.EventID, userID model.UserID) (*model.WaitingListEntry, error) {
	var rec WaitingListRecord
	err := sqlx.GetContext(ctx, q, &rec,
		`SELECT `+waitingListColumns+` FROM waiting_list
		 WHERE event_id = ? AND user_id = ? ORDER BY id DESC LIMIT 1`,
		int64(eventID), string(userID))
	if err != nil {
		return nil, wrap("latest entry", err)
	}
	e := rec.Model()
	return &e, nil
}

// CountByStatus counts an event's entries in status.
func (r *WaitingListRepo) CountByStatus(ctx context.Context, q sqlx.QueryerContext, eventID model.EventID, status model.WaitingListStatus) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, q, &n,
		`SELECT COUNT(*) FROM waiting_list WHERE event_id = ? AND status = ?`, int64(eventID), string(status))
	return n, wrap("count entries", err)
}

// Position returns the 1-based FIFO position of a waiting entry.
func (r *WaitingListRepo) Position(ctx context.Context, q sqlx.QueryerContext, eventID model.EventID, id model.WaitingListID) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, q, &n,
		`SELECT COUNT(*) FROM waiting_list WHERE event_id = ? AND status = ? AND id <= ?`,
		int64(eventID), string(model.WaitingListWaiting), int64(id))
	return n, wrap("queue position", err)
}

// NextWaiting returns up to limit waiting entries in FIFO order.
func (r *WaitingListRepo) NextWaiting(ctx context.Context, q sqlx.QueryerContext, eventID model.EventID, limit int) ([]model.WaitingListEntry, error) {
	var recs []WaitingListRecord
	err := sqlx.SelectContext(ctx, q, &recs,
		`SELECT `+waitingListColumns+` FROM waiting_list
		 WHERE event_id = ? AND status = ? ORDER BY id ASC LIMIT ?`,
		int64(eventID), string(model.WaitingListWaiting), limit)
	if err != nil {
		return nil, wrap("next waiting", err)
	}
	return waitingModels(recs), nil
}

// Offer moves a waiting entry to offered with the given expiry.
func (r *WaitingListRepo) Offer(ctx context.Context, q sqlx.ExecerContext, id model.WaitingListID, expiresAt, now time.Time) (bool, error) {
	ok, err := rowsChanged(q.ExecContext(ctx,
		`UPDATE waiting_list SET status = ?, offer_expires_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		string(model.WaitingListOffered), toMillis(expiresAt), toMillis(now),
		int64(id), string(model.WaitingListWaiting)))
	return ok, wrap("offer entry", err)
}

// Transition moves an entry from one status to another.  It reports
// false, without error, when the entry was no longer in from.
func (r *WaitingListRepo) Transition(ctx context.Context, q sqlx.ExecerContext, id model.WaitingListID, from, to model.WaitingListStatus, now time.Time) (bool, error) {
	ok, err := rowsChanged(q.ExecContext(ctx,
		`UPDATE waiting_list SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(to), toMillis(now), int64(id), string(from)))
	return ok, wrap("transition entry", err)
}

// ExpiredOffers lists offered entries whose expiry is before now and
// that carry no pending transaction.  Offers that are backing a pending
// claim are timed out through the transaction instead.
func (r *WaitingListRepo) ExpiredOffers(ctx context.Context, q sqlx.QueryerContext, now time.Time) ([]model.WaitingListEntry, error) {
	var recs []WaitingListRecord
	err := sqlx.SelectContext(ctx, q, &recs,
		`SELECT `+waitingListColumns+` FROM waiting_list w
		 WHERE w.status = ? AND w.offer_expires_at < ?
		   AND NOT EXISTS (
		     SELECT 1 FROM transactions t WHERE t.waiting_list_id = w.id AND t.status = ?
		   )
		 ORDER BY w.event_id, w.id`,
		string(model.WaitingListOffered), toMillis(now), string(model.TransactionPending))
	if err != nil {
		return nil, wrap("expired offers", err)
	}
	return waitingModels(recs), nil
}

// ListOffered returns every offered entry.  Used to re-arm offer timers
// on startup.
func (r *WaitingListRepo) ListOffered(ctx context.Context, q sqlx.QueryerContext) ([]model.WaitingListEntry, error) {
	var recs []WaitingListRecord
	err := sqlx.SelectContext(ctx, q, &recs,
		`SELECT `+waitingListColumns+` FROM waiting_list WHERE status = ? ORDER BY id`,
		string(model.WaitingListOffered))
	if err != nil {
		return nil, wrap("list offered", err)
	}
	return waitingModels(recs), nil
}

func waitingModels(recs []WaitingListRecord) []model.WaitingListEntry {
	out := make([]model.WaitingListEntry, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.Model())
	}
	return out
}
