package repository

import (
	"context"
	"database/sql"
	"time"
)

// UsageRecord is an immutable fact: user X invoked service Y at time T.
// Rows are append-only; nothing updates them and they disappear only when
// their user or service is deleted.
type UsageRecord struct {
	ID        uint64    `json:"id"`
	UserID    uint64    `json:"user_id"`
	ServiceID uint64    `json:"service_id"`
	CreatedAt time.Time `json:"timestamp"`
}

// UsageRepo appends and counts invocation records. Counting is always done
// against the live table so every quota decision sees the latest committed
// usage.
type UsageRepo struct{ DB *sql.DB }

func NewUsageRepo(db *sql.DB) *UsageRepo { return &UsageRepo{DB: db} }

// Append inserts one usage row with a server-assigned timestamp and returns
// the stored record.
func (r *UsageRepo) Append(ctx context.Context, userID, serviceID uint64) (*UsageRecord, error) {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO usage_records (user_id, service_id) VALUES (?,?)",
		userID, serviceID)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	rec := &UsageRecord{ID: uint64(id), UserID: userID, ServiceID: serviceID}
	err = r.DB.QueryRowContext(ctx,
		"SELECT created_at FROM usage_records WHERE id=?", rec.ID).Scan(&rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// CountSince returns how many invocations of the service the user has made
// at or after the cutoff instant.
func (r *UsageRepo) CountSince(ctx context.Context, userID, serviceID uint64, since time.Time) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM usage_records
		WHERE user_id=? AND service_id=? AND created_at >= ?`,
		userID, serviceID, since.UTC()).Scan(&n)
	return n, err
}

// ListByUser returns the user's full usage history, newest first.
func (r *UsageRepo) ListByUser(ctx context.Context, userID uint64) ([]UsageRecord, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, user_id, service_id, created_at
		FROM usage_records WHERE user_id=? ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []UsageRecord
	for rows.Next() {
		var u UsageRecord
		if err := rows.Scan(&u.ID, &u.UserID, &u.ServiceID, &u.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// Reservation is the outcome of an atomic quota reservation.
type Reservation struct {
	Allowed bool // whether a slot was taken and a usage row written
	Count   int  // committed invocations inside the window before this call
	Limit   int  // the service's max_calls_per_minute at decision time
}

// ReserveSlot atomically evaluates the sliding-window quota and, when under
// the limit, appends the usage row, all in one transaction with the service
// row locked. Concurrent invocations for the same service serialize on the
// row lock, so the recorded count can never exceed the limit the way the
// separate check-then-record sequence allows. Returns ErrServiceNotFound
// when the service does not exist.
func (r *UsageRepo) ReserveSlot(ctx context.Context, userID, serviceID uint64, since time.Time) (Reservation, error) {
	var rv Reservation
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return rv, err
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.QueryRowContext(ctx,
		"SELECT max_calls_per_minute FROM cloud_services WHERE id=? FOR UPDATE",
		serviceID).Scan(&rv.Limit)
	if err != nil {
		if err == sql.ErrNoRows {
			return rv, ErrServiceNotFound
		}
		return rv, err
	}

	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM usage_records
		WHERE user_id=? AND service_id=? AND created_at >= ?`,
		userID, serviceID, since.UTC()).Scan(&rv.Count)
	if err != nil {
		return rv, err
	}
	if rv.Count >= rv.Limit {
		return rv, tx.Commit()
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO usage_records (user_id, service_id) VALUES (?,?)",
		userID, serviceID); err != nil {
		return rv, err
	}
	rv.Allowed = true
	return rv, tx.Commit()
}
