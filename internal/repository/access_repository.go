package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// AccessControl is a single grant tuple: user X may exercise permission P on
// service Y. The permission string is free-form and matched by exact string
// equality during authorization; it is not validated against the permission
// catalog.
type AccessControl struct {
	ID         uint64    `json:"id"`
	UserID     uint64    `json:"user_id"`
	ServiceID  uint64    `json:"service_id"`
	Permission string    `json:"permission"`
	CreatedAt  time.Time `json:"created_at"`
}

var (
	ErrGrantExists   = errors.New("grant already exists")
	ErrGrantNotFound = errors.New("grant not found")
)

// AccessRepo manages access control grants.
type AccessRepo struct{ DB *sql.DB }

func NewAccessRepo(db *sql.DB) *AccessRepo { return &AccessRepo{DB: db} }

// Create inserts a grant. Uniqueness of (user_id, service_id, permission)
// is enforced by the database index, so the insert itself is the duplicate
// check: two concurrent identical requests produce exactly one row and one
// ErrGrantExists, with no window in between.
func (r *AccessRepo) Create(ctx context.Context, ac *AccessControl) error {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO access_controls (user_id, service_id, permission) VALUES (?,?,?)",
		ac.UserID, ac.ServiceID, ac.Permission)
	if err != nil {
		if isDuplicateKey(err) {
			return ErrGrantExists
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	ac.ID = uint64(id)
	return r.DB.QueryRowContext(ctx,
		"SELECT created_at FROM access_controls WHERE id=?", ac.ID).Scan(&ac.CreatedAt)
}

// Find looks up the grant matching the exact (user, service, permission)
// tuple. This is the membership test the authorization engine relies on.
func (r *AccessRepo) Find(ctx context.Context, userID, serviceID uint64, permission string) (*AccessControl, error) {
	var ac AccessControl
	err := r.DB.QueryRowContext(ctx, `
		SELECT id, user_id, service_id, permission, created_at
		FROM access_controls
		WHERE user_id=? AND service_id=? AND permission=? LIMIT 1`,
		userID, serviceID, permission).
		Scan(&ac.ID, &ac.UserID, &ac.ServiceID, &ac.Permission, &ac.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrGrantNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ac, nil
}

// GetByID fetches a grant by its id.
func (r *AccessRepo) GetByID(ctx context.Context, id uint64) (*AccessControl, error) {
	var ac AccessControl
	err := r.DB.QueryRowContext(ctx, `
		SELECT id, user_id, service_id, permission, created_at
		FROM access_controls WHERE id=?`, id).
		Scan(&ac.ID, &ac.UserID, &ac.ServiceID, &ac.Permission, &ac.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrGrantNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ac, nil
}

// List returns all grants ordered by id.
func (r *AccessRepo) List(ctx context.Context) ([]AccessControl, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, user_id, service_id, permission, created_at
		FROM access_controls ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AccessControl
	for rows.Next() {
		var ac AccessControl
		if err := rows.Scan(&ac.ID, &ac.UserID, &ac.ServiceID, &ac.Permission, &ac.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, ac)
	}
	return out, rows.Err()
}

// Delete revokes a grant by id.
func (r *AccessRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM access_controls WHERE id=?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrGrantNotFound
	}
	return nil
}
