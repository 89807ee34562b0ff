package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// CloudService mirrors the 'cloud_services' table. MaxCallsPerMinute is the
// per-user invocation quota the authorization engine enforces over a sliding
// one-minute window; the column defaults to 60 and may be overridden per
// service.
type CloudService struct {
	ID                uint64    `json:"id"`
	Name              string    `json:"name"`
	Description       string    `json:"description"`
	MaxCallsPerMinute int       `json:"max_calls_per_minute"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// ErrServiceNotFound is returned when a cloud service cannot be found.
var ErrServiceNotFound = errors.New("service not found")

// ServiceRepo encapsulates all database queries related to cloud services.
type ServiceRepo struct{ DB *sql.DB }

func NewServiceRepo(db *sql.DB) *ServiceRepo { return &ServiceRepo{DB: db} }

const serviceCols = "id, name, description, max_calls_per_minute, created_at, updated_at"

// Create inserts a new service. On success the ID and timestamp fields are
// populated from the stored row. A duplicate name yields ErrConflict.
func (r *ServiceRepo) Create(ctx context.Context, s *CloudService) error {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO cloud_services (name, description, max_calls_per_minute) VALUES (?,?,?)",
		s.Name, s.Description, s.MaxCallsPerMinute)
	if err != nil {
		if isDuplicateKey(err) {
			return ErrConflict
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	s.ID = uint64(id)
	return r.DB.QueryRowContext(ctx,
		"SELECT "+serviceCols+" FROM cloud_services WHERE id=?", s.ID).
		Scan(&s.ID, &s.Name, &s.Description, &s.MaxCallsPerMinute, &s.CreatedAt, &s.UpdatedAt)
}

// GetByID fetches a service by id, returning ErrServiceNotFound when absent.
func (r *ServiceRepo) GetByID(ctx context.Context, id uint64) (*CloudService, error) {
	return r.getOne(ctx, "SELECT "+serviceCols+" FROM cloud_services WHERE id=?", id)
}

// GetByName fetches a service by its unique name.
func (r *ServiceRepo) GetByName(ctx context.Context, name string) (*CloudService, error) {
	return r.getOne(ctx, "SELECT "+serviceCols+" FROM cloud_services WHERE name=?", name)
}

func (r *ServiceRepo) getOne(ctx context.Context, q string, arg any) (*CloudService, error) {
	var s CloudService
	err := r.DB.QueryRowContext(ctx, q, arg).
		Scan(&s.ID, &s.Name, &s.Description, &s.MaxCallsPerMinute, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrServiceNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// List returns the full service catalog ordered by id.
func (r *ServiceRepo) List(ctx context.Context) ([]*CloudService, error) {
	rows, err := r.DB.QueryContext(ctx, "SELECT "+serviceCols+" FROM cloud_services ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*CloudService
	for rows.Next() {
		s := new(CloudService)
		if err := rows.Scan(&s.ID, &s.Name, &s.Description, &s.MaxCallsPerMinute, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Update replaces name, description and quota of an existing service.
func (r *ServiceRepo) Update(ctx context.Context, s *CloudService) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE cloud_services SET name=?, description=?, max_calls_per_minute=? WHERE id=?",
		s.Name, s.Description, s.MaxCallsPerMinute, s.ID)
	if err != nil {
		if isDuplicateKey(err) {
			return ErrConflict
		}
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		// Zero rows can also mean a no-op update; confirm existence.
		if _, err := r.GetByID(ctx, s.ID); err != nil {
			return err
		}
	}
	return r.DB.QueryRowContext(ctx,
		"SELECT "+serviceCols+" FROM cloud_services WHERE id=?", s.ID).
		Scan(&s.ID, &s.Name, &s.Description, &s.MaxCallsPerMinute, &s.CreatedAt, &s.UpdatedAt)
}

// Delete removes a service; its access controls and usage records cascade.
func (r *ServiceRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM cloud_services WHERE id=?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrServiceNotFound
	}
	return nil
}
