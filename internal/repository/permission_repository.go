package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
)

// Permission is a catalog entry naming a capability on a service, e.g.
// "read" on "gaming-api". The catalog is a separate namespace from the
// free-form permission strings stored on access control grants: creating a
// catalog entry does not grant anything, and a grant string is never
// validated against the catalog.
type Permission struct {
	ID          uint64 `json:"id"`
	Name        string `json:"name"`
	ServiceName string `json:"service_name"`
}

var ErrPermissionExists = errors.New("permission already exists")

type PermissionRepo struct{ DB *sql.DB }

func NewPermissionRepo(db *sql.DB) *PermissionRepo { return &PermissionRepo{DB: db} }

// Create inserts a catalog permission. The (name, service_name) pair is
// unique at the database level, so two concurrent creates of the same pair
// cannot both succeed; the loser gets ErrPermissionExists.
func (r *PermissionRepo) Create(ctx context.Context, p *Permission) error {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO permissions (name, service_name) VALUES (?,?)",
		p.Name, p.ServiceName)
	if err != nil {
		if isDuplicateKey(err) {
			return ErrPermissionExists
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = uint64(id)
	return nil
}

// List returns every catalog permission ordered by id.
func (r *PermissionRepo) List(ctx context.Context) ([]Permission, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT id, name, service_name FROM permissions ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPermissions(rows)
}

// ListByIDs resolves a set of permission ids to their catalog rows. Unknown
// ids are simply absent from the result, which is what makes plan payloads
// referencing nonexistent permissions silently drop them.
func (r *PermissionRepo) ListByIDs(ctx context.Context, ids []uint64) ([]Permission, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := r.DB.QueryContext(ctx,
		"SELECT id, name, service_name FROM permissions WHERE id IN ("+placeholders+") ORDER BY id",
		args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPermissions(rows)
}

func scanPermissions(rows *sql.Rows) ([]Permission, error) {
	var out []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.ServiceName); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
