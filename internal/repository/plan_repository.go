package repository

import (
	"context"
	"database/sql"
	"errors"
)

// Plan bundles catalog permissions under a subscription tier with its own
// nominal quota. Users reference at most one plan. Note the authorization
// engine does not consult plan permissions when deciding access; the bundle
// exists as a provisioning convenience and a future extension point.
type Plan struct {
	ID                uint64       `json:"id"`
	Name              string       `json:"name"`
	Description       string       `json:"description"`
	MaxCallsPerMinute int          `json:"max_calls_per_minute"`
	Permissions       []Permission `json:"permissions"`
}

var (
	ErrPlanExists   = errors.New("plan name already exists")
	ErrPlanNotFound = errors.New("plan not found")
)

// PlanRepo manages plans and their permission associations. Association
// rewrites run inside a transaction so a plan is never observable with a
// half-updated permission set.
type PlanRepo struct{ DB *sql.DB }

func NewPlanRepo(db *sql.DB) *PlanRepo { return &PlanRepo{DB: db} }

// Create inserts a plan and associates the catalog permissions whose ids
// resolve. Ids that match no catalog row are dropped without error; the
// returned plan carries only the permissions that actually exist.
func (r *PlanRepo) Create(ctx context.Context, p *Plan, permissionIDs []uint64) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		"INSERT INTO plans (name, description, max_calls_per_minute) VALUES (?,?,?)",
		p.Name, p.Description, p.MaxCallsPerMinute)
	if err != nil {
		if isDuplicateKey(err) {
			return ErrPlanExists
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = uint64(id)

	perms, err := r.associateTx(ctx, tx, p.ID, permissionIDs)
	if err != nil {
		return err
	}
	p.Permissions = perms
	return tx.Commit()
}

// Get loads a plan with its permissions resolved.
func (r *PlanRepo) Get(ctx context.Context, id uint64) (*Plan, error) {
	var p Plan
	err := r.DB.QueryRowContext(ctx,
		"SELECT id, name, description, max_calls_per_minute FROM plans WHERE id=?", id).
		Scan(&p.ID, &p.Name, &p.Description, &p.MaxCallsPerMinute)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPlanNotFound
	}
	if err != nil {
		return nil, err
	}
	perms, err := r.permissionsOf(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	p.Permissions = perms
	return &p, nil
}

// List returns all plans with their permissions resolved.
func (r *PlanRepo) List(ctx context.Context) ([]*Plan, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT id, name, description, max_calls_per_minute FROM plans ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Plan
	for rows.Next() {
		p := new(Plan)
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.MaxCallsPerMinute); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, p := range out {
		perms, err := r.permissionsOf(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		p.Permissions = perms
	}
	return out, nil
}

// Update replaces a plan's fields and rewrites its permission associations.
// The same lenient id policy as Create applies.
func (r *PlanRepo) Update(ctx context.Context, p *Plan, permissionIDs []uint64) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		"UPDATE plans SET name=?, description=?, max_calls_per_minute=? WHERE id=?",
		p.Name, p.Description, p.MaxCallsPerMinute, p.ID)
	if err != nil {
		if isDuplicateKey(err) {
			return ErrPlanExists
		}
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		var exists uint64
		if err := tx.QueryRowContext(ctx, "SELECT id FROM plans WHERE id=?", p.ID).Scan(&exists); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrPlanNotFound
			}
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM plan_permissions WHERE plan_id=?", p.ID); err != nil {
		return err
	}
	perms, err := r.associateTx(ctx, tx, p.ID, permissionIDs)
	if err != nil {
		return err
	}
	p.Permissions = perms
	return tx.Commit()
}

// Delete removes a plan. Subscribed users fall back to no plan via the
// ON DELETE SET NULL foreign key; association rows cascade.
func (r *PlanRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM plans WHERE id=?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrPlanNotFound
	}
	return nil
}

// associateTx resolves permissionIDs against the catalog inside tx and
// inserts association rows for the ones that exist.
func (r *PlanRepo) associateTx(ctx context.Context, tx *sql.Tx, planID uint64, permissionIDs []uint64) ([]Permission, error) {
	if len(permissionIDs) == 0 {
		return nil, nil
	}
	seen := make(map[uint64]bool, len(permissionIDs))
	var perms []Permission
	for _, pid := range permissionIDs {
		if seen[pid] {
			continue
		}
		seen[pid] = true
		var p Permission
		err := tx.QueryRowContext(ctx,
			"SELECT id, name, service_name FROM permissions WHERE id=?", pid).
			Scan(&p.ID, &p.Name, &p.ServiceName)
		if errors.Is(err, sql.ErrNoRows) {
			continue // unknown ids are dropped, not rejected
		}
		if err != nil {
			return nil, err
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO plan_permissions (plan_id, permission_id) VALUES (?,?)",
			planID, p.ID); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, nil
}

// permissionsOf loads the resolved permission set of a plan.
func (r *PlanRepo) permissionsOf(ctx context.Context, planID uint64) ([]Permission, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT p.id, p.name, p.service_name
		FROM permissions p
		JOIN plan_permissions pp ON pp.permission_id = p.id
		WHERE pp.plan_id = ?
		ORDER BY p.id`, planID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPermissions(rows)
}
