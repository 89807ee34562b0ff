package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/accesshub/cloud-access-gateway/internal/utils"
)

// User mirrors the 'users' table. PlanID is nil for users without a
// subscription. The plan's bundled permissions are not consulted by the
// authorization engine; only explicit access_controls rows grant access.
type User struct {
	ID           uint64
	Username     string
	Email        string
	PasswordHash string
	Role         string
	PlanID       *uint64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Roles recognized by the gateway. Anything else in the role column is
// treated as an ordinary user by the middleware.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

var (
	ErrUsernameExists = errors.New("username already exists")
	ErrEmailExists    = errors.New("email already exists")
	ErrUserNotFound   = errors.New("user not found")
)

const userCols = "id,username,email,password_hash,role,plan_id,created_at,updated_at"

// Create hashes the password and inserts the user, returning its ID. New
// users always start with the 'user' role; admins are promoted out of band.
func (r *UserRepo) Create(ctx context.Context, username, email, password string, cost int) (uint64, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	email = strings.ToLower(strings.TrimSpace(email))
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (username, email, password_hash, role) VALUES (?,?,?,?)",
		username, email, hash, RoleUser)
	if err != nil {
		if isDuplicateKey(err) {
			if strings.Contains(err.Error(), "uq_users_email") {
				return 0, ErrEmailExists
			}
			return 0, ErrUsernameExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (User, error) {
	return r.getOne(ctx, "SELECT "+userCols+" FROM users WHERE id=? LIMIT 1", id)
}

// GetByUsername fetches a user by normalized username.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (User, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	return r.getOne(ctx, "SELECT "+userCols+" FROM users WHERE username=? LIMIT 1", username)
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return r.getOne(ctx, "SELECT "+userCols+" FROM users WHERE email=? LIMIT 1", email)
}

func (r *UserRepo) getOne(ctx context.Context, q string, arg any) (User, error) {
	var (
		u      User
		planID sql.NullInt64
	)
	err := r.DB.QueryRowContext(ctx, q, arg).Scan(
		&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Role, &planID, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, err
	}
	if planID.Valid {
		v := uint64(planID.Int64)
		u.PlanID = &v
	}
	return u, nil
}

// List returns all users ordered by id.
func (r *UserRepo) List(ctx context.Context) ([]User, error) {
	rows, err := r.DB.QueryContext(ctx, "SELECT "+userCols+" FROM users ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var (
			u      User
			planID sql.NullInt64
		)
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Role, &planID, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		if planID.Valid {
			v := uint64(planID.Int64)
			u.PlanID = &v
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// SetPlan subscribes the user to a plan. A failing plan foreign key surfaces
// as ErrPlanNotFound so handlers can answer 404 instead of 500.
func (r *UserRepo) SetPlan(ctx context.Context, userID, planID uint64) error {
	res, err := r.DB.ExecContext(ctx, "UPDATE users SET plan_id=? WHERE id=?", planID, userID)
	if err != nil {
		if strings.Contains(err.Error(), "fk_users_plan") {
			return ErrPlanNotFound
		}
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Either the user does not exist or the plan was already set;
		// disambiguate with a lookup so callers get a proper 404.
		if _, err := r.GetByID(ctx, userID); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes a user. Grants and usage records cascade in the database.
func (r *UserRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM users WHERE id=?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}
