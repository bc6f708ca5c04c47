package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ariefcatur/custom-orders/internal/access"
	"github.com/ariefcatur/custom-orders/internal/apperr"
	"github.com/ariefcatur/custom-orders/internal/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type User struct {
	ID           string      `json:"id"`
	Username     string      `json:"username"`
	Email        string      `json:"email"`
	PasswordHash string      `json:"-"`
	Role         access.Role `json:"role"`
	IsStaff      bool        `json:"is_staff"`
	IsActive     bool        `json:"is_active"`
	CreatedAt    time.Time   `json:"created_at"`
}

func (u User) Identity() access.Identity {
	return access.Identity{UserID: u.ID, Username: u.Username, Role: u.Role}
}

// UserStore persists accounts. CreateUser fails with apperr.ErrConflict on
// a duplicate email; lookups fail with apperr.ErrNotFound.
type UserStore interface {
	CreateUser(ctx context.Context, u User) error
	UserByEmail(ctx context.Context, email string) (User, error)
	UserByID(ctx context.Context, id string) (User, error)
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

type UserRepo struct{ DB *pgxpool.Pool }

const userColumns = `id, username, email, password_hash, role, is_staff, is_active, created_at`

func (r *UserRepo) CreateUser(ctx context.Context, u User) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO users(`+userColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		u.ID, u.Username, u.Email, u.PasswordHash, string(u.Role), u.IsStaff, u.IsActive, u.CreatedAt)
	if postgres.IsUniqueViolation(err) {
		return fmt.Errorf("%w: user with email %s already exists", apperr.ErrConflict, u.Email)
	}
	return err
}

func (r *UserRepo) UserByEmail(ctx context.Context, email string) (User, error) {
	return r.one(ctx, `SELECT `+userColumns+` FROM users WHERE email=$1`, email)
}

func (r *UserRepo) UserByID(ctx context.Context, id string) (User, error) {
	return r.one(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id)
}

func (r *UserRepo) one(ctx context.Context, q, arg string) (User, error) {
	var (
		u    User
		role string
	)
	err := r.DB.QueryRow(ctx, q, arg).Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &role, &u.IsStaff, &u.IsActive, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, fmt.Errorf("%w: user", apperr.ErrNotFound)
	}
	if err != nil {
		return User{}, err
	}
	u.Role = access.Role(role)
	return u, nil
}

var _ UserStore = (*UserRepo)(nil)
