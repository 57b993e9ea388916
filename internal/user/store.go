package user

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/premunia/leadline/internal/auth"
	"github.com/premunia/leadline/internal/pgutil"
)

var (
	// ErrNotFound is returned when no user matches the lookup.
	ErrNotFound = errors.New("user not found")
	// ErrEmailTaken is returned when the email is already registered.
	ErrEmailTaken = errors.New("email already registered")
)

const userColumns = `id, email, password_hash, first_name, last_name, is_active, created_at`

// Store provides database operations for users and their roles.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new user store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func scanUser(scan func(dest ...any) error) (*User, error) {
	u := &User{}
	err := scan(&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.IsActive, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// Create inserts a new active user.
func (s *Store) Create(ctx context.Context, in CreateUserInput) (*User, error) {
	u, err := scanUser(func(dest ...any) error {
		return s.pool.QueryRow(ctx,
			`INSERT INTO users (email, password_hash, first_name, last_name, is_active)
			 VALUES ($1, $2, $3, $4, true)
			 RETURNING `+userColumns,
			in.Email, in.PasswordHash, in.FirstName, in.LastName,
		).Scan(dest...)
	})
	if err != nil {
		if pgutil.IsUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("creating user: %w", err)
	}
	return u, nil
}

// GetByID retrieves a user by primary key.
func (s *Store) GetByID(ctx context.Context, id string) (*User, error) {
	u, err := scanUser(func(dest ...any) error {
		return s.pool.QueryRow(ctx,
			`SELECT `+userColumns+` FROM users WHERE id = $1`, id,
		).Scan(dest...)
	})
	if err != nil {
		if pgutil.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting user by id: %w", err)
	}
	return u, nil
}

// GetActiveByEmail retrieves an active user by email address.
func (s *Store) GetActiveByEmail(ctx context.Context, email string) (*User, error) {
	u, err := scanUser(func(dest ...any) error {
		return s.pool.QueryRow(ctx,
			`SELECT `+userColumns+` FROM users WHERE email = $1 AND is_active`, email,
		).Scan(dest...)
	})
	if err != nil {
		if pgutil.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting user by email: %w", err)
	}
	return u, nil
}

// GetRole returns the user's role, or auth.RoleUser when none is assigned.
func (s *Store) GetRole(ctx context.Context, userID string) (string, error) {
	var role string
	err := s.pool.QueryRow(ctx,
		`SELECT role FROM user_roles WHERE user_id = $1`, userID,
	).Scan(&role)
	if err != nil {
		if pgutil.IsNoRows(err) || pgutil.IsUndefinedTable(err) {
			return auth.RoleUser, nil
		}
		return "", fmt.Errorf("getting user role: %w", err)
	}
	return role, nil
}

// SetRole assigns role to the user, replacing any previous assignment.
func (s *Store) SetRole(ctx context.Context, userID, role string) error {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO user_roles (user_id, role, updated_at)
		 SELECT id, $2, now() FROM users WHERE id = $1
		 ON CONFLICT (user_id) DO UPDATE SET role = EXCLUDED.role, updated_at = now()`,
		userID, role,
	)
	if err != nil {
		return fmt.Errorf("setting user role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// IDByEmail resolves an email to a user id.
func (s *Store) IDByEmail(ctx context.Context, email string) (string, error) {
	var id string
	err := s.pool.QueryRow(ctx, `SELECT id FROM users WHERE email = $1`, email).Scan(&id)
	if err != nil {
		if pgutil.IsNoRows(err) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("resolving user email: %w", err)
	}
	return id, nil
}
