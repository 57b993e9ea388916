package lead

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/premunia/leadline/internal/pgutil"
)

var (
	// ErrNotFound is returned when no lead matches the id.
	ErrNotFound = errors.New("lead not found")
	// ErrDuplicate is returned if a uniqueness constraint on leads is violated.
	ErrDuplicate = errors.New("lead already exists")
)

const leadColumns = `id, first_name, last_name, email, phone, profession, message, notes, status, created_at, updated_at`

// Store provides database operations for leads.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new lead store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func scanLead(scan func(dest ...any) error) (*Lead, error) {
	l := &Lead{}
	err := scan(&l.ID, &l.FirstName, &l.LastName, &l.Email, &l.Phone, &l.Profession,
		&l.Message, &l.Notes, &l.Status, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return l, nil
}

// Create inserts a new lead with status "new".
func (s *Store) Create(ctx context.Context, in CreateLeadInput) (*Lead, error) {
	l, err := scanLead(func(dest ...any) error {
		return s.pool.QueryRow(ctx,
			`INSERT INTO leads (first_name, last_name, email, phone, profession, message, status)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 RETURNING `+leadColumns,
			in.FirstName, in.LastName, in.Email, in.Phone, in.Profession, in.Message, string(StatusNew),
		).Scan(dest...)
	})
	if err != nil {
		if pgutil.IsUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("creating lead: %w", err)
	}
	return l, nil
}

// List returns all leads, newest first.
func (s *Store) List(ctx context.Context) ([]*Lead, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+leadColumns+` FROM leads ORDER BY created_at DESC, id DESC`)
	if err != nil {
		if pgutil.IsUndefinedTable(err) {
			return []*Lead{}, nil
		}
		return nil, fmt.Errorf("listing leads: %w", err)
	}
	defer rows.Close()

	leads := []*Lead{}
	for rows.Next() {
		l, err := scanLead(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning lead row: %w", err)
		}
		leads = append(leads, l)
	}
	return leads, rows.Err()
}

// GetByID retrieves a lead by primary key.
func (s *Store) GetByID(ctx context.Context, id string) (*Lead, error) {
	l, err := scanLead(func(dest ...any) error {
		return s.pool.QueryRow(ctx,
			`SELECT `+leadColumns+` FROM leads WHERE id = $1`, id,
		).Scan(dest...)
	})
	if err != nil {
		if pgutil.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting lead: %w", err)
	}
	return l, nil
}

// Update performs a partial update and always stamps updated_at.
func (s *Store) Update(ctx context.Context, id string, in UpdateLeadInput) (*Lead, error) {
	setClauses := []string{"updated_at = now()"}
	var args []any
	argIdx := 1

	add := func(column string, value any) {
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", column, argIdx))
		args = append(args, value)
		argIdx++
	}

	if in.FirstName != nil {
		add("first_name", *in.FirstName)
	}
	if in.LastName != nil {
		add("last_name", *in.LastName)
	}
	if in.Email != nil {
		add("email", *in.Email)
	}
	if in.Phone != nil {
		add("phone", nullable(*in.Phone))
	}
	if in.Profession != nil {
		add("profession", nullable(*in.Profession))
	}
	if in.Message != nil {
		add("message", nullable(*in.Message))
	}
	if in.Notes != nil {
		add("notes", nullable(*in.Notes))
	}
	if in.Status != nil {
		add("status", string(*in.Status))
	}

	args = append(args, id)
	query := fmt.Sprintf(
		`UPDATE leads SET %s WHERE id = $%d RETURNING `+leadColumns,
		strings.Join(setClauses, ", "), argIdx,
	)

	l, err := scanLead(func(dest ...any) error {
		return s.pool.QueryRow(ctx, query, args...).Scan(dest...)
	})
	if err != nil {
		if pgutil.IsNoRows(err) {
			return nil, ErrNotFound
		}
		if pgutil.IsUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("updating lead: %w", err)
	}
	return l, nil
}

// Delete removes a lead by id.
func (s *Store) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM leads WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting lead: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// nullable maps an empty string to SQL NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
