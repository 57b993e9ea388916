package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/premunia/leadline/internal/pgutil"
)

// ErrNotFound is returned when a key has no value.
var ErrNotFound = errors.New("setting not found")

// Store provides database operations for the app_settings table.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new settings store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// GetAll returns every key and value. A missing table reads as empty.
func (s *Store) GetAll(ctx context.Context) (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage)

	rows, err := s.pool.Query(ctx, `SELECT key, value FROM app_settings`)
	if err != nil {
		if pgutil.IsUndefinedTable(err) {
			return out, nil
		}
		return nil, fmt.Errorf("listing settings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scanning setting row: %w", err)
		}
		out[key] = json.RawMessage(value)
	}
	if err := rows.Err(); err != nil {
		if pgutil.IsUndefinedTable(err) {
			return map[string]json.RawMessage{}, nil
		}
		return nil, err
	}
	return out, nil
}

// Get returns one setting.
func (s *Store) Get(ctx context.Context, key string) (*Setting, error) {
	st := &Setting{}
	var value []byte
	err := s.pool.QueryRow(ctx,
		`SELECT key, value, updated_by, updated_at FROM app_settings WHERE key = $1`, key,
	).Scan(&st.Key, &value, &st.UpdatedBy, &st.UpdatedAt)
	if err != nil {
		if pgutil.IsNoRows(err) || pgutil.IsUndefinedTable(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting setting: %w", err)
	}
	st.Value = json.RawMessage(value)
	return st, nil
}

// Upsert writes value under key, replacing any previous value.
func (s *Store) Upsert(ctx context.Context, key string, value json.RawMessage, updatedBy *string) (*Setting, error) {
	st := &Setting{}
	var stored []byte
	err := s.pool.QueryRow(ctx,
		`INSERT INTO app_settings (key, value, updated_by, updated_at)
		 VALUES ($1, $2::jsonb, $3, now())
		 ON CONFLICT (key) DO UPDATE
		   SET value = EXCLUDED.value, updated_by = EXCLUDED.updated_by, updated_at = now()
		 RETURNING key, value, updated_by, updated_at`,
		key, string(value), updatedBy,
	).Scan(&st.Key, &stored, &st.UpdatedBy, &st.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("upserting setting: %w", err)
	}
	st.Value = json.RawMessage(stored)
	return st, nil
}

// UpsertMany writes every value in one transaction. Either all keys are
// stored or none are.
func (s *Store) UpsertMany(ctx context.Context, values map[string]json.RawMessage, updatedBy *string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning settings transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for key, value := range values {
		if _, err := tx.Exec(ctx,
			`INSERT INTO app_settings (key, value, updated_by, updated_at)
			 VALUES ($1, $2::jsonb, $3, now())
			 ON CONFLICT (key) DO UPDATE
			   SET value = EXCLUDED.value, updated_by = EXCLUDED.updated_by, updated_at = now()`,
			key, string(value), updatedBy,
		); err != nil {
			return fmt.Errorf("upserting setting %q: %w", key, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing settings: %w", err)
	}
	return nil
}

// InsertDefault writes value only if key has none. It reports whether a
// row was inserted.
func (s *Store) InsertDefault(ctx context.Context, key string, value json.RawMessage) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO app_settings (key, value) VALUES ($1, $2::jsonb)
		 ON CONFLICT (key) DO NOTHING`,
		key, string(value),
	)
	if err != nil {
		return false, fmt.Errorf("inserting default setting: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
