package pgutil

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestClassification(t *testing.T) {
	unique := &pgconn.PgError{Code: "23505", Message: "duplicate key value"}
	undefined := &pgconn.PgError{Code: "42P01", Message: `relation "app_settings" does not exist`}

	tests := []struct {
		name          string
		err           error
		wantUnique    bool
		wantUndefined bool
		wantNoRows    bool
	}{
		{"unique violation", unique, true, false, false},
		{"wrapped unique violation", fmt.Errorf("creating user: %w", unique), true, false, false},
		{"undefined table", undefined, false, true, false},
		{"no rows", pgx.ErrNoRows, false, false, true},
		{"wrapped no rows", fmt.Errorf("getting lead: %w", pgx.ErrNoRows), false, false, true},
		{"other", errors.New("boom"), false, false, false},
		{"nil", nil, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsUniqueViolation(tt.err); got != tt.wantUnique {
				t.Errorf("IsUniqueViolation = %v, want %v", got, tt.wantUnique)
			}
			if got := IsUndefinedTable(tt.err); got != tt.wantUndefined {
				t.Errorf("IsUndefinedTable = %v, want %v", got, tt.wantUndefined)
			}
			if got := IsNoRows(tt.err); got != tt.wantNoRows {
				t.Errorf("IsNoRows = %v, want %v", got, tt.wantNoRows)
			}
		})
	}
}
