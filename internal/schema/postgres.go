package schema

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

// PostgresStore implements Store with information_schema reads and
// idempotent DDL.
type PostgresStore struct{ db *sql.DB }

// NewPostgresStore creates a Store backed by db.
func NewPostgresStore(db *sql.DB) *PostgresStore { return &PostgresStore{db: db} }

func (p *PostgresStore) ListColumns(ctx context.Context, table string) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT column_name FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = $1
		ORDER BY ordinal_position`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

func (p *PostgresStore) AddColumn(ctx context.Context, table, column string) error {
	stmt := fmt.Sprintf(`ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s TEXT`,
		pq.QuoteIdentifier(table), pq.QuoteIdentifier(column))
	if _, err := p.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("add column %s.%s: %w", table, column, err)
	}
	return nil
}

func (p *PostgresStore) EnsureIndex(ctx context.Context, idx Index) error {
	stmt := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (%s)`,
		pq.QuoteIdentifier(idx.Name), pq.QuoteIdentifier(idx.Table), pq.QuoteIdentifier(idx.Column))
	if _, err := p.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("create index %s: %w", idx.Name, err)
	}
	return nil
}
