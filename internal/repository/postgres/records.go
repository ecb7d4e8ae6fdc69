package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/ignite/intake-extractor/internal/domain"
	"github.com/lib/pq"
)

// ReprocessedMessage replaces the diagnostic of a manually revalidated record.
const ReprocessedMessage = "manually reprocessed"

// RecordRepo reads and revalidates people_records.
type RecordRepo struct{ db *sql.DB }

// NewRecordRepo creates a Postgres-backed record repository.
func NewRecordRepo(db *sql.DB) *RecordRepo { return &RecordRepo{db: db} }

// Queue returns valid records that have no analysis yet, oldest first, with
// the requested columns. Callers must only pass columns that exist.
func (r *RecordRepo) Queue(ctx context.Context, fields []string, limit int) ([]domain.QueueItem, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT r.id`)
	for _, f := range fields {
		fmt.Fprintf(&sb, `, r.%s::text`, pq.QuoteIdentifier(f))
	}
	sb.WriteString(`
		FROM people_records r
		LEFT JOIN analyses a ON a.record_id = r.id
		WHERE r.valid = true AND a.record_id IS NULL
		ORDER BY r.created_at, r.id
		LIMIT $1`)

	rows, err := r.db.QueryContext(ctx, sb.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("classification queue: %w", err)
	}
	defer rows.Close()

	out := []domain.QueueItem{}
	for rows.Next() {
		vals := make([]sql.NullString, len(fields))
		dest := make([]any, 0, len(fields)+1)
		var item domain.QueueItem
		dest = append(dest, &item.RecordID)
		for i := range vals {
			dest = append(dest, &vals[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan queue item: %w", err)
		}
		item.Fields = make(map[string]*string, len(fields))
		for i, f := range fields {
			if vals[i].Valid {
				v := vals[i].String
				item.Fields[f] = &v
			} else {
				item.Fields[f] = nil
			}
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// Reprocess marks a record valid again and drops its analysis so it
// re-enters the classification queue.
func (r *RecordRepo) Reprocess(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reprocess: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE people_records SET valid = true, error_message = $2 WHERE id = $1`,
		id, ReprocessedMessage)
	if err != nil {
		return fmt.Errorf("reprocess record: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM analyses WHERE record_id = $1`, id); err != nil {
		return fmt.Errorf("clear analysis: %w", err)
	}
	return tx.Commit()
}

// ExistingIDs returns the subset of ids that name a stored record.
func (r *RecordRepo) ExistingIDs(ctx context.Context, ids []string) (map[string]bool, error) {
	found := make(map[string]bool, len(ids))
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := uuid.Parse(id); err == nil {
			valid = append(valid, id)
		}
	}
	if len(valid) == 0 {
		return found, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id::text FROM people_records WHERE id = ANY($1::uuid[])`, pq.Array(valid))
	if err != nil {
		return nil, fmt.Errorf("lookup records: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		found[id] = true
	}
	return found, rows.Err()
}
