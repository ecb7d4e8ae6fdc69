// Package postgres implements the intake repositories against PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/ignite/intake-extractor/internal/domain"
	"github.com/lib/pq"
)

// ErrNotFound is returned when the addressed row does not exist.
var ErrNotFound = domain.ErrNotFound

// maxErrorMessage bounds the diagnostic stored on a failed job.
const maxErrorMessage = 500

// ImportRepo persists import jobs.
type ImportRepo struct{ db *sql.DB }

// NewImportRepo creates a Postgres-backed import repository.
func NewImportRepo(db *sql.DB) *ImportRepo { return &ImportRepo{db: db} }

const importColumns = `id, filename, status, total_records, processed_records, COALESCE(error_message, ''), created_at, updated_at`

func scanImport(row interface{ Scan(...any) error }) (*domain.ImportJob, error) {
	var j domain.ImportJob
	err := row.Scan(&j.ID, &j.Filename, &j.Status, &j.TotalRecords, &j.ProcessedRecords,
		&j.ErrorMessage, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// Create inserts a new job in PENDING and fills in its id and timestamps.
func (r *ImportRepo) Create(ctx context.Context, filename string) (*domain.ImportJob, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO imports (id, filename, status, total_records, processed_records, created_at, updated_at)
		VALUES ($1, $2, $3, 0, 0, NOW(), NOW())
		RETURNING `+importColumns,
		uuid.New().String(), filename, domain.StatusPending)
	j, err := scanImport(row)
	if err != nil {
		return nil, fmt.Errorf("create import: %w", err)
	}
	return j, nil
}

func (r *ImportRepo) Get(ctx context.Context, id string) (*domain.ImportJob, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	j, err := scanImport(r.db.QueryRowContext(ctx,
		`SELECT `+importColumns+` FROM imports WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get import: %w", err)
	}
	return j, nil
}

// List returns the newest jobs first.
func (r *ImportRepo) List(ctx context.Context, limit, offset int) ([]domain.ImportJob, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+importColumns+` FROM imports ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list imports: %w", err)
	}
	defer rows.Close()

	out := []domain.ImportJob{}
	for rows.Next() {
		j, err := scanImport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan import: %w", err)
		}
		out = append(out, *j)
	}
	return out, rows.Err()
}

// MarkProcessing moves a PENDING job to PROCESSING. ErrNotFound means the
// job is gone or no longer PENDING.
func (r *ImportRepo) MarkProcessing(ctx context.Context, id string) error {
	return r.transition(ctx, `
		UPDATE imports SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = ANY($3)`,
		id, domain.StatusProcessing, statusArray(domain.SourcesOf(domain.StatusProcessing)))
}

// SetTotal records how many rows the file produced. It also resets
// processed_records so the counters always describe the current run.
func (r *ImportRepo) SetTotal(ctx context.Context, id string, total int) error {
	return r.transition(ctx, `
		UPDATE imports SET total_records = $2, processed_records = 0, updated_at = NOW()
		WHERE id = $1 AND status = $3`,
		id, total, domain.StatusProcessing)
}

// MarkProcessed completes a job whose counters agree.
func (r *ImportRepo) MarkProcessed(ctx context.Context, id string) error {
	return r.transition(ctx, `
		UPDATE imports SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = ANY($3) AND processed_records = total_records`,
		id, domain.StatusProcessed, statusArray(domain.SourcesOf(domain.StatusProcessed)))
}

// MarkFailed moves a non-terminal job to ERROR with a short diagnostic.
// Counters are left as they are.
func (r *ImportRepo) MarkFailed(ctx context.Context, id, msg string) error {
	return r.transition(ctx, `
		UPDATE imports SET status = $2, error_message = $3, updated_at = NOW()
		WHERE id = $1 AND status = ANY($4)`,
		id, domain.StatusError, truncateMessage(msg, maxErrorMessage), statusArray(domain.SourcesOf(domain.StatusError)))
}

// statusArray binds a status set as a text[] parameter.
func statusArray(statuses []domain.ImportStatus) pq.StringArray {
	out := make(pq.StringArray, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

// truncateMessage caps msg at max bytes without splitting a UTF-8 sequence.
func truncateMessage(msg string, max int) string {
	if len(msg) <= max {
		return msg
	}
	i := max
	for i > 0 && !utf8.RuneStart(msg[i]) {
		i--
	}
	return msg[:i]
}

func (r *ImportRepo) transition(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a job with its records and their analyses.
func (r *ImportRepo) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete import: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM analyses WHERE record_id IN (SELECT id FROM people_records WHERE import_id = $1)`, id); err != nil {
		return fmt.Errorf("delete analyses: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM people_records WHERE import_id = $1`, id); err != nil {
		return fmt.Errorf("delete records: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM imports WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete import: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}
