package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/ignite/intake-extractor/internal/domain"
	"github.com/ignite/intake-extractor/internal/pkg/dbretry"
)

// AnalysisRepo stores classifier verdicts, one per record.
type AnalysisRepo struct {
	db    *sql.DB
	retry dbretry.Policy
}

// NewAnalysisRepo creates a Postgres-backed analysis repository. Upserts are
// retried under p when they hit lock contention.
func NewAnalysisRepo(db *sql.DB, p dbretry.Policy) *AnalysisRepo {
	return &AnalysisRepo{db: db, retry: p}
}

const upsertAnalysis = `
	INSERT INTO analyses (id, record_id, status, justification, score, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
	ON CONFLICT (record_id) DO UPDATE SET
		status = EXCLUDED.status,
		justification = EXCLUDED.justification,
		score = EXCLUDED.score,
		updated_at = NOW()`

// Upsert writes results in one transaction. Submitting the same result twice
// leaves a single row carrying the latest values.
func (r *AnalysisRepo) Upsert(ctx context.Context, results []domain.ClassificationResult) (int, error) {
	if len(results) == 0 {
		return 0, nil
	}
	err := dbretry.Do(ctx, r.retry, "analyses upsert", func() error {
		return r.upsertOnce(ctx, results)
	})
	if err != nil {
		return 0, err
	}
	return len(results), nil
}

func (r *AnalysisRepo) upsertOnce(ctx context.Context, results []domain.ClassificationResult) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertAnalysis)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, res := range results {
		if _, err := stmt.ExecContext(ctx,
			uuid.New().String(), res.RecordID, res.Status, res.Justification, res.Score); err != nil {
			return fmt.Errorf("upsert analysis %s: %w", res.RecordID, err)
		}
	}
	return tx.Commit()
}

// Get returns the stored verdict for a record.
func (r *AnalysisRepo) Get(ctx context.Context, recordID string) (*domain.ClassificationResult, error) {
	if _, err := uuid.Parse(recordID); err != nil {
		return nil, ErrNotFound
	}
	var res domain.ClassificationResult
	err := r.db.QueryRowContext(ctx, `
		SELECT record_id::text, status, COALESCE(justification, ''), score, updated_at
		FROM analyses WHERE record_id = $1`, recordID).
		Scan(&res.RecordID, &res.Status, &res.Justification, &res.Score, &res.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get analysis: %w", err)
	}
	return &res, nil
}
