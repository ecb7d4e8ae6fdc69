package classification

import (
	"context"

	"github.com/ignite/intake-extractor/internal/domain"
)

// Records is the data access contract for people records.
type Records interface {
	// Queue returns valid records without an analysis, oldest first.
	Queue(ctx context.Context, fields []string, limit int) ([]domain.QueueItem, error)

	// ExistingIDs reports which of ids name a stored record.
	ExistingIDs(ctx context.Context, ids []string) (map[string]bool, error)

	// Reprocess marks a record valid and removes its analysis.
	// Returns ErrNotFound if the record does not exist.
	Reprocess(ctx context.Context, id string) error
}

// Analyses stores classifier verdicts keyed by record id.
type Analyses interface {
	Upsert(ctx context.Context, results []domain.ClassificationResult) (int, error)

	// Get returns ErrNotFound when the record has no verdict.
	Get(ctx context.Context, recordID string) (*domain.ClassificationResult, error)
}

// Columns is the registry of columns that exist on the records table.
type Columns interface {
	Refresh(ctx context.Context) error
	Has(col string) bool
}
