package classification

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/ignite/intake-extractor/internal/datanorm"
	"github.com/ignite/intake-extractor/internal/domain"
	"github.com/ignite/intake-extractor/internal/pkg/logger"
)

const (
	// DefaultLimit applies when the caller asks for no particular batch size.
	DefaultLimit = 100
	// MaxLimit caps a single queue read.
	MaxLimit = 1000
)

// Service implements the classifier-facing operations. It is safe for
// concurrent use.
type Service struct {
	records      Records
	analyses     Analyses
	columns      Columns
	defaultLimit int
}

// NewService creates a classification service. defaultLimit <= 0 falls back
// to DefaultLimit.
func NewService(records Records, analyses Analyses, columns Columns, defaultLimit int) *Service {
	if defaultLimit <= 0 {
		defaultLimit = DefaultLimit
	}
	return &Service{records: records, analyses: analyses, columns: columns, defaultLimit: defaultLimit}
}

// Queue returns up to limit valid, unanalysed records with the requested
// columns. No fields means the five canonical columns.
func (s *Service) Queue(ctx context.Context, fields []string, limit int) ([]domain.QueueItem, error) {
	cols, err := s.resolveFields(ctx, fields)
	if err != nil {
		return nil, err
	}
	switch {
	case limit <= 0:
		limit = s.defaultLimit
	case limit > MaxLimit:
		limit = MaxLimit
	}
	return s.records.Queue(ctx, cols, limit)
}

func (s *Service) resolveFields(ctx context.Context, fields []string) ([]string, error) {
	if len(fields) == 0 {
		out := make([]string, 0, len(datanorm.Fields))
		for _, f := range datanorm.Fields {
			out = append(out, f.Column())
		}
		return out, nil
	}
	if err := s.columns.Refresh(ctx); err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.ToLower(strings.TrimSpace(f))
		if f == "" || seen[f] {
			continue
		}
		if !s.columns.Has(f) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownField, f)
		}
		seen[f] = true
		out = append(out, f)
	}
	return out, nil
}

// SubmitResults stores verdicts. Invalid items and unknown records are
// rejected one by one; the rest are upserted together. A record submitted
// more than once keeps the last verdict in the batch.
func (s *Service) SubmitResults(ctx context.Context, results []domain.ClassificationResult) (*domain.UpsertSummary, error) {
	summary := &domain.UpsertSummary{Rejected: []domain.Rejection{}}

	latest := make(map[string]int, len(results))
	order := make([]string, 0, len(results))
	for i, r := range results {
		r.RecordID = canonicalID(r.RecordID)
		results[i] = r
		if err := r.Validate(); err != nil {
			summary.Rejected = append(summary.Rejected, domain.Rejection{RecordID: r.RecordID, Reason: err.Error()})
			continue
		}
		if _, dup := latest[r.RecordID]; !dup {
			order = append(order, r.RecordID)
		}
		latest[r.RecordID] = i
	}
	if len(order) == 0 {
		return summary, nil
	}

	exists, err := s.records.ExistingIDs(ctx, order)
	if err != nil {
		return nil, err
	}
	accepted := make([]domain.ClassificationResult, 0, len(order))
	for _, id := range order {
		if !exists[id] {
			summary.Rejected = append(summary.Rejected, domain.Rejection{RecordID: id, Reason: "record not found"})
			continue
		}
		accepted = append(accepted, results[latest[id]])
	}

	n, err := s.analyses.Upsert(ctx, accepted)
	if err != nil {
		return nil, err
	}
	summary.Accepted = n
	logger.Info("classification: results stored", "accepted", n, "rejected", len(summary.Rejected))
	return summary, nil
}

// Reprocess puts a record back in the queue.
func (s *Service) Reprocess(ctx context.Context, id string) error {
	return s.records.Reprocess(ctx, canonicalID(id))
}

// Analysis returns the stored verdict for a record.
func (s *Service) Analysis(ctx context.Context, id string) (*domain.ClassificationResult, error) {
	return s.analyses.Get(ctx, canonicalID(id))
}

// canonicalID trims id and, when it is a UUID, renders it in the lowercase
// hyphenated form Postgres returns, so lookups and deduplication agree.
func canonicalID(id string) string {
	id = strings.TrimSpace(id)
	if u, err := uuid.Parse(id); err == nil {
		return u.String()
	}
	return id
}
