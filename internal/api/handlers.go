package api

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/ignite/intake-extractor/internal/domain"
	"github.com/ignite/intake-extractor/internal/pkg/httputil"
)

// ImportAcceptor stages an upload and schedules its pipeline.
type ImportAcceptor interface {
	Accept(ctx context.Context, filename string, r io.Reader) (*domain.ImportJob, error)
}

// ImportStore reads and deletes import jobs.
type ImportStore interface {
	Get(ctx context.Context, id string) (*domain.ImportJob, error)
	List(ctx context.Context, limit, offset int) ([]domain.ImportJob, error)
	Delete(ctx context.Context, id string) error
}

// ProgressCache is the Redis copy of job progress.
type ProgressCache interface {
	Get(ctx context.Context, jobID string) (*domain.Progress, error)
	Clear(ctx context.Context, jobID string)
}

// Classifier is the classification-collaborator boundary.
type Classifier interface {
	Queue(ctx context.Context, fields []string, limit int) ([]domain.QueueItem, error)
	SubmitResults(ctx context.Context, results []domain.ClassificationResult) (*domain.UpsertSummary, error)
	Reprocess(ctx context.Context, id string) error
	Analysis(ctx context.Context, id string) (*domain.ClassificationResult, error)
}

// ColumnRegistry exposes the live column set of the records table.
type ColumnRegistry interface {
	Refresh(ctx context.Context) error
	Columns() []string
}

// Handlers contains the HTTP handlers for the intake API.
type Handlers struct {
	imports        ImportAcceptor
	jobs           ImportStore
	progress       ProgressCache
	classification Classifier
	columns        ColumnRegistry
	maxUpload      int64
}

// NewHandlers creates the handler set. maxUpload bounds the multipart body.
func NewHandlers(imports ImportAcceptor, jobs ImportStore, progress ProgressCache, classification Classifier, columns ColumnRegistry, maxUpload int64) *Handlers {
	return &Handlers{
		imports:        imports,
		jobs:           jobs,
		progress:       progress,
		classification: classification,
		columns:        columns,
		maxUpload:      maxUpload,
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	httputil.JSON(w, status, data)
}

// queryInt reads a non-negative integer query parameter.
func queryInt(r *http.Request, key string, def int) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
