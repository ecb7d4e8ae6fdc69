package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/intake-extractor/internal/datanorm"
	"github.com/ignite/intake-extractor/internal/domain"
	"github.com/ignite/intake-extractor/internal/pkg/logger"
	"github.com/ignite/intake-extractor/internal/schema"
	"github.com/ignite/intake-extractor/internal/storage"
)

// =============================================================================
// IMPORT WORKER - Upload acceptance and the per-file pipeline
// =============================================================================
// Accept stores the upload, creates the job in PENDING and returns at once.
// One goroutine per job then runs:
//
//	PENDING -> PROCESSING -> load -> normalize -> coalesce/validate
//	        -> schema sync -> chunked persist -> PROCESSED
//
// Any stage failure moves the job to ERROR. The staged upload is removed on
// every exit path.

// JobStore is the import-job persistence the worker drives.
type JobStore interface {
	Create(ctx context.Context, filename string) (*domain.ImportJob, error)
	MarkProcessing(ctx context.Context, id string) error
	SetTotal(ctx context.Context, id string, total int) error
	MarkProcessed(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id, msg string) error
}

// SchemaSyncer extends the records table with newly observed columns.
type SchemaSyncer interface {
	Sync(ctx context.Context, observed []string) (*schema.Result, error)
}

// RecordWriter persists a job's records and reports cumulative progress.
type RecordWriter interface {
	Persist(ctx context.Context, jobID string, records []datanorm.CanonicalRecord, onProgress ProgressFunc) (int, error)
}

// ImportWorker runs the ingestion pipeline for accepted uploads.
type ImportWorker struct {
	jobs     JobStore
	files    storage.FileStore
	schema   SchemaSyncer
	writer   RecordWriter
	progress *ProgressMirror
	now      func() time.Time

	wg sync.WaitGroup
}

// NewImportWorker wires the pipeline stages together. progress may be nil.
func NewImportWorker(jobs JobStore, files storage.FileStore, syncer SchemaSyncer, writer RecordWriter, progress *ProgressMirror) *ImportWorker {
	return &ImportWorker{
		jobs:     jobs,
		files:    files,
		schema:   syncer,
		writer:   writer,
		progress: progress,
		now:      time.Now,
	}
}

// Accept stages an upload, creates its PENDING job and schedules processing.
// It never waits for the pipeline.
func (w *ImportWorker) Accept(ctx context.Context, filename string, r io.Reader) (*domain.ImportJob, error) {
	filename = filepath.Base(filename)
	if !datanorm.SupportedExtension(filename) {
		return nil, fmt.Errorf("%w: %q", datanorm.ErrUnsupportedFormat, filepath.Ext(filename))
	}

	job, err := w.jobs.Create(ctx, filename)
	if err != nil {
		return nil, err
	}
	key := job.ID + strings.ToLower(filepath.Ext(filename))
	if _, err := w.files.Save(ctx, key, r); err != nil {
		err = fmt.Errorf("store upload: %w", err)
		w.fail(ctx, job.ID, err)
		return nil, err
	}
	w.progress.Update(ctx, job.ID, job.Progress())

	// The pipeline outlives the request that accepted the file.
	bg := context.WithoutCancel(ctx)
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		_ = w.Process(bg, job.ID, key)
	}()

	log.Printf("[ImportWorker] accepted import %s (%s)", job.ID, filename)
	return job, nil
}

// Wait blocks until all scheduled jobs finish or ctx expires.
func (w *ImportWorker) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Process runs the pipeline for one staged file. It is exported so a job can
// be driven synchronously; Accept calls it on its own goroutine.
func (w *ImportWorker) Process(ctx context.Context, jobID, fileKey string) error {
	defer w.removeFile(ctx, jobID, fileKey)

	if err := w.jobs.MarkProcessing(ctx, jobID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			logger.Warn("import: job vanished before processing", "import_id", jobID)
			return ErrJobVanished
		}
		return w.fail(ctx, jobID, fmt.Errorf("mark processing: %w", err))
	}
	w.progress.Update(ctx, jobID, domain.Progress{Status: domain.StatusProcessing})

	total, err := w.run(ctx, jobID, fileKey)
	if err != nil {
		if errors.Is(err, ErrJobVanished) || errors.Is(err, domain.ErrNotFound) {
			logger.Warn("import: job vanished during processing", "import_id", jobID)
			w.progress.Clear(ctx, jobID)
			return ErrJobVanished
		}
		return w.fail(ctx, jobID, err)
	}

	w.progress.Update(ctx, jobID, domain.Progress{
		Status:           domain.StatusProcessed,
		TotalRecords:     total,
		ProcessedRecords: total,
	})
	logger.Info("import: processed", "import_id", jobID, "records", total)
	return nil
}

func (w *ImportWorker) run(ctx context.Context, jobID, fileKey string) (int, error) {
	importID, err := uuid.Parse(jobID)
	if err != nil {
		return 0, fmt.Errorf("invalid import id: %w", err)
	}

	rc, err := w.files.Open(ctx, fileKey)
	if err != nil {
		return 0, fmt.Errorf("open upload: %w", err)
	}
	table, err := datanorm.Load(rc, fileKey)
	rc.Close()
	if err != nil {
		return 0, err
	}

	records := datanorm.BuildRecords(datanorm.NewFrame(table), importID, w.now().UTC())
	total := len(records)
	if err := w.jobs.SetTotal(ctx, jobID, total); err != nil {
		return 0, fmt.Errorf("set total: %w", err)
	}
	w.progress.Update(ctx, jobID, domain.Progress{Status: domain.StatusProcessing, TotalRecords: total})

	res, err := w.schema.Sync(ctx, datanorm.ExtraColumns(records))
	if err != nil {
		return 0, fmt.Errorf("schema sync: %w", err)
	}
	for _, s := range res.Skipped {
		logger.Warn("import: column not created", "import_id", jobID, "column", s.Name, "reason", s.Reason)
	}

	_, err = w.writer.Persist(ctx, jobID, records, func(processed int) {
		w.progress.Update(ctx, jobID, domain.Progress{
			Status:           domain.StatusProcessing,
			TotalRecords:     total,
			ProcessedRecords: processed,
		})
	})
	if err != nil {
		return 0, fmt.Errorf("persist: %w", err)
	}

	if err := w.jobs.MarkProcessed(ctx, jobID); err != nil {
		return 0, fmt.Errorf("mark processed: %w", err)
	}
	return total, nil
}

// fail records ERROR for the job and returns cause.
func (w *ImportWorker) fail(ctx context.Context, jobID string, cause error) error {
	logger.Error("import: failed", "import_id", jobID, "error", cause)

	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := w.jobs.MarkFailed(fctx, jobID, cause.Error()); err != nil {
		logger.Warn("import: could not record failure", "import_id", jobID, "error", err)
	}
	w.progress.Update(fctx, jobID, domain.Progress{Status: domain.StatusError, ErrorMessage: cause.Error()})
	return cause
}

func (w *ImportWorker) removeFile(ctx context.Context, jobID, key string) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := w.files.Remove(rctx, key); err != nil {
		logger.Warn("import: staged file not removed", "import_id", jobID, "key", key, "error", err)
	}
}
