package worker

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/ignite/intake-extractor/internal/datanorm"
	"github.com/ignite/intake-extractor/internal/domain"
	"github.com/ignite/intake-extractor/internal/schema"
	"github.com/ignite/intake-extractor/internal/storage"
	"github.com/redis/go-redis/v9"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// memJobs is an in-memory JobStore enforcing the same guards as Postgres.
type memJobs struct {
	mu   sync.Mutex
	jobs map[string]*domain.ImportJob
}

func newMemJobs() *memJobs { return &memJobs{jobs: map[string]*domain.ImportJob{}} }

func (m *memJobs) Create(_ context.Context, filename string) (*domain.ImportJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j := &domain.ImportJob{ID: uuid.New().String(), Filename: filename, Status: domain.StatusPending, CreatedAt: time.Now()}
	m.jobs[j.ID] = j
	cp := *j
	return &cp, nil
}

func (m *memJobs) update(id string, fn func(j *domain.ImportJob) bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok || !fn(j) {
		return domain.ErrNotFound
	}
	return nil
}

func (m *memJobs) MarkProcessing(_ context.Context, id string) error {
	return m.update(id, func(j *domain.ImportJob) bool {
		if j.Status != domain.StatusPending {
			return false
		}
		j.Status = domain.StatusProcessing
		return true
	})
}

func (m *memJobs) SetTotal(_ context.Context, id string, total int) error {
	return m.update(id, func(j *domain.ImportJob) bool {
		if j.Status != domain.StatusProcessing {
			return false
		}
		j.TotalRecords, j.ProcessedRecords = total, 0
		return true
	})
}

func (m *memJobs) MarkProcessed(_ context.Context, id string) error {
	return m.update(id, func(j *domain.ImportJob) bool {
		if j.Status != domain.StatusProcessing || j.ProcessedRecords != j.TotalRecords {
			return false
		}
		j.Status = domain.StatusProcessed
		return true
	})
}

func (m *memJobs) MarkFailed(_ context.Context, id, msg string) error {
	return m.update(id, func(j *domain.ImportJob) bool {
		if j.Status.Terminal() {
			return false
		}
		j.Status, j.ErrorMessage = domain.StatusError, msg
		return true
	})
}

func (m *memJobs) get(id string) domain.ImportJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.jobs[id]
}

func (m *memJobs) remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobs, id)
}

// memWriter collects persisted records and advances the job counter.
type memWriter struct {
	jobs    *memJobs
	mu      sync.Mutex
	records []datanorm.CanonicalRecord
	err     error
}

func (w *memWriter) Persist(_ context.Context, jobID string, records []datanorm.CanonicalRecord, onProgress ProgressFunc) (int, error) {
	if w.err != nil {
		return 0, w.err
	}
	w.mu.Lock()
	w.records = append(w.records, records...)
	w.mu.Unlock()
	if err := w.jobs.update(jobID, func(j *domain.ImportJob) bool {
		j.ProcessedRecords = len(records)
		return j.Status == domain.StatusProcessing
	}); err != nil {
		return 0, ErrJobVanished
	}
	onProgress(len(records))
	return len(records), nil
}

type recordingSyncer struct {
	observed [][]string
	err      error
}

func (s *recordingSyncer) Sync(_ context.Context, observed []string) (*schema.Result, error) {
	s.observed = append(s.observed, observed)
	if s.err != nil {
		return nil, s.err
	}
	return &schema.Result{Added: observed}, nil
}

type workerFixture struct {
	worker *ImportWorker
	jobs   *memJobs
	writer *memWriter
	syncer *recordingSyncer
	dir    string
	mr     *miniredis.Miniredis
}

func setupImportWorkerTest(t *testing.T) *workerFixture {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	dir := t.TempDir()
	files, err := storage.NewLocalStore(dir)
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}

	jobs := newMemJobs()
	writer := &memWriter{jobs: jobs}
	syncer := &recordingSyncer{}
	w := NewImportWorker(jobs, files, syncer, writer, NewProgressMirror(rdb, time.Hour))
	return &workerFixture{worker: w, jobs: jobs, writer: writer, syncer: syncer, dir: dir, mr: mr}
}

func (f *workerFixture) wait(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := f.worker.Wait(ctx); err != nil {
		t.Fatalf("worker did not finish: %v", err)
	}
}

func (f *workerFixture) assertNoStagedFiles(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected staged upload to be removed, found %d files", len(entries))
	}
}

// =============================================================================
// PIPELINE
// =============================================================================

func TestImportWorker_EndToEnd(t *testing.T) {
	f := setupImportWorkerTest(t)

	csvData := "nome,documento,motivo,telefone,nascimento\n" +
		"Ana,111,queda,,\n" +
		",,,,\n"
	job, err := f.worker.Accept(context.Background(), "relatorio.csv", strings.NewReader(csvData))
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if job.Status != domain.StatusPending {
		t.Errorf("expected PENDING on acceptance, got %s", job.Status)
	}
	f.wait(t)

	got := f.jobs.get(job.ID)
	if got.Status != domain.StatusProcessed {
		t.Fatalf("expected PROCESSED, got %s (%s)", got.Status, got.ErrorMessage)
	}
	if got.TotalRecords != 2 || got.ProcessedRecords != 2 {
		t.Errorf("expected 2/2 records, got %d/%d", got.ProcessedRecords, got.TotalRecords)
	}

	if len(f.writer.records) != 2 {
		t.Fatalf("expected 2 persisted records, got %d", len(f.writer.records))
	}
	first, second := f.writer.records[0], f.writer.records[1]
	if !first.Valid || first.Name != "Ana" || first.Document != "111" || first.Reason != "queda" {
		t.Errorf("unexpected first record: %+v", first)
	}
	if second.Valid {
		t.Error("expected second record to be invalid")
	}
	if second.ErrorMessage != datanorm.MsgDiscarded {
		t.Errorf("unexpected diagnostic: %q", second.ErrorMessage)
	}
	if first.ImportID.String() != job.ID {
		t.Errorf("record import id %s != job id %s", first.ImportID, job.ID)
	}

	if status := f.mr.HGet("import:progress:"+job.ID, "status"); status != string(domain.StatusProcessed) {
		t.Errorf("expected mirrored status PROCESSED, got %q", status)
	}
	f.assertNoStagedFiles(t)
}

func TestImportWorker_SyncsExtraColumns(t *testing.T) {
	f := setupImportWorkerTest(t)

	csvData := "nome;cpf;Data Acidente;CID\nJoão;123.456.789-00;01/02/2024;S52\n"
	job, err := f.worker.Accept(context.Background(), "cat.csv", strings.NewReader(csvData))
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	f.wait(t)

	if got := f.jobs.get(job.ID); got.Status != domain.StatusProcessed {
		t.Fatalf("expected PROCESSED, got %s (%s)", got.Status, got.ErrorMessage)
	}
	if len(f.syncer.observed) != 1 {
		t.Fatalf("expected one schema sync, got %d", len(f.syncer.observed))
	}
	want := []string{"cid", "cpf", "data_acidente"}
	if strings.Join(f.syncer.observed[0], ",") != strings.Join(want, ",") {
		t.Errorf("observed columns = %v, want %v", f.syncer.observed[0], want)
	}
	if doc := f.writer.records[0].Document; doc != "12345678900" {
		t.Errorf("expected digits-only document, got %q", doc)
	}
}

func TestImportWorker_RejectsUnsupportedExtension(t *testing.T) {
	f := setupImportWorkerTest(t)

	_, err := f.worker.Accept(context.Background(), "legacy.xls", strings.NewReader("x"))
	if !errors.Is(err, datanorm.ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
	if len(f.jobs.jobs) != 0 {
		t.Errorf("expected no job to be created, got %d", len(f.jobs.jobs))
	}
}

func TestImportWorker_MalformedFileFailsJob(t *testing.T) {
	f := setupImportWorkerTest(t)

	job, err := f.worker.Accept(context.Background(), "broken.xlsx", strings.NewReader("not a zip"))
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	f.wait(t)

	got := f.jobs.get(job.ID)
	if got.Status != domain.StatusError {
		t.Fatalf("expected ERROR, got %s", got.Status)
	}
	if got.ErrorMessage == "" {
		t.Error("expected a diagnostic on the failed job")
	}
	f.assertNoStagedFiles(t)
}

func TestImportWorker_SchemaFailureFailsJob(t *testing.T) {
	f := setupImportWorkerTest(t)
	f.syncer.err = errors.New("catalog unavailable")

	job, err := f.worker.Accept(context.Background(), "a.csv", strings.NewReader("nome\nAna\n"))
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	f.wait(t)

	got := f.jobs.get(job.ID)
	if got.Status != domain.StatusError {
		t.Fatalf("expected ERROR, got %s", got.Status)
	}
	if got.TotalRecords != 1 {
		t.Errorf("expected total set before failure, got %d", got.TotalRecords)
	}
	if !strings.Contains(got.ErrorMessage, "catalog unavailable") {
		t.Errorf("unexpected diagnostic: %q", got.ErrorMessage)
	}
	f.assertNoStagedFiles(t)
}

func TestImportWorker_PersistFailureFailsJob(t *testing.T) {
	f := setupImportWorkerTest(t)
	f.writer.err = errors.New("disk quota exceeded")

	job, err := f.worker.Accept(context.Background(), "a.csv", strings.NewReader("nome,documento\nAna,111\nBia,222\n"))
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	f.wait(t)

	got := f.jobs.get(job.ID)
	if got.Status != domain.StatusError {
		t.Fatalf("expected ERROR, got %s", got.Status)
	}
	if got.TotalRecords != 2 {
		t.Errorf("expected total set before failure, got %d", got.TotalRecords)
	}
	if got.ProcessedRecords != 0 {
		t.Errorf("expected no processed records, got %d", got.ProcessedRecords)
	}
	if !strings.Contains(got.ErrorMessage, "persist") || !strings.Contains(got.ErrorMessage, "disk quota exceeded") {
		t.Errorf("unexpected diagnostic: %q", got.ErrorMessage)
	}
	if len(f.writer.records) != 0 {
		t.Errorf("expected nothing persisted, got %d records", len(f.writer.records))
	}
	if status := f.mr.HGet("import:progress:"+job.ID, "status"); status != string(domain.StatusError) {
		t.Errorf("expected mirrored ERROR, got %q", status)
	}
	f.assertNoStagedFiles(t)
}

func TestImportWorker_VanishedJob(t *testing.T) {
	f := setupImportWorkerTest(t)

	job, err := f.jobs.Create(context.Background(), "gone.csv")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	key := job.ID + ".csv"
	if err := os.WriteFile(f.dir+"/"+key, []byte("nome\nAna\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	f.jobs.remove(job.ID)

	err = f.worker.Process(context.Background(), job.ID, key)
	if !errors.Is(err, ErrJobVanished) {
		t.Fatalf("expected ErrJobVanished, got %v", err)
	}
	f.assertNoStagedFiles(t)
}
