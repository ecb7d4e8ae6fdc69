package worker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ignite/intake-extractor/internal/datanorm"
	"github.com/ignite/intake-extractor/internal/domain"
	"github.com/ignite/intake-extractor/internal/pkg/dbretry"
	"github.com/ignite/intake-extractor/internal/pkg/logger"
	"github.com/ignite/intake-extractor/internal/schema"
	"github.com/lib/pq"
)

// =============================================================================
// BATCH PERSISTER - Chunked people_records inserts
// =============================================================================
// Records are written in fixed-size chunks. Each chunk is one transaction
// holding the row inserts and the job's processed_records update, so the
// counter always matches what is durably stored. A crash between chunks
// leaves a committed prefix behind; JobRecovery marks such jobs ERROR.

const (
	// DefaultChunkSize is the number of records per transaction.
	DefaultChunkSize = 2500

	// maxBindParams is the Postgres limit on parameters in one statement.
	maxBindParams = 65535
)

// ErrJobVanished means the import row disappeared (or left PROCESSING)
// while its records were being written.
var ErrJobVanished = errors.New("import job vanished during processing")

// fixedColumns are written for every record, in this order.
var fixedColumns = []string{
	"id", "import_id",
	datanorm.FieldName.Column(), datanorm.FieldBirthDate.Column(), datanorm.FieldDocument.Column(),
	datanorm.FieldPhone.Column(), datanorm.FieldReason.Column(),
	"valid", "error_message", "created_at",
}

// ColumnRegistry reports which columns exist on the records table.
type ColumnRegistry interface {
	Has(col string) bool
}

// ProgressFunc is called after each chunk commits with the cumulative count.
type ProgressFunc func(processed int)

// BatchPersister writes CanonicalRecords to people_records.
type BatchPersister struct {
	db        *sql.DB
	columns   ColumnRegistry
	chunkSize int
	retry     dbretry.Policy
}

// NewBatchPersister creates a persister. chunkSize <= 0 uses DefaultChunkSize.
func NewBatchPersister(db *sql.DB, columns ColumnRegistry, chunkSize int, retry dbretry.Policy) *BatchPersister {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &BatchPersister{db: db, columns: columns, chunkSize: chunkSize, retry: retry}
}

// Persist writes records for jobID chunk by chunk and returns how many were
// committed. On error the returned count covers the chunks that made it.
func (p *BatchPersister) Persist(ctx context.Context, jobID string, records []datanorm.CanonicalRecord, onProgress ProgressFunc) (int, error) {
	processed := 0
	for start := 0; start < len(records); start += p.chunkSize {
		end := start + p.chunkSize
		if end > len(records) {
			end = len(records)
		}
		chunk := records[start:end]
		label := fmt.Sprintf("import %s chunk %d-%d", jobID, start, end)

		err := dbretry.Do(ctx, p.retry, label, func() error {
			return p.writeChunk(ctx, jobID, chunk, end)
		})
		if err != nil {
			return processed, err
		}
		processed = end
		if onProgress != nil {
			onProgress(processed)
		}
	}
	return processed, nil
}

func (p *BatchPersister) writeChunk(ctx context.Context, jobID string, chunk []datanorm.CanonicalRecord, processedAfter int) error {
	extras := p.chunkExtras(jobID, chunk)
	cols := append(append([]string{}, fixedColumns...), extras...)

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin chunk: %w", err)
	}
	defer tx.Rollback()

	perStmt := maxBindParams / len(cols)
	for i := 0; i < len(chunk); i += perStmt {
		end := i + perStmt
		if end > len(chunk) {
			end = len(chunk)
		}
		if err := insertRecords(ctx, tx, cols, extras, chunk[i:end]); err != nil {
			return err
		}
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE imports SET processed_records = $2, updated_at = NOW()
		WHERE id = $1 AND status = $3`,
		jobID, processedAfter, domain.StatusProcessing)
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrJobVanished
	}
	return tx.Commit()
}

// chunkExtras returns the sorted extras keys present in chunk that exist as
// columns. Missing ones are dropped from the write and logged.
func (p *BatchPersister) chunkExtras(jobID string, chunk []datanorm.CanonicalRecord) []string {
	seen := make(map[string]bool)
	for i := range chunk {
		for k := range chunk[i].Extras {
			seen[k] = true
		}
	}
	var keep, dropped []string
	for k := range seen {
		if p.columns.Has(k) {
			keep = append(keep, k)
		} else {
			dropped = append(dropped, k)
		}
	}
	sort.Strings(keep)
	if len(dropped) > 0 {
		sort.Strings(dropped)
		logger.Warn("persister: dropping attributes without a column", "import_id", jobID, "columns", dropped)
	}
	return keep
}

func insertRecords(ctx context.Context, tx *sql.Tx, cols, extras []string, batch []datanorm.CanonicalRecord) error {
	var sb strings.Builder
	sb.WriteString(`INSERT INTO `)
	sb.WriteString(pq.QuoteIdentifier(schema.RecordsTable))
	sb.WriteString(` (`)
	for i, c := range cols {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(pq.QuoteIdentifier(c))
	}
	sb.WriteString(`) VALUES `)

	args := make([]interface{}, 0, len(batch)*len(cols))
	for i, r := range batch {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('(')
		base := i * len(cols)
		for j := range cols {
			if j > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%d", base+j+1)
		}
		sb.WriteByte(')')

		args = append(args,
			r.ID.String(), r.ImportID.String(),
			nullable(r.Name), nullable(r.BirthDate), nullable(r.Document), nullable(r.Phone), nullable(r.Reason),
			r.Valid, r.ErrorMessage, r.CreatedAt)
		for _, k := range extras {
			if v, ok := r.Extras[k]; ok {
				args = append(args, v)
			} else {
				args = append(args, nil)
			}
		}
	}

	if _, err := tx.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("insert records: %w", err)
	}
	return nil
}

// nullable maps an absent canonical value to NULL.
func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
