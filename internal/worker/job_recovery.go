package worker

import (
	"context"
	"database/sql"
	"log"
	"time"

	"github.com/ignite/intake-extractor/internal/domain"
	"github.com/lib/pq"
)

// =============================================================================
// JOB RECOVERY - Startup reconciliation of stuck imports
// =============================================================================
// An import left in PENDING or PROCESSING when the process died has no
// worker left to advance it. Recovery runs once at startup, before the HTTP
// server accepts uploads, and moves every such job to ERROR. Partially
// written records and counters are left as they are; nothing is resumed.
//
// The service assumes one running instance per database: a second instance
// starting up would fail the first one's live jobs.

// InterruptedMessage is the diagnostic stored on recovered jobs.
const InterruptedMessage = "interrupted by process restart"

// JobRecovery reconciles stuck import jobs.
type JobRecovery struct {
	db      *sql.DB
	timeout time.Duration
}

// NewJobRecovery creates a recovery pass over the imports table.
func NewJobRecovery(db *sql.DB) *JobRecovery {
	return &JobRecovery{db: db, timeout: 30 * time.Second}
}

// Run marks every non-terminal job as ERROR and returns how many it touched.
func (jr *JobRecovery) Run(ctx context.Context) (int64, error) {
	queryCtx, cancel := context.WithTimeout(ctx, jr.timeout)
	defer cancel()

	res, err := jr.db.ExecContext(queryCtx, `
		UPDATE imports
		SET status = $1,
		    error_message = $2,
		    updated_at = NOW()
		WHERE status = ANY($3)
	`, domain.StatusError, InterruptedMessage, activeStatuses())
	if err != nil {
		log.Printf("[JobRecovery] reconcile error: %v", err)
		return 0, err
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		log.Printf("[JobRecovery] moved %d interrupted imports to ERROR", n)
	} else {
		log.Println("[JobRecovery] no interrupted imports found")
	}
	return n, nil
}

// activeStatuses binds the non-terminal statuses as a text[] parameter.
func activeStatuses() pq.StringArray {
	var out pq.StringArray
	for _, s := range domain.ActiveStatuses() {
		out = append(out, string(s))
	}
	return out
}
