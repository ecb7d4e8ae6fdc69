package worker

import (
	"context"
	"strconv"
	"time"

	"github.com/ignite/intake-extractor/internal/domain"
	"github.com/ignite/intake-extractor/internal/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// DefaultProgressTTL is how long a job's progress hash outlives its last update.
const DefaultProgressTTL = 24 * time.Hour

// ProgressMirror keeps a copy of each job's counters in Redis so pollers do
// not hit Postgres on every request. A nil client turns it into a no-op.
type ProgressMirror struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewProgressMirror creates a mirror. ttl <= 0 uses DefaultProgressTTL.
func NewProgressMirror(client *redis.Client, ttl time.Duration) *ProgressMirror {
	if ttl <= 0 {
		ttl = DefaultProgressTTL
	}
	return &ProgressMirror{redis: client, ttl: ttl}
}

func (m *ProgressMirror) progressKey(jobID string) string {
	return "import:progress:" + jobID
}

// Update overwrites the mirrored progress. Failures are logged, never returned:
// Postgres stays the source of truth.
func (m *ProgressMirror) Update(ctx context.Context, jobID string, p domain.Progress) {
	if m == nil || m.redis == nil {
		return
	}
	key := m.progressKey(jobID)
	_, err := m.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"status", string(p.Status),
			"total", p.TotalRecords,
			"processed", p.ProcessedRecords,
			"error", p.ErrorMessage)
		pipe.Expire(ctx, key, m.ttl)
		return nil
	})
	if err != nil {
		logger.Warn("progress: redis update failed", "import_id", jobID, "error", err)
	}
}

// Get returns the mirrored progress, or nil when nothing is cached.
func (m *ProgressMirror) Get(ctx context.Context, jobID string) (*domain.Progress, error) {
	if m == nil || m.redis == nil {
		return nil, nil
	}
	vals, err := m.redis.HGetAll(ctx, m.progressKey(jobID)).Result()
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, nil
	}
	total, _ := strconv.Atoi(vals["total"])
	processed, _ := strconv.Atoi(vals["processed"])
	return &domain.Progress{
		Status:           domain.ImportStatus(vals["status"]),
		TotalRecords:     total,
		ProcessedRecords: processed,
		ErrorMessage:     vals["error"],
	}, nil
}

// Clear drops the mirrored progress, used when a job is deleted.
func (m *ProgressMirror) Clear(ctx context.Context, jobID string) {
	if m == nil || m.redis == nil {
		return
	}
	if err := m.redis.Del(ctx, m.progressKey(jobID)).Err(); err != nil {
		logger.Warn("progress: redis delete failed", "import_id", jobID, "error", err)
	}
}
