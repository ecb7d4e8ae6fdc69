package worker

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ignite/intake-extractor/internal/domain"
	"github.com/redis/go-redis/v9"
)

func TestProgressMirror_RoundTrip(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	ctx := context.Background()
	m := NewProgressMirror(rdb, time.Hour)
	m.Update(ctx, "job-1", domain.Progress{Status: domain.StatusProcessing, TotalRecords: 10, ProcessedRecords: 4})

	got, err := m.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil || got.Status != domain.StatusProcessing || got.TotalRecords != 10 || got.ProcessedRecords != 4 {
		t.Fatalf("unexpected progress: %+v", got)
	}
	if ttl := mr.TTL("import:progress:job-1"); ttl != time.Hour {
		t.Errorf("expected 1h TTL, got %s", ttl)
	}

	m.Clear(ctx, "job-1")
	if got, _ := m.Get(ctx, "job-1"); got != nil {
		t.Errorf("expected no progress after Clear, got %+v", got)
	}
}

func TestProgressMirror_NilClientIsNoop(t *testing.T) {
	m := NewProgressMirror(nil, 0)
	m.Update(context.Background(), "job-1", domain.Progress{Status: domain.StatusPending})
	got, err := m.Get(context.Background(), "job-1")
	if err != nil || got != nil {
		t.Errorf("expected nil progress and no error, got %+v, %v", got, err)
	}
}
