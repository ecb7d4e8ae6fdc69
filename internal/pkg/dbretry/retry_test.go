package dbretry

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func noSleep(waits *[]time.Duration) func(context.Context, time.Duration) error {
	return func(_ context.Context, d time.Duration) error {
		*waits = append(*waits, d)
		return nil
	}
}

func TestDoRetriesContention(t *testing.T) {
	var waits []time.Duration
	calls := 0
	err := Do(context.Background(), Policy{Attempts: 5, Backoff: 500 * time.Millisecond, Sleep: noSleep(&waits)}, "chunk",
		func() error {
			calls++
			if calls < 3 {
				return &pq.Error{Code: "40P01"}
			}
			return nil
		})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{500 * time.Millisecond, 500 * time.Millisecond}, waits)
}

func TestDoGivesUpAfterAttempts(t *testing.T) {
	var waits []time.Duration
	calls := 0
	lockErr := &pq.Error{Code: "55P03", Message: "lock not available"}
	err := Do(context.Background(), Policy{Attempts: 3, Backoff: time.Millisecond, Sleep: noSleep(&waits)}, "chunk",
		func() error {
			calls++
			return lockErr
		})
	var pqErr *pq.Error
	assert.ErrorAs(t, err, &pqErr)
	assert.Equal(t, 3, calls)
	assert.Len(t, waits, 2)
}

func TestDoDoesNotRetryPermanentErrors(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{Attempts: 5}, "chunk", func() error {
		calls++
		return &pq.Error{Code: "42703"} // undefined_column
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoStopsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := Do(ctx, Policy{Attempts: 5, Backoff: time.Hour}, "chunk", func() error {
		calls++
		return driver.ErrBadConn
	})
	assert.ErrorIs(t, err, driver.ErrBadConn)
	assert.Equal(t, 1, calls)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(&pq.Error{Code: "40001"}))
	assert.True(t, IsRetryable(fmt.Errorf("insert chunk: %w", &pq.Error{Code: "53300"})))
	assert.True(t, IsRetryable(driver.ErrBadConn))
	assert.False(t, IsRetryable(&pq.Error{Code: "23505"}))
	assert.False(t, IsRetryable(errors.New("boom")))
	assert.False(t, IsRetryable(nil))
}
