// Package dbretry retries database operations that failed on transient
// contention (lock waits, deadlocks, connection exhaustion) with a fixed
// backoff between attempts.
package dbretry

import (
	"context"
	"database/sql/driver"
	"errors"
	"log"
	"time"

	"github.com/lib/pq"
)

// Policy bounds the retry loop.
type Policy struct {
	// Attempts is the total number of tries, including the first (min 1).
	Attempts int
	// Backoff is the fixed wait between tries.
	Backoff time.Duration
	// Sleep waits between tries; nil uses a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Do runs fn until it succeeds, returns a non-retryable error, or the
// attempts run out. The last error is returned unchanged so callers can
// still inspect it with errors.Is/As.
func Do(ctx context.Context, p Policy, label string, fn func() error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if !IsRetryable(err) || attempt == attempts {
			return err
		}
		log.Printf("[dbretry] %s: attempt %d/%d failed, retrying in %s: %v",
			label, attempt, attempts, p.Backoff, err)
		if serr := sleep(ctx, p.Backoff); serr != nil {
			return err
		}
	}
	return err
}

// retryableCodes are SQLSTATEs that signal contention rather than a bad
// statement.
var retryableCodes = map[pq.ErrorCode]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"55P03": true, // lock_not_available
	"53300": true, // too_many_connections
	"57P03": true, // cannot_connect_now
}

// IsRetryable reports whether err is worth another attempt.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return retryableCodes[pqErr.Code]
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
