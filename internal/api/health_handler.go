package api

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/ignite/intake-extractor/internal/domain"
	"github.com/ignite/intake-extractor/internal/storage"
	"github.com/lib/pq"
	"github.com/redis/go-redis/v9"
)

const (
	healthVersion = "1.0.0"

	statusUp       = "up"
	statusDown     = "down"
	statusDegraded = "degraded"
	notConfigured  = "not configured"

	// importBacklogLimit is how many PENDING/PROCESSING jobs are tolerated
	// before the pipeline reports degraded.
	importBacklogLimit = 20
)

// HealthStatus is the body of GET /health.
type HealthStatus struct {
	Status  string                    `json:"status"` // healthy, degraded, unhealthy
	Version string                    `json:"version"`
	Uptime  string                    `json:"uptime"`
	Checks  map[string]ComponentCheck `json:"checks"`
}

// ComponentCheck is the result of checking one dependency.
type ComponentCheck struct {
	Status  string `json:"status"` // up, down, degraded
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}

// HealthChecker checks Postgres, Redis, the upload store and the import
// backlog. Nil dependencies report "not configured".
type HealthChecker struct {
	db        *sql.DB
	redis     *redis.Client
	files     storage.FileStore
	startTime time.Time
}

// NewHealthChecker creates a HealthChecker.
func NewHealthChecker(db *sql.DB, redisClient *redis.Client, files storage.FileStore) *HealthChecker {
	return &HealthChecker{db: db, redis: redisClient, files: files, startTime: time.Now()}
}

// HandleHealth always answers 200; the body carries the verdict.
//
//	GET /health
func (hc *HealthChecker) HandleHealth(w http.ResponseWriter, r *http.Request) {
	checks := hc.runAllChecks(r.Context())
	respondJSON(w, http.StatusOK, HealthStatus{
		Status:  overallStatus(checks),
		Version: healthVersion,
		Uptime:  formatUptime(time.Since(hc.startTime)),
		Checks:  checks,
	})
}

// HandleLiveness answers 200 while the process is up.
//
//	GET /health/live
func (hc *HealthChecker) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "alive",
		"uptime": formatUptime(time.Since(hc.startTime)),
	})
}

// HandleReadiness answers 503 when Postgres is unreachable.
//
//	GET /health/ready
func (hc *HealthChecker) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	checks := hc.runAllChecks(r.Context())
	overall := overallStatus(checks)

	code := http.StatusOK
	if overall == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	respondJSON(w, code, map[string]interface{}{
		"ready":  overall != "unhealthy",
		"status": overall,
		"checks": checks,
	})
}

func (hc *HealthChecker) runAllChecks(ctx context.Context) map[string]ComponentCheck {
	checkers := map[string]func(context.Context) ComponentCheck{
		"database": hc.checkDatabase,
		"redis":    hc.checkRedis,
		"storage":  hc.checkStorage,
		"imports":  hc.checkImports,
	}

	type result struct {
		name  string
		check ComponentCheck
	}
	ch := make(chan result, len(checkers))
	for name, check := range checkers {
		go func(name string, check func(context.Context) ComponentCheck) {
			ch <- result{name, check(ctx)}
		}(name, check)
	}

	checks := make(map[string]ComponentCheck, len(checkers))
	for range checkers {
		r := <-ch
		checks[r.name] = r.check
	}
	return checks
}

// timed runs fn under timeout and turns its error and latency into a check.
// Latency above slow degrades an otherwise healthy result.
func timed(ctx context.Context, timeout, slow time.Duration, okMsg string, fn func(context.Context) error) ComponentCheck {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := fn(cctx)
	latency := time.Since(start)

	if err != nil {
		return ComponentCheck{Status: statusDown, Latency: latency.String(), Message: err.Error()}
	}
	if slow > 0 && latency > slow {
		return ComponentCheck{Status: statusDegraded, Latency: latency.String(), Message: fmt.Sprintf("slow response (%s)", latency)}
	}
	return ComponentCheck{Status: statusUp, Latency: latency.String(), Message: okMsg}
}

func (hc *HealthChecker) checkDatabase(ctx context.Context) ComponentCheck {
	if hc.db == nil {
		return ComponentCheck{Status: statusDown, Message: notConfigured}
	}
	return timed(ctx, 3*time.Second, time.Second, "connected", func(ctx context.Context) error {
		if err := hc.db.PingContext(ctx); err != nil {
			return fmt.Errorf("ping failed: %w", err)
		}
		return nil
	})
}

func (hc *HealthChecker) checkRedis(ctx context.Context) ComponentCheck {
	if hc.redis == nil {
		return ComponentCheck{Status: statusDown, Message: notConfigured}
	}
	return timed(ctx, 2*time.Second, 500*time.Millisecond, "connected", func(ctx context.Context) error {
		if err := hc.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("ping failed: %w", err)
		}
		return nil
	})
}

func (hc *HealthChecker) checkStorage(ctx context.Context) ComponentCheck {
	if hc.files == nil {
		return ComponentCheck{Status: statusDown, Message: notConfigured}
	}
	backend := hc.files.Backend()
	return timed(ctx, 3*time.Second, 0, backend+" storage accessible", func(ctx context.Context) error {
		if err := hc.files.Check(ctx); err != nil {
			return fmt.Errorf("%s storage check failed: %w", backend, err)
		}
		return nil
	})
}

// checkImports reports the number of jobs in flight. A failed count is only
// degraded since the table may not be migrated yet.
func (hc *HealthChecker) checkImports(ctx context.Context) ComponentCheck {
	if hc.db == nil {
		return ComponentCheck{Status: statusDown, Message: "database not available"}
	}
	var count int
	c := timed(ctx, 3*time.Second, 0, "", func(ctx context.Context) error {
		return hc.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM imports WHERE status = ANY($1)`,
			pq.Array(activeStatusNames()),
		).Scan(&count)
	})
	switch {
	case c.Status == statusDown:
		c.Status = statusDegraded
		c.Message = "import check failed: " + c.Message
	case count > importBacklogLimit:
		c.Status = statusDegraded
		c.Message = fmt.Sprintf("high import backlog: %d in flight", count)
	default:
		c.Message = fmt.Sprintf("%d imports in flight", count)
	}
	return c
}

func activeStatusNames() []string {
	var out []string
	for _, s := range domain.ActiveStatuses() {
		out = append(out, string(s))
	}
	return out
}

// overallStatus is unhealthy when a configured database is down, degraded
// when anything else is degraded or down, healthy otherwise.
func overallStatus(checks map[string]ComponentCheck) string {
	if db, ok := checks["database"]; ok && db.Status == statusDown && db.Message != notConfigured {
		return "unhealthy"
	}
	for _, c := range checks {
		if c.Status == statusDegraded || (c.Status == statusDown && c.Message != notConfigured) {
			return "degraded"
		}
	}
	return "healthy"
}

// formatUptime renders d as "3d 4h 12m 5s", dropping leading zero units.
func formatUptime(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}
