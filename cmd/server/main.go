package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ignite/intake-extractor/internal/api"
	"github.com/ignite/intake-extractor/internal/config"
	"github.com/ignite/intake-extractor/internal/pkg/dbretry"
	"github.com/ignite/intake-extractor/internal/pkg/distlock"
	"github.com/ignite/intake-extractor/internal/pkg/logger"
	"github.com/ignite/intake-extractor/internal/repository/postgres"
	"github.com/ignite/intake-extractor/internal/schema"
	"github.com/ignite/intake-extractor/internal/service/classification"
	"github.com/ignite/intake-extractor/internal/storage"
	"github.com/ignite/intake-extractor/internal/worker"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"
)

// checkPortAvailable verifies that the target port is not already in use.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v", port, addr, err)
	}
	ln.Close()
	return nil
}

func extractHost(dsn string) string {
	at := strings.Index(dsn, "@")
	if at < 0 {
		return "(unknown)"
	}
	rest := dsn[at+1:]
	slash := strings.Index(rest, "/")
	if slash >= 0 {
		rest = rest[:slash]
	}
	return rest
}

func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	dbURL := cfg.URL
	sep := "?"
	if strings.Contains(dbURL, "?") {
		sep = "&"
	}
	if !strings.Contains(dbURL, "connect_timeout") {
		dbURL += sep + "connect_timeout=5"
	}
	log.Printf("DB URL host portion: ...@%s/...", extractHost(dbURL))

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return db, nil
}

// openRedis returns nil when Redis is not configured or unreachable; locks
// then fall back to Postgres advisory locks and progress is not mirrored.
func openRedis(ctx context.Context, redisURL string) *redis.Client {
	if redisURL == "" {
		log.Println("Redis not configured (REDIS_URL not set); using PG advisory locks")
		return nil
	}
	var client *redis.Client
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	} else {
		client = redis.NewClient(opts)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Printf("Warning: Redis connection failed: %v; falling back to PG advisory locks", err)
		client.Close()
		return nil
	}
	log.Println("Redis connected (distributed locking and progress cache enabled)")
	return client
}

func main() {
	log.Println("Intake extractor server (cmd/server)")

	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.LogLevel))
	if cfg.Database.URL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	host := cfg.Server.GetHost()
	port := cfg.Server.Port
	if err := checkPortAvailable(host, port); err != nil {
		log.Fatalf("Pre-flight check FAILED: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := openDatabase(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	redisClient := openRedis(ctx, cfg.Redis.URL)
	if redisClient != nil {
		defer redisClient.Close()
	}

	files, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	log.Printf("Upload storage: %s", files.Backend())

	// Stuck jobs from a previous run are failed before any new upload is accepted.
	if _, err := worker.NewJobRecovery(db).Run(ctx); err != nil {
		log.Fatalf("Job recovery failed: %v", err)
	}

	retry := dbretry.Policy{Attempts: cfg.Ingest.RetryAttempts, Backoff: cfg.Ingest.RetryBackoff()}

	syncer := schema.New(schema.NewPostgresStore(db),
		schema.WithPause(cfg.Ingest.SchemaPause()),
		schema.WithLock(distlock.NewLock(redisClient, db, "schema:sync", cfg.Redis.LockTTL()), 250*time.Millisecond),
	)
	if _, err := syncer.Sync(ctx, nil); err != nil {
		log.Fatalf("Schema synchronization failed: %v", err)
	}

	imports := postgres.NewImportRepo(db)
	records := postgres.NewRecordRepo(db)
	analyses := postgres.NewAnalysisRepo(db, retry)
	progress := worker.NewProgressMirror(redisClient, cfg.Ingest.ProgressTTL())

	importWorker := worker.NewImportWorker(
		imports,
		files,
		syncer,
		worker.NewBatchPersister(db, syncer, cfg.Ingest.ChunkSize, retry),
		progress,
	)
	classifier := classification.NewService(records, analyses, syncer, cfg.Ingest.QueueDefaultLimit)

	handlers := api.NewHandlers(importWorker, imports, progress, classifier, syncer, cfg.Ingest.MaxUploadBytes())
	health := api.NewHealthChecker(db, redisClient, files)
	server := api.NewServer(cfg.Server, handlers, health)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		addr := fmt.Sprintf("%s:%d", host, port)
		log.Printf("Starting server on %s", addr)
		if err := server.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-done
	log.Println("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	// Jobs still running when the deadline passes are failed by recovery on
	// the next start.
	if err := importWorker.Wait(shutdownCtx); err != nil {
		log.Printf("Imports still running at shutdown: %v", err)
	}
	cancel()

	log.Println("Server stopped")
}
