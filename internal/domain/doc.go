// Package domain holds the import-job and classification types shared by the
// API, the ingestion worker, the classification service and the Postgres
// repositories.
//
// The package imports nothing else from internal/. Types carry JSON and DB
// tags plus pure validation and state-transition helpers, never I/O.
package domain
