// Package schema owns the people_records column registry. The registry is
// additive only: columns are created as nullable TEXT and never dropped or
// retyped.
package schema

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ignite/intake-extractor/internal/datanorm"
	"github.com/ignite/intake-extractor/internal/pkg/distlock"
	"github.com/ignite/intake-extractor/internal/pkg/logger"
)

// RecordsTable is the table that carries the extras bag as columns.
const RecordsTable = "people_records"

// Store is the DDL surface the synchronizer needs.
type Store interface {
	ListColumns(ctx context.Context, table string) ([]string, error)
	AddColumn(ctx context.Context, table, column string) error
	EnsureIndex(ctx context.Context, idx Index) error
}

// Index is a single-column secondary index.
type Index struct {
	Name   string
	Table  string
	Column string
}

// DefaultIndexes are ensured on every sync.
var DefaultIndexes = []Index{
	{Name: "ix_people_records_valid", Table: RecordsTable, Column: "valid"},
	{Name: "ix_people_records_import_id", Table: RecordsTable, Column: "import_id"},
	{Name: "ix_analyses_status", Table: "analyses", Column: "status"},
	{Name: "ix_analyses_record_id", Table: "analyses", Column: "record_id"},
}

// DeclaredColumns are the fixed text columns of people_records. They are
// checked on every sync alongside whatever a file brings.
var DeclaredColumns = func() []string {
	cols := make([]string, 0, len(datanorm.Fields)+13)
	for _, f := range datanorm.Fields {
		cols = append(cols, f.Column())
	}
	return append(cols,
		"tipo_de_cat", "data_emissao", "empregador", "cnpj_empregador", "cnae",
		"data_acidente", "hora_acidente", "local_acidente", "parte_corpo_atingida",
		"cid", "emails", "tipo_1", "observacoes_1",
	)
}()

// ColumnSkip records a column that could not be created.
type ColumnSkip struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// Result summarizes one Sync call.
type Result struct {
	Added          []string     `json:"added"`
	Skipped        []ColumnSkip `json:"skipped"`
	Existing       int          `json:"existing"`
	IndexesEnsured int          `json:"indexes_ensured"`
}

// Changed reports whether any DDL altered the table.
func (r *Result) Changed() bool { return len(r.Added) > 0 }

// Synchronizer keeps the persisted column set a superset of every extras key
// about to be written.
type Synchronizer struct {
	store    Store
	table    string
	declared []string
	indexes  []Index
	pause    time.Duration
	lock     distlock.DistLock
	poll     time.Duration
	sleep    func(ctx context.Context, d time.Duration) error

	mu    sync.RWMutex
	known map[string]bool
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithPause sets how long Sync waits after altering the table before it
// returns, giving catalog locks time to clear ahead of bulk inserts.
func WithPause(d time.Duration) Option { return func(s *Synchronizer) { s.pause = d } }

// WithLock serializes Sync across processes.
func WithLock(l distlock.DistLock, poll time.Duration) Option {
	return func(s *Synchronizer) { s.lock, s.poll = l, poll }
}

// WithSleep replaces the pause implementation; tests use it to observe pauses.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Synchronizer) { s.sleep = fn }
}

// New creates a synchronizer for people_records.
func New(store Store, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		store:    store,
		table:    RecordsTable,
		declared: DeclaredColumns,
		indexes:  DefaultIndexes,
		poll:     100 * time.Millisecond,
		sleep:    sleepCtx,
		known:    make(map[string]bool),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Sync makes sure every declared column and every observed key exists.
// Column failures are collected in Result.Skipped and do not fail the call;
// only an unreadable catalog does.
func (s *Synchronizer) Sync(ctx context.Context, observed []string) (*Result, error) {
	if s.lock == nil {
		return s.sync(ctx, observed)
	}
	var res *Result
	err := distlock.Do(ctx, s.lock, s.poll, func() error {
		var err error
		res, err = s.sync(ctx, observed)
		return err
	})
	return res, err
}

func (s *Synchronizer) sync(ctx context.Context, observed []string) (*Result, error) {
	if err := s.Refresh(ctx); err != nil {
		return nil, err
	}

	want := make(map[string]bool, len(s.declared)+len(observed))
	for _, c := range s.declared {
		want[c] = true
	}
	for _, c := range observed {
		want[identifier(c)] = true
	}
	names := make([]string, 0, len(want))
	for c := range want {
		names = append(names, c)
	}
	sort.Strings(names)

	res := &Result{}
	for _, col := range names {
		if s.Has(col) {
			res.Existing++
			continue
		}
		if col == "" {
			res.Skipped = append(res.Skipped, ColumnSkip{Name: col, Reason: "empty column name"})
			continue
		}
		if err := s.store.AddColumn(ctx, s.table, col); err != nil {
			logger.Warn("schema: add column skipped", "table", s.table, "column", col, "error", err)
			res.Skipped = append(res.Skipped, ColumnSkip{Name: col, Reason: err.Error()})
			continue
		}
		s.mu.Lock()
		s.known[col] = true
		s.mu.Unlock()
		res.Added = append(res.Added, col)
	}

	for _, idx := range s.indexes {
		if err := s.store.EnsureIndex(ctx, idx); err != nil {
			logger.Warn("schema: ensure index failed", "index", idx.Name, "error", err)
			continue
		}
		res.IndexesEnsured++
	}

	if res.Changed() {
		logger.Info("schema: columns added", "table", s.table, "count", len(res.Added), "columns", res.Added)
		if s.pause > 0 {
			if err := s.sleep(ctx, s.pause); err != nil {
				return res, err
			}
		}
	}
	return res, nil
}

// Refresh reloads the column set from the store.
func (s *Synchronizer) Refresh(ctx context.Context) error {
	cols, err := s.store.ListColumns(ctx, s.table)
	if err != nil {
		return fmt.Errorf("list columns of %s: %w", s.table, err)
	}
	known := make(map[string]bool, len(cols))
	for _, c := range cols {
		known[c] = true
	}
	s.mu.Lock()
	s.known = known
	s.mu.Unlock()
	return nil
}

// Has reports whether col is known to exist.
func (s *Synchronizer) Has(col string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.known[identifier(col)]
}

// Columns returns a sorted snapshot of the known column set.
func (s *Synchronizer) Columns() []string {
	s.mu.RLock()
	out := make([]string, 0, len(s.known))
	for c := range s.known {
		out = append(out, c)
	}
	s.mu.RUnlock()
	sort.Strings(out)
	return out
}

// identifier truncates to the length Postgres keeps, so a long key compares
// equal to the column the server actually created.
func identifier(col string) string {
	if len(col) > datanorm.MaxIdentifierLen {
		return col[:datanorm.MaxIdentifierLen]
	}
	return col
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
