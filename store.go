package farmsync

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/farmsync/farmsync/internal/store/migrations"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

const lastSyncKey = "last_sync"

// Result describes the effect of a write statement.
type Result struct {
	LastInsertID int64
	Changes      int64
}

type writeRequest struct {
	ctx   context.Context
	fn    func(tx *sql.Tx) (Result, error)
	reply chan writeResponse
}

type writeResponse struct {
	res Result
	err error
}

// Store is the local SQLite database. Writes are applied one at a time in
// submission order by a single writer goroutine; reads run concurrently
// against the WAL.
type Store struct {
	db     *sql.DB
	path   string
	mu     sync.RWMutex
	closed bool
	queue  chan writeRequest
	done   chan struct{}

	// syncing is held by the one sync pass allowed per database.
	syncing atomic.Bool
}

var (
	registryMu sync.Mutex
	registry   = map[string]*Store{}

	migrateMu sync.Mutex
)

// Open returns the store for path, opening it on first use. Concurrent and
// repeated calls with the same path share one Store.
func Open(path string) (*Store, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("store: resolve path: %w", err)
	}

	registryMu.Lock()
	defer registryMu.Unlock()

	if s, ok := registry[abs]; ok && !s.isClosed() {
		return s, nil
	}
	s, err := NewStore(abs)
	if err != nil {
		return nil, err
	}
	registry[abs] = s
	return s, nil
}

// NewStore opens or creates a local store at path, bypassing the Open
// registry.
func NewStore(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	dsn := path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Enable WAL mode for concurrent reads during writes
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	s := &Store{
		db:    db,
		path:  path,
		queue: make(chan writeRequest, 64),
		done:  make(chan struct{}),
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	go s.writer()
	return s, nil
}

func (s *Store) migrate() error {
	migrateMu.Lock()
	defer migrateMu.Unlock()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("store: set goose dialect: %w", err)
	}
	if err := goose.Up(s.db, "."); err != nil {
		return fmt.Errorf("store: run migrations: %w", err)
	}
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

func (s *Store) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

func (s *Store) writer() {
	defer close(s.done)
	for req := range s.queue {
		res, err := s.apply(req)
		req.reply <- writeResponse{res: res, err: err}
	}
}

func (s *Store) apply(req writeRequest) (Result, error) {
	tx, err := s.db.BeginTx(req.ctx, nil)
	if err != nil {
		return Result{}, fmt.Errorf("store: begin transaction: %w", err)
	}
	defer tx.Rollback() // no-op if committed

	res, err := req.fn(tx)
	if err != nil {
		return Result{}, err
	}
	if err := tx.Commit(); err != nil {
		return Result{}, fmt.Errorf("store: commit: %w", err)
	}
	return res, nil
}

// submit queues fn for the writer and waits for its result. Once queued,
// the write completes even if ctx is cancelled while waiting.
func (s *Store) submit(ctx context.Context, fn func(tx *sql.Tx) (Result, error)) (Result, error) {
	reply := make(chan writeResponse, 1)

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return Result{}, ErrStoreClosed
	}
	select {
	case s.queue <- writeRequest{ctx: context.WithoutCancel(ctx), fn: fn, reply: reply}:
	case <-ctx.Done():
		s.mu.RUnlock()
		return Result{}, ctx.Err()
	}
	s.mu.RUnlock()

	resp := <-reply
	return resp.res, resp.err
}

// Run executes one write statement through the writer queue.
func (s *Store) Run(ctx context.Context, query string, args ...any) (Result, error) {
	return s.submit(ctx, func(tx *sql.Tx) (Result, error) {
		r, err := tx.Exec(query, args...)
		if err != nil {
			return Result{}, err
		}
		var res Result
		res.LastInsertID, _ = r.LastInsertId()
		res.Changes, _ = r.RowsAffected()
		return res, nil
	})
}

// Tx runs fn in one transaction through the writer queue.
func (s *Store) Tx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	_, err := s.submit(ctx, func(tx *sql.Tx) (Result, error) {
		return Result{}, fn(tx)
	})
	return err
}

// GetAll runs a read query and returns every row.
func (s *Store) GetAll(ctx context.Context, query string, args ...any) ([]Row, error) {
	if s.isClosed() {
		return nil, ErrStoreClosed
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRows(rows)
}

// GetFirst runs a read query and returns its first row, or nil when the
// query matches nothing.
func (s *Store) GetFirst(ctx context.Context, query string, args ...any) (Row, error) {
	rows, err := s.GetAll(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func scanRows(rows *sql.Rows) ([]Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []Row
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(Row, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				row[c] = string(b)
				continue
			}
			row[c] = vals[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// PendingCount returns the number of records awaiting upload across all
// entity tables.
func (s *Store) PendingCount(ctx context.Context) (int, error) {
	parts := make([]string, len(syncTables))
	for i, t := range syncTables {
		parts[i] = fmt.Sprintf("SELECT COUNT(*) AS n FROM %s WHERE sync_status = 'pending'", t.local)
	}
	row, err := s.GetFirst(ctx, "SELECT SUM(n) AS total FROM ("+strings.Join(parts, " UNION ALL ")+")")
	if err != nil {
		return 0, fmt.Errorf("store: count pending: %w", err)
	}
	n, _ := asInt(row["total"])
	return int(n), nil
}

// Stats returns per-entity counts and the time of the last completed sync.
func (s *Store) Stats(ctx context.Context) (*StoreStats, error) {
	stats := &StoreStats{
		Path:     s.path,
		Entities: make(map[EntityKind]EntityStats, len(syncTables)),
	}
	for _, t := range syncTables {
		row, err := s.GetFirst(ctx, fmt.Sprintf(
			"SELECT COUNT(*) AS total, COALESCE(SUM(sync_status = 'pending'), 0) AS pending FROM %s", t.local))
		if err != nil {
			return nil, fmt.Errorf("store: stats %s: %w", t.kind, err)
		}
		total, _ := asInt(row["total"])
		pending, _ := asInt(row["pending"])
		stats.Entities[t.kind] = EntityStats{Total: int(total), Pending: int(pending)}
		stats.Pending += int(pending)
	}

	last, err := s.LastSync(ctx)
	if err != nil {
		return nil, err
	}
	stats.LastSync = last
	return stats, nil
}

// LastSync returns the completion time of the last sync pass, or the zero
// time if none has completed.
func (s *Store) LastSync(ctx context.Context) (time.Time, error) {
	row, err := s.GetFirst(ctx, "SELECT value FROM sync_meta WHERE key = ?", lastSyncKey)
	if err != nil {
		return time.Time{}, fmt.Errorf("store: read last sync: %w", err)
	}
	if row == nil {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, asString(row["value"]))
	if err != nil {
		return time.Time{}, nil
	}
	return t, nil
}

// SetLastSync records the completion time of a sync pass.
func (s *Store) SetLastSync(ctx context.Context, t time.Time) error {
	_, err := s.Run(ctx, `
		INSERT INTO sync_meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, lastSyncKey, t.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("store: write last sync: %w", err)
	}
	return nil
}

// Close drains queued writes and closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	<-s.done

	registryMu.Lock()
	if registry[s.path] == s {
		delete(registry, s.path)
	}
	registryMu.Unlock()

	return s.db.Close()
}

// isUniqueViolation reports whether err is a SQLite UNIQUE constraint failure.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
