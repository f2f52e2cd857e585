// Package sqlite implements the local store: one embedded SQLite database
// per installation, shared by every cache and queue repository.
//
// All access is serialized through the backend mutex and a single open
// connection, so a transaction is never observed half-applied.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/oilsync/pkg/types"
)

var _ types.Store = (*Backend)(nil)

// Backend implements types.Store on SQLite.
type Backend struct {
	mu       sync.Mutex
	attached bool
	config   types.Config
	db       *sql.DB
	path     string
	ensured  map[string]bool
	logger   *zap.SugaredLogger
}

// Option configures a Backend.
type Option func(*Backend)

// WithLogger sets the backend logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(b *Backend) {
		if l != nil {
			b.logger = l
		}
	}
}

// NewBackend creates a new SQLite backend instance.
// The backend is not attached; call Attach with a Config to initialize.
func NewBackend(opts ...Option) *Backend {
	b := &Backend{
		ensured: make(map[string]bool),
		logger:  zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Attach opens the database described by config. Creates DataDir if it
// does not exist. Returns ErrAlreadyAttached if already attached.
// Existing data is kept: the store survives restarts.
func (b *Backend) Attach(config types.Config) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.attached {
		return types.ErrAlreadyAttached
	}
	if err := config.Validate(); err != nil {
		return err
	}

	dsn := ":memory:"
	if !config.InMemory {
		if err := os.MkdirAll(config.DataDir, 0o755); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
		b.path = filepath.Join(config.DataDir, types.StoreFileName)
		dsn = b.path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	// One connection per process. An in-memory database also lives only
	// as long as its connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := configure(db, config); err != nil {
		db.Close()
		return err
	}

	b.db = db
	b.config = config
	b.ensured = make(map[string]bool)
	b.attached = true
	b.logger.Debugw("store attached", "path", b.path, "in_memory", config.InMemory)
	return nil
}

func configure(db *sql.DB, config types.Config) error {
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", config.GetBusyTimeoutMillis())); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return fmt.Errorf("enable foreign keys: %w", err)
	}
	if !config.InMemory {
		var mode string
		if err := db.QueryRow("PRAGMA journal_mode = WAL").Scan(&mode); err != nil {
			return fmt.Errorf("enable WAL: %w", err)
		}
	}
	return nil
}

// Detach closes the database. Detach is idempotent.
func (b *Backend) Detach() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return nil
	}
	if b.db != nil {
		if err := b.db.Close(); err != nil {
			return err
		}
		b.db = nil
	}
	b.attached = false
	b.ensured = make(map[string]bool)
	return nil
}

// Path returns the database file path, empty for in-memory stores.
func (b *Backend) Path() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.path
}

// Exec runs a statement that returns no rows.
func (b *Backend) Exec(query string, args ...any) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return types.ErrStoreDetached
	}
	if _, err := b.db.Exec(query, args...); err != nil {
		return fmt.Errorf("exec: %w", err)
	}
	return nil
}

// QueryAll runs a query and returns all rows.
func (b *Backend) QueryAll(query string, args ...any) ([]types.Row, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return nil, types.ErrStoreDetached
	}
	return queryAll(b.db, query, args...)
}

// WithTransaction runs fn in a transaction. A non-nil error or a panic
// from fn rolls the transaction back; the panic is re-raised.
func (b *Backend) WithTransaction(fn func(tx types.Tx) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return types.ErrStoreDetached
	}

	sqlTx, err := b.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				b.logger.Warnw("rollback failed", "error", rbErr)
			}
		}
	}()

	if err := fn(&tx{tx: sqlTx}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	committed = true
	return nil
}

// EnsureSchema applies ddl the first time group is requested after each
// Attach. Statements must be idempotent (IF NOT EXISTS).
func (b *Backend) EnsureSchema(group string, ddl []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return types.ErrStoreDetached
	}
	if b.ensured[group] {
		return nil
	}
	for _, stmt := range ddl {
		if _, err := b.db.Exec(stmt); err != nil {
			return fmt.Errorf("schema %s: %w", group, err)
		}
	}
	b.ensured[group] = true
	b.logger.Debugw("schema ensured", "group", group)
	return nil
}

// tx binds Exec and QueryAll to an open transaction.
type tx struct {
	tx *sql.Tx
}

func (t *tx) Exec(query string, args ...any) error {
	if _, err := t.tx.Exec(query, args...); err != nil {
		return fmt.Errorf("exec: %w", err)
	}
	return nil
}

func (t *tx) QueryAll(query string, args ...any) ([]types.Row, error) {
	return queryAll(t.tx, query, args...)
}

type querier interface {
	Query(query string, args ...any) (*sql.Rows, error)
}

func queryAll(q querier, query string, args ...any) ([]types.Row, error) {
	rows, err := q.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}

	var out []types.Row
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		row := make(types.Row, len(cols))
		for i, c := range cols {
			row[c] = vals[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}
