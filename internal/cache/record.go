package cache

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/mesh-intelligence/oilsync/pkg/types"
)

// RecordCache keeps one snapshot of T per owner. Last write wins.
type RecordCache[T any] struct {
	store types.Store
	name  string
	opts  options
}

var _ Snapshot[int] = (*RecordCache[int])(nil)

// NewRecord creates a record cache stored in the table called name.
func NewRecord[T any](store types.Store, name string, opts ...Option) *RecordCache[T] {
	return &RecordCache[T]{store: store, name: name, opts: buildOptions(name, opts)}
}

func (c *RecordCache[T]) ensure() error {
	return c.store.EnsureSchema(c.name, []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			owner_id   INTEGER PRIMARY KEY,
			data_json  TEXT    NOT NULL,
			updated_at INTEGER NOT NULL
		)`, c.name),
	})
}

// Save stores v as the owner's snapshot.
func (c *RecordCache[T]) Save(ownerID int64, v T) error {
	if err := c.ensure(); err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", c.name, err)
	}
	return c.store.Exec(fmt.Sprintf(
		`INSERT INTO %s (owner_id, data_json, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(owner_id) DO UPDATE SET data_json = excluded.data_json, updated_at = excluded.updated_at`,
		c.name), ownerID, string(data), c.opts.now().UnixMilli())
}

// Replace is Save.
func (c *RecordCache[T]) Replace(ownerID int64, v T) error {
	return c.Save(ownerID, v)
}

// Get returns the owner's snapshot. A corrupt snapshot is logged and
// reported as absent.
func (c *RecordCache[T]) Get(ownerID int64) (T, bool, error) {
	var zero T
	if err := c.ensure(); err != nil {
		return zero, false, err
	}
	rows, err := c.store.QueryAll(fmt.Sprintf(`SELECT data_json FROM %s WHERE owner_id = ?`, c.name), ownerID)
	if err != nil {
		return zero, false, fmt.Errorf("read %s: %w", c.name, err)
	}
	if len(rows) == 0 {
		return zero, false, nil
	}
	var v T
	if err := json.Unmarshal([]byte(rows[0].String("data_json")), &v); err != nil {
		c.opts.logger.Warnw("ignoring corrupt snapshot", "owner_id", ownerID, "error", err)
		return zero, false, nil
	}
	return v, true, nil
}

// Load returns the snapshot or the zero value.
func (c *RecordCache[T]) Load(ownerID int64) (T, error) {
	v, _, err := c.Get(ownerID)
	return v, err
}

// LastSync returns when the snapshot was last saved.
func (c *RecordCache[T]) LastSync(ownerID int64) (time.Time, bool, error) {
	if err := c.ensure(); err != nil {
		return time.Time{}, false, err
	}
	rows, err := c.store.QueryAll(fmt.Sprintf(`SELECT updated_at FROM %s WHERE owner_id = ?`, c.name), ownerID)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("read last sync: %w", err)
	}
	if len(rows) == 0 {
		return time.Time{}, false, nil
	}
	t, ok := fromMillis(rows[0].Int64("updated_at"))
	return t, ok, nil
}

// MarkStale keeps the snapshot but forces the next read to refresh.
func (c *RecordCache[T]) MarkStale(ownerID int64) error {
	if err := c.ensure(); err != nil {
		return err
	}
	return c.store.Exec(fmt.Sprintf(`UPDATE %s SET updated_at = 0 WHERE owner_id = ?`, c.name), ownerID)
}

// Clear deletes the owner's snapshot.
func (c *RecordCache[T]) Clear(ownerID int64) error {
	if err := c.ensure(); err != nil {
		return err
	}
	return c.store.Exec(fmt.Sprintf(`DELETE FROM %s WHERE owner_id = ?`, c.name), ownerID)
}
