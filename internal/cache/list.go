package cache

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/mesh-intelligence/oilsync/pkg/types"
)

// ListCache keeps an ordered list of T per owner.
type ListCache[T any] struct {
	store     types.Store
	name      string
	rowsTable string
	metaTable string
	opts      options
}

var _ Snapshot[[]int] = (*ListCache[int])(nil)

// NewList creates a list cache whose tables are prefixed with name.
func NewList[T any](store types.Store, name string, opts ...Option) *ListCache[T] {
	return &ListCache[T]{
		store:     store,
		name:      name,
		rowsTable: name + "_rows",
		metaTable: name + "_sync",
		opts:      buildOptions(name, opts),
	}
}

func (c *ListCache[T]) ensure() error {
	return c.store.EnsureSchema(c.name, []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			owner_id   INTEGER NOT NULL,
			item_index INTEGER NOT NULL,
			data_json  TEXT    NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (owner_id, item_index)
		)`, c.rowsTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			owner_id  INTEGER PRIMARY KEY,
			last_sync INTEGER NOT NULL
		)`, c.metaTable),
	})
}

// SaveAll replaces the owner's list with items and stamps the last sync.
// Readers see either the old list or the new one.
func (c *ListCache[T]) SaveAll(ownerID int64, items []T) error {
	if err := c.ensure(); err != nil {
		return err
	}
	now := c.opts.now()
	return c.store.WithTransaction(func(tx types.Tx) error {
		if err := c.writeRows(tx, ownerID, items, now); err != nil {
			return err
		}
		return c.stamp(tx, ownerID, now.UnixMilli())
	})
}

// Replace is SaveAll.
func (c *ListCache[T]) Replace(ownerID int64, items []T) error {
	return c.SaveAll(ownerID, items)
}

// GetAll returns the owner's list in stored order. Rows that fail to
// decode are skipped.
func (c *ListCache[T]) GetAll(ownerID int64) ([]T, error) {
	if err := c.ensure(); err != nil {
		return nil, err
	}
	return c.readRows(c.store, ownerID)
}

// Load is GetAll.
func (c *ListCache[T]) Load(ownerID int64) ([]T, error) {
	return c.GetAll(ownerID)
}

// AppendOne adds item to the end of the owner's list. It reads, appends
// and replaces inside one transaction, so it also stamps the last sync.
func (c *ListCache[T]) AppendOne(ownerID int64, item T) error {
	if err := c.ensure(); err != nil {
		return err
	}
	now := c.opts.now()
	return c.store.WithTransaction(func(tx types.Tx) error {
		items, err := c.readRows(tx, ownerID)
		if err != nil {
			return err
		}
		items = append(items, item)
		if err := c.writeRows(tx, ownerID, items, now); err != nil {
			return err
		}
		return c.stamp(tx, ownerID, now.UnixMilli())
	})
}

// Update rewrites the owner's list with fn in one transaction. The last
// sync stamp is left alone. Returning an error from fn aborts the write.
func (c *ListCache[T]) Update(ownerID int64, fn func(items []T) ([]T, error)) error {
	if err := c.ensure(); err != nil {
		return err
	}
	now := c.opts.now()
	return c.store.WithTransaction(func(tx types.Tx) error {
		items, err := c.readRows(tx, ownerID)
		if err != nil {
			return err
		}
		out, err := fn(items)
		if err != nil {
			return err
		}
		return c.writeRows(tx, ownerID, out, now)
	})
}

// LastSync returns the owner's last sync time.
func (c *ListCache[T]) LastSync(ownerID int64) (time.Time, bool, error) {
	if err := c.ensure(); err != nil {
		return time.Time{}, false, err
	}
	rows, err := c.store.QueryAll(
		fmt.Sprintf(`SELECT last_sync FROM %s WHERE owner_id = ?`, c.metaTable), ownerID)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("read last sync: %w", err)
	}
	if len(rows) == 0 {
		return time.Time{}, false, nil
	}
	t, ok := fromMillis(rows[0].Int64("last_sync"))
	return t, ok, nil
}

// SetLastSync stamps the owner's last sync time.
func (c *ListCache[T]) SetLastSync(ownerID int64, t time.Time) error {
	if err := c.ensure(); err != nil {
		return err
	}
	return c.stamp(c.store, ownerID, t.UnixMilli())
}

// MarkStale forces the next read to refresh. Cached rows are kept.
func (c *ListCache[T]) MarkStale(ownerID int64) error {
	if err := c.ensure(); err != nil {
		return err
	}
	return c.stamp(c.store, ownerID, 0)
}

// Clear deletes the owner's rows and sync stamp.
func (c *ListCache[T]) Clear(ownerID int64) error {
	if err := c.ensure(); err != nil {
		return err
	}
	return c.store.WithTransaction(func(tx types.Tx) error {
		if err := tx.Exec(fmt.Sprintf(`DELETE FROM %s WHERE owner_id = ?`, c.rowsTable), ownerID); err != nil {
			return err
		}
		return tx.Exec(fmt.Sprintf(`DELETE FROM %s WHERE owner_id = ?`, c.metaTable), ownerID)
	})
}

func (c *ListCache[T]) writeRows(ex types.Execer, ownerID int64, items []T, now time.Time) error {
	if err := ex.Exec(fmt.Sprintf(`DELETE FROM %s WHERE owner_id = ?`, c.rowsTable), ownerID); err != nil {
		return err
	}
	insert := fmt.Sprintf(
		`INSERT INTO %s (owner_id, item_index, data_json, updated_at) VALUES (?, ?, ?, ?)`, c.rowsTable)
	for i, item := range items {
		data, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("encode %s item %d: %w", c.name, i, err)
		}
		if err := ex.Exec(insert, ownerID, i, string(data), now.UnixMilli()); err != nil {
			return err
		}
	}
	return nil
}

func (c *ListCache[T]) readRows(ex types.Execer, ownerID int64) ([]T, error) {
	rows, err := ex.QueryAll(fmt.Sprintf(
		`SELECT item_index, data_json FROM %s WHERE owner_id = ? ORDER BY item_index`, c.rowsTable), ownerID)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", c.name, err)
	}
	items := make([]T, 0, len(rows))
	for _, row := range rows {
		var item T
		if err := json.Unmarshal([]byte(row.String("data_json")), &item); err != nil {
			c.opts.logger.Warnw("skipping corrupt cache row",
				"owner_id", ownerID, "index", row.Int64("item_index"), "error", err)
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func (c *ListCache[T]) stamp(ex types.Execer, ownerID, millis int64) error {
	return ex.Exec(fmt.Sprintf(
		`INSERT INTO %s (owner_id, last_sync) VALUES (?, ?)
		 ON CONFLICT(owner_id) DO UPDATE SET last_sync = excluded.last_sync`, c.metaTable),
		ownerID, millis)
}
