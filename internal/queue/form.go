package queue

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/mesh-intelligence/oilsync/pkg/types"
)

const formTable = "oil_form_queue"

var formDDL = []string{
	`CREATE TABLE IF NOT EXISTS oil_form_queue (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		owner_id        INTEGER NOT NULL,
		mode            TEXT    NOT NULL CHECK (mode IN ('single', 'both')),
		payload         TEXT    NOT NULL,
		truck_rent      REAL    NOT NULL DEFAULT 0,
		depot_cost      REAL    NOT NULL DEFAULT 0,
		tax             REAL    NOT NULL DEFAULT 0,
		currency        TEXT    NOT NULL DEFAULT '',
		status          TEXT    NOT NULL DEFAULT 'pending',
		error           TEXT,
		remote_ids      TEXT,
		idempotency_key TEXT    NOT NULL,
		created_at      INTEGER NOT NULL,
		updated_at      INTEGER NOT NULL,
		last_attempt_at INTEGER
	)`,
	`CREATE INDEX IF NOT EXISTS idx_oil_form_queue_owner_status
		ON oil_form_queue (owner_id, status, created_at, id)`,
}

const formColumns = `id, owner_id, mode, payload, truck_rent, depot_cost, tax, currency,
	status, error, remote_ids, idempotency_key, created_at, updated_at, last_attempt_at`

// FormQueue stores oil-create submissions made while offline.
type FormQueue struct {
	store types.Store
	opts  options
}

// NewFormQueue creates a form queue on store.
func NewFormQueue(store types.Store, opts ...Option) *FormQueue {
	return &FormQueue{store: store, opts: buildOptions(opts)}
}

func (q *FormQueue) ensure() error {
	return q.store.EnsureSchema(formTable, formDDL)
}

// Enqueue stores sub as a pending row. The payload is kept verbatim and
// replayed as-is on sync.
func (q *FormQueue) Enqueue(ownerID int64, sub types.FormSubmission) (types.QueuedForm, error) {
	if ownerID == 0 {
		return types.QueuedForm{}, types.ErrOwnerRequired
	}
	if err := sub.Validate(); err != nil {
		return types.QueuedForm{}, err
	}
	if err := q.ensure(); err != nil {
		return types.QueuedForm{}, err
	}
	key, err := q.opts.newKey()
	if err != nil {
		return types.QueuedForm{}, err
	}
	now := q.opts.now().UnixMilli()

	var id int64
	err = q.store.WithTransaction(func(tx types.Tx) error {
		if err := tx.Exec(
			`INSERT INTO oil_form_queue
				(owner_id, mode, payload, truck_rent, depot_cost, tax, currency, status, idempotency_key, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			ownerID, string(sub.Mode), string(sub.Payload), sub.TruckRent, sub.DepotCost, sub.Tax, sub.Currency,
			string(types.StatusPending), key, now, now,
		); err != nil {
			return fmt.Errorf("enqueue form: %w", err)
		}
		id, err = lastInsertID(tx)
		return err
	})
	if err != nil {
		return types.QueuedForm{}, err
	}
	q.opts.logger.Debugw("form queued", "owner_id", ownerID, "id", id, "mode", sub.Mode)
	return q.Get(ownerID, id)
}

// Get returns one queued form.
func (q *FormQueue) Get(ownerID, id int64) (types.QueuedForm, error) {
	if err := q.ensure(); err != nil {
		return types.QueuedForm{}, err
	}
	forms, err := q.query(q.store, `WHERE owner_id = ? AND id = ?`, ownerID, id)
	if err != nil {
		return types.QueuedForm{}, err
	}
	if len(forms) == 0 {
		return types.QueuedForm{}, fmt.Errorf("form %d: %w", id, types.ErrNotFound)
	}
	return forms[0], nil
}

// List returns every queued form for the owner, oldest first.
func (q *FormQueue) List(ownerID int64) ([]types.QueuedForm, error) {
	if err := q.ensure(); err != nil {
		return nil, err
	}
	return q.query(q.store, `WHERE owner_id = ? ORDER BY created_at, id`, ownerID)
}

// ListPending returns pending and failed forms, oldest first.
func (q *FormQueue) ListPending(ownerID int64) ([]types.QueuedForm, error) {
	if err := q.ensure(); err != nil {
		return nil, err
	}
	return q.query(q.store, `WHERE owner_id = ? AND status IN (?, ?) ORDER BY created_at, id`,
		ownerID, string(types.StatusPending), string(types.StatusFailed))
}

// ListOrphaned returns forms left in syncing, e.g. by a crash mid-pass.
func (q *FormQueue) ListOrphaned(ownerID int64) ([]types.QueuedForm, error) {
	if err := q.ensure(); err != nil {
		return nil, err
	}
	return q.query(q.store, `WHERE owner_id = ? AND status = ? ORDER BY created_at, id`,
		ownerID, string(types.StatusSyncing))
}

// MarkSyncing moves a pending or failed form to syncing.
func (q *FormQueue) MarkSyncing(ownerID, id int64) error {
	now := q.opts.now().UnixMilli()
	return q.transition(ownerID, id, EventStart,
		`last_attempt_at = ?`, now)
}

// MarkSynced records the server ids and clears any previous error.
func (q *FormQueue) MarkSynced(ownerID, id int64, remote types.RemoteIDs) error {
	data, err := json.Marshal(remote)
	if err != nil {
		return fmt.Errorf("encode remote ids: %w", err)
	}
	return q.transition(ownerID, id, EventSucceed,
		`remote_ids = ?, error = NULL`, string(data))
}

// MarkFailed records the error. The row stays in the queue for retry.
func (q *FormQueue) MarkFailed(ownerID, id int64, msg string) error {
	return q.transition(ownerID, id, EventFail, `error = ?`, msg)
}

// Requeue moves a form stuck in syncing back to pending.
func (q *FormQueue) Requeue(ownerID, id int64) error {
	return q.transition(ownerID, id, EventRequeue, "")
}

// PurgeSynced deletes synced forms last updated before cutoff and returns
// how many were removed.
func (q *FormQueue) PurgeSynced(ownerID int64, cutoff time.Time) (int64, error) {
	if err := q.ensure(); err != nil {
		return 0, err
	}
	var n int64
	err := q.store.WithTransaction(func(tx types.Tx) error {
		if err := tx.Exec(`DELETE FROM oil_form_queue WHERE owner_id = ? AND status = ? AND updated_at < ?`,
			ownerID, string(types.StatusSynced), cutoff.UnixMilli()); err != nil {
			return fmt.Errorf("purge forms: %w", err)
		}
		var err error
		n, err = changes(tx)
		return err
	})
	return n, err
}

// Counts returns how many forms the owner has in each status.
func (q *FormQueue) Counts(ownerID int64) (map[types.QueueStatus]int, error) {
	if err := q.ensure(); err != nil {
		return nil, err
	}
	rows, err := q.store.QueryAll(
		`SELECT status, COUNT(*) AS n FROM oil_form_queue WHERE owner_id = ? GROUP BY status`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("count forms: %w", err)
	}
	out := make(map[types.QueueStatus]int, len(rows))
	for _, row := range rows {
		out[types.QueueStatus(row.String("status"))] = int(row.Int64("n"))
	}
	return out, nil
}

// transition validates event against the row's current status and writes
// the new status together with set (a SET fragment) and its args.
func (q *FormQueue) transition(ownerID, id int64, event, set string, args ...any) error {
	if err := q.ensure(); err != nil {
		return err
	}
	now := q.opts.now().UnixMilli()
	return q.store.WithTransaction(func(tx types.Tx) error {
		rows, err := tx.QueryAll(`SELECT status FROM oil_form_queue WHERE owner_id = ? AND id = ?`, ownerID, id)
		if err != nil {
			return fmt.Errorf("read form status: %w", err)
		}
		if len(rows) == 0 {
			return fmt.Errorf("form %d: %w", id, types.ErrNotFound)
		}
		from := types.QueueStatus(rows[0].String("status"))
		to, err := nextStatus(from, event)
		if err != nil {
			return err
		}

		stmt := `UPDATE oil_form_queue SET status = ?, updated_at = ?`
		params := []any{string(to), now}
		if set != "" {
			stmt += ", " + set
			params = append(params, args...)
		}
		stmt += ` WHERE owner_id = ? AND id = ?`
		params = append(params, ownerID, id)
		if err := tx.Exec(stmt, params...); err != nil {
			return fmt.Errorf("update form status: %w", err)
		}
		q.opts.logger.Debugw("form status", "owner_id", ownerID, "id", id, "from", from, "to", to)
		return nil
	})
}

func (q *FormQueue) query(ex types.Execer, where string, args ...any) ([]types.QueuedForm, error) {
	rows, err := ex.QueryAll(`SELECT `+formColumns+` FROM oil_form_queue `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("query forms: %w", err)
	}
	out := make([]types.QueuedForm, 0, len(rows))
	for _, row := range rows {
		f, err := scanForm(row)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

func scanForm(row types.Row) (types.QueuedForm, error) {
	f := types.QueuedForm{
		ID:             row.Int64("id"),
		OwnerID:        row.Int64("owner_id"),
		Mode:           types.FormMode(row.String("mode")),
		Payload:        json.RawMessage(row.String("payload")),
		TruckRent:      row.Float64("truck_rent"),
		DepotCost:      row.Float64("depot_cost"),
		Tax:            row.Float64("tax"),
		Currency:       row.String("currency"),
		Status:         types.QueueStatus(row.String("status")),
		Error:          row.String("error"),
		IdempotencyKey: row.String("idempotency_key"),
		CreatedAt:      millisToTime(row.Int64("created_at")),
		UpdatedAt:      millisToTime(row.Int64("updated_at")),
	}
	if raw := row.NullString("remote_ids"); raw != nil && *raw != "" {
		var ids types.RemoteIDs
		if err := json.Unmarshal([]byte(*raw), &ids); err != nil {
			return f, fmt.Errorf("form %d remote ids: %w", f.ID, err)
		}
		f.RemoteIDs = &ids
	}
	last, err := nullMillisToTime(row, "last_attempt_at")
	if err != nil {
		return f, err
	}
	f.LastAttemptAt = last
	return f, nil
}
