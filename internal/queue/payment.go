package queue

import (
	"fmt"

	"github.com/mesh-intelligence/oilsync/pkg/types"
)

const paymentTable = "vendor_payment_queue"

var paymentDDL = []string{
	`CREATE TABLE IF NOT EXISTS vendor_payment_queue (
		id                INTEGER PRIMARY KEY AUTOINCREMENT,
		owner_id          INTEGER NOT NULL,
		amount            REAL    NOT NULL,
		amount_due        REAL    NOT NULL DEFAULT 0,
		note              TEXT,
		payment_date      TEXT    NOT NULL DEFAULT '',
		truck_plate       TEXT,
		truck_type        TEXT,
		extra_cost_id     INTEGER,
		oil_id            INTEGER,
		lot_id            INTEGER,
		local_oil_form_id INTEGER,
		transaction_type  TEXT,
		payment_method    TEXT    NOT NULL DEFAULT '',
		supplier_name     TEXT,
		dirty             INTEGER NOT NULL DEFAULT 1,
		deleted           INTEGER NOT NULL DEFAULT 0,
		error             TEXT,
		remote_id         INTEGER,
		idempotency_key   TEXT    NOT NULL,
		created_at        INTEGER NOT NULL,
		last_attempt_at   INTEGER
	)`,
	`CREATE INDEX IF NOT EXISTS idx_vendor_payment_queue_owner_dirty
		ON vendor_payment_queue (owner_id, dirty, deleted, created_at, id)`,
	`CREATE INDEX IF NOT EXISTS idx_vendor_payment_queue_local_form
		ON vendor_payment_queue (owner_id, local_oil_form_id)`,
}

// PaymentQueue stores vendor payments recorded while offline.
type PaymentQueue struct {
	store types.Store
	opts  options
}

// NewPaymentQueue creates a payment queue on store.
func NewPaymentQueue(store types.Store, opts ...Option) *PaymentQueue {
	return &PaymentQueue{store: store, opts: buildOptions(opts)}
}

func (q *PaymentQueue) ensure() error {
	return q.store.EnsureSchema(paymentTable, paymentDDL)
}

// Enqueue stores in as a dirty row.
func (q *PaymentQueue) Enqueue(ownerID int64, in types.VendorPaymentInput) (types.QueuedVendorPayment, error) {
	if ownerID == 0 {
		return types.QueuedVendorPayment{}, types.ErrOwnerRequired
	}
	if err := in.Validate(); err != nil {
		return types.QueuedVendorPayment{}, err
	}
	if err := q.ensure(); err != nil {
		return types.QueuedVendorPayment{}, err
	}
	key, err := q.opts.newKey()
	if err != nil {
		return types.QueuedVendorPayment{}, err
	}

	var id int64
	err = q.store.WithTransaction(func(tx types.Tx) error {
		if err := tx.Exec(
			`INSERT INTO vendor_payment_queue
				(owner_id, amount, amount_due, note, payment_date, truck_plate, truck_type,
				 extra_cost_id, oil_id, lot_id, local_oil_form_id, transaction_type,
				 payment_method, supplier_name, dirty, deleted, idempotency_key, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, 0, ?, ?)`,
			ownerID, in.Amount, in.AmountDue, nullable(in.Note), in.PaymentDate,
			nullable(in.TruckPlate), nullable(in.TruckType),
			nullInt(in.ExtraCostID), nullInt(in.OilID), nullInt(in.LotID), nullInt(in.LocalOilFormID),
			nullable(in.TransactionType), in.PaymentMethod, nullable(in.SupplierName),
			key, q.opts.now().UnixMilli(),
		); err != nil {
			return fmt.Errorf("enqueue payment: %w", err)
		}
		id, err = lastInsertID(tx)
		return err
	})
	if err != nil {
		return types.QueuedVendorPayment{}, err
	}
	q.opts.logger.Debugw("payment queued", "owner_id", ownerID, "id", id, "amount", in.Amount)
	return q.Get(ownerID, id)
}

// Get returns one queued payment, deleted or not.
func (q *PaymentQueue) Get(ownerID, id int64) (types.QueuedVendorPayment, error) {
	if err := q.ensure(); err != nil {
		return types.QueuedVendorPayment{}, err
	}
	out, err := q.query(`WHERE owner_id = ? AND id = ?`, ownerID, id)
	if err != nil {
		return types.QueuedVendorPayment{}, err
	}
	if len(out) == 0 {
		return types.QueuedVendorPayment{}, fmt.Errorf("payment %d: %w", id, types.ErrNotFound)
	}
	return out[0], nil
}

// List returns the owner's payments that are not deleted, oldest first.
func (q *PaymentQueue) List(ownerID int64) ([]types.QueuedVendorPayment, error) {
	if err := q.ensure(); err != nil {
		return nil, err
	}
	return q.query(`WHERE owner_id = ? AND deleted = 0 ORDER BY created_at, id`, ownerID)
}

// ListDirty returns payments that still need a push, oldest first.
func (q *PaymentQueue) ListDirty(ownerID int64) ([]types.QueuedVendorPayment, error) {
	if err := q.ensure(); err != nil {
		return nil, err
	}
	return q.query(`WHERE owner_id = ? AND dirty = 1 AND deleted = 0 ORDER BY created_at, id`, ownerID)
}

// MarkPushed clears dirty after the server accepted the payment.
func (q *PaymentQueue) MarkPushed(ownerID, id, remoteID int64) error {
	return q.update(ownerID, id, `dirty = 0, error = NULL, remote_id = ?`, remoteID)
}

// MarkFailed records the push error. The row stays dirty.
func (q *PaymentQueue) MarkFailed(ownerID, id int64, msg string) error {
	return q.update(ownerID, id, `error = ?`, msg)
}

// Touch stamps the last push attempt.
func (q *PaymentQueue) Touch(ownerID, id int64) error {
	return q.update(ownerID, id, `last_attempt_at = ?`, q.opts.now().UnixMilli())
}

// Delete soft-deletes a payment. Deleted rows are never pushed.
func (q *PaymentQueue) Delete(ownerID, id int64) error {
	return q.update(ownerID, id, `deleted = 1`)
}

// ResolveLocalForm fills lot_id, and oil_id when exactly one oil was
// created, on payments still pointing only at localFormID. It returns the
// number of rows patched.
func (q *PaymentQueue) ResolveLocalForm(ownerID, localFormID int64, remote types.RemoteIDs) (int64, error) {
	if err := q.ensure(); err != nil {
		return 0, err
	}
	var oilID *int64
	if id, ok := remote.SingleOilID(); ok {
		oilID = &id
	}
	var n int64
	err := q.store.WithTransaction(func(tx types.Tx) error {
		if err := tx.Exec(
			`UPDATE vendor_payment_queue SET lot_id = ?, oil_id = ?
			 WHERE owner_id = ? AND local_oil_form_id = ?
			   AND lot_id IS NULL AND oil_id IS NULL AND deleted = 0`,
			remote.LotID, nullInt(oilID), ownerID, localFormID,
		); err != nil {
			return fmt.Errorf("resolve payments for form %d: %w", localFormID, err)
		}
		var err error
		n, err = changes(tx)
		return err
	})
	if err == nil && n > 0 {
		q.opts.logger.Debugw("payments resolved", "owner_id", ownerID, "local_form_id", localFormID, "rows", n)
	}
	return n, err
}

// DirtyCount returns how many payments still need a push.
func (q *PaymentQueue) DirtyCount(ownerID int64) (int, error) {
	if err := q.ensure(); err != nil {
		return 0, err
	}
	rows, err := q.store.QueryAll(
		`SELECT COUNT(*) AS n FROM vendor_payment_queue WHERE owner_id = ? AND dirty = 1 AND deleted = 0`, ownerID)
	if err != nil {
		return 0, fmt.Errorf("count payments: %w", err)
	}
	return int(rows[0].Int64("n")), nil
}

func (q *PaymentQueue) update(ownerID, id int64, set string, args ...any) error {
	if err := q.ensure(); err != nil {
		return err
	}
	return q.store.WithTransaction(func(tx types.Tx) error {
		rows, err := tx.QueryAll(`SELECT id FROM vendor_payment_queue WHERE owner_id = ? AND id = ?`, ownerID, id)
		if err != nil {
			return fmt.Errorf("read payment: %w", err)
		}
		if len(rows) == 0 {
			return fmt.Errorf("payment %d: %w", id, types.ErrNotFound)
		}
		params := append(append([]any{}, args...), ownerID, id)
		if err := tx.Exec(`UPDATE vendor_payment_queue SET `+set+` WHERE owner_id = ? AND id = ?`, params...); err != nil {
			return fmt.Errorf("update payment: %w", err)
		}
		return nil
	})
}

func (q *PaymentQueue) query(where string, args ...any) ([]types.QueuedVendorPayment, error) {
	rows, err := q.store.QueryAll(`SELECT * FROM vendor_payment_queue `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("query payments: %w", err)
	}
	out := make([]types.QueuedVendorPayment, 0, len(rows))
	for _, row := range rows {
		p, err := scanPayment(row)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func scanPayment(row types.Row) (types.QueuedVendorPayment, error) {
	p := types.QueuedVendorPayment{
		ID:              row.Int64("id"),
		OwnerID:         row.Int64("owner_id"),
		Amount:          row.Float64("amount"),
		AmountDue:       row.Float64("amount_due"),
		Note:            row.String("note"),
		PaymentDate:     row.String("payment_date"),
		TruckPlate:      row.String("truck_plate"),
		TruckType:       row.String("truck_type"),
		TransactionType: row.String("transaction_type"),
		PaymentMethod:   row.String("payment_method"),
		SupplierName:    row.String("supplier_name"),
		Dirty:           row.Int64("dirty") != 0,
		Deleted:         row.Int64("deleted") != 0,
		Error:           row.String("error"),
		IdempotencyKey:  row.String("idempotency_key"),
		CreatedAt:       millisToTime(row.Int64("created_at")),
	}
	ids := []struct {
		col string
		dst **int64
	}{
		{"extra_cost_id", &p.ExtraCostID},
		{"oil_id", &p.OilID},
		{"lot_id", &p.LotID},
		{"local_oil_form_id", &p.LocalOilFormID},
		{"remote_id", &p.RemoteID},
	}
	for _, f := range ids {
		v, err := row.NullInt64(f.col)
		if err != nil {
			return p, err
		}
		*f.dst = v
	}
	last, err := nullMillisToTime(row, "last_attempt_at")
	if err != nil {
		return p, err
	}
	p.LastAttemptAt = last
	return p, nil
}

// nullInt stores a nil id as NULL.
func nullInt(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}

// nullable stores empty optional text as NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
