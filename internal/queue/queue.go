// Package queue holds the pending-write queues: oil-create forms and
// vendor payments recorded while offline, replayed by the sync engines.
package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/looplab/fsm"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/oilsync/internal/logging"
	"github.com/mesh-intelligence/oilsync/pkg/types"
)

// Form status events.
const (
	EventStart   = "start"
	EventSucceed = "succeed"
	EventFail    = "fail"
	EventRequeue = "requeue"
)

var formEvents = fsm.Events{
	{Name: EventStart, Src: []string{string(types.StatusPending), string(types.StatusFailed)}, Dst: string(types.StatusSyncing)},
	{Name: EventSucceed, Src: []string{string(types.StatusSyncing)}, Dst: string(types.StatusSynced)},
	{Name: EventFail, Src: []string{string(types.StatusSyncing)}, Dst: string(types.StatusFailed)},
	{Name: EventRequeue, Src: []string{string(types.StatusSyncing)}, Dst: string(types.StatusPending)},
}

// nextStatus applies event to from, or returns ErrInvalidTransition.
func nextStatus(from types.QueueStatus, event string) (types.QueueStatus, error) {
	machine := fsm.NewFSM(string(from), formEvents, fsm.Callbacks{})
	if err := machine.Event(context.Background(), event); err != nil {
		return "", fmt.Errorf("%w: %s from %s: %v", types.ErrInvalidTransition, event, from, err)
	}
	return types.QueueStatus(machine.Current()), nil
}

// Option configures a queue.
type Option func(*options)

type options struct {
	logger *zap.SugaredLogger
	now    func() time.Time
	newKey func() (string, error)
}

// WithLogger sets the queue logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(o *options) { o.logger = l }
}

// WithClock overrides the time source for created/updated stamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now, newKey: newIdempotencyKey}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = logging.OrNop(o.logger)
	return o
}

func newIdempotencyKey() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate idempotency key: %w", err)
	}
	return id.String(), nil
}

func millisToTime(ms int64) time.Time {
	return time.UnixMilli(ms)
}

func nullMillisToTime(row types.Row, col string) (*time.Time, error) {
	ms, err := row.NullInt64(col)
	if err != nil || ms == nil {
		return nil, err
	}
	t := time.UnixMilli(*ms)
	return &t, nil
}

func lastInsertID(tx types.Tx) (int64, error) {
	rows, err := tx.QueryAll(`SELECT last_insert_rowid() AS id`)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, fmt.Errorf("no row id after insert")
	}
	return rows[0].Int64("id"), nil
}

func changes(tx types.Tx) (int64, error) {
	rows, err := tx.QueryAll(`SELECT changes() AS n`)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].Int64("n"), nil
}
