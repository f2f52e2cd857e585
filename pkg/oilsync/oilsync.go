// Package oilsync opens the offline cache and sync core as one unit: the
// local store, the entity caches, the pending-write queues, the API client
// and the sync service over them.
//
// Example:
//
//	eng, err := oilsync.Open(oilsync.Options{
//	    Store:  types.Config{DataDir: "/var/lib/oilsync"},
//	    APIURL: "https://api.example.com",
//	})
//	if err != nil {
//	    return err
//	}
//	defer eng.Close()
//	rep, err := eng.SyncAll(ctx, types.Identity{OwnerID: 42, Token: token})
package oilsync

import (
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/oilsync/internal/cache"
	"github.com/mesh-intelligence/oilsync/internal/logging"
	"github.com/mesh-intelligence/oilsync/internal/netstate"
	"github.com/mesh-intelligence/oilsync/internal/queue"
	"github.com/mesh-intelligence/oilsync/internal/remote"
	"github.com/mesh-intelligence/oilsync/internal/sqlite"
	"github.com/mesh-intelligence/oilsync/internal/syncer"
	"github.com/mesh-intelligence/oilsync/pkg/types"
)

// Version is the oilsync release.
const Version = "0.1.0"

// Connectivity reports whether the API is believed reachable.
type Connectivity interface {
	Online() bool
}

// Options configures Open.
type Options struct {
	Store   types.Config
	APIURL  string
	Timeout time.Duration

	// HTTPClient replaces the API client's default HTTP client.
	HTTPClient *http.Client

	// Conn overrides the engine's own observer as the online signal.
	Conn Connectivity

	Logger *zap.SugaredLogger
	Clock  func() time.Time
}

// Engine is an opened oilsync core. The embedded Service carries the user
// operations.
type Engine struct {
	*syncer.Service

	store    *sqlite.Backend
	caches   *cache.Set
	forms    *queue.FormQueue
	payments *queue.PaymentQueue
	client   *remote.Client
	observer *netstate.Observer
	conn     Connectivity
	logger   *zap.SugaredLogger
}

// Open attaches the store and wires the engines.
func Open(o Options) (*Engine, error) {
	logger := logging.OrNop(o.Logger)

	store := sqlite.NewBackend(sqlite.WithLogger(logger.Named(logging.ComponentStore)))
	if err := store.Attach(o.Store); err != nil {
		return nil, fmt.Errorf("attach store: %w", err)
	}

	var (
		cacheOpts  = []cache.Option{cache.WithLogger(logger.Named(logging.ComponentCache))}
		queueOpts  = []queue.Option{queue.WithLogger(logger.Named(logging.ComponentQueue))}
		syncerOpts = []syncer.Option{syncer.WithLogger(logger)}
	)
	if o.Clock != nil {
		cacheOpts = append(cacheOpts, cache.WithClock(o.Clock))
		queueOpts = append(queueOpts, queue.WithClock(o.Clock))
		syncerOpts = append(syncerOpts, syncer.WithClock(o.Clock))
	}

	client := remote.New(o.APIURL, o.Timeout)
	if o.HTTPClient != nil {
		client.HTTP = o.HTTPClient
	}
	client.Logger = logger.Named(logging.ComponentRemote)

	e := &Engine{
		store:    store,
		caches:   cache.NewSet(store, cacheOpts...),
		forms:    queue.NewFormQueue(store, queueOpts...),
		payments: queue.NewPaymentQueue(store, queueOpts...),
		client:   client,
		observer: netstate.NewObserver(logger.Named(logging.ComponentNetState)),
		conn:     o.Conn,
		logger:   logger,
	}
	if e.conn == nil {
		e.conn = e.observer
	}
	e.Service = syncer.NewService(syncer.Deps{
		Caches:   e.caches,
		Forms:    e.forms,
		Payments: e.payments,
		API:      e.client,
		Conn:     e.conn,
	}, syncerOpts...)
	return e, nil
}

// Observer returns the engine's connectivity observer. Feed it events, or
// run it over a netstate source, to drive the online signal.
func (e *Engine) Observer() *netstate.Observer { return e.observer }

// Online reports the current connectivity.
func (e *Engine) Online() bool { return e.conn.Online() }

// Forms returns the form queue.
func (e *Engine) Forms() *queue.FormQueue { return e.forms }

// Payments returns the vendor-payment queue.
func (e *Engine) Payments() *queue.PaymentQueue { return e.payments }

// Caches returns the entity caches.
func (e *Engine) Caches() *cache.Set { return e.caches }

// Path returns the database file, empty when in memory.
func (e *Engine) Path() string { return e.store.Path() }

// Close detaches the store. It is safe to call more than once.
func (e *Engine) Close() error {
	if err := e.store.Detach(); err != nil {
		return err
	}
	e.logger.Debugw("engine closed", "path", e.store.Path())
	return nil
}
