// Package syncer reconciles the local caches and queues with the API.
//
// Reads go through ReadThrough, which serves the cache and refreshes it
// when stale. Writes made offline are drained by FormSyncer and
// PaymentSyncer, and Linker rewrites local references to server ids once
// a form has synced. Coordinator runs one full pass and Runner repeats it.
package syncer

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/oilsync/internal/logging"
	"github.com/mesh-intelligence/oilsync/internal/remote"
	"github.com/mesh-intelligence/oilsync/pkg/types"
)

// FormAPI creates oils and their extra costs.
type FormAPI interface {
	CreateOil(ctx context.Context, token string, mode types.FormMode, payload json.RawMessage, key string) ([]byte, error)
	CreateExtraCost(ctx context.Context, token string, req types.ExtraCostRequest) error
}

// PaymentAPI creates vendor payments.
type PaymentAPI interface {
	CreateVendorPayment(ctx context.Context, token string, req types.VendorPaymentRequest, key string) (types.VendorPaymentRead, error)
}

// ReadAPI serves the lists and snapshots kept in the caches.
type ReadAPI interface {
	SupplierDues(ctx context.Context, token string, ownerID int64) ([]types.SupplierDueItem, error)
	VendorPayments(ctx context.Context, token string, ownerID int64) ([]types.VendorPaymentRead, error)
	OilSummary(ctx context.Context, token string, ownerID int64) (types.OilSummary, error)
	WakaaladStats(ctx context.Context, token string, ownerID int64) (types.WakaaladStats, error)
	WakaaladMovements(ctx context.Context, token string, ownerID int64) ([]types.WakaaladMovement, error)
}

// API is everything the engines need from the server.
type API interface {
	FormAPI
	PaymentAPI
	ReadAPI
}

var _ API = (*remote.Client)(nil)

// Option configures an engine.
type Option func(*options)

type options struct {
	logger *zap.SugaredLogger
	now    func() time.Time
}

// WithLogger sets the engine logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(o *options) { o.logger = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(component string, opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = logging.OrNop(o.logger).Named(component)
	return o
}

// DrainResult counts what one queue drain did.
type DrainResult struct {
	Synced   int  `json:"synced"`
	Failed   int  `json:"failed"`
	Deferred int  `json:"deferred"`
	Skipped  bool `json:"skipped,omitempty"`
}

// errorMessage is the text stored on a failed queue row.
func errorMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
