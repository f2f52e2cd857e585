package syncer

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/goccy/go-json"

	"github.com/mesh-intelligence/oilsync/internal/cache"
	"github.com/mesh-intelligence/oilsync/internal/netstate"
	"github.com/mesh-intelligence/oilsync/internal/queue"
	"github.com/mesh-intelligence/oilsync/internal/remote"
	"github.com/mesh-intelligence/oilsync/internal/sqlite"
	"github.com/mesh-intelligence/oilsync/pkg/types"
)

var errUnreachable = &remote.ConnectivityError{Op: "POST /oils", Err: errors.New("no route to host")}

type createCall struct {
	Mode    types.FormMode
	Payload string
	Key     string
}

// fakeAPI records calls and answers from the configured funcs.
type fakeAPI struct {
	mu sync.Mutex

	createOil      func(call createCall) ([]byte, error)
	createPayment  func(req types.VendorPaymentRequest) (types.VendorPaymentRead, error)
	createExtra    func(req types.ExtraCostRequest) error
	supplierDues   func() ([]types.SupplierDueItem, error)
	vendorPayments func() ([]types.VendorPaymentRead, error)

	creates      []createCall
	extraCosts   []types.ExtraCostRequest
	payments     []types.VendorPaymentRequest
	paymentKeys  []string
	reads        map[string]int
	nextRemoteID int64
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{reads: make(map[string]int), nextRemoteID: 900}
}

func (f *fakeAPI) CreateOil(_ context.Context, _ string, mode types.FormMode, payload json.RawMessage, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	call := createCall{Mode: mode, Payload: string(payload), Key: key}
	f.creates = append(f.creates, call)
	if f.createOil == nil {
		return nil, errors.New("createOil not configured")
	}
	return f.createOil(call)
}

func (f *fakeAPI) CreateExtraCost(_ context.Context, _ string, req types.ExtraCostRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.extraCosts = append(f.extraCosts, req)
	if f.createExtra != nil {
		return f.createExtra(req)
	}
	return nil
}

func (f *fakeAPI) CreateVendorPayment(_ context.Context, _ string, req types.VendorPaymentRequest, key string) (types.VendorPaymentRead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payments = append(f.payments, req)
	f.paymentKeys = append(f.paymentKeys, key)
	if f.createPayment != nil {
		return f.createPayment(req)
	}
	f.nextRemoteID++
	return types.VendorPaymentRead{ID: f.nextRemoteID, Amount: req.Amount, OilID: req.OilID, LotID: req.LotID}, nil
}

func (f *fakeAPI) SupplierDues(context.Context, string, int64) ([]types.SupplierDueItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads["supplier_dues"]++
	if f.supplierDues == nil {
		return nil, errUnreachable
	}
	return f.supplierDues()
}

func (f *fakeAPI) VendorPayments(context.Context, string, int64) ([]types.VendorPaymentRead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads["vendor_payments"]++
	if f.vendorPayments == nil {
		return nil, errUnreachable
	}
	return f.vendorPayments()
}

func (f *fakeAPI) OilSummary(context.Context, string, int64) (types.OilSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads["oil_summary"]++
	return types.OilSummary{TotalLots: 1}, nil
}

func (f *fakeAPI) WakaaladStats(context.Context, string, int64) (types.WakaaladStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads["wakaalad_stats"]++
	return types.WakaaladStats{TotalWakaalads: 2}, nil
}

func (f *fakeAPI) WakaaladMovements(context.Context, string, int64) ([]types.WakaaladMovement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads["wakaalad_movements"]++
	return []types.WakaaladMovement{{ID: 1, MovementType: types.MovementSale, Liters: 10}}, nil
}

func (f *fakeAPI) readCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads[name]
}

func reply(v any) func(createCall) ([]byte, error) {
	return func(createCall) ([]byte, error) { return json.Marshal(v) }
}

// switchConn is a Connectivity whose value tests can flip.
type switchConn struct {
	mu     sync.Mutex
	online bool
}

func (c *switchConn) Online() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.online
}

func (c *switchConn) set(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.online = v
}

var _ netstate.Connectivity = (*switchConn)(nil)

type fixture struct {
	store    types.Store
	caches   *cache.Set
	forms    *queue.FormQueue
	payments *queue.PaymentQueue
	api      *fakeAPI
	conn     *switchConn
	svc      *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := sqlite.NewTestBackend(t)
	fx := &fixture{
		store:    store,
		caches:   cache.NewSet(store),
		forms:    queue.NewFormQueue(store),
		payments: queue.NewPaymentQueue(store),
		api:      newFakeAPI(),
		conn:     &switchConn{online: true},
	}
	fx.svc = NewService(Deps{
		Caches:   fx.caches,
		Forms:    fx.forms,
		Payments: fx.payments,
		API:      fx.api,
		Conn:     fx.conn,
	})
	return fx
}

func i64(v int64) *int64 { return &v }

func f64(v float64) *float64 { return &v }
