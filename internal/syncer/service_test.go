package syncer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/oilsync/internal/remote"
	"github.com/mesh-intelligence/oilsync/pkg/types"
)

var owner42 = types.Identity{OwnerID: 42, Token: "tok"}

func draftBill() types.SupplierDueItem {
	return types.SupplierDueItem{
		SupplierName:       "Hass Petroleum",
		OilType:            "diesel",
		Liters:             f64(1000),
		TruckPlate:         "SL-1234",
		OilTotalLandedCost: 900,
		Date:               "2026-10-01",
	}
}

func costlyForm() types.FormSubmission {
	sub := singleForm(`{"oil_type":"diesel","liters":1000}`)
	sub.TruckRent = 20
	sub.DepotCost = 10
	return sub
}

func TestService_OfflineFormLinksAfterSync(t *testing.T) {
	fx := newFixture(t)
	fx.conn.set(false)

	res, err := fx.svc.SubmitOilForm(context.Background(), owner42, costlyForm(), draftBill())
	require.NoError(t, err)
	require.True(t, res.Queued)
	require.NotNil(t, res.Form)
	formID := res.Form.ID

	bills, err := fx.svc.VendorBills(context.Background(), ReadOptions{Token: "tok", OwnerID: 42})
	require.NoError(t, err)
	require.Len(t, bills, 1)
	assert.True(t, bills[0].IsPendingLocal())
	assert.Equal(t, formID, *bills[0].LocalOilFormID)
	assert.Equal(t, 30.0, bills[0].TotalExtraCost)
	assert.Equal(t, 930.0, bills[0].OverAllCost)
	assert.Equal(t, 930.0, bills[0].AmountDue)
	assert.Len(t, bills[0].ExtraCosts, 2)

	fx.conn.set(true)
	fx.api.createOil = reply(map[string]any{"id": 77})
	rep, err := fx.svc.SyncAll(context.Background(), owner42)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Forms.Synced)

	form, err := fx.forms.Get(42, formID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusSynced, form.Status)
	assert.Equal(t, int64(77), form.RemoteIDs.LotID)

	bills, err = fx.caches.VendorBills.GetAll(42)
	require.NoError(t, err)
	require.Len(t, bills, 1)
	assert.Equal(t, int64(77), *bills[0].LotID)
	assert.Equal(t, int64(77), *bills[0].OilID)
	assert.Equal(t, formID, *bills[0].LocalOilFormID)
	assert.False(t, bills[0].IsPendingLocal())

	require.Len(t, fx.api.extraCosts, 2)
	assert.Equal(t, int64(77), fx.api.extraCosts[0].LotID)
}

func TestService_OfflinePaymentOnLocalBill(t *testing.T) {
	fx := newFixture(t)
	fx.conn.set(false)

	res, err := fx.svc.SubmitOilForm(context.Background(), owner42, costlyForm(), draftBill())
	require.NoError(t, err)
	formID := res.Form.ID

	pay, err := fx.svc.RecordVendorPayment(context.Background(), owner42, types.VendorPaymentInput{
		Amount:         400,
		LocalOilFormID: &formID,
		PaymentMethod:  "cash",
		PaymentDate:    "2026-10-02",
	})
	require.NoError(t, err)
	require.NotNil(t, pay.Queued)
	assert.True(t, pay.Queued.IsUnresolved())

	bills, err := fx.caches.VendorBills.GetAll(42)
	require.NoError(t, err)
	assert.Equal(t, 400.0, bills[0].TotalPaid)
	assert.Equal(t, 530.0, bills[0].AmountDue)

	screen, err := fx.caches.VendorPayments.GetAll(42)
	require.NoError(t, err)
	require.Len(t, screen, 1)
	assert.Equal(t, pay.Queued.ID, *screen[0].LocalQueueID)
	require.NotNil(t, screen[0].SupplierDue)
	assert.Equal(t, "Hass Petroleum", screen[0].SupplierDue.SupplierName)

	fx.conn.set(true)
	fx.api.createOil = reply(map[string]any{"id": 77})
	rep, err := fx.svc.SyncAll(context.Background(), owner42)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Forms.Synced)
	assert.Equal(t, 1, rep.Payments.Synced)

	require.Len(t, fx.api.payments, 1)
	assert.Equal(t, int64(77), *fx.api.payments[0].LotID)
	assert.Equal(t, int64(77), *fx.api.payments[0].OilID)

	n, err := fx.payments.DirtyCount(42)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestService_OnlineSubmitPostsDirectly(t *testing.T) {
	fx := newFixture(t)
	fx.api.createOil = reply(map[string]any{"id": 5, "lot_id": 3})
	fx.api.supplierDues = func() ([]types.SupplierDueItem, error) {
		return []types.SupplierDueItem{{SupplierName: "Hass Petroleum", LotID: i64(3), OilID: i64(5), AmountDue: 930}}, nil
	}

	res, err := fx.svc.SubmitOilForm(context.Background(), owner42, costlyForm(), draftBill())
	require.NoError(t, err)
	assert.False(t, res.Queued)
	require.NotNil(t, res.RemoteIDs)
	assert.Equal(t, int64(3), res.RemoteIDs.LotID)
	assert.Equal(t, []int64{5}, res.RemoteIDs.OilIDs)

	require.Len(t, fx.api.creates, 1)
	assert.NotEmpty(t, fx.api.creates[0].Key)
	require.Len(t, fx.api.extraCosts, 2)
	assert.Equal(t, int64(5), *fx.api.extraCosts[0].OilID)

	forms, err := fx.forms.List(42)
	require.NoError(t, err)
	assert.Empty(t, forms)

	bills, err := fx.caches.VendorBills.GetAll(42)
	require.NoError(t, err)
	require.Len(t, bills, 1)
	assert.Equal(t, int64(5), *bills[0].OilID)

	meta, ok, err := fx.svc.VendorBillsMeta(42)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, meta.Count)
	assert.Equal(t, 930.0, meta.TotalDue)
}

func TestService_UnreachableServerQueuesForm(t *testing.T) {
	fx := newFixture(t)
	fx.api.createOil = func(createCall) ([]byte, error) { return nil, errUnreachable }

	res, err := fx.svc.SubmitOilForm(context.Background(), owner42, costlyForm(), draftBill())
	require.NoError(t, err)
	assert.True(t, res.Queued)

	pending, err := fx.forms.ListPending(42)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestService_RejectedFormIsReturned(t *testing.T) {
	fx := newFixture(t)
	fx.api.createOil = func(createCall) ([]byte, error) {
		return nil, &remote.APIError{StatusCode: 400, Message: "liters must be positive"}
	}

	_, err := fx.svc.SubmitOilForm(context.Background(), owner42, costlyForm(), draftBill())
	var apiErr *remote.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 400, apiErr.StatusCode)

	forms, err := fx.forms.List(42)
	require.NoError(t, err)
	assert.Empty(t, forms)
}

func TestService_SubmitValidates(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.svc.SubmitOilForm(context.Background(), types.Identity{Token: "tok"}, costlyForm(), draftBill())
	assert.ErrorIs(t, err, types.ErrOwnerRequired)

	_, err = fx.svc.SubmitOilForm(context.Background(), owner42, types.FormSubmission{Mode: "lot", Payload: []byte(`{}`)}, draftBill())
	assert.ErrorIs(t, err, types.ErrInvalidMode)

	_, err = fx.svc.RecordVendorPayment(context.Background(), owner42, types.VendorPaymentInput{Amount: 0})
	assert.ErrorIs(t, err, types.ErrInvalidAmount)
}

func TestService_OnlinePaymentPostsDirectly(t *testing.T) {
	fx := newFixture(t)
	fx.api.supplierDues = func() ([]types.SupplierDueItem, error) { return nil, nil }
	fx.api.vendorPayments = func() ([]types.VendorPaymentRead, error) {
		return []types.VendorPaymentRead{{ID: 901, Amount: 50, OilID: i64(7)}}, nil
	}

	res, err := fx.svc.RecordVendorPayment(context.Background(), owner42, types.VendorPaymentInput{Amount: 50, OilID: i64(7), PaymentMethod: "cash"})
	require.NoError(t, err)
	require.NotNil(t, res.Payment)
	assert.Nil(t, res.Queued)
	assert.Equal(t, int64(901), res.Payment.ID)
	assert.Equal(t, 1, fx.api.readCount("supplier_dues"))
	assert.Equal(t, 1, fx.api.readCount("vendor_payments"))

	n, err := fx.payments.DirtyCount(42)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestService_PaymentOnSyncedLocalFormUsesServerIDs(t *testing.T) {
	fx := newFixture(t)
	f, err := fx.forms.Enqueue(42, singleForm(`{}`))
	require.NoError(t, err)
	require.NoError(t, fx.forms.MarkSyncing(42, f.ID))
	require.NoError(t, fx.forms.MarkSynced(42, f.ID, types.RemoteIDs{LotID: 5, OilIDs: []int64{10}}))

	res, err := fx.svc.RecordVendorPayment(context.Background(), owner42, types.VendorPaymentInput{Amount: 50, LocalOilFormID: &f.ID, PaymentMethod: "cash"})
	require.NoError(t, err)
	require.NotNil(t, res.Payment)
	require.Len(t, fx.api.payments, 1)
	assert.Equal(t, int64(5), *fx.api.payments[0].LotID)
	assert.Equal(t, int64(10), *fx.api.payments[0].OilID)
}

func TestService_OfflinePaymentAppliesToBill(t *testing.T) {
	fx := newFixture(t)
	require.NoError(t, fx.caches.VendorBills.SaveAll(42, []types.SupplierDueItem{{
		SupplierName:       "Bile Oil",
		OilID:              i64(7),
		OilTotalLandedCost: 100,
		OverAllCost:        100,
		AmountDue:          100,
		ExtraCosts:         []types.ExtraCostSummary{{ID: i64(3), Category: types.ExtraCostTax, Amount: 20, AmountDue: 20}},
	}}))
	fx.conn.set(false)

	res, err := fx.svc.RecordVendorPayment(context.Background(), owner42, types.VendorPaymentInput{
		Amount: 15, OilID: i64(7), ExtraCostID: i64(3), PaymentMethod: "cash",
	})
	require.NoError(t, err)
	require.NotNil(t, res.Queued)

	bills, err := fx.caches.VendorBills.GetAll(42)
	require.NoError(t, err)
	assert.Equal(t, 15.0, bills[0].TotalPaid)
	assert.Equal(t, 85.0, bills[0].AmountDue)
	assert.Equal(t, 15.0, bills[0].ExtraCosts[0].TotalPaid)
	assert.Equal(t, 5.0, bills[0].ExtraCosts[0].AmountDue)

	screen, err := fx.svc.VendorPayments(context.Background(), ReadOptions{OwnerID: 42})
	require.NoError(t, err)
	require.Len(t, screen, 1)
	require.NotNil(t, screen[0].ExtraCost)
	assert.Equal(t, int64(3), *screen[0].ExtraCost.ID)
	assert.Equal(t, 15.0, screen[0].Payment.Amount)
}

func TestService_PaymentsRefreshKeepsQueuedRows(t *testing.T) {
	fx := newFixture(t)
	q, err := fx.payments.Enqueue(42, types.VendorPaymentInput{Amount: 10, LotID: i64(5), PaymentMethod: "cash"})
	require.NoError(t, err)
	fx.api.vendorPayments = func() ([]types.VendorPaymentRead, error) {
		return []types.VendorPaymentRead{{ID: 1, Amount: 99}}, nil
	}

	rows, err := fx.svc.VendorPayments(context.Background(), ReadOptions{Token: "tok", OwnerID: 42, Force: true})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(1), rows[0].Payment.ID)
	assert.Nil(t, rows[0].LocalQueueID)
	assert.Equal(t, q.ID, *rows[1].LocalQueueID)
}

func TestService_BillsRefreshKeepsPendingLocalBills(t *testing.T) {
	fx := newFixture(t)
	fx.conn.set(false)
	_, err := fx.svc.SubmitOilForm(context.Background(), owner42, costlyForm(), draftBill())
	require.NoError(t, err)

	fx.conn.set(true)
	fx.api.supplierDues = func() ([]types.SupplierDueItem, error) {
		return []types.SupplierDueItem{{SupplierName: "Other", LotID: i64(1)}}, nil
	}
	bills, err := fx.svc.VendorBills(context.Background(), ReadOptions{Token: "tok", OwnerID: 42, Force: true})
	require.NoError(t, err)
	require.Len(t, bills, 2)
	assert.Equal(t, "Other", bills[0].SupplierName)
	assert.True(t, bills[1].IsPendingLocal())

	meta, ok, err := fx.svc.VendorBillsMeta(42)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, meta.PendingLocal)
}

func TestService_BillsRefreshDropsLocalBillOfSyncedForm(t *testing.T) {
	fx := newFixture(t)

	// The form drains before its local bill is appended, so the linker
	// never sees the bill.
	f, err := fx.forms.Enqueue(42, costlyForm())
	require.NoError(t, err)
	require.NoError(t, fx.forms.MarkSyncing(42, f.ID))
	require.NoError(t, fx.forms.MarkSynced(42, f.ID, types.RemoteIDs{LotID: 77, OilIDs: []int64{77}}))
	require.NoError(t, fx.caches.VendorBills.AppendOne(42, localBill(draftBill(), costlyForm(), f.ID)))

	// A local bill whose form was purged is gone from the queue too.
	purged := localBill(draftBill(), costlyForm(), 999)
	require.NoError(t, fx.caches.VendorBills.AppendOne(42, purged))

	fx.api.supplierDues = func() ([]types.SupplierDueItem, error) {
		return []types.SupplierDueItem{{SupplierName: "Hass Petroleum", LotID: i64(77), OilID: i64(77), AmountDue: 930}}, nil
	}
	for range 3 {
		bills, err := fx.svc.VendorBills(context.Background(), ReadOptions{Token: "tok", OwnerID: 42, Force: true})
		require.NoError(t, err)
		require.Len(t, bills, 1)
		assert.Equal(t, int64(77), *bills[0].LotID)
		assert.False(t, bills[0].IsPendingLocal())
	}

	meta, ok, err := fx.svc.VendorBillsMeta(42)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, meta.Count)
	assert.Equal(t, 930.0, meta.TotalDue)
	assert.Equal(t, 0, meta.PendingLocal)
}

func TestService_StatusAndLogout(t *testing.T) {
	fx := newFixture(t)
	fx.conn.set(false)
	_, err := fx.svc.SubmitOilForm(context.Background(), owner42, costlyForm(), draftBill())
	require.NoError(t, err)
	_, err = fx.svc.RecordVendorPayment(context.Background(), owner42, types.VendorPaymentInput{Amount: 5, LotID: i64(1), PaymentMethod: "cash"})
	require.NoError(t, err)

	st, err := fx.svc.Status(42)
	require.NoError(t, err)
	assert.False(t, st.Online)
	assert.Equal(t, 1, st.Forms[types.StatusPending])
	assert.Equal(t, 1, st.DirtyPayments)
	assert.NotNil(t, st.BillsLastSyncAt)

	require.NoError(t, fx.svc.Logout(42))

	bills, err := fx.caches.VendorBills.GetAll(42)
	require.NoError(t, err)
	assert.Empty(t, bills)
	screen, err := fx.caches.VendorPayments.GetAll(42)
	require.NoError(t, err)
	assert.Empty(t, screen)

	st, err = fx.svc.Status(42)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Forms[types.StatusPending])
	assert.Equal(t, 1, st.DirtyPayments)
	assert.Nil(t, st.BillsLastSyncAt)

	assert.ErrorIs(t, fx.svc.Logout(0), types.ErrOwnerRequired)
}

func TestService_PurgeSynced(t *testing.T) {
	fx := newFixture(t)
	f, err := fx.forms.Enqueue(42, singleForm(`{}`))
	require.NoError(t, err)
	require.NoError(t, fx.forms.MarkSyncing(42, f.ID))
	require.NoError(t, fx.forms.MarkSynced(42, f.ID, types.RemoteIDs{LotID: 1, OilIDs: []int64{1}}))
	_, err = fx.forms.Enqueue(42, singleForm(`{}`))
	require.NoError(t, err)

	n, err := fx.svc.PurgeSynced(42, 24*time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n)

	later := NewService(Deps{
		Caches:   fx.caches,
		Forms:    fx.forms,
		Payments: fx.payments,
		API:      fx.api,
		Conn:     fx.conn,
	}, WithClock(func() time.Time { return time.Now().Add(48 * time.Hour) }))
	n, err = later.PurgeSynced(42, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	forms, err := fx.forms.List(42)
	require.NoError(t, err)
	require.Len(t, forms, 1)
	assert.Equal(t, types.StatusPending, forms[0].Status)
}
