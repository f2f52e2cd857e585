package syncer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/oilsync/internal/remote"
	"github.com/mesh-intelligence/oilsync/pkg/types"
)

func TestPaymentSyncer_DefersUntilFormSyncs(t *testing.T) {
	fx := newFixture(t)
	f, err := fx.forms.Enqueue(42, singleForm(`{}`))
	require.NoError(t, err)
	p, err := fx.payments.Enqueue(42, types.VendorPaymentInput{Amount: 40, LocalOilFormID: i64(f.ID), PaymentMethod: "cash"})
	require.NoError(t, err)

	res, err := fx.svc.PaymentSyncer().SyncPending(context.Background(), 42, "tok")
	require.NoError(t, err)
	assert.Equal(t, DrainResult{Deferred: 1}, res)
	assert.Empty(t, fx.api.payments)

	got, err := fx.payments.Get(42, p.ID)
	require.NoError(t, err)
	assert.True(t, got.Dirty)

	require.NoError(t, fx.forms.MarkSyncing(42, f.ID))
	require.NoError(t, fx.forms.MarkSynced(42, f.ID, types.RemoteIDs{LotID: 5, OilIDs: []int64{10}}))

	res, err = fx.svc.PaymentSyncer().SyncPending(context.Background(), 42, "tok")
	require.NoError(t, err)
	assert.Equal(t, DrainResult{Synced: 1}, res)

	require.Len(t, fx.api.payments, 1)
	assert.Equal(t, int64(5), *fx.api.payments[0].LotID)
	assert.Equal(t, int64(10), *fx.api.payments[0].OilID)
	assert.Equal(t, p.IdempotencyKey, fx.api.paymentKeys[0])

	got, err = fx.payments.Get(42, p.ID)
	require.NoError(t, err)
	assert.False(t, got.Dirty)
	require.NotNil(t, got.RemoteID)
	assert.Equal(t, int64(901), *got.RemoteID)
}

func TestPaymentSyncer_MissingFormIsDeferred(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.payments.Enqueue(42, types.VendorPaymentInput{Amount: 40, LocalOilFormID: i64(999), PaymentMethod: "cash"})
	require.NoError(t, err)

	res, err := fx.svc.PaymentSyncer().SyncPending(context.Background(), 42, "tok")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Deferred)
	assert.Empty(t, fx.api.payments)
}

func TestPaymentSyncer_FailureStaysDirty(t *testing.T) {
	fx := newFixture(t)
	p, err := fx.payments.Enqueue(42, types.VendorPaymentInput{Amount: 40, OilID: i64(7), PaymentMethod: "cash"})
	require.NoError(t, err)
	fx.api.createPayment = func(types.VendorPaymentRequest) (types.VendorPaymentRead, error) {
		return types.VendorPaymentRead{}, &remote.APIError{StatusCode: 422, Message: "amount exceeds due"}
	}

	res, err := fx.svc.PaymentSyncer().SyncPending(context.Background(), 42, "tok")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)

	got, err := fx.payments.Get(42, p.ID)
	require.NoError(t, err)
	assert.True(t, got.Dirty)
	assert.Contains(t, got.Error, "amount exceeds due")
	assert.NotNil(t, got.LastAttemptAt)
}

func TestPaymentSyncer_ConnectivityLossEndsPass(t *testing.T) {
	fx := newFixture(t)
	for i := 0; i < 2; i++ {
		_, err := fx.payments.Enqueue(42, types.VendorPaymentInput{Amount: 10, LotID: i64(5), PaymentMethod: "cash"})
		require.NoError(t, err)
	}
	fx.api.createPayment = func(types.VendorPaymentRequest) (types.VendorPaymentRead, error) {
		return types.VendorPaymentRead{}, errUnreachable
	}

	res, err := fx.svc.PaymentSyncer().SyncPending(context.Background(), 42, "tok")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Len(t, fx.api.payments, 1)

	n, err := fx.payments.DirtyCount(42)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestPaymentSyncer_OfflineIsNoOp(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.payments.Enqueue(42, types.VendorPaymentInput{Amount: 10, LotID: i64(5), PaymentMethod: "cash"})
	require.NoError(t, err)
	fx.conn.set(false)

	res, err := fx.svc.PaymentSyncer().SyncPending(context.Background(), 42, "tok")
	require.NoError(t, err)
	assert.Equal(t, DrainResult{}, res)
	assert.Empty(t, fx.api.payments)
}
