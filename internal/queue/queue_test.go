package queue

import (
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/oilsync/internal/sqlite"
	"github.com/mesh-intelligence/oilsync/pkg/types"
)

// seqClock returns the given times in order, then repeats the last one.
func seqClock(times ...time.Time) func() time.Time {
	i := 0
	return func() time.Time {
		t := times[i]
		if i < len(times)-1 {
			i++
		}
		return t
	}
}

func submission(payload string) types.FormSubmission {
	return types.FormSubmission{
		Mode:      types.FormModeSingle,
		Payload:   json.RawMessage(payload),
		TruckRent: 20,
		DepotCost: 10,
		Currency:  "USD",
	}
}

func i64(v int64) *int64 { return &v }

func TestNextStatus(t *testing.T) {
	cases := []struct {
		from  types.QueueStatus
		event string
		want  types.QueueStatus
		ok    bool
	}{
		{types.StatusPending, EventStart, types.StatusSyncing, true},
		{types.StatusFailed, EventStart, types.StatusSyncing, true},
		{types.StatusSyncing, EventSucceed, types.StatusSynced, true},
		{types.StatusSyncing, EventFail, types.StatusFailed, true},
		{types.StatusSyncing, EventRequeue, types.StatusPending, true},
		{types.StatusSynced, EventStart, "", false},
		{types.StatusPending, EventSucceed, "", false},
		{types.StatusFailed, EventRequeue, "", false},
	}
	for _, tc := range cases {
		got, err := nextStatus(tc.from, tc.event)
		if !tc.ok {
			assert.ErrorIs(t, err, types.ErrInvalidTransition, "%s/%s", tc.from, tc.event)
			continue
		}
		require.NoError(t, err, "%s/%s", tc.from, tc.event)
		assert.Equal(t, tc.want, got)
	}
}

func TestFormQueue_EnqueueValidates(t *testing.T) {
	q := NewFormQueue(sqlite.NewTestBackend(t))

	_, err := q.Enqueue(0, submission(`{"a":1}`))
	assert.ErrorIs(t, err, types.ErrOwnerRequired)

	bad := submission(`{"a":1}`)
	bad.Mode = "triple"
	_, err = q.Enqueue(42, bad)
	assert.ErrorIs(t, err, types.ErrInvalidMode)

	_, err = q.Enqueue(42, submission(`[1,2]`))
	assert.ErrorIs(t, err, types.ErrInvalidPayload)
}

func TestFormQueue_EnqueueStoresPayloadVerbatim(t *testing.T) {
	q := NewFormQueue(sqlite.NewTestBackend(t))

	payload := `{"supplier_name":"Hass",  "liters": 1000.50, "oil_type":"diesel"}`
	f, err := q.Enqueue(42, submission(payload))
	require.NoError(t, err)

	assert.Equal(t, payload, string(f.Payload))
	assert.Equal(t, types.StatusPending, f.Status)
	assert.Nil(t, f.RemoteIDs)
	assert.Nil(t, f.LastAttemptAt)
	assert.NotEmpty(t, f.IdempotencyKey)
	assert.Equal(t, 20.0, f.TruckRent)
	assert.Equal(t, "USD", f.Currency)

	other, err := q.Enqueue(42, submission(payload))
	require.NoError(t, err)
	assert.NotEqual(t, f.IdempotencyKey, other.IdempotencyKey)
}

func TestFormQueue_PendingIsFIFOByCreation(t *testing.T) {
	t1 := time.UnixMilli(1_000)
	t2 := time.UnixMilli(2_000)
	t3 := time.UnixMilli(3_000)
	q := NewFormQueue(sqlite.NewTestBackend(t), WithClock(seqClock(t3, t1, t2)))

	third, err := q.Enqueue(42, submission(`{"n":3}`))
	require.NoError(t, err)
	first, err := q.Enqueue(42, submission(`{"n":1}`))
	require.NoError(t, err)
	second, err := q.Enqueue(42, submission(`{"n":2}`))
	require.NoError(t, err)

	pending, err := q.ListPending(42)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, []int64{first.ID, second.ID, third.ID},
		[]int64{pending[0].ID, pending[1].ID, pending[2].ID})
}

func TestFormQueue_FailureKeepsRowRetryable(t *testing.T) {
	q := NewFormQueue(sqlite.NewTestBackend(t))
	f, err := q.Enqueue(42, submission(`{"x":1}`))
	require.NoError(t, err)

	require.NoError(t, q.MarkSyncing(42, f.ID))
	require.NoError(t, q.MarkFailed(42, f.ID, "server said 500"))

	got, err := q.Get(42, f.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, got.Status)
	assert.Equal(t, "server said 500", got.Error)
	assert.Equal(t, `{"x":1}`, string(got.Payload))
	assert.NotNil(t, got.LastAttemptAt)
	assert.Nil(t, got.RemoteIDs)

	pending, err := q.ListPending(42)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, f.ID, pending[0].ID)
}

func TestFormQueue_SyncedRecordsRemoteIDs(t *testing.T) {
	q := NewFormQueue(sqlite.NewTestBackend(t))
	f, err := q.Enqueue(42, submission(`{}`))
	require.NoError(t, err)

	require.NoError(t, q.MarkSyncing(42, f.ID))
	require.NoError(t, q.MarkFailed(42, f.ID, "timeout"))
	require.NoError(t, q.MarkSyncing(42, f.ID))
	remote := types.RemoteIDs{LotID: 5, OilIDs: []int64{10, 11}, OilTypes: []string{"diesel", "petrol"}}
	require.NoError(t, q.MarkSynced(42, f.ID, remote))

	got, err := q.Get(42, f.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusSynced, got.Status)
	assert.Empty(t, got.Error)
	require.NotNil(t, got.RemoteIDs)
	assert.Equal(t, remote, *got.RemoteIDs)

	pending, err := q.ListPending(42)
	require.NoError(t, err)
	assert.Empty(t, pending)

	assert.ErrorIs(t, q.MarkSyncing(42, f.ID), types.ErrInvalidTransition)
}

func TestFormQueue_OrphanedRequeue(t *testing.T) {
	q := NewFormQueue(sqlite.NewTestBackend(t))
	f, err := q.Enqueue(42, submission(`{}`))
	require.NoError(t, err)
	require.NoError(t, q.MarkSyncing(42, f.ID))

	orphans, err := q.ListOrphaned(42)
	require.NoError(t, err)
	require.Len(t, orphans, 1)

	require.NoError(t, q.Requeue(42, f.ID))
	got, err := q.Get(42, f.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusPending, got.Status)
}

func TestFormQueue_OwnerScoping(t *testing.T) {
	q := NewFormQueue(sqlite.NewTestBackend(t))
	f, err := q.Enqueue(1, submission(`{}`))
	require.NoError(t, err)

	_, err = q.Get(2, f.ID)
	assert.ErrorIs(t, err, types.ErrNotFound)
	assert.ErrorIs(t, q.MarkSyncing(2, f.ID), types.ErrNotFound)

	pending, err := q.ListPending(2)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestFormQueue_PurgeAndCounts(t *testing.T) {
	old := time.UnixMilli(1_000)
	recent := time.UnixMilli(50_000)
	q := NewFormQueue(sqlite.NewTestBackend(t), WithClock(seqClock(old, old, old, old, recent)))

	a, err := q.Enqueue(42, submission(`{"a":1}`))
	require.NoError(t, err)
	require.NoError(t, q.MarkSyncing(42, a.ID))
	require.NoError(t, q.MarkSynced(42, a.ID, types.RemoteIDs{LotID: 1}))
	_, err = q.Enqueue(42, submission(`{"b":1}`))
	require.NoError(t, err)

	counts, err := q.Counts(42)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[types.StatusSynced])
	assert.Equal(t, 1, counts[types.StatusPending])

	n, err := q.PurgeSynced(42, time.UnixMilli(10_000))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	all, err := q.List(42)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, types.StatusPending, all[0].Status)
}

func TestPaymentQueue_EnqueueAndPush(t *testing.T) {
	q := NewPaymentQueue(sqlite.NewTestBackend(t))

	_, err := q.Enqueue(0, types.VendorPaymentInput{Amount: 5})
	assert.ErrorIs(t, err, types.ErrOwnerRequired)
	_, err = q.Enqueue(42, types.VendorPaymentInput{Amount: 0})
	assert.ErrorIs(t, err, types.ErrInvalidAmount)

	p, err := q.Enqueue(42, types.VendorPaymentInput{
		Amount:        50,
		AmountDue:     100,
		PaymentDate:   "2026-01-02",
		OilID:         i64(10),
		PaymentMethod: "cash",
	})
	require.NoError(t, err)
	assert.True(t, p.Dirty)
	assert.Equal(t, int64(10), *p.OilID)
	assert.Nil(t, p.LotID)
	assert.NotEmpty(t, p.IdempotencyKey)

	require.NoError(t, q.Touch(42, p.ID))
	require.NoError(t, q.MarkFailed(42, p.ID, "bad gateway"))
	dirty, err := q.ListDirty(42)
	require.NoError(t, err)
	require.Len(t, dirty, 1)
	assert.Equal(t, "bad gateway", dirty[0].Error)
	assert.NotNil(t, dirty[0].LastAttemptAt)

	require.NoError(t, q.MarkPushed(42, p.ID, 900))
	got, err := q.Get(42, p.ID)
	require.NoError(t, err)
	assert.False(t, got.Dirty)
	assert.Empty(t, got.Error)
	assert.Equal(t, int64(900), *got.RemoteID)

	n, err := q.DirtyCount(42)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPaymentQueue_DeletedRowsAreNeverDirty(t *testing.T) {
	q := NewPaymentQueue(sqlite.NewTestBackend(t))
	p, err := q.Enqueue(42, types.VendorPaymentInput{Amount: 5, LotID: i64(3)})
	require.NoError(t, err)

	require.NoError(t, q.Delete(42, p.ID))

	dirty, err := q.ListDirty(42)
	require.NoError(t, err)
	assert.Empty(t, dirty)

	got, err := q.Get(42, p.ID)
	require.NoError(t, err)
	assert.True(t, got.Deleted)
}

func TestPaymentQueue_ResolveLocalForm(t *testing.T) {
	q := NewPaymentQueue(sqlite.NewTestBackend(t))

	unresolved, err := q.Enqueue(42, types.VendorPaymentInput{Amount: 5, LocalOilFormID: i64(7)})
	require.NoError(t, err)
	assert.True(t, unresolved.IsUnresolved())

	alreadySet, err := q.Enqueue(42, types.VendorPaymentInput{Amount: 6, LocalOilFormID: i64(7), LotID: i64(99)})
	require.NoError(t, err)
	otherForm, err := q.Enqueue(42, types.VendorPaymentInput{Amount: 7, LocalOilFormID: i64(8)})
	require.NoError(t, err)

	n, err := q.ResolveLocalForm(42, 7, types.RemoteIDs{LotID: 5, OilIDs: []int64{10}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := q.Get(42, unresolved.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), *got.LotID)
	assert.Equal(t, int64(10), *got.OilID)
	assert.Equal(t, int64(7), *got.LocalOilFormID)
	assert.False(t, got.IsUnresolved())

	got, err = q.Get(42, alreadySet.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(99), *got.LotID)

	got, err = q.Get(42, otherForm.ID)
	require.NoError(t, err)
	assert.True(t, got.IsUnresolved())
}

func TestPaymentQueue_ResolveMultiProductSetsLotOnly(t *testing.T) {
	q := NewPaymentQueue(sqlite.NewTestBackend(t))
	p, err := q.Enqueue(42, types.VendorPaymentInput{Amount: 5, LocalOilFormID: i64(7)})
	require.NoError(t, err)

	_, err = q.ResolveLocalForm(42, 7, types.RemoteIDs{LotID: 5, OilIDs: []int64{10, 11}})
	require.NoError(t, err)

	got, err := q.Get(42, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), *got.LotID)
	assert.Nil(t, got.OilID)
}
