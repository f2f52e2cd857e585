package remote

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/h2non/gock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/oilsync/pkg/types"
)

const testURL = "https://api.oilsync.test"

func newTestClient(t *testing.T) *Client {
	t.Helper()
	c := New(testURL, 5*time.Second)
	gock.InterceptClient(c.HTTP)
	t.Cleanup(func() {
		gock.RestoreClient(c.HTTP)
		gock.OffAll()
	})
	return c
}

func TestCreateOil_SinglePostsPayloadVerbatim(t *testing.T) {
	c := newTestClient(t)
	payload := json.RawMessage(`{"supplier_name":"Hass",  "liters":1000.5}`)

	var seen []byte
	gock.New(testURL).
		Post(PathOils).
		MatchHeader("Authorization", "^Bearer tok$").
		MatchHeader(HeaderIdempotencyKey, "^key-1$").
		AddMatcher(func(req *http.Request, _ *gock.Request) (bool, error) {
			body, err := io.ReadAll(req.Body)
			req.Body = io.NopCloser(bytes.NewReader(body))
			seen = body
			return err == nil, err
		}).
		Reply(201).
		JSON(map[string]any{"id": 77})

	body, err := c.CreateOil(context.Background(), "tok", types.FormModeSingle, payload, "key-1")
	require.NoError(t, err)
	assert.Equal(t, string(payload), string(seen))

	res, err := types.DecodeCreateResult(types.FormModeSingle, body)
	require.NoError(t, err)
	assert.Equal(t, types.RemoteIDs{LotID: 77, OilIDs: []int64{77}}, res.RemoteIDs())
	assert.True(t, gock.IsDone())
}

func TestCreateOil_BothUsesLotEndpoint(t *testing.T) {
	c := newTestClient(t)
	gock.New(testURL).
		Post(PathOilLots).
		Reply(200).
		JSON(map[string]any{
			"lot_id": 5,
			"items": []map[string]any{
				{"id": 10, "oil_type": "diesel"},
				{"id": 11, "oil_type": "petrol"},
			},
		})

	body, err := c.CreateOil(context.Background(), "tok", types.FormModeBoth, json.RawMessage(`{}`), "k")
	require.NoError(t, err)

	res, err := types.DecodeCreateResult(types.FormModeBoth, body)
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 11}, res.RemoteIDs().OilIDs)
}

func TestCreateOil_RejectsUnknownMode(t *testing.T) {
	c := newTestClient(t)
	_, err := c.CreateOil(context.Background(), "tok", "triple", json.RawMessage(`{}`), "k")
	assert.ErrorIs(t, err, types.ErrInvalidMode)
}

func TestAPIErrorMessage(t *testing.T) {
	c := newTestClient(t)
	gock.New(testURL).Post(PathOils).Reply(422).JSON(map[string]any{"detail": "liters must be positive"})
	gock.New(testURL).Post(PathOils).Reply(500).BodyString("upstream exploded")

	_, err := c.CreateOil(context.Background(), "tok", types.FormModeSingle, json.RawMessage(`{}`), "k")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 422, apiErr.StatusCode)
	assert.Equal(t, "liters must be positive", apiErr.Message)
	assert.False(t, IsConnectivity(err))

	_, err = c.CreateOil(context.Background(), "tok", types.FormModeSingle, json.RawMessage(`{}`), "k")
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 500, apiErr.StatusCode)
	assert.Equal(t, "upstream exploded", apiErr.Message)
}

func TestTransportFailureIsConnectivity(t *testing.T) {
	c := newTestClient(t)
	gock.New(testURL).Get(PathSupplierDues).ReplyError(errors.New("dial tcp: no route to host"))

	_, err := c.SupplierDues(context.Background(), "tok", 42)
	require.Error(t, err)
	assert.True(t, IsConnectivity(err))
}

func TestGetEndpointsSendOwner(t *testing.T) {
	c := newTestClient(t)
	gock.New(testURL).Get(PathSupplierDues).MatchParam("owner_id", "^42$").
		Reply(200).JSON([]map[string]any{{"supplier_name": "Hass", "amount_due": 120.5, "lot_id": 5}})
	gock.New(testURL).Get(PathVendorPayments).MatchParam("owner_id", "^42$").
		Reply(200).JSON([]map[string]any{{"id": 1, "amount": 30, "payment_method": "cash"}})
	gock.New(testURL).Get(PathOilSummary).MatchParam("owner_id", "^42$").
		Reply(200).JSON(map[string]any{"total_lots": 3, "diesel_liters": 1500})
	gock.New(testURL).Get(PathWakaaladStats).MatchParam("owner_id", "^42$").
		Reply(200).JSON(map[string]any{"total_wakaalads": 4})
	gock.New(testURL).Get(PathWakaaladMovements).MatchParam("owner_id", "^42$").
		Reply(200).JSON([]map[string]any{{"id": 9, "wakaalad_id": 2, "movement_type": "sale", "liters": 50}})

	ctx := context.Background()
	bills, err := c.SupplierDues(ctx, "tok", 42)
	require.NoError(t, err)
	require.Len(t, bills, 1)
	assert.Equal(t, int64(5), *bills[0].LotID)
	assert.Nil(t, bills[0].OilID)

	payments, err := c.VendorPayments(ctx, "tok", 42)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Nil(t, payments[0].AmountDue)

	summary, err := c.OilSummary(ctx, "tok", 42)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.TotalLots)

	stats, err := c.WakaaladStats(ctx, "tok", 42)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.TotalWakaalads)

	moves, err := c.WakaaladMovements(ctx, "tok", 42)
	require.NoError(t, err)
	require.Len(t, moves, 1)
	assert.Equal(t, types.MovementSale, moves[0].MovementType)

	assert.True(t, gock.IsDone())
}

func TestCreateVendorPaymentAndExtraCost(t *testing.T) {
	c := newTestClient(t)
	gock.New(testURL).Post(PathVendorPayments).
		MatchHeader(HeaderIdempotencyKey, "^pay-1$").
		JSON(map[string]any{"amount": 50, "payment_date": "2026-01-02", "lot_id": 5, "payment_method": "cash"}).
		Reply(201).JSON(map[string]any{"id": 900, "amount": 50, "lot_id": 5, "payment_method": "cash"})
	gock.New(testURL).Post(PathExtraCosts).
		JSON(map[string]any{"lot_id": 5, "category": "truck_rent", "amount": 20, "currency": "USD"}).
		Reply(201)

	lot := int64(5)
	read, err := c.CreateVendorPayment(context.Background(), "tok", types.VendorPaymentRequest{
		Amount: 50, PaymentDate: "2026-01-02", LotID: &lot, PaymentMethod: "cash",
	}, "pay-1")
	require.NoError(t, err)
	assert.Equal(t, int64(900), read.ID)

	err = c.CreateExtraCost(context.Background(), "tok", types.ExtraCostRequest{
		LotID: 5, Category: types.ExtraCostTruckRent, Amount: 20, Currency: "USD",
	})
	require.NoError(t, err)
	assert.True(t, gock.IsDone())
}

func TestErrorMessageFallbacks(t *testing.T) {
	assert.Equal(t, "nope", errorMessage([]byte(`{"message":"nope"}`), "400 Bad Request"))
	assert.Equal(t, "bad", errorMessage([]byte(`{"error":"bad"}`), "400 Bad Request"))
	assert.Equal(t, `[{"loc":"liters"}]`, errorMessage([]byte(`{"detail":[{"loc":"liters"}]}`), "422"))
	assert.Equal(t, "400 Bad Request", errorMessage(nil, "400 Bad Request"))
}
