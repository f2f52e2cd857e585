// Package remote is the HTTP client for the oil-distribution API.
package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/oilsync/internal/logging"
	"github.com/mesh-intelligence/oilsync/pkg/types"
)

// API paths.
const (
	PathOils              = "/oils"
	PathOilLots           = "/oils/lots"
	PathExtraCosts        = "/oils/extra-costs"
	PathVendorPayments    = "/vendor-payments"
	PathSupplierDues      = "/vendor-bills/supplier-dues"
	PathOilSummary        = "/oils/summary"
	PathWakaaladStats     = "/wakaalad/stats"
	PathWakaaladMovements = "/wakaalad/movements"
)

// HeaderIdempotencyKey carries the queued row's key on create requests.
const HeaderIdempotencyKey = "Idempotency-Key"

// DefaultTimeout bounds each request when no HTTP client is supplied.
const DefaultTimeout = 30 * time.Second

// maxErrorBody caps how much of an error response is kept as the message.
const maxErrorBody = 4 << 10

// Client talks JSON to the API.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Logger  *zap.SugaredLogger
}

// New creates a client for baseURL with a request timeout.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: timeout},
	}
}

// CreateOil posts the queued payload to the create endpoint for mode and
// returns the raw response body.
func (c *Client) CreateOil(ctx context.Context, token string, mode types.FormMode, payload json.RawMessage, key string) ([]byte, error) {
	path := PathOils
	switch mode {
	case types.FormModeSingle:
	case types.FormModeBoth:
		path = PathOilLots
	default:
		return nil, fmt.Errorf("%w: %q", types.ErrInvalidMode, mode)
	}
	return c.do(ctx, http.MethodPost, path, token, nil, []byte(payload), key)
}

// CreateExtraCost posts one extra-cost entry.
func (c *Client) CreateExtraCost(ctx context.Context, token string, req types.ExtraCostRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode extra cost: %w", err)
	}
	_, err = c.do(ctx, http.MethodPost, PathExtraCosts, token, nil, body, "")
	return err
}

// CreateVendorPayment posts a vendor payment.
func (c *Client) CreateVendorPayment(ctx context.Context, token string, req types.VendorPaymentRequest, key string) (types.VendorPaymentRead, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return types.VendorPaymentRead{}, fmt.Errorf("encode vendor payment: %w", err)
	}
	resp, err := c.do(ctx, http.MethodPost, PathVendorPayments, token, nil, body, key)
	if err != nil {
		return types.VendorPaymentRead{}, err
	}
	var out types.VendorPaymentRead
	if err := json.Unmarshal(resp, &out); err != nil {
		return types.VendorPaymentRead{}, fmt.Errorf("%w: vendor payment: %v", types.ErrInvalidResponse, err)
	}
	return out, nil
}

// SupplierDues fetches the owner's vendor bills.
func (c *Client) SupplierDues(ctx context.Context, token string, ownerID int64) ([]types.SupplierDueItem, error) {
	var out []types.SupplierDueItem
	err := c.get(ctx, PathSupplierDues, token, ownerID, &out)
	return out, err
}

// VendorPayments fetches the owner's recorded vendor payments.
func (c *Client) VendorPayments(ctx context.Context, token string, ownerID int64) ([]types.VendorPaymentRead, error) {
	var out []types.VendorPaymentRead
	err := c.get(ctx, PathVendorPayments, token, ownerID, &out)
	return out, err
}

// OilSummary fetches the oil KPI snapshot.
func (c *Client) OilSummary(ctx context.Context, token string, ownerID int64) (types.OilSummary, error) {
	var out types.OilSummary
	err := c.get(ctx, PathOilSummary, token, ownerID, &out)
	return out, err
}

// WakaaladStats fetches the sub-distributor KPI snapshot.
func (c *Client) WakaaladStats(ctx context.Context, token string, ownerID int64) (types.WakaaladStats, error) {
	var out types.WakaaladStats
	err := c.get(ctx, PathWakaaladStats, token, ownerID, &out)
	return out, err
}

// WakaaladMovements fetches the sub-distributor stock movements.
func (c *Client) WakaaladMovements(ctx context.Context, token string, ownerID int64) ([]types.WakaaladMovement, error) {
	var out []types.WakaaladMovement
	err := c.get(ctx, PathWakaaladMovements, token, ownerID, &out)
	return out, err
}

func (c *Client) get(ctx context.Context, path, token string, ownerID int64, out any) error {
	q := url.Values{}
	q.Set("owner_id", strconv.FormatInt(ownerID, 10))
	body, err := c.do(ctx, http.MethodGet, path, token, q, nil, "")
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path, token string, query url.Values, body []byte, key string) ([]byte, error) {
	target := c.BaseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if key != "" {
		req.Header.Set(HeaderIdempotencyKey, key)
	}

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, &ConnectivityError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ConnectivityError{Op: method + " " + path, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: errorMessage(data, resp.Status)}
		logging.OrNop(c.Logger).Debugw("api rejected request",
			"method", method, "path", path, "status", resp.StatusCode, "message", apiErr.Message)
		return nil, apiErr
	}
	return data, nil
}

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// ConnectivityError is a request that never got a response.
type ConnectivityError struct {
	Op  string
	Err error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// IsConnectivity reports whether err means the server was not reached.
func IsConnectivity(err error) bool {
	var ce *ConnectivityError
	return errors.As(err, &ce)
}

// errorMessage picks the server's message out of an error body.
func errorMessage(body []byte, status string) string {
	var fields map[string]any
	if json.Unmarshal(body, &fields) == nil {
		for _, k := range []string{"detail", "message", "error"} {
			switch v := fields[k].(type) {
			case string:
				if v != "" {
					return v
				}
			case nil:
			default:
				if b, err := json.Marshal(v); err == nil {
					return string(b)
				}
			}
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > maxErrorBody {
		msg = msg[:maxErrorBody]
	}
	if msg == "" {
		return status
	}
	return msg
}
