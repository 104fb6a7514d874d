package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"ordersync/internal/models"
	"ordersync/internal/util"

	"go.uber.org/zap"
)

// AuthProvider supplies the current bearer token. Injected so the host
// application owns credential storage and refresh.
type AuthProvider interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is an AuthProvider around a fixed token.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) {
	return string(t), nil
}

// Push outcome values as enumerated by the authority.
const (
	OutcomeApplied = "applied"
	OutcomeSkipped = "skipped"
)

// PushOutcome is the per-record result of a batch upsert.
type PushOutcome struct {
	ID      string `json:"id"`
	Outcome string `json:"outcome"`
	Message string `json:"message,omitempty"`
}

// Client talks to the remote authority. Every call is bounded by the
// configured HTTP timeout; there is no cooperative cancellation beyond it.
type Client struct {
	baseURL string
	http    *http.Client
	auth    AuthProvider
	logger  *zap.Logger
}

// NewClient creates a client for the authority at baseURL. A zero timeout
// falls back to the 120s bound.
func NewClient(baseURL string, auth AuthProvider, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		auth:    auth,
		logger:  util.GetLogger(),
	}
}

// FetchOrders pulls the remote order records. Changed-since semantics are
// the server's concern; the client merges whatever it is given.
func (c *Client) FetchOrders(ctx context.Context) ([]models.Order, error) {
	var body struct {
		Orders []models.Order `json:"orders"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/sync/pending-orders", nil, nil, &body); err != nil {
		return nil, fmt.Errorf("fetch orders: %w", err)
	}
	return body.Orders, nil
}

// PushOrders upserts a batch of orders. batchKey is sent as Idempotency-Key
// so a replayed batch is not double-applied server-side.
func (c *Client) PushOrders(ctx context.Context, orders []models.Order, batchKey string) ([]PushOutcome, error) {
	payload := struct {
		Orders []models.Order `json:"orders"`
	}{Orders: orders}

	var body struct {
		Results []PushOutcome `json:"results"`
	}
	headers := map[string]string{"Idempotency-Key": batchKey}
	if err := c.do(ctx, http.MethodPost, "/api/sync/pending-orders", headers, payload, &body); err != nil {
		return nil, fmt.Errorf("push orders: %w", err)
	}
	return body.Results, nil
}

// DeleteOrder pushes a tombstone. A 404 means the record is already gone
// remotely, which matches intent, so it counts as success.
func (c *Client) DeleteOrder(ctx context.Context, id string) error {
	err := c.do(ctx, http.MethodDelete, "/api/sync/pending-orders/"+url.PathEscape(id), nil, nil, nil)
	if err != nil {
		var se *statusError
		if errors.As(err, &se) && se.code == http.StatusNotFound {
			return nil
		}
		return fmt.Errorf("delete order %s: %w", id, err)
	}
	return nil
}

// FetchWarehouseItems pulls the full warehouse snapshot.
func (c *Client) FetchWarehouseItems(ctx context.Context) ([]models.WarehouseItem, error) {
	var body struct {
		Items []models.WarehouseItem `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/sync/warehouse-items", nil, nil, &body); err != nil {
		return nil, fmt.Errorf("fetch warehouse items: %w", err)
	}
	return body.Items, nil
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.code, e.body)
}

func (c *Client) do(ctx context.Context, method, path string, headers map[string]string, in, out interface{}) error {
	var reqBody io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	token, err := c.auth.Token(ctx)
	if err != nil {
		return fmt.Errorf("failed to obtain token: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &statusError{code: resp.StatusCode, body: string(body)}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
