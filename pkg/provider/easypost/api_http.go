package easypost

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

// HTTPAPIClient is the production implementation of APIClient using HTTP.
type HTTPAPIClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
}

// HTTPAPIClientConfig holds configuration for the HTTP client.
type HTTPAPIClientConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// NewHTTPAPIClient creates a new HTTP-based API client for production use.
// Outbound calls run through a circuit breaker so a dead provider fails fast
// instead of tying up request handlers.
func NewHTTPAPIClient(cfg HTTPAPIClientConfig) *HTTPAPIClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "easypost",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &HTTPAPIClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		breaker: breaker,
	}
}

// GetStatelessRates fetches rate quotes without creating a shipment.
// POST /beta/rates
func (c *HTTPAPIClient) GetStatelessRates(ctx context.Context, req *APIShipmentRequest) (*StatelessRatesResponse, error) {
	var result StatelessRatesResponse
	if err := c.doJSON(ctx, http.MethodPost, "/beta/rates", map[string]any{"shipment": req}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CreateShipment creates a shipment with rated options.
// POST /shipments
func (c *HTTPAPIClient) CreateShipment(ctx context.Context, req *APIShipmentRequest) (*APIShipment, error) {
	var result APIShipment
	if err := c.doJSON(ctx, http.MethodPost, "/shipments", map[string]any{"shipment": req}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// BuyShipment purchases a rate of a created shipment.
// POST /shipments/{id}/buy
func (c *HTTPAPIClient) BuyShipment(ctx context.Context, shipmentID string, req *BuyRequest) (*APIShipment, error) {
	var result APIShipment
	path := fmt.Sprintf("/shipments/%s/buy", shipmentID)
	if err := c.doJSON(ctx, http.MethodPost, path, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CreateTracker registers a standalone tracker.
// POST /trackers
func (c *HTTPAPIClient) CreateTracker(ctx context.Context, req *TrackerRequest) (*APITracker, error) {
	var result APITracker
	if err := c.doJSON(ctx, http.MethodPost, "/trackers", map[string]any{"tracker": req}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// RefundShipment requests a refund for a purchased shipment.
// POST /shipments/{id}/refund
func (c *HTTPAPIClient) RefundShipment(ctx context.Context, shipmentID string) (*APIRefund, error) {
	var result APIRefund
	path := fmt.Sprintf("/shipments/%s/refund", shipmentID)
	if err := c.doJSON(ctx, http.MethodPost, path, nil, &result); err != nil {
		return nil, err
	}
	if result.ShipmentID == "" {
		result.ShipmentID = shipmentID
	}
	return &result, nil
}

// CreateScanForm creates a scan form covering the given shipments.
// POST /scan_forms
func (c *HTTPAPIClient) CreateScanForm(ctx context.Context, req *ScanFormRequest) (*APIScanForm, error) {
	var result APIScanForm
	if err := c.doJSON(ctx, http.MethodPost, "/scan_forms", map[string]any{"scan_form": req}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CreateBatch creates a bare batch of shipments.
// POST /batches
func (c *HTTPAPIClient) CreateBatch(ctx context.Context, req *BatchRequest) (*APIBatch, error) {
	var result APIBatch
	if err := c.doJSON(ctx, http.MethodPost, "/batches", map[string]any{"batch": req}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CreatePickup requests a carrier pickup.
// POST /pickups
func (c *HTTPAPIClient) CreatePickup(ctx context.Context, req *APIPickupRequest) (*APIPickup, error) {
	var result APIPickup
	if err := c.doJSON(ctx, http.MethodPost, "/pickups", map[string]any{"pickup": req}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// BuyPickup purchases a pickup rate.
// POST /pickups/{id}/buy
func (c *HTTPAPIClient) BuyPickup(ctx context.Context, pickupID string, req *PickupBuyRequest) (*APIPickup, error) {
	var result APIPickup
	path := fmt.Sprintf("/pickups/%s/buy", pickupID)
	if err := c.doJSON(ctx, http.MethodPost, path, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListWebhooks lists registered webhook endpoints.
// GET /webhooks
func (c *HTTPAPIClient) ListWebhooks(ctx context.Context) (*WebhookList, error) {
	var result WebhookList
	if err := c.doJSON(ctx, http.MethodGet, "/webhooks", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CreateWebhook registers a webhook endpoint.
// POST /webhooks
func (c *HTTPAPIClient) CreateWebhook(ctx context.Context, req *WebhookRequest) (*APIWebhook, error) {
	var result APIWebhook
	if err := c.doJSON(ctx, http.MethodPost, "/webhooks", map[string]any{"webhook": req}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// UpdateWebhook re-points a webhook endpoint.
// PATCH /webhooks/{id}
func (c *HTTPAPIClient) UpdateWebhook(ctx context.Context, id string, req *WebhookRequest) (*APIWebhook, error) {
	var result APIWebhook
	path := fmt.Sprintf("/webhooks/%s", id)
	if err := c.doJSON(ctx, http.MethodPatch, path, map[string]any{"webhook": req}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// DeleteWebhook removes a webhook endpoint.
// DELETE /webhooks/{id}
func (c *HTTPAPIClient) DeleteWebhook(ctx context.Context, id string) error {
	path := fmt.Sprintf("/webhooks/%s", id)
	return c.doJSON(ctx, http.MethodDelete, path, nil, nil)
}

// doJSON performs a request through the breaker and decodes the JSON
// response into out (when out is non-nil).
func (c *HTTPAPIClient) doJSON(ctx context.Context, method, path string, body, out any) error {
	raw, err := c.breaker.Execute(func() (any, error) {
		resp, err := c.doRequest(ctx, method, path, body)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, c.parseError(resp)
		}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("reading response body: %w", err)
		}
		return data, nil
	})
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	data := raw.([]byte)
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding %s %s response: %w", method, path, err)
	}
	return nil
}

// doRequest performs an HTTP request with proper headers and authentication.
func (c *HTTPAPIClient) doRequest(ctx context.Context, method, path string, body any) (*http.Response, error) {
	url := c.baseURL + path

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(c.apiKey, "") // EasyPost authenticates with the API key as basic user
	req.Header.Set("User-Agent", "parcelforge-fulfillment/1.0")

	return c.httpClient.Do(req)
}

// parseError extracts error information from an HTTP response.
func (c *HTTPAPIClient) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var wrapped struct {
		Error *APIError `json:"error"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil && wrapped.Error != nil && wrapped.Error.Message != "" {
		return wrapped.Error
	}

	var apiErr APIError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Code != "" {
		return &apiErr
	}

	return &APIError{
		Code:    fmt.Sprintf("HTTP_%d", resp.StatusCode),
		Message: string(body),
	}
}

// Ensure HTTPAPIClient implements APIClient interface
var _ APIClient = (*HTTPAPIClient)(nil)
