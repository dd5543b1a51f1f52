// Package easypost provides integration with the EasyPost multi-carrier
// shipping API.
package easypost

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/parcelforge/fulfillment/pkg/provider"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const providerName = "easypost"

const (
	gramsPerOunce = 28.349523125
	cmPerInch     = 2.54
)

// Config holds EasyPost configuration.
type Config struct {
	APIKey  string
	BaseURL string
	UseMock bool // When true, uses mock API client
}

// Client is the EasyPost provider client.
// It implements the provider.Provider interface and delegates
// API calls to the underlying APIClient (mock or HTTP).
type Client struct {
	config    Config
	apiClient APIClient
	logger    *otelzap.Logger
	tracer    trace.Tracer
}

// New creates a new EasyPost client.
// If cfg.UseMock is true, it uses a mock API client for testing.
// Otherwise, it uses the real HTTP API client.
func New(cfg Config, logger *otelzap.Logger, tracer trace.Tracer) *Client {
	var apiClient APIClient

	if cfg.UseMock {
		apiClient = NewMockAPIClient()
	} else {
		apiClient = NewHTTPAPIClient(HTTPAPIClientConfig{
			BaseURL: cfg.BaseURL,
			APIKey:  cfg.APIKey,
			Timeout: 30 * time.Second,
		})
	}

	return &Client{
		config:    cfg,
		apiClient: apiClient,
		logger:    logger,
		tracer:    tracer,
	}
}

// NewWithAPIClient creates a new EasyPost client with a custom API client.
// This is useful for injecting mock clients in tests.
func NewWithAPIClient(cfg Config, apiClient APIClient, logger *otelzap.Logger, tracer trace.Tracer) *Client {
	return &Client{
		config:    cfg,
		apiClient: apiClient,
		logger:    logger,
		tracer:    tracer,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return providerName
}

// GetRates returns stateless rate quotes for a shipment request.
func (c *Client) GetRates(ctx context.Context, req *provider.ShipmentRequest) ([]provider.Rate, error) {
	c.logger.Ctx(ctx).Debug("Fetching stateless rates",
		zap.String("destination_city", req.To.City),
		zap.String("destination_country", req.To.Country),
	)

	apiResp, err := c.apiClient.GetStatelessRates(ctx, shipmentRequestToAPI(req))
	if err != nil {
		return nil, c.wrapError("get rates", err)
	}

	return ratesToProvider(apiResp.Rates), nil
}

// CreateShipment registers a shipment and returns it with rated options.
func (c *Client) CreateShipment(ctx context.Context, req *provider.ShipmentRequest) (*provider.Shipment, error) {
	c.logger.Ctx(ctx).Info("Creating shipment",
		zap.String("reference", req.Reference),
		zap.Int("customs_items", len(req.CustomsItems)),
	)

	apiResp, err := c.apiClient.CreateShipment(ctx, shipmentRequestToAPI(req))
	if err != nil {
		return nil, c.wrapError("create shipment", err)
	}

	return shipmentToProvider(apiResp), nil
}

// BuyShipment purchases the given rate of a previously created shipment.
func (c *Client) BuyShipment(ctx context.Context, shipmentID, rateID string, insuredCents int64) (*provider.Shipment, error) {
	c.logger.Ctx(ctx).Info("Buying shipment",
		zap.String("shipment_id", shipmentID),
		zap.String("rate_id", rateID),
		zap.Int64("insured_cents", insuredCents),
	)

	buyReq := &BuyRequest{Rate: BuyRate{ID: rateID}}
	if insuredCents > 0 {
		buyReq.Insurance = provider.FromCents(insuredCents)
	}

	apiResp, err := c.apiClient.BuyShipment(ctx, shipmentID, buyReq)
	if err != nil {
		return nil, c.wrapError("buy shipment", err)
	}

	return shipmentToProvider(apiResp), nil
}

// CreateTracker registers a standalone tracker for a tracking code.
func (c *Client) CreateTracker(ctx context.Context, trackingCode, carrier string) (*provider.Tracker, error) {
	apiResp, err := c.apiClient.CreateTracker(ctx, &TrackerRequest{
		TrackingCode: trackingCode,
		Carrier:      carrier,
	})
	if err != nil {
		return nil, c.wrapError("create tracker", err)
	}

	return &provider.Tracker{
		ID:           apiResp.ID,
		TrackingCode: apiResp.TrackingCode,
		Carrier:      apiResp.Carrier,
		Status:       apiResp.Status,
	}, nil
}

// RefundShipment requests a refund for a purchased shipment.
func (c *Client) RefundShipment(ctx context.Context, shipmentID string) (*provider.Refund, error) {
	c.logger.Ctx(ctx).Info("Refunding shipment", zap.String("shipment_id", shipmentID))

	apiResp, err := c.apiClient.RefundShipment(ctx, shipmentID)
	if err != nil {
		return nil, c.wrapError("refund shipment", err)
	}

	return &provider.Refund{
		ID:         apiResp.ID,
		ShipmentID: apiResp.ShipmentID,
		Status:     apiResp.Status,
	}, nil
}

// CreateScanForm creates a scan form covering the given shipments.
func (c *Client) CreateScanForm(ctx context.Context, shipmentIDs []string) (*provider.ScanForm, error) {
	apiResp, err := c.apiClient.CreateScanForm(ctx, &ScanFormRequest{
		Shipments: shipmentRefs(shipmentIDs),
	})
	if err != nil {
		return nil, c.wrapError("create scan form", err)
	}

	return &provider.ScanForm{
		ID:      apiResp.ID,
		URL:     apiResp.FormURL,
		BatchID: apiResp.BatchID,
		Status:  apiResp.Status,
	}, nil
}

// CreateBatch creates a bare batch covering the given shipments.
func (c *Client) CreateBatch(ctx context.Context, shipmentIDs []string) (*provider.Batch, error) {
	apiResp, err := c.apiClient.CreateBatch(ctx, &BatchRequest{
		Shipments: shipmentRefs(shipmentIDs),
	})
	if err != nil {
		return nil, c.wrapError("create batch", err)
	}

	return &provider.Batch{ID: apiResp.ID, Status: apiResp.State}, nil
}

// CreatePickup requests a carrier pickup for a batch.
func (c *Client) CreatePickup(ctx context.Context, req *provider.PickupRequest) (*provider.Pickup, error) {
	apiReq := &APIPickupRequest{
		Address:      addressToAPI(req.Address),
		MinDatetime:  req.MinDatetime.Format(time.RFC3339),
		MaxDatetime:  req.MaxDatetime.Format(time.RFC3339),
		Instructions: req.Instructions,
	}
	if req.BatchID != "" {
		apiReq.Batch = &BatchReference{ID: req.BatchID}
	}

	apiResp, err := c.apiClient.CreatePickup(ctx, apiReq)
	if err != nil {
		return nil, c.wrapError("create pickup", err)
	}

	return pickupToProvider(apiResp), nil
}

// BuyPickup purchases a pickup at the given carrier/service rate.
func (c *Client) BuyPickup(ctx context.Context, pickupID, carrier, service string) (*provider.Pickup, error) {
	apiResp, err := c.apiClient.BuyPickup(ctx, pickupID, &PickupBuyRequest{
		Carrier: carrier,
		Service: service,
	})
	if err != nil {
		return nil, c.wrapError("buy pickup", err)
	}

	return pickupToProvider(apiResp), nil
}

// ListWebhooks returns the provider's registered webhook endpoints.
func (c *Client) ListWebhooks(ctx context.Context) ([]provider.Webhook, error) {
	apiResp, err := c.apiClient.ListWebhooks(ctx)
	if err != nil {
		return nil, c.wrapError("list webhooks", err)
	}

	hooks := make([]provider.Webhook, len(apiResp.Webhooks))
	for i, h := range apiResp.Webhooks {
		hooks[i] = provider.Webhook{ID: h.ID, URL: h.URL}
	}
	return hooks, nil
}

// CreateWebhook registers a webhook endpoint.
func (c *Client) CreateWebhook(ctx context.Context, url string) (*provider.Webhook, error) {
	apiResp, err := c.apiClient.CreateWebhook(ctx, &WebhookRequest{URL: url})
	if err != nil {
		return nil, c.wrapError("create webhook", err)
	}
	return &provider.Webhook{ID: apiResp.ID, URL: apiResp.URL}, nil
}

// UpdateWebhook re-points an existing webhook endpoint.
func (c *Client) UpdateWebhook(ctx context.Context, id, url string) (*provider.Webhook, error) {
	apiResp, err := c.apiClient.UpdateWebhook(ctx, id, &WebhookRequest{URL: url})
	if err != nil {
		return nil, c.wrapError("update webhook", err)
	}
	return &provider.Webhook{ID: apiResp.ID, URL: apiResp.URL}, nil
}

// DeleteWebhook removes a webhook endpoint.
func (c *Client) DeleteWebhook(ctx context.Context, id string) error {
	if err := c.apiClient.DeleteWebhook(ctx, id); err != nil {
		return c.wrapError("delete webhook", err)
	}
	return nil
}

// wrapError converts API errors into provider errors, flattening the
// structured error array and remapping known messages.
func (c *Client) wrapError(op string, err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		msg := provider.NormalizeMessage(apiErr.FlatMessage())
		return provider.NewProviderError(providerName, apiErr.Code, op+": "+msg).WithCause(err)
	}
	return provider.NewProviderError(providerName, "REQUEST_FAILED", op+" failed").WithCause(err)
}

// ============================================================================
// Conversion helpers: provider models -> API models
// ============================================================================

func addressToAPI(a provider.Address) APIAddress {
	return APIAddress{
		Name:    a.Name,
		Company: a.Company,
		Street1: a.Street1,
		Street2: a.Street2,
		City:    a.City,
		State:   a.State,
		Zip:     a.Zip,
		Country: a.Country,
		Phone:   a.Phone,
		Email:   a.Email,
	}
}

func parcelToAPI(p provider.Parcel) APIParcel {
	return APIParcel{
		Length: roundTenth(float64(p.LengthCm) / cmPerInch),
		Width:  roundTenth(float64(p.WidthCm) / cmPerInch),
		Height: roundTenth(float64(p.HeightCm) / cmPerInch),
		Weight: roundTenth(float64(p.WeightGrams) / gramsPerOunce),
	}
}

func shipmentRequestToAPI(req *provider.ShipmentRequest) *APIShipmentRequest {
	apiReq := &APIShipmentRequest{
		ToAddress:   addressToAPI(req.To),
		FromAddress: addressToAPI(req.From),
		Parcel:      parcelToAPI(req.Parcel),
		Reference:   req.Reference,
	}

	if len(req.CustomsItems) > 0 {
		items := make([]APICustomsItem, len(req.CustomsItems))
		for i, ci := range req.CustomsItems {
			items[i] = APICustomsItem{
				Description:    ci.Description,
				Quantity:       ci.Quantity,
				Value:          float64(ci.ValueCents) / 100,
				Weight:         roundTenth(float64(ci.WeightGrams) / gramsPerOunce),
				HSTariffNumber: ci.HSCode,
				OriginCountry:  ci.OriginCountry,
				Currency:       ci.Currency,
			}
		}
		apiReq.CustomsInfo = &APICustomsInfo{
			ContentsType:   "merchandise",
			CustomsCertify: true,
			CustomsItems:   items,
		}
	}

	return apiReq
}

func shipmentRefs(ids []string) []ScanFormShipment {
	refs := make([]ScanFormShipment, len(ids))
	for i, id := range ids {
		refs[i] = ScanFormShipment{ID: id}
	}
	return refs
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}

// ============================================================================
// Conversion helpers: API models -> provider models
// ============================================================================

func ratesToProvider(apiRates []APIRate) []provider.Rate {
	rates := make([]provider.Rate, len(apiRates))
	for i, r := range apiRates {
		rates[i] = rateToProvider(r)
	}
	return rates
}

func rateToProvider(r APIRate) provider.Rate {
	return provider.Rate{
		ID:               r.ID,
		Carrier:          r.Carrier,
		CarrierAccountID: r.CarrierAccountID,
		Service:          r.Service,
		Amount:           r.Rate,
		Currency:         r.Currency,
		DeliveryDays:     r.DeliveryDays,
	}
}

func shipmentToProvider(s *APIShipment) *provider.Shipment {
	out := &provider.Shipment{
		ID:            s.ID,
		Status:        s.Status,
		TrackingCode:  s.TrackingCode,
		Rates:         ratesToProvider(s.Rates),
		InsuredAmount: s.Insurance,
		RefundStatus:  s.RefundStatus,
	}
	if s.SelectedRate != nil {
		sel := rateToProvider(*s.SelectedRate)
		out.SelectedRate = &sel
	}
	if s.PostageLabel != nil {
		out.LabelURL = s.PostageLabel.LabelURL
		if out.LabelURL == "" {
			out.LabelURL = s.PostageLabel.LabelPDFURL
		}
	}
	if s.Tracker != nil {
		out.TrackerID = s.Tracker.ID
	}
	for _, f := range s.Forms {
		if f.FormType == "commercial_invoice" {
			out.FormURL = f.FormURL
			out.FormNumber = f.FormNumber
		}
	}
	return out
}

func pickupToProvider(p *APIPickup) *provider.Pickup {
	rates := make([]provider.PickupRate, len(p.PickupRates))
	for i, r := range p.PickupRates {
		rates[i] = provider.PickupRate{
			Carrier:  r.Carrier,
			Service:  r.Service,
			Amount:   r.Rate,
			Currency: r.Currency,
		}
	}
	return &provider.Pickup{
		ID:           p.ID,
		Status:       p.Status,
		Rates:        rates,
		Confirmation: p.Confirmation,
	}
}

// Ensure Client implements the Provider interface
var _ provider.Provider = (*Client)(nil)
