package easypost

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MockAPIClient is a mock implementation of APIClient for testing.
type MockAPIClient struct {
	SimulateErrors  bool
	SimulateLatency time.Duration

	OnGetStatelessRates func(ctx context.Context, req *APIShipmentRequest) (*StatelessRatesResponse, error)
	OnCreateShipment    func(ctx context.Context, req *APIShipmentRequest) (*APIShipment, error)
	OnBuyShipment       func(ctx context.Context, shipmentID string, req *BuyRequest) (*APIShipment, error)
	OnCreateTracker     func(ctx context.Context, req *TrackerRequest) (*APITracker, error)
	OnRefundShipment    func(ctx context.Context, shipmentID string) (*APIRefund, error)
	OnCreateScanForm    func(ctx context.Context, req *ScanFormRequest) (*APIScanForm, error)
	OnCreateBatch       func(ctx context.Context, req *BatchRequest) (*APIBatch, error)
	OnCreatePickup      func(ctx context.Context, req *APIPickupRequest) (*APIPickup, error)
	OnBuyPickup         func(ctx context.Context, pickupID string, req *PickupBuyRequest) (*APIPickup, error)
	OnListWebhooks      func(ctx context.Context) (*WebhookList, error)
	OnCreateWebhook     func(ctx context.Context, req *WebhookRequest) (*APIWebhook, error)
	OnUpdateWebhook     func(ctx context.Context, id string, req *WebhookRequest) (*APIWebhook, error)
	OnDeleteWebhook     func(ctx context.Context, id string) error
}

// NewMockAPIClient creates a new mock API client with default behavior.
func NewMockAPIClient() *MockAPIClient {
	return &MockAPIClient{}
}

func (m *MockAPIClient) simulate() error {
	if m.SimulateLatency > 0 {
		time.Sleep(m.SimulateLatency)
	}
	if m.SimulateErrors {
		return &APIError{Code: "MOCK_ERROR", Message: "Simulated API error"}
	}
	return nil
}

func mockRates() []APIRate {
	return []APIRate{
		{
			ID:               "rate_" + uuid.New().String()[:8],
			Carrier:          "USPS",
			CarrierAccountID: "ca_usps",
			Service:          "Priority",
			Rate:             "12.50",
			Currency:         "USD",
			DeliveryDays:     3,
		},
		{
			ID:               "rate_" + uuid.New().String()[:8],
			Carrier:          "USPS",
			CarrierAccountID: "ca_usps",
			Service:          "GroundAdvantage",
			Rate:             "8.15",
			Currency:         "USD",
			DeliveryDays:     5,
		},
		{
			ID:               "rate_" + uuid.New().String()[:8],
			Carrier:          "FedExDefault",
			CarrierAccountID: "ca_fedex",
			Service:          "FEDEX_GROUND",
			Rate:             "14.90",
			Currency:         "USD",
			DeliveryDays:     4,
		},
	}
}

// GetStatelessRates returns mock stateless rates.
func (m *MockAPIClient) GetStatelessRates(ctx context.Context, req *APIShipmentRequest) (*StatelessRatesResponse, error) {
	if err := m.simulate(); err != nil {
		return nil, err
	}
	if m.OnGetStatelessRates != nil {
		return m.OnGetStatelessRates(ctx, req)
	}
	return &StatelessRatesResponse{Rates: mockRates()}, nil
}

// CreateShipment creates a mock shipment with rated options.
func (m *MockAPIClient) CreateShipment(ctx context.Context, req *APIShipmentRequest) (*APIShipment, error) {
	if err := m.simulate(); err != nil {
		return nil, err
	}
	if m.OnCreateShipment != nil {
		return m.OnCreateShipment(ctx, req)
	}
	return &APIShipment{
		ID:     "shp_" + uuid.New().String()[:8],
		Status: "unknown",
		Rates:  mockRates(),
	}, nil
}

// BuyShipment purchases a mock rate.
func (m *MockAPIClient) BuyShipment(ctx context.Context, shipmentID string, req *BuyRequest) (*APIShipment, error) {
	if err := m.simulate(); err != nil {
		return nil, err
	}
	if m.OnBuyShipment != nil {
		return m.OnBuyShipment(ctx, shipmentID, req)
	}

	trackingCode := fmt.Sprintf("9400%012d", time.Now().UnixNano()%1000000000000)
	return &APIShipment{
		ID:           shipmentID,
		Status:       "purchased",
		TrackingCode: trackingCode,
		SelectedRate: &APIRate{
			ID:       req.Rate.ID,
			Carrier:  "USPS",
			Service:  "Priority",
			Rate:     "12.50",
			Currency: "USD",
		},
		PostageLabel: &APIPostageLabel{
			LabelURL: fmt.Sprintf("https://assets.example.com/labels/%s.png", shipmentID),
		},
		Tracker: &APITracker{
			ID:           "trk_" + uuid.New().String()[:8],
			TrackingCode: trackingCode,
			Status:       "pre_transit",
		},
		Insurance: req.Insurance,
	}, nil
}

// CreateTracker registers a mock tracker.
func (m *MockAPIClient) CreateTracker(ctx context.Context, req *TrackerRequest) (*APITracker, error) {
	if err := m.simulate(); err != nil {
		return nil, err
	}
	if m.OnCreateTracker != nil {
		return m.OnCreateTracker(ctx, req)
	}
	return &APITracker{
		ID:           "trk_" + uuid.New().String()[:8],
		TrackingCode: req.TrackingCode,
		Carrier:      req.Carrier,
		Status:       "unknown",
	}, nil
}

// RefundShipment requests a mock refund.
func (m *MockAPIClient) RefundShipment(ctx context.Context, shipmentID string) (*APIRefund, error) {
	if err := m.simulate(); err != nil {
		return nil, err
	}
	if m.OnRefundShipment != nil {
		return m.OnRefundShipment(ctx, shipmentID)
	}
	return &APIRefund{
		ID:         "rfnd_" + uuid.New().String()[:8],
		ShipmentID: shipmentID,
		Status:     "submitted",
	}, nil
}

// CreateScanForm creates a mock scan form.
func (m *MockAPIClient) CreateScanForm(ctx context.Context, req *ScanFormRequest) (*APIScanForm, error) {
	if err := m.simulate(); err != nil {
		return nil, err
	}
	if m.OnCreateScanForm != nil {
		return m.OnCreateScanForm(ctx, req)
	}
	id := "sf_" + uuid.New().String()[:8]
	return &APIScanForm{
		ID:      id,
		Status:  "created",
		FormURL: fmt.Sprintf("https://assets.example.com/scan_forms/%s.pdf", id),
		BatchID: "batch_" + uuid.New().String()[:8],
	}, nil
}

// CreateBatch creates a mock batch.
func (m *MockAPIClient) CreateBatch(ctx context.Context, req *BatchRequest) (*APIBatch, error) {
	if err := m.simulate(); err != nil {
		return nil, err
	}
	if m.OnCreateBatch != nil {
		return m.OnCreateBatch(ctx, req)
	}
	return &APIBatch{
		ID:    "batch_" + uuid.New().String()[:8],
		State: "created",
	}, nil
}

// CreatePickup creates a mock pickup with one offered rate.
func (m *MockAPIClient) CreatePickup(ctx context.Context, req *APIPickupRequest) (*APIPickup, error) {
	if err := m.simulate(); err != nil {
		return nil, err
	}
	if m.OnCreatePickup != nil {
		return m.OnCreatePickup(ctx, req)
	}
	return &APIPickup{
		ID:     "pickup_" + uuid.New().String()[:8],
		Status: "unknown",
		PickupRates: []APIPickupRate{
			{Carrier: "USPS", Service: "NextDay", Rate: "0.00", Currency: "USD"},
		},
	}, nil
}

// BuyPickup purchases a mock pickup.
func (m *MockAPIClient) BuyPickup(ctx context.Context, pickupID string, req *PickupBuyRequest) (*APIPickup, error) {
	if err := m.simulate(); err != nil {
		return nil, err
	}
	if m.OnBuyPickup != nil {
		return m.OnBuyPickup(ctx, pickupID, req)
	}
	return &APIPickup{
		ID:           pickupID,
		Status:       "scheduled",
		Confirmation: fmt.Sprintf("WTC%06d", time.Now().UnixNano()%1000000),
		PickupRates: []APIPickupRate{
			{Carrier: req.Carrier, Service: req.Service, Rate: "0.00", Currency: "USD"},
		},
	}, nil
}

// ListWebhooks lists mock webhook endpoints.
func (m *MockAPIClient) ListWebhooks(ctx context.Context) (*WebhookList, error) {
	if err := m.simulate(); err != nil {
		return nil, err
	}
	if m.OnListWebhooks != nil {
		return m.OnListWebhooks(ctx)
	}
	return &WebhookList{}, nil
}

// CreateWebhook registers a mock webhook endpoint.
func (m *MockAPIClient) CreateWebhook(ctx context.Context, req *WebhookRequest) (*APIWebhook, error) {
	if err := m.simulate(); err != nil {
		return nil, err
	}
	if m.OnCreateWebhook != nil {
		return m.OnCreateWebhook(ctx, req)
	}
	return &APIWebhook{ID: "hook_" + uuid.New().String()[:8], URL: req.URL}, nil
}

// UpdateWebhook re-points a mock webhook endpoint.
func (m *MockAPIClient) UpdateWebhook(ctx context.Context, id string, req *WebhookRequest) (*APIWebhook, error) {
	if err := m.simulate(); err != nil {
		return nil, err
	}
	if m.OnUpdateWebhook != nil {
		return m.OnUpdateWebhook(ctx, id, req)
	}
	return &APIWebhook{ID: id, URL: req.URL}, nil
}

// DeleteWebhook removes a mock webhook endpoint.
func (m *MockAPIClient) DeleteWebhook(ctx context.Context, id string) error {
	if err := m.simulate(); err != nil {
		return err
	}
	if m.OnDeleteWebhook != nil {
		return m.OnDeleteWebhook(ctx, id)
	}
	return nil
}

var _ APIClient = (*MockAPIClient)(nil)
