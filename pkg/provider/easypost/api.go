package easypost

import (
	"context"
)

// APIClient defines the interface for EasyPost API operations. The
// abstraction allows mock implementations during testing and the real HTTP
// implementation in production.
type APIClient interface {
	// GetStatelessRates fetches rate quotes without creating a shipment
	GetStatelessRates(ctx context.Context, req *APIShipmentRequest) (*StatelessRatesResponse, error)

	// CreateShipment creates a shipment and returns it with rated options
	CreateShipment(ctx context.Context, req *APIShipmentRequest) (*APIShipment, error)

	// BuyShipment purchases a rate of a created shipment
	BuyShipment(ctx context.Context, shipmentID string, req *BuyRequest) (*APIShipment, error)

	// CreateTracker registers a standalone tracker
	CreateTracker(ctx context.Context, req *TrackerRequest) (*APITracker, error)

	// RefundShipment requests a refund for a purchased shipment
	RefundShipment(ctx context.Context, shipmentID string) (*APIRefund, error)

	// CreateScanForm creates a scan form (implicitly creating a batch)
	CreateScanForm(ctx context.Context, req *ScanFormRequest) (*APIScanForm, error)

	// CreateBatch creates a bare batch of shipments
	CreateBatch(ctx context.Context, req *BatchRequest) (*APIBatch, error)

	// CreatePickup requests a carrier pickup
	CreatePickup(ctx context.Context, req *APIPickupRequest) (*APIPickup, error)

	// BuyPickup purchases a pickup rate
	BuyPickup(ctx context.Context, pickupID string, req *PickupBuyRequest) (*APIPickup, error)

	// ListWebhooks lists registered webhook endpoints
	ListWebhooks(ctx context.Context) (*WebhookList, error)

	// CreateWebhook registers a webhook endpoint
	CreateWebhook(ctx context.Context, req *WebhookRequest) (*APIWebhook, error)

	// UpdateWebhook re-points a webhook endpoint
	UpdateWebhook(ctx context.Context, id string, req *WebhookRequest) (*APIWebhook, error)

	// DeleteWebhook removes a webhook endpoint
	DeleteWebhook(ctx context.Context, id string) error
}

// ============================================================================
// API Request/Response Types (match the EasyPost REST API structure)
// ============================================================================

// APIAddress represents an EasyPost address.
type APIAddress struct {
	Name    string `json:"name,omitempty"`
	Company string `json:"company,omitempty"`
	Street1 string `json:"street1"`
	Street2 string `json:"street2,omitempty"`
	City    string `json:"city"`
	State   string `json:"state"`
	Zip     string `json:"zip"`
	Country string `json:"country"`
	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty"`
}

// APIParcel represents package dimensions in the provider's native units
// (inches and ounces).
type APIParcel struct {
	Length float64 `json:"length"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Weight float64 `json:"weight"` // ounces
}

// APICustomsItem is one customs declaration line.
type APICustomsItem struct {
	Description    string  `json:"description"`
	Quantity       int     `json:"quantity"`
	Value          float64 `json:"value"`
	Weight         float64 `json:"weight"` // ounces
	HSTariffNumber string  `json:"hs_tariff_number,omitempty"`
	OriginCountry  string  `json:"origin_country"`
	Currency       string  `json:"currency,omitempty"`
}

// APICustomsInfo wraps customs declaration lines.
type APICustomsInfo struct {
	ContentsType   string           `json:"contents_type"`
	CustomsCertify bool             `json:"customs_certify"`
	CustomsSigner  string           `json:"customs_signer,omitempty"`
	CustomsItems   []APICustomsItem `json:"customs_items"`
}

// APIShipmentRequest creates or rates a shipment.
// POST /shipments and POST /beta/rates
type APIShipmentRequest struct {
	ToAddress   APIAddress      `json:"to_address"`
	FromAddress APIAddress      `json:"from_address"`
	Parcel      APIParcel       `json:"parcel"`
	CustomsInfo *APICustomsInfo `json:"customs_info,omitempty"`
	Reference   string          `json:"reference,omitempty"`
}

// APIRate is one carrier+service quote.
type APIRate struct {
	ID               string `json:"id"`
	Carrier          string `json:"carrier"`
	CarrierAccountID string `json:"carrier_account_id"`
	Service          string `json:"service"`
	Rate             string `json:"rate"` // decimal string
	Currency         string `json:"currency"`
	DeliveryDays     int    `json:"delivery_days,omitempty"`
}

// StatelessRatesResponse is the response from POST /beta/rates.
type StatelessRatesResponse struct {
	Rates []APIRate `json:"rates"`
}

// APIPostageLabel is the purchased label artifact.
type APIPostageLabel struct {
	LabelURL    string `json:"label_url"`
	LabelPDFURL string `json:"label_pdf_url,omitempty"`
	LabelZPLURL string `json:"label_zpl_url,omitempty"`
}

// APIForm is an auxiliary document (e.g. commercial invoice).
type APIForm struct {
	FormType   string `json:"form_type"`
	FormURL    string `json:"form_url"`
	FormNumber string `json:"form_number,omitempty"`
}

// APIShipment represents an EasyPost shipment.
type APIShipment struct {
	ID            string           `json:"id"`
	Status        string           `json:"status"`
	TrackingCode  string           `json:"tracking_code,omitempty"`
	Rates         []APIRate        `json:"rates,omitempty"`
	SelectedRate  *APIRate         `json:"selected_rate,omitempty"`
	PostageLabel  *APIPostageLabel `json:"postage_label,omitempty"`
	Forms         []APIForm        `json:"forms,omitempty"`
	Tracker       *APITracker      `json:"tracker,omitempty"`
	Insurance     string           `json:"insurance,omitempty"`
	RefundStatus  string           `json:"refund_status,omitempty"`
}

// BuyRequest purchases a rate.
// POST /shipments/{id}/buy
type BuyRequest struct {
	Rate      BuyRate `json:"rate"`
	Insurance string  `json:"insurance,omitempty"` // decimal string
}

// BuyRate names the rate to buy.
type BuyRate struct {
	ID string `json:"id"`
}

// TrackerRequest registers a tracker.
// POST /trackers
type TrackerRequest struct {
	TrackingCode string `json:"tracking_code"`
	Carrier      string `json:"carrier,omitempty"`
}

// APITracker represents an EasyPost tracker.
type APITracker struct {
	ID           string `json:"id"`
	TrackingCode string `json:"tracking_code"`
	Carrier      string `json:"carrier,omitempty"`
	Status       string `json:"status"`
}

// APIRefund represents a refund request result.
type APIRefund struct {
	ID           string `json:"id"`
	ShipmentID   string `json:"shipment_id"`
	Status       string `json:"status"`
}

// ScanFormRequest creates a scan form from shipments.
// POST /scan_forms
type ScanFormRequest struct {
	Shipments []ScanFormShipment `json:"shipments"`
}

// ScanFormShipment names one member shipment.
type ScanFormShipment struct {
	ID string `json:"id"`
}

// APIScanForm represents an EasyPost scan form.
type APIScanForm struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	FormURL string `json:"form_url,omitempty"`
	BatchID string `json:"batch_id,omitempty"`
}

// BatchRequest creates a batch of shipments.
// POST /batches
type BatchRequest struct {
	Shipments []ScanFormShipment `json:"shipments"`
}

// APIBatch represents an EasyPost batch.
type APIBatch struct {
	ID     string `json:"id"`
	State  string `json:"state"`
}

// APIPickupRequest requests a carrier pickup.
// POST /pickups
type APIPickupRequest struct {
	Batch        *BatchReference `json:"batch,omitempty"`
	Address      APIAddress      `json:"address"`
	MinDatetime  string          `json:"min_datetime"` // RFC 3339
	MaxDatetime  string          `json:"max_datetime"`
	Instructions string          `json:"instructions,omitempty"`
}

// BatchReference names the batch being picked up.
type BatchReference struct {
	ID string `json:"id"`
}

// APIPickupRate is one offered pickup rate.
type APIPickupRate struct {
	Carrier  string `json:"carrier"`
	Service  string `json:"service"`
	Rate     string `json:"rate"`
	Currency string `json:"currency"`
}

// APIPickup represents an EasyPost pickup.
type APIPickup struct {
	ID           string          `json:"id"`
	Status       string          `json:"status"`
	PickupRates  []APIPickupRate `json:"pickup_rates,omitempty"`
	Confirmation string          `json:"confirmation,omitempty"`
}

// PickupBuyRequest purchases a pickup rate.
// POST /pickups/{id}/buy
type PickupBuyRequest struct {
	Carrier string `json:"carrier"`
	Service string `json:"service"`
}

// WebhookRequest registers or updates a webhook endpoint.
type WebhookRequest struct {
	URL string `json:"url"`
}

// APIWebhook represents a registered webhook endpoint.
type APIWebhook struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// WebhookList wraps the webhook listing response.
type WebhookList struct {
	Webhooks []APIWebhook `json:"webhooks"`
}

// FieldError is one entry of the provider's structured error array.
type FieldError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// APIError represents an error payload from the EasyPost API.
type APIError struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Errors  []FieldError `json:"errors,omitempty"`
}

func (e *APIError) Error() string {
	return e.Code + ": " + e.Message
}

// FlatMessage joins the message with any field-level errors.
func (e *APIError) FlatMessage() string {
	msg := e.Message
	for _, fe := range e.Errors {
		if fe.Message == "" {
			continue
		}
		if msg != "" {
			msg += "; "
		}
		if fe.Field != "" {
			msg += fe.Field + ": "
		}
		msg += fe.Message
	}
	return msg
}
