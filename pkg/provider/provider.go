// Package provider defines the abstraction over the multi-carrier shipping
// provider used for rating, purchasing, manifesting, and tracking shipments.
package provider

import (
	"context"
)

// Provider is the interface the carrier provider client must implement.
type Provider interface {
	// Name returns the provider identifier (e.g. "easypost").
	Name() string

	// GetRates returns stateless rate quotes for a shipment request without
	// creating a shipment.
	GetRates(ctx context.Context, req *ShipmentRequest) ([]Rate, error)

	// CreateShipment registers a shipment with the provider and returns it
	// with its rated options. The label is not purchased.
	CreateShipment(ctx context.Context, req *ShipmentRequest) (*Shipment, error)

	// BuyShipment purchases the given rate of a previously created shipment.
	// insuredCents > 0 requests insurance for that value.
	BuyShipment(ctx context.Context, shipmentID, rateID string, insuredCents int64) (*Shipment, error)

	// CreateTracker registers a standalone tracker for a tracking code so the
	// provider pushes tracking webhooks for it.
	CreateTracker(ctx context.Context, trackingCode, carrier string) (*Tracker, error)

	// RefundShipment requests a refund for a purchased shipment.
	RefundShipment(ctx context.Context, shipmentID string) (*Refund, error)

	// CreateScanForm creates a scan form covering the given shipments. The
	// provider implicitly creates a batch for the form.
	CreateScanForm(ctx context.Context, shipmentIDs []string) (*ScanForm, error)

	// CreateBatch creates a bare batch covering the given shipments.
	CreateBatch(ctx context.Context, shipmentIDs []string) (*Batch, error)

	// CreatePickup requests a carrier pickup for a batch at an address within
	// a time window. The returned pickup carries offered rates.
	CreatePickup(ctx context.Context, req *PickupRequest) (*Pickup, error)

	// BuyPickup purchases a pickup at the given carrier/service rate.
	BuyPickup(ctx context.Context, pickupID, carrier, service string) (*Pickup, error)

	// ListWebhooks returns the provider's registered webhook endpoints.
	ListWebhooks(ctx context.Context) ([]Webhook, error)

	// CreateWebhook registers a webhook endpoint.
	CreateWebhook(ctx context.Context, url string) (*Webhook, error)

	// UpdateWebhook re-points an existing webhook endpoint.
	UpdateWebhook(ctx context.Context, id, url string) (*Webhook, error)

	// DeleteWebhook removes a webhook endpoint.
	DeleteWebhook(ctx context.Context, id string) error
}
