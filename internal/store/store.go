// Package store defines the persistence seams for the fulfillment service.
// The query layer itself is a collaborator; this package carries only the
// interfaces the core consumes plus an in-memory implementation used by
// tests and default wiring.
package store

import (
	"context"
	"errors"

	"github.com/parcelforge/fulfillment/internal/domain"
)

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("entity not found")

// FulfillmentStore persists fulfillments.
type FulfillmentStore interface {
	GetFulfillment(ctx context.Context, id string) (*domain.Fulfillment, error)
	// FindFulfillmentsByOrder returns all fulfillments owning lines of the
	// given order, any state.
	FindFulfillmentsByOrder(ctx context.Context, orderID string) ([]*domain.Fulfillment, error)
	// FindFulfillmentByTracking matches a tracking code plus tracker id,
	// falling back to tracking code plus shipment id for records created
	// before tracker ids were recorded.
	FindFulfillmentByTracking(ctx context.Context, trackingCode, trackerID, shipmentID string) (*domain.Fulfillment, error)
	SaveFulfillment(ctx context.Context, f *domain.Fulfillment) error
}

// OrderStore persists orders.
type OrderStore interface {
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	SaveOrder(ctx context.Context, o *domain.Order) error
}

// VariantStore persists product variants and their stock levels.
type VariantStore interface {
	GetVariant(ctx context.Context, id string) (*domain.ProductVariant, error)
	SaveVariant(ctx context.Context, v *domain.ProductVariant) error
}

// PickupStore persists pickups.
type PickupStore interface {
	GetPickup(ctx context.Context, id string) (*domain.Pickup, error)
	// FindOpenPickupByCarrier returns an Open pickup for the carrier, or
	// ErrNotFound.
	FindOpenPickupByCarrier(ctx context.Context, carrier string) (*domain.Pickup, error)
	// FindPickupByBatch returns the pickup owning the provider batch, or
	// ErrNotFound.
	FindPickupByBatch(ctx context.Context, batchID string) (*domain.Pickup, error)
	SavePickup(ctx context.Context, p *domain.Pickup) error
}

// HistoryStore appends audit records.
type HistoryStore interface {
	AppendHistory(ctx context.Context, entry *domain.HistoryEntry) error
	ListHistoryByFulfillment(ctx context.Context, fulfillmentID string) ([]*domain.HistoryEntry, error)
	ListHistoryByPickup(ctx context.Context, pickupID string) ([]*domain.HistoryEntry, error)
}

// Store aggregates all persistence seams.
type Store interface {
	FulfillmentStore
	OrderStore
	VariantStore
	PickupStore
	HistoryStore
}
