package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/parcelforge/fulfillment/internal/domain"
)

// Memory is an in-memory Store implementation. Entities are stored by value
// and copied on the way in and out, so callers never share mutable state.
type Memory struct {
	mu           sync.RWMutex
	fulfillments map[string]domain.Fulfillment
	orders       map[string]domain.Order
	variants     map[string]domain.ProductVariant
	pickups      map[string]domain.Pickup
	history      []domain.HistoryEntry
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		fulfillments: make(map[string]domain.Fulfillment),
		orders:       make(map[string]domain.Order),
		variants:     make(map[string]domain.ProductVariant),
		pickups:      make(map[string]domain.Pickup),
	}
}

// GetFulfillment implements FulfillmentStore.
func (m *Memory) GetFulfillment(ctx context.Context, id string) (*domain.Fulfillment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.fulfillments[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := f
	return &out, nil
}

// FindFulfillmentsByOrder implements FulfillmentStore.
func (m *Memory) FindFulfillmentsByOrder(ctx context.Context, orderID string) ([]*domain.Fulfillment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.Fulfillment
	for _, f := range m.fulfillments {
		for _, oid := range f.OrderIDs {
			if oid == orderID {
				out := f
				result = append(result, &out)
				break
			}
		}
	}
	return result, nil
}

// FindFulfillmentByTracking implements FulfillmentStore.
func (m *Memory) FindFulfillmentByTracking(ctx context.Context, trackingCode, trackerID, shipmentID string) (*domain.Fulfillment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if trackerID != "" {
		for _, f := range m.fulfillments {
			if f.TrackingCode == trackingCode && f.TrackerID == trackerID {
				out := f
				return &out, nil
			}
		}
	}
	// Fallback for records persisted before tracker ids were recorded.
	if shipmentID != "" {
		for _, f := range m.fulfillments {
			if f.TrackingCode == trackingCode && f.ShipmentID == shipmentID {
				out := f
				return &out, nil
			}
		}
	}
	return nil, ErrNotFound
}

// SaveFulfillment implements FulfillmentStore.
func (m *Memory) SaveFulfillment(ctx context.Context, f *domain.Fulfillment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f.ID == "" {
		f.ID = uuid.New().String()
		f.CreatedAt = time.Now()
	}
	f.UpdatedAt = time.Now()
	m.fulfillments[f.ID] = *f
	return nil
}

// GetOrder implements OrderStore.
func (m *Memory) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := o
	return &out, nil
}

// SaveOrder implements OrderStore.
func (m *Memory) SaveOrder(ctx context.Context, o *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o.ID == "" {
		o.ID = uuid.New().String()
		o.CreatedAt = time.Now()
	}
	o.UpdatedAt = time.Now()
	m.orders[o.ID] = *o
	return nil
}

// GetVariant implements VariantStore.
func (m *Memory) GetVariant(ctx context.Context, id string) (*domain.ProductVariant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.variants[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := v
	return &out, nil
}

// SaveVariant implements VariantStore.
func (m *Memory) SaveVariant(ctx context.Context, v *domain.ProductVariant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	m.variants[v.ID] = *v
	return nil
}

// GetPickup implements PickupStore.
func (m *Memory) GetPickup(ctx context.Context, id string) (*domain.Pickup, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pickups[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := p
	out.FulfillmentIDs = append([]string(nil), p.FulfillmentIDs...)
	return &out, nil
}

// FindOpenPickupByCarrier implements PickupStore.
func (m *Memory) FindOpenPickupByCarrier(ctx context.Context, carrier string) (*domain.Pickup, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.pickups {
		if p.Carrier == carrier && p.State == domain.PickupOpen {
			out := p
			out.FulfillmentIDs = append([]string(nil), p.FulfillmentIDs...)
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

// FindPickupByBatch implements PickupStore.
func (m *Memory) FindPickupByBatch(ctx context.Context, batchID string) (*domain.Pickup, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.pickups {
		if p.BatchID == batchID {
			out := p
			out.FulfillmentIDs = append([]string(nil), p.FulfillmentIDs...)
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

// SavePickup implements PickupStore.
func (m *Memory) SavePickup(ctx context.Context, p *domain.Pickup) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.New().String()
		p.CreatedAt = time.Now()
	}
	p.UpdatedAt = time.Now()
	stored := *p
	stored.FulfillmentIDs = append([]string(nil), p.FulfillmentIDs...)
	m.pickups[p.ID] = stored
	return nil
}

// AppendHistory implements HistoryStore.
func (m *Memory) AppendHistory(ctx context.Context, entry *domain.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	m.history = append(m.history, *entry)
	return nil
}

// ListHistoryByFulfillment implements HistoryStore.
func (m *Memory) ListHistoryByFulfillment(ctx context.Context, fulfillmentID string) ([]*domain.HistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.HistoryEntry
	for i := range m.history {
		if m.history[i].FulfillmentID == fulfillmentID {
			out := m.history[i]
			result = append(result, &out)
		}
	}
	return result, nil
}

// ListHistoryByPickup implements HistoryStore.
func (m *Memory) ListHistoryByPickup(ctx context.Context, pickupID string) ([]*domain.HistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.HistoryEntry
	for i := range m.history {
		if m.history[i].PickupID == pickupID {
			out := m.history[i]
			result = append(result, &out)
		}
	}
	return result, nil
}

var _ Store = (*Memory)(nil)
