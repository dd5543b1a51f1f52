package domain

import (
	"time"
)

// PickupState represents the state of a carrier pickup aggregate.
type PickupState string

const (
	PickupOpen   PickupState = "Open"
	PickupClosed PickupState = "Closed"
)

// Pickup groups purchased fulfillments for a single carrier into one
// scheduled collection. Membership may only change while the pickup is Open.
type Pickup struct {
	ID             string
	State          PickupState
	Carrier        string
	FulfillmentIDs []string

	// Provider-side manifest identifiers. A scan form implicitly creates a
	// batch; a bare batch is the fallback when scan-form creation fails.
	BatchID     string
	ScanFormID  string
	ScanFormURL string

	ProviderPickupID string
	WindowStart      *time.Time
	WindowEnd        *time.Time
	CostCents        int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasMember reports whether the fulfillment is a member of this pickup.
func (p *Pickup) HasMember(fulfillmentID string) bool {
	for _, id := range p.FulfillmentIDs {
		if id == fulfillmentID {
			return true
		}
	}
	return false
}

// RemoveMember drops the fulfillment from the member list if present.
func (p *Pickup) RemoveMember(fulfillmentID string) {
	for i, id := range p.FulfillmentIDs {
		if id == fulfillmentID {
			p.FulfillmentIDs = append(p.FulfillmentIDs[:i], p.FulfillmentIDs[i+1:]...)
			return
		}
	}
}
