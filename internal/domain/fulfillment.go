// Package domain holds the core entities of the fulfillment service.
package domain

import (
	"time"
)

// FulfillmentState represents the lifecycle state of a fulfillment.
type FulfillmentState string

const (
	FulfillmentCreated   FulfillmentState = "Created"
	FulfillmentPending   FulfillmentState = "Pending"
	FulfillmentOnHold    FulfillmentState = "OnHold"
	FulfillmentPurchased FulfillmentState = "Purchased"
	FulfillmentTendered  FulfillmentState = "Tendered"
	FulfillmentShipped   FulfillmentState = "Shipped"
	FulfillmentDelivered FulfillmentState = "Delivered"
	FulfillmentCancelled FulfillmentState = "Cancelled"
)

// ActiveFulfillmentStates are the states in which a fulfillment's quantities
// count as committed against its order lines.
var ActiveFulfillmentStates = []FulfillmentState{
	FulfillmentPurchased,
	FulfillmentTendered,
	FulfillmentShipped,
	FulfillmentDelivered,
}

// IsActive reports whether the state counts toward order line coverage.
func (s FulfillmentState) IsActive() bool {
	switch s {
	case FulfillmentPurchased, FulfillmentTendered, FulfillmentShipped, FulfillmentDelivered:
		return true
	}
	return false
}

// IsTerminal reports whether the state admits no further transitions.
func (s FulfillmentState) IsTerminal() bool {
	return s == FulfillmentDelivered || s == FulfillmentCancelled
}

// FulfillmentLine links a fulfillment to a quantity of one order line.
type FulfillmentLine struct {
	OrderLineID string
	Quantity    int
}

// Fulfillment is one physical shipment (or manual equivalent) covering some
// quantity of one or more orders' lines. A fulfillment may span multiple
// orders that share a customer and shipping address.
type Fulfillment struct {
	ID           string
	State        FulfillmentState
	HandlerCode  string
	TrackingCode string
	Lines        []FulfillmentLine
	OrderIDs     []string

	// Chosen carrier and service, copied from the order at creation.
	Carrier string
	Service string

	// Estimated package dimensions. Weight in grams, sides in centimetres.
	WeightGrams int
	LengthCm    int
	WidthCm     int
	HeightCm    int

	// Provider-side identifiers.
	ShipmentID string
	RateID     string
	TrackerID  string

	PurchasedAt        *time.Time
	LabelURL           string
	RateCostCents      int64
	InsuranceCostCents int64

	// Commercial invoice, populated on purchase for customs shipments.
	InvoiceURL    string
	InvoiceNumber string

	// Manual fulfillments bypass shipment creation and purchase.
	Manual bool

	LabelScannedAt *time.Time

	// At most one owning pickup; empty while unassigned.
	PickupID string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasDimensions reports whether all dimension fields required for a shipment
// request are set.
func (f *Fulfillment) HasDimensions() bool {
	return f.WeightGrams > 0 && f.LengthCm > 0 && f.WidthCm > 0 && f.HeightCm > 0
}

// LineQuantity returns the quantity this fulfillment covers for the given
// order line.
func (f *Fulfillment) LineQuantity(orderLineID string) int {
	for _, l := range f.Lines {
		if l.OrderLineID == orderLineID {
			return l.Quantity
		}
	}
	return 0
}
