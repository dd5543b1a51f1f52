// Package generated holds the wire types of the operational GraphQL schema.
package generated

// Money is a decimal amount in a named currency.
type Money struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

// Error is an operation-level error.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// FulfillmentLineInput names one order line and a quantity.
type FulfillmentLineInput struct {
	OrderLineID string `json:"orderLineId"`
	Quantity    int    `json:"quantity"`
}

// CreateFulfillmentInput creates a fulfillment over one or more orders.
type CreateFulfillmentInput struct {
	OrderIDs     []string                `json:"orderIds"`
	Lines        []*FulfillmentLineInput `json:"lines"`
	Manual       *bool                   `json:"manual,omitempty"`
	TrackingCode *string                 `json:"trackingCode,omitempty"`
}

// TransitionFulfillmentInput requests a state transition.
type TransitionFulfillmentInput struct {
	FulfillmentID string `json:"fulfillmentId"`
	To            string `json:"to"`
}

// Fulfillment is the API view of a fulfillment.
type Fulfillment struct {
	ID            string  `json:"id"`
	State         string  `json:"state"`
	Carrier       string  `json:"carrier"`
	Service       string  `json:"service"`
	Manual        bool    `json:"manual"`
	TrackingCode  *string `json:"trackingCode,omitempty"`
	LabelURL      *string `json:"labelUrl,omitempty"`
	PickupID      *string `json:"pickupId,omitempty"`
	RateCost      *Money  `json:"rateCost,omitempty"`
	InsuranceCost *Money  `json:"insuranceCost,omitempty"`
	PurchasedAt   *string `json:"purchasedAt,omitempty"`
}

// TransitionResult reports a transition attempt. A rejected transition is a
// normal result, not an error.
type TransitionResult struct {
	Ok          bool         `json:"ok"`
	Reason      *string      `json:"reason,omitempty"`
	Fulfillment *Fulfillment `json:"fulfillment,omitempty"`
}

// QuoteOrderInput requests carrier quotes for an order's unfulfilled lines.
type QuoteOrderInput struct {
	OrderID string                  `json:"orderId"`
	Lines   []*FulfillmentLineInput `json:"lines"`
}

// ServiceQuote is one offered service with its billed total and insurance.
type ServiceQuote struct {
	RateID          string `json:"rateId"`
	Service         string `json:"service"`
	Total           *Money `json:"total"`
	AmountToCollect *Money `json:"amountToCollect"`
	InsuranceCost   *Money `json:"insuranceCost"`
}

// CarrierQuote groups a carrier's offered services.
type CarrierQuote struct {
	Code     string          `json:"code"`
	Name     string          `json:"name"`
	Services []*ServiceQuote `json:"services"`
}

// AssignPickupInput adds purchased fulfillments to open pickups.
type AssignPickupInput struct {
	FulfillmentIDs []string `json:"fulfillmentIds"`
}

// PickupAssignment is one fulfillment placed into a pickup.
type PickupAssignment struct {
	FulfillmentID string `json:"fulfillmentId"`
	PickupID      string `json:"pickupId"`
}

// PickupRejection is one fulfillment skipped during assignment.
type PickupRejection struct {
	FulfillmentID string `json:"fulfillmentId"`
	Reason        string `json:"reason"`
}

// AssignPickupResult reports per-fulfillment assignment outcomes.
type AssignPickupResult struct {
	Assigned []*PickupAssignment `json:"assigned"`
	Rejected []*PickupRejection  `json:"rejected"`
}

// RemoveFromPickupInput removes fulfillments from an open pickup.
type RemoveFromPickupInput struct {
	PickupID       string   `json:"pickupId"`
	FulfillmentIDs []string `json:"fulfillmentIds"`
}

// ClosePickupInput closes a pickup, tendering its members.
type ClosePickupInput struct {
	PickupID string `json:"pickupId"`
}

// SchedulePickupInput buys a carrier pickup window. Times are RFC 3339.
type SchedulePickupInput struct {
	PickupID    string `json:"pickupId"`
	WindowStart string `json:"windowStart"`
	WindowEnd   string `json:"windowEnd"`
}

// LabelItemInput is one raw ZPL label payload. Zpl is base64 on the wire.
type LabelItemInput struct {
	ID  string `json:"id"`
	Zpl []byte `json:"zpl"`
}

// ConvertLabelsInput renders ZPL labels into combined documents.
type ConvertLabelsInput struct {
	Items []*LabelItemInput `json:"items"`
}

// LabelResult is one item's rendered output. Items batched together share
// the same document; PageOffset locates the item's pages within it.
type LabelResult struct {
	ID         string  `json:"id"`
	Document   []byte  `json:"document,omitempty"`
	PageOffset int     `json:"pageOffset"`
	PageCount  int     `json:"pageCount"`
	Error      *string `json:"error,omitempty"`
}

// Pickup is the API view of a pickup.
type Pickup struct {
	ID               string   `json:"id"`
	State            string   `json:"state"`
	Carrier          string   `json:"carrier"`
	FulfillmentIDs   []string `json:"fulfillmentIds"`
	BatchID          *string  `json:"batchId,omitempty"`
	ScanFormURL      *string  `json:"scanFormUrl,omitempty"`
	ProviderPickupID *string  `json:"providerPickupId,omitempty"`
	WindowStart      *string  `json:"windowStart,omitempty"`
	WindowEnd        *string  `json:"windowEnd,omitempty"`
	Cost             *Money   `json:"cost,omitempty"`
}
