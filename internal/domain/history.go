package domain

import (
	"time"
)

// HistoryKind discriminates history entry payloads.
type HistoryKind string

const (
	HistoryTrackingUpdated    HistoryKind = "tracking_updated"
	HistoryPurchased          HistoryKind = "purchased"
	HistoryRefunded           HistoryKind = "refunded"
	HistoryServiceChanged     HistoryKind = "service_changed"
	HistoryStateTransition    HistoryKind = "state_transition"
	HistoryPickupStateChanged HistoryKind = "pickup_state_changed"
	HistoryBatchCreated       HistoryKind = "batch_created"
	HistoryScanFormCreated    HistoryKind = "scan_form_created"
	HistoryPickupScheduled    HistoryKind = "pickup_scheduled"
)

// HistoryPayload is the closed set of history entry payloads. Each kind
// carries its own strongly typed struct.
type HistoryPayload interface {
	Kind() HistoryKind
}

// TrackingUpdatedPayload records a carrier tracking status change.
type TrackingUpdatedPayload struct {
	TrackingCode string
	Status       string
	Location     string
}

func (TrackingUpdatedPayload) Kind() HistoryKind { return HistoryTrackingUpdated }

// PurchasedPayload records a label purchase.
type PurchasedPayload struct {
	ShipmentID    string
	RateID        string
	TrackingCode  string
	CostCents     int64
	InsuredCents  int64
	LabelURL      string
	InvoiceNumber string
}

func (PurchasedPayload) Kind() HistoryKind { return HistoryPurchased }

// RefundedPayload records a shipment refund request.
type RefundedPayload struct {
	ShipmentID   string
	RefundStatus string
}

func (RefundedPayload) Kind() HistoryKind { return HistoryRefunded }

// ServiceChangedPayload records a carrier/service reselection.
type ServiceChangedPayload struct {
	FromCarrier string
	FromService string
	ToCarrier   string
	ToService   string
}

func (ServiceChangedPayload) Kind() HistoryKind { return HistoryServiceChanged }

// StateTransitionPayload records a fulfillment state transition.
type StateTransitionPayload struct {
	FulfillmentID string
	From          FulfillmentState
	To            FulfillmentState
}

func (StateTransitionPayload) Kind() HistoryKind { return HistoryStateTransition }

// PickupStateChangedPayload records a pickup open/close event.
type PickupStateChangedPayload struct {
	From PickupState
	To   PickupState
}

func (PickupStateChangedPayload) Kind() HistoryKind { return HistoryPickupStateChanged }

// BatchCreatedPayload records creation of a provider batch.
type BatchCreatedPayload struct {
	BatchID string
	Status  string
}

func (BatchCreatedPayload) Kind() HistoryKind { return HistoryBatchCreated }

// ScanFormCreatedPayload records creation of a provider scan form.
type ScanFormCreatedPayload struct {
	ScanFormID  string
	ScanFormURL string
	BatchID     string
}

func (ScanFormCreatedPayload) Kind() HistoryKind { return HistoryScanFormCreated }

// PickupScheduledPayload records a purchased carrier pickup window.
type PickupScheduledPayload struct {
	ProviderPickupID string
	WindowStart      time.Time
	WindowEnd        time.Time
	CostCents        int64
}

func (PickupScheduledPayload) Kind() HistoryKind { return HistoryPickupScheduled }

// HistoryEntry is an append-only audit record attached to a fulfillment,
// order, or pickup.
type HistoryEntry struct {
	ID            string
	OrderID       string
	FulfillmentID string
	PickupID      string
	Payload       HistoryPayload
	AdminOnly     bool
	CreatedAt     time.Time
}
