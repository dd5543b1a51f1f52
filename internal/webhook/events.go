package webhook

import (
	"encoding/json"
	"fmt"
)

// Event descriptions the service handles. Other descriptions are accepted
// and ignored.
const (
	EventTrackerCreated   = "tracker.created"
	EventTrackerUpdated   = "tracker.updated"
	EventRefundSuccessful = "refund.successful"
	EventBatchCreated     = "batch.created"
	EventBatchUpdated     = "batch.updated"
	EventScanFormCreated  = "scan_form.created"
	EventScanFormUpdated  = "scan_form.updated"
)

// Event is one inbound provider event. The payload is a discriminated union
// keyed by Description; Result holds the raw object for typed decoding.
type Event struct {
	ID          string          `json:"id"`
	Description string          `json:"description"`
	Mode        string          `json:"mode"`
	Result      json.RawMessage `json:"result"`
}

// ParseEvent decodes a verified webhook body.
func ParseEvent(body []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("decoding webhook event: %w", err)
	}
	if ev.Description == "" {
		return nil, fmt.Errorf("webhook event has no description")
	}
	return &ev, nil
}

// TrackerResult is the result object of tracker.* events.
type TrackerResult struct {
	ID           string `json:"id"`
	TrackingCode string `json:"tracking_code"`
	ShipmentID   string `json:"shipment_id"`
	Status       string `json:"status"`
	StatusDetail string `json:"status_detail"`
	Carrier      string `json:"carrier"`

	TrackingDetails []TrackingDetail `json:"tracking_details"`
}

// TrackingDetail is one scan event within a tracker result.
type TrackingDetail struct {
	Status   string           `json:"status"`
	Message  string           `json:"message"`
	Datetime string           `json:"datetime"`
	Location TrackingLocation `json:"tracking_location"`
}

// TrackingLocation is the place a scan event happened.
type TrackingLocation struct {
	City    string `json:"city"`
	State   string `json:"state"`
	Country string `json:"country"`
	Zip     string `json:"zip"`
}

// String renders the location for history records.
func (l TrackingLocation) String() string {
	out := l.City
	if l.State != "" {
		if out != "" {
			out += ", "
		}
		out += l.State
	}
	if l.Country != "" {
		if out != "" {
			out += ", "
		}
		out += l.Country
	}
	return out
}

// RefundResult is the result object of refund.successful events.
type RefundResult struct {
	ID           string `json:"id"`
	ShipmentID   string `json:"shipment_id"`
	TrackingCode string `json:"tracking_code"`
	Status       string `json:"status"`
}

// BatchResult is the result object of batch.* events.
type BatchResult struct {
	ID           string `json:"id"`
	State        string `json:"state"`
	ScanFormID   string `json:"scan_form_id"`
	NumShipments int    `json:"num_shipments"`
}

// ScanFormResult is the result object of scan_form.* events.
type ScanFormResult struct {
	ID      string `json:"id"`
	BatchID string `json:"batch_id"`
	FormURL string `json:"form_url"`
	Status  string `json:"status"`
}

// DecodeTracker decodes the event result as a tracker.
func (e *Event) DecodeTracker() (*TrackerResult, error) {
	var r TrackerResult
	if err := json.Unmarshal(e.Result, &r); err != nil {
		return nil, fmt.Errorf("decoding tracker result: %w", err)
	}
	return &r, nil
}

// DecodeRefund decodes the event result as a refund.
func (e *Event) DecodeRefund() (*RefundResult, error) {
	var r RefundResult
	if err := json.Unmarshal(e.Result, &r); err != nil {
		return nil, fmt.Errorf("decoding refund result: %w", err)
	}
	return &r, nil
}

// DecodeBatch decodes the event result as a batch.
func (e *Event) DecodeBatch() (*BatchResult, error) {
	var r BatchResult
	if err := json.Unmarshal(e.Result, &r); err != nil {
		return nil, fmt.Errorf("decoding batch result: %w", err)
	}
	return &r, nil
}

// DecodeScanForm decodes the event result as a scan form.
func (e *Event) DecodeScanForm() (*ScanFormResult, error) {
	var r ScanFormResult
	if err := json.Unmarshal(e.Result, &r); err != nil {
		return nil, fmt.Errorf("decoding scan form result: %w", err)
	}
	return &r, nil
}
