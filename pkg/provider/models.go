package provider

import (
	"time"

	"github.com/shopspring/decimal"
)

// Address is a provider-side postal address.
type Address struct {
	Name    string
	Company string
	Street1 string
	Street2 string
	City    string
	State   string
	Zip     string
	Country string
	Phone   string
	Email   string
}

// Parcel describes the physical package. Weight in grams, sides in
// centimetres; the client converts to the provider's native units.
type Parcel struct {
	WeightGrams int
	LengthCm    int
	WidthCm     int
	HeightCm    int
}

// CustomsItem is one line of a customs declaration.
type CustomsItem struct {
	Description   string
	Quantity      int
	ValueCents    int64
	WeightGrams   int
	HSCode        string
	OriginCountry string
	Currency      string
}

// ShipmentRequest is the provider-agnostic request for rating or creating a
// shipment.
type ShipmentRequest struct {
	From         Address
	To           Address
	Parcel       Parcel
	CustomsItems []CustomsItem
	Reference    string
}

// Rate is one carrier+service quote. Amount is the provider's native decimal
// currency string.
type Rate struct {
	ID               string
	Carrier          string
	CarrierAccountID string
	Service          string
	Amount           string
	Currency         string
	DeliveryDays     int
}

// AmountCents parses the native decimal amount into integer minor units.
func (r Rate) AmountCents() (int64, error) {
	return ToCents(r.Amount)
}

// Shipment is a provider shipment, created (rated) or purchased.
type Shipment struct {
	ID            string
	TrackingCode  string
	TrackerID     string
	Rates         []Rate
	SelectedRate  *Rate
	LabelURL      string
	FormURL       string
	FormNumber    string
	InsuredAmount string
	Status        string
	RefundStatus  string
}

// Tracker is a provider tracker object for a tracking code.
type Tracker struct {
	ID           string
	TrackingCode string
	Carrier      string
	Status       string
}

// Refund is the result of a refund request.
type Refund struct {
	ID         string
	ShipmentID string
	Status     string
}

// ScanForm is a provider scan form; creating one implicitly creates a batch.
type ScanForm struct {
	ID      string
	URL     string
	BatchID string
	Status  string
}

// Batch is a provider batch of shipments.
type Batch struct {
	ID     string
	Status string
}

// PickupRequest asks the carrier to collect a batch at an address.
type PickupRequest struct {
	BatchID      string
	Address      Address
	MinDatetime  time.Time
	MaxDatetime  time.Time
	Instructions string
}

// PickupRate is one offered rate for a pickup.
type PickupRate struct {
	Carrier  string
	Service  string
	Amount   string
	Currency string
}

// AmountCents parses the native decimal amount into integer minor units.
func (r PickupRate) AmountCents() (int64, error) {
	return ToCents(r.Amount)
}

// Pickup is a provider pickup, created or purchased.
type Pickup struct {
	ID           string
	Status       string
	Rates        []PickupRate
	Confirmation string
}

// Webhook is a registered provider webhook endpoint.
type Webhook struct {
	ID  string
	URL string
}

// ToCents converts a provider decimal currency string into integer minor
// units, rounding half up.
func ToCents(amount string) (int64, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return 0, err
	}
	return d.Mul(decimal.NewFromInt(100)).Round(0).IntPart(), nil
}

// FromCents formats integer minor units as a provider decimal currency
// string with two fractional digits.
func FromCents(cents int64) string {
	return decimal.NewFromInt(cents).Div(decimal.NewFromInt(100)).StringFixed(2)
}
