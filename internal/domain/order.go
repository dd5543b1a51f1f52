package domain

import (
	"time"
)

// OrderState represents the order status ladder. Once an order is placed its
// state is derived from its fulfillments, never set independently.
type OrderState string

const (
	OrderAddingItems                OrderState = "AddingItems"
	OrderArrangingPayment           OrderState = "ArrangingPayment"
	OrderPaymentAuthorized          OrderState = "PaymentAuthorized"
	OrderPaymentSettled             OrderState = "PaymentSettled"
	OrderOnHold                     OrderState = "OnHold"
	OrderPartiallyShipped           OrderState = "PartiallyShipped"
	OrderShipped                    OrderState = "Shipped"
	OrderPartiallyDelivered         OrderState = "PartiallyDelivered"
	OrderDelivered                  OrderState = "Delivered"
	OrderCancelled                  OrderState = "Cancelled"
	OrderModifying                  OrderState = "Modifying"
	OrderArrangingAdditionalPayment OrderState = "ArrangingAdditionalPayment"
)

// IsPlaced reports whether the order is in the placed state set, i.e. the set
// in which fulfillment reconciliation applies.
func (s OrderState) IsPlaced() bool {
	switch s {
	case OrderPaymentSettled, OrderOnHold, OrderPartiallyShipped, OrderShipped, OrderPartiallyDelivered:
		return true
	}
	return false
}

// OrderLine is one purchasable line of an order.
type OrderLine struct {
	ID               string
	ProductVariantID string
	Quantity         int
	UnitPriceCents   int64
}

// ShippingAddress is the destination of an order's fulfillments.
type ShippingAddress struct {
	FullName    string
	Company     string
	StreetLine1 string
	StreetLine2 string
	City        string
	Province    string
	PostalCode  string
	CountryCode string
	Phone       string
	Email       string
}

// Order is a placed customer order owning zero or more fulfillments.
type Order struct {
	ID           string
	Code         string
	State        OrderState
	Lines        []OrderLine
	CurrencyCode string

	// Carrier/service selected at checkout, copied into fulfillments.
	ShippingCarrier string
	ShippingService string

	Address ShippingAddress

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Line returns the order line with the given id, or nil.
func (o *Order) Line(id string) *OrderLine {
	for i := range o.Lines {
		if o.Lines[i].ID == id {
			return &o.Lines[i]
		}
	}
	return nil
}

// LineValueCents returns the total value of the given fulfillment lines
// priced against this order's lines.
func (o *Order) LineValueCents(lines []FulfillmentLine) int64 {
	var total int64
	for _, fl := range lines {
		if ol := o.Line(fl.OrderLineID); ol != nil {
			total += ol.UnitPriceCents * int64(fl.Quantity)
		}
	}
	return total
}

// ProductVariant carries the stock and physical attributes needed to estimate
// packages and move stock.
type ProductVariant struct {
	ID             string
	SKU            string
	WeightGrams    int
	LengthCm       int
	WidthCm        int
	HeightCm       int
	UnitPriceCents int64

	StockOnHand    int
	StockAllocated int

	// Customs attributes for international shipments.
	OriginCountry string
	HSCode        string
	Description   string
}
