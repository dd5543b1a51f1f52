package fulfillment

import (
	"context"
	"fmt"

	"github.com/parcelforge/fulfillment/internal/domain"
)

// CreateInput describes a fulfillment to create against one or more orders
// sharing a customer and shipping address.
type CreateInput struct {
	OrderIDs []string
	Lines    []domain.FulfillmentLine
	Manual   bool
	// TrackingCode may be supplied for manual fulfillments shipped outside
	// the provider.
	TrackingCode string
}

// Create creates a fulfillment in the Created state, copying the carrier and
// service selection from the primary order. It enforces the coverage
// invariant: for every order line, quantities across that order's
// fulfillments in active states plus this one must not exceed the line's
// quantity.
func (m *Machine) Create(ctx context.Context, in CreateInput) (*domain.Fulfillment, Result, error) {
	if len(in.OrderIDs) == 0 {
		return nil, Result{}, fmt.Errorf("at least one order is required")
	}
	if len(in.Lines) == 0 {
		return nil, Result{}, fmt.Errorf("at least one line is required")
	}

	primary, err := m.store.GetOrder(ctx, in.OrderIDs[0])
	if err != nil {
		return nil, Result{}, fmt.Errorf("loading order %s: %w", in.OrderIDs[0], err)
	}

	for _, orderID := range in.OrderIDs {
		reason, err := m.checkCoverage(ctx, orderID, in.Lines)
		if err != nil {
			return nil, Result{}, err
		}
		if reason != "" {
			return nil, rejected(reason), nil
		}
	}

	f := &domain.Fulfillment{
		State:        domain.FulfillmentCreated,
		HandlerCode:  m.handlerCode(),
		Lines:        in.Lines,
		OrderIDs:     in.OrderIDs,
		Carrier:      primary.ShippingCarrier,
		Service:      primary.ShippingService,
		Manual:       in.Manual,
		TrackingCode: in.TrackingCode,
	}

	if err := m.store.SaveFulfillment(ctx, f); err != nil {
		return nil, Result{}, fmt.Errorf("persisting fulfillment: %w", err)
	}
	return f, accepted(), nil
}

// checkCoverage rejects line quantities that would overcommit an order line
// once this fulfillment becomes active.
func (m *Machine) checkCoverage(ctx context.Context, orderID string, lines []domain.FulfillmentLine) (string, error) {
	order, err := m.store.GetOrder(ctx, orderID)
	if err != nil {
		return "", fmt.Errorf("loading order %s: %w", orderID, err)
	}
	existing, err := m.store.FindFulfillmentsByOrder(ctx, orderID)
	if err != nil {
		return "", fmt.Errorf("loading fulfillments for order %s: %w", orderID, err)
	}

	for _, fl := range lines {
		ol := order.Line(fl.OrderLineID)
		if ol == nil {
			continue
		}
		committed := fl.Quantity
		for _, f := range existing {
			if f.State.IsActive() || f.State == domain.FulfillmentPending || f.State == domain.FulfillmentCreated || f.State == domain.FulfillmentOnHold {
				committed += f.LineQuantity(fl.OrderLineID)
			}
		}
		if committed > ol.Quantity {
			return fmt.Sprintf("line %s would be overfulfilled: %d of %d units already committed",
				fl.OrderLineID, committed-fl.Quantity, ol.Quantity), nil
		}
	}
	return "", nil
}

func (m *Machine) handlerCode() string {
	if m.handler != nil {
		return m.handler.Code()
	}
	return ""
}
