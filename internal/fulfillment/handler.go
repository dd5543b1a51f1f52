package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/parcelforge/fulfillment/internal/domain"
	"github.com/parcelforge/fulfillment/internal/rates"
	"github.com/parcelforge/fulfillment/internal/store"
	"github.com/parcelforge/fulfillment/pkg/provider"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// HandlerCode identifies the carrier-backed shipping handler.
const HandlerCode = "carrier-shipping"

// ShippingHandler is the policy layer attached to the state machine: it
// creates, purchases, and refunds provider shipments as fulfillments move
// through their lifecycle. Manual fulfillments bypass shipment creation and
// purchase; at most a best-effort tracker is bought for them.
type ShippingHandler struct {
	provider    provider.Provider
	engine      *rates.Engine
	store       store.Store
	logger      *otelzap.Logger
	fromAddress provider.Address
}

// NewShippingHandler creates the shipping handler.
func NewShippingHandler(p provider.Provider, engine *rates.Engine, st store.Store, from provider.Address, logger *otelzap.Logger) *ShippingHandler {
	return &ShippingHandler{
		provider:    p,
		engine:      engine,
		store:       st,
		logger:      logger,
		fromAddress: from,
	}
}

// Code returns the handler identifier recorded on fulfillments.
func (h *ShippingHandler) Code() string { return HandlerCode }

// BeforeTransition implements Handler.
func (h *ShippingHandler) BeforeTransition(ctx context.Context, f *domain.Fulfillment, from, to domain.FulfillmentState) (string, error) {
	switch {
	case to == domain.FulfillmentPending && from != domain.FulfillmentPending && !f.Manual:
		return h.createShipment(ctx, f)
	case to == domain.FulfillmentPurchased:
		return h.purchase(ctx, f)
	case to == domain.FulfillmentCancelled && (from == domain.FulfillmentPurchased || from == domain.FulfillmentTendered):
		return h.refund(ctx, f)
	}
	return "", nil
}

// createShipment builds the shipment request, registers the shipment with
// the provider, selects the rate matching the order's chosen carrier and
// service, and persists the resulting ids and costs.
func (h *ShippingHandler) createShipment(ctx context.Context, f *domain.Fulfillment) (string, error) {
	req, lineValue, err := h.buildRequest(ctx, f)
	if err != nil {
		return "", err
	}

	shipment, err := h.provider.CreateShipment(ctx, req)
	if err != nil {
		return "", err
	}

	rate, err := h.engine.SelectRate(shipment.Rates, f.Carrier, f.Service)
	if err != nil {
		if errors.Is(err, provider.ErrRateNotFound) {
			return fmt.Sprintf("no rate offered for %s %s on this shipment", f.Carrier, f.Service), nil
		}
		return "", err
	}

	rateCents, err := rate.AmountCents()
	if err != nil {
		return "", fmt.Errorf("parsing rate amount %q: %w", rate.Amount, err)
	}

	split := rates.ComputeInsurance(lineValue+rateCents, h.engine.Insurance())

	f.WeightGrams = req.Parcel.WeightGrams
	f.LengthCm = req.Parcel.LengthCm
	f.WidthCm = req.Parcel.WidthCm
	f.HeightCm = req.Parcel.HeightCm
	f.ShipmentID = shipment.ID
	f.RateID = rate.ID
	f.RateCostCents = rateCents
	f.InsuranceCostCents = split.InsuranceCostCents

	return "", nil
}

// purchase buys the previously selected rate, or for a manual fulfillment
// with a tracking code, buys a standalone tracker for visibility only.
func (h *ShippingHandler) purchase(ctx context.Context, f *domain.Fulfillment) (string, error) {
	if f.Manual {
		h.buyTrackerBestEffort(ctx, f)
		return "", nil
	}

	if f.TrackingCode != "" {
		return "a label was already purchased for this fulfillment", nil
	}
	if f.RateID == "" || f.ShipmentID == "" {
		return "no rate has been selected for this fulfillment", nil
	}

	lineValue, err := h.lineValue(ctx, f)
	if err != nil {
		return "", err
	}
	split := rates.ComputeInsurance(lineValue+f.RateCostCents, h.engine.Insurance())

	shipment, err := h.provider.BuyShipment(ctx, f.ShipmentID, f.RateID, split.ValueToInsureCents)
	if err != nil {
		return "", err
	}

	now := time.Now()
	f.TrackingCode = shipment.TrackingCode
	f.TrackerID = shipment.TrackerID
	f.LabelURL = shipment.LabelURL
	f.PurchasedAt = &now
	f.InvoiceURL = shipment.FormURL
	f.InvoiceNumber = shipment.FormNumber
	if shipment.SelectedRate != nil {
		if cents, err := shipment.SelectedRate.AmountCents(); err == nil {
			f.RateCostCents = cents
		}
	}
	f.InsuranceCostCents = split.InsuranceCostCents

	for _, orderID := range f.OrderIDs {
		entry := &domain.HistoryEntry{
			OrderID:       orderID,
			FulfillmentID: f.ID,
			Payload: domain.PurchasedPayload{
				ShipmentID:    f.ShipmentID,
				RateID:        f.RateID,
				TrackingCode:  f.TrackingCode,
				CostCents:     f.RateCostCents,
				InsuredCents:  split.ValueToInsureCents,
				LabelURL:      f.LabelURL,
				InvoiceNumber: f.InvoiceNumber,
			},
		}
		if err := h.store.AppendHistory(ctx, entry); err != nil {
			return "", fmt.Errorf("recording purchase history: %w", err)
		}
	}

	return "", nil
}

// buyTrackerBestEffort registers a tracker for a manually fulfilled
// tracking code. Failures are logged, never propagated.
func (h *ShippingHandler) buyTrackerBestEffort(ctx context.Context, f *domain.Fulfillment) {
	if f.TrackingCode == "" {
		return
	}
	tracker, err := h.provider.CreateTracker(ctx, f.TrackingCode, f.Carrier)
	if err != nil {
		h.logger.Ctx(ctx).Warn("Tracker purchase failed for manual fulfillment",
			zap.String("fulfillment_id", f.ID),
			zap.String("tracking_code", f.TrackingCode),
			zap.Error(err),
		)
		return
	}
	f.TrackerID = tracker.ID
	now := time.Now()
	if f.PurchasedAt == nil {
		f.PurchasedAt = &now
	}
}

// refund requests a provider refund for a purchased label. Refund failures
// propagate and block the cancellation.
func (h *ShippingHandler) refund(ctx context.Context, f *domain.Fulfillment) (string, error) {
	if f.PurchasedAt == nil || f.ShipmentID == "" {
		return "", nil
	}

	refund, err := h.provider.RefundShipment(ctx, f.ShipmentID)
	if err != nil {
		return "", err
	}

	for _, orderID := range f.OrderIDs {
		entry := &domain.HistoryEntry{
			OrderID:       orderID,
			FulfillmentID: f.ID,
			Payload: domain.RefundedPayload{
				ShipmentID:   f.ShipmentID,
				RefundStatus: refund.Status,
			},
		}
		if err := h.store.AppendHistory(ctx, entry); err != nil {
			return "", fmt.Errorf("recording refund history: %w", err)
		}
	}

	return "", nil
}

// buildRequest aggregates the fulfillment's lines across its owning orders
// into one provider shipment request plus the total line value. Orders in a
// multi-order fulfillment share a customer and address; the first order's
// address addresses the package.
func (h *ShippingHandler) buildRequest(ctx context.Context, f *domain.Fulfillment) (*provider.ShipmentRequest, int64, error) {
	if len(f.OrderIDs) == 0 {
		return nil, 0, fmt.Errorf("fulfillment %s has no owning order", f.ID)
	}

	orders := make([]*domain.Order, 0, len(f.OrderIDs))
	for _, id := range f.OrderIDs {
		o, err := h.store.GetOrder(ctx, id)
		if err != nil {
			return nil, 0, fmt.Errorf("loading order %s: %w", id, err)
		}
		orders = append(orders, o)
	}
	primary := orders[0]

	var lineValue int64
	variants := make(map[string]*domain.ProductVariant)
	perOrderLines := make(map[string][]domain.FulfillmentLine)

	for _, fl := range f.Lines {
		owner, ol := findLine(orders, fl.OrderLineID)
		if ol == nil {
			return nil, 0, fmt.Errorf("no owning order carries line %s", fl.OrderLineID)
		}
		v, err := h.store.GetVariant(ctx, ol.ProductVariantID)
		if err != nil {
			return nil, 0, fmt.Errorf("loading variant %s: %w", ol.ProductVariantID, err)
		}
		variants[v.ID] = v
		lineValue += ol.UnitPriceCents * int64(fl.Quantity)
		perOrderLines[owner.ID] = append(perOrderLines[owner.ID], fl)
	}

	// Build against the primary order's address; merge every order's lines
	// into the one package.
	merged := *primary
	mergedLines := make([]domain.OrderLine, 0)
	flat := make([]domain.FulfillmentLine, 0, len(f.Lines))
	for _, o := range orders {
		mergedLines = append(mergedLines, o.Lines...)
	}
	merged.Lines = mergedLines
	flat = append(flat, f.Lines...)

	req, err := rates.BuildShipmentRequest(&merged, flat, variants, h.fromAddress)
	if err != nil {
		return nil, 0, err
	}

	// Respect dimensions set explicitly on the fulfillment (e.g. by an
	// administrator) over the estimate.
	if f.HasDimensions() {
		req.Parcel = provider.Parcel{
			WeightGrams: f.WeightGrams,
			LengthCm:    f.LengthCm,
			WidthCm:     f.WidthCm,
			HeightCm:    f.HeightCm,
		}
	}

	return req, lineValue, nil
}

// lineValue totals the fulfillment's line value across its owning orders.
func (h *ShippingHandler) lineValue(ctx context.Context, f *domain.Fulfillment) (int64, error) {
	orders := make([]*domain.Order, 0, len(f.OrderIDs))
	for _, id := range f.OrderIDs {
		o, err := h.store.GetOrder(ctx, id)
		if err != nil {
			return 0, fmt.Errorf("loading order %s: %w", id, err)
		}
		orders = append(orders, o)
	}
	var total int64
	for _, fl := range f.Lines {
		if _, ol := findLine(orders, fl.OrderLineID); ol != nil {
			total += ol.UnitPriceCents * int64(fl.Quantity)
		}
	}
	return total, nil
}

func findLine(orders []*domain.Order, orderLineID string) (*domain.Order, *domain.OrderLine) {
	for _, o := range orders {
		if ol := o.Line(orderLineID); ol != nil {
			return o, ol
		}
	}
	return nil, nil
}

var _ Handler = (*ShippingHandler)(nil)
