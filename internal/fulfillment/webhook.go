package fulfillment

import (
	"context"
	"errors"
	"fmt"

	"github.com/parcelforge/fulfillment/internal/domain"
	"github.com/parcelforge/fulfillment/internal/store"
	"github.com/parcelforge/fulfillment/internal/webhook"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// trackingTargets maps provider tracking statuses to fulfillment states.
// Statuses absent from the map are recorded but drive no transition.
var trackingTargets = map[string]domain.FulfillmentState{
	"in_transit":           domain.FulfillmentShipped,
	"out_for_delivery":     domain.FulfillmentShipped,
	"delivered":            domain.FulfillmentDelivered,
	"available_for_pickup": domain.FulfillmentDelivered,
}

// WebhookHandler consumes tracker and refund events, advancing fulfillments
// along the shipping leg of their lifecycle.
type WebhookHandler struct {
	machine *Machine
	store   store.Store
	logger  *otelzap.Logger
}

// NewWebhookHandler creates the fulfillment webhook handler.
func NewWebhookHandler(machine *Machine, st store.Store, logger *otelzap.Logger) *WebhookHandler {
	return &WebhookHandler{machine: machine, store: st, logger: logger}
}

// Handles implements webhook.Handler.
func (h *WebhookHandler) Handles(description string) bool {
	switch description {
	case webhook.EventTrackerCreated, webhook.EventTrackerUpdated, webhook.EventRefundSuccessful:
		return true
	}
	return false
}

// Handle implements webhook.Handler.
func (h *WebhookHandler) Handle(ctx context.Context, event *webhook.Event) error {
	switch event.Description {
	case webhook.EventTrackerCreated, webhook.EventTrackerUpdated:
		return h.handleTracker(ctx, event)
	case webhook.EventRefundSuccessful:
		return h.handleRefund(ctx, event)
	}
	return nil
}

// handleTracker matches the tracker to a fulfillment and requests the
// transition its status maps to. Requests against a fulfillment already in
// the target state are no-ops, which makes replayed deliveries harmless.
func (h *WebhookHandler) handleTracker(ctx context.Context, event *webhook.Event) error {
	tracker, err := event.DecodeTracker()
	if err != nil {
		return err
	}

	f, err := h.store.FindFulfillmentByTracking(ctx, tracker.TrackingCode, tracker.ID, tracker.ShipmentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.logger.Ctx(ctx).Info("Tracker event matched no fulfillment",
				zap.String("tracking_code", tracker.TrackingCode),
				zap.String("tracker_id", tracker.ID),
			)
			return nil
		}
		return fmt.Errorf("matching tracker %s: %w", tracker.ID, err)
	}
	if f.State == domain.FulfillmentCancelled {
		return nil
	}

	location := ""
	if n := len(tracker.TrackingDetails); n > 0 {
		location = tracker.TrackingDetails[n-1].Location.String()
	}
	for _, orderID := range f.OrderIDs {
		entry := &domain.HistoryEntry{
			OrderID:       orderID,
			FulfillmentID: f.ID,
			Payload: domain.TrackingUpdatedPayload{
				TrackingCode: tracker.TrackingCode,
				Status:       tracker.Status,
				Location:     location,
			},
		}
		if err := h.store.AppendHistory(ctx, entry); err != nil {
			return fmt.Errorf("recording tracking update: %w", err)
		}
	}

	target, ok := trackingTargets[tracker.Status]
	if !ok || f.State == target {
		return nil
	}

	result, err := h.machine.Transition(ctx, f.ID, target)
	if err != nil {
		return fmt.Errorf("transitioning fulfillment %s to %s: %w", f.ID, target, err)
	}
	if !result.Ok {
		h.logger.Ctx(ctx).Warn("Tracking-driven transition rejected",
			zap.String("fulfillment_id", f.ID),
			zap.String("target", string(target)),
			zap.String("reason", result.Reason),
		)
	}
	return nil
}

// handleRefund records the provider's refund confirmation. The fulfillment
// state already changed when the refund was requested; this only confirms.
func (h *WebhookHandler) handleRefund(ctx context.Context, event *webhook.Event) error {
	refund, err := event.DecodeRefund()
	if err != nil {
		return err
	}

	f, err := h.store.FindFulfillmentByTracking(ctx, refund.TrackingCode, "", refund.ShipmentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.logger.Ctx(ctx).Info("Refund event matched no fulfillment",
				zap.String("shipment_id", refund.ShipmentID),
			)
			return nil
		}
		return fmt.Errorf("matching refund for shipment %s: %w", refund.ShipmentID, err)
	}

	// Skip the append when the confirmation was already recorded.
	history, err := h.store.ListHistoryByFulfillment(ctx, f.ID)
	if err != nil {
		return fmt.Errorf("loading history for fulfillment %s: %w", f.ID, err)
	}
	for _, entry := range history {
		if p, ok := entry.Payload.(domain.RefundedPayload); ok && p.RefundStatus == refund.Status {
			return nil
		}
	}

	for _, orderID := range f.OrderIDs {
		entry := &domain.HistoryEntry{
			OrderID:       orderID,
			FulfillmentID: f.ID,
			Payload: domain.RefundedPayload{
				ShipmentID:   refund.ShipmentID,
				RefundStatus: refund.Status,
			},
		}
		if err := h.store.AppendHistory(ctx, entry); err != nil {
			return fmt.Errorf("recording refund confirmation: %w", err)
		}
	}
	return nil
}

var _ webhook.Handler = (*WebhookHandler)(nil)
