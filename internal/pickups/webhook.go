package pickups

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

// WebhookHandler consumes batch and scan-form events, keeping pickup
// manifest ids and audit history in step with the provider.
type WebhookHandler struct {
	store  store.Store
	logger *otelzap.Logger
}

// NewWebhookHandler creates the pickup webhook handler.
func NewWebhookHandler(st store.Store, logger *otelzap.Logger) *WebhookHandler {
	return &WebhookHandler{store: st, logger: logger}
}

// Handles implements webhook.Handler.
func (h *WebhookHandler) Handles(description string) bool {
	switch description {
	case webhook.EventBatchCreated, webhook.EventBatchUpdated,
		webhook.EventScanFormCreated, webhook.EventScanFormUpdated:
		return true
	}
	return false
}

// Handle implements webhook.Handler.
func (h *WebhookHandler) Handle(ctx context.Context, event *webhook.Event) error {
	switch event.Description {
	case webhook.EventBatchCreated, webhook.EventBatchUpdated:
		return h.handleBatch(ctx, event)
	case webhook.EventScanFormCreated, webhook.EventScanFormUpdated:
		return h.handleScanForm(ctx, event)
	}
	return nil
}

func (h *WebhookHandler) handleBatch(ctx context.Context, event *webhook.Event) error {
	batch, err := event.DecodeBatch()
	if err != nil {
		return err
	}

	pickup, err := h.store.FindPickupByBatch(ctx, batch.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.logger.Ctx(ctx).Info("Batch event matched no pickup", zap.String("batch_id", batch.ID))
			return nil
		}
		return fmt.Errorf("matching batch %s: %w", batch.ID, err)
	}

	recorded, err := h.batchStatusRecorded(ctx, pickup.ID, batch.ID, batch.State)
	if err != nil {
		return err
	}
	if recorded {
		return nil
	}

	entry := &domain.HistoryEntry{
		PickupID: pickup.ID,
		Payload: domain.BatchCreatedPayload{
			BatchID: batch.ID,
			Status:  batch.State,
		},
	}
	if err := h.store.AppendHistory(ctx, entry); err != nil {
		return fmt.Errorf("recording batch update: %w", err)
	}
	return nil
}

func (h *WebhookHandler) handleScanForm(ctx context.Context, event *webhook.Event) error {
	form, err := event.DecodeScanForm()
	if err != nil {
		return err
	}
	if form.BatchID == "" {
		h.logger.Ctx(ctx).Info("Scan form event without batch id", zap.String("scan_form_id", form.ID))
		return nil
	}

	pickup, err := h.store.FindPickupByBatch(ctx, form.BatchID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.logger.Ctx(ctx).Info("Scan form event matched no pickup",
				zap.String("scan_form_id", form.ID),
				zap.String("batch_id", form.BatchID),
			)
			return nil
		}
		return fmt.Errorf("matching scan form %s: %w", form.ID, err)
	}

	// A pickup closed via the bare-batch fallback gains its scan form here.
	if pickup.ScanFormID == form.ID && pickup.ScanFormURL == form.FormURL {
		return nil
	}
	pickup.ScanFormID = form.ID
	pickup.ScanFormURL = form.FormURL
	if err := h.store.SavePickup(ctx, pickup); err != nil {
		return fmt.Errorf("persisting pickup %s: %w", pickup.ID, err)
	}

	entry := &domain.HistoryEntry{
		PickupID: pickup.ID,
		Payload: domain.ScanFormCreatedPayload{
			ScanFormID:  form.ID,
			ScanFormURL: form.FormURL,
			BatchID:     form.BatchID,
		},
	}
	if err := h.store.AppendHistory(ctx, entry); err != nil {
		return fmt.Errorf("recording scan form update: %w", err)
	}
	return nil
}

func (h *WebhookHandler) batchStatusRecorded(ctx context.Context, pickupID, batchID, status string) (bool, error) {
	history, err := h.store.ListHistoryByPickup(ctx, pickupID)
	if err != nil {
		return false, fmt.Errorf("loading history for pickup %s: %w", pickupID, err)
	}
	for _, entry := range history {
		if p, ok := entry.Payload.(domain.BatchCreatedPayload); ok && p.BatchID == batchID && p.Status == status {
			return true, nil
		}
	}
	return false, nil
}

var _ webhook.Handler = (*WebhookHandler)(nil)
