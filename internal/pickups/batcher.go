// Package pickups groups purchased fulfillments by carrier into pickup
// aggregates, manifests them with the provider, and schedules collection
// windows.
package pickups

import (
	"context"
	"fmt"
	"time"

	"github.com/parcelforge/fulfillment/internal/domain"
	"github.com/parcelforge/fulfillment/internal/fulfillment"
	"github.com/parcelforge/fulfillment/internal/store"
	"github.com/parcelforge/fulfillment/pkg/provider"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// Batcher assigns purchased fulfillments to pickups, closes pickups by
// manifesting their shipments, and buys carrier pickup windows.
type Batcher struct {
	store         store.Store
	provider      provider.Provider
	machine       *fulfillment.Machine
	logger        *otelzap.Logger
	pickupAddress provider.Address
}

// NewBatcher creates a pickup batcher. The address is where the carrier
// collects packages.
func NewBatcher(st store.Store, p provider.Provider, machine *fulfillment.Machine, addr provider.Address, logger *otelzap.Logger) *Batcher {
	return &Batcher{
		store:         st,
		provider:      p,
		machine:       machine,
		logger:        logger,
		pickupAddress: addr,
	}
}

// PickupAddress returns the configured collection address, which doubles as
// the shipment origin.
func (b *Batcher) PickupAddress() provider.Address {
	return b.pickupAddress
}

// AssignResult reports the outcome of an assignment request per fulfillment.
type AssignResult struct {
	// Assigned maps fulfillment id to the pickup it joined.
	Assigned map[string]string
	// Rejected maps fulfillment id to the reason it was skipped.
	Rejected map[string]string
}

// AssignToPickup groups the given fulfillments by carrier and appends each to
// an Open pickup for its carrier, creating one when none exists. Fulfillments
// without a purchase timestamp or already owned by a pickup are rejected
// individually without failing the rest.
func (b *Batcher) AssignToPickup(ctx context.Context, fulfillmentIDs []string) (*AssignResult, error) {
	res := &AssignResult{
		Assigned: make(map[string]string),
		Rejected: make(map[string]string),
	}

	byCarrier := make(map[string][]*domain.Fulfillment)
	for _, id := range fulfillmentIDs {
		f, err := b.store.GetFulfillment(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("loading fulfillment %s: %w", id, err)
		}
		if f.PurchasedAt == nil {
			res.Rejected[id] = "fulfillment has not been purchased"
			continue
		}
		if f.PickupID != "" {
			res.Rejected[id] = fmt.Sprintf("fulfillment already belongs to pickup %s", f.PickupID)
			continue
		}
		byCarrier[f.Carrier] = append(byCarrier[f.Carrier], f)
	}

	for carrier, members := range byCarrier {
		pickup, err := b.openPickupFor(ctx, carrier)
		if err != nil {
			return nil, err
		}
		for _, f := range members {
			pickup.FulfillmentIDs = append(pickup.FulfillmentIDs, f.ID)
			f.PickupID = pickup.ID
			if err := b.store.SaveFulfillment(ctx, f); err != nil {
				return nil, fmt.Errorf("persisting fulfillment %s: %w", f.ID, err)
			}
			res.Assigned[f.ID] = pickup.ID
		}
		if err := b.store.SavePickup(ctx, pickup); err != nil {
			return nil, fmt.Errorf("persisting pickup %s: %w", pickup.ID, err)
		}
	}

	return res, nil
}

// openPickupFor finds the carrier's Open pickup or creates one.
func (b *Batcher) openPickupFor(ctx context.Context, carrier string) (*domain.Pickup, error) {
	pickup, err := b.store.FindOpenPickupByCarrier(ctx, carrier)
	if err == nil {
		return pickup, nil
	}
	if err != store.ErrNotFound {
		return nil, fmt.Errorf("finding open pickup for %s: %w", carrier, err)
	}

	pickup = &domain.Pickup{
		State:   domain.PickupOpen,
		Carrier: carrier,
	}
	if err := b.store.SavePickup(ctx, pickup); err != nil {
		return nil, fmt.Errorf("creating pickup for %s: %w", carrier, err)
	}

	b.logger.Ctx(ctx).Info("Pickup opened", zap.String("pickup_id", pickup.ID), zap.String("carrier", carrier))
	return pickup, nil
}

// RemoveFromPickup clears pickup ownership on the named fulfillments. Only
// legal while the pickup is Open.
func (b *Batcher) RemoveFromPickup(ctx context.Context, pickupID string, fulfillmentIDs []string) error {
	pickup, err := b.store.GetPickup(ctx, pickupID)
	if err != nil {
		return fmt.Errorf("loading pickup %s: %w", pickupID, err)
	}
	if pickup.State != domain.PickupOpen {
		return fmt.Errorf("pickup %s is %s; membership can only change while Open", pickupID, pickup.State)
	}

	for _, id := range fulfillmentIDs {
		if !pickup.HasMember(id) {
			continue
		}
		f, err := b.store.GetFulfillment(ctx, id)
		if err != nil {
			return fmt.Errorf("loading fulfillment %s: %w", id, err)
		}
		f.PickupID = ""
		if err := b.store.SaveFulfillment(ctx, f); err != nil {
			return fmt.Errorf("persisting fulfillment %s: %w", id, err)
		}
		pickup.RemoveMember(id)
	}

	if err := b.store.SavePickup(ctx, pickup); err != nil {
		return fmt.Errorf("persisting pickup %s: %w", pickupID, err)
	}
	return nil
}

// Close tenders every member fulfillment, manifests the member shipments with
// the provider, and marks the pickup Closed. Scan-form creation is attempted
// first; when it fails, a bare batch is created instead. The pickup closes on
// either path as long as at least one member carries a shipment id.
func (b *Batcher) Close(ctx context.Context, pickupID string) error {
	pickup, err := b.store.GetPickup(ctx, pickupID)
	if err != nil {
		return fmt.Errorf("loading pickup %s: %w", pickupID, err)
	}
	if pickup.State != domain.PickupOpen {
		return fmt.Errorf("pickup %s is already %s", pickupID, pickup.State)
	}

	var shipmentIDs []string
	for _, fid := range pickup.FulfillmentIDs {
		f, err := b.store.GetFulfillment(ctx, fid)
		if err != nil {
			return fmt.Errorf("loading fulfillment %s: %w", fid, err)
		}
		result, err := b.machine.Transition(ctx, fid, domain.FulfillmentTendered)
		if err != nil {
			return fmt.Errorf("tendering fulfillment %s: %w", fid, err)
		}
		if !result.Ok {
			return fmt.Errorf("tendering fulfillment %s: %s", fid, result.Reason)
		}
		if f.ShipmentID != "" {
			shipmentIDs = append(shipmentIDs, f.ShipmentID)
		}
	}

	if len(shipmentIDs) == 0 {
		return fmt.Errorf("pickup %s has no member with a provider shipment", pickupID)
	}

	if err := b.manifest(ctx, pickup, shipmentIDs); err != nil {
		return err
	}

	pickup.State = domain.PickupClosed
	if err := b.store.SavePickup(ctx, pickup); err != nil {
		return fmt.Errorf("persisting pickup %s: %w", pickupID, err)
	}

	entry := &domain.HistoryEntry{
		PickupID: pickup.ID,
		Payload: domain.PickupStateChangedPayload{
			From: domain.PickupOpen,
			To:   domain.PickupClosed,
		},
	}
	if err := b.store.AppendHistory(ctx, entry); err != nil {
		return fmt.Errorf("recording pickup close: %w", err)
	}

	b.logger.Ctx(ctx).Info("Pickup closed",
		zap.String("pickup_id", pickup.ID),
		zap.String("carrier", pickup.Carrier),
		zap.Int("shipments", len(shipmentIDs)),
	)
	return nil
}

// manifest creates a scan form for the shipments, falling back to a bare
// batch when the scan form fails. Whichever ids were obtained are persisted
// on the pickup.
func (b *Batcher) manifest(ctx context.Context, pickup *domain.Pickup, shipmentIDs []string) error {
	form, err := b.provider.CreateScanForm(ctx, shipmentIDs)
	if err == nil {
		pickup.ScanFormID = form.ID
		pickup.ScanFormURL = form.URL
		pickup.BatchID = form.BatchID
		entry := &domain.HistoryEntry{
			PickupID: pickup.ID,
			Payload: domain.ScanFormCreatedPayload{
				ScanFormID:  form.ID,
				ScanFormURL: form.URL,
				BatchID:     form.BatchID,
			},
		}
		if err := b.store.AppendHistory(ctx, entry); err != nil {
			return fmt.Errorf("recording scan form: %w", err)
		}
		return nil
	}

	b.logger.Ctx(ctx).Warn("Scan form creation failed, creating bare batch",
		zap.String("pickup_id", pickup.ID),
		zap.Error(err),
	)

	batch, err := b.provider.CreateBatch(ctx, shipmentIDs)
	if err != nil {
		return fmt.Errorf("creating batch for pickup %s: %w", pickup.ID, err)
	}
	pickup.BatchID = batch.ID
	entry := &domain.HistoryEntry{
		PickupID: pickup.ID,
		Payload: domain.BatchCreatedPayload{
			BatchID: batch.ID,
			Status:  batch.Status,
		},
	}
	if err := b.store.AppendHistory(ctx, entry); err != nil {
		return fmt.Errorf("recording batch: %w", err)
	}
	return nil
}

// Schedule buys a carrier pickup window for the pickup's batch. An Open
// pickup is closed first. The first offered rate is taken unconditionally.
func (b *Batcher) Schedule(ctx context.Context, pickupID string, windowStart, windowEnd time.Time) error {
	pickup, err := b.store.GetPickup(ctx, pickupID)
	if err != nil {
		return fmt.Errorf("loading pickup %s: %w", pickupID, err)
	}

	if pickup.State == domain.PickupOpen {
		if err := b.Close(ctx, pickupID); err != nil {
			return err
		}
		pickup, err = b.store.GetPickup(ctx, pickupID)
		if err != nil {
			return fmt.Errorf("reloading pickup %s: %w", pickupID, err)
		}
	}

	if pickup.BatchID == "" {
		return fmt.Errorf("pickup %s has no provider batch to schedule against", pickupID)
	}

	created, err := b.provider.CreatePickup(ctx, &provider.PickupRequest{
		BatchID:     pickup.BatchID,
		Address:     b.pickupAddress,
		MinDatetime: windowStart,
		MaxDatetime: windowEnd,
	})
	if err != nil {
		return fmt.Errorf("creating provider pickup for %s: %w", pickupID, err)
	}
	if len(created.Rates) == 0 {
		return fmt.Errorf("provider offered no pickup rate for %s", pickupID)
	}
	rate := created.Rates[0]

	bought, err := b.provider.BuyPickup(ctx, created.ID, rate.Carrier, rate.Service)
	if err != nil {
		return fmt.Errorf("buying provider pickup %s: %w", created.ID, err)
	}

	costCents, err := rate.AmountCents()
	if err != nil {
		return fmt.Errorf("parsing pickup rate %q: %w", rate.Amount, err)
	}

	pickup.ProviderPickupID = bought.ID
	pickup.WindowStart = &windowStart
	pickup.WindowEnd = &windowEnd
	pickup.CostCents = costCents
	if err := b.store.SavePickup(ctx, pickup); err != nil {
		return fmt.Errorf("persisting pickup %s: %w", pickupID, err)
	}

	entry := &domain.HistoryEntry{
		PickupID: pickup.ID,
		Payload: domain.PickupScheduledPayload{
			ProviderPickupID: bought.ID,
			WindowStart:      windowStart,
			WindowEnd:        windowEnd,
			CostCents:        costCents,
		},
	}
	if err := b.store.AppendHistory(ctx, entry); err != nil {
		return fmt.Errorf("recording pickup schedule: %w", err)
	}

	b.logger.Ctx(ctx).Info("Pickup scheduled",
		zap.String("pickup_id", pickup.ID),
		zap.String("provider_pickup_id", bought.ID),
		zap.Int64("cost_cents", costCents),
	)
	return nil
}
