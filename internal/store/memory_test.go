package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parcelforge/fulfillment/internal/domain"
	"github.com/parcelforge/fulfillment/internal/store"
)

func TestMemory_SaveAssignsID(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()

	f := &domain.Fulfillment{State: domain.FulfillmentCreated}
	require.NoError(t, st.SaveFulfillment(ctx, f))
	assert.NotEmpty(t, f.ID)
	assert.False(t, f.CreatedAt.IsZero())

	reloaded, err := st.GetFulfillment(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.FulfillmentCreated, reloaded.State)
}

func TestMemory_GetMissing(t *testing.T) {
	st := store.NewMemory()
	_, err := st.GetFulfillment(context.Background(), "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMemory_CopiesOnReadAndWrite(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()

	f := &domain.Fulfillment{State: domain.FulfillmentCreated, Carrier: "USPS"}
	require.NoError(t, st.SaveFulfillment(ctx, f))

	// Mutating the caller's copy must not leak into the store.
	f.Carrier = "FedEx"
	reloaded, err := st.GetFulfillment(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, "USPS", reloaded.Carrier)

	reloaded.Carrier = "DHL"
	again, err := st.GetFulfillment(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, "USPS", again.Carrier)
}

func TestMemory_FindFulfillmentsByOrder(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()

	a := &domain.Fulfillment{State: domain.FulfillmentCreated, OrderIDs: []string{"order-1"}}
	b := &domain.Fulfillment{State: domain.FulfillmentCreated, OrderIDs: []string{"order-1", "order-2"}}
	c := &domain.Fulfillment{State: domain.FulfillmentCreated, OrderIDs: []string{"order-3"}}
	for _, f := range []*domain.Fulfillment{a, b, c} {
		require.NoError(t, st.SaveFulfillment(ctx, f))
	}

	found, err := st.FindFulfillmentsByOrder(ctx, "order-1")
	require.NoError(t, err)
	assert.Len(t, found, 2)
}

func TestMemory_FindByTracking_TrackerIDMatch(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()

	f := &domain.Fulfillment{TrackingCode: "9400111", TrackerID: "trk_1", ShipmentID: "shp_1"}
	require.NoError(t, st.SaveFulfillment(ctx, f))

	found, err := st.FindFulfillmentByTracking(ctx, "9400111", "trk_1", "")
	require.NoError(t, err)
	assert.Equal(t, f.ID, found.ID)
}

func TestMemory_FindByTracking_ShipmentIDFallback(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()

	// A record persisted before tracker ids were recorded.
	f := &domain.Fulfillment{TrackingCode: "9400111", ShipmentID: "shp_1"}
	require.NoError(t, st.SaveFulfillment(ctx, f))

	found, err := st.FindFulfillmentByTracking(ctx, "9400111", "trk_unseen", "shp_1")
	require.NoError(t, err)
	assert.Equal(t, f.ID, found.ID)

	_, err = st.FindFulfillmentByTracking(ctx, "9400111", "trk_unseen", "shp_other")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMemory_FindOpenPickupByCarrier(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()

	closed := &domain.Pickup{State: domain.PickupClosed, Carrier: "USPS"}
	open := &domain.Pickup{State: domain.PickupOpen, Carrier: "USPS"}
	require.NoError(t, st.SavePickup(ctx, closed))
	require.NoError(t, st.SavePickup(ctx, open))

	found, err := st.FindOpenPickupByCarrier(ctx, "USPS")
	require.NoError(t, err)
	assert.Equal(t, open.ID, found.ID)

	_, err = st.FindOpenPickupByCarrier(ctx, "FedEx")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMemory_FindPickupByBatch(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()

	p := &domain.Pickup{State: domain.PickupClosed, Carrier: "USPS", BatchID: "batch_1"}
	require.NoError(t, st.SavePickup(ctx, p))

	found, err := st.FindPickupByBatch(ctx, "batch_1")
	require.NoError(t, err)
	assert.Equal(t, p.ID, found.ID)

	_, err = st.FindPickupByBatch(ctx, "batch_2")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMemory_HistoryFilters(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()

	entries := []*domain.HistoryEntry{
		{FulfillmentID: "f1", Payload: domain.TrackingUpdatedPayload{Status: "in_transit"}},
		{FulfillmentID: "f2", Payload: domain.TrackingUpdatedPayload{Status: "delivered"}},
		{PickupID: "p1", Payload: domain.BatchCreatedPayload{BatchID: "batch_1"}},
	}
	for _, e := range entries {
		require.NoError(t, st.AppendHistory(ctx, e))
		assert.NotEmpty(t, e.ID)
	}

	byFulfillment, err := st.ListHistoryByFulfillment(ctx, "f1")
	require.NoError(t, err)
	require.Len(t, byFulfillment, 1)
	assert.Equal(t, domain.HistoryTrackingUpdated, byFulfillment[0].Payload.Kind())

	byPickup, err := st.ListHistoryByPickup(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, byPickup, 1)
}
