package pickups_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"

	"github.com/parcelforge/fulfillment/internal/domain"
	"github.com/parcelforge/fulfillment/internal/fulfillment"
	"github.com/parcelforge/fulfillment/internal/orders"
	"github.com/parcelforge/fulfillment/internal/pickups"
	"github.com/parcelforge/fulfillment/internal/rates"
	"github.com/parcelforge/fulfillment/internal/store"
	"github.com/parcelforge/fulfillment/pkg/provider"
	"github.com/parcelforge/fulfillment/pkg/provider/easypost"
)

func testLogger() *otelzap.Logger {
	return otelzap.New(zap.NewNop())
}

type fixture struct {
	store   *store.Memory
	batcher *pickups.Batcher
	mockAPI *easypost.MockAPIClient
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := testLogger()
	st := store.NewMemory()
	mockAPI := easypost.NewMockAPIClient()
	ep := easypost.NewWithAPIClient(easypost.Config{UseMock: true}, mockAPI, logger, nil)

	engine := rates.NewEngine(ep, rates.Config{OperatingCurrency: "USD"}, logger)
	addr := provider.Address{Street1: "1 Dock Rd", City: "Portland", State: "OR", Zip: "97201", Country: "US"}
	handler := fulfillment.NewShippingHandler(ep, engine, st, addr, logger)
	reconciler := orders.NewReconciler(st, logger)
	machine := fulfillment.NewMachine(st, handler, reconciler, logger)
	batcher := pickups.NewBatcher(st, ep, machine, addr, logger)

	return &fixture{store: st, batcher: batcher, mockAPI: mockAPI}
}

// seedPurchased persists an order plus a purchased fulfillment covering it.
func (fx *fixture) seedPurchased(t *testing.T, carrier string) *domain.Fulfillment {
	t.Helper()
	ctx := context.Background()

	o := &domain.Order{
		State: domain.OrderPaymentSettled,
		Lines: []domain.OrderLine{{ID: "line-1", Quantity: 1, UnitPriceCents: 1000}},
	}
	require.NoError(t, fx.store.SaveOrder(ctx, o))

	now := time.Now()
	f := &domain.Fulfillment{
		State:       domain.FulfillmentPurchased,
		OrderIDs:    []string{o.ID},
		Carrier:     carrier,
		ShipmentID:  "shp_" + carrier,
		PurchasedAt: &now,
		Lines:       []domain.FulfillmentLine{{OrderLineID: "line-1", Quantity: 1}},
	}
	require.NoError(t, fx.store.SaveFulfillment(ctx, f))
	return f
}

func TestAssignToPickup_GroupsByCarrier(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	usps := fx.seedPurchased(t, "USPS")
	fedex := fx.seedPurchased(t, "FedEx")

	res, err := fx.batcher.AssignToPickup(ctx, []string{usps.ID, fedex.ID})
	require.NoError(t, err)
	assert.Empty(t, res.Rejected)
	require.Len(t, res.Assigned, 2)
	assert.NotEqual(t, res.Assigned[usps.ID], res.Assigned[fedex.ID])

	p, err := fx.store.GetPickup(ctx, res.Assigned[usps.ID])
	require.NoError(t, err)
	assert.Equal(t, "USPS", p.Carrier)
	assert.Equal(t, domain.PickupOpen, p.State)
	assert.True(t, p.HasMember(usps.ID))
}

func TestAssignToPickup_ReusesOpenPickup(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	first := fx.seedPurchased(t, "USPS")
	second := fx.seedPurchased(t, "USPS")

	res1, err := fx.batcher.AssignToPickup(ctx, []string{first.ID})
	require.NoError(t, err)
	res2, err := fx.batcher.AssignToPickup(ctx, []string{second.ID})
	require.NoError(t, err)

	assert.Equal(t, res1.Assigned[first.ID], res2.Assigned[second.ID])
}

func TestAssignToPickup_RejectsIndividually(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	good := fx.seedPurchased(t, "USPS")

	unpurchased := fx.seedPurchased(t, "USPS")
	unpurchased.PurchasedAt = nil
	require.NoError(t, fx.store.SaveFulfillment(ctx, unpurchased))

	owned := fx.seedPurchased(t, "USPS")
	owned.PickupID = "pickup-elsewhere"
	require.NoError(t, fx.store.SaveFulfillment(ctx, owned))

	res, err := fx.batcher.AssignToPickup(ctx, []string{good.ID, unpurchased.ID, owned.ID})
	require.NoError(t, err)

	assert.Contains(t, res.Assigned, good.ID)
	assert.Contains(t, res.Rejected[unpurchased.ID], "not been purchased")
	assert.Contains(t, res.Rejected[owned.ID], "already belongs to pickup")
}

func TestRemoveFromPickup_OnlyWhileOpen(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	f := fx.seedPurchased(t, "USPS")

	res, err := fx.batcher.AssignToPickup(ctx, []string{f.ID})
	require.NoError(t, err)
	pickupID := res.Assigned[f.ID]

	require.NoError(t, fx.batcher.RemoveFromPickup(ctx, pickupID, []string{f.ID}))
	reloaded, err := fx.store.GetFulfillment(ctx, f.ID)
	require.NoError(t, err)
	assert.Empty(t, reloaded.PickupID)

	p, err := fx.store.GetPickup(ctx, pickupID)
	require.NoError(t, err)
	p.State = domain.PickupClosed
	require.NoError(t, fx.store.SavePickup(ctx, p))

	err = fx.batcher.RemoveFromPickup(ctx, pickupID, []string{f.ID})
	assert.ErrorContains(t, err, "membership can only change while Open")
}

func TestClose_ManifestsWithScanForm(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	f := fx.seedPurchased(t, "USPS")

	res, err := fx.batcher.AssignToPickup(ctx, []string{f.ID})
	require.NoError(t, err)
	pickupID := res.Assigned[f.ID]

	require.NoError(t, fx.batcher.Close(ctx, pickupID))

	p, err := fx.store.GetPickup(ctx, pickupID)
	require.NoError(t, err)
	assert.Equal(t, domain.PickupClosed, p.State)
	assert.NotEmpty(t, p.ScanFormID)
	assert.NotEmpty(t, p.ScanFormURL)
	assert.NotEmpty(t, p.BatchID)

	member, err := fx.store.GetFulfillment(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.FulfillmentTendered, member.State)

	history, err := fx.store.ListHistoryByPickup(ctx, pickupID)
	require.NoError(t, err)
	var sawScanForm, sawClose bool
	for _, entry := range history {
		switch entry.Payload.(type) {
		case domain.ScanFormCreatedPayload:
			sawScanForm = true
		case domain.PickupStateChangedPayload:
			sawClose = true
		}
	}
	assert.True(t, sawScanForm)
	assert.True(t, sawClose)
}

func TestClose_FallsBackToBareBatch(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	f := fx.seedPurchased(t, "USPS")

	fx.mockAPI.OnCreateScanForm = func(ctx context.Context, req *easypost.ScanFormRequest) (*easypost.APIScanForm, error) {
		return nil, &easypost.APIError{Code: "SCAN_FORM.FAILURE", Message: "scan form unavailable"}
	}

	res, err := fx.batcher.AssignToPickup(ctx, []string{f.ID})
	require.NoError(t, err)
	pickupID := res.Assigned[f.ID]

	require.NoError(t, fx.batcher.Close(ctx, pickupID))

	p, err := fx.store.GetPickup(ctx, pickupID)
	require.NoError(t, err)
	assert.Equal(t, domain.PickupClosed, p.State)
	assert.Empty(t, p.ScanFormID)
	assert.NotEmpty(t, p.BatchID)
}

func TestClose_RejectsClosedPickup(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	f := fx.seedPurchased(t, "USPS")

	res, err := fx.batcher.AssignToPickup(ctx, []string{f.ID})
	require.NoError(t, err)
	pickupID := res.Assigned[f.ID]

	require.NoError(t, fx.batcher.Close(ctx, pickupID))
	err = fx.batcher.Close(ctx, pickupID)
	assert.ErrorContains(t, err, "already Closed")
}

func TestClose_RequiresAShipment(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	f := fx.seedPurchased(t, "USPS")
	f.ShipmentID = ""
	f.Manual = true
	require.NoError(t, fx.store.SaveFulfillment(ctx, f))

	res, err := fx.batcher.AssignToPickup(ctx, []string{f.ID})
	require.NoError(t, err)
	pickupID := res.Assigned[f.ID]

	err = fx.batcher.Close(ctx, pickupID)
	assert.ErrorContains(t, err, "no member with a provider shipment")

	p, err := fx.store.GetPickup(ctx, pickupID)
	require.NoError(t, err)
	assert.Equal(t, domain.PickupOpen, p.State)
}

func TestSchedule_ClosesThenBuysFirstRate(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	f := fx.seedPurchased(t, "USPS")

	res, err := fx.batcher.AssignToPickup(ctx, []string{f.ID})
	require.NoError(t, err)
	pickupID := res.Assigned[f.ID]

	var bought string
	fx.mockAPI.OnBuyPickup = func(ctx context.Context, id string, req *easypost.PickupBuyRequest) (*easypost.APIPickup, error) {
		bought = req.Carrier + "/" + req.Service
		return &easypost.APIPickup{ID: id, Status: "scheduled"}, nil
	}

	start := time.Now().Add(24 * time.Hour)
	end := start.Add(4 * time.Hour)
	require.NoError(t, fx.batcher.Schedule(ctx, pickupID, start, end))

	assert.Equal(t, "USPS/NextDay", bought)

	p, err := fx.store.GetPickup(ctx, pickupID)
	require.NoError(t, err)
	assert.Equal(t, domain.PickupClosed, p.State)
	assert.NotEmpty(t, p.ProviderPickupID)
	assert.Zero(t, p.CostCents)
	require.NotNil(t, p.WindowStart)
	assert.True(t, p.WindowStart.Equal(start))

	history, err := fx.store.ListHistoryByPickup(ctx, pickupID)
	require.NoError(t, err)
	var scheduled bool
	for _, entry := range history {
		if _, ok := entry.Payload.(domain.PickupScheduledPayload); ok {
			scheduled = true
		}
	}
	assert.True(t, scheduled)
}

func TestSchedule_RequiresBatch(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	p := &domain.Pickup{State: domain.PickupClosed, Carrier: "USPS"}
	require.NoError(t, fx.store.SavePickup(ctx, p))

	err := fx.batcher.Schedule(ctx, p.ID, time.Now(), time.Now().Add(time.Hour))
	assert.ErrorContains(t, err, "no provider batch")
}
