package fulfillment_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"

	"github.com/parcelforge/fulfillment/internal/domain"
	"github.com/parcelforge/fulfillment/internal/fulfillment"
	"github.com/parcelforge/fulfillment/internal/orders"
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
	machine *fulfillment.Machine
	mockAPI *easypost.MockAPIClient
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := testLogger()
	st := store.NewMemory()
	mockAPI := easypost.NewMockAPIClient()
	ep := easypost.NewWithAPIClient(easypost.Config{UseMock: true}, mockAPI, logger, nil)

	engine := rates.NewEngine(ep, rates.Config{
		OperatingCurrency: "USD",
		MinRateCents:      100,
		Insurance:         rates.InsuranceConfig{MinInsureValueCents: 15000, InsurePercent: 0.8},
	}, logger)

	from := provider.Address{Street1: "1 Warehouse Way", City: "Portland", State: "OR", Zip: "97201", Country: "US"}
	handler := fulfillment.NewShippingHandler(ep, engine, st, from, logger)
	reconciler := orders.NewReconciler(st, logger)
	machine := fulfillment.NewMachine(st, handler, reconciler, logger)

	return &fixture{store: st, machine: machine, mockAPI: mockAPI}
}

// seedOrder persists a settled order with one line of quantity 2 plus its
// variant, and returns both.
func (fx *fixture) seedOrder(t *testing.T) (*domain.Order, *domain.ProductVariant) {
	t.Helper()
	ctx := context.Background()

	v := &domain.ProductVariant{
		SKU: "SKU-1", Description: "Widget",
		WeightGrams: 250, LengthCm: 20, WidthCm: 15, HeightCm: 10,
		UnitPriceCents: 2500,
		StockOnHand:    10, StockAllocated: 4,
	}
	require.NoError(t, fx.store.SaveVariant(ctx, v))

	o := &domain.Order{
		Code:            "ORD-1001",
		State:           domain.OrderPaymentSettled,
		CurrencyCode:    "USD",
		ShippingCarrier: "USPS",
		ShippingService: "Priority",
		Lines: []domain.OrderLine{
			{ID: "line-1", ProductVariantID: v.ID, Quantity: 2, UnitPriceCents: 2500},
		},
		Address: domain.ShippingAddress{
			FullName: "A Customer", StreetLine1: "42 Elm St",
			City: "Denver", Province: "CO", PostalCode: "80014", CountryCode: "US",
		},
	}
	require.NoError(t, fx.store.SaveOrder(ctx, o))
	return o, v
}

func (fx *fixture) seedFulfillment(t *testing.T, o *domain.Order, state domain.FulfillmentState, qty int) *domain.Fulfillment {
	t.Helper()
	f := &domain.Fulfillment{
		State:    state,
		OrderIDs: []string{o.ID},
		Carrier:  o.ShippingCarrier,
		Service:  o.ShippingService,
		Lines:    []domain.FulfillmentLine{{OrderLineID: "line-1", Quantity: qty}},
	}
	require.NoError(t, fx.store.SaveFulfillment(context.Background(), f))
	return f
}

func TestTransition_IllegalEdgeRejected(t *testing.T) {
	fx := newFixture(t)
	o, _ := fx.seedOrder(t)
	f := fx.seedFulfillment(t, o, domain.FulfillmentShipped, 2)

	created := 0
	fx.mockAPI.OnCreateShipment = func(ctx context.Context, req *easypost.APIShipmentRequest) (*easypost.APIShipment, error) {
		created++
		return nil, nil
	}

	result, err := fx.machine.Transition(context.Background(), f.ID, domain.FulfillmentPending)
	require.NoError(t, err)
	assert.False(t, result.Ok)
	assert.Contains(t, result.Reason, "cannot transition")
	assert.Zero(t, created)

	reloaded, err := fx.store.GetFulfillment(context.Background(), f.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.FulfillmentShipped, reloaded.State)
}

func TestTransition_SameStateIsNoop(t *testing.T) {
	fx := newFixture(t)
	o, _ := fx.seedOrder(t)
	f := fx.seedFulfillment(t, o, domain.FulfillmentCreated, 2)

	result, err := fx.machine.Transition(context.Background(), f.ID, domain.FulfillmentCreated)
	require.NoError(t, err)
	assert.True(t, result.Ok)
}

func TestTransition_StockShortfallRejected(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	o, v := fx.seedOrder(t)
	v.StockOnHand = 1
	require.NoError(t, fx.store.SaveVariant(ctx, v))
	f := fx.seedFulfillment(t, o, domain.FulfillmentCreated, 2)

	created := 0
	fx.mockAPI.OnCreateShipment = func(ctx context.Context, req *easypost.APIShipmentRequest) (*easypost.APIShipment, error) {
		created++
		return nil, nil
	}

	result, err := fx.machine.Transition(ctx, f.ID, domain.FulfillmentPending)
	require.NoError(t, err)
	assert.False(t, result.Ok)
	assert.Contains(t, result.Reason, "insufficient stock for SKU-1: 1 on hand, 2 requested")
	assert.Zero(t, created, "no shipment should be created when the stock guard rejects")

	unchanged, err := fx.store.GetVariant(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, unchanged.StockOnHand)
}

func TestTransition_PendingCreatesShipmentAndSellsStock(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	o, v := fx.seedOrder(t)
	f := fx.seedFulfillment(t, o, domain.FulfillmentCreated, 2)

	result, err := fx.machine.Transition(ctx, f.ID, domain.FulfillmentPending)
	require.NoError(t, err)
	require.True(t, result.Ok, result.Reason)

	reloaded, err := fx.store.GetFulfillment(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.FulfillmentPending, reloaded.State)
	assert.NotEmpty(t, reloaded.ShipmentID)
	assert.NotEmpty(t, reloaded.RateID)
	assert.Equal(t, int64(1250), reloaded.RateCostCents)
	assert.True(t, reloaded.HasDimensions())

	sold, err := fx.store.GetVariant(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, sold.StockOnHand)
	assert.Equal(t, 2, sold.StockAllocated)
}

func TestTransition_LeavingPendingReturnsStockAndClearsShipment(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	o, v := fx.seedOrder(t)
	f := fx.seedFulfillment(t, o, domain.FulfillmentCreated, 2)

	_, err := fx.machine.Transition(ctx, f.ID, domain.FulfillmentPending)
	require.NoError(t, err)

	result, err := fx.machine.Transition(ctx, f.ID, domain.FulfillmentOnHold)
	require.NoError(t, err)
	require.True(t, result.Ok, result.Reason)

	reloaded, err := fx.store.GetFulfillment(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.FulfillmentOnHold, reloaded.State)
	assert.Empty(t, reloaded.ShipmentID, "stale shipment must not survive a Pending exit")
	assert.Empty(t, reloaded.RateID)

	returned, err := fx.store.GetVariant(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, returned.StockOnHand)
	assert.Equal(t, 4, returned.StockAllocated)
}

func TestTransition_PurchaseWithoutRateRejected(t *testing.T) {
	fx := newFixture(t)
	o, _ := fx.seedOrder(t)
	f := fx.seedFulfillment(t, o, domain.FulfillmentCreated, 2)

	result, err := fx.machine.Transition(context.Background(), f.ID, domain.FulfillmentPurchased)
	require.NoError(t, err)
	assert.False(t, result.Ok)
	assert.Contains(t, result.Reason, "no rate has been selected")
}

func TestTransition_PurchaseAlreadyPurchasedRejected(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	o, _ := fx.seedOrder(t)
	f := fx.seedFulfillment(t, o, domain.FulfillmentCreated, 2)
	f.TrackingCode = "9400111111111111111111"
	require.NoError(t, fx.store.SaveFulfillment(ctx, f))

	result, err := fx.machine.Transition(ctx, f.ID, domain.FulfillmentPurchased)
	require.NoError(t, err)
	assert.False(t, result.Ok)
	assert.Contains(t, result.Reason, "already purchased")
}

func TestTransition_PurchaseBuysLabelAndReconcilesOrder(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	o, _ := fx.seedOrder(t)
	f := fx.seedFulfillment(t, o, domain.FulfillmentCreated, 2)

	_, err := fx.machine.Transition(ctx, f.ID, domain.FulfillmentPending)
	require.NoError(t, err)

	result, err := fx.machine.Transition(ctx, f.ID, domain.FulfillmentPurchased)
	require.NoError(t, err)
	require.True(t, result.Ok, result.Reason)

	reloaded, err := fx.store.GetFulfillment(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.FulfillmentPurchased, reloaded.State)
	assert.NotEmpty(t, reloaded.TrackingCode)
	assert.NotEmpty(t, reloaded.LabelURL)
	require.NotNil(t, reloaded.PurchasedAt)

	// Full coverage in an active state derives the order to Shipped.
	order, err := fx.store.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderShipped, order.State)

	history, err := fx.store.ListHistoryByFulfillment(ctx, f.ID)
	require.NoError(t, err)
	var purchases int
	for _, entry := range history {
		if _, ok := entry.Payload.(domain.PurchasedPayload); ok {
			purchases++
		}
	}
	assert.Equal(t, 1, purchases)
}

func TestTransition_CancelPurchasedRefunds(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	o, _ := fx.seedOrder(t)
	f := fx.seedFulfillment(t, o, domain.FulfillmentCreated, 2)

	_, err := fx.machine.Transition(ctx, f.ID, domain.FulfillmentPending)
	require.NoError(t, err)
	_, err = fx.machine.Transition(ctx, f.ID, domain.FulfillmentPurchased)
	require.NoError(t, err)

	refunded := ""
	fx.mockAPI.OnRefundShipment = func(ctx context.Context, shipmentID string) (*easypost.APIRefund, error) {
		refunded = shipmentID
		return &easypost.APIRefund{ID: "rfnd_1", ShipmentID: shipmentID, Status: "submitted"}, nil
	}

	result, err := fx.machine.Transition(ctx, f.ID, domain.FulfillmentCancelled)
	require.NoError(t, err)
	require.True(t, result.Ok, result.Reason)
	assert.NotEmpty(t, refunded)

	// A cancelled fulfillment frees its coverage; the order falls back.
	order, err := fx.store.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPaymentSettled, order.State)
}

func TestTransition_ManualSkipsShipmentCreation(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	o, _ := fx.seedOrder(t)
	f := &domain.Fulfillment{
		State:        domain.FulfillmentCreated,
		OrderIDs:     []string{o.ID},
		Carrier:      "USPS",
		Manual:       true,
		TrackingCode: "9405500000000000000000",
		Lines:        []domain.FulfillmentLine{{OrderLineID: "line-1", Quantity: 2}},
	}
	require.NoError(t, fx.store.SaveFulfillment(ctx, f))

	created := 0
	fx.mockAPI.OnCreateShipment = func(ctx context.Context, req *easypost.APIShipmentRequest) (*easypost.APIShipment, error) {
		created++
		return nil, nil
	}

	_, err := fx.machine.Transition(ctx, f.ID, domain.FulfillmentPending)
	require.NoError(t, err)
	result, err := fx.machine.Transition(ctx, f.ID, domain.FulfillmentPurchased)
	require.NoError(t, err)
	require.True(t, result.Ok, result.Reason)
	assert.Zero(t, created)

	reloaded, err := fx.store.GetFulfillment(ctx, f.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, reloaded.TrackerID, "manual purchase still registers a tracker")
}

func TestTransition_ManualTrackerFailureIsSwallowed(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	o, _ := fx.seedOrder(t)
	f := &domain.Fulfillment{
		State:        domain.FulfillmentCreated,
		OrderIDs:     []string{o.ID},
		Carrier:      "USPS",
		Manual:       true,
		TrackingCode: "9405500000000000000000",
		Lines:        []domain.FulfillmentLine{{OrderLineID: "line-1", Quantity: 2}},
	}
	require.NoError(t, fx.store.SaveFulfillment(ctx, f))

	fx.mockAPI.OnCreateTracker = func(ctx context.Context, req *easypost.TrackerRequest) (*easypost.APITracker, error) {
		return nil, &easypost.APIError{Code: "TRACKER.UNAVAILABLE", Message: "no tracker"}
	}

	_, err := fx.machine.Transition(ctx, f.ID, domain.FulfillmentPending)
	require.NoError(t, err)
	result, err := fx.machine.Transition(ctx, f.ID, domain.FulfillmentPurchased)
	require.NoError(t, err)
	assert.True(t, result.Ok, "tracker failure must not block a manual purchase")
}

func TestTransition_NoRateOfferedRejected(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	o, _ := fx.seedOrder(t)
	o.ShippingService = "NonexistentService"
	require.NoError(t, fx.store.SaveOrder(ctx, o))
	f := fx.seedFulfillment(t, o, domain.FulfillmentCreated, 2)
	f.Service = "NonexistentService"
	require.NoError(t, fx.store.SaveFulfillment(ctx, f))

	result, err := fx.machine.Transition(ctx, f.ID, domain.FulfillmentPending)
	require.NoError(t, err)
	assert.False(t, result.Ok)
	assert.Contains(t, result.Reason, "no rate offered")
}

func TestCreate_CoverageInvariant(t *testing.T) {
	fx := newFixture(t)
	o, _ := fx.seedOrder(t)
	fx.seedFulfillment(t, o, domain.FulfillmentPurchased, 2)

	_, result, err := fx.machine.Create(context.Background(), fulfillment.CreateInput{
		OrderIDs: []string{o.ID},
		Lines:    []domain.FulfillmentLine{{OrderLineID: "line-1", Quantity: 1}},
	})
	require.NoError(t, err)
	assert.False(t, result.Ok)
	assert.Contains(t, result.Reason, "overfulfilled")
}

func TestCreate_CopiesCarrierSelection(t *testing.T) {
	fx := newFixture(t)
	o, _ := fx.seedOrder(t)

	f, result, err := fx.machine.Create(context.Background(), fulfillment.CreateInput{
		OrderIDs: []string{o.ID},
		Lines:    []domain.FulfillmentLine{{OrderLineID: "line-1", Quantity: 2}},
	})
	require.NoError(t, err)
	require.True(t, result.Ok, result.Reason)
	assert.Equal(t, domain.FulfillmentCreated, f.State)
	assert.Equal(t, "USPS", f.Carrier)
	assert.Equal(t, "Priority", f.Service)
	assert.NotEmpty(t, f.ID)
}
