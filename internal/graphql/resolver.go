package graphql

import (
	"context"
	"fmt"
	"time"

	"github.com/parcelforge/fulfillment/internal/domain"
	"github.com/parcelforge/fulfillment/internal/fulfillment"
	"github.com/parcelforge/fulfillment/internal/graphql/generated"
	"github.com/parcelforge/fulfillment/internal/labels"
	"github.com/parcelforge/fulfillment/internal/pickups"
	"github.com/parcelforge/fulfillment/internal/rates"
	"github.com/parcelforge/fulfillment/internal/store"
	"github.com/parcelforge/fulfillment/internal/telemetry"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
)

// Resolver is the root resolver for the operational schema. It holds
// dependencies needed by all resolvers.
type Resolver struct {
	Store     store.Store
	Machine   *fulfillment.Machine
	Batcher   *pickups.Batcher
	Engine    *rates.Engine
	Converter *labels.Converter
	Logger    *otelzap.Logger
	Metrics   *telemetry.Metrics
}

// NewResolver creates a new resolver with the given dependencies.
func NewResolver(st store.Store, machine *fulfillment.Machine, batcher *pickups.Batcher, engine *rates.Engine, converter *labels.Converter, logger *otelzap.Logger, metrics *telemetry.Metrics) *Resolver {
	return &Resolver{
		Store:     st,
		Machine:   machine,
		Batcher:   batcher,
		Engine:    engine,
		Converter: converter,
		Logger:    logger,
		Metrics:   metrics,
	}
}

// Query returns the query resolver.
func (r *Resolver) Query() *QueryResolver { return &QueryResolver{r} }

// Mutation returns the mutation resolver.
func (r *Resolver) Mutation() *MutationResolver { return &MutationResolver{r} }

// QueryResolver resolves read operations.
type QueryResolver struct{ *Resolver }

// Health reports service liveness.
func (r *QueryResolver) Health(ctx context.Context) (string, error) {
	return "ok", nil
}

// Fulfillment returns one fulfillment by id.
func (r *QueryResolver) Fulfillment(ctx context.Context, id string) (*generated.Fulfillment, error) {
	f, err := r.Store.GetFulfillment(ctx, id)
	if err != nil {
		return nil, err
	}
	return fulfillmentToGraphQL(f, r.Engine.OperatingCurrency()), nil
}

// Pickup returns one pickup by id.
func (r *QueryResolver) Pickup(ctx context.Context, id string) (*generated.Pickup, error) {
	p, err := r.Store.GetPickup(ctx, id)
	if err != nil {
		return nil, err
	}
	return pickupToGraphQL(p, r.Engine.OperatingCurrency()), nil
}

// MutationResolver resolves write operations.
type MutationResolver struct{ *Resolver }

// ForgeCreateFulfillment creates a fulfillment in the Created state.
func (r *MutationResolver) ForgeCreateFulfillment(ctx context.Context, input generated.CreateFulfillmentInput) (*generated.TransitionResult, error) {
	in := fulfillment.CreateInput{
		OrderIDs: input.OrderIDs,
		Lines:    linesInputToDomain(input.Lines),
	}
	if input.Manual != nil {
		in.Manual = *input.Manual
	}
	if input.TrackingCode != nil {
		in.TrackingCode = *input.TrackingCode
	}

	f, result, err := r.Machine.Create(ctx, in)
	if err != nil {
		return nil, err
	}
	return transitionResultToGraphQL(result, f, r.Engine.OperatingCurrency()), nil
}

// ForgeTransitionFulfillment requests a fulfillment state transition.
func (r *MutationResolver) ForgeTransitionFulfillment(ctx context.Context, input generated.TransitionFulfillmentInput) (*generated.TransitionResult, error) {
	to := domain.FulfillmentState(input.To)
	result, err := r.Machine.Transition(ctx, input.FulfillmentID, to)

	outcome := "accepted"
	if err != nil {
		outcome = "error"
	} else if !result.Ok {
		outcome = "rejected"
	}
	if r.Metrics != nil {
		r.Metrics.RecordTransition(input.To, outcome)
	}
	if err != nil {
		return nil, err
	}

	f, err := r.Store.GetFulfillment(ctx, input.FulfillmentID)
	if err != nil {
		return nil, err
	}
	return transitionResultToGraphQL(result, f, r.Engine.OperatingCurrency()), nil
}

// ForgeQuoteOrder shops carrier quotes for an order's lines.
func (r *MutationResolver) ForgeQuoteOrder(ctx context.Context, input generated.QuoteOrderInput) ([]*generated.CarrierQuote, error) {
	order, err := r.Store.GetOrder(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}

	lines := linesInputToDomain(input.Lines)
	if len(lines) == 0 {
		for _, ol := range order.Lines {
			lines = append(lines, domain.FulfillmentLine{OrderLineID: ol.ID, Quantity: ol.Quantity})
		}
	}

	variants := make(map[string]*domain.ProductVariant)
	var lineValue int64
	for _, fl := range lines {
		ol := order.Line(fl.OrderLineID)
		if ol == nil {
			return nil, fmt.Errorf("order %s has no line %s", order.ID, fl.OrderLineID)
		}
		v, err := r.Store.GetVariant(ctx, ol.ProductVariantID)
		if err != nil {
			return nil, err
		}
		variants[v.ID] = v
		lineValue += ol.UnitPriceCents * int64(fl.Quantity)
	}

	req, err := rates.BuildShipmentRequest(order, lines, variants, r.Batcher.PickupAddress())
	if err != nil {
		return nil, err
	}

	quotes, err := r.Engine.QuoteFor(ctx, order, req, lineValue)
	if err != nil {
		return nil, err
	}
	return quotesToGraphQL(quotes), nil
}

// ForgeAssignPickup adds purchased fulfillments to open pickups.
func (r *MutationResolver) ForgeAssignPickup(ctx context.Context, input generated.AssignPickupInput) (*generated.AssignPickupResult, error) {
	res, err := r.Batcher.AssignToPickup(ctx, input.FulfillmentIDs)
	if err != nil {
		return nil, err
	}
	return assignResultToGraphQL(res), nil
}

// ForgeRemoveFromPickup removes fulfillments from an open pickup.
func (r *MutationResolver) ForgeRemoveFromPickup(ctx context.Context, input generated.RemoveFromPickupInput) (*generated.Pickup, error) {
	if err := r.Batcher.RemoveFromPickup(ctx, input.PickupID, input.FulfillmentIDs); err != nil {
		return nil, err
	}
	p, err := r.Store.GetPickup(ctx, input.PickupID)
	if err != nil {
		return nil, err
	}
	return pickupToGraphQL(p, r.Engine.OperatingCurrency()), nil
}

// ForgeClosePickup closes a pickup, tendering and manifesting its members.
func (r *MutationResolver) ForgeClosePickup(ctx context.Context, input generated.ClosePickupInput) (*generated.Pickup, error) {
	if err := r.Batcher.Close(ctx, input.PickupID); err != nil {
		return nil, err
	}
	p, err := r.Store.GetPickup(ctx, input.PickupID)
	if err != nil {
		return nil, err
	}
	return pickupToGraphQL(p, r.Engine.OperatingCurrency()), nil
}

// ForgeConvertLabels renders raw ZPL labels into shared documents with
// per-item page ranges.
func (r *MutationResolver) ForgeConvertLabels(ctx context.Context, input generated.ConvertLabelsInput) ([]*generated.LabelResult, error) {
	items := make([]labels.Item, 0, len(input.Items))
	for _, in := range input.Items {
		if in == nil {
			continue
		}
		items = append(items, labels.Item{ID: in.ID, Raw: in.Zpl})
	}

	rendered, err := r.Converter.Convert(ctx, items)
	if err != nil {
		return nil, err
	}

	out := make([]*generated.LabelResult, 0, len(items))
	for _, item := range items {
		res := rendered[item.ID]
		lr := &generated.LabelResult{
			ID:         item.ID,
			PageOffset: res.PageOffset,
			PageCount:  res.PageCount,
		}
		if res.Err != nil {
			msg := res.Err.Error()
			lr.Error = &msg
		} else {
			lr.Document = res.Document
		}
		out = append(out, lr)
	}
	return out, nil
}

// ForgeSchedulePickup buys a carrier pickup window.
func (r *MutationResolver) ForgeSchedulePickup(ctx context.Context, input generated.SchedulePickupInput) (*generated.Pickup, error) {
	start, err := time.Parse(time.RFC3339, input.WindowStart)
	if err != nil {
		return nil, fmt.Errorf("parsing windowStart: %w", err)
	}
	end, err := time.Parse(time.RFC3339, input.WindowEnd)
	if err != nil {
		return nil, fmt.Errorf("parsing windowEnd: %w", err)
	}
	if !end.After(start) {
		return nil, fmt.Errorf("windowEnd must be after windowStart")
	}

	if err := r.Batcher.Schedule(ctx, input.PickupID, start, end); err != nil {
		return nil, err
	}
	p, err := r.Store.GetPickup(ctx, input.PickupID)
	if err != nil {
		return nil, err
	}
	return pickupToGraphQL(p, r.Engine.OperatingCurrency()), nil
}
