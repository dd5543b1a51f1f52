// Package fulfillment implements the fulfillment state machine: a
// table-driven transition engine whose entries carry guards, handler side
// effects, and generic completion effects.
package fulfillment

import (
	"context"
	"fmt"
	"strings"

	"github.com/parcelforge/fulfillment/internal/domain"
	"github.com/parcelforge/fulfillment/internal/store"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// allowedNext is the transition table. A requested transition absent from
// this table is rejected before any side effect runs.
var allowedNext = map[domain.FulfillmentState][]domain.FulfillmentState{
	domain.FulfillmentCreated:   {domain.FulfillmentPending, domain.FulfillmentPurchased, domain.FulfillmentOnHold, domain.FulfillmentCancelled},
	domain.FulfillmentPending:   {domain.FulfillmentPurchased, domain.FulfillmentCreated, domain.FulfillmentOnHold, domain.FulfillmentCancelled},
	domain.FulfillmentOnHold:    {domain.FulfillmentPending, domain.FulfillmentCreated, domain.FulfillmentCancelled},
	domain.FulfillmentPurchased: {domain.FulfillmentTendered, domain.FulfillmentShipped, domain.FulfillmentDelivered, domain.FulfillmentCancelled},
	domain.FulfillmentTendered:  {domain.FulfillmentShipped, domain.FulfillmentDelivered, domain.FulfillmentPurchased, domain.FulfillmentCancelled},
	domain.FulfillmentShipped:   {domain.FulfillmentDelivered},
	domain.FulfillmentDelivered: {},
	domain.FulfillmentCancelled: {},
}

// CanTransition reports whether the from -> to edge exists in the table.
func CanTransition(from, to domain.FulfillmentState) bool {
	for _, next := range allowedNext[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Result is the outcome of a transition attempt. A guard rejection is a
// value, not an error: Ok is false and Reason carries the human-readable
// explanation. Errors are reserved for real failures.
type Result struct {
	Ok     bool
	Reason string
}

func accepted() Result { return Result{Ok: true} }

func rejected(reason string) Result { return Result{Reason: reason} }

// Handler applies policy side effects while a transition is in flight,
// after the generic guards pass. A non-empty reject reason blocks the
// transition; an error blocks it and propagates.
type Handler interface {
	Code() string
	BeforeTransition(ctx context.Context, f *domain.Fulfillment, from, to domain.FulfillmentState) (reject string, err error)
}

// OrderReconciler re-derives an order's state from its fulfillments.
type OrderReconciler interface {
	Reconcile(ctx context.Context, orderID string) error
}

// Machine drives fulfillment transitions. Callers must serialize transitions
// on a single fulfillment externally; the machine does not make concurrent
// transitions on one entity safe.
type Machine struct {
	store      store.Store
	handler    Handler
	reconciler OrderReconciler
	logger     *otelzap.Logger
}

// NewMachine creates a fulfillment state machine.
func NewMachine(st store.Store, handler Handler, reconciler OrderReconciler, logger *otelzap.Logger) *Machine {
	return &Machine{
		store:      st,
		handler:    handler,
		reconciler: reconciler,
		logger:     logger,
	}
}

// Transition attempts to move the fulfillment to the target state. Guards
// run first, then handler effects, then generic completion effects; nothing
// is persisted if a guard or the handler rejects.
func (m *Machine) Transition(ctx context.Context, fulfillmentID string, to domain.FulfillmentState) (Result, error) {
	f, err := m.store.GetFulfillment(ctx, fulfillmentID)
	if err != nil {
		return Result{}, fmt.Errorf("loading fulfillment %s: %w", fulfillmentID, err)
	}
	return m.transition(ctx, f, to)
}

func (m *Machine) transition(ctx context.Context, f *domain.Fulfillment, to domain.FulfillmentState) (Result, error) {
	from := f.State
	if from == to {
		return accepted(), nil
	}
	if !CanTransition(from, to) {
		return rejected(fmt.Sprintf("cannot transition fulfillment from %s to %s", from, to)), nil
	}

	if to == domain.FulfillmentPending && from != domain.FulfillmentPending {
		if reason, err := m.checkStock(ctx, f); err != nil {
			return Result{}, err
		} else if reason != "" {
			return rejected(reason), nil
		}
	}

	if m.handler != nil {
		reject, err := m.handler.BeforeTransition(ctx, f, from, to)
		if err != nil {
			return Result{}, err
		}
		if reject != "" {
			return rejected(reject), nil
		}
	}

	f.State = to
	if err := m.applyGenericEffects(ctx, f, from, to); err != nil {
		return Result{}, err
	}

	if err := m.store.SaveFulfillment(ctx, f); err != nil {
		return Result{}, fmt.Errorf("persisting fulfillment %s: %w", f.ID, err)
	}

	m.logger.Ctx(ctx).Info("Fulfillment transitioned",
		zap.String("fulfillment_id", f.ID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)

	for _, orderID := range f.OrderIDs {
		entry := &domain.HistoryEntry{
			OrderID:       orderID,
			FulfillmentID: f.ID,
			Payload: domain.StateTransitionPayload{
				FulfillmentID: f.ID,
				From:          from,
				To:            to,
			},
		}
		if err := m.store.AppendHistory(ctx, entry); err != nil {
			return Result{}, fmt.Errorf("appending history for order %s: %w", orderID, err)
		}
		if m.reconciler != nil {
			if err := m.reconciler.Reconcile(ctx, orderID); err != nil {
				return Result{}, fmt.Errorf("reconciling order %s: %w", orderID, err)
			}
		}
	}

	return accepted(), nil
}

// checkStock verifies each line's variant has enough on-hand stock. Returns
// a per-line human-readable reason when any line falls short.
func (m *Machine) checkStock(ctx context.Context, f *domain.Fulfillment) (string, error) {
	var shortfalls []string
	for _, fl := range f.Lines {
		v, ol, err := m.variantForLine(ctx, f, fl.OrderLineID)
		if err != nil {
			return "", err
		}
		_ = ol
		if v.StockOnHand < fl.Quantity {
			shortfalls = append(shortfalls, fmt.Sprintf(
				"insufficient stock for %s: %d on hand, %d requested", v.SKU, v.StockOnHand, fl.Quantity))
		}
	}
	return strings.Join(shortfalls, "; "), nil
}

// applyGenericEffects runs the handler-independent completion effects.
func (m *Machine) applyGenericEffects(ctx context.Context, f *domain.Fulfillment, from, to domain.FulfillmentState) error {
	enteringPending := to == domain.FulfillmentPending && from != domain.FulfillmentPending
	// Moving forward to Purchased keeps the sale and the shipment; only an
	// aborted attempt unwinds.
	abortingPending := from == domain.FulfillmentPending && to != domain.FulfillmentPending && to != domain.FulfillmentPurchased

	if enteringPending {
		if err := m.moveStock(ctx, f, saleDirectionSell); err != nil {
			return err
		}
	}

	if abortingPending {
		if err := m.moveStock(ctx, f, saleDirectionReturn); err != nil {
			return err
		}
		// Prices and carriers may have changed by the next attempt; force a
		// fresh shipment on re-entry, except when cancelling.
		if to != domain.FulfillmentCancelled {
			f.ShipmentID = ""
			f.RateID = ""
		}
	}

	return nil
}

// variantForLine resolves the stock-bearing variant behind an order line of
// any owning order.
func (m *Machine) variantForLine(ctx context.Context, f *domain.Fulfillment, orderLineID string) (*domain.ProductVariant, *domain.OrderLine, error) {
	for _, orderID := range f.OrderIDs {
		order, err := m.store.GetOrder(ctx, orderID)
		if err != nil {
			return nil, nil, fmt.Errorf("loading order %s: %w", orderID, err)
		}
		if ol := order.Line(orderLineID); ol != nil {
			v, err := m.store.GetVariant(ctx, ol.ProductVariantID)
			if err != nil {
				return nil, nil, fmt.Errorf("loading variant %s: %w", ol.ProductVariantID, err)
			}
			return v, ol, nil
		}
	}
	return nil, nil, fmt.Errorf("no owning order carries line %s", orderLineID)
}
