// Package orders derives an order's status from the aggregate state of its
// fulfillments.
package orders

import (
	"context"
	"fmt"
	"sync"

	"github.com/parcelforge/fulfillment/internal/domain"
	"github.com/parcelforge/fulfillment/internal/store"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// allowedNext is the order status ladder once an order is placed. The
// pre-placement states are included so the table is the single source of
// truth for order transitions.
var allowedNext = map[domain.OrderState][]domain.OrderState{
	domain.OrderAddingItems:       {domain.OrderArrangingPayment, domain.OrderCancelled},
	domain.OrderArrangingPayment:  {domain.OrderPaymentAuthorized, domain.OrderPaymentSettled, domain.OrderAddingItems, domain.OrderCancelled},
	domain.OrderPaymentAuthorized: {domain.OrderPaymentSettled, domain.OrderModifying, domain.OrderCancelled},
	domain.OrderPaymentSettled: {
		domain.OrderOnHold, domain.OrderPartiallyShipped, domain.OrderShipped, domain.OrderDelivered,
		domain.OrderModifying, domain.OrderArrangingAdditionalPayment, domain.OrderCancelled,
	},
	domain.OrderOnHold: {
		domain.OrderPaymentSettled, domain.OrderPartiallyShipped, domain.OrderShipped, domain.OrderDelivered,
		domain.OrderCancelled,
	},
	domain.OrderPartiallyShipped: {
		domain.OrderPaymentSettled, domain.OrderShipped, domain.OrderPartiallyDelivered, domain.OrderDelivered,
		domain.OrderOnHold, domain.OrderCancelled,
	},
	domain.OrderShipped: {
		domain.OrderPaymentSettled, domain.OrderPartiallyShipped, domain.OrderPartiallyDelivered, domain.OrderDelivered,
		domain.OrderOnHold, domain.OrderCancelled,
	},
	domain.OrderPartiallyDelivered: {
		domain.OrderShipped, domain.OrderPartiallyShipped, domain.OrderDelivered, domain.OrderCancelled,
	},
	domain.OrderModifying:                  {domain.OrderPaymentSettled, domain.OrderArrangingAdditionalPayment, domain.OrderCancelled},
	domain.OrderArrangingAdditionalPayment: {domain.OrderPaymentSettled, domain.OrderCancelled},
	domain.OrderDelivered:                  {},
	domain.OrderCancelled:                  {},
}

// CanTransition reports whether the from -> to edge exists in the ladder.
func CanTransition(from, to domain.OrderState) bool {
	for _, next := range allowedNext[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Coverage is the aggregate fulfillment picture of one order.
type Coverage struct {
	// AllFulfilled is true when every order line's quantity is fully covered
	// by fulfillments in an active state.
	AllFulfilled bool
	// AnyFulfilled is true when at least one line has active coverage.
	AnyFulfilled bool
	// AllDelivered is true when every active fulfillment is individually
	// Delivered.
	AllDelivered bool
}

// ComputeCoverage sums fulfilled quantities per order line across
// active-state fulfillments.
func ComputeCoverage(order *domain.Order, fulfillments []*domain.Fulfillment) Coverage {
	covered := make(map[string]int)
	activeCount := 0
	deliveredCount := 0
	for _, f := range fulfillments {
		if !f.State.IsActive() {
			continue
		}
		activeCount++
		if f.State == domain.FulfillmentDelivered {
			deliveredCount++
		}
		for _, fl := range f.Lines {
			covered[fl.OrderLineID] += fl.Quantity
		}
	}

	cov := Coverage{AllFulfilled: true}
	for _, ol := range order.Lines {
		c := covered[ol.ID]
		if c > 0 {
			cov.AnyFulfilled = true
		}
		if c < ol.Quantity {
			cov.AllFulfilled = false
		}
	}
	if len(order.Lines) == 0 {
		cov.AllFulfilled = false
	}
	cov.AllDelivered = activeCount > 0 && deliveredCount == activeCount
	return cov
}

// targetState selects the state the order ought to be in for the given
// coverage. Returns empty when the current state should be kept.
func targetState(current domain.OrderState, cov Coverage) domain.OrderState {
	switch {
	case cov.AllDelivered && cov.AllFulfilled:
		return domain.OrderDelivered
	case cov.AllFulfilled:
		return domain.OrderShipped
	case cov.AnyFulfilled:
		return domain.OrderPartiallyShipped
	default:
		// An operator hold is not undone by reconciliation.
		if current == domain.OrderOnHold {
			return ""
		}
		return domain.OrderPaymentSettled
	}
}

// Reconciler derives order states after fulfillment transitions and
// tracking webhooks.
type Reconciler struct {
	store  store.Store
	logger *otelzap.Logger
}

// NewReconciler creates an order reconciler.
func NewReconciler(st store.Store, logger *otelzap.Logger) *Reconciler {
	return &Reconciler{store: st, logger: logger}
}

// Reconcile re-derives the order's state from its fulfillments. It is a
// no-op unless the order is in a placed state. A derived transition that the
// ladder or its guards refuse indicates the reconciler and the guards
// disagree, and is escalated as an error.
func (r *Reconciler) Reconcile(ctx context.Context, orderID string) error {
	order, err := r.store.GetOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("loading order %s: %w", orderID, err)
	}
	if !order.State.IsPlaced() {
		return nil
	}

	fulfillments, err := r.store.FindFulfillmentsByOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("loading fulfillments for order %s: %w", orderID, err)
	}

	cov := ComputeCoverage(order, fulfillments)
	target := targetState(order.State, cov)
	if target == "" || target == order.State {
		return nil
	}
	if !CanTransition(order.State, target) {
		return nil
	}

	if reason := checkEntryGuards(target, cov); reason != "" {
		return fmt.Errorf("order %s: reconciler derived %s but guard refused: %s", orderID, target, reason)
	}

	from := order.State
	order.State = target
	if err := r.store.SaveOrder(ctx, order); err != nil {
		return fmt.Errorf("persisting order %s: %w", orderID, err)
	}

	r.logger.Ctx(ctx).Info("Order reconciled",
		zap.String("order_id", orderID),
		zap.String("from", string(from)),
		zap.String("to", string(target)),
	)
	return nil
}

// checkEntryGuards enforces the coverage requirements of shipped states.
func checkEntryGuards(target domain.OrderState, cov Coverage) string {
	switch target {
	case domain.OrderShipped:
		if !cov.AllFulfilled {
			return "not all order lines are fully covered by active fulfillments"
		}
	case domain.OrderPartiallyShipped:
		if !cov.AnyFulfilled {
			return "no order line has active fulfillment coverage"
		}
		if cov.AllFulfilled {
			return "coverage is complete; PartiallyShipped does not apply"
		}
	}
	return ""
}

// ReconcileAll reconciles many orders, isolating per-order failures so one
// order's error never blocks the rest.
func (r *Reconciler) ReconcileAll(ctx context.Context, orderIDs []string) map[string]error {
	results := make(map[string]error, len(orderIDs))
	mu := &sync.Mutex{}

	g, ctx := errgroup.WithContext(ctx)
	for _, id := range orderIDs {
		id := id
		g.Go(func() error {
			err := r.Reconcile(ctx, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				results[id] = err
			}
			return nil // don't fail the group, continue with other orders
		})
	}
	g.Wait()
	return results
}
