package webhook

import (
	"context"

	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// Handler consumes the subset of events it recognizes. Handlers must be
// idempotent: delivery is at-least-once and replays reach them unchanged.
type Handler interface {
	// Handles reports whether this handler consumes the event description.
	Handles(description string) bool
	// Handle processes one event.
	Handle(ctx context.Context, event *Event) error
}

// Dispatcher verifies and routes inbound events. Handler failures are
// isolated: every handler that recognizes an event is attempted, and an
// event no handler recognizes is logged, not an error.
type Dispatcher struct {
	secret   string
	handlers []Handler
	logger   *otelzap.Logger
}

// NewDispatcher creates a dispatcher over the given handlers.
func NewDispatcher(secret string, logger *otelzap.Logger, handlers ...Handler) *Dispatcher {
	return &Dispatcher{
		secret:   secret,
		handlers: handlers,
		logger:   logger,
	}
}

// Dispatch verifies the signature, parses the body, and routes the event.
// A signature or parse failure is returned to the caller; handler failures
// are logged per handler and do not surface.
func (d *Dispatcher) Dispatch(ctx context.Context, body []byte, signatureHeader string) error {
	if err := VerifySignature(d.secret, body, signatureHeader); err != nil {
		return err
	}
	event, err := ParseEvent(body)
	if err != nil {
		return err
	}
	d.route(ctx, event)
	return nil
}

func (d *Dispatcher) route(ctx context.Context, event *Event) {
	matched := 0
	for _, h := range d.handlers {
		if !h.Handles(event.Description) {
			continue
		}
		matched++
		if err := h.Handle(ctx, event); err != nil {
			d.logger.Ctx(ctx).Error("Webhook handler failed",
				zap.String("event_id", event.ID),
				zap.String("description", event.Description),
				zap.Error(err),
			)
		}
	}
	if matched == 0 {
		d.logger.Ctx(ctx).Info("Webhook event not handled",
			zap.String("event_id", event.ID),
			zap.String("description", event.Description),
		)
	}
}
