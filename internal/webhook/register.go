package webhook

import (
	"context"
	"fmt"

	"github.com/parcelforge/fulfillment/pkg/provider"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// SyncRegistration makes the provider push events to the given public URL,
// re-pointing a stale registration or creating one when none exists. Run at
// startup; safe to run repeatedly.
func SyncRegistration(ctx context.Context, p provider.Provider, publicURL string, logger *otelzap.Logger) error {
	if publicURL == "" {
		logger.Ctx(ctx).Warn("No public webhook URL configured, skipping provider registration")
		return nil
	}

	hooks, err := p.ListWebhooks(ctx)
	if err != nil {
		return fmt.Errorf("listing provider webhooks: %w", err)
	}

	for _, h := range hooks {
		if h.URL == publicURL {
			logger.Ctx(ctx).Info("Webhook registration up to date", zap.String("url", publicURL))
			return nil
		}
	}

	if len(hooks) > 0 {
		updated, err := p.UpdateWebhook(ctx, hooks[0].ID, publicURL)
		if err != nil {
			return fmt.Errorf("re-pointing provider webhook %s: %w", hooks[0].ID, err)
		}
		logger.Ctx(ctx).Info("Webhook registration re-pointed",
			zap.String("webhook_id", updated.ID),
			zap.String("url", publicURL),
		)
		return nil
	}

	created, err := p.CreateWebhook(ctx, publicURL)
	if err != nil {
		return fmt.Errorf("registering provider webhook: %w", err)
	}
	logger.Ctx(ctx).Info("Webhook registered",
		zap.String("webhook_id", created.ID),
		zap.String("url", publicURL),
	)
	return nil
}
