package main

import (
	"context"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/parcelforge/fulfillment/internal/cache"
	"github.com/parcelforge/fulfillment/internal/config"
	"github.com/parcelforge/fulfillment/internal/fulfillment"
	"github.com/parcelforge/fulfillment/internal/graphql"
	"github.com/parcelforge/fulfillment/internal/labels"
	"github.com/parcelforge/fulfillment/internal/orders"
	"github.com/parcelforge/fulfillment/internal/pickups"
	"github.com/parcelforge/fulfillment/internal/rates"
	"github.com/parcelforge/fulfillment/internal/store"
	"github.com/parcelforge/fulfillment/internal/telemetry"
	"github.com/parcelforge/fulfillment/internal/webhook"
	"github.com/parcelforge/fulfillment/pkg/provider"
	"github.com/parcelforge/fulfillment/pkg/provider/easypost"
)

func loadConfig() (*config.Config, error) {
	return config.Load()
}

func initLogger(level string) (*otelzap.Logger, error) {
	return telemetry.NewLogger(level)
}

func initTracer(ctx context.Context, cfg *config.Config) (func(context.Context) error, error) {
	if !cfg.OTELEnabled {
		return func(context.Context) error { return nil }, nil
	}

	_, shutdown, err := telemetry.InitTracer(ctx, cfg.OTELEndpoint, cfg.ServiceName, cfg.Version)
	return shutdown, err
}

// App bundles the wired subsystems the server and startup tasks consume.
type App struct {
	Provider   provider.Provider
	Resolver   *graphql.Resolver
	Dispatcher *webhook.Dispatcher
}

func initApp(cfg *config.Config, logger *otelzap.Logger, metrics *telemetry.Metrics) *App {
	var tracer trace.Tracer
	if cfg.OTELEnabled {
		tracer = otel.GetTracerProvider().Tracer(cfg.ServiceName)
	}

	ep := easypost.New(easypost.Config{
		APIKey:  cfg.EasyPostAPIKey,
		BaseURL: cfg.EasyPostBaseURL,
		UseMock: cfg.EasyPostUseMock,
	}, logger, tracer)

	st := store.NewMemory()
	quoteCache := cache.NewMemory("fulfillment", 5*time.Minute)

	engineOpts := []rates.Option{}
	if cfg.CacheRateQuote {
		engineOpts = append(engineOpts, rates.WithCache(quoteCache))
	}
	for accountID, fee := range cfg.CarrierAccountFees {
		engineOpts = append(engineOpts, rates.WithAccountPolicy(accountID, rates.AccountPolicy{
			FlatFeeCents: fee,
		}))
	}
	engine := rates.NewEngine(ep, rates.Config{
		OperatingCurrency:       cfg.OperatingCurrency,
		MinRateCents:            cfg.MinRateCents,
		ForbiddenServices:       cfg.ForbiddenServiceLists(),
		ExcludedServicePatterns: cfg.ExcludedServicePatterns,
		CarrierAliases:          cfg.CarrierAliases,
		CarrierNames:            cfg.CarrierNames,
		QuoteTTL:                cfg.QuoteTTL,
		Insurance: rates.InsuranceConfig{
			MinInsureValueCents: cfg.MinInsureValueCents,
			InsurePercent:       cfg.InsurePercent,
		},
	}, logger, engineOpts...)

	warehouse := warehouseAddress(cfg)
	reconciler := orders.NewReconciler(st, logger)
	handler := fulfillment.NewShippingHandler(ep, engine, st, warehouse, logger)
	machine := fulfillment.NewMachine(st, handler, reconciler, logger)
	batcher := pickups.NewBatcher(st, ep, machine, warehouse, logger)

	dispatcher := webhook.NewDispatcher(cfg.WebhookSecret, logger,
		fulfillment.NewWebhookHandler(machine, st, logger),
		pickups.NewWebhookHandler(st, logger),
	)

	converter := labels.NewConverter(labels.Config{
		Endpoint:    cfg.LabelEndpoint,
		PageCeiling: cfg.LabelPageCeiling,
		MaxAttempts: cfg.LabelMaxAttempts,
	}, logger)

	resolver := graphql.NewResolver(st, machine, batcher, engine, converter, logger, metrics)

	return &App{
		Provider:   ep,
		Resolver:   resolver,
		Dispatcher: dispatcher,
	}
}

func warehouseAddress(cfg *config.Config) provider.Address {
	return provider.Address{
		Name:    cfg.WarehouseName,
		Company: cfg.WarehouseCompany,
		Street1: cfg.WarehouseStreet1,
		Street2: cfg.WarehouseStreet2,
		City:    cfg.WarehouseCity,
		State:   cfg.WarehouseState,
		Zip:     cfg.WarehouseZip,
		Country: cfg.WarehouseCountry,
		Phone:   cfg.WarehousePhone,
		Email:   cfg.WarehouseEmail,
	}
}
