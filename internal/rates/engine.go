package rates

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/parcelforge/fulfillment/internal/cache"
	"github.com/parcelforge/fulfillment/internal/domain"
	"github.com/parcelforge/fulfillment/pkg/provider"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// AccountPolicy is the per-carrier-account rating policy.
type AccountPolicy struct {
	// FlatFeeCents is added to every rate billed through this account.
	FlatFeeCents int64
	// Eligible gates the account per order; a nil predicate always passes.
	Eligible func(o *domain.Order) bool
}

// Config holds the rate engine's filtering policy.
type Config struct {
	// OperatingCurrency is the only currency rates may be billed in.
	OperatingCurrency string
	// MinRateCents drops placeholder or broken quotes below the floor.
	MinRateCents int64
	// ForbiddenServices maps canonical carrier code to service codes that
	// must never be offered.
	ForbiddenServices map[string][]string
	// ExcludedServicePatterns drops services whose name contains any of
	// these fragments (deprioritized expedited/DDP-style services).
	ExcludedServicePatterns []string
	// CarrierAliases maps provider carrier-code variants to one canonical
	// code.
	CarrierAliases map[string]string
	// CarrierNames maps canonical codes to display names.
	CarrierNames map[string]string
	// QuoteTTL bounds how long raw quotes are cached. Quotes are offers,
	// not commitments; keep this seconds-scale.
	QuoteTTL time.Duration

	Insurance InsuranceConfig
}

// ServiceQuote is one normalized, billed service offering.
type ServiceQuote struct {
	RateID      string
	Service     string
	AmountCents int64
	Currency    string
	Insurance   InsuranceSplit
}

// CarrierQuote groups a carrier's eligible services.
type CarrierQuote struct {
	Code     string
	Name     string
	Services []ServiceQuote
}

// Engine shops and filters carrier rates.
type Engine struct {
	provider provider.Provider
	cache    cache.Cache
	logger   *otelzap.Logger
	cfg      Config
	accounts map[string]AccountPolicy
}

// Option configures optional Engine collaborators.
type Option func(*Engine)

// WithCache wires a read-through quote cache. Without it the engine uses a
// no-op cache.
func WithCache(c cache.Cache) Option {
	return func(e *Engine) { e.cache = c }
}

// WithAccountPolicy installs the policy for one carrier account.
func WithAccountPolicy(accountID string, p AccountPolicy) Option {
	return func(e *Engine) { e.accounts[accountID] = p }
}

// NewEngine creates a rate engine.
func NewEngine(p provider.Provider, cfg Config, logger *otelzap.Logger, opts ...Option) *Engine {
	if cfg.QuoteTTL == 0 {
		cfg.QuoteTTL = 30 * time.Second
	}
	e := &Engine{
		provider: p,
		cache:    cache.Nop{},
		logger:   logger,
		cfg:      cfg,
		accounts: make(map[string]AccountPolicy),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// BuildShipmentRequest assembles a provider shipment request for the given
// order lines: estimated dimensions, destination address, and customs items
// for international destinations. It fails if any item lacks the physical
// attributes needed for the estimate.
func BuildShipmentRequest(order *domain.Order, lines []domain.FulfillmentLine, variants map[string]*domain.ProductVariant, from provider.Address) (*provider.ShipmentRequest, error) {
	items := make([]PackedItem, 0, len(lines))
	for _, fl := range lines {
		ol := order.Line(fl.OrderLineID)
		if ol == nil {
			return nil, fmt.Errorf("order %s has no line %s", order.ID, fl.OrderLineID)
		}
		v := variants[ol.ProductVariantID]
		if v == nil {
			return nil, fmt.Errorf("variant %s not loaded", ol.ProductVariantID)
		}
		if v.WeightGrams <= 0 || v.LengthCm <= 0 || v.WidthCm <= 0 || v.HeightCm <= 0 {
			return nil, fmt.Errorf("variant %s is missing physical dimensions", v.SKU)
		}
		items = append(items, PackedItem{Variant: v, Quantity: fl.Quantity})
	}

	dims := EstimateDimensions(items)

	req := &provider.ShipmentRequest{
		From: from,
		To: provider.Address{
			Name:    order.Address.FullName,
			Company: order.Address.Company,
			Street1: order.Address.StreetLine1,
			Street2: order.Address.StreetLine2,
			City:    order.Address.City,
			State:   order.Address.Province,
			Zip:     order.Address.PostalCode,
			Country: order.Address.CountryCode,
			Phone:   order.Address.Phone,
			Email:   order.Address.Email,
		},
		Parcel: provider.Parcel{
			WeightGrams: dims.WeightGrams,
			LengthCm:    dims.LengthCm,
			WidthCm:     dims.WidthCm,
			HeightCm:    dims.HeightCm,
		},
		Reference: order.Code,
	}

	if order.Address.CountryCode != from.Country {
		for _, item := range items {
			v := item.Variant
			req.CustomsItems = append(req.CustomsItems, provider.CustomsItem{
				Description:   v.Description,
				Quantity:      item.Quantity,
				ValueCents:    v.UnitPriceCents * int64(item.Quantity),
				WeightGrams:   v.WeightGrams * item.Quantity,
				HSCode:        v.HSCode,
				OriginCountry: v.OriginCountry,
				Currency:      order.CurrencyCode,
			})
		}
	}

	return req, nil
}

// GetRawRates returns stateless quotes for the request, read through the
// cache. The cache is best-effort; a miss only costs a provider call.
func (e *Engine) GetRawRates(ctx context.Context, req *provider.ShipmentRequest) ([]provider.Rate, error) {
	key := requestKey(req)

	var cached []provider.Rate
	if e.cache.GetJSON(key, &cached) {
		return cached, nil
	}

	rated, err := e.provider.GetRates(ctx, req)
	if err != nil {
		return nil, err
	}

	e.cache.SetJSON(key, rated, e.cfg.QuoteTTL)
	return rated, nil
}

// QuoteFor fetches, normalizes, filters, and groups rates for an order.
// lineValueCents is the value of the goods being quoted; each surviving
// rate's insurance split uses lineValue + rate cost as the shipment value.
func (e *Engine) QuoteFor(ctx context.Context, order *domain.Order, req *provider.ShipmentRequest, lineValueCents int64) ([]CarrierQuote, error) {
	raw, err := e.GetRawRates(ctx, req)
	if err != nil {
		return nil, err
	}
	return e.Normalize(order, raw, lineValueCents), nil
}

// Normalize applies the filtering pipeline to raw rates and groups the
// survivors by canonical carrier.
func (e *Engine) Normalize(order *domain.Order, raw []provider.Rate, lineValueCents int64) []CarrierQuote {
	grouped := make(map[string]*CarrierQuote)
	var codes []string

	for _, r := range raw {
		cents, err := r.AmountCents()
		if err != nil {
			e.logger.Warn("Dropping rate with unparseable amount",
				zap.String("rate_id", r.ID), zap.String("amount", r.Amount))
			continue
		}

		// Placeholder and broken quotes come back as near-zero amounts.
		if cents < e.cfg.MinRateCents {
			continue
		}

		policy, hasPolicy := e.accounts[r.CarrierAccountID]
		if hasPolicy && policy.Eligible != nil && !policy.Eligible(order) {
			continue
		}

		billed := cents
		if hasPolicy {
			billed += policy.FlatFeeCents
		}

		if r.Currency != e.cfg.OperatingCurrency {
			continue
		}

		code := e.canonicalCarrier(r.Carrier)
		if e.serviceForbidden(code, r.Service) || e.serviceExcluded(r.Service) {
			continue
		}

		split := ComputeInsurance(lineValueCents+billed, e.cfg.Insurance)

		cq, ok := grouped[code]
		if !ok {
			cq = &CarrierQuote{Code: code, Name: e.carrierName(code)}
			grouped[code] = cq
			codes = append(codes, code)
		}
		cq.Services = append(cq.Services, ServiceQuote{
			RateID:      r.ID,
			Service:     r.Service,
			AmountCents: billed,
			Currency:    r.Currency,
			Insurance:   split,
		})
	}

	result := make([]CarrierQuote, 0, len(codes))
	for _, code := range codes {
		result = append(result, *grouped[code])
	}
	return result
}

// SelectRate finds the rate matching the chosen carrier and service among a
// shipment's rated options, honoring carrier aliasing.
func (e *Engine) SelectRate(shipmentRates []provider.Rate, carrier, service string) (*provider.Rate, error) {
	want := e.canonicalCarrier(carrier)
	for i := range shipmentRates {
		r := &shipmentRates[i]
		if e.canonicalCarrier(r.Carrier) == want && r.Service == service {
			return r, nil
		}
	}
	return nil, fmt.Errorf("%w: %s %s", provider.ErrRateNotFound, carrier, service)
}

// InvalidateQuotes drops all cached raw quotes.
func (e *Engine) InvalidateQuotes() {
	e.cache.DeletePrefix(rateKeyPrefix)
}

// Insurance exposes the engine's insurance configuration.
func (e *Engine) Insurance() InsuranceConfig {
	return e.cfg.Insurance
}

// OperatingCurrency exposes the engine's billing currency.
func (e *Engine) OperatingCurrency() string {
	return e.cfg.OperatingCurrency
}

func (e *Engine) canonicalCarrier(code string) string {
	if canonical, ok := e.cfg.CarrierAliases[code]; ok {
		return canonical
	}
	return code
}

func (e *Engine) carrierName(code string) string {
	if name, ok := e.cfg.CarrierNames[code]; ok {
		return name
	}
	return code
}

func (e *Engine) serviceForbidden(carrier, service string) bool {
	for _, s := range e.cfg.ForbiddenServices[carrier] {
		if s == service {
			return true
		}
	}
	return false
}

func (e *Engine) serviceExcluded(service string) bool {
	lower := strings.ToLower(service)
	for _, pattern := range e.cfg.ExcludedServicePatterns {
		if strings.Contains(lower, strings.ToLower(pattern)) {
			return true
		}
	}
	return false
}

const rateKeyPrefix = "rates:"

// requestKey hashes the shipment request into a stable cache key.
func requestKey(req *provider.ShipmentRequest) string {
	data, err := json.Marshal(req)
	if err != nil {
		return rateKeyPrefix + "unhashable"
	}
	sum := sha256.Sum256(data)
	return rateKeyPrefix + hex.EncodeToString(sum[:])
}
