package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.opentelemetry.io/otel/attribute"
)

// Config holds all configuration for the service.
type Config struct {
	// Server
	Port     int    `envconfig:"PORT" default:"80"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// EasyPost
	EasyPostAPIKey  string `envconfig:"EASYPOST_API_KEY"`
	EasyPostBaseURL string `envconfig:"EASYPOST_BASE_URL" default:"https://api.easypost.com/v2"`
	EasyPostUseMock bool   `envconfig:"EASYPOST_USE_MOCK" default:"false"`

	// Webhooks
	WebhookSecret    string `envconfig:"WEBHOOK_SECRET"`
	WebhookPublicURL string `envconfig:"WEBHOOK_PUBLIC_URL"`

	// Rates
	OperatingCurrency string `envconfig:"OPERATING_CURRENCY" default:"USD"`
	// MinRateCents drops quotes below this floor; they are data errors, not
	// bargains.
	MinRateCents   int64         `envconfig:"MIN_RATE_CENTS" default:"100"`
	QuoteTTL       time.Duration `envconfig:"QUOTE_TTL" default:"30s"`
	CacheRateQuote bool          `envconfig:"CACHE_RATE_QUOTES" default:"true"`

	// CarrierAccountFees maps a provider carrier-account id to a flat fee in
	// cents added to every rate billed through it.
	CarrierAccountFees map[string]int64 `envconfig:"CARRIER_ACCOUNT_FEES"`

	// ForbiddenServices maps a carrier code to a ";"-separated list of
	// service codes never offered, e.g. "USPS:MediaMail;LibraryMail".
	ForbiddenServices map[string]string `envconfig:"FORBIDDEN_SERVICES"`
	// ExcludedServicePatterns drops services matching any substring,
	// comma-separated.
	ExcludedServicePatterns []string `envconfig:"EXCLUDED_SERVICE_PATTERNS"`
	// CarrierAliases maps a provider carrier code to the canonical code,
	// e.g. "FedExDefault:FedEx".
	CarrierAliases map[string]string `envconfig:"CARRIER_ALIASES"`
	// CarrierNames maps a canonical carrier code to a display name.
	CarrierNames map[string]string `envconfig:"CARRIER_NAMES"`

	// Insurance
	MinInsureValueCents int64   `envconfig:"MIN_INSURE_VALUE_CENTS" default:"15000"`
	InsurePercent       float64 `envconfig:"INSURE_PERCENT" default:"0.8"`

	// Warehouse address used as shipment origin and pickup location.
	WarehouseName    string `envconfig:"WAREHOUSE_NAME"`
	WarehouseCompany string `envconfig:"WAREHOUSE_COMPANY"`
	WarehouseStreet1 string `envconfig:"WAREHOUSE_STREET1"`
	WarehouseStreet2 string `envconfig:"WAREHOUSE_STREET2"`
	WarehouseCity    string `envconfig:"WAREHOUSE_CITY"`
	WarehouseState   string `envconfig:"WAREHOUSE_STATE"`
	WarehouseZip     string `envconfig:"WAREHOUSE_ZIP"`
	WarehouseCountry string `envconfig:"WAREHOUSE_COUNTRY" default:"US"`
	WarehousePhone   string `envconfig:"WAREHOUSE_PHONE"`
	WarehouseEmail   string `envconfig:"WAREHOUSE_EMAIL"`

	// Label rendering
	LabelEndpoint    string `envconfig:"LABEL_ENDPOINT" default:"http://api.labelary.com/v1/printers/8dpmm/labels/4x6/"`
	LabelPageCeiling int    `envconfig:"LABEL_PAGE_CEILING" default:"50"`
	LabelMaxAttempts int    `envconfig:"LABEL_MAX_ATTEMPTS" default:"4"`

	// Telemetry
	OTELEnabled  bool   `envconfig:"OTEL_ENABLED" default:"true"`
	OTELEndpoint string `envconfig:"OTEL_ENDPOINT" default:"http://jaeger-collector.svc.cluster.local:4318"`
	ServiceName  string `envconfig:"SERVICE_NAME" default:"parcelforge-fulfillment"`
	Version      string `envconfig:"SERVICE_VERSION" default:"0.0.1"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return &cfg, nil
}

// ForbiddenServiceLists splits the per-carrier service lists.
func (c *Config) ForbiddenServiceLists() map[string][]string {
	out := make(map[string][]string, len(c.ForbiddenServices))
	for carrier, joined := range c.ForbiddenServices {
		for _, svc := range strings.Split(joined, ";") {
			if svc = strings.TrimSpace(svc); svc != "" {
				out[carrier] = append(out[carrier], svc)
			}
		}
	}
	return out
}

// Attributes returns OpenTelemetry attributes for this configuration.
func (c *Config) Attributes() []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("service.name", c.ServiceName),
		attribute.String("service.version", c.Version),
		attribute.Bool("easypost.mock", c.EasyPostUseMock),
		attribute.String("operating.currency", c.OperatingCurrency),
	}
}
