package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/odyssey-erp/docflow/internal/catalog"
	"github.com/odyssey-erp/docflow/internal/explode"
)

// Config holds runtime configuration for the application.
type Config struct {
	AppEnv            string        `envconfig:"APP_ENV" default:"development"`
	AppAddr           string        `envconfig:"APP_ADDR" default:":8080"`
	AppReadTimeout    time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	AppWriteTimeout   time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"150s"`
	AppRequestTimeout time.Duration `envconfig:"APP_REQUEST_TIMEOUT" default:"120s"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`

	HoldedAPIKey     string        `envconfig:"HOLDED_API_KEY" required:"true"`
	HoldedBaseURL    string        `envconfig:"HOLDED_BASE_URL" default:"https://api.holded.com/api/invoicing/v1"`
	HoldedTimeout    time.Duration `envconfig:"HOLDED_TIMEOUT" default:"30s"`
	HoldedRatePerSec float64       `envconfig:"HOLDED_RATE_PER_SEC" default:"5"`

	CatalogSnapshotPath string `envconfig:"CATALOG_SNAPSHOT_PATH" default:"var/products_snapshot.json"`

	ReportTimezone    string `envconfig:"REPORT_TIMEZONE" default:"Europe/Madrid"`
	CategorySort      string `envconfig:"CATEGORY_SORT" default:"alpha"`
	GrossWeightSource string `envconfig:"GROSS_WEIGHT_SOURCE" default:"catalog"`

	// UncategorizedLabel groups line items whose product is missing from the catalog.
	UncategorizedLabel string `envconfig:"UNCATEGORIZED_LABEL" default:"Sin línea de producto"`

	AttrOrigin      string `envconfig:"ATTR_ORIGIN" default:"Origen"`
	AttrHSCode      string `envconfig:"ATTR_HS_CODE" default:"Código HS"`
	AttrSubcategory string `envconfig:"ATTR_SUBCATEGORY" default:"Línea de producto"`

	RedisAddr string        `envconfig:"REDIS_ADDR"`
	CacheTTL  time.Duration `envconfig:"CACHE_TTL" default:"5m"`

	GotenbergURL string `envconfig:"GOTENBERG_URL" default:"http://127.0.0.1:3000"`

	ExportRatePerMin int `envconfig:"EXPORT_RATE_PER_MIN" default:"10"`

	WorkerSnapshotCron string `envconfig:"WORKER_SNAPSHOT_CRON" default:"0 */6 * * *"`
	WorkerWarmupCron   string `envconfig:"WORKER_WARMUP_CRON" default:"*/30 * * * *"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values envconfig cannot express.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.HoldedAPIKey) == "" {
		return errors.New("holded api key must be provided")
	}
	if _, err := time.LoadLocation(c.ReportTimezone); err != nil {
		return fmt.Errorf("config: REPORT_TIMEZONE: %w", err)
	}
	if _, err := explode.ParseSortPolicy(c.CategorySort); err != nil {
		return fmt.Errorf("config: CATEGORY_SORT: %w", err)
	}
	if _, err := explode.ParseGrossWeightSource(c.GrossWeightSource); err != nil {
		return fmt.Errorf("config: GROSS_WEIGHT_SOURCE: %w", err)
	}
	if c.CacheTTL < 0 {
		return errors.New("config: CACHE_TTL must not be negative")
	}
	return nil
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}

// Location returns the report time zone, UTC when it cannot be loaded.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.ReportTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// AttributeNames returns the catalog attribute names.
func (c *Config) AttributeNames() catalog.AttributeNames {
	return catalog.AttributeNames{
		Origin:      c.AttrOrigin,
		HSCode:      c.AttrHSCode,
		Subcategory: c.AttrSubcategory,
	}
}

// ExplodeOptions returns the default breakdown options. Validate has already
// rejected unknown values.
func (c *Config) ExplodeOptions() explode.Options {
	sort, _ := explode.ParseSortPolicy(c.CategorySort)
	weight, _ := explode.ParseGrossWeightSource(c.GrossWeightSource)
	return explode.Options{
		Mode:               explode.ModeGrouped,
		Sort:               sort,
		GrossWeight:        weight,
		UncategorizedLabel: c.UncategorizedLabel,
	}
}
