// Package config manages cartsync configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/printforge/cartsync/internal/schema"
)

// StorefrontConfig locates the storefront cart API and its event feed.
type StorefrontConfig struct {
	// BaseURL is the storefront origin, e.g. "https://shop.example.com".
	BaseURL string `yaml:"baseUrl"`
	// Shop is the storefront domain passed through to the editor proxy.
	Shop string `yaml:"shop"`
	// FeedURL is the optional websocket endpoint relaying cart-update events.
	FeedURL           string        `yaml:"feedUrl"`
	HTTPTimeout       time.Duration `yaml:"httpTimeout"`
	RequestsPerSecond float64       `yaml:"requestsPerSecond"`
	Burst             int           `yaml:"burst"`
}

// EditorConfig locates the backend proxy fronting the project editor.
type EditorConfig struct {
	BaseURL     string        `yaml:"baseUrl"`
	HTTPTimeout time.Duration `yaml:"httpTimeout"`
}

// ReconcileConfig tunes the reconciliation engine.
type ReconcileConfig struct {
	// FeeVariantID is the storefront variant reserved for synthetic fee
	// lines, priced at one minor currency unit per unit quantity. Empty
	// disables fee synchronization entirely.
	FeeVariantID string        `yaml:"feeVariantId"`
	Debounce     time.Duration `yaml:"debounce"`
	FetchWorkers int           `yaml:"fetchWorkers"`
	ControlAddr  string        `yaml:"controlAddr"`
}

// BusConfig sets in-memory cart bus sizing characteristics.
type BusConfig struct {
	BufferSize int `yaml:"bufferSize"`
}

// JournalConfig selects the fee mutation journal backend.
type JournalConfig struct {
	// DSN is a PostgreSQL connection string. Empty selects the in-memory journal.
	DSN string `yaml:"dsn"`
}

// TelemetryConfig configures metric export.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlpEndpoint"`
	ServiceName  string `yaml:"serviceName"`
}

// Config is the cartsync configuration tree.
type Config struct {
	Storefront StorefrontConfig `yaml:"storefront"`
	Editor     EditorConfig     `yaml:"editor"`
	Reconcile  ReconcileConfig  `yaml:"reconcile"`
	Bus        BusConfig        `yaml:"bus"`
	Journal    JournalConfig    `yaml:"journal"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
}

// Default returns the baseline configuration before file and env overrides.
func Default() Config {
	return Config{
		Storefront: StorefrontConfig{
			BaseURL:           "",
			Shop:              "",
			FeedURL:           "",
			HTTPTimeout:       10 * time.Second,
			RequestsPerSecond: 2,
			Burst:             4,
		},
		Editor: EditorConfig{
			BaseURL:     "",
			HTTPTimeout: 10 * time.Second,
		},
		Reconcile: ReconcileConfig{
			FeeVariantID: "",
			Debounce:     75 * time.Millisecond,
			FetchWorkers: 4,
			ControlAddr:  ":8743",
		},
		Bus:       BusConfig{BufferSize: 16},
		Journal:   JournalConfig{DSN: ""},
		Telemetry: TelemetryConfig{OTLPEndpoint: "", ServiceName: "cartsync"},
	}
}

// Load reads the optional yaml file at path, applies CARTSYNC_* environment
// overrides, and validates the result. An empty path skips the file step.
func Load(path string) (Config, error) {
	cfg := Default()

	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	setString(&c.Storefront.BaseURL, "CARTSYNC_STOREFRONT_URL")
	setString(&c.Storefront.Shop, "CARTSYNC_SHOP")
	setString(&c.Storefront.FeedURL, "CARTSYNC_FEED_URL")
	setString(&c.Editor.BaseURL, "CARTSYNC_EDITOR_URL")
	setString(&c.Reconcile.FeeVariantID, "CARTSYNC_FEE_VARIANT_ID")
	setString(&c.Reconcile.ControlAddr, "CARTSYNC_CONTROL_ADDR")
	setString(&c.Journal.DSN, "CARTSYNC_JOURNAL_DSN")
	setString(&c.Telemetry.OTLPEndpoint, "CARTSYNC_OTLP_ENDPOINT")
	setString(&c.Telemetry.ServiceName, "CARTSYNC_SERVICE_NAME")
}

func (c *Config) applyDefaults() {
	def := Default()
	if c.Storefront.HTTPTimeout <= 0 {
		c.Storefront.HTTPTimeout = def.Storefront.HTTPTimeout
	}
	if c.Storefront.RequestsPerSecond <= 0 {
		c.Storefront.RequestsPerSecond = def.Storefront.RequestsPerSecond
	}
	if c.Storefront.Burst <= 0 {
		c.Storefront.Burst = def.Storefront.Burst
	}
	if c.Editor.HTTPTimeout <= 0 {
		c.Editor.HTTPTimeout = def.Editor.HTTPTimeout
	}
	if c.Reconcile.Debounce <= 0 {
		c.Reconcile.Debounce = def.Reconcile.Debounce
	}
	if c.Reconcile.FetchWorkers <= 0 {
		c.Reconcile.FetchWorkers = def.Reconcile.FetchWorkers
	}
	if c.Bus.BufferSize <= 0 {
		c.Bus.BufferSize = def.Bus.BufferSize
	}
	if strings.TrimSpace(c.Telemetry.ServiceName) == "" {
		c.Telemetry.ServiceName = def.Telemetry.ServiceName
	}
}

// Validate checks that the configuration names a reachable storefront.
// A missing fee variant id or editor URL is legal (the corresponding
// behaviour degrades) and surfaced by FeeSyncEnabled / DetailsEnabled.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Storefront.BaseURL) == "" {
		return fmt.Errorf("storefront base URL required")
	}
	if !strings.HasPrefix(c.Storefront.BaseURL, "http://") && !strings.HasPrefix(c.Storefront.BaseURL, "https://") {
		return fmt.Errorf("storefront base URL must be http(s): %s", c.Storefront.BaseURL)
	}
	if url := strings.TrimSpace(c.Editor.BaseURL); url != "" {
		if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
			return fmt.Errorf("editor base URL must be http(s): %s", url)
		}
	}
	return nil
}

// FeeVariantID returns the configured fee variant normalized to its trailing
// digit run, or "" when fee synchronization is disabled.
func (c Config) FeeVariantID() string {
	return schema.NormalizeVariantID(c.Reconcile.FeeVariantID)
}

// FeeSyncEnabled reports whether synthetic fee lines will be maintained.
func (c Config) FeeSyncEnabled() bool {
	return c.FeeVariantID() != ""
}

// DetailsEnabled reports whether editor project details can be fetched.
func (c Config) DetailsEnabled() bool {
	return strings.TrimSpace(c.Editor.BaseURL) != ""
}
