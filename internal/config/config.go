// Package config loads the process configuration from the environment and
// the carrier settings from a YAML file.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.opentelemetry.io/otel/attribute"
)

// Config holds all configuration for the service.
type Config struct {
	// Server
	Port           int    `envconfig:"PORT" default:"8080"`
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`
	ProductionMode bool   `envconfig:"PRODUCTION_MODE" default:"false"`

	// Storage. An empty DATABASE_URL runs on the in-memory store.
	DatabaseURL     string        `envconfig:"DATABASE_URL"`
	RedisAddr       string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	DispatchLockTTL time.Duration `envconfig:"DISPATCH_LOCK_TTL" default:"5m"`

	// Notifications. Without brokers nothing is published.
	KafkaBrokers []string `envconfig:"KAFKA_BROKERS"`
	NotifyTopic  string   `envconfig:"NOTIFY_TOPIC" default:"fulfillment.notifications"`

	// Carriers
	CarriersFile        string `envconfig:"CARRIERS_FILE" default:"carriers.yaml"`
	NaqelCitiesFile     string `envconfig:"NAQEL_CITIES_FILE"`
	PostaPlusCitiesFile string `envconfig:"POSTAPLUS_CITIES_FILE"`
	PostaPlusCAFile     string `envconfig:"POSTAPLUS_CA_FILE"`

	// URL overrides. When empty the production or staging endpoint is used.
	AramexURL    string `envconfig:"ARAMEX_URL"`
	AramexSAURL  string `envconfig:"ARAMEX_SA_URL"`
	DHLURL       string `envconfig:"DHL_URL"`
	NaqelURL     string `envconfig:"NAQEL_URL"`
	PostaPlusURL string `envconfig:"POSTAPLUS_URL"`
	SMSAURL      string `envconfig:"SMSA_URL"`

	// Credentials
	DHLUsername      string `envconfig:"DHL_USERNAME"`
	DHLPassword      string `envconfig:"DHL_PASSWORD"`
	AramexSAUsername string `envconfig:"ARAMEX_SA_USERNAME"`
	AramexSAPassword string `envconfig:"ARAMEX_SA_PASSWORD"`
	AramexSAAPIKey   string `envconfig:"ARAMEX_SA_API_KEY"`

	SMSATrackingPause time.Duration `envconfig:"SMSA_TRACKING_PAUSE" default:"2s"`

	// Documents
	DocumentsURL     string        `envconfig:"DOCUMENTS_URL"`
	DocumentsTimeout time.Duration `envconfig:"DOCUMENTS_TIMEOUT" default:"30s"`

	// Aramex file exchange
	SFTPAddr       string        `envconfig:"SFTP_ADDR"`
	SFTPUser       string        `envconfig:"SFTP_USER"`
	SFTPPassword   string        `envconfig:"SFTP_PASSWORD"`
	SFTPKnownHosts string        `envconfig:"SFTP_KNOWN_HOSTS"`
	SFTPTimeout    time.Duration `envconfig:"SFTP_TIMEOUT" default:"60s"`
	FeedInbox      string        `envconfig:"FEED_INBOX" default:"var/inbox"`

	// Telemetry
	OTELEnabled  bool   `envconfig:"OTEL_ENABLED" default:"false"`
	OTELEndpoint string `envconfig:"OTEL_ENDPOINT" default:"http://localhost:4318"`
	ServiceName  string `envconfig:"SERVICE_NAME" default:"fulfillment"`
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

// URL picks the endpoint of a carrier: the override when set, otherwise the
// production or staging address depending on the mode.
func (c *Config) URL(override, production, staging string) string {
	if override != "" {
		return override
	}
	if c.ProductionMode {
		return production
	}
	return staging
}

// Attributes returns OpenTelemetry attributes for this configuration.
func (c *Config) Attributes() []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("service.name", c.ServiceName),
		attribute.String("service.version", c.Version),
		attribute.Bool("fulfillment.production_mode", c.ProductionMode),
		attribute.Bool("fulfillment.postgres", c.DatabaseURL != ""),
		attribute.Bool("fulfillment.kafka", len(c.KafkaBrokers) > 0),
	}
}
