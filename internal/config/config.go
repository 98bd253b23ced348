package config

import (
	"fmt"

	pkgconfig "github.com/Crown-Commercial-Service/digitalmarketplace-search-api/pkg/config"
)

// Config holds all configuration for the search API.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"SEARCH_API_HTTP_PORT" envDefault:"8009"`

	// Elasticsearch
	ElasticsearchURL string `env:"ELASTICSEARCH_URL" envDefault:"http://localhost:9200"`

	// Search engine selection (elasticsearch or memory)
	SearchEngine string `env:"SEARCH_ENGINE" envDefault:"elasticsearch"`

	// Result paging. The page size is fixed per deployment; idOnly searches
	// fetch IDOnlyMultiplier pages worth of ids at a time.
	PageSize         int `env:"SEARCH_PAGE_SIZE" envDefault:"100"`
	IDOnlyMultiplier int `env:"SEARCH_ID_ONLY_MULTIPLIER" envDefault:"10"`

	// MappingsDir holds the JSON index schema definitions.
	MappingsDir string `env:"MAPPINGS_DIR" envDefault:"mappings"`

	// AuthTokens are the accepted bearer tokens. Empty disables auth.
	AuthTokens []string `env:"AUTH_TOKENS" envSeparator:":"`

	// Kafka
	KafkaBrokers       []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	KafkaEnabled       bool     `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaTopics        []string `env:"KAFKA_TOPICS" envDefault:"marketplace.document.upserted,marketplace.document.deleted" envSeparator:","`
	KafkaConsumerGroup string   `env:"KAFKA_CONSUMER_GROUP" envDefault:"search-api"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load search api config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.PageSize < 1 {
		return fmt.Errorf("invalid page size: %d", c.PageSize)
	}
	if c.IDOnlyMultiplier < 1 {
		return fmt.Errorf("invalid idOnly multiplier: %d", c.IDOnlyMultiplier)
	}
	switch c.SearchEngine {
	case "elasticsearch", "memory":
	default:
		return fmt.Errorf("unknown search engine: %q", c.SearchEngine)
	}
	return nil
}
