package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable read by Load.
const EnvPrefix = "CURATOR"

var defaults = map[string]any{
	"server.port":             8080,
	"server.log_level":        "info",
	"server.shutdown_timeout": 30 * time.Second,

	"database.driver":         "postgres",
	"database.url":            "",
	"database.max_open_conns": 10,

	"auth.jwt_secret":     "",
	"auth.token_lifetime": 24 * time.Hour,

	"dispatcher.scanner_cron": "* * * * *",
	"dispatcher.import_cron":  "* * * * *",
	"dispatcher.curator_cron": "* * * * *",

	"broker.driver":           "memory",
	"broker.kafka.brokers":    []string{},
	"broker.kafka.client_id":  "curation-engine",
	"broker.amqp.url":         "",
	"broker.amqp.exchange":    "curation",
	"broker.subjects.scanner": "curation.scanner",
	"broker.subjects.import":  "curation.import",
	"broker.subjects.curator": "curation.curator",
	"broker.subjects.status":  "curation.status",

	"uploads.driver":         "memory",
	"uploads.redis_addr":     "",
	"uploads.redis_password": "",
	"uploads.redis_db":       0,
	"uploads.ttl":            24 * time.Hour,

	"llm.gemini_api_key":      "",
	"llm.model_name":          "gemini-2.0-flash",
	"llm.max_retries":         3,
	"llm.retry_delay_seconds": 2,
}

// Load configuration from environment variables and an optional config.yaml
// in the working directory. Environment variables take precedence over
// values from the config file.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file path. An empty path looks for
// config.yaml in the working directory and tolerates its absence.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks struct tags and the cross-section rules tags cannot express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	switch c.Broker.Driver {
	case "kafka":
		if len(c.Broker.Kafka.Brokers) == 0 {
			return errors.New("config validation failed: broker.kafka.brokers is required for the kafka driver")
		}
	case "amqp":
		if c.Broker.AMQP.URL == "" {
			return errors.New("config validation failed: broker.amqp.url is required for the amqp driver")
		}
	}

	return nil
}
