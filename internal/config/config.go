package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server     ServerConfig     `mapstructure:"server" validate:"required"`
	Database   DatabaseConfig   `mapstructure:"database" validate:"required"`
	Auth       AuthConfig       `mapstructure:"auth" validate:"required"`
	Dispatcher DispatcherConfig `mapstructure:"dispatcher" validate:"required"`
	Broker     BrokerConfig     `mapstructure:"broker" validate:"required"`
	Uploads    UploadsConfig    `mapstructure:"uploads" validate:"required"`
	LLM        LLMConfig        `mapstructure:"llm"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel        string        `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// DatabaseConfig selects and configures the task store.
type DatabaseConfig struct {
	// Driver is "postgres" for production or "memory" for local runs.
	Driver       string `mapstructure:"driver" validate:"required,oneof=postgres memory"`
	URL          string `mapstructure:"url" validate:"required_if=Driver postgres"`
	MaxOpenConns int    `mapstructure:"max_open_conns" validate:"gte=0"`
}

// AuthConfig contains the admin API token settings.
type AuthConfig struct {
	JWTSecret     string        `mapstructure:"jwt_secret" validate:"required,min=32"`
	TokenLifetime time.Duration `mapstructure:"token_lifetime" validate:"gt=0"`
}

// DispatcherConfig holds the cron expression that ticks each task queue.
type DispatcherConfig struct {
	ScannerCron string `mapstructure:"scanner_cron" validate:"required"`
	ImportCron  string `mapstructure:"import_cron" validate:"required"`
	CuratorCron string `mapstructure:"curator_cron" validate:"required"`
}

// BrokerConfig selects the publisher used by the outbound gateway.
type BrokerConfig struct {
	Driver   string         `mapstructure:"driver" validate:"required,oneof=memory kafka amqp"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	AMQP     AMQPConfig     `mapstructure:"amqp"`
	Subjects SubjectsConfig `mapstructure:"subjects" validate:"required"`
}

// KafkaConfig configures the Kafka publisher.
type KafkaConfig struct {
	Brokers  []string `mapstructure:"brokers"`
	ClientID string   `mapstructure:"client_id"`
}

// AMQPConfig configures the AMQP publisher.
type AMQPConfig struct {
	URL      string `mapstructure:"url"`
	Exchange string `mapstructure:"exchange"`
}

// SubjectsConfig names the broker subject each envelope family is published on.
type SubjectsConfig struct {
	Scanner string `mapstructure:"scanner" validate:"required"`
	Import  string `mapstructure:"import" validate:"required"`
	Curator string `mapstructure:"curator" validate:"required"`
	Status  string `mapstructure:"status" validate:"required"`
}

// UploadsConfig selects the store for transient upload payloads.
type UploadsConfig struct {
	Driver        string        `mapstructure:"driver" validate:"required,oneof=memory redis"`
	RedisAddr     string        `mapstructure:"redis_addr" validate:"required_if=Driver redis"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db" validate:"gte=0"`
	TTL           time.Duration `mapstructure:"ttl" validate:"gte=0"`
}

// LLMConfig contains the Gemini settings used by the license curator.
// An empty API key disables the curator worker.
type LLMConfig struct {
	GeminiAPIKey      string `mapstructure:"gemini_api_key"`
	ModelName         string `mapstructure:"model_name" validate:"required_with=GeminiAPIKey"`
	MaxRetries        int    `mapstructure:"max_retries" validate:"gte=0,lte=10"`
	RetryDelaySeconds int    `mapstructure:"retry_delay_seconds" validate:"gte=0,lte=60"`
}
