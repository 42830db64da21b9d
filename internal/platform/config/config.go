package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is centralized process configuration.
// Keep infra values here and pass typed config into builders.
type Config struct {
	ServiceName string `yaml:"service_name"`
	HTTPPort    string `yaml:"http_port"`
	PostgresDSN string `yaml:"postgres_dsn"`
	RedisAddr   string `yaml:"redis_addr"`
	RabbitMQURL string `yaml:"rabbitmq_url"`
	JWTSecret   string `yaml:"jwt_secret"`

	StripeSecretKey string `yaml:"stripe_secret_key"`

	VertexProjectID string `yaml:"vertex_project_id"`
	VertexLocation  string `yaml:"vertex_location"`
	VertexModel     string `yaml:"vertex_model"`

	BlobRoot          string `yaml:"blob_root"`
	BlobPublicBaseURL string `yaml:"blob_public_base_url"`

	FeeRate               float64       `yaml:"fee_rate"`
	FeeOnPartial          bool          `yaml:"fee_on_partial"`
	VerificationThreshold float64       `yaml:"verification_threshold"`
	VerifyTimeout         time.Duration `yaml:"verify_timeout"`
	IdempotencyTTL        time.Duration `yaml:"idempotency_ttl"`
	PayerCacheTTL         time.Duration `yaml:"payer_cache_ttl"`
	OutboxBatchSize       int           `yaml:"outbox_batch_size"`
	OutboxPollInterval    time.Duration `yaml:"outbox_poll_interval"`
	AdminAssignment       string        `yaml:"admin_assignment"`

	EnableVerificationConsumer bool `yaml:"enable_verification_consumer"`
	EnableOutboxRelay          bool `yaml:"enable_outbox_relay"`
}

func defaults() Config {
	return Config{
		ServiceName:                "milestonepay",
		HTTPPort:                   "8080",
		VertexLocation:             "us-central1",
		BlobRoot:                   "./data/blobs",
		BlobPublicBaseURL:          "/files",
		FeeRate:                    0.10,
		FeeOnPartial:               true,
		VerificationThreshold:      0.85,
		VerifyTimeout:              60 * time.Second,
		IdempotencyTTL:             7 * 24 * time.Hour,
		PayerCacheTTL:              24 * time.Hour,
		OutboxBatchSize:            100,
		OutboxPollInterval:         2 * time.Second,
		AdminAssignment:            "least-loaded",
		EnableVerificationConsumer: true,
		EnableOutboxRelay:          true,
	}
}

// Load reads the optional YAML file at path and then applies environment
// overrides. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := defaults()
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.ServiceName = envString("SERVICE_NAME", cfg.ServiceName)
	cfg.HTTPPort = envString("HTTP_PORT", cfg.HTTPPort)
	cfg.PostgresDSN = envString("POSTGRES_DSN", cfg.PostgresDSN)
	cfg.RedisAddr = envString("REDIS_ADDR", cfg.RedisAddr)
	cfg.RabbitMQURL = envString("RABBITMQ_URL", cfg.RabbitMQURL)
	cfg.JWTSecret = envString("JWT_SECRET", cfg.JWTSecret)
	cfg.StripeSecretKey = envString("STRIPE_SECRET_KEY", cfg.StripeSecretKey)
	cfg.VertexProjectID = envString("VERTEX_PROJECT_ID", cfg.VertexProjectID)
	cfg.VertexLocation = envString("VERTEX_LOCATION", cfg.VertexLocation)
	cfg.VertexModel = envString("VERTEX_MODEL", cfg.VertexModel)
	cfg.BlobRoot = envString("BLOB_ROOT", cfg.BlobRoot)
	cfg.BlobPublicBaseURL = envString("BLOB_PUBLIC_BASE_URL", cfg.BlobPublicBaseURL)
	cfg.FeeRate = envFloat("FEE_RATE", cfg.FeeRate)
	cfg.FeeOnPartial = envBool("FEE_ON_PARTIAL", cfg.FeeOnPartial)
	cfg.VerificationThreshold = envFloat("VERIFICATION_THRESHOLD", cfg.VerificationThreshold)
	cfg.VerifyTimeout = envDuration("VERIFY_TIMEOUT", cfg.VerifyTimeout)
	cfg.IdempotencyTTL = envDuration("IDEMPOTENCY_TTL", cfg.IdempotencyTTL)
	cfg.PayerCacheTTL = envDuration("PAYER_CACHE_TTL", cfg.PayerCacheTTL)
	cfg.OutboxBatchSize = envInt("OUTBOX_BATCH_SIZE", cfg.OutboxBatchSize)
	cfg.OutboxPollInterval = envDuration("OUTBOX_POLL_INTERVAL", cfg.OutboxPollInterval)
	cfg.AdminAssignment = envString("ADMIN_ASSIGNMENT", cfg.AdminAssignment)
	cfg.EnableVerificationConsumer = envBool("ENABLE_VERIFICATION_CONSUMER", cfg.EnableVerificationConsumer)
	cfg.EnableOutboxRelay = envBool("ENABLE_OUTBOX_RELAY", cfg.EnableOutboxRelay)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.HTTPPort) == "" {
		errs = append(errs, errors.New("http_port is required"))
	}
	if c.FeeRate < 0 || c.FeeRate >= 1 {
		errs = append(errs, fmt.Errorf("fee_rate must be in [0,1), got %v", c.FeeRate))
	}
	if c.VerificationThreshold <= 0 || c.VerificationThreshold > 1 {
		errs = append(errs, fmt.Errorf("verification_threshold must be in (0,1], got %v", c.VerificationThreshold))
	}
	if c.IdempotencyTTL <= 0 {
		errs = append(errs, errors.New("idempotency_ttl must be positive"))
	}
	if c.OutboxBatchSize <= 0 {
		errs = append(errs, errors.New("outbox_batch_size must be positive"))
	}
	switch c.AdminAssignment {
	case "least-loaded", "round-robin", "first-available":
	default:
		errs = append(errs, fmt.Errorf("unknown admin_assignment %q", c.AdminAssignment))
	}
	return errors.Join(errs...)
}

func envString(name string, fallback string) string {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	return raw
}

func envFloat(name string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return value
}

func envInt(name string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func envDuration(name string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return value
}

func envBool(name string, fallback bool) bool {
	raw := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return fallback
	}
}
