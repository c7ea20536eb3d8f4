// Package config defines the process configuration for SkyGuard binaries.
// Configuration is loaded once at startup and is immutable thereafter.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// Any missing required value or invalid format fails startup.
package config

import (
	"time"

	"skyguard/internal/types"
)

// SecretString is an alias for types.SecretString so callers of this package
// do not need to import types for secret fields.
type SecretString = types.SecretString

// Config is the top-level configuration struct.
type Config struct {
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"skyguard"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Server        ServerConfig
	Database      DatabaseConfig
	AWS           AWSConfig
	Auth          AuthConfig
	RateLimit     RateLimitConfig
	Weather       WeatherConfig
	Delivery      DeliveryConfig
	Audit         AuditConfig
	Observability ObservabilityConfig

	// Populated by the loader from Weather.LocationsFile or Weather.LocationsRaw.
	Locations []types.Location `ignored:"true"`

	// Injected via ldflags, not env.
	Build BuildInfo `ignored:"true"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string        `envconfig:"PORT" default:"8080"`
	RequestTimeout     time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`
	CorsAllowedOrigins []string      `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required"`

	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// AWSConfig holds AWS resource identifiers.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	// Queue consumed by the delivery worker. Empty disables async delivery;
	// recipients then stay in "sent" state and are read in-app.
	DeliveryQueueURL string `envconfig:"SQS_DELIVERY" validate:"omitempty,url"`
	// Cold storage for archived audit entries.
	ArchiveBucket string `envconfig:"ARCHIVE_BUCKET"`

	// LocalStack support (empty in prod).
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// AuthConfig holds token verification material.
type AuthConfig struct {
	JWTSecret SecretString `envconfig:"JWT_SECRET" validate:"required"`
	JWTIssuer string       `envconfig:"JWT_ISSUER"`
	// Bcrypt hash of the machine token accepted from the scheduler on the
	// monitor trigger endpoint. Empty disables machine access.
	SchedulerTokenHash string `envconfig:"SCHEDULER_TOKEN_HASH"`
}

// RateLimitConfig controls the send-alert limiter and the API request limiter.
type RateLimitConfig struct {
	Backend    string        `envconfig:"RATE_LIMIT_BACKEND" default:"memory" validate:"oneof=memory redis postgres"`
	SendMax    int           `envconfig:"RATE_LIMIT_SEND_MAX" default:"5" validate:"min=1"`
	SendWindow time.Duration `envconfig:"RATE_LIMIT_SEND_WINDOW" default:"60s"`
	APIMax     int           `envconfig:"RATE_LIMIT_API_MAX" default:"120" validate:"min=1"`
	APIWindow  time.Duration `envconfig:"RATE_LIMIT_API_WINDOW" default:"60s"`
	RedisURL   SecretString  `envconfig:"REDIS_URL"`
	// How often the in-memory janitor reclaims idle windows.
	SweepInterval time.Duration `envconfig:"RATE_LIMIT_SWEEP_INTERVAL" default:"5m"`
}

// WeatherConfig holds the weather data source and evaluator settings.
type WeatherConfig struct {
	APIKey        SecretString  `envconfig:"WEATHER_API_KEY"`
	BaseURL       string        `envconfig:"WEATHER_BASE_URL" default:"https://api.openweathermap.org" validate:"url"`
	FetchTimeout  time.Duration `envconfig:"WEATHER_FETCH_TIMEOUT" default:"10s"`
	Cooldown      time.Duration `envconfig:"WEATHER_COOLDOWN" default:"1h"`
	AQIThreshold  int           `envconfig:"WEATHER_AQI_THRESHOLD" default:"4" validate:"min=1,max=5"`
	MaxParallel   int           `envconfig:"WEATHER_MAX_PARALLEL" default:"4" validate:"min=1"`
	LocationsFile string        `envconfig:"MONITOR_LOCATIONS_FILE"`
	// Inline alternative to LocationsFile: "name:lat:lon;name:lat:lon".
	LocationsRaw string `envconfig:"MONITOR_LOCATIONS"`
}

// DeliveryConfig holds settings for the SMS, email and push sinks.
type DeliveryConfig struct {
	SMSSenderID      string        `envconfig:"SMS_SENDER_ID" default:"SkyGuard"`
	EmailFromAddress string        `envconfig:"EMAIL_FROM_ADDRESS" default:"alerts@skyguard.local" validate:"email"`
	EmailFromName    string        `envconfig:"EMAIL_FROM_NAME" default:"SkyGuard Alerts"`
	PushGatewayURL   string        `envconfig:"PUSH_GATEWAY_URL" validate:"omitempty,url"`
	PushAPIKey       SecretString  `envconfig:"PUSH_API_KEY"`
	Timeout          time.Duration `envconfig:"DELIVERY_TIMEOUT" default:"10s"`
	MaxRetries       int           `envconfig:"DELIVERY_MAX_RETRIES" default:"3"`
}

// AuditConfig controls audit retention.
type AuditConfig struct {
	// "memory" keeps a bounded ring buffer; "postgres" is unbounded and
	// archived to S3 by the archiver job.
	Backend         string        `envconfig:"AUDIT_BACKEND" default:"postgres" validate:"oneof=memory postgres"`
	MemoryRetention int           `envconfig:"AUDIT_MEMORY_RETENTION" default:"100" validate:"min=1"`
	ArchiveAfter    time.Duration `envconfig:"AUDIT_ARCHIVE_AFTER" default:"8760h"`
	ArchiveBatch    int           `envconfig:"AUDIT_ARCHIVE_BATCH" default:"500" validate:"min=1"`
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"SkyGuard"`
	MetricsPath     string `envconfig:"METRICS_PATH" default:"/metrics"`
}

// BuildInfo holds build-time metadata injected via ldflags.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

// ConfigErrorType categorizes configuration loading failures.
type ConfigErrorType string

const (
	ErrMissingEnv    ConfigErrorType = "MISSING_ENV"
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	ErrValidation    ConfigErrorType = "VALIDATION_FAILED"
	ErrParsing       ConfigErrorType = "PARSING_FAILED"
	ErrLocations     ConfigErrorType = "LOCATIONS_INVALID"
)
