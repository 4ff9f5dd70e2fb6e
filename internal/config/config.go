package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Module provides the environment-backed Config and the hot-reloaded settlement config.
var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewSettlementConfigHolder),
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	NodeID      int64

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int
	DBRunMigrations   bool
	SeedDefaults      bool

	Telemetry TelemetryConfig
	Redis     RedisConfig
	NATS      NATSConfig

	MercadoPago MercadoPagoConfig
}

// TelemetryConfig feeds logging, tracing and metrics.
type TelemetryConfig struct {
	DeploymentEnv  string
	LogLevel       string
	LogFormat      string
	LogSampling    bool
	OTLPEnabled    bool
	OTLPEndpoint   string
	OTLPProtocol   string
	SamplingRatio  float64
	MetricInterval time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	RateTTL  time.Duration
}

type NATSConfig struct {
	URL           string
	Name          string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
}

// MercadoPagoConfig carries the provider credentials used by the webhook path.
type MercadoPagoConfig struct {
	WebhookSecret      string
	AccessToken        string
	SandboxAccessToken string
	APIBaseURL         string
	LookupTimeout      time.Duration
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:           getenv("APP_SERVICE", "obrapay"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       getenv("ENVIRONMENT", "development"),
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		NodeID:            int64(getenvInt("SNOWFLAKE_NODE_ID", 1)),
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "obrapay"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		DBRunMigrations:   getenvBool("DATABASE_RUN_MIGRATIONS", true),
		SeedDefaults:      getenvBool("SEED_DEFAULTS", false),
		Telemetry: TelemetryConfig{
			DeploymentEnv:  getenv("DEPLOYMENT_ENV", ""),
			LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
			LogFormat:      strings.ToLower(getenv("LOG_FORMAT", "json")),
			LogSampling:    getenvBool("LOG_SAMPLING", true),
			OTLPEnabled:    getenvBool("OTEL_ENABLED", true),
			OTLPEndpoint:   getenv("OTEL_EXPORTER_OTLP_ENDPOINT", getenv("OTLP_ENDPOINT", "localhost:4317")),
			OTLPProtocol:   strings.ToLower(getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")),
			SamplingRatio:  getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
			MetricInterval: getenvDuration("OTEL_METRIC_INTERVAL", 10*time.Second),
		},
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
			DB:       getenvInt("REDIS_DB", 0),
			RateTTL:  getenvDuration("CURRENCY_LIVE_RATE_TTL", 15*time.Minute),
		},
		NATS: NATSConfig{
			URL:           strings.TrimSpace(getenv("NATS_URL", "")),
			Name:          getenv("NATS_CLIENT_NAME", "obrapay"),
			SubjectPrefix: getenv("NATS_SUBJECT_PREFIX", "obrapay"),
			MaxReconnects: getenvInt("NATS_MAX_RECONNECTS", 10),
			ReconnectWait: getenvDuration("NATS_RECONNECT_WAIT", 2*time.Second),
		},
		MercadoPago: MercadoPagoConfig{
			WebhookSecret:      strings.TrimSpace(getenv("MP_WEBHOOK_SECRET", "")),
			AccessToken:        strings.TrimSpace(getenv("MP_ACCESS_TOKEN", "")),
			SandboxAccessToken: strings.TrimSpace(getenv("MP_SANDBOX_ACCESS_TOKEN", "")),
			APIBaseURL:         strings.TrimRight(getenv("MP_API_BASE_URL", "https://api.mercadopago.com"), "/"),
			LookupTimeout:      getenvDuration("MP_LOOKUP_TIMEOUT", 3*time.Second),
		},
	}

	return cfg
}

// IsProduction reports whether the deployment runs in production.
func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
