package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

func init() {
	// Load .env file if it exists (silent fail if not)
	_ = godotenv.Load()
}

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Server      ServerConfig
	App         AppConfig
	Cache       CacheConfig
	Database    DatabaseConfig
	Marketplace MarketplaceConfig
	Search      SearchConfig
	AI          AIConfig
	Auth        AuthConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Name        string `envconfig:"APP_NAME" default:"dropship-api"`
	Environment string `envconfig:"APP_ENV" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	Version     string `envconfig:"APP_VERSION" default:"1.0.0"`
	LoginKey    string `envconfig:"LOGIN_KEY" default:""` // Admin stats key
}

// CacheConfig holds response cache settings.
type CacheConfig struct {
	Type string        `envconfig:"CACHE_TYPE" default:"memory"` // memory or redis
	TTL  time.Duration `envconfig:"CACHE_TTL" default:"1h"`

	RedisHost     string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort     int    `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
	RedisPrefix   string `envconfig:"REDIS_PREFIX" default:"dropship:cache:"`
}

// DatabaseConfig holds settings for the products/usage/imports store.
type DatabaseConfig struct {
	Type string `envconfig:"DB_TYPE" default:"sqlite"` // sqlite or postgres
	Path string `envconfig:"DB_PATH" default:"./data/dropship.db"`
	// PostgreSQL settings
	Host     string `envconfig:"DB_HOST" default:"localhost"`
	Port     int    `envconfig:"DB_PORT" default:"5432"`
	Name     string `envconfig:"DB_NAME" default:"dropship"`
	User     string `envconfig:"DB_USER" default:"postgres"`
	Password string `envconfig:"DB_PASS" default:""`
	SSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`

	ProductTTL      time.Duration `envconfig:"PRODUCT_TTL" default:"24h"`
	CleanupInterval time.Duration `envconfig:"PRODUCT_CLEANUP_INTERVAL" default:"1h"`
}

// MarketplaceConfig holds adapter credentials and outbound request policy.
type MarketplaceConfig struct {
	Mode    string        `envconfig:"MARKETPLACE_MODE" default:"live"` // live or mock
	Timeout time.Duration `envconfig:"ADAPTER_TIMEOUT" default:"15s"`
	RPS     float64       `envconfig:"ADAPTER_RPS" default:"1"`
	Burst   int           `envconfig:"ADAPTER_BURST" default:"2"`
	Retries int           `envconfig:"ADAPTER_RETRIES" default:"2"`

	BreakerMaxFailures int           `envconfig:"BREAKER_MAX_FAILURES" default:"5"`
	BreakerCooldown    time.Duration `envconfig:"BREAKER_COOLDOWN" default:"30s"`

	AmazonAccessKey  string `envconfig:"AMAZON_ACCESS_KEY" default:""`
	AmazonSecretKey  string `envconfig:"AMAZON_SECRET_KEY" default:""`
	AmazonPartnerTag string `envconfig:"AMAZON_PARTNER_TAG" default:""`
	AmazonRegion     string `envconfig:"AMAZON_REGION" default:"us-east-1"`

	AliExpressAppKey     string `envconfig:"ALIEXPRESS_APP_KEY" default:""`
	AliExpressAppSecret  string `envconfig:"ALIEXPRESS_APP_SECRET" default:""`
	AliExpressTrackingID string `envconfig:"ALIEXPRESS_TRACKING_ID" default:""`

	EbayClientID     string `envconfig:"EBAY_CLIENT_ID" default:""`
	EbayClientSecret string `envconfig:"EBAY_CLIENT_SECRET" default:""`

	TemuRenderJS bool   `envconfig:"TEMU_RENDER_JS" default:"false"`
	ChromeBin    string `envconfig:"CHROME_BIN" default:""`
}

// SearchConfig holds aggregation settings.
type SearchConfig struct {
	Concurrency int           `envconfig:"SEARCH_CONCURRENCY" default:"4"`
	Timeout     time.Duration `envconfig:"SEARCH_TIMEOUT" default:"25s"`
}

// AIConfig holds product analysis settings.
type AIConfig struct {
	APIKey      string        `envconfig:"AI_API_KEY" default:""`
	BaseURL     string        `envconfig:"AI_BASE_URL" default:"https://api.openai.com/v1"`
	Model       string        `envconfig:"AI_MODEL" default:"gpt-4o-mini"`
	Timeout     time.Duration `envconfig:"AI_TIMEOUT" default:"30s"`
	AnalysisTTL time.Duration `envconfig:"AI_ANALYSIS_TTL" default:"168h"`
	Markup      float64       `envconfig:"DEFAULT_MARKUP" default:"2.5"`
}

// AuthConfig holds token verification settings.
type AuthConfig struct {
	JWTSecret string `envconfig:"AUTH_JWT_SECRET" default:""`
	Issuer    string `envconfig:"AUTH_JWT_ISSUER" default:""`
}

// PostgresDSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) PostgresDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

// Address returns the server address in host:port format.
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RedisAddress returns the Redis address in host:port format.
func (c *CacheConfig) RedisAddress() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// IsDevelopment returns true if running in development mode.
func (a *AppConfig) IsDevelopment() bool {
	return a.Environment == "development"
}

// IsProduction returns true if running in production mode.
func (a *AppConfig) IsProduction() bool {
	return a.Environment == "production"
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.Search.Concurrency < 1 {
		cfg.Search.Concurrency = 1
	}

	return &cfg, nil
}

// MustLoad loads configuration or panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}
