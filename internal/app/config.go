package app

import (
	"os"
	"strings"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (BAKERY_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (BAKERY_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	RedisURL     string `usage:"Redis connection URL for visitor sessions (BAKERY_REDIS_URL or REDIS_URL)" flag:"redis-url"`
	ImageBaseURL string `default:"" usage:"Base URL for product images (e.g. https://cdn.example.com/images)" flag:"image-base-url"`
	APIKeyPepper string `usage:"HMAC pepper for API key hashing (BAKERY_API_KEY_PEPPER)" flag:"api-key-pepper"`
	Session      SessionConfig
	Gateway      GatewayConfig
	Kafka        KafkaConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// SessionConfig controls the visitor session cookie and its server-side TTL.
type SessionConfig struct {
	CookieName string        `default:"bakery_session" usage:"Session cookie name" flag:"session-cookie"`
	TTL        time.Duration `default:"168h" usage:"Session lifetime" flag:"session-ttl"`
	Secure     bool          `default:"false" usage:"Mark the session cookie Secure" flag:"session-secure"`
}

// GatewayConfig holds the payment gateway merchant settings.
type GatewayConfig struct {
	MerchantCode string `usage:"Gateway merchant (terminal) code" flag:"gateway-merchant"`
	Secret       string `usage:"Gateway HMAC secret" flag:"gateway-secret"`
	URL          string `default:"https://sandbox.vnpayment.vn/paymentv2/vpcpay.html" usage:"Gateway payment page URL" flag:"gateway-url"`
	ReturnURL    string `usage:"Public URL of the payment return endpoint" flag:"gateway-return-url"`
	Currency     string `default:"VND" usage:"ISO 4217 currency sent to the gateway" flag:"gateway-currency"`
	Locale       string `default:"vn" usage:"Gateway page locale" flag:"gateway-locale"`
	Timezone     string `default:"Asia/Ho_Chi_Minh" usage:"Timezone of gateway timestamps" flag:"gateway-timezone"`
}

// KafkaConfig controls order event publishing. No brokers disables it.
type KafkaConfig struct {
	Brokers []string `usage:"Kafka bootstrap brokers" flag:"kafka-brokers"`
	Topic   string   `default:"bakery.orders" usage:"Order events topic" flag:"kafka-topic"`
	Buffer  int      `default:"1024" usage:"Outbound event buffer size" flag:"kafka-buffer"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"true" usage:"Allow credentials (session cookie)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "BAKERY",
		Files:     []string{"config.yaml", "/etc/bakery/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.DatabaseURL == "":
		return errors.New("database URL is required: set BAKERY_DATABASE_URL or DATABASE_URL")
	case c.RedisURL == "":
		return errors.New("redis URL is required: set BAKERY_REDIS_URL or REDIS_URL")
	case c.APIKeyPepper == "":
		return errors.New("api key pepper is required: set BAKERY_API_KEY_PEPPER")
	case c.Gateway.MerchantCode == "" || c.Gateway.Secret == "":
		return errors.New("gateway merchant code and secret are required")
	case c.Gateway.ReturnURL == "":
		return errors.New("gateway return URL is required")
	}
	return nil
}

// Location resolves the gateway timezone.
func (g GatewayConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(g.Timezone)
	if err != nil {
		return nil, errors.Wrapf(err, "gateway timezone %q", g.Timezone)
	}
	return loc, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's BAKERY_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if c.RedisURL == "" {
		c.RedisURL = os.Getenv("REDIS_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
	// A single comma-separated env value arrives as one element.
	if len(c.Kafka.Brokers) == 1 && strings.Contains(c.Kafka.Brokers[0], ",") {
		c.Kafka.Brokers = strings.Split(c.Kafka.Brokers[0], ",")
	}
}
