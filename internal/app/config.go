package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds the complete gateway configuration, loadable from environment
// variables (CHECKOUT_ prefix), flags, or YAML config files.
type Config struct {
	Addr       string `default:"0.0.0.0:8080" usage:"HTTP listen address"`
	BackendURL string `usage:"Storefront backend base URL (CHECKOUT_BACKEND_URL)" flag:"backend-url"`
	StorePath  string `default:"" usage:"Path of the session/staging store file; empty uses the user cache dir" flag:"store-path"`
	Payment    PaymentConfig
	Reaper     ReaperConfig
	RateLimit  RateLimitConfig
	CORS       CORSConfig
	Graceful   GracefulConfig
}

// PaymentConfig holds the payment gateway constants.
type PaymentConfig struct {
	MerchantID  string `usage:"Gateway merchant id (CHECKOUT_PAYMENT_MERCHANT_ID)" flag:"merchant-id"`
	CallbackURL string `usage:"Public URL of the /callback endpoint" flag:"callback-url"`
	StartPayURL string `default:"https://sandbox.zarinpal.com/pg/StartPay" usage:"Gateway hosted-page base URL" flag:"start-pay-url"`
}

// ReaperConfig controls the pending-order reaper.
type ReaperConfig struct {
	TTL      time.Duration `default:"24h" usage:"How long a PENDING order may stay unpaid"`
	Interval time.Duration `default:"15m" usage:"Scan interval"`
}

// RateLimitConfig controls the per-client rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config
// files, and applies platform defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "CHECKOUT",
		Files:     []string{"config.yaml", "/etc/checkout/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.BackendURL == "" {
		return nil, errors.New("backend URL is required: set CHECKOUT_BACKEND_URL")
	}
	if cfg.Payment.MerchantID == "" {
		return nil, errors.New("merchant id is required: set CHECKOUT_PAYMENT_MERCHANT_ID")
	}
	if cfg.Payment.CallbackURL == "" {
		return nil, errors.New("callback URL is required: set CHECKOUT_PAYMENT_CALLBACK_URL")
	}

	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables (PORT
// on Railway, Render, etc.) to the CHECKOUT_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
