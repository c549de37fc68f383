package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	AuthModeDevelopment = "development"
	AuthModeJWKS        = "jwks"
	AuthModeHMAC        = "hmac"
)

type Config struct {
	Port             string        `mapstructure:"PORT"`
	Env              string        `mapstructure:"ENV"`
	AuthMode         string        `mapstructure:"AUTH_MODE"`
	AuthIssuer       string        `mapstructure:"AUTH_ISSUER"`
	AuthAudience     string        `mapstructure:"AUTH_AUDIENCE"`
	AuthJWKSURL      string        `mapstructure:"AUTH_JWKS_URL"`
	AuthSigningKey   string        `mapstructure:"AUTH_SIGNING_KEY"`
	DatabaseURL      string        `mapstructure:"DATABASE_URL"`
	DBSchema         string        `mapstructure:"DB_SCHEMA"`
	DBMaxConns       int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns       int32         `mapstructure:"DB_MIN_CONNS"`
	RedisURL         string        `mapstructure:"REDIS_URL"`
	SummaryCacheTTL  time.Duration `mapstructure:"SUMMARY_CACHE_TTL"`
	PlanCatalogPath  string        `mapstructure:"PLAN_CATALOG_PATH"`
	PlanCatalogURL   string        `mapstructure:"PLAN_CATALOG_URL"`
	PlanCatalogWatch bool          `mapstructure:"PLAN_CATALOG_WATCH"`
	CORSOrigins      []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS     float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst   int           `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeout   time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	BodyLimit        string        `mapstructure:"BODY_LIMIT"`
	BatchConcurrency int           `mapstructure:"BATCH_CONCURRENCY"`
	MetricsEnabled   bool          `mapstructure:"METRICS_ENABLED"`
	TLSEnabled       bool          `mapstructure:"TLS_ENABLED"`
	TLSCertFile      string        `mapstructure:"TLS_CERT_FILE"`
	TLSKeyFile       string        `mapstructure:"TLS_KEY_FILE"`
}

var defaults = map[string]interface{}{
	"PORT":               "8000",
	"ENV":                "development",
	"AUTH_MODE":          "",
	"DB_SCHEMA":          "public",
	"DB_MAX_CONNS":       20,
	"DB_MIN_CONNS":       5,
	"SUMMARY_CACHE_TTL":  "5m",
	"PLAN_CATALOG_WATCH": false,
	"CORS_ORIGINS":       "http://localhost:3000",
	"RATE_LIMIT_RPS":     100,
	"RATE_LIMIT_BURST":   200,
	"REQUEST_TIMEOUT":    "30s",
	"BODY_LIMIT":         "1M",
	"BATCH_CONCURRENCY":  8,
	"METRICS_ENABLED":    true,
}

var envKeys = []string{
	"PORT", "ENV", "AUTH_MODE", "AUTH_ISSUER", "AUTH_AUDIENCE", "AUTH_JWKS_URL", "AUTH_SIGNING_KEY",
	"DATABASE_URL", "DB_SCHEMA", "DB_MAX_CONNS", "DB_MIN_CONNS", "REDIS_URL", "SUMMARY_CACHE_TTL",
	"PLAN_CATALOG_PATH", "PLAN_CATALOG_URL", "PLAN_CATALOG_WATCH", "CORS_ORIGINS",
	"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "REQUEST_TIMEOUT", "BODY_LIMIT",
	"BATCH_CONCURRENCY", "METRICS_ENABLED", "TLS_ENABLED", "TLS_CERT_FILE", "TLS_KEY_FILE",
}

// Load reads .env and the environment. DATABASE_URL is required.
func Load() (*Config, error) {
	cfg, err := LoadOffline()
	if err != nil {
		return nil, err
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.IsDev() {
		log.Println("WARNING: ENV=development, requests without a bearer token get admin access.")
		log.Println("WARNING: Set ENV=production and configure AUTH_JWKS_URL or AUTH_SIGNING_KEY for real deployments.")
	}
	return cfg, nil
}

// LoadOffline reads the configuration without requiring a database, for
// commands that only evaluate catalogs or summaries from files.
func LoadOffline() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	for _, k := range envKeys {
		_ = v.BindEnv(k)
	}

	// A missing .env is fine.
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		cfg.CORSOrigins = splitList(v.GetString("CORS_ORIGINS"))
	} else {
		cfg.CORSOrigins = splitList(strings.Join(cfg.CORSOrigins, ","))
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// ResolvedAuthMode returns AUTH_MODE when set. Otherwise:
//   - ENV=development -> "development" (no token means admin)
//   - AUTH_JWKS_URL set -> "jwks" (RS256 tokens from an identity provider)
//   - AUTH_SIGNING_KEY set -> "hmac" (HS256 tokens with a shared key)
func (c *Config) ResolvedAuthMode() string {
	switch {
	case c.AuthMode != "":
		return c.AuthMode
	case c.IsDev():
		return AuthModeDevelopment
	case c.AuthJWKSURL != "":
		return AuthModeJWKS
	case c.AuthSigningKey != "":
		return AuthModeHMAC
	}
	return ""
}

// Validate checks that the configuration is consistent and safe to serve.
func (c *Config) Validate() error {
	switch mode := c.ResolvedAuthMode(); mode {
	case AuthModeDevelopment:
		if c.IsProduction() {
			return fmt.Errorf("AUTH_MODE=development is not allowed when ENV=production")
		}
	case AuthModeJWKS:
		if c.AuthJWKSURL == "" {
			return fmt.Errorf("AUTH_JWKS_URL is required when AUTH_MODE is %q", mode)
		}
	case AuthModeHMAC:
		if len(c.AuthSigningKey) < 32 {
			return fmt.Errorf("AUTH_SIGNING_KEY must be at least 32 bytes when AUTH_MODE is %q", mode)
		}
	case "":
		return fmt.Errorf("no authentication configured (ENV=%q): set AUTH_JWKS_URL or AUTH_SIGNING_KEY", c.Env)
	default:
		return fmt.Errorf("AUTH_MODE must be %q, %q or %q, got %q",
			AuthModeDevelopment, AuthModeJWKS, AuthModeHMAC, mode)
	}

	if c.PlanCatalogPath != "" && c.PlanCatalogURL != "" {
		return fmt.Errorf("PLAN_CATALOG_PATH and PLAN_CATALOG_URL are mutually exclusive")
	}
	if c.PlanCatalogWatch && c.PlanCatalogPath == "" {
		return fmt.Errorf("PLAN_CATALOG_WATCH requires PLAN_CATALOG_PATH")
	}

	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.SummaryCacheTTL < 0 {
		return fmt.Errorf("SUMMARY_CACHE_TTL must not be negative")
	}
	if c.BatchConcurrency < 1 {
		return fmt.Errorf("BATCH_CONCURRENCY must be at least 1, got %d", c.BatchConcurrency)
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst < 1 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}

	if c.TLSEnabled {
		if c.TLSCertFile == "" {
			return fmt.Errorf("TLS_CERT_FILE is required when TLS_ENABLED is true")
		}
		if c.TLSKeyFile == "" {
			return fmt.Errorf("TLS_KEY_FILE is required when TLS_ENABLED is true")
		}
	}
	return nil
}
