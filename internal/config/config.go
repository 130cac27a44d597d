package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	StoreRedis  = "redis"
	StoreMySQL  = "mysql"
	StoreMemory = "memory"

	GuardMemory = "memory"
	GuardRedis  = "redis"
)

type MySQLConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

type WithdrawalLimits struct {
	MinCrypto decimal.Decimal
	MaxCrypto decimal.Decimal
	MinLocal  decimal.Decimal
	MaxLocal  decimal.Decimal
	// LocalRate is how many local currency units make one reference unit.
	LocalRate decimal.Decimal
}

type Config struct {
	Env      string
	Port     string
	LogLevel string

	StoreDriver string
	RedisURL    string
	RedisPass   string
	RedisDB     int
	MySQL       MySQLConfig

	JWTSecret  string
	HashSecret string
	// TokenIssuerKey enables POST /api/auth/token when set.
	TokenIssuerKey string

	// TrustedProxies are the proxy addresses or CIDRs whose forwarding
	// headers are believed. Empty trusts none.
	TrustedProxies []string

	ClickGuard         string
	DailyAdCap         int
	RefundOnReject     bool
	Withdrawals        WithdrawalLimits
	RateLimitPerMinute int
}

func Load() (*Config, error) {
	cfg := &Config{
		Env:      getEnv("APP_ENV", "development"),
		Port:     getEnv("PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		StoreDriver: strings.ToLower(getEnv("STORE_DRIVER", StoreRedis)),
		RedisURL:    getEnv("REDIS_URL", "localhost:6379"),
		RedisPass:   getEnv("REDIS_PASSWORD", ""),
		MySQL: MySQLConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			User:     getEnv("DB_USER", "root"),
			Password: getEnv("DB_PASSWORD", ""),
			Database: getEnv("DB_NAME", "adearn"),
		},

		JWTSecret:  getEnv("JWT_SECRET", ""),
		HashSecret: getEnv("HASH_SECRET", ""),

		TokenIssuerKey: getEnv("TOKEN_ISSUER_KEY", ""),
		TrustedProxies: getEnvList("TRUSTED_PROXIES"),

		ClickGuard: strings.ToLower(getEnv("CLICK_GUARD", GuardMemory)),
	}

	var err error
	if cfg.RedisDB, err = getEnvInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.MySQL.Port, err = getEnvInt("DB_PORT", 3306); err != nil {
		return nil, err
	}
	if cfg.DailyAdCap, err = getEnvInt("DAILY_AD_CAP", 1000); err != nil {
		return nil, err
	}
	if cfg.RateLimitPerMinute, err = getEnvInt("RATE_LIMIT_PER_MINUTE", 60); err != nil {
		return nil, err
	}
	if cfg.RefundOnReject, err = getEnvBool("REFUND_ON_REJECT", true); err != nil {
		return nil, err
	}

	limits := &cfg.Withdrawals
	for _, d := range []struct {
		key string
		def string
		dst *decimal.Decimal
	}{
		{"WITHDRAW_MIN_CRYPTO", "0.5", &limits.MinCrypto},
		{"WITHDRAW_MAX_CRYPTO", "50", &limits.MaxCrypto},
		{"WITHDRAW_MIN_LOCAL", "50", &limits.MinLocal},
		{"WITHDRAW_MAX_LOCAL", "5000", &limits.MaxLocal},
		{"LOCAL_CURRENCY_RATE", "100", &limits.LocalRate},
	} {
		if *d.dst, err = getEnvDecimal(d.key, d.def); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreRedis, StoreMySQL, StoreMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}

	switch c.ClickGuard {
	case GuardMemory, GuardRedis:
	default:
		return fmt.Errorf("unknown CLICK_GUARD %q", c.ClickGuard)
	}

	if c.IsProduction() {
		if c.HashSecret == "" {
			return fmt.Errorf("HASH_SECRET is required in production")
		}
		if c.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required in production")
		}
	}

	l := c.Withdrawals
	if !l.LocalRate.IsPositive() {
		return fmt.Errorf("LOCAL_CURRENCY_RATE must be positive")
	}
	if l.MinCrypto.GreaterThan(l.MaxCrypto) || l.MinLocal.GreaterThan(l.MaxLocal) {
		return fmt.Errorf("withdrawal minimum exceeds maximum")
	}
	if c.DailyAdCap < 0 {
		return fmt.Errorf("DAILY_AD_CAP must not be negative")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvList splits a comma separated value, dropping empty items.
func getEnvList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func getEnvDecimal(key, defaultValue string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(getEnv(key, defaultValue))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
