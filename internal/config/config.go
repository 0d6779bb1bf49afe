package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/efreitasn/tradecore/internal/domain"
)

// Fee models accepted by FEE_MODEL.
const (
	FeeModelNone = "none"
	FeeModelFlat = "flat"
	FeeModelBps  = "bps"
)

// Config holds all runtime configuration for the trading core.
type Config struct {
	Port            int
	LogLevel        string
	WebhookTimeout  time.Duration
	VWAPWindow      time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	FeeModel  string
	FeeAmount int64           // cents, flat model
	FeeBps    decimal.Decimal // bps model
	FeeSides  domain.FeeSides

	DatabasePath string // empty keeps the ledger in memory only
	SeedFile     string
	CORSOrigins  []string // empty allows any origin
	EventBuffer  int
}

// LoadDotEnv loads variables from an env file without overriding ones
// already set. With an empty path a missing ./.env is not an error.
func LoadDotEnv(path string) error {
	if path != "" {
		return godotenv.Load(path)
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Load reads configuration from environment variables, applies defaults,
// and validates values. It returns an error for any invalid value.
func Load() (*Config, error) {
	port, err := getInt("PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}

	logLevel := getStr("LOG_LEVEL", "info")
	if !isValidLogLevel(logLevel) {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %q, must be one of: debug, info, warn, error", logLevel)
	}

	webhookTimeout, err := getDuration("WEBHOOK_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid WEBHOOK_TIMEOUT: %w", err)
	}

	vwapWindow, err := getDuration("VWAP_WINDOW", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("invalid VWAP_WINDOW: %w", err)
	}

	readTimeout, err := getDuration("READ_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid READ_TIMEOUT: %w", err)
	}

	writeTimeout, err := getDuration("WRITE_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid WRITE_TIMEOUT: %w", err)
	}

	idleTimeout, err := getDuration("IDLE_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid IDLE_TIMEOUT: %w", err)
	}

	shutdownTimeout, err := getDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %w", err)
	}

	cfg := &Config{
		Port:            port,
		LogLevel:        logLevel,
		WebhookTimeout:  webhookTimeout,
		VWAPWindow:      vwapWindow,
		ReadTimeout:     readTimeout,
		WriteTimeout:    writeTimeout,
		IdleTimeout:     idleTimeout,
		ShutdownTimeout: shutdownTimeout,
		DatabasePath:    getStr("DATABASE_PATH", ""),
		SeedFile:        getStr("SEED_FILE", ""),
		CORSOrigins:     getList("CORS_ORIGINS"),
	}

	if err := cfg.loadFees(); err != nil {
		return nil, err
	}

	cfg.EventBuffer, err = getInt("EVENT_BUFFER", 1024)
	if err != nil {
		return nil, fmt.Errorf("invalid EVENT_BUFFER: %w", err)
	}
	if cfg.EventBuffer < 1 {
		return nil, fmt.Errorf("invalid EVENT_BUFFER: %d, must be > 0", cfg.EventBuffer)
	}

	return cfg, nil
}

func (c *Config) loadFees() error {
	c.FeeModel = getStr("FEE_MODEL", FeeModelNone)

	sides, err := domain.ParseFeeSides(getStr("FEE_SIDES", "both"))
	if err != nil {
		return fmt.Errorf("invalid FEE_SIDES: %w", err)
	}
	c.FeeSides = sides

	switch c.FeeModel {
	case FeeModelNone:
	case FeeModelFlat:
		amount, err := strconv.ParseFloat(getStr("FEE_AMOUNT", "0"), 64)
		if err != nil {
			return fmt.Errorf("invalid FEE_AMOUNT: %w", err)
		}
		if amount < 0 {
			return fmt.Errorf("invalid FEE_AMOUNT: %v, must be >= 0", amount)
		}
		if c.FeeAmount, err = domain.DollarsToCents(amount); err != nil {
			return fmt.Errorf("invalid FEE_AMOUNT: %w", err)
		}
	case FeeModelBps:
		bps, err := decimal.NewFromString(getStr("FEE_BPS", "0"))
		if err != nil {
			return fmt.Errorf("invalid FEE_BPS: %w", err)
		}
		if bps.IsNegative() {
			return fmt.Errorf("invalid FEE_BPS: %s, must be >= 0", bps)
		}
		c.FeeBps = bps
	default:
		return fmt.Errorf("invalid FEE_MODEL: %q, must be one of: none, flat, bps", c.FeeModel)
	}
	return nil
}

// Fees builds the configured fee schedule.
func (c *Config) Fees() domain.FeeSchedule {
	switch c.FeeModel {
	case FeeModelFlat:
		return domain.FlatFee{Amount: c.FeeAmount, Sides: c.FeeSides}
	case FeeModelBps:
		return domain.ProportionalFee{BasisPoints: c.FeeBps, Sides: c.FeeSides}
	}
	return domain.NoFee
}

func getStr(key, defaultVal string) string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	return v
}

func getInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.Atoi(v)
}

func getDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return time.ParseDuration(v)
}

// getList splits a comma-separated variable, dropping empty items.
func getList(key string) []string {
	var out []string
	for _, s := range strings.Split(os.Getenv(key), ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}
