package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/efreitasn/tradecore/internal/domain"
)

// durationEnvKeys lists the variables parsed with time.ParseDuration,
// paired with their defaults.
var durationEnvKeys = []string{
	"WEBHOOK_TIMEOUT",
	"VWAP_WINDOW",
	"READ_TIMEOUT",
	"WRITE_TIMEOUT",
	"IDLE_TIMEOUT",
	"SHUTDOWN_TIMEOUT",
}

var durationDefaults = map[string]time.Duration{
	"WEBHOOK_TIMEOUT":  5 * time.Second,
	"VWAP_WINDOW":      5 * time.Minute,
	"READ_TIMEOUT":     5 * time.Second,
	"WRITE_TIMEOUT":    10 * time.Second,
	"IDLE_TIMEOUT":     60 * time.Second,
	"SHUTDOWN_TIMEOUT": 10 * time.Second,
}

var allEnvKeys = append([]string{
	"PORT", "LOG_LEVEL", "FEE_MODEL", "FEE_AMOUNT", "FEE_BPS", "FEE_SIDES",
	"DATABASE_PATH", "SEED_FILE", "CORS_ORIGINS", "EVENT_BUFFER",
}, durationEnvKeys...)

func unsetAllConfigEnv() {
	for _, key := range allEnvKeys {
		os.Unsetenv(key)
	}
}

// setEnv applies a generated environment; empty values stay unset.
func setEnv(env map[string]string) {
	for k, v := range env {
		if v != "" {
			os.Setenv(k, v)
		}
	}
}

func durationOf(t *rapid.T, key string, env map[string]string) time.Duration {
	if env[key] == "" {
		return durationDefaults[key]
	}
	d, err := time.ParseDuration(env[key])
	if err != nil {
		t.Fatalf("generator produced bad duration %q", env[key])
	}
	return d
}

// genEnv draws a valid environment. Every key may be left unset.
func genEnv(t *rapid.T) map[string]string {
	optional := func(g *rapid.Generator[string]) *rapid.Generator[string] {
		return rapid.OneOf(rapid.Just(""), g)
	}
	env := map[string]string{
		"PORT":         optional(rapid.Map(rapid.IntRange(1, 65535), strconv.Itoa)).Draw(t, "port"),
		"LOG_LEVEL":    optional(rapid.SampledFrom([]string{"debug", "info", "warn", "error"})).Draw(t, "level"),
		"EVENT_BUFFER": optional(rapid.Map(rapid.IntRange(1, 1<<16), strconv.Itoa)).Draw(t, "buffer"),
		"SEED_FILE":    optional(rapid.StringMatching(`[a-z]{1,8}\.yaml`)).Draw(t, "seed"),
	}
	for _, key := range durationEnvKeys {
		env[key] = optional(rapid.Custom(func(t *rapid.T) string {
			unit := rapid.SampledFrom([]string{"ms", "s", "m"}).Draw(t, "unit")
			return fmt.Sprintf("%d%s", rapid.IntRange(1, 600).Draw(t, "n"), unit)
		})).Draw(t, key)
	}
	return env
}

func TestProperty_LoadHonoursEnvironment(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		unsetAllConfigEnv()
		defer unsetAllConfigEnv()

		env := genEnv(t)
		setEnv(env)

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() rejected a valid environment %v: %v", env, err)
		}

		wantPort, wantBuffer, wantLevel := 8080, 1024, "info"
		if env["PORT"] != "" {
			wantPort, _ = strconv.Atoi(env["PORT"])
		}
		if env["EVENT_BUFFER"] != "" {
			wantBuffer, _ = strconv.Atoi(env["EVENT_BUFFER"])
		}
		if env["LOG_LEVEL"] != "" {
			wantLevel = env["LOG_LEVEL"]
		}
		if cfg.Port != wantPort || cfg.EventBuffer != wantBuffer || cfg.LogLevel != wantLevel {
			t.Fatalf("got port=%d buffer=%d level=%q for env %v", cfg.Port, cfg.EventBuffer, cfg.LogLevel, env)
		}
		if cfg.SeedFile != env["SEED_FILE"] {
			t.Fatalf("SeedFile = %q, want %q", cfg.SeedFile, env["SEED_FILE"])
		}

		got := map[string]time.Duration{
			"WEBHOOK_TIMEOUT":  cfg.WebhookTimeout,
			"VWAP_WINDOW":      cfg.VWAPWindow,
			"READ_TIMEOUT":     cfg.ReadTimeout,
			"WRITE_TIMEOUT":    cfg.WriteTimeout,
			"IDLE_TIMEOUT":     cfg.IdleTimeout,
			"SHUTDOWN_TIMEOUT": cfg.ShutdownTimeout,
		}
		for _, key := range durationEnvKeys {
			if want := durationOf(t, key, env); got[key] != want {
				t.Fatalf("%s = %v, want %v", key, got[key], want)
			}
		}

		// Without a fee model nothing is charged.
		if fee := cfg.Fees().Fee(domain.OrderSideBid, 10000, 10); fee != 0 {
			t.Fatalf("default fee = %d, want 0", fee)
		}
	})
}

// Any single malformed variable makes Load fail, whatever the rest holds.
func TestProperty_MalformedVariableRejected(t *testing.T) {
	bad := map[string]*rapid.Generator[string]{
		"PORT":         rapid.StringMatching(`[a-z]{1,6}|\d+\.\d+`),
		"LOG_LEVEL":    rapid.StringMatching(`[a-z]{1,12}`).Filter(func(s string) bool { return !isValidLogLevel(s) }),
		"EVENT_BUFFER": rapid.SampledFrom([]string{"0", "-1", "-512", "many"}),
		"FEE_MODEL":    rapid.StringMatching(`[a-z]{1,8}`).Filter(func(s string) bool { return s != "none" && s != "flat" && s != "bps" }),
		"FEE_SIDES":    rapid.StringMatching(`[a-z]{1,8}`).Filter(func(s string) bool { return s != "both" && s != "buyer" && s != "seller" }),
	}
	for _, key := range durationEnvKeys {
		bad[key] = rapid.SampledFrom([]string{"soon", "5x", "abc123", "1.5.2s"})
	}

	for key, gen := range bad {
		t.Run(key, func(t *testing.T) {
			rapid.Check(t, func(t *rapid.T) {
				unsetAllConfigEnv()
				defer unsetAllConfigEnv()

				env := genEnv(t)
				env[key] = gen.Draw(t, "bad")
				setEnv(env)

				if _, err := Load(); err == nil {
					t.Fatalf("Load() accepted %s=%q", key, env[key])
				}
			})
		})
	}
}

func TestProperty_FlatFeeAmountInCents(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		unsetAllConfigEnv()
		defer unsetAllConfigEnv()

		cents := rapid.Int64Range(0, 1_000_000).Draw(t, "cents")
		sides := rapid.SampledFrom([]string{"both", "buyer", "seller"}).Draw(t, "sides")

		os.Setenv("FEE_MODEL", "flat")
		os.Setenv("FEE_AMOUNT", fmt.Sprintf("%d.%02d", cents/100, cents%100))
		os.Setenv("FEE_SIDES", sides)

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() returned error: %v", err)
		}
		if cfg.FeeAmount != cents {
			t.Fatalf("FeeAmount = %d, want %d", cfg.FeeAmount, cents)
		}

		fees := cfg.Fees()
		bid := fees.Fee(domain.OrderSideBid, 100, 1)
		ask := fees.Fee(domain.OrderSideAsk, 100, 1)
		if bid+ask != map[string]int64{"both": 2 * cents, "buyer": cents, "seller": cents}[sides] {
			t.Fatalf("fees bid=%d ask=%d for sides=%s amount=%d", bid, ask, sides, cents)
		}
	})
}

// A whole number of basis points on a notional that is a multiple of
// 10000 cents divides exactly, so no rounding is involved.
func TestProperty_BpsFeeScalesWithNotional(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		unsetAllConfigEnv()
		defer unsetAllConfigEnv()

		bps := rapid.Int64Range(0, 500).Draw(t, "bps")
		price := rapid.Int64Range(1, 1000).Draw(t, "dollars") * 100
		qty := rapid.Int64Range(1, 10).Draw(t, "qty") * 100

		os.Setenv("FEE_MODEL", "bps")
		os.Setenv("FEE_BPS", strconv.FormatInt(bps, 10))

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() returned error: %v", err)
		}
		want := price * qty * bps / 10000
		for _, side := range []domain.OrderSide{domain.OrderSideBid, domain.OrderSideAsk} {
			if got := cfg.Fees().Fee(side, price, qty); got != want {
				t.Fatalf("%s fee on %d x %d at %d bps = %d, want %d", side, qty, price, bps, got, want)
			}
		}
	})
}

func TestProperty_CORSOriginsTrimmed(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		unsetAllConfigEnv()
		defer unsetAllConfigEnv()

		origins := rapid.SliceOfN(rapid.StringMatching(`https://[a-z]{1,10}\.example`), 0, 5).Draw(t, "origins")
		padded := make([]string, 0, 2*len(origins))
		for _, o := range origins {
			padded = append(padded, " "+o+" ", "")
		}
		os.Setenv("CORS_ORIGINS", strings.Join(padded, ","))

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() returned error: %v", err)
		}
		if len(cfg.CORSOrigins) != len(origins) {
			t.Fatalf("CORSOrigins = %q, want %q", cfg.CORSOrigins, origins)
		}
		for i := range origins {
			if cfg.CORSOrigins[i] != origins[i] {
				t.Fatalf("CORSOrigins[%d] = %q, want %q", i, cfg.CORSOrigins[i], origins[i])
			}
		}
	})
}
