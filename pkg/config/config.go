package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the execution engine.
type Config struct {
	Port string

	// Primary venue bridge
	VenueRESTURL   string
	VenueWSURL     string
	VenueAPIKey    string
	VenueAPISecret string
	Symbols        []string

	// Instrument price scaling
	InstrumentSpecPath string
	DefaultDigits      int

	// Pending order tracking
	PendingWatchTimeout time.Duration
	SweepInterval       time.Duration

	// Price fetch for order-type inference
	PriceRetryDelay time.Duration

	// SL/TP amendment
	AmendConfirmTimeout time.Duration
	AmendAssumeSuccess  bool

	// Close reason inference tolerance (fraction, e.g. 0.005 = 0.5%)
	CloseTolerance float64

	// Storage
	DBPath          string
	SignalStorePath string

	// Ops API auth
	JWTSecret string

	// Logging
	LogLevel string
	LogFile  string
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	return &Config{
		Port:                getEnv("PORT", "8080"),
		VenueRESTURL:        getEnv("VENUE_REST_URL", "http://localhost:9090"),
		VenueWSURL:          getEnv("VENUE_WS_URL", "ws://localhost:9090/stream"),
		VenueAPIKey:         os.Getenv("VENUE_API_KEY"),
		VenueAPISecret:      os.Getenv("VENUE_API_SECRET"),
		Symbols:             splitAndTrim(getEnv("VENUE_SYMBOLS", "EURUSD,XAUUSD")),
		InstrumentSpecPath:  getEnv("INSTRUMENT_SPEC_PATH", "./instruments.yaml"),
		DefaultDigits:       getEnvInt("DEFAULT_DIGITS", 5),
		PendingWatchTimeout: getEnvDuration("PENDING_WATCH_TIMEOUT", 48*time.Hour),
		SweepInterval:       getEnvDuration("PENDING_SWEEP_INTERVAL", 10*time.Minute),
		PriceRetryDelay:     getEnvDuration("PRICE_RETRY_DELAY", 500*time.Millisecond),
		AmendConfirmTimeout: getEnvDuration("AMEND_CONFIRM_TIMEOUT", 5*time.Second),
		AmendAssumeSuccess:  getEnv("AMEND_ASSUME_SUCCESS", "true") == "true",
		CloseTolerance:      getEnvFloat("CLOSE_TOLERANCE", 0.005),
		DBPath:              getEnv("DB_PATH", "./data/engine.db"),
		SignalStorePath:     getEnv("SIGNAL_STORE_PATH", "./data/signalstore"),
		JWTSecret:           getEnv("JWT_SECRET", "dev-secret"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		LogFile:             getEnv("LOG_FILE", ""),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
