package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the session service.
type Config struct {
	Port string

	// Database
	DBPath string

	// Logging
	LogLevel  string
	LogPretty bool

	// Deriv
	DerivAppID     string
	DerivWSURL     string
	DerivTokenDemo string
	DerivTokenReal string
	AccountMode    string // "demo", "real" or "sim"

	// Session defaults, used when a start request leaves a field empty.
	DefaultSymbol        string
	DefaultStrategy      string
	StakeInitial         float64
	ProfitTarget         float64
	LossLimit            float64
	PayoutRate           float64
	MartingaleEnabled    bool
	MartingaleMultiplier float64
	MaxMartingaleSteps   int
	StopLossType         string // "value" or "consecutive_losses"
	MaxConsecutiveLosses int
	MaxTradesPerDay      int
	MinBalance           float64
	TradingMode          string
	RiskMode             string

	// Strategy presets (YAML)
	StrategyConfigPath string

	// API
	JWTSecret    string
	APIKey       string
	CORSOrigins  []string
	APIRateLimit float64
	APIRateBurst int
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	// Database path: prefer DB_PATH, then DATABASE_PATH for backward compatibility.
	dbPath := getEnv("DB_PATH", "")
	if dbPath == "" {
		dbPath = getEnv("DATABASE_PATH", "./data/sessions.db")
	}

	return &Config{
		Port:                 getEnv("PORT", "8080"),
		DBPath:               dbPath,
		LogLevel:             strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogPretty:            getEnvBool("LOG_PRETTY", false),
		DerivAppID:           getEnv("DERIV_APP_ID", "128988"),
		DerivWSURL:           getEnv("DERIV_WS_URL", "wss://ws.binaryws.com/websockets/v3"),
		DerivTokenDemo:       os.Getenv("DERIV_TOKEN_DEMO"),
		DerivTokenReal:       os.Getenv("DERIV_TOKEN_REAL"),
		AccountMode:          strings.ToLower(getEnv("ACCOUNT_MODE", "demo")),
		DefaultSymbol:        getEnv("DEFAULT_SYMBOL", "R_100"),
		DefaultStrategy:      getEnv("DEFAULT_STRATEGY", "alpha_bot_1"),
		StakeInitial:         getEnvFloat("STAKE_INITIAL", 0.35),
		ProfitTarget:         getEnvFloat("PROFIT_TARGET", 2.0),
		LossLimit:            getEnvFloat("LOSS_LIMIT", 5.0),
		PayoutRate:           getEnvFloat("PAYOUT_RATE", 0.88),
		MartingaleEnabled:    getEnvBool("MARTINGALE_ENABLED", true),
		MartingaleMultiplier: getEnvFloat("MARTINGALE_MULTIPLIER", 2.0),
		MaxMartingaleSteps:   getEnvInt("MAX_MARTINGALE_STEPS", 3),
		StopLossType:         strings.ToLower(getEnv("STOP_LOSS_TYPE", "value")),
		MaxConsecutiveLosses: getEnvInt("MAX_CONSECUTIVE_LOSSES", 5),
		MaxTradesPerDay:      getEnvInt("MAX_TRADES_PER_DAY", 100),
		MinBalance:           getEnvFloat("MIN_BALANCE", 0.35),
		TradingMode:          getEnv("TRADING_MODE", "faster"),
		RiskMode:             getEnv("RISK_MODE", "optimized"),
		StrategyConfigPath:   getEnv("STRATEGY_CONFIG_PATH", "./config/strategies.yaml"),
		JWTSecret:            getEnv("JWT_SECRET", "dev-secret"),
		APIKey:               os.Getenv("API_KEY"),
		CORSOrigins:          splitAndTrim(getEnv("CORS_ORIGINS", "*")),
		APIRateLimit:         getEnvFloat("API_RATE_LIMIT", 20),
		APIRateBurst:         getEnvInt("API_RATE_BURST", 50),
	}, nil
}

// Token returns the Deriv credential for the given account mode.
func (c *Config) Token(accountMode string) string {
	switch strings.ToLower(accountMode) {
	case "real":
		return c.DerivTokenReal
	case "demo":
		return c.DerivTokenDemo
	default:
		return ""
	}
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

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}
