package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Config holds application configuration
type Config struct {
	DBConnStr  string
	GRPCAddr   string
	APIToken   string
	LogLevel   string
	LogPretty  bool
	Timezone   string
	Location   *time.Location
	RunOnStart bool

	CoinGecko CoinGeckoConfig
	Schedules Schedules
}

// CoinGeckoConfig configures the CoinGecko client
type CoinGeckoConfig struct {
	BaseURL     string
	APIKey      string
	RateLimit   float64 // requests per second
	Timeout     time.Duration
	VsCurrency  string
	MarketPages int // market snapshot pages pulled by the catalog refresh
}

// Schedules holds the cron expression of every job (seconds field first).
// An empty expression registers the job for manual runs only.
type Schedules struct {
	Catalog   string
	Profit    string
	Maturity  string
	Ranking   string
	Consensus string
}

const defaultAPIToken = "dev-token"

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		DBConnStr:  dbConnStr(),
		GRPCAddr:   getEnv("GRPC_ADDR", ":8080"),
		APIToken:   getEnv("API_TOKEN", defaultAPIToken),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		LogPretty:  getEnvAsBool("LOG_PRETTY", false),
		Timezone:   getEnv("TIMEZONE", "UTC"),
		RunOnStart: getEnvAsBool("RUN_ON_START", false),
		CoinGecko: CoinGeckoConfig{
			BaseURL:     getEnv("COINGECKO_BASE_URL", "https://api.coingecko.com/api/v3"),
			APIKey:      getEnv("COINGECKO_API_KEY", ""),
			RateLimit:   getEnvAsFloat("COINGECKO_RATE_LIMIT", 0.5),
			Timeout:     getEnvAsDuration("COINGECKO_TIMEOUT", 30*time.Second),
			VsCurrency:  getEnv("COINGECKO_VS_CURRENCY", "usd"),
			MarketPages: getEnvAsInt("COINGECKO_MARKET_PAGES", 1),
		},
		Schedules: Schedules{
			Catalog:   getEnv("SCHEDULE_CATALOG", "0 0 0 * * *"),
			Profit:    getEnv("SCHEDULE_PROFIT", "0 0 */6 * * *"),
			Maturity:  getEnv("SCHEDULE_MATURITY", "0 30 * * * *"),
			Ranking:   getEnv("SCHEDULE_RANKING", "0 15 */6 * * *"),
			Consensus: getEnv("SCHEDULE_CONSENSUS", "0 0 * * * *"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration and resolves the timezone
func (c *Config) Validate() error {
	if c.DBConnStr == "" {
		return fmt.Errorf("DB_CONN_STR is required")
	}
	if c.GRPCAddr == "" {
		return fmt.Errorf("GRPC_ADDR is required")
	}
	if c.CoinGecko.MarketPages < 1 {
		return fmt.Errorf("COINGECKO_MARKET_PAGES must be at least 1")
	}
	if c.CoinGecko.RateLimit <= 0 {
		return fmt.Errorf("COINGECKO_RATE_LIMIT must be positive")
	}

	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	c.Location = loc

	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	for key, spec := range map[string]string{
		"SCHEDULE_CATALOG":   c.Schedules.Catalog,
		"SCHEDULE_PROFIT":    c.Schedules.Profit,
		"SCHEDULE_MATURITY":  c.Schedules.Maturity,
		"SCHEDULE_RANKING":   c.Schedules.Ranking,
		"SCHEDULE_CONSENSUS": c.Schedules.Consensus,
	} {
		if spec == "" {
			continue
		}
		if _, err := parser.Parse(spec); err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, spec, err)
		}
	}

	return nil
}

// dbConnStr returns DB_CONN_STR, or builds it from the individual DB_* variables
func dbConnStr() string {
	if connStr := os.Getenv("DB_CONN_STR"); connStr != "" {
		return connStr
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		getEnv("DB_HOST", "localhost"),
		getEnv("DB_PORT", "5432"),
		getEnv("DB_USER", "postgres"),
		getEnv("DB_PASSWORD", "postgres"),
		getEnv("DB_NAME", "dealtracker"),
	)
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
