package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port        string
	DatabaseURL string // empty disables persistence

	// Database performance settings
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration
	DBReadTimeout     time.Duration
	DBWriteTimeout    time.Duration

	// Postal catalog (SEPOMEX flat file, Latin-1, pipe separated)
	CatalogPath string
	// Optional YAML overriding the embedded address dictionary
	DictionaryPath string

	// Geocoding
	GoogleMapsAPIKey string
	GeocodeTimeout   time.Duration
	GeocodeRPS       float64
	RedisAddr        string
	RedisPassword    string
	GeocodeCacheTTL  time.Duration

	// Document extraction
	OpenAIAPIKey      string
	OpenAIModel       string
	OpenAITemperature float64
	OpenAIMaxTokens   int
	OpenAITimeout     time.Duration
	LLMRPS            float64
	PromptDir         string // external template overrides; empty = embedded only

	// Processing
	WorkerCount int
	QueueSize   int

	// Reviewer allow-list for the manual review queue
	ReviewersFile string

	// Logging
	LogLevel  string
	LogFormat string // "json" or "text"
	LogOutput string

	// Environment & profiling/metrics
	Env              string
	ProfilingEnabled bool
	AdminPort        string
	MetricsEnabled   bool
	MetricsPath      string

	ConfigReloadIntervalSeconds int
}

func Load() *Config {
	env := strings.ToLower(getEnv("ENV", "development"))
	devDefault := env == "development" || env == "staging"

	return &Config{
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: getEnv("DATABASE_URL", ""),

		DBMaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
		DBMaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 10),
		DBConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 10*time.Minute),
		DBReadTimeout:     getEnvDuration("DB_READ_TIMEOUT", 8*time.Second),
		DBWriteTimeout:    getEnvDuration("DB_WRITE_TIMEOUT", 6*time.Second),

		CatalogPath:    getEnv("SEPOMEX_CATALOG_PATH", "data/CPdescarga.txt"),
		DictionaryPath: getEnv("ADDRESS_DICTIONARY_PATH", ""),

		GoogleMapsAPIKey: getEnv("GOOGLE_MAPS_API_KEY", ""),
		GeocodeTimeout:   getEnvDuration("GEOCODE_TIMEOUT", 10*time.Second),
		GeocodeRPS:       getEnvFloat("GEOCODE_RPS", 10),
		RedisAddr:        getEnv("REDIS_ADDR", ""),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		GeocodeCacheTTL:  getEnvDuration("GEOCODE_CACHE_TTL", 24*time.Hour),

		OpenAIAPIKey:      getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:       getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAITemperature: getEnvFloat("OPENAI_TEMPERATURE", 0.1),
		OpenAIMaxTokens:   getEnvInt("OPENAI_MAX_TOKENS", 800),
		OpenAITimeout:     getEnvDuration("OPENAI_TIMEOUT", 60*time.Second),
		LLMRPS:            getEnvFloat("LLM_RPS", 2),
		PromptDir:         getEnv("PROMPT_DIR", ""),

		WorkerCount: getEnvInt("WORKER_COUNT", 4),
		QueueSize:   getEnvInt("QUEUE_SIZE", 500),

		ReviewersFile: getEnv("REVIEWERS_FILE", "config/reviewers.yaml"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
		LogOutput: getEnv("LOG_OUTPUT", "stdout"),

		Env:              env,
		ProfilingEnabled: getEnvBool("PROFILING_ENABLED", devDefault),
		AdminPort:        getEnv("ADMIN_PORT", "6060"),
		MetricsEnabled:   getEnvBool("METRICS_ENABLED", true),
		MetricsPath:      getEnv("METRICS_PATH", "/metrics"),

		ConfigReloadIntervalSeconds: getEnvInt("CONFIG_RELOAD_INTERVAL_SECONDS", 5),
	}
}

// PersistenceEnabled reports whether verifications are stored in MySQL.
func (c *Config) PersistenceEnabled() bool { return c.DatabaseURL != "" }

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, def int) int {
	if v, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return v
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return v
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return v
	}
	return def
}
