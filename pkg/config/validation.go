package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	errs "skill-runner/pkg/errors"
)

// FieldError describes one invalid configuration value.
type FieldError struct {
	Field   string
	Value   string
	Message string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s=%q: %s", e.Field, e.Value, e.Message)
}

// Validate checks formats and ranges and returns every problem found, joined.
// Missing API keys are not errors: the collaborators degrade to
// "not configured" results instead.
func (c *Config) Validate() error {
	var problems []error
	add := func(field, value, msg string) {
		problems = append(problems, FieldError{Field: field, Value: value, Message: msg})
	}

	for name, port := range map[string]string{"PORT": c.Port, "ADMIN_PORT": c.AdminPort} {
		if p, err := strconv.Atoi(port); err != nil || p < 1 || p > 65535 {
			add(name, port, "invalid port number (must be 1-65535)")
		}
	}
	if c.Port == c.AdminPort && (c.MetricsEnabled || c.ProfilingEnabled) {
		add("ADMIN_PORT", c.AdminPort, "conflicts with PORT")
	}

	if c.DatabaseURL != "" && (!strings.Contains(c.DatabaseURL, "@") || !strings.Contains(c.DatabaseURL, "/")) {
		add("DATABASE_URL", maskString(c.DatabaseURL, 8), "invalid MySQL DSN (expected user:pass@tcp(host:port)/db)")
	}
	if c.CatalogPath == "" {
		add("SEPOMEX_CATALOG_PATH", c.CatalogPath, "postal catalog path is required")
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		add("LOG_LEVEL", c.LogLevel, "must be one of debug, info, warn, error")
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		add("LOG_FORMAT", c.LogFormat, "must be 'json' or 'text'")
	}

	if c.WorkerCount < 1 || c.WorkerCount > 100 {
		add("WORKER_COUNT", strconv.Itoa(c.WorkerCount), "must be between 1 and 100")
	}
	if c.QueueSize < 1 {
		add("QUEUE_SIZE", strconv.Itoa(c.QueueSize), "must be positive")
	}
	if c.GeocodeRPS <= 0 {
		add("GEOCODE_RPS", fmt.Sprint(c.GeocodeRPS), "must be positive")
	}
	if c.LLMRPS <= 0 {
		add("LLM_RPS", fmt.Sprint(c.LLMRPS), "must be positive")
	}
	if c.GeocodeTimeout <= 0 {
		add("GEOCODE_TIMEOUT", c.GeocodeTimeout.String(), "must be positive")
	}
	if c.OpenAITimeout <= 0 {
		add("OPENAI_TIMEOUT", c.OpenAITimeout.String(), "must be positive")
	}
	if c.DBMaxOpenConns < 1 || c.DBMaxIdleConns < 0 || c.DBMaxIdleConns > c.DBMaxOpenConns {
		add("DB_MAX_IDLE_CONNS", strconv.Itoa(c.DBMaxIdleConns), "must be between 0 and DB_MAX_OPEN_CONNS")
	}

	if len(problems) > 0 {
		return errs.NewConfig("config.Validate", "configuration validation failed", errors.Join(problems...))
	}
	return nil
}

// Summary returns the configuration with secrets masked, for startup logs.
func (c *Config) Summary() map[string]interface{} {
	return map[string]interface{}{
		"env":                 c.Env,
		"port":                c.Port,
		"database_url":        maskString(c.DatabaseURL, 8),
		"google_maps_api_key": maskString(c.GoogleMapsAPIKey, 6),
		"openai_api_key":      maskString(c.OpenAIAPIKey, 6),
		"openai_model":        c.OpenAIModel,
		"catalog_path":        c.CatalogPath,
		"redis_addr":          c.RedisAddr,
		"worker_count":        c.WorkerCount,
		"log_level":           c.LogLevel,
	}
}

func maskString(s string, keepFirst int) string {
	if s == "" {
		return ""
	}
	if len(s) <= keepFirst {
		return strings.Repeat("*", len(s))
	}
	return s[:keepFirst] + strings.Repeat("*", len(s)-keepFirst)
}
