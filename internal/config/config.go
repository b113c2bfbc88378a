// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// LeadRangeSource selects which classification the implicit leading split
// range (pages before the first break) inherits from the parent document.
type LeadRangeSource string

const (
	// LeadRangeManual inherits the analyst-set classification.
	LeadRangeManual LeadRangeSource = "manual"
	// LeadRangeAuto prefers the indexer-suggested classification when
	// present, falling back to the manual one.
	LeadRangeAuto LeadRangeSource = "auto"
)

// Config holds all application configuration.
type Config struct {
	ServiceName string
	ServicePort string

	ProjectID           string
	DocumentsBucket     string
	DocumentsCollection string
	SessionsCollection  string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	LockTTL         time.Duration
	RunTimeout      time.Duration
	ReconcileAfter  time.Duration
	RasterDPI       int
	LeadRangeSource LeadRangeSource

	WorkflowID       string
	WorkflowLocation string

	VertexAIRegion   string
	SuggesterEnabled bool

	OTLPEndpoint string
}

// Load reads configuration from environment variables with sensible
// defaults. PROJECT_ID and DOCUMENTS_BUCKET have no defaults and must be set.
func Load() (*Config, error) {
	cfg := &Config{
		ServiceName: getEnv("SERVICE_NAME", "loandoc-manipulator"),
		ServicePort: getEnv("SERVICE_PORT", "8080"),

		ProjectID:           getEnv("PROJECT_ID", ""),
		DocumentsBucket:     getEnv("DOCUMENTS_BUCKET", ""),
		DocumentsCollection: getEnv("DOCUMENTS_COLLECTION", "documents"),
		SessionsCollection:  getEnv("SESSIONS_COLLECTION", "processingSessions"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		LockTTL:         getEnvAsDuration("LOCK_TTL", 15*time.Minute),
		RunTimeout:      getEnvAsDuration("RUN_TIMEOUT", 10*time.Minute),
		ReconcileAfter:  getEnvAsDuration("RECONCILE_AFTER", 30*time.Minute),
		RasterDPI:       getEnvAsInt("RASTER_DPI", 150),
		LeadRangeSource: LeadRangeSource(getEnv("SPLIT_LEAD_RANGE_SOURCE", string(LeadRangeManual))),

		WorkflowID:       getEnv("WORKFLOW_ID", "document-manipulation"),
		WorkflowLocation: getEnv("WORKFLOW_LOCATION", "us-central1"),

		VertexAIRegion:   getEnv("VERTEX_AI_REGION", "us-central1"),
		SuggesterEnabled: getEnvAsBool("SUGGESTER_ENABLED", false),

		OTLPEndpoint: getEnv("OTLP_ENDPOINT", "localhost:4318"),
	}

	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	if cfg.DocumentsBucket == "" {
		return nil, fmt.Errorf("DOCUMENTS_BUCKET environment variable must be set")
	}
	if cfg.LeadRangeSource != LeadRangeManual && cfg.LeadRangeSource != LeadRangeAuto {
		return nil, fmt.Errorf("SPLIT_LEAD_RANGE_SOURCE must be %q or %q", LeadRangeManual, LeadRangeAuto)
	}
	if cfg.RunTimeout >= cfg.LockTTL {
		return nil, fmt.Errorf("RUN_TIMEOUT (%s) must be shorter than LOCK_TTL (%s)", cfg.RunTimeout, cfg.LockTTL)
	}
	return cfg, nil
}

// GetRedisAddr returns the Redis address.
func (c *Config) GetRedisAddr() string { return c.RedisAddr }

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if value, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return value
	}
	return fallback
}
