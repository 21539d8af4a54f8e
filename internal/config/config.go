package config

import (
	"fmt"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	DBMinConns  int32  `envconfig:"HL_DB_MIN_CONNS" default:"1"`
	DBMaxConns  int32  `envconfig:"HL_DB_MAX_CONNS" default:"8"`

	// Oracle backend for the semantic judge. "rules" needs no credentials
	// and is the default; "openai" and "anthropic" require ORACLE_API_KEY.
	OracleProvider   string `envconfig:"ORACLE_PROVIDER" default:"rules"`
	OracleModel      string `envconfig:"ORACLE_MODEL" default:""`
	OracleAPIKey     string `envconfig:"ORACLE_API_KEY" default:""`
	OracleBaseURL    string `envconfig:"ORACLE_BASE_URL" default:""`
	OracleTimeoutSec int    `envconfig:"ORACLE_TIMEOUT_SECONDS" default:"30"`
	OracleMaxRetries int    `envconfig:"ORACLE_MAX_RETRIES" default:"2"`

	// Matching heuristics. Defaults are product decisions carried over
	// unchanged; they are configurable so they can be revisited without a
	// code change.
	ReapplyWindowDays     int `envconfig:"REAPPLY_WINDOW_DAYS" default:"120"`
	CandidateLookbackDays int `envconfig:"CANDIDATE_LOOKBACK_DAYS" default:"365"`
	CandidateLimit        int `envconfig:"CANDIDATE_LIMIT" default:"5"`
	GhostAfterDays        int `envconfig:"GHOST_AFTER_DAYS" default:"30"`

	HTTPHost string `envconfig:"HL_HTTP_HOST" default:"0.0.0.0"`
	HTTPPort int    `envconfig:"HL_HTTP_PORT" default:"8085"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.DBMinConns < 0 {
		return fmt.Errorf("HL_DB_MIN_CONNS must be >= 0")
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("HL_DB_MAX_CONNS must be >= 1")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("HL_DB_MIN_CONNS (%d) cannot exceed HL_DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	switch strings.ToLower(strings.TrimSpace(c.OracleProvider)) {
	case "rules":
	case "openai", "anthropic":
		if strings.TrimSpace(c.OracleAPIKey) == "" {
			return fmt.Errorf("ORACLE_API_KEY is required for ORACLE_PROVIDER=%s", c.OracleProvider)
		}
	default:
		return fmt.Errorf("unknown ORACLE_PROVIDER %q (expected rules, openai or anthropic)", c.OracleProvider)
	}
	if c.OracleTimeoutSec < 1 {
		return fmt.Errorf("ORACLE_TIMEOUT_SECONDS must be >= 1")
	}
	if c.OracleMaxRetries < 0 {
		return fmt.Errorf("ORACLE_MAX_RETRIES must be >= 0")
	}
	if c.ReapplyWindowDays < 1 {
		return fmt.Errorf("REAPPLY_WINDOW_DAYS must be >= 1")
	}
	if c.CandidateLookbackDays < 1 {
		return fmt.Errorf("CANDIDATE_LOOKBACK_DAYS must be >= 1")
	}
	if c.CandidateLimit < 1 {
		return fmt.Errorf("CANDIDATE_LIMIT must be >= 1")
	}
	if c.GhostAfterDays < 1 {
		return fmt.Errorf("GHOST_AFTER_DAYS must be >= 1")
	}
	return nil
}
