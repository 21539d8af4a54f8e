package app

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"candid.fyi/huntline/internal/config"
	"candid.fyi/huntline/internal/consolidate"
	"candid.fyi/huntline/internal/db"
	"candid.fyi/huntline/internal/oracle"
	"candid.fyi/huntline/internal/resolve"
)

// buildJudge resolves the oracle backend configured for this process.
func buildJudge(cfg *config.Config, logger zerolog.Logger) (oracle.Judge, error) {
	registry := oracle.NewRegistryFromConfig(cfg, logger)
	judge, err := registry.Judge(registry.DefaultBackend())
	if err != nil {
		return nil, fmt.Errorf("resolve oracle backend: %w", err)
	}
	return judge, nil
}

func buildResolver(cfg *config.Config, pool *db.Pool, judge oracle.Judge, logger zerolog.Logger) *resolve.Resolver {
	return resolve.NewResolver(pool, judge, resolve.Config{
		CandidateLookbackDays: cfg.CandidateLookbackDays,
		CandidateLimit:        cfg.CandidateLimit,
	}, logger)
}

func buildConsolidator(cfg *config.Config, pool *db.Pool, judge oracle.Judge, logger zerolog.Logger) *consolidate.Consolidator {
	return consolidate.NewConsolidator(pool, judge, consolidate.Config{
		GhostAfterDays: cfg.GhostAfterDays,
	}, logger)
}

// loadJSONInput returns the file contents when a path is given, otherwise
// the inline value, and verifies the result is valid JSON.
func loadJSONInput(inline, filePath, label string) (json.RawMessage, error) {
	raw := strings.TrimSpace(inline)
	if strings.TrimSpace(filePath) != "" {
		contents, err := os.ReadFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("read %s file: %w", label, err)
		}
		raw = strings.TrimSpace(string(contents))
	}
	if raw == "" {
		return nil, fmt.Errorf("%s is empty", label)
	}
	if !json.Valid([]byte(raw)) {
		return nil, fmt.Errorf("%s is not valid JSON", label)
	}
	return json.RawMessage(raw), nil
}
