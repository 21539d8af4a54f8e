package oracle

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"candid.fyi/huntline/internal/config"
)

// DefaultBackendName is used when no oracle backend is configured.
const DefaultBackendName = "rules"

// Registry stores judge backends and resolves a default one. The active
// backend is chosen once at construction and passed into the resolver; it
// is never ambient state.
type Registry struct {
	judges         map[string]Judge
	defaultBackend string
}

func NewRegistry(defaultBackend string) *Registry {
	normalized := normalizeBackendName(defaultBackend)
	if normalized == "" {
		normalized = DefaultBackendName
	}
	return &Registry{
		judges:         make(map[string]Judge),
		defaultBackend: normalized,
	}
}

// Register adds one backend.
func (r *Registry) Register(name string, judge Judge) error {
	if r == nil {
		return fmt.Errorf("registry is nil")
	}
	if judge == nil {
		return fmt.Errorf("judge is nil")
	}
	normalized := normalizeBackendName(name)
	if normalized == "" {
		return fmt.Errorf("backend name is required")
	}
	r.judges[normalized] = judge
	return nil
}

// Judge resolves a backend by name. Empty names use the configured default.
func (r *Registry) Judge(name string) (Judge, error) {
	if r == nil || len(r.judges) == 0 {
		return nil, fmt.Errorf("no oracle backends are registered")
	}

	resolved := normalizeBackendName(name)
	if resolved == "" {
		resolved = r.defaultBackend
	}
	if judge, ok := r.judges[resolved]; ok {
		return judge, nil
	}
	return nil, fmt.Errorf("oracle backend %q is not registered (available: %s)", resolved, strings.Join(r.BackendNames(), ", "))
}

func (r *Registry) DefaultBackend() string {
	if r == nil {
		return ""
	}
	return r.defaultBackend
}

func (r *Registry) BackendNames() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.judges))
	for name := range r.judges {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewRegistryFromConfig wires the rules judge plus any credentialed LLM
// backend and marks the configured backend as the default.
func NewRegistryFromConfig(cfg *config.Config, logger zerolog.Logger) *Registry {
	registry := NewRegistry(cfg.OracleProvider)

	adapterCfg := AdapterConfig{
		ReapplyWindowDays: cfg.ReapplyWindowDays,
		Timeout:           time.Duration(cfg.OracleTimeoutSec) * time.Second,
		MaxRetries:        cfg.OracleMaxRetries,
	}

	_ = registry.Register("rules", NewRuleJudge(cfg.ReapplyWindowDays))
	if strings.TrimSpace(cfg.OracleAPIKey) != "" {
		openaiProvider := NewOpenAIProvider(cfg.OracleAPIKey, cfg.OracleModel, cfg.OracleBaseURL)
		_ = registry.Register("openai", NewAdapter(openaiProvider, adapterCfg, logger))

		anthropicProvider := NewAnthropicProvider(cfg.OracleAPIKey, cfg.OracleModel, cfg.OracleBaseURL)
		_ = registry.Register("anthropic", NewAdapter(anthropicProvider, adapterCfg, logger))
	}

	if _, exists := registry.judges[registry.defaultBackend]; !exists {
		logger.Warn().
			Str("backend", registry.defaultBackend).
			Msg("configured oracle backend unavailable, falling back to rules")
		registry.defaultBackend = DefaultBackendName
	}

	return registry
}

func normalizeBackendName(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
