package oracle

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed verdict.schema.json
var verdictSchemaJSON string

// AdapterConfig bounds the oracle call. ReapplyWindowDays is the product
// heuristic separating a duplicate APPLIED signal from a genuine
// re-application.
type AdapterConfig struct {
	ReapplyWindowDays int
	Timeout           time.Duration
	MaxRetries        int
	RetryBackoff      time.Duration
}

func (c AdapterConfig) withDefaults() AdapterConfig {
	if c.ReapplyWindowDays <= 0 {
		c.ReapplyWindowDays = 120
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 2 * time.Second
	}
	return c
}

// Adapter turns "signal + candidates" into one verdict by delegating the
// fixed decision protocol to an LLM provider. Every provider failure,
// malformed reply or unknown match id is translated into a no-match
// verdict: duplicates are cheap to repair, wrong merges are not.
type Adapter struct {
	provider Provider
	cfg      AdapterConfig
	logger   zerolog.Logger
}

func NewAdapter(provider Provider, cfg AdapterConfig, logger zerolog.Logger) *Adapter {
	return &Adapter{
		provider: provider,
		cfg:      cfg.withDefaults(),
		logger:   logger,
	}
}

func (a *Adapter) Judge(ctx context.Context, req Request) (Verdict, error) {
	if len(req.Candidates) == 0 {
		return noMatch("no candidates to compare"), nil
	}

	prompt := buildPrompt(req, a.cfg.ReapplyWindowDays)

	var lastErr error
	attempts := a.cfg.MaxRetries + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		response, err := a.complete(ctx, prompt)
		if err == nil {
			verdict, parseErr := parseVerdict(response, req.Candidates)
			if parseErr != nil {
				// The provider answered but not in contract; retrying the
				// same prompt rarely helps, so fail safe immediately.
				a.logger.Warn().
					Err(parseErr).
					Str("provider", a.provider.Name()).
					Msg("oracle verdict rejected")
				return noMatch("oracle verdict rejected: " + parseErr.Error()), nil
			}
			return verdict, nil
		}

		lastErr = err
		a.logger.Warn().
			Err(err).
			Str("provider", a.provider.Name()).
			Int("attempt", attempt).
			Msg("oracle call failed")

		if attempt < attempts {
			select {
			case <-ctx.Done():
				return noMatch("oracle call cancelled"), nil
			case <-time.After(time.Duration(attempt) * a.cfg.RetryBackoff):
			}
		}
	}

	a.logger.Error().
		Err(lastErr).
		Str("provider", a.provider.Name()).
		Msg("oracle exhausted retries, failing safe to no match")
	return noMatch("oracle unavailable"), nil
}

func (a *Adapter) complete(ctx context.Context, prompt string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()
	return a.provider.Complete(callCtx, prompt)
}

func buildPrompt(req Request, reapplyWindowDays int) string {
	var b strings.Builder

	b.WriteString("You are matching a job-application update against tracked applications.\n\n")
	b.WriteString("<SIGNAL>\n")
	fmt.Fprintf(&b, "company: %s\nrole: %s\nstatus: %s\ndate: %s\n",
		req.Signal.Company, req.Signal.Role, strings.ToUpper(req.Signal.Status),
		req.Signal.ReceivedAt.UTC().Format("2006-01-02"))
	if req.Signal.ExternalRefID != "" {
		fmt.Fprintf(&b, "external_ref_id: %s\n", req.Signal.ExternalRefID)
	}
	b.WriteString("</SIGNAL>\n\n<CANDIDATES>\n")
	for _, cand := range req.Candidates {
		fmt.Fprintf(&b, "- id: %s | company: %s | role: %s | status: %s | applied: %s",
			cand.ApplicationUUID, cand.Company, cand.Role, strings.ToUpper(cand.Status),
			cand.AppliedAt.UTC().Format("2006-01-02"))
		if cand.ExternalRefID != "" {
			fmt.Fprintf(&b, " | external_ref_id: %s", cand.ExternalRefID)
		}
		b.WriteString("\n")
	}
	b.WriteString("</CANDIDATES>\n\n")

	b.WriteString("Decide whether the signal belongs to one candidate, in this order:\n")
	b.WriteString("1. Company: the candidate must plausibly be the same organization (fuzzy match allowed).\n")
	b.WriteString("2. Role: titles must be semantically equivalent (\"Software Engineer\" matches \"SDE\"; a Product Manager never matches an Engineer).\n")
	fmt.Fprintf(&b, "3. Dates: if the signal status is SCREEN, INTERVIEW, OFFER or REJECTED it updates the most recent compatible-role candidate. If the status is APPLIED and the day gap to the candidate exceeds %d days it is a fresh application (no match); at %d days or fewer it is a duplicate (match).\n",
		reapplyWindowDays, reapplyWindowDays)
	b.WriteString("4. Anonymized poster: if the candidate company is a generic placeholder (e.g. \"Confidential\"), match only on an identical external_ref_id or a near-identical role title; different external_ref_ids always mean no match.\n\n")

	b.WriteString("Respond with one JSON object and nothing else:\n")
	b.WriteString(`{"match_id": "<candidate id or null>", "confidence": "HIGH|MEDIUM|LOW", "reasoning": "<one sentence>"}` + "\n")

	return b.String()
}

var (
	verdictSchemaOnce sync.Once
	verdictSchema     *jsonschema.Schema
	verdictSchemaErr  error
)

func loadVerdictSchema() (*jsonschema.Schema, error) {
	verdictSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		if err := compiler.AddResource("verdict.schema.json", strings.NewReader(verdictSchemaJSON)); err != nil {
			verdictSchemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		verdictSchema, verdictSchemaErr = compiler.Compile("verdict.schema.json")
	})
	return verdictSchema, verdictSchemaErr
}

type rawVerdict struct {
	MatchID    *string `json:"match_id"`
	Confidence string  `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// parseVerdict extracts the first JSON object from an oracle reply,
// validates it against the verdict contract and resolves the match id back
// to a candidate.
func parseVerdict(response string, candidates []Candidate) (Verdict, error) {
	jsonStr := extractJSONObject(response)
	if jsonStr == "" {
		return Verdict{}, fmt.Errorf("no JSON object in oracle response")
	}

	var value any
	if err := json.Unmarshal([]byte(jsonStr), &value); err != nil {
		return Verdict{}, fmt.Errorf("decode oracle response: %w", err)
	}

	schema, err := loadVerdictSchema()
	if err != nil {
		return Verdict{}, fmt.Errorf("load verdict schema: %w", err)
	}
	if err := schema.Validate(value); err != nil {
		return Verdict{}, fmt.Errorf("verdict schema validation failed: %w", err)
	}

	var raw rawVerdict
	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
		return Verdict{}, fmt.Errorf("unmarshal verdict: %w", err)
	}

	confidence := strings.ToUpper(strings.TrimSpace(raw.Confidence))
	switch confidence {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
	default:
		confidence = ConfidenceLow
	}

	if raw.MatchID == nil || strings.EqualFold(strings.TrimSpace(*raw.MatchID), "null") || strings.TrimSpace(*raw.MatchID) == "" {
		return Verdict{Confidence: confidence, Reasoning: raw.Reasoning}, nil
	}

	matchUUID := strings.TrimSpace(*raw.MatchID)
	for _, cand := range candidates {
		if cand.ApplicationUUID == matchUUID {
			id := cand.ApplicationID
			return Verdict{MatchID: &id, Confidence: confidence, Reasoning: raw.Reasoning}, nil
		}
	}
	return Verdict{}, fmt.Errorf("oracle returned unknown match id %q", matchUUID)
}

// extractJSONObject trims any prose around the outermost JSON object.
func extractJSONObject(response string) string {
	start := strings.IndexByte(response, '{')
	end := strings.LastIndexByte(response, '}')
	if start < 0 || end <= start {
		return ""
	}
	return response[start : end+1]
}
