// Package signalschema validates inbound signal payloads against the v1
// contract produced by the upstream extraction service.
package signalschema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed signal.schema.json
var signalSchemaJSON string

// ErrNotJobRelated marks payloads the extraction service classified as
// unrelated to the job hunt; they never reach the resolver.
var ErrNotJobRelated = fmt.Errorf("signal is not job related")

// Signal is a parsed, not-yet-persisted candidate job-application update.
type Signal struct {
	PayloadVersion  string       `json:"payload_version"`
	IsJobRelated    bool         `json:"is_job_related"`
	Company         string       `json:"company"`
	Role            string       `json:"role"`
	Status          string       `json:"status"`
	ExternalRefID   *string      `json:"external_ref_id,omitempty"`
	ThreadID        *string      `json:"thread_id,omitempty"`
	MessageID       *string      `json:"message_id,omitempty"`
	Subject         *string      `json:"subject,omitempty"`
	FromAddress     *string      `json:"from_address,omitempty"`
	Location        *string      `json:"location,omitempty"`
	SalaryRange     *string      `json:"salary_range,omitempty"`
	NextSteps       *string      `json:"next_steps,omitempty"`
	RejectionReason *string      `json:"rejection_reason,omitempty"`
	Feedback        *string      `json:"feedback,omitempty"`
	SentimentScore  *float64     `json:"sentiment_score,omitempty"`
	ReceivedDate    string       `json:"received_date"`
	AppliedDate     *string      `json:"applied_date,omitempty"`
	People          *People      `json:"people,omitempty"`
	CompanyInfo     *CompanyInfo `json:"company_info,omitempty"`
	URLs            *URLs        `json:"urls,omitempty"`
}

type People struct {
	RecruiterName  *string `json:"recruiter_name,omitempty"`
	RecruiterEmail *string `json:"recruiter_email,omitempty"`
	HiringManager  *string `json:"hiring_manager,omitempty"`
}

type CompanyInfo struct {
	Domain   *string `json:"domain,omitempty"`
	LinkedIn *string `json:"linkedin,omitempty"`
}

type URLs struct {
	JobPost *string `json:"job_post,omitempty"`
}

// ReceivedAt parses the mandatory received_date timestamp.
func (s *Signal) ReceivedAt() (time.Time, error) {
	ts, err := time.Parse(time.RFC3339, strings.TrimSpace(s.ReceivedDate))
	if err != nil {
		return time.Time{}, fmt.Errorf("received_date must be RFC3339: %w", err)
	}
	return ts.UTC(), nil
}

// AppliedAt parses applied_date when present, falling back to received_date.
func (s *Signal) AppliedAt() (time.Time, error) {
	if s.AppliedDate != nil && strings.TrimSpace(*s.AppliedDate) != "" {
		ts, err := time.Parse(time.RFC3339, strings.TrimSpace(*s.AppliedDate))
		if err != nil {
			return time.Time{}, fmt.Errorf("applied_date must be RFC3339: %w", err)
		}
		return ts.UTC(), nil
	}
	return s.ReceivedAt()
}

var (
	compileOnce       sync.Once
	compiledSchema    *jsonschema.Schema
	compiledSchemaErr error
)

// ValidateSignalPayload checks a raw payload against the embedded JSON
// Schema plus semantic rules, returning the decoded signal.
func ValidateSignalPayload(payload json.RawMessage) (*Signal, error) {
	value, err := decodeStrictJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("decode payload JSON: %w", err)
	}

	schema, err := loadSchema()
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}

	if err := schema.Validate(value); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	normalized, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("normalize payload JSON: %w", err)
	}

	var signal Signal
	if err := json.Unmarshal(normalized, &signal); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}

	if err := validateSemantics(&signal); err != nil {
		return nil, err
	}

	return &signal, nil
}

func loadSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		compiler.AssertFormat = true

		if err := compiler.AddResource("signal.schema.json", strings.NewReader(signalSchemaJSON)); err != nil {
			compiledSchemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}

		schema, err := compiler.Compile("signal.schema.json")
		if err != nil {
			compiledSchemaErr = fmt.Errorf("compile schema: %w", err)
			return
		}

		compiledSchema = schema
	})

	if compiledSchemaErr != nil {
		return nil, compiledSchemaErr
	}
	if compiledSchema == nil {
		return nil, fmt.Errorf("schema not initialized")
	}
	return compiledSchema, nil
}

func decodeStrictJSON(raw []byte) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("payload is empty")
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("payload contains trailing content")
	}

	return value, nil
}

func validateSemantics(signal *Signal) error {
	if signal == nil {
		return fmt.Errorf("payload is nil")
	}

	if !signal.IsJobRelated {
		return ErrNotJobRelated
	}
	if strings.TrimSpace(signal.Company) == "" {
		return fmt.Errorf("company must not be empty")
	}
	if strings.TrimSpace(signal.Role) == "" {
		return fmt.Errorf("role must not be empty")
	}
	if _, err := signal.ReceivedAt(); err != nil {
		return err
	}
	if signal.AppliedDate != nil {
		if _, err := signal.AppliedAt(); err != nil {
			return err
		}
	}
	return nil
}
