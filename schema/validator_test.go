package signalschema

import (
	"encoding/json"
	"errors"
	"testing"
)

func validPayload() map[string]any {
	return map[string]any{
		"payload_version": "v1",
		"is_job_related":  true,
		"company":         "Acme Inc",
		"role":            "Software Engineer",
		"status":          "applied",
		"received_date":   "2026-06-01T12:00:00Z",
	}
}

func marshal(t *testing.T, payload map[string]any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return raw
}

func TestValidateSignalPayload(t *testing.T) {
	t.Parallel()

	payload := validPayload()
	payload["sentiment_score"] = -0.4
	payload["thread_id"] = "thread-1"
	payload["people"] = map[string]any{"recruiter_email": "jane@acme.com"}
	payload["urls"] = map[string]any{"job_post": "https://boards.greenhouse.io/acme/jobs/123"}

	sig, err := ValidateSignalPayload(marshal(t, payload))
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if sig.Company != "Acme Inc" || sig.Status != "applied" {
		t.Fatalf("unexpected signal: %+v", sig)
	}
	if sig.SentimentScore == nil || *sig.SentimentScore != -0.4 {
		t.Fatalf("sentiment score not decoded: %+v", sig.SentimentScore)
	}
	if sig.People == nil || sig.People.RecruiterEmail == nil || *sig.People.RecruiterEmail != "jane@acme.com" {
		t.Fatalf("people block not decoded: %+v", sig.People)
	}

	received, err := sig.ReceivedAt()
	if err != nil {
		t.Fatalf("received at: %v", err)
	}
	applied, err := sig.AppliedAt()
	if err != nil {
		t.Fatalf("applied at: %v", err)
	}
	if !applied.Equal(received) {
		t.Fatalf("missing applied_date must fall back to received_date")
	}
}

func TestValidateSignalPayloadNotJobRelated(t *testing.T) {
	t.Parallel()

	payload := validPayload()
	payload["is_job_related"] = false

	_, err := ValidateSignalPayload(marshal(t, payload))
	if !errors.Is(err, ErrNotJobRelated) {
		t.Fatalf("expected ErrNotJobRelated, got %v", err)
	}
}

func TestValidateSignalPayloadRejectsBadInput(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(map[string]any)
	}{
		{"missing company", func(p map[string]any) { delete(p, "company") }},
		{"empty company", func(p map[string]any) { p["company"] = "" }},
		{"unknown status", func(p map[string]any) { p["status"] = "APPLIED" }},
		{"wrong version", func(p map[string]any) { p["payload_version"] = "v2" }},
		{"bad received date", func(p map[string]any) { p["received_date"] = "yesterday" }},
		{"sentiment out of range", func(p map[string]any) { p["sentiment_score"] = 2.5 }},
		{"unknown field", func(p map[string]any) { p["surprise"] = true }},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			payload := validPayload()
			tc.mutate(payload)
			if _, err := ValidateSignalPayload(marshal(t, payload)); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestValidateSignalPayloadRejectsMalformedJSON(t *testing.T) {
	t.Parallel()

	if _, err := ValidateSignalPayload(json.RawMessage(`{"payload_version":`)); err == nil {
		t.Fatalf("expected decode error")
	}
	if _, err := ValidateSignalPayload(json.RawMessage(``)); err == nil {
		t.Fatalf("expected empty payload error")
	}
	if _, err := ValidateSignalPayload(json.RawMessage(`{} {}`)); err == nil {
		t.Fatalf("expected trailing content error")
	}
}
