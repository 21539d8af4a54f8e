package oracle

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type stubProvider struct {
	responses []string
	errs      []error
	calls     int
}

func (p *stubProvider) Complete(_ context.Context, _ string) (string, error) {
	i := p.calls
	p.calls++
	if i < len(p.errs) && p.errs[i] != nil {
		return "", p.errs[i]
	}
	if i < len(p.responses) {
		return p.responses[i], nil
	}
	return "", fmt.Errorf("no scripted response for call %d", i)
}

func (p *stubProvider) Name() string { return "stub" }

func adapterRequest() Request {
	return Request{
		Signal: SignalSummary{
			Company:    "Acme",
			Role:       "Software Engineer",
			Status:     "interview",
			ReceivedAt: day(0),
		},
		Candidates: []Candidate{
			{ApplicationID: 7, ApplicationUUID: "11111111-1111-1111-1111-111111111111", Company: "Acme", Role: "Software Engineer", Status: "applied", AppliedAt: day(-10)},
		},
	}
}

func testAdapter(provider Provider) *Adapter {
	return NewAdapter(provider, AdapterConfig{
		ReapplyWindowDays: 120,
		Timeout:           time.Second,
		MaxRetries:        2,
		RetryBackoff:      time.Millisecond,
	}, zerolog.Nop())
}

func TestAdapterParsesMatchVerdict(t *testing.T) {
	t.Parallel()

	provider := &stubProvider{responses: []string{
		`Here is my answer: {"match_id": "11111111-1111-1111-1111-111111111111", "confidence": "HIGH", "reasoning": "same role at same company"}`,
	}}
	verdict, err := testAdapter(provider).Judge(context.Background(), adapterRequest())
	if err != nil {
		t.Fatalf("judge: %v", err)
	}
	if !verdict.Matched() || *verdict.MatchID != 7 {
		t.Fatalf("expected match on application 7, got %+v", verdict)
	}
	if verdict.Confidence != ConfidenceHigh {
		t.Fatalf("expected HIGH confidence, got %s", verdict.Confidence)
	}
}

func TestAdapterNullMatchID(t *testing.T) {
	t.Parallel()

	provider := &stubProvider{responses: []string{
		`{"match_id": null, "confidence": "MEDIUM", "reasoning": "different roles"}`,
	}}
	verdict, err := testAdapter(provider).Judge(context.Background(), adapterRequest())
	if err != nil {
		t.Fatalf("judge: %v", err)
	}
	if verdict.Matched() {
		t.Fatalf("null match_id must mean no match, got %+v", verdict)
	}
}

func TestAdapterMalformedReplyFailsSafeWithoutRetry(t *testing.T) {
	t.Parallel()

	provider := &stubProvider{responses: []string{"I cannot decide, sorry."}}
	verdict, err := testAdapter(provider).Judge(context.Background(), adapterRequest())
	if err != nil {
		t.Fatalf("judge: %v", err)
	}
	if verdict.Matched() {
		t.Fatalf("malformed reply must fail safe to no match")
	}
	if provider.calls != 1 {
		t.Fatalf("malformed reply must not be retried, got %d calls", provider.calls)
	}
}

func TestAdapterUnknownMatchIDFailsSafe(t *testing.T) {
	t.Parallel()

	provider := &stubProvider{responses: []string{
		`{"match_id": "99999999-9999-9999-9999-999999999999", "confidence": "HIGH", "reasoning": "invented"}`,
	}}
	verdict, err := testAdapter(provider).Judge(context.Background(), adapterRequest())
	if err != nil {
		t.Fatalf("judge: %v", err)
	}
	if verdict.Matched() {
		t.Fatalf("unknown candidate id must fail safe to no match, got %+v", verdict)
	}
}

func TestAdapterRetriesThenFailsSafe(t *testing.T) {
	t.Parallel()

	boom := fmt.Errorf("provider unavailable")
	provider := &stubProvider{errs: []error{boom, boom, boom}}

	verdict, err := testAdapter(provider).Judge(context.Background(), adapterRequest())
	if err != nil {
		t.Fatalf("judge: %v", err)
	}
	if verdict.Matched() {
		t.Fatalf("exhausted retries must fail safe to no match")
	}
	if provider.calls != 3 {
		t.Fatalf("expected 3 attempts (1 + 2 retries), got %d", provider.calls)
	}
}

func TestAdapterRecoversOnRetry(t *testing.T) {
	t.Parallel()

	provider := &stubProvider{
		errs: []error{fmt.Errorf("transient")},
		responses: []string{
			"",
			`{"match_id": "11111111-1111-1111-1111-111111111111", "confidence": "MEDIUM", "reasoning": "recovered"}`,
		},
	}
	verdict, err := testAdapter(provider).Judge(context.Background(), adapterRequest())
	if err != nil {
		t.Fatalf("judge: %v", err)
	}
	if !verdict.Matched() || *verdict.MatchID != 7 {
		t.Fatalf("expected recovery on second attempt, got %+v", verdict)
	}
	if provider.calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", provider.calls)
	}
}

func TestAdapterEmptyCandidates(t *testing.T) {
	t.Parallel()

	provider := &stubProvider{}
	verdict, err := testAdapter(provider).Judge(context.Background(), Request{
		Signal: SignalSummary{Company: "Acme", Role: "Software Engineer", Status: "applied", ReceivedAt: day(0)},
	})
	if err != nil {
		t.Fatalf("judge: %v", err)
	}
	if verdict.Matched() {
		t.Fatalf("empty candidate set must not match")
	}
	if provider.calls != 0 {
		t.Fatalf("provider must not be called without candidates, got %d calls", provider.calls)
	}
}
