// Package oracle decides whether an incoming signal matches one of a small
// set of candidate applications. The decision protocol is fixed; the
// backend carrying it out (an LLM provider or the deterministic rules
// judge) is injected at construction.
package oracle

import (
	"context"
	"time"
)

// Confidence tiers attached to a verdict.
const (
	ConfidenceHigh   = "HIGH"
	ConfidenceMedium = "MEDIUM"
	ConfidenceLow    = "LOW"
)

// SignalSummary is the judge's view of an incoming signal.
type SignalSummary struct {
	Company       string
	Role          string
	Status        string
	ExternalRefID string
	ReceivedAt    time.Time
}

// Candidate is one existing application offered for comparison.
type Candidate struct {
	ApplicationID   int64
	ApplicationUUID string
	Company         string
	Role            string
	Status          string
	ExternalRefID   string
	AppliedAt       time.Time
}

// Request packages a signal with its blocked candidate set. Candidates are
// ordered most-recently-updated first; the judge must preserve that
// preference when several candidates qualify.
type Request struct {
	Signal     SignalSummary
	Candidates []Candidate
}

// Verdict is the judge's decision: the matched application or nothing.
// A nil MatchID always means "create a new application".
type Verdict struct {
	MatchID    *int64
	Confidence string
	Reasoning  string
}

// Matched reports whether the verdict selected a candidate.
func (v Verdict) Matched() bool {
	return v.MatchID != nil
}

// Judge resolves an ambiguous candidate set into one verdict. Every
// implementation fails safe: any internal error yields a no-match verdict,
// because a wrongly merged application destroys information while a
// duplicate is repaired by the consolidation sweep.
type Judge interface {
	Judge(ctx context.Context, req Request) (Verdict, error)
}

func noMatch(reasoning string) Verdict {
	return Verdict{Confidence: ConfidenceLow, Reasoning: reasoning}
}
