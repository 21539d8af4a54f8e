package oracle

import (
	"context"
	"fmt"
	"strings"

	"candid.fyi/huntline/internal/normalize"
)

// anonymizedMarkers flag job-board placeholder companies that hide the real
// employer. Matching against these requires a hard reference id or an
// identical role.
var anonymizedMarkers = []string{
	"confidential",
	"undisclosed",
	"stealth",
	"via ",
	"recruiting agency",
	"staffing",
}

// RuleJudge is the deterministic judge: it applies the same decision
// protocol as the LLM prompt using table-driven normalization. It is the
// default backend and the stand-in used by tests.
type RuleJudge struct {
	reapplyWindowDays int
}

func NewRuleJudge(reapplyWindowDays int) *RuleJudge {
	if reapplyWindowDays <= 0 {
		reapplyWindowDays = 120
	}
	return &RuleJudge{reapplyWindowDays: reapplyWindowDays}
}

func (j *RuleJudge) Judge(_ context.Context, req Request) (Verdict, error) {
	if len(req.Candidates) == 0 {
		return noMatch("no candidates to compare"), nil
	}

	signalCompany := normalize.Company(req.Signal.Company)
	signalRole := normalize.Title(req.Signal.Role)
	signalRef := strings.TrimSpace(req.Signal.ExternalRefID)
	progression := isProgressionStatus(req.Signal.Status)

	// Candidates arrive most-recently-updated first, so the first pass
	// through the protocol also implements "update the most recent
	// compatible candidate".
	for _, cand := range req.Candidates {
		candCompany := normalize.Company(cand.Company)
		candRole := normalize.Title(cand.Role)
		candRef := strings.TrimSpace(cand.ExternalRefID)
		sameRole := signalRole != "" && signalRole == candRole

		if isAnonymizedCompany(cand.Company) || isAnonymizedCompany(req.Signal.Company) {
			if signalRef != "" && candRef != "" && signalRef != candRef {
				continue
			}
			sameRef := signalRef != "" && signalRef == candRef
			if !sameRef && !sameRole {
				continue
			}
		} else {
			if !companiesMatch(signalCompany, candCompany) {
				continue
			}
			if !sameRole {
				continue
			}
		}

		if progression {
			id := cand.ApplicationID
			return Verdict{
				MatchID:    &id,
				Confidence: ConfidenceHigh,
				Reasoning:  fmt.Sprintf("%s signal updates existing %s application", req.Signal.Status, cand.Company),
			}, nil
		}

		gapDays := req.Signal.ReceivedAt.Sub(cand.AppliedAt).Hours() / 24
		if gapDays > float64(j.reapplyWindowDays) {
			// Same company and role, but long enough ago to be a genuine
			// re-application.
			continue
		}

		id := cand.ApplicationID
		confidence := ConfidenceMedium
		if signalCompany == candCompany {
			confidence = ConfidenceHigh
		}
		return Verdict{
			MatchID:    &id,
			Confidence: confidence,
			Reasoning:  fmt.Sprintf("duplicate application within %d days", j.reapplyWindowDays),
		}, nil
	}

	return noMatch("no candidate passed the decision protocol"), nil
}

func isProgressionStatus(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "screen", "interview", "offer", "rejected":
		return true
	}
	return false
}

func companiesMatch(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return a == b || strings.Contains(a, b) || strings.Contains(b, a)
}

func isAnonymizedCompany(company string) bool {
	lower := strings.ToLower(company)
	for _, marker := range anonymizedMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
