package oracle

import (
	"context"
	"testing"
	"time"
)

func day(offset int) time.Time {
	base := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	return base.AddDate(0, 0, offset)
}

func TestRuleJudgeProgressionMatchesMostRecent(t *testing.T) {
	t.Parallel()

	judge := NewRuleJudge(120)
	verdict, err := judge.Judge(context.Background(), Request{
		Signal: SignalSummary{
			Company:    "Acme Inc",
			Role:       "Senior Software Engineer",
			Status:     "interview",
			ReceivedAt: day(0),
		},
		Candidates: []Candidate{
			{ApplicationID: 2, Company: "Acme", Role: "SDE II", Status: "screen", AppliedAt: day(-20)},
			{ApplicationID: 1, Company: "Acme", Role: "Software Engineer", Status: "applied", AppliedAt: day(-200)},
		},
	})
	if err != nil {
		t.Fatalf("judge: %v", err)
	}
	if !verdict.Matched() || *verdict.MatchID != 2 {
		t.Fatalf("expected match on candidate 2, got %+v", verdict)
	}
	if verdict.Confidence != ConfidenceHigh {
		t.Fatalf("expected HIGH confidence, got %s", verdict.Confidence)
	}
}

func TestRuleJudgeAppliedWithinWindow(t *testing.T) {
	t.Parallel()

	judge := NewRuleJudge(120)

	verdict, err := judge.Judge(context.Background(), Request{
		Signal: SignalSummary{
			Company:    "Acme",
			Role:       "Software Engineer",
			Status:     "applied",
			ReceivedAt: day(0),
		},
		Candidates: []Candidate{
			{ApplicationID: 5, Company: "Acme", Role: "Software Engineer", Status: "applied", AppliedAt: day(-10)},
		},
	})
	if err != nil {
		t.Fatalf("judge: %v", err)
	}
	if !verdict.Matched() || *verdict.MatchID != 5 {
		t.Fatalf("expected duplicate within window to match, got %+v", verdict)
	}
}

func TestRuleJudgeAppliedPicksSameRoleOverStale(t *testing.T) {
	t.Parallel()

	judge := NewRuleJudge(120)

	verdict, err := judge.Judge(context.Background(), Request{
		Signal: SignalSummary{
			Company:    "Acme",
			Role:       "Software Engineer",
			Status:     "applied",
			ReceivedAt: day(0),
		},
		Candidates: []Candidate{
			{ApplicationID: 11, Company: "Acme", Role: "Software Engineer", Status: "applied", AppliedAt: day(-10)},
			{ApplicationID: 12, Company: "Acme", Role: "Data Scientist", Status: "applied", AppliedAt: day(-200)},
		},
	})
	if err != nil {
		t.Fatalf("judge: %v", err)
	}
	if !verdict.Matched() || *verdict.MatchID != 11 {
		t.Fatalf("expected the recent same-role candidate, got %+v", verdict)
	}
}

func TestRuleJudgeAppliedBeyondWindowIsReapplication(t *testing.T) {
	t.Parallel()

	judge := NewRuleJudge(120)

	verdict, err := judge.Judge(context.Background(), Request{
		Signal: SignalSummary{
			Company:    "Acme",
			Role:       "Software Engineer",
			Status:     "applied",
			ReceivedAt: day(0),
		},
		Candidates: []Candidate{
			{ApplicationID: 5, Company: "Acme", Role: "Software Engineer", Status: "rejected", AppliedAt: day(-200)},
		},
	})
	if err != nil {
		t.Fatalf("judge: %v", err)
	}
	if verdict.Matched() {
		t.Fatalf("expected re-application beyond window, got match %+v", verdict)
	}
}

func TestRuleJudgeWindowBoundary(t *testing.T) {
	t.Parallel()

	judge := NewRuleJudge(120)

	signal := SignalSummary{
		Company:    "Acme",
		Role:       "Software Engineer",
		Status:     "applied",
		ReceivedAt: day(0),
	}

	inside, err := judge.Judge(context.Background(), Request{
		Signal:     signal,
		Candidates: []Candidate{{ApplicationID: 1, Company: "Acme", Role: "Software Engineer", AppliedAt: day(-119)}},
	})
	if err != nil {
		t.Fatalf("judge: %v", err)
	}
	if !inside.Matched() {
		t.Fatalf("119-day gap must be a duplicate")
	}

	outside, err := judge.Judge(context.Background(), Request{
		Signal:     signal,
		Candidates: []Candidate{{ApplicationID: 1, Company: "Acme", Role: "Software Engineer", AppliedAt: day(-121)}},
	})
	if err != nil {
		t.Fatalf("judge: %v", err)
	}
	if outside.Matched() {
		t.Fatalf("121-day gap must be a re-application")
	}
}

func TestRuleJudgeRoleMismatch(t *testing.T) {
	t.Parallel()

	judge := NewRuleJudge(120)

	verdict, err := judge.Judge(context.Background(), Request{
		Signal: SignalSummary{
			Company:    "Acme",
			Role:       "Product Manager",
			Status:     "interview",
			ReceivedAt: day(0),
		},
		Candidates: []Candidate{
			{ApplicationID: 1, Company: "Acme", Role: "Software Engineer", Status: "applied", AppliedAt: day(-5)},
		},
	})
	if err != nil {
		t.Fatalf("judge: %v", err)
	}
	if verdict.Matched() {
		t.Fatalf("different roles at the same company must not match, got %+v", verdict)
	}
}

func TestRuleJudgeAnonymizedCompany(t *testing.T) {
	t.Parallel()

	judge := NewRuleJudge(120)

	// Divergent posting references always mean different jobs.
	divergent, err := judge.Judge(context.Background(), Request{
		Signal: SignalSummary{
			Company:       "Confidential",
			Role:          "Software Engineer",
			Status:        "interview",
			ExternalRefID: "greenhouse.io:111",
			ReceivedAt:    day(0),
		},
		Candidates: []Candidate{
			{ApplicationID: 1, Company: "Confidential Employer", Role: "Software Engineer", ExternalRefID: "greenhouse.io:222", AppliedAt: day(-5)},
		},
	})
	if err != nil {
		t.Fatalf("judge: %v", err)
	}
	if divergent.Matched() {
		t.Fatalf("divergent refs on anonymized poster must not match")
	}

	// Identical references match even though the company is a placeholder.
	sameRef, err := judge.Judge(context.Background(), Request{
		Signal: SignalSummary{
			Company:       "Confidential",
			Role:          "Software Engineer",
			Status:        "interview",
			ExternalRefID: "greenhouse.io:111",
			ReceivedAt:    day(0),
		},
		Candidates: []Candidate{
			{ApplicationID: 1, Company: "Stealth Startup", Role: "Backend Developer", ExternalRefID: "greenhouse.io:111", AppliedAt: day(-5)},
		},
	})
	if err != nil {
		t.Fatalf("judge: %v", err)
	}
	if !sameRef.Matched() || *sameRef.MatchID != 1 {
		t.Fatalf("identical refs on anonymized poster must match, got %+v", sameRef)
	}
}

func TestRuleJudgeNoCandidates(t *testing.T) {
	t.Parallel()

	judge := NewRuleJudge(120)
	verdict, err := judge.Judge(context.Background(), Request{
		Signal: SignalSummary{Company: "Acme", Role: "Software Engineer", Status: "applied", ReceivedAt: day(0)},
	})
	if err != nil {
		t.Fatalf("judge: %v", err)
	}
	if verdict.Matched() {
		t.Fatalf("empty candidate set must not match")
	}
}
