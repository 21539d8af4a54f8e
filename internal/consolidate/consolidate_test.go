package consolidate

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"candid.fyi/huntline/internal/db"
	"candid.fyi/huntline/internal/oracle"
)

type mergeCall struct {
	winnerID int64
	loserID  int64
	params   db.UpdateApplicationParams
}

type stubStore struct {
	apps         []db.Application
	stale        []db.Application
	signalRows   []db.SignalStatusRow
	emailCounts  map[int64]int64
	merges       []mergeCall
	updates      map[int64]db.UpdateApplicationParams
	events       []*db.MatchEvent
	runs         []*db.ConsolidationRun
	finishStatus string
}

func (s *stubStore) ListApplicationsByUser(_ context.Context, _ string) ([]db.Application, error) {
	return s.apps, nil
}

func (s *stubStore) ListStaleApplications(_ context.Context, _ string, _ time.Time) ([]db.Application, error) {
	return s.stale, nil
}

func (s *stubStore) ListDistinctUserIDs(_ context.Context) ([]string, error) {
	return []string{"u1"}, nil
}

func (s *stubStore) LatestSignalStatuses(_ context.Context, _ string) ([]db.SignalStatusRow, error) {
	return s.signalRows, nil
}

func (s *stubStore) MergeApplications(_ context.Context, winnerID, loserID int64, params db.UpdateApplicationParams, _ time.Time) (int64, error) {
	s.merges = append(s.merges, mergeCall{winnerID: winnerID, loserID: loserID, params: params})
	reassigned := s.emailCounts[loserID]
	s.emailCounts[winnerID] += reassigned
	s.emailCounts[loserID] = 0
	return reassigned, nil
}

func (s *stubStore) UpdateApplication(_ context.Context, applicationID int64, params db.UpdateApplicationParams, _ time.Time) error {
	if s.updates == nil {
		s.updates = map[int64]db.UpdateApplicationParams{}
	}
	s.updates[applicationID] = params
	return nil
}

func (s *stubStore) InsertMatchEvent(_ context.Context, event *db.MatchEvent) error {
	s.events = append(s.events, event)
	return nil
}

func (s *stubStore) InsertConsolidationRun(_ context.Context, run *db.ConsolidationRun) error {
	run.RunID = int64(len(s.runs) + 1)
	s.runs = append(s.runs, run)
	return nil
}

func (s *stubStore) FinishConsolidationRun(_ context.Context, _ int64, status string, _, _ int, _ *string, _ time.Time) error {
	s.finishStatus = status
	return nil
}

func appliedAt(offset int) time.Time {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return base.AddDate(0, 0, offset)
}

// Three Acme applications: the second is a duplicate of the first inside
// the re-apply window, the third is a genuine re-application months later.
func acmeFixture() []db.Application {
	return []db.Application{
		{ApplicationID: 1, ApplicationUUID: "00000000-0000-0000-0000-000000000001", UserID: "u1", Company: "Acme Inc", RoleTitle: "Software Engineer", Status: db.StatusApplied, AppliedAt: appliedAt(0), UpdatedAt: appliedAt(0)},
		{ApplicationID: 2, ApplicationUUID: "00000000-0000-0000-0000-000000000002", UserID: "u1", Company: "Acme", RoleTitle: "Senior Software Engineer", Status: db.StatusInterview, AppliedAt: appliedAt(10), UpdatedAt: appliedAt(10)},
		{ApplicationID: 3, ApplicationUUID: "00000000-0000-0000-0000-000000000003", UserID: "u1", Company: "Acme", RoleTitle: "Software Engineer", Status: db.StatusApplied, AppliedAt: appliedAt(200), UpdatedAt: appliedAt(200)},
	}
}

func newTestConsolidator(store *stubStore) *Consolidator {
	return NewConsolidator(store, oracle.NewRuleJudge(120), Config{GhostAfterDays: 30}, zerolog.Nop())
}

func TestRunMergesDuplicatesAndKeepsReapplications(t *testing.T) {
	t.Parallel()

	store := &stubStore{
		apps:        acmeFixture(),
		emailCounts: map[int64]int64{1: 2, 2: 3, 3: 1},
	}

	result, err := newTestConsolidator(store).Run(context.Background(), "u1", Options{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if result.MergesApplied != 1 {
		t.Fatalf("expected exactly one merge, got %d", result.MergesApplied)
	}
	if len(store.merges) != 1 || store.merges[0].winnerID != 1 || store.merges[0].loserID != 2 {
		t.Fatalf("expected 2 merged into 1, got %+v", store.merges)
	}

	// The newer duplicate was further along; the survivor takes its status.
	params := store.merges[0].params
	if params.Status == nil || *params.Status != db.StatusInterview {
		t.Fatalf("winner must take the loser's newer status, got %+v", params.Status)
	}

	if result.EmailsReassigned != 3 {
		t.Fatalf("expected 3 reassigned emails, got %d", result.EmailsReassigned)
	}
	total := store.emailCounts[1] + store.emailCounts[2] + store.emailCounts[3]
	if total != 6 {
		t.Fatalf("emails must be conserved across merges, got %d", total)
	}

	if len(store.runs) != 1 || store.finishStatus != RunCompleted {
		t.Fatalf("expected one completed run, got runs=%d status=%q", len(store.runs), store.finishStatus)
	}
	if len(store.events) != 1 || store.events[0].Decision != "merged" {
		t.Fatalf("expected one merged event, got %+v", store.events)
	}
}

func TestRunDryRunWritesNothing(t *testing.T) {
	t.Parallel()

	store := &stubStore{
		apps:        acmeFixture(),
		emailCounts: map[int64]int64{1: 2, 2: 3, 3: 1},
	}

	var lines []string
	result, err := newTestConsolidator(store).Run(context.Background(), "u1", Options{
		DryRun:   true,
		Progress: func(line string) { lines = append(lines, line) },
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if result.MergesApplied != 1 {
		t.Fatalf("dry run must still report the merge, got %d", result.MergesApplied)
	}
	if len(store.merges) != 0 {
		t.Fatalf("dry run must not merge, got %+v", store.merges)
	}
	if len(store.runs) != 0 {
		t.Fatalf("dry run must not open a run ledger row, got %d", len(store.runs))
	}
	if result.RunUUID != "" {
		t.Fatalf("dry run must not mint a run uuid, got %q", result.RunUUID)
	}
	if len(lines) == 0 {
		t.Fatalf("expected progress output")
	}
	if len(result.Merges) != 1 || result.Merges[0].WinnerID != 1 || result.Merges[0].LoserID != 2 {
		t.Fatalf("expected the proposed merge in the report, got %+v", result.Merges)
	}
}

func TestRunCancelledBetweenGroups(t *testing.T) {
	t.Parallel()

	store := &stubStore{
		apps:        acmeFixture(),
		emailCounts: map[int64]int64{},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestConsolidator(store).Run(ctx, "u1", Options{})
	if err == nil {
		t.Fatalf("expected cancellation error")
	}
	if store.finishStatus != RunCancelled {
		t.Fatalf("run ledger must record cancellation, got %q", store.finishStatus)
	}
	if len(store.merges) != 0 {
		t.Fatalf("cancelled run must not merge, got %+v", store.merges)
	}
}

func TestScanGhosts(t *testing.T) {
	t.Parallel()

	stale := []db.Application{
		{ApplicationID: 7, UserID: "u1", Company: "Acme", RoleTitle: "Software Engineer", Status: db.StatusApplied, UpdatedAt: appliedAt(-60)},
	}

	reportOnly := &stubStore{stale: stale}
	findings, err := newTestConsolidator(reportOnly).ScanGhosts(context.Background(), "u1", true, nil)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(findings) != 1 || findings[0].Marked {
		t.Fatalf("dry scan must report without marking, got %+v", findings)
	}
	if len(reportOnly.updates) != 0 {
		t.Fatalf("dry scan must not update, got %+v", reportOnly.updates)
	}

	applying := &stubStore{stale: stale}
	findings, err = newTestConsolidator(applying).ScanGhosts(context.Background(), "u1", false, nil)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(findings) != 1 || !findings[0].Marked {
		t.Fatalf("apply scan must mark, got %+v", findings)
	}
	params, ok := applying.updates[7]
	if !ok || params.Status == nil || *params.Status != db.StatusGhosted {
		t.Fatalf("expected ghosted status update, got %+v", applying.updates)
	}
	if len(applying.events) != 1 || applying.events[0].Decision != "ghosted" {
		t.Fatalf("expected one ghosted event, got %+v", applying.events)
	}
}

func TestScanDrift(t *testing.T) {
	t.Parallel()

	store := &stubStore{
		apps: []db.Application{
			{ApplicationID: 1, Company: "Acme", RoleTitle: "Software Engineer", Status: db.StatusApplied},
			{ApplicationID: 2, Company: "Globex", RoleTitle: "Software Engineer", Status: db.StatusOffer},
		},
		signalRows: []db.SignalStatusRow{
			{ApplicationID: 1, SignalStatus: db.StatusInterview},
			{ApplicationID: 2, SignalStatus: db.StatusRejected},
		},
	}

	findings, err := newTestConsolidator(store).ScanDrift(context.Background(), "u1", nil)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	// Application 1 is behind its signals; application 2 is terminal either
	// way and must not be flagged.
	if len(findings) != 1 || findings[0].ApplicationID != 1 {
		t.Fatalf("expected one drift finding for application 1, got %+v", findings)
	}
	if findings[0].SignalStatus != db.StatusInterview || findings[0].StoredStatus != db.StatusApplied {
		t.Fatalf("unexpected drift detail: %+v", findings[0])
	}
}
