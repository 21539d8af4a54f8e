package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"candid.fyi/huntline/internal/consolidate"
	"candid.fyi/huntline/internal/db"
	"candid.fyi/huntline/internal/oracle"
)

type stubConsolidateStore struct {
	apps []db.Application
}

func (s *stubConsolidateStore) ListApplicationsByUser(_ context.Context, _ string) ([]db.Application, error) {
	return s.apps, nil
}

func (s *stubConsolidateStore) ListStaleApplications(_ context.Context, _ string, _ time.Time) ([]db.Application, error) {
	return nil, nil
}

func (s *stubConsolidateStore) ListDistinctUserIDs(_ context.Context) ([]string, error) {
	return nil, nil
}

func (s *stubConsolidateStore) LatestSignalStatuses(_ context.Context, _ string) ([]db.SignalStatusRow, error) {
	return nil, nil
}

func (s *stubConsolidateStore) MergeApplications(_ context.Context, _, _ int64, _ db.UpdateApplicationParams, _ time.Time) (int64, error) {
	return 0, nil
}

func (s *stubConsolidateStore) UpdateApplication(_ context.Context, _ int64, _ db.UpdateApplicationParams, _ time.Time) error {
	return nil
}

func (s *stubConsolidateStore) InsertMatchEvent(_ context.Context, _ *db.MatchEvent) error {
	return nil
}

func (s *stubConsolidateStore) InsertConsolidationRun(_ context.Context, _ *db.ConsolidationRun) error {
	return nil
}

func (s *stubConsolidateStore) FinishConsolidationRun(_ context.Context, _ int64, _ string, _, _ int, _ *string, _ time.Time) error {
	return nil
}

func newConsolidationServer(store consolidate.Store) *Server {
	consolidator := consolidate.NewConsolidator(store, oracle.NewRuleJudge(120), consolidate.Config{}, zerolog.Nop())
	return &Server{consolidator: consolidator, logger: zerolog.Nop()}
}

func consolidationRequest(userID, query string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/consolidation/run"+query, nil)
	if userID != "" {
		req.Header.Set(userHeader, userID)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestHandleConsolidationRunStreamsProgressAndSummary(t *testing.T) {
	t.Parallel()

	appliedAt := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := &stubConsolidateStore{
		apps: []db.Application{
			{ApplicationID: 1, UserID: "u1", Company: "Acme Inc", RoleTitle: "Software Engineer", Status: db.StatusApplied, AppliedAt: appliedAt, UpdatedAt: appliedAt},
			{ApplicationID: 2, UserID: "u1", Company: "Acme", RoleTitle: "Software Engineer", Status: db.StatusApplied, AppliedAt: appliedAt.AddDate(0, 0, 10), UpdatedAt: appliedAt.AddDate(0, 0, 10)},
		},
	}

	c, rec := consolidationRequest("u1", "?dry_run=true")
	if err := newConsolidationServer(store).handleConsolidationRun(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	if len(lines) < 2 {
		t.Fatalf("expected progress lines before the summary, got %q", rec.Body.String())
	}

	var summary consolidate.Result
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &summary); err != nil {
		t.Fatalf("last line must be the JSON summary, got %q: %v", lines[len(lines)-1], err)
	}
	if !summary.DryRun || summary.MergesApplied != 1 {
		t.Fatalf("expected a dry-run summary with one proposed merge, got %+v", summary)
	}
}

func TestHandleConsolidationRunRequiresUser(t *testing.T) {
	t.Parallel()

	c, rec := consolidationRequest("", "")
	if err := newConsolidationServer(&stubConsolidateStore{}).handleConsolidationRun(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without a user header, got %d", rec.Code)
	}
}
