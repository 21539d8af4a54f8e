// Package consolidate is the batch repair pass over a user's applications:
// it walks company groups oldest-first, asks the judge whether later rows
// duplicate earlier ones and merges them, keeping every dependent email.
package consolidate

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"candid.fyi/huntline/internal/db"
	"candid.fyi/huntline/internal/globaltime"
	"candid.fyi/huntline/internal/normalize"
	"candid.fyi/huntline/internal/oracle"
)

// Run terminal statuses.
const (
	RunCompleted = "completed"
	RunCancelled = "cancelled"
	RunFailed    = "failed"
)

// Store is the database surface the consolidator needs; *db.Pool satisfies
// it.
type Store interface {
	ListApplicationsByUser(ctx context.Context, userID string) ([]db.Application, error)
	ListStaleApplications(ctx context.Context, userID string, cutoff time.Time) ([]db.Application, error)
	ListDistinctUserIDs(ctx context.Context) ([]string, error)
	LatestSignalStatuses(ctx context.Context, userID string) ([]db.SignalStatusRow, error)
	MergeApplications(ctx context.Context, winnerID, loserID int64, params db.UpdateApplicationParams, now time.Time) (int64, error)
	UpdateApplication(ctx context.Context, applicationID int64, params db.UpdateApplicationParams, now time.Time) error
	InsertMatchEvent(ctx context.Context, event *db.MatchEvent) error
	InsertConsolidationRun(ctx context.Context, run *db.ConsolidationRun) error
	FinishConsolidationRun(ctx context.Context, runID int64, status string, groups, merges int, errorMessage *string, now time.Time) error
}

var _ Store = (*db.Pool)(nil)

// Config carries the scan heuristics.
type Config struct {
	GhostAfterDays int
}

func (c Config) withDefaults() Config {
	if c.GhostAfterDays <= 0 {
		c.GhostAfterDays = 30
	}
	return c
}

// Options controls one sweep. Progress, when set, receives one human-readable
// line per step; it must not block.
type Options struct {
	DryRun   bool
	Progress func(line string)
}

func (o Options) report(format string, args ...any) {
	if o.Progress != nil {
		o.Progress(fmt.Sprintf(format, args...))
	}
}

// MergePlan records one duplicate pair, applied or only proposed.
type MergePlan struct {
	WinnerID  int64  `json:"winner_id"`
	LoserID   int64  `json:"loser_id"`
	Company   string `json:"company"`
	Reasoning string `json:"reasoning"`
}

// Result summarizes one consolidation sweep.
type Result struct {
	RunUUID          string      `json:"run_uuid,omitempty"`
	DryRun           bool        `json:"dry_run"`
	GroupsScanned    int         `json:"groups_scanned"`
	MergesApplied    int         `json:"merges_applied"`
	EmailsReassigned int64       `json:"emails_reassigned"`
	GroupErrors      int         `json:"group_errors"`
	Merges           []MergePlan `json:"merges,omitempty"`
}

// Consolidator runs batch sweeps. Concurrent triggers for the same user are
// collapsed into one in-flight run via singleflight.
type Consolidator struct {
	store  Store
	judge  oracle.Judge
	cfg    Config
	logger zerolog.Logger
	flight singleflight.Group
}

func NewConsolidator(store Store, judge oracle.Judge, cfg Config, logger zerolog.Logger) *Consolidator {
	return &Consolidator{
		store:  store,
		judge:  judge,
		cfg:    cfg.withDefaults(),
		logger: logger,
	}
}

// Run consolidates one user's applications. A second trigger while a run is
// in flight joins that run instead of starting its own.
func (c *Consolidator) Run(ctx context.Context, userID string, opts Options) (*Result, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}

	key := userID
	if opts.DryRun {
		// Dry runs are read-only; they never need to queue behind a real
		// sweep for the same user.
		key = "dry:" + userID
	}

	// The closure captures the initiating caller's ctx and opts. A joined
	// caller shares the outcome but gets no progress lines, and a
	// disconnect by the initiating caller cancels the run for everyone
	// who joined it.
	value, err, shared := c.flight.Do(key, func() (any, error) {
		return c.run(ctx, userID, opts)
	})
	if shared {
		c.logger.Info().Str("user_id", userID).Msg("joined in-flight consolidation run")
	}
	if err != nil {
		return nil, err
	}
	return value.(*Result), nil
}

// RunAll sweeps every user that has live applications, one at a time.
func (c *Consolidator) RunAll(ctx context.Context, opts Options) ([]Result, error) {
	userIDs, err := c.store.ListDistinctUserIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	results := make([]Result, 0, len(userIDs))
	for _, userID := range userIDs {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		result, err := c.Run(ctx, userID, opts)
		if err != nil {
			c.logger.Error().Err(err).Str("user_id", userID).Msg("consolidation failed for user")
			continue
		}
		results = append(results, *result)
	}
	return results, nil
}

func (c *Consolidator) run(ctx context.Context, userID string, opts Options) (*Result, error) {
	result := &Result{DryRun: opts.DryRun}

	var run *db.ConsolidationRun
	if !opts.DryRun {
		run = &db.ConsolidationRun{RunUUID: uuid.NewString(), UserID: userID}
		if err := c.store.InsertConsolidationRun(ctx, run); err != nil {
			return nil, fmt.Errorf("open consolidation run: %w", err)
		}
		result.RunUUID = run.RunUUID
	}

	err := c.sweep(ctx, userID, opts, result)

	if run != nil {
		status := RunCompleted
		var errorMessage *string
		switch {
		case err == nil:
		case ctx.Err() != nil:
			status = RunCancelled
			msg := ctx.Err().Error()
			errorMessage = &msg
		default:
			status = RunFailed
			msg := err.Error()
			errorMessage = &msg
		}
		finishErr := c.store.FinishConsolidationRun(context.WithoutCancel(ctx), run.RunID, status, result.GroupsScanned, result.MergesApplied, errorMessage, globaltime.UTC())
		if finishErr != nil {
			c.logger.Error().Err(finishErr).Str("run_uuid", run.RunUUID).Msg("failed to close consolidation run")
		}
	}

	if err != nil {
		return nil, err
	}

	c.logger.Info().
		Str("user_id", userID).
		Bool("dry_run", opts.DryRun).
		Int("groups", result.GroupsScanned).
		Int("merges", result.MergesApplied).
		Int64("emails_reassigned", result.EmailsReassigned).
		Msg("consolidation sweep finished")
	return result, nil
}

func (c *Consolidator) sweep(ctx context.Context, userID string, opts Options, result *Result) error {
	apps, err := c.store.ListApplicationsByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("list applications: %w", err)
	}

	groups, keys := groupByCompany(apps)
	opts.report("consolidating %d applications across %d company groups", len(apps), len(keys))

	for _, key := range keys {
		// Cancellation is honored between groups, never inside one, so a
		// partially merged group is impossible.
		if err := ctx.Err(); err != nil {
			opts.report("cancelled after %d groups", result.GroupsScanned)
			return err
		}

		group := groups[key]
		result.GroupsScanned++
		if len(group) < 2 {
			continue
		}
		opts.report("scanning %q (%d applications)", key, len(group))

		if err := c.consolidateGroup(ctx, userID, group, opts, result); err != nil {
			// One bad group never aborts the sweep.
			result.GroupErrors++
			c.logger.Error().Err(err).
				Str("user_id", userID).
				Str("company_group", key).
				Msg("group consolidation failed, continuing")
			opts.report("group %q failed: %v", key, err)
		}
	}
	return nil
}

// consolidateGroup walks one company group oldest-first, maintaining the
// unique set of survivors. Each later application is judged against the
// survivors; a match merges it into the matched (older) row.
func (c *Consolidator) consolidateGroup(ctx context.Context, userID string, group []db.Application, opts Options, result *Result) error {
	survivors := []db.Application{group[0]}

	for _, app := range group[1:] {
		verdict, err := c.judge.Judge(ctx, judgeRequest(&app, survivors))
		if err != nil {
			// Fail safe: an undecidable pair stays split.
			c.logger.Warn().Err(err).
				Int64("application_id", app.ApplicationID).
				Msg("judge failed during consolidation, keeping application")
			survivors = append(survivors, app)
			continue
		}
		if !verdict.Matched() {
			survivors = append(survivors, app)
			continue
		}

		winner := survivorByID(survivors, *verdict.MatchID)
		if winner == nil {
			c.logger.Warn().
				Int64("match_id", *verdict.MatchID).
				Msg("judge matched outside the survivor set, keeping application")
			survivors = append(survivors, app)
			continue
		}

		plan := MergePlan{
			WinnerID:  winner.ApplicationID,
			LoserID:   app.ApplicationID,
			Company:   winner.Company,
			Reasoning: verdict.Reasoning,
		}
		result.Merges = append(result.Merges, plan)

		if opts.DryRun {
			result.MergesApplied++
			opts.report("would merge application %d into %d (%s)", plan.LoserID, plan.WinnerID, plan.Reasoning)
			continue
		}

		reassigned, err := c.store.MergeApplications(ctx, winner.ApplicationID, app.ApplicationID, loserParams(winner, &app), globaltime.UTC())
		if err != nil {
			return fmt.Errorf("merge %d into %d: %w", app.ApplicationID, winner.ApplicationID, err)
		}
		result.MergesApplied++
		result.EmailsReassigned += reassigned
		opts.report("merged application %d into %d, reassigned %d emails", plan.LoserID, plan.WinnerID, reassigned)

		c.recordMerge(ctx, userID, winner, &app, verdict)
	}
	return nil
}

func (c *Consolidator) recordMerge(ctx context.Context, userID string, winner, loser *db.Application, verdict oracle.Verdict) {
	reasoning := verdict.Reasoning
	confidence := verdict.Confidence
	event := &db.MatchEvent{
		UserID:        userID,
		ApplicationID: &winner.ApplicationID,
		Decision:      "merged",
		Layer:         "consolidation",
		Confidence:    &confidence,
		Reasoning:     &reasoning,
		SignalCompany: loser.Company,
		SignalRole:    loser.RoleTitle,
		SignalStatus:  loser.Status,
	}
	if err := c.store.InsertMatchEvent(ctx, event); err != nil {
		c.logger.Error().Err(err).
			Int64("application_id", winner.ApplicationID).
			Msg("failed to record merge event")
	}
}

// judgeRequest frames a later application as the incoming signal and the
// current survivors as candidates, most recently updated first.
func judgeRequest(app *db.Application, survivors []db.Application) oracle.Request {
	req := oracle.Request{
		Signal: oracle.SignalSummary{
			Company:       app.Company,
			Role:          app.RoleTitle,
			Status:        app.Status,
			ExternalRefID: derefString(app.ExternalRefID),
			ReceivedAt:    app.AppliedAt,
		},
		Candidates: make([]oracle.Candidate, 0, len(survivors)),
	}

	ordered := make([]db.Application, len(survivors))
	copy(ordered, survivors)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].UpdatedAt.After(ordered[j].UpdatedAt)
	})
	for _, cand := range ordered {
		req.Candidates = append(req.Candidates, oracle.Candidate{
			ApplicationID:   cand.ApplicationID,
			ApplicationUUID: cand.ApplicationUUID,
			Company:         cand.Company,
			Role:            cand.RoleTitle,
			Status:          cand.Status,
			ExternalRefID:   derefString(cand.ExternalRefID),
			AppliedAt:       cand.AppliedAt,
		})
	}
	return req
}

// loserParams lifts the newer application's lifecycle fields onto the
// surviving row and backfills identity fields the survivor is missing.
func loserParams(winner, loser *db.Application) db.UpdateApplicationParams {
	params := db.UpdateApplicationParams{
		NextSteps:       nonEmpty(loser.NextSteps),
		RejectionReason: nonEmpty(loser.RejectionReason),
		Feedback:        nonEmpty(loser.Feedback),
		SentimentScore:  loser.SentimentScore,
		ExternalRefID:   fillIfEmpty(winner.ExternalRefID, loser.ExternalRefID),
		SalaryRange:     fillIfEmpty(winner.SalaryRange, loser.SalaryRange),
		CompanyDomain:   fillIfEmpty(winner.CompanyDomain, loser.CompanyDomain),
		CompanyLinkedIn: fillIfEmpty(winner.CompanyLinkedIn, loser.CompanyLinkedIn),
		JobPostURL:      fillIfEmpty(winner.JobPostURL, loser.JobPostURL),
		Location:        fillIfEmpty(winner.Location, loser.Location),
		RecruiterName:   fillIfEmpty(winner.RecruiterName, loser.RecruiterName),
		RecruiterEmail:  fillIfEmpty(winner.RecruiterEmail, loser.RecruiterEmail),
		HiringManager:   fillIfEmpty(winner.HiringManager, loser.HiringManager),
		ThreadKey:       fillIfEmpty(winner.ThreadKey, loser.ThreadKey),
	}
	// The loser applied later, so its lifecycle status is the fresher one.
	if loser.Status != "" && loser.Status != winner.Status {
		status := loser.Status
		params.Status = &status
	}
	return params
}

func groupByCompany(apps []db.Application) (map[string][]db.Application, []string) {
	groups := make(map[string][]db.Application)
	for _, app := range apps {
		key := normalize.Company(app.Company)
		if key == "" {
			key = strings.ToLower(strings.TrimSpace(app.Company))
		}
		groups[key] = append(groups[key], app)
	}

	keys := make([]string, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return groups, keys
}

func survivorByID(survivors []db.Application, applicationID int64) *db.Application {
	for i := range survivors {
		if survivors[i].ApplicationID == applicationID {
			return &survivors[i]
		}
	}
	return nil
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nonEmpty(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	return s
}

func fillIfEmpty(existing, incoming *string) *string {
	if existing != nil && strings.TrimSpace(*existing) != "" {
		return nil
	}
	return nonEmpty(incoming)
}
