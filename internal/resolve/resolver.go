// Package resolve turns validated signals into application rows. Matching is
// layered: exact hard links first (conversation thread, then posting
// reference), then a bounded candidate set handed to the judge, and only
// when everything misses a fresh insert.
package resolve

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"candid.fyi/huntline/internal/db"
	"candid.fyi/huntline/internal/globaltime"
	"candid.fyi/huntline/internal/normalize"
	"candid.fyi/huntline/internal/oracle"
	signalschema "candid.fyi/huntline/schema"
)

// Matching layers recorded on every match event.
const (
	LayerThread      = "thread"
	LayerExternalRef = "external_ref"
	LayerJudge       = "judge"
	LayerNone        = "none"
)

// Match event decisions.
const (
	DecisionMatched = "matched"
	DecisionCreated = "created"
)

// Config bounds the candidate blocking query.
type Config struct {
	CandidateLookbackDays int
	CandidateLimit        int
}

func (c Config) withDefaults() Config {
	if c.CandidateLookbackDays <= 0 {
		c.CandidateLookbackDays = 365
	}
	if c.CandidateLimit <= 0 {
		c.CandidateLimit = 5
	}
	return c
}

// Resolver is the per-signal pipeline. It is safe for concurrent use; the
// partial unique indexes on hunt.applications arbitrate races between
// workers handling signals for the same thread or posting.
type Resolver struct {
	store  Store
	judge  oracle.Judge
	sink   IndexSink
	cfg    Config
	logger zerolog.Logger
}

func NewResolver(store Store, judge oracle.Judge, cfg Config, logger zerolog.Logger) *Resolver {
	return &Resolver{
		store:  store,
		judge:  judge,
		cfg:    cfg.withDefaults(),
		logger: logger,
	}
}

// SetIndexSink attaches an optional post-upsert sink. Sink failures are
// logged and swallowed; they never fail the resolution.
func (r *Resolver) SetIndexSink(sink IndexSink) {
	r.sink = sink
}

// Outcome describes what one signal did to the store.
type Outcome struct {
	Application *db.Application
	Created     bool
	Layer       string
	Confidence  string
	Reasoning   string
}

// Resolve upserts one validated signal for a user.
func (r *Resolver) Resolve(ctx context.Context, userID string, sig *signalschema.Signal) (*Outcome, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	if sig == nil {
		return nil, fmt.Errorf("signal is nil")
	}

	receivedAt, err := sig.ReceivedAt()
	if err != nil {
		return nil, err
	}
	appliedAt, err := sig.AppliedAt()
	if err != nil {
		return nil, err
	}

	// Layer 1: the conversation thread is already linked.
	if app, err := r.matchByThread(ctx, userID, sig); err != nil {
		return nil, err
	} else if app != nil {
		return r.applyMatch(ctx, userID, app, sig, receivedAt, LayerThread, oracle.ConfidenceHigh, "signal thread already linked to application")
	}

	// Layer 2: exact posting reference plus company containment.
	if app, err := r.matchByExternalRef(ctx, userID, sig); err != nil {
		return nil, err
	} else if app != nil {
		return r.applyMatch(ctx, userID, app, sig, receivedAt, LayerExternalRef, oracle.ConfidenceHigh, "signal posting reference matches application")
	}

	// Layers 3+4: blocked candidates judged semantically. The judge runs
	// outside any transaction; it may take seconds.
	candidates, err := r.loadCandidates(ctx, userID, sig, receivedAt)
	if err != nil {
		return nil, err
	}
	if len(candidates) > 0 {
		verdict, err := r.judge.Judge(ctx, buildJudgeRequest(sig, candidates, receivedAt))
		if err != nil {
			// Fail safe: an undecidable signal becomes a new application
			// the consolidation sweep can merge later.
			r.logger.Warn().Err(err).Str("user_id", userID).Msg("judge failed, treating signal as new application")
			verdict = oracle.Verdict{Confidence: oracle.ConfidenceLow, Reasoning: "judge error: " + err.Error()}
		}
		if verdict.Matched() {
			if app := candidateByID(candidates, *verdict.MatchID); app != nil {
				return r.applyMatch(ctx, userID, app, sig, receivedAt, LayerJudge, verdict.Confidence, verdict.Reasoning)
			}
			r.logger.Warn().
				Int64("match_id", *verdict.MatchID).
				Str("user_id", userID).
				Msg("judge matched an application outside the candidate set, ignoring")
		}
	}

	return r.createApplication(ctx, userID, sig, receivedAt, appliedAt)
}

func (r *Resolver) matchByThread(ctx context.Context, userID string, sig *signalschema.Signal) (*db.Application, error) {
	threadID := derefTrim(sig.ThreadID)
	if threadID == "" {
		return nil, nil
	}
	app, err := r.store.FindApplicationByThread(ctx, userID, threadID)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("find application by thread: %w", err)
	}
	return app, nil
}

func (r *Resolver) matchByExternalRef(ctx context.Context, userID string, sig *signalschema.Signal) (*db.Application, error) {
	ref := signalExternalRef(sig)
	if ref == nil {
		return nil, nil
	}
	apps, err := r.store.ListApplicationsByExternalRef(ctx, userID, *ref)
	if err != nil {
		return nil, fmt.Errorf("list applications by external ref: %w", err)
	}
	for i := range apps {
		// Job boards recycle posting ids across tenants, so the reference
		// alone is not enough: the companies must also be compatible.
		if companiesCompatible(apps[i].Company, sig.Company) {
			return &apps[i], nil
		}
	}
	return nil, nil
}

func (r *Resolver) loadCandidates(ctx context.Context, userID string, sig *signalschema.Signal, receivedAt time.Time) ([]db.Application, error) {
	normalized := normalize.Company(sig.Company)
	domain := derefTrim(signalCompanyDomain(sig))

	// Too little signal to block on: a one-letter company with no domain
	// would sweep in the whole table.
	if len([]rune(normalized)) < 2 && domain == "" {
		return nil, nil
	}

	opts := db.CandidateQuery{
		Domain:            domain,
		NormalizedCompany: normalized,
		RawCompany:        strings.TrimSpace(sig.Company),
		Since:             receivedAt.AddDate(0, 0, -r.cfg.CandidateLookbackDays),
		Limit:             r.cfg.CandidateLimit,
	}
	candidates, err := r.store.ListCandidateApplications(ctx, userID, opts)
	if err != nil {
		return nil, fmt.Errorf("list candidate applications: %w", err)
	}
	return candidates, nil
}

func buildJudgeRequest(sig *signalschema.Signal, candidates []db.Application, receivedAt time.Time) oracle.Request {
	req := oracle.Request{
		Signal: oracle.SignalSummary{
			Company:       strings.TrimSpace(sig.Company),
			Role:          strings.TrimSpace(sig.Role),
			Status:        strings.ToLower(strings.TrimSpace(sig.Status)),
			ExternalRefID: derefTrim(signalExternalRef(sig)),
			ReceivedAt:    receivedAt,
		},
		Candidates: make([]oracle.Candidate, 0, len(candidates)),
	}
	for _, cand := range candidates {
		req.Candidates = append(req.Candidates, oracle.Candidate{
			ApplicationID:   cand.ApplicationID,
			ApplicationUUID: cand.ApplicationUUID,
			Company:         cand.Company,
			Role:            cand.RoleTitle,
			Status:          cand.Status,
			ExternalRefID:   derefTrim(cand.ExternalRefID),
			AppliedAt:       cand.AppliedAt,
		})
	}
	return req
}

func candidateByID(candidates []db.Application, applicationID int64) *db.Application {
	for i := range candidates {
		if candidates[i].ApplicationID == applicationID {
			return &candidates[i]
		}
	}
	return nil
}

func (r *Resolver) applyMatch(ctx context.Context, userID string, existing *db.Application, sig *signalschema.Signal, receivedAt time.Time, layer, confidence, reasoning string) (*Outcome, error) {
	now := globaltime.UTC()
	params := mergeParams(existing, sig)

	if err := r.store.UpdateApplication(ctx, existing.ApplicationID, params, now); err != nil {
		return nil, fmt.Errorf("update matched application: %w", err)
	}

	refreshed, err := r.store.GetApplicationByID(ctx, existing.ApplicationID)
	if err != nil {
		return nil, fmt.Errorf("reload matched application: %w", err)
	}

	r.linkEmail(ctx, userID, refreshed.ApplicationID, sig, receivedAt)
	r.recordEvent(ctx, userID, &refreshed.ApplicationID, DecisionMatched, layer, confidence, reasoning, sig)
	r.notifySink(ctx, refreshed)

	r.logger.Info().
		Str("user_id", userID).
		Int64("application_id", refreshed.ApplicationID).
		Str("layer", layer).
		Str("confidence", confidence).
		Msg("signal matched existing application")

	return &Outcome{
		Application: refreshed,
		Layer:       layer,
		Confidence:  confidence,
		Reasoning:   reasoning,
	}, nil
}

func (r *Resolver) createApplication(ctx context.Context, userID string, sig *signalschema.Signal, receivedAt, appliedAt time.Time) (*Outcome, error) {
	app := newApplication(userID, sig, appliedAt)

	if err := r.store.InsertApplication(ctx, app); err != nil {
		if !db.IsUniqueViolation(err) {
			return nil, fmt.Errorf("insert application: %w", err)
		}
		// Another worker created the row for this thread or posting
		// between our lookups and the insert. The unique index arbitrated;
		// fold this signal into the winner.
		winner, lookupErr := r.findRaceWinner(ctx, userID, sig)
		if lookupErr != nil {
			return nil, lookupErr
		}
		if winner == nil {
			return nil, fmt.Errorf("insert application: %w", err)
		}
		r.logger.Info().
			Str("user_id", userID).
			Int64("application_id", winner.ApplicationID).
			Msg("concurrent insert detected, merging signal into existing application")
		layer := LayerThread
		if derefTrim(sig.ThreadID) == "" {
			layer = LayerExternalRef
		}
		return r.applyMatch(ctx, userID, winner, sig, receivedAt, layer, oracle.ConfidenceHigh, "concurrent insert resolved by unique index")
	}

	r.linkEmail(ctx, userID, app.ApplicationID, sig, receivedAt)
	r.recordEvent(ctx, userID, &app.ApplicationID, DecisionCreated, LayerNone, oracle.ConfidenceHigh, "no existing application matched", sig)
	r.notifySink(ctx, app)

	r.logger.Info().
		Str("user_id", userID).
		Int64("application_id", app.ApplicationID).
		Str("company", app.Company).
		Msg("signal created new application")

	return &Outcome{
		Application: app,
		Created:     true,
		Layer:       LayerNone,
		Confidence:  oracle.ConfidenceHigh,
		Reasoning:   "no existing application matched",
	}, nil
}

// findRaceWinner re-runs the hard-link lookups after a unique violation.
func (r *Resolver) findRaceWinner(ctx context.Context, userID string, sig *signalschema.Signal) (*db.Application, error) {
	if app, err := r.matchByThread(ctx, userID, sig); err != nil {
		return nil, err
	} else if app != nil {
		return app, nil
	}
	return r.matchByExternalRef(ctx, userID, sig)
}

func (r *Resolver) linkEmail(ctx context.Context, userID string, applicationID int64, sig *signalschema.Signal, receivedAt time.Time) {
	if derefTrim(sig.MessageID) == "" && derefTrim(sig.ThreadID) == "" {
		return
	}

	email := &db.EmailMessage{
		UserID:        userID,
		ApplicationID: &applicationID,
		ThreadID:      trimPtr(sig.ThreadID),
		MessageID:     trimPtr(sig.MessageID),
		Subject:       derefTrim(sig.Subject),
		FromAddress:   trimPtr(sig.FromAddress),
		ReceivedAt:    receivedAt,
	}
	if err := r.store.InsertEmailMessage(ctx, email); err != nil {
		if db.IsUniqueViolation(err) {
			// Redelivered message; the first delivery already linked it.
			r.logger.Debug().
				Str("user_id", userID).
				Str("message_id", derefTrim(sig.MessageID)).
				Msg("email message already linked")
			return
		}
		r.logger.Error().Err(err).
			Str("user_id", userID).
			Int64("application_id", applicationID).
			Msg("failed to link email message")
	}
}

func (r *Resolver) recordEvent(ctx context.Context, userID string, applicationID *int64, decision, layer, confidence, reasoning string, sig *signalschema.Signal) {
	event := &db.MatchEvent{
		UserID:        userID,
		ApplicationID: applicationID,
		Decision:      decision,
		Layer:         layer,
		Confidence:    &confidence,
		Reasoning:     &reasoning,
		SignalCompany: strings.TrimSpace(sig.Company),
		SignalRole:    strings.TrimSpace(sig.Role),
		SignalStatus:  strings.ToLower(strings.TrimSpace(sig.Status)),
	}
	if err := r.store.InsertMatchEvent(ctx, event); err != nil {
		r.logger.Error().Err(err).
			Str("user_id", userID).
			Str("decision", decision).
			Msg("failed to record match event")
	}
}

func (r *Resolver) notifySink(ctx context.Context, app *db.Application) {
	if r.sink == nil {
		return
	}
	if err := r.sink.IndexApplication(ctx, app); err != nil {
		r.logger.Warn().Err(err).
			Int64("application_id", app.ApplicationID).
			Msg("index sink rejected application")
	}
}

func newApplication(userID string, sig *signalschema.Signal, appliedAt time.Time) *db.Application {
	status := strings.ToLower(strings.TrimSpace(sig.Status))
	if !db.IsKnownStatus(status) {
		status = db.StatusApplied
	}

	return &db.Application{
		UserID:          userID,
		Company:         strings.TrimSpace(sig.Company),
		RoleTitle:       strings.TrimSpace(sig.Role),
		Status:          status,
		ExternalRefID:   signalExternalRef(sig),
		CompanyDomain:   signalCompanyDomain(sig),
		CompanyLinkedIn: trimPtr(signalCompanyLinkedIn(sig)),
		JobPostURL:      signalJobPostURL(sig),
		Location:        trimPtr(sig.Location),
		SalaryRange:     trimPtr(sig.SalaryRange),
		RecruiterName:   trimPtr(signalPersonField(sig, personRecruiterName)),
		RecruiterEmail:  trimPtr(signalPersonField(sig, personRecruiterEmail)),
		HiringManager:   trimPtr(signalPersonField(sig, personHiringManager)),
		NextSteps:       trimPtr(sig.NextSteps),
		RejectionReason: trimPtr(sig.RejectionReason),
		Feedback:        trimPtr(sig.Feedback),
		SentimentScore:  sig.SentimentScore,
		ThreadKey:       trimPtr(sig.ThreadID),
		AppliedAt:       appliedAt,
	}
}

// companiesCompatible accepts exact normalized equality or containment in
// either direction, so "Acme" matches "Acme Inc — Talent Team".
func companiesCompatible(stored, incoming string) bool {
	a := normalize.Company(stored)
	b := normalize.Company(incoming)
	if a == "" || b == "" {
		return false
	}
	return a == b || strings.Contains(a, b) || strings.Contains(b, a)
}

func derefTrim(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

func trimPtr(s *string) *string {
	trimmed := derefTrim(s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
