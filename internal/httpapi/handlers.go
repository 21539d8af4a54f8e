package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"candid.fyi/huntline/internal/consolidate"
	"candid.fyi/huntline/internal/db"
	signalschema "candid.fyi/huntline/schema"
)

type applicationItem struct {
	ApplicationUUID string     `json:"application_uuid"`
	Company         string     `json:"company"`
	RoleTitle       string     `json:"role_title"`
	Status          string     `json:"status"`
	ExternalRefID   *string    `json:"external_ref_id,omitempty"`
	CompanyDomain   *string    `json:"company_domain,omitempty"`
	CompanyLinkedIn *string    `json:"company_linkedin,omitempty"`
	JobPostURL      *string    `json:"job_post_url,omitempty"`
	Location        *string    `json:"location,omitempty"`
	SalaryRange     *string    `json:"salary_range,omitempty"`
	RecruiterName   *string    `json:"recruiter_name,omitempty"`
	RecruiterEmail  *string    `json:"recruiter_email,omitempty"`
	HiringManager   *string    `json:"hiring_manager,omitempty"`
	NextSteps       *string    `json:"next_steps,omitempty"`
	RejectionReason *string    `json:"rejection_reason,omitempty"`
	Feedback        *string    `json:"feedback,omitempty"`
	SentimentScore  *float64   `json:"sentiment_score,omitempty"`
	AppliedAt       time.Time  `json:"applied_at"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

type emailItem struct {
	EmailUUID   string    `json:"email_uuid"`
	ThreadID    *string   `json:"thread_id,omitempty"`
	MessageID   *string   `json:"message_id,omitempty"`
	Subject     string    `json:"subject"`
	FromAddress *string   `json:"from_address,omitempty"`
	ReceivedAt  time.Time `json:"received_at"`
}

func toApplicationItem(app *db.Application) applicationItem {
	return applicationItem{
		ApplicationUUID: app.ApplicationUUID,
		Company:         app.Company,
		RoleTitle:       app.RoleTitle,
		Status:          app.Status,
		ExternalRefID:   app.ExternalRefID,
		CompanyDomain:   app.CompanyDomain,
		CompanyLinkedIn: app.CompanyLinkedIn,
		JobPostURL:      app.JobPostURL,
		Location:        app.Location,
		SalaryRange:     app.SalaryRange,
		RecruiterName:   app.RecruiterName,
		RecruiterEmail:  app.RecruiterEmail,
		HiringManager:   app.HiringManager,
		NextSteps:       app.NextSteps,
		RejectionReason: app.RejectionReason,
		Feedback:        app.Feedback,
		SentimentScore:  app.SentimentScore,
		AppliedAt:       app.AppliedAt,
		CreatedAt:       app.CreatedAt,
		UpdatedAt:       app.UpdatedAt,
	}
}

func (s *Server) handleIngestSignal(c echo.Context) error {
	userID := requestUserID(c)
	if userID == "" {
		return failValidation(c, map[string]string{"user_id": "X-User-ID header is required"})
	}

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, 1<<20))
	if err != nil {
		return failValidation(c, map[string]string{"body": "could not read request body"})
	}

	sig, err := signalschema.ValidateSignalPayload(json.RawMessage(body))
	if err != nil {
		if errors.Is(err, signalschema.ErrNotJobRelated) {
			// Accepted but deliberately ignored; nothing was stored.
			return success(c, map[string]any{"ignored": true, "reason": "not job related"})
		}
		return failValidation(c, map[string]string{"payload": err.Error()})
	}

	outcome, err := s.resolver.Resolve(c.Request().Context(), userID, sig)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("signal resolution failed")
		return internalError(c, "Failed to resolve signal")
	}

	status := http.StatusOK
	if outcome.Created {
		status = http.StatusCreated
	}
	return successWithStatus(c, status, map[string]any{
		"application": toApplicationItem(outcome.Application),
		"created":     outcome.Created,
		"layer":       outcome.Layer,
		"confidence":  outcome.Confidence,
		"reasoning":   outcome.Reasoning,
	})
}

func (s *Server) handleApplications(c echo.Context) error {
	userID := requestUserID(c)
	if userID == "" {
		return failValidation(c, map[string]string{"user_id": "X-User-ID header is required"})
	}

	page, err := parsePositiveInt(c.QueryParam("page"), 1, 1, 1_000_000)
	if err != nil {
		return failValidation(c, map[string]string{"page": err.Error()})
	}
	pageSize, err := parsePositiveInt(c.QueryParam("page_size"), defaultPageSize, 1, maxPageSize)
	if err != nil {
		return failValidation(c, map[string]string{"page_size": err.Error()})
	}

	apps, err := s.pool.ListApplications(c.Request().Context(), userID, pageSize, (page-1)*pageSize)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("list applications failed")
		return internalError(c, "Failed to load applications")
	}

	items := make([]applicationItem, 0, len(apps))
	for i := range apps {
		items = append(items, toApplicationItem(&apps[i]))
	}
	return success(c, map[string]any{
		"items": items,
		"pagination": map[string]any{
			"page":      page,
			"page_size": pageSize,
		},
	})
}

func (s *Server) handleApplicationDetail(c echo.Context) error {
	userID := requestUserID(c)
	if userID == "" {
		return failValidation(c, map[string]string{"user_id": "X-User-ID header is required"})
	}
	applicationUUID := strings.TrimSpace(c.Param("application_uuid"))
	if applicationUUID == "" {
		return failValidation(c, map[string]string{"application_uuid": "is required"})
	}

	app, err := s.pool.GetApplicationByUUID(c.Request().Context(), userID, applicationUUID)
	if err != nil {
		if db.IsNoRows(err) {
			return failNotFound(c, "Application not found")
		}
		s.logger.Error().Err(err).Str("application_uuid", applicationUUID).Msg("load application failed")
		return internalError(c, "Failed to load application")
	}

	emails, err := s.pool.ListEmailsByApplication(c.Request().Context(), app.ApplicationID)
	if err != nil {
		s.logger.Error().Err(err).Int64("application_id", app.ApplicationID).Msg("load emails failed")
		return internalError(c, "Failed to load application emails")
	}

	emailItems := make([]emailItem, 0, len(emails))
	for _, e := range emails {
		emailItems = append(emailItems, emailItem{
			EmailUUID:   e.EmailUUID,
			ThreadID:    e.ThreadID,
			MessageID:   e.MessageID,
			Subject:     e.Subject,
			FromAddress: e.FromAddress,
			ReceivedAt:  e.ReceivedAt,
		})
	}

	return success(c, map[string]any{
		"application": toApplicationItem(app),
		"emails":      emailItems,
	})
}

// handleConsolidationRun streams one progress line per step as plain text,
// then a final JSON summary line. Clients watching a long sweep see output
// immediately because every line is flushed.
func (s *Server) handleConsolidationRun(c echo.Context) error {
	userID := requestUserID(c)
	if userID == "" {
		return failValidation(c, map[string]string{"user_id": "X-User-ID header is required"})
	}
	dryRun, err := parseBool(c.QueryParam("dry_run"), false)
	if err != nil {
		return failValidation(c, map[string]string{"dry_run": err.Error()})
	}

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/plain; charset=utf-8")
	resp.Header().Set("X-Accel-Buffering", "no")
	resp.WriteHeader(http.StatusOK)

	progress := func(line string) {
		fmt.Fprintln(resp, line)
		resp.Flush()
	}

	result, err := s.consolidator.Run(c.Request().Context(), userID, consolidate.Options{
		DryRun:   dryRun,
		Progress: progress,
	})
	if err != nil {
		progress("consolidation failed: " + err.Error())
		return nil
	}

	summary, marshalErr := json.Marshal(result)
	if marshalErr != nil {
		progress("consolidation finished")
		return nil
	}
	progress(string(summary))
	return nil
}

func (s *Server) handleScanDuplicates(c echo.Context) error {
	userID := requestUserID(c)
	if userID == "" {
		return failValidation(c, map[string]string{"user_id": "X-User-ID header is required"})
	}

	result, err := s.consolidator.ScanDuplicates(c.Request().Context(), userID, nil)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("duplicate scan failed")
		return internalError(c, "Duplicate scan failed")
	}
	return success(c, result)
}

func (s *Server) handleScanGhosts(c echo.Context) error {
	userID := requestUserID(c)
	if userID == "" {
		return failValidation(c, map[string]string{"user_id": "X-User-ID header is required"})
	}
	dryRun, err := parseBool(c.QueryParam("dry_run"), true)
	if err != nil {
		return failValidation(c, map[string]string{"dry_run": err.Error()})
	}

	findings, err := s.consolidator.ScanGhosts(c.Request().Context(), userID, dryRun, nil)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("ghost scan failed")
		return internalError(c, "Ghost scan failed")
	}
	return success(c, map[string]any{
		"items":   findings,
		"dry_run": dryRun,
	})
}

func (s *Server) handleScanDrift(c echo.Context) error {
	userID := requestUserID(c)
	if userID == "" {
		return failValidation(c, map[string]string{"user_id": "X-User-ID header is required"})
	}

	findings, err := s.consolidator.ScanDrift(c.Request().Context(), userID, nil)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("drift scan failed")
		return internalError(c, "Drift scan failed")
	}
	return success(c, map[string]any{
		"items": findings,
	})
}
