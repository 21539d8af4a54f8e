package db

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const applicationColumns = `
	application_id,
	application_uuid::text,
	user_id,
	company,
	role_title,
	status,
	external_ref_id,
	company_domain,
	company_linkedin,
	job_post_url,
	location,
	salary_range,
	recruiter_name,
	recruiter_email,
	hiring_manager,
	next_steps,
	rejection_reason,
	feedback,
	sentiment_score,
	thread_key,
	applied_at,
	created_at,
	updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanApplication(s rowScanner) (*Application, error) {
	var a Application
	err := s.Scan(
		&a.ApplicationID,
		&a.ApplicationUUID,
		&a.UserID,
		&a.Company,
		&a.RoleTitle,
		&a.Status,
		&a.ExternalRefID,
		&a.CompanyDomain,
		&a.CompanyLinkedIn,
		&a.JobPostURL,
		&a.Location,
		&a.SalaryRange,
		&a.RecruiterName,
		&a.RecruiterEmail,
		&a.HiringManager,
		&a.NextSteps,
		&a.RejectionReason,
		&a.Feedback,
		&a.SentimentScore,
		&a.ThreadKey,
		&a.AppliedAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func collectApplications(rows *Rows) ([]Application, error) {
	defer rows.Close()

	var apps []Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("scan application row: %w", err)
		}
		apps = append(apps, *app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate application rows: %w", err)
	}
	return apps, nil
}

// FindApplicationByThread resolves the application owning a conversation
// thread, either through its own thread key or through any linked email.
func (p *Pool) FindApplicationByThread(ctx context.Context, userID, threadID string) (*Application, error) {
	threadID = strings.TrimSpace(threadID)
	if threadID == "" {
		return nil, ErrNoRows
	}

	q := `
SELECT` + applicationColumns + `
FROM hunt.applications a
WHERE a.user_id = $1
  AND a.deleted_at IS NULL
  AND (
	a.thread_key = $2
	OR EXISTS (
		SELECT 1
		FROM hunt.email_messages e
		WHERE e.user_id = $1
		  AND e.application_id = a.application_id
		  AND e.thread_id = $2
	)
  )
ORDER BY a.updated_at DESC
LIMIT 1
`
	return scanApplication(p.QueryRow(ctx, q, userID, threadID))
}

// ListApplicationsByExternalRef returns live applications carrying the exact
// namespaced posting reference. The caller applies the company containment
// check.
func (p *Pool) ListApplicationsByExternalRef(ctx context.Context, userID, externalRefID string) ([]Application, error) {
	q := `
SELECT` + applicationColumns + `
FROM hunt.applications a
WHERE a.user_id = $1
  AND a.deleted_at IS NULL
  AND a.external_ref_id = $2
ORDER BY a.updated_at DESC
`
	rows, err := p.Query(ctx, q, userID, strings.TrimSpace(externalRefID))
	if err != nil {
		return nil, fmt.Errorf("query applications by external ref: %w", err)
	}
	return collectApplications(rows)
}

// CandidateQuery bounds the blocking query for the judge's candidate set.
type CandidateQuery struct {
	Domain            string
	NormalizedCompany string
	RawCompany        string
	Since             time.Time
	Limit             int
}

// ListCandidateApplications is the cheap high-recall blocking filter: live
// applications for the user updated since the lookback cutoff whose domain
// matches or whose stored company contains either company spelling.
func (p *Pool) ListCandidateApplications(ctx context.Context, userID string, opts CandidateQuery) ([]Application, error) {
	if opts.Limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0")
	}

	q := `
SELECT` + applicationColumns + `
FROM hunt.applications a
WHERE a.user_id = $1
  AND a.deleted_at IS NULL
  AND a.updated_at >= $2
  AND (
	($3 <> '' AND a.company_domain = $3)
	OR ($4 <> '' AND lower(a.company) LIKE '%' || $4 || '%')
	OR ($5 <> '' AND lower(a.company) LIKE '%' || $5 || '%')
  )
ORDER BY a.updated_at DESC
LIMIT $6
`
	rows, err := p.Query(ctx, q,
		userID,
		opts.Since.UTC(),
		strings.ToLower(strings.TrimSpace(opts.Domain)),
		strings.ToLower(strings.TrimSpace(opts.NormalizedCompany)),
		strings.ToLower(strings.TrimSpace(opts.RawCompany)),
		opts.Limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query candidate applications: %w", err)
	}
	return collectApplications(rows)
}

func (p *Pool) GetApplicationByID(ctx context.Context, applicationID int64) (*Application, error) {
	q := `
SELECT` + applicationColumns + `
FROM hunt.applications a
WHERE a.application_id = $1
  AND a.deleted_at IS NULL
`
	return scanApplication(p.QueryRow(ctx, q, applicationID))
}

func (p *Pool) GetApplicationByUUID(ctx context.Context, userID, applicationUUID string) (*Application, error) {
	q := `
SELECT` + applicationColumns + `
FROM hunt.applications a
WHERE a.user_id = $1
  AND a.application_uuid = $2::uuid
  AND a.deleted_at IS NULL
`
	return scanApplication(p.QueryRow(ctx, q, userID, strings.TrimSpace(applicationUUID)))
}

// ListApplicationsByUser returns every live application for the user sorted
// ascending by applied date — the consolidation walk order.
func (p *Pool) ListApplicationsByUser(ctx context.Context, userID string) ([]Application, error) {
	q := `
SELECT` + applicationColumns + `
FROM hunt.applications a
WHERE a.user_id = $1
  AND a.deleted_at IS NULL
ORDER BY a.applied_at ASC, a.application_id ASC
`
	rows, err := p.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("query applications by user: %w", err)
	}
	return collectApplications(rows)
}

// ListApplications is the API read model: most recently updated first.
func (p *Pool) ListApplications(ctx context.Context, userID string, limit, offset int) ([]Application, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0")
	}
	if offset < 0 {
		offset = 0
	}

	q := `
SELECT` + applicationColumns + `
FROM hunt.applications a
WHERE a.user_id = $1
  AND a.deleted_at IS NULL
ORDER BY a.updated_at DESC, a.application_id DESC
LIMIT $2 OFFSET $3
`
	rows, err := p.Query(ctx, q, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query applications: %w", err)
	}
	return collectApplications(rows)
}

// ListStaleApplications returns live applications stuck in a pre-terminal
// status with no update since the cutoff — the ghost scan input.
func (p *Pool) ListStaleApplications(ctx context.Context, userID string, cutoff time.Time) ([]Application, error) {
	q := `
SELECT` + applicationColumns + `
FROM hunt.applications a
WHERE a.user_id = $1
  AND a.deleted_at IS NULL
  AND a.status IN ($2, $3, $4)
  AND a.updated_at < $5
ORDER BY a.updated_at ASC
`
	rows, err := p.Query(ctx, q, userID, StatusApplied, StatusScreen, StatusInterview, cutoff.UTC())
	if err != nil {
		return nil, fmt.Errorf("query stale applications: %w", err)
	}
	return collectApplications(rows)
}

func (p *Pool) ListDistinctUserIDs(ctx context.Context) ([]string, error) {
	rows, err := p.Query(ctx, `SELECT DISTINCT user_id FROM hunt.applications WHERE deleted_at IS NULL ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("query distinct user ids: %w", err)
	}
	defer rows.Close()

	var userIDs []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		userIDs = append(userIDs, userID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user ids: %w", err)
	}
	return userIDs, nil
}

// InsertApplication inserts a new application and fills the generated
// identifier columns on app.
func (p *Pool) InsertApplication(ctx context.Context, app *Application) error {
	if app == nil {
		return fmt.Errorf("application is nil")
	}

	const q = `
INSERT INTO hunt.applications (
	user_id, company, role_title, status,
	external_ref_id, company_domain, company_linkedin, job_post_url,
	location, salary_range, recruiter_name, recruiter_email, hiring_manager,
	next_steps, rejection_reason, feedback, sentiment_score,
	thread_key, applied_at, created_at, updated_at
) VALUES (
	$1, $2, $3, $4,
	$5, $6, $7, $8,
	$9, $10, $11, $12, $13,
	$14, $15, $16, $17,
	$18, $19, $20, $20
)
RETURNING application_id, application_uuid::text, created_at, updated_at
`
	now := time.Now().UTC()
	row := p.QueryRow(ctx, q,
		app.UserID, app.Company, app.RoleTitle, app.Status,
		app.ExternalRefID, app.CompanyDomain, app.CompanyLinkedIn, app.JobPostURL,
		app.Location, app.SalaryRange, app.RecruiterName, app.RecruiterEmail, app.HiringManager,
		app.NextSteps, app.RejectionReason, app.Feedback, app.SentimentScore,
		app.ThreadKey, app.AppliedAt.UTC(), now,
	)
	if err := row.Scan(&app.ApplicationID, &app.ApplicationUUID, &app.CreatedAt, &app.UpdatedAt); err != nil {
		return fmt.Errorf("insert application: %w", err)
	}
	return nil
}

// UpdateApplicationParams carries merge deltas; nil fields are untouched.
type UpdateApplicationParams struct {
	Status          *string
	NextSteps       *string
	SentimentScore  *float64
	RejectionReason *string
	Feedback        *string
	ExternalRefID   *string
	SalaryRange     *string
	CompanyDomain   *string
	CompanyLinkedIn *string
	JobPostURL      *string
	Location        *string
	RecruiterName   *string
	RecruiterEmail  *string
	HiringManager   *string
	ThreadKey       *string
}

func (params UpdateApplicationParams) assignments(now time.Time, args *[]any) []string {
	set := func(column string, value any) string {
		*args = append(*args, value)
		return fmt.Sprintf("%s = $%d", column, len(*args))
	}

	assignments := []string{set("updated_at", now.UTC())}
	if params.Status != nil {
		assignments = append(assignments, set("status", *params.Status))
	}
	if params.NextSteps != nil {
		assignments = append(assignments, set("next_steps", *params.NextSteps))
	}
	if params.SentimentScore != nil {
		assignments = append(assignments, set("sentiment_score", *params.SentimentScore))
	}
	if params.RejectionReason != nil {
		assignments = append(assignments, set("rejection_reason", *params.RejectionReason))
	}
	if params.Feedback != nil {
		assignments = append(assignments, set("feedback", *params.Feedback))
	}
	if params.ExternalRefID != nil {
		assignments = append(assignments, set("external_ref_id", *params.ExternalRefID))
	}
	if params.SalaryRange != nil {
		assignments = append(assignments, set("salary_range", *params.SalaryRange))
	}
	if params.CompanyDomain != nil {
		assignments = append(assignments, set("company_domain", *params.CompanyDomain))
	}
	if params.CompanyLinkedIn != nil {
		assignments = append(assignments, set("company_linkedin", *params.CompanyLinkedIn))
	}
	if params.JobPostURL != nil {
		assignments = append(assignments, set("job_post_url", *params.JobPostURL))
	}
	if params.Location != nil {
		assignments = append(assignments, set("location", *params.Location))
	}
	if params.RecruiterName != nil {
		assignments = append(assignments, set("recruiter_name", *params.RecruiterName))
	}
	if params.RecruiterEmail != nil {
		assignments = append(assignments, set("recruiter_email", *params.RecruiterEmail))
	}
	if params.HiringManager != nil {
		assignments = append(assignments, set("hiring_manager", *params.HiringManager))
	}
	if params.ThreadKey != nil {
		assignments = append(assignments, set("thread_key", *params.ThreadKey))
	}
	return assignments
}

// UpdateApplication applies merge deltas to one live application.
func (p *Pool) UpdateApplication(ctx context.Context, applicationID int64, params UpdateApplicationParams, now time.Time) error {
	var args []any
	assignments := params.assignments(now, &args)

	args = append(args, applicationID)
	q := fmt.Sprintf(`
UPDATE hunt.applications
SET %s
WHERE application_id = $%d
  AND deleted_at IS NULL
`, strings.Join(assignments, ",\n	"), len(args))

	tag, err := p.Exec(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update application: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNoRows
	}
	return nil
}

// MergeApplications performs one consolidation merge atomically: reassigns
// every email owned by the losing application to the winner, applies the
// loser's newer mutable fields to the winner and soft-deletes the loser.
// Returns the number of reassigned emails.
func (p *Pool) MergeApplications(ctx context.Context, winnerID, loserID int64, params UpdateApplicationParams, now time.Time) (int64, error) {
	if winnerID == loserID {
		return 0, fmt.Errorf("cannot merge an application into itself")
	}

	tx, err := p.BeginTx(ctx, TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	tag, err := tx.Exec(ctx, `
UPDATE hunt.email_messages
SET application_id = $1
WHERE application_id = $2
`, winnerID, loserID)
	if err != nil {
		return 0, fmt.Errorf("reassign emails: %w", err)
	}
	reassigned := tag.RowsAffected()

	var args []any
	assignments := params.assignments(now, &args)
	args = append(args, winnerID)
	updateQ := fmt.Sprintf(`
UPDATE hunt.applications
SET %s
WHERE application_id = $%d
  AND deleted_at IS NULL
`, strings.Join(assignments, ",\n	"), len(args))
	winnerTag, err := tx.Exec(ctx, updateQ, args...)
	if err != nil {
		return 0, fmt.Errorf("update surviving application: %w", err)
	}
	if winnerTag.RowsAffected() == 0 {
		return 0, fmt.Errorf("surviving application %d not found", winnerID)
	}

	loserTag, err := tx.Exec(ctx, `
UPDATE hunt.applications
SET deleted_at = $2, updated_at = $2
WHERE application_id = $1
  AND deleted_at IS NULL
`, loserID, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("retire merged application: %w", err)
	}
	if loserTag.RowsAffected() == 0 {
		return 0, fmt.Errorf("merged application %d not found", loserID)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}
	return reassigned, nil
}
