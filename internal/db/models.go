package db

import "time"

// Application lifecycle statuses.
const (
	StatusApplied   = "applied"
	StatusScreen    = "screen"
	StatusInterview = "interview"
	StatusOffer     = "offer"
	StatusRejected  = "rejected"
	StatusGhosted   = "ghosted"
)

// KnownStatuses lists every valid lifecycle status.
var KnownStatuses = []string{
	StatusApplied,
	StatusScreen,
	StatusInterview,
	StatusOffer,
	StatusRejected,
	StatusGhosted,
}

// IsKnownStatus reports whether status is a valid lifecycle status.
func IsKnownStatus(status string) bool {
	for _, known := range KnownStatuses {
		if status == known {
			return true
		}
	}
	return false
}

// IsProgressionStatus reports whether status signals movement through the
// pipeline rather than a fresh application.
func IsProgressionStatus(status string) bool {
	switch status {
	case StatusScreen, StatusInterview, StatusOffer, StatusRejected:
		return true
	}
	return false
}

// Application maps hunt.applications — one tracked job application.
// thread_key holds the first conversation thread that created the row; the
// partial unique index on (user_id, thread_key) is what makes concurrent
// inserts for the same thread resolve to a single application.
type Application struct {
	ApplicationID   int64      `gorm:"column:application_id;primaryKey;autoIncrement"`
	ApplicationUUID string     `gorm:"column:application_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	UserID          string     `gorm:"column:user_id;type:text;not null"`
	Company         string     `gorm:"column:company;type:text;not null"`
	RoleTitle       string     `gorm:"column:role_title;type:text;not null"`
	Status          string     `gorm:"column:status;type:text;not null;default:applied"`
	ExternalRefID   *string    `gorm:"column:external_ref_id;type:text"`
	CompanyDomain   *string    `gorm:"column:company_domain;type:text"`
	CompanyLinkedIn *string    `gorm:"column:company_linkedin;type:text"`
	JobPostURL      *string    `gorm:"column:job_post_url;type:text"`
	Location        *string    `gorm:"column:location;type:text"`
	SalaryRange     *string    `gorm:"column:salary_range;type:text"`
	RecruiterName   *string    `gorm:"column:recruiter_name;type:text"`
	RecruiterEmail  *string    `gorm:"column:recruiter_email;type:text"`
	HiringManager   *string    `gorm:"column:hiring_manager;type:text"`
	NextSteps       *string    `gorm:"column:next_steps;type:text"`
	RejectionReason *string    `gorm:"column:rejection_reason;type:text"`
	Feedback        *string    `gorm:"column:feedback;type:text"`
	SentimentScore  *float64   `gorm:"column:sentiment_score;type:double precision"`
	ThreadKey       *string    `gorm:"column:thread_key;type:text"`
	AppliedAt       time.Time  `gorm:"column:applied_at;type:timestamptz;not null"`
	CreatedAt       time.Time  `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt       time.Time  `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
	DeletedAt       *time.Time `gorm:"column:deleted_at;type:timestamptz"`
}

func (Application) TableName() string { return "hunt.applications" }

// EmailMessage maps hunt.email_messages — a dependent conversation record
// owned by at most one application. Ownership is rewritten in bulk during
// consolidation merges; a message is never left pointing at a deleted
// application.
type EmailMessage struct {
	EmailID       int64      `gorm:"column:email_id;primaryKey;autoIncrement"`
	EmailUUID     string     `gorm:"column:email_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	UserID        string     `gorm:"column:user_id;type:text;not null"`
	ApplicationID *int64     `gorm:"column:application_id;type:bigint"`
	ThreadID      *string    `gorm:"column:thread_id;type:text"`
	MessageID     *string    `gorm:"column:message_id;type:text"`
	Subject       string     `gorm:"column:subject;type:text;not null;default:''"`
	FromAddress   *string    `gorm:"column:from_address;type:text"`
	ReceivedAt    time.Time  `gorm:"column:received_at;type:timestamptz;not null"`
	CreatedAt     time.Time  `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (EmailMessage) TableName() string { return "hunt.email_messages" }

// MatchEvent maps hunt.match_events — the audit trail for every resolution
// decision (hard link, judge verdict, insert, consolidation merge).
type MatchEvent struct {
	MatchEventID   int64     `gorm:"column:match_event_id;primaryKey;autoIncrement"`
	MatchEventUUID string    `gorm:"column:match_event_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	UserID         string    `gorm:"column:user_id;type:text;not null"`
	ApplicationID  *int64    `gorm:"column:application_id;type:bigint"`
	Decision       string    `gorm:"column:decision;type:text;not null"`
	Layer          string    `gorm:"column:layer;type:text;not null"`
	Confidence     *string   `gorm:"column:confidence;type:text"`
	Reasoning      *string   `gorm:"column:reasoning;type:text"`
	SignalCompany  string    `gorm:"column:signal_company;type:text;not null;default:''"`
	SignalRole     string    `gorm:"column:signal_role;type:text;not null;default:''"`
	SignalStatus   string    `gorm:"column:signal_status;type:text;not null;default:''"`
	CreatedAt      time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (MatchEvent) TableName() string { return "hunt.match_events" }

// ConsolidationRun maps hunt.consolidation_runs — one row per batch
// consolidation sweep.
type ConsolidationRun struct {
	RunID         int64      `gorm:"column:run_id;primaryKey;autoIncrement"`
	RunUUID       string     `gorm:"column:run_uuid;type:uuid;not null;unique"`
	UserID        string     `gorm:"column:user_id;type:text;not null"`
	StartedAt     time.Time  `gorm:"column:started_at;type:timestamptz;not null;default:now()"`
	FinishedAt    *time.Time `gorm:"column:finished_at;type:timestamptz"`
	Status        string     `gorm:"column:status;type:text;not null;default:running"`
	GroupsScanned int        `gorm:"column:groups_scanned;type:integer;not null;default:0"`
	MergesApplied int        `gorm:"column:merges_applied;type:integer;not null;default:0"`
	ErrorMessage  *string    `gorm:"column:error_message;type:text"`
}

func (ConsolidationRun) TableName() string { return "hunt.consolidation_runs" }

func autoMigrateModels() []any {
	return []any{
		&Application{},
		&EmailMessage{},
		&MatchEvent{},
		&ConsolidationRun{},
	}
}
